package launch

import (
	"context"
	"deckhost/common"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/ksuid"
)

// waitDelay bounds how long Wait keeps copying output after the process
// exits while a detached grandchild still holds the pipes open.
const waitDelay = 2 * time.Second

// Target is the fully resolved command for one launch attempt.
type Target struct {
	Mode    Mode     `json:"mode"`
	Dir     string   `json:"dir"`
	Command string   `json:"command"`
	Args    []string `json:"args"`
	// Env holds the extra variables set on top of the host's environment.
	Env []string `json:"env,omitempty"`
}

func (t Target) String() string {
	s := t.Command
	for _, arg := range t.Args {
		s += " " + arg
	}
	return s
}

type Config struct {
	Manifest        string
	ServerDir       string
	PackageManager  string
	DevArgs         []string
	CompanionBinary string
	ExecutableExt   string

	// DevEnvVars select development mode when any of them is set.
	DevEnvVars []string

	// OutputDir receives one <runId>.log per launch. Empty disables the
	// per-run files.
	OutputDir string
}

func ConfigFromHost(c common.HostConfig, outputDir string) Config {
	return Config{
		Manifest:        c.Manifest,
		ServerDir:       c.ServerDir,
		PackageManager:  c.PackageManager,
		DevArgs:         append([]string(nil), c.DevArgs...),
		CompanionBinary: c.CompanionBinary,
		ExecutableExt:   common.ExecutableExt(),
		DevEnvVars:      append([]string(nil), c.DevEnvVars...),
		OutputDir:       outputDir,
	}
}

// Launcher turns a mode and port into a running backend process.
type Launcher struct {
	mu     sync.RWMutex
	config Config

	logger     zerolog.Logger
	getwd      func() (string, error)
	executable func() (string, error)
}

type Option func(*Launcher)

// WithWorkingDir fixes the directory the project root search starts from.
func WithWorkingDir(dir string) Option {
	return func(l *Launcher) {
		l.getwd = func() (string, error) { return dir, nil }
	}
}

// WithExecutable overrides the host executable path used to locate the
// companion binary and as the fallback project root search start.
func WithExecutable(path string) Option {
	return func(l *Launcher) {
		l.executable = func() (string, error) { return path, nil }
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(l *Launcher) {
		l.logger = logger
	}
}

func NewLauncher(config Config, opts ...Option) *Launcher {
	l := &Launcher{
		config:     config,
		logger:     zerolog.Nop(),
		getwd:      os.Getwd,
		executable: os.Executable,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Reconfigure replaces the launch settings. Processes already running are
// unaffected; the next Resolve or Launch uses the new settings.
func (l *Launcher) Reconfigure(config Config) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.config = config
}

func (l *Launcher) currentConfig() Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.config
}

// DetectMode picks the launch mode from the process environment using the
// current dev env vars.
func (l *Launcher) DetectMode() Mode {
	config := l.currentConfig()
	return DetectMode(CurrentEnvironment(config.DevEnvVars, config.ExecutableExt))
}

// Resolve computes the command for mode without starting anything.
func (l *Launcher) Resolve(mode Mode, port int) (Target, error) {
	config := l.currentConfig()
	portEnv := "PORT=" + strconv.Itoa(port)

	switch mode {
	case ModeDevelopment:
		cwd, err := l.getwd()
		if err != nil {
			cwd = ""
		}
		exeDir := ""
		if exe, err := l.executable(); err == nil {
			exeDir = filepath.Dir(exe)
		}

		root, err := FindProjectRoot(cwd, exeDir, config.Manifest)
		if err != nil {
			return Target{}, &LaunchError{
				Kind:    KindPathResolution,
				Message: fmt.Sprintf("could not find %s above %q or %q", config.Manifest, cwd, exeDir),
				Hint:    "run deckhost from inside the project checkout",
				Err:     err,
			}
		}

		return Target{
			Mode:    mode,
			Dir:     filepath.Join(root, filepath.FromSlash(config.ServerDir)),
			Command: config.PackageManager,
			Args:    append([]string(nil), config.DevArgs...),
			Env:     []string{portEnv},
		}, nil

	case ModeProduction:
		exe, err := l.executable()
		if err != nil {
			return Target{}, &LaunchError{
				Kind:    KindPathResolution,
				Message: "could not determine the host executable path",
				Err:     err,
			}
		}

		return Target{
			Mode:    mode,
			Dir:     filepath.Dir(exe),
			Command: ResolveExecutable(exe, config.CompanionBinary, config.ExecutableExt),
			Args:    []string{"--port", strconv.Itoa(port)},
			Env:     []string{portEnv},
		}, nil

	default:
		return Target{}, &LaunchError{
			Kind:    KindPathResolution,
			Message: fmt.Sprintf("unknown launch mode %q", mode),
		}
	}
}

// Launch resolves and spawns the backend. Combined stdout and stderr go to
// output (may be nil) and to the run's output file. The child is not tied to
// ctx: it keeps running until the returned handle is terminated.
func (l *Launcher) Launch(ctx context.Context, mode Mode, port int, output io.Writer) (*ServerHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	target, err := l.Resolve(mode, port)
	if err != nil {
		return nil, err
	}

	runId := "run_" + ksuid.New().String()
	log := l.logger.With().Str("runId", runId).Str("mode", string(mode)).Logger()

	cmd := exec.Command(target.Command, target.Args...)
	cmd.Dir = target.Dir
	cmd.Env = append(os.Environ(), target.Env...)
	cmd.WaitDelay = waitDelay
	setProcAttr(cmd)

	writers := []io.Writer{}
	if output != nil {
		writers = append(writers, output)
	}

	var outputFile *os.File
	var outputPath string
	if outputDir := l.currentConfig().OutputDir; outputDir != "" {
		outputPath = filepath.Join(outputDir, runId+".log")
		outputFile, err = os.Create(outputPath)
		if err != nil {
			log.Warn().Err(err).Str("path", outputPath).Msg("Failed to create run output file")
			outputPath = ""
		} else {
			writers = append(writers, outputFile)
		}
	}

	if len(writers) > 0 {
		// one writer value for both streams, so writes are never concurrent
		combined := io.MultiWriter(writers...)
		cmd.Stdout = combined
		cmd.Stderr = combined
	}

	if err := cmd.Start(); err != nil {
		if outputFile != nil {
			outputFile.Close()
			os.Remove(outputPath)
		}
		return nil, spawnError(target, err)
	}

	group, err := attachProcessGroup(cmd)
	if err != nil {
		log.Warn().Err(err).Int("pid", cmd.Process.Pid).Msg("Child processes may outlive the server")
	}

	handle := newServerHandle(cmd, group, target, port, runId)
	handle.OutputPath = outputPath

	go handle.wait(func() {
		if outputFile != nil {
			outputFile.Close()
		}
	})

	log.Info().
		Int("pid", handle.Pid()).
		Int("port", port).
		Str("dir", target.Dir).
		Str("command", target.String()).
		Msg("Started backend server")

	return handle, nil
}

func spawnError(target Target, err error) *LaunchError {
	launchErr := &LaunchError{
		Kind:    KindSpawn,
		Message: fmt.Sprintf("failed to start %q in %s", target.String(), target.Dir),
		Err:     err,
	}

	switch {
	case target.Mode == ModeDevelopment && errors.Is(err, exec.ErrNotFound):
		launchErr.Hint = fmt.Sprintf("%s must be installed and on PATH", target.Command)
	case target.Mode == ModeDevelopment:
		launchErr.Hint = fmt.Sprintf("check that %s exists and %s is on PATH", target.Dir, target.Command)
	case errors.Is(err, os.ErrNotExist):
		launchErr.Hint = fmt.Sprintf("the server binary should be installed next to deckhost as %s", filepath.Base(target.Command))
	default:
		launchErr.Hint = "check that the server binary is executable"
	}
	return launchErr
}
