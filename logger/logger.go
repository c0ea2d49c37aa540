package logger

import (
	"deckhost/common"
	"io"
	"os"
	"path/filepath"
	"runtime/debug"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/pkgerrors"
)

var once sync.Once

var log zerolog.Logger

// GetLogLevel reads DECKHOST_LOG_LEVEL, accepting either a zerolog level name
// ("debug", "warn") or its numeric value. Defaults to info.
func GetLogLevel() zerolog.Level {
	value := strings.TrimSpace(os.Getenv("DECKHOST_LOG_LEVEL"))
	if value == "" {
		return zerolog.InfoLevel
	}
	if n, err := strconv.Atoi(value); err == nil {
		return zerolog.Level(n)
	}
	level, err := zerolog.ParseLevel(strings.ToLower(value))
	if err != nil {
		return zerolog.InfoLevel
	}
	return level
}

// Get returns the process-wide host logger. Console output goes to stderr so
// commands that print JSON on stdout stay machine readable; a copy is kept in
// daily files under the state home.
func Get() zerolog.Logger {
	once.Do(func() {
		zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack
		zerolog.TimeFieldFormat = time.RFC3339Nano

		consoleWriter := zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.RFC3339,
		}

		var output io.Writer = consoleWriter

		stateHome, err := common.GetStateHome()
		if err == nil {
			fileWriter, err := newDailyRotatingLogWriter(filepath.Join(stateHome, logDirName))
			if err == nil {
				output = zerolog.MultiLevelWriter(consoleWriter, fileWriter)
			}
		}

		var gitRevision, goVersion string
		buildInfo, ok := debug.ReadBuildInfo()
		if ok {
			goVersion = buildInfo.GoVersion
			for _, v := range buildInfo.Settings {
				if v.Key == "vcs.revision" {
					gitRevision = v.Value
					break
				}
			}
		}

		log = zerolog.New(output).
			Level(GetLogLevel()).
			With().
			Timestamp().
			Int("pid", os.Getpid()).
			Str("git_revision", gitRevision).
			Str("go_version", goVersion).
			Logger()
	})

	return log
}

// Component returns the host logger tagged with a component name.
func Component(name string) zerolog.Logger {
	l := Get()
	return l.With().Str("component", name).Logger()
}

const (
	logDirName      = "logs"
	logFilePrefix   = "deckhost-"
	logFileSuffix   = ".log"
	maxLogFileCount = 7
)

type dailyRotatingLogWriter struct {
	mu          sync.Mutex
	dir         string
	currentDate string
	file        *os.File
	now         func() time.Time
}

func newDailyRotatingLogWriter(dir string) (*dailyRotatingLogWriter, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	w := &dailyRotatingLogWriter{
		dir: dir,
		now: time.Now,
	}
	if err := w.rotateIfNeeded(); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *dailyRotatingLogWriter) Write(p []byte) (n int, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.rotateIfNeeded(); err != nil {
		return 0, err
	}
	return w.file.Write(p)
}

func (w *dailyRotatingLogWriter) rotateIfNeeded() error {
	today := w.now().Format("2006-01-02")
	if w.currentDate == today && w.file != nil {
		return nil
	}

	if w.file != nil {
		w.file.Close()
		w.file = nil
	}

	file, err := os.OpenFile(
		filepath.Join(w.dir, logFilePrefix+today+logFileSuffix),
		os.O_APPEND|os.O_CREATE|os.O_WRONLY,
		0644,
	)
	if err != nil {
		return err
	}

	w.file = file
	w.currentDate = today

	cleanupOldLogFiles(w.dir)

	return nil
}

func (w *dailyRotatingLogWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}

var _ io.WriteCloser = (*dailyRotatingLogWriter)(nil)

// cleanupOldLogFiles keeps the newest maxLogFileCount host log files. Dates
// in the names sort lexically.
func cleanupOldLogFiles(dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}

	var logFiles []string
	for _, entry := range entries {
		name := entry.Name()
		if !entry.IsDir() && strings.HasPrefix(name, logFilePrefix) && strings.HasSuffix(name, logFileSuffix) {
			logFiles = append(logFiles, name)
		}
	}

	if len(logFiles) <= maxLogFileCount {
		return
	}

	sort.Strings(logFiles)
	for _, name := range logFiles[:len(logFiles)-maxLogFileCount] {
		os.Remove(filepath.Join(dir, name))
	}
}
