package supervisor

import (
	"context"
	"deckhost/common"
	"deckhost/launch"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	defaultStopTimeout    = 10 * time.Second
	defaultLogBufferLines = 2000
)

var (
	// ErrTermination wraps failures to stop the server process. The
	// supervisor has already forgotten the process when it is returned.
	ErrTermination = errors.New("failed to terminate server")

	ErrClosed = errors.New("supervisor is closed")

	// ErrPortOwnedByServer is returned by KillPortOwner for the port the
	// supervised server is running on; Stop is the way to free it.
	ErrPortOwnedByServer = errors.New("port belongs to the running server")
)

// ServerLauncher spawns backend processes. *launch.Launcher implements it.
type ServerLauncher interface {
	Launch(ctx context.Context, mode launch.Mode, port int, output io.Writer) (*launch.ServerHandle, error)
}

// Supervisor owns at most one backend server process. All operations are
// safe for concurrent use; none holds the lock while waiting for a process
// to exit.
type Supervisor struct {
	mu sync.Mutex

	// handle is nil unless a server is running.
	handle *launch.ServerHandle
	// idle is reported while handle is nil: stopped, or the last error.
	idle Status
	// stopping is closed when an in-flight Stop has finished terminating.
	stopping chan struct{}
	closed   bool

	launcher    ServerLauncher
	detectMode  func() launch.Mode
	stopTimeout time.Duration
	logs        *LogBuffer
	events      *broadcaster
	killPort    func(ctx context.Context, port int) ([]int, error)
	metrics     MetricsCollector
	logger      zerolog.Logger
}

func New(launcher ServerLauncher, opts ...Option) *Supervisor {
	s := &Supervisor{
		idle:     stoppedStatus(),
		launcher: launcher,
		detectMode: func() launch.Mode {
			return launch.DetectMode(launch.CurrentEnvironment(common.DefaultHostConfig().DevEnvVars, common.ExecutableExt()))
		},
		stopTimeout: defaultStopTimeout,
		events:      newBroadcaster(),
		killPort:    launch.KillPortOwner,
		metrics:     NewNoopMetricsCollector(),
		logger:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logs == nil {
		s.logs = NewLogBuffer(defaultLogBufferLines)
	}
	if s.stopTimeout <= 0 {
		s.stopTimeout = defaultStopTimeout
	}
	s.logs.OnLine(func(line string) {
		s.events.publish(logEvent(line))
	})
	return s
}

// Subscribe streams status changes and server output lines until cancel is
// called or the supervisor is closed, either of which closes the channel.
// Events beyond buffer that the subscriber has not received are dropped.
func (s *Supervisor) Subscribe(buffer int) (<-chan Event, func()) {
	return s.events.subscribe(buffer)
}

// setIdle must be called with mu held.
func (s *Supervisor) setIdle(status Status) {
	s.idle = status
	s.events.publish(statusEvent(status))
}

// Start launches the server on port unless one is already running, in which
// case the running server's status is returned unchanged. A failed launch
// leaves no server and returns an error status along with the launch error.
func (s *Supervisor) Start(ctx context.Context, port int) (Status, error) {
	s.mu.Lock()
	for {
		if s.closed {
			s.mu.Unlock()
			return s.Status(), ErrClosed
		}
		if s.handle != nil {
			status := runningStatus(s.handle)
			s.mu.Unlock()
			return status, nil
		}
		if s.stopping == nil {
			break
		}

		// wait for the previous process to exit so two never overlap
		stopping := s.stopping
		s.mu.Unlock()
		select {
		case <-stopping:
		case <-ctx.Done():
			return s.Status(), ctx.Err()
		}
		s.mu.Lock()
	}
	defer s.mu.Unlock()

	mode := s.detectMode()
	s.logs.Reset()

	handle, err := s.launcher.Launch(ctx, mode, port, s.logs)
	if err != nil {
		fmt.Fprintf(s.logs, "deckhost: %v\n", err)

		var launchErr *launch.LaunchError
		kind := launch.ErrorKind("")
		if errors.As(err, &launchErr) {
			kind = launchErr.Kind
		}
		s.metrics.ServerStartFailed(kind)
		s.logger.Error().Err(err).Str("mode", string(mode)).Int("port", port).Msg("Failed to start backend server")

		s.setIdle(errorStatus(err.Error()))
		return s.idle, err
	}

	s.handle = handle
	s.metrics.ServerStarted(mode)
	s.events.publish(statusEvent(runningStatus(handle)))
	go s.watch(handle)

	return runningStatus(handle), nil
}

// watch turns an exit nobody requested into an error status and kills
// whatever the server left running in its process group.
func (s *Supervisor) watch(h *launch.ServerHandle) {
	<-h.Done()

	s.mu.Lock()
	if s.handle != h {
		s.mu.Unlock()
		return
	}
	s.handle = nil
	s.setIdle(errorStatus("server exited unexpectedly: " + h.ExitDescription()))
	s.mu.Unlock()

	s.metrics.ServerExited(h.ExitCode(), h.Signal())
	log := s.logger.With().Str("runId", h.RunId).Int("pid", h.Pid()).Logger()
	log.Warn().Str("exit", h.ExitDescription()).Msg("Backend server exited unexpectedly")

	if err := h.ReapGroup(); err != nil {
		log.Error().Err(err).Msg("Failed to kill leftover server processes")
	}
}

// Stop terminates the running server, escalating to a kill after the stop
// timeout. Stopping when nothing runs succeeds and reports stopped.
func (s *Supervisor) Stop(ctx context.Context) (Status, error) {
	status, _, err := s.stop(ctx)
	return status, err
}

// stop reports whether this call terminated a process, as opposed to finding
// nothing running or waiting on another Stop.
func (s *Supervisor) stop(ctx context.Context) (Status, bool, error) {
	s.mu.Lock()
	if s.handle == nil {
		stopping := s.stopping
		if stopping == nil {
			if s.idle.State != StateStopped {
				s.setIdle(stoppedStatus())
			}
			s.mu.Unlock()
			return s.idle, false, nil
		}
		s.mu.Unlock()

		select {
		case <-stopping:
			return s.Status(), false, nil
		case <-ctx.Done():
			return s.Status(), false, ctx.Err()
		}
	}

	h := s.handle
	s.handle = nil
	s.idle = stoppedStatus()
	stopping := make(chan struct{})
	s.stopping = stopping
	s.mu.Unlock()

	started := time.Now()
	err := h.Terminate(s.stopTimeout)
	elapsed := time.Since(started)

	s.mu.Lock()
	s.stopping = nil
	close(stopping)
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrTermination, err)
		s.setIdle(errorStatus(err.Error()))
	} else {
		s.events.publish(statusEvent(s.idle))
	}
	status := s.idle
	s.mu.Unlock()

	s.metrics.ServerStopped(elapsed, err)
	log := s.logger.With().Str("runId", h.RunId).Int("pid", h.Pid()).Dur("elapsed", elapsed).Logger()
	if err != nil {
		log.Error().Err(err).Msg("Failed to stop backend server")
		return status, true, err
	}
	log.Info().Str("exit", h.ExitDescription()).Msg("Stopped backend server")
	return status, true, nil
}

// Restart stops any running server and starts a fresh one on port. It only
// counts as a restart when a running server was actually stopped.
func (s *Supervisor) Restart(ctx context.Context, port int) (Status, error) {
	status, stopped, err := s.stop(ctx)
	if err != nil {
		return status, err
	}
	if stopped {
		s.metrics.ServerRestarted()
	}
	return s.Start(ctx, port)
}

// KillPortOwner kills whatever process outside deckhost's control is
// listening on port, and returns the killed pids.
func (s *Supervisor) KillPortOwner(ctx context.Context, port int) ([]int, error) {
	s.mu.Lock()
	owned := s.handle != nil && s.handle.Port == port
	s.mu.Unlock()
	if owned {
		return nil, fmt.Errorf("%w: %d", ErrPortOwnedByServer, port)
	}

	pids, err := s.killPort(ctx, port)
	if err != nil {
		s.logger.Error().Err(err).Int("port", port).Msg("Failed to kill port owner")
		return pids, err
	}
	s.logger.Info().Int("port", port).Ints("pids", pids).Msg("Killed port owner")
	return pids, nil
}

// Status never touches the process; it reports what the supervisor knows.
func (s *Supervisor) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.handle != nil {
		return runningStatus(s.handle)
	}
	return s.idle
}

// Logs returns the captured output of the current or most recent run.
func (s *Supervisor) Logs() string {
	return s.logs.String()
}

func (s *Supervisor) ClearLogs() {
	s.logs.Reset()
}

// URL is the browser address of the running server, or "" when stopped.
func (s *Supervisor) URL() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.handle == nil {
		return ""
	}
	return common.GetServerURL(s.handle.Port)
}

// Close stops the server and rejects later starts.
func (s *Supervisor) Close(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	_, err := s.Stop(ctx)
	s.events.close()
	return err
}
