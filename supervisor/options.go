package supervisor

import (
	"context"
	"deckhost/launch"
	"time"

	"github.com/rs/zerolog"
)

type Option func(*Supervisor)

// WithStopTimeout sets how long Stop waits for a graceful exit before
// killing the process group.
func WithStopTimeout(d time.Duration) Option {
	return func(s *Supervisor) {
		s.stopTimeout = d
	}
}

// WithModeDetector replaces environment-based mode detection. It is called on
// every Start.
func WithModeDetector(detect func() launch.Mode) Option {
	return func(s *Supervisor) {
		s.detectMode = detect
	}
}

func WithMetricsCollector(mc MetricsCollector) Option {
	return func(s *Supervisor) {
		s.metrics = mc
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Supervisor) {
		s.logger = logger
	}
}

// WithPortKiller replaces the lookup-and-kill used by KillPortOwner.
func WithPortKiller(kill func(ctx context.Context, port int) ([]int, error)) Option {
	return func(s *Supervisor) {
		s.killPort = kill
	}
}

// WithLogBufferLines bounds how many lines of server output Logs returns.
func WithLogBufferLines(n int) Option {
	return func(s *Supervisor) {
		s.logs = NewLogBuffer(n)
	}
}
