package supervisor

import (
	"deckhost/launch"
	"time"
)

// MetricsCollector receives supervisor lifecycle events.
type MetricsCollector interface {
	// ServerStarted records a successful spawn.
	ServerStarted(mode launch.Mode)

	// ServerStartFailed records a launch error by kind.
	ServerStartFailed(kind launch.ErrorKind)

	// ServerStopped records a requested stop and how long termination took.
	ServerStopped(duration time.Duration, err error)

	// ServerExited records an exit nobody asked for.
	ServerExited(exitCode *int, signal string)

	ServerRestarted()
}

type noopMetricsCollector struct{}

func (n *noopMetricsCollector) ServerStarted(mode launch.Mode)                  {}
func (n *noopMetricsCollector) ServerStartFailed(kind launch.ErrorKind)         {}
func (n *noopMetricsCollector) ServerStopped(duration time.Duration, err error) {}
func (n *noopMetricsCollector) ServerExited(exitCode *int, signal string)       {}
func (n *noopMetricsCollector) ServerRestarted()                                {}

func NewNoopMetricsCollector() MetricsCollector {
	return &noopMetricsCollector{}
}
