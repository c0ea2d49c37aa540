package lifecycle

import (
	"context"
	"deckhost/common"
	"deckhost/supervisor"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
)

const (
	defaultAutoStartDelay = 500 * time.Millisecond
	defaultRestartDelay   = 500 * time.Millisecond
)

// ServerController is the part of the supervisor the coordinator drives.
type ServerController interface {
	Start(ctx context.Context, port int) (supervisor.Status, error)
	Stop(ctx context.Context) (supervisor.Status, error)
	Status() supervisor.Status
}

// Coordinator ties window and application events to the supervisor: start
// the server shortly after launch, hide instead of close, stop on exit.
type Coordinator struct {
	server       ServerController
	window       Window
	clock        clock.Clock
	delay        time.Duration
	restartDelay time.Duration
	logger       zerolog.Logger

	mu      sync.Mutex
	port    int
	pending *Task
}

type Option func(*Coordinator)

func WithWindow(w Window) Option {
	return func(c *Coordinator) {
		c.window = w
	}
}

func WithClock(clk clock.Clock) Option {
	return func(c *Coordinator) {
		c.clock = clk
	}
}

func WithPort(port int) Option {
	return func(c *Coordinator) {
		c.port = port
	}
}

func WithAutoStartDelay(d time.Duration) Option {
	return func(c *Coordinator) {
		c.delay = d
	}
}

// WithRestartDelay sets the pause between stopping and starting the server
// when the config changes.
func WithRestartDelay(d time.Duration) Option {
	return func(c *Coordinator) {
		c.restartDelay = d
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

func NewCoordinator(server ServerController, opts ...Option) *Coordinator {
	c := &Coordinator{
		server: server,
		window: noopWindow{},
		clock:  clock.New(),
		port:         common.GetServerPort(),
		delay:        defaultAutoStartDelay,
		restartDelay: defaultRestartDelay,
		logger:       zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Port is the port the next start will request.
func (c *Coordinator) Port() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.port
}

// ScheduleAutoStart starts the server once after the auto-start delay unless
// one is already running by then. A failed start is logged and reported on
// the task, never returned. Scheduling again replaces a pending task.
func (c *Coordinator) ScheduleAutoStart(ctx context.Context) *Task {
	return c.scheduleStart(ctx, c.delay, "auto-start")
}

// ApplyConfigChange makes port the port for later starts. A server that is
// running, or that failed, is stopped and started again after the restart
// delay so it picks up the new settings; the returned task reports that
// start. A server the user stopped stays stopped and the task finishes at
// once.
func (c *Coordinator) ApplyConfigChange(ctx context.Context, port int) *Task {
	c.mu.Lock()
	c.port = port
	c.mu.Unlock()

	status := c.server.Status()
	if status.State == supervisor.StateStopped {
		return finishedTask(status, nil)
	}

	if status, err := c.server.Stop(ctx); err != nil {
		c.logger.Error().Err(err).Msg("Failed to stop backend server for config change")
		return finishedTask(status, err)
	}
	c.logger.Info().Int("port", port).Dur("delay", c.restartDelay).Msg("Restarting backend server for config change")
	return c.scheduleStart(ctx, c.restartDelay, "config restart")
}

func (c *Coordinator) scheduleStart(ctx context.Context, delay time.Duration, reason string) *Task {
	ctx, cancel := context.WithCancel(ctx)
	task := newTask(cancel)
	timer := c.clock.Timer(delay)
	log := c.logger.With().Str("reason", reason).Logger()

	c.mu.Lock()
	if c.pending != nil {
		c.pending.Cancel()
	}
	c.pending = task
	c.mu.Unlock()

	go func() {
		defer c.clearPending(task)

		select {
		case <-ctx.Done():
			timer.Stop()
			task.finish(c.server.Status(), false, ctx.Err())
			return
		case <-timer.C:
		}

		if status := c.server.Status(); status.Running() {
			log.Debug().Int("port", status.Port).Msg("Server already running, skipping scheduled start")
			task.finish(status, false, nil)
			return
		}

		port := c.Port()
		status, err := c.server.Start(ctx, port)
		if err != nil {
			log.Error().Err(err).Int("port", port).Msg("Scheduled start of backend server failed")
		} else {
			log.Info().Int("port", status.Port).Str("mode", string(status.Mode)).Msg("Started backend server")
		}
		task.finish(status, true, err)
	}()

	return task
}

func (c *Coordinator) clearPending(task *Task) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending == task {
		c.pending = nil
	}
}

// HandleCloseRequest hides the window and reports that the close should be
// prevented. The server keeps running.
func (c *Coordinator) HandleCloseRequest(ctx context.Context) bool {
	c.window.Hide(ctx)
	c.logger.Debug().Str("server", string(c.server.Status().State)).Msg("Window close requested, hiding instead")
	return true
}

// ShowWindow brings a hidden window back.
func (c *Coordinator) ShowWindow(ctx context.Context) {
	c.window.Show(ctx)
}

// Shutdown is the application exit hook: it cancels a pending auto-start,
// waits for it to settle, then stops the server.
func (c *Coordinator) Shutdown(ctx context.Context) (supervisor.Status, error) {
	c.mu.Lock()
	task := c.pending
	c.mu.Unlock()

	if task != nil {
		task.Cancel()
		select {
		case <-task.Done():
		case <-ctx.Done():
			return c.server.Status(), ctx.Err()
		}
	}

	status, err := c.server.Stop(ctx)
	if err != nil {
		c.logger.Error().Err(err).Msg("Failed to stop backend server on shutdown")
	}
	return status, err
}
