package desktop

import (
	"context"
	"deckhost/common"
	"deckhost/lifecycle"
	"deckhost/supervisor"
	"io/fs"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"
	"github.com/wailsapp/wails/v2/pkg/runtime"
)

const shutdownTimeout = 15 * time.Second

// Events pushed to the frontend.
const (
	statusEventName = "server-status"
	logEventName    = "server-log"
)

// App is bound into the desktop window. Its exported methods are what the
// frontend calls; all of them report supervisor state and never fail.
// Status changes and server output are also pushed as events.
type App struct {
	ctx         context.Context
	config      common.HostConfig
	supervisor  *supervisor.Supervisor
	coordinator *lifecycle.Coordinator
	openURL     func(ctx context.Context, url string) error
	emit        func(ctx context.Context, name string, data ...interface{})
	reload      *configReload
	logger      zerolog.Logger
}

type configReload struct {
	path     string
	reloader *lifecycle.ConfigReloader
}

type Option func(*appOptions)

type appOptions struct {
	window   lifecycle.Window
	clock    clock.Clock
	openURL  func(ctx context.Context, url string) error
	emit     func(ctx context.Context, name string, data ...interface{})
	launcher lifecycle.Reconfigurable
	path     string
	runsDir  string
	logger   zerolog.Logger
}

// WithWindow replaces the Wails window, for running without a real one.
func WithWindow(w lifecycle.Window) Option {
	return func(o *appOptions) { o.window = w }
}

func WithClock(clk clock.Clock) Option {
	return func(o *appOptions) { o.clock = clk }
}

func WithURLOpener(open func(ctx context.Context, url string) error) Option {
	return func(o *appOptions) { o.openURL = open }
}

// WithEventEmitter replaces the Wails event bus.
func WithEventEmitter(emit func(ctx context.Context, name string, data ...interface{})) Option {
	return func(o *appOptions) { o.emit = emit }
}

// WithConfigReload applies edits to the config file at path while the app
// runs, reconfiguring launcher and restarting the server.
func WithConfigReload(path string, launcher lifecycle.Reconfigurable, outputDir string) Option {
	return func(o *appOptions) {
		o.path = path
		o.launcher = launcher
		o.runsDir = outputDir
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(o *appOptions) { o.logger = logger }
}

func NewApp(config common.HostConfig, sup *supervisor.Supervisor, opts ...Option) *App {
	o := appOptions{
		window:  wailsWindow{},
		clock:   clock.New(),
		openURL: openInBrowser,
		emit:    runtime.EventsEmit,
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	app := &App{
		ctx:        context.Background(),
		config:     config,
		supervisor: sup,
		coordinator: lifecycle.NewCoordinator(sup,
			lifecycle.WithWindow(o.window),
			lifecycle.WithClock(o.clock),
			lifecycle.WithPort(config.ServerPort),
			lifecycle.WithAutoStartDelay(config.AutoStartDelay()),
			lifecycle.WithLogger(o.logger),
		),
		openURL: o.openURL,
		emit:    o.emit,
		logger:  o.logger,
	}
	if o.path != "" && o.launcher != nil {
		app.reload = &configReload{
			path:     o.path,
			reloader: lifecycle.NewConfigReloader(config, o.launcher, app.coordinator, o.runsDir, o.logger),
		}
	}
	return app
}

// Run opens the window and blocks until the application quits.
func (a *App) Run(title string, assets fs.FS) error {
	return wails.Run(&options.App{
		Title:     title,
		Width:     1024,
		Height:    720,
		MinWidth:  480,
		MinHeight: 360,
		AssetServer: &assetserver.Options{
			Assets: assets,
		},
		OnStartup:     a.startup,
		OnBeforeClose: a.beforeClose,
		OnShutdown:    a.shutdown,
		SingleInstanceLock: &options.SingleInstanceLock{
			UniqueId:               "deckhost-desktop",
			OnSecondInstanceLaunch: a.secondInstanceLaunch,
		},
		Bind: []interface{}{a},
	})
}

func (a *App) startup(ctx context.Context) {
	a.ctx = ctx

	events, _ := a.supervisor.Subscribe(0)
	go a.forwardEvents(ctx, events)

	if a.reload != nil {
		watcher := lifecycle.NewConfigWatcher(a.reload.path, lifecycle.WithWatcherLogger(a.logger))
		err := watcher.Start(ctx, func(next common.HostConfig) {
			a.reload.reloader.Apply(ctx, next)
		})
		if err != nil {
			a.logger.Warn().Err(err).Msg("Config changes will not be applied until the app restarts")
		}
	}

	if a.config.AutoStart {
		a.coordinator.ScheduleAutoStart(ctx)
	}
}

// forwardEvents pushes supervisor events to the frontend until the
// supervisor is closed.
func (a *App) forwardEvents(ctx context.Context, events <-chan supervisor.Event) {
	for event := range events {
		switch event.Type {
		case supervisor.EventStatus:
			a.emit(ctx, statusEventName, *event.Status)
		case supervisor.EventLog:
			a.emit(ctx, logEventName, event.Line)
		}
	}
}

func (a *App) beforeClose(ctx context.Context) bool {
	return a.coordinator.HandleCloseRequest(ctx)
}

// secondInstanceLaunch re-shows the window a close request hid.
func (a *App) secondInstanceLaunch(data options.SecondInstanceData) {
	a.coordinator.ShowWindow(a.ctx)
}

func (a *App) shutdown(ctx context.Context) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	if _, err := a.coordinator.Shutdown(ctx); err != nil {
		a.logger.Error().Err(err).Msg("Error stopping backend server during shutdown")
	}
	if err := a.supervisor.Close(ctx); err != nil {
		a.logger.Error().Err(err).Msg("Error closing supervisor")
	}
}

// StartServer starts the backend on the configured port. Errors surface as
// an error status.
func (a *App) StartServer() supervisor.Status {
	status, _ := a.supervisor.Start(a.ctx, a.coordinator.Port())
	return status
}

func (a *App) StopServer() supervisor.Status {
	status, _ := a.supervisor.Stop(a.ctx)
	return status
}

func (a *App) RestartServer() supervisor.Status {
	status, _ := a.supervisor.Restart(a.ctx, a.coordinator.Port())
	return status
}

func (a *App) GetServerStatus() supervisor.Status {
	return a.supervisor.Status()
}

func (a *App) GetServerLogs() string {
	return a.supervisor.Logs()
}

func (a *App) ClearServerLogs() {
	a.supervisor.ClearLogs()
}

// OpenServerUI opens the running server in the default browser. Nothing is
// opened while the server is not running.
func (a *App) OpenServerUI() supervisor.Status {
	url := a.supervisor.URL()
	if url == "" {
		return a.supervisor.Status()
	}
	if err := a.openURL(a.ctx, url); err != nil {
		a.logger.Warn().Err(err).Str("url", url).Msg("Failed to open server UI")
	}
	return a.supervisor.Status()
}

// PortKillResult reports a KillPortOwner call. Error is empty on success.
type PortKillResult struct {
	Port  int    `json:"port"`
	Pids  []int  `json:"pids"`
	Error string `json:"error,omitempty"`
}

// KillPortOwner kills whatever stale process holds the server port.
func (a *App) KillPortOwner() PortKillResult {
	port := a.coordinator.Port()
	pids, err := a.supervisor.KillPortOwner(a.ctx, port)
	result := PortKillResult{Port: port, Pids: pids}
	if result.Pids == nil {
		result.Pids = []int{}
	}
	if err != nil {
		result.Error = err.Error()
	}
	return result
}
