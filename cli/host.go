package main

import (
	"context"
	"deckhost/api"
	"deckhost/common"
	"deckhost/launch"
	"deckhost/lifecycle"
	"deckhost/logger"
	"deckhost/supervisor"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// host is the headless deckhost: a supervisor, its coordinator and the
// control API in front of them.
type host struct {
	supervisor   *supervisor.Supervisor
	coordinator  *lifecycle.Coordinator
	server       *http.Server
	addr         string
	stopWatching context.CancelFunc
	log          zerolog.Logger
}

// startHost brings the host up. When configPath is set, edits to that file
// are applied while running.
func startHost(ctx context.Context, config common.HostConfig, configPath string, autoStart bool) (*host, error) {
	log := logger.Component("host")

	outputDir, err := common.GetRunOutputDir()
	if err != nil {
		log.Warn().Err(err).Msg("Server output will not be saved to disk")
		outputDir = ""
	}

	launcher := launch.NewLauncher(
		launch.ConfigFromHost(config, outputDir),
		launch.WithLogger(logger.Component("launcher")),
	)
	metrics := supervisor.NewPrometheusMetricsCollector("deckhost")
	sup := supervisor.New(launcher,
		supervisor.WithModeDetector(launcher.DetectMode),
		supervisor.WithStopTimeout(config.StopTimeout()),
		supervisor.WithLogBufferLines(config.LogBufferLines),
		supervisor.WithMetricsCollector(metrics),
		supervisor.WithLogger(logger.Component("supervisor")),
	)
	coordinator := lifecycle.NewCoordinator(sup,
		lifecycle.WithPort(config.ServerPort),
		lifecycle.WithAutoStartDelay(config.AutoStartDelay()),
		lifecycle.WithLogger(logger.Component("lifecycle")),
	)

	allowedOrigins, err := api.GetAllowedOrigins(config.AllowedOrigins, config.ControlPort, config.ServerPort)
	if err != nil {
		return nil, fmt.Errorf("invalid allowed origins: %w", err)
	}

	gin.SetMode(gin.ReleaseMode)
	ctrl := api.NewController(sup, coordinator.Port, metrics.Handler(), logger.Component("api"))
	addr := fmt.Sprintf("%s:%d", common.GetControlHost(), config.ControlPort)
	server, err := api.RunServer(addr, api.DefineRoutes(ctrl, allowedOrigins), log)
	if err != nil {
		return nil, err
	}
	log.Info().Str("addr", addr).Msg("Control API listening")

	watchCtx, stopWatching := context.WithCancel(ctx)
	if configPath != "" {
		reloader := lifecycle.NewConfigReloader(config, launcher, coordinator, outputDir, logger.Component("reload"))
		watcher := lifecycle.NewConfigWatcher(configPath, lifecycle.WithWatcherLogger(logger.Component("reload")))
		err := watcher.Start(watchCtx, func(next common.HostConfig) {
			reloader.Apply(watchCtx, next)
		})
		if err != nil {
			log.Warn().Err(err).Msg("Config changes will not be applied until deckhost restarts")
		}
	}

	if autoStart {
		coordinator.ScheduleAutoStart(ctx)
	}

	return &host{
		supervisor:   sup,
		coordinator:  coordinator,
		server:       server,
		addr:         addr,
		stopWatching: stopWatching,
		log:          log,
	}, nil
}

// shutdown stops the backend server before closing the control API.
func (h *host) shutdown(ctx context.Context) error {
	h.stopWatching()
	_, stopErr := h.coordinator.Shutdown(ctx)
	if err := h.supervisor.Close(ctx); err != nil && stopErr == nil {
		stopErr = err
	}
	if err := h.server.Shutdown(ctx); err != nil {
		h.log.Error().Err(err).Msg("Control API shutdown failed")
	}
	return stopErr
}
