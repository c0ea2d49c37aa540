package lifecycle

import (
	"context"
	"deckhost/common"
	"deckhost/launch"
	"reflect"
	"sync"

	"github.com/rs/zerolog"
)

// Reconfigurable is a launcher whose settings can change between launches.
// *launch.Launcher implements it.
type Reconfigurable interface {
	Reconfigure(config launch.Config)
}

// ConfigReloader applies an edited config to a live host. Launch settings
// and the server port are switched over at once, restarting the server
// through the coordinator; everything else needs deckhost itself restarted.
type ConfigReloader struct {
	launcher    Reconfigurable
	coordinator *Coordinator
	outputDir   string
	logger      zerolog.Logger

	mu      sync.Mutex
	current common.HostConfig
}

func NewConfigReloader(initial common.HostConfig, launcher Reconfigurable, coordinator *Coordinator, outputDir string, logger zerolog.Logger) *ConfigReloader {
	return &ConfigReloader{
		launcher:    launcher,
		coordinator: coordinator,
		outputDir:   outputDir,
		logger:      logger,
		current:     initial,
	}
}

func (r *ConfigReloader) Current() common.HostConfig {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// Apply switches to next. It returns the coordinator's restart task, or nil
// when nothing that affects launching changed.
func (r *ConfigReloader) Apply(ctx context.Context, next common.HostConfig) *Task {
	r.mu.Lock()
	prev := r.current
	r.current = next
	r.mu.Unlock()

	if keys := needsHostRestart(prev, next); len(keys) > 0 {
		r.logger.Warn().Strs("keys", keys).Msg("These config changes take effect after deckhost restarts")
	}

	if prev.ServerPort == next.ServerPort &&
		reflect.DeepEqual(launch.ConfigFromHost(prev, r.outputDir), launch.ConfigFromHost(next, r.outputDir)) {
		r.logger.Debug().Msg("Config reloaded, launch settings unchanged")
		return nil
	}

	r.launcher.Reconfigure(launch.ConfigFromHost(next, r.outputDir))
	r.logger.Info().Int("serverPort", next.ServerPort).Msg("Applied new launch settings")
	return r.coordinator.ApplyConfigChange(ctx, next.ServerPort)
}

func needsHostRestart(prev, next common.HostConfig) []string {
	var keys []string
	if prev.ControlPort != next.ControlPort {
		keys = append(keys, "control_port")
	}
	if !reflect.DeepEqual(prev.AllowedOrigins, next.AllowedOrigins) {
		keys = append(keys, "allowed_origins")
	}
	if prev.StopTimeoutSeconds != next.StopTimeoutSeconds {
		keys = append(keys, "stop_timeout_seconds")
	}
	if prev.LogBufferLines != next.LogBufferLines {
		keys = append(keys, "log_buffer_lines")
	}
	return keys
}
