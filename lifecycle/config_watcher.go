package lifecycle

import (
	"context"
	"deckhost/common"
	"fmt"
	"path/filepath"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

const defaultReloadDebounce = 250 * time.Millisecond

// ConfigWatcher reloads the host config file whenever it changes on disk.
// Editors often write a file in several steps or replace it by rename, so
// the directory is watched and a burst of events yields one reload.
type ConfigWatcher struct {
	path     string
	load     func(path string) (common.HostConfig, error)
	clock    clock.Clock
	debounce time.Duration
	logger   zerolog.Logger
}

type WatcherOption func(*ConfigWatcher)

func WithWatcherClock(clk clock.Clock) WatcherOption {
	return func(w *ConfigWatcher) {
		w.clock = clk
	}
}

// WithDebounce sets how long the file must stay quiet before it is reloaded.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *ConfigWatcher) {
		w.debounce = d
	}
}

func WithWatcherLogger(logger zerolog.Logger) WatcherOption {
	return func(w *ConfigWatcher) {
		w.logger = logger
	}
}

func NewConfigWatcher(path string, opts ...WatcherOption) *ConfigWatcher {
	w := &ConfigWatcher{
		path:     filepath.Clean(path),
		load:     common.LoadHostConfig,
		clock:    clock.New(),
		debounce: defaultReloadDebounce,
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start begins watching and returns once the watch is in place. onChange
// receives every config that loads and validates; a broken edit is logged
// and skipped, leaving the previous config in force. Watching stops when ctx
// is done.
func (w *ConfigWatcher) Start(ctx context.Context, onChange func(common.HostConfig)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create config watcher: %w", err)
	}

	dir := filepath.Dir(w.path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	w.logger.Info().Str("path", w.path).Msg("Watching config file for changes")
	go w.run(ctx, watcher, onChange)
	return nil
}

func (w *ConfigWatcher) run(ctx context.Context, watcher *fsnotify.Watcher, onChange func(common.HostConfig)) {
	defer watcher.Close()

	settled := make(chan struct{}, 1)
	var timer *clock.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path || event.Op == fsnotify.Chmod {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = w.clock.AfterFunc(w.debounce, func() {
				select {
				case settled <- struct{}{}:
				default:
				}
			})

		case <-settled:
			config, err := w.load(w.path)
			if err != nil {
				w.logger.Error().Err(err).Str("path", w.path).Msg("Ignoring config change")
				continue
			}
			w.logger.Info().Str("path", w.path).Msg("Config file changed")
			onChange(config)

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn().Err(err).Msg("Config watcher error")
		}
	}
}
