package lifecycle

import (
	"context"
	"deckhost/common"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type configRecorder struct {
	mu      sync.Mutex
	configs []common.HostConfig
}

func (r *configRecorder) record(config common.HostConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.configs = append(r.configs, config)
}

func (r *configRecorder) all() []common.HostConfig {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]common.HostConfig(nil), r.configs...)
}

func startTestWatcher(t *testing.T, path string) (*configRecorder, *clock.Mock) {
	t.Helper()
	t.Setenv("DECKHOST_SERVER_PORT", "")
	t.Setenv("DECKHOST_CONTROL_PORT", "")
	t.Setenv("DECKHOST_PACKAGE_MANAGER", "")
	t.Setenv("DECKHOST_NO_AUTOSTART", "")

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	mock := clock.NewMock()
	recorder := &configRecorder{}
	w := NewConfigWatcher(path, WithWatcherClock(mock), WithDebounce(100*time.Millisecond))
	require.NoError(t, w.Start(ctx, recorder.record))
	return recorder, mock
}

// settle keeps advancing the mock clock until the debounced reload lands,
// since the file event reaches the watcher at an unknown time.
func settle(t *testing.T, mock *clock.Mock, done func() bool) {
	t.Helper()
	require.Eventually(t, func() bool {
		mock.Add(100 * time.Millisecond)
		return done()
	}, 5*time.Second, 20*time.Millisecond)
}

func TestConfigWatcher_ReloadsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deckhost.yml")
	require.NoError(t, os.WriteFile(path, []byte("server_port: 9000\n"), 0644))
	recorder, mock := startTestWatcher(t, path)

	require.NoError(t, os.WriteFile(path, []byte("server_port: 9100\n"), 0644))
	settle(t, mock, func() bool { return len(recorder.all()) > 0 })

	configs := recorder.all()
	assert.Equal(t, 9100, configs[len(configs)-1].ServerPort)
}

func TestConfigWatcher_ReloadsOnReplace(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "deckhost.yml")
	require.NoError(t, os.WriteFile(path, []byte("server_port: 9000\n"), 0644))
	recorder, mock := startTestWatcher(t, path)

	tmp := filepath.Join(dir, ".deckhost.yml.swp")
	require.NoError(t, os.WriteFile(tmp, []byte("package_manager: pnpm\n"), 0644))
	require.NoError(t, os.Rename(tmp, path))
	settle(t, mock, func() bool { return len(recorder.all()) > 0 })

	configs := recorder.all()
	assert.Equal(t, "pnpm", configs[len(configs)-1].PackageManager)
}

func TestConfigWatcher_SkipsInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deckhost.yml")
	require.NoError(t, os.WriteFile(path, []byte("server_port: 9000\n"), 0644))
	recorder, mock := startTestWatcher(t, path)

	require.NoError(t, os.WriteFile(path, []byte("stop_timeout_seconds: 0\n"), 0644))
	for i := 0; i < 10; i++ {
		mock.Add(100 * time.Millisecond)
		time.Sleep(20 * time.Millisecond)
	}
	assert.Empty(t, recorder.all())

	require.NoError(t, os.WriteFile(path, []byte("stop_timeout_seconds: 5\n"), 0644))
	settle(t, mock, func() bool { return len(recorder.all()) > 0 })
	assert.Equal(t, 5, recorder.all()[0].StopTimeoutSeconds)
}

func TestConfigWatcher_IgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "deckhost.yml")
	require.NoError(t, os.WriteFile(path, []byte("server_port: 9000\n"), 0644))
	recorder, mock := startTestWatcher(t, path)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.yml"), []byte("x: 1\n"), 0644))
	for i := 0; i < 10; i++ {
		mock.Add(100 * time.Millisecond)
		time.Sleep(20 * time.Millisecond)
	}
	assert.Empty(t, recorder.all())
}

func TestConfigWatcher_MissingDirectory(t *testing.T) {
	w := NewConfigWatcher(filepath.Join(t.TempDir(), "absent", "deckhost.yml"))
	err := w.Start(context.Background(), func(common.HostConfig) {})
	assert.ErrorContains(t, err, "failed to watch")
}
