package supervisor

import (
	"deckhost/launch"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusMetricsCollector(t *testing.T) {
	t.Parallel()
	pmc := NewPrometheusMetricsCollector("test")

	pmc.ServerStarted(launch.ModeDevelopment)
	pmc.ServerStarted(launch.ModeProduction)
	pmc.ServerStartFailed(launch.KindSpawn)
	pmc.ServerStartFailed("")
	pmc.ServerStopped(150*time.Millisecond, nil)
	pmc.ServerStopped(time.Second, errors.New("stuck"))
	code := 2
	pmc.ServerExited(&code, "")
	pmc.ServerExited(nil, "killed")
	pmc.ServerRestarted()

	assert.Equal(t, float64(1), testutil.ToFloat64(pmc.starts.WithLabelValues("development")))
	assert.Equal(t, float64(1), testutil.ToFloat64(pmc.startErrors.WithLabelValues("spawn")))
	assert.Equal(t, float64(1), testutil.ToFloat64(pmc.startErrors.WithLabelValues("unknown")))
	assert.Equal(t, float64(1), testutil.ToFloat64(pmc.stops.WithLabelValues("error")))
	assert.Equal(t, float64(1), testutil.ToFloat64(pmc.exits.WithLabelValues("2")))
	assert.Equal(t, float64(1), testutil.ToFloat64(pmc.exits.WithLabelValues("killed")))
	assert.Equal(t, float64(1), testutil.ToFloat64(pmc.restarts))
	assert.Equal(t, float64(0), testutil.ToFloat64(pmc.running))

	count, err := testutil.GatherAndCount(pmc.Registry(), "test_server_stop_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestPrometheusMetricsCollector_Handler(t *testing.T) {
	t.Parallel()
	pmc := NewPrometheusMetricsCollector("")
	pmc.ServerStarted(launch.ModeProduction)

	rec := httptest.NewRecorder()
	pmc.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), `deckhost_server_starts_total{mode="production"} 1`))
	assert.True(t, strings.Contains(string(body), "deckhost_server_running 1"))
}
