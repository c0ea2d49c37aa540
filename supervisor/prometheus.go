package supervisor

import (
	"deckhost/launch"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusMetricsCollector implements MetricsCollector on its own registry.
type PrometheusMetricsCollector struct {
	starts       *prometheus.CounterVec
	startErrors  *prometheus.CounterVec
	stops        *prometheus.CounterVec
	stopDuration prometheus.Histogram
	exits        *prometheus.CounterVec
	restarts     prometheus.Counter
	running      prometheus.Gauge

	registry *prometheus.Registry
}

func NewPrometheusMetricsCollector(namespace string) *PrometheusMetricsCollector {
	if namespace == "" {
		namespace = "deckhost"
	}

	pmc := &PrometheusMetricsCollector{
		registry: prometheus.NewRegistry(),
	}

	pmc.starts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "server_starts_total",
			Help:      "Total number of backend server processes spawned",
		},
		[]string{"mode"},
	)

	pmc.startErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "server_start_errors_total",
			Help:      "Total number of failed backend server launches",
		},
		[]string{"kind"},
	)

	pmc.stops = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "server_stops_total",
			Help:      "Total number of requested backend server stops",
		},
		[]string{"status"},
	)

	pmc.stopDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "server_stop_duration_seconds",
			Help:      "Time taken for the backend server to exit after a stop request",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 15},
		},
	)

	pmc.exits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "server_unexpected_exits_total",
			Help:      "Total number of backend server exits that were not requested",
		},
		[]string{"code"},
	)

	pmc.restarts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "server_restarts_total",
			Help:      "Total number of backend server restarts",
		},
	)

	pmc.running = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "server_running",
			Help:      "1 while a backend server process is supervised",
		},
	)

	pmc.registry.MustRegister(
		pmc.starts,
		pmc.startErrors,
		pmc.stops,
		pmc.stopDuration,
		pmc.exits,
		pmc.restarts,
		pmc.running,
	)

	return pmc
}

func (pmc *PrometheusMetricsCollector) ServerStarted(mode launch.Mode) {
	pmc.starts.WithLabelValues(string(mode)).Inc()
	pmc.running.Set(1)
}

func (pmc *PrometheusMetricsCollector) ServerStartFailed(kind launch.ErrorKind) {
	if kind == "" {
		kind = "unknown"
	}
	pmc.startErrors.WithLabelValues(string(kind)).Inc()
}

func (pmc *PrometheusMetricsCollector) ServerStopped(duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	pmc.stops.WithLabelValues(status).Inc()
	pmc.stopDuration.Observe(duration.Seconds())
	pmc.running.Set(0)
}

func (pmc *PrometheusMetricsCollector) ServerExited(exitCode *int, signal string) {
	code := signal
	if exitCode != nil {
		code = strconv.Itoa(*exitCode)
	}
	if code == "" {
		code = "unknown"
	}
	pmc.exits.WithLabelValues(code).Inc()
	pmc.running.Set(0)
}

func (pmc *PrometheusMetricsCollector) ServerRestarted() {
	pmc.restarts.Inc()
}

func (pmc *PrometheusMetricsCollector) Registry() *prometheus.Registry {
	return pmc.registry
}

// Handler serves the collector's registry in the Prometheus text format.
func (pmc *PrometheusMetricsCollector) Handler() http.Handler {
	return promhttp.HandlerFor(pmc.registry, promhttp.HandlerOpts{})
}

var _ MetricsCollector = (*PrometheusMetricsCollector)(nil)
