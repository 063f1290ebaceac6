package gateway

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/flemzord/mcphub/internal/sandbox"
)

// Metrics holds the gateway's prometheus collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	catalogTools   prometheus.Gauge
	executions     *prometheus.CounterVec
	scriptDuration prometheus.Histogram
	httpRequests   *prometheus.CounterVec
}

// NewMetrics creates the collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		catalogTools: factory.NewGauge(prometheus.GaugeOpts{
			Name: "mcphub_catalog_tools",
			Help: "Number of tools in the federated catalog.",
		}),
		executions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mcphub_script_executions_total",
			Help: "Script executions by terminal state.",
		}, []string{"state"}),
		scriptDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "mcphub_script_duration_seconds",
			Help:    "Wall-clock duration of script executions.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mcphub_http_requests_total",
			Help: "Gateway HTTP requests by path and status.",
		}, []string{"path", "code"}),
	}
}

// SetCatalogSize records the catalog size after discovery.
func (m *Metrics) SetCatalogSize(n int) {
	m.catalogTools.Set(float64(n))
}

// Record implements sandbox.Recorder so execution metrics ride the same
// hook as the history store.
func (m *Metrics) Record(_ context.Context, ex sandbox.Execution) error {
	m.executions.WithLabelValues(ex.State).Inc()
	m.scriptDuration.Observe(ex.Duration.Seconds())
	return nil
}

// Handler serves the scrape endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// statusRecorder captures the response code for the request counter.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
