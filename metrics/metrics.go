// Package metrics is the Prometheus-backed respop.Observer and conn-level
// counter set spec.md §1 leaves to an embedder: the core itself reports
// completions through the Observer interface (respop.Observer) and open/
// close events through a plain callback, and this package is one concrete
// sink for both.
//
// Grounded on cloudfoundry-gorouter's metrics_prometheus/metrics.go, which
// wraps a registry of named counters/gauges/histograms behind a Capture*
// method set; that package builds on code.cloudfoundry.org/go-metric-registry,
// a wrapper this module doesn't carry, so here the same shape is built
// directly on the already-required github.com/prometheus/client_golang
// (promauto registration, promhttp handler) instead.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is the server's Prometheus collector set. It implements
// respop.Observer without importing respop, so the respop package never
// depends on Prometheus.
type Metrics struct {
	registry         *prometheus.Registry
	connectionsOpen  prometheus.Gauge
	connectionsTotal prometheus.Counter
	responsesTotal   *prometheus.CounterVec
	bytesWritten     prometheus.Counter
	requestDuration  *prometheus.HistogramVec
}

// New registers a fresh Metrics collector set with registry.
func New(registry *prometheus.Registry) *Metrics {
	factory := promauto.With(registry)
	return &Metrics{
		registry: registry,
		connectionsOpen: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "simplehttpd",
			Name:      "connections_open",
			Help:      "Number of currently open connections.",
		}),
		connectionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "simplehttpd",
			Name:      "connections_total",
			Help:      "Total connections accepted since startup.",
		}),
		responsesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "simplehttpd",
			Name:      "responses_total",
			Help:      "Total responses written, by method and status class (2xx, 3xx, 4xx, 5xx).",
		}, []string{"method", "status"}),
		bytesWritten: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "simplehttpd",
			Name:      "response_bytes_total",
			Help:      "Total response body bytes written since startup.",
		}),
		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "simplehttpd",
			Name:      "response_latency_seconds",
			Help:      "Wall-clock duration of a Response Operation's Run, by method.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
	}
}

// Observe implements respop.Observer. It's called once per completed
// Response Operation, win or lose, from the connection's run loop.
func (m *Metrics) Observe(method, path string, status int, bytesWritten int64) {
	_ = path
	m.responsesTotal.WithLabelValues(method, statusGroup(status)).Inc()
	m.bytesWritten.Add(float64(bytesWritten))
}

// ObserveDuration records how long a Response Operation's Run took.
func (m *Metrics) ObserveDuration(method string, seconds float64) {
	m.requestDuration.WithLabelValues(method).Observe(seconds)
}

// ConnectionOpened records a newly accepted connection.
func (m *Metrics) ConnectionOpened() {
	m.connectionsOpen.Inc()
	m.connectionsTotal.Inc()
}

// ConnectionClosed records a connection's closure.
func (m *Metrics) ConnectionClosed() {
	m.connectionsOpen.Dec()
}

// Handler returns the HTTP handler to mount at the scrape path.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func statusGroup(status int) string {
	switch {
	case status >= 200 && status < 300:
		return "2xx"
	case status >= 300 && status < 400:
		return "3xx"
	case status >= 400 && status < 500:
		return "4xx"
	case status >= 500 && status < 600:
		return "5xx"
	default:
		return "xxx"
	}
}
