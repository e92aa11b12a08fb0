// Package gwmetrics implements the TTS gateway's metrics collector: active
// connection/session counters, error counters, the backpressure counter,
// and the TTFA percentile summary.
//
// Uses prometheus.Summary's own Objectives-based quantile tracking for
// TTFA percentiles rather than a hand-rolled deque+interpolation — see
// DESIGN.md.
package gwmetrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds every Prometheus instrument the TTS gateway exposes.
type Collector struct {
	registry *prometheus.Registry

	ActiveConnections prometheus.Gauge
	SessionsTotal      prometheus.Counter
	ErrorsTotal        *prometheus.CounterVec
	BackpressureTotal  prometheus.Counter
	TTFAMillis         prometheus.Summary
}

// New constructs a Collector registered against a fresh, isolated
// registry (so tests can assert "returns to pre-test value" without
// cross-test interference).
func New() *Collector {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,
		ActiveConnections: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ws_gateway_active_connections",
			Help: "Number of currently open TTS gateway WebSocket connections.",
		}),
		SessionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "ws_gateway_sessions_total",
			Help: "Total number of TTS sessions created.",
		}),
		ErrorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ws_gateway_errors_total",
			Help: "Total number of error messages emitted, by error code.",
		}, []string{"code"}),
		BackpressureTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "ws_gateway_backpressure_total",
			Help: "Total number of sessions torn down due to outbound backpressure.",
		}),
		TTFAMillis: factory.NewSummary(prometheus.SummaryOpts{
			Name:       "ws_gateway_ttfa_ms",
			Help:       "Time to first audio chunk, in milliseconds.",
			Objectives: map[float64]float64{0.5: 0.01, 0.95: 0.005, 0.99: 0.001},
			MaxAge:     prometheus.DefMaxAge,
			AgeBuckets: prometheus.DefAgeBuckets,
		}),
	}
}

// IncActive adjusts the active-connection gauge by delta (+1 on connect,
// -1 on teardown).
func (c *Collector) IncActive(delta float64) {
	c.ActiveConnections.Add(delta)
}

// IncSessions increments the sessions-created counter.
func (c *Collector) IncSessions() {
	c.SessionsTotal.Inc()
}

// IncError increments the per-code error counter and, when code is
// "backpressure", also bumps the dedicated backpressure counter.
func (c *Collector) IncError(code string) {
	c.ErrorsTotal.WithLabelValues(code).Inc()
	if code == "backpressure" {
		c.BackpressureTotal.Inc()
	}
}

// ObserveTTFAMillis records one Time-To-First-Audio sample.
func (c *Collector) ObserveTTFAMillis(ms float64) {
	c.TTFAMillis.Observe(ms)
}

// Handler returns the /metrics HTTP handler, rendering in the
// text/plain; version=0.0.4 Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
