// Package metrics defines the Prometheus instrumentation for the edge
// gateway on a dedicated registry.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry bundles all edge gateway metrics.
type Registry struct {
	registry *prometheus.Registry

	RequestsTotal         *prometheus.CounterVec
	RequestDuration       *prometheus.HistogramVec
	RequestsInFlight      prometheus.Gauge
	AuthFailuresTotal     *prometheus.CounterVec
	RateLimitRejectsTotal *prometheus.CounterVec
	CircuitBreakerState   prometheus.Gauge
	ForwardsTotal         *prometheus.CounterVec
	NotificationsTotal    *prometheus.CounterVec
}

// New creates a metrics registry with all collectors registered.
func New() *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Registry{
		registry: reg,
		RequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mcp_edge_requests_total",
			Help: "Total MCP requests handled, by method and outcome status.",
		}, []string{"method", "status"}),
		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mcp_edge_request_duration_seconds",
			Help:    "MCP request handling duration in seconds, by operation category.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		RequestsInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Name: "mcp_edge_requests_in_flight",
			Help: "Number of MCP requests currently being handled.",
		}),
		AuthFailuresTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mcp_edge_auth_failures_total",
			Help: "Total authentication failures, by reason.",
		}, []string{"reason"}),
		RateLimitRejectsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mcp_edge_rate_limit_rejections_total",
			Help: "Total requests rejected by rate limiting, by limiter scope.",
		}, []string{"scope"}),
		CircuitBreakerState: factory.NewGauge(prometheus.GaugeOpts{
			Name: "mcp_edge_circuit_breaker_state",
			Help: "Gateway circuit breaker state (0 closed, 1 open, 2 half open).",
		}),
		ForwardsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mcp_edge_gateway_forwards_total",
			Help: "Total messages forwarded to the orchestration gateway, by outcome.",
		}, []string{"outcome"}),
		NotificationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mcp_edge_notifications_total",
			Help: "Total MCP notifications received, by method.",
		}, []string{"method"}),
	}
}

// Handler returns an HTTP handler exposing this registry.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
