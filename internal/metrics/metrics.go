// Package metrics exposes Prometheus counters for SEB access decisions,
// config key caching and session continuation.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every collector of the service. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	gatherer prometheus.Gatherer

	AccessDecisions *prometheus.CounterVec
	ConfigKeyCache  *prometheus.CounterVec
	SessionKeys     *prometheus.CounterVec
	AccessEvents    *prometheus.CounterVec

	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return NewWithRegistry(reg, reg)
}

// NewWithRegistry registers collectors on reg and serves them from g.
func NewWithRegistry(reg prometheus.Registerer, g prometheus.Gatherer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		gatherer: g,
		AccessDecisions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "seb_access_decisions_total",
				Help: "SEB access rule outcomes by state and deny reason",
			},
			[]string{"outcome", "reason"},
		),
		ConfigKeyCache: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "seb_configkey_cache_total",
				Help: "Config key cache lookups by result (hit, miss, stale)",
			},
			[]string{"result"},
		),
		SessionKeys: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "seb_session_keys_total",
				Help: "Session continuation keys by result (issued, consumed, invalid)",
			},
			[]string{"result"},
		),
		AccessEvents: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "seb_access_events_total",
				Help: "Access-prevented audit events by delivery result",
			},
			[]string{"result"},
		),
		RequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "seb_http_requests_total",
				Help: "HTTP requests by method, route and status",
			},
			[]string{"method", "route", "status"},
		),
		RequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "seb_http_request_duration_seconds",
				Help:    "HTTP request latency by method and route",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"method", "route"},
		),
	}
}

func (m *Metrics) AccessDecision(outcome, reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "none"
	}
	m.AccessDecisions.WithLabelValues(outcome, reason).Inc()
}

func (m *Metrics) ConfigKeyLookup(result string) {
	if m == nil {
		return
	}
	m.ConfigKeyCache.WithLabelValues(result).Inc()
}

func (m *Metrics) SessionKey(result string) {
	if m == nil {
		return
	}
	m.SessionKeys.WithLabelValues(result).Inc()
}

func (m *Metrics) AccessEvent(result string) {
	if m == nil {
		return
	}
	m.AccessEvents.WithLabelValues(result).Inc()
}

// ObserveRequest records one finished HTTP request.
func (m *Metrics) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.RequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.RequestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
