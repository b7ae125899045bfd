package service

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService owns the Prometheus registry and the domain counters the
// orchestrators report into.
type MetricsService struct {
	registry *prometheus.Registry

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
	dbDuration   *prometheus.HistogramVec

	applyOutcomes        *prometheus.CounterVec
	applyInconsistencies prometheus.Counter
	tradeOutcomes        *prometheus.CounterVec
}

// NewMetricsService builds and registers all collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	m := &MetricsService{
		registry: registry,
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		dbDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Database query latency by operation.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		applyOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "planning_apply_total",
			Help: "Planning apply attempts by outcome.",
		}, []string{"outcome"}),
		applyInconsistencies: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "planning_apply_inconsistencies_total",
			Help: "Dependent writes that failed after the ticket write committed.",
		}),
		tradeOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shift_trade_transitions_total",
			Help: "Shift trade transitions by target status.",
		}, []string{"status"}),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequests,
		m.httpDuration,
		m.dbDuration,
		m.applyOutcomes,
		m.applyInconsistencies,
		m.tradeOutcomes,
	)
	return m
}

// Handler exposes the registry for the /metrics endpoint.
func (m *MetricsService) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveHTTPRequest records one completed HTTP request.
func (m *MetricsService) ObserveHTTPRequest(method, route string, status int, duration time.Duration) {
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveDBQuery records one database operation's latency.
func (m *MetricsService) ObserveDBQuery(operation string, duration time.Duration) {
	m.dbDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordApplyOutcome counts one apply attempt's terminal outcome.
func (m *MetricsService) RecordApplyOutcome(outcome string) {
	m.applyOutcomes.WithLabelValues(outcome).Inc()
}

// RecordApplyInconsistency counts a dependent write that exhausted its
// retries after the ticket write committed.
func (m *MetricsService) RecordApplyInconsistency() {
	m.applyInconsistencies.Inc()
}

// RecordTradeTransition counts a trade reaching the given status.
func (m *MetricsService) RecordTradeTransition(status string) {
	m.tradeOutcomes.WithLabelValues(status).Inc()
}
