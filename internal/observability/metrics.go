package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce        sync.Once
	httpRequestsTotal   *prometheus.CounterVec
	httpLatencySeconds  *prometheus.HistogramVec
	httpErrorsTotal     *prometheus.CounterVec
	liveQueriesActive   prometheus.Gauge
	changeEventsTotal   *prometheus.CounterVec
	subscriptionsActive *prometheus.GaugeVec
	fanOutSeconds       *prometheus.HistogramVec
	staleResultsTotal   *prometheus.CounterVec
	sessionsActive      prometheus.Gauge
	sessionRoleLookups  *prometheus.CounterVec
)

// RegisterMetrics initialises the Prometheus collectors used by the service.
func RegisterMetrics() {
	registerOnce.Do(func() {
		httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		httpLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_latency_seconds",
			Help:    "Latency distribution for API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		httpErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_errors_total",
			Help: "Total number of error responses returned by the API.",
		}, []string{"method", "route", "status"})

		liveQueriesActive = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "document_live_queries_active",
			Help: "Live queries currently registered with the document store.",
		})

		changeEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "document_change_events_total",
			Help: "Collection change events by collection and origin (local, redis, nats).",
		}, []string{"collection", "origin"})

		subscriptionsActive = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "dashboard_subscriptions_active",
			Help: "Populated dashboard subscription slots.",
		}, []string{"slot"})

		fanOutSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dashboard_fanout_seconds",
			Help:    "Duration of per-class point read fan-outs.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
		}, []string{"kind"})

		staleResultsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dashboard_stale_results_total",
			Help: "Results discarded because their subscription or generation was superseded.",
		}, []string{"kind"})

		sessionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dashboard_sessions_active",
			Help: "Open dashboard sessions.",
		})

		sessionRoleLookups = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dashboard_role_lookups_total",
			Help: "Role resolutions by outcome.",
		}, []string{"outcome"})

		prometheus.MustRegister(
			httpRequestsTotal, httpLatencySeconds, httpErrorsTotal,
			liveQueriesActive, changeEventsTotal,
			subscriptionsActive, fanOutSeconds, staleResultsTotal,
			sessionsActive, sessionRoleLookups,
		)
	})
}

// HTTPRequests exposes the counter for API requests.
func HTTPRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return httpRequestsTotal
}

// HTTPLatency exposes the latency histogram for API requests.
func HTTPLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return httpLatencySeconds
}

// HTTPErrors exposes the counter for API error responses.
func HTTPErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return httpErrorsTotal
}

// LiveQueriesActive exposes the gauge of registered live queries.
func LiveQueriesActive() prometheus.Gauge {
	RegisterMetrics()
	return liveQueriesActive
}

// ChangeEvents exposes the change event counter.
func ChangeEvents() *prometheus.CounterVec {
	RegisterMetrics()
	return changeEventsTotal
}

// SubscriptionsActive exposes the per-slot subscription gauge.
func SubscriptionsActive() *prometheus.GaugeVec {
	RegisterMetrics()
	return subscriptionsActive
}

// FanOutDuration exposes the fan-out latency histogram.
func FanOutDuration() *prometheus.HistogramVec {
	RegisterMetrics()
	return fanOutSeconds
}

// StaleResults exposes the counter of discarded stale results.
func StaleResults() *prometheus.CounterVec {
	RegisterMetrics()
	return staleResultsTotal
}

// SessionsActive exposes the open session gauge.
func SessionsActive() prometheus.Gauge {
	RegisterMetrics()
	return sessionsActive
}

// RoleLookups exposes the role resolution counter.
func RoleLookups() *prometheus.CounterVec {
	RegisterMetrics()
	return sessionRoleLookups
}
