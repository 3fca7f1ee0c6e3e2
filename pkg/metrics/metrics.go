package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Request pipeline metrics
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burrow_requests_total",
			Help: "Total number of HTTP requests by method, status and tenant",
		},
		[]string{"method", "status", "tenant"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "burrow_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	RequestsRateLimited = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "burrow_requests_rate_limited_total",
			Help: "Total number of requests rejected by the rate limiter",
		},
	)

	RequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "burrow_requests_in_flight",
			Help: "Number of requests currently being handled",
		},
	)

	// Tenant metrics
	TenantsKnown = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "burrow_tenants_known_total",
			Help: "Number of tenant namespaces verified by this process",
		},
	)

	MigrationsApplied = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burrow_migrations_applied_total",
			Help: "Total number of migration files applied by namespace",
		},
		[]string{"namespace"},
	)

	// Event bus metrics
	EventsDispatched = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burrow_events_dispatched_total",
			Help: "Total number of events dispatched by name",
		},
		[]string{"event"},
	)

	EventsFailed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burrow_events_failed_total",
			Help: "Total number of listener failures by event name",
		},
		[]string{"event"},
	)

	EventsScheduled = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "burrow_events_scheduled",
			Help: "Number of events waiting on the scheduled queue",
		},
	)

	// Storage metrics
	QueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "burrow_query_duration_seconds",
			Help:    "Database statement duration in seconds by operation",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)
)

func init() {
	prometheus.MustRegister(RequestsTotal)
	prometheus.MustRegister(RequestDuration)
	prometheus.MustRegister(RequestsRateLimited)
	prometheus.MustRegister(RequestsInFlight)
	prometheus.MustRegister(TenantsKnown)
	prometheus.MustRegister(MigrationsApplied)
	prometheus.MustRegister(EventsDispatched)
	prometheus.MustRegister(EventsFailed)
	prometheus.MustRegister(EventsScheduled)
	prometheus.MustRegister(QueryDuration)
}

// Handler returns the Prometheus HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
