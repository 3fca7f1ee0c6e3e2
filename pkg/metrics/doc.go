/*
Package metrics provides Prometheus metrics and health endpoints for Burrow.

All metrics are registered against the default registry at package init and
exposed through the promhttp handler on /metrics. The request pipeline, the
event bus and the migration runner update them directly through the exported
package-level collectors.

# Metrics Catalog

Request pipeline:

	burrow_requests_total{method, status, tenant}   counter
	burrow_request_duration_seconds{method}         histogram
	burrow_requests_rate_limited_total              counter
	burrow_requests_in_flight                       gauge

Tenancy and migrations:

	burrow_tenants_known_total                      gauge
	burrow_migrations_applied_total{namespace}      counter

Event bus:

	burrow_events_dispatched_total{event}           counter
	burrow_events_failed_total{event}               counter
	burrow_events_scheduled                         gauge

Storage:

	burrow_query_duration_seconds{operation}        histogram

Tenant is a bounded label in practice; deployments with many tenants should
aggregate at the Prometheus side. Never label by request path or object id.

# Health

The package also tracks per-component health for the /health, /ready and
/live endpoints. Components self-report through RegisterComponent and
UpdateComponent; readiness gates on the database and the event bus.

# Usage

	timer := metrics.NewTimer()
	// ... handle request ...
	timer.ObserveDurationVec(metrics.RequestDuration, r.Method)
	metrics.RequestsTotal.WithLabelValues(r.Method, "200", tenant).Inc()
*/
package metrics
