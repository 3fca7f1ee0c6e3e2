/*
Package server is the HTTP request pipeline.

Every request runs the same lifecycle:

	┌─────────────────── REQUEST PIPELINE ───────────────────┐
	│                                                         │
	│  BeforeRequest event                                    │
	│        │                                                │
	│  favicon short-circuit / rate limit                     │
	│        │                                                │
	│  tenant resolution (X-Subdomain, X-Forwarded-Host,      │
	│  Host subdomain, default) + namespace normalisation     │
	│        │                                                │
	│  ensure namespace + pending migrations (first contact)  │
	│        │                                                │
	│  acquire tenant-scoped handle, install ambient frame    │
	│        │                                                │
	│  route resolution, BEGIN                                │
	│        │                                                │
	│  handler ──ok──▶ COMMIT ──▶ 200 + body                  │
	│        └──err──▶ ROLLBACK ─▶ status by error taxonomy   │
	│        │                                                │
	│  response: security headers, CORS, cookies,             │
	│  negotiated content encoding, content-length            │
	│        │                                                │
	│  AfterRequest event (always, even on failure)           │
	└─────────────────────────────────────────────────────────┘

Failures render as {"detail": message}; validation failures as
{"validation_errors": [{field, message}]} with messages run through the
translation catalogue. Unknown failures are logged with the request
snapshot, mapped to 500, and republished as an UnhandledException event.

The listener also serves /metrics, /health, /ready and /live outside the
tenant pipeline.
*/
package server
