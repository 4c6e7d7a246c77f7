// Package api hosts the HTTP server, middleware, and handlers. Notable routes:
//   - GET /healthz and /readyz for probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/loans runs the scrape pipeline; POST /v1/loans/refresh also persists the result.
//   - GET and POST /upload serve the CSV upload form.
//   - POST /v1/events/storage forwards a storage notification to the workflow webhook.
package api
