// Package api hosts the front-end HTTP server, middleware, and REST handlers.
// Notable routes:
//   - GET /healthz / readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/results?resort=... for the combined weather and facts report.
//   - GET /v1/weather/{place} and /v1/facts/{term} for single hand-offs.
//   - /v1/entries for the visit log.
package api
