// Package api hosts the read-only status server. Routes:
//   - GET /healthz and /readyz for liveness and readiness probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/state for the in-memory crawl state.
//   - GET /v1/villages/{village} for a stored village snapshot.
//   - GET /v1/progress and /v1/progress/{village} for live sheet scan progress.
package api
