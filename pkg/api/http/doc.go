// Package http provides the HTTP REST API implementation.
//
// The HTTP server exposes endpoints for:
//   - Editor sessions (create, inspect, dispose)
//   - Graph mutation: nodes, edges, templates, selection
//   - Variable autocomplete fields and reference checks
//   - Workflow load/save against the configured repository, and drafts
//   - Run inputs, readiness, start and status
//   - Health checks and Prometheus metrics
package http
