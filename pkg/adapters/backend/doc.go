// Package backend provides clients for the remote workflow service.
//
// Implementations:
//   - rest: HTTP/JSON client for workflow CRUD and execution (resty)
package backend
