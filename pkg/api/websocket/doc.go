// Package websocket provides real-time event streaming via WebSocket.
//
// Clients connect to /api/v1/sessions/:id/ws to receive the run and graph
// events of one editor session as JSON text messages.
package websocket
