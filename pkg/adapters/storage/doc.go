// Package storage provides workflow and draft storage implementations.
//
// Implementations:
//   - memory: in-process workflows and drafts, for tests and offline use
//   - redis: drafts as JSON with TTL
//   - postgres: workflows and drafts as JSONB rows (pgx)
package storage
