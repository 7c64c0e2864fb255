// Package session hosts editor sessions.
//
// Each session owns an independent graph store, orchestrator and set of
// autocomplete fields, created together and disposed together. Disposing a
// session clears its store and cancels any playback, the same as closing
// the editor. Loading or clearing a workflow drops the session's fields, and
// every field edit starts from the param text held in the store. A Reaper
// disposes sessions left idle past a TTL unless a run is active.
package session
