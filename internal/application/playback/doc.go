// Package playback paces the presentation of a finished run.
//
// The backend has already executed every node by the time playback starts.
// The driver only replays the execution path one node at a time with a
// bounded per-step delay so a viewer can follow it. Cancelling the context
// stops the replay; it never affects the remote run.
package playback
