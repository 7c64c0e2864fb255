// Package orchestrator drives a workflow run for one editor session.
//
// The orchestrator owns the run state machine:
//
//	idle -> validating -> running -> completed | error
//
// It derives the run inputs from the input nodes of the graph store,
// checks readiness and input validity, calls the execution backend raced
// against a run timeout, and replays the returned execution path through
// the playback driver while updating per-node status. Failures are
// categorized for user-facing messaging. Only one run may be in flight.
//
// A run belongs to the workflow it started on. Clearing or replacing the
// store's workflow returns the orchestrator to idle and the abandoned run
// writes nothing further to the store or the run status.
package orchestrator
