// Package graph implements the workflow graph store: the single source of
// truth for an editor's nodes, edges, per-type id counters, selection and
// workflow identity.
//
// A Store is an explicit instance with a create -> use -> Close lifecycle, so
// independent editors never share state. Every mutation replaces whole node
// values, making last-write-wins the only consistency rule readers observe.
//
// Removing a node cascade-deletes the edges that touch it. Graphs loaded from
// outside are pruned of edges whose endpoints are missing.
package graph
