// Package domain holds the workflow editor's data model: graph nodes and
// edges as they travel through the persistence contract, the execution
// request/response wire shapes, and run events.
package domain
