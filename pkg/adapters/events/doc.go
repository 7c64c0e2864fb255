// Package events provides event bus implementations.
//
// Implementations:
//   - memory: in-process, ordered delivery per subscriber
//   - redis: Redis Streams, broadcast or consumer-group reads
package events
