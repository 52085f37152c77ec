// Package broadcast implements in-process fan-out of vote events using the actor pattern.
//
// A single goroutine owns the subscriber table and receives commands over a channel (no mutexes).
// Publishing never blocks the caller: a full command queue or a full subscriber buffer drops the event.
package broadcast
