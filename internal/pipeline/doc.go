// Package pipeline implements the bounded, batching write path between
// the feed callback and the sinks.
//
// The queue is the only state shared between the producer (feed
// delivery goroutine) and the consumer (flush goroutine). Its mutex is
// held only for enqueue and for the swap-out drain, never across I/O.
// Overflow evicts the oldest record; the producer never blocks.
package pipeline
