// Package feed implements the push-feed client.
//
// The feed delivers binary quote packets over a WebSocket and accepts
// JSON command frames for subscribe/unsubscribe/mode changes. Tick
// batches are handed to the OnTicks callback sequentially on a single
// goroutine; the callback must not block on I/O (hand records to the
// pipeline instead).
package feed
