package pipeline

import (
	"sync"

	"github.com/rgovind/kite-ticks/internal/model"
)

// Queue is a fixed-capacity, thread-safe FIFO of tick records. When full,
// the oldest entry is evicted to admit the new one, so producers never
// block and never error. Eviction under sustained overload is the
// configured backpressure policy, not a failure.
type Queue struct {
	mu       sync.Mutex
	buf      []model.TickRecord
	head     int // read position
	tail     int // write position
	count    int
	capacity int

	// Wake signal for the flush loop. Buffered so a producer never
	// blocks signaling an already-woken consumer.
	ready chan struct{}

	// Stats
	totalEnqueued int64
	totalDrained  int64
	totalDropped  int64
}

// NewQueue creates a queue with the given capacity.
func NewQueue(capacity int) *Queue {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue{
		buf:      make([]model.TickRecord, capacity),
		capacity: capacity,
		ready:    make(chan struct{}, 1),
	}
}

// Enqueue appends a record and signals the consumer. If the queue is at
// capacity, exactly one oldest entry is evicted first.
func (q *Queue) Enqueue(rec model.TickRecord) {
	q.mu.Lock()

	if q.count == q.capacity {
		// Drop the oldest entry.
		q.buf[q.head] = model.TickRecord{}
		q.head = (q.head + 1) % q.capacity
		q.count--
		q.totalDropped++
	}

	q.buf[q.tail] = rec
	q.tail = (q.tail + 1) % q.capacity
	q.count++
	q.totalEnqueued++
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// Ready returns the wake signal channel for the consumer.
func (q *Queue) Ready() <-chan struct{} {
	return q.ready
}

// DrainAll removes and returns every queued record in insertion order,
// clearing any pending wake signal. Returns nil when empty.
func (q *Queue) DrainAll() []model.TickRecord {
	q.mu.Lock()
	defer q.mu.Unlock()

	// Clear a stale signal so an empty cycle doesn't immediately re-wake.
	select {
	case <-q.ready:
	default:
	}

	if q.count == 0 {
		return nil
	}

	batch := make([]model.TickRecord, q.count)
	for i := 0; i < len(batch); i++ {
		batch[i] = q.buf[q.head]
		q.buf[q.head] = model.TickRecord{} // Clear reference for GC
		q.head = (q.head + 1) % q.capacity
		q.count--
	}
	q.totalDrained += int64(len(batch))

	return batch
}

// Len returns the current number of queued records.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// Cap returns the queue capacity.
func (q *Queue) Cap() int {
	return q.capacity
}

// Stats returns queue statistics.
func (q *Queue) Stats() QueueStats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return QueueStats{
		Len:      q.count,
		Cap:      q.capacity,
		Enqueued: q.totalEnqueued,
		Drained:  q.totalDrained,
		Dropped:  q.totalDropped,
	}
}

// QueueStats contains queue statistics.
type QueueStats struct {
	Len      int
	Cap      int
	Enqueued int64
	Drained  int64
	Dropped  int64
}
