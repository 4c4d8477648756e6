package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rgovind/kite-ticks/internal/model"
)

// fakeSink records written batches and can be made to fail.
type fakeSink struct {
	mu      sync.Mutex
	batches [][]model.TickRecord
	fail    bool
}

func (f *fakeSink) WriteBatch(batch []model.TickRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("disk on fire")
	}
	cp := make([]model.TickRecord, len(batch))
	copy(cp, batch)
	f.batches = append(f.batches, cp)
	return nil
}

func (f *fakeSink) Close() error { return nil }

func (f *fakeSink) setFail(v bool) {
	f.mu.Lock()
	f.fail = v
	f.mu.Unlock()
}

func (f *fakeSink) written() [][]model.TickRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]model.TickRecord, len(f.batches))
	copy(out, f.batches)
	return out
}

func (f *fakeSink) totalRecords() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, b := range f.batches {
		n += len(b)
	}
	return n
}

func TestPipeline_FlushesEnqueuedRecords(t *testing.T) {
	q := NewQueue(100)
	out := &fakeSink{}
	p := New(q, out, 10*time.Millisecond, nil)

	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	for i := uint32(1); i <= 5; i++ {
		p.Enqueue(rec(i))
	}

	deadline := time.Now().Add(time.Second)
	for out.totalRecords() < 5 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := p.Stop(stopCtx); err != nil {
		t.Errorf("Stop() error = %v", err)
	}

	if got := out.totalRecords(); got != 5 {
		t.Fatalf("total records written = %d, want 5", got)
	}

	// Order is preserved across batches.
	var tokens []uint32
	for _, b := range out.written() {
		for _, r := range b {
			tokens = append(tokens, r.InstrumentToken)
		}
	}
	for i, tok := range tokens {
		if tok != uint32(i+1) {
			t.Errorf("tokens[%d] = %d, want %d", i, tok, i+1)
		}
	}
}

func TestPipeline_StopFlushesRemainder(t *testing.T) {
	q := NewQueue(100)
	out := &fakeSink{}
	// Interval long enough that only the final flush can write.
	p := New(q, out, time.Hour, nil)

	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	// Let the flush loop consume the initial wake signals, then fill
	// the queue without signaling it awake again.
	time.Sleep(20 * time.Millisecond)
	for i := uint32(1); i <= 3; i++ {
		p.Enqueue(rec(i))
	}
	// Wait for the signal-triggered flush.
	deadline := time.Now().Add(time.Second)
	for out.totalRecords() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	p.Enqueue(rec(4))
	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := p.Stop(stopCtx); err != nil {
		t.Errorf("Stop() error = %v", err)
	}

	if got := out.totalRecords(); got != 4 {
		t.Errorf("total records written = %d, want 4 (final flush must drain the remainder)", got)
	}
}

func TestPipeline_SinkErrorDoesNotStopLoop(t *testing.T) {
	q := NewQueue(100)
	out := &fakeSink{}
	out.setFail(true)
	p := New(q, out, 5*time.Millisecond, nil)

	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	p.Enqueue(rec(1))

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		m, _ := p.Stats()
		if m.Errors > 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	m, _ := p.Stats()
	if m.Errors == 0 {
		t.Fatal("expected a recorded flush error")
	}

	// The loop must survive the failure and write later batches.
	out.setFail(false)
	p.Enqueue(rec(2))

	deadline = time.Now().Add(time.Second)
	for out.totalRecords() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	p.Stop(stopCtx)

	if out.totalRecords() == 0 {
		t.Error("no records written after sink recovered")
	}
}

func TestPipeline_EmptyCyclesWriteNothing(t *testing.T) {
	q := NewQueue(100)
	out := &fakeSink{}
	p := New(q, out, 5*time.Millisecond, nil)

	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	time.Sleep(50 * time.Millisecond)

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	p.Stop(stopCtx)

	if got := len(out.written()); got != 0 {
		t.Errorf("batches written = %d, want 0 for an idle pipeline", got)
	}
	m, _ := p.Stats()
	if m.Flushes != 0 {
		t.Errorf("Flushes = %d, want 0", m.Flushes)
	}
}
