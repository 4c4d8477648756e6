package sink

import (
	"errors"

	"github.com/rgovind/kite-ticks/internal/model"
)

// Sink persists batches of tick records. Implementations perform one
// write and one flush per batch, never per record.
type Sink interface {
	// WriteBatch appends the batch to the destination.
	WriteBatch(batch []model.TickRecord) error

	// Close flushes and releases the destination.
	Close() error
}

// Multi fans a batch out to several sinks. One sink failing does not
// stop the write to the others.
type Multi struct {
	sinks []Sink
}

// NewMulti creates a fan-out sink.
func NewMulti(sinks ...Sink) *Multi {
	return &Multi{sinks: sinks}
}

// WriteBatch writes the batch to every sink and joins any errors.
func (m *Multi) WriteBatch(batch []model.TickRecord) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.WriteBatch(batch); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every sink and joins any errors.
func (m *Multi) Close() error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
