package sink

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rgovind/kite-ticks/internal/model"
)

// JSONL writes one self-describing JSON record per line, append-only.
// The destination may already hold prior lines; the sink only ever
// appends, so restarts are safe.
type JSONL struct {
	mu   sync.Mutex
	file *os.File
	w    *bufio.Writer
}

// jsonlRecord is the wire shape of one line.
type jsonlRecord struct {
	InstrumentToken uint32   `json:"instrument_token"`
	TradingSymbol   string   `json:"tradingsymbol"`
	LastPrice       *float64 `json:"last_price"`
	Timestamp       string   `json:"timestamp"`
}

// NewJSONL opens (or creates) the output file in append mode.
func NewJSONL(path string) (*JSONL, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("open jsonl sink: %w", err)
	}
	return &JSONL{
		file: f,
		w:    bufio.NewWriter(f),
	}, nil
}

// WriteBatch appends one line per record and flushes once at the end.
func (s *JSONL) WriteBatch(batch []model.TickRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rec := range batch {
		line, err := json.Marshal(jsonlRecord{
			InstrumentToken: rec.InstrumentToken,
			TradingSymbol:   rec.TradingSymbol,
			LastPrice:       rec.LastPrice,
			Timestamp:       rec.Timestamp.Format(time.RFC3339Nano),
		})
		if err != nil {
			return fmt.Errorf("marshal tick record: %w", err)
		}
		if _, err := s.w.Write(line); err != nil {
			return fmt.Errorf("write jsonl: %w", err)
		}
		if err := s.w.WriteByte('\n'); err != nil {
			return fmt.Errorf("write jsonl: %w", err)
		}
	}

	if err := s.w.Flush(); err != nil {
		return fmt.Errorf("flush jsonl: %w", err)
	}
	return nil
}

// Close flushes and closes the file.
func (s *JSONL) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.w.Flush(); err != nil {
		s.file.Close()
		return fmt.Errorf("flush jsonl: %w", err)
	}
	return s.file.Close()
}
