package sink

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"sync"

	"github.com/rgovind/kite-ticks/internal/model"
)

// csvHeader is written once when the destination file is empty.
var csvHeader = []string{
	"timestamp", "instrument_token", "tradingsymbol", "kind",
	"last_price", "expiry", "strike", "option_type",
}

// csvTimeLayout is millisecond-precision wall time.
const csvTimeLayout = "2006-01-02 15:04:05.000"

// CSV writes the tabular record form, append-only with a header row.
// Fields not applicable to a record (option enrichment on SPOT rows,
// absent prices) are written as empty strings.
type CSV struct {
	mu   sync.Mutex
	file *os.File
	w    *csv.Writer
}

// NewCSV opens (or creates) the output file in append mode and writes
// the header row if the file is empty.
func NewCSV(path string) (*CSV, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("open csv sink: %w", err)
	}

	s := &CSV{
		file: f,
		w:    csv.NewWriter(f),
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat csv sink: %w", err)
	}
	if info.Size() == 0 {
		if err := s.w.Write(csvHeader); err != nil {
			f.Close()
			return nil, fmt.Errorf("write csv header: %w", err)
		}
		s.w.Flush()
		if err := s.w.Error(); err != nil {
			f.Close()
			return nil, fmt.Errorf("flush csv header: %w", err)
		}
	}

	return s, nil
}

// WriteBatch appends one row per record and flushes once at the end.
func (s *CSV) WriteBatch(batch []model.TickRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rec := range batch {
		if err := s.w.Write(csvRow(rec)); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}

	s.w.Flush()
	if err := s.w.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

// Close flushes and closes the file.
func (s *CSV) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.w.Flush()
	if err := s.w.Error(); err != nil {
		s.file.Close()
		return fmt.Errorf("flush csv: %w", err)
	}
	return s.file.Close()
}

// csvRow formats one record as a CSV row.
func csvRow(rec model.TickRecord) []string {
	price := ""
	if rec.LastPrice != nil {
		price = strconv.FormatFloat(*rec.LastPrice, 'f', -1, 64)
	}

	strike := ""
	if rec.OptionType != "" {
		strike = strconv.Itoa(rec.Strike)
	}

	return []string{
		rec.Timestamp.Format(csvTimeLayout),
		strconv.FormatUint(uint64(rec.InstrumentToken), 10),
		rec.TradingSymbol,
		string(rec.Kind),
		price,
		model.ISODate(rec.Expiry),
		strike,
		string(rec.OptionType),
	}
}
