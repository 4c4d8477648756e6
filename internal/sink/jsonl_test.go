package sink

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rgovind/kite-ticks/internal/model"
)

func floatPtr(f float64) *float64 { return &f }

func readLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	trimmed := strings.TrimSuffix(string(data), "\n")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "\n")
}

func TestJSONL_WriteBatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ticks.jsonl")
	s, err := NewJSONL(path)
	if err != nil {
		t.Fatalf("NewJSONL() error = %v", err)
	}

	ts := time.Date(2026, 1, 20, 10, 15, 30, 123456789, time.UTC)
	batch := []model.TickRecord{
		{InstrumentToken: 256265, TradingSymbol: "NIFTY 50", Kind: model.KindSpot, LastPrice: floatPtr(17482.5), Timestamp: ts},
		{InstrumentToken: 1001, TradingSymbol: "NIFTY20JAN17500CE", Kind: model.KindOption, LastPrice: nil, Timestamp: ts},
	}
	if err := s.WriteBatch(batch); err != nil {
		t.Fatalf("WriteBatch() error = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	lines := readLines(t, path)
	if len(lines) != 2 {
		t.Fatalf("len(lines) = %d, want 2", len(lines))
	}

	var first map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("unmarshal first line: %v", err)
	}
	if got := first["instrument_token"].(float64); got != 256265 {
		t.Errorf("instrument_token = %v, want 256265", got)
	}
	if got := first["tradingsymbol"]; got != "NIFTY 50" {
		t.Errorf("tradingsymbol = %v, want NIFTY 50", got)
	}
	if got := first["last_price"].(float64); got != 17482.5 {
		t.Errorf("last_price = %v, want 17482.5", got)
	}
	if got := first["timestamp"]; got != ts.Format(time.RFC3339Nano) {
		t.Errorf("timestamp = %v, want %v", got, ts.Format(time.RFC3339Nano))
	}

	// A missing price serializes as null, never as zero.
	var second map[string]any
	if err := json.Unmarshal([]byte(lines[1]), &second); err != nil {
		t.Fatalf("unmarshal second line: %v", err)
	}
	if v, present := second["last_price"]; !present || v != nil {
		t.Errorf("last_price = %v, want null", v)
	}
}

func TestJSONL_AppendsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ticks.jsonl")
	ts := time.Now()

	for i := 0; i < 2; i++ {
		s, err := NewJSONL(path)
		if err != nil {
			t.Fatalf("NewJSONL() error = %v", err)
		}
		rec := model.TickRecord{InstrumentToken: uint32(100 + i), Timestamp: ts}
		if err := s.WriteBatch([]model.TickRecord{rec}); err != nil {
			t.Fatalf("WriteBatch() error = %v", err)
		}
		if err := s.Close(); err != nil {
			t.Fatalf("Close() error = %v", err)
		}
	}

	if lines := readLines(t, path); len(lines) != 2 {
		t.Errorf("len(lines) = %d, want 2 (restart must append, not truncate)", len(lines))
	}
}
