package model

import "time"

// Kind classifies a recorded instrument.
type Kind string

const (
	// KindSpot is an underlying index or equity quote.
	KindSpot Kind = "SPOT"

	// KindOption is an option contract quote.
	KindOption Kind = "OPT"
)

// OptionType is the exchange option-type code.
type OptionType string

const (
	OptionCall OptionType = "CE"
	OptionPut  OptionType = "PE"
)

// Tick is a single raw price update delivered by the feed.
//
// Timestamps are zero when the feed did not supply them; ReceivedAt is
// always set by the feed client when the frame is read off the wire.
type Tick struct {
	InstrumentToken uint32    // Exchange instrument token
	LastPrice       *float64  // Last traded price, nil if absent from the packet
	Timestamp       time.Time // Explicit per-tick event timestamp
	LastTradeTime   time.Time // Time of the last trade
	ExchangeTime    time.Time // Exchange-side packet timestamp
	ReceivedAt      time.Time // Local receive time
}

// TickRecord is the normalized, storage-ready projection of a Tick.
// Records are immutable after construction and owned by the pipeline
// between enqueue and flush.
type TickRecord struct {
	InstrumentToken uint32
	TradingSymbol   string
	Kind            Kind
	LastPrice       *float64  // nil is preserved as null/empty in output, never defaulted
	Timestamp       time.Time // Resolved per the event → last-trade → exchange → receive order

	// Option enrichment; zero values for SPOT records and for options
	// missing from the catalog.
	Expiry     time.Time
	Strike     int
	OptionType OptionType
}

// Instrument is one row of the exchange instrument dump.
type Instrument struct {
	InstrumentToken uint32
	ExchangeToken   uint32
	TradingSymbol   string
	Name            string // Underlying name (e.g., "NIFTY")
	Expiry          time.Time
	Strike          float64
	InstrumentType  string // "EQ", "FUT", "CE", "PE", ...
	Segment         string
	Exchange        string
}

// OptionKey identifies an option contract logically.
// Expiry is the ISO date (YYYY-MM-DD) so keys stay comparable.
type OptionKey struct {
	Underlying string
	Strike     int
	Type       OptionType
	Expiry     string
}

// OptionMeta is the per-token option metadata used for enrichment at
// write time.
type OptionMeta struct {
	TradingSymbol string
	Underlying    string
	Strike        int
	Type          OptionType
	Expiry        time.Time
}

// ISODate formats a civil date as YYYY-MM-DD, or "" for the zero time.
func ISODate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("2006-01-02")
}
