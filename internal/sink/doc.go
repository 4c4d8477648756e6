// Package sink implements batch destinations for tick records.
//
// Sinks:
//   - JSONL: one self-describing record per line ({instrument_token,
//     tradingsymbol, last_price, timestamp})
//   - CSV: tabular form with a header row and option enrichment columns
//   - Postgres: time-series table via pgx batch inserts
//   - Multi: fan-out across several sinks
//
// All sinks use append-only semantics and tolerate pre-existing output
// (resume-safe). Each WriteBatch performs exactly one flush.
package sink
