// Package catalog builds the instrument index from the exchange
// instrument dump.
//
// The index maps (underlying, strike, option type, expiry) to concrete
// instrument tokens, and tokens back to option metadata for write-time
// enrichment. It is read-only for the duration of a run.
package catalog
