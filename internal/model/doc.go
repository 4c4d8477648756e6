// Package model defines shared data types used across the recorder.
//
// Conventions:
//   - Instrument tokens: uint32, as delivered on the wire
//   - Prices: float64 last-traded prices, recorded verbatim; a nil price
//     means the field was absent from the packet
//   - Timestamps: time.Time; output formats are sink-specific
package model
