// Package band keeps the feed subscription centered on the money.
//
// Each tracked underlying has a desired set of option contracts: every
// strike within a configured width of the at-the-money level, crossed
// with the configured expiries and both option types. When a spot tick
// moves the rounded strike, the manager diffs the new desired set
// against what is actually subscribed and sends only the edge changes
// to the feed. Failed feed calls mark the state dirty so the next spot
// tick retries the reconciliation.
package band
