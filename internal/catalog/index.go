package catalog

import (
	"regexp"
	"strconv"
	"time"

	"github.com/rgovind/kite-ticks/internal/model"
)

// Index is an immutable lookup over the instrument dump. It is built
// once at startup and never re-derived mid-session; a catalog change
// during the run degrades to unresolvable band tuples, not an error.
type Index struct {
	byKey       map[model.OptionKey]optionRef
	metaByToken map[uint32]model.OptionMeta
	bySymbol    map[string]uint32
}

type optionRef struct {
	token         uint32
	tradingSymbol string
}

// tradingSymbolRE matches monthly option symbols like NIFTY26JAN17500CE.
var tradingSymbolRE = regexp.MustCompile(`^([A-Z]+)(\d{1,2})([A-Z]{3})(\d+)(CE|PE)$`)

var monthByName = map[string]time.Month{
	"JAN": time.January, "FEB": time.February, "MAR": time.March,
	"APR": time.April, "MAY": time.May, "JUN": time.June,
	"JUL": time.July, "AUG": time.August, "SEP": time.September,
	"OCT": time.October, "NOV": time.November, "DEC": time.December,
}

// NewIndex builds the lookup maps from the instrument dump. Option rows
// missing an expiry fall back to parsing it out of the trading symbol;
// rows still missing underlying, strike, type or expiry are ignored.
func NewIndex(instruments []model.Instrument) *Index {
	idx := &Index{
		byKey:       make(map[model.OptionKey]optionRef),
		metaByToken: make(map[uint32]model.OptionMeta),
		bySymbol:    make(map[string]uint32, len(instruments)),
	}
	idx.build(instruments, time.Now())
	return idx
}

// newIndexAt is NewIndex with an injectable "today" for expiry-year
// inference in tests.
func newIndexAt(instruments []model.Instrument, today time.Time) *Index {
	idx := &Index{
		byKey:       make(map[model.OptionKey]optionRef),
		metaByToken: make(map[uint32]model.OptionMeta),
		bySymbol:    make(map[string]uint32, len(instruments)),
	}
	idx.build(instruments, today)
	return idx
}

func (idx *Index) build(instruments []model.Instrument, today time.Time) {
	for _, inst := range instruments {
		idx.bySymbol[inst.TradingSymbol] = inst.InstrumentToken

		typ := model.OptionType(inst.InstrumentType)
		if typ != model.OptionCall && typ != model.OptionPut {
			continue
		}

		expiry := inst.Expiry
		if expiry.IsZero() {
			parsed, ok := parseExpiryFromSymbol(inst.TradingSymbol, today)
			if !ok {
				continue
			}
			expiry = parsed
		}

		strike := int(inst.Strike)
		if inst.Name == "" || strike == 0 {
			continue
		}

		key := model.OptionKey{
			Underlying: inst.Name,
			Strike:     strike,
			Type:       typ,
			Expiry:     model.ISODate(expiry),
		}
		idx.byKey[key] = optionRef{
			token:         inst.InstrumentToken,
			tradingSymbol: inst.TradingSymbol,
		}
		idx.metaByToken[inst.InstrumentToken] = model.OptionMeta{
			TradingSymbol: inst.TradingSymbol,
			Underlying:    inst.Name,
			Strike:        strike,
			Type:          typ,
			Expiry:        expiry,
		}
	}
}

// ResolveOption looks up the token and trading symbol for a logical
// option contract. Not every strike/expiry combination is listed; a
// miss is expected, not an error.
func (idx *Index) ResolveOption(underlying string, strike int, typ model.OptionType, expiry time.Time) (uint32, string, bool) {
	ref, ok := idx.byKey[model.OptionKey{
		Underlying: underlying,
		Strike:     strike,
		Type:       typ,
		Expiry:     model.ISODate(expiry),
	}]
	if !ok {
		return 0, "", false
	}
	return ref.token, ref.tradingSymbol, true
}

// MetaByToken returns the enrichment metadata for an option token.
func (idx *Index) MetaByToken(token uint32) (model.OptionMeta, bool) {
	meta, ok := idx.metaByToken[token]
	return meta, ok
}

// TokenBySymbol resolves a trading symbol (e.g., "NIFTY 50") to its
// instrument token.
func (idx *Index) TokenBySymbol(tradingSymbol string) (uint32, bool) {
	token, ok := idx.bySymbol[tradingSymbol]
	return token, ok
}

// OptionCount returns the number of indexed option contracts.
func (idx *Index) OptionCount() int {
	return len(idx.byKey)
}

// parseExpiryFromSymbol recovers the expiry date from a monthly option
// trading symbol. The symbol carries no year, so the nearest future
// occurrence of that day/month is assumed.
func parseExpiryFromSymbol(tradingSymbol string, today time.Time) (time.Time, bool) {
	m := tradingSymbolRE.FindStringSubmatch(tradingSymbol)
	if m == nil {
		return time.Time{}, false
	}

	day, err := strconv.Atoi(m[2])
	if err != nil {
		return time.Time{}, false
	}
	month, ok := monthByName[m[3]]
	if !ok {
		return time.Time{}, false
	}

	year := today.Year()
	if month < today.Month() || (month == today.Month() && day < today.Day()) {
		year++
	}
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC), true
}
