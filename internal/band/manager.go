package band

import (
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/rgovind/kite-ticks/internal/catalog"
	"github.com/rgovind/kite-ticks/internal/feed"
	"github.com/rgovind/kite-ticks/internal/model"
)

// Enqueuer accepts normalized records for persistence.
type Enqueuer interface {
	Enqueue(rec model.TickRecord)
}

// Underlying is one tracked spot instrument with its option chain name.
type Underlying struct {
	Token         uint32 // Spot instrument token
	TradingSymbol string // e.g., "NIFTY 50"
	Name          string // Option chain underlying, e.g., "NIFTY"
}

// Config holds the band parameters.
type Config struct {
	StrikeStep  int
	Width       int // strikes on each side of ATM
	Underlyings []Underlying
	Expiries    []time.Time
}

// Metrics contains band manager counters.
type Metrics struct {
	TicksNormalized int64
	TicksSkipped    int64 // unknown tokens dropped before enqueue
	BandRecomputes  int64
	SubscribeOps    int64
	UnsubscribeOps  int64
	FeedErrors      int64 // failed subscribe/unsubscribe calls
}

// spotState tracks one underlying's position in the chain.
type spotState struct {
	underlying    Underlying
	currentStrike int
	hasStrike     bool
	desired       map[uint32]struct{} // option tokens the current strike wants
}

// Manager keeps the feed subscription aligned with a band of option
// strikes around each underlying's at-the-money level. It also owns
// tick normalization: every raw tick is classified, enriched from the
// catalog and handed to the pipeline before any subscription work.
//
// All feed callbacks arrive on a single goroutine, but Snapshot and
// Stats are served to the health endpoint concurrently, so state is
// guarded by a mutex.
type Manager struct {
	conn   feed.Conn
	idx    *catalog.Index
	out    Enqueuer
	cfg    Config
	logger *slog.Logger

	mu         sync.Mutex
	spots      map[uint32]*spotState
	subscribed map[uint32]struct{} // option tokens currently on the feed
	dirty      bool                // a failed feed call forces the next recompute
	metrics    Metrics
}

// NewManager builds a manager over an already-connected (or about to
// connect) feed. Spot tokens must be resolved by the caller.
func NewManager(conn feed.Conn, idx *catalog.Index, out Enqueuer, cfg Config, logger *slog.Logger) (*Manager, error) {
	if cfg.StrikeStep <= 0 {
		return nil, fmt.Errorf("strike step must be positive, got %d", cfg.StrikeStep)
	}
	if cfg.Width < 0 {
		return nil, fmt.Errorf("band width must be non-negative, got %d", cfg.Width)
	}
	if logger == nil {
		logger = slog.Default()
	}

	m := &Manager{
		conn:       conn,
		idx:        idx,
		out:        out,
		cfg:        cfg,
		logger:     logger,
		spots:      make(map[uint32]*spotState, len(cfg.Underlyings)),
		subscribed: make(map[uint32]struct{}),
	}
	for _, u := range cfg.Underlyings {
		m.spots[u.Token] = &spotState{
			underlying: u,
			desired:    make(map[uint32]struct{}),
		}
	}
	return m, nil
}

// SubscribeInitial subscribes the spot instruments and re-subscribes
// any option tokens held from before a reconnect. The feed forgets
// subscriptions on disconnect, so this runs on every connect.
func (m *Manager) SubscribeInitial() error {
	m.mu.Lock()
	tokens := make([]uint32, 0, len(m.spots)+len(m.subscribed))
	for token := range m.spots {
		tokens = append(tokens, token)
	}
	for token := range m.subscribed {
		tokens = append(tokens, token)
	}
	m.mu.Unlock()

	if err := m.conn.Subscribe(tokens); err != nil {
		m.mu.Lock()
		m.metrics.FeedErrors++
		m.dirty = true
		m.mu.Unlock()
		return fmt.Errorf("subscribe initial set: %w", err)
	}
	if err := m.conn.SetMode(feed.ModeFull, tokens); err != nil {
		m.logger.Warn("set mode failed on initial set", "error", err)
	}

	m.mu.Lock()
	m.metrics.SubscribeOps++
	m.mu.Unlock()

	m.logger.Info("initial subscription sent",
		"spots", len(m.spots),
		"options", len(tokens)-len(m.spots),
	)
	return nil
}

// HandleTicks normalizes and enqueues a tick batch, then realigns the
// option band for any spot instrument whose price moved. Runs on the
// feed delivery goroutine; persistence is a queue handoff, never I/O.
func (m *Manager) HandleTicks(ticks []model.Tick) {
	for _, tick := range ticks {
		rec, spot, ok := m.normalize(tick)
		if !ok {
			continue
		}
		m.out.Enqueue(rec)

		if spot != nil && tick.LastPrice != nil {
			m.updateBand(spot, *tick.LastPrice)
		}
	}
}

// normalize projects a raw tick to a storage record. Unknown tokens are
// dropped; everything else is kept even with a nil price.
func (m *Manager) normalize(tick model.Tick) (model.TickRecord, *spotState, bool) {
	rec := model.TickRecord{
		InstrumentToken: tick.InstrumentToken,
		LastPrice:       tick.LastPrice,
		Timestamp:       resolveTimestamp(tick),
	}

	m.mu.Lock()
	spot := m.spots[tick.InstrumentToken]
	m.mu.Unlock()

	if spot != nil {
		rec.Kind = model.KindSpot
		rec.TradingSymbol = spot.underlying.TradingSymbol
	} else if meta, ok := m.idx.MetaByToken(tick.InstrumentToken); ok {
		rec.Kind = model.KindOption
		rec.TradingSymbol = meta.TradingSymbol
		rec.Expiry = meta.Expiry
		rec.Strike = meta.Strike
		rec.OptionType = meta.Type
	} else {
		m.mu.Lock()
		m.metrics.TicksSkipped++
		m.mu.Unlock()
		m.logger.Debug("dropping tick for unknown token", "token", tick.InstrumentToken)
		return model.TickRecord{}, nil, false
	}

	m.mu.Lock()
	m.metrics.TicksNormalized++
	m.mu.Unlock()
	return rec, spot, true
}

// resolveTimestamp picks the best available event time: explicit tick
// timestamp, then last trade time, then the exchange packet time, then
// the local receive time.
func resolveTimestamp(tick model.Tick) time.Time {
	switch {
	case !tick.Timestamp.IsZero():
		return tick.Timestamp
	case !tick.LastTradeTime.IsZero():
		return tick.LastTradeTime
	case !tick.ExchangeTime.IsZero():
		return tick.ExchangeTime
	case !tick.ReceivedAt.IsZero():
		return tick.ReceivedAt
	default:
		return time.Now()
	}
}

// updateBand recomputes the desired option set when the spot crosses
// into a new strike, and reconciles the feed subscription to match.
// Overlapping strikes between old and new bands are left untouched so
// a one-step move only churns the edges.
func (m *Manager) updateBand(spot *spotState, price float64) {
	strike := roundToStrike(price, m.cfg.StrikeStep)

	m.mu.Lock()
	if spot.hasStrike && strike == spot.currentStrike && !m.dirty {
		m.mu.Unlock()
		return
	}
	m.dirty = false
	spot.currentStrike = strike
	spot.hasStrike = true
	spot.desired = m.desiredTokens(spot.underlying, strike)
	m.metrics.BandRecomputes++

	// Reconcile against the union of every underlying's desired set so
	// one spot's move never drops another's subscriptions.
	union := make(map[uint32]struct{})
	for _, s := range m.spots {
		for token := range s.desired {
			union[token] = struct{}{}
		}
	}

	var toSubscribe, toUnsubscribe []uint32
	for token := range union {
		if _, ok := m.subscribed[token]; !ok {
			toSubscribe = append(toSubscribe, token)
		}
	}
	for token := range m.subscribed {
		if _, ok := union[token]; !ok {
			toUnsubscribe = append(toUnsubscribe, token)
		}
	}
	m.mu.Unlock()

	m.logger.Info("band realigned",
		"underlying", spot.underlying.Name,
		"atm_strike", strike,
		"spot_price", price,
		"subscribe", len(toSubscribe),
		"unsubscribe", len(toUnsubscribe),
	)

	if len(toUnsubscribe) > 0 {
		if err := m.conn.Unsubscribe(toUnsubscribe); err != nil {
			m.logger.Error("unsubscribe failed", "error", err, "count", len(toUnsubscribe))
			m.mu.Lock()
			m.metrics.FeedErrors++
			m.dirty = true
			m.mu.Unlock()
		} else {
			m.mu.Lock()
			m.metrics.UnsubscribeOps++
			for _, token := range toUnsubscribe {
				delete(m.subscribed, token)
			}
			m.mu.Unlock()
		}
	}

	if len(toSubscribe) > 0 {
		if err := m.conn.Subscribe(toSubscribe); err != nil {
			m.logger.Error("subscribe failed", "error", err, "count", len(toSubscribe))
			m.mu.Lock()
			m.metrics.FeedErrors++
			m.dirty = true
			m.mu.Unlock()
			return
		}
		if err := m.conn.SetMode(feed.ModeFull, toSubscribe); err != nil {
			m.logger.Warn("set mode failed", "error", err, "count", len(toSubscribe))
		}
		m.mu.Lock()
		m.metrics.SubscribeOps++
		for _, token := range toSubscribe {
			m.subscribed[token] = struct{}{}
		}
		m.mu.Unlock()
	}
}

// desiredTokens resolves the option tokens for a band centered on
// strike. Unlisted strike/expiry combinations are skipped; the band is
// whatever the catalog actually carries. Caller holds m.mu.
func (m *Manager) desiredTokens(u Underlying, strike int) map[uint32]struct{} {
	desired := make(map[uint32]struct{})
	for k := -m.cfg.Width; k <= m.cfg.Width; k++ {
		s := strike + k*m.cfg.StrikeStep
		for _, expiry := range m.cfg.Expiries {
			for _, typ := range []model.OptionType{model.OptionCall, model.OptionPut} {
				token, _, ok := m.idx.ResolveOption(u.Name, s, typ, expiry)
				if !ok {
					m.logger.Debug("option not listed",
						"underlying", u.Name,
						"strike", s,
						"type", typ,
						"expiry", model.ISODate(expiry),
					)
					continue
				}
				desired[token] = struct{}{}
			}
		}
	}
	return desired
}

// roundToStrike rounds a price to the nearest strike grid point.
func roundToStrike(price float64, step int) int {
	return int(math.Round(price/float64(step))) * step
}

// Stats returns the manager counters.
func (m *Manager) Stats() Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.metrics
}

// UnderlyingSnapshot is one underlying's band state for diagnostics.
type UnderlyingSnapshot struct {
	Underlying    string `json:"underlying"`
	TradingSymbol string `json:"tradingsymbol"`
	SpotToken     uint32 `json:"spot_token"`
	CurrentStrike int    `json:"current_strike"`
	DesiredCount  int    `json:"desired_count"`
}

// Snapshot reports the current band state for the debug endpoint.
func (m *Manager) Snapshot() ([]UnderlyingSnapshot, int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	snaps := make([]UnderlyingSnapshot, 0, len(m.spots))
	for token, s := range m.spots {
		snaps = append(snaps, UnderlyingSnapshot{
			Underlying:    s.underlying.Name,
			TradingSymbol: s.underlying.TradingSymbol,
			SpotToken:     token,
			CurrentStrike: s.currentStrike,
			DesiredCount:  len(s.desired),
		})
	}
	return snaps, len(m.subscribed)
}

// SubscribedCount returns the number of option tokens on the feed.
func (m *Manager) SubscribedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subscribed)
}
