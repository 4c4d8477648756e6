package sink

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rgovind/kite-ticks/internal/model"
)

// Postgres writes tick records to a time-series table using batched
// inserts with ON CONFLICT DO NOTHING, so replayed batches after a
// retried flush never duplicate rows.
type Postgres struct {
	pool   *pgxpool.Pool
	table  string
	logger *slog.Logger
	ctx    context.Context

	mu      sync.Mutex
	metrics PostgresMetrics
}

// PostgresMetrics counts sink activity.
type PostgresMetrics struct {
	Inserts   int64
	Conflicts int64
	Flushes   int64
	Errors    int64
}

// NewPostgres creates a Postgres sink writing to the given table.
func NewPostgres(ctx context.Context, pool *pgxpool.Pool, table string, logger *slog.Logger) *Postgres {
	if logger == nil {
		logger = slog.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return &Postgres{
		pool:   pool,
		table:  table,
		logger: logger,
		ctx:    ctx,
	}
}

// WriteBatch inserts the batch in a single round trip.
func (s *Postgres) WriteBatch(batch []model.TickRecord) error {
	if len(batch) == 0 {
		return nil
	}

	conflicts, err := s.batchInsert(batch)
	if err != nil {
		s.mu.Lock()
		s.metrics.Errors++
		s.mu.Unlock()
		return fmt.Errorf("insert ticks: %w", err)
	}

	s.mu.Lock()
	s.metrics.Inserts += int64(len(batch) - conflicts)
	s.metrics.Conflicts += int64(conflicts)
	s.metrics.Flushes++
	s.mu.Unlock()

	s.logger.Debug("flushed ticks to postgres",
		"count", len(batch),
		"conflicts", conflicts,
	)
	return nil
}

// Close is a no-op; the pool is owned by the caller.
func (s *Postgres) Close() error {
	return nil
}

// Stats returns current metrics.
func (s *Postgres) Stats() PostgresMetrics {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.metrics
}

// batchInsert inserts rows using pgx.Batch with ON CONFLICT DO NOTHING.
func (s *Postgres) batchInsert(rows []model.TickRecord) (conflicts int, err error) {
	sql := fmt.Sprintf(`
		INSERT INTO %s (ts, instrument_token, tradingsymbol, kind, last_price, expiry, strike, option_type)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT DO NOTHING
	`, pgx.Identifier{s.table}.Sanitize())

	batch := &pgx.Batch{}
	for _, r := range rows {
		var expiry any
		if !r.Expiry.IsZero() {
			expiry = r.Expiry
		}
		var strike any
		var optType any
		if r.OptionType != "" {
			strike = r.Strike
			optType = string(r.OptionType)
		}

		batch.Queue(sql,
			r.Timestamp, int64(r.InstrumentToken), r.TradingSymbol,
			string(r.Kind), r.LastPrice, expiry, strike, optType,
		)
	}

	results := s.pool.SendBatch(s.ctx, batch)
	defer results.Close()

	for range rows {
		ct, err := results.Exec()
		if err != nil {
			return 0, err
		}
		if ct.RowsAffected() == 0 {
			conflicts++
		}
	}

	return conflicts, nil
}
