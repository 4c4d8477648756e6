package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/rgovind/kite-ticks/internal/band"
	"github.com/rgovind/kite-ticks/internal/catalog"
	"github.com/rgovind/kite-ticks/internal/config"
	"github.com/rgovind/kite-ticks/internal/database"
	"github.com/rgovind/kite-ticks/internal/feed"
	"github.com/rgovind/kite-ticks/internal/pipeline"
	"github.com/rgovind/kite-ticks/internal/sink"
	"github.com/rgovind/kite-ticks/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/recorder.local.yaml", "path to config file")
	flag.Parse()

	// Set up structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	// Credentials live in .env during development; absence is fine.
	if err := godotenv.Load(); err == nil {
		logger.Debug("loaded .env file")
	}

	runID := uuid.New().String()
	logger.Info("starting recorder",
		"version", version.Version,
		"commit", version.Commit,
		"run_id", runID,
		"config", *configPath,
	)

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"instance_id", cfg.Instance.ID,
		"ws_url", cfg.Feed.WSURL,
		"underlyings", len(cfg.Band.Underlyings),
	)

	loc, err := cfg.Session.Location()
	if err != nil {
		logger.Error("failed to load session timezone", "error", err)
		os.Exit(1)
	}
	if !cfg.Session.Contains(time.Now(), loc) {
		logger.Warn("starting outside the trading session window",
			"start", cfg.Session.Start,
			"end", cfg.Session.End,
			"timezone", cfg.Session.Timezone,
		)
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Hard stop at the session cutoff so the last batch lands before
	// the feed goes quiet.
	cutoff, err := cfg.Session.CutoffAt(time.Now(), loc)
	if err != nil {
		logger.Error("failed to compute session cutoff", "error", err)
		os.Exit(1)
	}
	if wait := time.Until(cutoff); wait > 0 {
		go func() {
			select {
			case <-ctx.Done():
			case <-time.After(wait):
				logger.Info("session cutoff reached", "cutoff", cutoff)
				cancel()
			}
		}()
	} else {
		logger.Warn("session cutoff already passed, recording anyway", "cutoff", cutoff)
	}

	// Fetch the instrument dump and build the lookup index.
	logger.Info("fetching instrument dump", "url", cfg.Catalog.URL)
	catalogClient := catalog.NewClient(
		cfg.Catalog.URL,
		cfg.Feed.APIKey,
		catalog.WithLogger(logger),
		catalog.WithTimeout(cfg.Catalog.Timeout),
		catalog.WithRetries(cfg.Catalog.MaxRetries, time.Second),
	)
	instruments, err := catalogClient.Instruments(ctx)
	if err != nil {
		logger.Error("failed to fetch instrument dump", "error", err)
		os.Exit(1)
	}
	idx := catalog.NewIndex(instruments)
	logger.Info("instrument index built",
		"instruments", len(instruments),
		"options", idx.OptionCount(),
	)

	// Resolve spot tokens for the tracked underlyings.
	underlyings := make([]band.Underlying, 0, len(cfg.Band.Underlyings))
	for _, u := range cfg.Band.Underlyings {
		token, ok := idx.TokenBySymbol(u.TradingSymbol)
		if !ok {
			logger.Error("spot instrument not in catalog", "tradingsymbol", u.TradingSymbol)
			os.Exit(1)
		}
		underlyings = append(underlyings, band.Underlying{
			Token:         token,
			TradingSymbol: u.TradingSymbol,
			Name:          u.Name,
		})
		logger.Info("resolved spot instrument",
			"tradingsymbol", u.TradingSymbol,
			"token", token,
		)
	}

	expiries, err := cfg.Band.ExpiryDates()
	if err != nil {
		logger.Error("failed to parse band expiries", "error", err)
		os.Exit(1)
	}

	// Open the configured sinks.
	sinks, pgSink, err := openSinks(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open sinks", "error", err)
		os.Exit(1)
	}
	out := sink.NewMulti(sinks...)

	// Pipeline: bounded queue, single flush loop.
	queue := pipeline.NewQueue(cfg.Queue.Capacity)
	pipe := pipeline.New(queue, out, cfg.Writer.FlushInterval, logger)
	if err := pipe.Start(ctx); err != nil {
		logger.Error("failed to start pipeline", "error", err)
		os.Exit(1)
	}

	// Feed client and band manager.
	feedClient := feed.NewClient(feed.ClientConfig{
		URL:                cfg.Feed.WSURL,
		APIKey:             cfg.Feed.APIKey,
		AccessToken:        cfg.Feed.AccessToken,
		WriteTimeout:       cfg.Feed.WriteTimeout,
		ReconnectBaseDelay: cfg.Feed.ReconnectBaseDelay,
		ReconnectMaxDelay:  cfg.Feed.ReconnectMaxDelay,
	}, logger)

	manager, err := band.NewManager(feedClient, idx, pipe, band.Config{
		StrikeStep:  cfg.Band.StrikeStep,
		Width:       cfg.Band.Width,
		Underlyings: underlyings,
		Expiries:    expiries,
	}, logger)
	if err != nil {
		logger.Error("failed to create band manager", "error", err)
		os.Exit(1)
	}

	feedClient.OnTicks(manager.HandleTicks)
	feedClient.OnConnect(func() {
		if err := manager.SubscribeInitial(); err != nil {
			logger.Error("initial subscription failed", "error", err)
		}
	})
	feedClient.OnError(func(code int, reason string) {
		logger.Error("feed error", "code", code, "reason", reason)
	})
	feedClient.OnClose(func(code int, reason string) {
		logger.Warn("feed connection closed", "code", code, "reason", reason)
	})

	// Start health server before connecting so startup is observable.
	healthServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Health.Port),
		Handler: createHealthHandler(pipe, manager, feedClient, pgSink),
	}
	go func() {
		logger.Info("starting health server", "port", cfg.Health.Port)
		if err := healthServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("health server error", "error", err)
		}
	}()

	logger.Info("connecting to feed", "url", cfg.Feed.WSURL)
	if err := feedClient.Connect(ctx); err != nil {
		logger.Error("failed to connect to feed", "error", err)
		os.Exit(1)
	}

	logger.Info("recorder running",
		"instance_id", cfg.Instance.ID,
		"run_id", runID,
		"health_url", fmt.Sprintf("http://localhost:%d/health", cfg.Health.Port),
	)

	// Wait for shutdown
	<-ctx.Done()

	logger.Info("shutting down...")

	// Stop the feed first so no new records arrive, then drain the
	// pipeline, then close the sinks.
	if err := feedClient.Close(); err != nil {
		logger.Warn("feed close failed", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := pipe.Stop(shutdownCtx); err != nil {
		logger.Warn("pipeline stop failed", "error", err)
	}

	if err := out.Close(); err != nil {
		logger.Warn("sink close failed", "error", err)
	}

	healthServer.Shutdown(shutdownCtx)

	metrics, qstats := pipe.Stats()
	logger.Info("recorder stopped",
		"records_flushed", metrics.RecordsFlushed,
		"dropped", qstats.Dropped,
	)
}

// openSinks opens every configured sink. The Postgres sink is also
// returned separately so the health handler can report its counters.
func openSinks(ctx context.Context, cfg *config.RecorderConfig, logger *slog.Logger) ([]sink.Sink, *sink.Postgres, error) {
	var sinks []sink.Sink

	if cfg.Sinks.JSONL.Path != "" {
		s, err := sink.NewJSONL(cfg.Sinks.JSONL.Path)
		if err != nil {
			return nil, nil, err
		}
		sinks = append(sinks, s)
		logger.Info("jsonl sink opened", "path", cfg.Sinks.JSONL.Path)
	}

	if cfg.Sinks.CSV.Path != "" {
		s, err := sink.NewCSV(cfg.Sinks.CSV.Path)
		if err != nil {
			return nil, nil, err
		}
		sinks = append(sinks, s)
		logger.Info("csv sink opened", "path", cfg.Sinks.CSV.Path)
	}

	var pgSink *sink.Postgres
	if cfg.Sinks.Postgres.Enabled {
		logger.Info("connecting to database",
			"host", cfg.Sinks.Postgres.DB.Host,
			"port", cfg.Sinks.Postgres.DB.Port,
			"database", cfg.Sinks.Postgres.DB.Name,
		)
		pool, err := database.Connect(ctx, cfg.Sinks.Postgres.DB)
		if err != nil {
			return nil, nil, err
		}
		pgSink = sink.NewPostgres(ctx, pool, cfg.Sinks.Postgres.Table, logger)
		sinks = append(sinks, pgSink)
		logger.Info("postgres sink opened", "table", cfg.Sinks.Postgres.Table)
	}

	return sinks, pgSink, nil
}

// createHealthHandler creates the HTTP handler for health checks.
func createHealthHandler(pipe *pipeline.Pipeline, manager *band.Manager, conn feed.Conn, pgSink *sink.Postgres) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		metrics, qstats := pipe.Stats()
		bandStats := manager.Stats()

		health := struct {
			Status     string                 `json:"status"`
			Components map[string]interface{} `json:"components"`
		}{
			Status:     "healthy",
			Components: make(map[string]interface{}),
		}

		if conn.IsConnected() {
			health.Components["feed"] = "connected"
		} else {
			health.Status = "degraded"
			health.Components["feed"] = "disconnected"
		}

		health.Components["pipeline"] = map[string]interface{}{
			"queue_len":       qstats.Len,
			"queue_cap":       qstats.Cap,
			"enqueued":        qstats.Enqueued,
			"dropped":         qstats.Dropped,
			"flushes":         metrics.Flushes,
			"records_flushed": metrics.RecordsFlushed,
			"write_errors":    metrics.Errors,
		}

		health.Components["band"] = map[string]interface{}{
			"subscribed_options": manager.SubscribedCount(),
			"ticks_normalized":   bandStats.TicksNormalized,
			"ticks_skipped":      bandStats.TicksSkipped,
			"band_recomputes":    bandStats.BandRecomputes,
			"feed_errors":        bandStats.FeedErrors,
		}

		if pgSink != nil {
			pgStats := pgSink.Stats()
			health.Components["postgres"] = map[string]interface{}{
				"inserts":      pgStats.Inserts,
				"conflicts":    pgStats.Conflicts,
				"write_errors": pgStats.Errors,
			}
		}

		w.Header().Set("Content-Type", "application/json")
		if health.Status != "healthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	})

	mux.HandleFunc("/debug/band", func(w http.ResponseWriter, r *http.Request) {
		snaps, subscribed := manager.Snapshot()

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"subscribed_options": subscribed,
			"underlyings":        snaps,
		})
	})

	return mux
}
