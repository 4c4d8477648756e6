// bandprobe resolves and prints the option band a recorder would
// subscribe to for a given spot price, without touching the feed.
// Usage: go run ./cmd/bandprobe --config configs/recorder.local.yaml --price 17482.5
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/rgovind/kite-ticks/internal/catalog"
	"github.com/rgovind/kite-ticks/internal/config"
	"github.com/rgovind/kite-ticks/internal/model"
)

func main() {
	configPath := flag.String("config", "configs/recorder.example.yaml", "path to config file")
	price := flag.Float64("price", 0, "spot price to center the band on")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	if *price <= 0 {
		logger.Error("--price is required and must be positive")
		os.Exit(1)
	}

	godotenv.Load()

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	expiries, err := cfg.Band.ExpiryDates()
	if err != nil {
		logger.Error("failed to parse band expiries", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	client := catalog.NewClient(
		cfg.Catalog.URL,
		cfg.Feed.APIKey,
		catalog.WithLogger(logger),
		catalog.WithTimeout(cfg.Catalog.Timeout),
		catalog.WithRetries(cfg.Catalog.MaxRetries, time.Second),
	)
	instruments, err := client.Instruments(ctx)
	if err != nil {
		logger.Error("failed to fetch instrument dump", "error", err)
		os.Exit(1)
	}
	idx := catalog.NewIndex(instruments)
	logger.Info("instrument index built", "options", idx.OptionCount())

	step := cfg.Band.StrikeStep
	atm := int(math.Round(*price/float64(step))) * step

	for _, u := range cfg.Band.Underlyings {
		fmt.Printf("%s  spot=%.2f  atm=%d\n", u.Name, *price, atm)
		for k := -cfg.Band.Width; k <= cfg.Band.Width; k++ {
			strike := atm + k*step
			for _, expiry := range expiries {
				for _, typ := range []model.OptionType{model.OptionCall, model.OptionPut} {
					token, symbol, ok := idx.ResolveOption(u.Name, strike, typ, expiry)
					if !ok {
						fmt.Printf("  %d %s %s  (not listed)\n", strike, typ, model.ISODate(expiry))
						continue
					}
					fmt.Printf("  %d %s %s  token=%d  %s\n", strike, typ, model.ISODate(expiry), token, symbol)
				}
			}
		}
	}
}
