package config

import (
	"errors"
	"fmt"
	"time"
)

// Validate checks that all required fields are set and values are valid.
func (c *RecorderConfig) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	if c.Feed.APIKey == "" {
		return errors.New("feed.api_key is required")
	}
	if c.Feed.AccessToken == "" {
		return errors.New("feed.access_token is required")
	}

	if c.Sinks.JSONL.Path == "" && c.Sinks.CSV.Path == "" && !c.Sinks.Postgres.Enabled {
		return errors.New("at least one sink must be configured (sinks.jsonl.path, sinks.csv.path, or sinks.postgres.enabled)")
	}
	if c.Sinks.Postgres.Enabled {
		if err := c.Sinks.Postgres.DB.validate("sinks.postgres.db"); err != nil {
			return err
		}
	}

	if c.Queue.Capacity < 1 {
		return errors.New("queue.capacity must be >= 1")
	}
	if c.Writer.FlushInterval <= 0 {
		return errors.New("writer.flush_interval must be > 0")
	}

	if c.Band.StrikeStep < 1 {
		return errors.New("band.strike_step must be >= 1")
	}
	if c.Band.Width < 0 {
		return errors.New("band.width must be >= 0")
	}
	if len(c.Band.Underlyings) == 0 {
		return errors.New("band.underlyings must list at least one instrument")
	}
	for i, u := range c.Band.Underlyings {
		if u.TradingSymbol == "" {
			return fmt.Errorf("band.underlyings[%d].tradingsymbol is required", i)
		}
		if u.Name == "" {
			return fmt.Errorf("band.underlyings[%d].name is required", i)
		}
	}
	if len(c.Band.Expiries) == 0 {
		return errors.New("band.expiries must list at least one date")
	}
	if _, err := c.Band.ExpiryDates(); err != nil {
		return fmt.Errorf("band.expiries: %w", err)
	}

	if _, err := time.LoadLocation(c.Session.Timezone); err != nil {
		return fmt.Errorf("session.timezone %q: %w", c.Session.Timezone, err)
	}
	for _, clock := range []struct {
		field string
		value string
	}{
		{"session.start", c.Session.Start},
		{"session.end", c.Session.End},
		{"session.cutoff", c.Session.Cutoff},
	} {
		if _, err := parseClock(clock.value); err != nil {
			return fmt.Errorf("%s: %w", clock.field, err)
		}
	}

	if c.Health.Port < 1 || c.Health.Port > 65535 {
		return fmt.Errorf("health.port must be between 1 and 65535, got %d", c.Health.Port)
	}

	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
