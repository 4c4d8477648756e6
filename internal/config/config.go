package config

import (
	"fmt"
	"time"
)

// RecorderConfig is the root configuration for a recorder instance.
type RecorderConfig struct {
	Instance InstanceConfig `yaml:"instance"`
	Feed     FeedConfig     `yaml:"feed"`
	Catalog  CatalogConfig  `yaml:"catalog"`
	Sinks    SinksConfig    `yaml:"sinks"`
	Queue    QueueConfig    `yaml:"queue"`
	Writer   WriterConfig   `yaml:"writer"`
	Band     BandConfig     `yaml:"band"`
	Session  SessionConfig  `yaml:"session"`
	Health   HealthConfig   `yaml:"health"`
}

// InstanceConfig identifies this recorder.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// FeedConfig holds the WebSocket tick feed settings.
// APIKey and AccessToken are normally supplied via ${VAR} expansion.
type FeedConfig struct {
	WSURL              string        `yaml:"ws_url"`
	APIKey             string        `yaml:"api_key"`
	AccessToken        string        `yaml:"access_token"`
	BufferSize         int           `yaml:"buffer_size"`
	WriteTimeout       time.Duration `yaml:"write_timeout"`
	ReconnectBaseDelay time.Duration `yaml:"reconnect_base_delay"`
	ReconnectMaxDelay  time.Duration `yaml:"reconnect_max_delay"`
}

// CatalogConfig holds instrument dump fetch settings.
type CatalogConfig struct {
	URL        string        `yaml:"url"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
}

// SinksConfig selects where tick records are persisted.
// At least one sink must be configured.
type SinksConfig struct {
	JSONL    JSONLSinkConfig    `yaml:"jsonl"`
	CSV      CSVSinkConfig      `yaml:"csv"`
	Postgres PostgresSinkConfig `yaml:"postgres"`
}

// JSONLSinkConfig configures the newline-delimited JSON sink.
type JSONLSinkConfig struct {
	Path string `yaml:"path"`
}

// CSVSinkConfig configures the tabular CSV sink.
type CSVSinkConfig struct {
	Path string `yaml:"path"`
}

// PostgresSinkConfig configures the optional time-series database sink.
type PostgresSinkConfig struct {
	Enabled bool     `yaml:"enabled"`
	Table   string   `yaml:"table"`
	DB      DBConfig `yaml:"db"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// QueueConfig holds the write queue settings.
type QueueConfig struct {
	Capacity int `yaml:"capacity"`
}

// WriterConfig holds the flush loop settings.
type WriterConfig struct {
	FlushInterval time.Duration `yaml:"flush_interval"`
}

// UnderlyingConfig names one tracked spot instrument and the underlying
// name its options are listed under.
type UnderlyingConfig struct {
	TradingSymbol string `yaml:"tradingsymbol"` // e.g., "NIFTY 50"
	Name          string `yaml:"name"`          // e.g., "NIFTY"
}

// BandConfig holds the option band settings.
type BandConfig struct {
	StrikeStep  int                `yaml:"strike_step"`
	Width       int                `yaml:"width"` // strikes on each side of ATM
	Underlyings []UnderlyingConfig `yaml:"underlyings"`
	Expiries    []string           `yaml:"expiries"` // YYYY-MM-DD
}

// ExpiryDates returns the configured expiries as civil dates.
func (b BandConfig) ExpiryDates() ([]time.Time, error) {
	dates := make([]time.Time, 0, len(b.Expiries))
	for _, s := range b.Expiries {
		d, err := time.Parse("2006-01-02", s)
		if err != nil {
			return nil, fmt.Errorf("parse expiry %q: %w", s, err)
		}
		dates = append(dates, d)
	}
	return dates, nil
}

// SessionConfig holds the trading session window and hard stop.
// Times are wall-clock "HH:MM" in the configured timezone.
type SessionConfig struct {
	Timezone string `yaml:"timezone"`
	Start    string `yaml:"start"`
	End      string `yaml:"end"`
	Cutoff   string `yaml:"cutoff"`
}

// Location loads the session timezone.
func (s SessionConfig) Location() (*time.Location, error) {
	return time.LoadLocation(s.Timezone)
}

// Contains reports whether t falls inside the trading session window.
func (s SessionConfig) Contains(t time.Time, loc *time.Location) bool {
	start, err1 := parseClock(s.Start)
	end, err2 := parseClock(s.End)
	if err1 != nil || err2 != nil {
		return true // validated at load; treat unparseable as always-open
	}
	m := minuteOfDay(t.In(loc))
	return m >= start && m <= end
}

// CutoffAt returns the hard stop instant on the same day as now.
func (s SessionConfig) CutoffAt(now time.Time, loc *time.Location) (time.Time, error) {
	c, err := parseClock(s.Cutoff)
	if err != nil {
		return time.Time{}, err
	}
	local := now.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), c/60, c%60, 0, 0, loc), nil
}

// HealthConfig holds the health/stats HTTP server settings.
type HealthConfig struct {
	Port int `yaml:"port"`
}

// parseClock parses "HH:MM" into minutes since midnight.
func parseClock(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("parse clock %q: %w", s, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}

func minuteOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}
