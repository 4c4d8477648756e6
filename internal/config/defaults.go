package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultWSURL              = "wss://ws.kite.trade"
	DefaultCatalogURL         = "https://api.kite.trade/instruments"
	DefaultCatalogTimeout     = 30 * time.Second
	DefaultCatalogMaxRetries  = 3
	DefaultFeedBufferSize     = 4096
	DefaultFeedWriteTimeout   = 5 * time.Second
	DefaultReconnectBaseDelay = 1 * time.Second
	DefaultReconnectMaxDelay  = 60 * time.Second
	DefaultQueueCapacity      = 200_000
	DefaultFlushInterval      = 50 * time.Millisecond
	DefaultStrikeStep         = 50
	DefaultBandWidth          = 2
	DefaultTimezone           = "Asia/Kolkata"
	DefaultSessionStart       = "09:15"
	DefaultSessionEnd         = "15:30"
	DefaultSessionCutoff      = "15:15"
	DefaultHealthPort         = 8080
	DefaultDBPort             = 5432
	DefaultDBSSLMode          = "prefer"
	DefaultDBMaxConns         = 10
	DefaultDBMinConns         = 2
	DefaultPostgresTable      = "ticks"
)

func (c *RecorderConfig) applyDefaults() {
	// Feed defaults
	if c.Feed.WSURL == "" {
		c.Feed.WSURL = DefaultWSURL
	}
	if c.Feed.BufferSize == 0 {
		c.Feed.BufferSize = DefaultFeedBufferSize
	}
	if c.Feed.WriteTimeout == 0 {
		c.Feed.WriteTimeout = DefaultFeedWriteTimeout
	}
	if c.Feed.ReconnectBaseDelay == 0 {
		c.Feed.ReconnectBaseDelay = DefaultReconnectBaseDelay
	}
	if c.Feed.ReconnectMaxDelay == 0 {
		c.Feed.ReconnectMaxDelay = DefaultReconnectMaxDelay
	}

	// Catalog defaults
	if c.Catalog.URL == "" {
		c.Catalog.URL = DefaultCatalogURL
	}
	if c.Catalog.Timeout == 0 {
		c.Catalog.Timeout = DefaultCatalogTimeout
	}
	if c.Catalog.MaxRetries == 0 {
		c.Catalog.MaxRetries = DefaultCatalogMaxRetries
	}

	// Queue and writer defaults
	if c.Queue.Capacity == 0 {
		c.Queue.Capacity = DefaultQueueCapacity
	}
	if c.Writer.FlushInterval == 0 {
		c.Writer.FlushInterval = DefaultFlushInterval
	}

	// Band defaults
	if c.Band.StrikeStep == 0 {
		c.Band.StrikeStep = DefaultStrikeStep
	}
	if c.Band.Width == 0 {
		c.Band.Width = DefaultBandWidth
	}

	// Session defaults
	if c.Session.Timezone == "" {
		c.Session.Timezone = DefaultTimezone
	}
	if c.Session.Start == "" {
		c.Session.Start = DefaultSessionStart
	}
	if c.Session.End == "" {
		c.Session.End = DefaultSessionEnd
	}
	if c.Session.Cutoff == "" {
		c.Session.Cutoff = DefaultSessionCutoff
	}

	// Health defaults
	if c.Health.Port == 0 {
		c.Health.Port = DefaultHealthPort
	}

	// Postgres sink defaults
	if c.Sinks.Postgres.Enabled {
		if c.Sinks.Postgres.Table == "" {
			c.Sinks.Postgres.Table = DefaultPostgresTable
		}
		applyDBDefaults(&c.Sinks.Postgres.DB)
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultDBMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultDBMinConns
	}
}
