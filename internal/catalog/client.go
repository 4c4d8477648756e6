package catalog

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rgovind/kite-ticks/internal/model"
)

// Client fetches the exchange instrument dump. The dump is a single
// bulk CSV listing every tradeable instrument with its token, symbol,
// underlying name, strike, option type and expiry.
type Client struct {
	url        string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger

	maxRetries   int
	retryBackoff time.Duration
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// NewClient creates a new instrument dump client.
func NewClient(url, apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		url:    url,
		apiKey: apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger:       slog.Default(),
		maxRetries:   3,
		retryBackoff: time.Second,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithRetries sets the retry configuration.
func WithRetries(max int, backoff time.Duration) ClientOption {
	return func(c *Client) {
		c.maxRetries = max
		c.retryBackoff = backoff
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// Instruments downloads and parses the full instrument dump.
func (c *Client) Instruments(ctx context.Context) ([]model.Instrument, error) {
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			c.logger.Warn("retrying instrument dump fetch",
				"attempt", attempt,
				"error", lastErr,
			)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.retryBackoff * time.Duration(attempt)):
			}
		}

		instruments, err := c.fetch(ctx)
		if err == nil {
			return instruments, nil
		}
		lastErr = err
	}

	return nil, fmt.Errorf("fetch instrument dump: %w", lastErr)
}

func (c *Client) fetch(ctx context.Context) ([]model.Instrument, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("X-Kite-Version", "3")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "token "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("instrument dump returned status %d", resp.StatusCode)
	}

	start := time.Now()
	instruments, err := c.parse(resp.Body)
	if err != nil {
		return nil, err
	}

	c.logger.Info("instrument dump fetched",
		"count", len(instruments),
		"duration", time.Since(start),
	)
	return instruments, nil
}

// parse reads the CSV dump. Rows that fail to parse are skipped; the
// next catalog fetch supersedes them.
func (c *Client) parse(r io.Reader) ([]model.Instrument, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}

	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.TrimSpace(name)] = i
	}
	for _, required := range []string{"instrument_token", "tradingsymbol", "name", "expiry", "strike", "instrument_type"} {
		if _, ok := col[required]; !ok {
			return nil, fmt.Errorf("instrument dump missing column %q", required)
		}
	}

	var instruments []model.Instrument
	var skipped int

	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv row: %w", err)
		}

		inst, ok := parseRow(row, col)
		if !ok {
			skipped++
			continue
		}
		instruments = append(instruments, inst)
	}

	if skipped > 0 {
		c.logger.Warn("skipped malformed instrument rows", "count", skipped)
	}
	return instruments, nil
}

func parseRow(row []string, col map[string]int) (model.Instrument, bool) {
	field := func(name string) string {
		i, ok := col[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	token, err := strconv.ParseUint(field("instrument_token"), 10, 32)
	if err != nil {
		return model.Instrument{}, false
	}

	inst := model.Instrument{
		InstrumentToken: uint32(token),
		TradingSymbol:   strings.ToUpper(field("tradingsymbol")),
		Name:            strings.ToUpper(field("name")),
		InstrumentType:  strings.ToUpper(field("instrument_type")),
		Segment:         field("segment"),
		Exchange:        field("exchange"),
	}

	if et, err := strconv.ParseUint(field("exchange_token"), 10, 32); err == nil {
		inst.ExchangeToken = uint32(et)
	}
	if strike, err := strconv.ParseFloat(field("strike"), 64); err == nil {
		inst.Strike = strike
	}
	if expiry := field("expiry"); expiry != "" {
		if d, err := time.Parse("2006-01-02", expiry); err == nil {
			inst.Expiry = d
		}
	}

	if inst.TradingSymbol == "" {
		return model.Instrument{}, false
	}
	return inst, true
}
