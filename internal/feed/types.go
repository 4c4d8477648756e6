package feed

import (
	"context"
	"errors"
	"time"
)

// Errors
var (
	ErrNotConnected  = errors.New("not connected")
	ErrAlreadyClosed = errors.New("already closed")
)

// Mode selects the packet depth the feed sends for a subscription.
type Mode string

const (
	ModeLTP   Mode = "ltp"
	ModeQuote Mode = "quote"
	ModeFull  Mode = "full"
)

// Conn is the subscription surface the recorder needs from the feed.
// The concrete client owns connection lifecycle and wire framing.
type Conn interface {
	// Connect establishes the WebSocket connection and starts delivery.
	Connect(ctx context.Context) error

	// Close gracefully closes the connection.
	Close() error

	// Subscribe adds instrument tokens to the feed subscription.
	Subscribe(tokens []uint32) error

	// Unsubscribe removes instrument tokens from the feed subscription.
	Unsubscribe(tokens []uint32) error

	// SetMode switches the packet mode for the given tokens.
	SetMode(mode Mode, tokens []uint32) error

	// IsConnected returns current connection state.
	IsConnected() bool
}

// command is a JSON control frame sent to the feed.
type command struct {
	Action string `json:"a"`
	Value  any    `json:"v"`
}

// incomingText is a JSON text frame from the feed (errors, postbacks).
type incomingText struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// ClientConfig configures the feed client.
type ClientConfig struct {
	URL                string        // WebSocket URL (e.g., wss://ws.kite.trade)
	APIKey             string        // API key, sent as a query parameter
	AccessToken        string        // Session access token, sent as a query parameter
	WriteTimeout       time.Duration // Write deadline for command frames
	ReconnectBaseDelay time.Duration // Base wait time for reconnection
	ReconnectMaxDelay  time.Duration // Max wait time for reconnection
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		URL:                "wss://ws.kite.trade",
		WriteTimeout:       5 * time.Second,
		ReconnectBaseDelay: 1 * time.Second,
		ReconnectMaxDelay:  60 * time.Second,
	}
}
