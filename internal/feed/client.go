package feed

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rgovind/kite-ticks/internal/model"
)

// Client is a WebSocket feed client. Tick batches are delivered
// sequentially on a single goroutine via the OnTicks callback, never
// concurrently with themselves.
type Client struct {
	cfg    ClientConfig
	logger *slog.Logger

	conn *websocket.Conn
	done chan struct{}

	// Write serialization
	writeMu sync.Mutex

	// State
	mu        sync.RWMutex
	connected bool
	closed    bool

	// Callbacks, registered before Connect.
	onTicks   func([]model.Tick)
	onConnect func()
	onError   func(code int, reason string)
	onClose   func(code int, reason string)
}

// NewClient creates a new feed client.
func NewClient(cfg ClientConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:    cfg,
		logger: logger,
		done:   make(chan struct{}),
	}
}

// OnTicks registers the tick batch callback.
func (c *Client) OnTicks(fn func([]model.Tick)) { c.onTicks = fn }

// OnConnect registers the connect callback. It also fires after a
// successful reconnect, so subscriptions can be re-established.
func (c *Client) OnConnect(fn func()) { c.onConnect = fn }

// OnError registers the feed error callback.
func (c *Client) OnError(fn func(code int, reason string)) { c.onError = fn }

// OnClose registers the connection close callback.
func (c *Client) OnClose(fn func(code int, reason string)) { c.onClose = fn }

// Connect establishes the WebSocket connection and starts the read loop.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrAlreadyClosed
	}
	c.mu.Unlock()

	conn, err := c.dial(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()

	c.logger.Debug("feed connected", "url", c.cfg.URL)

	if c.onConnect != nil {
		c.onConnect()
	}

	go c.readLoop(ctx)

	return nil
}

// Close gracefully closes the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.connected = false
	conn := c.conn
	c.mu.Unlock()

	close(c.done)

	if conn != nil {
		conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		return conn.Close()
	}
	return nil
}

// Subscribe adds tokens to the feed subscription.
func (c *Client) Subscribe(tokens []uint32) error {
	if len(tokens) == 0 {
		return nil
	}
	return c.sendCommand(command{Action: "subscribe", Value: tokens})
}

// Unsubscribe removes tokens from the feed subscription.
func (c *Client) Unsubscribe(tokens []uint32) error {
	if len(tokens) == 0 {
		return nil
	}
	return c.sendCommand(command{Action: "unsubscribe", Value: tokens})
}

// SetMode switches the packet mode for the given tokens.
func (c *Client) SetMode(mode Mode, tokens []uint32) error {
	if len(tokens) == 0 {
		return nil
	}
	return c.sendCommand(command{Action: "mode", Value: []any{string(mode), tokens}})
}

// IsConnected returns the current connection state.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	u, err := url.Parse(c.cfg.URL)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("api_key", c.cfg.APIKey)
	q.Set("access_token", c.cfg.AccessToken)
	u.RawQuery = q.Encode()

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	return conn, err
}

func (c *Client) sendCommand(cmd command) error {
	c.mu.RLock()
	if !c.connected {
		c.mu.RUnlock()
		return ErrNotConnected
	}
	conn := c.conn
	c.mu.RUnlock()

	data, err := json.Marshal(cmd)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	return conn.WriteMessage(websocket.TextMessage, data)
}

// readLoop reads frames off the wire and dispatches tick batches. On
// read failure it reconnects with exponential backoff unless Close was
// called.
func (c *Client) readLoop(ctx context.Context) {
	for {
		c.mu.RLock()
		conn := c.conn
		c.mu.RUnlock()

		msgType, data, err := conn.ReadMessage()
		receivedAt := time.Now()

		if err != nil {
			select {
			case <-c.done:
				return
			default:
			}

			c.mu.Lock()
			c.connected = false
			c.mu.Unlock()

			code := websocket.CloseAbnormalClosure
			if ce, ok := err.(*websocket.CloseError); ok {
				code = ce.Code
			}
			c.logger.Warn("feed read failed", "error", err)
			if c.onClose != nil {
				c.onClose(code, err.Error())
			}

			if !c.reconnect(ctx) {
				return
			}
			continue
		}

		switch msgType {
		case websocket.BinaryMessage:
			ticks := parseBinary(data, receivedAt)
			if len(ticks) > 0 && c.onTicks != nil {
				c.onTicks(ticks)
			}

		case websocket.TextMessage:
			c.handleText(data)
		}
	}
}

// handleText processes JSON control frames (errors, order postbacks).
func (c *Client) handleText(data []byte) {
	var msg incomingText
	if err := json.Unmarshal(data, &msg); err != nil {
		c.logger.Warn("unparseable text frame from feed", "error", err)
		return
	}

	if msg.Type == "error" {
		reason, _ := msg.Data.(string)
		c.logger.Error("feed error frame", "reason", reason)
		if c.onError != nil {
			c.onError(0, reason)
		}
	}
}

// reconnect redials with exponential backoff until it succeeds or the
// client is closed. Returns false when the client is done.
func (c *Client) reconnect(ctx context.Context) bool {
	delay := c.cfg.ReconnectBaseDelay

	for {
		select {
		case <-c.done:
			return false
		case <-ctx.Done():
			return false
		case <-time.After(delay):
		}

		c.logger.Info("reconnecting to feed", "delay", delay)

		conn, err := c.dial(ctx)
		if err == nil {
			c.mu.Lock()
			c.conn = conn
			c.connected = true
			c.mu.Unlock()

			c.logger.Info("feed reconnected")
			if c.onConnect != nil {
				c.onConnect()
			}
			return true
		}

		c.logger.Warn("reconnect failed", "error", err)
		delay *= 2
		if delay > c.cfg.ReconnectMaxDelay {
			delay = c.cfg.ReconnectMaxDelay
		}
	}
}
