package tradingview

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"TickFlow/internal/domain/models"
	drepo "TickFlow/internal/domain/repository"
	applogger "TickFlow/pkg/logger"

	"github.com/gorilla/websocket"
)

// ErrNotConnected is returned by Subscribe while the transport is down.
var ErrNotConnected = errors.New("tradingview: not connected")

// Config holds streaming client settings.
type Config struct {
	URL          string
	Origin       string
	UserAgent    string
	ReconnectMin time.Duration
	ReconnectMax time.Duration
	DialTimeout  time.Duration
	WriteTimeout time.Duration
}

func (c *Config) applyDefaults() {
	if c.ReconnectMin <= 0 {
		c.ReconnectMin = time.Second
	}
	if c.ReconnectMax <= 0 {
		c.ReconnectMax = 60 * time.Second
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = 10 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
}

// backoff produces doubling delays between a floor and a ceiling.
type backoff struct {
	min, max time.Duration
	current  time.Duration
}

func newBackoff(min, max time.Duration) *backoff {
	return &backoff{min: min, max: max, current: min}
}

// Next returns the delay to sleep before the upcoming attempt and doubles
// the stored delay up to the ceiling.
func (b *backoff) Next() time.Duration {
	d := b.current
	b.current *= 2
	if b.current > b.max {
		b.current = b.max
	}
	return d
}

func (b *backoff) Reset() { b.current = b.min }

// Client implements drepo.QuoteStream over the reverse-engineered streaming
// quote protocol. One goroutine owns the read loop; writes are serialized
// by writeMu. Subscriptions are retained across reconnects and replayed
// after every successful connect.
type Client struct {
	cfg     Config
	logger  *applogger.Logger
	metrics drepo.Metrics

	mu        sync.Mutex // guards conn, session, connected
	conn      *websocket.Conn
	session   *Session
	connected bool

	writeMu sync.Mutex

	subMu sync.RWMutex
	subs  map[string]drepo.QuoteListener

	runMu   sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// New creates a streaming quote client.
func New(cfg Config, logger *applogger.Logger, metrics drepo.Metrics) *Client {
	cfg.applyDefaults()
	return &Client{
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
		subs:    make(map[string]drepo.QuoteListener),
	}
}

// Start connects and launches the receive loop with auto-reconnect. It
// returns after the first connect attempt is scheduled; connection failures
// are retried with backoff until Stop is called.
func (c *Client) Start(ctx context.Context) error {
	c.runMu.Lock()
	if c.running {
		c.runMu.Unlock()
		return nil
	}
	c.running = true
	c.stopCh = make(chan struct{})
	c.doneCh = make(chan struct{})
	c.runMu.Unlock()

	go c.runForever(ctx)
	return nil
}

// Stop flips the running flag, tears down the transport, and waits for the
// receive loop to exit. Safe to call more than once.
func (c *Client) Stop() error {
	c.runMu.Lock()
	if !c.running {
		c.runMu.Unlock()
		return nil
	}
	c.running = false
	close(c.stopCh)
	done := c.doneCh
	c.runMu.Unlock()

	c.closeConn()
	<-done
	return nil
}

func (c *Client) isRunning() bool {
	c.runMu.Lock()
	defer c.runMu.Unlock()
	return c.running
}

// IsConnected reports whether the transport is up and the session is live.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil && c.connected
}

// SubscriptionCount returns the number of retained subscriptions.
func (c *Client) SubscriptionCount() int {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	return len(c.subs)
}

// Subscribe registers a listener for a symbol and announces it on the wire.
// Returns the canonical symbol key. Fails with ErrNotConnected while the
// transport is down. If the wire send fails after registration the
// subscription is retained and replayed on the next reconnect.
func (c *Client) Subscribe(symbol, exchange string, listener drepo.QuoteListener) (string, error) {
	if !c.IsConnected() {
		return "", ErrNotConnected
	}

	symbolKey := models.SymbolKey(symbol, exchange)

	c.subMu.Lock()
	c.subs[symbolKey] = listener
	c.subMu.Unlock()

	if err := c.sendMessage("quote_add_symbols", []interface{}{c.sessionID(), symbolKey}); err != nil {
		return "", fmt.Errorf("subscribe %s: %w", symbolKey, err)
	}

	c.logger.Info("tradingview: subscribed", applogger.String("symbol", symbolKey))
	return symbolKey, nil
}

// Unsubscribe removes the listener and announces the removal. A no-op if
// the symbol was never subscribed or the client is disconnected.
func (c *Client) Unsubscribe(symbol, exchange string) error {
	symbolKey := models.SymbolKey(symbol, exchange)

	c.subMu.Lock()
	_, ok := c.subs[symbolKey]
	if ok {
		delete(c.subs, symbolKey)
	}
	c.subMu.Unlock()

	if !ok || !c.IsConnected() {
		return nil
	}

	if err := c.sendMessage("quote_remove_symbols", []interface{}{c.sessionID(), symbolKey}); err != nil {
		return fmt.Errorf("unsubscribe %s: %w", symbolKey, err)
	}

	c.logger.Info("tradingview: unsubscribed", applogger.String("symbol", symbolKey))
	return nil
}

// connect dials the transport, creates a fresh session, negotiates the
// field list, and replays all retained subscriptions.
func (c *Client) connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: c.cfg.DialTimeout}

	header := http.Header{}
	if c.cfg.Origin != "" {
		header.Set("Origin", c.cfg.Origin)
	}
	if c.cfg.UserAgent != "" {
		header.Set("User-Agent", c.cfg.UserAgent)
	}

	conn, _, err := dialer.DialContext(ctx, c.cfg.URL, header)
	if err != nil {
		return fmt.Errorf("tradingview dial: %w", err)
	}

	session := NewSession()

	c.mu.Lock()
	c.conn = conn
	c.session = session
	c.connected = true
	c.mu.Unlock()

	if err := c.sendMessage("quote_create_session", []interface{}{session.ID()}); err != nil {
		c.closeConn()
		return err
	}

	fieldParams := make([]interface{}, 0, len(QuoteFields)+1)
	fieldParams = append(fieldParams, session.ID())
	for _, f := range QuoteFields {
		fieldParams = append(fieldParams, f)
	}
	if err := c.sendMessage("quote_set_fields", fieldParams); err != nil {
		c.closeConn()
		return err
	}

	c.subMu.RLock()
	keys := make([]string, 0, len(c.subs))
	for k := range c.subs {
		keys = append(keys, k)
	}
	c.subMu.RUnlock()

	for _, symbolKey := range keys {
		if err := c.sendMessage("quote_add_symbols", []interface{}{session.ID(), symbolKey}); err != nil {
			c.closeConn()
			return err
		}
	}

	c.logger.Info("tradingview: connected",
		applogger.String("session", session.ID()),
		applogger.Int("resubscribed", len(keys)))
	return nil
}

// runForever drives connect + read until Stop. Backoff resets on every
// successful connect and doubles between failed attempts up to the ceiling.
func (c *Client) runForever(ctx context.Context) {
	defer close(c.doneCh)

	bo := newBackoff(c.cfg.ReconnectMin, c.cfg.ReconnectMax)

	for c.isRunning() {
		if !c.IsConnected() {
			if err := c.connect(ctx); err != nil {
				c.logger.Warn("tradingview: connect failed", applogger.Error(err))
				c.metrics.RecordError("connect")
				if !c.sleep(bo.Next()) {
					return
				}
				continue
			}
			bo.Reset()
		}

		if err := c.readLoop(ctx); err != nil {
			if !c.isRunning() {
				return
			}
			c.logger.Warn("tradingview: connection lost", applogger.Error(err))
			c.metrics.RecordReconnect()
			c.closeConn()
			if !c.sleep(bo.Next()) {
				return
			}
		}
	}
}

// sleep waits d or returns false immediately when Stop is called.
func (c *Client) sleep(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-c.stopCh:
		return false
	case <-t.C:
		return true
	}
}

// readLoop consumes chunks until the transport fails or the client stops.
func (c *Client) readLoop(ctx context.Context) error {
	for c.isRunning() {
		conn := c.currentConn()
		if conn == nil {
			return errors.New("tradingview: connection cleared")
		}

		_, raw, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("tradingview read: %w", err)
		}

		chunk := string(raw)

		for _, reply := range HeartbeatReplies(chunk) {
			if err := c.writeRaw(reply); err != nil {
				c.logger.Debug("tradingview: heartbeat echo failed", applogger.Error(err))
			}
		}

		for _, msg := range DecodeFrames(chunk) {
			c.handleMessage(ctx, msg)
		}
	}
	return nil
}

func (c *Client) handleMessage(ctx context.Context, msg Message) {
	switch msg.Method {
	case "qsd":
		c.handleQuoteUpdate(ctx, msg.Params)
	case "quote_completed":
		c.logger.Debug("tradingview: quote completed")
	case "critical_error", "protocol_error":
		c.metrics.RecordError(msg.Method)
		c.logger.Error("tradingview: protocol reported error",
			applogger.String("method", msg.Method))
	}
}

// handleQuoteUpdate validates the session id, decodes the field map, and
// dispatches to the registered listener. Listener errors are logged and
// never break the loop.
func (c *Client) handleQuoteUpdate(ctx context.Context, params []json.RawMessage) {
	if len(params) < 2 {
		return
	}

	c.mu.Lock()
	session := c.session
	c.mu.Unlock()
	if session == nil || !session.Matches(params[0]) {
		// Stale update from a session that predates the last reconnect.
		return
	}

	var data quoteData
	if err := json.Unmarshal(params[1], &data); err != nil {
		c.logger.Debug("tradingview: bad quote payload", applogger.Error(err))
		return
	}
	if data.Name == "" {
		return
	}

	update := &models.QuoteUpdate{
		SymbolKey:     data.Name,
		Timestamp:     time.Now().UTC(),
		LastPrice:     data.Values.LastPrice,
		Volume:        data.Values.Volume,
		Bid:           data.Values.Bid,
		Ask:           data.Values.Ask,
		Change:        data.Values.Change,
		ChangePercent: data.Values.ChangePercent,
		OpenPrice:     data.Values.OpenPrice,
		HighPrice:     data.Values.HighPrice,
		LowPrice:      data.Values.LowPrice,
		PrevClose:     data.Values.PrevClose,
	}

	c.subMu.RLock()
	listener := c.subs[data.Name]
	c.subMu.RUnlock()
	if listener == nil {
		return
	}

	if err := listener.OnQuote(ctx, update); err != nil {
		c.metrics.RecordError("listener")
		c.logger.Error("tradingview: listener failed",
			applogger.String("symbol", data.Name), applogger.Error(err))
	}
}

func (c *Client) sendMessage(method string, params []interface{}) error {
	frame, err := EncodeFrame(method, params)
	if err != nil {
		return err
	}
	return c.writeRaw(frame)
}

func (c *Client) writeRaw(frame string) error {
	conn := c.currentConn()
	if conn == nil {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	return conn.WriteMessage(websocket.TextMessage, []byte(frame))
}

func (c *Client) currentConn() *websocket.Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn
}

func (c *Client) sessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return ""
	}
	return c.session.ID()
}

func (c *Client) closeConn() {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.connected = false
	c.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
}
