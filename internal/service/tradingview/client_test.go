package tradingview

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"TickFlow/internal/domain/models"
	drepo "TickFlow/internal/domain/repository"
	applogger "TickFlow/pkg/logger"

	"github.com/gorilla/websocket"
)

type noopMetrics struct{}

func (noopMetrics) RecordTickReceived(string)       {}
func (noopMetrics) RecordBarFlushed(string, string) {}
func (noopMetrics) RecordTickDropped(string)        {}
func (noopMetrics) RecordError(string)              {}
func (noopMetrics) RecordLastPrice(string, float64) {}
func (noopMetrics) RecordReconnect()                {}
func (noopMetrics) RecordLatency(string, float64)   {}

// wsServer is a scripted protocol endpoint for client tests.
type wsServer struct {
	srv      *httptest.Server
	upgrader websocket.Upgrader
	inbound  chan string

	mu    sync.Mutex
	conns []*websocket.Conn
}

func newWSServer(t *testing.T) *wsServer {
	t.Helper()
	s := &wsServer{inbound: make(chan string, 64)}
	s.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		s.mu.Lock()
		s.conns = append(s.conns, conn)
		s.mu.Unlock()
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				return
			}
			s.inbound <- string(raw)
		}
	}))
	t.Cleanup(s.srv.Close)
	return s
}

func (s *wsServer) url() string {
	return "ws" + strings.TrimPrefix(s.srv.URL, "http")
}

func (s *wsServer) lastConn(t *testing.T) *websocket.Conn {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.conns) == 0 {
		t.Fatal("no server-side connection")
	}
	return s.conns[len(s.conns)-1]
}

func (s *wsServer) send(t *testing.T, frame string) {
	t.Helper()
	if err := s.lastConn(t).WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
		t.Fatalf("server send: %v", err)
	}
}

func (s *wsServer) dropConn(t *testing.T) {
	t.Helper()
	_ = s.lastConn(t).Close()
}

// nextMessage waits for one decoded client message.
func (s *wsServer) nextMessage(t *testing.T) Message {
	t.Helper()
	select {
	case raw := <-s.inbound:
		msgs := DecodeFrames(raw)
		if len(msgs) != 1 {
			t.Fatalf("expected one message per frame, got %d in %q", len(msgs), raw)
		}
		return msgs[0]
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for client message")
		return Message{}
	}
}

func (s *wsServer) nextRaw(t *testing.T) string {
	t.Helper()
	select {
	case raw := <-s.inbound:
		return raw
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for client frame")
		return ""
	}
}

func stringParam(t *testing.T, m Message, i int) string {
	t.Helper()
	var s string
	if err := json.Unmarshal(m.Params[i], &s); err != nil {
		t.Fatalf("param %d of %s: %v", i, m.Method, err)
	}
	return s
}

func testLogger(t *testing.T) *applogger.Logger {
	t.Helper()
	l, err := applogger.New(&applogger.Config{Level: "error", Format: "console", Output: "stderr"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return l
}

func startClient(t *testing.T, url string) *Client {
	t.Helper()
	c := New(Config{
		URL:          url,
		ReconnectMin: 10 * time.Millisecond,
		ReconnectMax: 80 * time.Millisecond,
	}, testLogger(t), noopMetrics{})
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() { _ = c.Stop() })
	return c
}

func waitConnected(t *testing.T, c *Client) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !c.IsConnected() {
		if time.Now().After(deadline) {
			t.Fatal("client never connected")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// expectHandshake consumes the session setup messages and returns the
// session id the client announced.
func expectHandshake(t *testing.T, s *wsServer) string {
	t.Helper()
	create := s.nextMessage(t)
	if create.Method != "quote_create_session" {
		t.Fatalf("first message = %s, want quote_create_session", create.Method)
	}
	sessionID := stringParam(t, create, 0)

	fields := s.nextMessage(t)
	if fields.Method != "quote_set_fields" {
		t.Fatalf("second message = %s, want quote_set_fields", fields.Method)
	}
	if got := stringParam(t, fields, 0); got != sessionID {
		t.Fatalf("set_fields session = %q, want %q", got, sessionID)
	}
	if len(fields.Params) != len(QuoteFields)+1 {
		t.Fatalf("field count = %d, want %d", len(fields.Params)-1, len(QuoteFields))
	}
	return sessionID
}

func qsdFrame(t *testing.T, sessionID, symbolKey string, lp float64) string {
	t.Helper()
	frame, err := EncodeFrame("qsd", []interface{}{
		sessionID,
		map[string]interface{}{"n": symbolKey, "v": map[string]interface{}{"lp": lp}},
	})
	if err != nil {
		t.Fatalf("encode qsd: %v", err)
	}
	return frame
}

func TestSubscribeWhileDisconnected(t *testing.T) {
	c := New(Config{URL: "ws://127.0.0.1:1"}, testLogger(t), noopMetrics{})
	if _, err := c.Subscribe("AAPL", "NASDAQ", nil); err != ErrNotConnected {
		t.Fatalf("err = %v, want ErrNotConnected", err)
	}
}

func TestSubscribeDispatchAndSessionIsolation(t *testing.T) {
	s := newWSServer(t)
	c := startClient(t, s.url())
	waitConnected(t, c)
	sessionID := expectHandshake(t, s)

	updates := make(chan *models.QuoteUpdate, 8)
	key, err := c.Subscribe("aapl", "nasdaq", drepo.QuoteListenerFunc(
		func(ctx context.Context, u *models.QuoteUpdate) error {
			updates <- u
			return nil
		}))
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if key != "NASDAQ:AAPL" {
		t.Fatalf("key = %q", key)
	}

	add := s.nextMessage(t)
	if add.Method != "quote_add_symbols" || stringParam(t, add, 1) != "NASDAQ:AAPL" {
		t.Fatalf("unexpected message %s %s", add.Method, add.Params)
	}

	// A stale session id must be discarded without side effects.
	s.send(t, qsdFrame(t, "qs_000000000000", key, 99))
	s.send(t, qsdFrame(t, sessionID, key, 123.5))

	select {
	case u := <-updates:
		if u.LastPrice == nil || *u.LastPrice != 123.5 {
			t.Fatalf("got update %+v, want lp=123.5", u)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no update dispatched")
	}
	select {
	case u := <-updates:
		t.Fatalf("unexpected extra update %+v", u)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestReconnectResubscribes(t *testing.T) {
	s := newWSServer(t)
	c := startClient(t, s.url())
	waitConnected(t, c)
	oldSession := expectHandshake(t, s)

	if _, err := c.Subscribe("BTCUSD", "BINANCE", drepo.QuoteListenerFunc(
		func(context.Context, *models.QuoteUpdate) error { return nil })); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if msg := s.nextMessage(t); msg.Method != "quote_add_symbols" {
		t.Fatalf("expected quote_add_symbols, got %s", msg.Method)
	}

	s.dropConn(t)

	newSession := expectHandshake(t, s)
	if newSession == oldSession {
		t.Fatalf("session id not regenerated: %q", newSession)
	}

	re := s.nextMessage(t)
	if re.Method != "quote_add_symbols" {
		t.Fatalf("expected replayed quote_add_symbols, got %s", re.Method)
	}
	if got := stringParam(t, re, 0); got != newSession {
		t.Fatalf("replay used session %q, want %q", got, newSession)
	}
	if got := stringParam(t, re, 1); got != "BINANCE:BTCUSD" {
		t.Fatalf("replayed symbol = %q", got)
	}
	if c.SubscriptionCount() != 1 {
		t.Fatalf("subscription count = %d", c.SubscriptionCount())
	}
}

func TestHeartbeatEcho(t *testing.T) {
	s := newWSServer(t)
	c := startClient(t, s.url())
	waitConnected(t, c)
	expectHandshake(t, s)

	s.send(t, "~m~4~m~~h~9")

	if got := s.nextRaw(t); got != "~m~4~m~~h~9" {
		t.Fatalf("heartbeat echo = %q", got)
	}
}

func TestHeartbeatEchoMultiplePerChunk(t *testing.T) {
	s := newWSServer(t)
	c := startClient(t, s.url())
	waitConnected(t, c)
	expectHandshake(t, s)

	s.send(t, "~m~4~m~~h~1~m~4~m~~h~2")

	if got := s.nextRaw(t); got != "~m~4~m~~h~1" {
		t.Fatalf("first echo = %q", got)
	}
	if got := s.nextRaw(t); got != "~m~4~m~~h~2" {
		t.Fatalf("second echo = %q", got)
	}
}

func TestBackoffGrowth(t *testing.T) {
	bo := newBackoff(time.Second, 60*time.Second)

	var delays []time.Duration
	for i := 0; i < 8; i++ {
		delays = append(delays, bo.Next())
	}

	want := []time.Duration{1, 2, 4, 8, 16, 32, 60, 60}
	for i, w := range want {
		if delays[i] != w*time.Second {
			t.Fatalf("delay[%d] = %v, want %v", i, delays[i], w*time.Second)
		}
	}

	bo.Reset()
	if d := bo.Next(); d != time.Second {
		t.Fatalf("after reset delay = %v", d)
	}
}
