package repository

import (
	"context"
	"time"

	"TickFlow/internal/domain/models"
)

// QuoteListener receives normalized quote updates for a subscribed symbol.
// Implementations must tolerate partial updates; an error return is logged
// by the dispatcher and never stops the stream.
type QuoteListener interface {
	OnQuote(ctx context.Context, update *models.QuoteUpdate) error
}

// QuoteListenerFunc adapts a function to QuoteListener.
type QuoteListenerFunc func(ctx context.Context, update *models.QuoteUpdate) error

func (f QuoteListenerFunc) OnQuote(ctx context.Context, update *models.QuoteUpdate) error {
	return f(ctx, update)
}

// QuoteStream is a streaming quote protocol client. Subscriptions survive
// reconnects; session state does not.
type QuoteStream interface {
	Start(ctx context.Context) error
	Stop() error
	Subscribe(symbol, exchange string, listener QuoteListener) (string, error)
	Unsubscribe(symbol, exchange string) error
	IsConnected() bool
	SubscriptionCount() int
}

// BarStore persists completed bars. Upsert is keyed by
// (symbol, exchange, interval, bar_start) and must be idempotent: a window
// flushed twice keeps its original creation timestamp.
type BarStore interface {
	UpsertBar(ctx context.Context, bar *models.Bar) error
	QueryBars(ctx context.Context, symbol, exchange string, interval models.Interval, from, to time.Time, limit int) ([]*models.Bar, error)
	Health(ctx context.Context) error
	Close() error
}

// BarPublisher emits completed bars to a message broker for downstream
// consumers.
type BarPublisher interface {
	Publish(ctx context.Context, bar *models.Bar) error
	Close() error
}

// Metrics records operational counters for the stream and aggregator.
type Metrics interface {
	RecordTickReceived(symbol string)
	RecordBarFlushed(backend, interval string)
	RecordTickDropped(reason string)
	RecordError(kind string)
	RecordLastPrice(symbol string, price float64)
	RecordReconnect()
	RecordLatency(op string, seconds float64)
}
