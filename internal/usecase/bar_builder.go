package usecase

import (
	"time"

	"TickFlow/internal/domain/models"
)

// BarBuilder accumulates ticks into one OHLCV bar for one symbol+interval
// window. Not safe for concurrent use; the aggregator serializes access.
type BarBuilder struct {
	symbol   string
	exchange string
	interval models.Interval
	barStart time.Time
	barEnd   time.Time

	open      float64
	high      float64
	low       float64
	close     float64
	volume    float64
	tickCount int
}

// NewBarBuilder creates a builder for the window starting at barStart.
func NewBarBuilder(symbol, exchange string, interval models.Interval, barStart time.Time) *BarBuilder {
	return &BarBuilder{
		symbol:   symbol,
		exchange: exchange,
		interval: interval,
		barStart: barStart,
		barEnd:   models.BarEnd(barStart, interval),
	}
}

// AddTick folds a tick into the bar. Returns false without mutation when
// the timestamp falls outside [barStart, barEnd).
func (b *BarBuilder) AddTick(price float64, volume *float64, ts time.Time) bool {
	if ts.Before(b.barStart) || !ts.Before(b.barEnd) {
		return false
	}

	if b.tickCount == 0 {
		b.open = price
		b.high = price
		b.low = price
	} else {
		if price > b.high {
			b.high = price
		}
		if price < b.low {
			b.low = price
		}
	}
	b.close = price

	if volume != nil {
		b.volume += *volume
	}
	b.tickCount++

	return true
}

// IsComplete reports whether the window has closed relative to now.
func (b *BarBuilder) IsComplete(now time.Time) bool {
	return !now.Before(b.barEnd)
}

// IsEmpty reports whether no tick has been accepted yet. Empty bars are
// never flushed or published as current.
func (b *BarBuilder) IsEmpty() bool {
	return b.tickCount == 0
}

// BarStart returns the window's aligned start.
func (b *BarBuilder) BarStart() time.Time { return b.barStart }

// Snapshot copies the current state into an immutable Bar. Returns nil for
// an empty builder.
func (b *BarBuilder) Snapshot() *models.Bar {
	if b.IsEmpty() {
		return nil
	}
	return &models.Bar{
		Symbol:    b.symbol,
		Exchange:  b.exchange,
		Interval:  b.interval,
		BarStart:  b.barStart,
		BarEnd:    b.barEnd,
		Open:      b.open,
		High:      b.high,
		Low:       b.low,
		Close:     b.close,
		Volume:    b.volume,
		TickCount: b.tickCount,
	}
}
