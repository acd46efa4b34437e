package usecase

import (
	"testing"
	"time"

	"TickFlow/internal/domain/models"
)

func f64(v float64) *float64 { return &v }

func TestBarBuilderOHLCV(t *testing.T) {
	start := time.Date(2024, 10, 10, 14, 0, 0, 0, time.UTC)
	b := NewBarBuilder("BTCUSDT", "BINANCE", models.Interval1m, start)

	ticks := []struct {
		price  float64
		volume float64
		offset time.Duration
	}{
		{10, 100, 5 * time.Second},
		{12, 50, 20 * time.Second},
		{8, 75, 40 * time.Second},
	}
	for _, tk := range ticks {
		if !b.AddTick(tk.price, f64(tk.volume), start.Add(tk.offset)) {
			t.Fatalf("tick at %v rejected", tk.offset)
		}
	}

	bar := b.Snapshot()
	if bar == nil {
		t.Fatal("expected snapshot")
	}
	if bar.Open != 10 || bar.High != 12 || bar.Low != 8 || bar.Close != 8 {
		t.Fatalf("OHLC = %v %v %v %v", bar.Open, bar.High, bar.Low, bar.Close)
	}
	if bar.Volume != 225 {
		t.Fatalf("volume = %v", bar.Volume)
	}
	if bar.TickCount != 3 {
		t.Fatalf("tick count = %d", bar.TickCount)
	}
	if !bar.BarEnd.Equal(start.Add(time.Minute)) {
		t.Fatalf("bar end = %v", bar.BarEnd)
	}
}

func TestBarBuilderWindowBounds(t *testing.T) {
	start := time.Date(2024, 10, 10, 14, 0, 0, 0, time.UTC)
	b := NewBarBuilder("AAPL", "NASDAQ", models.Interval1m, start)

	if b.AddTick(100, nil, start.Add(-time.Second)) {
		t.Fatal("tick before window accepted")
	}
	if !b.AddTick(100, nil, start) {
		t.Fatal("tick at window start rejected")
	}
	if b.AddTick(100, nil, start.Add(time.Minute)) {
		t.Fatal("tick at window end accepted, end must be exclusive")
	}
	if b.Snapshot().TickCount != 1 {
		t.Fatalf("rejected ticks mutated the bar: %d", b.Snapshot().TickCount)
	}
}

func TestBarBuilderNilVolume(t *testing.T) {
	start := time.Date(2024, 10, 10, 14, 0, 0, 0, time.UTC)
	b := NewBarBuilder("AAPL", "NASDAQ", models.Interval1m, start)

	b.AddTick(100, nil, start)
	b.AddTick(101, f64(30), start.Add(time.Second))

	if got := b.Snapshot().Volume; got != 30 {
		t.Fatalf("volume = %v", got)
	}
}

func TestBarBuilderEmpty(t *testing.T) {
	start := time.Date(2024, 10, 10, 14, 0, 0, 0, time.UTC)
	b := NewBarBuilder("AAPL", "NASDAQ", models.Interval1m, start)

	if !b.IsEmpty() {
		t.Fatal("new builder should be empty")
	}
	if b.Snapshot() != nil {
		t.Fatal("empty builder must snapshot to nil")
	}
	if !b.IsComplete(start.Add(time.Minute)) {
		t.Fatal("window should be complete at bar end")
	}
	if b.IsComplete(start.Add(59 * time.Second)) {
		t.Fatal("window should still be open")
	}
}
