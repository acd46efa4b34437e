package usecase

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"TickFlow/internal/domain/models"
	"TickFlow/pkg/cache"
	applogger "TickFlow/pkg/logger"
)

type nopMetrics struct{}

func (nopMetrics) RecordTickReceived(string)       {}
func (nopMetrics) RecordBarFlushed(string, string) {}
func (nopMetrics) RecordTickDropped(string)        {}
func (nopMetrics) RecordError(string)              {}
func (nopMetrics) RecordLastPrice(string, float64) {}
func (nopMetrics) RecordReconnect()                {}
func (nopMetrics) RecordLatency(string, float64)   {}

// recordingStore counts upserts per window key so tests can assert both
// flush counts and idempotency semantics.
type recordingStore struct {
	mu      sync.Mutex
	upserts map[string]int
	bars    []*models.Bar
}

func newRecordingStore() *recordingStore {
	return &recordingStore{upserts: make(map[string]int)}
}

func windowKey(bar *models.Bar) string {
	return fmt.Sprintf("%s|%s|%d", bar.SymbolKey(), bar.Interval, bar.BarStart.Unix())
}

func (s *recordingStore) UpsertBar(_ context.Context, bar *models.Bar) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upserts[windowKey(bar)]++
	s.bars = append(s.bars, bar)
	return nil
}

func (s *recordingStore) QueryBars(context.Context, string, string, models.Interval, time.Time, time.Time, int) ([]*models.Bar, error) {
	return nil, nil
}

func (s *recordingStore) Health(context.Context) error { return nil }
func (s *recordingStore) Close() error                 { return nil }

func (s *recordingStore) flushCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.bars)
}

func testAggLogger(t *testing.T) *applogger.Logger {
	t.Helper()
	l, err := applogger.New(&applogger.Config{Level: "error", Format: "console", Output: "stderr"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return l
}

func newTestAggregator(t *testing.T, intervals []models.Interval) (*BarAggregator, *recordingStore, cache.Service) {
	t.Helper()
	store := newRecordingStore()
	proc := NewBarProcessor(store, nil, nopMetrics{}, "clickhouse")
	mem := cache.NewMemoryCache()
	t.Cleanup(func() { _ = mem.Close() })
	agg := NewBarAggregator(intervals, proc, mem, time.Minute, testAggLogger(t), nopMetrics{})
	return agg, store, mem
}

func tick(price float64, volume *float64, ts time.Time) *models.Tick {
	return &models.Tick{Symbol: "BTCUSDT", Exchange: "BINANCE", Timestamp: ts, Price: price, Volume: volume}
}

func TestAggregatorRolloverFlushesExactlyOnce(t *testing.T) {
	agg, store, _ := newTestAggregator(t, []models.Interval{models.Interval1m})
	ctx := context.Background()

	base := time.Date(2024, 10, 10, 14, 0, 0, 0, time.UTC)
	agg.AddTick(ctx, tick(10, f64(100), base.Add(10*time.Second)))
	agg.AddTick(ctx, tick(12, f64(50), base.Add(40*time.Second)))

	if store.flushCount() != 0 {
		t.Fatalf("flushed before window closed: %d", store.flushCount())
	}

	// First tick of the next window triggers the rollover
	agg.AddTick(ctx, tick(11, f64(20), base.Add(65*time.Second)))

	if store.flushCount() != 1 {
		t.Fatalf("flush count = %d, want 1", store.flushCount())
	}
	flushed := store.bars[0]
	if !flushed.BarStart.Equal(base) {
		t.Fatalf("flushed bar start = %v", flushed.BarStart)
	}
	if flushed.Open != 10 || flushed.Close != 12 || flushed.Volume != 150 {
		t.Fatalf("flushed bar = %+v", flushed)
	}

	// More ticks in the new window must not re-flush the old one
	agg.AddTick(ctx, tick(11.5, nil, base.Add(70*time.Second)))
	if store.flushCount() != 1 {
		t.Fatalf("old window re-flushed: %d", store.flushCount())
	}
}

func TestAggregatorDropsLateTicks(t *testing.T) {
	agg, store, _ := newTestAggregator(t, []models.Interval{models.Interval1m})
	ctx := context.Background()

	base := time.Date(2024, 10, 10, 14, 0, 0, 0, time.UTC)
	agg.AddTick(ctx, tick(10, nil, base.Add(70*time.Second)))
	// Tick from the previous, already-passed window
	agg.AddTick(ctx, tick(99, nil, base.Add(30*time.Second)))

	bar, err := agg.GetCurrentBar(ctx, "BTCUSDT", "BINANCE", models.Interval1m)
	if err != nil {
		t.Fatalf("get current bar: %v", err)
	}
	if bar == nil {
		t.Fatal("expected current bar")
	}
	if bar.TickCount != 1 || bar.Close != 10 {
		t.Fatalf("late tick leaked into bar: %+v", bar)
	}
	if store.flushCount() != 0 {
		t.Fatalf("late tick caused a flush: %d", store.flushCount())
	}
}

func TestAggregatorMultipleIntervals(t *testing.T) {
	agg, store, _ := newTestAggregator(t, []models.Interval{models.Interval1m, models.Interval5m})
	ctx := context.Background()

	base := time.Date(2024, 10, 10, 14, 0, 0, 0, time.UTC)
	agg.AddTick(ctx, tick(10, f64(1), base.Add(30*time.Second)))
	// Crosses the 1m boundary but stays inside the 5m window
	agg.AddTick(ctx, tick(11, f64(1), base.Add(90*time.Second)))

	if store.flushCount() != 1 {
		t.Fatalf("flush count = %d, want only the 1m bar", store.flushCount())
	}
	if store.bars[0].Interval != models.Interval1m {
		t.Fatalf("flushed interval = %s", store.bars[0].Interval)
	}

	bar5, err := agg.GetCurrentBar(ctx, "BTCUSDT", "BINANCE", models.Interval5m)
	if err != nil {
		t.Fatalf("get 5m bar: %v", err)
	}
	if bar5 == nil || bar5.TickCount != 2 {
		t.Fatalf("5m bar = %+v", bar5)
	}
}

func TestAggregatorFlushAll(t *testing.T) {
	agg, store, _ := newTestAggregator(t, []models.Interval{models.Interval1m, models.Interval1h})
	ctx := context.Background()

	base := time.Date(2024, 10, 10, 14, 0, 0, 0, time.UTC)
	agg.AddTick(ctx, tick(10, f64(5), base.Add(time.Second)))

	flushed := agg.FlushAll(ctx)
	if flushed != 2 {
		t.Fatalf("flushed = %d, want 2", flushed)
	}
	if got := agg.FlushAll(ctx); got != 0 {
		t.Fatalf("second FlushAll = %d, builders not cleared", got)
	}
	if len(agg.ActiveSymbols()) != 0 {
		t.Fatalf("active symbols after flush: %v", agg.ActiveSymbols())
	}
	if store.flushCount() != 2 {
		t.Fatalf("store upserts = %d", store.flushCount())
	}
}

func TestAggregatorUpsertIdempotency(t *testing.T) {
	store := newRecordingStore()
	proc := NewBarProcessor(store, nil, nopMetrics{}, "clickhouse")
	ctx := context.Background()

	base := time.Date(2024, 10, 10, 14, 0, 0, 0, time.UTC)
	bar := &models.Bar{
		Symbol: "AAPL", Exchange: "NASDAQ", Interval: models.Interval1m,
		BarStart: base, BarEnd: base.Add(time.Minute),
		Open: 1, High: 2, Low: 1, Close: 2, Volume: 10, TickCount: 2,
	}

	if err := proc.Flush(ctx, bar); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if err := proc.Flush(ctx, bar); err != nil {
		t.Fatalf("re-flush: %v", err)
	}

	if got := store.upserts[windowKey(bar)]; got != 2 {
		t.Fatalf("upserts for window = %d", got)
	}
	if len(store.upserts) != 1 {
		t.Fatalf("distinct windows = %d, re-flush created a new key", len(store.upserts))
	}
}

func TestAggregatorGetCurrentBarMiss(t *testing.T) {
	agg, _, _ := newTestAggregator(t, []models.Interval{models.Interval1m})

	bar, err := agg.GetCurrentBar(context.Background(), "ETHUSDT", "BINANCE", models.Interval1m)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if bar != nil {
		t.Fatalf("expected nil bar, got %+v", bar)
	}
}
