package usecase

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"TickFlow/internal/domain/models"
	drepo "TickFlow/internal/domain/repository"
	"TickFlow/pkg/cache"
	applogger "TickFlow/pkg/logger"
)

// DefaultIntervals is the aggregation set used when config lists none.
var DefaultIntervals = []models.Interval{
	models.Interval1m,
	models.Interval5m,
	models.Interval1h,
	models.Interval1d,
}

const barCurrentPrefix = "bar:current"

// BarAggregator owns the live builder set and converts the tick stream into
// per-interval OHLCV bars. One builder exists per (symbol_key, interval);
// it is replaced, never merged, when its window rolls over. A single mutex
// guards the builder map; cache and storage I/O happen outside it.
type BarAggregator struct {
	intervals []models.Interval
	proc      *BarProcessor
	cache     cache.Service
	cacheTTL  time.Duration
	logger    *applogger.Logger
	metrics   drepo.Metrics

	mu       sync.Mutex
	builders map[string]map[models.Interval]*BarBuilder
}

// NewBarAggregator creates an aggregator for the given interval set.
func NewBarAggregator(
	intervals []models.Interval,
	proc *BarProcessor,
	cacheSvc cache.Service,
	cacheTTL time.Duration,
	logger *applogger.Logger,
	metrics drepo.Metrics,
) *BarAggregator {
	if len(intervals) == 0 {
		intervals = DefaultIntervals
	}
	if cacheTTL <= 0 {
		cacheTTL = 2 * time.Minute
	}
	return &BarAggregator{
		intervals: intervals,
		proc:      proc,
		cache:     cacheSvc,
		cacheTTL:  cacheTTL,
		logger:    logger,
		metrics:   metrics,
		builders:  make(map[string]map[models.Interval]*BarBuilder),
	}
}

// AddTick routes one tick into every configured interval, flushing any
// builder whose window closed before this tick. Ticks older than the
// active window are dropped, not rerouted.
func (a *BarAggregator) AddTick(ctx context.Context, tick *models.Tick) {
	symbolKey := tick.SymbolKey()

	var completed []*models.Bar
	var current []*models.Bar

	a.mu.Lock()
	perSymbol := a.builders[symbolKey]
	if perSymbol == nil {
		perSymbol = make(map[models.Interval]*BarBuilder)
		a.builders[symbolKey] = perSymbol
	}

	for _, iv := range a.intervals {
		barStart := models.AlignBarStart(tick.Timestamp, iv)

		builder := perSymbol[iv]
		if builder == nil {
			builder = NewBarBuilder(tick.Symbol, tick.Exchange, iv, barStart)
			perSymbol[iv] = builder
		} else if builder.IsComplete(tick.Timestamp) {
			if snap := builder.Snapshot(); snap != nil {
				completed = append(completed, snap)
			}
			builder = NewBarBuilder(tick.Symbol, tick.Exchange, iv, barStart)
			perSymbol[iv] = builder
		}

		if !builder.AddTick(tick.Price, tick.Volume, tick.Timestamp) {
			a.metrics.RecordTickDropped(string(iv))
			continue
		}

		current = append(current, builder.Snapshot())
	}
	a.mu.Unlock()

	a.metrics.RecordTickReceived(symbolKey)

	for _, bar := range completed {
		if err := a.proc.Flush(ctx, bar); err != nil {
			a.logger.Error("aggregator: flush failed",
				applogger.String("symbol", bar.SymbolKey()),
				applogger.String("interval", string(bar.Interval)),
				applogger.Error(err))
		} else {
			a.logger.Info("aggregator: bar saved",
				applogger.String("symbol", bar.SymbolKey()),
				applogger.String("interval", string(bar.Interval)),
				applogger.Int("ticks", bar.TickCount))
		}
	}

	for _, bar := range current {
		key := barCurrentKey(bar.Exchange, bar.Symbol, bar.Interval)
		if err := a.cache.Set(ctx, key, bar, a.cacheTTL); err != nil {
			a.logger.Warn("aggregator: cache current bar failed", applogger.Error(err))
		}
	}
}

// FlushAll persists every non-empty builder and clears the map. Returns the
// number of bars flushed. Used on shutdown so in-flight windows survive.
func (a *BarAggregator) FlushAll(ctx context.Context) int {
	a.mu.Lock()
	var pending []*models.Bar
	for _, perSymbol := range a.builders {
		for _, builder := range perSymbol {
			if snap := builder.Snapshot(); snap != nil {
				pending = append(pending, snap)
			}
		}
	}
	a.builders = make(map[string]map[models.Interval]*BarBuilder)
	a.mu.Unlock()

	flushed := 0
	for _, bar := range pending {
		if err := a.proc.Flush(ctx, bar); err != nil {
			a.logger.Error("aggregator: flush failed",
				applogger.String("symbol", bar.SymbolKey()),
				applogger.Error(err))
			continue
		}
		flushed++
	}

	a.logger.Info("aggregator: bars flushed", applogger.Int("count", flushed))
	return flushed
}

// GetCurrentBar reads the cached in-progress bar. It never inspects the
// live builders, so readers cannot observe a bar mid-mutation. Returns
// (nil, nil) when nothing is cached.
func (a *BarAggregator) GetCurrentBar(ctx context.Context, symbol, exchange string, interval models.Interval) (*models.Bar, error) {
	key := barCurrentKey(exchange, symbol, interval)

	var bar models.Bar
	if err := a.cache.Get(ctx, key, &bar); err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return nil, nil
		}
		return nil, err
	}
	return &bar, nil
}

// ActiveSymbols lists symbol keys with at least one tracked builder.
func (a *BarAggregator) ActiveSymbols() []string {
	a.mu.Lock()
	defer a.mu.Unlock()

	keys := make([]string, 0, len(a.builders))
	for k := range a.builders {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Intervals returns the configured interval set.
func (a *BarAggregator) Intervals() []models.Interval {
	return a.intervals
}

func barCurrentKey(exchange, symbol string, interval models.Interval) string {
	return cache.GenerateKeyWithParams(barCurrentPrefix,
		models.SymbolKey(symbol, exchange), string(interval))
}
