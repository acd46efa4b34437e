package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"TickFlow/internal/domain/models"
	drepo "TickFlow/internal/domain/repository"
	"TickFlow/pkg/cache"
	applogger "TickFlow/pkg/logger"
)

const quoteLatestPrefix = "quote:latest"

// quoteLatestTTL bounds how long a stalled stream keeps serving its last
// quote.
const quoteLatestTTL = 60 * time.Second

// Status is the diagnostic snapshot returned by QuoteService.Status.
type Status struct {
	Running           bool     `json:"running"`
	Connected         bool     `json:"connected"`
	SubscriptionCount int      `json:"subscription_count"`
	ActiveSymbols     []string `json:"active_symbols"`
}

// QuoteService owns the streaming client and the aggregator: every accepted
// quote update is cached as the latest quote and folded into bars.
type QuoteService struct {
	stream  drepo.QuoteStream
	agg     *BarAggregator
	cache   cache.Service
	logger  *applogger.Logger
	metrics drepo.Metrics

	runMu   sync.Mutex
	running bool
}

// NewQuoteService creates a new QuoteService instance.
func NewQuoteService(
	stream drepo.QuoteStream,
	agg *BarAggregator,
	cacheSvc cache.Service,
	logger *applogger.Logger,
	metrics drepo.Metrics,
) *QuoteService {
	return &QuoteService{
		stream:  stream,
		agg:     agg,
		cache:   cacheSvc,
		logger:  logger,
		metrics: metrics,
	}
}

// Start launches the stream and subscribes the bootstrap symbols once the
// connection is up. Entries are "EXCHANGE:SYMBOL".
func (s *QuoteService) Start(ctx context.Context, bootstrap []string) error {
	s.runMu.Lock()
	if s.running {
		s.runMu.Unlock()
		return nil
	}
	s.running = true
	s.runMu.Unlock()

	if err := s.stream.Start(ctx); err != nil {
		return err
	}

	if len(bootstrap) > 0 {
		go s.subscribeBootstrap(ctx, bootstrap)
	}

	s.logger.Info("quote service started")
	return nil
}

// subscribeBootstrap waits for the first connection, then subscribes each
// configured symbol. Individual failures are logged and skipped.
func (s *QuoteService) subscribeBootstrap(ctx context.Context, symbols []string) {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for !s.stream.IsConnected() {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if !s.IsRunning() {
			return
		}
	}

	for _, entry := range symbols {
		exchange, symbol, ok := models.SplitSymbolKey(entry)
		if !ok {
			s.logger.Warn("quote service: bad bootstrap symbol", applogger.String("symbol", entry))
			continue
		}
		if _, err := s.Subscribe(symbol, exchange); err != nil {
			s.logger.Error("quote service: bootstrap subscribe failed",
				applogger.String("symbol", entry), applogger.Error(err))
		}
	}
}

// Stop tears down the stream and flushes every in-flight bar so no
// completed work is lost.
func (s *QuoteService) Stop(ctx context.Context) error {
	s.runMu.Lock()
	s.running = false
	s.runMu.Unlock()

	err := s.stream.Stop()

	flushed := s.agg.FlushAll(ctx)
	s.logger.Info("quote service stopped", applogger.Int("flushed", flushed))
	return err
}

// Subscribe registers a live subscription for a symbol.
func (s *QuoteService) Subscribe(symbol, exchange string) (string, error) {
	return s.stream.Subscribe(symbol, exchange, drepo.QuoteListenerFunc(s.onQuote))
}

// Unsubscribe removes the subscription and drops the cached latest quote.
func (s *QuoteService) Unsubscribe(ctx context.Context, symbol, exchange string) error {
	if err := s.stream.Unsubscribe(symbol, exchange); err != nil {
		return err
	}
	key := quoteLatestKey(models.SymbolKey(symbol, exchange))
	if err := s.cache.Delete(ctx, key); err != nil {
		s.logger.Warn("quote service: cache delete failed", applogger.Error(err))
	}
	return nil
}

// onQuote converts a quote update into the latest-quote cache entry and a
// tick for the aggregator. Updates without a price are ignored.
func (s *QuoteService) onQuote(ctx context.Context, update *models.QuoteUpdate) error {
	if update.LastPrice == nil {
		return nil
	}
	exchange, symbol, ok := models.SplitSymbolKey(update.SymbolKey)
	if !ok {
		return nil
	}

	quote := &models.Quote{
		Symbol:        symbol,
		Exchange:      exchange,
		Timestamp:     update.Timestamp,
		LastPrice:     *update.LastPrice,
		Bid:           update.Bid,
		Ask:           update.Ask,
		Volume:        update.Volume,
		Change:        update.Change,
		ChangePercent: update.ChangePercent,
		OpenPrice:     update.OpenPrice,
		HighPrice:     update.HighPrice,
		LowPrice:      update.LowPrice,
		PrevClose:     update.PrevClose,
	}

	if err := s.cache.Set(ctx, quoteLatestKey(update.SymbolKey), quote, quoteLatestTTL); err != nil {
		s.logger.Warn("quote service: cache quote failed", applogger.Error(err))
	}

	s.metrics.RecordLastPrice(update.SymbolKey, quote.LastPrice)

	tick := &models.Tick{
		Symbol:    symbol,
		Exchange:  exchange,
		Timestamp: update.Timestamp,
		Price:     quote.LastPrice,
		Volume:    update.Volume,
	}
	s.agg.AddTick(ctx, tick)

	return nil
}

// GetLatestQuote returns the cached latest quote, or (nil, nil) if none.
func (s *QuoteService) GetLatestQuote(ctx context.Context, symbol, exchange string) (*models.Quote, error) {
	key := quoteLatestKey(models.SymbolKey(symbol, exchange))

	var quote models.Quote
	if err := s.cache.Get(ctx, key, &quote); err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return nil, nil
		}
		return nil, err
	}
	return &quote, nil
}

// GetCurrentBar returns the cached in-progress bar, or (nil, nil) if none.
func (s *QuoteService) GetCurrentBar(ctx context.Context, symbol, exchange string, interval models.Interval) (*models.Bar, error) {
	return s.agg.GetCurrentBar(ctx, symbol, exchange, interval)
}

// FlushAll flushes every in-flight bar on demand.
func (s *QuoteService) FlushAll(ctx context.Context) int {
	return s.agg.FlushAll(ctx)
}

// IsRunning reports whether Start has been called without a matching Stop.
func (s *QuoteService) IsRunning() bool {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	return s.running
}

// Status returns the diagnostic snapshot.
func (s *QuoteService) Status() *Status {
	return &Status{
		Running:           s.IsRunning(),
		Connected:         s.stream.IsConnected(),
		SubscriptionCount: s.stream.SubscriptionCount(),
		ActiveSymbols:     s.agg.ActiveSymbols(),
	}
}

func quoteLatestKey(symbolKey string) string {
	return quoteLatestPrefix + ":" + strings.ToUpper(symbolKey)
}
