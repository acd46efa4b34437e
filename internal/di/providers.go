package di

import (
	"context"
	"fmt"
	"time"

	"TickFlow/internal/domain/models"
	"TickFlow/internal/domain/repository"
	"TickFlow/internal/handler/api"
	internalrepo "TickFlow/internal/repository"
	"TickFlow/internal/service/tradingview"
	"TickFlow/internal/usecase"
	"TickFlow/pkg/cache"
	pkgch "TickFlow/pkg/clickhouse"
	"TickFlow/pkg/config"
	xhttp "TickFlow/pkg/http"
	pkgkafka "TickFlow/pkg/kafka"
	applogger "TickFlow/pkg/logger"
	"TickFlow/pkg/metrics"
	"TickFlow/pkg/server"
)

// ProvideLogger creates the application logger from config.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	return applogger.New(&applogger.Config{
		Level:  cfg.Logger.Level,
		Format: cfg.Logger.Format,
		Output: cfg.Logger.Output,
	})
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideCache creates the Redis cache service.
func ProvideCache(cfg *config.Config) (cache.Service, error) {
	c, err := cache.NewRedisCache(
		cache.WithRedisHost(cfg.Redis.Host),
		cache.WithRedisPort(cfg.Redis.Port),
		cache.WithRedisPassword(cfg.Redis.Password),
		cache.WithRedisDB(cfg.Redis.DB),
		cache.WithRedisPool(cfg.Redis.PoolSize, cfg.Redis.MinIdleConns, cfg.Redis.PoolTimeout),
		cache.WithRedisPrefix(cfg.Redis.Prefix),
	)
	if err != nil {
		return nil, fmt.Errorf("redis cache: %w", err)
	}
	return c, nil
}

// ProvideClickHouseClient creates a ClickHouse client and ensures the bar
// table exists. ReplacingMergeTree on updated_at makes re-flushed windows
// collapse to the latest version per (symbol, exchange, interval, bar_start).
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db := cfg.ClickHouse.Database
	if err := client.InitSchema(ctx, []string{
		"CREATE DATABASE IF NOT EXISTS " + db,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.ohlcv_bars (
			symbol String,
			exchange String,
			interval String,
			bar_start DateTime('UTC'),
			bar_end DateTime('UTC'),
			open Float64,
			high Float64,
			low Float64,
			close Float64,
			volume Float64,
			tick_count UInt32,
			created_at DateTime('UTC'),
			updated_at DateTime('UTC')
		) ENGINE = ReplacingMergeTree(updated_at)
		ORDER BY (symbol, exchange, interval, bar_start)`, db),
	}); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}

	return client, nil
}

// ProvideKafkaProducer creates a Kafka producer, or nil when no brokers are
// configured (clickhouse-only deployments).
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if len(cfg.Kafka.Brokers) == 0 {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithBatchBytes(cfg.Kafka.Producer.BatchBytes),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideBarStore creates ClickHouse bar storage.
func ProvideBarStore(chClient *pkgch.Client, cfg *config.Config) repository.BarStore {
	return internalrepo.NewClickHouseBarStore(chClient.DB(), cfg.ClickHouse.Database+".ohlcv_bars")
}

// ProvideBarPublisher creates the Kafka bar publisher, or nil without a producer.
func ProvideBarPublisher(producer *pkgkafka.Producer, cfg *config.Config) repository.BarPublisher {
	if producer == nil {
		return nil
	}
	return internalrepo.NewKafkaBarPublisher(producer, cfg.Kafka.Topic)
}

// ProvideBarProcessor creates the flush sink routed by backend type.
func ProvideBarProcessor(
	store repository.BarStore,
	pub repository.BarPublisher,
	m repository.Metrics,
	cfg *config.Config,
) *usecase.BarProcessor {
	return usecase.NewBarProcessor(store, pub, m, cfg.Backend.Type)
}

// ProvideBarAggregator creates the tick-to-bar aggregator with the
// configured interval set.
func ProvideBarAggregator(
	cfg *config.Config,
	proc *usecase.BarProcessor,
	cacheSvc cache.Service,
	logger *applogger.Logger,
	m repository.Metrics,
) (*usecase.BarAggregator, error) {
	intervals := make([]models.Interval, 0, len(cfg.Aggregator.Intervals))
	for _, s := range cfg.Aggregator.Intervals {
		iv, ok := models.ParseInterval(s)
		if !ok {
			return nil, fmt.Errorf("aggregator: unknown interval '%s'", s)
		}
		intervals = append(intervals, iv)
	}
	return usecase.NewBarAggregator(intervals, proc, cacheSvc, cfg.Aggregator.CacheTTL, logger, m), nil
}

// ProvideQuoteStream creates the TradingView WebSocket stream.
func ProvideQuoteStream(cfg *config.Config, logger *applogger.Logger, m repository.Metrics) repository.QuoteStream {
	return tradingview.New(tradingview.Config{
		URL:          cfg.TradingView.URL,
		Origin:       cfg.TradingView.Origin,
		UserAgent:    cfg.TradingView.UserAgent,
		ReconnectMin: cfg.TradingView.ReconnectMin,
		ReconnectMax: cfg.TradingView.ReconnectMax,
		DialTimeout:  cfg.TradingView.DialTimeout,
		WriteTimeout: cfg.TradingView.WriteTimeout,
	}, logger, m)
}

// ProvideQuoteService creates the quote pipeline use case.
func ProvideQuoteService(
	stream repository.QuoteStream,
	agg *usecase.BarAggregator,
	cacheSvc cache.Service,
	logger *applogger.Logger,
	m repository.Metrics,
) *usecase.QuoteService {
	return usecase.NewQuoteService(stream, agg, cacheSvc, logger, m)
}

// ProvideHTTPHandler creates the market API handler.
func ProvideHTTPHandler(logger *applogger.Logger, quotes *usecase.QuoteService, store repository.BarStore) xhttp.Handler {
	return api.NewMarketHandler(logger, quotes, store)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	logger *applogger.Logger,
	quotes *usecase.QuoteService,
	handler xhttp.Handler,
	chClient *pkgch.Client,
	producer *pkgkafka.Producer,
	cacheSvc cache.Service,
) *server.App {
	return server.New(cfg, logger, quotes, handler, chClient, producer, cacheSvc)
}
