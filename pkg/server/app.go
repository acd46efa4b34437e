package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"TickFlow/pkg/cache"
	pkgch "TickFlow/pkg/clickhouse"
	"TickFlow/pkg/config"
	xhttp "TickFlow/pkg/http"
	pkgkafka "TickFlow/pkg/kafka"
	applogger "TickFlow/pkg/logger"
)

// QuoteRunner is the streaming pipeline the app drives: start it with the
// bootstrap symbols, stop it flushing in-flight bars.
type QuoteRunner interface {
	Start(ctx context.Context, bootstrap []string) error
	Stop(ctx context.Context) error
}

// App encapsulates the entire application lifecycle.
type App struct {
	cfg      *config.Config
	logger   *applogger.Logger
	quotes   QuoteRunner
	handler  xhttp.Handler
	chClient *pkgch.Client
	producer *pkgkafka.Producer
	cacheSvc cache.Service

	httpServer *xhttp.Server
}

// New creates a new App instance with all dependencies.
func New(
	cfg *config.Config,
	logger *applogger.Logger,
	quotes QuoteRunner,
	handler xhttp.Handler,
	chClient *pkgch.Client,
	producer *pkgkafka.Producer,
	cacheSvc cache.Service,
) *App {
	return &App{
		cfg:      cfg,
		logger:   logger,
		quotes:   quotes,
		handler:  handler,
		chClient: chClient,
		producer: producer,
		cacheSvc: cacheSvc,
	}
}

// kafkaLogPublisher adapts the Kafka producer to the log collector.
type kafkaLogPublisher struct {
	producer *pkgkafka.Producer
}

func (p *kafkaLogPublisher) PublishMessage(ctx context.Context, topic string, payload interface{}) error {
	return p.producer.Publish(ctx, topic, nil, payload)
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l := a.logger

	// Ship aggregated error logs to Kafka when a logs topic is configured
	if a.producer != nil && a.cfg.Kafka.LogsTopic != "" {
		l.AddCollector(&applogger.CollectionConfig{
			TimeInterval:   30 * time.Second,
			CountThreshold: 100,
			Topic:          a.cfg.Kafka.LogsTopic,
			Publisher:      &kafkaLogPublisher{producer: a.producer},
		})
	}

	a.httpServer = xhttp.NewServer(a.handler,
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
	)

	if err := a.quotes.Start(ctx, a.cfg.TradingView.Symbols); err != nil {
		l.Error("quote pipeline start error", applogger.Error(err))
		return err
	}
	l.Info("quote pipeline started",
		applogger.Strings("symbols", a.cfg.TradingView.Symbols),
		applogger.String("backend", a.cfg.Backend.Type))

	if err := a.httpServer.Start(); err != nil {
		l.Error("http server start error", applogger.Error(err))
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	l.Info("shutdown signal received")
	return a.shutdown(ctx)
}

// shutdown gracefully stops all services. The quote pipeline goes first so
// every in-flight bar is flushed before storage closes.
func (a *App) shutdown(ctx context.Context) error {
	l := a.logger

	if err := a.quotes.Stop(ctx); err != nil {
		l.Warn("quote pipeline stop error", applogger.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := a.httpServer.Stop(shutdownCtx); err != nil {
		l.Error("http shutdown error", applogger.Error(err))
	}

	if a.chClient != nil {
		if err := a.chClient.Close(); err != nil {
			l.Warn("clickhouse close error", applogger.Error(err))
		}
	}
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			l.Warn("kafka producer close error", applogger.Error(err))
		}
	}
	if a.cacheSvc != nil {
		if err := a.cacheSvc.Close(); err != nil {
			l.Warn("cache close error", applogger.Error(err))
		}
	}
	l.RemoveCollector()

	l.Info("shutdown complete")
	return nil
}
