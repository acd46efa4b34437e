package usecase

import (
	"context"
	"fmt"
	"time"

	"TickFlow/internal/domain/models"
	drepo "TickFlow/internal/domain/repository"
)

// BarProcessor routes completed bars to the configured backend: direct
// ClickHouse upsert or a Kafka topic for downstream writers.
type BarProcessor struct {
	store   drepo.BarStore
	pub     drepo.BarPublisher
	metrics drepo.Metrics
	backend string
}

// NewBarProcessor creates a new BarProcessor instance.
func NewBarProcessor(store drepo.BarStore, pub drepo.BarPublisher, metrics drepo.Metrics, backend string) *BarProcessor {
	return &BarProcessor{store: store, pub: pub, metrics: metrics, backend: backend}
}

// Flush persists or publishes one completed bar.
func (p *BarProcessor) Flush(ctx context.Context, bar *models.Bar) error {
	if bar == nil {
		return fmt.Errorf("bar is nil")
	}

	start := time.Now()
	var err error

	switch p.backend {
	case "kafka":
		err = p.pub.Publish(ctx, bar)
	case "clickhouse":
		err = p.store.UpsertBar(ctx, bar)
	default:
		err = fmt.Errorf("unknown backend: %s", p.backend)
	}

	if err != nil {
		p.metrics.RecordError("flush")
		return fmt.Errorf("flush bar: %w", err)
	}

	p.metrics.RecordBarFlushed(p.backend, string(bar.Interval))
	p.metrics.RecordLatency("flush", time.Since(start).Seconds())

	return nil
}

// Close closes underlying resources if available.
func (p *BarProcessor) Close() {
	if p.pub != nil {
		_ = p.pub.Close()
	}
	if p.store != nil {
		_ = p.store.Close()
	}
}
