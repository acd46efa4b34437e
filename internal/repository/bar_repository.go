package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"TickFlow/internal/domain/models"
	"TickFlow/internal/domain/repository"
	pkgkafka "TickFlow/pkg/kafka"
)

// ClickHouseBarStore implements BarStore on a ReplacingMergeTree table keyed
// by (symbol, exchange, interval, bar_start). Re-flushing a window inserts a
// newer version of the same key; the engine keeps the latest updated_at, and
// the original created_at is carried forward so it survives updates.
type ClickHouseBarStore struct {
	db    *sql.DB
	table string
}

// NewClickHouseBarStore creates ClickHouse bar storage.
func NewClickHouseBarStore(db *sql.DB, table string) repository.BarStore {
	return &ClickHouseBarStore{db: db, table: table}
}

// UpsertBar writes one completed bar. Idempotent per window: duplicate
// flushes update OHLCV fields but keep the first creation timestamp.
func (s *ClickHouseBarStore) UpsertBar(ctx context.Context, bar *models.Bar) error {
	now := time.Now().UTC()

	createdAt := now
	sel := fmt.Sprintf(
		"SELECT created_at FROM %s FINAL WHERE symbol = ? AND exchange = ? AND interval = ? AND bar_start = ? LIMIT 1",
		s.table)
	err := s.db.QueryRowContext(ctx, sel,
		bar.Symbol, bar.Exchange, string(bar.Interval), bar.BarStart,
	).Scan(&createdAt)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("lookup bar: %w", err)
	}

	ins := fmt.Sprintf(
		"INSERT INTO %s (symbol, exchange, interval, bar_start, bar_end, open, high, low, close, volume, tick_count, created_at, updated_at) "+
			"VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		s.table)
	if _, err := s.db.ExecContext(ctx, ins,
		bar.Symbol,
		bar.Exchange,
		string(bar.Interval),
		bar.BarStart,
		bar.BarEnd,
		bar.Open,
		bar.High,
		bar.Low,
		bar.Close,
		bar.Volume,
		uint32(bar.TickCount),
		createdAt,
		now,
	); err != nil {
		return fmt.Errorf("upsert bar: %w", err)
	}
	return nil
}

func (s *ClickHouseBarStore) QueryBars(ctx context.Context, symbol, exchange string, interval models.Interval, from, to time.Time, limit int) ([]*models.Bar, error) {
	q := fmt.Sprintf(
		"SELECT symbol, exchange, interval, bar_start, bar_end, open, high, low, close, volume, tick_count FROM %s FINAL "+
			"WHERE symbol = ? AND exchange = ? AND interval = ? AND bar_start >= ? AND bar_start < ? "+
			"ORDER BY bar_start ASC LIMIT ?",
		s.table)
	rows, err := s.db.QueryContext(ctx, q, symbol, exchange, string(interval), from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bars []*models.Bar
	for rows.Next() {
		var b models.Bar
		var iv string
		var tickCount uint32
		if err := rows.Scan(&b.Symbol, &b.Exchange, &iv, &b.BarStart, &b.BarEnd,
			&b.Open, &b.High, &b.Low, &b.Close, &b.Volume, &tickCount); err != nil {
			return nil, err
		}
		b.Interval = models.Interval(iv)
		b.TickCount = int(tickCount)
		bars = append(bars, &b)
	}
	return bars, rows.Err()
}

func (s *ClickHouseBarStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *ClickHouseBarStore) Close() error {
	return nil // Managed by pkg
}

// KafkaBarPublisher implements BarPublisher for Kafka.
type KafkaBarPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

// NewKafkaBarPublisher creates Kafka bar publisher.
func NewKafkaBarPublisher(producer *pkgkafka.Producer, topic string) repository.BarPublisher {
	return &KafkaBarPublisher{producer: producer, topic: topic}
}

func (p *KafkaBarPublisher) Publish(ctx context.Context, bar *models.Bar) error {
	key := []byte(bar.SymbolKey())
	return p.producer.Publish(ctx, p.topic, key, bar)
}

func (p *KafkaBarPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}
