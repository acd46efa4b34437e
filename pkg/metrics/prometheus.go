package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	ticksReceived *prometheus.CounterVec
	barsFlushed   *prometheus.CounterVec
	ticksDropped  *prometheus.CounterVec
	errorsTotal   *prometheus.CounterVec
	lastPrice     *prometheus.GaugeVec
	reconnects    prometheus.Counter
	latency       *prometheus.HistogramVec
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		ticksReceived: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tickflow_ticks_received_total",
				Help: "Total number of ticks accepted from the quote stream",
			},
			[]string{"symbol"},
		),
		barsFlushed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tickflow_bars_flushed_total",
				Help: "Total number of completed bars flushed to a backend",
			},
			[]string{"backend", "interval"},
		),
		ticksDropped: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tickflow_ticks_dropped_total",
				Help: "Total number of ticks dropped as outside the active window",
			},
			[]string{"interval"},
		),
		errorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tickflow_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		lastPrice: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tickflow_last_price",
				Help: "Last recorded price for a symbol",
			},
			[]string{"symbol"},
		),
		reconnects: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "tickflow_stream_reconnects_total",
				Help: "Total number of stream reconnect attempts after a drop",
			},
		),
		latency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tickflow_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// RecordTickReceived records a tick accepted for aggregation.
func (r *Recorder) RecordTickReceived(symbol string) {
	r.ticksReceived.WithLabelValues(symbol).Inc()
}

// RecordBarFlushed records a completed bar flushed to a backend.
func (r *Recorder) RecordBarFlushed(backend, interval string) {
	r.barsFlushed.WithLabelValues(backend, interval).Inc()
}

// RecordTickDropped records a tick rejected by the active window.
func (r *Recorder) RecordTickDropped(interval string) {
	r.ticksDropped.WithLabelValues(interval).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLastPrice records the last price for a symbol.
func (r *Recorder) RecordLastPrice(symbol string, price float64) {
	r.lastPrice.WithLabelValues(symbol).Set(price)
}

// RecordReconnect records a reconnect cycle.
func (r *Recorder) RecordReconnect() {
	r.reconnects.Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}
