package models

import "time"

// Interval is a supported OHLCV bar width. Fixed-duration intervals align to
// the Unix epoch; 1d/1w/1M align to calendar boundaries in UTC.
type Interval string

const (
	Interval1m  Interval = "1m"
	Interval3m  Interval = "3m"
	Interval5m  Interval = "5m"
	Interval15m Interval = "15m"
	Interval30m Interval = "30m"
	Interval45m Interval = "45m"
	Interval1h  Interval = "1h"
	Interval2h  Interval = "2h"
	Interval3h  Interval = "3h"
	Interval4h  Interval = "4h"
	Interval1d  Interval = "1d"
	Interval1w  Interval = "1w"
	Interval1M  Interval = "1M"
)

// intervalDurations maps fixed-width intervals to their duration. Calendar
// intervals carry their nominal width here; alignment and bar-end math for
// them go through calendar arithmetic instead.
var intervalDurations = map[Interval]time.Duration{
	Interval1m:  time.Minute,
	Interval3m:  3 * time.Minute,
	Interval5m:  5 * time.Minute,
	Interval15m: 15 * time.Minute,
	Interval30m: 30 * time.Minute,
	Interval45m: 45 * time.Minute,
	Interval1h:  time.Hour,
	Interval2h:  2 * time.Hour,
	Interval3h:  3 * time.Hour,
	Interval4h:  4 * time.Hour,
	Interval1d:  24 * time.Hour,
}

// IsValidInterval returns true if iv is a supported interval.
func IsValidInterval(iv Interval) bool {
	switch iv {
	case Interval1m, Interval3m, Interval5m, Interval15m, Interval30m,
		Interval45m, Interval1h, Interval2h, Interval3h, Interval4h,
		Interval1d, Interval1w, Interval1M:
		return true
	default:
		return false
	}
}

// ParseInterval converts a raw string into an Interval.
func ParseInterval(s string) (Interval, bool) {
	iv := Interval(s)
	return iv, IsValidInterval(iv)
}

// AlignBarStart floors ts to the start of the bar window containing it.
// Fixed-width intervals are epoch-aligned; 1d aligns to UTC midnight, 1w to
// Monday 00:00 UTC, 1M to the first of the month 00:00 UTC.
func AlignBarStart(ts time.Time, iv Interval) time.Time {
	ts = ts.UTC()
	switch iv {
	case Interval1d:
		return time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC)
	case Interval1w:
		day := time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC)
		// time.Weekday is Sunday-based; shift so Monday is day zero.
		offset := (int(day.Weekday()) + 6) % 7
		return day.AddDate(0, 0, -offset)
	case Interval1M:
		return time.Date(ts.Year(), ts.Month(), 1, 0, 0, 0, 0, time.UTC)
	default:
		d := intervalDurations[iv]
		sec := ts.Unix()
		step := int64(d / time.Second)
		return time.Unix(sec-sec%step, 0).UTC()
	}
}

// BarEnd returns the exclusive end of the window starting at barStart.
func BarEnd(barStart time.Time, iv Interval) time.Time {
	switch iv {
	case Interval1w:
		return barStart.AddDate(0, 0, 7)
	case Interval1M:
		return barStart.AddDate(0, 1, 0)
	default:
		return barStart.Add(intervalDurations[iv])
	}
}

// Bar is one OHLCV window for a symbol at an interval. While in progress it
// is mutated by the owning builder; a flushed bar is never touched again.
type Bar struct {
	Symbol    string    `json:"symbol"`
	Exchange  string    `json:"exchange"`
	Interval  Interval  `json:"interval"`
	BarStart  time.Time `json:"bar_start"`
	BarEnd    time.Time `json:"bar_end"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
	TickCount int       `json:"tick_count"`
}

// SymbolKey returns the canonical key for this bar.
func (b *Bar) SymbolKey() string {
	return SymbolKey(b.Symbol, b.Exchange)
}
