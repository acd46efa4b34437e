package models

import (
	"testing"
	"time"
)

func TestAlignBarStartEpoch(t *testing.T) {
	ts := time.Date(2024, 10, 10, 14, 37, 42, 0, time.UTC)

	cases := []struct {
		iv   Interval
		want time.Time
	}{
		{Interval1m, time.Date(2024, 10, 10, 14, 37, 0, 0, time.UTC)},
		{Interval5m, time.Date(2024, 10, 10, 14, 35, 0, 0, time.UTC)},
		{Interval15m, time.Date(2024, 10, 10, 14, 30, 0, 0, time.UTC)},
		{Interval1h, time.Date(2024, 10, 10, 14, 0, 0, 0, time.UTC)},
		{Interval4h, time.Date(2024, 10, 10, 12, 0, 0, 0, time.UTC)},
	}

	for _, tc := range cases {
		got := AlignBarStart(ts, tc.iv)
		if !got.Equal(tc.want) {
			t.Errorf("%s: got %v want %v", tc.iv, got, tc.want)
		}
	}
}

func TestAlignBarStartIdempotent(t *testing.T) {
	ts := time.Date(2024, 10, 10, 14, 37, 42, 0, time.UTC)
	for _, iv := range []Interval{Interval1m, Interval45m, Interval1h, Interval1d, Interval1w, Interval1M} {
		once := AlignBarStart(ts, iv)
		twice := AlignBarStart(once, iv)
		if !once.Equal(twice) {
			t.Errorf("%s: align not idempotent: %v != %v", iv, once, twice)
		}
	}
}

func TestAlignBarStartCalendar(t *testing.T) {
	// 2024-10-10 is a Thursday
	ts := time.Date(2024, 10, 10, 14, 37, 42, 0, time.UTC)

	if got := AlignBarStart(ts, Interval1d); !got.Equal(time.Date(2024, 10, 10, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("1d: got %v", got)
	}
	if got := AlignBarStart(ts, Interval1w); !got.Equal(time.Date(2024, 10, 7, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("1w: got %v", got)
	}
	if got := AlignBarStart(ts, Interval1M); !got.Equal(time.Date(2024, 10, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("1M: got %v", got)
	}

	// A Monday must align to itself for 1w
	monday := time.Date(2024, 10, 7, 5, 0, 0, 0, time.UTC)
	if got := AlignBarStart(monday, Interval1w); !got.Equal(time.Date(2024, 10, 7, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("1w monday: got %v", got)
	}
}

func TestBarEnd(t *testing.T) {
	start := time.Date(2024, 10, 7, 0, 0, 0, 0, time.UTC)

	if got := BarEnd(start, Interval1h); !got.Equal(start.Add(time.Hour)) {
		t.Errorf("1h: got %v", got)
	}
	if got := BarEnd(start, Interval1w); !got.Equal(time.Date(2024, 10, 14, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("1w: got %v", got)
	}

	feb := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	if got := BarEnd(feb, Interval1M); !got.Equal(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("1M leap feb: got %v", got)
	}
}

func TestParseInterval(t *testing.T) {
	if iv, ok := ParseInterval("5m"); !ok || iv != Interval5m {
		t.Fatalf("5m: got %v %v", iv, ok)
	}
	if _, ok := ParseInterval("7m"); ok {
		t.Fatal("7m should not parse")
	}
	if _, ok := ParseInterval("1mo"); ok {
		t.Fatal("1mo should not parse")
	}
}

func TestSymbolKey(t *testing.T) {
	if got := SymbolKey("btcusdt", "binance"); got != "BINANCE:BTCUSDT" {
		t.Fatalf("got %q", got)
	}

	exchange, symbol, ok := SplitSymbolKey("NASDAQ:AAPL")
	if !ok || exchange != "NASDAQ" || symbol != "AAPL" {
		t.Fatalf("got %q %q %v", exchange, symbol, ok)
	}
	if _, _, ok := SplitSymbolKey("AAPL"); ok {
		t.Fatal("bare symbol should not split")
	}
}
