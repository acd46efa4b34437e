package models

import (
	"strings"
	"time"
)

// SymbolKey builds the canonical "EXCHANGE:SYMBOL" identifier.
func SymbolKey(symbol, exchange string) string {
	return strings.ToUpper(exchange) + ":" + strings.ToUpper(symbol)
}

// SplitSymbolKey is the inverse of SymbolKey. ok is false if the key has no
// exchange part.
func SplitSymbolKey(key string) (exchange, symbol string, ok bool) {
	i := strings.Index(key, ":")
	if i < 0 {
		return "", "", false
	}
	return key[:i], key[i+1:], true
}

// Quote is the latest observed state of a symbol, built from a quote-update
// message. Optional fields are pointers because the feed sends partial
// updates.
type Quote struct {
	Symbol    string    `json:"symbol"`
	Exchange  string    `json:"exchange"`
	Timestamp time.Time `json:"timestamp"`

	LastPrice     float64  `json:"last_price"`
	Bid           *float64 `json:"bid,omitempty"`
	Ask           *float64 `json:"ask,omitempty"`
	Volume        *float64 `json:"volume,omitempty"`
	Change        *float64 `json:"change,omitempty"`
	ChangePercent *float64 `json:"change_percent,omitempty"`
	OpenPrice     *float64 `json:"open_price,omitempty"`
	HighPrice     *float64 `json:"high_price,omitempty"`
	LowPrice      *float64 `json:"low_price,omitempty"`
	PrevClose     *float64 `json:"prev_close,omitempty"`
}

// SymbolKey returns the canonical key for this quote.
func (q *Quote) SymbolKey() string {
	return SymbolKey(q.Symbol, q.Exchange)
}

// Tick is a single price observation routed into bar aggregation. Immutable
// once constructed; never persisted directly.
type Tick struct {
	Symbol    string
	Exchange  string
	Timestamp time.Time
	Price     float64
	Volume    *float64
}

// SymbolKey returns the canonical key for this tick.
func (t *Tick) SymbolKey() string {
	return SymbolKey(t.Symbol, t.Exchange)
}

// QuoteUpdate is the normalized payload delivered to quote listeners. Field
// names follow the wire field list negotiated at session creation.
type QuoteUpdate struct {
	SymbolKey     string
	Timestamp     time.Time
	LastPrice     *float64
	Volume        *float64
	Bid           *float64
	Ask           *float64
	Change        *float64
	ChangePercent *float64
	OpenPrice     *float64
	HighPrice     *float64
	LowPrice      *float64
	PrevClose     *float64
}
