package tradingview

import (
	"encoding/json"
	"math/rand"
)

// QuoteFields is the field list negotiated right after session creation.
var QuoteFields = []string{
	"lp",
	"volume",
	"bid",
	"ask",
	"ch",
	"chp",
	"open_price",
	"high_price",
	"low_price",
	"prev_close_price",
}

const (
	sessionPrefix    = "qs"
	sessionSuffixLen = 12
	sessionAlphabet  = "abcdefghijklmnopqrstuvwxyz0123456789"
)

// Session scopes one connection. A new session is generated on every
// connect; updates carrying a previous session id are discarded.
type Session struct {
	id string
}

// NewSession generates a session with a fresh random id like "qs_ab12cd34ef56".
func NewSession() *Session {
	suffix := make([]byte, sessionSuffixLen)
	for i := range suffix {
		suffix[i] = sessionAlphabet[rand.Intn(len(sessionAlphabet))]
	}
	return &Session{id: sessionPrefix + "_" + string(suffix)}
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Matches reports whether a raw session id param belongs to this session.
func (s *Session) Matches(raw json.RawMessage) bool {
	var id string
	if err := json.Unmarshal(raw, &id); err != nil {
		return false
	}
	return id == s.id
}

// quoteValues is the typed decode table for the "v" field map of a qsd
// update. Pointer fields distinguish absent from zero.
type quoteValues struct {
	LastPrice     *float64 `json:"lp"`
	Volume        *float64 `json:"volume"`
	Bid           *float64 `json:"bid"`
	Ask           *float64 `json:"ask"`
	Change        *float64 `json:"ch"`
	ChangePercent *float64 `json:"chp"`
	OpenPrice     *float64 `json:"open_price"`
	HighPrice     *float64 `json:"high_price"`
	LowPrice      *float64 `json:"low_price"`
	PrevClose     *float64 `json:"prev_close_price"`
}

// quoteData is the second qsd param: symbol name plus field values.
type quoteData struct {
	Name   string      `json:"n"`
	Values quoteValues `json:"v"`
}
