package tradingview

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestNewSessionIDFormat(t *testing.T) {
	s := NewSession()
	id := s.ID()
	if !strings.HasPrefix(id, "qs_") {
		t.Fatalf("id = %q, want qs_ prefix", id)
	}
	suffix := strings.TrimPrefix(id, "qs_")
	if len(suffix) != 12 {
		t.Fatalf("suffix length = %d, want 12", len(suffix))
	}
	for _, r := range suffix {
		if !strings.ContainsRune(sessionAlphabet, r) {
			t.Fatalf("unexpected rune %q in %q", r, id)
		}
	}
}

func TestSessionIDsDiffer(t *testing.T) {
	a, b := NewSession(), NewSession()
	if a.ID() == b.ID() {
		t.Fatalf("two sessions share id %q", a.ID())
	}
}

func TestSessionMatches(t *testing.T) {
	s := NewSession()

	own, _ := json.Marshal(s.ID())
	if !s.Matches(own) {
		t.Fatal("expected own id to match")
	}

	stale, _ := json.Marshal("qs_000000000000")
	if s.Matches(stale) {
		t.Fatal("stale id must not match")
	}

	if s.Matches(json.RawMessage(`{"not":"a string"}`)) {
		t.Fatal("non-string id must not match")
	}
}
