package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"TickFlow/internal/domain/models"
	applogger "TickFlow/pkg/logger"
)

// capturingStore records the query the handler issued.
type capturingStore struct {
	interval models.Interval
	from     time.Time
	to       time.Time
	limit    int
}

func (s *capturingStore) UpsertBar(context.Context, *models.Bar) error { return nil }

func (s *capturingStore) QueryBars(_ context.Context, symbol, exchange string, interval models.Interval, from, to time.Time, limit int) ([]*models.Bar, error) {
	s.interval = interval
	s.from = from
	s.to = to
	s.limit = limit
	return nil, nil
}

func (s *capturingStore) Health(context.Context) error { return nil }
func (s *capturingStore) Close() error                 { return nil }

func testHandlerLogger(t *testing.T) *applogger.Logger {
	t.Helper()
	l, err := applogger.New(&applogger.Config{Level: "error", Format: "console", Output: "stderr"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return l
}

func postJSON(t *testing.T, path, body string) (echo.Context, *httptest.ResponseRecorder) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	return echo.New().NewContext(req, rec), rec
}

func TestBarsHistoryAlignsRangeToInterval(t *testing.T) {
	store := &capturingStore{}
	h := NewMarketHandler(testHandlerLogger(t), nil, store)

	c, rec := postJSON(t, "/api/bars/history",
		`{"symbol":"AAPL","exchange":"NASDAQ","interval":"5m","from":"2024-10-10T10:12:45Z","to":"2024-10-10T11:03:05Z"}`)
	if err := h.BarsHistory(c); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	if store.interval != models.Interval5m {
		t.Fatalf("interval = %s", store.interval)
	}
	wantFrom := time.Date(2024, 10, 10, 10, 10, 0, 0, time.UTC)
	if !store.from.Equal(wantFrom) {
		t.Fatalf("from = %v, want %v", store.from, wantFrom)
	}
	wantTo := time.Date(2024, 10, 10, 11, 0, 0, 0, time.UTC)
	if !store.to.Equal(wantTo) {
		t.Fatalf("to = %v, want %v", store.to, wantTo)
	}
	if store.limit != 1000 {
		t.Fatalf("default limit = %d", store.limit)
	}
}

func TestBarsHistoryRejectsInvertedRange(t *testing.T) {
	store := &capturingStore{}
	h := NewMarketHandler(testHandlerLogger(t), nil, store)

	c, rec := postJSON(t, "/api/bars/history",
		`{"symbol":"AAPL","exchange":"NASDAQ","interval":"1m","from":"2024-10-10T11:00:00Z","to":"2024-10-10T10:00:00Z"}`)
	if err := h.BarsHistory(c); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if !strings.Contains(rec.Body.String(), "from must be before to") {
		t.Fatalf("unexpected body %s", rec.Body.String())
	}
	if !store.from.IsZero() {
		t.Fatal("store should not have been queried")
	}
}
