package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"TickFlow/internal/domain/models"
	"TickFlow/internal/domain/repository"
	"TickFlow/internal/usecase"
	xhttp "TickFlow/pkg/http"
	applogger "TickFlow/pkg/logger"
)

// MarketHandler exposes the quote stream and bar aggregation over HTTP.
type MarketHandler struct {
	logger *applogger.Logger
	quotes *usecase.QuoteService
	store  repository.BarStore
}

// NewMarketHandler creates the market API handler.
func NewMarketHandler(logger *applogger.Logger, quotes *usecase.QuoteService, store repository.BarStore) *MarketHandler {
	return &MarketHandler{logger: logger, quotes: quotes, store: store}
}

// RegisterRoutes registers all market routes on the Echo instance.
func (h *MarketHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")

	g.POST("/quotes/subscribe", h.Subscribe)
	g.POST("/quotes/unsubscribe", h.Unsubscribe)
	g.GET("/quotes/latest", h.LatestQuote)

	g.GET("/bars/current", h.CurrentBar)
	g.POST("/bars/history", h.BarsHistory)
	g.POST("/bars/flush", h.FlushBars)

	g.GET("/status", h.Status)
	g.GET("/health", h.Health)
}

// Subscribe adds a symbol to the live quote stream.
func (h *MarketHandler) Subscribe(c echo.Context) error {
	req := new(models.SubscribeRequest)
	if errs := xhttp.ReadAndValidateRequest(c, req); errs != nil {
		return xhttp.BadRequestResponse(c, errs)
	}

	key, err := h.quotes.Subscribe(req.Symbol, req.Exchange)
	if err != nil {
		h.logger.Error("subscribe failed",
			applogger.String("symbol", req.Symbol),
			applogger.String("exchange", req.Exchange),
			applogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.BadRequestErrorf("subscribe: %v", err))
	}

	return xhttp.SuccessResponse(c, map[string]string{"key": key})
}

// Unsubscribe removes a symbol from the live quote stream.
func (h *MarketHandler) Unsubscribe(c echo.Context) error {
	req := new(models.UnsubscribeRequest)
	if errs := xhttp.ReadAndValidateRequest(c, req); errs != nil {
		return xhttp.BadRequestResponse(c, errs)
	}

	if err := h.quotes.Unsubscribe(c.Request().Context(), req.Symbol, req.Exchange); err != nil {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestErrorf("unsubscribe: %v", err))
	}
	return xhttp.NoContentResponse(c)
}

// LatestQuote returns the cached latest quote for ?symbol=&exchange=.
func (h *MarketHandler) LatestQuote(c echo.Context) error {
	symbol := c.QueryParam("symbol")
	exchange := c.QueryParam("exchange")
	if symbol == "" || exchange == "" {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError("symbol and exchange are required"))
	}

	quote, err := h.quotes.GetLatestQuote(c.Request().Context(), symbol, exchange)
	if err != nil {
		return xhttp.AppErrorResponse(c, xhttp.InternalErrorf("latest quote: %v", err))
	}
	if quote == nil {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("no quote for %s", models.SymbolKey(symbol, exchange)))
	}
	return xhttp.SuccessResponse(c, quote)
}

// CurrentBar returns the cached in-progress bar for ?symbol=&exchange=&interval=.
func (h *MarketHandler) CurrentBar(c echo.Context) error {
	symbol := c.QueryParam("symbol")
	exchange := c.QueryParam("exchange")
	if symbol == "" || exchange == "" {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError("symbol and exchange are required"))
	}

	ivParam := c.QueryParam("interval")
	if ivParam == "" {
		ivParam = string(models.Interval1m)
	}
	iv, ok := models.ParseInterval(ivParam)
	if !ok {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestErrorf("unknown interval '%s'", ivParam))
	}

	bar, err := h.quotes.GetCurrentBar(c.Request().Context(), symbol, exchange, iv)
	if err != nil {
		return xhttp.AppErrorResponse(c, xhttp.InternalErrorf("current bar: %v", err))
	}
	if bar == nil {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("no open bar for %s %s", models.SymbolKey(symbol, exchange), iv))
	}
	return xhttp.SuccessResponse(c, bar)
}

// BarsHistory queries completed bars from storage over a time range.
func (h *MarketHandler) BarsHistory(c echo.Context) error {
	req := new(models.BarsHistoryRequest)
	if errs := xhttp.ReadAndValidateRequest(c, req); errs != nil {
		return xhttp.BadRequestResponse(c, errs)
	}

	iv, ok := models.ParseInterval(req.Interval)
	if !ok {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestErrorf("unknown interval '%s'", req.Interval))
	}

	from, ok := xhttp.ParseTime(req.From)
	if !ok {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError("from must be RFC3339 or unix seconds"))
	}
	to := xhttp.ParseTimeDefault(req.To, time.Now().UTC())
	if !from.Before(to) {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError("from must be before to"))
	}
	from, to = xhttp.AlignFromTo(from, to, req.Interval)

	bars, err := h.store.QueryBars(c.Request().Context(), req.Symbol, req.Exchange, iv, from, to, req.Limit)
	if err != nil {
		h.logger.Error("bars history query failed", applogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalErrorf("query bars: %v", err))
	}
	return xhttp.ListResponse(c, bars, int64(len(bars)))
}

// FlushBars forces every in-flight bar out to the backend.
func (h *MarketHandler) FlushBars(c echo.Context) error {
	flushed := h.quotes.FlushAll(c.Request().Context())
	return xhttp.SuccessResponse(c, map[string]int{"flushed": flushed})
}

// Status returns the service diagnostic snapshot.
func (h *MarketHandler) Status(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.quotes.Status())
}

// Health checks backend storage connectivity.
func (h *MarketHandler) Health(c echo.Context) error {
	if err := h.store.Health(c.Request().Context()); err != nil {
		return xhttp.DataResponse(c, http.StatusServiceUnavailable, map[string]string{"storage": err.Error()})
	}
	return xhttp.SuccessResponse(c, map[string]string{"storage": "ok"})
}
