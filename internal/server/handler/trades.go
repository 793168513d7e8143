package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/autobot/internal/domain"
)

// TradeReader is the read side of the ledger store.
type TradeReader interface {
	ListClosedTrades(ctx context.Context, opts domain.ListOpts) ([]domain.ClosedTrade, error)
	TradeStats(ctx context.Context) (domain.TradeStats, error)
}

// TradeHandler serves closed trades and their statistics.
type TradeHandler struct {
	store  TradeReader
	logger *slog.Logger
}

// NewTradeHandler creates a TradeHandler.
func NewTradeHandler(store TradeReader, logger *slog.Logger) *TradeHandler {
	return &TradeHandler{store: store, logger: logHandler(logger, "trades")}
}

type listTradesResponse struct {
	Trades []domain.ClosedTrade `json:"trades"`
	Limit  int                  `json:"limit"`
	Offset int                  `json:"offset"`
}

// ListTrades returns closed trades, newest first.
// GET /api/trades?limit=&offset=&since=
func (h *TradeHandler) ListTrades(w http.ResponseWriter, r *http.Request) {
	opts, err := parseListOpts(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	trades, err := h.store.ListClosedTrades(r.Context(), opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list trades failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list trades")
		return
	}
	if trades == nil {
		trades = []domain.ClosedTrade{}
	}
	writeJSON(w, http.StatusOK, listTradesResponse{Trades: trades, Limit: opts.Limit, Offset: opts.Offset})
}

// Stats returns aggregate statistics over all closed trades.
// GET /api/stats
func (h *TradeHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.TradeStats(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: trade stats failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to compute stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
