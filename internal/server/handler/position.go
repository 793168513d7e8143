package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/autobot/internal/domain"
)

// PositionBook is the part of the ledger the position endpoints use.
type PositionBook interface {
	Snapshot() domain.LedgerSnapshot
	Position(id string) (domain.Position, bool)
	Close(ctx context.Context, positionID string, exitPrice float64, reason domain.CloseReason) (domain.ClosedTrade, error)
}

// PositionHandler serves open positions and manual closes.
type PositionHandler struct {
	book    PositionBook
	prices  domain.PriceSource
	timeout time.Duration
	logger  *slog.Logger
}

// NewPositionHandler creates a PositionHandler. Each price lookup is bounded
// by timeout.
func NewPositionHandler(book PositionBook, prices domain.PriceSource, timeout time.Duration, logger *slog.Logger) *PositionHandler {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &PositionHandler{
		book:    book,
		prices:  prices,
		timeout: timeout,
		logger:  logHandler(logger, "positions"),
	}
}

type listPositionsResponse struct {
	Positions     []domain.PositionView `json:"positions"`
	Exposure      float64               `json:"exposure"`
	UnrealizedPnL float64               `json:"unrealized_pnl"`
}

// ListPositions returns every open position marked at the current price.
// Positions whose price cannot be fetched are returned unpriced.
// GET /api/positions
func (h *PositionHandler) ListPositions(w http.ResponseWriter, r *http.Request) {
	snap := h.book.Snapshot()

	resp := listPositionsResponse{
		Positions: make([]domain.PositionView, 0, len(snap.Positions)),
		Exposure:  snap.Exposure(),
	}
	for _, p := range snap.Positions {
		price, err := h.price(r.Context(), p.TokenID)
		if err != nil {
			h.logger.DebugContext(r.Context(), "handler: price unavailable",
				slog.String("token_id", p.TokenID),
				slog.String("error", err.Error()),
			)
			resp.Positions = append(resp.Positions, domain.PositionView{Position: p})
			continue
		}
		view := p.Mark(price)
		resp.UnrealizedPnL += view.UnrealizedPnL
		resp.Positions = append(resp.Positions, view)
	}
	writeJSON(w, http.StatusOK, resp)
}

type closeRequest struct {
	Price *float64 `json:"price"`
}

// ClosePosition closes a position with reason MANUAL, at the price in the
// body if given and otherwise at the current price.
// POST /api/positions/{id}/close
func (h *PositionHandler) ClosePosition(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	pos, ok := h.book.Position(id)
	if !ok {
		writeError(w, http.StatusNotFound, "position not found")
		return
	}

	body, err := readBody(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req closeRequest
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
	}

	var price float64
	if req.Price != nil {
		price = *req.Price
	} else {
		price, err = h.price(r.Context(), pos.TokenID)
		if err != nil {
			h.logger.WarnContext(r.Context(), "handler: close without price",
				slog.String("position_id", id),
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusBadGateway, "current price unavailable")
			return
		}
	}

	trade, err := h.book.Close(r.Context(), id, price, domain.CloseReasonManual)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "position not found")
		return
	case err != nil:
		h.logger.ErrorContext(r.Context(), "handler: manual close failed",
			slog.String("position_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, trade)
}

func (h *PositionHandler) price(ctx context.Context, tokenID string) (float64, error) {
	if h.prices == nil {
		return 0, errors.New("no price source")
	}
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()
	return h.prices.Price(ctx, tokenID)
}
