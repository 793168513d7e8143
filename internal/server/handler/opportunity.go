package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/autobot/internal/domain"
	"github.com/alanyoungcy/autobot/internal/relay"
)

// Processor runs one opportunity through the trading pipeline.
type Processor interface {
	Process(ctx context.Context, opp domain.Opportunity) domain.TradeDecision
}

// OpportunityHandler accepts opportunities over HTTP.
type OpportunityHandler struct {
	proc   Processor
	logger *slog.Logger
}

// NewOpportunityHandler creates an OpportunityHandler.
func NewOpportunityHandler(proc Processor, logger *slog.Logger) *OpportunityHandler {
	return &OpportunityHandler{proc: proc, logger: logHandler(logger, "opportunities")}
}

// Submit decodes an opportunity, processes it synchronously and returns the
// decision. Rejections are still 200; only malformed input is a 400.
// POST /api/opportunities
func (h *OpportunityHandler) Submit(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	opp, err := relay.DecodeOpportunity(body, time.Now())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// a client disconnect must not abort an order mid-flight
	d := h.proc.Process(context.WithoutCancel(r.Context()), opp)
	h.logger.InfoContext(r.Context(), "handler: opportunity processed",
		slog.String("market_id", opp.MarketID),
		slog.Bool("approved", d.Approved),
		slog.Bool("executed", d.Executed),
		slog.String("reason", d.Reason),
	)
	writeJSON(w, http.StatusOK, d)
}
