package handler

import (
	"net/http"

	"github.com/alanyoungcy/autobot/internal/domain"
	"github.com/alanyoungcy/autobot/internal/executor"
)

// RiskView is the risk gate as the status endpoint sees it.
type RiskView interface {
	CheckStatus() domain.RiskStatus
	Limits() domain.RiskLimits
	Paused() (bool, string)
}

// ExecutorStats exposes the executor counters.
type ExecutorStats interface {
	Stats() executor.Stats
}

// StatusHandler serves the trading status for dashboards.
type StatusHandler struct {
	mode  string
	paper bool
	gate  RiskView
	exec  ExecutorStats
}

// NewStatusHandler creates a StatusHandler. exec may be nil in modes that
// do not trade.
func NewStatusHandler(mode string, paper bool, gate RiskView, exec ExecutorStats) *StatusHandler {
	return &StatusHandler{mode: mode, paper: paper, gate: gate, exec: exec}
}

type statusResponse struct {
	Mode     string            `json:"mode"`
	Paper    bool              `json:"paper"`
	Paused   bool              `json:"paused"`
	Risk     domain.RiskStatus `json:"risk"`
	Limits   domain.RiskLimits `json:"limits"`
	Executor *executor.Stats   `json:"executor,omitempty"`
}

// GetStatus responds with the current risk status and limits.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		Mode:   h.mode,
		Paper:  h.paper,
		Risk:   h.gate.CheckStatus(),
		Limits: h.gate.Limits(),
	}
	resp.Paused, _ = h.gate.Paused()
	if h.exec != nil {
		st := h.exec.Stats()
		resp.Executor = &st
	}
	writeJSON(w, http.StatusOK, resp)
}
