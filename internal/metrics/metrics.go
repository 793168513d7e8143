// Package metrics provides Prometheus instrumentation for the trading core.
package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alanyoungcy/autobot/internal/domain"
)

var (
	// Decisions counts processed opportunities by outcome
	// (rejected, approved, executed).
	Decisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "autobot_decisions_total",
		Help: "Processed opportunities by outcome",
	}, []string{"outcome"})

	// TradeVolume is the cumulative USD notional of executed entries.
	TradeVolume = promauto.NewCounter(prometheus.CounterOpts{
		Name: "autobot_trade_volume_usd_total",
		Help: "Cumulative notional of executed entries in USD",
	})

	// ClosedTrades counts closed positions by close reason.
	ClosedTrades = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "autobot_closed_trades_total",
		Help: "Closed positions by reason",
	}, []string{"reason"})

	// RealizedPnL is a histogram of realized P&L per closed trade.
	RealizedPnL = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "autobot_realized_pnl_usd",
		Help:    "Realized P&L per closed trade in USD",
		Buckets: []float64{-1000, -500, -250, -100, -50, -10, 0, 10, 50, 100, 250, 500, 1000},
	})

	Equity = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "autobot_equity_usd",
		Help: "Ledger cash balance",
	})

	DailyPnL = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "autobot_daily_pnl_usd",
		Help: "Realized P&L since the last daily reset",
	})

	OpenPositions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "autobot_open_positions",
		Help: "Number of open positions",
	})

	ExposurePct = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "autobot_exposure_pct",
		Help: "Open notional as a percentage of equity",
	})

	// TradingAllowed is 1 when the risk gate admits new trades.
	TradingAllowed = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "autobot_trading_allowed",
		Help: "1 when new trades are allowed, 0 otherwise",
	})

	// PriceFetchErrors counts failed price lookups in the limit monitor.
	PriceFetchErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "autobot_price_fetch_errors_total",
		Help: "Failed price lookups during limit sweeps",
	})

	SweepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "autobot_sweep_duration_seconds",
		Help:    "Duration of one limit monitor sweep",
		Buckets: prometheus.DefBuckets,
	})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "autobot_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "autobot_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// ObserveStatus copies a risk status into the account gauges.
func ObserveStatus(st domain.RiskStatus) {
	Equity.Set(st.Equity)
	DailyPnL.Set(st.DailyPnL)
	OpenPositions.Set(float64(st.OpenPositions))
	ExposurePct.Set(st.ExposurePct)
	if st.TradingAllowed {
		TradingAllowed.Set(1)
	} else {
		TradingAllowed.Set(0)
	}
}

// ObserveDecision counts one processed opportunity.
func ObserveDecision(d domain.TradeDecision) {
	switch {
	case d.Executed:
		Decisions.WithLabelValues("executed").Inc()
		TradeVolume.Add(d.SizeUSD)
	case d.Approved:
		Decisions.WithLabelValues("approved").Inc()
	default:
		Decisions.WithLabelValues("rejected").Inc()
	}
}

// ObserveClose counts one closed trade.
func ObserveClose(t domain.ClosedTrade) {
	ClosedTrades.WithLabelValues(string(t.CloseReason)).Inc()
	RealizedPnL.Observe(t.PnL)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		path := r.Pattern
		if path == "" {
			path = "unmatched"
		}
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Hijack lets WebSocket upgrades pass through the middleware.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("metrics: response writer does not support hijacking")
	}
	return h.Hijack()
}
