package notify_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alanyoungcy/autobot/internal/domain"
	"github.com/alanyoungcy/autobot/internal/notify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type message struct {
	title, body string
}

type recordingSender struct {
	mu   sync.Mutex
	msgs []message
	err  error
}

func (r *recordingSender) Send(_ context.Context, title, body string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, message{title, body})
	return r.err
}

func (r *recordingSender) Name() string { return "recording" }

func (r *recordingSender) sent() []message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]message(nil), r.msgs...)
}

func TestTelegramSenderPostsMessage(t *testing.T) {
	var got map[string]any
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := notify.NewTelegramSender("tok123", "chat9", notify.WithBaseURL(srv.URL), notify.WithHTTPClient(srv.Client()))
	require.NoError(t, s.Send(context.Background(), "Title", "body"))

	assert.Equal(t, "/bottok123/sendMessage", path)
	assert.Equal(t, "chat9", got["chat_id"])
	assert.Equal(t, "*Title*\nbody", got["text"])
	assert.Equal(t, true, got["disable_web_page_preview"])
	assert.Equal(t, "telegram", s.Name())
}

func TestDiscordSenderReportsBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadRequest)
	}))
	defer srv.Close()

	s := notify.NewDiscordSender(srv.URL, notify.WithHTTPClient(srv.Client()))
	err := s.Send(context.Background(), "T", "m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 400")
}

func TestDiscordSenderColoursEmbeds(t *testing.T) {
	var got struct {
		Embeds []struct {
			Title       string `json:"title"`
			Description string `json:"description"`
			Color       int    `json:"color"`
		} `json:"embeds"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	s := notify.NewDiscordSender(srv.URL, notify.WithHTTPClient(srv.Client()))
	require.NoError(t, s.Send(context.Background(), "POSITION CLOSED - STOP LOSS", "P&L: $-150.00 (-15.0%)"))
	require.Len(t, got.Embeds, 1)
	assert.Equal(t, "POSITION CLOSED - STOP LOSS", got.Embeds[0].Title)
	assert.Equal(t, 0xE74C3C, got.Embeds[0].Color)

	require.NoError(t, s.Send(context.Background(), "RISK ALERT", "paused"))
	assert.Equal(t, 0xF1C40F, got.Embeds[0].Color)
}

func TestTelegramErrorHidesToken(t *testing.T) {
	s := notify.NewTelegramSender("secret-token", "chat", notify.WithBaseURL("http://127.0.0.1:1"))
	err := s.Send(context.Background(), "T", "m")
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "secret-token")
}

func TestNotifierFiltersEvents(t *testing.T) {
	rec := &recordingSender{}
	n := notify.NewNotifier([]notify.Sender{rec}, []string{" position_closed ", ""}, quietLogger())

	require.NoError(t, n.Notify(context.Background(), "trade_executed", "a", "b"))
	require.NoError(t, n.Notify(context.Background(), "position_closed", "c", "d"))
	require.NoError(t, n.NotifyAll(context.Background(), "e", "f"))

	msgs := rec.sent()
	require.Len(t, msgs, 2)
	assert.Equal(t, "c", msgs[0].title)
	assert.Equal(t, "e", msgs[1].title)
	assert.True(t, n.Enabled())
	assert.False(t, notify.NewNotifier(nil, nil, quietLogger()).Enabled())
}

func TestNotifierCollectsSenderErrors(t *testing.T) {
	good := &recordingSender{}
	bad := &recordingSender{err: errors.New("boom")}
	n := notify.NewNotifier([]notify.Sender{bad, good}, nil, quietLogger())

	err := n.Notify(context.Background(), "anything", "t", "m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 sender(s) failed")
	assert.Len(t, good.sent(), 1)
}

func TestAlertsDecisionRouting(t *testing.T) {
	rec := &recordingSender{}
	at := time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)
	a := notify.NewAlerts(notify.NewNotifier([]notify.Sender{rec}, nil, quietLogger()), quietLogger()).
		WithClock(func() time.Time { return at })

	opp := domain.Opportunity{Question: "Will it rain?", RecommendedSide: domain.OutcomeYes, Edge: 0.15, Confidence: 0.8, FairValue: 0.55, YesPrice: 0.4, NoPrice: 0.6}
	ctx := context.Background()

	require.NoError(t, a.OnDecision(ctx, domain.TradeDecision{Opportunity: opp, Reason: "Edge too small"}))
	require.NoError(t, a.OnDecision(ctx, domain.TradeDecision{Opportunity: opp, Approved: true, Reason: "Auto-trade disabled"}))
	require.NoError(t, a.OnDecision(ctx, domain.TradeDecision{Opportunity: opp, Approved: true, Executed: true, SizeUSD: 2400, SizeShares: 6000, Price: 0.4}))

	msgs := rec.sent()
	require.Len(t, msgs, 2)
	assert.Equal(t, "OPPORTUNITY DETECTED", msgs[0].title)
	assert.Contains(t, msgs[0].body, "Not executed: Auto-trade disabled")
	assert.Equal(t, "TRADE EXECUTED", msgs[1].title)
	assert.Contains(t, msgs[1].body, "Size: $2400.00 (6000.00 shares)")
	assert.Contains(t, msgs[1].body, "Edge: 15.0%")
	assert.Contains(t, msgs[1].body, "2026-03-02 15:00:00 UTC")
}

func TestAlertsCloseAndPause(t *testing.T) {
	rec := &recordingSender{}
	a := notify.NewAlerts(notify.NewNotifier([]notify.Sender{rec}, nil, quietLogger()), quietLogger())
	ctx := context.Background()

	a.OnClose(ctx, domain.ClosedTrade{
		ID: "p1", Market: "Will it rain?", EntryPrice: 0.5, ExitPrice: 0.54, Size: 1000,
		PnL: 40, PnLPct: 8, CloseReason: domain.CloseReasonTrailingStop,
		ExitTime: time.Date(2026, 3, 2, 16, 0, 0, 0, time.UTC),
	})
	require.NoError(t, a.TradingPaused(ctx, domain.RiskStatus{Reason: "Daily loss limit hit", Equity: 8900, DailyPnL: -1100, DailyPnLPct: -11}))

	msgs := rec.sent()
	require.Len(t, msgs, 2)
	assert.Equal(t, "POSITION CLOSED - TRAILING STOP", msgs[0].title)
	assert.Contains(t, msgs[0].body, "P&L: $+40.00 (+8.0%)")
	assert.Equal(t, "RISK ALERT", msgs[1].title)
	assert.Contains(t, msgs[1].body, "Daily loss limit hit")
	assert.Contains(t, msgs[1].body, "Daily P&L: $-1100.00 (-11.0%)")
}
