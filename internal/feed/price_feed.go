// Package feed keeps the price cache current from the Polymarket market
// WebSocket for every token with an open position.
package feed

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"time"

	"github.com/alanyoungcy/autobot/internal/domain"
	"github.com/alanyoungcy/autobot/internal/platform/polymarket"
)

const (
	reconnectDelay    = 2 * time.Second
	maxReconnectDelay = time.Minute
)

// TokenSource lists the tokens that need prices.
type TokenSource interface {
	Snapshot() domain.LedgerSnapshot
}

// errTokensChanged ends a connection so the next one subscribes to the new
// token set.
var errTokensChanged = errors.New("token set changed")

// PriceFeed streams ticks for open-position tokens into a PriceCache.
type PriceFeed struct {
	wsURL   string
	tokens  TokenSource
	cache   domain.PriceCache
	refresh time.Duration
	logger  *slog.Logger
}

// NewPriceFeed creates a PriceFeed. The token set is re-read every refresh.
func NewPriceFeed(wsURL string, tokens TokenSource, cache domain.PriceCache, refresh time.Duration, logger *slog.Logger) *PriceFeed {
	if refresh <= 0 {
		refresh = time.Minute
	}
	return &PriceFeed{
		wsURL:   wsURL,
		tokens:  tokens,
		cache:   cache,
		refresh: refresh,
		logger:  logger.With(slog.String("component", "price_feed")),
	}
}

// Run connects, subscribes and writes ticks until ctx is cancelled.
// Disconnects are retried with exponential backoff.
func (f *PriceFeed) Run(ctx context.Context) error {
	delay := reconnectDelay
	for {
		tokens := f.currentTokens()
		if len(tokens) == 0 {
			if err := sleep(ctx, f.refresh); err != nil {
				return err
			}
			continue
		}

		err := f.runConnection(ctx, tokens)
		switch {
		case ctx.Err() != nil:
			return ctx.Err()
		case errors.Is(err, errTokensChanged):
			delay = reconnectDelay
			continue
		}

		f.logger.Warn("price_feed: disconnected, reconnecting",
			slog.String("error", err.Error()),
			slog.Duration("delay", delay),
		)
		if err := sleep(ctx, delay); err != nil {
			return err
		}
		delay = min(delay*2, maxReconnectDelay)
	}
}

func (f *PriceFeed) runConnection(ctx context.Context, tokens []string) error {
	connCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	client := polymarket.NewWSClient(f.wsURL)
	defer client.Close()
	client.OnTick(func(t polymarket.PriceTick) {
		if err := f.cache.SetPrice(connCtx, t.TokenID, t.Price, t.At); err != nil {
			f.logger.Debug("price_feed: cache write failed",
				slog.String("token_id", t.TokenID),
				slog.String("error", err.Error()),
			)
		}
	})

	dialCtx, dialCancel := context.WithTimeout(connCtx, 15*time.Second)
	err := client.Connect(dialCtx)
	dialCancel()
	if err != nil {
		return err
	}
	if err := client.Subscribe(tokens); err != nil {
		return err
	}
	f.logger.Info("price_feed: subscribed", slog.Int("tokens", len(tokens)))

	go f.watchTokens(connCtx, cancel, tokens)

	err = client.Listen(connCtx)
	if cause := context.Cause(connCtx); errors.Is(cause, errTokensChanged) {
		return errTokensChanged
	}
	return err
}

// watchTokens cancels the connection when the open token set changes.
func (f *PriceFeed) watchTokens(ctx context.Context, cancel context.CancelCauseFunc, current []string) {
	ticker := time.NewTicker(f.refresh)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !slices.Equal(f.currentTokens(), current) {
				f.logger.Info("price_feed: token set changed, resubscribing")
				cancel(errTokensChanged)
				return
			}
		}
	}
}

func (f *PriceFeed) currentTokens() []string {
	tokens := f.tokens.Snapshot().Tokens()
	slices.Sort(tokens)
	return tokens
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
