package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/autobot/internal/domain"
)

// ErrInvalidOpportunity marks an opportunity that cannot be evaluated.
var ErrInvalidOpportunity = errors.New("invalid opportunity")

// DecodeOpportunity parses and sanity-checks one JSON opportunity. Missing
// fields that the executor can reason about (token ids, prices) are left for
// it to reject with a reason.
func DecodeOpportunity(payload []byte, now time.Time) (domain.Opportunity, error) {
	var opp domain.Opportunity
	if err := json.Unmarshal(payload, &opp); err != nil {
		return domain.Opportunity{}, fmt.Errorf("%w: %v", ErrInvalidOpportunity, err)
	}
	if opp.MarketID == "" {
		return domain.Opportunity{}, fmt.Errorf("%w: market_id is required", ErrInvalidOpportunity)
	}
	switch opp.RecommendedSide {
	case domain.OutcomeYes, domain.OutcomeNo:
	case "":
		opp.RecommendedSide = domain.OutcomeYes
	default:
		return domain.Opportunity{}, fmt.Errorf("%w: recommended_side %q", ErrInvalidOpportunity, opp.RecommendedSide)
	}
	if opp.DetectedAt.IsZero() {
		opp.DetectedAt = now.UTC()
	}
	return opp, nil
}

// Intake feeds opportunities published on the bus into the executor's
// channel.
type Intake struct {
	bus     domain.SignalBus
	channel string
	logger  *slog.Logger
}

// NewIntake creates an Intake listening on channel.
func NewIntake(bus domain.SignalBus, channel string, logger *slog.Logger) *Intake {
	if channel == "" {
		channel = OpportunitiesChannel
	}
	return &Intake{
		bus:     bus,
		channel: channel,
		logger:  logger.With(slog.String("component", "intake")),
	}
}

// Run forwards decoded opportunities to out until ctx is cancelled or the
// subscription ends. Malformed payloads are logged and dropped.
func (in *Intake) Run(ctx context.Context, out chan<- domain.Opportunity) error {
	msgs, err := in.bus.Subscribe(ctx, in.channel)
	if err != nil {
		return fmt.Errorf("intake: subscribe %s: %w", in.channel, err)
	}
	in.logger.Info("intake listening", slog.String("channel", in.channel))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case payload, ok := <-msgs:
			if !ok {
				return nil
			}
			opp, err := DecodeOpportunity(payload, time.Now())
			if err != nil {
				in.logger.WarnContext(ctx, "intake: dropping opportunity", slog.String("error", err.Error()))
				continue
			}
			select {
			case out <- opp:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}
