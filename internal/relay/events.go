package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/autobot/internal/domain"
)

// Channel and stream names on the signal bus.
const (
	EventsChannel        = "events"
	EventsStream         = "events"
	OpportunitiesChannel = "opportunities"
)

// Event types.
const (
	EventDecision       = "decision"
	EventPositionClosed = "position_closed"
	EventTradingPaused  = "trading_paused"
)

// Event is the JSON envelope published for every trading event.
type Event struct {
	Type     string                `json:"type"`
	At       time.Time             `json:"at"`
	Decision *domain.TradeDecision `json:"decision,omitempty"`
	Trade    *domain.ClosedTrade   `json:"trade,omitempty"`
	Status   *domain.RiskStatus    `json:"status,omitempty"`
}

// Publisher writes events to a pub/sub channel for live consumers and to a
// stream for replay.
type Publisher struct {
	bus    domain.SignalBus
	now    func() time.Time
	logger *slog.Logger
}

// NewPublisher creates a Publisher on bus.
func NewPublisher(bus domain.SignalBus, logger *slog.Logger) *Publisher {
	return &Publisher{
		bus:    bus,
		now:    time.Now,
		logger: logger.With(slog.String("component", "event_relay")),
	}
}

// OnDecision publishes a processed trade decision.
func (p *Publisher) OnDecision(ctx context.Context, d domain.TradeDecision) error {
	return p.publish(ctx, Event{Type: EventDecision, Decision: &d})
}

// OnClose publishes a closed trade. Failures are logged.
func (p *Publisher) OnClose(ctx context.Context, t domain.ClosedTrade) {
	if err := p.publish(ctx, Event{Type: EventPositionClosed, Trade: &t}); err != nil {
		p.logger.WarnContext(ctx, "event_relay: publish close failed",
			slog.String("position_id", t.ID),
			slog.String("error", err.Error()),
		)
	}
}

// TradingPaused publishes a pause.
func (p *Publisher) TradingPaused(ctx context.Context, st domain.RiskStatus) error {
	return p.publish(ctx, Event{Type: EventTradingPaused, Status: &st})
}

func (p *Publisher) publish(ctx context.Context, evt Event) error {
	evt.At = p.now().UTC()
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("relay: marshal %s: %w", evt.Type, err)
	}
	if err := p.bus.StreamAppend(ctx, EventsStream, payload); err != nil {
		return fmt.Errorf("relay: append %s: %w", evt.Type, err)
	}
	if err := p.bus.Publish(ctx, EventsChannel, payload); err != nil {
		return fmt.Errorf("relay: publish %s: %w", evt.Type, err)
	}
	return nil
}

// Replay returns up to count stored events after lastID.
func (p *Publisher) Replay(ctx context.Context, lastID string, count int) ([]Event, string, error) {
	msgs, err := p.bus.StreamRead(ctx, EventsStream, lastID, count)
	if err != nil {
		return nil, lastID, fmt.Errorf("relay: replay: %w", err)
	}
	events := make([]Event, 0, len(msgs))
	for _, m := range msgs {
		var evt Event
		if err := json.Unmarshal(m.Payload, &evt); err != nil {
			p.logger.WarnContext(ctx, "event_relay: skipping malformed event",
				slog.String("id", m.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		events = append(events, evt)
		lastID = m.ID
	}
	return events, lastID, nil
}
