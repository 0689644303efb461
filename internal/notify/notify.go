// Package notify delivers actor notifications over the event bus.
// Notification delivery is fire-and-forget: a failed publish is logged and
// never fails the workflow transition that triggered it.
package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Event is the notification payload published on the bus.
type Event struct {
	ActorID   string    `json:"actorId"`
	ClaimID   string    `json:"claimId"`
	Kind      string    `json:"kind"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Service implements domain.Notifier on top of the event bus.
type Service struct {
	bus domain.EventBus
}

// NewService creates a bus-backed notifier.
func NewService(bus domain.EventBus) *Service {
	return &Service{bus: bus}
}

// Notify publishes the notification to the topic for its kind.
func (s *Service) Notify(ctx context.Context, tenantID, actorID, claimID, kind, text string) error {
	if s.bus == nil {
		return nil
	}

	payload, err := json.Marshal(Event{
		ActorID:   actorID,
		ClaimID:   claimID,
		Kind:      kind,
		Text:      text,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		return err
	}

	topic := topicForKind(kind)
	if err := s.bus.Publish(ctx, tenantID, topic, payload); err != nil {
		slog.Warn("notification publish failed",
			"claim_id", claimID,
			"kind", kind,
			"error", err,
		)
		return err
	}
	return nil
}

func topicForKind(kind string) string {
	switch kind {
	case domain.NotifyClaimForwarded:
		return domain.TopicClaimForwarded
	case domain.NotifyClaimApproved:
		return domain.TopicClaimApproved
	case domain.NotifyClaimRejected:
		return domain.TopicClaimRejected
	case domain.NotifyInfoRequested:
		return domain.TopicClaimInfoRequested
	default:
		return domain.TopicClaimScored
	}
}
