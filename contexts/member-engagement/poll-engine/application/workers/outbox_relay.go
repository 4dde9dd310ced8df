package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	application "pollhub/contexts/member-engagement/poll-engine/application"
	"pollhub/contexts/member-engagement/poll-engine/ports"
)

// OutboxRelay moves poll lifecycle events from the outbox to the event bus.
type OutboxRelay struct {
	Outbox    ports.OutboxRepository
	Publisher ports.EventPublisher
	Clock     ports.Clock
	BatchSize int
	Logger    *slog.Logger
}

// RunOnce publishes up to BatchSize pending rows in creation order. A row is
// marked published only after the bus accepted it, and the cycle stops at the
// first failure so later events are never published ahead of earlier ones.
func (r OutboxRelay) RunOnce(ctx context.Context) error {
	logger := application.ResolveLogger(r.Logger)
	limit := r.BatchSize
	if limit <= 0 {
		limit = 100
	}

	pending, err := r.Outbox.ListPendingOutbox(ctx, limit)
	if err != nil {
		logger.Error("poll outbox list failed",
			"event", "poll_outbox_list_failed",
			"module", "member-engagement/poll-engine",
			"layer", "worker",
			"error", err.Error(),
		)
		return err
	}
	if len(pending) == 0 {
		return nil
	}

	published := 0
	for _, row := range pending {
		if err := r.relay(ctx, row); err != nil {
			logger.Error("poll outbox relay failed",
				"event", "poll_outbox_relay_failed",
				"module", "member-engagement/poll-engine",
				"layer", "worker",
				"outbox_id", row.OutboxID,
				"event_type", row.EventType,
				"error", err.Error(),
			)
			return err
		}
		published++
	}

	logger.Info("poll outbox relay cycle completed",
		"event", "poll_outbox_relay_completed",
		"module", "member-engagement/poll-engine",
		"layer", "worker",
		"published_count", published,
	)
	return nil
}

func (r OutboxRelay) relay(ctx context.Context, row ports.OutboxMessage) error {
	var event ports.EventEnvelope
	if err := json.Unmarshal(row.Payload, &event); err != nil {
		return fmt.Errorf("decode outbox payload: %w", err)
	}
	topic := event.EventType
	if topic == "" {
		topic = row.EventType
	}
	if err := r.Publisher.Publish(ctx, topic, event); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	now := time.Now().UTC()
	if r.Clock != nil {
		now = r.Clock.Now().UTC()
	}
	if err := r.Outbox.MarkOutboxPublished(ctx, row.OutboxID, now); err != nil {
		return fmt.Errorf("mark outbox published: %w", err)
	}
	return nil
}
