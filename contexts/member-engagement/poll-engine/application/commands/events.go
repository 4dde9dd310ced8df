package commands

import (
	"context"
	"encoding/json"
	"time"

	"pollhub/contexts/member-engagement/poll-engine/domain/entities"
	"pollhub/contexts/member-engagement/poll-engine/ports"
)

func newPollEnvelope(
	eventID string,
	eventType string,
	pollID string,
	occurredAt time.Time,
	data map[string]any,
) (ports.EventEnvelope, error) {
	// Poll events are partitioned by poll so consumers see one poll's
	// lifecycle in order.
	payload, err := json.Marshal(data)
	if err != nil {
		return ports.EventEnvelope{}, err
	}
	return ports.EventEnvelope{
		EventID:          eventID,
		EventType:        eventType,
		OccurredAt:       occurredAt.UTC(),
		SourceService:    "poll-engine",
		TraceID:          eventID,
		SchemaVersion:    1,
		PartitionKeyPath: "poll_id",
		PartitionKey:     pollID,
		Data:             payload,
	}, nil
}

func appendPollEvent(
	ctx context.Context,
	outbox ports.OutboxWriter,
	idGen ports.IDGenerator,
	eventType string,
	poll entities.Poll,
	occurredAt time.Time,
	extra map[string]any,
) error {
	eventID, err := idGen.NewID(ctx)
	if err != nil {
		return err
	}
	data := map[string]any{
		"poll_id":   poll.PollID,
		"author_id": poll.AuthorID,
		"status":    string(poll.Status),
	}
	for key, value := range extra {
		data[key] = value
	}
	envelope, err := newPollEnvelope(eventID, eventType, poll.PollID, occurredAt, data)
	if err != nil {
		return err
	}
	return outbox.AppendOutbox(ctx, envelope)
}
