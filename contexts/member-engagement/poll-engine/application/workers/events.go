package workers

import (
	"context"
	"encoding/json"
	"time"

	contractsv1 "pollhub/contracts/gen/events/v1"
	"pollhub/contexts/member-engagement/poll-engine/domain/entities"
	"pollhub/contexts/member-engagement/poll-engine/ports"
)

func newPollClosedEnvelope(
	ctx context.Context,
	idGen ports.IDGenerator,
	poll entities.Poll,
	occurredAt time.Time,
) (ports.EventEnvelope, error) {
	eventID, err := idGen.NewID(ctx)
	if err != nil {
		return ports.EventEnvelope{}, err
	}
	payload, err := json.Marshal(map[string]any{
		"poll_id":   poll.PollID,
		"author_id": poll.AuthorID,
		"status":    string(poll.Status),
		"deadline":  poll.Deadline,
		"reason":    "deadline_reached",
	})
	if err != nil {
		return ports.EventEnvelope{}, err
	}
	return ports.EventEnvelope{
		EventID:          eventID,
		EventType:        contractsv1.EventPollClosed,
		OccurredAt:       occurredAt.UTC(),
		SourceService:    "poll-engine",
		TraceID:          eventID,
		SchemaVersion:    1,
		PartitionKeyPath: "poll_id",
		PartitionKey:     poll.PollID,
		Data:             payload,
	}, nil
}
