package v1

import (
	"encoding/json"
	"time"
)

// Envelope is the versioned event envelope shared by the outbox, the relay and
// bus subscribers. Fields may be added; existing fields keep their JSON names.
type Envelope struct {
	EventID          string          `json:"event_id"`
	EventType        string          `json:"event_type"`
	OccurredAt       time.Time       `json:"occurred_at"`
	SourceService    string          `json:"source_service"`
	TraceID          string          `json:"trace_id"`
	SchemaVersion    int             `json:"schema_version"`
	PartitionKeyPath string          `json:"partition_key_path"`
	PartitionKey     string          `json:"partition_key"`
	Data             json.RawMessage `json:"data"`
}

// Poll lifecycle event types.
const (
	EventPollCreated     = "poll.created"
	EventPollUpdated     = "poll.updated"
	EventPollDeleted     = "poll.deleted"
	EventPollClosed      = "poll.closed"
	EventPollOptionAdded = "poll.option_added"
)
