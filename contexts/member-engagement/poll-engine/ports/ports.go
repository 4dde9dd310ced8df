package ports

import (
	"context"
	"time"

	contractsv1 "pollhub/contracts/gen/events/v1"
	"pollhub/contexts/member-engagement/poll-engine/domain/entities"
)

type PollFilter struct {
	// Status filters by lifecycle status; empty returns every poll.
	Status entities.PollStatus
	Offset int
	Limit  int
}

type PollPage struct {
	Items []entities.Poll
	Total int
}

// PollRepository is the durable home of polls, options and ballots. Reads run
// outside transactions; every mutation goes through RunInTx so that partial
// application is impossible.
type PollRepository interface {
	GetPoll(ctx context.Context, pollID string) (entities.Poll, error)
	// GetPollWithBallots reads the poll and all of its ballots from one
	// consistent snapshot.
	GetPollWithBallots(ctx context.Context, pollID string) (entities.Poll, []entities.Ballot, error)
	ListPolls(ctx context.Context, filter PollFilter) (PollPage, error)
	CountParticipants(ctx context.Context, pollIDs []string) (map[string]int, error)
	ListVotedPollIDs(ctx context.Context, memberID string, pollIDs []string) (map[string]bool, error)
	// ListExpiredActivePolls returns active polls whose deadline is strictly
	// before now, oldest deadline first. A limit <= 0 means no limit.
	ListExpiredActivePolls(ctx context.Context, now time.Time, limit int) ([]entities.Poll, error)
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx PollTx) error) error
}

// PollTx is the transactional view handed to RunInTx callbacks.
type PollTx interface {
	// LockPoll loads the poll under an exclusive lock. Option management,
	// closing and deletion take this lock.
	LockPoll(ctx context.Context, pollID string) (entities.Poll, error)
	// LockMemberBallots loads the poll under a shared lock and serializes
	// ballot changes for one (poll, member) pair. Different members of the
	// same poll do not block each other.
	LockMemberBallots(ctx context.Context, pollID string, memberID string) (entities.Poll, error)
	// SavePoll upserts the poll header and makes the stored option set equal
	// to poll.Options.
	SavePoll(ctx context.Context, poll entities.Poll) error
	// DeletePoll removes ballots, options and the poll, in that order.
	DeletePoll(ctx context.Context, pollID string) error
	CountBallotsByOption(ctx context.Context, pollID string) (map[string]int, error)
	// ReplaceMemberBallots deletes every ballot of the member on the poll and
	// inserts ballots in their place.
	ReplaceMemberBallots(ctx context.Context, pollID string, memberID string, ballots []entities.Ballot) error
	// ClaimIdempotencyKey stores record in the same transaction as the poll it
	// names. It returns ErrIdempotencyConflict when an unexpired record for
	// the key already exists.
	ClaimIdempotencyKey(ctx context.Context, record IdempotencyRecord, now time.Time) error
	OutboxWriter
}

// MemberDirectory resolves caller identities. Members are owned by an
// external system; this module only reads them.
type MemberDirectory interface {
	// ResolveMember accepts a member id or an email address.
	ResolveMember(ctx context.Context, identifier string) (entities.Member, error)
	LookupMembers(ctx context.Context, memberIDs []string) (map[string]entities.Member, error)
	ActiveMemberCount(ctx context.Context) (int64, error)
}

type IdempotencyRecord struct {
	Key         string
	RequestHash string
	PollID      string
	ExpiresAt   time.Time
}

// IdempotencyStore looks up claimed keys. Keys are written only through
// PollTx.ClaimIdempotencyKey, together with the poll they name.
type IdempotencyStore interface {
	Get(ctx context.Context, key string, now time.Time) (IdempotencyRecord, bool, error)
}

type EventEnvelope = contractsv1.Envelope

type OutboxMessage struct {
	OutboxID     string
	EventType    string
	PartitionKey string
	Payload      []byte
	CreatedAt    time.Time
}

type OutboxWriter interface {
	AppendOutbox(ctx context.Context, envelope EventEnvelope) error
}

type OutboxRepository interface {
	ListPendingOutbox(ctx context.Context, limit int) ([]OutboxMessage, error)
	MarkOutboxPublished(ctx context.Context, outboxID string, publishedAt time.Time) error
}

type EventPublisher interface {
	Publish(ctx context.Context, topic string, event EventEnvelope) error
}

type Clock interface {
	Now() time.Time
}

type IDGenerator interface {
	NewID(ctx context.Context) (string, error)
}
