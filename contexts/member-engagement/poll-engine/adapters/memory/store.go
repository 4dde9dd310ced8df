package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"pollhub/contexts/member-engagement/poll-engine/domain/entities"
	domainerrors "pollhub/contexts/member-engagement/poll-engine/domain/errors"
	"pollhub/contexts/member-engagement/poll-engine/ports"

	"github.com/google/uuid"
)

type outboxRecord struct {
	message   ports.OutboxMessage
	published bool
}

// pollState is everything a transaction may change. RunInTx works on a copy
// and swaps it in only when the callback succeeds.
type pollState struct {
	polls       map[string]entities.Poll
	ballots     map[string][]entities.Ballot
	outbox      map[string]outboxRecord
	outboxOrder []string
	idempotency map[string]ports.IdempotencyRecord
}

func (s pollState) clone() pollState {
	next := pollState{
		polls:       make(map[string]entities.Poll, len(s.polls)),
		ballots:     make(map[string][]entities.Ballot, len(s.ballots)),
		outbox:      make(map[string]outboxRecord, len(s.outbox)),
		outboxOrder: append([]string(nil), s.outboxOrder...),
		idempotency: make(map[string]ports.IdempotencyRecord, len(s.idempotency)),
	}
	for id, poll := range s.polls {
		next.polls[id] = poll.Clone()
	}
	for id, items := range s.ballots {
		next.ballots[id] = append([]entities.Ballot(nil), items...)
	}
	for id, record := range s.outbox {
		next.outbox[id] = record
	}
	for key, record := range s.idempotency {
		next.idempotency[key] = record
	}
	return next
}

// Store is the single-process implementation of every poll-engine port. It is
// used by tests and by the memory store driver.
type Store struct {
	mu sync.RWMutex

	state   pollState
	members map[string]entities.Member

	clockMu sync.RWMutex
	now     func() time.Time
}

func NewStore(members []entities.Member) *Store {
	store := &Store{
		state: pollState{
			polls:       make(map[string]entities.Poll),
			ballots:     make(map[string][]entities.Ballot),
			outbox:      make(map[string]outboxRecord),
			idempotency: make(map[string]ports.IdempotencyRecord),
		},
		members: make(map[string]entities.Member, len(members)),
	}
	for _, member := range members {
		store.members[strings.TrimSpace(member.MemberID)] = member
	}
	return store
}

// SetNow pins the store clock. Passing the zero time restores the wall clock.
func (s *Store) SetNow(now time.Time) {
	s.clockMu.Lock()
	defer s.clockMu.Unlock()
	if now.IsZero() {
		s.now = nil
		return
	}
	pinned := now.UTC()
	s.now = func() time.Time { return pinned }
}

func (s *Store) Now() time.Time {
	s.clockMu.RLock()
	now := s.now
	s.clockMu.RUnlock()
	if now != nil {
		return now()
	}
	return time.Now().UTC()
}

func (s *Store) NewID(_ context.Context) (string, error) {
	return uuid.NewString(), nil
}

func (s *Store) GetPoll(_ context.Context, pollID string) (entities.Poll, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	poll, ok := s.state.polls[strings.TrimSpace(pollID)]
	if !ok {
		return entities.Poll{}, domainerrors.ErrPollNotFound
	}
	return poll.Clone(), nil
}

func (s *Store) GetPollWithBallots(_ context.Context, pollID string) (entities.Poll, []entities.Ballot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	poll, ok := s.state.polls[strings.TrimSpace(pollID)]
	if !ok {
		return entities.Poll{}, nil, domainerrors.ErrPollNotFound
	}
	return poll.Clone(), append([]entities.Ballot(nil), s.state.ballots[poll.PollID]...), nil
}

func (s *Store) ListPolls(_ context.Context, filter ports.PollFilter) (ports.PollPage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]entities.Poll, 0, len(s.state.polls))
	for _, poll := range s.state.polls {
		if filter.Status != "" && poll.Status != filter.Status {
			continue
		}
		items = append(items, poll.Clone())
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].PollID > items[j].PollID
		}
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})

	total := len(items)
	start := filter.Offset
	if start < 0 {
		start = 0
	}
	if start > total {
		start = total
	}
	end := total
	if filter.Limit > 0 && start+filter.Limit < end {
		end = start + filter.Limit
	}
	return ports.PollPage{Items: items[start:end], Total: total}, nil
}

func (s *Store) CountParticipants(_ context.Context, pollIDs []string) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[string]int, len(pollIDs))
	for _, pollID := range pollIDs {
		members := make(map[string]struct{})
		for _, ballot := range s.state.ballots[pollID] {
			members[ballot.MemberID] = struct{}{}
		}
		counts[pollID] = len(members)
	}
	return counts, nil
}

func (s *Store) ListVotedPollIDs(_ context.Context, memberID string, pollIDs []string) (map[string]bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	voted := make(map[string]bool, len(pollIDs))
	memberID = strings.TrimSpace(memberID)
	if memberID == "" {
		return voted, nil
	}
	for _, pollID := range pollIDs {
		for _, ballot := range s.state.ballots[pollID] {
			if ballot.MemberID == memberID {
				voted[pollID] = true
				break
			}
		}
	}
	return voted, nil
}

func (s *Store) ListExpiredActivePolls(_ context.Context, now time.Time, limit int) ([]entities.Poll, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := make([]entities.Poll, 0)
	for _, poll := range s.state.polls {
		if poll.Status == entities.PollStatusActive && poll.Deadline.Before(now) {
			items = append(items, poll.Clone())
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].Deadline.Equal(items[j].Deadline) {
			return items[i].PollID < items[j].PollID
		}
		return items[i].Deadline.Before(items[j].Deadline)
	})
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

// RunInTx serializes all transactions behind the write lock, so the shared
// and member locks of PollTx are implied.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, tx ports.PollTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	working := s.state.clone()
	if err := fn(ctx, &storeTx{state: &working}); err != nil {
		return err
	}
	s.state = working
	return nil
}

type storeTx struct {
	state *pollState
}

func (t *storeTx) LockPoll(_ context.Context, pollID string) (entities.Poll, error) {
	poll, ok := t.state.polls[strings.TrimSpace(pollID)]
	if !ok {
		return entities.Poll{}, domainerrors.ErrPollNotFound
	}
	return poll.Clone(), nil
}

func (t *storeTx) LockMemberBallots(ctx context.Context, pollID string, _ string) (entities.Poll, error) {
	return t.LockPoll(ctx, pollID)
}

func (t *storeTx) SavePoll(_ context.Context, poll entities.Poll) error {
	kept := make(map[string]struct{}, len(poll.Options))
	for _, option := range poll.Options {
		kept[option.OptionID] = struct{}{}
	}
	for _, ballot := range t.state.ballots[poll.PollID] {
		if _, ok := kept[ballot.OptionID]; !ok {
			return domainerrors.ErrOptionHasVotes
		}
	}
	saved := poll.Clone()
	for i := range saved.Options {
		saved.Options[i].PollID = saved.PollID
	}
	entities.SortOptions(saved.Options)
	t.state.polls[saved.PollID] = saved
	return nil
}

func (t *storeTx) DeletePoll(_ context.Context, pollID string) error {
	pollID = strings.TrimSpace(pollID)
	if _, ok := t.state.polls[pollID]; !ok {
		return domainerrors.ErrPollNotFound
	}
	delete(t.state.ballots, pollID)
	delete(t.state.polls, pollID)
	return nil
}

func (t *storeTx) CountBallotsByOption(_ context.Context, pollID string) (map[string]int, error) {
	counts := make(map[string]int)
	for _, ballot := range t.state.ballots[strings.TrimSpace(pollID)] {
		counts[ballot.OptionID]++
	}
	return counts, nil
}

func (t *storeTx) ReplaceMemberBallots(
	_ context.Context,
	pollID string,
	memberID string,
	ballots []entities.Ballot,
) error {
	poll, ok := t.state.polls[pollID]
	if !ok {
		return domainerrors.ErrPollNotFound
	}
	kept := make([]entities.Ballot, 0, len(t.state.ballots[pollID])+len(ballots))
	for _, ballot := range t.state.ballots[pollID] {
		if ballot.MemberID != memberID {
			kept = append(kept, ballot)
		}
	}
	seen := make(map[string]struct{}, len(ballots))
	for _, ballot := range ballots {
		if _, ok := poll.OptionByID(ballot.OptionID); !ok {
			return domainerrors.ErrOptionNotFound
		}
		if _, dup := seen[ballot.OptionID]; dup {
			return domainerrors.ErrConflict
		}
		seen[ballot.OptionID] = struct{}{}
		kept = append(kept, ballot)
	}
	if len(kept) == 0 {
		delete(t.state.ballots, pollID)
		return nil
	}
	t.state.ballots[pollID] = kept
	return nil
}

func (t *storeTx) AppendOutbox(_ context.Context, envelope ports.EventEnvelope) error {
	payload, err := json.Marshal(envelope)
	if err != nil {
		return err
	}
	outboxID := strings.TrimSpace(envelope.EventID)
	if outboxID == "" {
		outboxID = uuid.NewString()
	}
	if existing, ok := t.state.outbox[outboxID]; ok {
		if !bytes.Equal(existing.message.Payload, payload) {
			return domainerrors.ErrIdempotencyConflict
		}
		return nil
	}
	createdAt := envelope.OccurredAt.UTC()
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	t.state.outbox[outboxID] = outboxRecord{
		message: ports.OutboxMessage{
			OutboxID:     outboxID,
			EventType:    strings.TrimSpace(envelope.EventType),
			PartitionKey: strings.TrimSpace(envelope.PartitionKey),
			Payload:      payload,
			CreatedAt:    createdAt,
		},
	}
	t.state.outboxOrder = append(t.state.outboxOrder, outboxID)
	return nil
}

func (s *Store) ListPendingOutbox(_ context.Context, limit int) ([]ports.OutboxMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 {
		limit = 100
	}
	items := make([]ports.OutboxMessage, 0, limit)
	for _, outboxID := range s.state.outboxOrder {
		record := s.state.outbox[outboxID]
		if record.published {
			continue
		}
		message := record.message
		message.Payload = append([]byte(nil), message.Payload...)
		items = append(items, message)
		if len(items) == limit {
			break
		}
	}
	return items, nil
}

func (s *Store) MarkOutboxPublished(_ context.Context, outboxID string, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.state.outbox[strings.TrimSpace(outboxID)]
	if !ok {
		return domainerrors.ErrConflict
	}
	record.published = true
	s.state.outbox[strings.TrimSpace(outboxID)] = record
	return nil
}

func (s *Store) Get(_ context.Context, key string, now time.Time) (ports.IdempotencyRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.state.idempotency[strings.TrimSpace(key)]
	if !ok {
		return ports.IdempotencyRecord{}, false, nil
	}
	if idempotencyExpired(record, now) {
		delete(s.state.idempotency, strings.TrimSpace(key))
		return ports.IdempotencyRecord{}, false, nil
	}
	return record, true, nil
}

// ClaimIdempotencyKey records the key as part of the transaction. A live
// record for the same key, whatever its request, is a conflict.
func (t *storeTx) ClaimIdempotencyKey(_ context.Context, record ports.IdempotencyRecord, now time.Time) error {
	key := strings.TrimSpace(record.Key)
	if existing, ok := t.state.idempotency[key]; ok && !idempotencyExpired(existing, now) {
		return domainerrors.ErrIdempotencyConflict
	}
	record.Key = key
	t.state.idempotency[key] = record
	return nil
}

func idempotencyExpired(record ports.IdempotencyRecord, now time.Time) bool {
	return !record.ExpiresAt.IsZero() && now.UTC().After(record.ExpiresAt)
}

var (
	_ ports.PollRepository   = (*Store)(nil)
	_ ports.PollTx           = (*storeTx)(nil)
	_ ports.IdempotencyStore = (*Store)(nil)
	_ ports.OutboxRepository = (*Store)(nil)
	_ ports.Clock            = (*Store)(nil)
	_ ports.IDGenerator      = (*Store)(nil)
)
