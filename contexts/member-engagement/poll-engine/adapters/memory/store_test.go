package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pollhub/contexts/member-engagement/poll-engine/domain/entities"
	domainerrors "pollhub/contexts/member-engagement/poll-engine/domain/errors"
	"pollhub/contexts/member-engagement/poll-engine/ports"
)

func savePoll(t *testing.T, store *Store, pollID string) entities.Poll {
	t.Helper()
	now := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	poll := entities.Poll{
		PollID:         pollID,
		Title:          "Standup time",
		AuthorID:       "author-1",
		MultipleChoice: true,
		Deadline:       now.Add(time.Hour),
		Status:         entities.PollStatusActive,
		Options: []entities.Option{
			{OptionID: pollID + "-a", Text: "9:00", DisplayOrder: 0},
			{OptionID: pollID + "-b", Text: "9:30", DisplayOrder: 1},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, store.RunInTx(context.Background(), func(ctx context.Context, tx ports.PollTx) error {
		return tx.SavePoll(ctx, poll)
	}))
	return poll
}

func TestRunInTxRollsBackOnError(t *testing.T) {
	store := NewStore(nil)
	poll := savePoll(t, store, "poll-1")
	boom := errors.New("boom")

	err := store.RunInTx(context.Background(), func(ctx context.Context, tx ports.PollTx) error {
		if err := tx.ReplaceMemberBallots(ctx, poll.PollID, "m1", []entities.Ballot{
			{BallotID: "b1", PollID: poll.PollID, OptionID: poll.Options[0].OptionID, MemberID: "m1"},
		}); err != nil {
			return err
		}
		renamed := poll
		renamed.Title = "Changed"
		if err := tx.SavePoll(ctx, renamed); err != nil {
			return err
		}
		return boom
	})

	assert.ErrorIs(t, err, boom)
	stored, ballots, err := store.GetPollWithBallots(context.Background(), poll.PollID)
	require.NoError(t, err)
	assert.Equal(t, "Standup time", stored.Title)
	assert.Empty(t, ballots)
}

func TestSavePollRefusesToDropVotedOption(t *testing.T) {
	store := NewStore(nil)
	poll := savePoll(t, store, "poll-1")
	require.NoError(t, store.RunInTx(context.Background(), func(ctx context.Context, tx ports.PollTx) error {
		return tx.ReplaceMemberBallots(ctx, poll.PollID, "m1", []entities.Ballot{
			{BallotID: "b1", PollID: poll.PollID, OptionID: poll.Options[1].OptionID, MemberID: "m1"},
		})
	}))

	err := store.RunInTx(context.Background(), func(ctx context.Context, tx ports.PollTx) error {
		trimmed := poll.Clone()
		trimmed.Options = trimmed.Options[:1]
		return tx.SavePoll(ctx, trimmed)
	})

	assert.ErrorIs(t, err, domainerrors.ErrOptionHasVotes)
}

func TestReplaceMemberBallotsRejectsForeignOption(t *testing.T) {
	store := NewStore(nil)
	poll := savePoll(t, store, "poll-1")
	other := savePoll(t, store, "poll-2")

	err := store.RunInTx(context.Background(), func(ctx context.Context, tx ports.PollTx) error {
		return tx.ReplaceMemberBallots(ctx, poll.PollID, "m1", []entities.Ballot{
			{BallotID: "b1", PollID: poll.PollID, OptionID: other.Options[0].OptionID, MemberID: "m1"},
		})
	})

	assert.ErrorIs(t, err, domainerrors.ErrOptionNotFound)
}

func TestConcurrentBallotReplacement(t *testing.T) {
	store := NewStore(nil)
	poll := savePoll(t, store, "poll-1")
	const members = 25

	var wg sync.WaitGroup
	for i := 0; i < members; i++ {
		memberID := fmt.Sprintf("m%d", i)
		for round := 0; round < 4; round++ {
			option := poll.Options[round%2]
			wg.Add(1)
			go func() {
				defer wg.Done()
				_ = store.RunInTx(context.Background(), func(ctx context.Context, tx ports.PollTx) error {
					return tx.ReplaceMemberBallots(ctx, poll.PollID, memberID, []entities.Ballot{
						{BallotID: memberID + option.OptionID, PollID: poll.PollID, OptionID: option.OptionID, MemberID: memberID},
					})
				})
			}()
		}
	}
	wg.Wait()

	_, ballots, err := store.GetPollWithBallots(context.Background(), poll.PollID)
	require.NoError(t, err)
	assert.Len(t, ballots, members, "every member keeps exactly one ballot")
	counts, err := store.CountParticipants(context.Background(), []string{poll.PollID})
	require.NoError(t, err)
	assert.Equal(t, members, counts[poll.PollID])
}

func TestAppendOutboxDedupesByEventID(t *testing.T) {
	store := NewStore(nil)
	envelope := ports.EventEnvelope{EventID: "evt-1", EventType: "poll.created", PartitionKey: "poll-1"}

	for i := 0; i < 2; i++ {
		require.NoError(t, store.RunInTx(context.Background(), func(ctx context.Context, tx ports.PollTx) error {
			return tx.AppendOutbox(ctx, envelope)
		}))
	}
	changed := envelope
	changed.PartitionKey = "poll-2"
	err := store.RunInTx(context.Background(), func(ctx context.Context, tx ports.PollTx) error {
		return tx.AppendOutbox(ctx, changed)
	})
	assert.ErrorIs(t, err, domainerrors.ErrIdempotencyConflict)

	pending, err := store.ListPendingOutbox(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.NoError(t, store.MarkOutboxPublished(context.Background(), "evt-1", time.Now()))
	pending, err = store.ListPendingOutbox(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestIdempotencyRecordsExpire(t *testing.T) {
	store := NewStore(nil)
	ctx := context.Background()
	now := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, store.RunInTx(ctx, func(ctx context.Context, tx ports.PollTx) error {
		return tx.ClaimIdempotencyKey(ctx, ports.IdempotencyRecord{
			Key: " k1 ", RequestHash: "h1", PollID: "poll-1", ExpiresAt: now.Add(time.Hour),
		}, now)
	}))

	got, found, err := store.Get(ctx, "k1", now)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "h1", got.RequestHash)

	_, found, err = store.Get(ctx, "k1", now.Add(2*time.Hour))
	require.NoError(t, err)
	assert.False(t, found)
}

func TestClaimIdempotencyKeyInsideTransaction(t *testing.T) {
	store := NewStore(nil)
	ctx := context.Background()
	now := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	record := ports.IdempotencyRecord{Key: "k1", RequestHash: "h1", PollID: "poll-1", ExpiresAt: now.Add(time.Hour)}

	errRollback := errors.New("rollback")
	err := store.RunInTx(ctx, func(ctx context.Context, tx ports.PollTx) error {
		require.NoError(t, tx.ClaimIdempotencyKey(ctx, record, now))
		return errRollback
	})
	assert.ErrorIs(t, err, errRollback)
	_, found, err := store.Get(ctx, "k1", now)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, store.RunInTx(ctx, func(ctx context.Context, tx ports.PollTx) error {
		return tx.ClaimIdempotencyKey(ctx, record, now)
	}))
	err = store.RunInTx(ctx, func(ctx context.Context, tx ports.PollTx) error {
		return tx.ClaimIdempotencyKey(ctx, ports.IdempotencyRecord{Key: "k1", RequestHash: "h2", PollID: "poll-2"}, now)
	})
	assert.ErrorIs(t, err, domainerrors.ErrIdempotencyConflict)

	later := now.Add(2 * time.Hour)
	require.NoError(t, store.RunInTx(ctx, func(ctx context.Context, tx ports.PollTx) error {
		return tx.ClaimIdempotencyKey(ctx, ports.IdempotencyRecord{Key: "k1", RequestHash: "h3", PollID: "poll-3", ExpiresAt: later.Add(time.Hour)}, later)
	}))
	got, found, err := store.Get(ctx, "k1", later)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "poll-3", got.PollID)
}

func TestResolveMember(t *testing.T) {
	store := NewStore([]entities.Member{
		{MemberID: "m1", Email: "Ada@Example.com", Name: "Ada"},
		{MemberID: "m2", Email: "bo@example.com", Suspended: true},
	})
	ctx := context.Background()

	byEmail, err := store.ResolveMember(ctx, "ada@example.com")
	require.NoError(t, err)
	assert.Equal(t, "m1", byEmail.MemberID)

	_, err = store.ResolveMember(ctx, "m2")
	assert.ErrorIs(t, err, domainerrors.ErrMemberNotFound)
	_, err = store.ResolveMember(ctx, "nobody")
	assert.ErrorIs(t, err, domainerrors.ErrMemberNotFound)

	active, err := store.ActiveMemberCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), active)
}
