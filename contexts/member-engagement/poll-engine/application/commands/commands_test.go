package commands

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	contractsv1 "pollhub/contracts/gen/events/v1"
	"pollhub/contexts/member-engagement/poll-engine/adapters/memory"
	"pollhub/contexts/member-engagement/poll-engine/domain/entities"
	domainerrors "pollhub/contexts/member-engagement/poll-engine/domain/errors"
	"pollhub/contexts/member-engagement/poll-engine/domain/services"
	"pollhub/contexts/member-engagement/poll-engine/ports"
)

var (
	author = entities.Member{MemberID: "author-1", Name: "Ada", Role: entities.MemberRoleMember}
	voter  = entities.Member{MemberID: "voter-1", Name: "Vic", Role: entities.MemberRoleMember}
	admin  = entities.Member{MemberID: "admin-1", Name: "Root", Role: entities.MemberRoleAdmin}
)

type fixture struct {
	store   *memory.Store
	now     time.Time
	polls   PollUseCase
	ballots BallotUseCase
	options OptionUseCase
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	store := memory.NewStore([]entities.Member{author, voter, admin})
	now := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	store.SetNow(now)
	return fixture{
		store:   store,
		now:     now,
		polls:   PollUseCase{Polls: store, Idempotency: store, Clock: store, IDGen: store},
		ballots: BallotUseCase{Polls: store, Clock: store, IDGen: store},
		options: OptionUseCase{Polls: store, Clock: store, IDGen: store},
	}
}

func (f fixture) createPoll(t *testing.T, mutate func(cmd *CreatePollCommand)) entities.Poll {
	t.Helper()
	cmd := CreatePollCommand{
		Author:      author,
		Title:       "Team lunch",
		OptionTexts: []string{"Pizza", "Sushi", "Tacos"},
		Deadline:    f.now.Add(24 * time.Hour),
	}
	if mutate != nil {
		mutate(&cmd)
	}
	result, err := f.polls.CreatePoll(context.Background(), cmd)
	require.NoError(t, err)
	return result.Poll
}

func (f fixture) ballotOptions(t *testing.T, pollID string, memberID string) []string {
	t.Helper()
	_, ballots, err := f.store.GetPollWithBallots(context.Background(), pollID)
	require.NoError(t, err)
	items := []string{}
	for _, ballot := range ballots {
		if ballot.MemberID == memberID {
			items = append(items, ballot.OptionID)
		}
	}
	return items
}

func (f fixture) countEvents(t *testing.T, eventType string) int {
	t.Helper()
	pending, err := f.store.ListPendingOutbox(context.Background(), 1000)
	require.NoError(t, err)
	count := 0
	for _, message := range pending {
		if message.EventType == eventType {
			count++
		}
	}
	return count
}

func (f fixture) cast(poll entities.Poll, member entities.Member, optionIDs ...string) error {
	return f.ballots.CastVote(context.Background(), CastVoteCommand{
		PollID:    poll.PollID,
		OptionIDs: optionIDs,
		Member:    member,
	})
}

func TestCreatePollValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cases := []struct {
		name   string
		mutate func(cmd *CreatePollCommand)
		want   error
	}{
		{"blank title", func(cmd *CreatePollCommand) { cmd.Title = "  " }, domainerrors.ErrInvalidPollInput},
		{"missing deadline", func(cmd *CreatePollCommand) { cmd.Deadline = time.Time{} }, domainerrors.ErrInvalidPollInput},
		{"deadline in past", func(cmd *CreatePollCommand) { cmd.Deadline = f.now }, domainerrors.ErrDeadlineInPast},
		{"single option", func(cmd *CreatePollCommand) { cmd.OptionTexts = []string{"Pizza"} }, domainerrors.ErrOptionMinCount},
		{"duplicate options", func(cmd *CreatePollCommand) { cmd.OptionTexts = []string{"pizza ", "Pizza"} }, domainerrors.ErrOptionDuplicate},
		{"blank option", func(cmd *CreatePollCommand) { cmd.OptionTexts = []string{"Pizza", " "} }, domainerrors.ErrInvalidPollInput},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cmd := CreatePollCommand{
				Author:      author,
				Title:       "Team lunch",
				OptionTexts: []string{"Pizza", "Sushi"},
				Deadline:    f.now.Add(time.Hour),
			}
			tc.mutate(&cmd)
			_, err := f.polls.CreatePoll(ctx, cmd)
			assert.ErrorIs(t, err, tc.want)
		})
	}

	page, err := f.store.ListPolls(ctx, pollFilterAll())
	require.NoError(t, err)
	assert.Zero(t, page.Total)
}

func TestCreatePollPersistsActivePollAndEvent(t *testing.T) {
	f := newFixture(t)

	poll := f.createPoll(t, func(cmd *CreatePollCommand) {
		cmd.Title = "  Team lunch  "
		cmd.MultipleChoice = true
	})

	stored, err := f.store.GetPoll(context.Background(), poll.PollID)
	require.NoError(t, err)
	assert.Equal(t, "Team lunch", stored.Title)
	assert.Equal(t, entities.PollStatusActive, stored.Status)
	assert.Equal(t, author.MemberID, stored.AuthorID)
	require.Len(t, stored.Options, 3)
	for i, option := range stored.Options {
		assert.Equal(t, i, option.DisplayOrder)
	}
	assert.Equal(t, 1, f.countEvents(t, contractsv1.EventPollCreated))
}

func TestCreatePollIdempotentReplay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cmd := CreatePollCommand{
		Author:         author,
		Title:          "Offsite venue",
		OptionTexts:    []string{"Lake", "Mountain"},
		Deadline:       f.now.Add(48 * time.Hour),
		IdempotencyKey: "create-1",
	}

	first, err := f.polls.CreatePoll(ctx, cmd)
	require.NoError(t, err)
	second, err := f.polls.CreatePoll(ctx, cmd)
	require.NoError(t, err)

	assert.False(t, first.Replayed)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.Poll.PollID, second.Poll.PollID)

	cmd.Title = "Offsite venue v2"
	_, err = f.polls.CreatePoll(ctx, cmd)
	assert.ErrorIs(t, err, domainerrors.ErrIdempotencyConflict)

	page, err := f.store.ListPolls(ctx, pollFilterAll())
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)
	assert.Equal(t, 1, f.countEvents(t, contractsv1.EventPollCreated))
}

// gatedIdempotency holds the first `callers` lookups until all of them have
// missed, so concurrent creates race on the same key.
type gatedIdempotency struct {
	ports.IdempotencyStore
	calls   atomic.Int32
	callers int32
	gate    *sync.WaitGroup
}

func (g *gatedIdempotency) Get(ctx context.Context, key string, now time.Time) (ports.IdempotencyRecord, bool, error) {
	record, found, err := g.IdempotencyStore.Get(ctx, key, now)
	if g.calls.Add(1) <= g.callers {
		g.gate.Done()
		g.gate.Wait()
	}
	return record, found, err
}

func TestCreatePollConcurrentSameKeyCreatesOnePoll(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	gate := &sync.WaitGroup{}
	gate.Add(2)
	f.polls.Idempotency = &gatedIdempotency{IdempotencyStore: f.store, callers: 2, gate: gate}
	cmd := CreatePollCommand{
		Author:         author,
		Title:          "Offsite venue",
		OptionTexts:    []string{"Lake", "Mountain"},
		Deadline:       f.now.Add(48 * time.Hour),
		IdempotencyKey: "same-key",
	}

	results := make([]CreatePollResult, 2)
	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.polls.CreatePoll(ctx, cmd)
		}(i)
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.Equal(t, results[0].Poll.PollID, results[1].Poll.PollID)
	assert.True(t, results[0].Replayed != results[1].Replayed, "exactly one create replays")

	page, err := f.store.ListPolls(ctx, pollFilterAll())
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)
	assert.Equal(t, 1, f.countEvents(t, contractsv1.EventPollCreated))
}

func TestCreatePollConcurrentDifferentRequestConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	gate := &sync.WaitGroup{}
	gate.Add(2)
	f.polls.Idempotency = &gatedIdempotency{IdempotencyStore: f.store, callers: 2, gate: gate}
	base := CreatePollCommand{
		Author:         author,
		OptionTexts:    []string{"Lake", "Mountain"},
		Deadline:       f.now.Add(48 * time.Hour),
		IdempotencyKey: "same-key",
	}

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			cmd := base
			cmd.Title = fmt.Sprintf("Offsite %d", i)
			_, errs[i] = f.polls.CreatePoll(ctx, cmd)
		}(i)
	}
	wg.Wait()

	conflicts := 0
	for _, err := range errs {
		if err != nil {
			assert.ErrorIs(t, err, domainerrors.ErrIdempotencyConflict)
			conflicts++
		}
	}
	assert.Equal(t, 1, conflicts)

	page, err := f.store.ListPolls(ctx, pollFilterAll())
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)
}

func TestCastVoteRecastReplacesSelection(t *testing.T) {
	f := newFixture(t)
	poll := f.createPoll(t, nil)

	require.NoError(t, f.cast(poll, voter, poll.Options[0].OptionID))
	require.NoError(t, f.cast(poll, voter, poll.Options[1].OptionID))

	assert.Equal(t, []string{poll.Options[1].OptionID}, f.ballotOptions(t, poll.PollID, voter.MemberID))
}

func TestCastVoteEmptySelectionWithdraws(t *testing.T) {
	f := newFixture(t)
	poll := f.createPoll(t, func(cmd *CreatePollCommand) { cmd.MultipleChoice = true })

	require.NoError(t, f.cast(poll, voter, poll.Options[0].OptionID, poll.Options[2].OptionID))
	require.Len(t, f.ballotOptions(t, poll.PollID, voter.MemberID), 2)

	require.NoError(t, f.cast(poll, voter))
	assert.Empty(t, f.ballotOptions(t, poll.PollID, voter.MemberID))
}

func TestCastVoteSingleChoiceViolationKeepsPriorBallot(t *testing.T) {
	f := newFixture(t)
	poll := f.createPoll(t, nil)
	require.NoError(t, f.cast(poll, voter, poll.Options[0].OptionID))

	err := f.cast(poll, voter, poll.Options[1].OptionID, poll.Options[2].OptionID)

	assert.ErrorIs(t, err, domainerrors.ErrSingleChoiceViolation)
	assert.Equal(t, []string{poll.Options[0].OptionID}, f.ballotOptions(t, poll.PollID, voter.MemberID))
}

func TestCastVoteUnknownOptionWritesNothing(t *testing.T) {
	f := newFixture(t)
	poll := f.createPoll(t, func(cmd *CreatePollCommand) { cmd.MultipleChoice = true })
	require.NoError(t, f.cast(poll, voter, poll.Options[0].OptionID))

	err := f.cast(poll, voter, poll.Options[1].OptionID, "no-such-option")

	assert.ErrorIs(t, err, domainerrors.ErrOptionNotFound)
	assert.Equal(t, []string{poll.Options[0].OptionID}, f.ballotOptions(t, poll.PollID, voter.MemberID))
}

func TestCastVoteDedupesRepeatedOptions(t *testing.T) {
	f := newFixture(t)
	poll := f.createPoll(t, func(cmd *CreatePollCommand) { cmd.MultipleChoice = true })

	require.NoError(t, f.cast(poll, voter, poll.Options[0].OptionID, poll.Options[0].OptionID, poll.Options[1].OptionID))

	assert.Len(t, f.ballotOptions(t, poll.PollID, voter.MemberID), 2)
}

func TestCastVoteRejectedOnClosedOrExpiredPoll(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	closed := f.createPoll(t, nil)
	_, err := f.polls.ClosePoll(ctx, ClosePollCommand{PollID: closed.PollID, Caller: author})
	require.NoError(t, err)

	assert.ErrorIs(t, f.cast(closed, voter, closed.Options[0].OptionID), domainerrors.ErrPollClosed)

	expiring := f.createPoll(t, func(cmd *CreatePollCommand) { cmd.Deadline = f.now.Add(time.Minute) })
	f.store.SetNow(f.now.Add(time.Minute))
	require.NoError(t, f.cast(expiring, voter, expiring.Options[0].OptionID), "voting at the deadline is allowed")

	f.store.SetNow(f.now.Add(time.Minute + time.Second))
	assert.ErrorIs(t, f.cast(expiring, voter, expiring.Options[1].OptionID), domainerrors.ErrPollExpired)
	assert.Equal(t, []string{expiring.Options[0].OptionID}, f.ballotOptions(t, expiring.PollID, voter.MemberID))
}

func TestCastVoteUnknownPoll(t *testing.T) {
	f := newFixture(t)

	err := f.ballots.CastVote(context.Background(), CastVoteCommand{PollID: "missing", OptionIDs: []string{"x"}, Member: voter})

	assert.ErrorIs(t, err, domainerrors.ErrPollNotFound)
}

func TestUpdatePollRequiresAuthorOrAdmin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	poll := f.createPoll(t, nil)
	title := "Team dinner"

	_, err := f.polls.UpdatePoll(ctx, UpdatePollCommand{PollID: poll.PollID, Caller: voter, Title: &title})
	assert.ErrorIs(t, err, domainerrors.ErrForbidden)

	updated, err := f.polls.UpdatePoll(ctx, UpdatePollCommand{PollID: poll.PollID, Caller: admin, Title: &title})
	require.NoError(t, err)
	assert.Equal(t, "Team dinner", updated.Title)
	assert.Equal(t, 1, f.countEvents(t, contractsv1.EventPollUpdated))
}

func TestUpdatePollBulkEdit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	poll := f.createPoll(t, nil)
	first := 0

	updated, err := f.polls.UpdatePoll(ctx, UpdatePollCommand{
		PollID: poll.PollID,
		Caller: author,
		Options: services.BulkOptionEdit{
			DeletedIDs: []string{poll.Options[0].OptionID},
			Edits: []services.OptionEdit{
				{OptionID: poll.Options[2].OptionID, Text: "Burritos", DisplayOrder: &first},
				{Text: "Ramen"},
			},
		},
	})

	require.NoError(t, err)
	stored, err := f.store.GetPoll(ctx, poll.PollID)
	require.NoError(t, err)
	assert.Equal(t, updated.Options, stored.Options)
	texts := make([]string, 0, len(stored.Options))
	for _, option := range stored.Options {
		texts = append(texts, option.Text)
	}
	assert.Equal(t, []string{"Burritos", "Sushi", "Ramen"}, texts)
}

func TestUpdatePollDeletingVotedOptionRollsBack(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	poll := f.createPoll(t, nil)
	require.NoError(t, f.cast(poll, voter, poll.Options[2].OptionID))
	title := "Renamed"

	_, err := f.polls.UpdatePoll(ctx, UpdatePollCommand{
		PollID:  poll.PollID,
		Caller:  author,
		Title:   &title,
		Options: services.BulkOptionEdit{DeletedIDs: []string{poll.Options[2].OptionID}},
	})

	assert.ErrorIs(t, err, domainerrors.ErrOptionHasVotes)
	stored, err := f.store.GetPoll(ctx, poll.PollID)
	require.NoError(t, err)
	assert.Equal(t, "Team lunch", stored.Title)
	assert.Len(t, stored.Options, 3)
	assert.Zero(t, f.countEvents(t, contractsv1.EventPollUpdated))
}

func TestUpdatePollRejectedWhenClosed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	poll := f.createPoll(t, nil)
	_, err := f.polls.ClosePoll(ctx, ClosePollCommand{PollID: poll.PollID, Caller: author})
	require.NoError(t, err)
	title := "Too late"

	_, err = f.polls.UpdatePoll(ctx, UpdatePollCommand{PollID: poll.PollID, Caller: author, Title: &title})

	assert.ErrorIs(t, err, domainerrors.ErrPollClosed)
}

func TestAddOptionRequiresPollPermission(t *testing.T) {
	f := newFixture(t)
	poll := f.createPoll(t, nil)

	_, err := f.options.AddOption(context.Background(), AddOptionCommand{PollID: poll.PollID, Text: "Curry", Member: voter})

	assert.ErrorIs(t, err, domainerrors.ErrAddOptionNotAllowed)
}

func TestAddOptionGrowsUpToTenOptions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	poll := f.createPoll(t, func(cmd *CreatePollCommand) { cmd.AllowAddOption = true })

	for i := len(poll.Options); i < entities.MaxOptionCount; i++ {
		added, err := f.options.AddOption(ctx, AddOptionCommand{PollID: poll.PollID, Text: fmt.Sprintf("Extra %d", i), Member: voter})
		require.NoError(t, err)
		assert.Equal(t, i, added.DisplayOrder)
		assert.Equal(t, voter.MemberID, added.AddedByMemberID)
	}

	_, err := f.options.AddOption(ctx, AddOptionCommand{PollID: poll.PollID, Text: "One too many", Member: voter})
	assert.ErrorIs(t, err, domainerrors.ErrOptionMaxCount)

	stored, err := f.store.GetPoll(ctx, poll.PollID)
	require.NoError(t, err)
	assert.Len(t, stored.Options, entities.MaxOptionCount)
	assert.Equal(t, entities.MaxOptionCount-3, f.countEvents(t, contractsv1.EventPollOptionAdded))
}

func TestAddOptionRejectedOnClosedOrExpiredPoll(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	allowAdd := func(cmd *CreatePollCommand) { cmd.AllowAddOption = true }

	closed := f.createPoll(t, allowAdd)
	_, err := f.polls.ClosePoll(ctx, ClosePollCommand{PollID: closed.PollID, Caller: author})
	require.NoError(t, err)
	_, err = f.options.AddOption(ctx, AddOptionCommand{PollID: closed.PollID, Text: "Curry", Member: voter})
	assert.ErrorIs(t, err, domainerrors.ErrPollClosed)

	expiring := f.createPoll(t, func(cmd *CreatePollCommand) {
		cmd.AllowAddOption = true
		cmd.Deadline = f.now.Add(time.Hour)
	})
	f.store.SetNow(expiring.Deadline.Add(time.Second))
	_, err = f.options.AddOption(ctx, AddOptionCommand{PollID: expiring.PollID, Text: "Curry", Member: voter})
	assert.ErrorIs(t, err, domainerrors.ErrPollExpired)

	for _, poll := range []entities.Poll{closed, expiring} {
		stored, err := f.store.GetPoll(ctx, poll.PollID)
		require.NoError(t, err)
		assert.Len(t, stored.Options, len(poll.Options))
	}
	stored, err := f.store.GetPoll(ctx, expiring.PollID)
	require.NoError(t, err)
	assert.Equal(t, entities.PollStatusActive, stored.Status)
	assert.Zero(t, f.countEvents(t, contractsv1.EventPollOptionAdded))
}

func TestAddOptionRejectsDuplicateText(t *testing.T) {
	f := newFixture(t)
	poll := f.createPoll(t, func(cmd *CreatePollCommand) { cmd.AllowAddOption = true })

	_, err := f.options.AddOption(context.Background(), AddOptionCommand{PollID: poll.PollID, Text: " sushi", Member: voter})

	assert.ErrorIs(t, err, domainerrors.ErrOptionDuplicate)
}

func TestClosePollIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	poll := f.createPoll(t, nil)

	_, err := f.polls.ClosePoll(ctx, ClosePollCommand{PollID: poll.PollID, Caller: voter})
	assert.ErrorIs(t, err, domainerrors.ErrForbidden)

	first, err := f.polls.ClosePoll(ctx, ClosePollCommand{PollID: poll.PollID, Caller: author})
	require.NoError(t, err)
	second, err := f.polls.ClosePoll(ctx, ClosePollCommand{PollID: poll.PollID, Caller: admin})
	require.NoError(t, err)

	assert.True(t, first.IsClosed())
	assert.True(t, second.IsClosed())
	assert.Equal(t, 1, f.countEvents(t, contractsv1.EventPollClosed))
}

func TestDeletePollRemovesBallots(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	poll := f.createPoll(t, nil)
	require.NoError(t, f.cast(poll, voter, poll.Options[0].OptionID))

	err := f.polls.DeletePoll(ctx, DeletePollCommand{PollID: poll.PollID, Caller: voter})
	assert.ErrorIs(t, err, domainerrors.ErrForbidden)

	require.NoError(t, f.polls.DeletePoll(ctx, DeletePollCommand{PollID: poll.PollID, Caller: author}))

	_, _, err = f.store.GetPollWithBallots(ctx, poll.PollID)
	assert.ErrorIs(t, err, domainerrors.ErrPollNotFound)
	voted, err := f.store.ListVotedPollIDs(ctx, voter.MemberID, []string{poll.PollID})
	require.NoError(t, err)
	assert.False(t, voted[poll.PollID])
	assert.Equal(t, 1, f.countEvents(t, contractsv1.EventPollDeleted))

	err = f.polls.DeletePoll(ctx, DeletePollCommand{PollID: poll.PollID, Caller: author})
	assert.ErrorIs(t, err, domainerrors.ErrPollNotFound)
}

func pollFilterAll() ports.PollFilter {
	return ports.PollFilter{}
}
