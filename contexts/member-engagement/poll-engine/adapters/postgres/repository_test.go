package postgresadapter

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pollhub/contexts/member-engagement/poll-engine/application/commands"
	"pollhub/contexts/member-engagement/poll-engine/domain/entities"
	domainerrors "pollhub/contexts/member-engagement/poll-engine/domain/errors"
	"pollhub/internal/platform/db"
)

func TestPgErrorClassification(t *testing.T) {
	unique := fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"})
	foreign := &pgconn.PgError{Code: "23503"}

	assert.True(t, isUniqueViolation(unique))
	assert.False(t, isForeignKeyViolation(unique))
	assert.True(t, isForeignKeyViolation(foreign))
	assert.False(t, isUniqueViolation(fmt.Errorf("plain")))
}

func TestPollModelMapping(t *testing.T) {
	deadline := time.Date(2026, 10, 1, 9, 0, 0, 0, time.FixedZone("CEST", 2*60*60))
	poll := entities.Poll{
		PollID:         " poll-1 ",
		Title:          "Roadmap",
		AuthorID:       "author-1",
		MultipleChoice: true,
		Deadline:       deadline,
		Status:         entities.PollStatusActive,
	}

	model := pollModelFromEntity(poll)
	back := model.toEntity()

	assert.Equal(t, "poll-1", model.PollID)
	assert.Equal(t, time.UTC, model.Deadline.Location())
	assert.True(t, back.Deadline.Equal(deadline))
	assert.True(t, back.MultipleChoice)
	assert.Equal(t, entities.PollStatusActive, back.Status)
}

// openTestRepository connects to POLL_POSTGRES_TEST_DSN. The database is
// expected to be disposable.
func openTestRepository(t *testing.T) *Repository {
	t.Helper()
	dsn := os.Getenv("POLL_POSTGRES_TEST_DSN")
	if dsn == "" {
		t.Skip("POLL_POSTGRES_TEST_DSN not set")
	}
	ctx := context.Background()
	pg, err := db.Connect(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pg.Close() })
	require.NoError(t, Migrate(ctx, pg.DB))
	require.NoError(t, Migrate(ctx, pg.DB), "migrations must be re-runnable")
	return NewRepository(pg.DB, nil)
}

func TestRepositoryConcurrentCasts(t *testing.T) {
	repo := openTestRepository(t)
	ctx := context.Background()
	author := entities.Member{MemberID: fmt.Sprintf("author-%d", time.Now().UnixNano()), Role: entities.MemberRoleMember}
	require.NoError(t, repo.UpsertMember(ctx, author))

	polls := commands.PollUseCase{Polls: repo, Idempotency: repo, Clock: SystemClock{}, IDGen: UUIDGenerator{}}
	ballots := commands.BallotUseCase{Polls: repo, Clock: SystemClock{}, IDGen: UUIDGenerator{}}
	created, err := polls.CreatePoll(ctx, commands.CreatePollCommand{
		Author:      author,
		Title:       "Concurrency check",
		OptionTexts: []string{"Red", "Blue"},
		Deadline:    time.Now().Add(time.Hour),
	})
	require.NoError(t, err)
	poll := created.Poll

	const members = 20
	var wg sync.WaitGroup
	for i := 0; i < members; i++ {
		member := entities.Member{MemberID: fmt.Sprintf("%s-m%d", poll.PollID, i)}
		for round := 0; round < 3; round++ {
			option := poll.Options[round%2]
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := ballots.CastVote(ctx, commands.CastVoteCommand{
					PollID: poll.PollID, Member: member, OptionIDs: []string{option.OptionID},
				})
				if err != nil {
					assert.ErrorIs(t, err, domainerrors.ErrConflict)
				}
			}()
		}
	}
	wg.Wait()

	_, stored, err := repo.GetPollWithBallots(ctx, poll.PollID)
	require.NoError(t, err)
	assert.Len(t, stored, members)

	require.NoError(t, polls.DeletePoll(ctx, commands.DeletePollCommand{PollID: poll.PollID, Caller: author}))
	_, err = repo.GetPoll(ctx, poll.PollID)
	assert.ErrorIs(t, err, domainerrors.ErrPollNotFound)
}
