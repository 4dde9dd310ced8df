package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pollhub/contexts/member-engagement/poll-engine/domain/entities"
)

func TestProjectTally(t *testing.T) {
	base := time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)
	poll := samplePoll()
	poll.MultipleChoice = true
	ballots := []entities.Ballot{
		{PollID: "poll-1", OptionID: "o2", MemberID: "m2", CastAt: base.Add(time.Minute)},
		{PollID: "poll-1", OptionID: "o1", MemberID: "m1", CastAt: base},
		{PollID: "poll-1", OptionID: "o2", MemberID: "m1", CastAt: base},
		{PollID: "poll-1", OptionID: "gone", MemberID: "m3", CastAt: base},
	}

	tally := ProjectTally(poll, ballots, "m1", 8)

	require.Len(t, tally.Options, 3)
	assert.Equal(t, 1, tally.Options[0].VoteCount)
	assert.Equal(t, 2, tally.Options[1].VoteCount)
	assert.Equal(t, 0, tally.Options[2].VoteCount)
	assert.Equal(t, 3, tally.TotalVotes())
	assert.Equal(t, 2, tally.Participants)
	assert.Equal(t, []string{"o1", "o2"}, tally.MyOptionIDs)
	assert.True(t, tally.HasVoted())
	assert.Equal(t, 0.25, tally.ParticipationRate())
	require.Len(t, tally.Options[1].Voters, 2)
	assert.Equal(t, "m1", tally.Options[1].Voters[0].MemberID)
	assert.Equal(t, "m2", tally.Options[1].Voters[1].MemberID)
}

func TestProjectTally_CountsNeverExceedParticipantsOnSingleChoice(t *testing.T) {
	poll := samplePoll()
	ballots := []entities.Ballot{
		{OptionID: "o1", MemberID: "m1"},
		{OptionID: "o1", MemberID: "m2"},
		{OptionID: "o3", MemberID: "m3"},
	}

	tally := ProjectTally(poll, ballots, "", 3)

	assert.LessOrEqual(t, tally.TotalVotes(), tally.Participants)
	assert.Empty(t, tally.MyOptionIDs)
	assert.False(t, tally.HasVoted())
}

func TestProjectTally_AnonymousHidesVoters(t *testing.T) {
	poll := samplePoll()
	poll.Anonymous = true
	ballots := []entities.Ballot{
		{OptionID: "o1", MemberID: "m1"},
		{OptionID: "o2", MemberID: "m2"},
	}

	tally := ProjectTally(poll, ballots, "m2", 2)

	for _, option := range tally.Options {
		assert.Empty(t, option.Voters)
	}
	assert.Equal(t, []string{"o2"}, tally.MyOptionIDs)
	assert.Equal(t, 1.0, tally.ParticipationRate())
}
