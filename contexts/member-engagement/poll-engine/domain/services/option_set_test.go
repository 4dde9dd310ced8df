package services

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pollhub/contexts/member-engagement/poll-engine/domain/entities"
	domainerrors "pollhub/contexts/member-engagement/poll-engine/domain/errors"
)

func sequentialIDs(prefix string) func() (string, error) {
	next := 0
	return func() (string, error) {
		next++
		return fmt.Sprintf("%s-%d", prefix, next), nil
	}
}

func intPtr(v int) *int { return &v }

func samplePoll() entities.Poll {
	return entities.Poll{
		PollID: "poll-1",
		Options: []entities.Option{
			{OptionID: "o1", PollID: "poll-1", Text: "Pizza", DisplayOrder: 0},
			{OptionID: "o2", PollID: "poll-1", Text: "Sushi", DisplayOrder: 1},
			{OptionID: "o3", PollID: "poll-1", Text: "Tacos", DisplayOrder: 2},
		},
	}
}

func TestBuildInitialOptions(t *testing.T) {
	options, err := BuildInitialOptions("poll-1", []string{" Pizza ", "Sushi"}, sequentialIDs("opt"))
	require.NoError(t, err)
	require.Len(t, options, 2)
	assert.Equal(t, "Pizza", options[0].Text)
	assert.Equal(t, 0, options[0].DisplayOrder)
	assert.Equal(t, 1, options[1].DisplayOrder)
	assert.Equal(t, "poll-1", options[1].PollID)
}

func TestBuildInitialOptions_Bounds(t *testing.T) {
	_, err := BuildInitialOptions("poll-1", []string{"only"}, sequentialIDs("opt"))
	assert.ErrorIs(t, err, domainerrors.ErrOptionMinCount)

	eleven := make([]string, 11)
	for i := range eleven {
		eleven[i] = fmt.Sprintf("option %d", i)
	}
	_, err = BuildInitialOptions("poll-1", eleven, sequentialIDs("opt"))
	assert.ErrorIs(t, err, domainerrors.ErrOptionMaxCount)

	_, err = BuildInitialOptions("poll-1", []string{"pizza ", "Pizza"}, sequentialIDs("opt"))
	assert.ErrorIs(t, err, domainerrors.ErrOptionDuplicate)
}

func TestApplyBulkOptionEdit_DeleteEditInsert(t *testing.T) {
	options, err := ApplyBulkOptionEdit(samplePoll(), BulkOptionEdit{
		DeletedIDs: []string{"o3"},
		Edits: []OptionEdit{
			{OptionID: "o1", Text: "Pizza Margherita", DisplayOrder: intPtr(1)},
			{OptionID: "o2", Text: "Sushi", DisplayOrder: intPtr(0)},
			{Text: "Ramen"},
		},
	}, map[string]int{"o1": 4}, sequentialIDs("new"))

	require.NoError(t, err)
	require.Len(t, options, 3)
	assert.Equal(t, "o2", options[0].OptionID)
	assert.Equal(t, "o1", options[1].OptionID)
	assert.Equal(t, "Pizza Margherita", options[1].Text)
	assert.Equal(t, "new-1", options[2].OptionID)
	assert.Equal(t, 2, options[2].DisplayOrder)
}

func TestApplyBulkOptionEdit_DeletingVotedOptionFails(t *testing.T) {
	_, err := ApplyBulkOptionEdit(samplePoll(), BulkOptionEdit{
		DeletedIDs: []string{"o2"},
	}, map[string]int{"o2": 1}, sequentialIDs("new"))

	assert.ErrorIs(t, err, domainerrors.ErrOptionHasVotes)
}

func TestApplyBulkOptionEdit_ValidatesResultAsWhole(t *testing.T) {
	poll := samplePoll()

	_, err := ApplyBulkOptionEdit(poll, BulkOptionEdit{
		DeletedIDs: []string{"o2", "o3"},
	}, nil, sequentialIDs("new"))
	assert.ErrorIs(t, err, domainerrors.ErrOptionMinCount)

	_, err = ApplyBulkOptionEdit(poll, BulkOptionEdit{
		Edits: []OptionEdit{{Text: "pizza "}},
	}, nil, sequentialIDs("new"))
	assert.ErrorIs(t, err, domainerrors.ErrOptionDuplicate)

	_, err = ApplyBulkOptionEdit(poll, BulkOptionEdit{
		Edits: []OptionEdit{{OptionID: "o3", Text: "Tacos", DisplayOrder: intPtr(0)}},
	}, nil, sequentialIDs("new"))
	assert.ErrorIs(t, err, domainerrors.ErrDuplicateDisplayOrder)

	_, err = ApplyBulkOptionEdit(poll, BulkOptionEdit{
		Edits: []OptionEdit{{OptionID: "missing", Text: "Curry"}},
	}, nil, sequentialIDs("new"))
	assert.ErrorIs(t, err, domainerrors.ErrOptionNotFound)

	assert.Len(t, poll.Options, 3, "input poll must not be modified")
	assert.Equal(t, "Pizza", poll.Options[0].Text)
}

func TestApplyBulkOptionEdit_DeletingAndReaddingSameText(t *testing.T) {
	options, err := ApplyBulkOptionEdit(samplePoll(), BulkOptionEdit{
		DeletedIDs: []string{"o3"},
		Edits:      []OptionEdit{{Text: "tacos"}},
	}, nil, sequentialIDs("new"))

	require.NoError(t, err)
	require.Len(t, options, 3)
	assert.Equal(t, "tacos", options[2].Text)
}

func TestGrowOption(t *testing.T) {
	poll := samplePoll()

	option, err := GrowOption(poll, "o4", " Curry ", "member-7")
	require.NoError(t, err)
	assert.Equal(t, "Curry", option.Text)
	assert.Equal(t, 3, option.DisplayOrder)
	assert.Equal(t, "member-7", option.AddedByMemberID)

	_, err = GrowOption(poll, "o5", "SUSHI", "member-7")
	assert.ErrorIs(t, err, domainerrors.ErrOptionDuplicate)
}

func TestGrowOption_MaxTen(t *testing.T) {
	poll := entities.Poll{PollID: "poll-1"}
	for i := 0; i < entities.MaxOptionCount; i++ {
		poll.Options = append(poll.Options, entities.Option{
			OptionID:     fmt.Sprintf("o%d", i),
			Text:         fmt.Sprintf("choice %d", i),
			DisplayOrder: i,
		})
	}

	_, err := GrowOption(poll, "o-new", "one more", "member-1")
	assert.ErrorIs(t, err, domainerrors.ErrOptionMaxCount)
}
