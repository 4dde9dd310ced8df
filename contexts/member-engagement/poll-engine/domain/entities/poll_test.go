package entities

import (
	"strings"
	"testing"
	"time"
)

func TestPollExpiryIsStrictlyAfterDeadline(t *testing.T) {
	deadline := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	poll := Poll{Deadline: deadline, Status: PollStatusActive}

	if poll.IsExpired(deadline) {
		t.Fatalf("poll must still be open at its deadline")
	}
	if !poll.IsExpired(deadline.Add(time.Nanosecond)) {
		t.Fatalf("poll must be expired right after its deadline")
	}
}

func TestPollCloseTransitionsOnce(t *testing.T) {
	now := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	poll := Poll{Status: PollStatusActive}

	if !poll.Close(now) {
		t.Fatalf("expected first close to transition")
	}
	if poll.Status != PollStatusClosed || !poll.UpdatedAt.Equal(now) {
		t.Fatalf("unexpected poll after close: %+v", poll)
	}
	if poll.Close(now.Add(time.Minute)) {
		t.Fatalf("expected second close to be a no-op")
	}
	if !poll.UpdatedAt.Equal(now) {
		t.Fatalf("no-op close must not touch updated_at")
	}
}

func TestNormalizeOptionTextFoldsCaseAndSpace(t *testing.T) {
	if NormalizeOptionText("  Pizza ") != NormalizeOptionText("pizza") {
		t.Fatalf("expected folded texts to match")
	}
	poll := Poll{Options: []Option{{OptionID: "o1", Text: "École"}}}
	if !poll.HasOptionText(" éCOLE") {
		t.Fatalf("expected folded unicode text to match")
	}
}

func TestSortedOptionsDoesNotMutatePoll(t *testing.T) {
	poll := Poll{Options: []Option{
		{OptionID: "b", DisplayOrder: 2},
		{OptionID: "a", DisplayOrder: 0},
		{OptionID: "c", DisplayOrder: 1},
	}}

	sorted := poll.SortedOptions()

	if sorted[0].OptionID != "a" || sorted[1].OptionID != "c" || sorted[2].OptionID != "b" {
		t.Fatalf("unexpected order: %+v", sorted)
	}
	if poll.Options[0].OptionID != "b" {
		t.Fatalf("source options were reordered")
	}
	if poll.NextDisplayOrder() != 3 {
		t.Fatalf("expected next display order 3, got %d", poll.NextDisplayOrder())
	}
}

func TestFieldLimits(t *testing.T) {
	if ValidTitle("   ") {
		t.Fatalf("blank title accepted")
	}
	if !ValidTitle(strings.Repeat("é", MaxTitleLength)) {
		t.Fatalf("title length must count runes")
	}
	if ValidTitle(strings.Repeat("a", MaxTitleLength+1)) {
		t.Fatalf("overlong title accepted")
	}
	if !ValidDescription("") {
		t.Fatalf("empty description rejected")
	}
	if ValidOptionText(strings.Repeat("x", MaxOptionTextLength+1)) {
		t.Fatalf("overlong option accepted")
	}
}

func TestTallyParticipationRate(t *testing.T) {
	tally := Tally{Participants: 3, ActiveMembers: 12}
	if tally.ParticipationRate() != 0.25 {
		t.Fatalf("expected 0.25, got %v", tally.ParticipationRate())
	}
	if (Tally{Participants: 3}).ParticipationRate() != 0 {
		t.Fatalf("expected zero rate without active members")
	}
}
