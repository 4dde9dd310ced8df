package entities

import "time"

type Voter struct {
	MemberID string
	Name     string
	CastAt   time.Time
}

type OptionTally struct {
	Option    Option
	VoteCount int

	// Voters is always empty for anonymous polls.
	Voters []Voter
}

// Tally is the read projection of a poll: counts per option, participation and
// the caller's own selection. It is computed on demand and never stored.
type Tally struct {
	Poll          Poll
	Options       []OptionTally
	Participants  int
	ActiveMembers int64
	MyOptionIDs   []string
}

func (t Tally) HasVoted() bool {
	return len(t.MyOptionIDs) > 0
}

func (t Tally) TotalVotes() int {
	total := 0
	for _, option := range t.Options {
		total += option.VoteCount
	}
	return total
}

// ParticipationRate is participants over active members, or zero when the
// directory reports no active members.
func (t Tally) ParticipationRate() float64 {
	if t.ActiveMembers <= 0 {
		return 0
	}
	return float64(t.Participants) / float64(t.ActiveMembers)
}
