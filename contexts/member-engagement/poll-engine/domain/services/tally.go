package services

import (
	"sort"

	"pollhub/contexts/member-engagement/poll-engine/domain/entities"
)

// ProjectTally derives the tally of a poll from its ballots. It is a pure
// function: no store or directory access, activeMembers is supplied by the
// caller. Ballots that point at options the poll no longer has are ignored.
func ProjectTally(
	poll entities.Poll,
	ballots []entities.Ballot,
	callerID string,
	activeMembers int64,
) entities.Tally {
	options := poll.SortedOptions()
	tallies := make([]entities.OptionTally, len(options))
	index := make(map[string]int, len(options))
	for i, option := range options {
		tallies[i] = entities.OptionTally{
			Option: option,
			Voters: []entities.Voter{},
		}
		index[option.OptionID] = i
	}

	participants := make(map[string]struct{})
	mine := make(map[string]struct{})
	for _, ballot := range ballots {
		if ballot.PollID != "" && ballot.PollID != poll.PollID {
			continue
		}
		i, ok := index[ballot.OptionID]
		if !ok {
			continue
		}
		tallies[i].VoteCount++
		if !poll.Anonymous {
			tallies[i].Voters = append(tallies[i].Voters, entities.Voter{
				MemberID: ballot.MemberID,
				CastAt:   ballot.CastAt,
			})
		}
		participants[ballot.MemberID] = struct{}{}
		if callerID != "" && ballot.MemberID == callerID {
			mine[ballot.OptionID] = struct{}{}
		}
	}

	for i := range tallies {
		voters := tallies[i].Voters
		sort.SliceStable(voters, func(a, b int) bool {
			if voters[a].CastAt.Equal(voters[b].CastAt) {
				return voters[a].MemberID < voters[b].MemberID
			}
			return voters[a].CastAt.Before(voters[b].CastAt)
		})
	}

	myOptionIDs := make([]string, 0, len(mine))
	for _, option := range options {
		if _, ok := mine[option.OptionID]; ok {
			myOptionIDs = append(myOptionIDs, option.OptionID)
		}
	}

	poll.Options = options
	return entities.Tally{
		Poll:          poll,
		Options:       tallies,
		Participants:  len(participants),
		ActiveMembers: activeMembers,
		MyOptionIDs:   myOptionIDs,
	}
}
