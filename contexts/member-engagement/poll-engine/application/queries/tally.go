package queries

import (
	"context"
	"log/slog"
	"strings"

	application "pollhub/contexts/member-engagement/poll-engine/application"
	"pollhub/contexts/member-engagement/poll-engine/domain/entities"
	domainerrors "pollhub/contexts/member-engagement/poll-engine/domain/errors"
	"pollhub/contexts/member-engagement/poll-engine/domain/services"
	"pollhub/contexts/member-engagement/poll-engine/ports"

	"go.opentelemetry.io/otel/attribute"
)

const (
	defaultPageSize = 10
	maxPageSize     = 100
)

// TallyView is the tally of one poll as seen by one caller, with display
// names filled in from the member directory where available.
type TallyView struct {
	Tally      entities.Tally
	AuthorName string
}

type ListPollsQuery struct {
	Status entities.PollStatus
	Page   int
	Size   int
	Caller entities.Member
}

type PollSummary struct {
	Poll          entities.Poll
	AuthorName    string
	Participants  int
	ActiveMembers int64
	HasVoted      bool
}

func (s PollSummary) OptionCount() int {
	return len(s.Poll.Options)
}

type PollSummaryPage struct {
	Items []PollSummary
	Page  int
	Size  int
	Total int
}

type TallyUseCase struct {
	Polls   ports.PollRepository
	Members ports.MemberDirectory
	Logger  *slog.Logger
}

func (uc TallyUseCase) GetPoll(ctx context.Context, pollID string, caller entities.Member) (view TallyView, err error) {
	pollID = strings.TrimSpace(pollID)
	ctx, span := application.StartSpan(ctx, "poll.get", attribute.String("poll.id", pollID))
	defer func() { application.EndSpan(span, err) }()

	poll, ballots, err := uc.Polls.GetPollWithBallots(ctx, pollID)
	if err != nil {
		return TallyView{}, err
	}
	active, err := uc.Members.ActiveMemberCount(ctx)
	if err != nil {
		return TallyView{}, err
	}
	tally := services.ProjectTally(poll, ballots, strings.TrimSpace(caller.MemberID), active)

	ids := []string{poll.AuthorID}
	for _, option := range tally.Options {
		for _, voter := range option.Voters {
			ids = append(ids, voter.MemberID)
		}
	}
	names := uc.lookupNames(ctx, ids)
	for i := range tally.Options {
		for j := range tally.Options[i].Voters {
			tally.Options[i].Voters[j].Name = names[tally.Options[i].Voters[j].MemberID]
		}
	}
	return TallyView{
		Tally:      tally,
		AuthorName: names[poll.AuthorID],
	}, nil
}

// ListPolls returns a page of polls, newest first, with participation counts
// and whether the caller has voted on each.
func (uc TallyUseCase) ListPolls(ctx context.Context, query ListPollsQuery) (page PollSummaryPage, err error) {
	ctx, span := application.StartSpan(ctx, "poll.list", attribute.String("poll.status", string(query.Status)))
	defer func() { application.EndSpan(span, err) }()

	if query.Status != "" && !query.Status.Valid() {
		return PollSummaryPage{}, domainerrors.ErrInvalidPollInput
	}
	if query.Page < 0 {
		return PollSummaryPage{}, domainerrors.ErrInvalidPollInput
	}
	size := query.Size
	if size <= 0 {
		size = defaultPageSize
	}
	if size > maxPageSize {
		size = maxPageSize
	}

	result, err := uc.Polls.ListPolls(ctx, ports.PollFilter{
		Status: query.Status,
		Offset: query.Page * size,
		Limit:  size,
	})
	if err != nil {
		return PollSummaryPage{}, err
	}

	pollIDs := make([]string, 0, len(result.Items))
	authorIDs := make([]string, 0, len(result.Items))
	for _, poll := range result.Items {
		pollIDs = append(pollIDs, poll.PollID)
		authorIDs = append(authorIDs, poll.AuthorID)
	}
	participants, err := uc.Polls.CountParticipants(ctx, pollIDs)
	if err != nil {
		return PollSummaryPage{}, err
	}
	voted, err := uc.Polls.ListVotedPollIDs(ctx, strings.TrimSpace(query.Caller.MemberID), pollIDs)
	if err != nil {
		return PollSummaryPage{}, err
	}
	active, err := uc.Members.ActiveMemberCount(ctx)
	if err != nil {
		return PollSummaryPage{}, err
	}
	names := uc.lookupNames(ctx, authorIDs)

	items := make([]PollSummary, 0, len(result.Items))
	for _, poll := range result.Items {
		poll.Options = poll.SortedOptions()
		items = append(items, PollSummary{
			Poll:          poll,
			AuthorName:    names[poll.AuthorID],
			Participants:  participants[poll.PollID],
			ActiveMembers: active,
			HasVoted:      voted[poll.PollID],
		})
	}
	return PollSummaryPage{
		Items: items,
		Page:  query.Page,
		Size:  size,
		Total: result.Total,
	}, nil
}

// lookupNames degrades to ids only when the directory cannot answer; names
// are display data and never block a read.
func (uc TallyUseCase) lookupNames(ctx context.Context, memberIDs []string) map[string]string {
	names := make(map[string]string, len(memberIDs))
	if len(memberIDs) == 0 {
		return names
	}
	members, err := uc.Members.LookupMembers(ctx, uniqueIDs(memberIDs))
	if err != nil {
		application.ResolveLogger(uc.Logger).Warn("member name lookup failed",
			"event", "poll_member_lookup_failed",
			"module", "member-engagement/poll-engine",
			"layer", "application",
			"member_count", len(memberIDs),
			"error", err.Error(),
		)
		return names
	}
	for id, member := range members {
		names[id] = member.Name
	}
	return names
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	items := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok || id == "" {
			continue
		}
		seen[id] = struct{}{}
		items = append(items, id)
	}
	return items
}
