package httpadapter

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"pollhub/contexts/member-engagement/poll-engine/application/commands"
	"pollhub/contexts/member-engagement/poll-engine/application/queries"
	"pollhub/contexts/member-engagement/poll-engine/domain/entities"
	"pollhub/contexts/member-engagement/poll-engine/domain/services"
	"pollhub/contexts/member-engagement/poll-engine/ports"
	httptransport "pollhub/contexts/member-engagement/poll-engine/transport/http"
)

// Handler exposes the poll operations to transports. The caller has already
// been resolved through the member directory.
type Handler struct {
	Polls   commands.PollUseCase
	Ballots commands.BallotUseCase
	Options commands.OptionUseCase
	Tallies queries.TallyUseCase
	Clock   ports.Clock
	Logger  *slog.Logger
}

func (h Handler) CreatePollHandler(
	ctx context.Context,
	caller entities.Member,
	idempotencyKey string,
	req httptransport.CreatePollRequest,
) (httptransport.TallyResponse, error) {
	result, err := h.Polls.CreatePoll(ctx, commands.CreatePollCommand{
		Author:         caller,
		Title:          req.Title,
		Description:    req.Description,
		Anonymous:      req.Anonymous,
		MultipleChoice: req.MultipleChoice,
		AllowAddOption: req.AllowAddOption,
		OptionTexts:    req.Options,
		Deadline:       req.Deadline,
		IdempotencyKey: idempotencyKey,
	})
	if err != nil {
		return httptransport.TallyResponse{}, err
	}
	resp, err := h.GetPollHandler(ctx, caller, result.Poll.PollID)
	if err != nil {
		return httptransport.TallyResponse{}, err
	}
	resp.Replayed = result.Replayed
	return resp, nil
}

func (h Handler) GetPollHandler(ctx context.Context, caller entities.Member, pollID string) (httptransport.TallyResponse, error) {
	view, err := h.Tallies.GetPoll(ctx, pollID, caller)
	if err != nil {
		return httptransport.TallyResponse{}, err
	}
	return mapTally(view, h.now()), nil
}

func (h Handler) ListPollsHandler(
	ctx context.Context,
	caller entities.Member,
	status string,
	page int,
	size int,
) (httptransport.ListPollsResponse, error) {
	result, err := h.Tallies.ListPolls(ctx, queries.ListPollsQuery{
		Status: entities.PollStatus(strings.ToLower(strings.TrimSpace(status))),
		Page:   page,
		Size:   size,
		Caller: caller,
	})
	if err != nil {
		return httptransport.ListPollsResponse{}, err
	}
	items := make([]httptransport.PollSummaryResponse, 0, len(result.Items))
	for _, item := range result.Items {
		items = append(items, httptransport.PollSummaryResponse{
			PollID:         item.Poll.PollID,
			Title:          item.Poll.Title,
			Author:         httptransport.MemberRef{MemberID: item.Poll.AuthorID, Name: item.AuthorName},
			Anonymous:      item.Poll.Anonymous,
			MultipleChoice: item.Poll.MultipleChoice,
			Status:         string(item.Poll.Status),
			Deadline:       item.Poll.Deadline,
			CreatedAt:      item.Poll.CreatedAt,
			OptionCount:    item.OptionCount(),
			Participants:   item.Participants,
			ActiveMembers:  item.ActiveMembers,
			HasVoted:       item.HasVoted,
		})
	}
	return httptransport.ListPollsResponse{
		Items: items,
		Page:  result.Page,
		Size:  result.Size,
		Total: result.Total,
	}, nil
}

// CastVoteHandler records the caller's selection and returns the fresh tally.
func (h Handler) CastVoteHandler(
	ctx context.Context,
	caller entities.Member,
	pollID string,
	req httptransport.CastVoteRequest,
) (httptransport.TallyResponse, error) {
	if err := h.Ballots.CastVote(ctx, commands.CastVoteCommand{
		PollID:    pollID,
		OptionIDs: req.OptionIDs,
		Member:    caller,
	}); err != nil {
		return httptransport.TallyResponse{}, err
	}
	return h.GetPollHandler(ctx, caller, pollID)
}

func (h Handler) UpdatePollHandler(
	ctx context.Context,
	caller entities.Member,
	pollID string,
	req httptransport.UpdatePollRequest,
) (httptransport.TallyResponse, error) {
	edits := make([]services.OptionEdit, 0, len(req.Options))
	for _, item := range req.Options {
		edits = append(edits, services.OptionEdit{
			OptionID:     item.OptionID,
			Text:         item.Text,
			DisplayOrder: item.DisplayOrder,
		})
	}
	if _, err := h.Polls.UpdatePoll(ctx, commands.UpdatePollCommand{
		PollID:      pollID,
		Caller:      caller,
		Title:       req.Title,
		Description: req.Description,
		Deadline:    req.Deadline,
		Options: services.BulkOptionEdit{
			Edits:      edits,
			DeletedIDs: req.DeletedOptionIDs,
		},
	}); err != nil {
		return httptransport.TallyResponse{}, err
	}
	return h.GetPollHandler(ctx, caller, pollID)
}

func (h Handler) DeletePollHandler(ctx context.Context, caller entities.Member, pollID string) (httptransport.DeletePollResponse, error) {
	if err := h.Polls.DeletePoll(ctx, commands.DeletePollCommand{
		PollID: pollID,
		Caller: caller,
	}); err != nil {
		return httptransport.DeletePollResponse{}, err
	}
	return httptransport.DeletePollResponse{PollID: pollID, Deleted: true}, nil
}

func (h Handler) ClosePollHandler(ctx context.Context, caller entities.Member, pollID string) (httptransport.TallyResponse, error) {
	if _, err := h.Polls.ClosePoll(ctx, commands.ClosePollCommand{
		PollID: pollID,
		Caller: caller,
	}); err != nil {
		return httptransport.TallyResponse{}, err
	}
	return h.GetPollHandler(ctx, caller, pollID)
}

func (h Handler) AddOptionHandler(
	ctx context.Context,
	caller entities.Member,
	pollID string,
	req httptransport.AddOptionRequest,
) (httptransport.OptionResponse, error) {
	option, err := h.Options.AddOption(ctx, commands.AddOptionCommand{
		PollID: pollID,
		Text:   req.Text,
		Member: caller,
	})
	if err != nil {
		return httptransport.OptionResponse{}, err
	}
	return httptransport.OptionResponse{
		OptionID:     option.OptionID,
		PollID:       option.PollID,
		Text:         option.Text,
		DisplayOrder: option.DisplayOrder,
		AddedBy:      option.AddedByMemberID,
	}, nil
}

func (h Handler) now() time.Time {
	if h.Clock != nil {
		return h.Clock.Now().UTC()
	}
	return time.Now().UTC()
}

func mapTally(view queries.TallyView, now time.Time) httptransport.TallyResponse {
	tally := view.Tally
	options := make([]httptransport.OptionTallyResponse, 0, len(tally.Options))
	for _, item := range tally.Options {
		voters := make([]httptransport.VoterResponse, 0, len(item.Voters))
		for _, voter := range item.Voters {
			voters = append(voters, httptransport.VoterResponse{
				MemberID: voter.MemberID,
				Name:     voter.Name,
				CastAt:   voter.CastAt,
			})
		}
		options = append(options, httptransport.OptionTallyResponse{
			OptionID:     item.Option.OptionID,
			Text:         item.Option.Text,
			DisplayOrder: item.Option.DisplayOrder,
			AddedBy:      item.Option.AddedByMemberID,
			VoteCount:    item.VoteCount,
			Voters:       voters,
		})
	}
	return httptransport.TallyResponse{
		PollID:            tally.Poll.PollID,
		Title:             tally.Poll.Title,
		Description:       tally.Poll.Description,
		Author:            httptransport.MemberRef{MemberID: tally.Poll.AuthorID, Name: view.AuthorName},
		Anonymous:         tally.Poll.Anonymous,
		MultipleChoice:    tally.Poll.MultipleChoice,
		AllowAddOption:    tally.Poll.AllowAddOption,
		Status:            string(tally.Poll.Status),
		Expired:           tally.Poll.IsExpired(now),
		Deadline:          tally.Poll.Deadline,
		CreatedAt:         tally.Poll.CreatedAt,
		UpdatedAt:         tally.Poll.UpdatedAt,
		Options:           options,
		TotalVotes:        tally.TotalVotes(),
		Participants:      tally.Participants,
		ActiveMembers:     tally.ActiveMembers,
		ParticipationRate: tally.ParticipationRate(),
		MyOptionIDs:       append([]string{}, tally.MyOptionIDs...),
		HasVoted:          tally.HasVoted(),
	}
}
