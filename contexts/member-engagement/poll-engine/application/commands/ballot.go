package commands

import (
	"context"
	"log/slog"
	"strings"
	"time"

	application "pollhub/contexts/member-engagement/poll-engine/application"
	"pollhub/contexts/member-engagement/poll-engine/domain/entities"
	domainerrors "pollhub/contexts/member-engagement/poll-engine/domain/errors"
	"pollhub/contexts/member-engagement/poll-engine/ports"

	"go.opentelemetry.io/otel/attribute"
)

// CastVoteCommand carries the complete new selection of a member. An empty
// OptionIDs withdraws the member's ballots.
type CastVoteCommand struct {
	PollID    string
	OptionIDs []string
	Member    entities.Member
}

// BallotUseCase records ballots with replace-all semantics.
type BallotUseCase struct {
	Polls  ports.PollRepository
	Clock  ports.Clock
	IDGen  ports.IDGenerator
	Logger *slog.Logger
}

// CastVote replaces the member's ballots on the poll with one ballot per
// requested option. Validation happens before any write, so a rejected cast
// leaves the previous ballots untouched.
func (uc BallotUseCase) CastVote(ctx context.Context, cmd CastVoteCommand) (err error) {
	pollID := strings.TrimSpace(cmd.PollID)
	memberID := strings.TrimSpace(cmd.Member.MemberID)
	ctx, span := application.StartSpan(ctx, "poll.cast_vote",
		attribute.String("poll.id", pollID),
		attribute.String("member.id", memberID),
		attribute.Int("option.count", len(cmd.OptionIDs)),
	)
	defer func() { application.EndSpan(span, err) }()

	logger := application.ResolveLogger(uc.Logger)
	if memberID == "" {
		logFailure(logger, "cast vote validation failed", "poll_cast_vote_validation_failed",
			domainerrors.ErrInvalidPollInput, "poll_id", pollID)
		return domainerrors.ErrInvalidPollInput
	}

	now := uc.now()
	var selected []string
	err = uc.Polls.RunInTx(ctx, func(ctx context.Context, tx ports.PollTx) error {
		poll, err := tx.LockMemberBallots(ctx, pollID, memberID)
		if err != nil {
			return err
		}
		if poll.IsClosed() {
			return domainerrors.ErrPollClosed
		}
		if poll.IsExpired(now) {
			return domainerrors.ErrPollExpired
		}
		if len(cmd.OptionIDs) > 1 && !poll.MultipleChoice {
			return domainerrors.ErrSingleChoiceViolation
		}

		selected = dedupeOptionIDs(cmd.OptionIDs)
		for _, optionID := range selected {
			if _, ok := poll.OptionByID(optionID); !ok {
				return domainerrors.ErrOptionNotFound
			}
		}

		ballots := make([]entities.Ballot, 0, len(selected))
		for _, optionID := range selected {
			ballotID, err := uc.IDGen.NewID(ctx)
			if err != nil {
				return err
			}
			ballots = append(ballots, entities.Ballot{
				BallotID: ballotID,
				PollID:   poll.PollID,
				OptionID: optionID,
				MemberID: memberID,
				CastAt:   now,
			})
		}
		return tx.ReplaceMemberBallots(ctx, poll.PollID, memberID, ballots)
	})
	if err != nil {
		logFailure(logger, "cast vote failed", "poll_cast_vote_failed",
			err, "poll_id", pollID, "member_id", memberID, "option_count", len(cmd.OptionIDs))
		return err
	}

	logger.Info("cast vote recorded",
		"event", "poll_cast_vote_recorded",
		"module", "member-engagement/poll-engine",
		"layer", "application",
		"poll_id", pollID,
		"member_id", memberID,
		"option_count", len(selected),
		"withdrawn", len(selected) == 0,
	)
	return nil
}

func (uc BallotUseCase) now() time.Time {
	now := time.Now().UTC()
	if uc.Clock != nil {
		now = uc.Clock.Now().UTC()
	}
	return now
}

func dedupeOptionIDs(optionIDs []string) []string {
	seen := make(map[string]struct{}, len(optionIDs))
	items := make([]string, 0, len(optionIDs))
	for _, raw := range optionIDs {
		optionID := strings.TrimSpace(raw)
		if _, ok := seen[optionID]; ok {
			continue
		}
		seen[optionID] = struct{}{}
		items = append(items, optionID)
	}
	return items
}
