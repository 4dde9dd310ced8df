package commands

import (
	"context"
	"log/slog"
	"strings"
	"time"

	contractsv1 "pollhub/contracts/gen/events/v1"
	application "pollhub/contexts/member-engagement/poll-engine/application"
	"pollhub/contexts/member-engagement/poll-engine/domain/entities"
	domainerrors "pollhub/contexts/member-engagement/poll-engine/domain/errors"
	"pollhub/contexts/member-engagement/poll-engine/domain/services"
	"pollhub/contexts/member-engagement/poll-engine/ports"

	"go.opentelemetry.io/otel/attribute"
)

type AddOptionCommand struct {
	PollID string
	Text   string
	Member entities.Member
}

// OptionUseCase lets any member grow the option set of a poll that allows it.
// Bulk option edits by the author go through PollUseCase.UpdatePoll.
type OptionUseCase struct {
	Polls  ports.PollRepository
	Clock  ports.Clock
	IDGen  ports.IDGenerator
	Logger *slog.Logger
}

func (uc OptionUseCase) AddOption(ctx context.Context, cmd AddOptionCommand) (added entities.Option, err error) {
	pollID := strings.TrimSpace(cmd.PollID)
	memberID := strings.TrimSpace(cmd.Member.MemberID)
	ctx, span := application.StartSpan(ctx, "poll.add_option",
		attribute.String("poll.id", pollID),
		attribute.String("member.id", memberID),
	)
	defer func() { application.EndSpan(span, err) }()

	logger := application.ResolveLogger(uc.Logger)
	if memberID == "" {
		return entities.Option{}, domainerrors.ErrInvalidPollInput
	}

	now := uc.now()
	err = uc.Polls.RunInTx(ctx, func(ctx context.Context, tx ports.PollTx) error {
		poll, err := tx.LockPoll(ctx, pollID)
		if err != nil {
			return err
		}
		if !poll.AllowAddOption {
			return domainerrors.ErrAddOptionNotAllowed
		}
		if poll.IsClosed() {
			return domainerrors.ErrPollClosed
		}
		if poll.IsExpired(now) {
			return domainerrors.ErrPollExpired
		}

		optionID, err := uc.IDGen.NewID(ctx)
		if err != nil {
			return err
		}
		option, err := services.GrowOption(poll, optionID, cmd.Text, memberID)
		if err != nil {
			return err
		}
		poll.Options = append(poll.Options, option)
		poll.UpdatedAt = now
		if err := tx.SavePoll(ctx, poll); err != nil {
			return err
		}
		added = option
		return appendPollEvent(ctx, tx, uc.IDGen, contractsv1.EventPollOptionAdded, poll, now, map[string]any{
			"option_id":     option.OptionID,
			"text":          option.Text,
			"display_order": option.DisplayOrder,
			"added_by":      memberID,
		})
	})
	if err != nil {
		logFailure(logger, "add option failed", "poll_add_option_failed",
			err, "poll_id", pollID, "member_id", memberID)
		return entities.Option{}, err
	}

	logger.Info("poll option added",
		"event", "poll_option_added",
		"module", "member-engagement/poll-engine",
		"layer", "application",
		"poll_id", pollID,
		"option_id", added.OptionID,
		"member_id", memberID,
	)
	return added, nil
}

func (uc OptionUseCase) now() time.Time {
	now := time.Now().UTC()
	if uc.Clock != nil {
		now = uc.Clock.Now().UTC()
	}
	return now
}
