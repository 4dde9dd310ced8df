package commands

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
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

// CreatePollCommand is the write-model input for poll creation.
type CreatePollCommand struct {
	Author         entities.Member
	Title          string
	Description    string
	Anonymous      bool
	MultipleChoice bool
	AllowAddOption bool
	OptionTexts    []string
	Deadline       time.Time
	IdempotencyKey string
}

type CreatePollResult struct {
	Poll     entities.Poll
	Replayed bool
}

// UpdatePollCommand changes the poll header and, when Options is not empty,
// the option set. Nil header fields are left untouched.
type UpdatePollCommand struct {
	PollID      string
	Caller      entities.Member
	Title       *string
	Description *string
	Deadline    *time.Time
	Options     services.BulkOptionEdit
}

type DeletePollCommand struct {
	PollID string
	Caller entities.Member
}

type ClosePollCommand struct {
	PollID string
	Caller entities.Member
}

// PollUseCase owns the poll lifecycle: creation, header and option edits,
// manual close and deletion. Every mutation runs in one store transaction
// together with its outbox event.
type PollUseCase struct {
	Polls          ports.PollRepository
	Idempotency    ports.IdempotencyStore
	Clock          ports.Clock
	IDGen          ports.IDGenerator
	IdempotencyTTL time.Duration
	Logger         *slog.Logger
}

func (uc PollUseCase) CreatePoll(ctx context.Context, cmd CreatePollCommand) (result CreatePollResult, err error) {
	authorID := strings.TrimSpace(cmd.Author.MemberID)
	ctx, span := application.StartSpan(ctx, "poll.create", attribute.String("member.id", authorID))
	defer func() { application.EndSpan(span, err) }()

	logger := application.ResolveLogger(uc.Logger)
	logger.Info("poll create processing started",
		"event", "poll_create_started",
		"module", "member-engagement/poll-engine",
		"layer", "application",
		"author_id", authorID,
		"option_count", len(cmd.OptionTexts),
	)
	if authorID == "" ||
		!entities.ValidTitle(cmd.Title) ||
		!entities.ValidDescription(cmd.Description) ||
		cmd.Deadline.IsZero() {
		logFailure(logger, "poll create validation failed", "poll_create_validation_failed",
			domainerrors.ErrInvalidPollInput, "author_id", authorID)
		return CreatePollResult{}, domainerrors.ErrInvalidPollInput
	}

	now := uc.now()
	if !cmd.Deadline.After(now) {
		logFailure(logger, "poll create deadline rejected", "poll_create_deadline_rejected",
			domainerrors.ErrDeadlineInPast, "author_id", authorID, "deadline", cmd.Deadline.UTC())
		return CreatePollResult{}, domainerrors.ErrDeadlineInPast
	}

	idempotencyKey := strings.TrimSpace(cmd.IdempotencyKey)
	requestHash := hashCreatePollCommand(cmd)
	useIdempotency := idempotencyKey != "" && uc.Idempotency != nil
	if useIdempotency {
		replayed, found, err := uc.replayCreate(ctx, idempotencyKey, requestHash, now, authorID)
		if err != nil || found {
			return replayed, err
		}
	}

	pollID, err := uc.IDGen.NewID(ctx)
	if err != nil {
		return CreatePollResult{}, err
	}
	options, err := services.BuildInitialOptions(pollID, cmd.OptionTexts, func() (string, error) {
		return uc.IDGen.NewID(ctx)
	})
	if err != nil {
		logFailure(logger, "poll create options rejected", "poll_create_options_rejected",
			err, "author_id", authorID)
		return CreatePollResult{}, err
	}

	poll := entities.Poll{
		PollID:         pollID,
		Title:          strings.TrimSpace(cmd.Title),
		Description:    strings.TrimSpace(cmd.Description),
		AuthorID:       authorID,
		Anonymous:      cmd.Anonymous,
		MultipleChoice: cmd.MultipleChoice,
		AllowAddOption: cmd.AllowAddOption,
		Deadline:       cmd.Deadline.UTC(),
		Status:         entities.PollStatusActive,
		Options:        options,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	err = uc.Polls.RunInTx(ctx, func(ctx context.Context, tx ports.PollTx) error {
		if useIdempotency {
			if err := tx.ClaimIdempotencyKey(ctx, ports.IdempotencyRecord{
				Key:         idempotencyKey,
				RequestHash: requestHash,
				PollID:      poll.PollID,
				ExpiresAt:   now.Add(uc.resolveIdempotencyTTL()),
			}, now); err != nil {
				return err
			}
		}
		if err := tx.SavePoll(ctx, poll); err != nil {
			return err
		}
		return appendPollEvent(ctx, tx, uc.IDGen, contractsv1.EventPollCreated, poll, now, map[string]any{
			"title":           poll.Title,
			"option_count":    len(poll.Options),
			"deadline":        poll.Deadline,
			"anonymous":       poll.Anonymous,
			"multiple_choice": poll.MultipleChoice,
		})
	})
	if useIdempotency && errors.Is(err, domainerrors.ErrIdempotencyConflict) {
		// Another request claimed the key after our lookup and has committed.
		replayed, found, replayErr := uc.replayCreate(ctx, idempotencyKey, requestHash, now, authorID)
		if replayErr != nil || found {
			return replayed, replayErr
		}
	}
	if err != nil {
		logFailure(logger, "poll create persist failed", "poll_create_persist_failed",
			err, "poll_id", pollID, "author_id", authorID)
		return CreatePollResult{}, err
	}

	logger.Info("poll created",
		"event", "poll_created",
		"module", "member-engagement/poll-engine",
		"layer", "application",
		"poll_id", poll.PollID,
		"author_id", authorID,
		"deadline", poll.Deadline,
	)
	return CreatePollResult{Poll: poll}, nil
}

// replayCreate returns the poll recorded under key. found is false when no
// live record exists; a record for a different request is a conflict.
func (uc PollUseCase) replayCreate(
	ctx context.Context,
	key string,
	requestHash string,
	now time.Time,
	authorID string,
) (CreatePollResult, bool, error) {
	logger := application.ResolveLogger(uc.Logger)
	record, found, err := uc.Idempotency.Get(ctx, key, now)
	if err != nil {
		logFailure(logger, "poll create idempotency lookup failed", "poll_create_idempotency_lookup_failed",
			err, "author_id", authorID)
		return CreatePollResult{}, false, err
	}
	if !found {
		return CreatePollResult{}, false, nil
	}
	if record.RequestHash != requestHash {
		logFailure(logger, "poll create idempotency conflict", "poll_create_idempotency_conflict",
			domainerrors.ErrIdempotencyConflict, "author_id", authorID)
		return CreatePollResult{}, true, domainerrors.ErrIdempotencyConflict
	}
	poll, err := uc.Polls.GetPoll(ctx, record.PollID)
	if err != nil {
		return CreatePollResult{}, true, err
	}
	logger.Info("poll create replayed",
		"event", "poll_create_replayed",
		"module", "member-engagement/poll-engine",
		"layer", "application",
		"poll_id", poll.PollID,
		"author_id", authorID,
	)
	return CreatePollResult{Poll: poll, Replayed: true}, true, nil
}

// UpdatePoll applies header changes and a bulk option edit atomically. The
// deadline is taken as given and is not required to be in the future.
func (uc PollUseCase) UpdatePoll(ctx context.Context, cmd UpdatePollCommand) (updated entities.Poll, err error) {
	pollID := strings.TrimSpace(cmd.PollID)
	ctx, span := application.StartSpan(ctx, "poll.update",
		attribute.String("poll.id", pollID),
		attribute.String("member.id", cmd.Caller.MemberID),
	)
	defer func() { application.EndSpan(span, err) }()

	logger := application.ResolveLogger(uc.Logger)
	if (cmd.Title != nil && !entities.ValidTitle(*cmd.Title)) ||
		(cmd.Description != nil && !entities.ValidDescription(*cmd.Description)) ||
		(cmd.Deadline != nil && cmd.Deadline.IsZero()) {
		logFailure(logger, "poll update validation failed", "poll_update_validation_failed",
			domainerrors.ErrInvalidPollInput, "poll_id", pollID)
		return entities.Poll{}, domainerrors.ErrInvalidPollInput
	}

	now := uc.now()
	err = uc.Polls.RunInTx(ctx, func(ctx context.Context, tx ports.PollTx) error {
		current, err := tx.LockPoll(ctx, pollID)
		if err != nil {
			return err
		}
		if err := authorizeAuthorOrAdmin(current, cmd.Caller); err != nil {
			return err
		}
		if current.IsClosed() {
			return domainerrors.ErrPollClosed
		}

		next := current.Clone()
		if cmd.Title != nil {
			next.Title = strings.TrimSpace(*cmd.Title)
		}
		if cmd.Description != nil {
			next.Description = strings.TrimSpace(*cmd.Description)
		}
		if cmd.Deadline != nil {
			next.Deadline = cmd.Deadline.UTC()
		}
		if !cmd.Options.Empty() {
			counts, err := tx.CountBallotsByOption(ctx, current.PollID)
			if err != nil {
				return err
			}
			options, err := services.ApplyBulkOptionEdit(current, cmd.Options, counts, func() (string, error) {
				return uc.IDGen.NewID(ctx)
			})
			if err != nil {
				return err
			}
			next.Options = options
		}
		next.UpdatedAt = now

		if err := tx.SavePoll(ctx, next); err != nil {
			return err
		}
		updated = next
		return appendPollEvent(ctx, tx, uc.IDGen, contractsv1.EventPollUpdated, next, now, map[string]any{
			"title":        next.Title,
			"deadline":     next.Deadline,
			"option_count": len(next.Options),
		})
	})
	if err != nil {
		logFailure(logger, "poll update failed", "poll_update_failed",
			err, "poll_id", pollID, "member_id", cmd.Caller.MemberID)
		return entities.Poll{}, err
	}

	logger.Info("poll updated",
		"event", "poll_updated",
		"module", "member-engagement/poll-engine",
		"layer", "application",
		"poll_id", pollID,
		"member_id", cmd.Caller.MemberID,
		"option_count", len(updated.Options),
	)
	return updated, nil
}

func (uc PollUseCase) DeletePoll(ctx context.Context, cmd DeletePollCommand) (err error) {
	pollID := strings.TrimSpace(cmd.PollID)
	ctx, span := application.StartSpan(ctx, "poll.delete", attribute.String("poll.id", pollID))
	defer func() { application.EndSpan(span, err) }()

	logger := application.ResolveLogger(uc.Logger)
	now := uc.now()
	err = uc.Polls.RunInTx(ctx, func(ctx context.Context, tx ports.PollTx) error {
		current, err := tx.LockPoll(ctx, pollID)
		if err != nil {
			return err
		}
		if err := authorizeAuthorOrAdmin(current, cmd.Caller); err != nil {
			return err
		}
		if err := tx.DeletePoll(ctx, current.PollID); err != nil {
			return err
		}
		return appendPollEvent(ctx, tx, uc.IDGen, contractsv1.EventPollDeleted, current, now, map[string]any{
			"deleted_by": cmd.Caller.MemberID,
		})
	})
	if err != nil {
		logFailure(logger, "poll delete failed", "poll_delete_failed",
			err, "poll_id", pollID, "member_id", cmd.Caller.MemberID)
		return err
	}

	logger.Info("poll deleted",
		"event", "poll_deleted",
		"module", "member-engagement/poll-engine",
		"layer", "application",
		"poll_id", pollID,
		"member_id", cmd.Caller.MemberID,
	)
	return nil
}

// ClosePoll closes the poll on behalf of its author or an admin. Closing an
// already closed poll succeeds without emitting another event.
func (uc PollUseCase) ClosePoll(ctx context.Context, cmd ClosePollCommand) (closed entities.Poll, err error) {
	pollID := strings.TrimSpace(cmd.PollID)
	ctx, span := application.StartSpan(ctx, "poll.close", attribute.String("poll.id", pollID))
	defer func() { application.EndSpan(span, err) }()

	logger := application.ResolveLogger(uc.Logger)
	now := uc.now()
	transitioned := false
	err = uc.Polls.RunInTx(ctx, func(ctx context.Context, tx ports.PollTx) error {
		current, err := tx.LockPoll(ctx, pollID)
		if err != nil {
			return err
		}
		if err := authorizeAuthorOrAdmin(current, cmd.Caller); err != nil {
			return err
		}
		closed = current
		if !closed.Close(now) {
			return nil
		}
		transitioned = true
		if err := tx.SavePoll(ctx, closed); err != nil {
			return err
		}
		return appendPollEvent(ctx, tx, uc.IDGen, contractsv1.EventPollClosed, closed, now, map[string]any{
			"reason":    "manual",
			"closed_by": cmd.Caller.MemberID,
		})
	})
	if err != nil {
		logFailure(logger, "poll close failed", "poll_close_failed",
			err, "poll_id", pollID, "member_id", cmd.Caller.MemberID)
		return entities.Poll{}, err
	}

	logger.Info("poll close processed",
		"event", "poll_closed",
		"module", "member-engagement/poll-engine",
		"layer", "application",
		"poll_id", pollID,
		"member_id", cmd.Caller.MemberID,
		"transitioned", transitioned,
	)
	return closed, nil
}

func (uc PollUseCase) now() time.Time {
	now := time.Now().UTC()
	if uc.Clock != nil {
		now = uc.Clock.Now().UTC()
	}
	return now
}

func (uc PollUseCase) resolveIdempotencyTTL() time.Duration {
	if uc.IdempotencyTTL <= 0 {
		return 7 * 24 * time.Hour
	}
	return uc.IdempotencyTTL
}

func hashCreatePollCommand(cmd CreatePollCommand) string {
	texts := make([]string, 0, len(cmd.OptionTexts))
	for _, text := range cmd.OptionTexts {
		texts = append(texts, strings.TrimSpace(text))
	}
	payload := map[string]any{
		"author_id":        strings.TrimSpace(cmd.Author.MemberID),
		"title":            strings.TrimSpace(cmd.Title),
		"description":      strings.TrimSpace(cmd.Description),
		"anonymous":        cmd.Anonymous,
		"multiple_choice":  cmd.MultipleChoice,
		"allow_add_option": cmd.AllowAddOption,
		"options":          texts,
		"deadline":         cmd.Deadline.UTC().Format(time.RFC3339Nano),
		"op":               "create_poll",
	}
	raw, _ := json.Marshal(payload)
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
