package commands

import (
	"errors"
	"log/slog"

	"pollhub/contexts/member-engagement/poll-engine/domain/entities"
	domainerrors "pollhub/contexts/member-engagement/poll-engine/domain/errors"
)

func authorizeAuthorOrAdmin(poll entities.Poll, caller entities.Member) error {
	if caller.IsAdmin() || poll.IsAuthor(caller.MemberID) {
		return nil
	}
	return domainerrors.ErrForbidden
}

var rejections = []error{
	domainerrors.ErrPollNotFound,
	domainerrors.ErrOptionNotFound,
	domainerrors.ErrPollClosed,
	domainerrors.ErrPollExpired,
	domainerrors.ErrSingleChoiceViolation,
	domainerrors.ErrOptionMinCount,
	domainerrors.ErrOptionMaxCount,
	domainerrors.ErrOptionDuplicate,
	domainerrors.ErrOptionHasVotes,
	domainerrors.ErrAddOptionNotAllowed,
	domainerrors.ErrForbidden,
	domainerrors.ErrInvalidPollInput,
	domainerrors.ErrDeadlineInPast,
	domainerrors.ErrDuplicateDisplayOrder,
	domainerrors.ErrMemberNotFound,
	domainerrors.ErrIdempotencyConflict,
}

// isRejection reports whether err is a business rule outcome rather than an
// infrastructure failure.
func isRejection(err error) bool {
	for _, target := range rejections {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// logFailure logs rejected commands at warn and infrastructure errors at error.
func logFailure(logger *slog.Logger, message string, event string, err error, attrs ...any) {
	fields := make([]any, 0, len(attrs)+8)
	fields = append(fields,
		"event", event,
		"module", "member-engagement/poll-engine",
		"layer", "application",
		"error", err.Error(),
	)
	fields = append(fields, attrs...)
	if isRejection(err) {
		logger.Warn(message, fields...)
		return
	}
	logger.Error(message, fields...)
}
