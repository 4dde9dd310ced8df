package errors

import "errors"

var (
	ErrPollNotFound          = errors.New("poll not found")
	ErrOptionNotFound        = errors.New("poll option not found")
	ErrPollClosed            = errors.New("poll is closed")
	ErrPollExpired           = errors.New("poll deadline has passed")
	ErrSingleChoiceViolation = errors.New("poll accepts a single option per member")
	ErrOptionMinCount        = errors.New("poll needs at least 2 options")
	ErrOptionMaxCount        = errors.New("poll allows at most 10 options")
	ErrOptionDuplicate       = errors.New("poll option text is duplicated")
	ErrOptionHasVotes        = errors.New("poll option has votes and cannot be deleted")
	ErrAddOptionNotAllowed   = errors.New("poll does not allow adding options")
	ErrForbidden             = errors.New("only the author or an admin may change this poll")

	ErrInvalidPollInput      = errors.New("invalid poll input")
	ErrDeadlineInPast        = errors.New("poll deadline must be in the future")
	ErrDuplicateDisplayOrder = errors.New("poll option display order is duplicated")
	ErrMemberNotFound        = errors.New("member not found")
	ErrIdempotencyConflict   = errors.New("idempotency key conflict")
	ErrConflict              = errors.New("poll conflict")
)
