package workers

import (
	"context"
	"errors"
	"log/slog"
	"time"

	application "pollhub/contexts/member-engagement/poll-engine/application"
	domainerrors "pollhub/contexts/member-engagement/poll-engine/domain/errors"
	"pollhub/contexts/member-engagement/poll-engine/ports"

	"go.opentelemetry.io/otel/attribute"
)

// SweepReport lists what one sweep did. Failed holds per-poll errors; a
// failure on one poll never stops the others from closing.
type SweepReport struct {
	Closed []string
	Failed map[string]error
}

// ExpirySweeper closes active polls whose deadline has passed.
type ExpirySweeper struct {
	Polls     ports.PollRepository
	Clock     ports.Clock
	IDGen     ports.IDGenerator
	BatchSize int
	Logger    *slog.Logger
}

func (j ExpirySweeper) RunOnce(ctx context.Context) error {
	_, err := j.Sweep(ctx)
	return err
}

// Sweep closes every active poll with a deadline strictly before now, each in
// its own transaction. It returns an error only when the candidate listing
// fails or the context is cancelled.
func (j ExpirySweeper) Sweep(ctx context.Context) (report SweepReport, err error) {
	ctx, span := application.StartSpan(ctx, "poll.expiry_sweep")
	defer func() { application.EndSpan(span, err) }()

	logger := application.ResolveLogger(j.Logger)
	now := time.Now().UTC()
	if j.Clock != nil {
		now = j.Clock.Now().UTC()
	}
	limit := j.BatchSize
	if limit <= 0 {
		limit = 500
	}

	report = SweepReport{Failed: make(map[string]error)}
	attempted := make(map[string]struct{})
	for {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		// Failed polls stay active and are listed again; widen the window so
		// they cannot crowd out the rest of the batch.
		window := limit + len(report.Failed)
		candidates, err := j.Polls.ListExpiredActivePolls(ctx, now, window)
		if err != nil {
			logger.Error("poll expiry sweep listing failed",
				"event", "poll_expiry_sweep_list_failed",
				"module", "member-engagement/poll-engine",
				"layer", "worker",
				"error", err.Error(),
			)
			return report, err
		}

		fresh := 0
		for _, candidate := range candidates {
			if _, seen := attempted[candidate.PollID]; seen {
				continue
			}
			attempted[candidate.PollID] = struct{}{}
			fresh++

			closed, err := j.closeExpired(ctx, candidate.PollID, now)
			if err != nil {
				report.Failed[candidate.PollID] = err
				logger.Error("poll expiry close failed",
					"event", "poll_expiry_close_failed",
					"module", "member-engagement/poll-engine",
					"layer", "worker",
					"poll_id", candidate.PollID,
					"error", err.Error(),
				)
				continue
			}
			if closed {
				report.Closed = append(report.Closed, candidate.PollID)
			}
		}
		if len(candidates) < window || fresh == 0 {
			break
		}
	}

	span.SetAttributes(
		attribute.Int("poll.closed_count", len(report.Closed)),
		attribute.Int("poll.failed_count", len(report.Failed)),
	)
	if len(report.Closed) > 0 || len(report.Failed) > 0 {
		logger.Info("poll expiry sweep completed",
			"event", "poll_expiry_sweep_completed",
			"module", "member-engagement/poll-engine",
			"layer", "worker",
			"closed_count", len(report.Closed),
			"failed_count", len(report.Failed),
		)
	}
	return report, nil
}

// closeExpired re-reads the poll under lock: a concurrent manual close, a
// deadline extension or a deletion since the listing turns it into a no-op.
func (j ExpirySweeper) closeExpired(ctx context.Context, pollID string, now time.Time) (bool, error) {
	closed := false
	err := j.Polls.RunInTx(ctx, func(ctx context.Context, tx ports.PollTx) error {
		poll, err := tx.LockPoll(ctx, pollID)
		if err != nil {
			return err
		}
		if poll.IsClosed() || !poll.IsExpired(now) {
			return nil
		}
		poll.Close(now)
		if err := tx.SavePoll(ctx, poll); err != nil {
			return err
		}
		envelope, err := newPollClosedEnvelope(ctx, j.IDGen, poll, now)
		if err != nil {
			return err
		}
		if err := tx.AppendOutbox(ctx, envelope); err != nil {
			return err
		}
		closed = true
		return nil
	})
	if errors.Is(err, domainerrors.ErrPollNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return closed, nil
}
