package workers

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	application "pollhub/contexts/member-engagement/poll-engine/application"
)

const DefaultExpiryInterval = 10 * time.Minute

var ErrSchedulerRunning = errors.New("expiry scheduler is already running")

// Job is one unit of periodic work.
type Job interface {
	RunOnce(ctx context.Context) error
}

// ExpiryScheduler runs Job immediately on Start and then every Interval until
// Stop. A failing run is logged and the schedule continues.
type ExpiryScheduler struct {
	Job      Job
	Interval time.Duration
	Logger   *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewExpiryScheduler(job Job, interval time.Duration, logger *slog.Logger) *ExpiryScheduler {
	return &ExpiryScheduler{
		Job:      job,
		Interval: interval,
		Logger:   logger,
	}
}

func (s *ExpiryScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done != nil {
		return ErrSchedulerRunning
	}

	interval := s.Interval
	if interval <= 0 {
		interval = DefaultExpiryInterval
	}
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done

	application.ResolveLogger(s.Logger).Info("poll expiry scheduler started",
		"event", "poll_expiry_scheduler_started",
		"module", "member-engagement/poll-engine",
		"layer", "worker",
		"interval", interval.String(),
	)
	go s.loop(runCtx, interval, done)
	return nil
}

// Stop cancels the schedule and waits for an in-flight run to return. It is
// safe to call on a stopped scheduler.
func (s *ExpiryScheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()
	if done == nil {
		return
	}
	cancel()
	<-done

	application.ResolveLogger(s.Logger).Info("poll expiry scheduler stopped",
		"event", "poll_expiry_scheduler_stopped",
		"module", "member-engagement/poll-engine",
		"layer", "worker",
	)
}

func (s *ExpiryScheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done != nil
}

// Run starts the scheduler and blocks until ctx is done.
func (s *ExpiryScheduler) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	s.Stop()
	return nil
}

func (s *ExpiryScheduler) loop(ctx context.Context, interval time.Duration, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.runJob(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runJob(ctx)
		}
	}
}

func (s *ExpiryScheduler) runJob(ctx context.Context) {
	if err := s.Job.RunOnce(ctx); err != nil && ctx.Err() == nil {
		application.ResolveLogger(s.Logger).Error("poll expiry run failed",
			"event", "poll_expiry_run_failed",
			"module", "member-engagement/poll-engine",
			"layer", "worker",
			"error", err.Error(),
		)
	}
}
