package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	pollengine "pollhub/contexts/member-engagement/poll-engine"
	"pollhub/contexts/member-engagement/poll-engine/application/workers"
	"pollhub/contexts/member-engagement/poll-engine/ports"
	contractsv1 "pollhub/contracts/gen/events/v1"
	"pollhub/internal/platform/config"
	"pollhub/internal/platform/httpserver"
	"pollhub/internal/platform/messaging"
	"pollhub/internal/platform/telemetry"

	"golang.org/x/sync/errgroup"
)

// Package bootstrap is the composition root.
// Keep construction/wiring here so module code stays framework-agnostic.

const shutdownTimeout = 10 * time.Second

var pollTopics = []string{
	contractsv1.EventPollCreated,
	contractsv1.EventPollUpdated,
	contractsv1.EventPollDeleted,
	contractsv1.EventPollClosed,
	contractsv1.EventPollOptionAdded,
}

type APIApp struct {
	server    *httpserver.Server
	store     *Store
	telemetry func(context.Context) error
	logger    *slog.Logger
}

type WorkerApp struct {
	store        *Store
	bus          *messaging.Bus
	scheduler    *workers.ExpiryScheduler
	outboxRelay  workers.OutboxRelay
	pollInterval time.Duration
	telemetry    func(context.Context) error
	logger       *slog.Logger
}

func BuildAPI(ctx context.Context) (*APIApp, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger := slog.Default().With("service", cfg.ServiceName, "process", "api")

	shutdown, err := telemetry.Setup(ctx, cfg.ServiceName, cfg.OTelEndpoint)
	if err != nil {
		return nil, err
	}
	store, err := OpenStore(ctx, cfg, logger)
	if err != nil {
		_ = shutdown(ctx)
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		_ = shutdown(ctx)
		return nil, err
	}

	module := newPollModule(cfg, store, logger)
	server := httpserver.New(module, httpserver.RateLimit{
		RequestsPerSecond: cfg.CastRatePerSecond,
		Burst:             cfg.CastRateBurst,
	}, logger, normalizeAddr(cfg.HTTPPort))
	return &APIApp{
		server:    server,
		store:     store,
		telemetry: shutdown,
		logger:    logger,
	}, nil
}

func BuildWorker(ctx context.Context) (*WorkerApp, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := checkWorkerDriver(cfg.StoreDriver); err != nil {
		return nil, err
	}
	logger := slog.Default().With("service", cfg.ServiceName, "process", "worker")

	shutdown, err := telemetry.Setup(ctx, cfg.ServiceName, cfg.OTelEndpoint)
	if err != nil {
		return nil, err
	}
	store, err := OpenStore(ctx, cfg, logger)
	if err != nil {
		_ = shutdown(ctx)
		return nil, err
	}
	bus, err := messaging.NewBus(cfg.KafkaBrokers, logger)
	if err != nil {
		_ = store.Close()
		_ = shutdown(ctx)
		return nil, err
	}

	module := newPollModule(cfg, store, logger)
	var scheduler *workers.ExpiryScheduler
	if cfg.EnableExpiryScheduler {
		scheduler = workers.NewExpiryScheduler(module.Sweeper, cfg.ExpirySweepInterval, logger)
	}
	return &WorkerApp{
		store:     store,
		bus:       bus,
		scheduler: scheduler,
		outboxRelay: workers.OutboxRelay{
			Outbox:    store.Outbox,
			Publisher: bus,
			Clock:     store.Clock,
			BatchSize: 100,
			Logger:    logger,
		},
		pollInterval: cfg.OutboxPollInterval,
		telemetry:    shutdown,
		logger:       logger,
	}, nil
}

// checkWorkerDriver refuses the memory driver: the worker would sweep and
// relay an empty store of its own instead of the one the API writes to.
func checkWorkerDriver(driver string) error {
	if driver == config.StoreDriverMemory {
		return fmt.Errorf("store driver %q is single-process; run the worker with %q or %q",
			driver, config.StoreDriverPostgres, config.StoreDriverSQLite)
	}
	return nil
}

func newPollModule(cfg config.Config, store *Store, logger *slog.Logger) pollengine.Module {
	return pollengine.NewModule(pollengine.Dependencies{
		Polls:          store.Polls,
		Members:        store.Members,
		Idempotency:    store.Idempotency,
		Clock:          store.Clock,
		IDGen:          store.IDGen,
		IdempotencyTTL: cfg.IdempotencyTTL,
		SweepBatchSize: cfg.ExpirySweepBatchSize,
		Logger:         logger,
	})
}

// Run serves HTTP until ctx is done, then drains in-flight requests.
func (a *APIApp) Run(ctx context.Context) error {
	a.logger.Info("api app started",
		"event", "bootstrap_api_started",
		"module", "internal/app/bootstrap",
		"layer", "platform",
	)
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(a.server.Start)
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return a.server.Shutdown(shutdownCtx)
	})
	return group.Wait()
}

func (a *APIApp) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return errors.Join(a.store.Close(), a.telemetry(ctx))
}

// Run drives the expiry scheduler and the outbox relay until ctx is done.
// Either task failing cancels the other.
func (w *WorkerApp) Run(ctx context.Context) error {
	w.logger.Info("worker app started",
		"event", "bootstrap_worker_started",
		"module", "internal/app/bootstrap",
		"layer", "platform",
		"poll_interval", w.pollInterval.String(),
		"expiry_scheduler_enabled", w.scheduler != nil,
		"brokers", strings.Join(w.bus.Brokers(), ","),
		"store_driver", w.store.Driver,
	)

	for _, topic := range pollTopics {
		if err := w.bus.Subscribe(ctx, topic, "poll-engine-audit", w.auditEvent); err != nil {
			return err
		}
	}

	group, groupCtx := errgroup.WithContext(ctx)
	if w.scheduler != nil {
		group.Go(func() error {
			return w.scheduler.Run(groupCtx)
		})
	}
	group.Go(func() error {
		return w.relayLoop(groupCtx)
	})
	return group.Wait()
}

func (w *WorkerApp) relayLoop(ctx context.Context) error {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()
	for {
		if err := w.outboxRelay.RunOnce(ctx); err != nil && ctx.Err() == nil {
			w.logger.Warn("outbox relay cycle failed",
				"event", "bootstrap_outbox_relay_retry",
				"module", "internal/app/bootstrap",
				"layer", "platform",
				"error", err.Error(),
			)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (w *WorkerApp) auditEvent(_ context.Context, event ports.EventEnvelope) error {
	w.logger.Info("poll event observed",
		"event", "poll_event_observed",
		"module", "internal/app/bootstrap",
		"layer", "platform",
		"event_id", event.EventID,
		"event_type", event.EventType,
		"partition_key", event.PartitionKey,
	)
	return nil
}

func (w *WorkerApp) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return errors.Join(w.store.Close(), w.telemetry(ctx))
}

func normalizeAddr(port string) string {
	value := strings.TrimSpace(port)
	if value == "" {
		return ":8080"
	}
	if strings.HasPrefix(value, ":") {
		return value
	}
	return ":" + value
}
