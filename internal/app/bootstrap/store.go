package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"pollhub/contexts/member-engagement/poll-engine/adapters/memory"
	postgresadapter "pollhub/contexts/member-engagement/poll-engine/adapters/postgres"
	sqliteadapter "pollhub/contexts/member-engagement/poll-engine/adapters/sqlite"
	"pollhub/contexts/member-engagement/poll-engine/domain/entities"
	"pollhub/contexts/member-engagement/poll-engine/ports"
	"pollhub/internal/platform/config"
	"pollhub/internal/platform/db"
)

// MemberWriter is implemented by every store driver for seeding members.
type MemberWriter interface {
	UpsertMember(ctx context.Context, member entities.Member) error
}

// Store bundles the ports of one storage driver.
type Store struct {
	Driver      string
	Polls       ports.PollRepository
	Members     ports.MemberDirectory
	Writer      MemberWriter
	Idempotency ports.IdempotencyStore
	Outbox      ports.OutboxRepository
	Clock       ports.Clock
	IDGen       ports.IDGenerator

	migrate func(ctx context.Context) error
	close   func() error
}

// OpenStore connects the driver selected by cfg.StoreDriver. SQLite applies
// its migrations on open; Postgres migrations run through Migrate. Each call
// with the memory driver returns a fresh, empty store.
func OpenStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Store, error) {
	switch cfg.StoreDriver {
	case config.StoreDriverPostgres:
		pg, err := db.Connect(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		repo := postgresadapter.NewRepository(pg.DB, logger)
		return &Store{
			Driver:      cfg.StoreDriver,
			Polls:       repo,
			Members:     repo,
			Writer:      repo,
			Idempotency: repo,
			Outbox:      repo,
			Clock:       postgresadapter.SystemClock{},
			IDGen:       postgresadapter.UUIDGenerator{},
			migrate: func(ctx context.Context) error {
				return postgresadapter.Migrate(ctx, pg.DB)
			},
			close: pg.Close,
		}, nil
	case config.StoreDriverSQLite:
		store, err := sqliteadapter.Open(ctx, cfg.SQLitePath, logger)
		if err != nil {
			return nil, err
		}
		return &Store{
			Driver:      cfg.StoreDriver,
			Polls:       store,
			Members:     store,
			Writer:      store,
			Idempotency: store,
			Outbox:      store,
			Clock:       sqliteadapter.SystemClock{},
			IDGen:       sqliteadapter.UUIDGenerator{},
			close:       store.Close,
		}, nil
	case config.StoreDriverMemory:
		store := memory.NewStore(nil)
		return &Store{
			Driver:      cfg.StoreDriver,
			Polls:       store,
			Members:     store,
			Writer:      store,
			Idempotency: store,
			Outbox:      store,
			Clock:       store,
			IDGen:       store,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported store driver %q", cfg.StoreDriver)
	}
}

func (s *Store) Migrate(ctx context.Context) error {
	if s == nil || s.migrate == nil {
		return nil
	}
	return s.migrate(ctx)
}

func (s *Store) Close() error {
	if s == nil || s.close == nil {
		return nil
	}
	return s.close()
}
