package bootstrap

import (
	"context"
	"log/slog"

	pollengine "pollhub/contexts/member-engagement/poll-engine"
	"pollhub/internal/platform/config"
)

// CLIApp backs the pollctl operator commands.
type CLIApp struct {
	Store  *Store
	Module pollengine.Module
	Logger *slog.Logger
}

// BuildCLI opens the configured store without migrating it, so the migrate
// command stays explicit.
func BuildCLI(ctx context.Context) (*CLIApp, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger := slog.Default().With("service", cfg.ServiceName, "process", "cli")

	store, err := OpenStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return &CLIApp{
		Store:  store,
		Module: newPollModule(cfg, store, logger),
		Logger: logger,
	}, nil
}

func (c *CLIApp) Close() error {
	return c.Store.Close()
}
