package main

import (
	"context"

	"pollhub/internal/app/bootstrap"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "pollctl",
	Short: "Operate the poll engine store",
	Long: `pollctl runs operator tasks against the configured poll store.

The store is selected through the same environment as the api and worker
processes (POLL_STORE_DRIVER, POSTGRES_DSN, SQLITE_PATH).`,
	SilenceUsage: true,
}

// buildApp is swapped in tests.
var buildApp = bootstrap.BuildCLI

func withApp(ctx context.Context, fn func(app *bootstrap.CLIApp) error) error {
	app, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = app.Close() }()
	return fn(app)
}
