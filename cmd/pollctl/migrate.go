package main

import (
	"fmt"

	"pollhub/internal/app/bootstrap"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations",
	Args:  cobra.NoArgs,
	RunE:  runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	return withApp(cmd.Context(), func(app *bootstrap.CLIApp) error {
		if err := app.Store.Migrate(cmd.Context()); err != nil {
			return fmt.Errorf("migrate %s store: %w", app.Store.Driver, err)
		}
		cmd.Printf("migrations applied (%s)\n", app.Store.Driver)
		return nil
	})
}
