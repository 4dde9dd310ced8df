package main

import (
	"fmt"
	"sort"

	"pollhub/internal/app/bootstrap"

	"github.com/spf13/cobra"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Close every active poll past its deadline",
	Long: `Runs one expiry sweep immediately. Each poll closes in its own
transaction, so a failure on one poll is reported without stopping the rest.`,
	Args: cobra.NoArgs,
	RunE: runSweep,
}

func init() {
	rootCmd.AddCommand(sweepCmd)
}

func runSweep(cmd *cobra.Command, _ []string) error {
	return withApp(cmd.Context(), func(app *bootstrap.CLIApp) error {
		report, err := app.Module.Sweeper.Sweep(cmd.Context())
		if err != nil {
			return fmt.Errorf("sweep failed: %w", err)
		}

		cmd.Printf("closed: %d\n", len(report.Closed))
		for _, pollID := range report.Closed {
			cmd.Printf("  %s\n", pollID)
		}
		if len(report.Failed) == 0 {
			return nil
		}

		failed := make([]string, 0, len(report.Failed))
		for pollID := range report.Failed {
			failed = append(failed, pollID)
		}
		sort.Strings(failed)
		cmd.Printf("failed: %d\n", len(failed))
		for _, pollID := range failed {
			cmd.Printf("  %s: %v\n", pollID, report.Failed[pollID])
		}
		return fmt.Errorf("%d polls failed to close", len(failed))
	})
}
