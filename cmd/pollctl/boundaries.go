package main

import (
	"fmt"

	"pollhub/internal/platform/boundaries"

	"github.com/spf13/cobra"
)

var boundariesDir string

var boundariesCmd = &cobra.Command{
	Use:   "check-boundaries",
	Short: "Verify layer import rules across bounded-context modules",
	Args:  cobra.NoArgs,
	RunE:  runCheckBoundaries,
}

func init() {
	boundariesCmd.Flags().StringVar(&boundariesDir, "dir", "contexts", "contexts directory to scan")
	rootCmd.AddCommand(boundariesCmd)
}

func runCheckBoundaries(cmd *cobra.Command, _ []string) error {
	violations, err := boundaries.Check(boundariesDir, boundaries.DefaultRules())
	if err != nil {
		return err
	}
	if len(violations) == 0 {
		cmd.Println("boundary checks passed")
		return nil
	}
	cmd.Println("boundary violations found:")
	for _, v := range violations {
		cmd.Printf("- %s\n", v)
	}
	return fmt.Errorf("%d boundary violations", len(violations))
}
