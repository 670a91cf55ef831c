package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"loom/internal/journal"
)

func newRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry",
		Short: "Reset failed chapters to pending for the next run",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			store, err := journal.Open(cfg)
			if err != nil {
				return fmt.Errorf("open journal: %w", err)
			}
			defer store.Close()

			reset, err := store.ResetFailed(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if reset == 0 {
				fmt.Fprintln(out, "No failed chapters to retry")
				return nil
			}
			fmt.Fprintf(out, "Reset %d failed chapters to pending\n", reset)
			return nil
		},
	}
}
