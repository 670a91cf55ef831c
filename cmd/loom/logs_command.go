package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"loom/internal/logging"
	"loom/internal/logs"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var follow bool
	var lines int

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show the tail of the active log file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logPath := logging.LogFilePath(cfg)
			if logPath == "" {
				return errors.New("paths.log_dir is not configured")
			}

			result, err := logs.Tail(logPath, lines)
			if err != nil {
				return fmt.Errorf("read log file: %w", err)
			}

			stdout := cmd.OutOrStdout()
			for _, line := range result.Lines {
				fmt.Fprintln(stdout, line)
			}
			if !follow {
				if len(result.Lines) == 0 {
					fmt.Fprintln(stdout, "No log entries available")
				}
				return nil
			}

			followCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			err = logs.Follow(followCtx, logPath, result.Offset, func(batch []string) error {
				for _, line := range batch {
					fmt.Fprintln(stdout, line)
				}
				return nil
			})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}

	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep watching the log for new lines")
	cmd.Flags().IntVarP(&lines, "lines", "n", 10, "Number of trailing lines to print")
	return cmd
}
