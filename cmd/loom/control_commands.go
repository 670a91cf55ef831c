package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"loom/internal/ipc"
)

func newPauseCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "pause",
		Short: "Pause the running pipeline at the next chapter boundary",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Pause()
				if err != nil {
					return fmt.Errorf("pause pipeline: %w", err)
				}
				out := cmd.OutOrStdout()
				if !resp.Paused {
					fmt.Fprintln(out, "Pause ignored; the run is already canceled")
					return nil
				}
				fmt.Fprintln(out, "Pipeline pausing at the next chapter boundary")
				return nil
			})
		},
	}
}

func newResumeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "resume",
		Short: "Resume a paused pipeline",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Resume()
				if err != nil {
					return fmt.Errorf("resume pipeline: %w", err)
				}
				out := cmd.OutOrStdout()
				if resp.Paused {
					fmt.Fprintln(out, "Pipeline is still paused")
					return nil
				}
				fmt.Fprintln(out, "Pipeline resumed")
				return nil
			})
		},
	}
}

func newCancelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel",
		Short: "Stop the running pipeline after the current chapter",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Cancel()
				if err != nil {
					return fmt.Errorf("cancel pipeline: %w", err)
				}
				out := cmd.OutOrStdout()
				if !resp.Canceled {
					fmt.Fprintln(out, "Cancel request was not accepted")
					return nil
				}
				fmt.Fprintln(out, "Cancel requested; the run stops at the next chapter boundary")
				return nil
			})
		},
	}
}
