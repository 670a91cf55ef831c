package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"loom/internal/ipc"
	"loom/internal/journal"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show live run state and the journal summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			live, err := fetchLiveStatus(ctx)
			if err != nil {
				return err
			}

			store, err := journal.Open(cfg)
			if err != nil {
				return fmt.Errorf("open journal: %w", err)
			}
			defer store.Close()

			summary, err := store.Health(cmd.Context())
			if err != nil {
				return err
			}

			if jsonOutput {
				return writeJSON(cmd, statusDocument(live, summary))
			}

			stdout := cmd.OutOrStdout()
			colorize := shouldColorize(stdout)

			for _, line := range renderSectionHeader("Run", colorize) {
				fmt.Fprintln(stdout, line)
			}
			for _, line := range runStatusLines(live, colorize) {
				fmt.Fprintln(stdout, line)
			}
			fmt.Fprintln(stdout)

			for _, line := range renderSectionHeader("Journal", colorize) {
				fmt.Fprintln(stdout, line)
			}
			rows := journalSummaryRows(summary)
			if len(rows) == 0 {
				fmt.Fprintln(stdout, "Journal is empty; run `loom run` to register chapters")
				return nil
			}
			fmt.Fprintln(stdout, renderTable(
				[]string{"Status", "Chapters"},
				rows,
				[]columnAlignment{alignLeft, alignRight},
			))
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit status as JSON")
	return cmd
}

// fetchLiveStatus returns nil without error when no pipeline is listening on
// the control socket.
func fetchLiveStatus(ctx *commandContext) (*ipc.StatusResponse, error) {
	socket := ctx.socketPath()
	client, err := ipc.Dial(socket)
	if err != nil {
		if runNotActive(err) {
			return nil, nil
		}
		return nil, wrapDialError(err, socket)
	}
	defer client.Close()

	status, err := client.Status()
	if err != nil {
		return nil, fmt.Errorf("fetch run status: %w", err)
	}
	return status, nil
}

func runStatusLines(live *ipc.StatusResponse, colorize bool) []string {
	if live == nil {
		return []string{renderStatusLine("Pipeline", statusInfo, "no run in progress", colorize)}
	}

	lines := []string{
		renderStatusLine("Phase", statusOK, formatStatusLabel(live.Phase), colorize),
	}
	if live.Chapter != "" {
		lines = append(lines, renderStatusLine("Chapter", statusInfo, live.Chapter, colorize))
	}
	progress := fmt.Sprintf("%d/%d chapters", live.Completed, live.Total)
	if live.Skipped > 0 {
		progress += fmt.Sprintf(", %d skipped", live.Skipped)
	}
	lines = append(lines, renderStatusLine("Progress", statusInfo, progress, colorize))
	if live.Paused {
		lines = append(lines, renderStatusLine("Paused", statusWarn, yesNo(live.Paused), colorize))
	}
	if live.Canceled {
		lines = append(lines, renderStatusLine("Canceled", statusWarn, "stopping at the next chapter boundary", colorize))
	}
	if live.RunID != "" {
		lines = append(lines, renderStatusLine("Run ID", statusInfo, live.RunID, colorize))
	}
	return lines
}

func journalSummaryRows(summary journal.Summary) [][]string {
	if summary.Total == 0 {
		return nil
	}
	ordered := []struct {
		label string
		count int
	}{
		{"Pending", summary.Pending},
		{"Glossaried", summary.Glossaried},
		{"Translated", summary.Translated},
		{"Proofed", summary.Proofed},
		{"Failed", summary.Failed},
	}
	rows := make([][]string, 0, len(ordered)+1)
	for _, entry := range ordered {
		if entry.count == 0 {
			continue
		}
		rows = append(rows, []string{entry.label, strconv.Itoa(entry.count)})
	}
	rows = append(rows, []string{"Total", strconv.Itoa(summary.Total)})
	return rows
}

func statusDocument(live *ipc.StatusResponse, summary journal.Summary) map[string]any {
	doc := map[string]any{
		"journal": map[string]int{
			"total":      summary.Total,
			"pending":    summary.Pending,
			"glossaried": summary.Glossaried,
			"translated": summary.Translated,
			"proofed":    summary.Proofed,
			"failed":     summary.Failed,
		},
	}
	if live != nil {
		doc["run"] = live
	}
	return doc
}
