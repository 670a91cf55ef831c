package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"loom/internal/journal"
)

func newAuditCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "List chapters still missing a translation",
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

			chapters, err := store.Untranslated(cmd.Context())
			if err != nil {
				return err
			}

			if jsonOutput {
				return writeJSON(cmd, auditDocument(chapters))
			}

			stdout := cmd.OutOrStdout()
			if len(chapters) == 0 {
				fmt.Fprintln(stdout, "All chapters have translations")
				return nil
			}

			rows := make([][]string, 0, len(chapters))
			for _, chapter := range chapters {
				rows = append(rows, []string{
					chapter.Name,
					formatStatusLabel(string(chapter.Status)),
					strconv.Itoa(chapter.Attempts),
					chapter.LastError,
				})
			}
			fmt.Fprintln(stdout, renderTable(
				[]string{"Chapter", "Status", "Attempts", "Last Error"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft},
			))
			fmt.Fprintf(stdout, "%d chapters without a translation\n", len(chapters))
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit the audit as JSON")
	return cmd
}

func auditDocument(chapters []*journal.Chapter) map[string]any {
	type auditRow struct {
		Name      string `json:"name"`
		Status    string `json:"status"`
		Attempts  int    `json:"attempts"`
		LastError string `json:"last_error,omitempty"`
	}
	rows := make([]auditRow, 0, len(chapters))
	for _, chapter := range chapters {
		rows = append(rows, auditRow{
			Name:      chapter.Name,
			Status:    string(chapter.Status),
			Attempts:  chapter.Attempts,
			LastError: chapter.LastError,
		})
	}
	return map[string]any{"untranslated": rows}
}
