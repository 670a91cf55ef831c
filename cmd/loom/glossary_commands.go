package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"loom/internal/gateway"
	"loom/internal/glossary"
)

func newGlossaryCommand(ctx *commandContext) *cobra.Command {
	glossaryCmd := &cobra.Command{
		Use:   "glossary",
		Short: "Glossary maintenance utilities",
	}

	glossaryCmd.AddCommand(newGlossarySplitCommand(ctx))
	glossaryCmd.AddCommand(newGlossaryCleanCommand(ctx))
	glossaryCmd.AddCommand(newGlossaryProofCommand(ctx))
	glossaryCmd.AddCommand(newGlossaryShowCommand(ctx))

	return glossaryCmd
}

// glossaryStore builds a store over the configured master glossary, backed
// by the live model gateway for passes that rewrite entries.
func glossaryStore(ctx *commandContext) (*glossary.Store, error) {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger, err := ctx.maintenanceLogger("glossary-cli")
	if err != nil {
		return nil, err
	}
	client := gateway.NewClient(cfg.GetLLM())
	gw := gateway.New(client, cfg, logger)
	return glossary.NewStore(cfg.Paths.GlossaryPath, gw, cfg.Glossary, logger), nil
}

func newGlossarySplitCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "split",
		Short: "Regenerate the name and context views from the master glossary",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := glossaryStore(ctx)
			if err != nil {
				return err
			}
			namePath, contextPath, err := store.Split()
			if err != nil {
				return fmt.Errorf("split glossary: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Wrote name view to %s\n", namePath)
			fmt.Fprintf(out, "Wrote context view to %s\n", contextPath)
			return nil
		},
	}
}

func newGlossaryCleanCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clean",
		Short: "Normalize and deduplicate the master glossary in place",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := glossaryStore(ctx)
			if err != nil {
				return err
			}
			removed, kept, err := store.Clean()
			if err != nil {
				return fmt.Errorf("clean glossary: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d entries, kept %d\n", removed, kept)
			return nil
		},
	}
}

func newGlossaryProofCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "proof",
		Short: "Proofread glossary translations through the model",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := glossaryStore(ctx)
			if err != nil {
				return err
			}
			if err := store.Proof(cmd.Context()); err != nil {
				return fmt.Errorf("proof glossary: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Glossary proofing complete")
			return nil
		},
	}
}

func newGlossaryShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the master glossary as a table",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := glossaryStore(ctx)
			if err != nil {
				return err
			}
			entries, err := store.Entries()
			if err != nil {
				return fmt.Errorf("read glossary: %w", err)
			}

			stdout := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(stdout, "Glossary is empty")
				return nil
			}

			rows := make([][]string, 0, len(entries))
			for _, entry := range entries {
				rows = append(rows, []string{entry.Original, entry.Translation, entry.Gender})
			}
			fmt.Fprintln(stdout, renderTable(
				[]string{"Original", "Translated", "Gender"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft},
			))
			fmt.Fprintf(stdout, "%d entries in %s\n", len(entries), store.Path())
			return nil
		},
	}
}
