package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/enbox/enbox/internal/ui"
)

func newRmCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "rm [flags] NAME [NAME...]",
		Aliases: []string{"remove"},
		Short:   "Remove blobs from the repository",
		Long: `
The "rm" command removes blobs. Blocks that are no longer referenced by any
blob are deleted from the repository.

EXIT STATUS
===========

Exit status is 0 if the command was successful.
Exit status is 1 if there was any error.
`,
		Args:              cobra.MinimumNArgs(1),
		DisableAutoGenTag: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRm(cmd.Context(), globalOptions, args)
		},
	}
	return cmd
}

type rmSuccess struct {
	MessageType string `json:"message_type"` // "removed"
	Name        string `json:"name"`
}

func runRm(ctx context.Context, gopts GlobalOptions, args []string) error {
	printer := newPrinter(gopts)
	repo, err := OpenRepository(ctx, gopts, printer)
	if err != nil {
		return err
	}
	defer func() {
		_ = repo.Close()
	}()

	for _, name := range args {
		if err := repo.Remove(ctx, name); err != nil {
			return err
		}

		if gopts.JSON {
			printer.PrintJSON(rmSuccess{MessageType: "removed", Name: name})
		} else {
			printer.OK("removed %s", ui.Quote(name))
		}
	}
	return nil
}
