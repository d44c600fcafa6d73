package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/enbox/enbox/internal/errors"
	"github.com/enbox/enbox/internal/ui"
)

func newExportCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export [flags] NAME DEST",
		Short: "Write a blob to a file",
		Long: `
The "export" command decrypts the blocks of the blob NAME and writes them to
DEST. Every block is authenticated and checked against its hash. DEST is only
created once all blocks were written, a failed export leaves nothing behind.

EXIT STATUS
===========

Exit status is 0 if the command was successful.
Exit status is 13 if a block failed authentication or its integrity check.
Exit status is 1 if there was any other error.
`,
		Args:              cobra.ExactArgs(2),
		DisableAutoGenTag: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(cmd.Context(), globalOptions, args)
		},
	}
	return cmd
}

type exportSuccess struct {
	MessageType string  `json:"message_type"` // "exported"
	Name        string  `json:"name"`
	Destination string  `json:"destination"`
	Size        int64   `json:"size"`
	Duration    float64 `json:"duration"`
}

func runExport(ctx context.Context, gopts GlobalOptions, args []string) error {
	name, dest := args[0], args[1]

	printer := newPrinter(gopts)
	repo, err := OpenRepository(ctx, gopts, printer)
	if err != nil {
		return err
	}
	defer func() {
		_ = repo.Close()
	}()

	b, err := repo.Stat(name)
	if err != nil {
		return err
	}

	start := time.Now()
	progress := printer.NewProgress("exporting "+ui.Quote(name), b.Size)
	err = repo.Export(ctx, name, dest)
	progress.Done("")
	if err != nil {
		return errors.Wrapf(err, "export %v", name)
	}

	if gopts.JSON {
		printer.PrintJSON(exportSuccess{
			MessageType: "exported",
			Name:        name,
			Destination: dest,
			Size:        b.Size,
			Duration:    time.Since(start).Seconds(),
		})
		return nil
	}

	printer.OK("exported %s to %s (%s)", ui.Quote(name), ui.Quote(dest), ui.FormatBytes(uint64(b.Size)))
	return nil
}
