package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/enbox/enbox/internal/errors"
	"github.com/enbox/enbox/internal/repository"
)

// ErrCheckFailed is returned when check found problems in the repository.
var ErrCheckFailed = errors.New("repository contains errors")

func newCheckCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check [flags]",
		Short: "Check the repository for errors",
		Long: `
The "check" command verifies that every block of every blob can be decrypted
and matches its hash, that the stored reference counts match the blobs, and
that no unreferenced blocks are left in the data directory.

EXIT STATUS
===========

Exit status is 0 if the command was successful.
Exit status is 14 if errors were found.
Exit status is 1 if the check could not be run.
`,
		Args:              cobra.NoArgs,
		DisableAutoGenTag: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCheck(cmd.Context(), globalOptions)
		},
	}
	return cmd
}

type checkSummary struct {
	MessageType string   `json:"message_type"` // "summary"
	Blobs       int      `json:"blobs"`
	NumErrors   int      `json:"num_errors"`
	Errors      []string `json:"errors,omitempty"`
}

func runCheck(ctx context.Context, gopts GlobalOptions) error {
	printer := newPrinter(gopts)
	repo, err := OpenRepository(ctx, gopts, printer)
	if err != nil {
		return err
	}
	defer func() {
		_ = repo.Close()
	}()

	summary := checkSummary{MessageType: "summary", Blobs: len(repo.List())}
	printer.P("checking %d blobs", summary.Blobs)

	progress := printer.NewProgress("checking blocks", 0)
	err = repo.Check(ctx, func(err error) {
		summary.NumErrors++
		summary.Errors = append(summary.Errors, err.Error())

		var be *repository.BlobError
		if errors.As(err, &be) {
			printer.VV("blob %v: %+v", be.Name, be.Err)
		}
		if !gopts.JSON {
			printer.E("%v", err)
		}
	})
	progress.Done("")
	if err != nil {
		return err
	}

	if gopts.JSON {
		printer.PrintJSON(summary)
	}

	if summary.NumErrors > 0 {
		return errors.Wrapf(ErrCheckFailed, "%d errors found", summary.NumErrors)
	}
	printer.OK("no errors were found")
	return nil
}
