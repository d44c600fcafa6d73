package main

import (
	"context"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/enbox/enbox/internal/errors"
	"github.com/enbox/enbox/internal/repository"
	"github.com/enbox/enbox/internal/ui"
)

func newImportCommand() *cobra.Command {
	var opts ImportOptions

	cmd := &cobra.Command{
		Use:     "import [flags] FILE [FILE...]",
		Aliases: []string{"add"},
		Short:   "Store files as blobs in the repository",
		Long: `
The "import" command splits each file into blocks, encrypts them and stores a
blob named after the file. Blocks that are already stored are referenced
instead of written again.

EXIT STATUS
===========

Exit status is 0 if the command was successful.
Exit status is 1 if there was any error.
`,
		Args:              cobra.MinimumNArgs(1),
		DisableAutoGenTag: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd.Context(), opts, globalOptions, args)
		},
	}

	opts.AddFlags(cmd.Flags())
	return cmd
}

// ImportOptions bundles all options for the import command.
type ImportOptions struct {
	Name string
}

func (opts *ImportOptions) AddFlags(f *pflag.FlagSet) {
	f.StringVarP(&opts.Name, "name", "n", "", "store the blob under `name` instead of the file name")
}

type importSuccess struct {
	MessageType string  `json:"message_type"` // "imported"
	Name        string  `json:"name"`
	Source      string  `json:"source"`
	Size        int64   `json:"size"`
	Blocks      int     `json:"blocks"`
	Duration    float64 `json:"duration"`
}

func runImport(ctx context.Context, opts ImportOptions, gopts GlobalOptions, args []string) error {
	if opts.Name != "" && len(args) > 1 {
		return errors.Fatal("--name can only be used when importing a single file")
	}

	printer := newPrinter(gopts)
	repo, err := OpenRepository(ctx, gopts, printer)
	if err != nil {
		return err
	}
	defer func() {
		_ = repo.Close()
	}()

	for _, src := range args {
		if err := importFile(ctx, repo, printer, gopts, src, opts.Name); err != nil {
			return err
		}
	}
	return nil
}

func importFile(ctx context.Context, repo *repository.Repository, printer *ui.Printer, gopts GlobalOptions, src, name string) error {
	var total int64
	if fi, err := os.Stat(src); err == nil {
		total = fi.Size()
	}

	start := time.Now()
	progress := printer.NewProgress("importing "+ui.Quote(src), total)
	name, err := repo.Import(ctx, src, repository.ImportOptions{
		Name:        name,
		ChunkSize:   gopts.chunkSize,
		Compression: gopts.compression(),
		Progress:    progress.Set,
	})
	progress.Done("")
	if err != nil {
		return errors.Wrapf(err, "import %v", src)
	}

	b, err := repo.Stat(name)
	if err != nil {
		return err
	}

	if gopts.JSON {
		printer.PrintJSON(importSuccess{
			MessageType: "imported",
			Name:        b.Name,
			Source:      src,
			Size:        b.Size,
			Blocks:      b.BlockCount(),
			Duration:    time.Since(start).Seconds(),
		})
		return nil
	}

	printer.OK("imported %s as %s (%s, %d blocks) in %s", ui.Quote(src), ui.Quote(b.Name),
		ui.FormatBytes(uint64(b.Size)), b.BlockCount(), ui.FormatDuration(time.Since(start)))
	return nil
}
