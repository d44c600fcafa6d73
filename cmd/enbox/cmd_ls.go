package main

import (
	"context"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/enbox/enbox/internal/ui"
)

func newLsCommand() *cobra.Command {
	var opts LsOptions

	cmd := &cobra.Command{
		Use:     "ls [flags]",
		Aliases: []string{"list", "index"},
		Short:   "List blobs in the repository",
		Long: `
The "ls" command prints the names of all blobs in the repository, sorted by
name. With --long, the size, the number of blocks and the time of import are
shown as well.

EXIT STATUS
===========

Exit status is 0 if the command was successful.
Exit status is 1 if there was any error.
`,
		Args:              cobra.NoArgs,
		DisableAutoGenTag: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runLs(cmd.Context(), opts, globalOptions)
		},
	}

	opts.AddFlags(cmd.Flags())
	return cmd
}

// LsOptions bundles all options for the ls command.
type LsOptions struct {
	Long bool
}

func (opts *LsOptions) AddFlags(f *pflag.FlagSet) {
	f.BoolVarP(&opts.Long, "long", "l", false, "use a long listing format showing size and blocks")
}

type lsBlob struct {
	Name      string    `json:"name"`
	Size      int64     `json:"size"`
	Blocks    int       `json:"blocks"`
	ChunkSize uint32    `json:"chunk_size"`
	Created   time.Time `json:"created"`
}

func runLs(ctx context.Context, opts LsOptions, gopts GlobalOptions) error {
	printer := newPrinter(gopts)
	repo, err := OpenRepository(ctx, gopts, printer)
	if err != nil {
		return err
	}
	defer func() {
		_ = repo.Close()
	}()

	blobs := repo.Blobs()
	list := make([]lsBlob, 0, len(blobs))
	for _, b := range blobs {
		list = append(list, lsBlob{
			Name:      b.Name,
			Size:      b.Size,
			Blocks:    b.BlockCount(),
			ChunkSize: b.ChunkSize,
			Created:   b.Created,
		})
	}

	if gopts.JSON {
		printer.PrintJSON(list)
		return nil
	}

	if !opts.Long {
		for _, b := range list {
			printer.S("%s", ui.Quote(b.Name))
		}
		return nil
	}

	var total int64
	tab := ui.NewTable()
	tab.AddColumn("Name", "{{ quote .Name }}")
	tab.AddColumn("Size", "{{ bytes .Size }}")
	tab.AddColumn("Blocks", "{{ .Blocks }}")
	tab.AddColumn("Imported", "{{ .Created.Local.Format \""+TimeFormat+"\" }}")
	for _, b := range list {
		tab.AddRow(b)
		total += b.Size
	}
	tab.AddFooter(pluralize(len(list), "blob") + ", " + ui.FormatBytes(uint64(total)))
	return tab.Write(gopts.stdout)
}

func pluralize(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	return strconv.Itoa(n) + " " + noun + "s"
}
