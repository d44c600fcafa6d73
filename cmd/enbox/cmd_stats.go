package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/enbox/enbox/internal/repository"
	"github.com/enbox/enbox/internal/ui"
)

func newStatsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats [flags]",
		Short: "Show repository statistics",
		Long: `
The "stats" command counts blobs, the blocks they reference and the distinct
blocks stored in the repository. The difference between the last two is the
space saved by deduplication.

EXIT STATUS
===========

Exit status is 0 if the command was successful.
Exit status is 1 if there was any error.
`,
		Args:              cobra.NoArgs,
		DisableAutoGenTag: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStats(cmd.Context(), globalOptions)
		},
	}
	return cmd
}

type statsSummary struct {
	repository.Stats
	ID          string                     `json:"id"`
	ChunkSize   int                        `json:"chunk_size"`
	Compression repository.CompressionMode `json:"compression"`
}

func runStats(ctx context.Context, gopts GlobalOptions) error {
	printer := newPrinter(gopts)
	repo, err := OpenRepository(ctx, gopts, printer)
	if err != nil {
		return err
	}
	defer func() {
		_ = repo.Close()
	}()

	stats, err := repo.Stats()
	if err != nil {
		return err
	}
	cfg := repo.Config()

	if gopts.JSON {
		printer.PrintJSON(statsSummary{
			Stats:       stats,
			ID:          cfg.ID,
			ChunkSize:   cfg.ChunkSize,
			Compression: cfg.Compression,
		})
		return nil
	}

	printer.S("repository %v at %s", cfg.ID[:10], ui.Quote(repo.Dir()))
	printer.S("  chunk size:      %s", ui.FormatBytes(uint64(cfg.ChunkSize)))
	printer.S("  compression:     %v", &cfg.Compression)
	printer.S("  blobs:           %d", stats.Blobs)
	printer.S("  total size:      %s", ui.FormatBytes(uint64(stats.Size)))
	printer.S("  blocks:          %d", stats.Chunks)
	printer.S("  distinct blocks: %d", stats.Blocks)
	if stats.Chunks > 0 {
		printer.S("  deduplicated:    %s", ui.FormatPercent(uint64(stats.Chunks-stats.Blocks), uint64(stats.Chunks)))
	}
	return nil
}
