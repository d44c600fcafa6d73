package main

import (
	"context"
	"net/mail"

	"github.com/spf13/cobra"

	"github.com/enbox/enbox/internal/errors"
	"github.com/enbox/enbox/internal/repository"
	"github.com/enbox/enbox/internal/terminal"
	"github.com/enbox/enbox/internal/ui"
)

func newInitCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init [flags] [directory]",
		Short: "Initialize a new repository",
		Long: `
The "init" command creates a new repository in the given directory, or in the
repository directory from the global options. It generates the repository
keypair, a revocation certificate and the passphrase protecting the private
key, all stored below the .enbox directory.

If no email address is given and standard input is a terminal, the command
asks for one.

EXIT STATUS
===========

Exit status is 0 if the command was successful.
Exit status is 1 if there was any error.
`,
		Args:              cobra.MaximumNArgs(1),
		DisableAutoGenTag: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(cmd.Context(), globalOptions, args)
		},
	}
	return cmd
}

type initSuccess struct {
	MessageType string `json:"message_type"` // "initialized"
	ID          string `json:"id"`
	Repository  string `json:"repository"`
	Email       string `json:"email"`
	Fingerprint string `json:"fingerprint"`
}

func readEmail(ctx context.Context, gopts GlobalOptions) (string, error) {
	if gopts.Email != "" {
		return gopts.Email, nil
	}
	if !terminal.StdinIsTerminal() {
		return "", errors.Fatal("an email address is required, use --email or $ENBOX_EMAIL")
	}
	return terminal.ReadLine(ctx, gopts.stdin, gopts.stderr, "enter email address for the repository key: ")
}

func runInit(ctx context.Context, gopts GlobalOptions, args []string) error {
	printer := newPrinter(gopts)

	dir := gopts.Repo
	if len(args) > 0 {
		dir = args[0]
	}

	email, err := readEmail(ctx, gopts)
	if err != nil {
		return err
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return errors.Fatalf("invalid email address %q: %v", email, err)
	}

	progress := printer.NewProgress("generating keys", 0)
	repo, err := repository.Init(ctx, dir, email, repository.InitOptions{
		Options:     gopts.repositoryOptions(printer),
		ChunkSize:   gopts.chunkSize,
		Compression: gopts.Compression,
	})
	progress.Done("")
	if err != nil {
		return err
	}
	defer func() {
		_ = repo.Close()
	}()

	pub, err := repo.Keyring().PublicKey()
	if err != nil {
		return err
	}

	if gopts.JSON {
		printer.PrintJSON(initSuccess{
			MessageType: "initialized",
			ID:          repo.Config().ID,
			Repository:  repo.Dir(),
			Email:       pub.Email,
			Fingerprint: pub.Fingerprint(),
		})
		return nil
	}

	cfg := repo.Config()
	printer.OK("created enbox repository %v at %s", cfg.ID[:10], ui.Quote(repo.Dir()))
	printer.V("key fingerprint %v", pub.Fingerprint())
	printer.V("chunk size %v, compression %v", ui.FormatBytes(uint64(cfg.ChunkSize)), &cfg.Compression)
	printer.P("")
	printer.P("The passphrase protecting the private key is stored in %s.", ui.Quote(repo.Keyring().MarkerPath()))
	printer.P("Anyone with access to that directory can read the repository.")
	return nil
}
