package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/enbox/enbox/internal/debug"
	"github.com/enbox/enbox/internal/errors"
	"github.com/enbox/enbox/internal/keyring"
	"github.com/enbox/enbox/internal/ui"
)

func newKeyCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "key",
		Short: "Inspect the repository keypair",
		Long: `
The "key" command group shows information about the repository keypair and
checks that the key files are consistent.

EXIT STATUS
===========

Exit status is 0 if the command was successful.
Exit status is 12 if the private key could not be unlocked.
Exit status is 1 if there was any other error.
`,
		DisableAutoGenTag: true,
	}

	cmd.AddCommand(
		newKeyInfoCommand(),
		newKeyVerifyCommand(),
	)
	return cmd
}

func newKeyInfoCommand() *cobra.Command {
	return &cobra.Command{
		Use:               "info",
		Short:             "Print the public key of the repository",
		Args:              cobra.NoArgs,
		DisableAutoGenTag: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runKeyInfo(cmd.Context(), globalOptions)
		},
	}
}

func newKeyVerifyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Unlock the private key and verify the key files",
		Long: `
The "key verify" command unlocks the private key with the stored passphrase,
checks that it belongs to the public key and verifies the signature of the
revocation certificate.
`,
		Args:              cobra.NoArgs,
		DisableAutoGenTag: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runKeyVerify(cmd.Context(), globalOptions)
		},
	}
}

type keyInfo struct {
	Email       string    `json:"email"`
	Fingerprint string    `json:"fingerprint"`
	Recipient   string    `json:"recipient"`
	Created     time.Time `json:"created"`
}

func runKeyInfo(_ context.Context, gopts GlobalOptions) error {
	printer := newPrinter(gopts)

	kr, err := keyring.Open(gopts.Repo)
	if err != nil {
		return err
	}
	defer kr.Close()

	pub, err := kr.PublicKey()
	if err != nil {
		return err
	}

	info := keyInfo{
		Email:       pub.Email,
		Fingerprint: pub.Fingerprint(),
		Recipient:   pub.Recipient.String(),
		Created:     pub.Created,
	}

	if gopts.JSON {
		printer.PrintJSON(info)
		return nil
	}

	tab := ui.NewTable()
	tab.AddColumn("Email", "{{ .Email }}")
	tab.AddColumn("Fingerprint", "{{ .Fingerprint }}")
	tab.AddColumn("Created", "{{ .Created.Local.Format \""+TimeFormat+"\" }}")
	tab.AddRow(info)
	tab.AddFooter("age recipient: " + info.Recipient)
	return tab.Write(gopts.stdout)
}

type keyVerifySuccess struct {
	MessageType string `json:"message_type"` // "key_verified"
	Fingerprint string `json:"fingerprint"`
	Reason      string `json:"revocation_reason"`
}

func runKeyVerify(_ context.Context, gopts GlobalOptions) error {
	printer := newPrinter(gopts)

	kr, err := keyring.Open(gopts.Repo)
	if err != nil {
		return err
	}
	defer kr.Close()

	if err := kr.Verify(); err != nil {
		debug.Log("key verification failed: %v", err)
		if errors.Is(err, keyring.ErrKeyUnlock) {
			return err
		}
		return errors.Fatalf("key verification failed: %v", err)
	}

	pub, err := kr.PublicKey()
	if err != nil {
		return err
	}
	cert, err := kr.RevocationCertificate()
	if err != nil {
		return err
	}

	if gopts.JSON {
		printer.PrintJSON(keyVerifySuccess{
			MessageType: "key_verified",
			Fingerprint: pub.Fingerprint(),
			Reason:      cert.Statement.Reason,
		})
		return nil
	}

	printer.OK("private key unlocked, it matches public key %v", pub.Fingerprint())
	printer.OK("revocation certificate is valid")
	return nil
}
