package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"runtime"

	"github.com/spf13/cobra"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/enbox/enbox/internal/block"
	"github.com/enbox/enbox/internal/debug"
	"github.com/enbox/enbox/internal/errors"
	"github.com/enbox/enbox/internal/index"
	"github.com/enbox/enbox/internal/keyring"
	"github.com/enbox/enbox/internal/repository"
)

func init() {
	// call maxprocs.Set directly to keep its log output quiet
	_, _ = maxprocs.Set()
}

// ErrOK ends a command successfully without further output.
var ErrOK = errors.New("ok")

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "enbox",
		Short: "Store files in an encrypted, deduplicating blob repository",
		Long: `
enbox stores files as blobs in an encrypted repository. Files are split into
fixed-size blocks, every block is encrypted on its own and identical blocks
are stored once.
`,
		SilenceErrors:     true,
		SilenceUsage:      true,
		DisableAutoGenTag: true,

		PersistentPreRunE: func(c *cobra.Command, _ []string) error {
			return globalOptions.PreRun(c)
		},
	}

	globalOptions.AddFlags(cmd.PersistentFlags())
	cmd.CompletionOptions.DisableDefaultCmd = true

	cmd.AddCommand(
		newCheckCommand(),
		newExportCommand(),
		newImportCommand(),
		newInitCommand(),
		newKeyCommand(),
		newLsCommand(),
		newRmCommand(),
		newStatsCommand(),
		newVersionCommand(),
	)

	registerProfiling(cmd)

	return cmd
}

func printExitError(code int, message string) {
	if globalOptions.JSON {
		type jsonExitError struct {
			MessageType string `json:"message_type"` // exit_error
			Code        int    `json:"code"`
			Message     string `json:"message"`
		}

		err := json.NewEncoder(globalOptions.stderr).Encode(jsonExitError{
			MessageType: "exit_error",
			Code:        code,
			Message:     message,
		})
		if err != nil {
			_, _ = fmt.Fprintf(globalOptions.stderr, "JSON encode failed: %v\n", err)
		}
		return
	}
	_, _ = fmt.Fprintf(globalOptions.stderr, "%v\n", message)
}

// exitCode maps an error returned by a command to the process exit status.
func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, keyring.ErrNotInitialized), errors.Is(err, keyring.ErrInvalidDirectory):
		return 10
	case errors.Is(err, index.ErrLocked):
		return 11
	case errors.Is(err, keyring.ErrKeyUnlock):
		return 12
	case errors.Is(err, block.ErrAuthenticationFailed), errors.Is(err, block.ErrIntegrityMismatch):
		return 13
	case errors.Is(err, ErrCheckFailed):
		return 14
	case errors.Is(err, context.Canceled):
		return 130
	default:
		return 1
	}
}

func exitMessage(err error, logBuffer *bytes.Buffer) string {
	switch {
	case errors.Is(err, index.ErrLocked):
		return fmt.Sprintf("%v\nanother enbox process is using the repository", err)
	case errors.IsFatal(err):
		return err.Error()
	case errors.Is(err, keyring.ErrNotInitialized),
		errors.Is(err, keyring.ErrKeyUnlock),
		errors.Is(err, keyring.ErrAlreadyInitialized),
		errors.Is(err, keyring.ErrInvalidDirectory),
		errors.Is(err, repository.ErrBlobNotFound),
		errors.Is(err, repository.ErrBlobExists),
		errors.Is(err, block.ErrAuthenticationFailed),
		errors.Is(err, block.ErrIntegrityMismatch),
		errors.Is(err, ErrCheckFailed):
		return fmt.Sprintf("Fatal: %v", err)
	}

	msg := fmt.Sprintf("%+v", err)
	if logBuffer.Len() > 0 {
		msg += "\nalso, the following messages were logged by a library:\n"
		sc := bufio.NewScanner(logBuffer)
		for sc.Scan() {
			msg += fmt.Sprintln(sc.Text())
		}
	}
	return msg
}

func main() {
	// library log output is only shown if a command fails
	logBuffer := bytes.NewBuffer(nil)
	log.SetOutput(logBuffer)

	debug.Log("main %#v", os.Args)
	debug.Log("enbox %s compiled with %v on %v/%v",
		version, runtime.Version(), runtime.GOOS, runtime.GOARCH)

	ctx := createGlobalContext()
	err := newRootCommand().ExecuteContext(ctx)

	if err == nil {
		err = ctx.Err()
	} else if err == ErrOK {
		err = nil
	}

	if err == nil {
		err = RunCleanupHandlers()
	} else if cerr := RunCleanupHandlers(); cerr != nil {
		debug.Log("cleanup failed: %v", cerr)
	}

	code := exitCode(err)
	if code != 0 {
		printExitError(code, exitMessage(err, logBuffer))
	}
	Exit(code)
}
