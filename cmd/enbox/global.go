package main

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/enbox/enbox/internal/debug"
	"github.com/enbox/enbox/internal/errors"
	"github.com/enbox/enbox/internal/repository"
	"github.com/enbox/enbox/internal/terminal"
	"github.com/enbox/enbox/internal/ui"
	"github.com/enbox/enbox/internal/userconfig"
)

var version = "0.1.0-dev (compiled manually)"

// TimeFormat is the format used for all timestamps printed by enbox.
const TimeFormat = "2006-01-02 15:04:05"

// GlobalOptions hold all global options for enbox.
type GlobalOptions struct {
	Repo         string
	Email        string
	ChunkSize    string
	Compression  repository.CompressionMode
	ConfigFile   string
	Quiet        bool
	Verbose      int
	JSON         bool
	NoColor      bool
	LockTimeout  time.Duration
	RetryTimeout time.Duration
	CacheSize    string

	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer

	// tty is true if stdout and stderr are attached to a terminal.
	tty bool

	// verbosity is set as follows:
	//  0 means: don't print any messages except errors, this is used when --quiet is specified
	//  1 is the default: print essential messages
	//  2 means: print more messages, report minor things, this is used when --verbose is specified
	//  3 means: print very detailed debug messages, this is used when --verbose=2 is specified
	verbosity uint

	chunkSize      int
	cacheSize      int
	compressionSet bool
	noSync         bool
}

var globalOptions = GlobalOptions{
	stdin:  os.Stdin,
	stdout: os.Stdout,
	stderr: os.Stderr,
	tty:    terminal.StdoutIsTerminal() && terminal.StderrIsTerminal(),
}

func (opts *GlobalOptions) AddFlags(f *pflag.FlagSet) {
	f.StringVarP(&opts.Repo, "repo", "r", "", "`directory` of the repository (default: $ENBOX_REPOSITORY or the current directory)")
	f.StringVar(&opts.Email, "email", "", "`email` address for new repositories (default: $ENBOX_EMAIL)")
	f.StringVar(&opts.ChunkSize, "chunk-size", "", "`size` of the blocks files are split into, e.g. 16K (default: $ENBOX_CHUNK_SIZE or the repository setting)")
	f.Var(&opts.Compression, "compression", "compression mode, one of (auto|off|fastest|better|max) (default: $ENBOX_COMPRESSION)")
	f.StringVar(&opts.ConfigFile, "config", "", "user config `file` (default: $XDG_CONFIG_HOME/enbox/config.jsonc)")
	f.BoolVarP(&opts.Quiet, "quiet", "q", false, "do not output progress or informational messages")
	// use empty parameter name as `-v, --verbose n` instead of the correct `--verbose=n` is confusing
	f.CountVarP(&opts.Verbose, "verbose", "v", "be verbose (specify multiple times or a level using --verbose=n``, max level/times is 2)")
	f.BoolVar(&opts.JSON, "json", false, "set output mode to JSON for commands that support it")
	f.BoolVar(&opts.NoColor, "no-color", false, "disable colors and progress spinners")
	f.DurationVar(&opts.LockTimeout, "lock-timeout", time.Second, "how long to wait for another process to release the repository")
	f.DurationVar(&opts.RetryTimeout, "retry-timeout", 0, "give up retrying failed storage operations after `duration` (default: 15m)")
	f.StringVar(&opts.CacheSize, "cache-size", "", "`size` of the cache for repeated chunks during export, e.g. 32M")

	opts.Repo = os.Getenv("ENBOX_REPOSITORY")
	opts.Email = os.Getenv("ENBOX_EMAIL")
	opts.ChunkSize = os.Getenv("ENBOX_CHUNK_SIZE")
	if comp := os.Getenv("ENBOX_COMPRESSION"); comp != "" {
		// ignore error as there's no good way to handle it
		_ = opts.Compression.Set(comp)
	}
}

// PreRun resolves the options that are not set by a flag or the environment
// from the user config file and derives the verbosity.
func (opts *GlobalOptions) PreRun(cmd *cobra.Command) error {
	opts.verbosity = 1
	if opts.Quiet && opts.Verbose > 0 {
		return errors.Fatal("--quiet and --verbose cannot be specified at the same time")
	}

	switch {
	case opts.Verbose >= 2:
		opts.verbosity = 3
	case opts.Verbose > 0:
		opts.verbosity = 2
	case opts.Quiet:
		opts.verbosity = 0
	}

	if opts.NoColor {
		opts.tty = false
	}

	cfgFile := opts.ConfigFile
	if cfgFile == "" {
		var err error
		cfgFile, err = userconfig.DefaultPath()
		if err != nil {
			debug.Log("no user config directory: %v", err)
		}
	}
	var user userconfig.Config
	if cfgFile != "" {
		var err error
		user, err = userconfig.Load(cfgFile)
		if err != nil {
			return err
		}
	}

	opts.Repo = userconfig.String(opts.Repo, user.Repository, ".")
	opts.Email = userconfig.String(opts.Email, user.Email)
	opts.ChunkSize = userconfig.String(opts.ChunkSize, user.ChunkSize)

	compressionSet := cmd.Flags().Changed("compression") || os.Getenv("ENBOX_COMPRESSION") != ""
	if !compressionSet && user.Compression != nil {
		opts.Compression = *user.Compression
		compressionSet = true
	}
	opts.compressionSet = compressionSet
	if opts.Compression == repository.CompressionInvalid {
		return errors.Fatalf("invalid compression mode %q", os.Getenv("ENBOX_COMPRESSION"))
	}

	opts.chunkSize = 0
	if opts.ChunkSize != "" {
		size, err := ui.ParseBytes(opts.ChunkSize)
		if err != nil {
			return errors.Fatalf("invalid chunk size %q: %v", opts.ChunkSize, err)
		}
		if err := repository.ValidChunkSize(int(size)); err != nil {
			return errors.Fatalf("%v", err)
		}
		opts.chunkSize = int(size)
	}

	opts.cacheSize = 0
	if opts.CacheSize != "" {
		size, err := ui.ParseBytes(opts.CacheSize)
		if err != nil {
			return errors.Fatalf("invalid cache size %q: %v", opts.CacheSize, err)
		}
		opts.cacheSize = int(size)
	}

	debug.Log("repository %v, chunk size %d, compression %v", opts.Repo, opts.chunkSize, &opts.Compression)
	return nil
}

// compression returns the compression override for new blobs, nil if the
// repository default applies.
func (opts GlobalOptions) compression() *repository.CompressionMode {
	if !opts.compressionSet {
		return nil
	}
	c := opts.Compression
	return &c
}

// newPrinter returns a printer for the configured output mode.
func newPrinter(gopts GlobalOptions) *ui.Printer {
	return ui.NewPrinter(gopts.stdout, gopts.stderr, gopts.verbosity, gopts.JSON, gopts.tty)
}

func (opts GlobalOptions) repositoryOptions(printer *ui.Printer) repository.Options {
	return repository.Options{
		CacheSize:    opts.cacheSize,
		LockTimeout:  opts.LockTimeout,
		RetryTimeout: opts.RetryTimeout,
		NoSync:       opts.noSync,
		Report: func(msg string, err error, d time.Duration) {
			if d < 0 {
				printer.W("%v failed, giving up: %v", msg, err)
				return
			}
			printer.W("%v returned error, retrying after %v: %v", msg, d, err)
		},
	}
}

// OpenRepository opens the repository configured in gopts.
func OpenRepository(ctx context.Context, gopts GlobalOptions, printer *ui.Printer) (*repository.Repository, error) {
	debug.Log("opening repository at %v", gopts.Repo)
	repo, err := repository.Open(ctx, gopts.Repo, gopts.repositoryOptions(printer))
	if err != nil {
		return nil, err
	}
	printer.VV("repository %v opened", repo.Config().ID[:10])
	return repo, nil
}
