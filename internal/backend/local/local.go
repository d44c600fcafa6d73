package local

import (
	"context"
	"hash"
	"io"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/semaphore"

	"github.com/enbox/enbox/internal/backend"
	"github.com/enbox/enbox/internal/debug"
	"github.com/enbox/enbox/internal/errors"
)

const (
	fileMode = 0600
	dirMode  = 0700
)

// Local is a backend in a local directory. Files are stored below two
// character subdirectories, data/ab/abcdef...
type Local struct {
	Config
	sem *semaphore.Weighted
}

// ensure statically that *Local implements backend.Backend.
var _ backend.Backend = &Local{}

func open(cfg Config) (*Local, error) {
	if cfg.Connections == 0 {
		return nil, errors.New("connections must be greater than zero")
	}

	return &Local{
		Config: cfg,
		sem:    semaphore.NewWeighted(int64(cfg.Connections)),
	}, nil
}

// Open opens the local backend as specified by config.
func Open(_ context.Context, cfg Config) (*Local, error) {
	debug.Log("open local backend at %v", cfg.Path)

	fi, err := os.Stat(cfg.Path)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if !fi.IsDir() {
		return nil, errors.Errorf("%v is not a directory", cfg.Path)
	}

	return open(cfg)
}

// Create creates the base directory for a new local backend.
func Create(_ context.Context, cfg Config) (*Local, error) {
	debug.Log("create local backend at %v", cfg.Path)

	be, err := open(cfg)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(cfg.Path, dirMode); err != nil {
		return nil, errors.WithStack(err)
	}

	return be, nil
}

// Filename returns the path of the file for h.
func (b *Local) Filename(h backend.Handle) string {
	return filepath.Join(b.Path, h.Name[:2], h.Name)
}

// Hasher returns nil, records are written through a temporary file and
// renamed only when complete.
func (b *Local) Hasher() hash.Hash {
	return nil
}

// IsNotExist returns true if the error is caused by a non existing file.
func (b *Local) IsNotExist(err error) bool {
	return errors.Is(err, os.ErrNotExist)
}

// IsPermanentError returns true for missing records, a full disk and
// denied access.
func (b *Local) IsPermanentError(err error) bool {
	return b.IsNotExist(err) || errors.Is(err, syscall.ENOSPC) || errors.Is(err, os.ErrPermission)
}

func (b *Local) acquire(ctx context.Context) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := b.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	return func() { b.sem.Release(1) }, nil
}

// Save stores data in the backend at the handle.
func (b *Local) Save(ctx context.Context, h backend.Handle, rd backend.RewindReader) (err error) {
	debug.Log("Save %v", h)
	if err := h.Valid(); err != nil {
		return backoff.Permanent(err)
	}

	finalname := b.Filename(h)
	dir := filepath.Dir(finalname)

	defer func() {
		if err != nil && b.IsPermanentError(err) {
			err = backoff.Permanent(err)
		}
	}()

	release, err := b.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	// Create new file with a temporary name.
	tmpname := filepath.Base(finalname) + "-tmp-"
	f, err := tempFile(dir, tmpname)

	if b.IsNotExist(err) {
		debug.Log("error %v: creating dir", err)

		// error is caused by a missing directory, try to create it
		mkdirErr := os.MkdirAll(dir, dirMode)
		if mkdirErr != nil {
			debug.Log("error creating dir %v: %v", dir, mkdirErr)
		} else {
			// try again
			f, err = tempFile(dir, tmpname)
		}
	}

	if err != nil {
		return errors.WithStack(err)
	}

	defer func(f *os.File) {
		if err != nil {
			_ = f.Close() // Double Close is harmless.
			// the temporary name embeds the final name, no other goroutine
			// uses it
			_ = os.Remove(f.Name())
		}
	}(f)

	// save data, then sync
	wbytes, err := io.Copy(f, rd)
	if err != nil {
		return errors.WithStack(err)
	}
	// sanity check
	if wbytes != rd.Length() {
		return errors.Errorf("wrote %d bytes instead of the expected %d bytes", wbytes, rd.Length())
	}

	// Ignore error if filesystem does not support fsync.
	err = f.Sync()
	syncNotSup := err != nil && errors.Is(err, syscall.ENOTSUP)
	if err != nil && !syncNotSup {
		return errors.WithStack(err)
	}

	// Close, then rename. Windows doesn't like the reverse order.
	if err = f.Close(); err != nil {
		return errors.WithStack(err)
	}
	if err = os.Rename(f.Name(), finalname); err != nil {
		return errors.WithStack(err)
	}

	// Now sync the directory to commit the Rename.
	if !syncNotSup {
		err = fsyncDir(dir)
		if err != nil {
			return errors.WithStack(err)
		}
	}

	// try to mark file as read-only to avoid accidental modifications
	err = setFileReadonly(finalname, fileMode)
	if err != nil && !os.IsPermission(err) {
		return errors.WithStack(err)
	}

	return nil
}

var tempFile = os.CreateTemp // Overridden by test.

// Load runs fn with the open record file.
func (b *Local) Load(ctx context.Context, h backend.Handle, fn func(rd io.Reader) error) error {
	debug.Log("Load %v", h)
	if err := h.Valid(); err != nil {
		return backoff.Permanent(err)
	}

	release, err := b.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	f, err := os.Open(b.Filename(h))
	if err != nil {
		return err
	}

	err = fn(f)
	cerr := f.Close()
	if err != nil {
		return err
	}
	return errors.WithStack(cerr)
}

// Remove removes the file with the given handle.
func (b *Local) Remove(ctx context.Context, h backend.Handle) error {
	debug.Log("Remove %v", h)
	if err := h.Valid(); err != nil {
		return backoff.Permanent(err)
	}

	fn := b.Filename(h)

	release, err := b.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	// reset read-only flag
	err = os.Chmod(fn, 0666)
	if err != nil && !os.IsPermission(err) {
		return errors.WithStack(err)
	}

	return os.Remove(fn)
}

// List runs fn for each file in the backend which has the type t. When an
// error occurs (or fn returns an error), List stops and returns it.
func (b *Local) List(ctx context.Context, t backend.FileType, fn func(backend.FileInfo) error) error {
	debug.Log("List %v", t)

	if t != backend.BlockFile {
		return backoff.Permanent(errors.Errorf("invalid file type %v", t))
	}

	err := visitDirs(ctx, b.Path, fn)
	if b.IsNotExist(err) {
		debug.Log("ignoring non-existing directory")
		return nil
	}

	return err
}

// visitDirs and visitFiles are like filepath.Walk, but visit only the two
// levels of the data directory.
func visitDirs(ctx context.Context, dir string, fn func(backend.FileInfo) error) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}

	sub, err := d.Readdirnames(-1)
	if err != nil {
		// ignore subsequent errors
		_ = d.Close()
		return err
	}

	err = d.Close()
	if err != nil {
		return err
	}

	for _, f := range sub {
		err = visitFiles(ctx, filepath.Join(dir, f), fn)
		if err != nil {
			return err
		}
	}
	return ctx.Err()
}

func visitFiles(ctx context.Context, dir string, fn func(backend.FileInfo) error) error {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, syscall.ENOTDIR) {
		return nil
	}
	if err != nil {
		return err
	}

	for _, entry := range entries {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if !entry.Type().IsRegular() || isTempFile(entry.Name()) {
			continue
		}

		fi, err := entry.Info()
		if errors.Is(err, os.ErrNotExist) {
			// removed concurrently
			continue
		}
		if err != nil {
			return err
		}

		err = fn(backend.FileInfo{
			Name: fi.Name(),
			Size: fi.Size(),
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// isTempFile reports whether name is a leftover from an interrupted Save.
func isTempFile(name string) bool {
	return strings.Contains(name, "-tmp-")
}

// Close closes the backend. All files are closed within the functions that
// open them, so there is nothing to do.
func (b *Local) Close() error {
	debug.Log("Close()")
	return nil
}
