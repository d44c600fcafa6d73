package backend

import (
	"context"
	"hash"
	"io"
)

// Backend stores the encrypted block records of a repository. Records are
// written once, read as a whole and removed when their last reference is
// released.
//
// A retry.Backend retries failed operations. Errors that retrying cannot fix
// are either wrapped in a github.com/cenkalti/backoff/v4.PermanentError or
// recognized by IsPermanentError. Context errors need no wrapping.
type Backend interface {
	// Hasher may return a hash function the backend uses to check that a
	// record arrived intact. Nil means no check.
	Hasher() hash.Hash

	// Save stores the record from rd under h. The record must not exist.
	Save(ctx context.Context, h Handle, rd RewindReader) error

	// Load runs fn with a reader for the whole record at h. fn may be
	// called again after a failed attempt and must start over each time.
	Load(ctx context.Context, h Handle, fn func(rd io.Reader) error) error

	// Remove deletes the record at h.
	Remove(ctx context.Context, h Handle) error

	// List calls fn for every record of type t, in no particular order.
	// It stops at the first error fn returns and returns that error.
	List(ctx context.Context, t FileType, fn func(FileInfo) error) error

	// IsNotExist reports whether err was caused by a missing record.
	IsNotExist(err error) bool

	// IsPermanentError reports whether err will very likely occur again if
	// the operation is retried.
	IsPermanentError(err error) bool

	// Close releases the backend.
	Close() error
}

// FileInfo describes a stored record.
type FileInfo struct {
	Size int64
	Name string
}
