// Package mem keeps block records in memory. It backs the block store in
// tests.
package mem

import (
	"bytes"
	"context"
	"hash"
	"io"
	"sync"

	"github.com/cenkalti/backoff/v4"
	"github.com/cespare/xxhash/v2"

	"github.com/enbox/enbox/internal/backend"
	"github.com/enbox/enbox/internal/debug"
	"github.com/enbox/enbox/internal/errors"
)

var errNotFound = errors.New("record not found")

// MemoryBackend stores records in a map.
type MemoryBackend struct {
	m       sync.Mutex
	records map[backend.Handle][]byte
}

var _ backend.Backend = &MemoryBackend{}

// New returns an empty backend.
func New() *MemoryBackend {
	debug.Log("created new memory backend")
	return &MemoryBackend{records: make(map[backend.Handle][]byte)}
}

// Hasher returns xxhash, so Save notices records that were read incompletely.
func (be *MemoryBackend) Hasher() hash.Hash {
	return xxhash.New()
}

// Save stores the record from rd. Existing records are never replaced.
func (be *MemoryBackend) Save(ctx context.Context, h backend.Handle, rd backend.RewindReader) error {
	if err := h.Valid(); err != nil {
		return backoff.Permanent(err)
	}

	buf, err := io.ReadAll(rd)
	if err != nil {
		return err
	}
	if int64(len(buf)) != rd.Length() {
		return errors.Errorf("read %d bytes of a %d byte record", len(buf), rd.Length())
	}
	hasher := be.Hasher()
	_, _ = hasher.Write(buf)
	if !bytes.Equal(hasher.Sum(nil), rd.Hash()) {
		return errors.Errorf("record %v: checksum mismatch", h)
	}

	be.m.Lock()
	defer be.m.Unlock()

	if _, ok := be.records[h]; ok {
		return backoff.Permanent(errors.Errorf("record %v already exists", h))
	}
	be.records[h] = buf
	return ctx.Err()
}

// Load runs fn with a reader for the record at h.
func (be *MemoryBackend) Load(ctx context.Context, h backend.Handle, fn func(rd io.Reader) error) error {
	be.m.Lock()
	buf, ok := be.records[h]
	be.m.Unlock()

	if !ok {
		return errNotFound
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(bytes.NewReader(buf))
}

// Remove deletes the record at h.
func (be *MemoryBackend) Remove(ctx context.Context, h backend.Handle) error {
	be.m.Lock()
	defer be.m.Unlock()

	if _, ok := be.records[h]; !ok {
		return errNotFound
	}
	delete(be.records, h)
	return ctx.Err()
}

// List calls fn for every record of type t.
func (be *MemoryBackend) List(ctx context.Context, t backend.FileType, fn func(backend.FileInfo) error) error {
	var list []backend.FileInfo

	be.m.Lock()
	for h, buf := range be.records {
		if h.Type == t {
			list = append(list, backend.FileInfo{Name: h.Name, Size: int64(len(buf))})
		}
	}
	be.m.Unlock()

	for _, fi := range list {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(fi); err != nil {
			return err
		}
	}
	return ctx.Err()
}

// IsNotExist returns true if the record does not exist.
func (be *MemoryBackend) IsNotExist(err error) bool {
	return errors.Is(err, errNotFound)
}

// IsPermanentError returns true for missing records.
func (be *MemoryBackend) IsPermanentError(err error) bool {
	return be.IsNotExist(err)
}

// Corrupt replaces the record at h with the result of fn. Tests use it to
// simulate damaged storage.
func (be *MemoryBackend) Corrupt(h backend.Handle, fn func(buf []byte) []byte) error {
	be.m.Lock()
	defer be.m.Unlock()

	buf, ok := be.records[h]
	if !ok {
		return errNotFound
	}
	be.records[h] = fn(append([]byte(nil), buf...))
	return nil
}

// Close does nothing.
func (be *MemoryBackend) Close() error {
	return nil
}
