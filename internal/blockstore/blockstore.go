// Package blockstore implements the deduplicating, reference counted store
// of encrypted blocks. Block records live in a backend, reference counts in
// the repository index.
package blockstore

import (
	"context"
	"encoding/hex"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/zeebo/blake3"

	"github.com/enbox/enbox/internal/backend"
	"github.com/enbox/enbox/internal/block"
	"github.com/enbox/enbox/internal/crypto"
	"github.com/enbox/enbox/internal/debug"
	"github.com/enbox/enbox/internal/enbox"
	"github.com/enbox/enbox/internal/errors"
	"github.com/enbox/enbox/internal/index"
)

var (
	// ErrBlockNotFound is returned by Get for hashes the store does not hold.
	ErrBlockNotFound = errors.New("block not found")

	// ErrInvariantViolation is returned when a reference count would drop
	// below zero. It indicates a bug or a damaged index.
	ErrInvariantViolation = errors.New("reference count invariant violated")
)

// storageDomain separates storage names from other keyed hashes.
var storageDomain = []byte("enbox storage name v1")

// numLocks is the number of lock stripes. Operations on the same hash always
// use the same stripe.
const numLocks = 64

// Store maps content hashes to encrypted blocks.
type Store struct {
	be    backend.Backend
	idx   *index.Index
	key   crypto.ReferenceKey

	locks [numLocks]sync.Mutex
}

// New returns a store that keeps records in be and reference counts in idx.
// Storage names are derived with the reference key of key.
func New(be backend.Backend, idx *index.Index, key *crypto.Key) *Store {
	return &Store{
		be:  be,
		idx: idx,
		key: key.ReferenceKey,
	}
}

// StorageName returns the name the block with content hash id is stored
// under. It is a keyed BLAKE3 hash, so names do not reveal content hashes.
func (s *Store) StorageName(id enbox.ID) string {
	hasher, err := blake3.NewKeyed(s.key[:])
	if err != nil {
		panic("blockstore: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	_, _ = hasher.Write(storageDomain)
	_, _ = hasher.Write(id[:])
	return hex.EncodeToString(hasher.Sum(nil))
}

func (s *Store) handle(id enbox.ID) (backend.Handle, []byte) {
	name := s.StorageName(id)
	return backend.Handle{Type: backend.BlockFile, Name: name}, []byte(name)
}

func (s *Store) lock(id enbox.ID) func() {
	m := &s.locks[xxhash.Sum64(id[:])%numLocks]
	m.Lock()
	return m.Unlock
}

// Put stores b. If a block with the same hash is already present only its
// reference count is incremented and the payload of b is discarded.
func (s *Store) Put(ctx context.Context, b *block.Block) error {
	defer s.lock(b.Hash)()

	h, name := s.handle(b.Hash)

	ok, err := s.idx.IncrementIfPresent(name)
	if err != nil {
		return err
	}
	if ok {
		debug.Log("block %v already present", b.Hash)
		return nil
	}

	buf, err := b.Marshal()
	if err != nil {
		return err
	}

	err = s.be.Save(ctx, h, backend.NewRecordReader(buf, s.be.Hasher()))
	if err != nil {
		return errors.Wrapf(err, "save block %v", b.Hash.Str())
	}

	_, err = s.idx.Increment(name)
	if err != nil {
		return err
	}

	debug.Log("stored block %v as %v, %d bytes", b.Hash, h, len(buf))
	return nil
}

// Reference increments the reference count of id if the block is present
// and reports whether it was.
func (s *Store) Reference(_ context.Context, id enbox.ID) (bool, error) {
	defer s.lock(id)()

	_, name := s.handle(id)
	return s.idx.IncrementIfPresent(name)
}

// Get returns the block stored under id. The record is always read from the
// backend, so damage on disk is seen by the next caller.
func (s *Store) Get(ctx context.Context, id enbox.ID) (*block.Block, error) {
	h, name := s.handle(id)

	n, err := s.idx.RefCount(name)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, errors.Wrapf(ErrBlockNotFound, "block %v", id.Str())
	}

	buf, err := backend.LoadAll(ctx, s.be, h)
	if s.be.IsNotExist(err) {
		return nil, errors.Wrapf(ErrBlockNotFound, "block %v: payload missing", id.Str())
	}
	if err != nil {
		return nil, errors.Wrapf(err, "load block %v", id.Str())
	}

	return block.Unmarshal(id, buf)
}

// Release drops one reference to id. The payload is deleted when the last
// reference is gone.
func (s *Store) Release(ctx context.Context, id enbox.ID) error {
	defer s.lock(id)()

	h, name := s.handle(id)

	n, err := s.idx.Decrement(name)
	if errors.Is(err, index.ErrNotReferenced) {
		return errors.Bugf(ErrInvariantViolation, "release of block %v", id.Str())
	}
	if err != nil {
		return err
	}

	if n > 0 {
		return nil
	}

	err = s.be.Remove(ctx, h)
	if err != nil && !s.be.IsNotExist(err) {
		return errors.Wrapf(err, "remove block %v", id.Str())
	}

	debug.Log("removed block %v", id)
	return nil
}

// RefCount returns the number of references held on id.
func (s *Store) RefCount(id enbox.ID) (uint64, error) {
	_, name := s.handle(id)
	return s.idx.RefCount(name)
}

// Has reports whether a block is stored under id.
func (s *Store) Has(id enbox.ID) (bool, error) {
	n, err := s.RefCount(id)
	return n > 0, err
}

// Len returns the number of distinct blocks in the store.
func (s *Store) Len() (int, error) {
	return s.idx.RefLen()
}

// EachRef calls fn for every storage name with its reference count.
func (s *Store) EachRef(fn func(name string, count uint64) error) error {
	return s.idx.EachRef(func(name []byte, count uint64) error {
		return fn(string(name), count)
	})
}

// EachPayload calls fn for every block record in the backend.
func (s *Store) EachPayload(ctx context.Context, fn func(name string, size int64) error) error {
	return s.be.List(ctx, backend.BlockFile, func(fi backend.FileInfo) error {
		return fn(fi.Name, fi.Size)
	})
}
