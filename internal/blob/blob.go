// Package blob turns files into ordered sequences of block references and
// back.
package blob

import (
	"context"
	"time"

	"github.com/enbox/enbox/internal/block"
	"github.com/enbox/enbox/internal/enbox"
	"github.com/enbox/enbox/internal/errors"
)

var (
	// ErrSourceNotFound is returned by Ingest when the source does not exist.
	ErrSourceNotFound = errors.New("source file not found")

	// ErrNotARegularFile is returned by Ingest for directories, devices and
	// other non-regular sources.
	ErrNotARegularFile = errors.New("source is not a regular file")
)

const (
	// DefaultChunkSize is the size of the blocks a file is split into.
	DefaultChunkSize = 16 << 10

	// MinChunkSize and MaxChunkSize bound the chunk size of a blob.
	MinChunkSize = 1
	MaxChunkSize = 16 << 20

	// DefaultCacheSize is the size of the plaintext cache Materialize uses
	// for chunks that occur more than once.
	DefaultCacheSize = 64 << 20
)

// recordVersion is the version of the encoded blob record.
const recordVersion = 1

// Store is the part of the block store a blob needs.
type Store interface {
	Put(ctx context.Context, b *block.Block) error
	Reference(ctx context.Context, id enbox.ID) (bool, error)
	Get(ctx context.Context, id enbox.ID) (*block.Block, error)
	Release(ctx context.Context, id enbox.ID) error
}

// Blob is one ingested file. Refs holds one reference per chunk, in index
// order. Repeated chunks share a stored block but keep their own Ref.
type Blob struct {
	Version   uint       `cbor:"1,keyasint" json:"-"`
	Name      string     `cbor:"2,keyasint" json:"name"`
	ChunkSize uint32     `cbor:"3,keyasint" json:"chunk_size"`
	Size      int64      `cbor:"4,keyasint" json:"size"`
	Refs      enbox.Refs `cbor:"5,keyasint" json:"refs,omitempty"`
	Created   time.Time  `cbor:"6,keyasint" json:"created"`
}

// BlockCount returns the number of chunks of the blob.
func (b *Blob) BlockCount() int {
	return len(b.Refs)
}

// DistinctBlocks returns the number of distinct blocks the blob references.
func (b *Blob) DistinctBlocks() int {
	return len(b.Refs.Occurrences())
}

// Valid checks the structural invariants of a decoded record.
func (b *Blob) Valid() error {
	if b.Version != recordVersion {
		return errors.Errorf("blob %q: unsupported record version %d", b.Name, b.Version)
	}
	if b.Name == "" {
		return errors.New("blob has no name")
	}
	if err := ValidChunkSize(int(b.ChunkSize)); err != nil {
		return errors.Wrapf(err, "blob %q", b.Name)
	}

	chunks := (b.Size + int64(b.ChunkSize) - 1) / int64(b.ChunkSize)
	if int64(len(b.Refs)) != chunks {
		return errors.Errorf("blob %q: %d refs for %d bytes in %d byte chunks", b.Name, len(b.Refs), b.Size, b.ChunkSize)
	}
	if !b.Refs.Sorted() {
		return errors.Errorf("blob %q: refs are not in index order", b.Name)
	}
	return nil
}

// ValidChunkSize returns an error if size cannot be used as chunk size.
func ValidChunkSize(size int) error {
	if size < MinChunkSize || size > MaxChunkSize {
		return errors.Errorf("invalid chunk size %d, must be between %d and %d", size, MinChunkSize, MaxChunkSize)
	}
	return nil
}

// Release drops the references the blob holds on its blocks. All refs are
// released even if some fail; the errors are joined.
func (b *Blob) Release(ctx context.Context, store Store) error {
	return releaseRefs(ctx, store, b.Refs)
}

func releaseRefs(ctx context.Context, store Store, refs enbox.Refs) error {
	var errs []error
	for _, ref := range refs {
		if err := store.Release(ctx, ref.Hash); err != nil {
			errs = append(errs, errors.Wrapf(err, "release chunk %d", ref.Index))
		}
	}
	return errors.Join(errs...)
}
