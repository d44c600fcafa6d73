package repository

import (
	"context"
	"path/filepath"
	"slices"
	"strings"

	"github.com/enbox/enbox/internal/blob"
	"github.com/enbox/enbox/internal/codec"
	"github.com/enbox/enbox/internal/debug"
	"github.com/enbox/enbox/internal/errors"
	"github.com/enbox/enbox/internal/index"
)

// ImportOptions control Import.
type ImportOptions struct {
	// Name is the blob name, it defaults to the base name of the source.
	Name string

	// ChunkSize overrides the chunk size of the repository config.
	ChunkSize int

	// Compression overrides the compression of the repository config.
	Compression *CompressionMode

	// Progress is called with the number of bytes stored so far.
	Progress func(bytes int64)
}

// ValidName returns an error if name cannot be used as blob name.
func ValidName(name string) error {
	switch {
	case name == "", name == ".", name == "..":
		return errors.Errorf("invalid blob name %q", name)
	case strings.ContainsAny(name, "/\\\x00"):
		return errors.Errorf("blob name %q must not contain path separators", name)
	}
	return nil
}

func (r *Repository) sealBlob(b *blob.Blob) ([]byte, error) {
	buf, err := codec.Marshal(b)
	if err != nil {
		return nil, err
	}
	return r.key.SealPacked(buf, []byte(b.Name)), nil
}

func (r *Repository) openBlob(name string, data []byte) (*blob.Blob, error) {
	buf, err := r.key.OpenPacked(data, []byte(name))
	if err != nil {
		return nil, errors.Wrapf(err, "blob %q", name)
	}

	b := &blob.Blob{}
	if err := codec.Unmarshal(buf, b); err != nil {
		return nil, errors.Wrapf(err, "blob %q", name)
	}
	if b.Name != name {
		return nil, errors.Errorf("blob record %q carries name %q", name, b.Name)
	}
	if err := b.Valid(); err != nil {
		return nil, err
	}
	return b, nil
}

func (r *Repository) loadBlobs() error {
	return r.idx.EachBlob(func(name string, data []byte) error {
		b, err := r.openBlob(name, data)
		if err != nil {
			return err
		}
		r.blobs.Store(name, b)
		return nil
	})
}

// Import ingests the file at path and returns the name of the new blob.
func (r *Repository) Import(ctx context.Context, path string, opts ImportOptions) (string, error) {
	name := opts.Name
	if name == "" {
		name = filepath.Base(path)
	}
	if err := ValidName(name); err != nil {
		return "", err
	}

	chunkSize := r.cfg.ChunkSize
	if opts.ChunkSize != 0 {
		if err := ValidChunkSize(opts.ChunkSize); err != nil {
			return "", err
		}
		chunkSize = opts.ChunkSize
	}
	compression := r.cfg.Compression
	if opts.Compression != nil {
		compression = *opts.Compression
	}

	if _, ok := r.blobs.Load(name); ok {
		return "", errors.Wrapf(ErrBlobExists, "%q", name)
	}
	if _, loaded := r.pending.LoadOrStore(name, struct{}{}); loaded {
		return "", errors.Wrapf(ErrBlobExists, "%q", name)
	}
	defer r.pending.Delete(name)

	b, err := blob.Ingest(ctx, path, chunkSize, r.key, r.store, blob.IngestOptions{
		Name:        name,
		Compression: compression.blockMode(),
		Progress:    opts.Progress,
	})
	if err != nil {
		return "", err
	}

	err = r.commit(b)
	if err != nil {
		if rerr := b.Release(context.WithoutCancel(ctx), r.store); rerr != nil {
			debug.Log("rollback of %q failed: %v", name, rerr)
			err = errors.Join(err, rerr)
		}
		return "", err
	}

	return name, nil
}

func (r *Repository) commit(b *blob.Blob) error {
	data, err := r.sealBlob(b)
	if err != nil {
		return err
	}

	err = r.idx.PutBlob(b.Name, data)
	if errors.Is(err, index.ErrExists) {
		return errors.Wrapf(ErrBlobExists, "%q", b.Name)
	}
	if err != nil {
		return err
	}

	r.blobs.Store(b.Name, b)
	debug.Log("committed blob %q with %d refs", b.Name, len(b.Refs))
	return nil
}

// Stat returns the record of the named blob.
func (r *Repository) Stat(name string) (*blob.Blob, error) {
	b, ok := r.blobs.Load(name)
	if !ok {
		return nil, errors.Wrapf(ErrBlobNotFound, "%q", name)
	}

	cp := *b
	cp.Refs = slices.Clone(b.Refs)
	return &cp, nil
}

// Export writes the named blob to dest.
func (r *Repository) Export(ctx context.Context, name, dest string) error {
	b, ok := r.blobs.Load(name)
	if !ok {
		return errors.Wrapf(ErrBlobNotFound, "%q", name)
	}
	return b.Materialize(ctx, dest, r.key, r.store, blob.MaterializeOptions{CacheSize: r.cacheSize})
}

// List returns the names of all blobs, sorted.
func (r *Repository) List() []string {
	names := make([]string, 0, r.blobs.Size())
	r.blobs.Range(func(name string, _ *blob.Blob) bool {
		names = append(names, name)
		return true
	})
	slices.Sort(names)
	return names
}

// Blobs returns the records of all blobs, sorted by name.
func (r *Repository) Blobs() []*blob.Blob {
	list := make([]*blob.Blob, 0, r.blobs.Size())
	for _, name := range r.List() {
		if b, err := r.Stat(name); err == nil {
			list = append(list, b)
		}
	}
	return list
}

// Remove deletes the named blob and releases its blocks. The record is
// deleted before any block is released.
func (r *Repository) Remove(ctx context.Context, name string) error {
	b, ok := r.blobs.Load(name)
	if !ok {
		return errors.Wrapf(ErrBlobNotFound, "%q", name)
	}

	err := r.idx.DeleteBlob(name)
	if errors.Is(err, index.ErrNotFound) {
		return errors.Wrapf(ErrBlobNotFound, "%q", name)
	}
	if err != nil {
		return err
	}
	r.blobs.Delete(name)

	debug.Log("removed blob %q, releasing %d refs", name, len(b.Refs))
	return b.Release(ctx, r.store)
}

// Stats summarize the contents of a repository.
type Stats struct {
	Blobs  int   `json:"blobs"`
	Chunks int   `json:"chunks"`
	Blocks int   `json:"blocks"`
	Size   int64 `json:"size"`
}

// Stats returns the number of blobs, chunks and distinct blocks.
func (r *Repository) Stats() (Stats, error) {
	var s Stats
	r.blobs.Range(func(_ string, b *blob.Blob) bool {
		s.Blobs++
		s.Chunks += b.BlockCount()
		s.Size += b.Size
		return true
	})

	n, err := r.store.Len()
	if err != nil {
		return Stats{}, err
	}
	s.Blocks = n
	return s, nil
}
