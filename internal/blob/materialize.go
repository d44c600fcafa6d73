package blob

import (
	"context"
	"sort"

	"github.com/google/renameio"
	"golang.org/x/sync/errgroup"

	"github.com/enbox/enbox/internal/block"
	"github.com/enbox/enbox/internal/bloblru"
	"github.com/enbox/enbox/internal/crypto"
	"github.com/enbox/enbox/internal/debug"
	"github.com/enbox/enbox/internal/enbox"
	"github.com/enbox/enbox/internal/errors"
)

type plainChunk struct {
	index int
	data  []byte
}

// MaterializeOptions control Materialize.
type MaterializeOptions struct {
	// CacheSize is the size in bytes of the cache for verified chunks that
	// occur more than once in the blob.
	CacheSize int
}

// Materialize reconstructs the blob at destPath. Chunks are written to a
// temporary file next to destPath which replaces destPath only when every
// chunk was decrypted and verified.
func (b *Blob) Materialize(ctx context.Context, destPath string, key *crypto.Key, store Store, opts MaterializeOptions) error {
	debug.Log("materialize %q to %v", b.Name, destPath)

	if err := b.Valid(); err != nil {
		return err
	}

	if opts.CacheSize <= 0 {
		opts.CacheSize = DefaultCacheSize
	}
	// lives for this call only, every export reads the store again
	cache := bloblru.New(opts.CacheSize)

	f, err := renameio.TempFile("", destPath)
	if err != nil {
		return errors.WithStack(err)
	}
	defer func() {
		// no-op after CloseAtomicallyReplace
		_ = f.Cleanup()
	}()

	refs := make(enbox.Refs, len(b.Refs))
	copy(refs, b.Refs)
	sort.SliceStable(refs, func(i, j int) bool { return refs[i].Index < refs[j].Index })

	wg, wgCtx := errgroup.WithContext(ctx)
	ch := make(chan plainChunk, queueLength)

	// fetch and decrypt in index order
	wg.Go(func() error {
		defer close(ch)

		for _, ref := range refs {
			data, err := cache.GetOrCompute(ref.Hash, func() ([]byte, error) {
				return b.fetch(wgCtx, ref, key, store)
			})
			if err != nil {
				return err
			}

			select {
			case ch <- plainChunk{index: ref.Index, data: data}:
			case <-wgCtx.Done():
				return wgCtx.Err()
			}
		}
		return nil
	})

	wg.Go(func() error {
		for c := range ch {
			_, err := f.WriteAt(c.data, int64(c.index)*int64(b.ChunkSize))
			if err != nil {
				return errors.WithStack(err)
			}
		}
		return nil
	})

	if err := wg.Wait(); err != nil {
		return err
	}

	if err := f.Truncate(b.Size); err != nil {
		return errors.WithStack(err)
	}

	if err := f.CloseAtomicallyReplace(); err != nil {
		return errors.WithStack(err)
	}

	debug.Log("materialized %q, %d bytes", b.Name, b.Size)
	return nil
}

func (b *Blob) fetch(ctx context.Context, ref enbox.Ref, key *crypto.Key, store Store) ([]byte, error) {
	blk, err := store.Get(ctx, ref.Hash)
	if err != nil {
		return nil, err
	}

	data, err := block.Decrypt(blk, key)
	if err != nil {
		return nil, errors.Wrapf(err, "chunk %d", ref.Index)
	}

	if len(data) > int(b.ChunkSize) {
		return nil, errors.Errorf("chunk %d: %d bytes exceed the chunk size %d", ref.Index, len(data), b.ChunkSize)
	}
	return data, nil
}

// Verify fetches and decrypts every distinct block of the blob without
// writing anything.
func (b *Blob) Verify(ctx context.Context, key *crypto.Key, store Store) error {
	if err := b.Valid(); err != nil {
		return err
	}

	seen := make(map[enbox.ID]struct{}, len(b.Refs))
	for _, ref := range b.Refs {
		if _, ok := seen[ref.Hash]; ok {
			continue
		}
		seen[ref.Hash] = struct{}{}

		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := b.fetch(ctx, ref, key, store); err != nil {
			return err
		}
	}
	return nil
}
