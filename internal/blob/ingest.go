package blob

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/enbox/enbox/internal/block"
	"github.com/enbox/enbox/internal/crypto"
	"github.com/enbox/enbox/internal/debug"
	"github.com/enbox/enbox/internal/enbox"
	"github.com/enbox/enbox/internal/errors"
)

// queueLength bounds the number of chunks read ahead of the consumer.
const queueLength = 4

// IngestOptions control Ingest.
type IngestOptions struct {
	// Name is the blob name. It defaults to the base name of the source.
	Name string

	// Compression selects how chunks are compressed before encryption.
	Compression block.Mode

	// Progress is called with the number of bytes after every stored chunk.
	Progress func(bytes int64)
}

type chunk struct {
	index int
	data  []byte
}

// Ingest splits the file at sourcePath into chunks of chunkSize bytes,
// encrypts chunks the store does not hold yet and returns the blob
// referencing them. If Ingest fails, every reference it took is released
// again.
func Ingest(ctx context.Context, sourcePath string, chunkSize int, key *crypto.Key, store Store, opts IngestOptions) (*Blob, error) {
	if err := ValidChunkSize(chunkSize); err != nil {
		return nil, err
	}

	fi, err := os.Stat(sourcePath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, errors.Wrapf(ErrSourceNotFound, "%v", sourcePath)
	}
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if !fi.Mode().IsRegular() {
		return nil, errors.Wrapf(ErrNotARegularFile, "%v", sourcePath)
	}

	f, err := os.Open(sourcePath)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer func() {
		_ = f.Close()
	}()

	name := opts.Name
	if name == "" {
		name = filepath.Base(sourcePath)
	}

	debug.Log("ingest %v as %q, chunk size %d", sourcePath, name, chunkSize)

	b := &Blob{
		Version:   recordVersion,
		Name:      name,
		ChunkSize: uint32(chunkSize),
		Created:   time.Now().UTC().Truncate(time.Second),
	}

	refs, size, err := ingest(ctx, f, chunkSize, key, store, opts)
	if err != nil {
		// roll back, even if ctx was cancelled
		if rerr := releaseRefs(context.WithoutCancel(ctx), store, refs); rerr != nil {
			debug.Log("rollback of %q failed: %v", name, rerr)
			err = errors.Join(err, rerr)
		}
		return nil, err
	}

	b.Refs = refs
	b.Size = size

	debug.Log("ingested %q: %d bytes, %d refs", name, size, len(refs))
	return b, nil
}

// ingest runs the chunk pipeline. It returns the refs taken so far, also on
// error.
func ingest(ctx context.Context, rd io.Reader, chunkSize int, key *crypto.Key, store Store, opts IngestOptions) (enbox.Refs, int64, error) {
	wg, wgCtx := errgroup.WithContext(ctx)
	ch := make(chan chunk, queueLength)

	var size int64

	// producer
	wg.Go(func() error {
		defer close(ch)

		for index := 0; ; index++ {
			buf := make([]byte, chunkSize)
			n, err := io.ReadFull(rd, buf)
			if err == io.EOF {
				return nil
			}
			if err != nil && err != io.ErrUnexpectedEOF {
				return errors.Wrap(err, "read source")
			}

			size += int64(n)

			select {
			case ch <- chunk{index: index, data: buf[:n]}:
			case <-wgCtx.Done():
				return wgCtx.Err()
			}

			if err == io.ErrUnexpectedEOF {
				return nil
			}
		}
	})

	var refs enbox.Refs
	var stored int64

	// consumer
	wg.Go(func() error {
		for c := range ch {
			if err := wgCtx.Err(); err != nil {
				return err
			}

			id := block.Hash(c.data)

			ok, err := store.Reference(wgCtx, id)
			if err != nil {
				return err
			}

			if !ok {
				b, err := block.Encrypt(c.data, key, opts.Compression)
				if err != nil {
					return err
				}
				if err := store.Put(wgCtx, b); err != nil {
					return err
				}
			}

			refs = append(refs, enbox.Ref{Hash: id, Index: c.index})

			stored += int64(len(c.data))
			if opts.Progress != nil {
				opts.Progress(stored)
			}
		}
		return nil
	})

	err := wg.Wait()
	return refs, size, err
}
