package repository

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/enbox/enbox/internal/debug"
)

// RefCountError reports a stored reference count that differs from the
// number of references held by blobs.
type RefCountError struct {
	Name     string
	Stored   uint64
	Expected uint64
}

func (e *RefCountError) Error() string {
	return fmt.Sprintf("block %v: reference count is %d, but %d references exist", e.Name, e.Stored, e.Expected)
}

// BlobError reports a blob that cannot be restored.
type BlobError struct {
	Name string
	Err  error
}

func (e *BlobError) Error() string {
	return fmt.Sprintf("blob %q: %v", e.Name, e.Err)
}

func (e *BlobError) Unwrap() error {
	return e.Err
}

// OrphanedPayloadError reports a stored block that is not in the index.
type OrphanedPayloadError struct {
	Name string
	Size int64
}

func (e *OrphanedPayloadError) Error() string {
	return fmt.Sprintf("block %v (%d bytes) is not referenced by the index", e.Name, e.Size)
}

// Check verifies that every blob can be decrypted, that reference counts
// match the references held by blobs and that no stored block is unknown to
// the index. Problems are passed to report, the returned error is only set if
// the check itself could not be completed.
func (r *Repository) Check(ctx context.Context, report func(error)) error {
	var m sync.Mutex
	found := func(err error) {
		m.Lock()
		defer m.Unlock()
		report(err)
	}

	blobs := r.Blobs()

	expected := make(map[string]uint64)
	for _, b := range blobs {
		for id, n := range b.Refs.Occurrences() {
			expected[r.store.StorageName(id)] += uint64(n)
		}
	}

	known := make(map[string]struct{}, len(expected))
	err := r.store.EachRef(func(name string, count uint64) error {
		known[name] = struct{}{}
		if count != expected[name] {
			found(&RefCountError{Name: name, Stored: count, Expected: expected[name]})
		}
		return nil
	})
	if err != nil {
		return err
	}

	for name, n := range expected {
		if _, ok := known[name]; !ok {
			found(&RefCountError{Name: name, Stored: 0, Expected: n})
		}
	}

	err = r.store.EachPayload(ctx, func(name string, size int64) error {
		if _, ok := known[name]; !ok {
			found(&OrphanedPayloadError{Name: name, Size: size})
		}
		return nil
	})
	if err != nil {
		return err
	}

	wg, wgCtx := errgroup.WithContext(ctx)
	wg.SetLimit(runtime.GOMAXPROCS(0))
	for _, b := range blobs {
		b := b
		wg.Go(func() error {
			err := b.Verify(wgCtx, r.key, r.store)
			if err != nil {
				if ctxErr := wgCtx.Err(); ctxErr != nil {
					return ctxErr
				}
				found(&BlobError{Name: b.Name, Err: err})
			}
			return nil
		})
	}

	if err := wg.Wait(); err != nil {
		return err
	}

	debug.Log("checked %d blobs and %d blocks", len(blobs), len(known))
	return nil
}
