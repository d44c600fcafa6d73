package index_test

import (
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/enbox/enbox/internal/errors"
	"github.com/enbox/enbox/internal/index"
	rtest "github.com/enbox/enbox/internal/test"
)

func TestRefCounts(t *testing.T) {
	idx := index.TestOpen(t)
	name := []byte("block-a")

	n, err := idx.RefCount(name)
	rtest.OK(t, err)
	rtest.Equals(t, uint64(0), n)

	ok, err := idx.IncrementIfPresent(name)
	rtest.OK(t, err)
	rtest.Assert(t, !ok, "missing entry was incremented")

	for i := 1; i <= 3; i++ {
		n, err = idx.Increment(name)
		rtest.OK(t, err)
		rtest.Equals(t, uint64(i), n)
	}

	ok, err = idx.IncrementIfPresent(name)
	rtest.OK(t, err)
	rtest.Assert(t, ok, "present entry was not incremented")

	l, err := idx.RefLen()
	rtest.OK(t, err)
	rtest.Equals(t, 1, l)

	for i := 3; i >= 0; i-- {
		n, err = idx.Decrement(name)
		rtest.OK(t, err)
		rtest.Equals(t, uint64(i), n)
	}

	_, err = idx.Decrement(name)
	rtest.ErrorIs(t, err, index.ErrNotReferenced)

	l, err = idx.RefLen()
	rtest.OK(t, err)
	rtest.Equals(t, 0, l)
}

func TestConcurrentIncrement(t *testing.T) {
	idx := index.TestOpen(t)
	name := []byte("shared")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				_, err := idx.Increment(name)
				if err != nil {
					t.Error(err)
				}
			}
		}()
	}
	wg.Wait()

	n, err := idx.RefCount(name)
	rtest.OK(t, err)
	rtest.Equals(t, uint64(80), n)
}

func TestEachRef(t *testing.T) {
	idx := index.TestOpen(t)

	want := map[string]uint64{}
	for i := 0; i < 10; i++ {
		name := fmt.Sprintf("block-%02d", i)
		for j := 0; j <= i; j++ {
			_, err := idx.Increment([]byte(name))
			rtest.OK(t, err)
		}
		want[name] = uint64(i + 1)
	}

	got := map[string]uint64{}
	rtest.OK(t, idx.EachRef(func(name []byte, count uint64) error {
		got[string(name)] = count
		return nil
	}))
	rtest.Equals(t, want, got)
}

func TestBlobs(t *testing.T) {
	idx := index.TestOpen(t)

	_, err := idx.GetBlob("missing")
	rtest.ErrorIs(t, err, index.ErrNotFound)
	rtest.ErrorIs(t, idx.DeleteBlob("missing"), index.ErrNotFound)

	rtest.OK(t, idx.PutBlob("b", []byte("record b")))
	rtest.OK(t, idx.PutBlob("a", []byte("record a")))
	rtest.ErrorIs(t, idx.PutBlob("a", []byte("other")), index.ErrExists)

	data, err := idx.GetBlob("a")
	rtest.OK(t, err)
	rtest.Equals(t, []byte("record a"), data)

	var names []string
	rtest.OK(t, idx.EachBlob(func(name string, _ []byte) error {
		names = append(names, name)
		return nil
	}))
	rtest.Equals(t, []string{"a", "b"}, names)

	rtest.OK(t, idx.DeleteBlob("a"))
	_, err = idx.GetBlob("a")
	rtest.ErrorIs(t, err, index.ErrNotFound)
}

func TestReopen(t *testing.T) {
	filename := filepath.Join(rtest.TempDir(t), "sub", "index.db")

	idx, err := index.Open(filename, index.Options{})
	rtest.OK(t, err)
	_, err = idx.Increment([]byte("x"))
	rtest.OK(t, err)
	rtest.OK(t, idx.PutBlob("file", []byte("data")))

	// a second opener is rejected while the first holds the lock
	_, err = index.Open(filename, index.Options{Timeout: 50 * time.Millisecond})
	rtest.Assert(t, errors.Is(err, index.ErrLocked), "second open: unexpected error %v", err)

	rtest.OK(t, idx.Close())

	idx, err = index.Open(filename, index.Options{})
	rtest.OK(t, err)
	defer func() { rtest.OK(t, idx.Close()) }()

	n, err := idx.RefCount([]byte("x"))
	rtest.OK(t, err)
	rtest.Equals(t, uint64(1), n)

	data, err := idx.GetBlob("file")
	rtest.OK(t, err)
	rtest.Equals(t, []byte("data"), data)
}
