package blob_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/enbox/enbox/internal/blob"
	"github.com/enbox/enbox/internal/block"
	"github.com/enbox/enbox/internal/blockstore"
	"github.com/enbox/enbox/internal/crypto"
	"github.com/enbox/enbox/internal/enbox"
	"github.com/enbox/enbox/internal/errors"
	rtest "github.com/enbox/enbox/internal/test"
)

const testChunkSize = 1 << 10

func ingest(t testing.TB, store blob.Store, key *crypto.Key, data []byte, chunkSize int) *blob.Blob {
	t.Helper()
	src := rtest.WriteFile(t, rtest.TempDir(t), "source", data)
	b, err := blob.Ingest(context.TODO(), src, chunkSize, key, store, blob.IngestOptions{})
	rtest.OK(t, err)
	return b
}

func materialize(t testing.TB, b *blob.Blob, store blob.Store, key *crypto.Key) []byte {
	t.Helper()
	dest := filepath.Join(rtest.TempDir(t), "dest")
	rtest.OK(t, b.Materialize(context.TODO(), dest, key, store, blob.MaterializeOptions{}))
	return rtest.ReadFile(t, dest)
}

func TestRoundTrip(t *testing.T) {
	store, key, _ := blockstore.TestStore(t)

	for _, size := range []int{
		0, 1, testChunkSize - 1, testChunkSize, testChunkSize + 1,
		5*testChunkSize + 123, 64 * testChunkSize,
	} {
		data := rtest.Random(size, size)
		b := ingest(t, store, key, data, testChunkSize)

		rtest.Equals(t, int64(size), b.Size)
		rtest.Equals(t, (size+testChunkSize-1)/testChunkSize, b.BlockCount())
		rtest.Assert(t, b.Refs.Sorted(), "refs not in index order")
		rtest.OK(t, b.Valid())

		got := materialize(t, b, store, key)
		rtest.Assert(t, bytes.Equal(data, got), "size %d: exported data differs", size)
	}
}

func TestRoundTripSmallChunks(t *testing.T) {
	store, key, _ := blockstore.TestStore(t)

	for _, chunkSize := range []int{1, 7, 64, testChunkSize - 1} {
		for _, size := range []int{0, 1, 100, 3*chunkSize + 1} {
			data := rtest.Random(chunkSize+size, size)
			b := ingest(t, store, key, data, chunkSize)

			rtest.Equals(t, uint32(chunkSize), b.ChunkSize)
			rtest.Equals(t, (size+chunkSize-1)/chunkSize, b.BlockCount())
			rtest.OK(t, b.Valid())

			got := materialize(t, b, store, key)
			rtest.Assert(t, bytes.Equal(data, got), "chunk size %d, size %d: exported data differs", chunkSize, size)
		}
	}
}

func TestCompression(t *testing.T) {
	store, key, _ := blockstore.TestStore(t)
	data := rtest.Repeat([]byte("compressible text "), 10000)

	src := rtest.WriteFile(t, rtest.TempDir(t), "text", data)
	b, err := blob.Ingest(context.TODO(), src, blob.DefaultChunkSize, key, store, blob.IngestOptions{
		Name:        "text.txt",
		Compression: block.ModeMax,
	})
	rtest.OK(t, err)
	rtest.Equals(t, "text.txt", b.Name)

	blk, err := store.Get(context.TODO(), b.Refs[0].Hash)
	rtest.OK(t, err)
	rtest.Equals(t, block.CompressionZstd, blk.Compression)

	rtest.Equals(t, data, materialize(t, b, store, key))
}

func TestDeduplication(t *testing.T) {
	store, key, _ := blockstore.TestStore(t)

	a := rtest.Random(1, testChunkSize)
	c := rtest.Random(2, testChunkSize)
	data := bytes.Join([][]byte{a, a, c, a}, nil)

	b := ingest(t, store, key, data, testChunkSize)
	rtest.Equals(t, 4, b.BlockCount())
	rtest.Equals(t, 2, b.DistinctBlocks())

	for id, occurrences := range b.Refs.Occurrences() {
		n, err := store.RefCount(id)
		rtest.OK(t, err)
		rtest.Equals(t, uint64(occurrences), n)
	}

	n, err := store.RefCount(block.Hash(a))
	rtest.OK(t, err)
	rtest.Equals(t, uint64(3), n)

	l, err := store.Len()
	rtest.OK(t, err)
	rtest.Equals(t, 2, l)

	rtest.Equals(t, data, materialize(t, b, store, key))

	// a second blob shares the blocks
	b2 := ingest(t, store, key, data, testChunkSize)
	n, err = store.RefCount(block.Hash(a))
	rtest.OK(t, err)
	rtest.Equals(t, uint64(6), n)

	rtest.OK(t, b.Release(context.TODO(), store))
	n, err = store.RefCount(block.Hash(a))
	rtest.OK(t, err)
	rtest.Equals(t, uint64(3), n)

	// b2 is still intact
	rtest.Equals(t, data, materialize(t, b2, store, key))

	rtest.OK(t, b2.Release(context.TODO(), store))
	l, err = store.Len()
	rtest.OK(t, err)
	rtest.Equals(t, 0, l)
}

func TestOrderPreservation(t *testing.T) {
	store, key, _ := blockstore.TestStore(t)

	data1 := rtest.Random(10, 8*testChunkSize)
	data2 := append([]byte(nil), data1...)
	data2[5*testChunkSize+17] ^= 0xff

	b1 := ingest(t, store, key, data1, testChunkSize)
	b2 := ingest(t, store, key, data2, testChunkSize)

	for i := range b1.Refs {
		rtest.Equals(t, i, b1.Refs[i].Index)
		if i == 5 {
			rtest.Assert(t, b1.Refs[i].Hash != b2.Refs[i].Hash, "changed chunk has the same hash")
			continue
		}
		rtest.Equals(t, b1.Refs[i].Hash, b2.Refs[i].Hash)
	}

	rtest.Equals(t, data1, materialize(t, b1, store, key))
	rtest.Equals(t, data2, materialize(t, b2, store, key))
}

func TestSourceErrors(t *testing.T) {
	store, key, _ := blockstore.TestStore(t)
	dir := rtest.TempDir(t)

	_, err := blob.Ingest(context.TODO(), filepath.Join(dir, "missing"), testChunkSize, key, store, blob.IngestOptions{})
	rtest.ErrorIs(t, err, blob.ErrSourceNotFound)

	_, err = blob.Ingest(context.TODO(), dir, testChunkSize, key, store, blob.IngestOptions{})
	rtest.ErrorIs(t, err, blob.ErrNotARegularFile)

	src := rtest.WriteFile(t, dir, "file", []byte("data"))
	for _, size := range []int{0, -1, blob.MaxChunkSize + 1} {
		_, err = blob.Ingest(context.TODO(), src, size, key, store, blob.IngestOptions{})
		rtest.Assert(t, err != nil, "invalid chunk size %d accepted", size)
	}
}

// failingStore fails Put after a number of successful calls.
type failingStore struct {
	blob.Store
	puts int
}

var errInjected = errors.New("injected failure")

func (s *failingStore) Put(ctx context.Context, b *block.Block) error {
	if s.puts == 0 {
		return errInjected
	}
	s.puts--
	return s.Store.Put(ctx, b)
}

func TestIngestRollback(t *testing.T) {
	store, key, _ := blockstore.TestStore(t)

	// one block is shared with an existing blob and must keep its reference
	shared := rtest.Random(99, testChunkSize)
	existing := ingest(t, store, key, shared, testChunkSize)

	data := bytes.Join([][]byte{shared, rtest.Random(1, testChunkSize), shared, rtest.Random(2, testChunkSize), rtest.Random(3, testChunkSize)}, nil)
	src := rtest.WriteFile(t, rtest.TempDir(t), "source", data)

	_, err := blob.Ingest(context.TODO(), src, testChunkSize, key, &failingStore{Store: store, puts: 2}, blob.IngestOptions{})
	rtest.ErrorIs(t, err, errInjected)

	n, err := store.RefCount(block.Hash(shared))
	rtest.OK(t, err)
	rtest.Equals(t, uint64(1), n)

	l, err := store.Len()
	rtest.OK(t, err)
	rtest.Equals(t, 1, l)

	rtest.Equals(t, shared, materialize(t, existing, store, key))
}

func TestIngestCancel(t *testing.T) {
	store, key, _ := blockstore.TestStore(t)
	src := rtest.WriteFile(t, rtest.TempDir(t), "source", rtest.Random(5, 100*testChunkSize))

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := blob.Ingest(ctx, src, testChunkSize, key, store, blob.IngestOptions{
		Progress: func(int64) {
			calls++
			if calls == 10 {
				cancel()
			}
		},
	})
	rtest.ErrorIs(t, err, context.Canceled)

	l, err := store.Len()
	rtest.OK(t, err)
	rtest.Equals(t, 0, l)
}

// tamperStore flips a bit in the ciphertext of the block at one index.
type tamperStore struct {
	blob.Store
	target enbox.ID
	tag    bool
}

func (s *tamperStore) Get(ctx context.Context, id enbox.ID) (*block.Block, error) {
	b, err := s.Store.Get(ctx, id)
	if err != nil || id != s.target {
		return b, err
	}

	broken := *b
	if s.tag {
		broken.Tag[3] ^= 0x20
	} else {
		broken.Ciphertext = append([]byte(nil), b.Ciphertext...)
		broken.Ciphertext[0] ^= 0x01
	}
	return &broken, nil
}

func TestMaterializeTamper(t *testing.T) {
	store, key, _ := blockstore.TestStore(t)
	data := rtest.Random(7, 4*testChunkSize)
	b := ingest(t, store, key, data, testChunkSize)

	dest := filepath.Join(rtest.TempDir(t), "dest")
	rtest.OK(t, os.WriteFile(dest, []byte("previous content"), 0600))

	for _, tag := range []bool{false, true} {
		ts := &tamperStore{Store: store, target: b.Refs[2].Hash, tag: tag}
		err := b.Materialize(context.TODO(), dest, key, ts, blob.MaterializeOptions{})
		rtest.ErrorIs(t, err, block.ErrAuthenticationFailed)

		// the destination is left untouched
		rtest.Equals(t, []byte("previous content"), rtest.ReadFile(t, dest))
	}

	entries, err := os.ReadDir(filepath.Dir(dest))
	rtest.OK(t, err)
	rtest.Equals(t, 1, len(entries))

	// without tampering the destination is replaced
	rtest.OK(t, b.Materialize(context.TODO(), dest, key, store, blob.MaterializeOptions{}))
	rtest.Equals(t, data, rtest.ReadFile(t, dest))
}

// countingStore counts the calls to Get.
type countingStore struct {
	blob.Store
	gets int
}

func (s *countingStore) Get(ctx context.Context, id enbox.ID) (*block.Block, error) {
	s.gets++
	return s.Store.Get(ctx, id)
}

func TestMaterializeRepeatedChunks(t *testing.T) {
	store, key, _ := blockstore.TestStore(t)
	chunk := rtest.Random(12, testChunkSize)
	data := bytes.Join([][]byte{chunk, rtest.Random(13, testChunkSize), chunk, chunk}, nil)
	b := ingest(t, store, key, data, testChunkSize)

	for _, test := range []struct {
		cacheSize int
		gets      int
	}{
		{0, 2},
		{1, 4},
	} {
		cs := &countingStore{Store: store}
		dest := filepath.Join(rtest.TempDir(t), "dest")
		rtest.OK(t, b.Materialize(context.TODO(), dest, key, cs, blob.MaterializeOptions{CacheSize: test.cacheSize}))
		rtest.Equals(t, data, rtest.ReadFile(t, dest))
		rtest.Equals(t, test.gets, cs.gets)

		// a second call reads the store again
		rtest.OK(t, b.Materialize(context.TODO(), dest, key, cs, blob.MaterializeOptions{CacheSize: test.cacheSize}))
		rtest.Equals(t, 2*test.gets, cs.gets)
	}
}

func TestMaterializeWrongKey(t *testing.T) {
	store, key, _ := blockstore.TestStore(t)
	b := ingest(t, store, key, rtest.Random(8, 3*testChunkSize), testChunkSize)

	err := b.Materialize(context.TODO(), filepath.Join(rtest.TempDir(t), "dest"), crypto.NewRandomKey(), store, blob.MaterializeOptions{})
	rtest.ErrorIs(t, err, block.ErrAuthenticationFailed)
}

func TestMaterializeMissingBlock(t *testing.T) {
	store, key, _ := blockstore.TestStore(t)
	b := ingest(t, store, key, rtest.Random(9, 2*testChunkSize), testChunkSize)

	rtest.OK(t, store.Release(context.TODO(), b.Refs[1].Hash))

	err := b.Materialize(context.TODO(), filepath.Join(rtest.TempDir(t), "dest"), key, store, blob.MaterializeOptions{})
	rtest.ErrorIs(t, err, blockstore.ErrBlockNotFound)
}

func TestVerify(t *testing.T) {
	store, key, _ := blockstore.TestStore(t)
	b := ingest(t, store, key, rtest.Random(11, 5*testChunkSize), testChunkSize)

	rtest.OK(t, b.Verify(context.TODO(), key, store))

	ts := &tamperStore{Store: store, target: b.Refs[4].Hash}
	rtest.ErrorIs(t, b.Verify(context.TODO(), key, ts), block.ErrAuthenticationFailed)
}

func TestLargeFile(t *testing.T) {
	store, key, _ := blockstore.TestStore(t)
	data := rtest.Random(42, 10<<20)

	b := ingest(t, store, key, data, blob.DefaultChunkSize)
	rtest.Equals(t, 640, b.BlockCount())
	rtest.Equals(t, int64(10<<20), b.Size)

	got := materialize(t, b, store, key)
	rtest.Assert(t, bytes.Equal(data, got), "exported data differs")
}
