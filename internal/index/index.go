// Package index keeps the persistent bookkeeping of a repository in a bbolt
// database: reference counts of stored blocks and the sealed blob records.
package index

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"

	"github.com/enbox/enbox/internal/debug"
	"github.com/enbox/enbox/internal/errors"
)

var (
	bucketRefs  = []byte("refs")
	bucketBlobs = []byte("blobs")
)

var (
	// ErrNotReferenced is returned when a reference count would drop below zero.
	ErrNotReferenced = errors.New("block is not referenced")

	// ErrNotFound is returned when a blob record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrExists is returned by PutBlob when a record with the name exists.
	ErrExists = errors.New("record already exists")

	// ErrLocked is returned when another process holds the index open.
	ErrLocked = errors.New("index is locked by another process")
)

// Options tune how the index database is opened.
type Options struct {
	// Timeout is how long Open waits for the file lock.
	Timeout time.Duration

	// NoSync skips fsync after each commit.
	NoSync bool
}

// Index is the bbolt backed repository index.
type Index struct {
	db   *bbolt.DB
	path string
}

// Open opens or creates the index database at path.
func Open(path string, opts Options) (*Index, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, errors.Wrap(err, "MkdirAll")
	}

	if opts.Timeout == 0 {
		opts.Timeout = time.Second
	}

	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: opts.Timeout, NoSync: opts.NoSync})
	if errors.Is(err, bbolt.ErrTimeout) {
		return nil, errors.WithStack(ErrLocked)
	}
	if err != nil {
		return nil, errors.Wrap(err, "bbolt.Open")
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketRefs, bucketBlobs} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return errors.Wrapf(err, "create bucket %q", name)
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	debug.Log("opened index at %v", path)
	return &Index{db: db, path: path}, nil
}

// Path returns the filename of the database.
func (idx *Index) Path() string {
	return idx.path
}

// Close closes the database.
func (idx *Index) Close() error {
	return idx.db.Close()
}

func encodeCount(n uint64) []byte {
	return binary.BigEndian.AppendUint64(nil, n)
}

func decodeCount(buf []byte) (uint64, error) {
	if len(buf) != 8 {
		return 0, errors.Errorf("invalid reference count length %d", len(buf))
	}
	return binary.BigEndian.Uint64(buf), nil
}

// RefCount returns the reference count stored for name, 0 if there is none.
func (idx *Index) RefCount(name []byte) (n uint64, err error) {
	err = idx.db.View(func(tx *bbolt.Tx) error {
		buf := tx.Bucket(bucketRefs).Get(name)
		if buf == nil {
			return nil
		}
		n, err = decodeCount(buf)
		return err
	})
	return n, err
}

// Increment adds one to the reference count of name and returns the new
// count.
func (idx *Index) Increment(name []byte) (n uint64, err error) {
	err = idx.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketRefs)
		if buf := b.Get(name); buf != nil {
			n, err = decodeCount(buf)
			if err != nil {
				return err
			}
		}
		n++
		return b.Put(name, encodeCount(n))
	})
	return n, err
}

// IncrementIfPresent adds one to the reference count of name if it is
// positive. It reports whether the count was incremented.
func (idx *Index) IncrementIfPresent(name []byte) (ok bool, err error) {
	err = idx.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketRefs)
		buf := b.Get(name)
		if buf == nil {
			return nil
		}
		n, err := decodeCount(buf)
		if err != nil {
			return err
		}
		ok = true
		return b.Put(name, encodeCount(n+1))
	})
	return ok, err
}

// Decrement subtracts one from the reference count of name and returns the
// new count. Entries reaching zero are removed. ErrNotReferenced is returned
// if the count already is zero.
func (idx *Index) Decrement(name []byte) (n uint64, err error) {
	err = idx.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketRefs)
		buf := b.Get(name)
		if buf == nil {
			return ErrNotReferenced
		}
		n, err = decodeCount(buf)
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrNotReferenced
		}
		n--
		if n == 0 {
			return b.Delete(name)
		}
		return b.Put(name, encodeCount(n))
	})
	return n, err
}

// EachRef calls fn for all reference counts in key order.
func (idx *Index) EachRef(fn func(name []byte, count uint64) error) error {
	return idx.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketRefs).ForEach(func(k, v []byte) error {
			n, err := decodeCount(v)
			if err != nil {
				return errors.Wrapf(err, "ref %x", k)
			}
			return fn(k, n)
		})
	})
}

// RefLen returns the number of referenced blocks.
func (idx *Index) RefLen() (n int, err error) {
	err = idx.db.View(func(tx *bbolt.Tx) error {
		n = tx.Bucket(bucketRefs).Stats().KeyN
		return nil
	})
	return n, err
}

// PutBlob stores the record data for the blob name. It fails if a record
// with that name exists.
func (idx *Index) PutBlob(name string, data []byte) error {
	return idx.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketBlobs)
		if b.Get([]byte(name)) != nil {
			return errors.Wrapf(ErrExists, "blob %q", name)
		}
		return b.Put([]byte(name), data)
	})
}

// GetBlob returns the record data stored for the blob name.
func (idx *Index) GetBlob(name string) (data []byte, err error) {
	err = idx.db.View(func(tx *bbolt.Tx) error {
		buf := tx.Bucket(bucketBlobs).Get([]byte(name))
		if buf == nil {
			return ErrNotFound
		}
		// buf is only valid during the transaction
		data = append([]byte(nil), buf...)
		return nil
	})
	return data, err
}

// DeleteBlob removes the record for the blob name.
func (idx *Index) DeleteBlob(name string) error {
	return idx.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketBlobs)
		if b.Get([]byte(name)) == nil {
			return ErrNotFound
		}
		return b.Delete([]byte(name))
	})
}

// EachBlob calls fn for all blob records in name order. data is only valid
// until fn returns.
func (idx *Index) EachBlob(fn func(name string, data []byte) error) error {
	return idx.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketBlobs).ForEach(func(k, v []byte) error {
			return fn(string(k), v)
		})
	})
}
