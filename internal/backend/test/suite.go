package test

import (
	"bytes"
	"context"
	"encoding/hex"
	"io"
	"sort"
	"testing"

	"github.com/enbox/enbox/internal/backend"
	"github.com/enbox/enbox/internal/errors"
	rtest "github.com/enbox/enbox/internal/test"
)

// Suite implements a test suite for backends.
type Suite struct {
	// New returns a new, empty backend.
	New func(t testing.TB) backend.Backend
}

// RunTests executes all defined tests as subtests of t.
func (s *Suite) RunTests(t *testing.T) {
	for _, test := range []struct {
		name string
		fn   func(*testing.T)
	}{
		{"SaveLoad", s.testSaveLoad},
		{"Load", s.testLoad},
		{"List", s.testList},
		{"Remove", s.testRemove},
		{"NotExist", s.testNotExist},
		{"InvalidHandle", s.testInvalidHandle},
	} {
		t.Run(test.name, test.fn)
	}
}

func handle(seed int) backend.Handle {
	return backend.Handle{Type: backend.BlockFile, Name: hex.EncodeToString(rtest.Random(seed, 32))}
}

func save(t testing.TB, be backend.Backend, h backend.Handle, data []byte) {
	t.Helper()
	rtest.OK(t, be.Save(context.TODO(), h, backend.NewRecordReader(data, be.Hasher())))
}

func (s *Suite) testSaveLoad(t *testing.T) {
	be := s.New(t)
	defer func() { rtest.OK(t, be.Close()) }()

	for i, size := range []int{0, 1, 100, 16 << 10, 1<<20 + 5} {
		data := rtest.Random(i, size)
		h := handle(i)
		save(t, be, h, data)

		buf, err := backend.LoadAll(context.TODO(), be, h)
		rtest.OK(t, err)
		rtest.Assert(t, bytes.Equal(data, buf), "size %d: wrong data returned", size)
	}
}

func (s *Suite) testLoad(t *testing.T) {
	be := s.New(t)
	defer func() { rtest.OK(t, be.Close()) }()

	data := rtest.Random(23, 4000)
	h := handle(23)
	save(t, be, h, data)

	var got []byte
	rtest.OK(t, be.Load(context.TODO(), h, func(rd io.Reader) error {
		var err error
		got, err = io.ReadAll(rd)
		return err
	}))
	rtest.Assert(t, bytes.Equal(data, got), "wrong data returned")

	// the consumer error is returned as is
	consumerErr := errors.New("consumer failed")
	err := be.Load(context.TODO(), h, func(rd io.Reader) error {
		return consumerErr
	})
	rtest.Assert(t, errors.Is(err, consumerErr), "wrong error returned: %v", err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = be.Load(ctx, h, func(rd io.Reader) error {
		t.Error("consumer called with canceled context")
		return nil
	})
	rtest.Assert(t, errors.Is(err, context.Canceled), "wrong error returned: %v", err)
}

func (s *Suite) testList(t *testing.T) {
	be := s.New(t)
	defer func() { rtest.OK(t, be.Close()) }()

	var want []string
	for i := 0; i < 20; i++ {
		h := handle(100 + i)
		save(t, be, h, rtest.Random(i, 10*i))
		want = append(want, h.Name)
	}
	sort.Strings(want)

	var got []string
	sizes := make(map[string]int64)
	rtest.OK(t, be.List(context.TODO(), backend.BlockFile, func(fi backend.FileInfo) error {
		got = append(got, fi.Name)
		sizes[fi.Name] = fi.Size
		return nil
	}))
	sort.Strings(got)
	rtest.Equals(t, want, got)

	for i := 0; i < 20; i++ {
		rtest.Equals(t, int64(10*i), sizes[handle(100+i).Name])
	}

	// errors returned by fn abort the listing
	stop := errors.New("stop")
	calls := 0
	err := be.List(context.TODO(), backend.BlockFile, func(fi backend.FileInfo) error {
		calls++
		return stop
	})
	rtest.Assert(t, errors.Is(err, stop), "wrong error returned: %v", err)
	rtest.Equals(t, 1, calls)
}

func (s *Suite) testRemove(t *testing.T) {
	be := s.New(t)
	defer func() { rtest.OK(t, be.Close()) }()

	h := handle(5)
	save(t, be, h, []byte("foobar"))
	rtest.OK(t, be.Remove(context.TODO(), h))

	_, err := backend.LoadAll(context.TODO(), be, h)
	rtest.Assert(t, be.IsNotExist(err), "removed record still exists: %v", err)

	// the same handle can be saved again
	save(t, be, h, []byte("foobar"))
	buf, err := backend.LoadAll(context.TODO(), be, h)
	rtest.OK(t, err)
	rtest.Equals(t, []byte("foobar"), buf)
}

func (s *Suite) testNotExist(t *testing.T) {
	be := s.New(t)
	defer func() { rtest.OK(t, be.Close()) }()

	h := handle(77)

	err := be.Load(context.TODO(), h, func(rd io.Reader) error { return nil })
	rtest.Assert(t, be.IsNotExist(err), "Load: wrong error %v", err)
	rtest.Assert(t, be.IsPermanentError(err), "Load: not found is not permanent")

	err = be.Remove(context.TODO(), h)
	rtest.Assert(t, be.IsNotExist(err), "Remove: wrong error %v", err)
}

func (s *Suite) testInvalidHandle(t *testing.T) {
	be := s.New(t)
	defer func() { rtest.OK(t, be.Close()) }()

	for _, h := range []backend.Handle{
		{Type: backend.BlockFile, Name: ""},
		{Type: backend.BlockFile, Name: "../../etc/passwd"},
		{Type: 0, Name: "abcdef"},
	} {
		err := be.Save(context.TODO(), h, backend.NewRecordReader([]byte("x"), be.Hasher()))
		rtest.Assert(t, err != nil, "invalid handle %v accepted", h)
	}
}
