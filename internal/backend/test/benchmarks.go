package test

import (
	"context"
	"io"
	"testing"

	"github.com/enbox/enbox/internal/backend"
	rtest "github.com/enbox/enbox/internal/test"
)

// BenchmarkSave measures Save for block sized files.
func (s *Suite) BenchmarkSave(b *testing.B) {
	be := s.New(b)
	defer func() { rtest.OK(b, be.Close()) }()

	data := rtest.Random(23, 16<<10)
	b.SetBytes(int64(len(data)))
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		h := handle(i)
		rtest.OK(b, be.Save(context.TODO(), h, backend.NewRecordReader(data, be.Hasher())))
	}
}

// BenchmarkLoad measures Load for a block sized file.
func (s *Suite) BenchmarkLoad(b *testing.B) {
	be := s.New(b)
	defer func() { rtest.OK(b, be.Close()) }()

	data := rtest.Random(23, 16<<10)
	h := handle(1)
	save(b, be, h, data)

	b.SetBytes(int64(len(data)))
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		rtest.OK(b, be.Load(context.TODO(), h, func(rd io.Reader) error {
			_, err := io.Copy(io.Discard, rd)
			return err
		}))
	}
}
