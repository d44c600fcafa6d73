package index

import (
	"path/filepath"
	"testing"

	rtest "github.com/enbox/enbox/internal/test"
)

// TestOpen returns a new index in a temporary directory. The index is
// closed when the test finishes.
func TestOpen(t testing.TB) *Index {
	idx, err := Open(filepath.Join(rtest.TempDir(t), "index.db"), Options{NoSync: true})
	rtest.OK(t, err)
	t.Cleanup(func() {
		rtest.OK(t, idx.Close())
	})
	return idx
}
