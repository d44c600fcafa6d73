package blockstore

import (
	"testing"

	"github.com/enbox/enbox/internal/backend/mem"
	"github.com/enbox/enbox/internal/crypto"
	"github.com/enbox/enbox/internal/index"
)

// TestStore returns a store on an in-memory backend together with the key
// used for it and the backend.
func TestStore(t testing.TB) (*Store, *crypto.Key, *mem.MemoryBackend) {
	be := mem.New()
	key := crypto.NewRandomKey()
	return New(be, index.TestOpen(t), key), key, be
}
