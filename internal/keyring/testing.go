package keyring

import (
	"testing"

	"github.com/enbox/enbox/internal/test"
)

// TestWorkFactor keeps the age scrypt cost low in tests.
const TestWorkFactor = 10

// TestKeyring initializes a keyring in a temporary directory.
func TestKeyring(t testing.TB) *Keyring {
	k, err := Init(test.TempDir(t), "test@example.com", Options{WorkFactor: TestWorkFactor})
	test.OK(t, err)
	t.Cleanup(k.Close)
	return k
}
