package repository

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/enbox/enbox/internal/crypto"
	"github.com/enbox/enbox/internal/keyring"
	"github.com/enbox/enbox/internal/test"
)

var testKDFParams = crypto.Params{
	N: 128,
	R: 1,
	P: 1,
}

type logger interface {
	Logf(format string, args ...interface{})
}

// TestUseLowSecurityKDFParameters configures low-security KDF parameters and
// a cheap private key work factor for testing.
func TestUseLowSecurityKDFParameters(t logger) {
	t.Logf("using low-security KDF parameters for test")
	Params = &testKDFParams
	keyWorkFactor = keyring.TestWorkFactor
}

// TestRepository initializes a repository in a temporary directory. It is
// closed when the test finishes.
func TestRepository(t testing.TB) *Repository {
	t.Helper()
	TestUseLowSecurityKDFParameters(t)

	dir := filepath.Join(test.TempDir(t), "repo")
	repo, err := Init(context.TODO(), dir, "test@example.com", InitOptions{
		Options: Options{NoSync: true},
	})
	if err != nil {
		t.Fatalf("TestRepository(): initialize repo failed: %v", err)
	}

	t.Cleanup(func() {
		_ = repo.Close()
	})
	return repo
}

// TestOpen opens the repository at dir with test settings.
func TestOpen(t testing.TB, dir string) *Repository {
	t.Helper()

	repo, err := Open(context.TODO(), dir, Options{NoSync: true})
	test.OK(t, err)

	t.Cleanup(func() {
		_ = repo.Close()
	})
	return repo
}
