package keyring_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/enbox/enbox/internal/crypto"
	"github.com/enbox/enbox/internal/errors"
	"github.com/enbox/enbox/internal/keyring"
	rtest "github.com/enbox/enbox/internal/test"
)

var testKDFParams = crypto.Params{N: 1024, R: 8, P: 1}

func testOptions() keyring.Options {
	return keyring.Options{WorkFactor: keyring.TestWorkFactor}
}

func TestInitCreatesFiles(t *testing.T) {
	dir := filepath.Join(rtest.TempDir(t), "repo", "nested")

	k, err := keyring.Init(dir, "alice@example.com", testOptions())
	rtest.OK(t, err)
	defer k.Close()

	rtest.Equals(t, filepath.Join(dir, keyring.MarkerDir), k.MarkerPath())
	rtest.Equals(t, "alice@example.com", k.Email())

	for _, name := range []string{"metadata.json", "public.key", "private.key", "revocation.crt"} {
		fi, err := os.Stat(filepath.Join(k.MarkerPath(), name))
		rtest.OK(t, err)
		rtest.Assert(t, fi.Size() > 0, "%v is empty", name)
	}

	priv := rtest.ReadFile(t, filepath.Join(k.MarkerPath(), "private.key"))
	rtest.Assert(t, bytes.HasPrefix(priv, []byte("-----BEGIN AGE ENCRYPTED FILE-----")),
		"private key is not armored: %q", priv[:32])

	pub := rtest.ReadFile(t, filepath.Join(k.MarkerPath(), "public.key"))
	rtest.Assert(t, bytes.Contains(pub, []byte("ENBOX PUBLIC KEY")), "wrong public key block")
	rtest.Assert(t, bytes.Contains(pub, []byte("alice@example.com")), "email missing from public key")
}

func TestInitTwice(t *testing.T) {
	dir := rtest.TempDir(t)

	k, err := keyring.Init(dir, "alice@example.com", testOptions())
	rtest.OK(t, err)
	k.Close()

	_, err = keyring.Init(dir, "bob@example.com", testOptions())
	rtest.ErrorIs(t, err, keyring.ErrAlreadyInitialized)

	// the existing keyring is left untouched
	k, err = keyring.Open(dir)
	rtest.OK(t, err)
	rtest.Equals(t, "alice@example.com", k.Email())
}

func TestInitInvalidDirectory(t *testing.T) {
	file := rtest.WriteFile(t, rtest.TempDir(t), "file", []byte("foo"))

	_, err := keyring.Init(file, "alice@example.com", testOptions())
	rtest.ErrorIs(t, err, keyring.ErrInvalidDirectory)

	_, err = keyring.Open(file)
	rtest.ErrorIs(t, err, keyring.ErrInvalidDirectory)
}

func TestInitInvalidEmail(t *testing.T) {
	dir := rtest.TempDir(t)

	_, err := keyring.Init(dir, "not an address", testOptions())
	rtest.Assert(t, err != nil, "expected error for invalid email")

	_, err = os.Stat(filepath.Join(dir, keyring.MarkerDir))
	rtest.Assert(t, errors.Is(err, os.ErrNotExist), "marker created for invalid email: %v", err)
}

func TestInitFailureRemovesMarker(t *testing.T) {
	dir := rtest.TempDir(t)

	// an out of range work factor lets key sealing fail after the marker exists
	_, err := keyring.Init(dir, "alice@example.com", keyring.Options{WorkFactor: 64})
	rtest.Assert(t, err != nil, "expected error for invalid work factor")
	rtest.Assert(t, errors.IsFatal(err), "expected fatal error, got %v", err)

	_, err = os.Stat(filepath.Join(dir, keyring.MarkerDir))
	rtest.Assert(t, errors.Is(err, os.ErrNotExist), "marker not removed: %v", err)
}

func TestOpenNotInitialized(t *testing.T) {
	dir := rtest.TempDir(t)

	_, err := keyring.Open(dir)
	rtest.ErrorIs(t, err, keyring.ErrNotInitialized)

	_, err = keyring.Open(filepath.Join(dir, "missing"))
	rtest.ErrorIs(t, err, keyring.ErrNotInitialized)
}

func TestUnlock(t *testing.T) {
	k := keyring.TestKeyring(t)
	pub1, err := k.PublicKey()
	rtest.OK(t, err)

	k2, err := keyring.Open(k.Dir())
	rtest.OK(t, err)
	defer k2.Close()

	pub2, err := k2.PublicKey()
	rtest.OK(t, err)
	rtest.Equals(t, pub1.Fingerprint(), pub2.Fingerprint())
	rtest.Equals(t, pub1.Recipient.String(), pub2.Recipient.String())
	rtest.Equals(t, pub1.Email, pub2.Email)
	rtest.Assert(t, pub1.Created.Equal(pub2.Created), "creation time differs: %v != %v", pub1.Created, pub2.Created)

	priv, err := k2.UnlockPrivateKey()
	rtest.OK(t, err)
	rtest.Assert(t, priv.Matches(pub2), "unlocked private key does not match public key")

	again, err := k2.UnlockPrivateKey()
	rtest.OK(t, err)
	rtest.Assert(t, priv == again, "unlocked key was not cached")

	rtest.OK(t, k2.Verify())
}

func TestUnlockTampered(t *testing.T) {
	k := keyring.TestKeyring(t)

	k2, err := keyring.Open(k.Dir())
	rtest.OK(t, err)
	defer k2.Close()

	filename := filepath.Join(k.MarkerPath(), "private.key")
	buf := rtest.ReadFile(t, filename)
	buf = bytes.Replace(buf, []byte("-----END AGE ENCRYPTED FILE-----"), []byte("garbage"), 1)
	rtest.OK(t, os.WriteFile(filename, buf, 0600))

	_, err = k2.UnlockPrivateKey()
	rtest.ErrorIs(t, err, keyring.ErrKeyUnlock)
}

func TestUnlockWrongPassphrase(t *testing.T) {
	k := keyring.TestKeyring(t)

	filename := filepath.Join(k.MarkerPath(), "metadata.json")
	rtest.OK(t, os.WriteFile(filename, []byte(`{"email": "test@example.com", "password": "wrong"}`), 0600))

	k2, err := keyring.Open(k.Dir())
	rtest.OK(t, err)
	defer k2.Close()

	_, err = k2.UnlockPrivateKey()
	rtest.ErrorIs(t, err, keyring.ErrKeyUnlock)
}

func TestUnlockMissingKey(t *testing.T) {
	k := keyring.TestKeyring(t)
	rtest.OK(t, os.Remove(filepath.Join(k.MarkerPath(), "private.key")))

	k2, err := keyring.Open(k.Dir())
	rtest.OK(t, err)
	defer k2.Close()

	_, err = k2.UnlockPrivateKey()
	rtest.ErrorIs(t, err, keyring.ErrKeyUnlock)
}

func TestRevocationCertificate(t *testing.T) {
	k := keyring.TestKeyring(t)

	pub, err := k.PublicKey()
	rtest.OK(t, err)

	cert, err := k.RevocationCertificate()
	rtest.OK(t, err)
	rtest.OK(t, cert.Verify(pub))
	rtest.Equals(t, pub.Fingerprint(), cert.Statement.Fingerprint)

	// a certificate never verifies against a different keypair
	other := keyring.TestKeyring(t)
	otherPub, err := other.PublicKey()
	rtest.OK(t, err)
	rtest.Assert(t, cert.Verify(otherPub) != nil, "certificate verified against a foreign key")
}

func TestDerivedSymmetricKey(t *testing.T) {
	k := keyring.TestKeyring(t)
	salt, err := crypto.NewSalt()
	rtest.OK(t, err)

	key1, err := k.DerivedSymmetricKey(testKDFParams, salt)
	rtest.OK(t, err)
	rtest.Assert(t, key1.Valid(), "derived key is invalid")

	k2, err := keyring.Open(k.Dir())
	rtest.OK(t, err)
	defer k2.Close()

	key2, err := k2.DerivedSymmetricKey(testKDFParams, salt)
	rtest.OK(t, err)
	rtest.Equals(t, key1.EncryptionKey, key2.EncryptionKey)
	rtest.Equals(t, key1.ReferenceKey, key2.ReferenceKey)

	otherSalt, err := crypto.NewSalt()
	rtest.OK(t, err)
	key3, err := k2.DerivedSymmetricKey(testKDFParams, otherSalt)
	rtest.OK(t, err)
	rtest.Assert(t, key3.EncryptionKey != key1.EncryptionKey, "different salts yield the same key")

	k2.Close()
	rtest.Assert(t, !key3.Valid(), "symmetric key not wiped on Close")
}
