// Package keyring manages the key material of a repository: an age X25519
// keypair with an ed25519 signing key, a revocation certificate and the
// passphrase from which the symmetric repository key is derived.
package keyring

import (
	"encoding/hex"
	"net/mail"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/renameio"

	"github.com/enbox/enbox/internal/crypto"
	"github.com/enbox/enbox/internal/debug"
	"github.com/enbox/enbox/internal/errors"
)

// MarkerDir is the name of the directory below the repository root which
// holds all repository state.
const MarkerDir = ".enbox"

const (
	metadataFile   = "metadata.json"
	publicKeyFile  = "public.key"
	privateKeyFile = "private.key"
	revocationFile = "revocation.crt"
)

// DefaultWorkFactor is the log2 scrypt work factor age uses to protect the
// private key.
const DefaultWorkFactor = 18

var (
	// ErrAlreadyInitialized is returned by Init when the marker directory exists.
	ErrAlreadyInitialized = errors.New("repository already initialized")
	// ErrNotInitialized is returned by Open when the marker directory is missing.
	ErrNotInitialized = errors.New("repository not initialized")
	// ErrInvalidDirectory is returned when the repository path is not a directory.
	ErrInvalidDirectory = errors.New("not a directory")
	// ErrKeyUnlock is returned when the private key cannot be decrypted.
	ErrKeyUnlock = errors.New("unable to unlock private key")
)

// Options configure Init.
type Options struct {
	// WorkFactor is the log2 scrypt work factor for the private key. Zero
	// selects DefaultWorkFactor.
	WorkFactor int
	// Now returns the creation time recorded in the keys. Defaults to time.Now.
	Now func() time.Time
}

// Keyring is the key material of one repository session.
type Keyring struct {
	dir  string
	meta Metadata

	m    sync.Mutex
	pub  *PublicKey
	priv *PrivateKey

	symKey    *crypto.Key
	symParams crypto.Params
	symSalt   string
}

// Init creates the marker directory below dir and writes a freshly generated
// keypair to it.
func Init(dir, email string, opts Options) (*Keyring, error) {
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, errors.Wrapf(err, "invalid email %q", email)
	}

	fi, err := os.Stat(dir)
	switch {
	case errors.Is(err, os.ErrNotExist):
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, errors.WithStack(err)
		}
	case err != nil:
		return nil, errors.WithStack(err)
	case !fi.IsDir():
		return nil, errors.Wrap(ErrInvalidDirectory, dir)
	}

	marker := filepath.Join(dir, MarkerDir)
	if _, err := os.Lstat(marker); err == nil {
		return nil, errors.Wrap(ErrAlreadyInitialized, dir)
	}

	if err := os.Mkdir(marker, 0700); err != nil {
		if errors.Is(err, os.ErrExist) {
			return nil, errors.Wrap(ErrAlreadyInitialized, dir)
		}
		return nil, errors.WithStack(err)
	}

	k, err := initMarker(dir, marker, email, opts)
	if err != nil {
		debug.Log("init of %v failed, removing %v: %v", dir, marker, err)
		if rerr := os.RemoveAll(marker); rerr != nil {
			debug.Log("removing %v failed: %v", marker, rerr)
		}
		return nil, errors.Fatalf("initializing repository at %v failed: %v", dir, err)
	}

	return k, nil
}

func initMarker(dir, marker, email string, opts Options) (*Keyring, error) {
	workFactor := opts.WorkFactor
	if workFactor == 0 {
		workFactor = DefaultWorkFactor
	}
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}

	passphrase, err := newPassphrase()
	if err != nil {
		return nil, err
	}

	priv, err := generatePrivateKey()
	if err != nil {
		return nil, err
	}

	pub := &PublicKey{
		Email:      email,
		Recipient:  priv.Recipient(),
		SigningKey: priv.SigningKey(),
		Created:    now().UTC().Truncate(time.Second),
	}

	sealed, err := priv.seal(passphrase, workFactor)
	if err != nil {
		return nil, err
	}

	cert, err := newRevocationCertificate(priv, pub)
	if err != nil {
		return nil, err
	}
	certData, err := cert.encode()
	if err != nil {
		return nil, err
	}

	files := []struct {
		name string
		data []byte
		perm os.FileMode
	}{
		{privateKeyFile, sealed, 0600},
		{publicKeyFile, pub.encode(), 0644},
		{revocationFile, certData, 0600},
	}
	for _, f := range files {
		if err := renameio.WriteFile(filepath.Join(marker, f.name), f.data, f.perm); err != nil {
			return nil, errors.Wrapf(err, "write %v", f.name)
		}
	}

	meta := Metadata{Email: email, Password: passphrase}
	if err := writeMetadata(filepath.Join(marker, metadataFile), meta); err != nil {
		return nil, err
	}

	debug.Log("initialized keyring at %v, fingerprint %v", marker, pub.Fingerprint())

	return &Keyring{
		dir:  dir,
		meta: meta,
		pub:  pub,
		priv: priv,
	}, nil
}

// Open opens the keyring of the repository at dir. Only the metadata is read,
// keys are loaded on first use.
func Open(dir string) (*Keyring, error) {
	fi, err := os.Stat(dir)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return nil, errors.Wrap(ErrNotInitialized, dir)
	case err != nil:
		return nil, errors.WithStack(err)
	case !fi.IsDir():
		return nil, errors.Wrap(ErrInvalidDirectory, dir)
	}

	marker := filepath.Join(dir, MarkerDir)
	fi, err = os.Stat(marker)
	if errors.Is(err, os.ErrNotExist) || (err == nil && !fi.IsDir()) {
		return nil, errors.Wrap(ErrNotInitialized, dir)
	}
	if err != nil {
		return nil, errors.WithStack(err)
	}

	meta, err := readMetadata(filepath.Join(marker, metadataFile))
	if err != nil {
		return nil, errors.Wrap(err, "read metadata")
	}

	return &Keyring{dir: dir, meta: meta}, nil
}

// Dir returns the repository root.
func (k *Keyring) Dir() string {
	return k.dir
}

// MarkerPath returns the path of the marker directory.
func (k *Keyring) MarkerPath() string {
	return filepath.Join(k.dir, MarkerDir)
}

// Email returns the email address the keypair was created for.
func (k *Keyring) Email() string {
	return k.meta.Email
}

func (k *Keyring) path(name string) string {
	return filepath.Join(k.dir, MarkerDir, name)
}

// PublicKey returns the public key, loading it on first use.
func (k *Keyring) PublicKey() (*PublicKey, error) {
	k.m.Lock()
	defer k.m.Unlock()

	if k.pub != nil {
		return k.pub, nil
	}

	data, err := os.ReadFile(k.path(publicKeyFile))
	if err != nil {
		return nil, errors.WithStack(err)
	}

	pub, err := decodePublicKey(data)
	if err != nil {
		return nil, errors.Wrap(err, publicKeyFile)
	}

	k.pub = pub
	return pub, nil
}

// UnlockPrivateKey decrypts the private key with the stored passphrase. The
// result is cached until Close is called.
func (k *Keyring) UnlockPrivateKey() (*PrivateKey, error) {
	k.m.Lock()
	defer k.m.Unlock()

	if k.priv != nil {
		return k.priv, nil
	}

	data, err := os.ReadFile(k.path(privateKeyFile))
	if err != nil {
		return nil, errors.Wrap(ErrKeyUnlock, err.Error())
	}

	priv, err := openPrivateKey(data, k.meta.Password)
	if err != nil {
		debug.Log("unlocking private key failed: %v", err)
		return nil, errors.Wrap(ErrKeyUnlock, err.Error())
	}

	k.priv = priv
	return priv, nil
}

// RevocationCertificate loads the revocation certificate.
func (k *Keyring) RevocationCertificate() (*RevocationCertificate, error) {
	data, err := os.ReadFile(k.path(revocationFile))
	if err != nil {
		return nil, errors.WithStack(err)
	}

	cert, err := decodeRevocationCertificate(data)
	if err != nil {
		return nil, errors.Wrap(err, revocationFile)
	}
	return cert, nil
}

// Verify unlocks the private key and checks that it matches the public key
// and that the revocation certificate was issued for it.
func (k *Keyring) Verify() error {
	pub, err := k.PublicKey()
	if err != nil {
		return err
	}

	priv, err := k.UnlockPrivateKey()
	if err != nil {
		return err
	}

	if !priv.Matches(pub) {
		return errors.New("private key does not match the public key")
	}

	cert, err := k.RevocationCertificate()
	if err != nil {
		return err
	}

	return cert.Verify(pub)
}

// DerivedSymmetricKey derives the repository key from the passphrase. The key
// for the most recent params and salt is cached until Close is called.
func (k *Keyring) DerivedSymmetricKey(params crypto.Params, salt []byte) (*crypto.Key, error) {
	k.m.Lock()
	defer k.m.Unlock()

	saltHex := hex.EncodeToString(salt)
	if k.symKey != nil && k.symParams == params && k.symSalt == saltHex {
		return k.symKey, nil
	}

	key, err := crypto.KDF(params, salt, k.meta.Password)
	if err != nil {
		return nil, err
	}

	if k.symKey != nil {
		k.symKey.Wipe()
	}
	k.symKey, k.symParams, k.symSalt = key, params, saltHex
	return key, nil
}

// Close wipes all cached key material.
func (k *Keyring) Close() {
	k.m.Lock()
	defer k.m.Unlock()

	if k.priv != nil {
		k.priv.wipe()
		k.priv = nil
	}
	if k.symKey != nil {
		k.symKey.Wipe()
		k.symKey = nil
	}
	k.pub = nil
}
