// Package repository composes the keyring, the block store and the blob
// index into a repository on the local filesystem.
package repository

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/enbox/enbox/internal/backend"
	"github.com/enbox/enbox/internal/backend/local"
	"github.com/enbox/enbox/internal/backend/retry"
	"github.com/enbox/enbox/internal/blob"
	"github.com/enbox/enbox/internal/blockstore"
	"github.com/enbox/enbox/internal/crypto"
	"github.com/enbox/enbox/internal/debug"
	"github.com/enbox/enbox/internal/errors"
	"github.com/enbox/enbox/internal/index"
	"github.com/enbox/enbox/internal/keyring"
)

const (
	dataDir   = "data"
	indexFile = "index.db"
)

// openIndex is replaced in tests.
var openIndex = index.Open

var (
	// ErrBlobNotFound is returned when no blob with the given name exists.
	ErrBlobNotFound = errors.New("blob not found")

	// ErrBlobExists is returned by Import when the name is already taken.
	ErrBlobExists = errors.New("blob already exists")
)

// Params tracks the parameters used for the KDF. If not set, they are
// calibrated when a repository is initialized.
var Params *crypto.Params

var (
	// KDFTimeout specifies the maximum runtime for the KDF.
	KDFTimeout = 500 * time.Millisecond

	// KDFMemory limits the memory the KDF is allowed to use.
	KDFMemory = 60
)

// keyWorkFactor is the age work factor used for new private keys, zero
// selects the keyring default.
var keyWorkFactor = 0

// Options configure how a repository is opened.
type Options struct {
	// CacheSize is the size in bytes of the cache for repeated chunks used
	// by Export.
	CacheSize int

	// LockTimeout is how long Open waits for another process to release
	// the index.
	LockTimeout time.Duration

	// RetryTimeout bounds the time spent retrying backend operations.
	RetryTimeout time.Duration

	// Report is called when a backend operation is retried.
	Report func(msg string, err error, d time.Duration)

	// NoSync skips fsync of the index, only for tests.
	NoSync bool
}

// InitOptions configure a new repository.
type InitOptions struct {
	Options

	ChunkSize   int
	Compression CompressionMode
}

// Repository is an open repository.
type Repository struct {
	kr    *keyring.Keyring
	cfg   Config
	key   *crypto.Key
	be    backend.Backend
	idx   *index.Index
	store *blockstore.Store

	cacheSize int

	blobs   *xsync.MapOf[string, *blob.Blob]
	pending *xsync.MapOf[string, struct{}]
}

// Init creates a new repository at dir and returns it opened.
func Init(ctx context.Context, dir, email string, opts InitOptions) (*Repository, error) {
	if opts.ChunkSize == 0 {
		opts.ChunkSize = blob.DefaultChunkSize
	}
	if err := ValidChunkSize(opts.ChunkSize); err != nil {
		return nil, err
	}
	if opts.Compression >= CompressionInvalid {
		return nil, errors.Errorf("invalid compression mode %d", opts.Compression)
	}

	if Params == nil {
		params, err := crypto.Calibrate(KDFTimeout, KDFMemory)
		if err != nil {
			return nil, errors.Wrap(err, "Calibrate")
		}

		Params = &params
		debug.Log("calibrated KDF parameters are %v", Params)
	}

	cfg, err := CreateConfig(opts.ChunkSize, opts.Compression, *Params)
	if err != nil {
		return nil, err
	}

	kr, err := keyring.Init(dir, email, keyring.Options{WorkFactor: keyWorkFactor})
	if err != nil {
		return nil, err
	}

	marker := kr.MarkerPath()
	err = saveConfig(filepath.Join(marker, configFile), cfg)
	if err == nil {
		_, err = local.Create(ctx, local.NewConfig(filepath.Join(marker, dataDir)))
	}
	if err != nil {
		kr.Close()
		removeMarker(marker)
		return nil, errors.Fatalf("initializing repository at %v failed: %v", dir, err)
	}

	// open closes the keyring on error
	repo, err := open(ctx, kr, opts.Options)
	if err != nil {
		removeMarker(marker)
		return nil, err
	}
	return repo, nil
}

func removeMarker(marker string) {
	if err := os.RemoveAll(marker); err != nil {
		debug.Log("removing %v failed: %v", marker, err)
	}
}

// Open opens the repository at dir.
func Open(ctx context.Context, dir string, opts Options) (*Repository, error) {
	kr, err := keyring.Open(dir)
	if err != nil {
		return nil, err
	}
	return open(ctx, kr, opts)
}

func open(ctx context.Context, kr *keyring.Keyring, opts Options) (repo *Repository, err error) {
	marker := kr.MarkerPath()
	defer func() {
		if err != nil {
			kr.Close()
		}
	}()

	cfg, err := loadConfig(filepath.Join(marker, configFile))
	if err != nil {
		return nil, err
	}

	key, err := kr.DerivedSymmetricKey(cfg.KDF, cfg.Salt)
	if err != nil {
		return nil, err
	}

	lo, err := local.Open(ctx, local.NewConfig(filepath.Join(marker, dataDir)))
	if err != nil {
		return nil, err
	}

	if opts.RetryTimeout == 0 {
		opts.RetryTimeout = 15 * time.Minute
	}
	report := opts.Report
	if report == nil {
		report = func(msg string, err error, d time.Duration) {
			debug.Log("%v returned error, retrying after %v: %v", msg, d, err)
		}
	}
	be := retry.New(lo, opts.RetryTimeout, report, func(msg string, retries int) {
		debug.Log("%v operation successful after %d retries", msg, retries)
	})

	idx, err := openIndex(filepath.Join(marker, indexFile), index.Options{
		Timeout: opts.LockTimeout,
		NoSync:  opts.NoSync,
	})
	if err != nil {
		_ = be.Close()
		return nil, err
	}

	repo = &Repository{
		kr:      kr,
		cfg:     cfg,
		key:     key,
		be:      be,
		idx:     idx,
		store:   blockstore.New(be, idx, key),
		blobs:   xsync.NewMapOf[string, *blob.Blob](),
		pending: xsync.NewMapOf[string, struct{}](),

		cacheSize: opts.CacheSize,
	}

	if err := repo.loadBlobs(); err != nil {
		_ = idx.Close()
		_ = be.Close()
		return nil, err
	}

	debug.Log("opened repository %v at %v with %d blobs", cfg.ID, kr.Dir(), repo.blobs.Size())
	return repo, nil
}

// Config returns the repository configuration.
func (r *Repository) Config() Config {
	return r.cfg
}

// Keyring returns the keyring of the repository.
func (r *Repository) Keyring() *keyring.Keyring {
	return r.kr
}

// Dir returns the repository root.
func (r *Repository) Dir() string {
	return r.kr.Dir()
}

// Close releases the index and wipes the key material.
func (r *Repository) Close() error {
	err := errors.Join(r.idx.Close(), r.be.Close())
	r.kr.Close()
	return err
}
