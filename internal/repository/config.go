package repository

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"os"

	"github.com/google/renameio"

	"github.com/enbox/enbox/internal/blob"
	"github.com/enbox/enbox/internal/crypto"
	"github.com/enbox/enbox/internal/debug"
	"github.com/enbox/enbox/internal/errors"
)

const configFile = "config.json"

// RepoVersion is the version written to the config of new repositories.
const RepoVersion = 1

// MinChunkSize is the smallest chunk size a repository accepts. Smaller
// chunks work but waste a block record per few bytes.
const MinChunkSize = 1 << 10

// ValidChunkSize returns an error if size cannot be used as chunk size of a
// repository or an import.
func ValidChunkSize(size int) error {
	if size < MinChunkSize || size > blob.MaxChunkSize {
		return errors.Errorf("invalid chunk size %d, must be between %d and %d", size, MinChunkSize, blob.MaxChunkSize)
	}
	return nil
}

// Config contains the configuration for a repository.
type Config struct {
	Version     uint            `json:"version"`
	ID          string          `json:"id"`
	ChunkSize   int             `json:"chunk_size"`
	Compression CompressionMode `json:"compression"`
	KDF         crypto.Params   `json:"kdf"`
	Salt        []byte          `json:"salt"`
}

// CreateConfig creates a config with a random ID and salt.
func CreateConfig(chunkSize int, compression CompressionMode, params crypto.Params) (Config, error) {
	if err := ValidChunkSize(chunkSize); err != nil {
		return Config{}, err
	}
	if compression >= CompressionInvalid {
		return Config{}, errors.Errorf("invalid compression mode %d", compression)
	}

	salt, err := crypto.NewSalt()
	if err != nil {
		return Config{}, err
	}

	id, err := newRandomID()
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Version:     RepoVersion,
		ID:          id,
		ChunkSize:   chunkSize,
		Compression: compression,
		KDF:         params,
		Salt:        salt,
	}

	debug.Log("new config: version %d, id %v, chunk size %d, compression %v, kdf %+v",
		cfg.Version, cfg.ID, cfg.ChunkSize, &cfg.Compression, cfg.KDF)
	return cfg, nil
}

func newRandomID() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", errors.Wrap(err, "rand.Read")
	}
	return hex.EncodeToString(buf), nil
}

func saveConfig(filename string, cfg Config) error {
	buf, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return errors.Wrap(err, "json.Marshal")
	}
	return errors.WithStack(renameio.WriteFile(filename, append(buf, '\n'), 0600))
}

// loadConfig loads and checks the config of a repository.
func loadConfig(filename string) (Config, error) {
	var cfg Config

	buf, err := os.ReadFile(filename)
	if err != nil {
		return Config{}, errors.WithStack(err)
	}

	if err := json.Unmarshal(buf, &cfg); err != nil {
		return Config{}, errors.Wrapf(err, "parse %v", filename)
	}

	if cfg.Version != RepoVersion {
		return Config{}, errors.Errorf("unsupported repository version %v", cfg.Version)
	}
	if err := ValidChunkSize(cfg.ChunkSize); err != nil {
		return Config{}, errors.Wrap(err, "config")
	}
	if cfg.KDF.N <= 0 || cfg.KDF.R <= 0 || cfg.KDF.P <= 0 {
		return Config{}, errors.Errorf("config: invalid KDF parameters %+v", cfg.KDF)
	}

	return cfg, nil
}
