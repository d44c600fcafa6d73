// Package userconfig loads per-user defaults for the enbox command line from
// a JSON file that may contain comments and trailing commas.
package userconfig

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/tidwall/jsonc"

	"github.com/enbox/enbox/internal/debug"
	"github.com/enbox/enbox/internal/errors"
	"github.com/enbox/enbox/internal/repository"
)

// FileName is the name of the file below the user's config directory.
const FileName = "config.jsonc"

// Config holds defaults for global flags. Empty fields are unset.
type Config struct {
	Repository  string                      `json:"repository"`
	Email       string                      `json:"email"`
	ChunkSize   string                      `json:"chunk_size"`
	Compression *repository.CompressionMode `json:"compression"`
}

// DefaultPath returns $XDG_CONFIG_HOME/enbox/config.jsonc, falling back to
// the platform's user config directory.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", errors.Wrap(err, "UserConfigDir")
	}
	return filepath.Join(dir, "enbox", FileName), nil
}

// Parse decodes a config document. Unknown fields are rejected so that typos
// do not silently fall back to defaults.
func Parse(data []byte) (Config, error) {
	var cfg Config
	dec := json.NewDecoder(bytes.NewReader(jsonc.ToJSON(data)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, errors.Wrap(err, "parsing config")
	}
	return cfg, nil
}

// Load reads the config at path. A missing file yields an empty Config.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		debug.Log("no user config at %v", path)
		return Config{}, nil
	}
	if err != nil {
		return Config{}, errors.WithStack(err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return Config{}, errors.Fatalf("%v: %v", path, err)
	}
	debug.Log("loaded user config from %v", path)
	return cfg, nil
}

// String returns the first non-empty value.
func String(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
