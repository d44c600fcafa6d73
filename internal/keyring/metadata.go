package keyring

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"os"

	"github.com/google/renameio"

	"github.com/enbox/enbox/internal/errors"
)

// passphraseLength is the number of random bytes of a generated passphrase.
const passphraseLength = 32

// Metadata is stored in metadata.json. The passphrase unlocks the private key
// and seeds the derivation of the symmetric keys.
type Metadata struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func newPassphrase() (string, error) {
	buf := make([]byte, passphraseLength)
	if _, err := rand.Read(buf); err != nil {
		return "", errors.Wrap(err, "rand.Read")
	}
	return hex.EncodeToString(buf), nil
}

func writeMetadata(filename string, m Metadata) error {
	buf, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return errors.Wrap(err, "json.Marshal")
	}
	return errors.WithStack(renameio.WriteFile(filename, append(buf, '\n'), 0600))
}

func readMetadata(filename string) (Metadata, error) {
	var m Metadata

	buf, err := os.ReadFile(filename)
	if err != nil {
		return m, errors.WithStack(err)
	}

	if err := json.Unmarshal(buf, &m); err != nil {
		return m, errors.Wrapf(err, "parse %v", filename)
	}

	if m.Email == "" || m.Password == "" {
		return m, errors.Errorf("%v: email or password missing", filename)
	}

	return m, nil
}
