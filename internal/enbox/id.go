// Package enbox holds the core types shared by the repository layers: the
// content hash that addresses blocks and the references a blob keeps to them.
package enbox

import (
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/enbox/enbox/internal/errors"
)

// idSize contains the size of an ID, in bytes.
const idSize = sha512.Size

// ID is the SHA-512 content hash of a plaintext chunk.
type ID [idSize]byte

// Hash returns the ID for data.
func Hash(data []byte) ID {
	return sha512.Sum512(data)
}

// ParseID converts the given string to an ID.
func ParseID(s string) (ID, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return ID{}, errors.Wrap(err, "hex.DecodeString")
	}

	if len(b) != idSize {
		return ID{}, errors.New("invalid length for hash")
	}

	id := ID{}
	copy(id[:], b)

	return id, nil
}

func (id ID) String() string {
	return hex.EncodeToString(id[:])
}

const shortStr = 4

// Str returns the shortened string version of id.
func (id ID) Str() string {
	if id.IsNull() {
		return "[null]"
	}

	return hex.EncodeToString(id[:shortStr])
}

// IsNull returns true iff id only consists of null bytes.
func (id ID) IsNull() bool {
	var nullID ID

	return id == nullID
}

// Less compares an ID to another other.
func (id ID) Less(other ID) bool {
	for k, b := range id {
		if b == other[k] {
			continue
		}

		return b < other[k]
	}

	return false
}

// MarshalJSON returns the JSON encoding of id.
func (id ID) MarshalJSON() ([]byte, error) {
	return json.Marshal(id.String())
}

// UnmarshalJSON parses the JSON-encoded data and stores the result in id.
func (id *ID) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return errors.Wrap(err, "Unmarshal")
	}

	if len(s) != 2*idSize {
		return fmt.Errorf("invalid length for ID: %d", len(s))
	}

	parsed, err := ParseID(s)
	if err != nil {
		return err
	}
	*id = parsed

	return nil
}
