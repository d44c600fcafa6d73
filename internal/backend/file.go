package backend

import (
	"encoding/hex"
	"fmt"

	"github.com/enbox/enbox/internal/errors"
)

// FileType is the type of a file in the backend.
type FileType uint8

// These are the different data types a backend can store.
const (
	BlockFile FileType = 1 + iota
)

func (t FileType) String() string {
	switch t {
	case BlockFile:
		return "block"
	default:
		return fmt.Sprintf("<FileType %d>", t)
	}
}

// Handle is used to store and access data in a backend.
type Handle struct {
	Type FileType
	Name string
}

func (h Handle) String() string {
	name := h.Name
	if len(name) > 10 {
		name = name[:10]
	}
	return fmt.Sprintf("<%s/%s>", h.Type, name)
}

// Valid returns an error if h is not valid. Names are hex encoded storage
// names.
func (h Handle) Valid() error {
	switch h.Type {
	case BlockFile:
	default:
		return errors.Errorf("invalid Type %d", h.Type)
	}

	if len(h.Name) < 2 {
		return errors.Errorf("invalid Name %q", h.Name)
	}

	if _, err := hex.DecodeString(h.Name); err != nil {
		return errors.Errorf("invalid Name %q: not hex encoded", h.Name)
	}

	return nil
}
