package repository

import (
	"github.com/enbox/enbox/internal/block"
	"github.com/enbox/enbox/internal/errors"
)

// CompressionMode configures if and how blocks are compressed.
type CompressionMode uint

// Constants for the different compression levels.
const (
	CompressionAuto    CompressionMode = 0
	CompressionOff     CompressionMode = 1
	CompressionMax     CompressionMode = 2
	CompressionFastest CompressionMode = 3
	CompressionBetter  CompressionMode = 4
	CompressionInvalid CompressionMode = 5
)

// Set implements the method needed for pflag command flag parsing.
func (c *CompressionMode) Set(s string) error {
	switch s {
	case "auto":
		*c = CompressionAuto
	case "off":
		*c = CompressionOff
	case "max":
		*c = CompressionMax
	case "fastest":
		*c = CompressionFastest
	case "better":
		*c = CompressionBetter
	default:
		*c = CompressionInvalid
		return errors.Errorf("invalid compression mode %q, must be one of (auto|off|fastest|better|max)", s)
	}

	return nil
}

func (c *CompressionMode) String() string {
	switch *c {
	case CompressionAuto:
		return "auto"
	case CompressionOff:
		return "off"
	case CompressionMax:
		return "max"
	case CompressionFastest:
		return "fastest"
	case CompressionBetter:
		return "better"
	default:
		return "invalid"
	}
}

// Type returns the type name for pflag.
func (c *CompressionMode) Type() string {
	return "mode"
}

// MarshalText stores the mode by name in config.json.
func (c CompressionMode) MarshalText() ([]byte, error) {
	if c >= CompressionInvalid {
		return nil, errors.Errorf("invalid compression mode %d", c)
	}
	return []byte(c.String()), nil
}

// UnmarshalText parses a mode name.
func (c *CompressionMode) UnmarshalText(text []byte) error {
	return c.Set(string(text))
}

// blockMode maps the mode to the block compression it selects.
func (c CompressionMode) blockMode() block.Mode {
	switch c {
	case CompressionOff:
		return block.ModeOff
	case CompressionFastest:
		return block.ModeFastest
	case CompressionBetter:
		return block.ModeBetter
	case CompressionMax:
		return block.ModeMax
	default:
		return block.ModeAuto
	}
}
