package backend

import (
	"context"
	"io"
)

// LoadAll returns the record stored under h.
func LoadAll(ctx context.Context, be Backend, h Handle) ([]byte, error) {
	var buf []byte
	err := be.Load(ctx, h, func(rd io.Reader) error {
		// a retried attempt replaces what an earlier one read
		var err error
		buf, err = io.ReadAll(rd)
		return err
	})
	if err != nil {
		return nil, err
	}
	return buf, nil
}
