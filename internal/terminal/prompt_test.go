package terminal

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	rtest "github.com/enbox/enbox/internal/test"
)

func TestReadLine(t *testing.T) {
	for _, test := range []struct {
		input, want string
	}{
		{"alice@example.com\n", "alice@example.com"},
		{"  bob@example.com \r\n", "bob@example.com"},
		{"no newline", "no newline"},
		{"first\nsecond\n", "first"},
	} {
		var out bytes.Buffer
		line, err := ReadLine(context.TODO(), strings.NewReader(test.input), &out, "email: ")
		rtest.OK(t, err)
		rtest.Equals(t, test.want, line)
		rtest.Equals(t, "email: ", out.String())
	}
}

func TestReadLineEOF(t *testing.T) {
	_, err := ReadLine(context.TODO(), strings.NewReader(""), io.Discard, "")
	rtest.ErrorIs(t, err, io.EOF)
}

func TestReadLineCanceled(t *testing.T) {
	rd, wr := io.Pipe()
	defer func() {
		_ = wr.Close()
	}()

	ctx, cancel := context.WithCancel(context.TODO())
	cancel()

	_, err := ReadLine(ctx, rd, io.Discard, "")
	rtest.ErrorIs(t, err, context.Canceled)
}
