package terminal

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
)

// ReadLine prints prompt to out and reads one line from in. Surrounding
// whitespace is removed. If the context is canceled, the function leaks the
// reading goroutine.
func ReadLine(ctx context.Context, in io.Reader, out io.Writer, prompt string) (string, error) {
	done := make(chan struct{})
	var (
		line string
		err  error
	)

	go func() {
		defer close(done)
		if _, err = fmt.Fprint(out, prompt); err != nil {
			return
		}
		line, err = bufio.NewReader(in).ReadString('\n')
		if err == io.EOF && line != "" {
			err = nil
		}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-done:
	}

	if err != nil {
		return "", fmt.Errorf("ReadLine: %w", err)
	}

	return strings.TrimSpace(line), nil
}
