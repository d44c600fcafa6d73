// Package terminal detects terminals and reads interactive input.
package terminal

import (
	"os"

	"golang.org/x/term"
)

// InputIsTerminal returns true if the file descriptor fd is a terminal.
func InputIsTerminal(fd uintptr) bool {
	return term.IsTerminal(int(fd))
}

// OutputIsTerminal returns true if fd is a terminal and output may be
// decorated with colors and status lines.
func OutputIsTerminal(fd uintptr) bool {
	return term.IsTerminal(int(fd)) && os.Getenv("TERM") != "dumb"
}

// StdinIsTerminal returns true if stdin is a terminal.
func StdinIsTerminal() bool {
	return InputIsTerminal(os.Stdin.Fd())
}

// StdoutIsTerminal returns true if stdout is a terminal.
func StdoutIsTerminal() bool {
	return OutputIsTerminal(os.Stdout.Fd())
}

// StderrIsTerminal returns true if stderr is a terminal.
func StderrIsTerminal() bool {
	return OutputIsTerminal(os.Stderr.Fd())
}

// Width returns the number of columns of the terminal fd, or 0.
func Width(fd uintptr) int {
	w, _, err := term.GetSize(int(fd))
	if err != nil {
		return 0
	}
	return w
}
