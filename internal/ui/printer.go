// Package ui renders command output on the console.
package ui

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/fatih/color"
)

// Printer prints messages at different verbosity levels. It is safe for
// concurrent use.
//
// Verbosity 0 is quiet: only errors and command results are printed.
// Verbosity 1 is the default, 2 and 3 add detail.
type Printer struct {
	m         sync.Mutex
	stdout    io.Writer
	stderr    io.Writer
	verbosity uint
	json      bool
	tty       bool

	errColor  *color.Color
	warnColor *color.Color
	okColor   *color.Color
}

// NewPrinter returns a printer writing to stdout and stderr. When tty is
// false, no colors or spinners are written.
func NewPrinter(stdout, stderr io.Writer, verbosity uint, json, tty bool) *Printer {
	p := &Printer{
		stdout:    stdout,
		stderr:    stderr,
		verbosity: verbosity,
		json:      json,
		tty:       tty,
		errColor:  color.New(color.FgRed),
		warnColor: color.New(color.FgYellow),
		okColor:   color.New(color.FgGreen),
	}
	if !tty {
		p.errColor.DisableColor()
		p.warnColor.DisableColor()
		p.okColor.DisableColor()
	} else {
		p.errColor.EnableColor()
		p.warnColor.EnableColor()
		p.okColor.EnableColor()
	}
	return p
}

// JSON reports whether results should be printed as JSON.
func (p *Printer) JSON() bool {
	return p.json
}

// Verbosity returns the configured verbosity.
func (p *Printer) Verbosity() uint {
	return p.verbosity
}

func (p *Printer) print(w io.Writer, msg string, args ...interface{}) {
	p.m.Lock()
	defer p.m.Unlock()

	s := fmt.Sprintf(msg, args...)
	if !strings.HasSuffix(s, "\n") {
		s += "\n"
	}
	_, _ = io.WriteString(w, s)
}

// S prints a command result to stdout, regardless of verbosity.
func (p *Printer) S(msg string, args ...interface{}) {
	p.print(p.stdout, msg, args...)
}

// P prints a message at the default verbosity. Nothing is printed in JSON
// mode, where stdout carries only JSON documents.
func (p *Printer) P(msg string, args ...interface{}) {
	if p.verbosity >= 1 && !p.json {
		p.print(p.stdout, msg, args...)
	}
}

// V prints a message if verbose output was requested.
func (p *Printer) V(msg string, args ...interface{}) {
	if p.verbosity >= 2 && !p.json {
		p.print(p.stdout, msg, args...)
	}
}

// VV prints a message if debug output was requested.
func (p *Printer) VV(msg string, args ...interface{}) {
	if p.verbosity >= 3 && !p.json {
		p.print(p.stdout, msg, args...)
	}
}

// E prints an error to stderr.
func (p *Printer) E(msg string, args ...interface{}) {
	p.print(p.stderr, p.errColor.Sprint("error: ")+msg, args...)
}

// W prints a warning to stderr.
func (p *Printer) W(msg string, args ...interface{}) {
	p.print(p.stderr, p.warnColor.Sprint("warning: ")+msg, args...)
}

// OK prints a success line to stdout at the default verbosity.
func (p *Printer) OK(msg string, args ...interface{}) {
	if p.verbosity >= 1 && !p.json {
		p.print(p.stdout, p.okColor.Sprint("✓ ")+msg, args...)
	}
}

// PrintJSON writes v as a single line JSON document to stdout.
func (p *Printer) PrintJSON(v interface{}) {
	p.m.Lock()
	defer p.m.Unlock()
	if err := json.NewEncoder(p.stdout).Encode(v); err != nil {
		panic(err)
	}
}
