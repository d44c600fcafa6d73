package ui

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/briandowns/spinner"
)

// Progress shows a spinner with a byte counter while a blob is imported or
// exported. Without a terminal it prints nothing.
type Progress struct {
	description string
	total       int64
	current     atomic.Int64
	start       time.Time
	s           *spinner.Spinner
}

// NewProgress starts a progress indicator. total may be zero when the size
// is unknown.
func (p *Printer) NewProgress(description string, total int64) *Progress {
	pr := &Progress{
		description: description,
		total:       total,
		start:       time.Now(),
	}
	if !p.tty || p.json || p.verbosity == 0 {
		return pr
	}

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(p.stderr))
	_ = s.Color("cyan")
	s.Suffix = " " + description
	pr.s = s
	s.Start()
	return pr
}

// Set records that n bytes have been processed so far.
func (pr *Progress) Set(n int64) {
	pr.current.Store(n)
	if pr.s == nil {
		return
	}

	pr.s.Lock()
	pr.s.Suffix = " " + pr.status()
	pr.s.Unlock()
}

func (pr *Progress) status() string {
	n := pr.current.Load()
	s := fmt.Sprintf("%s %s", pr.description, FormatBytes(uint64(n)))
	if pr.total > 0 {
		s += fmt.Sprintf(" / %s (%s)", FormatBytes(uint64(pr.total)), FormatPercent(uint64(n), uint64(pr.total)))
	}
	return s + " " + FormatDuration(time.Since(pr.start))
}

// Done stops the spinner and leaves msg on the line it occupied.
func (pr *Progress) Done(msg string) {
	if pr.s == nil {
		return
	}
	if msg != "" {
		pr.s.FinalMSG = msg + "\n"
	}
	pr.s.Stop()
}
