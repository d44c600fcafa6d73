package ui

import (
	"bytes"
	"strings"
	"testing"

	rtest "github.com/enbox/enbox/internal/test"
)

func TestPrinterVerbosity(t *testing.T) {
	for _, c := range []struct {
		verbosity uint
		want      string
	}{
		{0, "result\n"},
		{1, "result\np\n"},
		{2, "result\np\nv\n"},
		{3, "result\np\nv\nvv\n"},
	} {
		var stdout, stderr bytes.Buffer
		p := NewPrinter(&stdout, &stderr, c.verbosity, false, false)
		p.S("result")
		p.P("p")
		p.V("v")
		p.VV("vv")
		rtest.Equals(t, c.want, stdout.String())
		rtest.Equals(t, "", stderr.String())
	}
}

func TestPrinterErrors(t *testing.T) {
	var stdout, stderr bytes.Buffer
	p := NewPrinter(&stdout, &stderr, 0, false, false)
	p.E("blob %q not found", "a")
	p.W("slow disk")
	rtest.Equals(t, "error: blob \"a\" not found\nwarning: slow disk\n", stderr.String())
	rtest.Equals(t, "", stdout.String())
}

func TestPrinterJSON(t *testing.T) {
	var stdout, stderr bytes.Buffer
	p := NewPrinter(&stdout, &stderr, 3, true, false)
	rtest.Assert(t, p.JSON(), "printer not in JSON mode")
	p.P("hidden")
	p.OK("hidden")
	p.PrintJSON(struct {
		Name string `json:"name"`
	}{"a"})
	rtest.Equals(t, "{\"name\":\"a\"}\n", stdout.String())
}

func TestProgressWithoutTerminal(t *testing.T) {
	var stdout, stderr bytes.Buffer
	p := NewPrinter(&stdout, &stderr, 1, false, false)
	pr := p.NewProgress("importing", 1024)
	pr.Set(512)
	rtest.Assert(t, strings.HasPrefix(pr.status(), "importing 512 B / 1.000 KiB (50.00%)"), "unexpected status %q", pr.status())
	pr.Done("done")
	rtest.Equals(t, "", stderr.String())
}

func TestTable(t *testing.T) {
	tab := NewTable()
	tab.AddColumn("Name", "{{ .Name }}")
	tab.AddColumn("Size", "{{ bytes .Size }}")
	tab.AddRow(struct {
		Name string
		Size int64
	}{"report.pdf", 2048})
	tab.AddRow(struct {
		Name string
		Size int64
	}{"a", 12})
	tab.AddFooter("2 blobs")

	var buf bytes.Buffer
	rtest.OK(t, tab.Write(&buf))

	want := strings.Join([]string{
		"Name        Size",
		"---------------------",
		"report.pdf  2.000 KiB",
		"a           12 B",
		"---------------------",
		"2 blobs",
		"",
	}, "\n")
	rtest.Equals(t, want, buf.String())
}
