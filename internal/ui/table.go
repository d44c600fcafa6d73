package ui

import (
	"bytes"
	"io"
	"strings"
	"text/template"
	"unicode/utf8"
)

// Table collects rows and prints them with aligned columns.
type Table struct {
	columns   []string
	templates []*template.Template
	data      []interface{}
	footer    []string

	CellSeparator string
}

var funcmap = template.FuncMap{
	"bytes": func(n int64) string { return FormatBytes(uint64(n)) },
	"quote": Quote,
}

// NewTable returns an empty table.
func NewTable() *Table {
	return &Table{CellSeparator: "  "}
}

// AddColumn adds a column with the header and a text/template format that is
// executed for every row. AddColumn panics if the format does not compile.
func (t *Table) AddColumn(header, format string) {
	t.columns = append(t.columns, header)
	tmpl, err := template.New("template for " + header).Funcs(funcmap).Parse(format)
	if err != nil {
		panic(err)
	}
	t.templates = append(t.templates, tmpl)
}

// AddRow adds a new row to the table, which is filled with data.
func (t *Table) AddRow(data interface{}) {
	t.data = append(t.data, data)
}

// AddFooter prints line after the table.
func (t *Table) AddFooter(line string) {
	t.footer = append(t.footer, line)
}

func writeLine(w io.Writer, sep string, cells []string, widths []int) error {
	var sb strings.Builder
	for i, c := range cells {
		if i > 0 {
			sb.WriteString(sep)
		}
		sb.WriteString(c)
		if pad := widths[i] - utf8.RuneCountInString(c); pad > 0 {
			sb.WriteString(strings.Repeat(" ", pad))
		}
	}
	_, err := io.WriteString(w, strings.TrimRight(sb.String(), " ")+"\n")
	return err
}

// Write prints the table to w.
func (t *Table) Write(w io.Writer) error {
	columns := len(t.templates)
	if columns == 0 {
		return nil
	}

	rows := make([][]string, 0, len(t.data))
	buf := bytes.NewBuffer(nil)
	for _, data := range t.data {
		row := make([]string, 0, columns)
		for _, tmpl := range t.templates {
			if err := tmpl.Execute(buf, data); err != nil {
				return err
			}
			row = append(row, buf.String())
			buf.Reset()
		}
		rows = append(rows, row)
	}

	widths := make([]int, columns)
	for i, h := range t.columns {
		widths[i] = utf8.RuneCountInString(h)
	}
	for _, row := range rows {
		for i, c := range row {
			if n := utf8.RuneCountInString(c); n > widths[i] {
				widths[i] = n
			}
		}
	}

	total := (columns - 1) * len(t.CellSeparator)
	for _, n := range widths {
		total += n
	}
	sep := strings.Repeat("-", total) + "\n"

	if err := writeLine(w, t.CellSeparator, t.columns, widths); err != nil {
		return err
	}
	if _, err := io.WriteString(w, sep); err != nil {
		return err
	}
	for _, row := range rows {
		if err := writeLine(w, t.CellSeparator, row, widths); err != nil {
			return err
		}
	}
	if _, err := io.WriteString(w, sep); err != nil {
		return err
	}
	for _, line := range t.footer {
		if _, err := io.WriteString(w, line+"\n"); err != nil {
			return err
		}
	}
	return nil
}
