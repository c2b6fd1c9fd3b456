package ui

import (
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/fatih/color"
	"github.com/spf13/cast"
)

// paint returns a color that prints plainly when noColor is set
func paint(noColor bool, attrs ...color.Attribute) *color.Color {
	c := color.New(attrs...)
	if noColor {
		c.DisableColor()
	}
	return c
}

// Cell formats a table value. Booleans print as yes or no, nil as a dash.
func Cell(v interface{}) string {
	switch v := v.(type) {
	case nil:
		return "-"
	case bool:
		if v {
			return "yes"
		}
		return "no"
	case []string:
		return strings.Join(v, ", ")
	default:
		return cast.ToString(v)
	}
}

// Table renders rows under a header, each column as wide as its widest cell
type Table struct {
	writer  io.Writer
	headers []string
	rows    [][]string
	noColor bool
}

// TableOptions configures table behavior
type TableOptions struct {
	NoColor bool
}

// NewTable creates a new table with the given headers
func NewTable(w io.Writer, headers []string, opts *TableOptions) *Table {
	t := &Table{writer: w, headers: headers}
	if opts != nil {
		t.noColor = opts.NoColor
	}
	return t
}

// AddRow adds a row. Values are formatted with Cell; missing cells print empty.
func (t *Table) AddRow(values ...interface{}) {
	row := make([]string, len(t.headers))
	for i, v := range values {
		if i < len(row) {
			row[i] = Cell(v)
		}
	}
	t.rows = append(t.rows, row)
}

// Render writes the table
func (t *Table) Render() {
	if len(t.headers) == 0 {
		return
	}

	widths := make([]int, len(t.headers))
	for _, row := range append([][]string{t.headers}, t.rows...) {
		for i, cell := range row {
			widths[i] = max(widths[i], utf8.RuneCountInString(cell))
		}
	}

	separator := make([]string, len(widths))
	for i, width := range widths {
		separator[i] = strings.Repeat("─", width)
	}

	t.line(t.headers, widths, paint(t.noColor, color.Bold, color.FgCyan))
	t.line(separator, widths, paint(t.noColor, color.FgHiBlack))
	for _, row := range t.rows {
		t.line(row, widths, nil)
	}
}

// line writes cells padded to widths. The last cell is not padded.
func (t *Table) line(cells []string, widths []int, c *color.Color) {
	var b strings.Builder
	for i, cell := range cells {
		if i > 0 {
			b.WriteString("  ")
		}
		if i < len(cells)-1 {
			cell = padRight(cell, widths[i])
		}
		b.WriteString(cell)
	}
	if c == nil {
		fmt.Fprintln(t.writer, b.String())
		return
	}
	c.Fprintln(t.writer, b.String())
}

func padRight(s string, width int) string {
	if n := utf8.RuneCountInString(s); n < width {
		return s + strings.Repeat(" ", width-n)
	}
	return s
}

// KeyValueTable renders aligned "key: value" lines
type KeyValueTable struct {
	writer  io.Writer
	keys    []string
	values  []string
	noColor bool
}

// NewKeyValueTable creates a new key-value table
func NewKeyValueTable(w io.Writer, noColor bool) *KeyValueTable {
	return &KeyValueTable{writer: w, noColor: noColor}
}

// AddRow adds a key-value pair to the table
func (t *KeyValueTable) AddRow(key string, value interface{}) {
	t.keys = append(t.keys, key+":")
	t.values = append(t.values, Cell(value))
}

// Render renders the key-value table
func (t *KeyValueTable) Render() {
	width := 0
	for _, key := range t.keys {
		width = max(width, utf8.RuneCountInString(key))
	}

	cyan := paint(t.noColor, color.FgCyan)
	for i, key := range t.keys {
		cyan.Fprint(t.writer, padRight(key, width))
		fmt.Fprintf(t.writer, " %s\n", t.values[i])
	}
}

// Header writes title underlined to its width
func Header(w io.Writer, title string, noColor bool) {
	paint(noColor, color.Bold, color.FgCyan).Fprintln(w, title)
	paint(noColor, color.FgHiBlack).Fprintln(w, strings.Repeat("─", utf8.RuneCountInString(title)))
}
