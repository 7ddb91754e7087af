package cli

import (
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"golang.org/x/term"
)

const columnGap = 2

var ansiEscape = regexp.MustCompile(`\x1b\[[0-9;]*m`)

// Table buffers rows and writes them column-aligned on Flush. When the
// output is a terminal, wide columns are wrapped to fit its width.
// Headers and a dash divider are written only if there is at least one row,
// so empty tables produce no output.
type Table struct {
	out     io.Writer
	headers []string
	prefix  string
	rows    [][]string
	width   int
}

// NewTable creates a table on stdout with the given column headers.
func NewTable(headers ...string) *Table {
	t := NewTableTo(os.Stdout, headers...)
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil {
		t.width = w
	}
	return t
}

// NewTableTo creates a table writing to w. Wrapping is off until WithWidth.
func NewTableTo(w io.Writer, headers ...string) *Table {
	return &Table{out: w, headers: headers}
}

// WithPrefix sets a string prepended to each line (headers, divider, rows).
// Useful for indenting sub-tables within larger output.
func (t *Table) WithPrefix(prefix string) *Table {
	t.prefix = prefix
	return t
}

// WithWidth sets the line width cells are wrapped to; 0 disables wrapping.
func (t *Table) WithWidth(width int) *Table {
	t.width = width
	return t
}

// Row adds a row. Missing trailing cells are left blank.
func (t *Table) Row(values ...string) {
	row := make([]string, len(t.headers))
	copy(row, values)
	t.rows = append(t.rows, row)
}

// Flush writes the buffered rows. If no rows were added, nothing is printed.
func (t *Table) Flush() {
	if len(t.rows) == 0 {
		return
	}

	widths := make([]int, len(t.headers))
	for i, h := range t.headers {
		widths[i] = visualLen(h)
	}
	for _, row := range t.rows {
		for i, cell := range row {
			if n := visualLen(cell); n > widths[i] {
				widths[i] = n
			}
		}
	}
	if t.width > 0 {
		widths = capWidths(widths, t.headers, t.width, visualLen(t.prefix))
	}

	t.line(widths, t.headers)
	dividers := make([]string, len(t.headers))
	for i, h := range t.headers {
		dividers[i] = strings.Repeat("-", visualLen(h))
	}
	t.line(widths, dividers)

	for _, row := range t.rows {
		cells := make([][]string, len(row))
		height := 1
		for i, cell := range row {
			cells[i] = wrapCell(cell, widths[i])
			if len(cells[i]) > height {
				height = len(cells[i])
			}
		}
		for l := 0; l < height; l++ {
			parts := make([]string, len(row))
			for i := range row {
				if l < len(cells[i]) {
					parts[i] = cells[i][l]
				}
			}
			t.line(widths, parts)
		}
	}
	t.rows = nil
}

func (t *Table) line(widths []int, cells []string) {
	var b strings.Builder
	b.WriteString(t.prefix)
	for i, cell := range cells {
		b.WriteString(cell)
		if i < len(cells)-1 {
			b.WriteString(strings.Repeat(" ", widths[i]-visualLen(cell)+columnGap))
		}
	}
	fmt.Fprintln(t.out, strings.TrimRight(b.String(), " "))
}

// visualLen is the printed width of s, ignoring ANSI color codes.
func visualLen(s string) int {
	return len([]rune(ansiEscape.ReplaceAllString(s, "")))
}

// capWidths shrinks the widest column, one character at a time, until the
// table fits in termWidth or no column can shrink below its header.
func capWidths(widths []int, headers []string, termWidth, prefix int) []int {
	out := make([]int, len(widths))
	copy(out, widths)

	total := func() int {
		sum := prefix + columnGap*(len(out)-1)
		for _, w := range out {
			sum += w
		}
		return sum
	}

	for total() > termWidth {
		widest := -1
		for i, w := range out {
			if w <= visualLen(headers[i]) {
				continue
			}
			if widest < 0 || w > out[widest] {
				widest = i
			}
		}
		if widest < 0 {
			break
		}
		out[widest]--
	}
	return out
}

// wrapCell splits s into lines of at most width characters, breaking at
// spaces and hard-breaking words that are longer than a line. A cell that
// already fits is returned unchanged, color codes included.
func wrapCell(s string, width int) []string {
	if width <= 0 || visualLen(s) <= width {
		return []string{s}
	}

	plain := ansiEscape.ReplaceAllString(s, "")
	var lines []string
	var cur []rune
	for _, word := range strings.Fields(plain) {
		w := []rune(word)
		for len(w) > width {
			if len(cur) > 0 {
				lines = append(lines, string(cur))
				cur = nil
			}
			lines = append(lines, string(w[:width]))
			w = w[width:]
		}
		switch {
		case len(cur) == 0:
			cur = w
		case len(cur)+1+len(w) <= width:
			cur = append(append(cur, ' '), w...)
		default:
			lines = append(lines, string(cur))
			cur = w
		}
	}
	if len(cur) > 0 {
		lines = append(lines, string(cur))
	}
	return lines
}
