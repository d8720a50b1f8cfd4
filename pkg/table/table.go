// Package table implements the small tab-separated tabular value format
// used to encode spanstore blocks, tablestore row bodies, and the
// mget_t projection of a timestore ring. It is deliberately not a
// general-purpose serialization library: the wire shape is normative
// (spec §3/§8), so a bespoke codec is simpler and more precise than
// reaching for an external format.
package table

import (
	"strconv"
	"strings"
)

// Table is a header (column names plus an optional info/type row) and a
// list of rows, each a slice of string cells aligned to Columns.
type Table struct {
	Columns []string
	Info    []string
	Rows    [][]string
}

// New returns an empty table with the given column names.
func New(columns []string) *Table {
	return &Table{Columns: append([]string(nil), columns...)}
}

// ColumnCount returns the number of columns in the table's schema.
func (t *Table) ColumnCount() int { return len(t.Columns) }

// SameColumns reports whether two tables have identical column name
// sequences, in order. Used to decide tablestore span continuation.
func (t *Table) SameColumns(other *Table) bool {
	if other == nil || len(t.Columns) != len(other.Columns) {
		return false
	}
	for i, c := range t.Columns {
		if other.Columns[i] != c {
			return false
		}
	}
	return true
}

// Header renders the column-names row plus optional info row(s),
// separated by newlines: this is the exact header_blob format spec.md
// describes for a span.
func (t *Table) Header() string {
	var b strings.Builder
	b.WriteString(strings.Join(t.Columns, "\t"))
	if len(t.Info) > 0 {
		b.WriteByte('\n')
		b.WriteString(strings.Join(t.Info, "\t"))
	}
	return b.String()
}

// Body renders the data rows as tab-separated fields, newline-separated
// rows, with no trailing newline.
func (t *Table) Body() string {
	lines := make([]string, len(t.Rows))
	for i, row := range t.Rows {
		lines[i] = strings.Join(row, "\t")
	}
	return strings.Join(lines, "\n")
}

// ParseHeader splits a stored header blob into column names and an
// optional info row.
func ParseHeader(header string) (columns, info []string) {
	lines := strings.SplitN(header, "\n", 2)
	columns = splitTab(lines[0])
	if len(lines) == 2 {
		info = splitTab(lines[1])
	}
	return columns, info
}

// ParseBody parses a body string (as produced by Body) against an
// already-known header, producing rows padded or truncated to the
// column count is NOT performed here: callers needing union semantics
// use Union below.
func ParseBody(columns, info []string, body string) *Table {
	t := &Table{Columns: columns, Info: info}
	if body == "" {
		return t
	}
	for _, line := range strings.Split(body, "\n") {
		t.Rows = append(t.Rows, splitTab(line))
	}
	return t
}

// ParseText parses the full text form used by tab_put_text: a column
// names line, an info line, and one or more data lines, each tab
// separated and newline delimited. This is the format spec.md's
// scenario 2 end-to-end example uses literally.
func ParseText(text string) (*Table, error) {
	lines := strings.Split(text, "\n")
	if len(lines) < 2 {
		return nil, errInvalidText
	}
	columns := splitTab(lines[0])
	info := splitTab(lines[1])
	t := &Table{Columns: columns, Info: info}
	for _, line := range lines[2:] {
		if line == "" {
			continue
		}
		t.Rows = append(t.Rows, splitTab(line))
	}
	return t, nil
}

var errInvalidText = tableError("table text must have at least a column-names row and an info row")

type tableError string

func (e tableError) Error() string { return string(e) }

func splitTab(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, "\t")
}

// Union appends the rows of src into dst, growing dst's column set to
// include any column present in src but absent from dst, and filling
// cells the source table doesn't have with the empty-string NULL
// sentinel this package uses throughout.
func Union(dst *Table, src *Table) *Table {
	if dst == nil {
		dst = &Table{Columns: append([]string(nil), src.Columns...)}
	}
	colIndex := make(map[string]int, len(dst.Columns))
	for i, c := range dst.Columns {
		colIndex[c] = i
	}
	for _, c := range src.Columns {
		if _, ok := colIndex[c]; !ok {
			colIndex[c] = len(dst.Columns)
			dst.Columns = append(dst.Columns, c)
			for i, row := range dst.Rows {
				dst.Rows[i] = append(row, "")
			}
		}
	}
	for _, srow := range src.Rows {
		row := make([]string, len(dst.Columns))
		for i, c := range src.Columns {
			if i >= len(srow) {
				continue
			}
			row[colIndex[c]] = srow[i]
		}
		dst.Rows = append(dst.Rows, row)
	}
	return dst
}

// FormatInt64 and ParseInt64 are small helpers kept here so every layer
// renders sequence/time cells identically.
func FormatInt64(v int64) string { return strconv.FormatInt(v, 10) }

func ParseInt64(s string) (int64, error) { return strconv.ParseInt(s, 10, 64) }
