// Package table holds the in-memory tabular records the classifier works on:
// CSV-backed tables of spatial units and the numeric feature matrices built from them.
package table

import (
	"github.com/rotisserie/eris"
)

// Table is a column-named set of string records. Numeric views are built on
// demand with Features so the original text (ids, WKT geometry) survives
// untouched through classification and export.
type Table struct {
	Columns []string
	Rows    [][]string

	index map[string]int
}

// New builds a table from a header and rows. Short rows are padded with empty values.
func New(columns []string, rows [][]string) *Table {
	t := &Table{Columns: columns, Rows: rows}
	for i, row := range t.Rows {
		if len(row) < len(columns) {
			padded := make([]string, len(columns))
			copy(padded, row)
			t.Rows[i] = padded
		}
	}
	t.reindex()
	return t
}

func (t *Table) reindex() {
	t.index = make(map[string]int, len(t.Columns))
	for i, c := range t.Columns {
		if _, dup := t.index[c]; !dup {
			t.index[c] = i
		}
	}
}

// Len returns the number of rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// ColumnIndex returns the position of the named column, or -1.
func (t *Table) ColumnIndex(name string) int {
	if t.index == nil {
		t.reindex()
	}
	if i, ok := t.index[name]; ok {
		return i
	}
	return -1
}

// HasColumn reports whether the table has the named column.
func (t *Table) HasColumn(name string) bool {
	return t.ColumnIndex(name) >= 0
}

// Value returns the cell at row for the named column, or "" when the column is absent.
func (t *Table) Value(row int, column string) string {
	i := t.ColumnIndex(column)
	if i < 0 || i >= len(t.Rows[row]) {
		return ""
	}
	return t.Rows[row][i]
}

// Column returns a copy of the named column's values.
func (t *Table) Column(name string) ([]string, error) {
	i := t.ColumnIndex(name)
	if i < 0 {
		return nil, eris.Errorf("table: column %q not found", name)
	}
	out := make([]string, len(t.Rows))
	for r, row := range t.Rows {
		out[r] = row[i]
	}
	return out, nil
}

// SetColumn appends the named column, or overwrites it when it already exists.
func (t *Table) SetColumn(name string, values []string) error {
	if len(values) != len(t.Rows) {
		return eris.Errorf("table: column %q has %d values for %d rows", name, len(values), len(t.Rows))
	}
	if i := t.ColumnIndex(name); i >= 0 {
		for r := range t.Rows {
			t.Rows[r][i] = values[r]
		}
		return nil
	}
	t.Columns = append(t.Columns, name)
	for r := range t.Rows {
		t.Rows[r] = append(t.Rows[r], values[r])
	}
	t.reindex()
	return nil
}

// Clone returns a deep copy.
func (t *Table) Clone() *Table {
	cols := append([]string(nil), t.Columns...)
	rows := make([][]string, len(t.Rows))
	for i, row := range t.Rows {
		rows[i] = append([]string(nil), row...)
	}
	return New(cols, rows)
}

// Head returns a table with at most n leading rows sharing the receiver's cells.
func (t *Table) Head(n int) *Table {
	if n > len(t.Rows) {
		n = len(t.Rows)
	}
	return New(t.Columns, t.Rows[:n])
}

// Select returns the rows at the given positions, in order.
func (t *Table) Select(rows []int) *Table {
	out := make([][]string, len(rows))
	for i, r := range rows {
		out[i] = t.Rows[r]
	}
	return New(t.Columns, out)
}

// Lookup indexes rows by the values of the named column. Later duplicates
// do not replace the first occurrence.
func (t *Table) Lookup(column string) (map[string]int, error) {
	i := t.ColumnIndex(column)
	if i < 0 {
		return nil, eris.Errorf("table: column %q not found", column)
	}
	idx := make(map[string]int, len(t.Rows))
	for r, row := range t.Rows {
		if _, ok := idx[row[i]]; !ok {
			idx[row[i]] = r
		}
	}
	return idx, nil
}
