// Package frame provides the in-memory table engine the hot spot analysis runs
// on: named columns of arbitrary cell types, group-by partitioning with group
// sizes, sampling, sorting, and concatenation.
//
// Tables are immutable once built. Every operation returns a new Table; rows
// may be shared between tables and must never be written to.
package frame

import (
	"errors"
	"fmt"
	"math/rand"
	"strings"
)

// Common errors for table operations.
var (
	ErrColumnNotFound  = errors.New("column not found")
	ErrDuplicateColumn = errors.New("duplicate column")
	ErrRowWidth        = errors.New("row width does not match columns")
)

// Table is an ordered set of named columns with row-major storage.
type Table struct {
	columns []string
	index   map[string]int
	rows    [][]interface{}
}

// New creates a table. The table takes ownership of rows.
func New(columns []string, rows [][]interface{}) (*Table, error) {
	index := make(map[string]int, len(columns))
	for i, c := range columns {
		if _, dup := index[c]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateColumn, c)
		}
		index[c] = i
	}
	for i, row := range rows {
		if len(row) != len(columns) {
			return nil, fmt.Errorf("%w: row %d has %d cells, want %d", ErrRowWidth, i, len(row), len(columns))
		}
	}
	if rows == nil {
		rows = [][]interface{}{}
	}
	return &Table{
		columns: append([]string(nil), columns...),
		index:   index,
		rows:    rows,
	}, nil
}

// MustNew is like New but panics on error. Intended for literals in tests
// and fixed-shape results.
func MustNew(columns []string, rows [][]interface{}) *Table {
	t, err := New(columns, rows)
	if err != nil {
		panic(err)
	}
	return t
}

// Empty creates a table with the given columns and no rows.
func Empty(columns ...string) *Table {
	return MustNew(columns, nil)
}

// Columns returns the column names in order.
func (t *Table) Columns() []string {
	return append([]string(nil), t.columns...)
}

// Len returns the number of rows.
func (t *Table) Len() int {
	return len(t.rows)
}

// Width returns the number of columns.
func (t *Table) Width() int {
	return len(t.columns)
}

// HasColumn reports whether the table has the named column.
func (t *Table) HasColumn(name string) bool {
	_, ok := t.index[name]
	return ok
}

// ColumnIndex returns the position of the named column.
func (t *Table) ColumnIndex(name string) (int, bool) {
	i, ok := t.index[name]
	return i, ok
}

// MissingColumns returns the names from cols that the table lacks, in the
// order given.
func (t *Table) MissingColumns(cols ...string) []string {
	var missing []string
	for _, c := range cols {
		if !t.HasColumn(c) {
			missing = append(missing, c)
		}
	}
	return missing
}

// Row returns a copy of row i.
func (t *Table) Row(i int) []interface{} {
	return append([]interface{}(nil), t.rows[i]...)
}

// Cell returns the cell at row i, column position j.
func (t *Table) Cell(i, j int) interface{} {
	return t.rows[i][j]
}

// Value returns the cell at row i in the named column, or nil when the column
// does not exist.
func (t *Table) Value(i int, column string) interface{} {
	j, ok := t.index[column]
	if !ok {
		return nil
	}
	return t.rows[i][j]
}

// Column returns a copy of the named column's cells.
func (t *Table) Column(name string) ([]interface{}, error) {
	j, ok := t.index[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrColumnNotFound, name)
	}
	out := make([]interface{}, len(t.rows))
	for i, row := range t.rows {
		out[i] = row[j]
	}
	return out, nil
}

// WithColumn returns a table with the named column set to values, replacing
// an existing column in place or appending a new one.
func (t *Table) WithColumn(name string, values []interface{}) (*Table, error) {
	if len(values) != len(t.rows) {
		return nil, fmt.Errorf("%w: column %q has %d values, table has %d rows", ErrRowWidth, name, len(values), len(t.rows))
	}

	columns := t.columns
	j, exists := t.index[name]
	if !exists {
		columns = append(t.Columns(), name)
		j = len(columns) - 1
	}

	rows := make([][]interface{}, len(t.rows))
	for i, row := range t.rows {
		nr := make([]interface{}, len(columns))
		copy(nr, row)
		nr[j] = values[i]
		rows[i] = nr
	}
	return New(columns, rows)
}

// WithConstant returns a table with the named column set to v on every row.
func (t *Table) WithConstant(name string, v interface{}) *Table {
	values := make([]interface{}, len(t.rows))
	for i := range values {
		values[i] = v
	}
	out, _ := t.WithColumn(name, values)
	return out
}

// Select returns a table with only the named columns, in the given order.
func (t *Table) Select(cols ...string) (*Table, error) {
	if missing := t.MissingColumns(cols...); len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrColumnNotFound, strings.Join(missing, ", "))
	}
	idx := make([]int, len(cols))
	for i, c := range cols {
		idx[i] = t.index[c]
	}
	rows := make([][]interface{}, len(t.rows))
	for i, row := range t.rows {
		nr := make([]interface{}, len(idx))
		for k, j := range idx {
			nr[k] = row[j]
		}
		rows[i] = nr
	}
	return New(cols, rows)
}

// Drop returns a table without the named columns. Unknown names are ignored.
func (t *Table) Drop(cols ...string) *Table {
	drop := make(map[string]bool, len(cols))
	for _, c := range cols {
		drop[c] = true
	}
	var keep []string
	for _, c := range t.columns {
		if !drop[c] {
			keep = append(keep, c)
		}
	}
	out, _ := t.Select(keep...)
	return out
}

// Filter returns the rows for which keep returns true, in order.
func (t *Table) Filter(keep func(i int) bool) *Table {
	var idx []int
	for i := range t.rows {
		if keep(i) {
			idx = append(idx, i)
		}
	}
	return t.Take(idx)
}

// Take returns the rows at the given positions, in the given order.
func (t *Table) Take(idx []int) *Table {
	rows := make([][]interface{}, len(idx))
	for k, i := range idx {
		rows[k] = t.rows[i]
	}
	return &Table{columns: t.columns, index: t.index, rows: rows}
}

// Head returns the first n rows.
func (t *Table) Head(n int) *Table {
	if n < 0 || n >= len(t.rows) {
		return t
	}
	return &Table{columns: t.columns, index: t.index, rows: t.rows[:n]}
}

// Sample draws n rows using rng. Rows are drawn without replacement unless
// the table has fewer than n rows, in which case they are drawn with
// replacement. Sampling an empty table yields an empty table.
func (t *Table) Sample(n int, rng *rand.Rand) *Table {
	if n <= 0 || len(t.rows) == 0 {
		return t.Take(nil)
	}
	idx := make([]int, n)
	if n > len(t.rows) {
		for i := range idx {
			idx[i] = rng.Intn(len(t.rows))
		}
	} else {
		copy(idx, rng.Perm(len(t.rows))[:n])
	}
	return t.Take(idx)
}

// String renders the table as tab-separated text with a header line.
func (t *Table) String() string {
	var b strings.Builder
	b.WriteString(strings.Join(t.columns, "\t"))
	for _, row := range t.rows {
		b.WriteByte('\n')
		for j, v := range row {
			if j > 0 {
				b.WriteByte('\t')
			}
			b.WriteString(formatCell(v))
		}
	}
	return b.String()
}
