package frame

import "github.com/arkilian/hotspot/pkg/types"

// Concat stacks tables vertically. The result has the union of all columns in
// first-seen order; cells of columns a table lacks are nil. Nil tables are
// skipped.
func Concat(tables ...*Table) *Table {
	var columns []string
	seen := make(map[string]bool)
	total := 0
	for _, t := range tables {
		if t == nil {
			continue
		}
		total += len(t.rows)
		for _, c := range t.columns {
			if !seen[c] {
				seen[c] = true
				columns = append(columns, c)
			}
		}
	}

	rows := make([][]interface{}, 0, total)
	for _, t := range tables {
		if t == nil {
			continue
		}
		mapping := make([]int, len(columns))
		for k, c := range columns {
			if j, ok := t.index[c]; ok {
				mapping[k] = j
			} else {
				mapping[k] = -1
			}
		}
		for _, row := range t.rows {
			nr := make([]interface{}, len(columns))
			for k, j := range mapping {
				if j >= 0 {
					nr[k] = row[j]
				}
			}
			rows = append(rows, nr)
		}
	}

	return MustNew(columns, rows)
}

// Stack builds a synthetic time series from t: for i = 1..n the table is
// repeated i times and tagged with i in the named column, and the n stacks
// are concatenated in order.
func (t *Table) Stack(n int, column string) *Table {
	var stacks []*Table
	for i := 1; i <= n; i++ {
		reps := make([]*Table, i)
		for r := range reps {
			reps[r] = t
		}
		stacks = append(stacks, Concat(reps...).WithConstant(column, int64(i)))
	}
	if len(stacks) == 0 {
		return t.Take(nil).WithConstant(column, nil)
	}
	return Concat(stacks...)
}

func formatCell(v interface{}) string {
	return types.FormatValue(v)
}
