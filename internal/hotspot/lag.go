package hotspot

import (
	"fmt"
	"sort"
	"strconv"

	hserrors "github.com/arkilian/hotspot/internal/errors"
	"github.com/arkilian/hotspot/internal/frame"
	"github.com/arkilian/hotspot/pkg/types"
)

// Lag appends, for every offset k, the values of the row k periods earlier
// within the same hot spot as columns named <col>_lag<k>.
//
// A hot spot is identified by combo_dict, interaction_count and, when
// present, grouped_by_dict. Within a hot spot rows are ordered by their
// time_period_dict values taken in timePeriodCols order, numerically when
// both values are numbers. Rows with no earlier counterpart get nil. The
// base row order is preserved and the input is never modified.
//
// With no timePeriodCols the sorted union of time_period_dict keys is used.
func Lag(t *frame.Table, timePeriodCols []string, offsets []int) (*frame.Table, error) {
	if err := validateOffsets(offsets); err != nil {
		return nil, err
	}
	if missing := t.MissingColumns(InteractionCountColumn, ComboDictColumn, TimePeriodDictColumn); len(missing) > 0 {
		return nil, hserrors.NewConfigError(hserrors.CodeMissingColumns,
			fmt.Sprintf("lag requires an output table with time-period dimensions: missing %v", missing)).
			WithDetails(map[string]interface{}{"missing": missing})
	}

	partitionCols := []string{ComboDictColumn, InteractionCountColumn}
	if t.HasColumn(GroupedByDictColumn) {
		partitionCols = append(partitionCols, GroupedByDictColumn)
	}
	isPartition := make(map[string]bool, len(partitionCols))
	for _, c := range partitionCols {
		isPartition[c] = true
	}
	var lagged []string
	for _, c := range t.Columns() {
		if !isPartition[c] {
			lagged = append(lagged, c)
		}
	}

	periods := make([]types.Dict, t.Len())
	for i := range periods {
		d, err := dictCell(t.Value(i, TimePeriodDictColumn))
		if err != nil {
			return nil, fmt.Errorf("row %d column %s: %w", i, TimePeriodDictColumn, err)
		}
		periods[i] = d
	}
	if len(timePeriodCols) == 0 {
		timePeriodCols = periodKeys(periods)
	}

	// Dicts are keyed by their canonical encoding, which is injective.
	var order []string
	parts := make(map[string][]int)
	for i := 0; i < t.Len(); i++ {
		key, err := partitionKey(t, i, partitionCols)
		if err != nil {
			return nil, err
		}
		if _, ok := parts[key]; !ok {
			order = append(order, key)
		}
		parts[key] = append(parts[key], i)
	}

	// prev[k][i] is the row k positions before row i in its partition, or -1.
	prev := make(map[int][]int, len(offsets))
	for _, k := range offsets {
		p := make([]int, t.Len())
		for i := range p {
			p[i] = -1
		}
		prev[k] = p
	}
	for _, key := range order {
		rows := parts[key]
		sort.SliceStable(rows, func(a, b int) bool {
			return comparePeriods(periods[rows[a]], periods[rows[b]], timePeriodCols) < 0
		})
		for pos, i := range rows {
			for _, k := range offsets {
				if pos-k >= 0 {
					prev[k][i] = rows[pos-k]
				}
			}
		}
	}

	lagIdx := make([]int, len(lagged))
	for n, col := range lagged {
		lagIdx[n], _ = t.ColumnIndex(col)
	}
	columns := t.Columns()
	for _, k := range offsets {
		suffix := "_lag" + strconv.Itoa(k)
		for _, col := range lagged {
			columns = append(columns, col+suffix)
		}
	}

	rows := make([][]interface{}, t.Len())
	for i := range rows {
		row := make([]interface{}, 0, len(columns))
		for j := 0; j < t.Width(); j++ {
			row = append(row, t.Cell(i, j))
		}
		for _, k := range offsets {
			j := prev[k][i]
			for _, c := range lagIdx {
				if j >= 0 {
					row = append(row, t.Cell(j, c))
				} else {
					row = append(row, nil)
				}
			}
		}
		rows[i] = row
	}
	out, err := frame.New(columns, rows)
	if err != nil {
		return nil, hserrors.NewConfigError(hserrors.CodeDuplicateColumns,
			fmt.Sprintf("lag column clashes with an existing column: %v", err))
	}
	return out, nil
}

func validateOffsets(offsets []int) error {
	if len(offsets) == 0 {
		return hserrors.NewConfigError(hserrors.CodeInvalidLag, "at least one lag offset is required")
	}
	seen := make(map[int]bool, len(offsets))
	for _, k := range offsets {
		if k < 1 {
			return hserrors.NewConfigError(hserrors.CodeInvalidLag,
				fmt.Sprintf("lag offsets must be positive integers, got %d", k)).
				WithDetails(map[string]interface{}{"offsets": offsets})
		}
		if seen[k] {
			return hserrors.NewConfigError(hserrors.CodeInvalidLag,
				fmt.Sprintf("duplicate lag offset %d", k)).
				WithDetails(map[string]interface{}{"offsets": offsets})
		}
		seen[k] = true
	}
	return nil
}

func partitionKey(t *frame.Table, i int, cols []string) (string, error) {
	vals := make([]interface{}, len(cols))
	for k, col := range cols {
		v := t.Value(i, col)
		if col == InteractionCountColumn {
			vals[k] = v
			continue
		}
		d, err := dictCell(v)
		if err != nil {
			return "", fmt.Errorf("row %d column %s: %w", i, col, err)
		}
		vals[k] = types.EncodeDict(d)
	}
	return frame.GroupKey(vals), nil
}

func comparePeriods(a, b types.Dict, cols []string) int {
	for _, c := range cols {
		if r := types.CompareNumericStrings(a[c], b[c]); r != 0 {
			return r
		}
	}
	return 0
}

func periodKeys(periods []types.Dict) []string {
	seen := make(map[string]bool)
	var keys []string
	for _, d := range periods {
		for k := range d {
			if !seen[k] {
				seen[k] = true
				keys = append(keys, k)
			}
		}
	}
	sort.Strings(keys)
	return keys
}
