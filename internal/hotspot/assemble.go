package hotspot

import (
	"fmt"

	"github.com/arkilian/hotspot/internal/frame"
	"github.com/arkilian/hotspot/pkg/types"
)

// Output table metadata columns.
const (
	InteractionCountColumn = "interaction_count"
	ComboDictColumn        = "combo_dict"
	GroupedByDictColumn    = "grouped_by_dict"
	TimePeriodDictColumn   = "time_period_dict"
)

// Assemble concatenates raw results into the long-format output table.
//
// Each row is tagged with interaction_count (the number of target columns),
// n_rows, and combo_dict, the coerced identity of its group. Fixed-dimension
// keys are then popped from combo_dict into grouped_by_dict and
// time_period_dict; those columns exist only when the corresponding
// dimensions are configured, and keys a combination never grouped by are
// omitted. Metric columns follow in first-seen order.
func Assemble(raws []RawResult, groupedBy, timePeriod []string) (*frame.Table, error) {
	columns := []string{InteractionCountColumn, frame.SizeColumn, ComboDictColumn}
	if len(groupedBy) > 0 {
		columns = append(columns, GroupedByDictColumn)
	}
	if len(timePeriod) > 0 {
		columns = append(columns, TimePeriodDictColumn)
	}

	metricPos := make(map[string]int)
	for _, raw := range raws {
		if raw.Table == nil {
			return nil, fmt.Errorf("combination [%s] has no result table", raw.Combination)
		}
		for _, col := range metricColumns(raw) {
			if _, ok := metricPos[col]; !ok {
				metricPos[col] = len(columns)
				columns = append(columns, col)
			}
		}
	}

	var rows [][]interface{}
	for _, raw := range raws {
		t := raw.Table
		idCols := raw.Combination.Fixed()
		idCols = append(idCols, raw.Combination.Targets...)
		idIdx := make([]int, len(idCols))
		for k, col := range idCols {
			j, ok := t.ColumnIndex(col)
			if !ok {
				return nil, fmt.Errorf("%w: combination [%s] result lacks %q",
					frame.ErrColumnNotFound, raw.Combination, col)
			}
			idIdx[k] = j
		}
		sizeIdx, ok := t.ColumnIndex(frame.SizeColumn)
		if !ok {
			return nil, fmt.Errorf("%w: combination [%s] result lacks %q",
				frame.ErrColumnNotFound, raw.Combination, frame.SizeColumn)
		}
		metrics := metricColumns(raw)
		depth := int64(raw.Combination.Depth())

		vals := make([]interface{}, len(idIdx))
		for i := 0; i < t.Len(); i++ {
			for k, j := range idIdx {
				vals[k] = t.Cell(i, j)
			}
			combo := types.NewDict(idCols, vals)

			row := make([]interface{}, len(columns))
			row[0] = depth
			row[1] = t.Cell(i, sizeIdx)
			pos := 3
			if len(groupedBy) > 0 {
				row[pos] = combo.Pop(groupedBy)
				pos++
			}
			if len(timePeriod) > 0 {
				row[pos] = combo.Pop(timePeriod)
			}
			row[2] = combo

			for _, col := range metrics {
				row[metricPos[col]] = t.Value(i, col)
			}
			rows = append(rows, row)
		}
	}

	return frame.New(columns, rows)
}

// metricColumns returns the raw result's columns that are neither grouping
// columns nor SizeColumn, in order.
func metricColumns(raw RawResult) []string {
	skip := map[string]bool{frame.SizeColumn: true}
	for _, col := range raw.Combination.Columns() {
		skip[col] = true
	}
	var out []string
	for _, col := range raw.Table.Columns() {
		if !skip[col] {
			out = append(out, col)
		}
	}
	return out
}
