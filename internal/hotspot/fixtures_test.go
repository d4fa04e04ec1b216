package hotspot

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arkilian/hotspot/internal/aggregator"
	"github.com/arkilian/hotspot/internal/frame"
	"github.com/arkilian/hotspot/pkg/types"
)

// tipsTable has every (day, smoker) pair twice: 16 rows.
func tipsTable() *frame.Table {
	days := []string{"Thur", "Fri", "Sat", "Sun"}
	smokers := []string{"Yes", "No"}
	var rows [][]interface{}
	tip := 1.0
	for _, d := range days {
		for _, s := range smokers {
			for k := 0; k < 2; k++ {
				rows = append(rows, []interface{}{d, s, int64(2 + k), tip})
				tip += 0.5
			}
		}
	}
	return frame.MustNew([]string{"day", "smoker", "size", "tip"}, rows)
}

// weeklyTable has one row per (week, day) for weeks 1, 2 and 10; tip is
// week*10 plus the day's index.
func weeklyTable() *frame.Table {
	var rows [][]interface{}
	for _, w := range []int64{1, 2, 10} {
		for i, d := range []string{"Thur", "Fri"} {
			rows = append(rows, []interface{}{w, d, float64(w*10) + float64(i)})
		}
	}
	return frame.MustNew([]string{"week", "day", "tip"}, rows)
}

func meanTip(t *testing.T) ObjectiveFunc {
	t.Helper()
	fn, err := aggregator.Objective([]aggregator.NamedAgg{
		{Name: "tip_mean", Func: "mean", Column: "tip"},
	})
	require.NoError(t, err)
	return fn
}

func countRows(t *testing.T) ObjectiveFunc {
	t.Helper()
	fn, err := aggregator.Objective([]aggregator.NamedAgg{
		{Name: "rows", Func: "count", Column: "*"},
	})
	require.NoError(t, err)
	return fn
}

func dictAt(t *testing.T, tbl *frame.Table, i int, col string) types.Dict {
	t.Helper()
	d, ok := tbl.Value(i, col).(types.Dict)
	require.Truef(t, ok, "row %d column %s is %T, want types.Dict", i, col, tbl.Value(i, col))
	return d
}

// findRow returns the first row whose combo_dict and time_period_dict equal
// the given dicts. A nil period is not checked.
func findRow(t *testing.T, tbl *frame.Table, combo, period types.Dict) int {
	t.Helper()
	for i := 0; i < tbl.Len(); i++ {
		if !dictAt(t, tbl, i, ComboDictColumn).Equal(combo) {
			continue
		}
		if period != nil && !dictAt(t, tbl, i, TimePeriodDictColumn).Equal(period) {
			continue
		}
		return i
	}
	t.Fatalf("no row with combo %v period %v", combo, period)
	return -1
}
