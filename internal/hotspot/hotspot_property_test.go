package hotspot

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/arkilian/hotspot/internal/combos"
	"github.com/arkilian/hotspot/internal/frame"
	"github.com/arkilian/hotspot/pkg/types"
)

var propertyColumns = []string{"a", "b", "c"}

// randomTable builds a table from cell codes: each row uses three codes as
// small categorical values and one as the measure.
func randomTable(codes []int) *frame.Table {
	var rows [][]interface{}
	for i := 0; i+3 < len(codes); i += 4 {
		rows = append(rows, []interface{}{
			fmt.Sprintf("a%d", codes[i]%3),
			int64(codes[i+1] % 2),
			codes[i+2]%4 == 0,
			float64(codes[i+3]),
		})
	}
	if len(rows) == 0 {
		rows = append(rows, []interface{}{"a0", int64(0), true, 1.0})
	}
	return frame.MustNew(append(append([]string(nil), propertyColumns...), "m"), rows)
}

func distinctTuples(t *frame.Table, cols []string) int {
	g, err := t.GroupBy(cols...)
	if err != nil {
		return -1
	}
	return g.Len()
}

// TestProperty_OutputLaws validates the output row count and the combo_dict
// key law on random datasets.
func TestProperty_OutputLaws(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	objective := func(g *frame.Grouped) (*frame.Table, error) {
		return frame.MustNew(append(g.Keys(), "rows"), sizeRows(g)), nil
	}

	properties.Property("row count is the sum of distinct tuples per combination", prop.ForAll(
		func(codes []int, limit int) bool {
			tbl := randomTable(codes)
			out, err := Run(context.Background(), frame.Plain(tbl), Options{
				TargetCols:       propertyColumns,
				InteractionLimit: limit,
			}, objective)
			if err != nil {
				return false
			}
			cs, _ := combos.Generate(propertyColumns, limit)
			want := 0
			for _, c := range cs {
				want += distinctTuples(tbl, c)
			}
			return out.Len() == want
		},
		gen.SliceOf(gen.IntRange(0, 20)),
		gen.IntRange(1, 3),
	))

	properties.Property("combo_dict keys equal the row's combination", prop.ForAll(
		func(codes []int) bool {
			a, err := New(frame.Plain(randomTable(codes)), Options{
				TargetCols:       propertyColumns,
				InteractionLimit: 3,
			}, objective)
			if err != nil {
				return false
			}
			out, err := a.Run(context.Background())
			if err != nil {
				return false
			}
			raws, err := a.RawResults()
			if err != nil {
				return false
			}

			// Rows are laid out raw result by raw result.
			i := 0
			for _, raw := range raws {
				want := append([]string(nil), raw.Combination.Targets...)
				sort.Strings(want)
				for r := 0; r < raw.Table.Len(); r++ {
					d, ok := out.Value(i, ComboDictColumn).(types.Dict)
					if !ok || !slices.Equal(d.Keys(), want) {
						return false
					}
					for _, col := range raw.Combination.Targets {
						if d[col] != types.FormatValue(raw.Table.Value(r, col)) {
							return false
						}
					}
					i++
				}
			}
			return i == out.Len()
		},
		gen.SliceOf(gen.IntRange(0, 20)),
	))

	properties.TestingRun(t)
}

func sizeRows(g *frame.Grouped) [][]interface{} {
	rows := make([][]interface{}, 0, g.Len())
	for _, grp := range g.Groups() {
		row := append([]interface{}(nil), grp.Key...)
		rows = append(rows, append(row, int64(len(grp.Rows))))
	}
	return rows
}
