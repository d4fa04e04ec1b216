package hotspot

import (
	"fmt"
	"sort"
	"strings"

	"github.com/arkilian/hotspot/internal/combos"
	hserrors "github.com/arkilian/hotspot/internal/errors"
)

// OverallColumn is the synthetic constant column the whole-dataset
// combination groups by. Its value on every row is its own name.
const OverallColumn = "Overall"

// EnrichedCombination is a target combination prefixed with the fixed
// dimensions every group is also split by.
type EnrichedCombination struct {
	GroupedBy  []string
	TimePeriod []string
	Targets    []string
}

// IsOverall reports whether this is the whole-dataset combination.
func (c EnrichedCombination) IsOverall() bool {
	return len(c.Targets) == 0
}

// Depth is the number of target columns, the row's interaction_count.
func (c EnrichedCombination) Depth() int {
	return len(c.Targets)
}

// Fixed returns the grouped-by columns followed by the time-period columns.
func (c EnrichedCombination) Fixed() []string {
	fixed := make([]string, 0, len(c.GroupedBy)+len(c.TimePeriod))
	fixed = append(fixed, c.GroupedBy...)
	return append(fixed, c.TimePeriod...)
}

// Columns returns the full grouping column list: fixed dimensions, then the
// targets, or OverallColumn for the whole-dataset combination.
func (c EnrichedCombination) Columns() []string {
	cols := c.Fixed()
	if c.IsOverall() {
		return append(cols, OverallColumn)
	}
	return append(cols, c.Targets...)
}

// String renders the combination's full grouping column list.
func (c EnrichedCombination) String() string {
	return strings.Join(c.Columns(), ",")
}

// Enrich prefixes every combination with the grouped-by then time-period
// columns. With includeOverall the whole-dataset combination comes first.
func Enrich(cs []combos.Combination, groupedBy, timePeriod []string, includeOverall bool) ([]EnrichedCombination, error) {
	var targets []string
	for _, c := range cs {
		targets = append(targets, c...)
	}
	if err := checkDimensions(combos.Unique(targets), groupedBy, timePeriod); err != nil {
		return nil, err
	}

	gb := append([]string(nil), groupedBy...)
	tp := append([]string(nil), timePeriod...)

	out := make([]EnrichedCombination, 0, len(cs)+1)
	if includeOverall {
		out = append(out, EnrichedCombination{GroupedBy: gb, TimePeriod: tp})
	}
	for _, c := range cs {
		out = append(out, EnrichedCombination{
			GroupedBy:  gb,
			TimePeriod: tp,
			Targets:    append([]string(nil), c...),
		})
	}
	return out, nil
}

// checkDimensions validates that targets, grouped-by and time-period columns
// are each duplicate-free, pairwise disjoint, and never the reserved
// OverallColumn.
func checkDimensions(targets, groupedBy, timePeriod []string) error {
	named := []struct {
		name string
		cols []string
	}{
		{"target", targets},
		{"grouped-by", groupedBy},
		{"time-period", timePeriod},
	}

	owner := make(map[string]string)
	var overlaps []string
	for _, set := range named {
		if dups := combos.Duplicates(set.cols); len(dups) > 0 {
			return hserrors.NewConfigError(hserrors.CodeDuplicateColumns,
				fmt.Sprintf("duplicate %s columns: %s", set.name, strings.Join(dups, ", "))).
				WithDetails(map[string]interface{}{"duplicates": dups})
		}
		for _, c := range set.cols {
			if c == OverallColumn {
				return hserrors.NewConfigError(hserrors.CodeInvalidConfig,
					fmt.Sprintf("%q is reserved and cannot be used as a %s column", OverallColumn, set.name))
			}
			if prev, ok := owner[c]; ok {
				overlaps = append(overlaps, fmt.Sprintf("%s (%s and %s)", c, prev, set.name))
				continue
			}
			owner[c] = set.name
		}
	}
	if len(overlaps) > 0 {
		sort.Strings(overlaps)
		return hserrors.NewConfigError(hserrors.CodeOverlappingDimensions,
			"grouped-by, time-period and target columns must be disjoint: "+strings.Join(overlaps, ", ")).
			WithDetails(map[string]interface{}{"overlapping": overlaps})
	}
	return nil
}
