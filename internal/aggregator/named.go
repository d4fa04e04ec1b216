package aggregator

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/arkilian/hotspot/internal/frame"
)

// NamedAgg is one output metric: Func applied to Column, emitted as Name.
// An empty Column (or "*") with Func count counts every row.
type NamedAgg struct {
	Name   string `json:"name" yaml:"name"`
	Func   string `json:"func" yaml:"func"`
	Column string `json:"column" yaml:"column"`
}

var namedAggPattern = regexp.MustCompile(`^\s*([^=\s]+)\s*=\s*([A-Za-z]+)\(\s*([^)]*?)\s*\)\s*$`)

// ParseNamedAgg parses "name=func(column)", e.g. "avg_tip=avg(tip)" or
// "rows=count(*)".
func ParseNamedAgg(s string) (NamedAgg, error) {
	m := namedAggPattern.FindStringSubmatch(s)
	if m == nil {
		return NamedAgg{}, fmt.Errorf("invalid aggregate %q (want name=func(column))", s)
	}
	agg := NamedAgg{Name: m[1], Func: strings.ToLower(m[2]), Column: m[3]}
	if _, err := ParseAggregateType(agg.Func); err != nil {
		return NamedAgg{}, err
	}
	return agg, nil
}

// String renders the aggregate in ParseNamedAgg form.
func (n NamedAgg) String() string {
	col := n.Column
	if col == "" {
		col = "*"
	}
	return fmt.Sprintf("%s=%s(%s)", n.Name, n.Func, col)
}

func (n NamedAgg) countsRows() bool {
	return n.Column == "" || n.Column == "*"
}

// Option adjusts an objective built by Objective.
type Option func(*objective)

// WithRound rounds float results to the given number of decimal places.
func WithRound(places int) Option {
	return func(o *objective) {
		o.round = places
	}
}

type objective struct {
	specs []NamedAgg
	types []AggregateType
	round int
}

// Objective compiles named aggregates into an objective function. The
// returned function emits the grouping columns followed by one column per
// aggregate, one row per group, in group order.
func Objective(specs []NamedAgg, opts ...Option) (func(*frame.Grouped) (*frame.Table, error), error) {
	if len(specs) == 0 {
		return nil, fmt.Errorf("at least one aggregate is required")
	}
	o := &objective{specs: specs, round: -1}
	seen := make(map[string]bool)
	for _, s := range specs {
		if s.Name == "" {
			return nil, fmt.Errorf("aggregate %s has no name", s)
		}
		if seen[s.Name] {
			return nil, fmt.Errorf("duplicate aggregate name %q", s.Name)
		}
		seen[s.Name] = true
		t, err := ParseAggregateType(s.Func)
		if err != nil {
			return nil, err
		}
		o.types = append(o.types, t)
	}
	for _, opt := range opts {
		opt(o)
	}
	return o.apply, nil
}

// ComputeGroupedAggregates computes every aggregate for every group of g.
// aggColIndices maps each aggregate to its argument column index in the
// source table (-1 counts rows).
func ComputeGroupedAggregates(g *frame.Grouped, aggTypes []AggregateType, aggColIndices []int) ([][]*PartialAggregate, error) {
	src := g.Table()
	groups := g.Groups()
	out := make([][]*PartialAggregate, len(groups))

	for gi, grp := range groups {
		aggs := make([]*PartialAggregate, len(aggTypes))
		for i, t := range aggTypes {
			aggs[i] = NewPartialAggregate(t)
		}
		for _, r := range grp.Rows {
			for i, agg := range aggs {
				idx := aggColIndices[i]
				var v interface{} = int64(1)
				if idx >= 0 {
					v = src.Cell(r, idx)
				}
				if err := agg.Accumulate(v); err != nil {
					return nil, err
				}
			}
		}
		out[gi] = aggs
	}
	return out, nil
}

func (o *objective) apply(g *frame.Grouped) (*frame.Table, error) {
	src := g.Table()

	indices := make([]int, len(o.specs))
	var missing []string
	for i, s := range o.specs {
		if s.countsRows() {
			indices[i] = -1
			continue
		}
		idx, ok := src.ColumnIndex(s.Column)
		if !ok {
			missing = append(missing, s.Column)
			continue
		}
		indices[i] = idx
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", frame.ErrColumnNotFound, strings.Join(missing, ", "))
	}

	partials, err := ComputeGroupedAggregates(g, o.types, indices)
	if err != nil {
		return nil, err
	}

	columns := g.Keys()
	for _, s := range o.specs {
		columns = append(columns, s.Name)
	}

	groups := g.Groups()
	rows := make([][]interface{}, len(groups))
	for gi, grp := range groups {
		row := make([]interface{}, 0, len(columns))
		row = append(row, grp.Key...)
		for _, agg := range partials[gi] {
			row = append(row, o.finish(agg.Result()))
		}
		rows[gi] = row
	}
	return frame.New(columns, rows)
}

func (o *objective) finish(v interface{}) interface{} {
	f, ok := v.(float64)
	if !ok || o.round < 0 {
		return v
	}
	scale := math.Pow(10, float64(o.round))
	return math.Round(f*scale) / scale
}
