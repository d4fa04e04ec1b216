// Package aggregator builds objective functions out of named aggregates
// (count, sum, min, max, avg) computed per group of a partitioned table.
package aggregator

import (
	"fmt"
	"strings"

	"github.com/arkilian/hotspot/pkg/types"
)

// AggregateType represents the type of aggregate function.
type AggregateType int

const (
	AggCount AggregateType = iota
	AggSum
	AggMin
	AggMax
	AggAvg
)

var aggregateNames = map[AggregateType]string{
	AggCount: "count",
	AggSum:   "sum",
	AggMin:   "min",
	AggMax:   "max",
	AggAvg:   "avg",
}

// String returns the lower-case function name.
func (a AggregateType) String() string {
	if name, ok := aggregateNames[a]; ok {
		return name
	}
	return fmt.Sprintf("AggregateType(%d)", int(a))
}

// ParseAggregateType converts a function name string to AggregateType.
// "mean" is accepted as an alias for avg.
func ParseAggregateType(name string) (AggregateType, error) {
	switch strings.ToLower(name) {
	case "count":
		return AggCount, nil
	case "sum":
		return AggSum, nil
	case "min":
		return AggMin, nil
	case "max":
		return AggMax, nil
	case "avg", "mean":
		return AggAvg, nil
	default:
		return 0, fmt.Errorf("unknown aggregate function: %s (must be count, sum, min, max, or avg)", name)
	}
}

// PartialAggregate accumulates one aggregate over the rows of one group. For
// AVG both Sum and Count are tracked.
type PartialAggregate struct {
	Type  AggregateType
	Count int64       // row count (used by COUNT and AVG)
	Sum   float64     // running sum (used by SUM and AVG)
	Min   interface{} // current minimum (nil if no rows)
	Max   interface{} // current maximum (nil if no rows)
	IsSet bool        // true once at least one value has been accumulated
}

// NewPartialAggregate creates a new empty partial aggregate of the given type.
func NewPartialAggregate(aggType AggregateType) *PartialAggregate {
	return &PartialAggregate{Type: aggType}
}

// Accumulate adds a single value to the aggregate. nil values are ignored by
// every aggregate. SUM and AVG reject non-numeric values.
func (p *PartialAggregate) Accumulate(value interface{}) error {
	if value == nil {
		return nil
	}

	switch p.Type {
	case AggCount:
		p.Count++
		p.IsSet = true

	case AggSum, AggAvg:
		f, ok := types.ToFloat(value)
		if !ok {
			return fmt.Errorf("%s: non-numeric value %q (%T)", p.Type, types.FormatValue(value), value)
		}
		p.Sum += f
		p.Count++
		p.IsSet = true

	case AggMin:
		if !p.IsSet || types.Compare(value, p.Min) < 0 {
			p.Min = value
		}
		p.Count++
		p.IsSet = true

	case AggMax:
		if !p.IsSet || types.Compare(value, p.Max) > 0 {
			p.Max = value
		}
		p.Count++
		p.IsSet = true
	}
	return nil
}

// Result returns the final value of this aggregate.
func (p *PartialAggregate) Result() interface{} {
	if !p.IsSet {
		if p.Type == AggCount {
			return int64(0)
		}
		return nil
	}

	switch p.Type {
	case AggCount:
		return p.Count
	case AggSum:
		return p.Sum
	case AggMin:
		return p.Min
	case AggMax:
		return p.Max
	case AggAvg:
		if p.Count == 0 {
			return nil
		}
		return p.Sum / float64(p.Count)
	}
	return nil
}
