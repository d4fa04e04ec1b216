package hotspot

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	hserrors "github.com/arkilian/hotspot/internal/errors"
	"github.com/arkilian/hotspot/internal/frame"
	"github.com/arkilian/hotspot/internal/observability"
)

// ObjectiveFunc aggregates a grouped table. It must return one row per group
// carrying every grouping column plus any number of metric columns.
type ObjectiveFunc func(*frame.Grouped) (*frame.Table, error)

// RawResult is the objective's output for one combination with the group
// sizes joined on: grouping columns, SizeColumn, then the metrics.
type RawResult struct {
	Combination EnrichedCombination
	Table       *frame.Table
}

// Sweep steps reported in COMBINATION_FAILED details.
const (
	stepGroup     = "group"
	stepObjective = "objective"
	stepJoin      = "join"
)

// Prepare checks the dataset against the combinations and returns its table
// with the constant OverallColumn added.
func Prepare(ds frame.Dataset, cs []EnrichedCombination) (*frame.Table, error) {
	if ds == nil || ds.Table() == nil {
		return nil, hserrors.NewConfigError(hserrors.CodeEmptyDataset, "dataset is nil")
	}
	t := ds.Table()
	if t.Len() == 0 {
		return nil, hserrors.NewConfigError(hserrors.CodeEmptyDataset, "dataset has no rows")
	}

	seen := make(map[string]bool)
	var required []string
	for _, c := range cs {
		for _, col := range c.Fixed() {
			if !seen[col] {
				seen[col] = true
				required = append(required, col)
			}
		}
		for _, col := range c.Targets {
			if !seen[col] {
				seen[col] = true
				required = append(required, col)
			}
		}
	}
	if missing := t.MissingColumns(required...); len(missing) > 0 {
		return nil, hserrors.NewConfigError(hserrors.CodeMissingColumns,
			fmt.Sprintf("columns not found in dataset: %s (available: %s)",
				strings.Join(missing, ", "), strings.Join(t.Columns(), ", "))).
			WithDetails(map[string]interface{}{
				"missing":   missing,
				"available": t.Columns(),
			})
	}

	return t.WithConstant(OverallColumn, OverallColumn), nil
}

// Probe runs the objective once on a seeded sample of t grouped by
// OverallColumn. Any failure, including a panic, a nil table, or an output
// lacking the OverallColumn key, is reported as INCOMPATIBLE_OBJECTIVE.
// The objective's output is returned for inspection.
func Probe(ctx context.Context, t *frame.Table, fn ObjectiveFunc, sampleSize int, seed int64) (*frame.Table, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if fn == nil {
		return nil, incompatible(fmt.Errorf("objective function is nil"))
	}
	if !t.HasColumn(OverallColumn) {
		t = t.WithConstant(OverallColumn, OverallColumn)
	}

	sample := t.Sample(sampleSize, rand.New(rand.NewSource(seed)))
	g, err := sample.GroupBy(OverallColumn)
	if err != nil {
		return nil, incompatible(err)
	}

	out, err := callObjective(fn, g)
	if err != nil {
		return nil, incompatible(err)
	}
	if out == nil {
		return nil, incompatible(fmt.Errorf("objective returned a nil table"))
	}
	if !out.HasColumn(OverallColumn) {
		return nil, incompatible(fmt.Errorf("objective output lacks grouping column %q (columns: %s)",
			OverallColumn, strings.Join(out.Columns(), ", ")))
	}
	for _, col := range out.Columns() {
		if reservedColumns[col] {
			return nil, incompatible(fmt.Errorf("objective output column %q clashes with an output metadata column", col))
		}
	}
	return out, nil
}

// reservedColumns are output metadata names an objective may not produce.
// SizeColumn is absent: the group size join replaces it.
var reservedColumns = map[string]bool{
	InteractionCountColumn: true,
	ComboDictColumn:        true,
	GroupedByDictColumn:    true,
	TimePeriodDictColumn:   true,
}

func incompatible(cause error) error {
	return hserrors.NewObjectiveError(hserrors.CodeIncompatibleObjective,
		"objective function is incompatible: it must accept a grouped table and return one row per group keyed by the grouping columns",
		cause)
}

// callObjective invokes fn, converting a panic into an error.
func callObjective(fn ObjectiveFunc, g *frame.Grouped) (out *frame.Table, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("objective panicked: %v", r)
		}
	}()
	return fn(g)
}

// SweepOptions controls how Sweep executes.
type SweepOptions struct {
	// Concurrency is the number of combinations processed at once. Values
	// below 2 run the sweep sequentially.
	Concurrency int

	Logger *slog.Logger
	Stats  *observability.RunStats
}

// Sweep runs the objective for every combination and returns the results in
// combination order. The first failure aborts the sweep and is returned
// wrapped as COMBINATION_FAILED.
func Sweep(ctx context.Context, t *frame.Table, cs []EnrichedCombination, fn ObjectiveFunc, opts SweepOptions) ([]RawResult, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	results := make([]RawResult, len(cs))

	if opts.Concurrency < 2 {
		for i, c := range cs {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			raw, err := sweepOne(t, c, fn, logger, opts.Stats)
			if err != nil {
				return nil, err
			}
			results[i] = raw
		}
		return results, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)
	for i, c := range cs {
		i, c := i, c
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			raw, err := sweepOne(t, c, fn, logger, opts.Stats)
			if err != nil {
				return err
			}
			results[i] = raw
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func sweepOne(t *frame.Table, c EnrichedCombination, fn ObjectiveFunc, logger *slog.Logger, stats *observability.RunStats) (RawResult, error) {
	start := time.Now()
	name := c.String()

	fail := func(step string, cause error) (RawResult, error) {
		if stats != nil {
			stats.RecordFailure(name, c.Depth(), time.Since(start))
		}
		logger.Debug("combination failed", "combination", name, "step", step, "error", cause)
		return RawResult{}, hserrors.NewObjectiveError(hserrors.CodeCombinationFailed,
			fmt.Sprintf("combination [%s] failed during %s", name, step), cause).
			WithDetails(map[string]interface{}{
				"step":    step,
				"columns": c.Columns(),
			})
	}

	g, err := t.GroupBy(c.Columns()...)
	if err != nil {
		return fail(stepGroup, err)
	}
	out, err := callObjective(fn, g)
	if err != nil {
		return fail(stepObjective, err)
	}
	if out == nil {
		return fail(stepObjective, fmt.Errorf("objective returned a nil table"))
	}
	joined, err := joinSizes(out, g)
	if err != nil {
		return fail(stepJoin, err)
	}

	elapsed := time.Since(start)
	if stats != nil {
		stats.RecordCombination(name, c.Depth(), g.Len(), elapsed)
	}
	logger.Debug("combination computed",
		"combination", name,
		"groups", g.Len(),
		"rows", joined.Len(),
		"duration", elapsed)

	return RawResult{Combination: c, Table: joined}, nil
}

// joinSizes inner-joins the group sizes onto the objective output by the
// grouping columns. Rows come out in group order, grouping columns first,
// then SizeColumn, then the objective's other columns as emitted.
func joinSizes(out *frame.Table, g *frame.Grouped) (*frame.Table, error) {
	keys := g.Keys()
	if missing := out.MissingColumns(keys...); len(missing) > 0 {
		return nil, fmt.Errorf("%w: objective output lacks grouping columns %s",
			frame.ErrColumnNotFound, strings.Join(missing, ", "))
	}

	keyIdx := make([]int, len(keys))
	isKey := make(map[string]bool, len(keys))
	for i, k := range keys {
		keyIdx[i], _ = out.ColumnIndex(k)
		isKey[k] = true
	}
	var metricIdx []int
	columns := append(append([]string(nil), keys...), frame.SizeColumn)
	for j, col := range out.Columns() {
		if isKey[col] || col == frame.SizeColumn {
			continue
		}
		metricIdx = append(metricIdx, j)
		columns = append(columns, col)
	}

	byKey := make(map[string][]int, out.Len())
	vals := make([]interface{}, len(keyIdx))
	for i := 0; i < out.Len(); i++ {
		for k, j := range keyIdx {
			vals[k] = out.Cell(i, j)
		}
		ks := frame.GroupKey(vals)
		byKey[ks] = append(byKey[ks], i)
	}

	var rows [][]interface{}
	for _, grp := range g.Groups() {
		for _, i := range byKey[frame.GroupKey(grp.Key)] {
			row := make([]interface{}, 0, len(columns))
			row = append(row, grp.Key...)
			row = append(row, int64(len(grp.Rows)))
			for _, j := range metricIdx {
				row = append(row, out.Cell(i, j))
			}
			rows = append(rows, row)
		}
	}
	return frame.New(columns, rows)
}
