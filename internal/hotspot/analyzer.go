// Package hotspot implements exhaustive subgroup ("hot spot") analysis: an
// aggregation is computed for every combination of target columns up to an
// interaction limit, and the results are assembled into one long-format
// table that can be searched and compared across time periods.
//
// The pipeline runs combos.Generate, Enrich, Probe, Sweep and Assemble in
// that order. Analyzer drives it and guards the accessors that need its
// output.
package hotspot

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/arkilian/hotspot/internal/combos"
	hserrors "github.com/arkilian/hotspot/internal/errors"
	"github.com/arkilian/hotspot/internal/frame"
	"github.com/arkilian/hotspot/internal/observability"
	"github.com/arkilian/hotspot/pkg/types"
)

// Defaults for Options.
const (
	DefaultProbeSampleSize = 100
	DefaultProbeSeed       = 1
)

// Options configures an analysis.
type Options struct {
	// TargetCols are the candidate columns whose combinations are analysed.
	TargetCols []string

	// InteractionLimit is the largest combination size.
	InteractionLimit int

	// GroupedBy lists columns the dataset is already partitioned by. For a
	// pre-grouped dataset it defaults to the dataset's group columns.
	GroupedBy []string

	// TimePeriod lists the time dimension columns.
	TimePeriod []string

	// IncludeOverall adds the whole-dataset combination (interaction_count 0)
	// ahead of the others.
	IncludeOverall bool

	// ProbeSampleSize is the number of rows the objective dry run sees.
	// Zero selects DefaultProbeSampleSize.
	ProbeSampleSize int

	// ProbeSeed seeds the dry-run sampler. Zero selects DefaultProbeSeed.
	ProbeSeed int64

	// Concurrency is the number of combinations swept at once. Values
	// below 2 sweep sequentially.
	Concurrency int
}

func (o Options) withDefaults() Options {
	if o.ProbeSampleSize <= 0 {
		o.ProbeSampleSize = DefaultProbeSampleSize
	}
	if o.ProbeSeed == 0 {
		o.ProbeSeed = DefaultProbeSeed
	}
	if o.Concurrency < 1 {
		o.Concurrency = 1
	}
	return o
}

// State is the analysis lifecycle stage.
type State int

const (
	StateConfigured State = iota
	StateCombosBuilt
	StateRawComputed
	StateAssembled
)

func (s State) String() string {
	switch s {
	case StateConfigured:
		return "configured"
	case StateCombosBuilt:
		return "combos_built"
	case StateRawComputed:
		return "raw_computed"
	case StateAssembled:
		return "assembled"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithLogger sets the logger. Every line carries the analyzer's run_id.
func WithLogger(l *slog.Logger) Option {
	return func(a *Analyzer) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithStats sets the statistics tracker the sweep records into.
func WithStats(s *observability.RunStats) Option {
	return func(a *Analyzer) {
		if s != nil {
			a.stats = s
		}
	}
}

// Analyzer runs one hot spot analysis over one dataset. It is safe for
// concurrent use; Run computes the output once and later calls reuse it.
type Analyzer struct {
	mu sync.Mutex

	ds     frame.Dataset
	opts   Options
	fn     ObjectiveFunc
	logger *slog.Logger
	stats  *observability.RunStats
	runID  string

	state    State
	combos   []EnrichedCombination
	prepared *frame.Table
	probed   bool
	raws     []RawResult
	output   *frame.Table
}

// New validates the configuration against the dataset and returns an
// Analyzer in the configured state.
func New(ds frame.Dataset, opts Options, fn ObjectiveFunc, options ...Option) (*Analyzer, error) {
	if fn == nil {
		return nil, hserrors.NewConfigError(hserrors.CodeInvalidConfig, "objective function is nil")
	}
	if ds == nil || ds.Table() == nil {
		return nil, hserrors.NewConfigError(hserrors.CodeEmptyDataset, "dataset is nil")
	}

	opts = opts.withDefaults()
	if pre := ds.GroupColumns(); len(pre) > 0 {
		if len(opts.GroupedBy) == 0 {
			opts.GroupedBy = append([]string(nil), pre...)
		} else if !slices.Equal(opts.GroupedBy, pre) {
			return nil, hserrors.NewConfigError(hserrors.CodeInvalidConfig,
				fmt.Sprintf("grouped-by columns [%s] do not match the dataset's grouping [%s]",
					strings.Join(opts.GroupedBy, ", "), strings.Join(pre, ", ")))
		}
	}

	a := &Analyzer{
		ds:     ds,
		opts:   opts,
		fn:     fn,
		logger: slog.Default(),
		runID:  uuid.NewString(),
	}
	for _, o := range options {
		o(a)
	}
	if a.stats == nil {
		a.stats = observability.NewRunStats()
	}
	a.logger = a.logger.With("run_id", a.runID)

	// Configuration errors surface here rather than at Run.
	enriched, err := a.enumerate()
	if err != nil {
		return nil, err
	}
	prepared, err := Prepare(ds, enriched)
	if err != nil {
		return nil, err
	}
	a.combos = enriched
	a.prepared = prepared
	return a, nil
}

// Combinations returns the enriched combinations in sweep order.
func (a *Analyzer) Combinations() ([]EnrichedCombination, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.buildCombinations()
}

func (a *Analyzer) buildCombinations() ([]EnrichedCombination, error) {
	if a.combos == nil {
		enriched, err := a.enumerate()
		if err != nil {
			return nil, err
		}
		a.combos = enriched
	}
	if a.state < StateCombosBuilt {
		a.state = StateCombosBuilt
		a.logger.Info("built combinations",
			"targets", len(a.opts.TargetCols),
			"interaction_limit", a.opts.InteractionLimit,
			"combinations", len(a.combos))
	}
	return append([]EnrichedCombination(nil), a.combos...), nil
}

func (a *Analyzer) enumerate() ([]EnrichedCombination, error) {
	cs, err := combos.Generate(a.opts.TargetCols, a.opts.InteractionLimit)
	if err != nil {
		return nil, err
	}
	return Enrich(cs, a.opts.GroupedBy, a.opts.TimePeriod, a.opts.IncludeOverall)
}

// Probe dry-runs the objective on a sample of the dataset. A successful probe
// is remembered and Run will not repeat it.
func (a *Analyzer) Probe(ctx context.Context) (*frame.Table, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.probe(ctx)
}

func (a *Analyzer) probe(ctx context.Context) (*frame.Table, error) {
	a.logger.Info("probing objective", "sample_size", a.opts.ProbeSampleSize, "seed", a.opts.ProbeSeed)
	start := time.Now()
	out, err := Probe(ctx, a.prepared, a.fn, a.opts.ProbeSampleSize, a.opts.ProbeSeed)
	a.stats.RecordProbe(time.Since(start))
	if err != nil {
		a.logger.Error("objective probe failed", "error", err)
		return nil, err
	}
	a.probed = true
	return out, nil
}

// Run executes the analysis and returns the assembled output. Later calls
// return the same table without recomputing it.
func (a *Analyzer) Run(ctx context.Context) (*frame.Table, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state == StateAssembled {
		return a.output, nil
	}
	if _, err := a.buildCombinations(); err != nil {
		return nil, err
	}
	if !a.probed {
		if _, err := a.probe(ctx); err != nil {
			return nil, err
		}
	}

	a.logger.Info("sweeping combinations", "combinations", len(a.combos), "concurrency", a.opts.Concurrency)
	raws, err := Sweep(ctx, a.prepared, a.combos, a.fn, SweepOptions{
		Concurrency: a.opts.Concurrency,
		Logger:      a.logger,
		Stats:       a.stats,
	})
	if err != nil {
		a.logger.Error("sweep aborted", "error", err)
		return nil, err
	}
	a.raws = raws
	a.state = StateRawComputed

	out, err := Assemble(raws, a.opts.GroupedBy, a.opts.TimePeriod)
	if err != nil {
		return nil, hserrors.NewInternalError("assembling output", err)
	}
	a.output = out
	a.state = StateAssembled

	sum := a.stats.Summary()
	a.logger.Info("analysis complete",
		"rows", out.Len(),
		"groups", sum.Groups,
		"sweep_duration", sum.SweepDuration)
	return out, nil
}

// Run is the one-shot form: it builds an Analyzer and runs it.
func Run(ctx context.Context, ds frame.Dataset, opts Options, fn ObjectiveFunc, options ...Option) (*frame.Table, error) {
	a, err := New(ds, opts, fn, options...)
	if err != nil {
		return nil, err
	}
	return a.Run(ctx)
}

func (a *Analyzer) ready(op string) error {
	if a.state != StateAssembled {
		return hserrors.NewStateError(hserrors.CodeNotReady,
			fmt.Sprintf("%s requires a completed run (state: %s)", op, a.state))
	}
	return nil
}

// Output returns the assembled output table.
func (a *Analyzer) Output() (*frame.Table, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.ready("output"); err != nil {
		return nil, err
	}
	return a.output, nil
}

// RawResults returns the per-combination results in sweep order.
func (a *Analyzer) RawResults() ([]RawResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.ready("raw results"); err != nil {
		return nil, err
	}
	return append([]RawResult(nil), a.raws...), nil
}

// Search searches the output. Nil Interactions default to every depth from 1
// to the interaction limit.
func (a *Analyzer) Search(opts SearchOptions) (*frame.Table, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.ready("search"); err != nil {
		return nil, err
	}
	if opts.Interactions == nil {
		for d := 1; d <= a.opts.InteractionLimit; d++ {
			opts.Interactions = append(opts.Interactions, d)
		}
	}
	return Search(a.output, opts)
}

// Lag adds lagged columns to the output using the configured time-period
// columns for ordering.
func (a *Analyzer) Lag(offsets ...int) (*frame.Table, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.ready("lag"); err != nil {
		return nil, err
	}
	if len(a.opts.TimePeriod) == 0 {
		return nil, hserrors.NewConfigError(hserrors.CodeMissingColumns,
			"lag requires time-period columns to be configured")
	}
	return Lag(a.output, a.opts.TimePeriod, offsets)
}

// Combination returns the output rows whose combo_dict keys are exactly
// cols, in any order. No columns selects the whole-dataset rows.
func (a *Analyzer) Combination(cols ...string) (*frame.Table, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.ready("combination"); err != nil {
		return nil, err
	}

	want := append([]string(nil), cols...)
	sort.Strings(want)
	out := a.output.Filter(func(i int) bool {
		d, _ := a.output.Value(i, ComboDictColumn).(types.Dict)
		return slices.Equal(d.Keys(), want)
	})
	if out.Len() == 0 {
		valid := make([]string, len(a.combos))
		for i, c := range a.combos {
			valid[i] = combos.Combination(c.Targets).String()
		}
		return out, hserrors.NewSearchError(hserrors.CodeEmptyResult,
			fmt.Sprintf("no rows for combination [%s]", strings.Join(cols, ", "))).
			WithDetails(map[string]interface{}{
				"combination": cols,
				"valid":       valid,
			})
	}
	return out, nil
}

// Dimensions reports, for each target column, how many distinct values the
// single-column combinations observed. Columns: column, unique_values.
func (a *Analyzer) Dimensions() (*frame.Table, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.ready("dimensions"); err != nil {
		return nil, err
	}

	distinct := make(map[string]map[string]bool, len(a.opts.TargetCols))
	for _, c := range a.opts.TargetCols {
		distinct[c] = make(map[string]bool)
	}
	for i := 0; i < a.output.Len(); i++ {
		depth, _ := types.ToInt64(a.output.Value(i, InteractionCountColumn))
		if depth != 1 {
			continue
		}
		d, _ := a.output.Value(i, ComboDictColumn).(types.Dict)
		for k, v := range d {
			if seen, ok := distinct[k]; ok {
				seen[v] = true
			}
		}
	}

	rows := make([][]interface{}, len(a.opts.TargetCols))
	for i, c := range a.opts.TargetCols {
		rows[i] = []interface{}{c, int64(len(distinct[c]))}
	}
	return frame.New([]string{"column", "unique_values"}, rows)
}

// State returns the lifecycle stage.
func (a *Analyzer) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// RunID returns the analyzer's unique identifier.
func (a *Analyzer) RunID() string {
	return a.runID
}

// Stats returns the statistics tracker.
func (a *Analyzer) Stats() *observability.RunStats {
	return a.stats
}

// Options returns the effective options, defaults applied.
func (a *Analyzer) Options() Options {
	return a.opts
}
