// Package app runs one configured hot spot analysis end to end: load the
// dataset, sweep the combinations, post-process the output and export it.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/arkilian/hotspot/internal/config"
	hserrors "github.com/arkilian/hotspot/internal/errors"
	"github.com/arkilian/hotspot/internal/export"
	"github.com/arkilian/hotspot/internal/frame"
	"github.com/arkilian/hotspot/internal/hotspot"
	"github.com/arkilian/hotspot/internal/loader"
	"github.com/arkilian/hotspot/internal/observability"
	"github.com/arkilian/hotspot/internal/storage"
)

// App owns the resources of one analysis run.
type App struct {
	cfg    *config.Config
	logger *slog.Logger
	stats  *observability.RunStats
	open   storage.Opener

	mu      sync.Mutex
	running bool
}

// Option configures an App.
type Option func(*App)

// WithLogger sets the logger. The default writes to io.Discard.
func WithLogger(l *slog.Logger) Option {
	return func(a *App) {
		a.logger = l
	}
}

// WithOpener overrides the object storage derived from the storage config.
func WithOpener(open storage.Opener) Option {
	return func(a *App) {
		a.open = open
	}
}

// Result is the outcome of a run.
type Result struct {
	// RunID identifies the analysis in logs
	RunID string

	// Output is the assembled table before post-processing
	Output *frame.Table

	// Table is the final table after lag, search and ranking
	Table *frame.Table

	// Empty reports that the search matched nothing
	Empty bool

	// Summary holds sweep statistics
	Summary observability.Summary
}

// New creates an App with the given configuration.
func New(cfg *config.Config, opts ...Option) (*App, error) {
	cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	a := &App{
		cfg:    cfg,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		stats:  observability.NewRunStats(),
		open:   cfg.Storage.Opener(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Run executes the analysis. When no output path is configured the final
// table is encoded to stdout in the output format (default csv).
func (a *App) Run(ctx context.Context, stdout io.Writer) (*Result, error) {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return nil, fmt.Errorf("app is already running")
	}
	a.running = true
	a.mu.Unlock()
	defer func() {
		a.mu.Lock()
		a.running = false
		a.mu.Unlock()
	}()

	started := time.Now()
	cfg := a.cfg

	ds, err := loader.Load(ctx, cfg.Dataset.Source(cfg.Analysis.GroupedBy), a.open)
	if err != nil {
		return nil, fmt.Errorf("failed to load dataset: %w", err)
	}
	a.logger.Info("dataset loaded",
		slog.String("path", cfg.Dataset.Path),
		slog.Int("rows", ds.Table().Len()),
		slog.Int("columns", ds.Table().Width()))

	fn, err := cfg.Objective.Build()
	if err != nil {
		return nil, err
	}
	analyzer, err := hotspot.New(ds, cfg.Analysis.Options(), fn,
		hotspot.WithLogger(a.logger), hotspot.WithStats(a.stats))
	if err != nil {
		return nil, err
	}

	output, err := analyzer.Run(ctx)
	if err != nil {
		return nil, err
	}

	res := &Result{RunID: analyzer.RunID(), Output: output}
	res.Table, res.Empty, err = a.postProcess(analyzer, output)
	if err != nil {
		return nil, err
	}

	if cfg.Output.Path != "" {
		if err := export.Write(ctx, res.Table, cfg.Output.Target(), a.open); err != nil {
			return nil, fmt.Errorf("failed to export results: %w", err)
		}
		a.logger.Info("results exported",
			slog.String("run_id", res.RunID),
			slog.String("path", cfg.Output.Path),
			slog.Int("rows", res.Table.Len()))
	} else if stdout != nil {
		format := cfg.Output.Format
		if format == "" {
			format = export.FormatCSV
		}
		if err := export.Encode(stdout, res.Table, format); err != nil {
			return nil, err
		}
	}

	res.Summary = a.stats.Summary()
	a.logger.Info("analysis complete",
		slog.String("run_id", res.RunID),
		slog.Int("combinations", res.Summary.Combinations),
		slog.Int64("groups", res.Summary.Groups),
		slog.Int("rows", res.Table.Len()),
		slog.Duration("elapsed", time.Since(started)))
	for _, c := range a.stats.GetSlowest(3) {
		a.logger.Debug("slow combination",
			slog.String("run_id", res.RunID),
			slog.String("combination", c.Combination),
			slog.Duration("duration", c.Duration))
	}
	return res, nil
}

// postProcess applies lag, then search, then ranking. Lag runs on the full
// output so that filtering never removes a row's predecessors.
func (a *App) postProcess(analyzer *hotspot.Analyzer, output *frame.Table) (*frame.Table, bool, error) {
	cfg := a.cfg
	t := output
	var err error

	if len(cfg.Lag.Offsets) > 0 {
		if t, err = analyzer.Lag(cfg.Lag.Offsets...); err != nil {
			return nil, false, err
		}
	}

	empty := false
	if cfg.Search.Enabled() {
		opts := cfg.Search.Options()
		if opts.Interactions == nil {
			for d := 1; d <= cfg.Analysis.InteractionLimit; d++ {
				opts.Interactions = append(opts.Interactions, d)
			}
		}
		t, err = hotspot.Search(t, opts)
		if hserrors.IsEmptyResult(err) {
			a.logger.Warn("search matched no rows",
				slog.String("run_id", analyzer.RunID()),
				slog.Any("details", hserrors.GetDetails(err)))
			empty = true
		} else if err != nil {
			return nil, false, err
		}
	}

	if len(cfg.Output.Sort) > 0 {
		keys := make([]frame.SortKey, len(cfg.Output.Sort))
		for i, s := range cfg.Output.Sort {
			keys[i] = frame.ParseSortKey(s)
		}
		if t, err = t.SortBy(keys...); err != nil {
			return nil, false, hserrors.Wrap(hserrors.ErrCategoryConfig, hserrors.CodeMissingColumns,
				"invalid output.sort", err)
		}
	}
	if cfg.Output.Top > 0 {
		t = t.Head(cfg.Output.Top)
	}
	return t, empty, nil
}
