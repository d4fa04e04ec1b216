package hotspot

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	hserrors "github.com/arkilian/hotspot/internal/errors"
	"github.com/arkilian/hotspot/internal/frame"
	"github.com/arkilian/hotspot/internal/observability"
)

func tipsOptions() Options {
	return Options{TargetCols: []string{"day", "smoker"}, InteractionLimit: 2}
}

func TestAnalyzer_Lifecycle(t *testing.T) {
	a, err := New(frame.Plain(tipsTable()), tipsOptions(), meanTip(t))
	require.NoError(t, err)
	require.Equal(t, StateConfigured, a.State())

	_, err = a.Output()
	require.True(t, hserrors.IsNotReady(err))
	_, err = a.RawResults()
	require.True(t, hserrors.IsNotReady(err))
	_, err = a.Search(SearchOptions{Terms: []interface{}{"day"}})
	require.True(t, hserrors.IsNotReady(err))
	_, err = a.Lag(1)
	require.True(t, hserrors.IsNotReady(err))
	_, err = a.Combination("day")
	require.True(t, hserrors.IsNotReady(err))
	_, err = a.Dimensions()
	require.True(t, hserrors.IsNotReady(err))

	cs, err := a.Combinations()
	require.NoError(t, err)
	require.Len(t, cs, 3)
	require.Equal(t, StateCombosBuilt, a.State())

	out, err := a.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, StateAssembled, a.State())
	require.Equal(t, 14, out.Len())

	got, err := a.Output()
	require.NoError(t, err)
	require.Same(t, out, got)

	raws, err := a.RawResults()
	require.NoError(t, err)
	require.Len(t, raws, 3)
}

func TestAnalyzer_RunIsIdempotent(t *testing.T) {
	var calls int32
	base := meanTip(t)
	fn := func(g *frame.Grouped) (*frame.Table, error) {
		atomic.AddInt32(&calls, 1)
		return base(g)
	}

	a, err := New(frame.Plain(tipsTable()), tipsOptions(), fn)
	require.NoError(t, err)

	first, err := a.Run(context.Background())
	require.NoError(t, err)
	// one probe plus three combinations
	require.Equal(t, int32(4), atomic.LoadInt32(&calls))

	second, err := a.Run(context.Background())
	require.NoError(t, err)
	require.Same(t, first, second)
	require.Equal(t, int32(4), atomic.LoadInt32(&calls))
}

func TestAnalyzer_ExplicitProbeIsNotRepeated(t *testing.T) {
	var calls int32
	base := meanTip(t)
	fn := func(g *frame.Grouped) (*frame.Table, error) {
		atomic.AddInt32(&calls, 1)
		return base(g)
	}

	a, err := New(frame.Plain(tipsTable()), tipsOptions(), fn)
	require.NoError(t, err)
	probe, err := a.Probe(context.Background())
	require.NoError(t, err)
	require.True(t, probe.HasColumn(OverallColumn))

	_, err = a.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, int32(4), atomic.LoadInt32(&calls))
}

func TestAnalyzer_ProbeFailureStopsRun(t *testing.T) {
	var calls int32
	fn := func(*frame.Grouped) (*frame.Table, error) {
		atomic.AddInt32(&calls, 1)
		return nil, errors.New("cannot average text")
	}

	a, err := New(frame.Plain(tipsTable()), tipsOptions(), fn)
	require.NoError(t, err)
	_, err = a.Run(context.Background())
	require.True(t, hserrors.IsIncompatibleObjective(err))
	require.Equal(t, int32(1), atomic.LoadInt32(&calls))
	require.NotEqual(t, StateAssembled, a.State())
}

func TestAnalyzer_ConcurrentSweepMatchesSequential(t *testing.T) {
	opts := Options{TargetCols: []string{"day", "smoker", "size"}, InteractionLimit: 3}
	seq, err := Run(context.Background(), frame.Plain(tipsTable()), opts, meanTip(t))
	require.NoError(t, err)

	opts.Concurrency = 4
	par, err := Run(context.Background(), frame.Plain(tipsTable()), opts, meanTip(t))
	require.NoError(t, err)
	require.Equal(t, seq.String(), par.String())
}

func TestNew_ConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		ds   frame.Dataset
		opts Options
		fn   ObjectiveFunc
		code string
	}{
		{"nil objective", frame.Plain(tipsTable()), tipsOptions(), nil, hserrors.CodeInvalidConfig},
		{"nil dataset", nil, tipsOptions(), func(*frame.Grouped) (*frame.Table, error) { return nil, nil }, hserrors.CodeEmptyDataset},
		{"typed nil dataset", (*frame.PlainDataset)(nil), tipsOptions(), func(*frame.Grouped) (*frame.Table, error) { return nil, nil }, hserrors.CodeEmptyDataset},
		{"typed nil pre-grouped dataset", (*frame.PreGroupedDataset)(nil), tipsOptions(), func(*frame.Grouped) (*frame.Table, error) { return nil, nil }, hserrors.CodeEmptyDataset},
		{"empty targets", frame.Plain(tipsTable()), Options{InteractionLimit: 1}, nil, hserrors.CodeEmptyTargets},
		{"bad limit", frame.Plain(tipsTable()), Options{TargetCols: []string{"day"}}, nil, hserrors.CodeInvalidLimit},
		{"missing column", frame.Plain(tipsTable()), Options{TargetCols: []string{"weather"}, InteractionLimit: 1}, nil, hserrors.CodeMissingColumns},
		{"empty dataset", frame.Plain(frame.Empty("day")), Options{TargetCols: []string{"day"}, InteractionLimit: 1}, nil, hserrors.CodeEmptyDataset},
		{"overlap", frame.Plain(weeklyTable()), Options{TargetCols: []string{"day", "week"}, InteractionLimit: 1, TimePeriod: []string{"week"}}, nil, hserrors.CodeOverlappingDimensions},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fn := tt.fn
			if fn == nil && tt.name != "nil objective" {
				fn = meanTip(t)
			}
			_, err := New(tt.ds, tt.opts, fn)
			require.Error(t, err)
			require.True(t, hserrors.IsConfig(err))
			require.Equal(t, tt.code, hserrors.GetCode(err))
		})
	}
}

func TestNew_PreGroupedDataset(t *testing.T) {
	g, err := weeklyTable().GroupBy("week")
	require.NoError(t, err)

	a, err := New(frame.FromGrouped(g), Options{TargetCols: []string{"day"}, InteractionLimit: 1}, meanTip(t))
	require.NoError(t, err)
	require.Equal(t, []string{"week"}, a.Options().GroupedBy)

	out, err := a.Run(context.Background())
	require.NoError(t, err)
	require.True(t, out.HasColumn(GroupedByDictColumn))
	require.Equal(t, []string{"week"}, dictAt(t, out, 0, GroupedByDictColumn).Keys())

	_, err = New(frame.FromGrouped(g), Options{
		TargetCols:       []string{"day"},
		InteractionLimit: 1,
		GroupedBy:        []string{"tip"},
	}, meanTip(t))
	require.Error(t, err)
	require.Equal(t, hserrors.CodeInvalidConfig, hserrors.GetCode(err))
}

func TestAnalyzer_SearchDefaultsToConfiguredDepths(t *testing.T) {
	a, err := New(frame.Plain(tipsTable()), Options{
		TargetCols:       []string{"day", "smoker"},
		InteractionLimit: 2,
		IncludeOverall:   true,
	}, meanTip(t))
	require.NoError(t, err)
	out, err := a.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 15, out.Len())

	got, err := a.Search(SearchOptions{Terms: []interface{}{"Sat"}, Across: AcrossValues})
	require.NoError(t, err)
	require.Equal(t, 3, got.Len())

	_, err = a.Search(SearchOptions{Terms: []interface{}{"Sat"}, Across: AcrossValues, Interactions: []int{0}})
	require.True(t, hserrors.IsEmptyResult(err))
}

func TestAnalyzer_Lag(t *testing.T) {
	a, err := New(frame.Plain(weeklyTable()), Options{
		TargetCols:       []string{"day"},
		InteractionLimit: 1,
		TimePeriod:       []string{"week"},
	}, meanTip(t))
	require.NoError(t, err)
	_, err = a.Run(context.Background())
	require.NoError(t, err)

	lagged, err := a.Lag(1)
	require.NoError(t, err)
	require.True(t, lagged.HasColumn("tip_mean_lag1"))

	b, err := New(frame.Plain(tipsTable()), tipsOptions(), meanTip(t))
	require.NoError(t, err)
	_, err = b.Run(context.Background())
	require.NoError(t, err)
	_, err = b.Lag(1)
	require.Equal(t, hserrors.CodeMissingColumns, hserrors.GetCode(err))
}

func TestAnalyzer_Combination(t *testing.T) {
	a, err := New(frame.Plain(tipsTable()), tipsOptions(), meanTip(t))
	require.NoError(t, err)
	_, err = a.Run(context.Background())
	require.NoError(t, err)

	got, err := a.Combination("smoker", "day")
	require.NoError(t, err)
	require.Equal(t, 8, got.Len())

	got, err = a.Combination("smoker")
	require.NoError(t, err)
	require.Equal(t, 2, got.Len())

	_, err = a.Combination("size")
	require.True(t, hserrors.IsEmptyResult(err))
	require.Equal(t, []string{"day", "smoker", "day,smoker"}, hserrors.GetDetails(err)["valid"])
}

func TestAnalyzer_Dimensions(t *testing.T) {
	a, err := New(frame.Plain(tipsTable()), tipsOptions(), meanTip(t))
	require.NoError(t, err)
	_, err = a.Run(context.Background())
	require.NoError(t, err)

	dims, err := a.Dimensions()
	require.NoError(t, err)
	require.Equal(t, []string{"column", "unique_values"}, dims.Columns())
	require.Equal(t, 2, dims.Len())
	require.Equal(t, "day", dims.Value(0, "column"))
	require.Equal(t, int64(4), dims.Value(0, "unique_values"))
	require.Equal(t, "smoker", dims.Value(1, "column"))
	require.Equal(t, int64(2), dims.Value(1, "unique_values"))
}

func TestAnalyzer_RunIDAndLogging(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	stats := observability.NewRunStats()

	a, err := New(frame.Plain(tipsTable()), tipsOptions(), meanTip(t), WithLogger(logger), WithStats(stats))
	require.NoError(t, err)
	_, err = uuid.Parse(a.RunID())
	require.NoError(t, err)

	_, err = a.Run(context.Background())
	require.NoError(t, err)

	require.Contains(t, buf.String(), "run_id="+a.RunID())
	require.Contains(t, buf.String(), "combination computed")
	require.Same(t, stats, a.Stats())
	require.Equal(t, 3, stats.Summary().Combinations)
	require.Equal(t, int64(14), stats.Summary().Groups)

	c, ok := stats.Get("day,smoker")
	require.True(t, ok)
	require.Equal(t, 2, c.Depth)
	require.Equal(t, 8, c.Groups)
}

func TestRun_NilAndNullStringAreOneHotSpot(t *testing.T) {
	tbl := frame.MustNew([]string{"c", "x"}, [][]interface{}{
		{nil, int64(1)},
		{"<NULL>", int64(2)},
		{"a", int64(3)},
	})
	out, err := Run(context.Background(), frame.Plain(tbl),
		Options{TargetCols: []string{"c"}, InteractionLimit: 1}, countRows(t))
	require.NoError(t, err)
	require.Equal(t, 2, out.Len())

	seen := make(map[string]bool)
	for i := 0; i < out.Len(); i++ {
		key := dictAt(t, out, i, ComboDictColumn).String()
		require.False(t, seen[key], "duplicate hot spot %s", key)
		seen[key] = true
	}
}
