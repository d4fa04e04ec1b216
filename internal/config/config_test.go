package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/arkilian/hotspot/internal/aggregator"
	hserrors "github.com/arkilian/hotspot/internal/errors"
	"github.com/arkilian/hotspot/internal/frame"
	"github.com/arkilian/hotspot/internal/hotspot"
)

func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.Dataset.Path = "tips.csv"
	cfg.Analysis.TargetCols = []string{"day", "smoker"}
	cfg.Analysis.InteractionLimit = 2
	cfg.Objective.Aggregates = []aggregator.NamedAgg{{Name: "tip_mean", Func: "avg", Column: "tip"}}
	cfg.Resolve()
	return cfg
}

func TestDefaultConfigNeedsDataset(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Resolve()
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error for empty default config")
	}
	if !hserrors.IsConfig(err) {
		t.Errorf("expected config error, got %v", err)
	}
	if !strings.Contains(err.Error(), "dataset.path is required") {
		t.Errorf("expected field name in message, got %v", err)
	}
}

func TestValidConfig(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Dataset.Format != "csv" {
		t.Errorf("expected inferred csv format, got %q", cfg.Dataset.Format)
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"zero limit", func(c *Config) { c.Analysis.InteractionLimit = 0 }, "analysis.interaction_limit must be at least 1"},
		{"no targets", func(c *Config) { c.Analysis.TargetCols = nil }, "analysis.target_cols is required"},
		{"bad across", func(c *Config) { c.Search.Across = "columns" }, "search.across must be one of [keys values]"},
		{"bad search type", func(c *Config) { c.Search.Type = "most" }, "search.type must be one of [any all]"},
		{"bad storage", func(c *Config) { c.Storage.Type = "gcs" }, "storage.type must be one of"},
		{"bad log level", func(c *Config) { c.Log.Level = "trace" }, "log.level must be one of"},
		{"no aggregates", func(c *Config) { c.Objective.Aggregates = nil }, "objective.aggregates is required"},
		{"zero lag", func(c *Config) { c.Lag.Offsets = []int{0} }, "must be at least 1"},
		{"s3 without bucket", func(c *Config) { c.Storage.Type = "s3" }, "storage.s3.bucket is required"},
		{"unknown format", func(c *Config) { c.Dataset.Path = "tips.parquet"; c.Dataset.Format = "" }, "cannot infer dataset format"},
		{"lag without time period", func(c *Config) { c.Lag.Offsets = []int{1} }, "requires analysis.time_period"},
		{"bad aggregate func", func(c *Config) { c.Objective.Aggregates[0].Func = "median" }, "unknown aggregate function"},
		{"overlapping dimensions", func(c *Config) { c.Analysis.GroupedBy = []string{"day"} }, "must be disjoint"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected error")
			}
			if !hserrors.IsConfig(err) {
				t.Errorf("expected config error, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected %q in %q", tt.want, err.Error())
			}
		})
	}
}

func TestResolveDeduplicatesColumns(t *testing.T) {
	cfg := validConfig()
	cfg.Analysis.TargetCols = []string{"day", "smoker", "day"}
	cfg.Output.Path = "out/hotspots.jsonl.sz"
	cfg.Resolve()

	if got := strings.Join(cfg.Analysis.TargetCols, ","); got != "day,smoker" {
		t.Errorf("expected deduplicated targets, got %s", got)
	}
	if cfg.Output.Format != "jsonl.sz" {
		t.Errorf("expected jsonl.sz, got %s", cfg.Output.Format)
	}
}

func TestLoadFromFileYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hsa.yaml")
	data := `
dataset:
  path: s3://bucket/tips.csv
analysis:
  target_cols: [day, smoker, size]
  interaction_limit: 3
  time_period: [week]
  concurrency: 4
objective:
  aggregates:
    - {name: tip_mean, func: avg, column: tip}
    - {name: rows, func: count}
  round: 2
search:
  terms: [day]
  type: all
lag:
  offsets: [1, 2]
log:
  level: debug
  format: json
`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}
	cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}

	if cfg.Analysis.InteractionLimit != 3 || cfg.Analysis.Concurrency != 4 {
		t.Errorf("unexpected analysis config: %+v", cfg.Analysis)
	}
	if cfg.Analysis.ProbeSampleSize != hotspot.DefaultProbeSampleSize {
		t.Errorf("expected default probe sample size, got %d", cfg.Analysis.ProbeSampleSize)
	}
	if len(cfg.Objective.Aggregates) != 2 || cfg.Objective.Aggregates[1].Func != "count" {
		t.Errorf("unexpected aggregates: %v", cfg.Objective.Aggregates)
	}
	if cfg.Search.Across != "keys" || cfg.Search.Type != "all" {
		t.Errorf("unexpected search config: %+v", cfg.Search)
	}
	if cfg.Dataset.Format != "csv" {
		t.Errorf("expected csv, got %s", cfg.Dataset.Format)
	}
}

func TestLoadFromFileJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hsa.json")
	data := `{"dataset": {"path": "tips.xlsx"}, "analysis": {"target_cols": ["day"], "interaction_limit": 1}}`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}
	if cfg.Dataset.Path != "tips.xlsx" || cfg.Log.Level != "info" {
		t.Errorf("unexpected config: %+v", cfg)
	}
}

func TestLoadFromFileUnsupported(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hsa.toml")
	if err := os.WriteFile(path, []byte("x = 1"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFromFile(path); err == nil {
		t.Fatal("expected unsupported format error")
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("HSA_DATA_PATH", "data.db")
	t.Setenv("HSA_DATA_TABLE", "tips")
	t.Setenv("HSA_TARGET_COLS", "day, smoker ,size")
	t.Setenv("HSA_INTERACTION_LIMIT", "2")
	t.Setenv("HSA_TIME_PERIOD", "week")
	t.Setenv("HSA_INCLUDE_OVERALL", "true")
	t.Setenv("HSA_CONCURRENCY", "8")
	t.Setenv("HSA_AGGREGATES", "tip_mean=avg(tip); rows=count(*)")
	t.Setenv("HSA_S3_BUCKET", "hotspots")
	t.Setenv("HSA_LOG_FORMAT", "json")

	cfg := DefaultConfig()
	if err := LoadFromEnv(cfg); err != nil {
		t.Fatalf("LoadFromEnv failed: %v", err)
	}
	cfg.Resolve()

	if strings.Join(cfg.Analysis.TargetCols, ",") != "day,smoker,size" {
		t.Errorf("unexpected targets: %v", cfg.Analysis.TargetCols)
	}
	if cfg.Analysis.InteractionLimit != 2 || cfg.Analysis.Concurrency != 8 || !cfg.Analysis.IncludeOverall {
		t.Errorf("unexpected analysis config: %+v", cfg.Analysis)
	}
	if len(cfg.Objective.Aggregates) != 2 || cfg.Objective.Aggregates[1].Name != "rows" {
		t.Errorf("unexpected aggregates: %v", cfg.Objective.Aggregates)
	}
	if cfg.Dataset.Format != "sqlite" || cfg.Dataset.Table != "tips" {
		t.Errorf("unexpected dataset config: %+v", cfg.Dataset)
	}
	if cfg.Storage.S3.Bucket != "hotspots" || cfg.Log.Format != "json" {
		t.Errorf("unexpected storage/log config")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate failed: %v", err)
	}
}

func TestLoadFromEnvBadAggregate(t *testing.T) {
	t.Setenv("HSA_AGGREGATES", "tip_mean=avg tip")
	if err := LoadFromEnv(DefaultConfig()); err == nil {
		t.Fatal("expected error for malformed aggregate")
	}
}

func TestBuildAndRun(t *testing.T) {
	cfg := validConfig()
	cfg.Objective.Round = 1
	fn, err := cfg.Objective.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	tbl := frame.MustNew([]string{"day", "smoker", "tip"}, [][]interface{}{
		{"Sat", "Yes", 1.0},
		{"Sat", "No", 2.0},
		{"Sun", "No", 2.5},
	})
	out, err := hotspot.Run(context.Background(), frame.Plain(tbl), cfg.Analysis.Options(), fn)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	// day: 2, smoker: 2, day+smoker: 3
	if out.Len() != 7 {
		t.Errorf("expected 7 rows, got %d", out.Len())
	}
	if !out.HasColumn("tip_mean") {
		t.Errorf("expected tip_mean column, got %v", out.Columns())
	}

	cfg.Search.Terms = []string{"Sat"}
	cfg.Search.Across = "values"
	got, err := hotspot.Search(out, cfg.Search.Options())
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if got.Len() != 3 {
		t.Errorf("expected 3 Sat rows, got %d", got.Len())
	}
}

func TestNewLogger(t *testing.T) {
	var buf strings.Builder
	logger := LogConfig{Level: "warn", Format: "json"}.NewLogger(&buf)
	logger.Info("hidden")
	logger.Warn("shown", "k", 1)
	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, `"msg":"shown"`) {
		t.Errorf("unexpected log output: %s", out)
	}
}

func TestDatasetSourceAndOutputTarget(t *testing.T) {
	cfg := validConfig()
	cfg.Analysis.GroupedBy = []string{"size"}
	cfg.Output.Path = "out/hotspots.db"
	cfg.Resolve()

	src := cfg.Dataset.Source(cfg.Analysis.GroupedBy)
	if src.Path != "tips.csv" || src.Format != "csv" || len(src.GroupedBy) != 0 {
		t.Errorf("unexpected source: %+v", src)
	}

	cfg.Dataset.PreGrouped = true
	src = cfg.Dataset.Source(cfg.Analysis.GroupedBy)
	if len(src.GroupedBy) != 1 || src.GroupedBy[0] != "size" {
		t.Errorf("expected pre-grouped source by size, got %+v", src.GroupedBy)
	}

	target := cfg.Output.Target()
	if target.Format != "sqlite" || target.Table != "hotspots" {
		t.Errorf("unexpected target: %+v", target)
	}
}

func TestStorageOpenerLocal(t *testing.T) {
	base := t.TempDir()
	cfg := StorageConfig{Type: "local", Path: base}

	store, err := cfg.Opener()(context.Background(), "datasets")
	if err != nil {
		t.Fatalf("Opener failed: %v", err)
	}
	exists, err := store.Exists(context.Background(), "tips.csv")
	if err != nil || exists {
		t.Errorf("expected empty bucket, got exists=%v err=%v", exists, err)
	}
	if _, err := os.Stat(filepath.Join(base, "datasets")); err != nil {
		t.Errorf("expected bucket directory: %v", err)
	}
}
