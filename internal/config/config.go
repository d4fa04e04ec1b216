// Package config provides configuration for hot spot analysis runs.
package config

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/arkilian/hotspot/internal/aggregator"
	"github.com/arkilian/hotspot/internal/combos"
	hserrors "github.com/arkilian/hotspot/internal/errors"
	"github.com/arkilian/hotspot/internal/export"
	"github.com/arkilian/hotspot/internal/hotspot"
	"github.com/arkilian/hotspot/internal/loader"
	"github.com/arkilian/hotspot/internal/storage"
)

// Config holds the configuration for one analysis run.
type Config struct {
	// Dataset describes where the input table comes from
	Dataset DatasetConfig `json:"dataset" yaml:"dataset"`

	// Analysis configures the combination sweep
	Analysis AnalysisConfig `json:"analysis" yaml:"analysis"`

	// Objective configures the aggregation applied to every group
	Objective ObjectiveConfig `json:"objective" yaml:"objective"`

	// Search optionally filters the output
	Search SearchConfig `json:"search" yaml:"search"`

	// Lag optionally adds time-lagged columns
	Lag LagConfig `json:"lag" yaml:"lag"`

	// Output configures ranking and export
	Output OutputConfig `json:"output" yaml:"output"`

	// Storage configuration for remote datasets and exports
	Storage StorageConfig `json:"storage" yaml:"storage"`

	// Log configuration
	Log LogConfig `json:"log" yaml:"log"`
}

// DatasetConfig describes the input table.
type DatasetConfig struct {
	// Path is a local file or an s3://bucket/key URI
	Path string `json:"path" yaml:"path" validate:"required"`

	// Format is csv, xlsx or sqlite; inferred from Path when empty
	Format string `json:"format" yaml:"format" validate:"omitempty,oneof=csv xlsx sqlite"`

	// Sheet selects the XLSX sheet (default: first sheet)
	Sheet string `json:"sheet" yaml:"sheet"`

	// Table selects the SQLite table
	Table string `json:"table" yaml:"table"`

	// Query overrides the SQLite query (default: SELECT * FROM <table>)
	Query string `json:"query" yaml:"query"`

	// PreGrouped marks the table as already partitioned by analysis.grouped_by
	PreGrouped bool `json:"pre_grouped" yaml:"pre_grouped"`
}

// AnalysisConfig configures the combination sweep.
type AnalysisConfig struct {
	// TargetCols are the candidate columns to combine
	TargetCols []string `json:"target_cols" yaml:"target_cols" validate:"required,min=1,dive,required"`

	// InteractionLimit is the largest combination size
	InteractionLimit int `json:"interaction_limit" yaml:"interaction_limit" validate:"min=1"`

	// GroupedBy are fixed grouping dimensions
	GroupedBy []string `json:"grouped_by" yaml:"grouped_by" validate:"dive,required"`

	// TimePeriod are fixed time dimensions
	TimePeriod []string `json:"time_period" yaml:"time_period" validate:"dive,required"`

	// IncludeOverall adds the whole-dataset row(s)
	IncludeOverall bool `json:"include_overall" yaml:"include_overall"`

	// ProbeSampleSize is the objective dry-run sample size
	ProbeSampleSize int `json:"probe_sample_size" yaml:"probe_sample_size" validate:"min=1"`

	// ProbeSeed seeds the dry-run sampler
	ProbeSeed int64 `json:"probe_seed" yaml:"probe_seed"`

	// Concurrency is the number of combinations swept in parallel
	Concurrency int `json:"concurrency" yaml:"concurrency" validate:"min=1,max=256"`
}

// ObjectiveConfig configures the aggregation.
type ObjectiveConfig struct {
	// Aggregates are the named metrics, e.g. {name: tip_mean, func: avg, column: tip}
	Aggregates []aggregator.NamedAgg `json:"aggregates" yaml:"aggregates" validate:"required,min=1"`

	// Round rounds float metrics to this many places; -1 disables rounding
	Round int `json:"round" yaml:"round" validate:"min=-1,max=15"`
}

// SearchConfig optionally filters the output. An empty Terms list disables
// searching.
type SearchConfig struct {
	Terms        []string `json:"terms" yaml:"terms"`
	Across       string   `json:"across" yaml:"across" validate:"omitempty,oneof=keys values"`
	Type         string   `json:"type" yaml:"type" validate:"omitempty,oneof=any all"`
	Interactions []int    `json:"interactions" yaml:"interactions" validate:"dive,min=0"`
	MinRows      int64    `json:"n_row_minimum" yaml:"n_row_minimum" validate:"min=0"`
}

// LagConfig optionally adds lagged columns. An empty Offsets list disables
// lagging.
type LagConfig struct {
	Offsets []int `json:"offsets" yaml:"offsets" validate:"dive,min=1"`
}

// OutputConfig configures ranking and export.
type OutputConfig struct {
	// Path is a local file or s3:// URI; empty prints to stdout
	Path string `json:"path" yaml:"path"`

	// Format is csv, jsonl, jsonl.sz or sqlite; inferred from Path when empty
	Format string `json:"format" yaml:"format" validate:"omitempty,oneof=csv jsonl jsonl.sz sqlite"`

	// Table is the SQLite table name for sqlite exports
	Table string `json:"table" yaml:"table"`

	// Sort lists columns to rank by; a leading "-" sorts descending
	Sort []string `json:"sort" yaml:"sort"`

	// Top keeps the first N rows after sorting; 0 keeps all
	Top int `json:"top" yaml:"top" validate:"min=0"`
}

// StorageConfig holds storage configuration.
type StorageConfig struct {
	// Type is the storage type: local, s3
	Type string `json:"type" yaml:"type" validate:"oneof=local s3"`

	// Path is the local storage root (for local type)
	Path string `json:"path" yaml:"path"`

	// S3 configuration (for s3 type)
	S3 S3Config `json:"s3" yaml:"s3"`
}

// S3Config holds S3 storage configuration.
type S3Config struct {
	// Bucket is the default S3 bucket name
	Bucket string `json:"bucket" yaml:"bucket"`

	// Region is the AWS region
	Region string `json:"region" yaml:"region"`

	// Endpoint is the S3 endpoint (for S3-compatible storage)
	Endpoint string `json:"endpoint" yaml:"endpoint"`
}

// LogConfig configures the structured logger.
type LogConfig struct {
	Level  string `json:"level" yaml:"level" validate:"oneof=debug info warn error"`
	Format string `json:"format" yaml:"format" validate:"oneof=text json"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Analysis: AnalysisConfig{
			InteractionLimit: 1,
			ProbeSampleSize:  hotspot.DefaultProbeSampleSize,
			ProbeSeed:        hotspot.DefaultProbeSeed,
			Concurrency:      1,
		},
		Objective: ObjectiveConfig{
			Round: -1,
		},
		Search: SearchConfig{
			Across: string(hotspot.AcrossKeys),
			Type:   string(hotspot.SearchAny),
		},
		Output: OutputConfig{
			Table: "hotspots",
		},
		Storage: StorageConfig{
			Type: "local",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Resolve normalises column lists and fills values derivable from others.
func (c *Config) Resolve() {
	c.Analysis.TargetCols = combos.Unique(c.Analysis.TargetCols)
	c.Analysis.GroupedBy = combos.Unique(c.Analysis.GroupedBy)
	c.Analysis.TimePeriod = combos.Unique(c.Analysis.TimePeriod)

	if c.Dataset.Format == "" {
		c.Dataset.Format = FormatFromPath(c.Dataset.Path)
	}
	if c.Output.Format == "" && c.Output.Path != "" {
		c.Output.Format = FormatFromPath(c.Output.Path)
	}
	if c.Storage.Path == "" {
		c.Storage.Path = "."
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// FormatFromPath infers a file format from its extension. Unknown
// extensions yield "".
func FormatFromPath(path string) string {
	lower := strings.ToLower(path)
	switch {
	case strings.HasSuffix(lower, ".jsonl.sz"):
		return "jsonl.sz"
	case strings.HasSuffix(lower, ".jsonl"), strings.HasSuffix(lower, ".ndjson"):
		return "jsonl"
	case strings.HasSuffix(lower, ".csv"):
		return "csv"
	case strings.HasSuffix(lower, ".xlsx"):
		return "xlsx"
	case strings.HasSuffix(lower, ".db"), strings.HasSuffix(lower, ".sqlite"), strings.HasSuffix(lower, ".sqlite3"):
		return "sqlite"
	default:
		return ""
	}
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// Report fields by their YAML names.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return validationError(err)
	}

	if c.Storage.Type == "s3" && c.Storage.S3.Bucket == "" && !strings.HasPrefix(c.Dataset.Path, "s3://") {
		return hserrors.NewConfigError(hserrors.CodeInvalidConfig,
			"storage.s3.bucket is required when storage type is s3")
	}
	if c.Dataset.Format == "" && FormatFromPath(c.Dataset.Path) == "" {
		return hserrors.NewConfigError(hserrors.CodeInvalidConfig,
			fmt.Sprintf("cannot infer dataset format from %q: set dataset.format", c.Dataset.Path))
	}
	if c.Output.Path != "" && c.Output.Format == "" && FormatFromPath(c.Output.Path) == "" {
		return hserrors.NewConfigError(hserrors.CodeInvalidConfig,
			fmt.Sprintf("cannot infer output format from %q: set output.format", c.Output.Path))
	}
	if len(c.Lag.Offsets) > 0 && len(c.Analysis.TimePeriod) == 0 {
		return hserrors.NewConfigError(hserrors.CodeInvalidLag,
			"lag.offsets requires analysis.time_period columns")
	}
	for _, agg := range c.Objective.Aggregates {
		if agg.Name == "" {
			return hserrors.NewConfigError(hserrors.CodeInvalidConfig,
				fmt.Sprintf("objective aggregate %s has no name", agg))
		}
		if _, err := aggregator.ParseAggregateType(agg.Func); err != nil {
			return hserrors.NewConfigError(hserrors.CodeInvalidConfig, err.Error())
		}
	}

	// Dimension checks share the engine's own validation.
	cs, err := combos.Generate(c.Analysis.TargetCols, c.Analysis.InteractionLimit)
	if err != nil {
		return err
	}
	if _, err := hotspot.Enrich(cs, c.Analysis.GroupedBy, c.Analysis.TimePeriod, false); err != nil {
		return err
	}
	return nil
}

func validationError(err error) error {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return hserrors.Wrap(hserrors.ErrCategoryConfig, hserrors.CodeInvalidConfig, "invalid configuration", err)
	}

	msgs := make([]string, 0, len(verrs))
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		// Drop the root struct name from the namespace.
		field := fe.Namespace()
		if i := strings.IndexByte(field, '.'); i >= 0 {
			field = field[i+1:]
		}
		fields = append(fields, field)
		msgs = append(msgs, describe(field, fe))
	}
	return hserrors.NewConfigError(hserrors.CodeInvalidConfig, strings.Join(msgs, "; ")).
		WithDetails(map[string]interface{}{"fields": fields})
}

func describe(field string, fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s], got %v", field, fe.Param(), fe.Value())
	case "min":
		return fmt.Sprintf("%s must be at least %s, got %v", field, fe.Param(), fe.Value())
	case "max":
		return fmt.Sprintf("%s must be at most %s, got %v", field, fe.Param(), fe.Value())
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}

// Options converts the analysis section to engine options.
func (a AnalysisConfig) Options() hotspot.Options {
	return hotspot.Options{
		TargetCols:       append([]string(nil), a.TargetCols...),
		InteractionLimit: a.InteractionLimit,
		GroupedBy:        append([]string(nil), a.GroupedBy...),
		TimePeriod:       append([]string(nil), a.TimePeriod...),
		IncludeOverall:   a.IncludeOverall,
		ProbeSampleSize:  a.ProbeSampleSize,
		ProbeSeed:        a.ProbeSeed,
		Concurrency:      a.Concurrency,
	}
}

// Build compiles the configured aggregates into an objective function.
func (o ObjectiveConfig) Build() (hotspot.ObjectiveFunc, error) {
	var opts []aggregator.Option
	if o.Round >= 0 {
		opts = append(opts, aggregator.WithRound(o.Round))
	}
	fn, err := aggregator.Objective(o.Aggregates, opts...)
	if err != nil {
		return nil, hserrors.Wrap(hserrors.ErrCategoryConfig, hserrors.CodeInvalidConfig, "invalid objective", err)
	}
	return fn, nil
}

// Source converts the dataset section to a loader source. A pre-grouped
// dataset is partitioned by groupedBy.
func (d DatasetConfig) Source(groupedBy []string) loader.Source {
	src := loader.Source{
		Path:   d.Path,
		Format: d.Format,
		Sheet:  d.Sheet,
		Table:  d.Table,
		Query:  d.Query,
	}
	if d.PreGrouped {
		src.GroupedBy = append([]string(nil), groupedBy...)
	}
	return src
}

// Target converts the output section to an export target.
func (o OutputConfig) Target() export.Target {
	return export.Target{Path: o.Path, Format: o.Format, Table: o.Table}
}

// Opener returns the object storage serving s3:// paths. The local type
// serves each bucket from a directory under Path.
func (s StorageConfig) Opener() storage.Opener {
	if s.Type == "s3" {
		return storage.S3Opener(storage.S3Config{
			Region:       s.S3.Region,
			Endpoint:     s.S3.Endpoint,
			UsePathStyle: s.S3.Endpoint != "",
		})
	}
	return storage.LocalOpener(s.Path)
}

// Enabled reports whether a search is configured.
func (s SearchConfig) Enabled() bool {
	return len(s.Terms) > 0
}

// Options converts the search section to engine search options.
func (s SearchConfig) Options() hotspot.SearchOptions {
	terms := make([]interface{}, len(s.Terms))
	for i, t := range s.Terms {
		terms[i] = t
	}
	return hotspot.SearchOptions{
		Terms:        terms,
		Across:       hotspot.Across(s.Across),
		Type:         hotspot.SearchType(s.Type),
		Interactions: s.Interactions,
		MinRows:      s.MinRows,
	}
}

// NewLogger builds a slog logger writing to w.
func (l LogConfig) NewLogger(w io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(l.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.ToLower(l.Format) == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// LoadFromFile loads configuration from a YAML or JSON file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format: %s", ext)
	}

	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables.
// Environment variables use the HSA_ prefix. List values are comma
// separated; HSA_AGGREGATES is semicolon separated name=func(column) specs.
func LoadFromEnv(cfg *Config) error {
	// Dataset configuration
	if v := os.Getenv("HSA_DATA_PATH"); v != "" {
		cfg.Dataset.Path = v
	}
	if v := os.Getenv("HSA_DATA_FORMAT"); v != "" {
		cfg.Dataset.Format = v
	}
	if v := os.Getenv("HSA_DATA_TABLE"); v != "" {
		cfg.Dataset.Table = v
	}

	// Analysis configuration
	if v := os.Getenv("HSA_TARGET_COLS"); v != "" {
		cfg.Analysis.TargetCols = SplitList(v)
	}
	if v := os.Getenv("HSA_INTERACTION_LIMIT"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Analysis.InteractionLimit)
	}
	if v := os.Getenv("HSA_GROUPED_BY"); v != "" {
		cfg.Analysis.GroupedBy = SplitList(v)
	}
	if v := os.Getenv("HSA_TIME_PERIOD"); v != "" {
		cfg.Analysis.TimePeriod = SplitList(v)
	}
	if v := os.Getenv("HSA_INCLUDE_OVERALL"); v != "" {
		cfg.Analysis.IncludeOverall = v == "true" || v == "1"
	}
	if v := os.Getenv("HSA_PROBE_SAMPLE_SIZE"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Analysis.ProbeSampleSize)
	}
	if v := os.Getenv("HSA_PROBE_SEED"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Analysis.ProbeSeed)
	}
	if v := os.Getenv("HSA_CONCURRENCY"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Analysis.Concurrency)
	}

	// Objective configuration
	if v := os.Getenv("HSA_AGGREGATES"); v != "" {
		aggs, err := ParseAggregates(strings.Split(v, ";"))
		if err != nil {
			return err
		}
		cfg.Objective.Aggregates = aggs
	}
	if v := os.Getenv("HSA_ROUND"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Objective.Round)
	}

	// Output configuration
	if v := os.Getenv("HSA_OUTPUT_PATH"); v != "" {
		cfg.Output.Path = v
	}
	if v := os.Getenv("HSA_OUTPUT_FORMAT"); v != "" {
		cfg.Output.Format = v
	}

	// Storage configuration
	if v := os.Getenv("HSA_STORAGE_TYPE"); v != "" {
		cfg.Storage.Type = v
	}
	if v := os.Getenv("HSA_STORAGE_PATH"); v != "" {
		cfg.Storage.Path = v
	}
	if v := os.Getenv("HSA_S3_BUCKET"); v != "" {
		cfg.Storage.S3.Bucket = v
	}
	if v := os.Getenv("HSA_S3_REGION"); v != "" {
		cfg.Storage.S3.Region = v
	}
	if v := os.Getenv("HSA_S3_ENDPOINT"); v != "" {
		cfg.Storage.S3.Endpoint = v
	}

	// Log configuration
	if v := os.Getenv("HSA_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("HSA_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	return nil
}

// ParseAggregates parses name=func(column) specs, skipping blank entries.
func ParseAggregates(specs []string) ([]aggregator.NamedAgg, error) {
	var out []aggregator.NamedAgg
	for _, s := range specs {
		if strings.TrimSpace(s) == "" {
			continue
		}
		agg, err := aggregator.ParseNamedAgg(s)
		if err != nil {
			return nil, hserrors.Wrap(hserrors.ErrCategoryConfig, hserrors.CodeInvalidConfig, "invalid aggregate", err)
		}
		out = append(out, agg)
	}
	return out, nil
}

// SplitList splits a comma separated list, trimming blanks.
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
