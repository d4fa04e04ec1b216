// Package main implements the hsa binary, which runs a hot spot analysis
// over a CSV, XLSX or SQLite dataset and prints or exports the result.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/arkilian/hotspot/internal/app"
	"github.com/arkilian/hotspot/internal/config"
)

var (
	version = "dev"
	commit  = "unknown"
)

// stringList is a repeatable flag.
type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ";") }

func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

// flags holds the command line. Zero values mean "not given".
type flags struct {
	configFile   string
	data         string
	targets      string
	limit        int
	groupedBy    string
	timePeriod   string
	aggs         stringList
	search       string
	searchAcross string
	searchType   string
	interactions string
	minRows      int64
	lag          string
	sort         string
	top          int
	out          string
	showVersion  bool
	showHelp     bool

	set map[string]bool
}

func parseFlags(fs *flag.FlagSet, args []string) (*flags, error) {
	f := &flags{}
	fs.StringVar(&f.configFile, "config", "", "Path to configuration file (YAML or JSON)")
	fs.StringVar(&f.data, "data", "", "Dataset path or s3://bucket/key URI (csv, xlsx, sqlite)")
	fs.StringVar(&f.targets, "targets", "", "Comma separated target columns")
	fs.IntVar(&f.limit, "limit", 0, "Largest combination size")
	fs.StringVar(&f.groupedBy, "grouped-by", "", "Comma separated fixed grouping columns")
	fs.StringVar(&f.timePeriod, "time-period", "", "Comma separated time period columns")
	fs.Var(&f.aggs, "agg", "Aggregate as name=func(column); repeatable")
	fs.StringVar(&f.search, "search", "", "Comma separated search terms")
	fs.StringVar(&f.searchAcross, "search-across", "", "Search across keys or values")
	fs.StringVar(&f.searchType, "search-type", "", "Search type: any or all")
	fs.StringVar(&f.interactions, "interactions", "", "Comma separated interaction counts to keep")
	fs.Int64Var(&f.minRows, "min-rows", 0, "Drop rows with fewer source rows")
	fs.StringVar(&f.lag, "lag", "", "Comma separated lag offsets")
	fs.StringVar(&f.sort, "sort", "", "Comma separated sort columns; prefix - for descending")
	fs.IntVar(&f.top, "top", 0, "Keep the first N rows after sorting")
	fs.StringVar(&f.out, "out", "", "Output path or s3:// URI (csv, jsonl, jsonl.sz, sqlite); default stdout")
	fs.BoolVar(&f.showVersion, "version", false, "Show version information")
	fs.BoolVar(&f.showHelp, "help", false, "Show help message")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	f.set = make(map[string]bool)
	fs.Visit(func(fl *flag.Flag) {
		f.set[fl.Name] = true
	})
	return f, nil
}

func main() {
	fs := flag.NewFlagSet("hsa", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "hsa - hot spot analysis over every combination of target columns\n\n")
		fmt.Fprintf(os.Stderr, "Usage: hsa [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  hsa -data tips.csv -targets day,smoker,size -limit 2 -agg tip_mean=avg(tip)\n")
		fmt.Fprintf(os.Stderr, "  hsa -config analysis.yaml -search Sat -search-across values -out hotspots.jsonl\n")
		fmt.Fprintf(os.Stderr, "  hsa -data s3://datasets/tips.xlsx -targets day -time-period week -lag 1\n")
		fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
		fmt.Fprintf(os.Stderr, "  HSA_DATA_PATH           Dataset path\n")
		fmt.Fprintf(os.Stderr, "  HSA_TARGET_COLS         Comma separated target columns\n")
		fmt.Fprintf(os.Stderr, "  HSA_INTERACTION_LIMIT   Largest combination size\n")
		fmt.Fprintf(os.Stderr, "  HSA_AGGREGATES          Semicolon separated name=func(column) specs\n")
		fmt.Fprintf(os.Stderr, "  HSA_OUTPUT_PATH         Output path\n")
		fmt.Fprintf(os.Stderr, "  HSA_STORAGE_TYPE        Storage type (local, s3)\n")
		fmt.Fprintf(os.Stderr, "  HSA_LOG_LEVEL           Log level (debug, info, warn, error)\n")
	}

	f, err := parseFlags(fs, os.Args[1:])
	if err != nil {
		log.Fatalf("Failed to parse flags: %v", err)
	}

	if f.showHelp {
		fs.Usage()
		os.Exit(0)
	}

	if f.showVersion {
		fmt.Printf("hsa version %s (commit: %s)\n", version, commit)
		os.Exit(0)
	}

	cfg, err := loadConfig(f)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := cfg.Log.NewLogger(os.Stderr)
	application, err := app.New(cfg, app.WithLogger(logger))
	if err != nil {
		log.Fatalf("Failed to create application: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if _, err := application.Run(ctx, os.Stdout); err != nil {
		log.Fatalf("Analysis failed: %v", err)
	}
}

// loadConfig loads configuration from file, environment, and command line flags.
func loadConfig(f *flags) (*config.Config, error) {
	var cfg *config.Config
	var err error

	// Start with defaults or load from file
	if f.configFile != "" {
		cfg, err = config.LoadFromFile(f.configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	} else {
		cfg = config.DefaultConfig()
	}

	// Apply environment variables
	if err := config.LoadFromEnv(cfg); err != nil {
		return nil, err
	}

	// Apply command line flags (highest priority)
	if f.data != "" {
		cfg.Dataset.Path = f.data
		cfg.Dataset.Format = ""
	}
	if f.targets != "" {
		cfg.Analysis.TargetCols = config.SplitList(f.targets)
	}
	if f.set["limit"] {
		cfg.Analysis.InteractionLimit = f.limit
	}
	if f.set["grouped-by"] {
		cfg.Analysis.GroupedBy = config.SplitList(f.groupedBy)
	}
	if f.set["time-period"] {
		cfg.Analysis.TimePeriod = config.SplitList(f.timePeriod)
	}
	if len(f.aggs) > 0 {
		aggs, err := config.ParseAggregates(f.aggs)
		if err != nil {
			return nil, err
		}
		cfg.Objective.Aggregates = aggs
	}
	if f.set["search"] {
		cfg.Search.Terms = config.SplitList(f.search)
	}
	if f.searchAcross != "" {
		cfg.Search.Across = f.searchAcross
	}
	if f.searchType != "" {
		cfg.Search.Type = f.searchType
	}
	if f.set["interactions"] {
		ints, err := parseInts(f.interactions)
		if err != nil {
			return nil, fmt.Errorf("invalid -interactions: %w", err)
		}
		cfg.Search.Interactions = ints
	}
	if f.set["min-rows"] {
		cfg.Search.MinRows = f.minRows
	}
	if f.set["lag"] {
		offsets, err := parseInts(f.lag)
		if err != nil {
			return nil, fmt.Errorf("invalid -lag: %w", err)
		}
		cfg.Lag.Offsets = offsets
	}
	if f.set["sort"] {
		cfg.Output.Sort = config.SplitList(f.sort)
	}
	if f.set["top"] {
		cfg.Output.Top = f.top
	}
	if f.out != "" {
		cfg.Output.Path = f.out
		cfg.Output.Format = ""
	}

	return cfg, nil
}

func parseInts(s string) ([]int, error) {
	parts := config.SplitList(s)
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}
