// Package export writes result tables as CSV, JSON lines (optionally
// snappy-compressed) or SQLite, to local files or object storage.
package export

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/golang/snappy"

	hserrors "github.com/arkilian/hotspot/internal/errors"
	"github.com/arkilian/hotspot/internal/frame"
	"github.com/arkilian/hotspot/internal/storage"
	"github.com/arkilian/hotspot/pkg/types"
)

// Supported output formats.
const (
	FormatCSV         = "csv"
	FormatJSONL       = "jsonl"
	FormatJSONLSnappy = "jsonl.sz"
	FormatSQLite      = "sqlite"
)

// DefaultTable is the SQLite table name used when none is given.
const DefaultTable = "hotspots"

// Target describes where a table is written.
type Target struct {
	// Path is a local file or an s3://bucket/key URI
	Path string

	// Format is csv, jsonl, jsonl.sz or sqlite; inferred from Path when empty
	Format string

	// Table is the SQLite table name
	Table string
}

// Write writes t to dst. Remote destinations are written to a temporary
// file and uploaded through open.
func Write(ctx context.Context, t *frame.Table, dst Target, open storage.Opener) error {
	loc, err := storage.ParseURI(dst.Path)
	if err != nil {
		return hserrors.Wrap(hserrors.ErrCategoryConfig, hserrors.CodeInvalidConfig,
			"invalid output path", err)
	}
	format := dst.Format
	if format == "" {
		format = DetectFormat(loc.Key)
	}
	if format == "" {
		return hserrors.NewConfigError(hserrors.CodeInvalidConfig,
			fmt.Sprintf("cannot infer output format from %q", dst.Path))
	}

	if !loc.IsRemote() {
		return WriteFile(ctx, t, loc.Key, format, dst.Table)
	}

	if open == nil {
		return hserrors.NewConfigError(hserrors.CodeInvalidConfig,
			fmt.Sprintf("no object storage configured for %s", loc))
	}
	dir, err := os.MkdirTemp("", "hsa-export-*")
	if err != nil {
		return fmt.Errorf("export: failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	local := filepath.Join(dir, filepath.Base(loc.Key))
	if err := WriteFile(ctx, t, local, format, dst.Table); err != nil {
		return err
	}
	store, err := open(ctx, loc.Bucket)
	if err != nil {
		return hserrors.NewStorageError(hserrors.CodeUploadFailed,
			fmt.Sprintf("open bucket %s", loc.Bucket), err)
	}
	if err := store.Upload(ctx, local, loc.Key); err != nil {
		return hserrors.NewStorageError(hserrors.CodeUploadFailed, fmt.Sprintf("upload %s", loc), err)
	}
	return nil
}

// DetectFormat infers an output format from a file name.
func DetectFormat(path string) string {
	lower := strings.ToLower(path)
	switch {
	case strings.HasSuffix(lower, ".jsonl.sz"):
		return FormatJSONLSnappy
	case strings.HasSuffix(lower, ".jsonl"), strings.HasSuffix(lower, ".ndjson"):
		return FormatJSONL
	case strings.HasSuffix(lower, ".csv"):
		return FormatCSV
	case strings.HasSuffix(lower, ".db"), strings.HasSuffix(lower, ".sqlite"), strings.HasSuffix(lower, ".sqlite3"):
		return FormatSQLite
	}
	return ""
}

// WriteFile writes t to a local file in the given format.
func WriteFile(ctx context.Context, t *frame.Table, path, format, table string) error {
	if format == FormatSQLite {
		return WriteSQLite(ctx, t, path, table)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("export: failed to create output directory: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("export: failed to create %s: %w", path, err)
	}
	if err := Encode(f, t, format); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Encode writes t to w in a stream format: csv, jsonl or jsonl.sz.
func Encode(w io.Writer, t *frame.Table, format string) error {
	switch format {
	case FormatCSV:
		return WriteCSV(w, t)
	case FormatJSONL:
		return WriteJSONL(w, t)
	case FormatJSONLSnappy:
		sw := snappy.NewBufferedWriter(w)
		if err := WriteJSONL(sw, t); err != nil {
			sw.Close()
			return err
		}
		return sw.Close()
	case FormatSQLite:
		return hserrors.NewConfigError(hserrors.CodeInvalidConfig, "sqlite output needs a file path")
	}
	return hserrors.NewConfigError(hserrors.CodeInvalidConfig,
		fmt.Sprintf("unsupported output format %q", format))
}

// WriteCSV writes a header and one record per row. Dicts are written as
// canonical JSON and nil cells as empty fields.
func WriteCSV(w io.Writer, t *frame.Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Columns()); err != nil {
		return fmt.Errorf("export: failed to write csv header: %w", err)
	}
	record := make([]string, t.Width())
	for i := 0; i < t.Len(); i++ {
		for j, v := range t.Row(i) {
			if v == nil {
				record[j] = ""
				continue
			}
			record[j] = types.FormatValue(v)
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("export: failed to write csv row %d: %w", i, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("export: failed to flush csv: %w", err)
	}
	return nil
}

// ReadFile reads a jsonl or jsonl.sz file written by WriteFile.
func ReadFile(path string) (*frame.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("export: failed to open %s: %w", path, err)
	}
	defer f.Close()

	switch DetectFormat(path) {
	case FormatJSONLSnappy:
		return ReadJSONL(snappy.NewReader(f))
	case FormatJSONL:
		return ReadJSONL(f)
	}
	return nil, errors.New("export: only jsonl and jsonl.sz files can be read back")
}
