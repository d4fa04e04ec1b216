// Package loader reads analysis datasets from CSV, XLSX and SQLite files,
// local or in object storage, into typed frame tables.
package loader

import (
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/xuri/excelize/v2"

	hserrors "github.com/arkilian/hotspot/internal/errors"
	"github.com/arkilian/hotspot/internal/frame"
	"github.com/arkilian/hotspot/internal/storage"
)

// Supported input formats.
const (
	FormatCSV    = "csv"
	FormatXLSX   = "xlsx"
	FormatSQLite = "sqlite"
)

// Source describes one dataset to load.
type Source struct {
	// Path is a local file or an s3://bucket/key URI
	Path string

	// Format is csv, xlsx or sqlite; inferred from Path when empty
	Format string

	// Sheet selects the XLSX sheet (default: first sheet)
	Sheet string

	// Table selects the SQLite table
	Table string

	// Query overrides the SQLite query
	Query string

	// GroupedBy marks the dataset as already partitioned by these columns
	GroupedBy []string
}

// Load reads src into a dataset. Remote paths are downloaded through open
// into a temporary file first; open may be nil for local-only use.
func Load(ctx context.Context, src Source, open storage.Opener) (frame.Dataset, error) {
	loc, err := storage.ParseURI(src.Path)
	if err != nil {
		return nil, hserrors.Wrap(hserrors.ErrCategoryConfig, hserrors.CodeInvalidConfig,
			"invalid dataset path", err)
	}

	format := src.Format
	if format == "" {
		format = detectFormat(loc.Key)
	}
	if format == "" {
		return nil, hserrors.NewConfigError(hserrors.CodeInvalidConfig,
			fmt.Sprintf("cannot infer dataset format from %q", src.Path))
	}

	path := loc.Key
	if loc.IsRemote() {
		local, cleanup, err := fetch(ctx, loc, open)
		if err != nil {
			return nil, err
		}
		defer cleanup()
		path = local
	}

	var t *frame.Table
	switch format {
	case FormatCSV:
		t, err = LoadCSV(path)
	case FormatXLSX:
		t, err = LoadXLSX(path, src.Sheet)
	case FormatSQLite:
		t, err = LoadSQLite(ctx, path, src.Table, src.Query)
	default:
		return nil, hserrors.NewConfigError(hserrors.CodeInvalidConfig,
			fmt.Sprintf("unsupported dataset format %q", format))
	}
	if err != nil {
		return nil, err
	}

	if len(src.GroupedBy) > 0 {
		return frame.PreGrouped(t, src.GroupedBy...), nil
	}
	return frame.Plain(t), nil
}

func detectFormat(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return FormatCSV
	case ".xlsx":
		return FormatXLSX
	case ".db", ".sqlite", ".sqlite3":
		return FormatSQLite
	}
	return ""
}

// fetch downloads a remote object to a temporary directory. The returned
// cleanup removes it.
func fetch(ctx context.Context, loc storage.Location, open storage.Opener) (string, func(), error) {
	if open == nil {
		return "", nil, hserrors.NewConfigError(hserrors.CodeInvalidConfig,
			fmt.Sprintf("no object storage configured for %s", loc))
	}
	store, err := open(ctx, loc.Bucket)
	if err != nil {
		return "", nil, hserrors.NewStorageError(hserrors.CodeDownloadFailed,
			fmt.Sprintf("open bucket %s", loc.Bucket), err)
	}

	dir, err := os.MkdirTemp("", "hsa-dataset-*")
	if err != nil {
		return "", nil, fmt.Errorf("loader: failed to create temp dir: %w", err)
	}
	cleanup := func() { os.RemoveAll(dir) }

	local := filepath.Join(dir, filepath.Base(loc.Key))
	if err := store.Download(ctx, loc.Key, local); err != nil {
		cleanup()
		code := hserrors.CodeDownloadFailed
		if errors.Is(err, storage.ErrObjectNotFound) {
			code = hserrors.CodeObjectNotFound
		}
		return "", nil, hserrors.NewStorageError(code, fmt.Sprintf("download %s", loc), err)
	}
	return local, cleanup, nil
}

// LoadCSV reads a CSV file whose first record is the header.
func LoadCSV(path string) (*frame.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("loader: failed to open %s: %w", path, err)
	}
	defer f.Close()
	return ReadCSV(f)
}

// ReadCSV reads CSV records from r, first record as header.
func ReadCSV(r io.Reader) (*frame.Table, error) {
	cr := csv.NewReader(r)
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("loader: failed to read csv: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("loader: csv has no header")
	}
	header := records[0]
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	return typedTable(header, records[1:])
}

// LoadXLSX reads one sheet of a workbook, first row as header. An empty
// sheet name selects the first sheet.
func LoadXLSX(path, sheet string) (*frame.Table, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("loader: failed to open %s: %w", path, err)
	}
	defer f.Close()

	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, fmt.Errorf("loader: workbook %s has no sheets", path)
		}
		sheet = sheets[0]
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("loader: failed to read sheet %q: %w", sheet, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("loader: sheet %q has no header", sheet)
	}

	// GetRows trims trailing empty cells, so rows may be ragged.
	header := rows[0]
	body := make([][]string, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if len(row) > len(header) {
			row = row[:len(header)]
		}
		padded := make([]string, len(header))
		copy(padded, row)
		body = append(body, padded)
	}
	return typedTable(header, body)
}

// LoadSQLite runs query against the database at path. An empty query
// selects every row of table.
func LoadSQLite(ctx context.Context, path, table, query string) (*frame.Table, error) {
	if query == "" {
		if table == "" {
			return nil, hserrors.NewConfigError(hserrors.CodeInvalidConfig,
				"sqlite datasets need a table or a query")
		}
		query = fmt.Sprintf("SELECT * FROM %s", quoteIdent(table))
	}
	// sql.Open would create a missing file.
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("loader: failed to open %s: %w", path, err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("loader: failed to open SQLite database: %w", err)
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("loader: query failed: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("loader: failed to read columns: %w", err)
	}

	var out [][]interface{}
	for rows.Next() {
		vals := make([]interface{}, len(columns))
		ptrs := make([]interface{}, len(columns))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("loader: failed to scan row: %w", err)
		}
		for i, v := range vals {
			vals[i] = sqliteCell(v)
		}
		out = append(out, vals)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("loader: failed to read rows: %w", err)
	}

	t, err := frame.New(columns, out)
	if err != nil {
		return nil, fmt.Errorf("loader: %w", err)
	}
	return t, nil
}

func sqliteCell(v interface{}) interface{} {
	switch val := v.(type) {
	case []byte:
		return string(val)
	case time.Time:
		return val.UTC()
	}
	return v
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// typedTable builds a table from string records, typing each column as
// the narrowest of int64, float64, bool and string that fits every
// non-empty cell. Empty cells become nil.
func typedTable(header []string, records [][]string) (*frame.Table, error) {
	rows := make([][]interface{}, len(records))
	for i := range rows {
		rows[i] = make([]interface{}, len(header))
	}
	for j := range header {
		cells := make([]string, len(records))
		for i, rec := range records {
			if j < len(rec) {
				cells[i] = rec[j]
			}
		}
		for i, v := range inferColumn(cells) {
			rows[i][j] = v
		}
	}

	t, err := frame.New(header, rows)
	if err != nil {
		return nil, fmt.Errorf("loader: %w", err)
	}
	return t, nil
}

type kind int

const (
	kindInt kind = iota
	kindFloat
	kindBool
	kindString
)

func inferColumn(cells []string) []interface{} {
	k := kindInt
	for k < kindString && !allFit(cells, k) {
		k++
	}

	out := make([]interface{}, len(cells))
	for i, c := range cells {
		trimmed := strings.TrimSpace(c)
		if trimmed == "" {
			continue
		}
		switch k {
		case kindInt:
			out[i], _ = strconv.ParseInt(trimmed, 10, 64)
		case kindFloat:
			out[i], _ = strconv.ParseFloat(trimmed, 64)
		case kindBool:
			out[i] = strings.EqualFold(trimmed, "true")
		default:
			out[i] = c
		}
	}
	return out
}

func allFit(cells []string, k kind) bool {
	for _, c := range cells {
		c = strings.TrimSpace(c)
		if c != "" && !fits(c, k) {
			return false
		}
	}
	return true
}

func fits(s string, k kind) bool {
	switch k {
	case kindInt:
		_, err := strconv.ParseInt(s, 10, 64)
		return err == nil
	case kindFloat:
		_, err := strconv.ParseFloat(s, 64)
		return err == nil
	case kindBool:
		return strings.EqualFold(s, "true") || strings.EqualFold(s, "false")
	}
	return true
}
