package export

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/arkilian/hotspot/internal/frame"
	"github.com/arkilian/hotspot/pkg/types"
)

// SchemaOf derives the SQLite schema of a table from its cells. Columns
// with no typed cell are TEXT.
func SchemaOf(t *frame.Table) types.Schema {
	cols := make([]types.ColumnDef, t.Width())
	for j, name := range t.Columns() {
		cols[j].Name = name
	}
	for i := 0; i < t.Len(); i++ {
		for j, v := range t.Row(i) {
			if v == nil {
				cols[j].Nullable = true
				continue
			}
			if f, ok := v.(float64); ok && math.IsNaN(f) {
				cols[j].Nullable = true
			}
			if _, ok := v.(types.Dict); ok {
				cols[j].Dict = true
			}
			aff, _ := types.AffinityOf(v)
			cols[j].Type = types.WidenAffinity(cols[j].Type, aff)
		}
	}
	for j := range cols {
		if cols[j].Type == "" {
			cols[j].Type = types.AffinityText
		}
	}
	return types.Schema{Columns: cols}
}

// WriteSQLite writes t into table of the database at path, replacing any
// existing table of that name.
func WriteSQLite(ctx context.Context, t *frame.Table, path, table string) error {
	if table == "" {
		table = DefaultTable
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("export: failed to create output directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return fmt.Errorf("export: failed to open SQLite database: %w", err)
	}
	defer db.Close()

	schema := SchemaOf(t)
	defs := make([]string, len(schema.Columns))
	names := make([]string, len(schema.Columns))
	marks := make([]string, len(schema.Columns))
	for j, c := range schema.Columns {
		names[j] = quoteIdent(c.Name)
		defs[j] = names[j] + " " + c.Type
		if !c.Nullable {
			defs[j] += " NOT NULL"
		}
		marks[j] = "?"
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("export: failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+quoteIdent(table)); err != nil {
		return fmt.Errorf("export: failed to drop table: %w", err)
	}
	create := fmt.Sprintf("CREATE TABLE %s (%s)", quoteIdent(table), strings.Join(defs, ", "))
	if _, err := tx.ExecContext(ctx, create); err != nil {
		return fmt.Errorf("export: failed to create table: %w", err)
	}

	insert := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quoteIdent(table), strings.Join(names, ", "), strings.Join(marks, ", "))
	stmt, err := tx.PrepareContext(ctx, insert)
	if err != nil {
		return fmt.Errorf("export: failed to prepare insert statement: %w", err)
	}
	defer stmt.Close()

	args := make([]interface{}, t.Width())
	for i := 0; i < t.Len(); i++ {
		for j, v := range t.Row(i) {
			args[j] = sqliteValue(v)
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("export: failed to insert row %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("export: failed to commit: %w", err)
	}
	return nil
}

func sqliteValue(v interface{}) interface{} {
	switch val := v.(type) {
	case types.Dict:
		return types.EncodeDict(val)
	case bool, int64, float64, string, []byte, nil:
		return v
	case int, int8, int16, int32, uint, uint8, uint16, uint32, uint64:
		n, _ := types.ToInt64(v)
		return n
	case float32:
		return float64(val)
	}
	return types.FormatValue(v)
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
