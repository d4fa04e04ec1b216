package types

import "time"

// Column affinities used when a table is materialised into SQLite.
const (
	AffinityText    = "TEXT"
	AffinityInteger = "INTEGER"
	AffinityReal    = "REAL"
)

// Schema describes the columns of a table leaving the engine.
type Schema struct {
	// Columns defines the columns in table order
	Columns []ColumnDef `json:"columns"`
}

// ColumnDef defines a single column in the schema.
type ColumnDef struct {
	// Name is the column name
	Name string `json:"name"`

	// Type is the SQLite affinity: TEXT, INTEGER, REAL
	Type string `json:"type"`

	// Nullable indicates whether any cell in the column is nil
	Nullable bool `json:"nullable"`

	// Dict marks identity dict columns, stored as canonical JSON text
	Dict bool `json:"dict,omitempty"`
}

// AffinityOf returns the SQLite affinity of a single cell. nil has no
// affinity and reports ok=false.
func AffinityOf(v interface{}) (string, bool) {
	switch v.(type) {
	case nil:
		return "", false
	case bool, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return AffinityInteger, true
	case float32, float64:
		return AffinityReal, true
	case time.Time, string, []byte, Dict:
		return AffinityText, true
	}
	return AffinityText, true
}

// WidenAffinity merges two affinities: INTEGER widens to REAL, anything
// mixed with TEXT becomes TEXT.
func WidenAffinity(current, next string) string {
	switch {
	case current == "":
		return next
	case current == next:
		return current
	case (current == AffinityInteger && next == AffinityReal) || (current == AffinityReal && next == AffinityInteger):
		return AffinityReal
	}
	return AffinityText
}
