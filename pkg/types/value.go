// Package types provides the core value types shared by the hot spot engine:
// cell coercion and comparison, identity dicts, and column schemas.
package types

import (
	"fmt"
	"strconv"
	"time"
)

// NullString is the coerced form of a nil cell.
const NullString = "<NULL>"

// FormatValue coerces a cell to its deterministic string form. Identity dicts
// are built from this form, so two cells that print the same compare equal
// regardless of their source type.
func FormatValue(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return NullString
	case string:
		return val
	case []byte:
		return string(val)
	case bool:
		return strconv.FormatBool(val)
	case int:
		return strconv.FormatInt(int64(val), 10)
	case int8:
		return strconv.FormatInt(int64(val), 10)
	case int16:
		return strconv.FormatInt(int64(val), 10)
	case int32:
		return strconv.FormatInt(int64(val), 10)
	case int64:
		return strconv.FormatInt(val, 10)
	case uint:
		return strconv.FormatUint(uint64(val), 10)
	case uint8:
		return strconv.FormatUint(uint64(val), 10)
	case uint16:
		return strconv.FormatUint(uint64(val), 10)
	case uint32:
		return strconv.FormatUint(uint64(val), 10)
	case uint64:
		return strconv.FormatUint(val, 10)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case time.Time:
		return val.UTC().Format(time.RFC3339Nano)
	case Dict:
		return EncodeDict(val)
	case fmt.Stringer:
		return val.String()
	}
	return fmt.Sprint(v)
}

// ToFloat converts a numeric cell to float64.
func ToFloat(v interface{}) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int64:
		return float64(val), true
	case int:
		return float64(val), true
	case int32:
		return float64(val), true
	case int16:
		return float64(val), true
	case int8:
		return float64(val), true
	case uint64:
		return float64(val), true
	case uint32:
		return float64(val), true
	case uint16:
		return float64(val), true
	case uint8:
		return float64(val), true
	case uint:
		return float64(val), true
	}
	return 0, false
}

// ToInt64 converts an integral cell to int64.
func ToInt64(v interface{}) (int64, bool) {
	switch val := v.(type) {
	case int64:
		return val, true
	case int:
		return int64(val), true
	case int32:
		return int64(val), true
	case int16:
		return int64(val), true
	case int8:
		return int64(val), true
	case uint32:
		return int64(val), true
	case uint16:
		return int64(val), true
	case uint8:
		return int64(val), true
	case uint:
		return int64(val), true
	case uint64:
		return int64(val), true
	}
	return 0, false
}

// Compare orders two cells. nil sorts first, numbers compare numerically,
// times chronologically, strings lexically; mixed types fall back to their
// formatted strings.
func Compare(a, b interface{}) int {
	if a == nil && b == nil {
		return 0
	}
	if a == nil {
		return -1
	}
	if b == nil {
		return 1
	}

	fa, aOk := ToFloat(a)
	fb, bOk := ToFloat(b)
	if aOk && bOk {
		return compareFloat(fa, fb)
	}

	if ta, ok := a.(time.Time); ok {
		if tb, ok := b.(time.Time); ok {
			return ta.Compare(tb)
		}
	}

	return compareString(FormatValue(a), FormatValue(b))
}

// CompareNumericStrings compares two coerced strings, numerically when both
// parse as numbers.
func CompareNumericStrings(a, b string) int {
	fa, errA := strconv.ParseFloat(a, 64)
	fb, errB := strconv.ParseFloat(b, 64)
	if errA == nil && errB == nil {
		return compareFloat(fa, fb)
	}
	return compareString(a, b)
}

func compareFloat(a, b float64) int {
	if a < b {
		return -1
	} else if a > b {
		return 1
	}
	return 0
}

func compareString(a, b string) int {
	if a < b {
		return -1
	} else if a > b {
		return 1
	}
	return 0
}
