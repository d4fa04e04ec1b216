package export

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"

	"github.com/arkilian/hotspot/internal/frame"
	"github.com/arkilian/hotspot/pkg/types"
)

const maxLineSize = 16 << 20

// WriteJSONL writes one JSON object per row with keys in column order.
// Dicts are nested objects; NaN and infinities are written as null. String
// bytes that are not valid UTF-8 are written unchanged and read back by
// ReadJSONL as they were.
func WriteJSONL(w io.Writer, t *frame.Table) error {
	bw := bufio.NewWriter(w)
	keys := make([][]byte, t.Width())
	for j, c := range t.Columns() {
		k, err := json.Marshal(c)
		if err != nil {
			return fmt.Errorf("export: invalid column name %q: %w", c, err)
		}
		keys[j] = k
	}

	for i := 0; i < t.Len(); i++ {
		bw.WriteByte('{')
		for j, v := range t.Row(i) {
			if j > 0 {
				bw.WriteByte(',')
			}
			bw.Write(keys[j])
			bw.WriteByte(':')
			b, err := marshalCell(v)
			if err != nil {
				return fmt.Errorf("export: row %d column %s: %w", i, t.Columns()[j], err)
			}
			bw.Write(b)
		}
		bw.WriteString("}\n")
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("export: failed to write jsonl: %w", err)
	}
	return nil
}

func marshalCell(v interface{}) ([]byte, error) {
	switch val := v.(type) {
	case nil:
		return []byte("null"), nil
	case types.Dict:
		return []byte(types.EncodeDict(val)), nil
	case string:
		return types.AppendQuoted(nil, val), nil
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return []byte("null"), nil
		}
	case float32:
		if math.IsNaN(float64(val)) || math.IsInf(float64(val), 0) {
			return []byte("null"), nil
		}
	}
	return json.Marshal(v)
}

// ReadJSONL reads rows written by WriteJSONL. Column order follows the
// first row; keys missing from later rows read as nil. Whole numbers read
// as int64, other numbers as float64 and nested objects as dicts.
func ReadJSONL(r io.Reader) (*frame.Table, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	var columns []string
	var index map[string]int
	var rows [][]interface{}
	line := 0
	for sc.Scan() {
		line++
		b := bytes.TrimSpace(sc.Bytes())
		if len(b) == 0 {
			continue
		}
		keys, vals, err := decodeObject(b)
		if err != nil {
			return nil, fmt.Errorf("export: line %d: %w", line, err)
		}
		if columns == nil {
			columns = keys
			index = make(map[string]int, len(keys))
			for j, k := range keys {
				index[k] = j
			}
		}
		row := make([]interface{}, len(columns))
		for n, k := range keys {
			j, ok := index[k]
			if !ok {
				return nil, fmt.Errorf("export: line %d: unexpected column %q", line, k)
			}
			row[j] = vals[n]
		}
		rows = append(rows, row)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("export: failed to read jsonl: %w", err)
	}

	t, err := frame.New(columns, rows)
	if err != nil {
		return nil, fmt.Errorf("export: %w", err)
	}
	return t, nil
}

// decodeObject decodes one JSON object keeping its key order.
func decodeObject(b []byte) ([]string, []interface{}, error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, nil, fmt.Errorf("expected object, got %v", tok)
	}

	var keys []string
	var vals []interface{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, nil, fmt.Errorf("expected key, got %v", tok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, nil, fmt.Errorf("column %s: %w", key, err)
		}
		v, err := decodeCell(raw)
		if err != nil {
			return nil, nil, fmt.Errorf("column %s: %w", key, err)
		}
		keys = append(keys, key)
		vals = append(vals, v)
	}
	if _, err := dec.Token(); err != nil {
		return nil, nil, err
	}
	return keys, vals, nil
}

func decodeCell(raw json.RawMessage) (interface{}, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	switch raw[0] {
	case 'n':
		return nil, nil
	case '{':
		return types.DecodeDict(string(raw))
	case '"':
		s, _, err := types.UnquoteLiteral(string(raw))
		return s, err
	case 't', 'f':
		var bv bool
		err := json.Unmarshal(raw, &bv)
		return bv, err
	}

	n := json.Number(raw)
	if i, err := n.Int64(); err == nil {
		return i, nil
	}
	return n.Float64()
}
