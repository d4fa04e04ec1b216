package types

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"unicode/utf16"
	"unicode/utf8"
)

// Dict is the identity of one hot spot: column name to the coerced value of
// that column for the row's group.
type Dict map[string]string

// NewDict zips column names with cell values, coercing each value.
func NewDict(columns []string, values []interface{}) Dict {
	d := make(Dict, len(columns))
	for i, c := range columns {
		if i < len(values) {
			d[c] = FormatValue(values[i])
		}
	}
	return d
}

// Keys returns the dict's keys in sorted order.
func (d Dict) Keys() []string {
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Values returns the dict's values in sorted order.
func (d Dict) Values() []string {
	vals := make([]string, 0, len(d))
	for _, v := range d {
		vals = append(vals, v)
	}
	sort.Strings(vals)
	return vals
}

// Clone returns a shallow copy.
func (d Dict) Clone() Dict {
	cp := make(Dict, len(d))
	for k, v := range d {
		cp[k] = v
	}
	return cp
}

// Pop removes keys from d and returns them as a new dict. Keys absent from d
// are omitted from the result.
func (d Dict) Pop(keys []string) Dict {
	popped := make(Dict)
	for _, k := range keys {
		if v, ok := d[k]; ok {
			popped[k] = v
			delete(d, k)
		}
	}
	return popped
}

// Equal reports whether two dicts hold the same pairs.
func (d Dict) Equal(other Dict) bool {
	if len(d) != len(other) {
		return false
	}
	for k, v := range d {
		if ov, ok := other[k]; !ok || ov != v {
			return false
		}
	}
	return true
}

// String returns the canonical encoding.
func (d Dict) String() string {
	return EncodeDict(d)
}

// MergeDicts unions dicts left to right; later dicts win on key clashes.
func MergeDicts(dicts ...Dict) Dict {
	merged := make(Dict)
	for _, d := range dicts {
		for k, v := range d {
			merged[k] = v
		}
	}
	return merged
}

// EncodeDict serialises a dict to canonical JSON: keys sorted, no HTML
// escaping, no trailing newline. Equal dicts always encode to equal strings
// and distinct dicts to distinct strings. Bytes that are not valid UTF-8 are
// copied through unescaped, so such output is only readable by DecodeDict.
func EncodeDict(d Dict) string {
	keys := d.Keys()
	b := make([]byte, 0, 2+len(keys)*16)
	b = append(b, '{')
	for i, k := range keys {
		if i > 0 {
			b = append(b, ',')
		}
		b = AppendQuoted(b, k)
		b = append(b, ':')
		b = AppendQuoted(b, d[k])
	}
	return string(append(b, '}'))
}

const hexDigits = "0123456789abcdef"

// AppendQuoted appends s to b as a JSON string literal. Valid UTF-8 yields
// standard JSON; any other byte is appended unchanged.
func AppendQuoted(b []byte, s string) []byte {
	b = append(b, '"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '"' || c == '\\':
			b = append(b, '\\', c)
		case c == '\n':
			b = append(b, '\\', 'n')
		case c == '\r':
			b = append(b, '\\', 'r')
		case c == '\t':
			b = append(b, '\\', 't')
		case c < 0x20:
			b = append(b, '\\', 'u', '0', '0', hexDigits[c>>4], hexDigits[c&0xf])
		default:
			b = append(b, c)
		}
	}
	return append(b, '"')
}

// DecodeDict parses the output of EncodeDict, or any JSON object of string
// values. "null" decodes to an empty dict. Unescaped bytes inside string
// literals are kept as they are.
func DecodeDict(s string) (Dict, error) {
	p := &dictParser{s: s}
	d, err := p.object()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDict, err)
	}
	return d, nil
}

type dictParser struct {
	s   string
	pos int
}

func (p *dictParser) skipSpace() {
	for p.pos < len(p.s) {
		switch p.s[p.pos] {
		case ' ', '\t', '\n', '\r':
			p.pos++
		default:
			return
		}
	}
}

func (p *dictParser) expect(c byte) error {
	p.skipSpace()
	if p.pos >= len(p.s) {
		return fmt.Errorf("unexpected end of input, want %q", c)
	}
	if p.s[p.pos] != c {
		return fmt.Errorf("offset %d: got %q, want %q", p.pos, p.s[p.pos], c)
	}
	p.pos++
	return nil
}

func (p *dictParser) object() (Dict, error) {
	p.skipSpace()
	if strings.HasPrefix(p.s[p.pos:], "null") {
		p.pos += len("null")
		return Dict{}, p.end()
	}
	if err := p.expect('{'); err != nil {
		return nil, err
	}
	d := Dict{}
	p.skipSpace()
	if p.pos < len(p.s) && p.s[p.pos] == '}' {
		p.pos++
		return d, p.end()
	}
	for {
		k, err := p.str()
		if err != nil {
			return nil, err
		}
		if err := p.expect(':'); err != nil {
			return nil, err
		}
		v, err := p.str()
		if err != nil {
			return nil, err
		}
		d[k] = v

		p.skipSpace()
		if p.pos < len(p.s) && p.s[p.pos] == ',' {
			p.pos++
			continue
		}
		if err := p.expect('}'); err != nil {
			return nil, err
		}
		return d, p.end()
	}
}

func (p *dictParser) end() error {
	p.skipSpace()
	if p.pos != len(p.s) {
		return fmt.Errorf("offset %d: trailing data", p.pos)
	}
	return nil
}

func (p *dictParser) str() (string, error) {
	if err := p.expect('"'); err != nil {
		return "", err
	}
	v, n, err := UnquoteLiteral(p.s[p.pos-1:])
	if err != nil {
		return "", fmt.Errorf("offset %d: %w", p.pos-1, err)
	}
	p.pos += n - 1
	return v, nil
}

// UnquoteLiteral decodes the JSON string literal at the start of s and
// returns its value and the literal's length in bytes. It reverses
// AppendQuoted: bytes that are not escapes are copied as they are.
func UnquoteLiteral(s string) (string, int, error) {
	if len(s) == 0 || s[0] != '"' {
		return "", 0, fmt.Errorf("expected string literal")
	}
	var b []byte
	for i := 1; i < len(s); {
		c := s[i]
		switch {
		case c == '"':
			return string(b), i + 1, nil
		case c < 0x20:
			return "", 0, fmt.Errorf("control byte %#x in string literal", c)
		case c != '\\':
			b = append(b, c)
			i++
			continue
		}

		if i+1 >= len(s) {
			break
		}
		switch e := s[i+1]; e {
		case '"', '\\', '/':
			b = append(b, e)
		case 'b':
			b = append(b, '\b')
		case 'f':
			b = append(b, '\f')
		case 'n':
			b = append(b, '\n')
		case 'r':
			b = append(b, '\r')
		case 't':
			b = append(b, '\t')
		case 'u':
			r, n, err := unquoteRune(s[i:])
			if err != nil {
				return "", 0, err
			}
			b = utf8.AppendRune(b, r)
			i += n
			continue
		default:
			return "", 0, fmt.Errorf("invalid escape \\%c", e)
		}
		i += 2
	}
	return "", 0, fmt.Errorf("unterminated string literal")
}

// unquoteRune decodes a \uXXXX escape, joining surrogate pairs. Lone
// surrogates decode to utf8.RuneError as encoding/json does.
func unquoteRune(s string) (rune, int, error) {
	r1, ok := hex4(s)
	if !ok {
		return 0, 0, fmt.Errorf("invalid unicode escape")
	}
	if !utf16.IsSurrogate(r1) {
		return r1, 6, nil
	}
	if r2, ok := hex4(s[6:]); ok {
		if r := utf16.DecodeRune(r1, r2); r != utf8.RuneError {
			return r, 12, nil
		}
	}
	return utf8.RuneError, 6, nil
}

func hex4(s string) (rune, bool) {
	if len(s) < 6 || s[0] != '\\' || s[1] != 'u' {
		return 0, false
	}
	n, err := strconv.ParseUint(s[2:6], 16, 32)
	if err != nil {
		return 0, false
	}
	return rune(n), true
}
