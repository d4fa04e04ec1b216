package frame

import (
	"fmt"
	"sort"
	"strings"

	"github.com/arkilian/hotspot/pkg/types"
)

// SortKey is one ordering term.
type SortKey struct {
	Column string
	Desc   bool
}

// ParseSortKey parses "col" (ascending) or "-col" (descending).
func ParseSortKey(s string) SortKey {
	if strings.HasPrefix(s, "-") {
		return SortKey{Column: s[1:], Desc: true}
	}
	return SortKey{Column: strings.TrimPrefix(s, "+")}
}

// SortBy returns the rows ordered by the given keys. The sort is stable, so
// rows that compare equal keep their relative order.
func (t *Table) SortBy(keys ...SortKey) (*Table, error) {
	if len(keys) == 0 || len(t.rows) <= 1 {
		return t, nil
	}

	indices := make([]int, len(keys))
	for i, k := range keys {
		idx, ok := t.index[k.Column]
		if !ok {
			return nil, fmt.Errorf("%w: sort column %q", ErrColumnNotFound, k.Column)
		}
		indices[i] = idx
	}

	order := make([]int, len(t.rows))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		ra, rb := t.rows[order[a]], t.rows[order[b]]
		for k, key := range keys {
			cmp := types.Compare(ra[indices[k]], rb[indices[k]])
			if cmp == 0 {
				continue
			}
			if key.Desc {
				return cmp > 0
			}
			return cmp < 0
		}
		return false
	})

	return t.Take(order), nil
}
