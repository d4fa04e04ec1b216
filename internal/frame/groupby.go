package frame

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/spaolacci/murmur3"

	"github.com/arkilian/hotspot/pkg/types"
)

// SizeColumn is the column name Size uses for group row counts.
const SizeColumn = "n_rows"

// Group is one partition of a grouped table.
type Group struct {
	// Key holds the grouping column values, one per grouping column.
	Key []interface{}

	// Rows holds the positions of the group's rows in the source table.
	Rows []int

	keyString string
}

// Grouped is a table partitioned by an ordered list of columns. Groups are
// ordered by their key tuples so every consumer sees the same order.
type Grouped struct {
	table  *Table
	keys   []string
	groups []*Group
}

// GroupKey produces a deterministic, unambiguous string key for a tuple of
// grouping values. Values that coerce to the same string share a key, so nil
// and the literal types.NullString fall in one group.
func GroupKey(vals []interface{}) string {
	var b strings.Builder
	for _, v := range vals {
		s := types.FormatValue(v)
		b.WriteString(strconv.Itoa(len(s)))
		b.WriteByte(':')
		b.WriteString(s)
		b.WriteByte(';')
	}
	return b.String()
}

// GroupBy partitions the table by the given columns. With no columns the
// whole table is a single group.
func (t *Table) GroupBy(cols ...string) (*Grouped, error) {
	if missing := t.MissingColumns(cols...); len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrColumnNotFound, strings.Join(missing, ", "))
	}
	idx := make([]int, len(cols))
	for i, c := range cols {
		idx[i] = t.index[c]
	}

	// Keys are bucketed by their murmur3 hash; the full key string resolves
	// collisions within a bucket.
	buckets := make(map[uint64][]*Group)
	var groups []*Group

	for i, row := range t.rows {
		keyVals := make([]interface{}, len(idx))
		for k, j := range idx {
			keyVals[k] = row[j]
		}
		ks := GroupKey(keyVals)
		h := murmur3.Sum64([]byte(ks))

		var g *Group
		for _, candidate := range buckets[h] {
			if candidate.keyString == ks {
				g = candidate
				break
			}
		}
		if g == nil {
			g = &Group{Key: keyVals, keyString: ks}
			buckets[h] = append(buckets[h], g)
			groups = append(groups, g)
		}
		g.Rows = append(g.Rows, i)
	}

	sort.SliceStable(groups, func(a, b int) bool {
		return compareKeys(groups[a].Key, groups[b].Key) < 0
	})

	return &Grouped{
		table:  t,
		keys:   append([]string(nil), cols...),
		groups: groups,
	}, nil
}

func compareKeys(a, b []interface{}) int {
	for i := range a {
		if c := types.Compare(a[i], b[i]); c != 0 {
			return c
		}
	}
	return 0
}

// Keys returns the grouping column names.
func (g *Grouped) Keys() []string {
	return append([]string(nil), g.keys...)
}

// Table returns the underlying, unpartitioned table.
func (g *Grouped) Table() *Table {
	return g.table
}

// Len returns the number of groups.
func (g *Grouped) Len() int {
	return len(g.groups)
}

// Groups returns the groups in key order.
func (g *Grouped) Groups() []Group {
	out := make([]Group, len(g.groups))
	for i, grp := range g.groups {
		out[i] = *grp
	}
	return out
}

// Sizes returns the row count of each group, in key order.
func (g *Grouped) Sizes() []int64 {
	sizes := make([]int64, len(g.groups))
	for i, grp := range g.groups {
		sizes[i] = int64(len(grp.Rows))
	}
	return sizes
}

// Size returns a table with the grouping columns followed by SizeColumn,
// one row per group.
func (g *Grouped) Size() *Table {
	columns := append(g.Keys(), SizeColumn)
	rows := make([][]interface{}, len(g.groups))
	for i, grp := range g.groups {
		row := make([]interface{}, 0, len(columns))
		row = append(row, grp.Key...)
		row = append(row, int64(len(grp.Rows)))
		rows[i] = row
	}
	return MustNew(columns, rows)
}

// Each calls fn for every group, in key order, with the group's rows as a
// table. Iteration stops at the first error.
func (g *Grouped) Each(fn func(key []interface{}, part *Table) error) error {
	for _, grp := range g.groups {
		if err := fn(grp.Key, g.table.Take(grp.Rows)); err != nil {
			return err
		}
	}
	return nil
}
