package combos

import (
	"fmt"
	"reflect"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func columnNames(k int) []string {
	cols := make([]string, k)
	for i := range cols {
		cols[i] = fmt.Sprintf("col_%02d", k-i) // deliberately reverse-alphabetical
	}
	return cols
}

// TestProperty_Combinations validates the enumeration laws for any target
// count and limit.
func TestProperty_Combinations(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("count equals the sum of C(k, i) for i = 1..L", prop.ForAll(
		func(k, limit int) bool {
			got, err := Generate(columnNames(k), limit)
			if err != nil {
				return false
			}
			return len(got) == Count(k, limit)
		},
		gen.IntRange(1, 10),
		gen.IntRange(1, 10),
	))

	properties.Property("combinations are unique and depth ordered", prop.ForAll(
		func(k, limit int) bool {
			got, err := Generate(columnNames(k), limit)
			if err != nil {
				return false
			}
			seen := make(map[string]bool)
			prev := 0
			for _, c := range got {
				if len(c) < prev || len(c) < 1 || len(c) > limit {
					return false
				}
				prev = len(c)
				key := c.String()
				if seen[key] {
					return false
				}
				seen[key] = true
			}
			return true
		},
		gen.IntRange(1, 9),
		gen.IntRange(1, 9),
	))

	properties.Property("members keep their relative input order", prop.ForAll(
		func(k, limit int) bool {
			targets := columnNames(k)
			pos := make(map[string]int)
			for i, c := range targets {
				pos[c] = i
			}
			got, err := Generate(targets, limit)
			if err != nil {
				return false
			}
			for _, c := range got {
				for i := 1; i < len(c); i++ {
					if pos[c[i-1]] >= pos[c[i]] {
						return false
					}
				}
			}
			return true
		},
		gen.IntRange(1, 9),
		gen.IntRange(1, 9),
	))

	properties.Property("generation is deterministic", prop.ForAll(
		func(k, limit int) bool {
			a, errA := Generate(columnNames(k), limit)
			b, errB := Generate(columnNames(k), limit)
			return errA == nil && errB == nil && reflect.DeepEqual(a, b)
		},
		gen.IntRange(1, 8),
		gen.IntRange(1, 8),
	))

	properties.TestingRun(t)
}
