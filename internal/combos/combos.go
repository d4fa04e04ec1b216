// Package combos enumerates the column combinations a hot spot analysis
// sweeps over.
package combos

import (
	"fmt"
	"strings"

	hserrors "github.com/arkilian/hotspot/internal/errors"
)

// Combination is an ordered, duplicate-free list of target column names.
// The zero-length combination stands for the whole dataset.
type Combination []string

// String renders the combination as a comma-separated list, or "Overall"
// for the whole-dataset combination.
func (c Combination) String() string {
	if len(c) == 0 {
		return "Overall"
	}
	return strings.Join(c, ",")
}

// Generate returns every combination of targets of size 1..limit. Sizes are
// emitted in ascending order; within a size, combinations follow the
// lexicographic order of member positions in targets (never alphabetical).
// Members keep their relative order from targets.
func Generate(targets []string, limit int) ([]Combination, error) {
	if limit < 1 {
		return nil, hserrors.NewConfigError(hserrors.CodeInvalidLimit,
			fmt.Sprintf("interaction limit must be a positive integer, got %d", limit)).
			WithDetails(map[string]interface{}{"interaction_limit": limit})
	}
	if len(targets) == 0 {
		return nil, hserrors.NewConfigError(hserrors.CodeEmptyTargets, "target columns are empty")
	}
	if dups := Duplicates(targets); len(dups) > 0 {
		return nil, hserrors.NewConfigError(hserrors.CodeDuplicateColumns,
			fmt.Sprintf("duplicate target columns: %s", strings.Join(dups, ", "))).
			WithDetails(map[string]interface{}{"duplicates": dups})
	}

	var out []Combination
	for size := 1; size <= limit && size <= len(targets); size++ {
		out = appendCombinations(out, targets, size)
	}
	return out, nil
}

// appendCombinations appends all size-element subsets of targets, walking an
// index vector the same way itertools.combinations does.
func appendCombinations(out []Combination, targets []string, size int) []Combination {
	n := len(targets)
	idx := make([]int, size)
	for i := range idx {
		idx[i] = i
	}

	for {
		c := make(Combination, size)
		for i, j := range idx {
			c[i] = targets[j]
		}
		out = append(out, c)

		// Rightmost index that can still advance.
		i := size - 1
		for i >= 0 && idx[i] == i+n-size {
			i--
		}
		if i < 0 {
			return out
		}
		idx[i]++
		for j := i + 1; j < size; j++ {
			idx[j] = idx[j-1] + 1
		}
	}
}

// Count returns the number of combinations Generate yields for k targets and
// the given limit: the sum of C(k, i) for i = 1..limit.
func Count(k, limit int) int {
	total := 0
	for i := 1; i <= limit && i <= k; i++ {
		total += binomial(k, i)
	}
	return total
}

func binomial(n, k int) int {
	if k < 0 || k > n {
		return 0
	}
	if k > n-k {
		k = n - k
	}
	r := 1
	for i := 1; i <= k; i++ {
		r = r * (n - k + i) / i
	}
	return r
}

// Unique deduplicates cols, keeping the first occurrence of each name and
// dropping empty names.
func Unique(cols []string) []string {
	seen := make(map[string]bool, len(cols))
	out := make([]string, 0, len(cols))
	for _, c := range cols {
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}

// Duplicates returns each name that occurs more than once in cols, in order
// of its second occurrence.
func Duplicates(cols []string) []string {
	seen := make(map[string]int, len(cols))
	var dups []string
	for _, c := range cols {
		seen[c]++
		if seen[c] == 2 {
			dups = append(dups, c)
		}
	}
	return dups
}
