// Package observability provides run statistics for hot spot analyses:
// per-combination timings and group counts, and the slowest combinations.
package observability

import (
	"sort"
	"sync"
	"time"
)

// RunStats tracks how each combination of a sweep performed.
type RunStats struct {
	mu        sync.RWMutex
	combos    map[string]*ComboStats
	startedAt time.Time
	probe     time.Duration
	failures  int64
}

// ComboStats holds statistics for one combination.
type ComboStats struct {
	Combination string
	Depth       int
	Groups      int
	Duration    time.Duration
	Failed      bool
}

// Summary is a point-in-time snapshot of a run.
type Summary struct {
	Combinations  int
	Groups        int64
	Failures      int64
	ProbeDuration time.Duration
	SweepDuration time.Duration
	Elapsed       time.Duration
}

// NewRunStats creates an empty statistics tracker.
func NewRunStats() *RunStats {
	return &RunStats{
		combos:    make(map[string]*ComboStats),
		startedAt: time.Now(),
	}
}

// RecordProbe records how long the objective dry run took.
func (r *RunStats) RecordProbe(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.probe = d
}

// RecordCombination records the outcome of one combination. Recording the
// same combination twice replaces the earlier entry.
// This method is thread-safe.
func (r *RunStats) RecordCombination(combination string, depth, groups int, d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.combos[combination] = &ComboStats{
		Combination: combination,
		Depth:       depth,
		Groups:      groups,
		Duration:    d,
	}
}

// RecordFailure records a combination whose objective failed.
func (r *RunStats) RecordFailure(combination string, depth int, d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.failures++
	r.combos[combination] = &ComboStats{
		Combination: combination,
		Depth:       depth,
		Duration:    d,
		Failed:      true,
	}
}

// Get returns the statistics for one combination.
func (r *RunStats) Get(combination string) (ComboStats, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.combos[combination]
	if !ok {
		return ComboStats{}, false
	}
	return *s, true
}

// GetSlowest returns the top N combinations by duration (descending). Ties
// are broken by combination name so the result is stable.
func (r *RunStats) GetSlowest(n int) []ComboStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if n <= 0 || len(r.combos) == 0 {
		return []ComboStats{}
	}

	stats := make([]ComboStats, 0, len(r.combos))
	for _, s := range r.combos {
		stats = append(stats, *s)
	}

	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Duration != stats[j].Duration {
			return stats[i].Duration > stats[j].Duration
		}
		return stats[i].Combination < stats[j].Combination
	})

	if n > len(stats) {
		n = len(stats)
	}
	return stats[:n]
}

// Summary returns aggregate figures over every recorded combination.
func (r *RunStats) Summary() Summary {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s := Summary{
		Combinations:  len(r.combos),
		Failures:      r.failures,
		ProbeDuration: r.probe,
		Elapsed:       time.Since(r.startedAt),
	}
	for _, c := range r.combos {
		s.Groups += int64(c.Groups)
		s.SweepDuration += c.Duration
	}
	return s
}
