// Package coverage implements the harness's falsification-strength
// instrumentation: fault-point/invariant/state-tuple/event-sequence
// counters, threshold presets, canary mutation scoring, and the
// determinism validator. Every counter map is iterated in sorted-key
// order wherever it is reported, per the harness's hash-map
// iteration-order rule; Merge only sums counts and unions sets, which
// give the same result in any order — reports must be identical
// regardless of which batch worker happened to touch a key first.
package coverage

import (
	"fmt"
	"sort"
	"sync"
)

// StateTuple is a unique (view, op, commit) triple observed on some
// replica snapshot during a run.
type StateTuple struct {
	View, Op, Commit int64
}

// Counters accumulates the four coverage multisets plus the small set of
// scalar structural counters, for one worker (a single seed, or a single
// batch-parallel worker's share of many seeds). mu guards every field:
// a Counters is normally single-goroutine (one per simulated seed), but
// a batch merges many seeds' Counters into one shared aggregate from
// concurrent workers, and an observability.Dashboard may read that same
// aggregate from a third goroutine while it is still being written, so
// every exported method takes the lock rather than assuming one or the
// other caller pattern.
type Counters struct {
	mu sync.Mutex

	FaultPoints       map[string]int
	InvariantExecuted map[string]int
	StateTuples       map[StateTuple]struct{}
	EventSequences    map[string]struct{}

	ViewChanges      int
	Repairs          int
	UniqueQueryPlans int
}

// New constructs an empty counters set.
func New() *Counters {
	return &Counters{
		FaultPoints:      make(map[string]int),
		InvariantExecuted: make(map[string]int),
		StateTuples:      make(map[StateTuple]struct{}),
		EventSequences:   make(map[string]struct{}),
	}
}

// RecordFaultPoint bumps the named fault point's hit counter.
func (c *Counters) RecordFaultPoint(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.FaultPoints[name]++
}

// RecordInvariantExecution bumps the named invariant's execution counter.
func (c *Counters) RecordInvariantExecution(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.InvariantExecuted[name]++
}

// RecordStateTuple marks a (view, op, commit) triple as visited.
func (c *Counters) RecordStateTuple(t StateTuple) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.StateTuples[t] = struct{}{}
}

// RecordEventSequence marks a bounded-length event/message path as
// observed. Callers are responsible for bounding the sequence length
// before calling this (e.g. a sliding window of the last N message
// types), since an unbounded key space would make coverage reporting
// meaningless.
func (c *Counters) RecordEventSequence(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.EventSequences[key] = struct{}{}
}

// Merge folds other into c, summing counters and unioning sets. Summing
// is commutative, so batch aggregation across parallel workers produces
// an identical result regardless of merge order. other is only ever read
// here, so two Counters may safely be merged into two different
// destinations concurrently so long as neither destination is also a
// source.
func (c *Counters) Merge(other *Counters) {
	other.mu.Lock()
	faultPoints := make(map[string]int, len(other.FaultPoints))
	for k, v := range other.FaultPoints {
		faultPoints[k] = v
	}
	invariantExecuted := make(map[string]int, len(other.InvariantExecuted))
	for k, v := range other.InvariantExecuted {
		invariantExecuted[k] = v
	}
	stateTuples := make([]StateTuple, 0, len(other.StateTuples))
	for k := range other.StateTuples {
		stateTuples = append(stateTuples, k)
	}
	eventSequences := make([]string, 0, len(other.EventSequences))
	for k := range other.EventSequences {
		eventSequences = append(eventSequences, k)
	}
	viewChanges, repairs, uniqueQueryPlans := other.ViewChanges, other.Repairs, other.UniqueQueryPlans
	other.mu.Unlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	for k, v := range faultPoints {
		c.FaultPoints[k] += v
	}
	for k, v := range invariantExecuted {
		c.InvariantExecuted[k] += v
	}
	for _, k := range stateTuples {
		c.StateTuples[k] = struct{}{}
	}
	for _, k := range eventSequences {
		c.EventSequences[k] = struct{}{}
	}
	c.ViewChanges += viewChanges
	c.Repairs += repairs
	c.UniqueQueryPlans += uniqueQueryPlans
}

// SortedFaultPointNames returns fault point names in sorted order, for
// deterministic reporting.
func (c *Counters) SortedFaultPointNames() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return sortedKeysInt(c.FaultPoints)
}

// SortedInvariantNames returns invariant names in sorted order.
func (c *Counters) SortedInvariantNames() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return sortedKeysInt(c.InvariantExecuted)
}

// Snapshot returns a deep copy of c, safe to read freely without further
// synchronization. Reporting code that runs concurrently with a batch
// still Merge-ing into c (observability.Dashboard, Exporter) takes a
// Snapshot rather than ranging c's maps directly, since Go maps panic on
// a concurrent read/write rather than merely returning a stale value.
func (c *Counters) Snapshot() *Counters {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := &Counters{
		FaultPoints:       make(map[string]int, len(c.FaultPoints)),
		InvariantExecuted: make(map[string]int, len(c.InvariantExecuted)),
		StateTuples:       make(map[StateTuple]struct{}, len(c.StateTuples)),
		EventSequences:    make(map[string]struct{}, len(c.EventSequences)),
		ViewChanges:       c.ViewChanges,
		Repairs:           c.Repairs,
		UniqueQueryPlans:  c.UniqueQueryPlans,
	}
	for k, v := range c.FaultPoints {
		cp.FaultPoints[k] = v
	}
	for k, v := range c.InvariantExecuted {
		cp.InvariantExecuted[k] = v
	}
	for k := range c.StateTuples {
		cp.StateTuples[k] = struct{}{}
	}
	for k := range c.EventSequences {
		cp.EventSequences[k] = struct{}{}
	}
	return cp
}

func sortedKeysInt(m map[string]int) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Thresholds define the minimum coverage a batch must demonstrate.
// Three presets are provided: smoke, default, nightly.
type Thresholds struct {
	Name                      string
	MinFaultPointCoveragePct  float64
	CriticalFaultPoints       []string // each must be hit at least once
	MinInvariantsExecuted     int      // distinct invariants that ran at least once
	MinViewChanges            int
	MinRepairs                int
	KnownFaultPoints          []string // the full catalog, for coverage-pct denominator
}

// SmokeThresholds is the fast, low-bar preset for quick local iteration.
func SmokeThresholds(catalog []string) Thresholds {
	return Thresholds{Name: "smoke", MinFaultPointCoveragePct: 0, MinInvariantsExecuted: 1, KnownFaultPoints: catalog}
}

// DefaultThresholds is the standard CI preset.
func DefaultThresholds(catalog []string) Thresholds {
	return Thresholds{Name: "default", MinFaultPointCoveragePct: 50, MinInvariantsExecuted: 8, MinViewChanges: 1, KnownFaultPoints: catalog}
}

// NightlyThresholds is the exhaustive preset run on a schedule.
func NightlyThresholds(catalog []string, critical []string) Thresholds {
	return Thresholds{
		Name:                     "nightly",
		MinFaultPointCoveragePct: 90,
		CriticalFaultPoints:      critical,
		MinInvariantsExecuted:    16,
		MinViewChanges:           5,
		MinRepairs:               2,
		KnownFaultPoints:         catalog,
	}
}

// Shortfall describes one specific way a batch failed to meet its
// thresholds, suitable for an actionable report.
type Shortfall struct {
	Kind   string // "fault_point_pct", "critical_fault_point", "invariants_executed", "view_changes", "repairs"
	Detail string
}

// Evaluate checks counters against thresholds, returning every shortfall
// found (not just the first), so a single report is fully actionable.
func (c *Counters) Evaluate(t Thresholds) []Shortfall {
	c.mu.Lock()
	defer c.mu.Unlock()

	var shortfalls []Shortfall

	if len(t.KnownFaultPoints) > 0 {
		hit := 0
		for _, fp := range t.KnownFaultPoints {
			if c.FaultPoints[fp] > 0 {
				hit++
			}
		}
		pct := 100 * float64(hit) / float64(len(t.KnownFaultPoints))
		if pct < t.MinFaultPointCoveragePct {
			shortfalls = append(shortfalls, Shortfall{
				Kind:   "fault_point_pct",
				Detail: fmt.Sprintf("hit %d/%d fault points (%.1f%%), need >= %.1f%%", hit, len(t.KnownFaultPoints), pct, t.MinFaultPointCoveragePct),
			})
		}
	}

	for _, fp := range t.CriticalFaultPoints {
		if c.FaultPoints[fp] == 0 {
			shortfalls = append(shortfalls, Shortfall{Kind: "critical_fault_point", Detail: fmt.Sprintf("required fault point %q was never hit", fp)})
		}
	}

	if len(c.InvariantExecuted) < t.MinInvariantsExecuted {
		shortfalls = append(shortfalls, Shortfall{
			Kind:   "invariants_executed",
			Detail: fmt.Sprintf("%d distinct invariants executed, need >= %d", len(c.InvariantExecuted), t.MinInvariantsExecuted),
		})
	}

	if c.ViewChanges < t.MinViewChanges {
		shortfalls = append(shortfalls, Shortfall{Kind: "view_changes", Detail: fmt.Sprintf("%d view changes observed, need >= %d", c.ViewChanges, t.MinViewChanges)})
	}

	if c.Repairs < t.MinRepairs {
		shortfalls = append(shortfalls, Shortfall{Kind: "repairs", Detail: fmt.Sprintf("%d repairs observed, need >= %d", c.Repairs, t.MinRepairs)})
	}

	return shortfalls
}

// Dominates reports whether c has every counter the same or higher than
// prior, used by the coverage-monotonicity property test (adding seeds
// to a batch never decreases any coverage counter).
func (c *Counters) Dominates(prior *Counters) bool {
	cur := c.Snapshot()
	pre := prior.Snapshot()

	for k, v := range pre.FaultPoints {
		if cur.FaultPoints[k] < v {
			return false
		}
	}
	for k, v := range pre.InvariantExecuted {
		if cur.InvariantExecuted[k] < v {
			return false
		}
	}
	for k := range pre.StateTuples {
		if _, ok := cur.StateTuples[k]; !ok {
			return false
		}
	}
	for k := range pre.EventSequences {
		if _, ok := cur.EventSequences[k]; !ok {
			return false
		}
	}
	return cur.ViewChanges >= pre.ViewChanges && cur.Repairs >= pre.Repairs && cur.UniqueQueryPlans >= pre.UniqueQueryPlans
}
