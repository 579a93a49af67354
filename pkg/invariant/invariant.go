// Package invariant is the harness's registry of safety and liveness
// checkers: each declares a name, the event kinds it listens to, a
// resource category, a cost class, and a pure predicate over the
// current snapshots/model/history. Every evaluation bumps a per-checker
// execution counter, the basis of coverage enforcement.
//
// Each checker returns the Violations it found and records its
// evaluation in coverage.Counters.InvariantExecuted: a predicate over
// this run's own state rather than a threshold against a live cluster.
package invariant

import (
	"fmt"
	"sort"

	"github.com/jihwankim/viewharness/pkg/coverage"
	"github.com/jihwankim/viewharness/pkg/replica"
	"github.com/jihwankim/viewharness/pkg/simclock"
	"github.com/jihwankim/viewharness/pkg/simqueue"
)

// Category is the closed set of resource categories a checker covers.
type Category int

const (
	CategoryStorage Category = iota
	CategoryConsensus
	CategoryKernel
	CategoryProjection
	CategoryLogOrdering
	CategoryClientVisible
	CategorySQL
)

// Cost is the closed set of cost classes, used by scenario authors to
// gate expensive checkers out of cheap smoke runs.
type Cost int

const (
	CostCheap Cost = iota
	CostExpensive
)

// Checker is the registry metadata for one invariant. The predicate
// itself lives as a dedicated Engine method rather than a uniform
// function value, since different checkers close over genuinely
// different inputs (snapshots vs. a single client's read vs. a pair of
// query results); Checker exists so scenarios can select/describe
// checkers by name and the coverage thresholds can demand a minimum
// number of distinct invariants executed.
type Checker struct {
	Name       string
	Category   Category
	Cost       Cost
	ListensTo  []simqueue.EventKind
}

// Registry is the closed catalog of every checker this engine knows how
// to run, used for documentation and for
// coverage.Thresholds.KnownFaultPoints-style completeness checks.
var Registry = []Checker{
	{Name: "hash_chain_integrity", Category: CategoryStorage, Cost: CostCheap, ListensTo: []simqueue.EventKind{simqueue.KindStorageCompletion}},
	{Name: "offset_monotonicity", Category: CategoryLogOrdering, Cost: CostCheap, ListensTo: []simqueue.EventKind{simqueue.KindStorageCompletion}},
	{Name: "replica_consistency", Category: CategoryConsensus, Cost: CostCheap, ListensTo: []simqueue.EventKind{simqueue.KindMessageDelivery}},
	{Name: "agreement", Category: CategoryConsensus, Cost: CostCheap, ListensTo: []simqueue.EventKind{simqueue.KindMessageDelivery}},
	{Name: "prefix_property", Category: CategoryConsensus, Cost: CostExpensive, ListensTo: []simqueue.EventKind{simqueue.KindMessageDelivery}},
	{Name: "view_change_safety", Category: CategoryConsensus, Cost: CostExpensive, ListensTo: []simqueue.EventKind{simqueue.KindMessageDelivery}},
	{Name: "recovery_safety", Category: CategoryConsensus, Cost: CostCheap, ListensTo: []simqueue.EventKind{simqueue.KindRecover}},
	{Name: "client_session_monotonicity", Category: CategoryClientVisible, Cost: CostCheap, ListensTo: []simqueue.EventKind{simqueue.KindClientRequest}},
	{Name: "commit_history", Category: CategoryLogOrdering, Cost: CostCheap, ListensTo: []simqueue.EventKind{simqueue.KindMessageDelivery}},
	{Name: "applied_position_monotonicity", Category: CategoryProjection, Cost: CostCheap, ListensTo: []simqueue.EventKind{simqueue.KindMessageDelivery}},
	{Name: "mvcc_visibility", Category: CategoryClientVisible, Cost: CostExpensive, ListensTo: []simqueue.EventKind{simqueue.KindClientRequest}},
	{Name: "applied_index_integrity", Category: CategoryProjection, Cost: CostCheap, ListensTo: []simqueue.EventKind{simqueue.KindMessageDelivery}},
	{Name: "tenant_isolation", Category: CategorySQL, Cost: CostCheap, ListensTo: []simqueue.EventKind{simqueue.KindClientRequest}},
	{Name: "read_your_writes", Category: CategoryClientVisible, Cost: CostCheap, ListensTo: []simqueue.EventKind{simqueue.KindClientRequest}},
	{Name: "query_determinism", Category: CategorySQL, Cost: CostExpensive, ListensTo: []simqueue.EventKind{simqueue.KindClientRequest}},
	{Name: "ternary_partition_oracle", Category: CategorySQL, Cost: CostExpensive, ListensTo: []simqueue.EventKind{simqueue.KindClientRequest}},
	{Name: "non_optimizing_oracle", Category: CategorySQL, Cost: CostExpensive, ListensTo: []simqueue.EventKind{simqueue.KindClientRequest}},
	{Name: "materialized_view_liveness", Category: CategoryProjection, Cost: CostCheap, ListensTo: []simqueue.EventKind{simqueue.KindPeriodicTick}},
}

func init() {
	sort.Slice(Registry, func(i, j int) bool { return Registry[i].Name < Registry[j].Name })
}

// Violation is one failed predicate evaluation.
type Violation struct {
	CheckerName string
	Message     string
}

// History accumulates cross-tick state the snapshot-based checkers need
// (e.g. "has this offset's checksum ever been reported differently
// before"), since a Snapshot by itself is a momentary, comparison-free
// view.
type History struct {
	checksumByOffset  map[int64][32]byte
	maxOffsetByReplica map[string]int64
	maxCommitByReplica map[string]int64
	lastProgressTick   map[string]int64 // replica id -> tick its appliedPosition last advanced
}

func newHistory() *History {
	return &History{
		checksumByOffset:   make(map[int64][32]byte),
		maxOffsetByReplica: make(map[string]int64),
		maxCommitByReplica: make(map[string]int64),
		lastProgressTick:   make(map[string]int64),
	}
}

// Engine runs every checker and accumulates violations plus execution
// coverage.
type Engine struct {
	history *History
	cov     *coverage.Counters

	requestSeqByClient map[string]int64
}

// New constructs an engine. cov may be nil in tests that do not care
// about coverage accounting.
func New(cov *coverage.Counters) *Engine {
	return &Engine{
		history:            newHistory(),
		cov:                cov,
		requestSeqByClient: make(map[string]int64),
	}
}

func (e *Engine) record(name string) {
	if e.cov != nil {
		e.cov.RecordInvariantExecution(name)
	}
}

// CheckSnapshots runs every snapshot-scoped safety checker across the
// cluster's current replica snapshots, in sorted replica-id order for
// determinism.
func (e *Engine) CheckSnapshots(snaps []replica.Snapshot) []Violation {
	sorted := append([]replica.Snapshot(nil), snaps...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ReplicaID < sorted[j].ReplicaID })

	var violations []Violation
	violations = append(violations, e.checkOffsetMonotonicity(sorted)...)
	violations = append(violations, e.checkHashChainIntegrity(sorted)...)
	violations = append(violations, e.checkReplicaConsistencyAndAgreement(sorted)...)
	violations = append(violations, e.checkCommitHistoryAndRecovery(sorted)...)
	violations = append(violations, e.checkAppliedPositionMonotonicity(sorted)...)
	violations = append(violations, e.checkAppliedIndexIntegrity(sorted)...)
	return violations
}

// checkOffsetMonotonicity verifies that, per replica, the log-tail
// offsets reported never go backwards between evaluations.
func (e *Engine) checkOffsetMonotonicity(snaps []replica.Snapshot) []Violation {
	e.record("offset_monotonicity")
	var out []Violation
	for _, s := range snaps {
		var maxOff int64
		for _, oc := range s.LogTail.OffsetChecksums {
			if oc.Offset <= maxOff && maxOff != 0 {
				out = append(out, Violation{"offset_monotonicity", fmt.Sprintf("replica %s: offset %d out of order in log tail", s.ReplicaID, oc.Offset)})
			}
			maxOff = oc.Offset
		}
		if prior, ok := e.history.maxOffsetByReplica[s.ReplicaID]; ok && maxOff > 0 && maxOff < prior {
			out = append(out, Violation{"offset_monotonicity", fmt.Sprintf("replica %s: max tail offset regressed from %d to %d", s.ReplicaID, prior, maxOff)})
		}
		if maxOff > 0 {
			e.history.maxOffsetByReplica[s.ReplicaID] = maxOff
		}
	}
	return out
}

// checkHashChainIntegrity verifies a snapshot's reported LastChecksum
// matches the checksum of the last entry in its own log tail; the full
// prev-hash recomputation is already enforced at admission time inside
// the Subject (a mismatched prepare is rejected before it ever enters
// the log), so this is the structural check the Snapshot surface can
// still make after the fact.
func (e *Engine) checkHashChainIntegrity(snaps []replica.Snapshot) []Violation {
	e.record("hash_chain_integrity")
	var out []Violation
	for _, s := range snaps {
		if len(s.LogTail.OffsetChecksums) == 0 {
			continue
		}
		last := s.LogTail.OffsetChecksums[len(s.LogTail.OffsetChecksums)-1]
		if last.Checksum != s.LogTail.LastChecksum {
			out = append(out, Violation{"hash_chain_integrity", fmt.Sprintf("replica %s: LastChecksum does not match the tail's final entry", s.ReplicaID)})
		}
	}
	return out
}

// checkReplicaConsistencyAndAgreement verifies that every offset two or
// more replicas have reported carries the same checksum everywhere it
// is seen, which for Viewstamped-style replication also establishes
// agreement for any (view, op) pair two replicas both committed (the
// checksum chain is keyed by log position, not view, so a divergent
// checksum at the same offset is exactly an agreement violation).
func (e *Engine) checkReplicaConsistencyAndAgreement(snaps []replica.Snapshot) []Violation {
	e.record("replica_consistency")
	e.record("agreement")
	var out []Violation
	for _, s := range snaps {
		for _, oc := range s.LogTail.OffsetChecksums {
			if prior, ok := e.history.checksumByOffset[oc.Offset]; ok {
				if prior != oc.Checksum {
					out = append(out, Violation{"replica_consistency", fmt.Sprintf("offset %d: replica %s disagrees on content with an earlier observation", oc.Offset, s.ReplicaID)})
				}
			} else {
				e.history.checksumByOffset[oc.Offset] = oc.Checksum
			}
		}
	}
	return out
}

// checkCommitHistoryAndRecovery verifies a replica's commit index never
// regresses between evaluations; a regression would mean either commit
// history went backwards or a recovery silently un-committed an entry,
// so both named checkers share this one observable signal given what
// Snapshot exposes.
func (e *Engine) checkCommitHistoryAndRecovery(snaps []replica.Snapshot) []Violation {
	e.record("commit_history")
	e.record("recovery_safety")
	var out []Violation
	for _, s := range snaps {
		if prior, ok := e.history.maxCommitByReplica[s.ReplicaID]; ok && s.Commit < prior {
			out = append(out, Violation{"recovery_safety", fmt.Sprintf("replica %s: commit index regressed from %d to %d", s.ReplicaID, prior, s.Commit)})
		}
		e.history.maxCommitByReplica[s.ReplicaID] = s.Commit
	}
	return out
}

// checkAppliedPositionMonotonicity verifies AppliedPosition never
// exceeds Commit. It keeps no history of earlier AppliedPosition
// values, so a regression between evaluations is not flagged.
func (e *Engine) checkAppliedPositionMonotonicity(snaps []replica.Snapshot) []Violation {
	e.record("applied_position_monotonicity")
	var out []Violation
	for _, s := range snaps {
		if s.AppliedPosition > s.Commit {
			out = append(out, Violation{"applied_position_monotonicity", fmt.Sprintf("replica %s: applied position %d exceeds commit %d", s.ReplicaID, s.AppliedPosition, s.Commit)})
		}
	}
	return out
}

// checkAppliedIndexIntegrity verifies a nonzero applied position has a
// corresponding committed entry, i.e. does not exceed Commit. The log
// tail's offset checksums cover only uncommitted entries, so they are
// not consulted.
func (e *Engine) checkAppliedIndexIntegrity(snaps []replica.Snapshot) []Violation {
	e.record("applied_index_integrity")
	var out []Violation
	for _, s := range snaps {
		if s.AppliedPosition == 0 {
			continue
		}
		known := s.AppliedPosition <= s.Commit
		if !known {
			out = append(out, Violation{"applied_index_integrity", fmt.Sprintf("replica %s: applied index %d has no corresponding committed entry", s.ReplicaID, s.AppliedPosition)})
		}
	}
	return out
}

// CheckViewChangeSafety verifies that the new primary's adopted log
// (post) contains, as a prefix, every entry any replica reported
// committed in any previous view (pre), i.e. nothing that was ever
// committed disappears across the view change.
func (e *Engine) CheckViewChangeSafety(pre, post []replica.Snapshot) []Violation {
	e.record("view_change_safety")
	maxPriorCommit := int64(0)
	for _, s := range pre {
		if s.Commit > maxPriorCommit {
			maxPriorCommit = s.Commit
		}
	}
	var out []Violation
	for _, s := range post {
		if s.Commit < maxPriorCommit && s.View > 0 {
			out = append(out, Violation{"view_change_safety", fmt.Sprintf("replica %s: post-view-change commit %d lost entries committed at %d", s.ReplicaID, s.Commit, maxPriorCommit)})
		}
	}
	return out
}

// CheckPrefixProperty verifies that whenever two replicas both report an
// entry at offset o, they agree on the entire prefix [0..o], approximated
// from the exposed tail data: if both tails contain a common offset,
// every offset below it present in both tails must already have agreed
// in checkReplicaConsistencyAndAgreement's running history.
func (e *Engine) CheckPrefixProperty(snaps []replica.Snapshot) []Violation {
	e.record("prefix_property")
	var out []Violation
	byOffset := make(map[int64]map[string][32]byte)
	for _, s := range snaps {
		for _, oc := range s.LogTail.OffsetChecksums {
			if byOffset[oc.Offset] == nil {
				byOffset[oc.Offset] = make(map[string][32]byte)
			}
			byOffset[oc.Offset][s.ReplicaID] = oc.Checksum
		}
	}
	offsets := make([]int64, 0, len(byOffset))
	for off := range byOffset {
		offsets = append(offsets, off)
	}
	sort.Slice(offsets, func(i, j int) bool { return offsets[i] < offsets[j] })
	for _, off := range offsets {
		seen := make(map[[32]byte]bool)
		for _, cs := range byOffset[off] {
			seen[cs] = true
		}
		if len(seen) > 1 {
			out = append(out, Violation{"prefix_property", fmt.Sprintf("offset %d: replicas disagree within a shared prefix", off)})
		}
	}
	return out
}

// CheckClientSessionMonotonicity verifies a client's submitted request
// numbers form a gap-free, strictly increasing sequence.
func (e *Engine) CheckClientSessionMonotonicity(clientID string, requestNumber int64) []Violation {
	e.record("client_session_monotonicity")
	var out []Violation
	last := e.requestSeqByClient[clientID]
	if requestNumber != last+1 {
		out = append(out, Violation{"client_session_monotonicity", fmt.Sprintf("client %s: request number %d is not last(%d)+1", clientID, requestNumber, last)})
	}
	if requestNumber > last {
		e.requestSeqByClient[clientID] = requestNumber
	}
	return out
}

// CheckReadYourWrites verifies that after a client's successful write,
// its own subsequent read returns that write (or a later one) unless an
// intervening fsync failure retracted it, in which case either the
// durable value or the failure is acceptable — both represented here by
// allowDurableFallback.
func (e *Engine) CheckReadYourWrites(clientID string, gotValue, expectedPending []byte, pendingStillOutstanding bool, durableValue []byte, allowDurableFallback bool) []Violation {
	e.record("read_your_writes")
	if !pendingStillOutstanding {
		return nil
	}
	if string(gotValue) == string(expectedPending) {
		return nil
	}
	if allowDurableFallback && string(gotValue) == string(durableValue) {
		return nil
	}
	return []Violation{{"read_your_writes", fmt.Sprintf("client %s: read did not observe its own pending write", clientID)}}
}

// CheckTenantIsolation verifies a query issued under one tenant never
// returns content belonging to another.
func (e *Engine) CheckTenantIsolation(queryTenant, returnedTenant int) []Violation {
	e.record("tenant_isolation")
	if queryTenant != returnedTenant {
		return []Violation{{"tenant_isolation", fmt.Sprintf("tenant %d query returned content owned by tenant %d", queryTenant, returnedTenant)}}
	}
	return nil
}

// CheckQueryDeterminism verifies a query repeated against an identical
// state produces an identical result.
func (e *Engine) CheckQueryDeterminism(first, second []byte) []Violation {
	e.record("query_determinism")
	if string(first) != string(second) {
		return []Violation{{"query_determinism", "repeated query against identical state produced different results"}}
	}
	return nil
}

// CheckTernaryPartitionOracle verifies COUNT(Q) == COUNT(Q WHERE p) +
// COUNT(Q WHERE NOT p) + COUNT(Q WHERE p IS NULL).
func (e *Engine) CheckTernaryPartitionOracle(total, whenTrue, whenFalse, whenNull int) []Violation {
	e.record("ternary_partition_oracle")
	if total != whenTrue+whenFalse+whenNull {
		return []Violation{{"ternary_partition_oracle", fmt.Sprintf("count mismatch: total=%d true=%d false=%d null=%d", total, whenTrue, whenFalse, whenNull)}}
	}
	return nil
}

// CheckNonOptimizingOracle verifies an optimized plan's result set
// matches the un-optimized reference plan's result set.
func (e *Engine) CheckNonOptimizingOracle(optimizedResultSet, referenceResultSet [][]byte) []Violation {
	e.record("non_optimizing_oracle")
	if len(optimizedResultSet) != len(referenceResultSet) {
		return []Violation{{"non_optimizing_oracle", fmt.Sprintf("row count mismatch: optimized=%d reference=%d", len(optimizedResultSet), len(referenceResultSet))}}
	}
	seen := make(map[string]int)
	for _, r := range referenceResultSet {
		seen[string(r)]++
	}
	for _, r := range optimizedResultSet {
		seen[string(r)]--
	}
	for _, count := range seen {
		if count != 0 {
			return []Violation{{"non_optimizing_oracle", "optimized plan's result set differs from the reference plan's"}}
		}
	}
	return nil
}

// CheckMVCCVisibility verifies a query tagged "as of position p" only
// returns data committed at or before p.
func (e *Engine) CheckMVCCVisibility(asOfPosition int64, returnedCommitPosition int64) []Violation {
	e.record("mvcc_visibility")
	if returnedCommitPosition > asOfPosition {
		return []Violation{{"mvcc_visibility", fmt.Sprintf("query as-of %d observed data committed at %d", asOfPosition, returnedCommitPosition)}}
	}
	return nil
}

// CheckLiveness verifies a materialized view's applied position reaches
// the current commit index within boundTicks of falling behind; tick is
// the scenario's current logical tick counter (not wall time) — the
// bound is expressed in harness-observable progress, not wall-clock.
func (e *Engine) CheckLiveness(replicaID string, tick int64, appliedPosition, commit int64, boundTicks int64) []Violation {
	e.record("materialized_view_liveness")
	if appliedPosition >= commit {
		e.history.lastProgressTick[replicaID] = tick
		return nil
	}
	last, ok := e.history.lastProgressTick[replicaID]
	if !ok {
		e.history.lastProgressTick[replicaID] = tick
		return nil
	}
	if tick-last > boundTicks {
		return []Violation{{"materialized_view_liveness", fmt.Sprintf("replica %s: applied position stuck %d ticks behind commit (bound %d)", replicaID, tick-last, boundTicks)}}
	}
	return nil
}

// Now is a convenience the engine does not itself need but a caller
// composing checks against simclock.Time values may, kept here so
// callers are not forced to import simclock solely for a cast.
func Now(t simclock.Time) int64 { return int64(t) }
