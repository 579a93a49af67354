package invariant

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jihwankim/viewharness/pkg/coverage"
	"github.com/jihwankim/viewharness/pkg/replica"
)

func snap(id string, view, commit, applied int64, tail ...replica.OffsetChecksum) replica.Snapshot {
	var last [32]byte
	if len(tail) > 0 {
		last = tail[len(tail)-1].Checksum
	}
	return replica.Snapshot{
		ReplicaID:       id,
		View:            view,
		Commit:          commit,
		AppliedPosition: applied,
		LogTail: replica.LogTailSummary{
			Length:          int64(len(tail)),
			LastChecksum:    last,
			OffsetChecksums: tail,
		},
	}
}

func oc(offset int64, b byte) replica.OffsetChecksum {
	var cs [32]byte
	cs[0] = b
	return replica.OffsetChecksum{Offset: offset, Checksum: cs}
}

func TestRegistryIsSortedAndNonEmpty(t *testing.T) {
	require.NotEmpty(t, Registry)
	for i := 1; i < len(Registry); i++ {
		assert.Less(t, Registry[i-1].Name, Registry[i].Name)
	}
}

func TestOffsetMonotonicityFlagsRegression(t *testing.T) {
	e := New(nil)
	first := []replica.Snapshot{snap("r0", 0, 1, 0, oc(1, 1), oc(2, 2))}
	require.Empty(t, e.CheckSnapshots(first))

	regressed := []replica.Snapshot{snap("r0", 0, 1, 0, oc(1, 1))}
	violations := e.CheckSnapshots(regressed)
	require.NotEmpty(t, violations)
	assert.Equal(t, "offset_monotonicity", violations[0].CheckerName)
}

func TestHashChainIntegrityFlagsMismatchedLastChecksum(t *testing.T) {
	e := New(nil)
	s := snap("r0", 0, 1, 0, oc(1, 1))
	s.LogTail.LastChecksum[0] = 0xFF // does not match oc(1,1)'s checksum
	violations := e.CheckSnapshots([]replica.Snapshot{s})
	var found bool
	for _, v := range violations {
		if v.CheckerName == "hash_chain_integrity" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestReplicaConsistencyFlagsDivergentChecksumAtSameOffset(t *testing.T) {
	e := New(nil)
	snaps := []replica.Snapshot{
		snap("r0", 0, 1, 0, oc(5, 1)),
		snap("r1", 0, 1, 0, oc(5, 2)), // same offset, different content
	}
	violations := e.CheckSnapshots(snaps)
	var found bool
	for _, v := range violations {
		if v.CheckerName == "replica_consistency" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestReplicaConsistencyAcceptsAgreeingReplicas(t *testing.T) {
	e := New(nil)
	snaps := []replica.Snapshot{
		snap("r0", 0, 1, 0, oc(5, 9)),
		snap("r1", 0, 1, 0, oc(5, 9)),
	}
	violations := e.CheckSnapshots(snaps)
	for _, v := range violations {
		assert.NotEqual(t, "replica_consistency", v.CheckerName)
	}
}

func TestAppliedPositionMonotonicityFlagsAheadOfCommit(t *testing.T) {
	e := New(nil)
	violations := e.CheckSnapshots([]replica.Snapshot{snap("r0", 0, 3, 5)})
	var found bool
	for _, v := range violations {
		if v.CheckerName == "applied_position_monotonicity" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestRecoverySafetyFlagsCommitRegression(t *testing.T) {
	e := New(nil)
	require.Empty(t, e.CheckSnapshots([]replica.Snapshot{snap("r0", 0, 5, 0)}))
	violations := e.CheckSnapshots([]replica.Snapshot{snap("r0", 0, 2, 0)})
	var found bool
	for _, v := range violations {
		if v.CheckerName == "recovery_safety" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestCheckViewChangeSafetyFlagsLostCommits(t *testing.T) {
	e := New(nil)
	pre := []replica.Snapshot{snap("r0", 0, 10, 0)}
	post := []replica.Snapshot{snap("r1", 1, 4, 0)}
	violations := e.CheckViewChangeSafety(pre, post)
	require.Len(t, violations, 1)
	assert.Equal(t, "view_change_safety", violations[0].CheckerName)
}

func TestCheckViewChangeSafetyAcceptsPreservedCommits(t *testing.T) {
	e := New(nil)
	pre := []replica.Snapshot{snap("r0", 0, 10, 0)}
	post := []replica.Snapshot{snap("r1", 1, 10, 0)}
	assert.Empty(t, e.CheckViewChangeSafety(pre, post))
}

func TestCheckPrefixPropertyFlagsDisagreementAtSharedOffset(t *testing.T) {
	e := New(nil)
	snaps := []replica.Snapshot{
		snap("r0", 0, 0, 0, oc(1, 1), oc(2, 2)),
		snap("r1", 0, 0, 0, oc(1, 1), oc(2, 9)),
	}
	violations := e.CheckPrefixProperty(snaps)
	require.Len(t, violations, 1)
}

func TestCheckClientSessionMonotonicityFlagsGap(t *testing.T) {
	e := New(nil)
	assert.Empty(t, e.CheckClientSessionMonotonicity("c1", 1))
	assert.Empty(t, e.CheckClientSessionMonotonicity("c1", 2))
	violations := e.CheckClientSessionMonotonicity("c1", 4)
	require.Len(t, violations, 1)
	assert.Equal(t, "client_session_monotonicity", violations[0].CheckerName)
}

func TestCheckReadYourWritesFlagsStaleRead(t *testing.T) {
	e := New(nil)
	violations := e.CheckReadYourWrites("c1", []byte("old"), []byte("new"), true, []byte("old"), false)
	require.Len(t, violations, 1)
}

func TestCheckReadYourWritesAllowsDurableFallbackAfterDiscard(t *testing.T) {
	e := New(nil)
	violations := e.CheckReadYourWrites("c1", []byte("old"), []byte("new"), true, []byte("old"), true)
	assert.Empty(t, violations)
}

func TestCheckReadYourWritesSkipsWhenNoPendingOutstanding(t *testing.T) {
	e := New(nil)
	assert.Empty(t, e.CheckReadYourWrites("c1", []byte("whatever"), []byte("new"), false, []byte("old"), false))
}

func TestCheckTenantIsolationFlagsCrossTenantLeak(t *testing.T) {
	e := New(nil)
	assert.Empty(t, e.CheckTenantIsolation(2, 2))
	violations := e.CheckTenantIsolation(2, 3)
	require.Len(t, violations, 1)
	assert.Equal(t, "tenant_isolation", violations[0].CheckerName)
}

func TestCheckQueryDeterminismFlagsDivergentResults(t *testing.T) {
	e := New(nil)
	assert.Empty(t, e.CheckQueryDeterminism([]byte("a"), []byte("a")))
	violations := e.CheckQueryDeterminism([]byte("a"), []byte("b"))
	require.Len(t, violations, 1)
}

func TestCheckTernaryPartitionOracleFlagsCountMismatch(t *testing.T) {
	e := New(nil)
	assert.Empty(t, e.CheckTernaryPartitionOracle(10, 6, 3, 1))
	violations := e.CheckTernaryPartitionOracle(10, 6, 3, 0)
	require.Len(t, violations, 1)
}

func TestCheckNonOptimizingOracleFlagsRowSetMismatch(t *testing.T) {
	e := New(nil)
	a := [][]byte{[]byte("x"), []byte("y")}
	b := [][]byte{[]byte("y"), []byte("x")}
	assert.Empty(t, e.CheckNonOptimizingOracle(a, b), "order should not matter")

	c := [][]byte{[]byte("x"), []byte("z")}
	violations := e.CheckNonOptimizingOracle(a, c)
	require.Len(t, violations, 1)
}

func TestCheckMVCCVisibilityFlagsFutureRead(t *testing.T) {
	e := New(nil)
	assert.Empty(t, e.CheckMVCCVisibility(10, 10))
	violations := e.CheckMVCCVisibility(10, 11)
	require.Len(t, violations, 1)
}

func TestCheckLivenessFlagsStuckReplicaBeyondBound(t *testing.T) {
	e := New(nil)
	assert.Empty(t, e.CheckLiveness("r0", 1, 0, 5, 3))
	assert.Empty(t, e.CheckLiveness("r0", 3, 0, 5, 3))
	violations := e.CheckLiveness("r0", 5, 0, 5, 3)
	require.Len(t, violations, 1)
	assert.Equal(t, "materialized_view_liveness", violations[0].CheckerName)
}

func TestCheckLivenessResetsOnceCaughtUp(t *testing.T) {
	e := New(nil)
	assert.Empty(t, e.CheckLiveness("r0", 1, 0, 5, 3))
	assert.Empty(t, e.CheckLiveness("r0", 2, 5, 5, 3))
	assert.Empty(t, e.CheckLiveness("r0", 10, 5, 5, 3))
}

func TestEngineFeedsCoverageCounters(t *testing.T) {
	cov := coverage.New()
	e := New(cov)
	e.CheckSnapshots([]replica.Snapshot{snap("r0", 0, 0, 0)})
	e.CheckClientSessionMonotonicity("c1", 1)
	names := cov.SortedInvariantNames()
	assert.Contains(t, names, "offset_monotonicity")
	assert.Contains(t, names, "client_session_monotonicity")
}
