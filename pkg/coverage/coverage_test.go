package coverage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeSumsCountersAndUnionsSets(t *testing.T) {
	a := New()
	a.RecordFaultPoint("network.drop")
	a.RecordInvariantExecution("agreement")
	a.RecordStateTuple(StateTuple{1, 2, 3})
	a.ViewChanges = 2

	b := New()
	b.RecordFaultPoint("network.drop")
	b.RecordStateTuple(StateTuple{4, 5, 6})
	b.ViewChanges = 1

	a.Merge(b)

	assert.Equal(t, 2, a.FaultPoints["network.drop"])
	assert.Equal(t, 1, a.InvariantExecuted["agreement"])
	assert.Len(t, a.StateTuples, 2)
	assert.Equal(t, 3, a.ViewChanges)
}

func TestMergeOrderIsCommutative(t *testing.T) {
	build := func() (*Counters, *Counters) {
		a := New()
		a.RecordFaultPoint("x")
		a.ViewChanges = 3
		b := New()
		b.RecordFaultPoint("x")
		b.RecordFaultPoint("y")
		b.ViewChanges = 2
		return a, b
	}

	a1, b1 := build()
	a1.Merge(b1)

	a2, b2 := build()
	b2.Merge(a2)

	assert.Equal(t, a1.FaultPoints, b2.FaultPoints)
	assert.Equal(t, a1.ViewChanges, b2.ViewChanges)
}

func TestEvaluateReportsFaultPointShortfall(t *testing.T) {
	c := New()
	c.RecordFaultPoint("a")
	thresholds := Thresholds{MinFaultPointCoveragePct: 100, KnownFaultPoints: []string{"a", "b"}}

	shortfalls := c.Evaluate(thresholds)
	require.Len(t, shortfalls, 1)
	assert.Equal(t, "fault_point_pct", shortfalls[0].Kind)
}

func TestEvaluateReportsCriticalFaultPointMiss(t *testing.T) {
	c := New()
	thresholds := Thresholds{CriticalFaultPoints: []string{"crash.power_loss"}}
	shortfalls := c.Evaluate(thresholds)
	require.Len(t, shortfalls, 1)
	assert.Equal(t, "critical_fault_point", shortfalls[0].Kind)
}

func TestEvaluatePassesWhenThresholdsMet(t *testing.T) {
	c := New()
	c.RecordFaultPoint("a")
	c.RecordInvariantExecution("agreement")
	c.ViewChanges = 5
	c.Repairs = 2

	thresholds := Thresholds{
		MinFaultPointCoveragePct: 100,
		KnownFaultPoints:         []string{"a"},
		MinInvariantsExecuted:    1,
		MinViewChanges:           5,
		MinRepairs:               2,
	}
	assert.Empty(t, c.Evaluate(thresholds))
}

func TestDominatesDetectsRegression(t *testing.T) {
	prior := New()
	prior.RecordFaultPoint("a")
	prior.ViewChanges = 3

	later := New()
	later.RecordFaultPoint("a")
	later.ViewChanges = 2 // regressed

	assert.False(t, later.Dominates(prior))
}

func TestDominatesHoldsWhenCountersOnlyGrow(t *testing.T) {
	prior := New()
	prior.RecordFaultPoint("a")
	prior.ViewChanges = 1

	later := New()
	later.Merge(prior)
	later.RecordFaultPoint("b")
	later.ViewChanges = 2

	assert.True(t, later.Dominates(prior))
}

func TestCompareDeterminismPrefersEarliestLayer(t *testing.T) {
	a := HashQuadruple{StorageRootHash: [32]byte{1}, KernelStateHash: [32]byte{2}}
	b := HashQuadruple{StorageRootHash: [32]byte{9}, KernelStateHash: [32]byte{9}}

	assert.Equal(t, DivergenceStorageHash, CompareDeterminism(a, b))
}

func TestCheckDeterminismReturnsNilOnMatch(t *testing.T) {
	q := HashQuadruple{FinalTime: 100}
	assert.NoError(t, CheckDeterminism(1, q, q))
}

func TestCheckDeterminismReturnsErrorOnMismatch(t *testing.T) {
	a := HashQuadruple{FinalTime: 100}
	b := HashQuadruple{FinalTime: 200}
	err := CheckDeterminism(42, a, b)
	require.Error(t, err)
	var derr *DeterminismError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, DivergenceFinalTime, derr.Layer)
}

func TestCanaryTrackerScoresWithinBudget(t *testing.T) {
	tracker := NewCanaryTracker(CanarySpec{Kind: CanarySkipFsync, ExpectedChecker: "read_your_writes", EventBudget: 100})
	tracker.RecordViolation("agreement", 10)
	assert.False(t, tracker.Scored())

	tracker.RecordViolation("read_your_writes", 50)
	assert.True(t, tracker.Scored())
	assert.Equal(t, 50, tracker.TrippedAtEvent())
}

func TestCanaryTrackerMissesOutsideBudget(t *testing.T) {
	tracker := NewCanaryTracker(CanarySpec{Kind: CanarySkipFsync, ExpectedChecker: "read_your_writes", EventBudget: 100})
	tracker.RecordViolation("read_your_writes", 500)
	assert.False(t, tracker.Scored())
}
