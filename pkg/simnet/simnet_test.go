package simnet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jihwankim/viewharness/pkg/simclock"
	"github.com/jihwankim/viewharness/pkg/simrng"
)

func basicPolicy() LinkPolicy {
	return LinkPolicy{MinDelayNs: 10, MaxDelayNs: 20}
}

func TestSendSchedulesDeliveryWithinDelayBounds(t *testing.T) {
	n := NewNetwork(simrng.New(1), basicPolicy())
	deliveries := n.Send(100, Envelope{From: "r0", To: "r1", Type: "prepare", Bytes: []byte("x")})
	require.Len(t, deliveries, 1)
	assert.GreaterOrEqual(t, deliveries[0].At, simclock.Time(110))
	assert.LessOrEqual(t, deliveries[0].At, simclock.Time(120))
}

func TestDropProbOneDropsEverything(t *testing.T) {
	p := basicPolicy()
	p.DropProb = 1.0
	n := NewNetwork(simrng.New(2), p)
	deliveries := n.Send(0, Envelope{From: "r0", To: "r1"})
	assert.Empty(t, deliveries)
}

func TestDuplicateProbOneProducesTwoDeliveries(t *testing.T) {
	p := basicPolicy()
	p.DuplicateProb = 1.0
	n := NewNetwork(simrng.New(3), p)
	deliveries := n.Send(0, Envelope{From: "r0", To: "r1", Bytes: []byte("payload")})
	require.Len(t, deliveries, 2)
}

func TestCorruptProbOneMutatesBytes(t *testing.T) {
	p := basicPolicy()
	p.CorruptProb = 1.0
	n := NewNetwork(simrng.New(4), p)
	original := []byte{1, 2, 3, 4}
	deliveries := n.Send(0, Envelope{From: "r0", To: "r1", Bytes: append([]byte(nil), original...)})
	require.Len(t, deliveries, 1)
	assert.NotEqual(t, original, deliveries[0].Envelope.Bytes)
}

func TestPartitionBlocksCrossGroupDelivery(t *testing.T) {
	n := NewNetwork(simrng.New(5), basicPolicy())
	n.SetPartitions([][]string{{"r0"}, {"r1"}})
	deliveries := n.Send(0, Envelope{From: "r0", To: "r1"})
	assert.Empty(t, deliveries)
}

func TestPartitionHealAllowsDeliveryAgain(t *testing.T) {
	n := NewNetwork(simrng.New(6), basicPolicy())
	n.SetPartitions([][]string{{"r0"}, {"r1"}})
	n.SetPartitions(nil)
	deliveries := n.Send(0, Envelope{From: "r0", To: "r1"})
	assert.Len(t, deliveries, 1)
}

func TestClogDropBoostForcesDrop(t *testing.T) {
	p := LinkPolicy{MinDelayNs: 10, MaxDelayNs: 10, ClogFactor: 10, ClogDropBoost: 1.0}
	n := NewNetwork(simrng.New(7), p)
	n.SetClogged("r0", "r1", true)
	deliveries := n.Send(0, Envelope{From: "r0", To: "r1"})
	assert.Empty(t, deliveries, "clog drop boost of 1.0 should guarantee a drop")
}

func TestMutatorInflateCommit(t *testing.T) {
	m := NewMutator([]MutationRule{{Target: "r2", Kind: MutateInflateCommit, InflateFactor: 500}})
	n := NewNetwork(simrng.New(8), basicPolicy())
	n.SetMutator(m)

	deliveries := n.Send(0, Envelope{From: "r2", To: "r0", Type: "view-change", Commit: 3})
	require.Len(t, deliveries, 1)
	assert.Equal(t, int64(1500), deliveries[0].Envelope.Commit)
}

func TestMutatorRefuseRelayDropsMessage(t *testing.T) {
	m := NewMutator([]MutationRule{{Target: "r2", Kind: MutateRefuseRelay}})
	n := NewNetwork(simrng.New(9), basicPolicy())
	n.SetMutator(m)

	deliveries := n.Send(0, Envelope{From: "r2", To: "r0"})
	assert.Empty(t, deliveries)
}

func TestMutatorDoesNotAffectNonMatchingTarget(t *testing.T) {
	m := NewMutator([]MutationRule{{Target: "r2", Kind: MutateInflateCommit, InflateFactor: 500}})
	n := NewNetwork(simrng.New(10), basicPolicy())
	n.SetMutator(m)

	deliveries := n.Send(0, Envelope{From: "r0", To: "r1", Commit: 3})
	require.Len(t, deliveries, 1)
	assert.Equal(t, int64(3), deliveries[0].Envelope.Commit)
}

func TestZeroLengthPayloadIsLegal(t *testing.T) {
	n := NewNetwork(simrng.New(11), basicPolicy())
	deliveries := n.Send(0, Envelope{From: "r0", To: "r1", Bytes: nil})
	require.Len(t, deliveries, 1)
	assert.Empty(t, deliveries[0].Envelope.Bytes)
}
