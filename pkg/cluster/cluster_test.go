package cluster

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jihwankim/viewharness/pkg/coverage"
	"github.com/jihwankim/viewharness/pkg/eventlog"
	"github.com/jihwankim/viewharness/pkg/model"
	"github.com/jihwankim/viewharness/pkg/replica"
	"github.com/jihwankim/viewharness/pkg/replica/reference"
	"github.com/jihwankim/viewharness/pkg/simnet"
	"github.com/jihwankim/viewharness/pkg/simqueue"
	"github.com/jihwankim/viewharness/pkg/simrng"
	"github.com/jihwankim/viewharness/pkg/simstorage"
)

func newThreeNodeCluster(t *testing.T) (*Coordinator, *model.Store) {
	t.Helper()
	rng := simrng.New(42)
	net := simnet.NewNetwork(rng.Derive("network"), simnet.LinkPolicy{MinDelayNs: 1, MaxDelayNs: 1})
	store := model.New()
	q := simqueue.New()
	log := eventlog.New(0, eventlog.OverflowFatal)
	cov := coverage.New()

	c := New(net, store, q, log, cov)
	ids := []string{"r0", "r1", "r2"}
	for _, id := range ids {
		var peers []string
		for _, other := range ids {
			if other != id {
				peers = append(peers, other)
			}
		}
		subject := reference.New(id, peers)
		dev := simstorage.NewDevice(rng.Derive("storage:"+id), simstorage.FaultPolicy{})
		c.AddReplica(id, subject, dev)
	}
	return c, store
}

func drain(t *testing.T, c *Coordinator, q *simqueue.Queue, maxSteps int) {
	t.Helper()
	for i := 0; i < maxSteps; i++ {
		ev, ok := q.Pop()
		if !ok {
			return
		}
		require.NoError(t, c.Dispatch(ev))
	}
}

func TestCurrentPrimaryDefaultsToFirstSortedReplica(t *testing.T) {
	c, _ := newThreeNodeCluster(t)
	primary, err := c.CurrentPrimary()
	require.NoError(t, err)
	assert.Equal(t, "r0", primary)
}

func TestSubmitClientRequestReachesQuorumAcrossCluster(t *testing.T) {
	c, store := newThreeNodeCluster(t)

	err := c.SubmitClientRequest(0, replica.ClientRequest{ClientID: "c1", RequestNumber: 1, Key: 7, Value: []byte("v1")})
	require.NoError(t, err)

	drain(t, c, c.queue, 100)

	snaps := c.Snapshots()
	require.Len(t, snaps, 3)
	for _, s := range snaps {
		assert.Equal(t, int64(1), s.Commit, "replica %s should have committed the single request", s.ReplicaID)
	}

	v, durable := store.DurableValue(7)
	assert.True(t, durable)
	assert.Equal(t, []byte("v1"), v)
}

func TestCrashedPrimaryRefusesSubmission(t *testing.T) {
	c, _ := newThreeNodeCluster(t)
	c.CrashReplica("r0", simstorage.CrashCleanShutdown)

	err := c.SubmitClientRequest(0, replica.ClientRequest{ClientID: "c1", RequestNumber: 1, Key: 1, Value: []byte("v")})
	require.NoError(t, err)

	drain(t, c, c.queue, 100)
	snaps := c.Snapshots()
	for _, s := range snaps {
		assert.Equal(t, int64(0), s.Commit)
	}
}

func TestTransitionStateRecordsToEventLog(t *testing.T) {
	c, _ := newThreeNodeCluster(t)
	before := 0
	c.TransitionState(StateWarming)
	assert.Equal(t, StateWarming, c.State())
	assert.Greater(t, c.log.Len(), before)
}
