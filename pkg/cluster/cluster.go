// Package cluster owns the set of replica wrappers for one scenario run
// and converts scenario-scheduled events into wrapper calls: client
// request arrivals, message deliveries, timeout firings, and
// crash/recover transitions. It also identifies the current primary for
// request routing and extracts cross-replica snapshots for the
// invariant engine.
//
// State transitions follow a TestState/transitionState/execute* shape:
// a lifecycle state machine redefined here to the run lifecycle of a
// simulated scenario, with "targets" as replica wrappers instead of
// discovered Docker containers.
package cluster

import (
	"fmt"
	"sort"

	"github.com/jihwankim/viewharness/pkg/coverage"
	"github.com/jihwankim/viewharness/pkg/eventlog"
	"github.com/jihwankim/viewharness/pkg/model"
	"github.com/jihwankim/viewharness/pkg/replica"
	"github.com/jihwankim/viewharness/pkg/simclock"
	"github.com/jihwankim/viewharness/pkg/simnet"
	"github.com/jihwankim/viewharness/pkg/simqueue"
	"github.com/jihwankim/viewharness/pkg/simstorage"
)

// TestState is the run lifecycle a Coordinator moves through.
type TestState int

const (
	StateSetup TestState = iota
	StateWarming
	StateRunning
	StateDraining
	StateChecking
	StateDone
	StateFailed
)

func (s TestState) String() string {
	switch s {
	case StateSetup:
		return "SETUP"
	case StateWarming:
		return "WARMING"
	case StateRunning:
		return "RUNNING"
	case StateDraining:
		return "DRAINING"
	case StateChecking:
		return "CHECKING"
	case StateDone:
		return "DONE"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// ClientRequestPayload is the simqueue.Event payload for KindClientRequest.
type ClientRequestPayload struct {
	Req replica.ClientRequest
}

// MessageDeliveryPayload is the simqueue.Event payload for
// KindMessageDelivery.
type MessageDeliveryPayload struct {
	Env simnet.Envelope
}

// TimeoutPayload is the simqueue.Event payload for KindTimeout.
type TimeoutPayload struct {
	ReplicaID  string
	Kind       replica.TimeoutKind
	Generation int64
}

// Coordinator owns every replica wrapper in the cluster plus the shared
// network, model store, event queue, event log, and coverage counters
// they roll against.
type Coordinator struct {
	wrappers map[string]*replica.Wrapper
	order    []string // sorted replica ids, recomputed on AddReplica

	network *simnet.Network
	model   *model.Store
	queue   *simqueue.Queue
	log     *eventlog.Log
	cov     *coverage.Counters

	// clockDrift is the injected accessor through which a replica's
	// perceived "now" differs from the simulation clock's. It is nil
	// for scenarios that never configure clock drift.
	clockDrift func(replicaID string) int64

	state TestState
}

// New constructs an empty coordinator. Replicas are registered
// individually via AddReplica so scenarios can build heterogeneous
// storage/subject configurations per replica.
func New(network *simnet.Network, store *model.Store, queue *simqueue.Queue, log *eventlog.Log, cov *coverage.Counters) *Coordinator {
	return &Coordinator{
		wrappers: make(map[string]*replica.Wrapper),
		network:  network,
		model:    store,
		queue:    queue,
		log:      log,
		cov:      cov,
		state:    StateSetup,
	}
}

// AddReplica wraps a Subject in a replica.Wrapper and registers it under
// id, recomputing the coordinator's sorted membership order.
func (c *Coordinator) AddReplica(id string, subject replica.Subject, storage *simstorage.Device) {
	c.wrappers[id] = replica.NewWrapper(id, subject, storage, c.network)
	c.order = c.order[:0]
	for rid := range c.wrappers {
		c.order = append(c.order, rid)
	}
	sort.Strings(c.order)
}

// SetClockDriftAccessor installs the per-replica drift accessor a
// faultinjector.Injector exposes, so the coordinator can skew a
// replica's own scheduled timeouts by however far its perceived clock
// has drifted from the simulation clock.
func (c *Coordinator) SetClockDriftAccessor(fn func(replicaID string) int64) {
	c.clockDrift = fn
}

// State returns the coordinator's current lifecycle state.
func (c *Coordinator) State() TestState {
	return c.state
}

// TransitionState moves the coordinator to a new lifecycle state,
// recording the transition to the event log for replay/timeline
// rendering.
func (c *Coordinator) TransitionState(next TestState) {
	if c.log != nil {
		c.log.Append(eventlog.KindSchedulingDecision, []byte(c.state.String()+"->"+next.String()))
	}
	c.state = next
}

// ReplicaIDs returns the sorted replica membership.
func (c *Coordinator) ReplicaIDs() []string {
	return append([]string(nil), c.order...)
}

// Wrapper returns the wrapper for a replica id, or nil if unknown.
func (c *Coordinator) Wrapper(id string) *replica.Wrapper {
	return c.wrappers[id]
}

// CurrentPrimary identifies the current primary from the replicas'
// self-reported view: the highest view any replica reports selects the
// primary slot via view % membership-size, matching every Subject's own
// primaryFor computation. It does not special-case a crashed primary;
// callers that need failover awareness check IsCrashed themselves.
func (c *Coordinator) CurrentPrimary() (string, error) {
	if len(c.order) == 0 {
		return "", fmt.Errorf("cluster: no replicas registered")
	}
	var maxView int64 = -1
	for _, id := range c.order {
		snap := c.wrappers[id].Snapshot()
		if snap.View > maxView {
			maxView = snap.View
		}
	}
	if maxView < 0 {
		maxView = 0
	}
	return c.order[int(maxView)%len(c.order)], nil
}

// Snapshots returns every replica's pure snapshot, in sorted replica-id
// order, for the invariant engine's cross-replica checkers.
func (c *Coordinator) Snapshots() []replica.Snapshot {
	out := make([]replica.Snapshot, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.wrappers[id].Snapshot())
	}
	return out
}

// SubmitClientRequest routes a client request to the current primary and
// processes its resulting effects: scheduling message deliveries and
// timeouts onto the event queue, and updating the model store from
// observed write/fsync effects (never from querying the replica back).
func (c *Coordinator) SubmitClientRequest(now simclock.Time, req replica.ClientRequest) error {
	primaryID, err := c.CurrentPrimary()
	if err != nil {
		return err
	}
	w := c.wrappers[primaryID]
	if w == nil || w.IsCrashed() {
		return nil // request simply has nowhere to land this tick; scenario-level retry policy decides what happens next
	}
	res := w.Submit(now, req)
	c.processStepResult(now, primaryID, &req, res)
	return nil
}

// DeliverEnvelope hands a queued message delivery to its destination
// replica and processes the resulting effects.
func (c *Coordinator) DeliverEnvelope(now simclock.Time, env simnet.Envelope) {
	w := c.wrappers[env.To]
	if w == nil || w.IsCrashed() {
		return
	}
	res := w.Deliver(now, env)
	c.processStepResult(now, env.To, nil, res)
}

// FireTimeout delivers a fired timeout to a replica, honoring the
// wrapper's own generation-staleness check.
func (c *Coordinator) FireTimeout(now simclock.Time, replicaID string, kind replica.TimeoutKind, generation int64) {
	w := c.wrappers[replicaID]
	if w == nil || w.IsCrashed() {
		return
	}
	res := w.Tick(now, kind, generation)
	c.processStepResult(now, replicaID, nil, res)
}

// CrashReplica crashes a replica's Subject and storage device.
func (c *Coordinator) CrashReplica(replicaID string, point simstorage.CrashPoint) {
	if w := c.wrappers[replicaID]; w != nil {
		w.Crash(point)
	}
}

// RecoverReplica restores a replica to serving state and schedules
// whatever recovery effects it produces.
func (c *Coordinator) RecoverReplica(now simclock.Time, replicaID string) {
	w := c.wrappers[replicaID]
	if w == nil {
		return
	}
	res := w.Recover(now)
	c.processStepResult(now, replicaID, nil, res)
}

// processStepResult schedules message deliveries and timeouts produced
// by a Step, and resolves the model store's pending writes against
// observed fsync outcomes. req is non-nil only for the client-request
// path, since the model is driven by the primary's own commit pipeline,
// not by every replica's local prepare write.
func (c *Coordinator) processStepResult(now simclock.Time, originID string, req *replica.ClientRequest, res replica.StepResult) {
	var pendingOffsets []int64
	ioIdx := 0

	for _, eff := range res.Effects {
		switch eff.Kind {
		case replica.EffectWrite:
			if req != nil {
				c.model.RecordPendingWrite(req.Key, eff.WriteOffset, req.ClientID, eff.WriteBytes)
				pendingOffsets = append(pendingOffsets, eff.WriteOffset)
			}
			ioIdx++
		case replica.EffectFsync:
			if ioIdx < len(res.IO) {
				if res.IO[ioIdx].FsyncResult.Success {
					for _, off := range pendingOffsets {
						c.model.CommitOffset(off)
					}
				} else {
					for _, off := range pendingOffsets {
						c.model.DiscardOffset(off)
					}
				}
			}
			pendingOffsets = nil
			ioIdx++
		case replica.EffectSend:
			if ioIdx < len(res.IO) {
				for _, d := range res.IO[ioIdx].Deliveries {
					c.queue.Enqueue(d.At, simqueue.KindMessageDelivery, MessageDeliveryPayload{Env: d.Envelope})
				}
			}
			ioIdx++
		case replica.EffectScheduleTimeout:
			gen := c.wrappers[originID].CurrentTimeoutGeneration(eff.TimeoutKind)
			delay := eff.TimeoutDelay
			if c.clockDrift != nil {
				// A replica reading "now" ahead of the simulation clock
				// believes its own deadlines arrive sooner; one reading
				// behind believes they arrive later. Clamp at zero:
				// drift skews when a timeout fires, never reorders it
				// before the event that scheduled it.
				drifted := delay - simclock.Time(c.clockDrift(originID))
				if drifted < 0 {
					drifted = 0
				}
				delay = drifted
			}
			c.queue.EnqueueAfter(now, delay, simqueue.KindTimeout, TimeoutPayload{
				ReplicaID: originID, Kind: eff.TimeoutKind, Generation: gen,
			})
		case replica.EffectApplyIndex:
			if c.cov != nil {
				c.cov.RecordEventSequence(fmt.Sprintf("apply:%s:%d", originID, eff.ApplyOffset))
			}
		case replica.EffectRejection:
			if c.cov != nil {
				c.cov.RecordFaultPoint("byzantine.rejection." + eff.RejectCause.String())
			}
		}
	}
}

// Dispatch routes one popped simqueue.Event to the matching coordinator
// call, the single point scenario drivers (pkg/runner) need to call per
// event.
func (c *Coordinator) Dispatch(ev simqueue.Event) error {
	switch ev.Kind {
	case simqueue.KindClientRequest:
		p, ok := ev.Payload.(ClientRequestPayload)
		if !ok {
			return fmt.Errorf("cluster: malformed ClientRequestPayload")
		}
		return c.SubmitClientRequest(ev.Time, p.Req)
	case simqueue.KindMessageDelivery:
		p, ok := ev.Payload.(MessageDeliveryPayload)
		if !ok {
			return fmt.Errorf("cluster: malformed MessageDeliveryPayload")
		}
		c.DeliverEnvelope(ev.Time, p.Env)
		return nil
	case simqueue.KindTimeout:
		p, ok := ev.Payload.(TimeoutPayload)
		if !ok {
			return fmt.Errorf("cluster: malformed TimeoutPayload")
		}
		c.FireTimeout(ev.Time, p.ReplicaID, p.Kind, p.Generation)
		return nil
	default:
		return nil
	}
}
