package runner

import (
	"fmt"
	"sort"

	"github.com/jihwankim/viewharness/pkg/cluster"
	"github.com/jihwankim/viewharness/pkg/coverage"
	"github.com/jihwankim/viewharness/pkg/eventlog"
	"github.com/jihwankim/viewharness/pkg/invariant"
	"github.com/jihwankim/viewharness/pkg/replica"
	"github.com/jihwankim/viewharness/pkg/scenario"
	"github.com/jihwankim/viewharness/pkg/simclock"
	"github.com/jihwankim/viewharness/pkg/simqueue"
	"github.com/jihwankim/viewharness/pkg/simstorage"
)

// tickInterval is the simulated spacing between periodic ticks: workload
// generation, gray-failure/swizzle-clog rolls, and the crash lottery all
// advance once per tick. 1ms keeps a MaxTime expressed in whole seconds
// producing a tractable number of ticks per run.
const tickInterval simclock.Time = 1_000_000

// recoveryDelay is how long a crashed replica stays down before the
// runner schedules its recovery. Scenarios that want a longer or
// variable outage express it through active_invariants/assertions
// instead; the runner's own crash/recover cycle only needs to be long
// enough to exercise the recovery-safety checker.
const recoveryDelay simclock.Time = 50_000_000

// HarnessVersion is stamped into every repro bundle this build produces,
// so a bundle read back by a later build can refuse to replay if its
// replica reference implementation has since changed incompatibly.
const HarnessVersion = "viewharness-v1"

type periodicTickPayload struct{}

type crashPayload struct {
	ReplicaID string
	Point     simstorage.CrashPoint
}

type recoverPayload struct {
	ReplicaID string
}

// Result is the outcome of driving one World to completion or to its
// first confirmed invariant violation.
type Result struct {
	Seed            uint64
	ScenarioName    string
	EventsProcessed int64
	Violations      []invariant.Violation
	Coverage        *coverage.Counters
	Bundle          *eventlog.Bundle

	// CanaryTracker is non-nil only when this binary was built with a
	// canary-mutation build tag; RunBatch aggregates it across every
	// seed to decide whether the active canary's mutation score held.
	CanaryTracker *coverage.CanaryTracker
}

// Failed reports whether the run stopped because of a confirmed
// invariant violation rather than exhausting its event/time budget.
func (r *Result) Failed() bool {
	return len(r.Violations) > 0
}

// RunSingle drives a fresh World for sc and seed until MaxEvents/MaxTime
// is exhausted or an invariant violation is confirmed, whichever comes
// first.
func RunSingle(sc *scenario.Scenario, seed uint64, eventLogCapacity int, opts ...RunOption) (*Result, error) {
	var ro runOptions
	for _, opt := range opts {
		opt(&ro)
	}

	w, err := BuildWorld(sc, seed, eventLogCapacity)
	if err != nil {
		return nil, err
	}

	w.Queue.Enqueue(0, simqueue.KindPeriodicTick, periodicTickPayload{})

	clk := simclock.New()
	var violations []invariant.Violation
	var eventsProcessed int64
	prevSnapshots := w.Coordinator.Snapshots()

	if ro.onCheckpoint != nil {
		ro.onCheckpoint(checkpointFromSnapshots(0, clk.Now(), prevSnapshots))
	}

	for {
		ev, ok := w.Queue.Pop()
		if !ok {
			break
		}
		if sc.Spec.MaxEvents > 0 && eventsProcessed >= sc.Spec.MaxEvents {
			break
		}
		if sc.Spec.MaxTime > 0 && ev.Time > simclock.Time(sc.Spec.MaxTime) {
			break
		}
		clk.Advance(ev.Time)
		eventsProcessed++

		skipped := ro.skipEvent != nil && ro.skipEvent(eventsProcessed-1, ev.Kind)

		if ro.onEvent != nil {
			ro.onEvent(TraceEntry{
				Index: eventsProcessed - 1,
				Time:  ev.Time,
				Kind:  ev.Kind,
				Node:  traceNode(ev),
			})
		}

		preViolations := len(violations)
		switch {
		case skipped && ev.Kind == simqueue.KindPeriodicTick:
			// A skipped tick still re-arms itself so the clock keeps
			// advancing at the scenario's cadence; it just contributes
			// no workload, fault rolls, or crash lottery this round.
			if sc.Spec.MaxTime == 0 || ev.Time+tickInterval <= simclock.Time(sc.Spec.MaxTime) {
				w.Queue.Enqueue(ev.Time+tickInterval, simqueue.KindPeriodicTick, periodicTickPayload{})
			}
		case skipped:
			// Any other skipped event (a message delivery, a timeout
			// firing, a crash, a recovery) is a leaf with no downstream
			// obligation of its own, so dropping it cannot orphan a
			// send-without-deliver or write-without-completion pair.
		case ev.Kind == simqueue.KindClientRequest:
			if p, ok := ev.Payload.(cluster.ClientRequestPayload); ok {
				violations = append(violations, w.Engine.CheckClientSessionMonotonicity(p.Req.ClientID, p.Req.RequestNumber)...)
			}
			if err := w.Coordinator.Dispatch(ev); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrHarnessBug, err)
			}
		case ev.Kind == simqueue.KindMessageDelivery, ev.Kind == simqueue.KindTimeout:
			if err := w.Coordinator.Dispatch(ev); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrHarnessBug, err)
			}
		case ev.Kind == simqueue.KindPeriodicTick:
			runTick(w, ev.Time)
			if sc.Spec.MaxTime == 0 || ev.Time+tickInterval <= simclock.Time(sc.Spec.MaxTime) {
				w.Queue.Enqueue(ev.Time+tickInterval, simqueue.KindPeriodicTick, periodicTickPayload{})
			}
		case ev.Kind == simqueue.KindCrash:
			if p, ok := ev.Payload.(crashPayload); ok {
				w.Coordinator.CrashReplica(p.ReplicaID, p.Point)
				w.Queue.EnqueueAfter(ev.Time, recoveryDelay, simqueue.KindRecover, recoverPayload{ReplicaID: p.ReplicaID})
			}
		case ev.Kind == simqueue.KindRecover:
			if p, ok := ev.Payload.(recoverPayload); ok {
				w.Coordinator.RecoverReplica(ev.Time, p.ReplicaID)
			}
		}

		curSnapshots := w.Coordinator.Snapshots()
		if viewAdvanced(prevSnapshots, curSnapshots) {
			violations = append(violations, w.Engine.CheckViewChangeSafety(prevSnapshots, curSnapshots)...)
		}
		violations = append(violations, w.Engine.CheckSnapshots(curSnapshots)...)
		violations = append(violations, w.Engine.CheckPrefixProperty(curSnapshots)...)
		prevSnapshots = curSnapshots

		if w.Canary != nil {
			for _, v := range violations[preViolations:] {
				w.Canary.RecordViolation(v.CheckerName, int(eventsProcessed))
			}
		}

		if ro.onCheckpoint != nil && ro.checkpointEvery > 0 && eventsProcessed%ro.checkpointEvery == 0 {
			ro.onCheckpoint(checkpointFromSnapshots(eventsProcessed, ev.Time, curSnapshots))
		}

		if len(violations) > 0 {
			break
		}
	}

	result := &Result{
		Seed:            seed,
		ScenarioName:    sc.Metadata.Name,
		EventsProcessed: eventsProcessed,
		Violations:      violations,
		Coverage:        w.Cov,
		CanaryTracker:   w.Canary,
	}

	if result.Failed() {
		result.Bundle = &eventlog.Bundle{
			HarnessVersion: HarnessVersion,
			Seed:           seed,
			ScenarioID:     sc.Metadata.Name,
			Log:            w.Log,
			Failure: &eventlog.FailureInfo{
				InvariantName:    violations[0].CheckerName,
				ViolationSummary: violations[0].Message,
				EventIndex:       uint64(eventsProcessed),
			},
		}
	}

	return result, nil
}

// traceNode reduces an event's payload to the single replica it mostly
// concerns, for timeline rendering. Cluster-wide events (a periodic
// tick, an as-yet-unrouted client request) have no single node and
// report "".
func traceNode(ev simqueue.Event) string {
	switch p := ev.Payload.(type) {
	case cluster.MessageDeliveryPayload:
		return p.Env.To
	case cluster.TimeoutPayload:
		return p.ReplicaID
	case crashPayload:
		return p.ReplicaID
	case recoverPayload:
		return p.ReplicaID
	default:
		return ""
	}
}

// viewAdvanced reports whether any replica's view increased between two
// same-membership snapshot sets, both sorted by ReplicaID.
func viewAdvanced(prev, cur []replica.Snapshot) bool {
	if len(prev) != len(cur) {
		return false
	}
	for i := range cur {
		if cur[i].ReplicaID == prev[i].ReplicaID && cur[i].View > prev[i].View {
			return true
		}
	}
	return false
}

// runTick advances the workload generator by one tick, rolls the
// gray-failure and swizzle-clog fault families, and rolls the crash
// lottery: the configured crash-point menu's own weights (including
// CrashPoint's zero value, CrashNone) determine how often a crash
// happens at all, so a scenario tunes its crash rate purely through
// fault_policy.crash_points weights rather than a separate probability
// knob.
func runTick(w *World, now simclock.Time) {
	for _, txn := range w.Workload.Next() {
		for _, op := range txn.Ops {
			w.Queue.Enqueue(now, simqueue.KindClientRequest, cluster.ClientRequestPayload{Req: op})
		}
	}

	w.Injector.TickGrayFailures(w.ReplicaIDs)
	w.Injector.MaybeSwizzleClog(now, w.links())

	if point := w.Injector.SelectCrashPoint(); point != simstorage.CrashNone {
		if target, ok := w.pickLiveReplica(); ok {
			w.Queue.Enqueue(now, simqueue.KindCrash, crashPayload{ReplicaID: target, Point: point})
		}
	}
}

// pickLiveReplica deterministically chooses a non-crashed replica to
// crash next, using the world's dedicated crash-target sub-stream so
// this selection never perturbs any other subsystem's draw sequence.
func (w *World) pickLiveReplica() (string, bool) {
	var live []string
	for _, id := range w.ReplicaIDs {
		if wr := w.Coordinator.Wrapper(id); wr != nil && !wr.IsCrashed() {
			live = append(live, id)
		}
	}
	if len(live) == 0 {
		return "", false
	}
	sort.Strings(live)
	idx := int(w.CrashTargetRng.UniformRange(0, int64(len(live))))
	return live[idx], true
}
