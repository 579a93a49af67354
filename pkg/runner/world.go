// Package runner is the harness's batch driver: it turns a loaded
// scenario plus a seed into a fully wired simulated cluster, drives its
// event loop to completion or to the first confirmed invariant
// violation, and iterates that over many seeds with checkpoint/resume,
// emergency-abort, and progress reporting.
//
// BatchConfig carries the seed range, worker count and optional
// checkpoint; in JSON mode Progress logs one line per seed. An
// emergency.Controller (stop file or signal) aborts a batch before its
// next seed is scheduled.
package runner

import (
	"fmt"
	"sort"

	"github.com/jihwankim/viewharness/pkg/cluster"
	"github.com/jihwankim/viewharness/pkg/coverage"
	"github.com/jihwankim/viewharness/pkg/eventlog"
	"github.com/jihwankim/viewharness/pkg/faultinjector"
	"github.com/jihwankim/viewharness/pkg/invariant"
	"github.com/jihwankim/viewharness/pkg/model"
	"github.com/jihwankim/viewharness/pkg/replica/reference"
	"github.com/jihwankim/viewharness/pkg/scenario"
	"github.com/jihwankim/viewharness/pkg/simnet"
	"github.com/jihwankim/viewharness/pkg/simqueue"
	"github.com/jihwankim/viewharness/pkg/simrng"
	"github.com/jihwankim/viewharness/pkg/simstorage"
	"github.com/jihwankim/viewharness/pkg/workload"
)

// World is one fully-constructed simulated cluster for a single seed,
// ready to be driven by RunSingle.
type World struct {
	Seed uint64
	Rng  *simrng.Stream

	Network     *simnet.Network
	Queue       *simqueue.Queue
	Log         *eventlog.Log
	Cov         *coverage.Counters
	Model       *model.Store
	Coordinator *cluster.Coordinator
	Injector    *faultinjector.Injector
	Workload    *workload.Generator
	Engine      *invariant.Engine

	// Canary is non-nil only when this binary was compiled with a
	// deliberate-bug build tag (see pkg/replica/reference's
	// canary_*.go), in which case RunSingle feeds it every confirmed
	// violation so the batch driver can tell whether the active canary
	// tripped its expected checker within budget.
	Canary *coverage.CanaryTracker

	// CrashTargetRng is a dedicated sub-stream for choosing which live
	// replica to crash next. It is derived once and reused across ticks
	// rather than re-derived per call: re-deriving from an unchanged
	// parent would return the identical sub-stream every time, making
	// every crash lottery pick the same replica.
	CrashTargetRng *simrng.Stream

	ReplicaIDs []string
}

func replicaID(i int) string {
	return fmt.Sprintf("r%d", i)
}

// BuildWorld constructs every simulated component a scenario names, all
// rolled against sub-streams derived from the one run seed so that
// rebuilding a World for the same (scenario, seed) pair is always
// bit-identical.
func BuildWorld(sc *scenario.Scenario, seed uint64, eventLogCapacity int) (*World, error) {
	if sc.Spec.ReplicaCount <= 0 {
		return nil, fmt.Errorf("%w: replica_count must be positive", ErrScenarioMisconfigured)
	}

	storagePolicy := sc.Spec.StoragePolicy.ToFaultPolicy()
	if err := storagePolicy.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrScenarioMisconfigured, err)
	}

	rng := simrng.New(seed)
	cov := coverage.New()
	logCap := eventLogCapacity
	log := eventlog.New(logCap, eventlog.OverflowSpill)
	mdl := model.New()
	queue := simqueue.New()
	network := simnet.NewNetwork(rng.Derive("network"), sc.Spec.NetworkPolicy.ToLinkPolicy())
	for _, ov := range sc.Spec.NetworkPolicy.Overrides {
		network.SetLinkPolicy(ov.From, ov.To, ov.Policy.ToLinkPolicy())
	}
	if rules := byzantineRules(sc.Spec.ByzantineRules); len(rules) > 0 {
		network.SetMutator(simnet.NewMutator(rules))
	}

	ids := make([]string, sc.Spec.ReplicaCount)
	for i := range ids {
		ids[i] = replicaID(i)
	}

	coord := cluster.New(network, mdl, queue, log, cov)
	for i, id := range ids {
		var peers []string
		for j, other := range ids {
			if j != i {
				peers = append(peers, other)
			}
		}
		storage := simstorage.NewDevice(rng.Derive("storage:"+id), storagePolicy)
		coord.AddReplica(id, reference.New(id, peers), storage)
	}

	injector := faultinjector.New(rng.Derive("faultinjector"), network, log, cov)
	injector.ConfigureGrayFailures(sc.Spec.FaultPolicy.GrayFailure.ToGrayFailurePolicy())
	injector.ConfigureSwizzleClog(sc.Spec.FaultPolicy.SwizzleClog.ToSwizzleClogPolicy())
	injector.ConfigureCrashSchedule(sc.Spec.FaultPolicy.ToCrashSchedule())
	injector.ConfigureClockDrift(sc.Spec.FaultPolicy.ToClockDriftPolicy())

	gen := workload.New(rng.Derive("workload"), sc.Spec.WorkloadConfig.ToWorkloadConfig())
	engine := invariant.New(cov)
	coord.SetClockDriftAccessor(injector.ClockDriftFor)

	var canary *coverage.CanaryTracker
	if ActiveCanary := reference.ActiveCanary; ActiveCanary != "" {
		if spec, ok := coverage.LookupCanary(ActiveCanary); ok {
			canary = coverage.NewCanaryTracker(spec)
		}
	}

	return &World{
		Seed:           seed,
		Rng:            rng,
		Network:        network,
		Queue:          queue,
		Log:            log,
		Cov:            cov,
		Model:          mdl,
		Coordinator:    coord,
		Injector:       injector,
		Workload:       gen,
		Engine:         engine,
		Canary:         canary,
		CrashTargetRng: rng.Derive("crash-target"),
		ReplicaIDs:     ids,
	}, nil
}

// byzantineRules converts the scenario's YAML-facing byzantine rule list
// into simnet mutation rules. reorder_fields has no direct analogue in
// simnet's mutation catalog; it is mapped to a log-tail truncation,
// which is the closest available "reorder the receiver's view of field
// order" effect.
func byzantineRules(rules []scenario.ByzantineRule) []simnet.MutationRule {
	out := make([]simnet.MutationRule, 0, len(rules))
	for _, r := range rules {
		rule := simnet.MutationRule{Target: r.Target, TypeFilter: r.Selector}
		switch r.MutationKind {
		case "flip_checksum":
			rule.Kind = simnet.MutateCorruptChecksum
		case "flip_commit":
			rule.Kind = simnet.MutateInflateCommit
			rule.InflateFactor = r.InflateFactor
			if rule.InflateFactor == 0 {
				rule.InflateFactor = 2
			}
		case "replay":
			rule.Kind = simnet.MutateResendOldView
		case "equivocate":
			rule.Kind = simnet.MutateConflictingSend
		case "reorder_fields":
			rule.Kind = simnet.MutateTruncateLogTail
		default:
			continue
		}
		out = append(out, rule)
	}
	return out
}

// links returns every ordered replica pair, for the swizzle-clog cycle.
func (w *World) links() [][2]string {
	sorted := append([]string(nil), w.ReplicaIDs...)
	sort.Strings(sorted)
	out := make([][2]string, 0, len(sorted)*(len(sorted)-1))
	for _, a := range sorted {
		for _, b := range sorted {
			if a != b {
				out = append(out, [2]string{a, b})
			}
		}
	}
	return out
}
