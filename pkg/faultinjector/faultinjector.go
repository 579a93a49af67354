// Package faultinjector composes the storage and network fault policies
// into the harness's higher-order fault behaviors: gray failures,
// swizzle-clogging, crash scheduling, and clock drift. Every decision it
// makes is rolled against an injected RNG stream, recorded to the event
// log, and counted toward fault-point coverage.
//
// Dispatch shape is one method per fault family, selected by explicit
// type rather than open-world interface satisfaction: each flips a
// state machine inside this process rather than shelling out to a
// container-level command.
package faultinjector

import (
	"sort"

	"github.com/jihwankim/viewharness/pkg/coverage"
	"github.com/jihwankim/viewharness/pkg/eventlog"
	"github.com/jihwankim/viewharness/pkg/simclock"
	"github.com/jihwankim/viewharness/pkg/simnet"
	"github.com/jihwankim/viewharness/pkg/simrng"
	"github.com/jihwankim/viewharness/pkg/simstorage"
)

// GrayFailureState is the closed set of partial-failure modes a node can
// be in.
type GrayFailureState int

const (
	GrayNone GrayFailureState = iota
	GraySlow
	GrayIntermittent
	GrayReadOnly
	GrayWriteOnly
	GrayUnresponsive
)

func (s GrayFailureState) faultPointName() string {
	switch s {
	case GraySlow:
		return "gray.slow"
	case GrayIntermittent:
		return "gray.intermittent"
	case GrayReadOnly:
		return "gray.read_only"
	case GrayWriteOnly:
		return "gray.write_only"
	case GrayUnresponsive:
		return "gray.unresponsive"
	default:
		return ""
	}
}

// GrayFailurePolicy parameterizes per-tick transition probabilities.
type GrayFailurePolicy struct {
	EntryProb     float64 // probability of leaving GrayNone on a given tick
	RecoveryProb  float64 // probability of returning to GrayNone on a given tick
	PossibleModes []GrayFailureState
}

// SwizzleClogPolicy parameterizes the periodic clog/unclog cycle.
type SwizzleClogPolicy struct {
	ClogFraction   float64
	UnclogFraction float64
	CadenceNs      simclock.Time
	Aggressive     bool // "aggressive" preset widens the affected link set
}

// CrashSchedule enumerates the crash points this scenario may select
// from, plus the weight of each (spec: "choose a crash point
// deterministically from the crash-point menu").
type CrashSchedule struct {
	Points  []simstorage.CrashPoint
	Weights []float64
}

// ClockDriftPolicy assigns each replica a fixed offset applied whenever
// it reads "now" through the injected accessor.
type ClockDriftPolicy struct {
	OffsetNsByReplica map[string]int64
}

// Injector composes C5/C6 policies into the scenario's full fault
// behavior for one run.
type Injector struct {
	rng     *simrng.Stream
	network *simnet.Network
	log     *eventlog.Log
	cov     *coverage.Counters

	grayPolicy  GrayFailurePolicy
	grayState   map[string]GrayFailureState
	swizzle     SwizzleClogPolicy
	lastSwizzle simclock.Time
	crashes     CrashSchedule
	clockDrift  ClockDriftPolicy
}

// New constructs an injector. log and cov may be shared across the
// network/storage layers so every fault lands in both the replay log and
// the coverage report.
func New(rng *simrng.Stream, network *simnet.Network, log *eventlog.Log, cov *coverage.Counters) *Injector {
	return &Injector{
		rng:       rng,
		network:   network,
		log:       log,
		cov:       cov,
		grayState: make(map[string]GrayFailureState),
	}
}

// ConfigureGrayFailures installs the gray-failure policy.
func (inj *Injector) ConfigureGrayFailures(p GrayFailurePolicy) {
	inj.grayPolicy = p
}

// ConfigureSwizzleClog installs the swizzle-clog policy. The first cycle
// is due at time 0.
func (inj *Injector) ConfigureSwizzleClog(p SwizzleClogPolicy) {
	inj.swizzle = p
	inj.lastSwizzle = -p.CadenceNs
}

// ConfigureCrashSchedule installs the crash-point menu.
func (inj *Injector) ConfigureCrashSchedule(s CrashSchedule) {
	inj.crashes = s
}

// ConfigureClockDrift installs the per-replica drift offsets.
func (inj *Injector) ConfigureClockDrift(p ClockDriftPolicy) {
	inj.clockDrift = p
}

// TickGrayFailures rolls each replica's gray-failure state machine
// forward by one tick, in sorted replica-id order (determinism's
// hash-map rule), and returns the set of replicas whose state changed.
func (inj *Injector) TickGrayFailures(replicaIDs []string) map[string]GrayFailureState {
	changed := make(map[string]GrayFailureState)
	sorted := append([]string(nil), replicaIDs...)
	sort.Strings(sorted)

	for _, id := range sorted {
		cur := inj.grayState[id]
		if cur == GrayNone {
			if inj.rng.Bernoulli(inj.grayPolicy.EntryProb) && len(inj.grayPolicy.PossibleModes) > 0 {
				idx := int(inj.rng.UniformRange(0, int64(len(inj.grayPolicy.PossibleModes))))
				next := inj.grayPolicy.PossibleModes[idx]
				inj.grayState[id] = next
				changed[id] = next
				inj.record(next.faultPointName(), []byte(id))
			}
		} else if inj.rng.Bernoulli(inj.grayPolicy.RecoveryProb) {
			inj.grayState[id] = GrayNone
			changed[id] = GrayNone
		}
	}
	return changed
}

// GrayStateOf returns the current gray-failure state of a replica.
func (inj *Injector) GrayStateOf(id string) GrayFailureState {
	return inj.grayState[id]
}

// MaybeSwizzleClog runs one swizzle-clog cycle if the cadence has
// elapsed, clogging a random subset of links and unclogging another
// random subset, per the mild/aggressive presets.
func (inj *Injector) MaybeSwizzleClog(now simclock.Time, links [][2]string) {
	if inj.swizzle.CadenceNs <= 0 || now < inj.lastSwizzle+inj.swizzle.CadenceNs {
		return
	}
	inj.lastSwizzle = now

	sortedLinks := append([][2]string(nil), links...)
	sort.Slice(sortedLinks, func(i, j int) bool {
		if sortedLinks[i][0] != sortedLinks[j][0] {
			return sortedLinks[i][0] < sortedLinks[j][0]
		}
		return sortedLinks[i][1] < sortedLinks[j][1]
	})

	for _, link := range sortedLinks {
		if inj.rng.Bernoulli(inj.swizzle.ClogFraction) {
			inj.network.SetClogged(link[0], link[1], true)
			inj.record("network.clog", []byte(link[0]+"->"+link[1]))
		} else if inj.rng.Bernoulli(inj.swizzle.UnclogFraction) {
			inj.network.SetClogged(link[0], link[1], false)
		}
	}
}

// SelectCrashPoint deterministically chooses a crash point from the
// configured menu.
func (inj *Injector) SelectCrashPoint() simstorage.CrashPoint {
	if len(inj.crashes.Points) == 0 {
		return simstorage.CrashPowerLoss
	}
	idx := inj.rng.WeightedChoice(inj.weightsOrUniform())
	point := inj.crashes.Points[idx]
	inj.record("crash."+crashPointName(point), nil)
	return point
}

func (inj *Injector) weightsOrUniform() []float64 {
	if len(inj.crashes.Weights) == len(inj.crashes.Points) {
		return inj.crashes.Weights
	}
	w := make([]float64, len(inj.crashes.Points))
	for i := range w {
		w[i] = 1
	}
	return w
}

func crashPointName(p simstorage.CrashPoint) string {
	switch p {
	case simstorage.CrashDuringWrite:
		return "during_write"
	case simstorage.CrashDuringFsync:
		return "during_fsync"
	case simstorage.CrashAfterFsyncBeforeAck:
		return "after_fsync_before_ack"
	case simstorage.CrashPowerLoss:
		return "power_loss"
	case simstorage.CrashCleanShutdown:
		return "clean_shutdown"
	default:
		return "none"
	}
}

// ClockDriftFor returns the offset applied whenever a replica reads
// "now" through the injected time accessor.
func (inj *Injector) ClockDriftFor(replicaID string) int64 {
	if inj.clockDrift.OffsetNsByReplica == nil {
		return 0
	}
	return inj.clockDrift.OffsetNsByReplica[replicaID]
}

func (inj *Injector) record(faultPoint string, body []byte) {
	if inj.log != nil {
		inj.log.Append(eventlog.KindFaultRollOutcome, append([]byte(faultPoint+":"), body...))
	}
	if inj.cov != nil {
		inj.cov.RecordFaultPoint(faultPoint)
	}
}
