package faultinjector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jihwankim/viewharness/pkg/coverage"
	"github.com/jihwankim/viewharness/pkg/eventlog"
	"github.com/jihwankim/viewharness/pkg/simnet"
	"github.com/jihwankim/viewharness/pkg/simrng"
	"github.com/jihwankim/viewharness/pkg/simstorage"
)

func newTestInjector(seed uint64) (*Injector, *coverage.Counters, *eventlog.Log) {
	rng := simrng.New(seed)
	net := simnet.NewNetwork(rng.Derive("network"), simnet.LinkPolicy{MinDelayNs: 1, MaxDelayNs: 2})
	log := eventlog.New(0, eventlog.OverflowFatal)
	cov := coverage.New()
	return New(rng.Derive("faults"), net, log, cov), cov, log
}

func TestTickGrayFailuresEntersAndRecovers(t *testing.T) {
	inj, cov, _ := newTestInjector(1)
	inj.ConfigureGrayFailures(GrayFailurePolicy{EntryProb: 1.0, RecoveryProb: 1.0, PossibleModes: []GrayFailureState{GraySlow}})

	changed := inj.TickGrayFailures([]string{"r1", "r0"})
	assert.Equal(t, GraySlow, changed["r0"])
	assert.Equal(t, GraySlow, inj.GrayStateOf("r0"))
	assert.Greater(t, cov.FaultPoints["gray.slow"], 0)

	changed = inj.TickGrayFailures([]string{"r0", "r1"})
	assert.Equal(t, GrayNone, changed["r0"])
	assert.Equal(t, GrayNone, inj.GrayStateOf("r0"))
}

func TestTickGrayFailuresNoopWithZeroProbabilities(t *testing.T) {
	inj, _, _ := newTestInjector(2)
	inj.ConfigureGrayFailures(GrayFailurePolicy{PossibleModes: []GrayFailureState{GraySlow}})
	changed := inj.TickGrayFailures([]string{"r0"})
	assert.Empty(t, changed)
}

func TestMaybeSwizzleClogRespectsCadence(t *testing.T) {
	inj, cov, _ := newTestInjector(3)
	inj.ConfigureSwizzleClog(SwizzleClogPolicy{ClogFraction: 1.0, CadenceNs: 100})

	inj.MaybeSwizzleClog(0, [][2]string{{"r0", "r1"}})
	assert.Greater(t, cov.FaultPoints["network.clog"], 0)

	before := cov.FaultPoints["network.clog"]
	inj.MaybeSwizzleClog(50, [][2]string{{"r0", "r1"}})
	assert.Equal(t, before, cov.FaultPoints["network.clog"], "cadence should suppress a cycle before it elapses")

	inj.MaybeSwizzleClog(150, [][2]string{{"r0", "r1"}})
	assert.Greater(t, cov.FaultPoints["network.clog"], before)
}

func TestSelectCrashPointRecordsFaultPoint(t *testing.T) {
	inj, cov, log := newTestInjector(4)
	inj.ConfigureCrashSchedule(CrashSchedule{Points: []simstorage.CrashPoint{simstorage.CrashPowerLoss, simstorage.CrashCleanShutdown}})

	point := inj.SelectCrashPoint()
	assert.Contains(t, []simstorage.CrashPoint{simstorage.CrashPowerLoss, simstorage.CrashCleanShutdown}, point)
	assert.Equal(t, 1, log.Len())
	total := cov.FaultPoints["crash.power_loss"] + cov.FaultPoints["crash.clean_shutdown"]
	assert.Equal(t, 1, total)
}

func TestSelectCrashPointDefaultsToPowerLossWhenUnconfigured(t *testing.T) {
	inj, _, _ := newTestInjector(5)
	assert.Equal(t, simstorage.CrashPowerLoss, inj.SelectCrashPoint())
}

func TestClockDriftForReturnsConfiguredOffset(t *testing.T) {
	inj, _, _ := newTestInjector(6)
	inj.ConfigureClockDrift(ClockDriftPolicy{OffsetNsByReplica: map[string]int64{"r0": 500}})
	assert.Equal(t, int64(500), inj.ClockDriftFor("r0"))
	assert.Equal(t, int64(0), inj.ClockDriftFor("r1"))
}

func TestInjectorIsDeterministicForSameSeed(t *testing.T) {
	run := func() []string {
		inj, _, _ := newTestInjector(99)
		inj.ConfigureGrayFailures(GrayFailurePolicy{EntryProb: 0.5, RecoveryProb: 0.5, PossibleModes: []GrayFailureState{GraySlow, GrayIntermittent}})
		var seq []string
		for i := 0; i < 20; i++ {
			changed := inj.TickGrayFailures([]string{"r0", "r1", "r2"})
			for _, id := range []string{"r0", "r1", "r2"} {
				if s, ok := changed[id]; ok {
					seq = append(seq, id, string(rune(s)))
				}
			}
		}
		return seq
	}

	a := run()
	b := run()
	require.Equal(t, a, b)
}
