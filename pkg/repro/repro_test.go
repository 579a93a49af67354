package repro

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jihwankim/viewharness/pkg/eventlog"
	"github.com/jihwankim/viewharness/pkg/invariant"
	"github.com/jihwankim/viewharness/pkg/runner"
	"github.com/jihwankim/viewharness/pkg/scenario"
)

func quorumWriteScenario() *scenario.Scenario {
	return &scenario.Scenario{
		APIVersion: "viewharness/v1",
		Kind:       "Scenario",
		Metadata:   scenario.Metadata{Name: "core-quorum-write"},
		Spec: scenario.ScenarioSpec{
			ReplicaCount: 3,
			MaxEvents:    300,
			NetworkPolicy: scenario.NetworkPolicy{
				MinDelayNs: 1_000,
				MaxDelayNs: 5_000,
			},
			WorkloadConfig:   scenario.WorkloadConfig{Pattern: "uniform", KeySpace: 16, ClientCount: 2},
			ActiveInvariants: []string{"agreement", "offset_monotonicity"},
		},
	}
}

func TestBisectRejectsNonFailingResult(t *testing.T) {
	sc := quorumWriteScenario()
	res, err := runner.RunSingle(sc, 1, 10_000)
	require.NoError(t, err)
	require.False(t, res.Failed())

	_, _, err = Bisect(sc, 1, 10_000, res)
	assert.ErrorIs(t, err, ErrNotFailing)
}

func TestBisectReportsDivergenceForAFabricatedFailure(t *testing.T) {
	sc := quorumWriteScenario()
	fabricated := &runner.Result{
		Seed:            1,
		EventsProcessed: 50,
		Violations: []invariant.Violation{
			{CheckerName: "a-checker-that-never-actually-fires"},
		},
	}

	_, _, err := Bisect(sc, 1, 10_000, fabricated)
	assert.ErrorIs(t, err, ErrBisectionDiverged)
}

func TestMinimizeRejectsNonFailingResult(t *testing.T) {
	sc := quorumWriteScenario()
	res, err := runner.RunSingle(sc, 2, 10_000)
	require.NoError(t, err)
	require.False(t, res.Failed())

	_, _, err = Minimize(sc, 2, 10_000, res)
	assert.ErrorIs(t, err, ErrNotFailing)
}

func TestRenderProducesOneRowPerFilteredNode(t *testing.T) {
	sc := quorumWriteScenario()
	out, err := Render(sc, 3, 10_000, 300, TimelineOptions{Nodes: []string{"r0"}})
	require.NoError(t, err)

	for _, line := range strings.Split(strings.TrimRight(out, "\n"), "\n") {
		if line == "" {
			continue
		}
		assert.True(t, strings.HasPrefix(line, "r0"), "unexpected row outside the node filter: %q", line)
	}
}

func TestCheckpointIntervalNeverZero(t *testing.T) {
	assert.Equal(t, int64(1), checkpointInterval(5))
	assert.Equal(t, int64(10), checkpointInterval(100))
}

func TestStorageRoundTripsABundle(t *testing.T) {
	dir := t.TempDir()
	st, err := NewStorage(dir, 0)
	require.NoError(t, err)

	log := eventlog.New(100, eventlog.OverflowFatal)
	log.Append(eventlog.KindRNGDraw, []byte("draw"))
	bundle := &eventlog.Bundle{
		HarnessVersion: "test-build",
		Seed:           7,
		ScenarioID:     "core-quorum-write",
		Log:            log,
	}

	path, err := st.SaveBundle(bundle)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "bundle-core-quorum-write-seed7.vwhb"), path)

	loaded, err := LoadBundle(path, 100)
	require.NoError(t, err)
	assert.Equal(t, bundle.Seed, loaded.Seed)
	assert.Equal(t, bundle.ScenarioID, loaded.ScenarioID)
	assert.Equal(t, 1, loaded.Log.Len())
}

func TestStorageKeepsOnlyLastN(t *testing.T) {
	dir := t.TempDir()
	st, err := NewStorage(dir, 1)
	require.NoError(t, err)

	for seed := uint64(1); seed <= 3; seed++ {
		log := eventlog.New(10, eventlog.OverflowFatal)
		_, err := st.SaveBundle(&eventlog.Bundle{HarnessVersion: "t", Seed: seed, ScenarioID: "s", Log: log})
		require.NoError(t, err)
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
