package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jihwankim/viewharness/pkg/scenario"
)

func baseScenario() *scenario.Scenario {
	return &scenario.Scenario{
		APIVersion: "viewharness/v1",
		Kind:       "Scenario",
		Metadata:   scenario.Metadata{Name: "core-quorum-write"},
		Spec: scenario.ScenarioSpec{
			ReplicaCount:     3,
			MaxEvents:        1000,
			ActiveInvariants: []string{"agreement", "offset_monotonicity"},
			WorkloadConfig:   scenario.WorkloadConfig{Pattern: "uniform", KeySpace: 100},
		},
	}
}

func TestValidateAcceptsWellFormedScenario(t *testing.T) {
	v := New()
	err := v.Validate(baseScenario())
	require.NoError(t, err)
	assert.False(t, v.HasErrors())
}

func TestValidateRejectsMissingReplicaCount(t *testing.T) {
	v := New()
	s := baseScenario()
	s.Spec.ReplicaCount = 0
	err := v.Validate(s)
	require.Error(t, err)
	assert.True(t, v.HasErrors())
}

func TestValidateWarnsOnEvenReplicaCount(t *testing.T) {
	v := New()
	s := baseScenario()
	s.Spec.ReplicaCount = 4
	require.NoError(t, v.Validate(s))
	assert.True(t, v.HasWarnings())
}

func TestValidateRejectsUnknownActiveInvariant(t *testing.T) {
	v := New()
	s := baseScenario()
	s.Spec.ActiveInvariants = []string{"not_a_real_checker"}
	err := v.Validate(s)
	require.Error(t, err)
}

func TestValidateRejectsBadNetworkDelayRange(t *testing.T) {
	v := New()
	s := baseScenario()
	s.Spec.NetworkPolicy.MinDelayNs = 100
	s.Spec.NetworkPolicy.MaxDelayNs = 10
	err := v.Validate(s)
	require.Error(t, err)
}

func TestValidateRejectsOutOfRangeProbability(t *testing.T) {
	v := New()
	s := baseScenario()
	s.Spec.StoragePolicy.FsyncFailureProb = 1.5
	err := v.Validate(s)
	require.Error(t, err)
}

func TestValidateWarnsOnFullFsyncFailure(t *testing.T) {
	v := New()
	s := baseScenario()
	s.Spec.StoragePolicy.FsyncFailureProb = 1
	require.NoError(t, v.Validate(s))
	assert.True(t, v.HasWarnings())
}

func TestValidateWarnsOnFullDropWithNoOverrides(t *testing.T) {
	v := New()
	s := baseScenario()
	s.Spec.NetworkPolicy.DropProb = 1
	require.NoError(t, v.Validate(s))
	assert.True(t, v.HasWarnings())
}

func TestValidateRejectsInvalidByzantineRule(t *testing.T) {
	v := New()
	s := baseScenario()
	s.Spec.ByzantineRules = []scenario.ByzantineRule{{Target: "r0", MutationKind: "not-a-mutation"}}
	err := v.Validate(s)
	require.Error(t, err)
}

func TestValidateRejectsBurstDurationLongerThanPeriod(t *testing.T) {
	v := New()
	s := baseScenario()
	s.Spec.WorkloadConfig = scenario.WorkloadConfig{
		Pattern:            "bursty",
		BurstDurationTicks: 20,
		BurstPeriodTicks:   10,
	}
	err := v.Validate(s)
	require.Error(t, err)
}

func TestGetReportListsErrorsAndWarnings(t *testing.T) {
	v := New()
	s := baseScenario()
	s.Spec.ReplicaCount = 0
	_ = v.Validate(s)
	report := v.GetReport()
	assert.Contains(t, report, "ERRORS:")
}
