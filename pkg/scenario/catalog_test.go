package scenario

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookupKnownIdentifier(t *testing.T) {
	sc, ok := Lookup("core-quorum-write")
	require.True(t, ok)
	assert.Equal(t, "core-quorum-write", sc.Metadata.Name)
}

func TestLookupUnknownIdentifier(t *testing.T) {
	_, ok := Lookup("not-a-real-scenario")
	assert.False(t, ok)
}

func TestNamesAreSortedAndCoverTheCatalog(t *testing.T) {
	names := Names()
	require.Len(t, names, len(Catalog))
	for i := 1; i < len(names); i++ {
		assert.Less(t, names[i-1], names[i])
	}
}

func TestLiteralTestablePropertyScenariosAreRegistered(t *testing.T) {
	baseline, ok := Lookup("baseline")
	require.True(t, ok)
	assert.Equal(t, 3, baseline.Spec.ReplicaCount)
	assert.Equal(t, int64(1_000), baseline.Spec.WorkloadConfig.KeySpace)

	inflated, ok := Lookup("byzantine_inflated_commit")
	require.True(t, ok)
	require.Len(t, inflated.Spec.ByzantineRules, 1)
	assert.Equal(t, "r2", inflated.Spec.ByzantineRules[0].Target)
	assert.Equal(t, "view-change", inflated.Spec.ByzantineRules[0].Selector)
	assert.Equal(t, int64(500), inflated.Spec.ByzantineRules[0].InflateFactor)

	combined, ok := Lookup("combined")
	require.True(t, ok)
	assert.Equal(t, 3, combined.Spec.WorkloadConfig.TenantCount)
	assert.Equal(t, 0.02, combined.Spec.StoragePolicy.WriteFailureProb)
}

func TestCloneDoesNotAliasSharedState(t *testing.T) {
	original, ok := Lookup("byzantine-equivocation")
	require.True(t, ok)

	cp := Clone(original)
	cp.Spec.ByzantineRules[0].Target = "mutated"
	cp.Spec.ActiveInvariants = append(cp.Spec.ActiveInvariants, "extra_invariant")

	assert.NotEqual(t, "mutated", original.Spec.ByzantineRules[0].Target)
	assert.NotContains(t, original.Spec.ActiveInvariants, "extra_invariant")
}
