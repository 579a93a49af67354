package observability

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/jihwankim/viewharness/pkg/coverage"
)

func TestSummarizeCountsHitsAgainstCatalog(t *testing.T) {
	cov := coverage.New()
	cov.RecordFaultPoint("storage.write_failure")
	cov.RecordInvariantExecution("agreement")
	cov.ViewChanges = 2
	cov.Repairs = 1

	catalog := []string{"storage.write_failure", "network.drop", "network.corrupt"}
	snap := Summarize(cov, catalog)

	assert.Equal(t, 1, snap.FaultPointsHit)
	assert.Equal(t, 3, snap.FaultPointsTotal)
	assert.Equal(t, 1, snap.InvariantsExecuted)
	assert.Equal(t, 2, snap.ViewChanges)
	assert.Equal(t, 1, snap.Repairs)
	assert.ElementsMatch(t, []string{"network.drop", "network.corrupt"}, snap.UncoveredFaults)
}

func TestSummarizeWithEmptyCatalogHitsNothing(t *testing.T) {
	cov := coverage.New()
	snap := Summarize(cov, nil)
	assert.Equal(t, 0, snap.FaultPointsTotal)
	assert.Equal(t, 0, snap.FaultPointsHit)
	assert.Empty(t, snap.UncoveredFaults)
}

func TestLineRendersCountsDeterministically(t *testing.T) {
	cov := coverage.New()
	cov.RecordFaultPoint("a")
	snap := Summarize(cov, []string{"a", "b"})
	assert.Equal(t, "coverage: 1/2 fault points, 0 invariants executed, 0 view changes, 0 repairs", snap.Line())
}

func TestDashboardStartStopDoesNotPanic(t *testing.T) {
	cov := coverage.New()
	d := NewDashboard(cov, []string{"a", "b"})
	d.Start(5 * time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	cov.RecordFaultPoint("a")
	time.Sleep(20 * time.Millisecond)
	d.Stop()
	// Stop must be idempotent-safe to call once more without blocking.
	d.Stop()
}
