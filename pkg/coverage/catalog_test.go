package coverage

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFaultPointCatalogHasNoDuplicates(t *testing.T) {
	seen := make(map[string]bool, len(FaultPointCatalog))
	for _, fp := range FaultPointCatalog {
		assert.False(t, seen[fp], "duplicate fault point %q", fp)
		seen[fp] = true
	}
}

func TestConcurrentMergeAndSnapshotDoNotRace(t *testing.T) {
	live := New()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			c := New()
			c.RecordFaultPoint(FaultPointCatalog[n%len(FaultPointCatalog)])
			c.RecordInvariantExecution("agreement")
			live.Merge(c)
		}(i)
	}

	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				return
			default:
				_ = live.Snapshot()
			}
		}
	}()

	wg.Wait()
	close(done)

	snap := live.Snapshot()
	assert.Equal(t, 8, snap.InvariantExecuted["agreement"])
}
