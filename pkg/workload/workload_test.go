package workload

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jihwankim/viewharness/pkg/replica"
	"github.com/jihwankim/viewharness/pkg/simrng"
)

func TestUniformKeysStayInRange(t *testing.T) {
	g := New(simrng.New(1), Config{Pattern: PatternUniform, KeySpace: 100, ClientCount: 4})
	for i := 0; i < 200; i++ {
		for _, tx := range g.Next() {
			for _, op := range tx.Ops {
				assert.GreaterOrEqual(t, op.Key, int64(0))
				assert.Less(t, op.Key, int64(100))
			}
		}
	}
}

func TestHotspotSkewsTowardHotKeys(t *testing.T) {
	g := New(simrng.New(2), Config{Pattern: PatternHotspot, KeySpace: 100, ClientCount: 4, HotKeyFraction: 0.2, HotTrafficShare: 0.8})
	hot := 0
	total := 2000
	for i := 0; i < total; i++ {
		for _, tx := range g.Next() {
			if tx.Ops[0].Key < 20 {
				hot++
			}
		}
	}
	frac := float64(hot) / float64(total)
	assert.Greater(t, frac, 0.6, "hotspot pattern should send most traffic to the hot key range")
}

func TestSequentialKeysAreMonotoneModuloKeySpace(t *testing.T) {
	g := New(simrng.New(3), Config{Pattern: PatternSequential, KeySpace: 10, ClientCount: 1})
	var keys []int64
	for i := 0; i < 25; i++ {
		for _, tx := range g.Next() {
			keys = append(keys, tx.Ops[0].Key)
		}
	}
	for i, k := range keys {
		assert.Equal(t, int64(i%10), k)
	}
}

func TestSequentialOccasionallyEmitsScan(t *testing.T) {
	g := New(simrng.New(10), Config{Pattern: PatternSequential, KeySpace: 50, ClientCount: 1})
	scans, writes := 0, 0
	for i := 0; i < 2000; i++ {
		for _, tx := range g.Next() {
			switch tx.Ops[0].OpKind {
			case replica.OpScan:
				scans++
				assert.Nil(t, tx.Ops[0].Value, "a scan carries no write payload")
			case replica.OpWrite:
				writes++
			}
		}
	}
	assert.Greater(t, scans, 0, "sequential pattern should occasionally emit a scan")
	assert.Greater(t, writes, 0)
}

func TestMultiTenantHotRoutesMostTrafficToTenantZero(t *testing.T) {
	g := New(simrng.New(4), Config{Pattern: PatternMultiTenantHot, TenantCount: 5, TenantKeyRange: 100, ClientCount: 4, TenantHotShare: 0.8})
	tenantZero := 0
	total := 2000
	for i := 0; i < total; i++ {
		for _, tx := range g.Next() {
			if tx.Ops[0].Key < 100 {
				tenantZero++
			}
		}
	}
	frac := float64(tenantZero) / float64(total)
	assert.Greater(t, frac, 0.6)
}

func TestBurstyProducesMoreTransactionsDuringActiveWindow(t *testing.T) {
	g := New(simrng.New(5), Config{Pattern: PatternBursty, KeySpace: 50, ClientCount: 2, BurstPeriodTicks: 10, BurstDurationTicks: 2, BurstMultiplier: 10})
	var counts []int
	for i := 0; i < 10; i++ {
		counts = append(counts, len(g.Next()))
	}
	assert.Equal(t, 10, counts[0])
	assert.Equal(t, 10, counts[1])
	assert.Equal(t, 1, counts[2])
}

func TestReadModifyWriteChainShape(t *testing.T) {
	g := New(simrng.New(6), Config{Pattern: PatternReadModifyWrite, KeySpace: 20, ClientCount: 1, RollbackProb: 0})
	tx := g.Next()[0]
	require.Len(t, tx.Ops, 4)
	assert.Equal(t, replica.OpBegin, tx.Ops[0].OpKind)
	assert.Equal(t, replica.OpRead, tx.Ops[1].OpKind)
	assert.Equal(t, replica.OpReadModifyWrite, tx.Ops[2].OpKind)
	assert.Equal(t, replica.OpCommit, tx.Ops[3].OpKind, "zero rollback probability should always commit")
	for _, op := range tx.Ops {
		assert.Equal(t, tx.Ops[0].Key, op.Key, "every op in a transaction targets the same key")
	}
}

func TestReadModifyWriteRollsBackWhenProbabilityOne(t *testing.T) {
	g := New(simrng.New(7), Config{Pattern: PatternReadModifyWrite, KeySpace: 20, ClientCount: 1, RollbackProb: 1})
	tx := g.Next()[0]
	assert.Equal(t, replica.OpRollback, tx.Ops[3].OpKind)
}

func TestRequestNumbersAreMonotonePerClient(t *testing.T) {
	g := New(simrng.New(8), Config{Pattern: PatternUniform, KeySpace: 10, ClientCount: 1})
	var nums []int64
	for i := 0; i < 5; i++ {
		nums = append(nums, g.Next()[0].RequestNumber)
	}
	for i, n := range nums {
		assert.Equal(t, int64(i+1), n)
	}
}

func TestGeneratorIsDeterministicForSameSeed(t *testing.T) {
	run := func() []int64 {
		g := New(simrng.New(9), Config{Pattern: PatternHotspot, KeySpace: 100, ClientCount: 3})
		var keys []int64
		for i := 0; i < 50; i++ {
			for _, tx := range g.Next() {
				keys = append(keys, tx.Ops[0].Key)
			}
		}
		return keys
	}
	require.Equal(t, run(), run())
}
