// Package workload produces the stream of client transactions a
// scenario drives through the cluster coordinator. Every draw is made
// against an injected simrng.Stream, so a workload's entire output is a
// pure function of its seed.
//
// Uses the same weighted/near-threshold sampling shape as the rest of
// the RNG-driven harness, retargeted from "sample a fault parameter
// near its pass/fail threshold" to "sample a transaction key from a
// traffic pattern."
package workload

import (
	"fmt"

	"github.com/jihwankim/viewharness/pkg/replica"
	"github.com/jihwankim/viewharness/pkg/simrng"
)

// Pattern is the closed set of traffic shapes a Generator can produce.
type Pattern int

const (
	PatternUniform Pattern = iota
	PatternHotspot
	PatternSequential
	PatternMultiTenantHot
	PatternBursty
	PatternReadModifyWrite
)

func (p Pattern) String() string {
	switch p {
	case PatternUniform:
		return "uniform"
	case PatternHotspot:
		return "hotspot"
	case PatternSequential:
		return "sequential"
	case PatternMultiTenantHot:
		return "multi_tenant_hot"
	case PatternBursty:
		return "bursty"
	case PatternReadModifyWrite:
		return "read_modify_write"
	default:
		return "unknown"
	}
}

// Config parameterizes a Generator. Zero values apply sensible defaults
// where one exists (HotTrafficShare 0.8, TenantHotShare 0.8,
// BurstMultiplier 10, RollbackProb read from the field directly since
// there is no natural default for it).
type Config struct {
	Pattern Pattern

	KeySpace    int64 // K, the uniform/hotspot/sequential key range [0, K)
	ClientCount int

	// Hotspot
	HotKeyFraction float64 // fraction of the key space considered "hot" (example: 0.2)
	HotTrafficShare float64 // fraction of traffic routed to hot keys (example: 0.8); 0 defaults to 0.8

	// MultiTenantHot
	TenantCount    int
	TenantHotShare float64 // fraction of traffic routed to tenant 0; 0 defaults to 0.8
	TenantKeyRange int64   // per-tenant key range

	// Bursty
	BurstMultiplier     float64 // transactions per tick during a burst; 0 defaults to 10
	BurstDurationTicks  int64
	BurstPeriodTicks    int64

	// ReadModifyWrite
	RollbackProb float64
}

func (c Config) hotTrafficShare() float64 {
	if c.HotTrafficShare == 0 {
		return 0.8
	}
	return c.HotTrafficShare
}

func (c Config) tenantHotShare() float64 {
	if c.TenantHotShare == 0 {
		return 0.8
	}
	return c.TenantHotShare
}

func (c Config) burstMultiplier() float64 {
	if c.BurstMultiplier == 0 {
		return 10
	}
	return c.BurstMultiplier
}

// Transaction is one client-visible unit of work: a single request
// number shared across every op in the chain, matching a real client's
// view of "one transaction, one outcome," even when the chain issues
// several wrapper-visible client requests (begin/read/write/commit).
type Transaction struct {
	ClientID      string
	RequestNumber int64
	Ops           []replica.ClientRequest
}

// Generator produces transactions against one configured pattern.
type Generator struct {
	rng *simrng.Stream
	cfg Config

	requestNumByClient map[string]int64
	sequentialCursor   int64
	tick               int64
}

// New constructs a Generator. rng should be a sub-stream derived for
// this scenario's workload (e.g. Derive("workload")).
func New(rng *simrng.Stream, cfg Config) *Generator {
	return &Generator{
		rng:                rng,
		cfg:                cfg,
		requestNumByClient: make(map[string]int64),
	}
}

// Next advances the generator by one tick and returns the transactions
// issued during it — ordinarily one, but a multiple during a bursty
// pattern's active window.
func (g *Generator) Next() []Transaction {
	g.tick++
	n := g.transactionsThisTick()
	out := make([]Transaction, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, g.draw())
	}
	return out
}

func (g *Generator) transactionsThisTick() int {
	if g.cfg.Pattern != PatternBursty || g.cfg.BurstPeriodTicks <= 0 {
		return 1
	}
	phase := (g.tick - 1) % g.cfg.BurstPeriodTicks
	if phase < g.cfg.BurstDurationTicks {
		return int(g.cfg.burstMultiplier())
	}
	return 1
}

func (g *Generator) nextClientID() string {
	n := g.cfg.ClientCount
	if n <= 0 {
		n = 1
	}
	idx := g.rng.UniformRange(0, int64(n))
	return fmt.Sprintf("client-%d", idx)
}

func (g *Generator) nextRequestNumber(clientID string) int64 {
	g.requestNumByClient[clientID]++
	return g.requestNumByClient[clientID]
}

// scanProb is the per-draw chance a Sequential-pattern transaction issues
// a scan instead of a write, once every few dozen keys walked.
const scanProb = 0.02

func (g *Generator) draw() Transaction {
	clientID := g.nextClientID()
	reqNum := g.nextRequestNumber(clientID)

	if g.cfg.Pattern == PatternReadModifyWrite {
		return g.drawReadModifyWrite(clientID, reqNum)
	}

	key := g.drawKey()
	op := replica.OpWrite
	var value []byte
	if g.cfg.Pattern == PatternSequential && g.rng.Bernoulli(scanProb) {
		op = replica.OpScan
	} else {
		value = []byte(fmt.Sprintf("v-%d-%d", key, reqNum))
	}
	return Transaction{
		ClientID:      clientID,
		RequestNumber: reqNum,
		Ops: []replica.ClientRequest{{
			ClientID:      clientID,
			RequestNumber: reqNum,
			OpKind:        op,
			Key:           key,
			Value:         value,
		}},
	}
}

func (g *Generator) drawReadModifyWrite(clientID string, reqNum int64) Transaction {
	key := g.drawKey()
	outcome := replica.OpCommit
	if g.rng.Bernoulli(g.cfg.RollbackProb) {
		outcome = replica.OpRollback
	}
	return Transaction{
		ClientID:      clientID,
		RequestNumber: reqNum,
		Ops: []replica.ClientRequest{
			{ClientID: clientID, RequestNumber: reqNum, OpKind: replica.OpBegin, Key: key},
			{ClientID: clientID, RequestNumber: reqNum, OpKind: replica.OpRead, Key: key},
			{ClientID: clientID, RequestNumber: reqNum, OpKind: replica.OpReadModifyWrite, Key: key, Value: []byte(fmt.Sprintf("rmw-%d-%d", key, reqNum))},
			{ClientID: clientID, RequestNumber: reqNum, OpKind: outcome, Key: key},
		},
	}
}

func (g *Generator) drawKey() int64 {
	switch g.cfg.Pattern {
	case PatternHotspot:
		return g.drawHotspotKey()
	case PatternSequential:
		return g.drawSequentialKey()
	case PatternMultiTenantHot:
		return g.drawMultiTenantKey()
	default:
		return g.drawUniformKey()
	}
}

func (g *Generator) keySpace() int64 {
	if g.cfg.KeySpace <= 0 {
		return 1000
	}
	return g.cfg.KeySpace
}

func (g *Generator) drawUniformKey() int64 {
	return g.rng.UniformRange(0, g.keySpace())
}

func (g *Generator) drawHotspotKey() int64 {
	k := g.keySpace()
	hotFraction := g.cfg.HotKeyFraction
	if hotFraction <= 0 {
		hotFraction = 0.2
	}
	hotKeys := int64(float64(k) * hotFraction)
	if hotKeys < 1 {
		hotKeys = 1
	}
	if g.rng.Bernoulli(g.cfg.hotTrafficShare()) {
		return g.rng.UniformRange(0, hotKeys)
	}
	return g.rng.UniformRange(hotKeys, k)
}

func (g *Generator) drawSequentialKey() int64 {
	k := g.keySpace()
	key := g.sequentialCursor % k
	g.sequentialCursor++
	return key
}

func (g *Generator) drawMultiTenantKey() int64 {
	tenants := g.cfg.TenantCount
	if tenants <= 0 {
		tenants = 1
	}
	tenantRange := g.cfg.TenantKeyRange
	if tenantRange <= 0 {
		tenantRange = g.keySpace() / int64(tenants)
		if tenantRange < 1 {
			tenantRange = 1
		}
	}
	var tenant int64
	if tenants > 1 && g.rng.Bernoulli(g.cfg.tenantHotShare()) {
		tenant = 0
	} else if tenants > 1 {
		tenant = g.rng.UniformRange(1, int64(tenants))
	}
	offset := g.rng.UniformRange(0, tenantRange)
	return tenant*tenantRange + offset
}
