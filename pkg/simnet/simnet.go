// Package simnet simulates the message fabric between replicas: per-link
// delay/drop/duplicate/corruption, partitions, a stateful clog modifier,
// and an optional Byzantine message-mutation layer. All nondeterminism is
// drawn from an injected RNG stream; nothing here touches a real socket.
package simnet

import (
	"sort"

	"github.com/jihwankim/viewharness/pkg/simclock"
	"github.com/jihwankim/viewharness/pkg/simrng"
)

// Envelope is a protocol message in transit. Bytes is the opaque payload
// the wrapped replica produced; the semantic fields alongside it exist
// only so the Byzantine mutation layer (which must operate on a handful
// of named fields per the fault catalog) has something to mutate without
// the harness needing to understand the replica's wire format.
type Envelope struct {
	From, To string
	Type     string
	View     int64
	Commit   int64
	Checksum [32]byte
	Bytes    []byte
}

// LinkPolicy parameterizes one directed link's behavior.
type LinkPolicy struct {
	MinDelayNs    int64
	MaxDelayNs    int64
	DropProb      float64
	DuplicateProb float64
	CorruptProb   float64

	// ClogFactor multiplies delay while the link is clogged.
	ClogFactor float64
	// ClogDropBoost is added to DropProb while the link is clogged.
	ClogDropBoost float64
}

type linkKey struct{ from, to string }

// Delivery describes one scheduled arrival produced by a Send call. The
// caller schedules a message-delivery event at At; a dropped message
// produces no Delivery at all.
type Delivery struct {
	At       simclock.Time
	Envelope Envelope
}

// Network owns per-link state: policies, clog flags, and partition
// membership. It is owned exclusively by the fault injector / cluster
// coordinator for one run.
type Network struct {
	rng *simrng.Stream

	defaultPolicy LinkPolicy
	policies      map[linkKey]LinkPolicy
	clogged       map[linkKey]bool
	partitionOf   map[string]int // replica id -> partition group id; 0 = unpartitioned
	mutator       *Mutator
}

// NewNetwork constructs a network with a default link policy applied to
// any pair without an explicit override.
func NewNetwork(rng *simrng.Stream, defaultPolicy LinkPolicy) *Network {
	return &Network{
		rng:           rng,
		defaultPolicy: defaultPolicy,
		policies:      make(map[linkKey]LinkPolicy),
		clogged:       make(map[linkKey]bool),
		partitionOf:   make(map[string]int),
	}
}

// SetLinkPolicy overrides the policy for a specific directed link.
func (n *Network) SetLinkPolicy(from, to string, p LinkPolicy) {
	n.policies[linkKey{from, to}] = p
}

// SetMutator installs the Byzantine mutation layer. A nil mutator (the
// default) leaves all traffic unmutated.
func (n *Network) SetMutator(m *Mutator) {
	n.mutator = m
}

// SetClogged toggles a link's clog state. Clog/unclog transitions are
// themselves driven by scheduled fault events in the fault injector (C7);
// this method is the mechanism, not the policy.
func (n *Network) SetClogged(from, to string, clogged bool) {
	n.clogged[linkKey{from, to}] = clogged
}

// SetPartitions replaces the partition membership: replicas sharing a
// group id can exchange messages with each other (and with group 0,
// "unpartitioned") but not across distinct non-zero groups. Passing nil
// groups heals all partitions.
func (n *Network) SetPartitions(groups [][]string) {
	n.partitionOf = make(map[string]int)
	for gid, members := range groups {
		for _, m := range members {
			n.partitionOf[m] = gid + 1
		}
	}
}

func (n *Network) partitioned(from, to string) bool {
	a, aOK := n.partitionOf[from]
	b, bOK := n.partitionOf[to]
	if !aOK || !bOK {
		return false
	}
	return a != b
}

func (n *Network) policyFor(from, to string) LinkPolicy {
	if p, ok := n.policies[linkKey{from, to}]; ok {
		return p
	}
	return n.defaultPolicy
}

// Send rolls partition/drop/duplicate/corruption/mutation for one
// message and returns the set of deliveries it produces (zero, one, or
// two in the duplicate case). The caller schedules a delivery event for
// each entry at its At time.
func (n *Network) Send(now simclock.Time, env Envelope) []Delivery {
	if n.partitioned(env.From, env.To) {
		return nil
	}

	key := linkKey{env.From, env.To}
	policy := n.policyFor(env.From, env.To)
	clogged := n.clogged[key]

	dropProb := policy.DropProb
	if clogged {
		dropProb += policy.ClogDropBoost
	}
	if n.rng.Bernoulli(dropProb) {
		return nil
	}

	env = n.applyMutation(env)
	if env.To == "" {
		// A "refuse to relay" mutation zeroes the destination; treat as
		// a silent drop at the network layer.
		return nil
	}

	if n.rng.Bernoulli(policy.CorruptProb) {
		env = corrupt(env, n.rng)
	}

	var deliveries []Delivery
	deliveries = append(deliveries, Delivery{At: now + n.drawDelay(policy, clogged), Envelope: env})

	if n.rng.Bernoulli(policy.DuplicateProb) {
		dup := env
		dup.Bytes = append([]byte(nil), env.Bytes...)
		deliveries = append(deliveries, Delivery{At: now + n.drawDelay(policy, clogged), Envelope: dup})
	}

	return deliveries
}

func (n *Network) drawDelay(policy LinkPolicy, clogged bool) simclock.Time {
	lo, hi := policy.MinDelayNs, policy.MaxDelayNs
	if clogged && policy.ClogFactor > 0 {
		lo = int64(float64(lo) * policy.ClogFactor)
		hi = int64(float64(hi) * policy.ClogFactor)
	}
	if hi <= lo {
		return simclock.Time(lo)
	}
	return simclock.Time(n.rng.UniformRange(lo, hi+1))
}

func corrupt(env Envelope, rng *simrng.Stream) Envelope {
	if len(env.Bytes) == 0 {
		return env
	}
	out := append([]byte(nil), env.Bytes...)
	idx := int(rng.UniformRange(0, int64(len(out))))
	out[idx] ^= 0xFF
	env.Bytes = out
	return env
}

func (n *Network) applyMutation(env Envelope) Envelope {
	if n.mutator == nil {
		return env
	}
	return n.mutator.Apply(env, n.rng)
}

// PartitionGroups returns the current partition membership keyed by
// group id, with each group's members sorted by replica id.
func (n *Network) PartitionGroups() map[int][]string {
	out := make(map[int][]string)
	ids := make([]string, 0, len(n.partitionOf))
	for id := range n.partitionOf {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		gid := n.partitionOf[id]
		out[gid] = append(out[gid], id)
	}
	return out
}
