package runner

import (
	"crypto/sha256"

	"github.com/jihwankim/viewharness/pkg/replica"
	"github.com/jihwankim/viewharness/pkg/simclock"
	"github.com/jihwankim/viewharness/pkg/simqueue"
)

// RunCheckpoint is a periodic snapshot of a run's reconstructible state:
// how far it got, the simulated time it reached, and a content hash of
// every replica's storage/kernel state. pkg/repro collects a stream of
// these during bisection to report where in a long run a bisection
// probe actually landed; Digest reduces one to a single value for
// comparing two runs at the same event index.
type RunCheckpoint struct {
	EventIndex    int64
	SimTime       simclock.Time
	ReplicaHashes map[string][32]byte
}

// Digest folds a checkpoint's per-replica hashes into one value, for a
// single-number comparison between two runs' checkpoints at the same
// event index.
func (c RunCheckpoint) Digest() [32]byte {
	h := sha256.New()
	for _, id := range sortedKeys(c.ReplicaHashes) {
		rh := c.ReplicaHashes[id]
		h.Write([]byte(id))
		h.Write(rh[:])
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

func sortedKeys(m map[string][32]byte) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && keys[j-1] > keys[j]; j-- {
			keys[j-1], keys[j] = keys[j], keys[j-1]
		}
	}
	return keys
}

func checkpointFromSnapshots(idx int64, now simclock.Time, snaps []replica.Snapshot) RunCheckpoint {
	hashes := make(map[string][32]byte, len(snaps))
	for _, s := range snaps {
		combined := sha256.New()
		combined.Write(s.StorageRootHash[:])
		combined.Write(s.KernelStateHash[:])
		var h [32]byte
		copy(h[:], combined.Sum(nil))
		hashes[s.ReplicaID] = h
	}
	return RunCheckpoint{EventIndex: idx, SimTime: now, ReplicaHashes: hashes}
}

// RunOption customizes a single RunSingle invocation without disturbing
// its existing positional call sites.
type RunOption func(*runOptions)

// TraceEntry is one processed event, reduced to the single replica it
// primarily concerns (where that is knowable from its payload alone),
// for pkg/repro's timeline renderer.
type TraceEntry struct {
	Index int64
	Time  simclock.Time
	Kind  simqueue.EventKind
	Node  string // "" for a cluster-wide event (periodic tick, client request)
}

type runOptions struct {
	checkpointEvery int64
	onCheckpoint    func(RunCheckpoint)
	skipEvent       func(index int64, kind simqueue.EventKind) bool
	onEvent         func(TraceEntry)
}

// WithEventTrace asks RunSingle to call fn once per processed event
// (skipped events included, since a skipped event still occupies its
// slot in the timeline) with a reduced TraceEntry.
func WithEventTrace(fn func(TraceEntry)) RunOption {
	return func(o *runOptions) {
		o.onEvent = fn
	}
}

// WithEventFilter asks RunSingle to skip processing (but still count
// toward EventsProcessed and still re-arm, for a periodic tick) every
// event for which skip returns true. index is the event's zero-based
// position in processing order, matching the index space ddmin and
// bisection both reason about. Used by pkg/repro's delta-debugger to
// test whether a candidate event subset is still necessary to reproduce
// a failure, without needing a second, subset-shaped simulation engine.
func WithEventFilter(skip func(index int64, kind simqueue.EventKind) bool) RunOption {
	return func(o *runOptions) {
		o.skipEvent = skip
	}
}

// WithCheckpoints asks RunSingle to call fn with a RunCheckpoint every
// `every` processed events (in addition to one at event 0). pkg/repro's
// bisection driver uses this to record the checkpoint trail a failing
// run produced, then re-simulates bounded prefixes of the same seed to
// search for the shortest prefix that still fails — cheap here because
// re-simulating this harness's in-memory event loop from scratch is far
// cheaper than the live-system replay a checkpoint-interval is meant to
// shortcut, so no separate "restore from checkpoint" code path exists:
// restoring IS re-simulating from seed to that checkpoint's event index.
func WithCheckpoints(every int64, fn func(RunCheckpoint)) RunOption {
	return func(o *runOptions) {
		o.checkpointEvery = every
		o.onCheckpoint = fn
	}
}
