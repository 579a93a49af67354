// Package simstorage simulates a per-replica block device with the
// two-tier pending/durable durability model, parametric crash semantics,
// completion reordering, and fault injection described by the harness's
// storage model. It never touches the host filesystem; everything is an
// in-memory map rolled against an injected RNG stream.
//
// Grounded in the disk-fault parameter shape the wider chaos-engineering
// retrieval pack used for tc/ionice-backed disk impairment (probability
// knobs plus a Validate step), generalized here from "run a command
// against a live block device" to "flip bits and drop writes in memory."
package simstorage

import (
	"crypto/sha256"
	"fmt"
	"sort"

	"github.com/jihwankim/viewharness/pkg/simclock"
	"github.com/jihwankim/viewharness/pkg/simrng"
)

// CrashPoint is the closed set of points at which a crash may be
// scheduled relative to an in-flight operation.
type CrashPoint int

const (
	CrashNone CrashPoint = iota
	CrashDuringWrite
	CrashDuringFsync
	CrashAfterFsyncBeforeAck
	CrashPowerLoss
	CrashCleanShutdown
)

// ReorderPolicy selects how ReorderCompletions permutes a batch of
// completions relative to their issue order. Crash does not consult it:
// pending writes are resolved in issue order.
type ReorderPolicy int

const (
	ReorderFIFO ReorderPolicy = iota
	ReorderRandom
	ReorderElevator
	ReorderDeadline
)

// DefaultBlockSize is the torn-write atomicity unit used when a scenario
// does not configure one explicitly (spec 9: "4 KB as an example atomic
// unit, but this must be configurable per scenario").
const DefaultBlockSize = 4096

// FaultPolicy parameterizes the probabilistic fault hooks every
// operation rolls against, plus the structural (reordering, block size,
// concurrency) knobs.
type FaultPolicy struct {
	WriteFailureProb float64
	ReadCorruptProb  float64
	FsyncFailureProb float64
	PartialWriteProb float64
	LatentSectorProb float64

	BlockSize int

	ReorderPolicy ReorderPolicy
	ReorderWindow int // max look-ahead swap distance, used by ReorderDeadline

	MaxInFlight   int
	MinLatencyNs  int64
	MaxLatencyNs  int64
}

// Validate rejects structurally nonsensical policies before a run starts,
// matching the harness's scenario-misconfiguration error kind.
func (p FaultPolicy) Validate() error {
	for name, v := range map[string]float64{
		"WriteFailureProb": p.WriteFailureProb,
		"ReadCorruptProb":  p.ReadCorruptProb,
		"FsyncFailureProb": p.FsyncFailureProb,
		"PartialWriteProb": p.PartialWriteProb,
		"LatentSectorProb": p.LatentSectorProb,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("simstorage: %s must be in [0,1], got %v", name, v)
		}
	}
	if p.BlockSize < 0 {
		return fmt.Errorf("simstorage: BlockSize must be non-negative")
	}
	if p.MaxInFlight < 0 {
		return fmt.Errorf("simstorage: MaxInFlight must be non-negative")
	}
	if p.MinLatencyNs < 0 || p.MaxLatencyNs < p.MinLatencyNs {
		return fmt.Errorf("simstorage: latency bounds invalid (min=%d max=%d)", p.MinLatencyNs, p.MaxLatencyNs)
	}
	return nil
}

func (p FaultPolicy) blockSize() int {
	if p.BlockSize == 0 {
		return DefaultBlockSize
	}
	return p.BlockSize
}

// WriteOutcome is the immediate, deterministic result of rolling a write
// against the active fault policy. The caller (the replica wrapper) is
// responsible for turning this into a scheduled storage-completion event
// at Now+Latency, which is what the model store observes.
type WriteOutcome struct {
	Offset       int64
	BytesWritten int
	Success      bool
	Partial      bool
	Latency      simclock.Time
}

// FsyncOutcome is the immediate result of rolling an fsync barrier.
type FsyncOutcome struct {
	Success bool
	Latency simclock.Time
}

type pendingWrite struct {
	offset int64
	data   []byte
}

// Device is one replica's simulated block device.
type Device struct {
	rng    *simrng.Stream
	policy FaultPolicy

	durable map[int64][]byte // block offset -> block content
	pending []pendingWrite

	inFlight int
	crashed  bool

	queueDepthHighWater int
	completionLatencies []simclock.Time
}

// NewDevice constructs an empty device. rng should be a sub-stream
// derived for this replica's storage (e.g. Derive("storage:replica-1"))
// so that storage rolls never perturb any other subsystem's draws.
func NewDevice(rng *simrng.Stream, policy FaultPolicy) *Device {
	return &Device{
		rng:     rng,
		policy:  policy,
		durable: make(map[int64][]byte),
	}
}

// Write rolls the write against the fault policy and returns its outcome.
// A failed write never enters the pending set. A partially-successful
// write ("bytes_written < bytes_requested") is recorded as such and must
// never be treated as a successful operation by history-based invariants.
func (d *Device) Write(offset int64, data []byte) WriteOutcome {
	latency := d.drawLatency()

	if d.rng.Bernoulli(d.policy.WriteFailureProb) {
		return WriteOutcome{Offset: offset, BytesWritten: 0, Success: false, Latency: latency}
	}

	written := data
	partial := false
	if d.rng.Bernoulli(d.policy.PartialWriteProb) && len(data) > 0 {
		n := int(d.rng.UniformRange(0, int64(len(data))))
		written = data[:n]
		partial = true
	}

	d.pending = append(d.pending, pendingWrite{offset: offset, data: append([]byte(nil), written...)})
	if len(d.pending) > d.queueDepthHighWater {
		d.queueDepthHighWater = len(d.pending)
	}

	return WriteOutcome{
		Offset:       offset,
		BytesWritten: len(written),
		Success:      !partial,
		Partial:      partial,
		Latency:      latency,
	}
}

// Fsync promotes all currently-pending writes to durable on success, or
// drops them (simulating lost page cache) on failure. The durable set is
// never touched by a failed fsync.
func (d *Device) Fsync() FsyncOutcome {
	latency := d.drawLatency()

	if d.rng.Bernoulli(d.policy.FsyncFailureProb) {
		d.pending = nil
		return FsyncOutcome{Success: false, Latency: latency}
	}

	for _, w := range d.pending {
		d.applyBlockAligned(w.offset, w.data)
	}
	d.pending = nil
	return FsyncOutcome{Success: true, Latency: latency}
}

func (d *Device) applyBlockAligned(offset int64, data []byte) {
	bs := int64(d.policy.blockSize())
	if bs <= 0 {
		d.durable[offset] = append([]byte(nil), data...)
		return
	}
	for i := 0; i < len(data); {
		blockStart := ((offset + int64(i)) / bs) * bs
		blockOff := (offset + int64(i)) - blockStart
		n := int(bs - blockOff)
		if i+n > len(data) {
			n = len(data) - i
		}
		block, ok := d.durable[blockStart]
		if !ok {
			block = make([]byte, bs)
		} else {
			block = append([]byte(nil), block...)
		}
		copy(block[blockOff:], data[i:i+n])
		d.durable[blockStart] = block
		i += n
	}
}

// Read returns the durable content at offset for length bytes. A
// latent-sector roll silently substitutes mutated bytes while still
// reporting success, matching the "read-corruption" fault hook; the
// returned bool reports whether this read was corrupted, for invariant
// checkers that want to attribute detections rather than for the caller
// to branch on (a real client cannot tell).
func (d *Device) Read(offset int64, length int) (data []byte, corrupted bool) {
	bs := int64(d.policy.blockSize())
	out := make([]byte, length)
	for i := 0; i < length; {
		var blockStart int64
		var blockOff int64
		if bs > 0 {
			blockStart = ((offset + int64(i)) / bs) * bs
			blockOff = (offset + int64(i)) - blockStart
		} else {
			blockStart = offset + int64(i)
			blockOff = 0
		}
		block := d.durable[blockStart]
		n := length - i
		if bs > 0 {
			if avail := int(bs - blockOff); avail < n {
				n = avail
			}
		}
		if block != nil && int(blockOff)+n <= len(block) {
			copy(out[i:i+n], block[blockOff:int(blockOff)+n])
		}
		i += n
	}

	if d.rng.Bernoulli(d.policy.ReadCorruptProb) || d.rng.Bernoulli(d.policy.LatentSectorProb) {
		if len(out) > 0 {
			idx := int(d.rng.UniformRange(0, int64(len(out))))
			out[idx] ^= 0xFF
		}
		return out, true
	}
	return out, false
}

// Crash applies the given crash point: durable content as of the last
// successful fsync survives unconditionally; pending writes are resolved
// according to the crash point and, when torn writes apply, at block
// granularity.
func (d *Device) Crash(point CrashPoint) {
	d.crashed = true

	switch point {
	case CrashCleanShutdown:
		for _, w := range d.pending {
			d.applyBlockAligned(w.offset, w.data)
		}
		d.pending = nil
	case CrashAfterFsyncBeforeAck:
		// The fsync itself already completed durably; only the ack was
		// lost, which is invisible to storage state.
	case CrashDuringFsync:
		// Each pending write is independently flushed before the
		// crash or not; the unflushed ones are then torn as on power loss.
		var survivors []pendingWrite
		for _, w := range d.pending {
			if d.rng.Bernoulli(0.5) {
				d.applyBlockAligned(w.offset, w.data)
			} else {
				survivors = append(survivors, w)
			}
		}
		d.tearPending(survivors)
		d.pending = nil
	case CrashDuringWrite, CrashPowerLoss:
		d.tearPending(d.pending)
		d.pending = nil
	default:
		d.pending = nil
	}
}

// tearPending resolves each still-pending write as fully present, fully
// absent, or (when the block size makes that meaningful) partially
// present at block granularity — each outcome is an independent roll so
// that power-loss torn writes cannot be predicted from the write's size
// alone.
func (d *Device) tearPending(pending []pendingWrite) {
	bs := int64(d.policy.blockSize())
	for _, w := range pending {
		if bs <= 0 || int64(len(w.data)) <= bs {
			if d.rng.Bernoulli(0.5) {
				d.applyBlockAligned(w.offset, w.data)
			}
			continue
		}
		for i := 0; i < len(w.data); i += int(bs) {
			end := i + int(bs)
			if end > len(w.data) {
				end = len(w.data)
			}
			if d.rng.Bernoulli(0.5) {
				d.applyBlockAligned(w.offset+int64(i), w.data[i:end])
			}
		}
	}
}

// Recover clears crash state and any pending writes not preserved by the
// crash resolution, leaving the device ready to accept new operations
// against the post-crash durable set.
func (d *Device) Recover() {
	d.crashed = false
	d.pending = nil
	d.inFlight = 0
}

// Snapshot is a read-only, pure view of the device's durable content.
type Snapshot struct {
	DurableBlocks map[int64][]byte
	RootHash      [32]byte
}

// Snapshot produces a pure view of the device; producing it never
// mutates the device.
func (d *Device) Snapshot() Snapshot {
	blocks := make(map[int64][]byte, len(d.durable))
	offsets := make([]int64, 0, len(d.durable))
	for off := range d.durable {
		offsets = append(offsets, off)
	}
	sort.Slice(offsets, func(i, j int) bool { return offsets[i] < offsets[j] })

	h := sha256.New()
	for _, off := range offsets {
		block := d.durable[off]
		blocks[off] = append([]byte(nil), block...)
		var offBytes [8]byte
		for i := 0; i < 8; i++ {
			offBytes[i] = byte(off >> (8 * i))
		}
		h.Write(offBytes[:])
		h.Write(block)
	}

	var root [32]byte
	copy(root[:], h.Sum(nil))
	return Snapshot{DurableBlocks: blocks, RootHash: root}
}

// Stats reports instrumentation counters useful to coverage/observability.
type Stats struct {
	QueueDepthHighWater int
	InFlight            int
}

// Stats returns the device's current instrumentation counters.
func (d *Device) Stats() Stats {
	return Stats{QueueDepthHighWater: d.queueDepthHighWater, InFlight: d.inFlight}
}

func (d *Device) drawLatency() simclock.Time {
	if d.policy.MaxLatencyNs <= d.policy.MinLatencyNs {
		return simclock.Time(d.policy.MinLatencyNs)
	}
	return simclock.Time(d.rng.UniformRange(d.policy.MinLatencyNs, d.policy.MaxLatencyNs+1))
}

// PendingCompletion is one in-flight operation awaiting reorderable
// delivery of its completion.
type PendingCompletion struct {
	Offset      int64
	ScheduledAt simclock.Time
}

// ReorderCompletions permutes a batch of in-flight completions according
// to the device's configured reordering policy. Barrier operations
// (fsync) are never passed through this function; callers must not
// reorder across a barrier.
func (d *Device) ReorderCompletions(completions []PendingCompletion) []PendingCompletion {
	out := append([]PendingCompletion(nil), completions...)
	switch d.policy.ReorderPolicy {
	case ReorderFIFO:
		// identity
	case ReorderElevator:
		sort.SliceStable(out, func(i, j int) bool { return out[i].Offset < out[j].Offset })
	case ReorderRandom:
		for i := len(out) - 1; i > 0; i-- {
			j := int(d.rng.UniformRange(0, int64(i)+1))
			out[i], out[j] = out[j], out[i]
		}
	case ReorderDeadline:
		window := d.policy.ReorderWindow
		if window <= 0 {
			window = 1
		}
		for i := 0; i < len(out); i++ {
			maxJ := i + window
			if maxJ >= len(out) {
				maxJ = len(out) - 1
			}
			if maxJ <= i {
				continue
			}
			j := i + int(d.rng.UniformRange(0, int64(maxJ-i)+1))
			out[i], out[j] = out[j], out[i]
		}
	}
	return out
}
