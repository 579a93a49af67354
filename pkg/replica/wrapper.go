package replica

import (
	"sort"

	"github.com/jihwankim/viewharness/pkg/simclock"
	"github.com/jihwankim/viewharness/pkg/simnet"
	"github.com/jihwankim/viewharness/pkg/simstorage"
)

// RejectionCause is the closed set of reasons a wrapper refuses to
// deliver a message to its Subject, used by Byzantine-scenario invariant
// checkers to attribute detections.
type RejectionCause int

const (
	RejectionNone RejectionCause = iota
	RejectionStaleView
	RejectionBadChecksum
	RejectionUnknownType
	RejectionOutOfOrder
	RejectionInflatedCommit
)

// String names a rejection cause for coverage reporting and logging.
func (c RejectionCause) String() string {
	switch c {
	case RejectionStaleView:
		return "stale_view"
	case RejectionBadChecksum:
		return "bad_checksum"
	case RejectionUnknownType:
		return "unknown_type"
	case RejectionOutOfOrder:
		return "out_of_order"
	case RejectionInflatedCommit:
		return "inflated_commit"
	default:
		return "none"
	}
}

// PendingIO describes one effect the wrapper has routed to storage/network
// and is waiting to turn into a future event; the cluster coordinator
// (C9), which owns the event queue, is responsible for actually
// scheduling it.
type PendingIO struct {
	Kind        string // "write", "fsync", "send"
	Deliveries  []simnet.Delivery
	WriteResult simstorage.WriteOutcome
	FsyncResult simstorage.FsyncOutcome
}

// StepResult carries both the routed I/O (for scheduling future events)
// and the original, unrouted effects (for callers that need to read
// fields a routed PendingIO does not carry, such as EffectApplyIndex's
// ApplyOffset/ApplyHash, which the model store correlates against
// observed storage completions rather than anything the wrapper routes).
type StepResult struct {
	Effects []Effect
	IO      []PendingIO
}

// Wrapper owns one Subject instance plus its storage device and routes
// its effects through the storage/network simulators.
type Wrapper struct {
	ID      string
	subject Subject
	storage *simstorage.Device
	network *simnet.Network

	crashed          bool
	rejectionCounts  map[RejectionCause]int
	timeoutGen       map[TimeoutKind]int64
}

// NewWrapper constructs a wrapper around one Subject instance.
func NewWrapper(id string, subject Subject, storage *simstorage.Device, network *simnet.Network) *Wrapper {
	return &Wrapper{
		ID:              id,
		subject:         subject,
		storage:         storage,
		network:         network,
		rejectionCounts: make(map[RejectionCause]int),
		timeoutGen:      make(map[TimeoutKind]int64),
	}
}

// Submit delivers a client request to the replica and routes its effects.
func (w *Wrapper) Submit(now simclock.Time, req ClientRequest) StepResult {
	if w.crashed {
		return StepResult{}
	}
	effects := w.subject.Step(StepInput{Kind: StepClientRequest, Request: &req})
	return StepResult{Effects: effects, IO: w.route(now, effects)}
}

// Deliver hands an inbound protocol message to the replica.
func (w *Wrapper) Deliver(now simclock.Time, env simnet.Envelope) StepResult {
	if w.crashed {
		return StepResult{}
	}
	effects := w.subject.Step(StepInput{Kind: StepMessage, Message: &env})
	return StepResult{Effects: effects, IO: w.route(now, effects)}
}

// Tick delivers a fired timeout to the replica. Generation must match the
// slot's current generation or the timeout is treated as stale and
// silently discarded, per the cancellation-by-generation model.
func (w *Wrapper) Tick(now simclock.Time, kind TimeoutKind, generation int64) StepResult {
	if w.crashed {
		return StepResult{}
	}
	if w.timeoutGen[kind] != generation {
		return StepResult{}
	}
	effects := w.subject.Step(StepInput{Kind: StepTimeout, Timeout: &TimeoutSignal{Kind: kind, Generation: generation}})
	return StepResult{Effects: effects, IO: w.route(now, effects)}
}

// Crash marks the wrapper crashed (no further Steps accepted) and
// crashes its storage device per the configured crash point.
func (w *Wrapper) Crash(point simstorage.CrashPoint) {
	w.crashed = true
	w.subject.Crash()
	w.storage.Crash(point)
}

// Recover restores the wrapper to serving state.
func (w *Wrapper) Recover(now simclock.Time) StepResult {
	w.crashed = false
	w.storage.Recover()
	effects := w.subject.Recover()
	return StepResult{Effects: effects, IO: w.route(now, effects)}
}

// Snapshot produces a pure view of the underlying Subject's state.
func (w *Wrapper) Snapshot() Snapshot {
	return w.subject.Snapshot()
}

// IsCrashed reports whether the wrapper is currently refusing Steps.
func (w *Wrapper) IsCrashed() bool {
	return w.crashed
}

// RejectionCounts returns a sorted-key-stable copy of rejection counts by
// cause, for Byzantine-scenario invariant attribution.
func (w *Wrapper) RejectionCounts() map[RejectionCause]int {
	out := make(map[RejectionCause]int, len(w.rejectionCounts))
	for k, v := range w.rejectionCounts {
		out[k] = v
	}
	return out
}

// RecordRejection lets a caller (or the Subject, via a side channel the
// wrapper exposes) attribute a rejected message to a cause.
func (w *Wrapper) RecordRejection(cause RejectionCause) {
	w.rejectionCounts[cause]++
}

func (w *Wrapper) route(now simclock.Time, effects []Effect) []PendingIO {
	var pending []PendingIO
	for _, e := range effects {
		switch e.Kind {
		case EffectWrite:
			out := w.storage.Write(e.WriteOffset, e.WriteBytes)
			pending = append(pending, PendingIO{Kind: "write", WriteResult: out})
		case EffectFsync:
			out := w.storage.Fsync()
			pending = append(pending, PendingIO{Kind: "fsync", FsyncResult: out})
		case EffectSend:
			env := simnet.Envelope{
				From:     w.ID,
				To:       e.SendTo,
				Type:     e.SendType,
				View:     e.SendView,
				Commit:   e.SendCommit,
				Checksum: e.SendChecksum,
				Bytes:    e.SendBytes,
			}
			deliveries := w.network.Send(now, env)
			pending = append(pending, PendingIO{Kind: "send", Deliveries: deliveries})
		case EffectScheduleTimeout:
			w.timeoutGen[e.TimeoutKind]++
		case EffectApplyIndex:
			// Surfaced to the caller via the effect list itself; the
			// cluster coordinator reads ApplyOffset/ApplyHash directly
			// off the original Effect slice when it needs to update the
			// model store, rather than through PendingIO, since it is
			// not a storage/network routing concern.
		case EffectRejection:
			w.RecordRejection(e.RejectCause)
		}
	}
	return pending
}

// CurrentTimeoutGeneration returns the current generation for a timeout
// kind, used when scheduling a new timeout event so its firing can be
// checked for staleness later.
func (w *Wrapper) CurrentTimeoutGeneration(kind TimeoutKind) int64 {
	return w.timeoutGen[kind]
}

// SortedPendingByOffset is a small helper the cluster coordinator uses
// when it needs to hand a batch of write effects to the storage device's
// reordering policy in a stable order before rolling reorder.
func SortedPendingByOffset(effects []Effect) []Effect {
	out := append([]Effect(nil), effects...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].WriteOffset < out[j].WriteOffset })
	return out
}
