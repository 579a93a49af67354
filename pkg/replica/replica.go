// Package replica defines the harness's contract with the wrapped
// consensus replica (out of scope to re-implement, per the harness's
// purpose) and the wrapper that hosts one instance, routing its effects
// through the storage and network simulators and exposing a pure
// snapshot for invariant checks.
package replica

import (
	"crypto/sha256"

	"github.com/jihwankim/viewharness/pkg/simclock"
	"github.com/jihwankim/viewharness/pkg/simnet"
)

// TimeoutKind is the closed set of timeout kinds a replica may schedule.
type TimeoutKind int

const (
	TimeoutHeartbeat TimeoutKind = iota
	TimeoutPrepare
	TimeoutViewChange
	TimeoutRepair
	TimeoutPing
	TimeoutPrimaryAbdicate
	TimeoutCommitStall
	TimeoutScrub
)

// OpKind is the closed set of client operation kinds.
type OpKind int

const (
	OpRead OpKind = iota
	OpWrite
	OpReadModifyWrite
	OpScan
	OpBegin
	OpCommit
	OpRollback
)

// Outcome is the closed set of operation outcomes tracked for
// history-based invariants.
type Outcome int

const (
	OutcomeOK Outcome = iota
	OutcomeFailed
	OutcomeTimedOut
	OutcomeEvicted
)

// ClientRequest is a client operation submitted to a replica.
type ClientRequest struct {
	ClientID      string
	RequestNumber int64
	OpKind        OpKind
	Key           int64
	Value         []byte
}

// TimeoutSignal is a fired (non-cancelled) timeout delivered to a replica.
// Generation lets a replica recognize a timeout scheduled against a since
// -superseded slot and ignore it, per the cancellation-by-staleness model.
type TimeoutSignal struct {
	Kind       TimeoutKind
	Generation int64
}

// StepKind is the closed set of inputs a replica's Step may receive.
type StepKind int

const (
	StepClientRequest StepKind = iota
	StepMessage
	StepTimeout
	StepTick
)

// StepInput is a tagged-variant input to Subject.Step; exactly the field
// matching Kind is populated.
type StepInput struct {
	Kind    StepKind
	Request *ClientRequest
	Message *simnet.Envelope
	Timeout *TimeoutSignal
}

// Effect is the closed set of outgoing effects a replica may produce in
// response to a Step. Exactly one field is non-nil/non-zero per Effect
// value; EffectKind says which.
type EffectKind int

const (
	EffectSend EffectKind = iota
	EffectWrite
	EffectFsync
	EffectApplyIndex
	EffectScheduleTimeout
	EffectRejection
)

type Effect struct {
	Kind EffectKind

	// EffectSend
	SendTo    string
	SendBytes []byte
	SendType  string
	SendView  int64
	SendCommit int64
	SendChecksum [32]byte

	// EffectWrite
	WriteOffset int64
	WriteBytes  []byte

	// EffectApplyIndex
	ApplyOffset int64
	ApplyHash   [32]byte

	// EffectScheduleTimeout
	TimeoutKind       TimeoutKind
	TimeoutDelay      simclock.Time
	TimeoutGeneration int64

	// EffectRejection is produced instead of (never alongside) a
	// Subject's normal effects when a Step call refuses to act on its
	// input, so the wrapper can attribute the refusal to a cause for
	// Byzantine-scenario invariant checkers.
	RejectCause RejectionCause
}

// LogTailSummary describes the uncommitted tail of a replica's log.
type LogTailSummary struct {
	Length           int64
	LastChecksum     [32]byte
	OffsetChecksums  []OffsetChecksum
}

// OffsetChecksum pairs a log offset with its content checksum, used by
// the hash-chain-integrity and replica-consistency checkers.
type OffsetChecksum struct {
	Offset   int64
	Checksum [32]byte
}

// Snapshot is a read-only, pure view of a replica's externally relevant
// state. Producing one must never mutate the replica.
type Snapshot struct {
	ReplicaID       string
	View            int64
	Op              int64
	Commit          int64
	LogTail         LogTailSummary
	AppliedPosition int64
	StorageRootHash [32]byte
	KernelStateHash [32]byte
}

// Subject is the external consensus replica's contract with the harness,
// expressed as pure functions wherever possible: a Step returns the
// effects to route through the simulators, never mutating hidden shared
// state the harness cannot observe.
type Subject interface {
	Step(in StepInput) []Effect
	Snapshot() Snapshot
	Crash()
	Recover() []Effect
}

// AppliedPositionReporter is an optional capability a Subject may
// implement when its materialized-view subsystem carries a stricter
// apply-index bound than the baseline commit-index bound. The harness
// must not assume either way (spec 9's open question on applied-position
// monotonicity): a Subject that implements this gets the extra check,
// one that doesn't is only held to the baseline.
type AppliedPositionReporter interface {
	AppliedIndexBound() int64
}

// HashChecksum is the canonical content hash used throughout the
// replica/log layer; a pure recomputation boundary, not a domain concern
// worth introducing a hashing library for.
func HashChecksum(prev [32]byte, payload []byte) [32]byte {
	h := sha256.New()
	h.Write(prev[:])
	h.Write(payload)
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}
