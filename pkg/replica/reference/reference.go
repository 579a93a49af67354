// Package reference provides one in-repo implementation of
// replica.Subject: a minimal Viewstamped-Replication-style replica
// sufficient to exercise every safety/liveness checker the invariant
// engine defines, standing in for the external consensus replica the
// harness's purpose statement places out of scope.
//
// This is deliberately not production-grade: its wire encoding (gob, for
// prepare entries and the view-change log transfer) and its view-change algorithm are
// simplified to the minimum needed to drive the invariants under test.
package reference

import (
	"bytes"
	"encoding/gob"
	"sort"

	"github.com/jihwankim/viewharness/pkg/replica"
	"github.com/jihwankim/viewharness/pkg/simnet"
)

// LogEntry is one entry in a replica's operation log.
type LogEntry struct {
	Op            int64
	ClientID      string
	RequestNumber int64
	Checksum      [32]byte
	Payload       []byte
}

type session struct {
	lastRequestNumber int64
	lastOutcome       replica.Outcome
	pendingRequest    int64 // 0 when nothing in flight; cleared on view change
}

// Replica is a minimal VR-style replica.
type Replica struct {
	id    string
	peers []string // other replica ids; peers+id forms the full cluster
	all   []string // sorted full membership, cached

	view   int64
	op     int64
	commit int64
	log    []LogEntry

	sessions map[string]*session
	acks     map[int64]map[string]bool // op -> replica ids that sent prepare-ok

	viewChangeAcks map[int64]map[string]viewChangeReport

	appliedPosition int64
	crashed         bool
}

// LogSnapshot is the gob-encoded payload a replica reports during view
// change: enough for the new primary to adopt the most advanced log any
// quorum member observed.
type LogSnapshot struct {
	Commit int64
	Log    []LogEntry
}

// viewChangeReport pairs one peer's gob-encoded log with the commit
// number it claimed on the wire (Envelope.Commit), kept separate so the
// wire-level field — the one Byzantine-mutator rules actually reach —
// is what drives the new primary's adopted commit index, not whatever
// value happens to be embedded in the gob payload.
type viewChangeReport struct {
	Snap         LogSnapshot
	ClaimedCommit int64
}

// New constructs a fresh replica. peers must not include id.
func New(id string, peers []string) *Replica {
	all := append([]string{id}, peers...)
	sort.Strings(all)
	return &Replica{
		id:             id,
		peers:          peers,
		all:            all,
		sessions:       make(map[string]*session),
		acks:           make(map[int64]map[string]bool),
		viewChangeAcks: make(map[int64]map[string]viewChangeReport),
	}
}

func (r *Replica) quorum() int {
	return len(r.all)/2 + 1
}

func (r *Replica) primaryFor(view int64) string {
	return r.all[int(view)%len(r.all)]
}

func (r *Replica) isPrimary() bool {
	return r.primaryFor(r.view) == r.id
}

func (r *Replica) lastChecksum() [32]byte {
	if len(r.log) == 0 {
		return [32]byte{}
	}
	return r.log[len(r.log)-1].Checksum
}

// Step implements replica.Subject.
func (r *Replica) Step(in replica.StepInput) []replica.Effect {
	if r.crashed {
		return nil
	}
	switch in.Kind {
	case replica.StepClientRequest:
		return r.stepClientRequest(*in.Request)
	case replica.StepMessage:
		return r.stepMessage(*in.Message)
	case replica.StepTimeout:
		return r.stepTimeout(*in.Timeout)
	default:
		return nil
	}
}

func (r *Replica) stepClientRequest(req replica.ClientRequest) []replica.Effect {
	if !r.isPrimary() {
		return nil
	}

	sess, ok := r.sessions[req.ClientID]
	if !ok {
		sess = &session{}
		r.sessions[req.ClientID] = sess
	}
	if req.RequestNumber <= sess.lastRequestNumber {
		// Already committed: never replay as new work, but this is not
		// an error either; a real reply would be echoed from the cached
		// outcome. The harness's client-session-monotonicity checker
		// only requires the request-number sequence be gap-free and
		// increasing, which this path preserves by doing nothing.
		return nil
	}
	if sess.pendingRequest == req.RequestNumber {
		// Already in flight for this view; avoid double-processing.
		return nil
	}
	sess.pendingRequest = req.RequestNumber

	r.op++
	checksum := replica.HashChecksum(r.lastChecksum(), req.Value)
	entry := LogEntry{Op: r.op, ClientID: req.ClientID, RequestNumber: req.RequestNumber, Checksum: checksum, Payload: req.Value}
	r.log = append(r.log, entry)

	effects := append([]replica.Effect{
		{Kind: replica.EffectWrite, WriteOffset: r.op * 64, WriteBytes: req.Value},
	}, fsyncEffect()...)
	for _, p := range r.peers {
		effects = append(effects, replica.Effect{
			Kind:         replica.EffectSend,
			SendTo:       p,
			SendType:     "prepare",
			SendView:     r.view,
			SendCommit:   r.commit,
			SendChecksum: checksum,
			SendBytes:    encodeEntry(entry),
		})
	}
	effects = append(effects, replica.Effect{Kind: replica.EffectScheduleTimeout, TimeoutKind: replica.TimeoutPrepare, TimeoutDelay: 0})

	if len(r.peers) == 0 {
		// Single-replica "cluster": self-commit immediately.
		r.commitThrough(r.op)
	}
	return effects
}

func (r *Replica) stepMessage(env simnet.Envelope) []replica.Effect {
	switch env.Type {
	case "prepare":
		return r.onPrepare(env)
	case "prepare-ok":
		return r.onPrepareOk(env)
	case "commit":
		return r.onCommit(env)
	case "view-change":
		return r.onViewChange(env)
	case "start-view":
		return r.onStartView(env)
	default:
		return nil
	}
}

func (r *Replica) onPrepare(env simnet.Envelope) []replica.Effect {
	if env.View < r.view {
		return []replica.Effect{{Kind: replica.EffectRejection, RejectCause: replica.RejectionStaleView}}
	}
	entry, ok := decodeEntry(env.Bytes)
	if !ok {
		return []replica.Effect{{Kind: replica.EffectRejection, RejectCause: replica.RejectionUnknownType}}
	}
	expectedChecksum := replica.HashChecksum(r.lastChecksum(), entry.Payload)
	if expectedChecksum != entry.Checksum || expectedChecksum != env.Checksum {
		// Byzantine mutation detected: the primary's claimed checksum
		// does not match the recomputed chain. Reject without adopting.
		return []replica.Effect{{Kind: replica.EffectRejection, RejectCause: replica.RejectionBadChecksum}}
	}
	if entry.Op != r.op+1 {
		// out-of-order prepare; repair path would resync, omitted here
		return []replica.Effect{{Kind: replica.EffectRejection, RejectCause: replica.RejectionOutOfOrder}}
	}

	r.view = env.View
	r.op = entry.Op
	r.log = append(r.log, entry)

	effects := append([]replica.Effect{{Kind: replica.EffectWrite, WriteOffset: entry.Op * 64, WriteBytes: entry.Payload}}, fsyncEffect()...)
	return append(effects, replica.Effect{Kind: replica.EffectSend, SendTo: env.From, SendType: "prepare-ok", SendView: r.view, SendChecksum: entry.Checksum, SendBytes: encodeEntry(entry)})
}

func (r *Replica) onPrepareOk(env simnet.Envelope) []replica.Effect {
	if !r.isPrimary() {
		return nil
	}
	entry, ok := decodeEntry(env.Bytes)
	if !ok {
		return nil
	}
	if r.acks[entry.Op] == nil {
		r.acks[entry.Op] = make(map[string]bool)
	}
	r.acks[entry.Op][env.From] = true
	r.acks[entry.Op][r.id] = true // primary implicitly acks its own prepare

	if len(r.acks[entry.Op]) < r.quorum() || entry.Op <= r.commit {
		return nil
	}

	r.commitThrough(entry.Op)
	var effects []replica.Effect
	for _, p := range r.peers {
		effects = append(effects, replica.Effect{Kind: replica.EffectSend, SendTo: p, SendType: "commit", SendView: r.view, SendCommit: r.commit})
	}
	effects = append(effects, replica.Effect{Kind: replica.EffectApplyIndex, ApplyOffset: entry.Op, ApplyHash: entry.Checksum})
	return effects
}

func (r *Replica) onCommit(env simnet.Envelope) []replica.Effect {
	if env.View < r.view || env.Commit <= r.commit {
		return nil
	}
	bound := env.Commit
	if bound > int64(len(r.log)) {
		bound = int64(len(r.log))
	}
	r.commitThrough(bound)
	if bound == 0 {
		return nil
	}
	return []replica.Effect{{Kind: replica.EffectApplyIndex, ApplyOffset: bound, ApplyHash: r.log[bound-1].Checksum}}
}

func (r *Replica) onViewChange(env simnet.Envelope) []replica.Effect {
	snap, ok := decodeSnapshot(env.Bytes)
	if !ok || env.View < r.view {
		return nil
	}
	if env.Commit > int64(len(snap.Log)) {
		// The claimed commit number exceeds what the accompanying log
		// snapshot can support: no quorum of prepares could have produced
		// it. Reject outright rather than folding it into the new view's
		// adopted commit index.
		return []replica.Effect{{Kind: replica.EffectRejection, RejectCause: replica.RejectionInflatedCommit}}
	}
	if r.viewChangeAcks[env.View] == nil {
		r.viewChangeAcks[env.View] = make(map[string]viewChangeReport)
	}
	r.viewChangeAcks[env.View][env.From] = viewChangeReport{Snap: snap, ClaimedCommit: env.Commit}

	if r.primaryFor(env.View) != r.id || len(r.viewChangeAcks[env.View]) < r.quorum()-1 {
		return nil
	}

	// Adopt the most advanced log observed across the quorum (including
	// our own), which guarantees every previously-committed entry any
	// quorum member reported survives into the new view. The commit
	// number advanced to, however, is taken from each peer's envelope
	// field (ClaimedCommit) rather than its gob payload, since that is
	// the field a Byzantine mutator rule actually reaches.
	bestLog := append([]LogEntry(nil), r.log...)
	bestCommit := r.commit
	for _, rep := range r.viewChangeAcks[env.View] {
		if len(rep.Snap.Log) > len(bestLog) {
			bestLog = rep.Snap.Log
		}
		if rep.ClaimedCommit > bestCommit {
			bestCommit = rep.ClaimedCommit
		}
	}
	r.view = env.View
	r.log = bestLog
	if len(r.log) > 0 {
		r.op = r.log[len(r.log)-1].Op
	}
	r.commitThrough(bestCommit)

	var effects []replica.Effect
	for _, p := range r.peers {
		effects = append(effects, replica.Effect{Kind: replica.EffectSend, SendTo: p, SendType: "start-view", SendView: r.view, SendCommit: r.commit, SendBytes: encodeSnapshot(LogSnapshot{Commit: r.commit, Log: r.log})})
	}
	return effects
}

func (r *Replica) onStartView(env simnet.Envelope) []replica.Effect {
	if env.View < r.view {
		return nil
	}
	snap, ok := decodeSnapshot(env.Bytes)
	if !ok {
		return nil
	}
	if env.Commit > int64(len(snap.Log)) {
		return []replica.Effect{{Kind: replica.EffectRejection, RejectCause: replica.RejectionInflatedCommit}}
	}
	r.view = env.View
	if len(snap.Log) > len(r.log) {
		r.log = snap.Log
		if len(r.log) > 0 {
			r.op = r.log[len(r.log)-1].Op
		}
	}
	// The envelope's own Commit field, not the gob-encoded snapshot's, is
	// authoritative here: it is what a Byzantine mutator rule targeting
	// view-change/start-view messages actually perturbs.
	r.commitThrough(env.Commit)
	return nil
}

func (r *Replica) stepTimeout(t replica.TimeoutSignal) []replica.Effect {
	if t.Kind != replica.TimeoutViewChange {
		return nil
	}
	r.view++
	snap := LogSnapshot{Commit: r.commit, Log: append([]LogEntry(nil), r.log...)}
	var effects []replica.Effect
	for _, p := range r.peers {
		effects = append(effects, replica.Effect{Kind: replica.EffectSend, SendTo: p, SendType: "view-change", SendView: r.view, SendCommit: r.commit, SendBytes: encodeSnapshot(snap)})
	}
	return effects
}

func encodeEntry(e LogEntry) []byte {
	var buf bytes.Buffer
	_ = gob.NewEncoder(&buf).Encode(e)
	return buf.Bytes()
}

func decodeEntry(b []byte) (LogEntry, bool) {
	var e LogEntry
	if err := gob.NewDecoder(bytes.NewReader(b)).Decode(&e); err != nil {
		return LogEntry{}, false
	}
	return e, true
}

func encodeSnapshot(s LogSnapshot) []byte {
	var buf bytes.Buffer
	_ = gob.NewEncoder(&buf).Encode(s)
	return buf.Bytes()
}

func decodeSnapshot(b []byte) (LogSnapshot, bool) {
	var s LogSnapshot
	if err := gob.NewDecoder(bytes.NewReader(b)).Decode(&s); err != nil {
		return LogSnapshot{}, false
	}
	return s, true
}

// Snapshot implements replica.Subject. It is a pure function of the
// replica's current state: producing it never mutates r.
func (r *Replica) Snapshot() replica.Snapshot {
	tailStart := r.commit
	var tail []replica.OffsetChecksum
	var lastChecksum [32]byte
	for _, e := range r.log {
		if e.Op <= tailStart {
			continue
		}
		tail = append(tail, replica.OffsetChecksum{Offset: e.Op, Checksum: e.Checksum})
		lastChecksum = e.Checksum
	}
	return replica.Snapshot{
		ReplicaID: r.id,
		View:      r.view,
		Op:        r.op,
		Commit:    r.commit,
		LogTail: replica.LogTailSummary{
			Length:          int64(len(tail)),
			LastChecksum:    lastChecksum,
			OffsetChecksums: tail,
		},
		AppliedPosition: r.appliedPosition,
		StorageRootHash: r.storageDigest(),
		KernelStateHash: r.kernelDigest(),
	}
}

func (r *Replica) storageDigest() [32]byte {
	if len(r.log) == 0 {
		return [32]byte{}
	}
	for i := len(r.log) - 1; i >= 0; i-- {
		if r.log[i].Op <= r.commit {
			return r.log[i].Checksum
		}
	}
	return [32]byte{}
}

func (r *Replica) kernelDigest() [32]byte {
	return replica.HashChecksum(r.storageDigest(), []byte{byte(r.view), byte(r.commit)})
}

// AppliedIndexBound implements replica.AppliedPositionReporter: this
// reference replica's materialized view is bounded by its own applied
// position, which never exceeds the commit index.
func (r *Replica) AppliedIndexBound() int64 {
	return r.appliedPosition
}

// Crash implements replica.Subject: marks the replica as down. The
// storage device (owned by the wrapper, not the Subject) is crashed
// separately; this only stops further Steps from being processed.
func (r *Replica) Crash() {
	r.crashed = true
}

// Recover implements replica.Subject: the replica resumes serving with
// the log, commit and view it held when it crashed. The reference
// replica keeps its log as harness-visible Go state rather than
// re-deriving it from bytes, and nothing (neither Recover nor the
// wrapper) reloads it from the storage device's post-crash content.
func (r *Replica) Recover() []replica.Effect {
	r.crashed = false
	return nil
}

func (r *Replica) commitThrough(op int64) {
	for _, e := range r.log {
		if e.Op <= r.commit || e.Op > op {
			continue
		}
		if sess, ok := r.sessions[e.ClientID]; ok {
			sess.lastRequestNumber = e.RequestNumber
			sess.lastOutcome = replica.OutcomeOK
			sess.pendingRequest = 0
		}
	}
	if op > r.commit {
		r.commit = op
	}
	if r.appliedPosition < r.commit {
		r.appliedPosition = r.commit
	}
}
