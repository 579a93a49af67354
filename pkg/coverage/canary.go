package coverage

// CanaryKind is the closed set of deliberate implementation bugs the
// harness can be built with, each gated behind a build feature and each
// paired with the invariant checker it is expected to trip.
type CanaryKind string

const (
	CanarySkipFsync             CanaryKind = "skip-fsync"
	CanaryWrongHash             CanaryKind = "wrong-hash"
	CanaryShortQuorumCommit     CanaryKind = "short-quorum-commit"
	CanaryIdempotencyRace       CanaryKind = "idempotency-race"
	CanaryMonotonicityRegression CanaryKind = "monotonicity-regression"
)

// CanarySpec pairs a canary with the checker it must trip and the event
// budget it has to do so in.
type CanarySpec struct {
	Kind             CanaryKind
	ExpectedChecker  string
	EventBudget      int
}

// CanaryCatalog is the full enumerated list of canaries the harness
// knows how to score, independent of which one (if any) a given build
// has compiled in.
var CanaryCatalog = []CanarySpec{
	{Kind: CanarySkipFsync, ExpectedChecker: "read_your_writes", EventBudget: 5000},
	{Kind: CanaryWrongHash, ExpectedChecker: "hash_chain_integrity", EventBudget: 5000},
	{Kind: CanaryShortQuorumCommit, ExpectedChecker: "agreement", EventBudget: 5000},
	{Kind: CanaryIdempotencyRace, ExpectedChecker: "client_session_monotonicity", EventBudget: 5000},
	{Kind: CanaryMonotonicityRegression, ExpectedChecker: "applied_position_monotonicity", EventBudget: 5000},
}

// LookupCanary resolves a CanaryKind to its full spec, for the runner to
// build a CanaryTracker against whichever canary a build was compiled
// with.
func LookupCanary(kind CanaryKind) (CanarySpec, bool) {
	for _, spec := range CanaryCatalog {
		if spec.Kind == kind {
			return spec, true
		}
	}
	return CanarySpec{}, false
}

// CanaryTracker watches, across a batch, whether a build-time-enabled
// canary tripped its expected checker before its event budget expired.
type CanaryTracker struct {
	spec    CanarySpec
	tripped bool
	atEvent int
}

// NewCanaryTracker constructs a tracker for one active canary.
func NewCanaryTracker(spec CanarySpec) *CanaryTracker {
	return &CanaryTracker{spec: spec}
}

// RecordViolation tells the tracker that checkerName fired at eventIndex.
// Only the first trip within budget matters; later calls are no-ops.
func (t *CanaryTracker) RecordViolation(checkerName string, eventIndex int) {
	if t.tripped {
		return
	}
	if checkerName != t.spec.ExpectedChecker {
		return
	}
	if eventIndex > t.spec.EventBudget {
		return
	}
	t.tripped = true
	t.atEvent = eventIndex
}

// Scored reports whether the canary tripped within its budget, i.e.
// whether the harness's detection power (mutation score) held for this
// canary. A false result is a CI-failing mutation-score regression.
func (t *CanaryTracker) Scored() bool {
	return t.tripped
}

// TrippedAtEvent returns the event index the canary tripped at, valid
// only when Scored() is true.
func (t *CanaryTracker) TrippedAtEvent() int {
	return t.atEvent
}
