package repro

import (
	"github.com/jihwankim/viewharness/pkg/runner"
	"github.com/jihwankim/viewharness/pkg/scenario"
	"github.com/jihwankim/viewharness/pkg/simqueue"
)

// MinimizeReport records a delta-debugging run's outcome: how many
// events the bisected prefix started with, how many survived, and how
// many simulation runs the search took.
type MinimizeReport struct {
	StartingEventCount int
	MinimizedEventCount int
	RunsExecuted       int
	SkippedIndices     []int64
}

// Minimize runs the classic ddmin algorithm (Zeller & Hildebrandt) over
// the event indices of a bisected prefix, using runner.WithEventFilter
// to test each candidate subset: an index in the accepted skip set is
// simply not dispatched when replaying from the same seed. A skipped
// message delivery, timeout, crash or recovery is always safe to drop
// (each is a leaf with no event it must precede), and a skipped periodic
// tick still re-arms itself so the clock keeps advancing — so no
// explicit causal-ordering constraint check is needed here; it falls
// out of which events this harness lets be skipped at all.
func Minimize(sc *scenario.Scenario, seed uint64, eventLogCapacity int, minimal *runner.Result) (*runner.Result, *MinimizeReport, error) {
	if !minimal.Failed() {
		return nil, nil, ErrNotFailing
	}
	targetChecker := minimal.Violations[0].CheckerName
	n := minimal.EventsProcessed
	bounded := scenarioWithMaxEvents(sc, n)

	runs := 0
	reproduces := func(skip map[int64]bool) (*runner.Result, bool, error) {
		res, err := runner.RunSingle(bounded, seed, eventLogCapacity,
			runner.WithEventFilter(func(index int64, _ simqueue.EventKind) bool {
				return skip[index]
			}))
		runs++
		if err != nil {
			return nil, false, err
		}
		return res, res.Failed() && res.Violations[0].CheckerName == targetChecker, nil
	}

	// Candidate indices start as every index not yet known to be
	// required; removed starts empty and grows as ddmin confirms an
	// index can be dropped without losing the failure.
	var removed []int64
	removedSet := map[int64]bool{}
	candidates := make([]int64, 0, int(n))
	for i := int64(0); i < n; i++ {
		candidates = append(candidates, i)
	}

	granularity := 2
	for len(candidates) > 0 {
		chunkSize := (len(candidates) + granularity - 1) / granularity
		if chunkSize < 1 {
			chunkSize = 1
		}

		reducedThisPass := false
		for start := 0; start < len(candidates); start += chunkSize {
			end := start + chunkSize
			if end > len(candidates) {
				end = len(candidates)
			}

			trial := make(map[int64]bool, len(removedSet)+(end-start))
			for k := range removedSet {
				trial[k] = true
			}
			for _, idx := range candidates[start:end] {
				trial[idx] = true
			}

			_, ok, err := reproduces(trial)
			if err != nil {
				return nil, nil, err
			}
			if !ok {
				continue
			}

			// This chunk can be dropped: fold it into removed, shrink
			// candidates, and restart the pass at the coarsest
			// granularity again.
			removedSet = trial
			removed = append(removed, candidates[start:end]...)
			candidates = append(append([]int64(nil), candidates[:start]...), candidates[end:]...)
			granularity = 2
			reducedThisPass = true
			break
		}

		if reducedThisPass {
			continue
		}
		if granularity >= len(candidates) {
			break
		}
		granularity *= 2
	}

	final, ok, err := reproduces(removedSet)
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		return nil, nil, ErrBisectionDiverged
	}

	return final, &MinimizeReport{
		StartingEventCount:  int(n),
		MinimizedEventCount: int(n) - len(removed),
		RunsExecuted:        runs,
		SkippedIndices:      removed,
	}, nil
}
