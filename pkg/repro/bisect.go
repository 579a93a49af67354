package repro

import (
	"fmt"

	"github.com/jihwankim/viewharness/pkg/runner"
	"github.com/jihwankim/viewharness/pkg/scenario"
)

// BisectReport records how a bisection run converged: how many
// simulation runs it took (O(log N) by construction) and the
// checkpoint trail of its final confirmation run.
type BisectReport struct {
	OriginalEventIndex  int64
	MinimizedEventIndex int64
	RunsExecuted        int
	Checkpoints         []runner.RunCheckpoint
}

// Bisect binary-searches the shortest event-count prefix of (sc, seed)
// that still reproduces original's failure (the same checker name, so a
// different invariant tripping earlier in a shorter prefix doesn't get
// mistaken for the same bug). Returns the confirmed minimized Result
// alongside a report of how the search went.
func Bisect(sc *scenario.Scenario, seed uint64, eventLogCapacity int, original *runner.Result) (*runner.Result, *BisectReport, error) {
	if !original.Failed() {
		return nil, nil, ErrNotFailing
	}
	targetChecker := original.Violations[0].CheckerName

	var lastCheckpoints []runner.RunCheckpoint
	runs := 0

	// reproduces re-simulates sc/seed bounded to n events (the run still
	// stops the moment it confirms a violation, so its actual
	// EventsProcessed may land below n) and reports whether the same
	// checker tripped. Each call discards the previous call's checkpoint
	// trail, keeping only the most recent probe's.
	reproduces := func(n int64) (*runner.Result, bool, error) {
		lastCheckpoints = nil
		res, err := runner.RunSingle(scenarioWithMaxEvents(sc, n), seed, eventLogCapacity,
			runner.WithCheckpoints(checkpointInterval(n), func(cp runner.RunCheckpoint) {
				lastCheckpoints = append(lastCheckpoints, cp)
			}))
		runs++
		if err != nil {
			return nil, false, err
		}
		return res, res.Failed() && res.Violations[0].CheckerName == targetChecker, nil
	}

	lo, hi := int64(1), original.EventsProcessed
	for lo < hi {
		mid := lo + (hi-lo)/2
		_, ok, err := reproduces(mid)
		if err != nil {
			return nil, nil, err
		}
		if ok {
			hi = mid
		} else {
			lo = mid + 1
		}
	}

	minimal, ok, err := reproduces(hi)
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		return nil, nil, fmt.Errorf("minimal prefix %d: %w", hi, ErrBisectionDiverged)
	}

	return minimal, &BisectReport{
		OriginalEventIndex:  original.EventsProcessed,
		MinimizedEventIndex: hi,
		RunsExecuted:        runs,
		Checkpoints:         lastCheckpoints,
	}, nil
}

func scenarioWithMaxEvents(sc *scenario.Scenario, n int64) *scenario.Scenario {
	cp := *sc
	cp.Spec.MaxEvents = n
	return &cp
}

// checkpointInterval spaces checkpoints roughly ten to a run regardless
// of its length, so a short bisection probe still gets a useful trail
// without forcing every probe through the same fixed interval a full
// batch run would use.
func checkpointInterval(n int64) int64 {
	interval := n / 10
	if interval < 1 {
		interval = 1
	}
	return interval
}
