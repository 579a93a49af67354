// Package observability is a read-only terminal adapter over a running
// batch's coverage counters: a live "N/M fault points hit, K invariants
// executed" line, refreshed on a wall-clock ticker independent of the
// simulated clock it is reporting on. It never reads simulated time or
// RNG state directly — only a coverage.Counters.Snapshot of what a batch
// publishes — so attaching a Dashboard can never perturb a run's
// determinism, and never races with the batch workers still merging
// into that same Counters.
//
// Output is a coverage summary line behind an interactive spinner
// (github.com/briandowns/spinner) for single-run/foreground use, as
// distinct from pkg/runner's own per-seed-result batch progress output;
// unlike that reporter it has no JSON mode.
package observability

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/briandowns/spinner"

	"github.com/jihwankim/viewharness/pkg/coverage"
)

// Snapshot is a point-in-time read of a batch's coverage progress,
// suitable for either terminal rendering or a JSON export.
type Snapshot struct {
	FaultPointsHit     int
	FaultPointsTotal   int
	InvariantsExecuted int
	ViewChanges        int
	Repairs            int
	UncoveredFaults    []string
}

// Summarize reads cov against a known fault-point catalog (the full set
// a scenario's fault policy could hit) and produces a Snapshot. It is
// pure and may be called concurrently with a batch still writing to cov:
// it takes a coverage.Counters.Snapshot first, so it never ranges a map
// another goroutine might be writing to.
func Summarize(cov *coverage.Counters, catalog []string) Snapshot {
	cp := cov.Snapshot()
	s := Snapshot{
		FaultPointsTotal:   len(catalog),
		InvariantsExecuted: len(cp.InvariantExecuted),
		ViewChanges:        cp.ViewChanges,
		Repairs:            cp.Repairs,
	}
	sortedCatalog := append([]string(nil), catalog...)
	sort.Strings(sortedCatalog)
	for _, fp := range sortedCatalog {
		if cp.FaultPoints[fp] > 0 {
			s.FaultPointsHit++
		} else {
			s.UncoveredFaults = append(s.UncoveredFaults, fp)
		}
	}
	return s
}

// Line renders a Snapshot as the one-line summary the Dashboard keeps
// live in a terminal.
func (s Snapshot) Line() string {
	return fmt.Sprintf("coverage: %d/%d fault points, %d invariants executed, %d view changes, %d repairs",
		s.FaultPointsHit, s.FaultPointsTotal, s.InvariantsExecuted, s.ViewChanges, s.Repairs)
}

// Dashboard keeps a spinner alive in a terminal with a live coverage
// summary as its suffix, refreshed on a fixed wall-clock interval until
// Stop is called. Safe to attach to a batch that has not finished; each
// refresh is just another Summarize call.
type Dashboard struct {
	cov     *coverage.Counters
	catalog []string

	mu     sync.Mutex
	spin   *spinner.Spinner
	cancel context.CancelFunc
	done   chan struct{}
}

// NewDashboard constructs a Dashboard over a batch's live coverage
// counters and its full fault-point catalog (for the coverage-pct
// denominator).
func NewDashboard(cov *coverage.Counters, catalog []string) *Dashboard {
	return &Dashboard{
		cov:     cov,
		catalog: catalog,
		spin:    spinner.New(spinner.CharSets[14], 100*time.Millisecond),
	}
}

// Start begins the refresh loop at the given interval and starts the
// spinner. Calling Start twice without an intervening Stop is a no-op.
func (d *Dashboard) Start(interval time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	d.done = make(chan struct{})

	d.spin.Suffix = " " + Summarize(d.cov, d.catalog).Line()
	d.spin.Start()

	go func() {
		defer close(d.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				line := Summarize(d.cov, d.catalog).Line()
				d.mu.Lock()
				d.spin.Suffix = " " + line
				d.mu.Unlock()
			}
		}
	}()
}

// Stop halts the refresh loop and the spinner, printing the final
// summary line once on its own.
func (d *Dashboard) Stop() {
	d.mu.Lock()
	cancel := d.cancel
	done := d.done
	d.cancel = nil
	d.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	d.spin.Stop()
	fmt.Println(Summarize(d.cov, d.catalog).Line())
}
