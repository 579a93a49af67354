package repro

import (
	"fmt"
	"sort"
	"strings"

	"github.com/fatih/color"

	"github.com/jihwankim/viewharness/pkg/runner"
	"github.com/jihwankim/viewharness/pkg/scenario"
	"github.com/jihwankim/viewharness/pkg/simclock"
	"github.com/jihwankim/viewharness/pkg/simqueue"
)

// eventSymbol is the compact per-kind glyph the timeline renders, colored
// by color.New(...).SprintFunc() the same way the pack's terminal tools
// distinguish status classes (pass/fail/skip) by color rather than text.
var eventSymbol = map[simqueue.EventKind]struct {
	glyph string
	paint func(a ...interface{}) string
}{
	simqueue.KindClientRequest:    {"C", color.New(color.FgCyan).SprintFunc()},
	simqueue.KindMessageDelivery:  {".", color.New(color.FgWhite).SprintFunc()},
	simqueue.KindTimeout:          {"T", color.New(color.FgYellow).SprintFunc()},
	simqueue.KindPeriodicTick:     {"·", color.New(color.FgHiBlack).SprintFunc()},
	simqueue.KindCrash:            {"X", color.New(color.FgRed).SprintFunc()},
	simqueue.KindRecover:          {"R", color.New(color.FgGreen).SprintFunc()},
	simqueue.KindStorageCompletion: {"W", color.New(color.FgMagenta).SprintFunc()},
	simqueue.KindFaultActivation:  {"F", color.New(color.FgRed).SprintFunc()},
	simqueue.KindInvariantTrigger: {"!", color.New(color.FgHiRed).SprintFunc()},
}

// TimelineOptions narrows a Render call to a time window and a node
// filter, matching the "selectable time window and node filter" the
// timeline is specified to support.
type TimelineOptions struct {
	From, To simclock.Time // zero To means "no upper bound"
	Nodes    []string       // empty means "every node"
}

// Render re-simulates sc/seed (bounded to the event count a prior run
// reached, typically a bisected or minimized Result) and produces a
// per-node ASCII Gantt: one row per replica, holding one symbol per
// event that replica saw within opts' window, in processing order.
// Events are not grouped into time buckets, so columns of different
// rows do not line up in simulated time.
func Render(sc *scenario.Scenario, seed uint64, eventLogCapacity int, eventCount int64, opts TimelineOptions) (string, error) {
	bounded := scenarioWithMaxEvents(sc, eventCount)

	var trace []runner.TraceEntry
	_, err := runner.RunSingle(bounded, seed, eventLogCapacity,
		runner.WithEventTrace(func(e runner.TraceEntry) {
			if opts.From > 0 && e.Time < opts.From {
				return
			}
			if opts.To > 0 && e.Time > opts.To {
				return
			}
			trace = append(trace, e)
		}))
	if err != nil {
		return "", err
	}

	nodeFilter := map[string]bool{}
	for _, n := range opts.Nodes {
		nodeFilter[n] = true
	}

	nodes := map[string]bool{}
	for _, e := range trace {
		if e.Node == "" {
			continue
		}
		if len(nodeFilter) > 0 && !nodeFilter[e.Node] {
			continue
		}
		nodes[e.Node] = true
	}
	sortedNodes := make([]string, 0, len(nodes))
	for n := range nodes {
		sortedNodes = append(sortedNodes, n)
	}
	sort.Strings(sortedNodes)

	rows := make(map[string][]runner.TraceEntry, len(sortedNodes))
	for _, e := range trace {
		if e.Node == "" {
			continue
		}
		if len(nodeFilter) > 0 && !nodeFilter[e.Node] {
			continue
		}
		rows[e.Node] = append(rows[e.Node], e)
	}

	var b strings.Builder
	width := 0
	for _, n := range sortedNodes {
		if len(n) > width {
			width = len(n)
		}
	}
	for _, n := range sortedNodes {
		fmt.Fprintf(&b, "%-*s ", width, n)
		for _, e := range rows[n] {
			sym, ok := eventSymbol[e.Kind]
			if !ok {
				b.WriteString("?")
				continue
			}
			b.WriteString(sym.paint(sym.glyph))
		}
		b.WriteString("\n")
	}
	return b.String(), nil
}
