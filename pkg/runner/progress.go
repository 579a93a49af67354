package runner

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/briandowns/spinner"
)

// OutputFormat selects how Progress renders batch events: a spinner and
// human-readable lines for a terminal, or newline-delimited JSON for a
// log aggregator.
type OutputFormat string

const (
	FormatText OutputFormat = "text"
	FormatJSON OutputFormat = "json"
)

// Progress renders one batch run's seed-by-seed progress to stdout.
type Progress struct {
	format  OutputFormat
	spin    *spinner.Spinner
	started time.Time
}

// NewProgress constructs a Progress. Text mode drives an interactive
// spinner between seed completions; JSON mode emits one line per event
// for machine consumption and never touches the spinner.
func NewProgress(format OutputFormat) *Progress {
	p := &Progress{format: format, started: time.Now()}
	if format == FormatText {
		p.spin = spinner.New(spinner.CharSets[11], 120*time.Millisecond)
	}
	return p
}

// ReportBatchStarted announces the batch's scope. batchID correlates this
// line with every other line RunBatch emits for the same invocation.
func (p *Progress) ReportBatchStarted(batchID, scenarioName string, total int, startSeed uint64) {
	switch p.format {
	case FormatJSON:
		p.emit(map[string]any{"event": "batch_started", "batch_id": batchID, "scenario": scenarioName, "total_iterations": total, "start_seed": startSeed})
	default:
		fmt.Printf("viewharness: running %q, %d iteration(s) from seed %d\n", scenarioName, total, startSeed)
		if p.spin != nil {
			p.spin.Start()
		}
	}
}

// ReportSeedResult announces one seed's outcome.
func (p *Progress) ReportSeedResult(batchID string, index, total int, res *Result, elapsed time.Duration) {
	switch p.format {
	case FormatJSON:
		p.emit(map[string]any{
			"event":            "seed_result",
			"batch_id":         batchID,
			"index":            index,
			"total":            total,
			"seed":             res.Seed,
			"events_processed": res.EventsProcessed,
			"failed":           res.Failed(),
			"elapsed_s":        elapsed.Seconds(),
		})
	default:
		mark := "✅"
		if res.Failed() {
			mark = "❌"
		}
		if p.spin != nil {
			p.spin.Stop()
		}
		fmt.Printf("  [%d/%d] seed %d  %s  (%d events, %.2fs)\n", index, total, res.Seed, mark, res.EventsProcessed, elapsed.Seconds())
		if len(res.Violations) > 0 {
			for _, v := range res.Violations {
				fmt.Printf("        %s: %s\n", v.CheckerName, v.Message)
			}
		}
		if p.spin != nil && index < total {
			p.spin.Start()
		}
	}
}

// ReportEmergencyAbort announces that an emergency stop cut the batch
// short, and how many seeds never ran as a result.
func (p *Progress) ReportEmergencyAbort(batchID, reason string, remaining int) {
	switch p.format {
	case FormatJSON:
		p.emit(map[string]any{"event": "emergency_abort", "batch_id": batchID, "reason": reason, "remaining_seeds": remaining})
	default:
		if p.spin != nil {
			p.spin.Stop()
		}
		fmt.Printf("🛑 emergency stop: %s (%d seed(s) not run)\n", reason, remaining)
	}
}

// ReportBatchSummary announces the batch's final tally.
func (p *Progress) ReportBatchSummary(batchID string, r *BatchResult) {
	switch p.format {
	case FormatJSON:
		p.emit(map[string]any{
			"event":         "batch_summary",
			"batch_id":      batchID,
			"success_count": r.SuccessCount,
			"failure_count": r.FailureCount,
			"coverage_met":  r.CoverageMet,
			"elapsed_s":     time.Since(p.started).Seconds(),
		})
	default:
		if p.spin != nil {
			p.spin.Stop()
		}
		fmt.Printf("\ndone: %d passed, %d failed", r.SuccessCount, r.FailureCount)
		if !r.CoverageMet {
			fmt.Print(" — coverage threshold not met")
		}
		fmt.Printf("  (%.1fs)\n", time.Since(p.started).Seconds())
	}
}

func (p *Progress) emit(event map[string]any) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	fmt.Println(string(data))
}
