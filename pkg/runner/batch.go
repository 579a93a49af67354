package runner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/jihwankim/viewharness/pkg/coverage"
	"github.com/jihwankim/viewharness/pkg/emergency"
	"github.com/jihwankim/viewharness/pkg/replica/reference"
	"github.com/jihwankim/viewharness/pkg/scenario"
)

// BatchConfig parameterizes one batch run: a scenario driven across a
// contiguous range of seeds, optionally resumed from a prior checkpoint,
// optionally abortable mid-flight, optionally reported to a terminal.
type BatchConfig struct {
	Scenario   *scenario.Scenario
	StartSeed  uint64
	Iterations int
	Workers    int // parallel seed workers; 1 means sequential

	EventLogCapacity int
	Thresholds       coverage.Thresholds

	// Checkpoint, if non-nil, resumes past any seed it already recorded
	// for this scenario and is updated (and, if CheckpointPath is set,
	// persisted) after every completed seed.
	Checkpoint     *Checkpoint
	CheckpointPath string

	Emergency *emergency.Controller
	Progress  *Progress

	// Live, if non-nil, receives the same per-seed coverage merges as
	// the batch's internal aggregate, in real time rather than only
	// once RunBatch returns. pkg/observability.Dashboard watches this
	// pointer to render a live summary line while the batch is still
	// in flight.
	Live *coverage.Counters
}

// BatchResult is the aggregate outcome of a batch run.
type BatchResult struct {
	// BatchID correlates every JSON progress line this run emitted (one
	// per seed plus the batch-started/batch-summary lines) back to a
	// single invocation, for a log aggregator stitching concurrent
	// batches back together.
	BatchID      string
	SuccessCount int
	FailureCount int
	Coverage     *coverage.Counters
	CoverageMet  bool
	Shortfalls   []coverage.Shortfall

	// FirstFailure holds the Result (including repro bundle) of the
	// first seed that produced an invariant violation, nil if none did.
	FirstFailure *Result

	// CanaryActive is true when this binary was built with a
	// canary-mutation build tag. CanaryScored reports whether any seed
	// in the batch tripped the active canary's expected checker within
	// its event budget; a false value with CanaryActive true is a
	// mutation-score regression.
	CanaryActive bool
	CanaryKind   coverage.CanaryKind
	CanaryScored bool

	Aborted     bool
	AbortReason string
}

// CanaryMisdetected reports whether this batch ran with a canary build
// active and failed to trip it, the condition ExitCode maps to exit
// code 66.
func (r *BatchResult) CanaryMisdetected() bool {
	return r.CanaryActive && !r.CanaryScored
}

// ViolationCount reports how many seeds in the batch failed, used by
// ExitCode.
func (r *BatchResult) ViolationCount() int {
	return r.FailureCount
}

// RunBatch drives cfg.Scenario across cfg.Iterations seeds starting at
// cfg.StartSeed (skipping any seed already recorded in cfg.Checkpoint),
// up to cfg.Workers at a time, merging per-seed coverage into one
// aggregate and evaluating it against cfg.Thresholds. It returns as soon
// as every scheduled seed completes; an error return means the harness
// itself failed, not that a seed found a bug (that is BatchResult.
// FirstFailure).
func RunBatch(ctx context.Context, cfg BatchConfig) (*BatchResult, error) {
	if cfg.Iterations <= 0 {
		cfg.Iterations = 1
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	cp := cfg.Checkpoint
	if cp == nil {
		cp = &Checkpoint{}
	}

	startSeed := cfg.StartSeed
	if cp.ScenarioName == cfg.Scenario.Metadata.Name && cp.LastCompletedSeed >= startSeed {
		startSeed = cp.LastCompletedSeed + 1
	}
	endSeed := cfg.StartSeed + uint64(cfg.Iterations) // exclusive, fixed to the originally requested range

	var seeds []uint64
	for s := startSeed; s < endSeed; s++ {
		seeds = append(seeds, s)
	}

	batchID := uuid.NewString()
	if cfg.Progress != nil {
		cfg.Progress.ReportBatchStarted(batchID, cfg.Scenario.Metadata.Name, len(seeds), startSeed)
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)

	var (
		mu           sync.Mutex
		successCount = cp.SuccessCount
		failureCount = cp.FailureCount
		failedSeeds  = append([]uint64(nil), cp.FailedSeeds...)
		merged       = coverage.New()
		firstFailure *Result
		canaryScored bool
		completed    int
		aborted      bool
		abortReason  string
	)

	scheduled := 0
	for _, seed := range seeds {
		if cfg.Emergency != nil && cfg.Emergency.IsStopped() {
			aborted = true
			abortReason = "emergency stop requested"
			break
		}
		if gCtx.Err() != nil {
			aborted = true
			abortReason = gCtx.Err().Error()
			break
		}
		seed := seed
		scheduled++
		g.Go(func() error {
			start := time.Now()
			res, err := RunSingle(cfg.Scenario, seed, cfg.EventLogCapacity)
			elapsed := time.Since(start)
			if err != nil {
				return fmt.Errorf("seed %d: %w", seed, err)
			}

			mu.Lock()
			defer mu.Unlock()

			merged.Merge(res.Coverage)
			if cfg.Live != nil {
				cfg.Live.Merge(res.Coverage)
			}
			if res.CanaryTracker != nil && res.CanaryTracker.Scored() {
				canaryScored = true
			}
			if res.Failed() {
				failureCount++
				failedSeeds = append(failedSeeds, seed)
				if firstFailure == nil {
					firstFailure = res
				}
			} else {
				successCount++
			}
			completed++
			if cfg.Progress != nil {
				cfg.Progress.ReportSeedResult(batchID, completed, len(seeds), res, elapsed)
			}

			cp.ScenarioName = cfg.Scenario.Metadata.Name
			cp.LastCompletedSeed = seed
			cp.TotalIterations++
			cp.SuccessCount = successCount
			cp.FailureCount = failureCount
			cp.FailedSeeds = failedSeeds
			if cfg.CheckpointPath != "" {
				if saveErr := cp.Save(cfg.CheckpointPath); saveErr != nil {
					return fmt.Errorf("%w: %v", ErrHarnessBug, saveErr)
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	if aborted && cfg.Progress != nil {
		cfg.Progress.ReportEmergencyAbort(batchID, abortReason, len(seeds)-scheduled)
	}

	shortfalls := merged.Evaluate(cfg.Thresholds)
	result := &BatchResult{
		BatchID:      batchID,
		SuccessCount: successCount,
		FailureCount: failureCount,
		Coverage:     merged,
		CoverageMet:  len(shortfalls) == 0,
		Shortfalls:   shortfalls,
		FirstFailure: firstFailure,
		CanaryActive: reference.ActiveCanary != "",
		CanaryKind:   reference.ActiveCanary,
		CanaryScored: canaryScored,
		Aborted:      aborted,
		AbortReason:  abortReason,
	}

	if cfg.Progress != nil {
		cfg.Progress.ReportBatchSummary(batchID, result)
	}

	return result, nil
}
