package runner

import "errors"

// Sentinel errors a batch run can terminate with, distinguishing "the
// system under test broke an invariant" from "the harness itself could
// not finish the job it was asked to do." The CLI's exit-code selection
// (exitCodeFor in cmd/viewharness) switches on these with errors.Is
// rather than string matching.
var (
	// ErrInvariantViolation means at least one seed's run produced a
	// confirmed invariant violation.
	ErrInvariantViolation = errors.New("runner: invariant violation")

	// ErrCoverageShortfall means every seed ran clean but the batch's
	// aggregate coverage did not meet the configured threshold preset.
	ErrCoverageShortfall = errors.New("runner: coverage threshold not met")

	// ErrDeterminismDivergence means replaying a captured bundle did not
	// reproduce the original run's snapshot digests.
	ErrDeterminismDivergence = errors.New("runner: replay diverged from original run")

	// ErrCanaryMisdetection means a deliberately-seeded canary bug was
	// not caught by the active invariant set.
	ErrCanaryMisdetection = errors.New("runner: canary bug went undetected")

	// ErrHarnessBug means the harness itself failed in a way unrelated
	// to the system under test (an event the coordinator cannot
	// dispatch, a checkpoint file that cannot be written).
	ErrHarnessBug = errors.New("runner: internal harness error")

	// ErrBundleFormatMismatch means a repro bundle could not be read
	// because its format version does not match this build.
	ErrBundleFormatMismatch = errors.New("runner: bundle format mismatch")

	// ErrScenarioMisconfigured means scenario validation failed before
	// any seed could run.
	ErrScenarioMisconfigured = errors.New("runner: scenario misconfigured")
)

// ExitCode maps a BatchResult to the harness's process exit-code policy:
// 0 when every seed passed and coverage thresholds were met, 1 when any
// seed found an invariant violation, 2 when seeds all passed but
// coverage fell short, 66 when a canary build's deliberate bug went
// undetected. Harness-internal errors are reported by the caller
// separately (a Go error return, not a pass/fail exit code).
func ExitCode(r *BatchResult) int {
	switch {
	case r.CanaryMisdetected():
		return 66
	case r.ViolationCount() > 0:
		return 1
	case !r.CoverageMet:
		return 2
	default:
		return 0
	}
}
