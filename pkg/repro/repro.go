// Package repro implements the harness's reproduction pipeline: taking a
// failing (scenario, seed) pair down to the shortest event prefix that
// still reproduces the failure (bisection), then to the smallest
// necessary event subset within that prefix (delta-debugging), and
// finally rendering either as a per-replica ASCII timeline.
//
// Every stage re-simulates from the original seed rather than replaying
// a recorded event log: this harness's discrete-event loop is already a
// pure function of (scenario, seed, event budget), so "restore the
// nearest checkpoint and replay forward" and "re-run from seed to that
// event index" are the same operation here, and the latter needs no
// separate replay executor. pkg/runner's RunCheckpoint/WithCheckpoints
// and WithEventFilter hooks (crypto/sha256 state digests, periodic
// re-arming) follow how this package's Storage.SaveBundle/
// cleanupOldBundles (storage.go) persist and prune run artifacts,
// generalized from "keep the last N finished reports" to "keep the
// checkpoint trail of one run being minimized."
package repro

import "errors"

var (
	// ErrNotFailing is returned when Bisect or Minimize is asked to
	// reduce a Result that did not actually fail.
	ErrNotFailing = errors.New("repro: result did not fail, nothing to reproduce")
	// ErrBisectionDiverged is returned when the final confirmation run
	// at the computed minimal prefix did not reproduce the original
	// failure — a sign the failure is flaky rather than deterministic,
	// which should never happen for a correctly seeded simulation.
	ErrBisectionDiverged = errors.New("repro: bisection result did not reproduce on confirmation")
)
