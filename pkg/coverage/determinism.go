package coverage

import "fmt"

// HashQuadruple is the final-state fingerprint two runs of the same seed
// must agree on bit-for-bit.
type HashQuadruple struct {
	StorageRootHash [32]byte
	KernelStateHash [32]byte
	EventsProcessed uint64
	FinalTime       int64
}

// DivergenceLayer names which part of the hash quadruple first disagreed.
type DivergenceLayer string

const (
	DivergenceNone            DivergenceLayer = ""
	DivergenceStorageHash     DivergenceLayer = "storage_root_hash"
	DivergenceKernelHash      DivergenceLayer = "kernel_state_hash"
	DivergenceEventsProcessed DivergenceLayer = "events_processed"
	DivergenceFinalTime       DivergenceLayer = "final_time"
)

// CompareDeterminism compares two runs' final hash quadruples and
// reports the first divergent layer, in the fixed priority order
// (storage, kernel, events, time) so reports are stable.
func CompareDeterminism(a, b HashQuadruple) DivergenceLayer {
	if a.StorageRootHash != b.StorageRootHash {
		return DivergenceStorageHash
	}
	if a.KernelStateHash != b.KernelStateHash {
		return DivergenceKernelHash
	}
	if a.EventsProcessed != b.EventsProcessed {
		return DivergenceEventsProcessed
	}
	if a.FinalTime != b.FinalTime {
		return DivergenceFinalTime
	}
	return DivergenceNone
}

// DeterminismError reports a fatal divergence between two runs of an
// identical seed; this is always a harness bug, never a per-seed
// recoverable condition.
type DeterminismError struct {
	Seed  uint64
	Layer DivergenceLayer
	A, B  HashQuadruple
}

func (e *DeterminismError) Error() string {
	return fmt.Sprintf("coverage: determinism divergence for seed %d at layer %q (a=%+v b=%+v)", e.Seed, e.Layer, e.A, e.B)
}

// CheckDeterminism runs CompareDeterminism and returns a *DeterminismError
// if the runs diverged, nil otherwise.
func CheckDeterminism(seed uint64, a, b HashQuadruple) error {
	if layer := CompareDeterminism(a, b); layer != DivergenceNone {
		return &DeterminismError{Seed: seed, Layer: layer, A: a, B: b}
	}
	return nil
}
