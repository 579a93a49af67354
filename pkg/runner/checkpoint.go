package runner

import (
	"encoding/json"
	"fmt"
	"os"
)

// Checkpoint is the batch driver's resume state, written after every
// completed seed so a killed or emergency-aborted batch can pick up
// where it left off instead of re-running already-passed seeds.
type Checkpoint struct {
	ScenarioName      string   `json:"scenario_name"`
	LastCompletedSeed uint64   `json:"last_completed_seed"`
	TotalIterations   int      `json:"total_iterations"`
	SuccessCount      int      `json:"success_count"`
	FailureCount      int      `json:"failure_count"`
	FailedSeeds       []uint64 `json:"failed_seeds"`
}

// LoadCheckpoint reads a checkpoint file, returning a zero Checkpoint
// (not an error) when the file does not exist — a batch with no prior
// checkpoint simply starts from its configured start seed.
func LoadCheckpoint(path string) (*Checkpoint, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &Checkpoint{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("runner: reading checkpoint: %w", err)
	}
	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("runner: parsing checkpoint: %w", err)
	}
	return &cp, nil
}

// Save writes the checkpoint as indented JSON, kept human-readable on
// disk rather than compacted.
func (cp *Checkpoint) Save(path string) error {
	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("runner: marshaling checkpoint: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("runner: writing checkpoint: %w", err)
	}
	return nil
}
