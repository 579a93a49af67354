package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jihwankim/viewharness/pkg/coverage"
	"github.com/jihwankim/viewharness/pkg/observability"
	"github.com/jihwankim/viewharness/pkg/runner"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Args:  cobra.NoArgs,
	Short: "Run a batch and report its coverage, without enforcing a threshold",
	Long: `Drives the same batch a run invocation would, but never fails the
process over a coverage shortfall or an invariant violation — it exists
purely to answer "what has this scenario's fault policy actually
exercised", e.g. while tuning a new scenario's FaultPolicy before wiring
it into a CI threshold gate.`,
	RunE: runStats,
}

func init() {
	statsCmd.Flags().String("scenario", "", "catalog identifier or path to a scenario YAML file (required)")
	statsCmd.Flags().StringArray("set", nil, "override scenario values (e.g. --set max_events=10000)")
	statsCmd.Flags().Uint64("start-seed", 1, "first seed to run")
	statsCmd.Flags().Int("iterations", 1, "number of consecutive seeds to run")
	statsCmd.Flags().Int("workers", 1, "parallel seed workers")
}

func runStats(cmd *cobra.Command, _ []string) error {
	scenarioRef, _ := cmd.Flags().GetString("scenario")
	if scenarioRef == "" {
		return fmt.Errorf("--scenario is required")
	}
	setFlags, _ := cmd.Flags().GetStringArray("set")
	startSeed, _ := cmd.Flags().GetUint64("start-seed")
	iterations, _ := cmd.Flags().GetInt("iterations")
	workers, _ := cmd.Flags().GetInt("workers")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	sc, err := resolveScenario(scenarioRef)
	if err != nil {
		return err
	}
	if err := applySetFlags(sc, setFlags); err != nil {
		return fmt.Errorf("applying overrides: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	result, err := runner.RunBatch(ctx, runner.BatchConfig{
		Scenario:         sc,
		StartSeed:        startSeed,
		Iterations:       iterations,
		Workers:          workers,
		EventLogCapacity: cfg.Repro.EventLogCapacity,
		Thresholds:       coverage.DefaultThresholds(coverage.FaultPointCatalog),
	})
	if err != nil {
		return err
	}

	snap := observability.Summarize(result.Coverage, coverage.FaultPointCatalog)
	fmt.Println(snap.Line())
	fmt.Printf("seeds: %d ok, %d failed\n", result.SuccessCount, result.FailureCount)
	if len(snap.UncoveredFaults) > 0 {
		fmt.Printf("uncovered fault points: %v\n", snap.UncoveredFaults)
	}
	for _, sf := range result.Shortfalls {
		fmt.Printf("shortfall (%s): %s\n", sf.Kind, sf.Detail)
	}
	return nil
}
