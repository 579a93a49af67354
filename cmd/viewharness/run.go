package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jihwankim/viewharness/pkg/coverage"
	"github.com/jihwankim/viewharness/pkg/emergency"
	"github.com/jihwankim/viewharness/pkg/observability"
	"github.com/jihwankim/viewharness/pkg/runner"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Args:  cobra.NoArgs,
	Short: "Run a batch of seeds against a scenario",
	Long: `Loads a scenario (by catalog identifier or YAML path) and drives it
across a contiguous range of seeds, checking invariants, aggregating
coverage, and writing a reproduction bundle for the first seed that
fails.`,
	RunE: runRunBatch,
}

func init() {
	runCmd.Flags().String("scenario", "", "catalog identifier or path to a scenario YAML file (required)")
	runCmd.Flags().StringArray("set", nil, "override scenario values (e.g. --set max_events=10000)")
	runCmd.Flags().Uint64("start-seed", 1, "first seed to run")
	runCmd.Flags().Int("iterations", 1, "number of consecutive seeds to run")
	runCmd.Flags().Int("workers", 1, "parallel seed workers")
	runCmd.Flags().String("format", "text", "output format (text, json)")
	runCmd.Flags().String("threshold", "default", "coverage threshold preset (smoke, default, nightly)")
	runCmd.Flags().String("checkpoint", "", "checkpoint file path for batch resume (empty disables persistence)")
	runCmd.Flags().Bool("dry-run", false, "validate the scenario without executing")
	runCmd.Flags().Bool("dashboard", false, "show a live coverage dashboard while the batch runs (text format only)")
}

func runRunBatch(cmd *cobra.Command, _ []string) error {
	scenarioRef, _ := cmd.Flags().GetString("scenario")
	if scenarioRef == "" {
		return fmt.Errorf("--scenario is required")
	}
	setFlags, _ := cmd.Flags().GetStringArray("set")
	startSeed, _ := cmd.Flags().GetUint64("start-seed")
	iterations, _ := cmd.Flags().GetInt("iterations")
	workers, _ := cmd.Flags().GetInt("workers")
	format, _ := cmd.Flags().GetString("format")
	thresholdName, _ := cmd.Flags().GetString("threshold")
	checkpointPath, _ := cmd.Flags().GetString("checkpoint")
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	dashboard, _ := cmd.Flags().GetBool("dashboard")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	sc, err := resolveScenario(scenarioRef)
	if err != nil {
		return err
	}
	if err := applySetFlags(sc, setFlags); err != nil {
		return fmt.Errorf("applying overrides: %w", err)
	}

	logger.Info("scenario resolved", "name", sc.Metadata.Name, "phase", sc.Metadata.Phase)

	if dryRun {
		fmt.Printf("scenario %q is valid (dry-run)\n", sc.Metadata.Name)
		return nil
	}

	thresholds, err := resolveThresholds(thresholdName)
	if err != nil {
		return err
	}

	var cp *runner.Checkpoint
	if checkpointPath != "" {
		cp, err = runner.LoadCheckpoint(checkpointPath)
		if err != nil {
			return err
		}
	}

	emergencyCtl := emergency.New(emergency.Config{
		StopFile:             cfg.Emergency.StopFile,
		EnableSignalHandlers: true,
		Logger:               logger,
	})
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	emergencyCtl.Start(ctx)

	progress := runner.NewProgress(runner.OutputFormat(format))

	var dash *observability.Dashboard
	var live *coverage.Counters
	if dashboard && format == "text" {
		live = coverage.New()
		dash = observability.NewDashboard(live, coverage.FaultPointCatalog)
		dash.Start(500 * time.Millisecond)
		defer dash.Stop()
	}

	result, err := runner.RunBatch(ctx, runner.BatchConfig{
		Scenario:         sc,
		StartSeed:        startSeed,
		Iterations:       iterations,
		Workers:          workers,
		EventLogCapacity: cfg.Repro.EventLogCapacity,
		Thresholds:       thresholds,
		Checkpoint:       cp,
		CheckpointPath:   checkpointPath,
		Emergency:        emergencyCtl,
		Progress:         progress,
		Live:             live,
	})
	if err != nil {
		return err
	}

	if result.FirstFailure != nil && result.FirstFailure.Bundle != nil {
		storage, serr := newReproStorage(cfg)
		if serr == nil {
			if path, werr := storage.SaveBundle(result.FirstFailure.Bundle); werr == nil {
				fmt.Printf("repro bundle written: %s\n", path)
			}
		}
	}

	switch {
	case result.CanaryMisdetected():
		return fmt.Errorf("%w: canary %q did not trip its expected checker within budget", runner.ErrCanaryMisdetection, result.CanaryKind)
	case result.ViolationCount() > 0:
		return fmt.Errorf("%w: %d of %d seed(s) failed", runner.ErrInvariantViolation, result.FailureCount, result.SuccessCount+result.FailureCount)
	case !result.CoverageMet:
		return fmt.Errorf("%w: %v", runner.ErrCoverageShortfall, result.Shortfalls)
	default:
		return nil
	}
}

func resolveThresholds(name string) (coverage.Thresholds, error) {
	switch name {
	case "smoke":
		return coverage.SmokeThresholds(coverage.FaultPointCatalog), nil
	case "default":
		return coverage.DefaultThresholds(coverage.FaultPointCatalog), nil
	case "nightly":
		return coverage.NightlyThresholds(coverage.FaultPointCatalog, []string{"crash.power_loss"}), nil
	default:
		return coverage.Thresholds{}, fmt.Errorf("unknown threshold preset %q (want: smoke, default, nightly)", name)
	}
}
