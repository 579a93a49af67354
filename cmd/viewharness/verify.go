package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jihwankim/viewharness/pkg/runner"
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Args:  cobra.NoArgs,
	Short: "Run a single seed against a scenario and report its outcome",
	Long: `Drives exactly one (scenario, seed) pair to completion or to its
first confirmed invariant violation. Unlike run, verify never aggregates
coverage across seeds or evaluates a coverage threshold — it exists to
answer "does this one seed fail" as cheaply as possible, e.g. while
bisecting by hand or confirming a fix.`,
	RunE: runVerify,
}

func init() {
	verifyCmd.Flags().String("scenario", "", "catalog identifier or path to a scenario YAML file (required)")
	verifyCmd.Flags().StringArray("set", nil, "override scenario values (e.g. --set max_events=10000)")
	verifyCmd.Flags().Uint64("seed", 1, "seed to run")
}

func runVerify(cmd *cobra.Command, _ []string) error {
	scenarioRef, _ := cmd.Flags().GetString("scenario")
	if scenarioRef == "" {
		return fmt.Errorf("--scenario is required")
	}
	setFlags, _ := cmd.Flags().GetStringArray("set")
	seed, _ := cmd.Flags().GetUint64("seed")

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

	logger.Info("verifying seed", "scenario", sc.Metadata.Name, "seed", seed)

	res, err := runner.RunSingle(sc, seed, cfg.Repro.EventLogCapacity)
	if err != nil {
		return err
	}

	if !res.Failed() {
		fmt.Printf("seed %d: ok (%d events processed)\n", seed, res.EventsProcessed)
		return nil
	}

	v := res.Violations[0]
	fmt.Printf("seed %d: FAILED at event %d: %s: %s\n", seed, res.EventsProcessed, v.CheckerName, v.Message)

	if res.Bundle != nil {
		storage, serr := newReproStorage(cfg)
		if serr == nil {
			if path, werr := storage.SaveBundle(res.Bundle); werr == nil {
				fmt.Printf("repro bundle written: %s\n", path)
			}
		}
	}

	return fmt.Errorf("%w: %s", runner.ErrInvariantViolation, v.CheckerName)
}
