package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jihwankim/viewharness/pkg/invariant"
	"github.com/jihwankim/viewharness/pkg/repro"
	"github.com/jihwankim/viewharness/pkg/runner"
	"github.com/jihwankim/viewharness/pkg/scenario"
)

var bisectCmd = &cobra.Command{
	Use:   "bisect <bundle-file>",
	Args:  cobra.ExactArgs(1),
	Short: "Binary-search a bundle's failure down to its shortest reproducing event prefix",
	Long: `Re-simulates the bundle's (scenario, seed) pair across a sequence
of shrinking event-count prefixes, converging in O(log N) runs on the
shortest prefix that still trips the same invariant checker. Prints the
original and minimized event counts and, unless --no-save is given,
writes the minimized prefix as a new bundle.`,
	RunE: runBisect,
}

func init() {
	bisectCmd.Flags().Bool("no-save", false, "do not persist the minimized result as a new bundle")
}

func runBisect(cmd *cobra.Command, args []string) error {
	bundlePath := args[0]
	noSave, _ := cmd.Flags().GetBool("no-save")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	bundle, err := repro.LoadBundle(bundlePath, cfg.Repro.EventLogCapacity)
	if err != nil {
		return fmt.Errorf("%w: %v", runner.ErrBundleFormatMismatch, err)
	}
	if bundle.Failure == nil {
		return fmt.Errorf("%w: bundle has no recorded failure, nothing to bisect", repro.ErrNotFailing)
	}

	sc, ok := scenario.Lookup(bundle.ScenarioID)
	if !ok {
		return fmt.Errorf("%w: bundle scenario %q is not in the catalog and bisect cannot locate a YAML source", errUnknownScenario, bundle.ScenarioID)
	}
	sc = scenario.Clone(sc)

	original := &runner.Result{
		Seed:            bundle.Seed,
		ScenarioName:    bundle.ScenarioID,
		EventsProcessed: int64(bundle.Failure.EventIndex),
		Violations: []invariant.Violation{{
			CheckerName: bundle.Failure.InvariantName,
			Message:     bundle.Failure.ViolationSummary,
		}},
	}

	minimized, report, err := repro.Bisect(sc, bundle.Seed, cfg.Repro.EventLogCapacity, original)
	if err != nil {
		return err
	}

	fmt.Printf("bisected seed %d: %d -> %d events in %d run(s)\n",
		bundle.Seed, report.OriginalEventIndex, report.MinimizedEventIndex, report.RunsExecuted)

	if noSave || minimized.Bundle == nil {
		return nil
	}
	storage, err := newReproStorage(cfg)
	if err != nil {
		return err
	}
	path, err := storage.SaveBundle(minimized.Bundle)
	if err != nil {
		return err
	}
	fmt.Printf("minimized bundle written: %s\n", path)
	return nil
}
