package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jihwankim/viewharness/pkg/invariant"
	"github.com/jihwankim/viewharness/pkg/repro"
	"github.com/jihwankim/viewharness/pkg/runner"
	"github.com/jihwankim/viewharness/pkg/scenario"
)

var minimizeCmd = &cobra.Command{
	Use:   "minimize <bundle-file>",
	Args:  cobra.ExactArgs(1),
	Short: "Delta-debug a bundle down to its smallest necessary event subset",
	Long: `Runs ddmin over the event indices of a (typically already
bisected) bundle, dropping whichever chunks of events can be skipped
without losing the original invariant violation. Intended to run after
bisect, on the prefix it produced, though it accepts any bundle with a
recorded failure.`,
	RunE: runMinimize,
}

func init() {
	minimizeCmd.Flags().Bool("no-save", false, "do not persist the minimized result as a new bundle")
}

func runMinimize(cmd *cobra.Command, args []string) error {
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
		return fmt.Errorf("%w: bundle has no recorded failure, nothing to minimize", repro.ErrNotFailing)
	}

	sc, ok := scenario.Lookup(bundle.ScenarioID)
	if !ok {
		return fmt.Errorf("%w: bundle scenario %q is not in the catalog and minimize cannot locate a YAML source", errUnknownScenario, bundle.ScenarioID)
	}
	sc = scenario.Clone(sc)

	minimal := &runner.Result{
		Seed:            bundle.Seed,
		ScenarioName:    bundle.ScenarioID,
		EventsProcessed: int64(bundle.Failure.EventIndex),
		Violations: []invariant.Violation{{
			CheckerName: bundle.Failure.InvariantName,
			Message:     bundle.Failure.ViolationSummary,
		}},
	}

	final, report, err := repro.Minimize(sc, bundle.Seed, cfg.Repro.EventLogCapacity, minimal)
	if err != nil {
		return err
	}

	fmt.Printf("minimized seed %d: %d -> %d events across %d run(s), %d indices dropped\n",
		bundle.Seed, report.StartingEventCount, report.MinimizedEventCount, report.RunsExecuted, len(report.SkippedIndices))

	if noSave || final.Bundle == nil {
		return nil
	}
	storage, err := newReproStorage(cfg)
	if err != nil {
		return err
	}
	path, err := storage.SaveBundle(final.Bundle)
	if err != nil {
		return err
	}
	fmt.Printf("minimized bundle written: %s\n", path)
	return nil
}
