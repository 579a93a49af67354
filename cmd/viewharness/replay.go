package main

import (
	"bytes"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jihwankim/viewharness/pkg/eventlog"
	"github.com/jihwankim/viewharness/pkg/repro"
	"github.com/jihwankim/viewharness/pkg/runner"
	"github.com/jihwankim/viewharness/pkg/scenario"
)

var replayCmd = &cobra.Command{
	Use:   "replay <bundle-file>",
	Args:  cobra.ExactArgs(1),
	Short: "Re-simulate a captured bundle's (scenario, seed) and check for determinism divergence",
	Long: `Loads a repro bundle, resolves its recorded scenario identifier
back against the scenario catalog, and re-runs the same seed from
scratch. The fresh run's event log is compared byte-for-byte against the
bundle's recorded log: any difference means this build's simulator no
longer reproduces a previously captured failure deterministically, which
is itself a harness bug worth exit code 3 rather than a silent pass.

With --summary, skips the re-simulation entirely and just prints the
bundle's recorded metadata (harness version, scenario, seed, event
count, and failure details if any).`,
	RunE: runReplay,
}

func init() {
	replayCmd.Flags().Bool("events-only", false, "skip the recorded-vs-fresh invariant comparison, only re-confirm the event log matches")
	replayCmd.Flags().Bool("summary", false, "print the bundle's recorded metadata and exit without re-simulating anything")
}

func runReplay(cmd *cobra.Command, args []string) error {
	bundlePath := args[0]
	eventsOnly, _ := cmd.Flags().GetBool("events-only")
	summaryOnly, _ := cmd.Flags().GetBool("summary")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	bundle, err := repro.LoadBundle(bundlePath, cfg.Repro.EventLogCapacity)
	if err != nil {
		return fmt.Errorf("%w: %v", runner.ErrBundleFormatMismatch, err)
	}

	if summaryOnly {
		printBundleSummary(bundle)
		return nil
	}
	logger := newLogger(cfg)

	sc, ok := scenario.Lookup(bundle.ScenarioID)
	if !ok {
		return fmt.Errorf("%w: bundle scenario %q is not in the catalog and replay cannot locate a YAML source", errUnknownScenario, bundle.ScenarioID)
	}
	sc = scenario.Clone(sc)

	logger.Info("replaying bundle", "scenario", bundle.ScenarioID, "seed", bundle.Seed)

	fresh, err := runner.RunSingle(sc, bundle.Seed, cfg.Repro.EventLogCapacity)
	if err != nil {
		return err
	}

	if fresh.Bundle == nil {
		return fmt.Errorf("%w: bundle recorded a failure at event %d but the fresh run completed without one", runner.ErrDeterminismDivergence, bundle.Failure.EventIndex)
	}

	if !bytes.Equal(bundle.Log.Encode(), fresh.Bundle.Log.Encode()) {
		return fmt.Errorf("%w: event log differs after re-simulating seed %d", runner.ErrDeterminismDivergence, bundle.Seed)
	}

	if eventsOnly {
		fmt.Printf("seed %d: event log matches (%d events)\n", bundle.Seed, bundle.Log.Len())
		return nil
	}

	// Every bundle this harness writes records a Failure (SaveBundle is
	// only ever called on a failing Result), so it is safe to dereference
	// unconditionally here.
	if len(fresh.Violations) == 0 || fresh.Violations[0].CheckerName != bundle.Failure.InvariantName {
		return fmt.Errorf("%w: recorded checker %q did not retrigger", runner.ErrDeterminismDivergence, bundle.Failure.InvariantName)
	}

	fmt.Printf("seed %d: replay matches recorded bundle (%s)\n", bundle.Seed, bundle.Failure.InvariantName)
	return nil
}

// printBundleSummary reports a bundle's recorded metadata without
// re-simulating it: harness version, scenario, seed, event count, and
// (when present) the failure that triggered its capture.
func printBundleSummary(bundle *eventlog.Bundle) {
	fmt.Printf("harness version: %s\n", bundle.HarnessVersion)
	fmt.Printf("scenario:        %s\n", bundle.ScenarioID)
	fmt.Printf("seed:            %d\n", bundle.Seed)
	fmt.Printf("events recorded: %d\n", bundle.Log.Len())
	if bundle.Failure == nil {
		fmt.Println("failure:         none")
		return
	}
	fmt.Printf("failure:         %s\n", bundle.Failure.InvariantName)
	fmt.Printf("violation:       %s\n", bundle.Failure.ViolationSummary)
	fmt.Printf("event index:     %d\n", bundle.Failure.EventIndex)
	fmt.Printf("snapshot digest: %x\n", bundle.Failure.SnapshotDigest)
}
