package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jihwankim/viewharness/pkg/repro"
	"github.com/jihwankim/viewharness/pkg/scenario"
	"github.com/jihwankim/viewharness/pkg/simclock"
)

var timelineCmd = &cobra.Command{
	Use:   "timeline <bundle-file>",
	Args:  cobra.ExactArgs(1),
	Short: "Render a per-replica ASCII Gantt of a bundle's event timeline",
	Long: `Re-simulates the bundle's (scenario, seed) pair bounded to the
event count it originally reached, and renders one row per replica with
a compact glyph for each event that replica saw, optionally narrowed to
a time window and a subset of node names.`,
	RunE: runTimeline,
}

func init() {
	timelineCmd.Flags().Int64("from-ns", 0, "earliest simulated time (ns) to include, 0 means no lower bound")
	timelineCmd.Flags().Int64("to-ns", 0, "latest simulated time (ns) to include, 0 means no upper bound")
	timelineCmd.Flags().StringArray("node", nil, "limit to these replica IDs (repeatable), empty means every node")
}

func runTimeline(cmd *cobra.Command, args []string) error {
	bundlePath := args[0]
	fromNs, _ := cmd.Flags().GetInt64("from-ns")
	toNs, _ := cmd.Flags().GetInt64("to-ns")
	nodes, _ := cmd.Flags().GetStringArray("node")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	bundle, err := repro.LoadBundle(bundlePath, cfg.Repro.EventLogCapacity)
	if err != nil {
		return fmt.Errorf("bundle: %w", err)
	}

	sc, ok := scenario.Lookup(bundle.ScenarioID)
	if !ok {
		return fmt.Errorf("%w: bundle scenario %q is not in the catalog and timeline cannot locate a YAML source", errUnknownScenario, bundle.ScenarioID)
	}
	sc = scenario.Clone(sc)

	eventCount := int64(bundle.Log.Len())
	if bundle.Failure != nil {
		eventCount = int64(bundle.Failure.EventIndex)
	}

	rendered, err := repro.Render(sc, bundle.Seed, cfg.Repro.EventLogCapacity, eventCount, repro.TimelineOptions{
		From:  simclock.Time(fromNs),
		To:    simclock.Time(toNs),
		Nodes: nodes,
	})
	if err != nil {
		return err
	}

	fmt.Print(rendered)
	return nil
}
