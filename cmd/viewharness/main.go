package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	cfgFile string
	verbose bool
	version = "dev" // set by build flags
)

var rootCmd = &cobra.Command{
	Use:   "viewharness",
	Short: "Deterministic simulation testing harness for a VR-family replicated log",
	Long: `viewharness drives an in-process, seeded-RNG simulation of a
Viewstamped-Replication-family primary/backup replicated log against a
closed catalog of fault scenarios, checking a fixed set of safety and
liveness invariants and producing reproducible failure bundles.`,
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "harness config file (default is ./viewharness.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(bisectCmd)
	rootCmd.AddCommand(minimizeCmd)
	rootCmd.AddCommand(timelineCmd)
	rootCmd.AddCommand(scenariosCmd)
	rootCmd.AddCommand(statsCmd)
}

// Commands are defined in separate files:
// - runCmd in run.go
// - verifyCmd in verify.go
// - replayCmd in replay.go
// - bisectCmd in bisect.go
// - minimizeCmd in minimize.go
// - timelineCmd in timeline.go
// - scenariosCmd in scenarios.go
// - statsCmd in stats.go

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(exitCodeFor(err))
	}
}
