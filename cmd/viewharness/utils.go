package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/jihwankim/viewharness/pkg/config"
	"github.com/jihwankim/viewharness/pkg/harnesslog"
	"github.com/jihwankim/viewharness/pkg/repro"
	"github.com/jihwankim/viewharness/pkg/runner"
	"github.com/jihwankim/viewharness/pkg/scenario"
	"github.com/jihwankim/viewharness/pkg/scenario/parser"
)

// errUnknownScenario means neither the catalog nor the filesystem had an
// entry for a requested scenario identifier. Unknown identifiers always
// map to exit code 64.
var errUnknownScenario = errors.New("viewharness: unknown scenario identifier")

// loadConfig loads the harness's own process configuration, writing out
// a default one on first run if none exists yet.
func loadConfig() (*config.Config, error) {
	path := cfgFile
	if path == "" {
		path = "viewharness.yaml"
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		fmt.Printf("config file not found, writing defaults to: %s\n", path)
		cfg := config.DefaultConfig()
		if err := cfg.Save(path); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
		return cfg, nil
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) *harnesslog.Logger {
	level := harnesslog.LevelInfo
	if verbose {
		level = harnesslog.LevelDebug
	} else if l := harnesslog.Level(cfg.Framework.LogLevel); l != "" {
		level = l
	}
	return harnesslog.New(harnesslog.Config{
		Level:  level,
		Format: harnesslog.Format(cfg.Framework.LogFormat),
		Output: os.Stdout,
	})
}

// resolveScenario loads a scenario either from the built-in catalog (by
// stable identifier) or from a YAML file path, in that order — a path
// containing a directory separator or a .yaml/.yml suffix is tried as a
// file first so a catalog entry never shadows an on-disk scenario of
// the same name.
func resolveScenario(ref string) (*scenario.Scenario, error) {
	if looksLikePath(ref) {
		p := parser.New(nil)
		return p.ParseFile(ref)
	}
	if s, ok := scenario.Lookup(ref); ok {
		return scenario.Clone(s), nil
	}
	if _, err := os.Stat(ref); err == nil {
		p := parser.New(nil)
		return p.ParseFile(ref)
	}
	return nil, fmt.Errorf("%w: %q (known: %s)", errUnknownScenario, ref, strings.Join(scenario.Names(), ", "))
}

// newReproStorage opens the repro bundle directory named by the process
// config, creating it on first use.
func newReproStorage(cfg *config.Config) (*repro.Storage, error) {
	return repro.NewStorage(cfg.Repro.OutputDir, cfg.Repro.KeepLastN)
}

func looksLikePath(ref string) bool {
	return strings.ContainsAny(ref, "/\\") || strings.HasSuffix(ref, ".yaml") || strings.HasSuffix(ref, ".yml")
}

// applySetFlags parses --set key=value flags and applies them to sc in
// place.
func applySetFlags(sc *scenario.Scenario, setFlags []string) error {
	if len(setFlags) == 0 {
		return nil
	}
	overrides, err := parser.ParseOverrides(setFlags)
	if err != nil {
		return err
	}
	return parser.ApplyOverrides(sc, overrides)
}

// exitCodeFor maps a top-level command error to the process exit code:
// 0 ok, 1 violation, 2 coverage-threshold miss, 3 determinism
// divergence, >=64 harness-internal error (64 specifically for a
// misconfigured or unknown scenario, since both are refusals to start
// rather than assertion failures).
func exitCodeFor(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, runner.ErrInvariantViolation):
		return 1
	case errors.Is(err, runner.ErrCoverageShortfall):
		return 2
	case errors.Is(err, runner.ErrDeterminismDivergence):
		return 3
	case errors.Is(err, errUnknownScenario), errors.Is(err, runner.ErrScenarioMisconfigured):
		return 64
	case errors.Is(err, runner.ErrBundleFormatMismatch):
		return 65
	case errors.Is(err, runner.ErrCanaryMisdetection):
		return 66
	case errors.Is(err, runner.ErrHarnessBug):
		return 70
	default:
		return 1
	}
}
