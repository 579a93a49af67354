// Package config is the harness's own process configuration: logging,
// the optional coverage/metrics endpoint, repro-bundle output,
// emergency-abort behavior, and batch execution defaults. It is
// deliberately separate from a scenario (pkg/scenario): this is how the
// harness process itself behaves, not what a given run tests.
//
// Deliberately trimmed of any field specific to an external live
// cluster (enclave discovery, sidecar images, JSON-RPC endpoints) since
// a simulated cluster runs in-process and has none of those.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the harness process's own configuration.
type Config struct {
	Framework FrameworkConfig `yaml:"framework"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Repro     ReproConfig     `yaml:"repro"`
	Emergency EmergencyConfig `yaml:"emergency"`
	Execution ExecutionConfig `yaml:"execution"`
	Safety    SafetyConfig    `yaml:"safety"`
}

// FrameworkConfig contains general harness settings.
type FrameworkConfig struct {
	Version   string `yaml:"version"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// MetricsConfig controls the optional Prometheus scrape endpoint this
// process exposes for its own coverage/invariant/determinism counters
// (there is no external Prometheus to query — a simulated cluster has
// no live metrics of its own).
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// ReproConfig contains repro-bundle output settings.
type ReproConfig struct {
	OutputDir         string `yaml:"output_dir"`
	KeepLastN         int    `yaml:"keep_last_n"`
	CheckpointEvery   int64  `yaml:"checkpoint_every"`
	EventLogCapacity  int    `yaml:"event_log_capacity"`
}

// EmergencyConfig contains emergency-abort settings.
type EmergencyConfig struct {
	StopFile           string        `yaml:"stop_file"`
	AutoCleanupTimeout time.Duration `yaml:"auto_cleanup_timeout"`
}

// ExecutionConfig contains batch execution settings.
type ExecutionConfig struct {
	DefaultStartSeed uint64 `yaml:"default_start_seed"`
	DefaultIterations int   `yaml:"default_iterations"`
	Workers           int   `yaml:"workers"`
}

// SafetyConfig contains safety limits on a single run.
type SafetyConfig struct {
	MaxEventsPerRun int64 `yaml:"max_events_per_run"`
	MaxTimePerRun   time.Duration `yaml:"max_time_per_run"`
}

// DefaultConfig returns a default configuration.
func DefaultConfig() *Config {
	return &Config{
		Framework: FrameworkConfig{
			Version:   "v1",
			LogLevel:  "info",
			LogFormat: "text",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Addr:    ":9091",
		},
		Repro: ReproConfig{
			OutputDir:        "./bundles",
			KeepLastN:        50,
			CheckpointEvery:  1000,
			EventLogCapacity: 100_000,
		},
		Emergency: EmergencyConfig{
			StopFile:           "/tmp/viewharness-emergency-stop",
			AutoCleanupTimeout: 5 * time.Minute,
		},
		Execution: ExecutionConfig{
			DefaultStartSeed:  1,
			DefaultIterations: 1000,
			Workers:           1,
		},
		Safety: SafetyConfig{
			MaxEventsPerRun: 1_000_000,
			MaxTimePerRun:   1 * time.Hour,
		},
	}
}

// Load loads configuration from a YAML file, falling back to defaults
// if the file does not exist.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		path = "viewharness.yaml"
	}

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		expandedData := []byte(os.ExpandEnv(string(data)))

		if err := yaml.Unmarshal(expandedData, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if metricsAddr := os.Getenv("VIEWHARNESS_METRICS_ADDR"); metricsAddr != "" {
		cfg.Metrics.Enabled = true
		cfg.Metrics.Addr = metricsAddr
	}

	return cfg, nil
}

// Save writes configuration to a YAML file.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Repro.OutputDir == "" {
		return fmt.Errorf("repro.output_dir is required")
	}

	if c.Repro.CheckpointEvery < 1 {
		return fmt.Errorf("repro.checkpoint_every must be at least 1")
	}

	if c.Execution.Workers < 1 {
		return fmt.Errorf("execution.workers must be at least 1")
	}

	if c.Safety.MaxEventsPerRun < 1 && c.Safety.MaxTimePerRun < 1 {
		return fmt.Errorf("safety.max_events_per_run or safety.max_time_per_run is required")
	}

	return nil
}
