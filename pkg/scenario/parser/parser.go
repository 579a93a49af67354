package parser

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jihwankim/viewharness/pkg/scenario"
)

// Parser parses scenario YAML files
type Parser struct {
	// Variables for substitution
	Variables map[string]string
}

// New creates a new parser with optional variables
func New(variables map[string]string) *Parser {
	if variables == nil {
		variables = make(map[string]string)
	}
	return &Parser{
		Variables: variables,
	}
}

// ParseFile parses a scenario from a YAML file
func (p *Parser) ParseFile(path string) (*scenario.Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	return p.Parse(data)
}

// Parse parses a scenario from YAML bytes
func (p *Parser) Parse(data []byte) (*scenario.Scenario, error) {
	substituted := p.substituteVariables(string(data))

	var s scenario.Scenario
	if err := yaml.Unmarshal([]byte(substituted), &s); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := p.validateRequiredFields(&s); err != nil {
		return nil, err
	}

	return &s, nil
}

// substituteVariables replaces ${VAR} and $VAR with values from environment and parser variables
func (p *Parser) substituteVariables(content string) string {
	re := regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

	result := re.ReplaceAllStringFunc(content, func(match string) string {
		var varName string
		if strings.HasPrefix(match, "${") {
			varName = match[2 : len(match)-1]
		} else {
			varName = match[1:]
		}

		if val, ok := p.Variables[varName]; ok {
			return val
		}

		if val := os.Getenv(varName); val != "" {
			return val
		}

		return match
	})

	return result
}

// SetVariable sets a variable for substitution
func (p *Parser) SetVariable(key, value string) {
	p.Variables[key] = value
}

// SetVariables sets multiple variables
func (p *Parser) SetVariables(vars map[string]string) {
	for k, v := range vars {
		p.Variables[k] = v
	}
}

// ParseOverrides parses CLI override strings (--set key=value)
// Supports dotted paths like "spec.max_time=10m"
func ParseOverrides(overrides []string) (map[string]string, error) {
	result := make(map[string]string)

	for _, override := range overrides {
		parts := strings.SplitN(override, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid override format: %s (expected key=value)", override)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		if key == "" {
			return nil, fmt.Errorf("empty key in override: %s", override)
		}

		result[key] = value
	}

	return result, nil
}

// ApplyOverrides applies CLI overrides to a scenario. This is a simple
// implementation that handles the common cases a runner's --set flag
// needs; unrecognized paths are rejected rather than silently ignored.
func ApplyOverrides(s *scenario.Scenario, overrides map[string]string) error {
	for key, value := range overrides {
		switch key {
		case "max_time", "spec.max_time":
			d, err := parseDuration(value)
			if err != nil {
				return fmt.Errorf("invalid max_time override: %w", err)
			}
			s.Spec.MaxTime = d

		case "max_events", "spec.max_events":
			n, err := parseInt(value)
			if err != nil {
				return fmt.Errorf("invalid max_events override: %w", err)
			}
			s.Spec.MaxEvents = n

		case "replica_count", "spec.replica_count":
			n, err := parseInt(value)
			if err != nil {
				return fmt.Errorf("invalid replica_count override: %w", err)
			}
			s.Spec.ReplicaCount = int(n)

		case "workload_config.pattern", "spec.workload_config.pattern":
			s.Spec.WorkloadConfig.Pattern = value

		default:
			return fmt.Errorf("unsupported override key: %s", key)
		}
	}

	return nil
}

func parseDuration(s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration format: %s (use format like 5m, 1h, 30s)", s)
	}
	return d, nil
}

func parseInt(s string) (int64, error) {
	var n int64
	if _, err := fmt.Sscanf(s, "%d", &n); err != nil {
		return 0, fmt.Errorf("invalid integer format: %s", s)
	}
	return n, nil
}

// validateRequiredFields validates that required fields are present
func (p *Parser) validateRequiredFields(s *scenario.Scenario) error {
	if s.APIVersion == "" {
		return fmt.Errorf("apiVersion is required")
	}

	if s.Kind == "" {
		return fmt.Errorf("kind is required")
	}

	if s.Metadata.Name == "" {
		return fmt.Errorf("metadata.name is required")
	}

	if s.Spec.ReplicaCount <= 0 {
		return fmt.Errorf("spec.replica_count is required and must be positive")
	}

	if s.Spec.MaxEvents <= 0 && s.Spec.MaxTime <= 0 {
		return fmt.Errorf("spec.max_events or spec.max_time is required")
	}

	if len(s.Spec.ActiveInvariants) == 0 {
		return fmt.Errorf("spec.active_invariants is required and must name at least one checker")
	}

	for i, rule := range s.Spec.ByzantineRules {
		if rule.Target == "" {
			return fmt.Errorf("spec.byzantine_rules[%d].target is required", i)
		}
		if rule.MutationKind == "" {
			return fmt.Errorf("spec.byzantine_rules[%d].mutation_kind is required", i)
		}
	}

	return nil
}
