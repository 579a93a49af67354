package validator

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/jihwankim/viewharness/pkg/invariant"
	"github.com/jihwankim/viewharness/pkg/scenario"
)

// Validator validates scenarios
type Validator struct {
	// Warnings are non-fatal issues
	Warnings []string

	// Errors are fatal issues
	Errors []string
}

// New creates a new validator
func New() *Validator {
	return &Validator{
		Warnings: make([]string, 0),
		Errors:   make([]string, 0),
	}
}

// Validate validates a scenario
func (v *Validator) Validate(s *scenario.Scenario) error {
	v.Warnings = make([]string, 0)
	v.Errors = make([]string, 0)

	v.validateAPIVersion(s)
	v.validateKind(s)
	v.validateMetadata(s)
	v.validateSpec(s)
	v.validateNetworkPolicy(s)
	v.validateStoragePolicy(s)
	v.validateFaultPolicy(s)
	v.validateWorkloadConfig(s)
	v.validateActiveInvariants(s)
	v.validateByzantineRules(s)
	v.checkDangerousScenarios(s)

	if len(v.Errors) > 0 {
		return fmt.Errorf("validation failed with %d errors", len(v.Errors))
	}

	return nil
}

// HasWarnings returns true if there are warnings
func (v *Validator) HasWarnings() bool {
	return len(v.Warnings) > 0
}

// HasErrors returns true if there are errors
func (v *Validator) HasErrors() bool {
	return len(v.Errors) > 0
}

// GetReport returns a formatted validation report
func (v *Validator) GetReport() string {
	var sb strings.Builder

	if len(v.Errors) > 0 {
		sb.WriteString("ERRORS:\n")
		for _, err := range v.Errors {
			sb.WriteString(fmt.Sprintf("  - %s\n", err))
		}
	}

	if len(v.Warnings) > 0 {
		sb.WriteString("\nWARNINGS:\n")
		for _, warn := range v.Warnings {
			sb.WriteString(fmt.Sprintf("  - %s\n", warn))
		}
	}

	if len(v.Errors) == 0 && len(v.Warnings) == 0 {
		sb.WriteString("Validation passed with no issues.\n")
	}

	return sb.String()
}

func (v *Validator) validateAPIVersion(s *scenario.Scenario) {
	if s.APIVersion == "" {
		v.Errors = append(v.Errors, "apiVersion is required")
		return
	}

	supportedVersions := []string{"viewharness/v1"}
	supported := false
	for _, ver := range supportedVersions {
		if s.APIVersion == ver {
			supported = true
			break
		}
	}

	if !supported {
		v.Warnings = append(v.Warnings, fmt.Sprintf("apiVersion '%s' may not be supported (expected: viewharness/v1)", s.APIVersion))
	}
}

func (v *Validator) validateKind(s *scenario.Scenario) {
	if s.Kind == "" {
		v.Errors = append(v.Errors, "kind is required")
		return
	}

	if s.Kind != "Scenario" {
		v.Warnings = append(v.Warnings, fmt.Sprintf("kind '%s' may not be supported (expected: Scenario)", s.Kind))
	}
}

func (v *Validator) validateMetadata(s *scenario.Scenario) {
	if s.Metadata.Name == "" {
		v.Errors = append(v.Errors, "metadata.name is required")
	}

	if s.Metadata.Name != "" {
		nameRegex := regexp.MustCompile(`^[a-z0-9]([-a-z0-9]*[a-z0-9])?$`)
		if !nameRegex.MatchString(s.Metadata.Name) {
			v.Errors = append(v.Errors, "metadata.name must be lowercase alphanumeric with hyphens")
		}
	}

	validPhases := []string{
		"", "core", "byzantine", "corruption", "crash_recovery", "gray_failures",
		"races", "clock", "client_sessions", "repair_timeout", "scrubbing", "reconfiguration",
	}
	valid := false
	for _, p := range validPhases {
		if s.Metadata.Phase == p {
			valid = true
			break
		}
	}
	if !valid {
		v.Warnings = append(v.Warnings, fmt.Sprintf("metadata.phase '%s' is not one of the standard groupings", s.Metadata.Phase))
	}
}

func (v *Validator) validateSpec(s *scenario.Scenario) {
	if s.Spec.ReplicaCount <= 0 {
		v.Errors = append(v.Errors, "spec.replica_count is required and must be > 0")
	}
	if s.Spec.ReplicaCount == 1 {
		v.Warnings = append(v.Warnings, "spec.replica_count is 1; consensus invariants (agreement, prefix_property, view_change_safety) are vacuous with a single replica")
	}
	if s.Spec.ReplicaCount > 0 && s.Spec.ReplicaCount%2 == 0 {
		v.Warnings = append(v.Warnings, fmt.Sprintf("spec.replica_count %d is even; VR-style quorums are sized for an odd membership", s.Spec.ReplicaCount))
	}

	if s.Spec.MaxEvents <= 0 && s.Spec.MaxTime <= 0 {
		v.Errors = append(v.Errors, "spec.max_events or spec.max_time is required")
	}
	if s.Spec.MaxEvents < 0 {
		v.Errors = append(v.Errors, "spec.max_events cannot be negative")
	}
	if s.Spec.MaxTime < 0 {
		v.Errors = append(v.Errors, "spec.max_time cannot be negative")
	}
}

func (v *Validator) validateNetworkPolicy(s *scenario.Scenario) {
	p := s.Spec.NetworkPolicy
	if p.MinDelayNs < 0 || p.MaxDelayNs < 0 {
		v.Errors = append(v.Errors, "spec.network_policy delays cannot be negative")
	}
	if p.MinDelayNs > p.MaxDelayNs {
		v.Errors = append(v.Errors, "spec.network_policy.min_delay_ns cannot exceed max_delay_ns")
	}
	v.validateProbability(p.DropProb, "spec.network_policy.drop_prob")
	v.validateProbability(p.DuplicateProb, "spec.network_policy.duplicate_prob")
	v.validateProbability(p.CorruptProb, "spec.network_policy.corrupt_prob")

	for i, ov := range p.Overrides {
		if ov.From == "" || ov.To == "" {
			v.Errors = append(v.Errors, fmt.Sprintf("spec.network_policy.overrides[%d] requires both from and to", i))
		}
	}
}

func (v *Validator) validateStoragePolicy(s *scenario.Scenario) {
	p := s.Spec.StoragePolicy
	v.validateProbability(p.WriteFailureProb, "spec.storage_policy.write_failure_prob")
	v.validateProbability(p.ReadCorruptProb, "spec.storage_policy.read_corrupt_prob")
	v.validateProbability(p.FsyncFailureProb, "spec.storage_policy.fsync_failure_prob")
	v.validateProbability(p.PartialWriteProb, "spec.storage_policy.partial_write_prob")
	v.validateProbability(p.LatentSectorProb, "spec.storage_policy.latent_sector_prob")

	if p.BlockSize < 0 {
		v.Errors = append(v.Errors, "spec.storage_policy.block_size cannot be negative")
	}

	validReorder := map[string]bool{"": true, "fifo": true, "random": true, "elevator": true, "deadline": true}
	if !validReorder[p.ReorderPolicy] {
		v.Errors = append(v.Errors, fmt.Sprintf("spec.storage_policy.reorder_policy '%s' is invalid", p.ReorderPolicy))
	}
}

func (v *Validator) validateFaultPolicy(s *scenario.Scenario) {
	p := s.Spec.FaultPolicy
	v.validateProbability(p.GrayFailure.EntryProb, "spec.fault_policy.gray_failure.entry_prob")
	v.validateProbability(p.GrayFailure.RecoveryProb, "spec.fault_policy.gray_failure.recovery_prob")

	validModes := map[string]bool{"slow": true, "intermittent": true, "read_only": true, "write_only": true, "unresponsive": true}
	for i, m := range p.GrayFailure.PossibleModes {
		if !validModes[m] {
			v.Errors = append(v.Errors, fmt.Sprintf("spec.fault_policy.gray_failure.possible_modes[%d] '%s' is invalid", i, m))
		}
	}

	validPoints := map[string]bool{
		"during_write": true, "during_fsync": true, "after_fsync_before_ack": true,
		"power_loss": true, "clean_shutdown": true,
	}
	weightSum := 0.0
	for i, cw := range p.CrashPoints {
		if !validPoints[cw.Point] {
			v.Errors = append(v.Errors, fmt.Sprintf("spec.fault_policy.crash_points[%d].point '%s' is invalid", i, cw.Point))
		}
		if cw.Weight < 0 {
			v.Errors = append(v.Errors, fmt.Sprintf("spec.fault_policy.crash_points[%d].weight cannot be negative", i))
		}
		weightSum += cw.Weight
	}
	if len(p.CrashPoints) > 0 && weightSum == 0 {
		v.Errors = append(v.Errors, "spec.fault_policy.crash_points weights sum to zero")
	}
}

func (v *Validator) validateWorkloadConfig(s *scenario.Scenario) {
	c := s.Spec.WorkloadConfig
	validPatterns := map[string]bool{
		"": true, "uniform": true, "hotspot": true, "sequential": true,
		"multi_tenant_hot": true, "bursty": true, "read_modify_write": true,
	}
	if !validPatterns[c.Pattern] {
		v.Errors = append(v.Errors, fmt.Sprintf("spec.workload_config.pattern '%s' is invalid", c.Pattern))
	}

	if c.Pattern == "bursty" && c.BurstPeriodTicks > 0 && c.BurstDurationTicks > c.BurstPeriodTicks {
		v.Errors = append(v.Errors, "spec.workload_config.burst_duration_ticks cannot exceed burst_period_ticks")
	}
	if c.Pattern == "read_modify_write" {
		v.validateProbability(c.RollbackProb, "spec.workload_config.rollback_prob")
	}
	if c.Pattern == "hotspot" {
		v.validateProbability(c.HotKeyFraction, "spec.workload_config.hot_key_fraction")
		v.validateProbability(c.HotTrafficShare, "spec.workload_config.hot_traffic_share")
	}
	if c.Pattern == "multi_tenant_hot" {
		v.validateProbability(c.TenantHotShare, "spec.workload_config.tenant_hot_share")
		if c.TenantCount <= 0 {
			v.Warnings = append(v.Warnings, "spec.workload_config.tenant_count is unset; defaulting to 1 tenant makes tenant_isolation vacuous")
		}
	}
}

func (v *Validator) validateActiveInvariants(s *scenario.Scenario) {
	if len(s.Spec.ActiveInvariants) == 0 {
		v.Errors = append(v.Errors, "spec.active_invariants must name at least one checker")
		return
	}

	known := make(map[string]bool, len(invariant.Registry))
	for _, c := range invariant.Registry {
		known[c.Name] = true
	}

	seen := make(map[string]bool)
	for i, name := range s.Spec.ActiveInvariants {
		if !known[name] {
			v.Errors = append(v.Errors, fmt.Sprintf("spec.active_invariants[%d] '%s' is not a known checker", i, name))
		}
		if seen[name] {
			v.Warnings = append(v.Warnings, fmt.Sprintf("spec.active_invariants '%s' is listed more than once", name))
		}
		seen[name] = true
	}
}

func (v *Validator) validateByzantineRules(s *scenario.Scenario) {
	validMutations := map[string]bool{
		"flip_checksum": true, "flip_commit": true, "replay": true,
		"equivocate": true, "reorder_fields": true,
	}
	for i, rule := range s.Spec.ByzantineRules {
		if rule.Target == "" {
			v.Errors = append(v.Errors, fmt.Sprintf("spec.byzantine_rules[%d].target is required", i))
		}
		if !validMutations[rule.MutationKind] {
			v.Errors = append(v.Errors, fmt.Sprintf("spec.byzantine_rules[%d].mutation_kind '%s' is invalid", i, rule.MutationKind))
		}
	}
}

func (v *Validator) validateProbability(p float64, field string) {
	if p < 0 || p > 1 {
		v.Errors = append(v.Errors, fmt.Sprintf("%s must be between 0 and 1", field))
	}
}

func (v *Validator) checkDangerousScenarios(s *scenario.Scenario) {
	if s.Spec.NetworkPolicy.DropProb == 1 && len(s.Spec.NetworkPolicy.Overrides) == 0 {
		v.Warnings = append(v.Warnings, "DANGEROUS: drop_prob is 1.0 across every link with no overrides; the cluster can never make progress")
	}

	if s.Spec.MaxTime > 0 && s.Spec.MaxTime.Hours() > 24 {
		v.Warnings = append(v.Warnings, fmt.Sprintf("spec.max_time is very long (%.1f hours) for a simulated run", s.Spec.MaxTime.Hours()))
	}

	if s.Spec.StoragePolicy.FsyncFailureProb == 1 {
		v.Warnings = append(v.Warnings, "DANGEROUS: fsync_failure_prob is 1.0; no write will ever become durable")
	}
}
