// Package scenario is a named, immutable run descriptor: targets,
// fault policy, workload shape, and the invariants that must hold —
// "targets + faults + success criteria + duration", with targets as
// in-process replica ids rather than Docker containers and faults
// drawn from the closed fault-descriptor set the simulators understand
// rather than tc/iptables invocations.
package scenario

import (
	"time"

	"github.com/jihwankim/viewharness/pkg/faultinjector"
	"github.com/jihwankim/viewharness/pkg/simclock"
	"github.com/jihwankim/viewharness/pkg/simnet"
	"github.com/jihwankim/viewharness/pkg/simstorage"
	"github.com/jihwankim/viewharness/pkg/workload"
)

// Scenario is a complete, loadable run descriptor.
type Scenario struct {
	APIVersion string       `yaml:"apiVersion"`
	Kind       string       `yaml:"kind"`
	Metadata   Metadata     `yaml:"metadata"`
	Spec       ScenarioSpec `yaml:"spec"`
}

// Metadata carries identification and grouping by phase (core,
// Byzantine, corruption, crash/recovery, gray failures, races, clock,
// client sessions, repair/timeout, scrubbing, reconfiguration).
type Metadata struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description,omitempty"`
	Phase       string   `yaml:"phase,omitempty"`
	Tags        []string `yaml:"tags,omitempty"`
	Author      string   `yaml:"author,omitempty"`
	Version     string   `yaml:"version,omitempty"`
}

// ScenarioSpec is the full run descriptor body: {id, description,
// network_policy, storage_policy, fault_policy, workload_config,
// replica_count, max_events, max_time, active_invariants,
// byzantine_rules_opt}.
type ScenarioSpec struct {
	ReplicaCount int           `yaml:"replica_count"`
	MaxEvents    int64         `yaml:"max_events"`
	MaxTime      time.Duration `yaml:"max_time"`

	NetworkPolicy  NetworkPolicy  `yaml:"network_policy"`
	StoragePolicy  StoragePolicy  `yaml:"storage_policy"`
	FaultPolicy    FaultPolicy    `yaml:"fault_policy"`
	WorkloadConfig WorkloadConfig `yaml:"workload_config"`

	ActiveInvariants []string        `yaml:"active_invariants"`
	ByzantineRules   []ByzantineRule `yaml:"byzantine_rules,omitempty"`
}

// NetworkPolicy is the YAML-facing mirror of simnet.LinkPolicy, applied
// uniformly across every link unless Overrides names a specific
// from-to pair.
type NetworkPolicy struct {
	MinDelayNs    int64   `yaml:"min_delay_ns"`
	MaxDelayNs    int64   `yaml:"max_delay_ns"`
	DropProb      float64 `yaml:"drop_prob,omitempty"`
	DuplicateProb float64 `yaml:"duplicate_prob,omitempty"`
	CorruptProb   float64 `yaml:"corrupt_prob,omitempty"`
	ClogFactor    float64 `yaml:"clog_factor,omitempty"`
	ClogDropBoost float64 `yaml:"clog_drop_boost,omitempty"`

	Overrides []LinkOverride `yaml:"overrides,omitempty"`
}

// LinkOverride narrows NetworkPolicy's default to one from-to pair, used
// by scenarios that want an asymmetric or single-link fault (e.g. "only
// the link from the primary to r2 is clogged").
type LinkOverride struct {
	From   string  `yaml:"from"`
	To     string  `yaml:"to"`
	Policy NetworkPolicy `yaml:"policy"`
}

// ToLinkPolicy converts the YAML-facing shape into the simulator's own
// policy struct.
func (p NetworkPolicy) ToLinkPolicy() simnet.LinkPolicy {
	return simnet.LinkPolicy{
		MinDelayNs:    p.MinDelayNs,
		MaxDelayNs:    p.MaxDelayNs,
		DropProb:      p.DropProb,
		DuplicateProb: p.DuplicateProb,
		CorruptProb:   p.CorruptProb,
		ClogFactor:    p.ClogFactor,
		ClogDropBoost: p.ClogDropBoost,
	}
}

// StoragePolicy is the YAML-facing mirror of simstorage.FaultPolicy.
type StoragePolicy struct {
	WriteFailureProb float64 `yaml:"write_failure_prob,omitempty"`
	ReadCorruptProb  float64 `yaml:"read_corrupt_prob,omitempty"`
	FsyncFailureProb float64 `yaml:"fsync_failure_prob,omitempty"`
	PartialWriteProb float64 `yaml:"partial_write_prob,omitempty"`
	LatentSectorProb float64 `yaml:"latent_sector_prob,omitempty"`

	BlockSize int `yaml:"block_size,omitempty"`

	ReorderPolicy string `yaml:"reorder_policy,omitempty"` // fifo|random|elevator|deadline
	ReorderWindow int    `yaml:"reorder_window,omitempty"`

	MaxInFlight  int   `yaml:"max_in_flight,omitempty"`
	MinLatencyNs int64 `yaml:"min_latency_ns,omitempty"`
	MaxLatencyNs int64 `yaml:"max_latency_ns,omitempty"`
}

func (p StoragePolicy) reorderPolicy() simstorage.ReorderPolicy {
	switch p.ReorderPolicy {
	case "random":
		return simstorage.ReorderRandom
	case "elevator":
		return simstorage.ReorderElevator
	case "deadline":
		return simstorage.ReorderDeadline
	default:
		return simstorage.ReorderFIFO
	}
}

// ToFaultPolicy converts the YAML-facing shape into simstorage's own
// policy struct, applying its documented default block size when unset.
func (p StoragePolicy) ToFaultPolicy() simstorage.FaultPolicy {
	blockSize := p.BlockSize
	if blockSize <= 0 {
		blockSize = simstorage.DefaultBlockSize
	}
	return simstorage.FaultPolicy{
		WriteFailureProb: p.WriteFailureProb,
		ReadCorruptProb:  p.ReadCorruptProb,
		FsyncFailureProb: p.FsyncFailureProb,
		PartialWriteProb: p.PartialWriteProb,
		LatentSectorProb: p.LatentSectorProb,
		BlockSize:        blockSize,
		ReorderPolicy:    p.reorderPolicy(),
		ReorderWindow:    p.ReorderWindow,
		MaxInFlight:      p.MaxInFlight,
		MinLatencyNs:     p.MinLatencyNs,
		MaxLatencyNs:     p.MaxLatencyNs,
	}
}

// FaultPolicy is the YAML-facing mirror of the higher-order fault
// behaviors faultinjector.Injector composes: gray failures, swizzle
// clogging, crash scheduling, clock drift.
type FaultPolicy struct {
	GrayFailure  GrayFailurePolicy  `yaml:"gray_failure,omitempty"`
	SwizzleClog  SwizzleClogPolicy  `yaml:"swizzle_clog,omitempty"`
	CrashPoints  []CrashPointWeight `yaml:"crash_points,omitempty"`
	ClockDriftNs map[string]int64   `yaml:"clock_drift_ns,omitempty"`
}

// GrayFailurePolicy mirrors faultinjector.GrayFailurePolicy.
type GrayFailurePolicy struct {
	EntryProb     float64  `yaml:"entry_prob,omitempty"`
	RecoveryProb  float64  `yaml:"recovery_prob,omitempty"`
	PossibleModes []string `yaml:"possible_modes,omitempty"` // slow|intermittent|read_only|write_only|unresponsive
}

// SwizzleClogPolicy mirrors faultinjector.SwizzleClogPolicy.
type SwizzleClogPolicy struct {
	ClogFraction   float64       `yaml:"clog_fraction,omitempty"`
	UnclogFraction float64       `yaml:"unclog_fraction,omitempty"`
	CadenceNs      int64         `yaml:"cadence_ns,omitempty"`
	Aggressive     bool          `yaml:"aggressive,omitempty"`
}

// CrashPointWeight names one crash point and its selection weight,
// mirroring faultinjector.CrashSchedule's parallel slices in a form that
// survives round-tripping through YAML.
type CrashPointWeight struct {
	Point  string  `yaml:"point"` // during_write|during_fsync|after_fsync_before_ack|power_loss|clean_shutdown
	Weight float64 `yaml:"weight"`
}

func grayModeFromString(s string) faultinjector.GrayFailureState {
	switch s {
	case "slow":
		return faultinjector.GraySlow
	case "intermittent":
		return faultinjector.GrayIntermittent
	case "read_only":
		return faultinjector.GrayReadOnly
	case "write_only":
		return faultinjector.GrayWriteOnly
	case "unresponsive":
		return faultinjector.GrayUnresponsive
	default:
		return faultinjector.GrayNone
	}
}

func crashPointFromString(s string) simstorage.CrashPoint {
	switch s {
	case "during_write":
		return simstorage.CrashDuringWrite
	case "during_fsync":
		return simstorage.CrashDuringFsync
	case "after_fsync_before_ack":
		return simstorage.CrashAfterFsyncBeforeAck
	case "power_loss":
		return simstorage.CrashPowerLoss
	case "clean_shutdown":
		return simstorage.CrashCleanShutdown
	default:
		return simstorage.CrashNone
	}
}

// ToGrayFailurePolicy converts the YAML-facing shape to faultinjector's.
func (p GrayFailurePolicy) ToGrayFailurePolicy() faultinjector.GrayFailurePolicy {
	modes := make([]faultinjector.GrayFailureState, 0, len(p.PossibleModes))
	for _, m := range p.PossibleModes {
		modes = append(modes, grayModeFromString(m))
	}
	return faultinjector.GrayFailurePolicy{
		EntryProb:     p.EntryProb,
		RecoveryProb:  p.RecoveryProb,
		PossibleModes: modes,
	}
}

// ToSwizzleClogPolicy converts the YAML-facing shape to faultinjector's.
func (p SwizzleClogPolicy) ToSwizzleClogPolicy() faultinjector.SwizzleClogPolicy {
	return faultinjector.SwizzleClogPolicy{
		ClogFraction:   p.ClogFraction,
		UnclogFraction: p.UnclogFraction,
		CadenceNs:      simclock.Time(p.CadenceNs),
		Aggressive:     p.Aggressive,
	}
}

// ToCrashSchedule converts the YAML-facing list of (point, weight) pairs
// into faultinjector's parallel-slice CrashSchedule.
func (p FaultPolicy) ToCrashSchedule() faultinjector.CrashSchedule {
	points := make([]simstorage.CrashPoint, 0, len(p.CrashPoints))
	weights := make([]float64, 0, len(p.CrashPoints))
	for _, cw := range p.CrashPoints {
		points = append(points, crashPointFromString(cw.Point))
		weights = append(weights, cw.Weight)
	}
	return faultinjector.CrashSchedule{Points: points, Weights: weights}
}

// ToClockDriftPolicy converts the YAML-facing map to faultinjector's.
func (p FaultPolicy) ToClockDriftPolicy() faultinjector.ClockDriftPolicy {
	return faultinjector.ClockDriftPolicy{OffsetNsByReplica: p.ClockDriftNs}
}

// WorkloadConfig is the YAML-facing mirror of workload.Config.
type WorkloadConfig struct {
	Pattern string `yaml:"pattern"` // uniform|hotspot|sequential|multi_tenant_hot|bursty|read_modify_write

	KeySpace    int64 `yaml:"key_space,omitempty"`
	ClientCount int   `yaml:"client_count,omitempty"`

	HotKeyFraction  float64 `yaml:"hot_key_fraction,omitempty"`
	HotTrafficShare float64 `yaml:"hot_traffic_share,omitempty"`

	TenantCount    int     `yaml:"tenant_count,omitempty"`
	TenantHotShare float64 `yaml:"tenant_hot_share,omitempty"`
	TenantKeyRange int64   `yaml:"tenant_key_range,omitempty"`

	BurstMultiplier    float64 `yaml:"burst_multiplier,omitempty"`
	BurstDurationTicks int64   `yaml:"burst_duration_ticks,omitempty"`
	BurstPeriodTicks   int64   `yaml:"burst_period_ticks,omitempty"`

	RollbackProb float64 `yaml:"rollback_prob,omitempty"`
}

func patternFromString(s string) workload.Pattern {
	switch s {
	case "hotspot":
		return workload.PatternHotspot
	case "sequential":
		return workload.PatternSequential
	case "multi_tenant_hot":
		return workload.PatternMultiTenantHot
	case "bursty":
		return workload.PatternBursty
	case "read_modify_write":
		return workload.PatternReadModifyWrite
	default:
		return workload.PatternUniform
	}
}

// ToWorkloadConfig converts the YAML-facing shape to workload's own
// Config struct.
func (c WorkloadConfig) ToWorkloadConfig() workload.Config {
	return workload.Config{
		Pattern:            patternFromString(c.Pattern),
		KeySpace:           c.KeySpace,
		ClientCount:        c.ClientCount,
		HotKeyFraction:     c.HotKeyFraction,
		HotTrafficShare:    c.HotTrafficShare,
		TenantCount:        c.TenantCount,
		TenantHotShare:     c.TenantHotShare,
		TenantKeyRange:     c.TenantKeyRange,
		BurstMultiplier:    c.BurstMultiplier,
		BurstDurationTicks: c.BurstDurationTicks,
		BurstPeriodTicks:   c.BurstPeriodTicks,
		RollbackProb:       c.RollbackProb,
	}
}

// ByzantineRule names one message-mutation rule a scenario opts into:
// a fault descriptor of {target, selector, mutation kind}.
type ByzantineRule struct {
	Target       string `yaml:"target"`
	Selector     string `yaml:"selector,omitempty"`
	MutationKind string `yaml:"mutation_kind"` // flip_checksum|flip_commit|replay|equivocate|reorder_fields

	// InflateFactor is the multiplier flip_commit applies to the
	// commit number field. Defaults to 2 when unset so existing
	// scenario files that predate this field keep their prior
	// behavior.
	InflateFactor int64 `yaml:"inflate_factor,omitempty"`
}
