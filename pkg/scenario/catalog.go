package scenario

import "sort"

// Catalog is the enumerated set of stable scenario identifiers the CLI's
// `run`/`verify --scenario <id>` and `scenarios` subcommands resolve
// against without needing a YAML file on disk. Unknown identifiers
// produce exit-code 64. Each entry carries its Metadata.Phase; some
// phases (core, byzantine, races) have more than one scenario.
var Catalog = map[string]*Scenario{
	"core-quorum-write": {
		APIVersion: "viewharness/v1",
		Kind:       "Scenario",
		Metadata: Metadata{
			Name:        "core-quorum-write",
			Description: "Plain replicated writes against a healthy 3-replica cluster.",
			Phase:       "core",
		},
		Spec: ScenarioSpec{
			ReplicaCount:     3,
			MaxEvents:        5_000,
			NetworkPolicy:    NetworkPolicy{MinDelayNs: 1_000, MaxDelayNs: 20_000},
			WorkloadConfig:   WorkloadConfig{Pattern: "uniform", KeySpace: 64, ClientCount: 4},
			ActiveInvariants: []string{"agreement", "prefix_property", "offset_monotonicity", "hash_chain_integrity"},
		},
	},
	"byzantine-equivocation": {
		APIVersion: "viewharness/v1",
		Kind:       "Scenario",
		Metadata: Metadata{
			Name:        "byzantine-equivocation",
			Description: "A primary that equivocates between followers under normal load.",
			Phase:       "byzantine",
		},
		Spec: ScenarioSpec{
			ReplicaCount:   3,
			MaxEvents:      5_000,
			NetworkPolicy:  NetworkPolicy{MinDelayNs: 1_000, MaxDelayNs: 20_000},
			WorkloadConfig: WorkloadConfig{Pattern: "uniform", KeySpace: 64, ClientCount: 4},
			ByzantineRules: []ByzantineRule{
				{Target: "r0", MutationKind: "equivocate"},
			},
			ActiveInvariants: []string{"agreement", "replica_consistency", "view_change_safety"},
		},
	},
	"storage-corruption": {
		APIVersion: "viewharness/v1",
		Kind:       "Scenario",
		Metadata: Metadata{
			Name:        "storage-corruption",
			Description: "Latent-sector and read-corruption faults against the storage layer.",
			Phase:       "corruption",
		},
		Spec: ScenarioSpec{
			ReplicaCount:   3,
			MaxEvents:      5_000,
			NetworkPolicy:  NetworkPolicy{MinDelayNs: 1_000, MaxDelayNs: 20_000},
			StoragePolicy:  StoragePolicy{ReadCorruptProb: 0.02, LatentSectorProb: 0.01},
			WorkloadConfig: WorkloadConfig{Pattern: "uniform", KeySpace: 64, ClientCount: 4},
			ActiveInvariants: []string{
				"hash_chain_integrity", "agreement", "recovery_safety",
			},
		},
	},
	"crash-recovery-cycle": {
		APIVersion: "viewharness/v1",
		Kind:       "Scenario",
		Metadata: Metadata{
			Name:        "crash-recovery-cycle",
			Description: "Periodic crash/recover against a random live replica.",
			Phase:       "crash_recovery",
		},
		Spec: ScenarioSpec{
			ReplicaCount:  3,
			MaxEvents:     8_000,
			NetworkPolicy: NetworkPolicy{MinDelayNs: 1_000, MaxDelayNs: 20_000},
			FaultPolicy: FaultPolicy{
				CrashPoints: []CrashPointWeight{
					{Point: "during_write", Weight: 1},
					{Point: "during_fsync", Weight: 1},
					{Point: "after_fsync_before_ack", Weight: 1},
					{Point: "power_loss", Weight: 1},
				},
			},
			WorkloadConfig:   WorkloadConfig{Pattern: "uniform", KeySpace: 64, ClientCount: 4},
			ActiveInvariants: []string{"recovery_safety", "agreement", "prefix_property"},
		},
	},
	"gray-failure-drift": {
		APIVersion: "viewharness/v1",
		Kind:       "Scenario",
		Metadata: Metadata{
			Name:        "gray-failure-drift",
			Description: "A replica drifting through slow/intermittent/unresponsive modes.",
			Phase:       "gray_failures",
		},
		Spec: ScenarioSpec{
			ReplicaCount:  3,
			MaxEvents:     6_000,
			NetworkPolicy: NetworkPolicy{MinDelayNs: 1_000, MaxDelayNs: 20_000},
			FaultPolicy: FaultPolicy{
				GrayFailure: GrayFailurePolicy{
					EntryProb:     0.05,
					RecoveryProb:  0.2,
					PossibleModes: []string{"slow", "intermittent", "unresponsive"},
				},
			},
			WorkloadConfig:   WorkloadConfig{Pattern: "uniform", KeySpace: 64, ClientCount: 4},
			ActiveInvariants: []string{"agreement", "view_change_safety", "replica_consistency"},
		},
	},
	"client-session-ordering": {
		APIVersion: "viewharness/v1",
		Kind:       "Scenario",
		Metadata: Metadata{
			Name:        "client-session-ordering",
			Description: "Many clients hammering a hotspot key range, checking session ordering.",
			Phase:       "client_sessions",
		},
		Spec: ScenarioSpec{
			ReplicaCount: 3,
			MaxEvents:    5_000,
			NetworkPolicy: NetworkPolicy{MinDelayNs: 1_000, MaxDelayNs: 20_000},
			WorkloadConfig: WorkloadConfig{
				Pattern: "hotspot", KeySpace: 256, ClientCount: 8,
				HotKeyFraction: 0.05, HotTrafficShare: 0.8,
			},
			ActiveInvariants: []string{"client_session_monotonicity", "read_your_writes", "agreement"},
		},
	},
	"clock-drift-skew": {
		APIVersion: "viewharness/v1",
		Kind:       "Scenario",
		Metadata: Metadata{
			Name:        "clock-drift-skew",
			Description: "Replicas with skewed local clocks under normal load.",
			Phase:       "clock",
		},
		Spec: ScenarioSpec{
			ReplicaCount:  3,
			MaxEvents:     5_000,
			NetworkPolicy: NetworkPolicy{MinDelayNs: 1_000, MaxDelayNs: 20_000},
			FaultPolicy: FaultPolicy{
				ClockDriftNs: map[string]int64{"r1": 250_000_000, "r2": -250_000_000},
			},
			WorkloadConfig:   WorkloadConfig{Pattern: "uniform", KeySpace: 64, ClientCount: 4},
			ActiveInvariants: []string{"agreement", "commit_history"},
		},
	},
	"baseline": {
		APIVersion: "viewharness/v1",
		Kind:       "Scenario",
		Metadata: Metadata{
			Name:        "baseline",
			Description: "Healthy 3-replica cluster, no faults, uniform workload over a 1000-key space.",
			Phase:       "core",
		},
		Spec: ScenarioSpec{
			ReplicaCount:     3,
			MaxEvents:        100_000,
			NetworkPolicy:    NetworkPolicy{MinDelayNs: 1_000, MaxDelayNs: 20_000},
			WorkloadConfig:   WorkloadConfig{Pattern: "uniform", KeySpace: 1_000, ClientCount: 4},
			ActiveInvariants: []string{"agreement", "prefix_property", "offset_monotonicity", "hash_chain_integrity"},
		},
	},
	"byzantine_inflated_commit": {
		APIVersion: "viewharness/v1",
		Kind:       "Scenario",
		Metadata: Metadata{
			Name:        "byzantine_inflated_commit",
			Description: "Replica r2 inflates the commit number by 500x on every view-change broadcast.",
			Phase:       "byzantine",
		},
		Spec: ScenarioSpec{
			ReplicaCount:   3,
			MaxEvents:      50_000,
			NetworkPolicy:  NetworkPolicy{MinDelayNs: 1_000, MaxDelayNs: 20_000},
			WorkloadConfig: WorkloadConfig{Pattern: "uniform", KeySpace: 1_000, ClientCount: 4},
			ByzantineRules: []ByzantineRule{
				{Target: "r2", Selector: "view-change", MutationKind: "flip_commit", InflateFactor: 500},
			},
			ActiveInvariants: []string{"prefix_property", "agreement", "view_change_safety"},
		},
	},
	"combined": {
		APIVersion: "viewharness/v1",
		Kind:       "Scenario",
		Metadata: Metadata{
			Name:        "combined",
			Description: "Multi-tenant hot workload under storage faults, swizzle-clogging, and one intermittently-failing node.",
			Phase:       "races",
		},
		Spec: ScenarioSpec{
			ReplicaCount:  3,
			MaxEvents:     200_000,
			NetworkPolicy: NetworkPolicy{MinDelayNs: 1_000, MaxDelayNs: 20_000},
			StoragePolicy: StoragePolicy{WriteFailureProb: 0.02, FsyncFailureProb: 0.02},
			FaultPolicy: FaultPolicy{
				// entry/recovery probabilities tuned so a given tick's odds of
				// landing in GrayIntermittent fall in the 10-59% duty-cycle
				// range the targeted node alternates through; there is no
				// dedicated intermittent-severity knob, so this is the closest
				// expressible approximation.
				GrayFailure: GrayFailurePolicy{
					EntryProb:     0.1,
					RecoveryProb:  0.59,
					PossibleModes: []string{"intermittent"},
				},
				SwizzleClog: SwizzleClogPolicy{
					ClogFraction: 0.2, UnclogFraction: 0.2, CadenceNs: 200_000_000,
				},
			},
			WorkloadConfig: WorkloadConfig{
				Pattern: "multi_tenant_hot", KeySpace: 1_000, ClientCount: 8,
				TenantCount: 3, TenantHotShare: 0.8, TenantKeyRange: 300,
			},
			ActiveInvariants: []string{"agreement", "tenant_isolation", "read_your_writes", "view_change_safety", "recovery_safety"},
		},
	},
	"swizzle-clog-races": {
		APIVersion: "viewharness/v1",
		Kind:       "Scenario",
		Metadata: Metadata{
			Name:        "swizzle-clog-races",
			Description: "Aggressive link clogging/unclogging cycling to provoke timing races.",
			Phase:       "races",
		},
		Spec: ScenarioSpec{
			ReplicaCount:  5,
			MaxEvents:     8_000,
			NetworkPolicy: NetworkPolicy{MinDelayNs: 500, MaxDelayNs: 50_000},
			FaultPolicy: FaultPolicy{
				SwizzleClog: SwizzleClogPolicy{
					ClogFraction: 0.3, UnclogFraction: 0.3, CadenceNs: 5_000_000, Aggressive: true,
				},
			},
			WorkloadConfig:   WorkloadConfig{Pattern: "bursty", KeySpace: 64, ClientCount: 6, BurstMultiplier: 4, BurstDurationTicks: 20, BurstPeriodTicks: 100},
			ActiveInvariants: []string{"agreement", "view_change_safety", "prefix_property"},
		},
	},
}

// Lookup resolves a catalog identifier to its Scenario. The returned
// pointer is the shared catalog entry; callers that mutate a resolved
// scenario (e.g. applying --set overrides) must clone it first.
func Lookup(id string) (*Scenario, bool) {
	s, ok := Catalog[id]
	return s, ok
}

// Names returns every catalog identifier, sorted.
func Names() []string {
	names := make([]string, 0, len(Catalog))
	for name := range Catalog {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clone returns a deep-enough copy of s for override mutation: every
// slice/map field a parser override can reach gets its own backing
// array, so mutating the clone never perturbs the shared catalog entry.
func Clone(s *Scenario) *Scenario {
	cp := *s
	cp.Spec.ActiveInvariants = append([]string(nil), s.Spec.ActiveInvariants...)
	cp.Spec.ByzantineRules = append([]ByzantineRule(nil), s.Spec.ByzantineRules...)
	cp.Spec.FaultPolicy.CrashPoints = append([]CrashPointWeight(nil), s.Spec.FaultPolicy.CrashPoints...)
	cp.Spec.FaultPolicy.GrayFailure.PossibleModes = append([]string(nil), s.Spec.FaultPolicy.GrayFailure.PossibleModes...)
	if s.Spec.FaultPolicy.ClockDriftNs != nil {
		cp.Spec.FaultPolicy.ClockDriftNs = make(map[string]int64, len(s.Spec.FaultPolicy.ClockDriftNs))
		for k, v := range s.Spec.FaultPolicy.ClockDriftNs {
			cp.Spec.FaultPolicy.ClockDriftNs[k] = v
		}
	}
	cp.Spec.NetworkPolicy.Overrides = append([]LinkOverride(nil), s.Spec.NetworkPolicy.Overrides...)
	return &cp
}
