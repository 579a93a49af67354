package simnet

import "github.com/jihwankim/viewharness/pkg/simrng"

// MutationKind is the closed set of Byzantine message transformations the
// harness can apply, drawn directly from the fault catalog: inflate a
// commit number field, truncate the log-tail payload, flip a type
// discriminator, corrupt a checksum, re-send an old view's message,
// refuse to relay to a specific replica, send conflicting messages to
// different targets at the same logical step.
type MutationKind int

const (
	MutateInflateCommit MutationKind = iota
	MutateTruncateLogTail
	MutateFlipTypeDiscriminator
	MutateCorruptChecksum
	MutateResendOldView
	MutateRefuseRelay
	MutateConflictingSend
)

// MutationRule selects which messages a mutation applies to. An empty
// Target or TypeFilter matches any value for that field.
type MutationRule struct {
	Target     string // replica id the sender must be, to trigger this rule
	TypeFilter string
	Kind       MutationKind

	// InflateFactor is used by MutateInflateCommit.
	InflateFactor int64
	// OldView is the view number substituted by MutateResendOldView.
	OldView int64
	// ConflictingTargets lists the extra recipients of a
	// MutateConflictingSend rule, as reported by ConflictingTargetsFor.
	// Network.Send does not deliver to them; it sends only the original
	// envelope.
	ConflictingTargets []string
}

func (r MutationRule) matches(env Envelope) bool {
	if r.Target != "" && r.Target != env.From {
		return false
	}
	if r.TypeFilter != "" && r.TypeFilter != env.Type {
		return false
	}
	return true
}

// Mutator applies a deterministic set of Byzantine rules to outgoing
// messages. All mutation outcomes are themselves deterministic under the
// supplied RNG stream, so a scenario that enables a mutator still
// reproduces bit-exactly for a given seed.
type Mutator struct {
	rules []MutationRule
}

// NewMutator constructs a mutator from a rule set.
func NewMutator(rules []MutationRule) *Mutator {
	return &Mutator{rules: rules}
}

// Apply transforms env according to every matching rule, in rule order.
// A MutateRefuseRelay rule clears env.To, which Network.Send treats as a
// silent drop. A MutateConflictingSend rule leaves env unchanged; its
// extra recipients are reported only by ConflictingTargetsFor, which
// nothing in the harness calls, so no conflicting delivery is scheduled.
func (m *Mutator) Apply(env Envelope, rng *simrng.Stream) Envelope {
	for _, r := range m.rules {
		if !r.matches(env) {
			continue
		}
		switch r.Kind {
		case MutateInflateCommit:
			factor := r.InflateFactor
			if factor == 0 {
				factor = 1
			}
			env.Commit *= factor
		case MutateTruncateLogTail:
			if len(env.Bytes) > 0 {
				n := int(rng.UniformRange(0, int64(len(env.Bytes))))
				env.Bytes = env.Bytes[:n]
			}
		case MutateFlipTypeDiscriminator:
			env.Type = flippedType(env.Type)
		case MutateCorruptChecksum:
			env.Checksum[0] ^= 0xFF
		case MutateResendOldView:
			env.View = r.OldView
		case MutateRefuseRelay:
			env.To = ""
		case MutateConflictingSend:
			// Handled by ConflictingTargetsFor; the envelope itself is
			// left as the version sent to the original target.
		}
	}
	return env
}

// ConflictingTargetsFor returns the extra recipients a
// MutateConflictingSend rule wants messaged, for the given source
// envelope, so the caller can synthesize distinct (and potentially
// differently mutated) envelopes for each.
func (m *Mutator) ConflictingTargetsFor(env Envelope) []string {
	var targets []string
	for _, r := range m.rules {
		if r.Kind == MutateConflictingSend && r.matches(env) {
			targets = append(targets, r.ConflictingTargets...)
		}
	}
	return targets
}

func flippedType(t string) string {
	switch t {
	case "prepare":
		return "prepare-ok"
	case "prepare-ok":
		return "prepare"
	case "commit":
		return "view-change"
	case "view-change":
		return "commit"
	default:
		return "unknown"
	}
}
