//go:build !canary_skip_fsync

package reference

import (
	"github.com/jihwankim/viewharness/pkg/coverage"
	"github.com/jihwankim/viewharness/pkg/replica"
)

// ActiveCanary reports which deliberate implementation bug, if any, this
// binary was built with. The runner uses it to decide whether to wire a
// coverage.CanaryTracker into a run and which checker/budget to score it
// against. A normal build carries none.
const ActiveCanary coverage.CanaryKind = ""

// fsyncEffect produces the durability effect a write path emits after
// appending to the log. This is the non-canary build: every write is
// followed by a real fsync.
func fsyncEffect() []replica.Effect {
	return []replica.Effect{{Kind: replica.EffectFsync}}
}
