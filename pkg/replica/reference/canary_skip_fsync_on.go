//go:build canary_skip_fsync

package reference

import (
	"github.com/jihwankim/viewharness/pkg/coverage"
	"github.com/jihwankim/viewharness/pkg/replica"
)

// ActiveCanary reports which deliberate implementation bug this binary
// was built with. This build carries the skip-fsync canary: every write
// path omits its EffectFsync, so a durable-looking write is never
// actually made durable.
const ActiveCanary coverage.CanaryKind = coverage.CanarySkipFsync

// fsyncEffect is the canary variant: it deliberately drops the fsync
// effect a real write path would emit, leaving every write stuck
// pending in the model store. read_your_writes (and, on a crash,
// storage determinism) is expected to catch this within its event
// budget; if nothing does, the mutation score has regressed.
func fsyncEffect() []replica.Effect {
	return nil
}
