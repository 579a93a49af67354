package coverage

// FaultPointCatalog is the closed set of fault-point names
// pkg/faultinjector ever records via Counters.RecordFaultPoint,
// mirrored here (rather than introspected at runtime) so a threshold
// preset's coverage-pct denominator and an observability.Dashboard's
// catalog are both known before any scenario has run a single event.
var FaultPointCatalog = []string{
	"gray.slow",
	"gray.intermittent",
	"gray.read_only",
	"gray.write_only",
	"gray.unresponsive",
	"network.clog",
	"crash.during_write",
	"crash.during_fsync",
	"crash.after_fsync_before_ack",
	"crash.power_loss",
	"crash.clean_shutdown",
}
