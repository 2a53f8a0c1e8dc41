package destination

// assertEnabled mirrors the original's debug-build magic-word sentinel
// (spec §5, §7): timer-callback invariant violations are fatal
// assertions in a debug build, but this module is a long-lived library,
// so in production they are reported instead of crashing the process
// (spec §9's lifetime-typing note; SPEC_FULL.md §2 Errors). It is false
// by default and no test in this package sets it; setting it to true
// makes a violation panic.
var assertEnabled = false

// reportInvariantViolation is the single place a timer callback or probe
// task reports "this should never happen" conditions. Its one caller is
// Destination.sendProbe, for a probe timer that fires after Close. It
// increments a counter visible to operators and, under assertEnabled,
// panics.
func (d *Destination) reportInvariantViolation(what string) {
	d.metrics.IncCounter("destination.invariant_violation")
	d.log.Errorf("invariant violation on %s: %s", d.shared.AccessPoint, what)
	if assertEnabled {
		panic("destination: invariant violation: " + what)
	}
}
