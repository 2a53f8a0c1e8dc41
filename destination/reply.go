package destination

// ResultKind classifies a memcache reply the way the TKO state machine
// needs to see it. The wire-level client (out of scope for this module,
// see spec §1) is responsible for mapping its own result codes onto one
// of these kinds; Destination classifies a reply by its Kind field
// alone.
type ResultKind int

const (
	// ResultOK is a normal, successful reply.
	ResultOK ResultKind = iota
	// ResultHardTKOError is a connect-error/protocol-violation class of
	// failure: one occurrence at the hard threshold trips HardTko.
	ResultHardTKOError
	// ResultSoftTKOError is a timeout class of failure: requires the
	// configured number of *consecutive* occurrences from the same
	// Destination to trip SoftTko.
	ResultSoftTKOError
	// ResultOther is a logical error (e.g. "not found") that is counted
	// in per-result stats but never affects TKO classification.
	ResultOther
)

// Reply is the minimal shape Destination needs from a memcache reply.
type Reply struct {
	Kind ResultKind
	// Result is a free-form code/name used only for stats and the TKO
	// event log, e.g. "timeout", "connect_error", "notfound", "ok".
	Result string
}

// connectErrorReply is the synthetic reply on_down feeds into the
// classifier, mirroring the original's McReply(mc_res_connect_error).
func connectErrorReply() Reply {
	return Reply{Kind: ResultHardTKOError, Result: "connect_error"}
}
