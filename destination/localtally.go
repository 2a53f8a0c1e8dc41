package destination

import (
	"sync/atomic"

	"github.com/sony/gobreaker"

	"github.com/seem-sky/mcrouter/logging"
)

// softFailureTally is the per-Destination "private consecutive-failure
// tally" spec §4.1 describes: FailureCounter.recordSoftFailure is only
// meaningful once this destination has seen the configured number of
// *consecutive* soft errors, and a success (from any destination, per
// spec's recordSuccess) resets the tally without touching the shared
// classification.
//
// This is wired on top of gobreaker.TwoStepCircuitBreaker exactly the
// way skipper's circuit.consecutiveBreaker wraps it: ReadyToTrip counts
// consecutive failures and we treat a trip as "escalate to the shared
// FailureCounter", not as a request-admission gate (mayBesend is
// governed solely by FailureCounter.IsTko, never by this local breaker).
type softFailureTally struct {
	threshold int
	poolName  string
	log       logging.Logger
	gb        *gobreaker.TwoStepCircuitBreaker
	tripped   atomic.Bool
}

func newSoftFailureTally(threshold int, poolName string, log logging.Logger) *softFailureTally {
	if threshold <= 0 {
		threshold = 1
	}
	t := &softFailureTally{threshold: threshold, poolName: poolName, log: log}
	t.gb = gobreaker.NewTwoStepCircuitBreaker(gobreaker.Settings{
		Name:        poolName,
		MaxRequests: 1,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return int(c.ConsecutiveFailures) >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if to == gobreaker.StateOpen {
				t.tripped.Store(true)
			}
			if log != nil {
				log.Debugf("soft-failure tally %v: %v -> %v", name, from, to)
			}
		},
	})
	return t
}

// fail records one consecutive soft failure and reports whether this
// call is the one that crossed the configured threshold.
func (t *softFailureTally) fail() (crossed bool) {
	done, err := t.gb.Allow()
	if err != nil {
		// already open from an earlier trip; nothing new to escalate
		return false
	}
	done(false)
	return t.tripped.Swap(false)
}

// success resets the consecutive-failure count, mirroring
// FailureCounter.recordSuccess's "reset only d's private tally" branch.
func (t *softFailureTally) success() {
	done, err := t.gb.Allow()
	if err != nil {
		// breaker is open; Destination decides whether to clear TKO via
		// FailureCounter and then re-arms the tally with reset().
		return
	}
	done(true)
}

// reset forces the tally back to a clean, closed state, used after the
// shared FailureCounter has been cleared to Healthy so the next soft
// error starts counting from zero again. Rebuilds the breaker in place
// rather than copying the struct, since softFailureTally embeds an
// atomic.Bool.
func (t *softFailureTally) reset() {
	fresh := newSoftFailureTally(t.threshold, t.poolName, t.log)
	t.gb = fresh.gb
	t.tripped.Store(false)
}
