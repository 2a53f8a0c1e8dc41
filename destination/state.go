package destination

import (
	"sync/atomic"

	"github.com/seem-sky/mcrouter/metrics"
)

// LocalState is the Destination's own view of its connection lifecycle,
// before the TKO overlay (spec §3).
type LocalState int

const (
	New LocalState = iota
	Up
	Down
	Closed
)

func (s LocalState) String() string {
	switch s {
	case New:
		return "New"
	case Up:
		return "Up"
	case Down:
		return "Down"
	case Closed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// ObservedState is what spec §6's upward interface reports: LocalState
// overlaid with Tko whenever the shared FailureCounter says so.
type ObservedState int

const (
	ObservedNew ObservedState = iota
	ObservedUp
	ObservedDown
	ObservedClosed
	ObservedTko
)

func (s ObservedState) String() string {
	switch s {
	case ObservedNew:
		return "New"
	case ObservedUp:
		return "Up"
	case ObservedDown:
		return "Down"
	case ObservedClosed:
		return "Closed"
	case ObservedTko:
		return "Tko"
	default:
		return "Unknown"
	}
}

const (
	gaugeNumServersNew    = "num_servers_new"
	gaugeNumServersUp     = "num_servers_up"
	gaugeNumServersDown   = "num_servers_down"
	gaugeNumServersClosed = "num_servers_closed"
)

// stateGauges maintains exactly one aggregate counter per LocalState,
// process-wide (spec §6): every transition increments the new one and
// decrements the old one, never both, never neither. A *stateGauges can
// be shared across several DestinationRegistry instances (one per
// router worker) that all want to contribute to the same published
// totals; by default each registry owns its own.
type stateGauges struct {
	counts  [4]atomic.Int64
	metrics metrics.Metrics
}

func newStateGauges(m metrics.Metrics) *stateGauges {
	if m == nil {
		m = metrics.Void{}
	}
	return &stateGauges{metrics: m}
}

func (g *stateGauges) key(s LocalState) string {
	switch s {
	case New:
		return gaugeNumServersNew
	case Up:
		return gaugeNumServersUp
	case Down:
		return gaugeNumServersDown
	case Closed:
		return gaugeNumServersClosed
	default:
		return "num_servers_unknown"
	}
}

// move decrements from and increments to; hasFrom/hasTo false skips the
// corresponding half, which publish and retire use when a Destination is
// first created (only increment) or permanently removed (only decrement).
func (g *stateGauges) move(from, to LocalState, hasFrom, hasTo bool) {
	if hasFrom {
		v := g.counts[from].Add(-1)
		g.metrics.UpdateGauge(g.key(from), float64(v))
	}
	if hasTo {
		v := g.counts[to].Add(1)
		g.metrics.UpdateGauge(g.key(to), float64(v))
	}
}

// publish counts a newly-constructed Destination into s, with no prior
// state to retire.
func (g *stateGauges) publish(s LocalState) {
	g.move(s, s, false, true)
}

// retire removes a destroyed Destination's last local state from the
// live count entirely, so invariant 1 (sum over gauges equals the
// number of live Destinations) holds after Close.
func (g *stateGauges) retire(s LocalState) {
	g.move(s, s, true, false)
}

// Snapshot returns the current value of every gauge, for tests checking
// spec §8 invariant 1.
func (g *stateGauges) Snapshot() map[LocalState]int64 {
	return map[LocalState]int64{
		New:    g.counts[New].Load(),
		Up:     g.counts[Up].Load(),
		Down:   g.counts[Down].Load(),
		Closed: g.counts[Closed].Load(),
	}
}
