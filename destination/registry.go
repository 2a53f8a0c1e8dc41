package destination

import (
	"math/rand"
	"sync"
	"time"

	"github.com/seem-sky/mcrouter/logging"
	"github.com/seem-sky/mcrouter/metrics"
)

// DestinationRegistry is the per-worker map of live destinations (spec
// §4.5). It owns the SharedEndpointState for every access point it has
// seen from this worker, marks destinations active on real use, and
// drives the idle-reset sweep (supplemented feature, SPEC_FULL.md §4).
type DestinationRegistry struct {
	log     logging.Logger
	metrics metrics.Metrics
	gauges  *stateGauges

	idleResetInterval time.Duration

	mu        sync.Mutex
	endpoints map[string]*SharedEndpointState
	lastUse   map[*Destination]time.Time

	sweepStop chan struct{}
	sweepDone chan struct{}
}

// NewDestinationRegistry creates an empty registry. gauges may be nil,
// in which case the registry owns its own set (pass the same *stateGauges
// to several registries to aggregate the totals across workers, see
// state.go).
func NewDestinationRegistry(idleResetInterval time.Duration, log logging.Logger, m metrics.Metrics, gauges *stateGauges) *DestinationRegistry {
	if log == nil {
		log = logging.Default
	}
	if m == nil {
		m = metrics.Void{}
	}
	if gauges == nil {
		gauges = newStateGauges(m)
	}
	return &DestinationRegistry{
		log:               log,
		metrics:           m,
		gauges:            gauges,
		idleResetInterval: idleResetInterval,
		endpoints:         make(map[string]*SharedEndpointState),
		lastUse:           make(map[*Destination]time.Time),
	}
}

// sharedState returns the SharedEndpointState for accessPoint, creating
// it on first use with the given thresholds. Later calls for the same
// access point ignore the threshold arguments and return the existing
// state, matching the "one FailureCounter per endpoint" invariant (spec
// §3) even if callers pass slightly different config across workers.
func (r *DestinationRegistry) sharedState(accessPoint string, hardThreshold, softThreshold int64) *SharedEndpointState {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.endpoints[accessPoint]
	if !ok {
		s = NewSharedEndpointState(accessPoint, hardThreshold, softThreshold)
		r.endpoints[accessPoint] = s
	}
	return s
}

// CreateDestination builds a Destination for accessPoint, wiring it to
// this registry's activity tracking and gauges.
func (r *DestinationRegistry) CreateDestination(accessPoint string, conn *ConnectionHandle, cfg Config, sink EventSink, rng *rand.Rand) *Destination {
	shared := r.sharedState(accessPoint, cfg.HardTKOThreshold, cfg.SoftTKOThreshold)

	d := NewDestination(shared, conn, cfg, sink, r.log, r.metrics, r.gauges, rng)
	d.SetActivityHook(func() { r.markAsActive(d) })

	r.mu.Lock()
	r.lastUse[d] = time.Now()
	r.mu.Unlock()

	return d
}

// markAsActive records that d served a real request just now, so the
// idle-reset sweep leaves it alone.
func (r *DestinationRegistry) markAsActive(d *Destination) {
	r.mu.Lock()
	r.lastUse[d] = time.Now()
	r.mu.Unlock()
}

// DestroyDestination deregisters d from the registry and closes it.
// removedFromConfig distinguishes "the backend left the router's
// configuration" from a plain shutdown; only the former, combined with
// an in-progress probe episode, produces a RemoveFromConfig event (see
// Destination.Close).
func (r *DestinationRegistry) DestroyDestination(d *Destination, removedFromConfig bool) {
	r.mu.Lock()
	delete(r.lastUse, d)
	r.mu.Unlock()

	d.Close(removedFromConfig)
}

// AllTkos aggregates GlobalTkos across every endpoint this registry has
// ever created a SharedEndpointState for, matching the original
// mcrouter's process-wide AllTkos() (SPEC_FULL.md §4).
func (r *DestinationRegistry) AllTkos() TkoCounts {
	r.mu.Lock()
	defer r.mu.Unlock()

	var total TkoCounts
	for _, s := range r.endpoints {
		c := s.Counter.GlobalTkos()
		total.Hard += c.Hard
		total.Soft += c.Soft
	}
	return total
}

// GaugeSnapshot exposes the registry's per-local-state live counts.
func (r *DestinationRegistry) GaugeSnapshot() map[LocalState]int64 {
	return r.gauges.Snapshot()
}

// StartIdleSweep launches the idle-reset goroutine if IdleResetInterval
// is positive; otherwise it is a no-op (spec: zero disables the sweep).
// Idempotent: a second call while a sweep is already running is a no-op.
func (r *DestinationRegistry) StartIdleSweep() {
	if r.idleResetInterval <= 0 {
		return
	}

	r.mu.Lock()
	if r.sweepStop != nil {
		r.mu.Unlock()
		return
	}
	r.sweepStop = make(chan struct{})
	r.sweepDone = make(chan struct{})
	stop := r.sweepStop
	done := r.sweepDone
	r.mu.Unlock()

	go r.runSweep(stop, done)
}

func (r *DestinationRegistry) runSweep(stop, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(r.idleResetInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			r.sweepOnce(now)
		}
	}
}

func (r *DestinationRegistry) sweepOnce(now time.Time) {
	r.mu.Lock()
	idle := make([]*Destination, 0)
	for d, last := range r.lastUse {
		if now.Sub(last) >= r.idleResetInterval {
			idle = append(idle, d)
		}
	}
	r.mu.Unlock()

	for _, d := range idle {
		d.ResetInactive()
	}
}

// StopIdleSweep stops a running sweep goroutine, if any, and waits for
// it to exit.
func (r *DestinationRegistry) StopIdleSweep() {
	r.mu.Lock()
	stop := r.sweepStop
	done := r.sweepDone
	r.sweepStop = nil
	r.sweepDone = nil
	r.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done
}
