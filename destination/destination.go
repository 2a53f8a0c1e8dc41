package destination

import (
	"math/rand"
	"sync"
	"time"

	"github.com/seem-sky/mcrouter/logging"
	"github.com/seem-sky/mcrouter/metrics"
)

// probeRequest is the synthetic request sent by sendProbe. Its Kind is
// never inspected; only the reply matters to the classifier.
var probeRequest = Reply{Result: "version"}

// defaultProbeTimeoutMs is used when no real request has ever set a
// shortest timeout (spec §4.2: "timeout = current shortest write
// timeout", which is otherwise unset for a brand new Destination).
const defaultProbeTimeoutMs = 1000

// Destination is the per-worker object owning one logical connection to
// one backend endpoint (spec §4.3). It glues together the shared
// FailureCounter (via SharedEndpointState), the per-Destination
// ProbeScheduler and soft-failure tally, and the lazily-created
// ConnectionHandle.
type Destination struct {
	shared *SharedEndpointState
	conn   *ConnectionHandle
	probes *ProbeScheduler
	soft   *softFailureTally

	sink    EventSink
	log     logging.Logger
	metrics metrics.Metrics
	gauges  *stateGauges

	latencyWindowSize  int
	disableTkoTracking bool
	poolName           string

	// activity is called on every real (non-probe) reply, letting a
	// DestinationRegistry track last-use time for the idle-reset sweep
	// (spec §4.5).
	activity func()

	mu                sync.Mutex
	localState        LocalState
	resetting         bool
	closed            bool
	shortestTimeoutMs int64
	perResult         map[string]int64
	avgLatencyMs      float64
}

// NewDestination constructs a Destination in local state New, publishes
// it to shared's observer list and the process-wide gauges, and returns
// it ready to receive traffic. rng may be nil (see ProbeScheduler).
func NewDestination(shared *SharedEndpointState, conn *ConnectionHandle, cfg Config, sink EventSink, log logging.Logger, m metrics.Metrics, gauges *stateGauges, rng *rand.Rand) *Destination {
	if log == nil {
		log = logging.Default
	}
	if sink == nil {
		sink = LoggingEventSink{Log: log}
	}
	if m == nil {
		m = metrics.Void{}
	}
	if gauges == nil {
		gauges = newStateGauges(m)
	}

	d := &Destination{
		shared:             shared,
		conn:               conn,
		sink:               sink,
		log:                log,
		metrics:            m,
		gauges:             gauges,
		latencyWindowSize:  cfg.LatencyWindowSize,
		disableTkoTracking: cfg.DisableTKOTracking,
		poolName:           cfg.PoolName,
		perResult:          make(map[string]int64),
	}
	if d.latencyWindowSize <= 0 {
		d.latencyWindowSize = 100
	}

	d.probes = NewProbeScheduler(cfg.ProbeDelayInitialMs, cfg.ProbeDelayMaxMs, d, rng)
	d.soft = newSoftFailureTally(int(cfg.SoftTKOThreshold), cfg.PoolName, log)

	shared.register(d)
	d.gauges.publish(New)

	return d
}

// SetActivityHook installs the callback a DestinationRegistry uses to
// track last-use time. Unexported callers only; a registry constructs
// its destinations itself.
func (d *Destination) SetActivityHook(f func()) {
	d.mu.Lock()
	d.activity = f
	d.mu.Unlock()
}

// MayBesend reports whether the endpoint is not currently TKO. Pure
// read against the shared classifier (spec §4.3).
func (d *Destination) MayBesend() bool {
	return !d.shared.Counter.IsTko()
}

// State returns the observed state: Tko overlays the local state
// whenever the shared classifier says the endpoint is taken out.
func (d *Destination) State() ObservedState {
	if d.shared.Counter.IsTko() {
		return ObservedTko
	}
	d.mu.Lock()
	ls := d.localState
	d.mu.Unlock()
	switch ls {
	case Up:
		return ObservedUp
	case Down:
		return ObservedDown
	case Closed:
		return ObservedClosed
	default:
		return ObservedNew
	}
}

// Stats is the snapshot spec §6's upward interface exposes.
type Stats struct {
	State        ObservedState
	PerResult    map[string]int64
	AvgLatencyMs float64
	ProbesSent   int64
	Pending      int64
	Inflight     int64
	Batched      int64
	BatchTotal   int64
}

// Stats returns a snapshot of per-result counters, latency, probe count
// and the connection-handle observers (spec §6, supplemented batching
// stat from SPEC_FULL.md §4).
func (d *Destination) Stats() Stats {
	d.mu.Lock()
	perResult := make(map[string]int64, len(d.perResult))
	for k, v := range d.perResult {
		perResult[k] = v
	}
	avg := d.avgLatencyMs
	d.mu.Unlock()

	batched, total := d.conn.BatchingStat()

	return Stats{
		State:        d.State(),
		PerResult:    perResult,
		AvgLatencyMs: avg,
		ProbesSent:   d.probes.ProbesSent(),
		Pending:      d.conn.PendingRequestCount(),
		Inflight:     d.conn.InflightRequestCount(),
		Batched:      batched,
		BatchTotal:   total,
	}
}

// Send forwards req through the lazily-constructed ConnectionHandle and
// feeds the reply back through OnReply, implementing the "if mayBesend,
// forward through ConnectionHandle" half of the data flow (spec §2).
// Routing code is expected to call MayBesend first; Send does not
// enforce it, so a caller that wants to bypass TKO (e.g. a probe-like
// diagnostic) is free to.
func (d *Destination) Send(req Reply) (Reply, error) {
	start := time.Now()

	client, err := d.conn.Ensure(d.onUp, d.onDown)
	if err != nil {
		return Reply{}, err
	}

	d.mu.Lock()
	timeout := d.shortestTimeoutMs
	d.mu.Unlock()
	if timeout <= 0 {
		timeout = defaultProbeTimeoutMs
	}

	reply, err := client.SendSync(req, timeout)
	if err != nil {
		reply = connectErrorReply()
	}
	d.OnReply(reply, time.Since(start))
	return reply, err
}

// OnReply is the upward entry point for every real reply a routed
// request receives (spec §4.3). elapsed feeds the latency EWMA;
// probe replies never go through here, see sendProbe.
func (d *Destination) OnReply(reply Reply, elapsed time.Duration) {
	d.mu.Lock()
	d.perResult[reply.Result]++
	ms := float64(elapsed.Microseconds()) / 1000.0
	if d.avgLatencyMs == 0 {
		d.avgLatencyMs = ms
	} else {
		alpha := 1.0 / float64(d.latencyWindowSize)
		d.avgLatencyMs = d.avgLatencyMs*(1-alpha) + ms*alpha
	}
	activity := d.activity
	d.mu.Unlock()

	if activity != nil {
		activity()
	}

	d.handleTko(reply, false)
}

// handleTko is the TKO classification step shared by OnReply and probe
// replies (spec §4.3).
func (d *Destination) handleTko(reply Reply, isProbeReq bool) {
	d.mu.Lock()
	skip := d.resetting || d.disableTkoTracking
	d.mu.Unlock()
	if skip {
		return
	}

	switch reply.Kind {
	case ResultHardTKOError:
		if d.shared.Counter.RecordHardFailure(d) {
			d.emitEvent(MarkHardTko, reply)
			d.probes.Start()
		}
	case ResultSoftTKOError:
		if d.soft.fail() {
			if d.shared.Counter.RecordSoftFailure(d) {
				d.emitEvent(MarkSoftTko, reply)
				d.probes.Start()
			}
		}
	case ResultOK:
		if !d.probes.Sending() || isProbeReq {
			d.unmarkTko(reply)
		}
	}
	// ResultOther never touches the classifier (spec §7).
}

// unmarkTko records a success against the shared classifier and, if this
// destination was probing, stops the scheduler and emits UnMarkTko.
func (d *Destination) unmarkTko(reply Reply) {
	wasSending := d.probes.Sending()
	d.shared.Counter.RecordSuccess(d)
	d.soft.reset()
	if wasSending {
		d.probes.Stop()
		d.emitEvent(UnMarkTko, reply)
	}
}

func (d *Destination) emitEvent(event TkoEvent, reply Reply) {
	global := d.shared.Counter.GlobalTkos()
	d.mu.Lock()
	avg := d.avgLatencyMs
	d.mu.Unlock()

	d.sink.OnTkoEvent(TkoLog{
		AccessPoint: d.shared.AccessPoint,
		Event:       event,
		IsHardTko:   d.shared.Counter.IsHardTko(),
		IsSoftTko:   d.shared.Counter.IsSoftTko(),
		GlobalTkos:  global,
		AvgLatency:  avg,
		ProbesSent:  d.probes.ProbesSent(),
		PoolName:    d.poolName,
		Result:      reply.Result,
	})
}

// sendProbe implements probeSender: it issues a synthetic version
// request at the current shortest timeout and feeds the reply back
// through handleTko marked isProbeReq=true (spec §4.2).
func (d *Destination) sendProbe() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		// The timer fired after Close had already stopped the scheduler
		// and torn down the connection; ProbeScheduler.Close races against
		// an onTimer that already escaped its own lock (spec §5, §9).
		d.reportInvariantViolation("probe fired after Close")
		return
	}
	timeout := d.shortestTimeoutMs
	d.mu.Unlock()
	if timeout <= 0 {
		timeout = defaultProbeTimeoutMs
	}

	client, err := d.conn.Ensure(d.onUp, d.onDown)
	if err != nil {
		d.log.Warnf("probe for %s: %v", d.shared.AccessPoint, err)
		d.handleTko(connectErrorReply(), true)
		return
	}

	reply, err := client.SendSync(probeRequest, timeout)
	if err != nil {
		reply = connectErrorReply()
	}
	d.handleTko(reply, true)
}

// ResetInactive is the idempotent forced teardown used by the registry's
// idle-GC sweep and by manual callers (spec §4.3). No failure is fed to
// the classifier and no TKO event is emitted.
func (d *Destination) ResetInactive() {
	d.mu.Lock()
	if d.resetting {
		d.mu.Unlock()
		return
	}
	d.resetting = true
	d.mu.Unlock()

	d.conn.Reset()

	d.mu.Lock()
	d.setLocalStateLocked(Closed)
	d.resetting = false
	d.mu.Unlock()
}

// UpdateShortestTimeout keeps the effective write timeout at
// min(current, t); t = 0 is a no-op (spec §8 property 6).
func (d *Destination) UpdateShortestTimeout(ms int64) {
	if ms <= 0 {
		return
	}

	d.mu.Lock()
	next := ms
	if d.shortestTimeoutMs != 0 && d.shortestTimeoutMs < next {
		next = d.shortestTimeoutMs
	}
	if next == d.shortestTimeoutMs {
		d.mu.Unlock()
		return
	}
	d.shortestTimeoutMs = next
	d.mu.Unlock()

	d.conn.UpdateWriteTimeout(next)
}

// onUp is wired into ConnectionHandle as the up-status callback.
func (d *Destination) onUp() {
	d.mu.Lock()
	d.setLocalStateLocked(Up)
	d.mu.Unlock()
}

// onDown is wired into ConnectionHandle as the down-status callback. A
// down observed during a deliberate reset is reclassified as Closed and
// never reaches the classifier (spec §4.3, §9).
func (d *Destination) onDown(err error) {
	d.mu.Lock()
	if d.resetting {
		d.setLocalStateLocked(Closed)
		d.mu.Unlock()
		return
	}
	d.setLocalStateLocked(Down)
	d.mu.Unlock()

	d.handleTko(connectErrorReply(), false)
}

// setLocalStateLocked must be called with d.mu held. It moves exactly
// two gauges by ±1, or none if the state does not actually change
// (needed for resetInactive's idempotence, spec §8).
func (d *Destination) setLocalStateLocked(s LocalState) {
	if d.localState == s {
		return
	}
	d.gauges.move(d.localState, s, true, true)
	d.localState = s
}

// Close permanently tears the Destination down: cancels the probe
// scheduler, closes the connection, deregisters from the shared endpoint
// state (releasing responsibility if held), and retires its gauge. If
// removedFromConfig is true and a probe episode was in progress, emits
// RemoveFromConfig (supplemented feature, SPEC_FULL.md §4); a plain
// idle teardown never emits an event.
func (d *Destination) Close(removedFromConfig bool) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.mu.Unlock()

	sendingAtClose := d.probes.Sending()
	d.probes.Close()

	if removedFromConfig && sendingAtClose {
		d.emitEvent(RemoveFromConfig, Reply{})
	}

	d.conn.Reset()
	d.shared.unregister(d)

	d.mu.Lock()
	d.setLocalStateLocked(Closed)
	final := d.localState
	d.mu.Unlock()

	d.gauges.retire(final)
}
