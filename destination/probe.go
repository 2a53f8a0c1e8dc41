package destination

import (
	"math/rand"
	"sync"
	"time"
)

const (
	probeExponentialFactor = 1.5
	probeJitterMin         = 0.05
	probeJitterMax         = 0.50
)

// probeSender is the single thing the scheduler asks a Destination to
// do: send a synthetic version request and feed the reply back through
// the TKO classifier with isProbeReq=true.
type probeSender interface {
	sendProbe()
}

// ProbeScheduler implements spec §4.2: a single-shot, self-rescheduling
// backoff timer with at most one in-flight probe and at most one armed
// timer at any time.
//
// Unlike the original's asox_timer_t + fiber task, this uses a plain
// time.AfterFunc timer and a mutex instead of weak pointers: Stop() and
// Close() are idempotent, and the timer callback checks the closed and
// sending flags under the mutex before sending. A callback that has
// already passed that check when Close runs still calls sendProbe, which
// Destination.sendProbe detects and reports (invariants.go).
type ProbeScheduler struct {
	initialMs int64
	maxMs     int64
	rng       *rand.Rand
	sender    probeSender

	mu            sync.Mutex
	sendingProbes bool
	nextDelayMs   int64
	timer         *time.Timer
	probeInFlight bool
	probesSent    int64
	closed        bool
}

// NewProbeScheduler creates a scheduler bounded to [initialMs, maxMs].
// rng may be nil, in which case a process-default source is used; tests
// should inject a seeded *rand.Rand for determinism (spec §9).
func NewProbeScheduler(initialMs, maxMs int64, sender probeSender, rng *rand.Rand) *ProbeScheduler {
	if initialMs <= 0 {
		initialMs = 1
	}
	if maxMs < initialMs {
		maxMs = initialMs
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &ProbeScheduler{initialMs: initialMs, maxMs: maxMs, sender: sender, rng: rng}
}

// Sending reports whether the scheduler currently believes it should be
// issuing probes.
func (p *ProbeScheduler) Sending() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sendingProbes
}

// ProbesSent returns the number of probes issued in the current TKO
// episode.
func (p *ProbeScheduler) ProbesSent() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.probesSent
}

// Start begins a new probe episode: resets the delay to the configured
// initial value and schedules the first probe. It is an error to call
// Start while already sending; callers (Destination) only do so right
// after winning the FailureCounter election.
func (p *ProbeScheduler) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.sendingProbes || p.closed {
		return
	}

	p.sendingProbes = true
	p.nextDelayMs = p.initialMs
	p.scheduleLocked(false)
}

// Stop ends the current episode: clears the flag, zeroes probesSent,
// and cancels any pending timer. Idempotent.
func (p *ProbeScheduler) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
}

func (p *ProbeScheduler) stopLocked() {
	p.sendingProbes = false
	p.probesSent = 0
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
}

// Close permanently disables the scheduler, used from Destination's
// teardown path so no timer fired concurrently with destruction can
// re-arm itself.
func (p *ProbeScheduler) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
	p.closed = true
}

// scheduleLocked arms the timer for nextDelayMs. With advance set, the
// delay is first grown by the backoff rule; Start passes false so the
// first probe of an episode waits the initial delay and nextDelayMs
// still reads as the initial value afterwards.
func (p *ProbeScheduler) scheduleLocked(advance bool) {
	if advance {
		p.nextDelayAndAdvanceLocked()
	}
	delay := p.nextDelayMs
	jitter := probeJitterMin + p.rng.Float64()*(probeJitterMax-probeJitterMin)
	wait := time.Duration(float64(delay) * (1.0 + jitter) * float64(time.Millisecond))

	p.timer = time.AfterFunc(wait, p.onTimer)
}

// nextDelayAndAdvanceLocked returns the current nextDelayMs and advances
// it for the next probe, implementing the exact growth rule from the
// original:
// delayNextMs <- min(max, delayNextMs * 1.5), with any sub-2 value
// lifted to 2 first so growth from the initial 1ms cannot stall.
func (p *ProbeScheduler) nextDelayAndAdvanceLocked() int64 {
	delay := p.nextDelayMs

	next := p.nextDelayMs
	if next < 2 {
		next = 2
	} else {
		next = int64(float64(next) * probeExponentialFactor)
	}
	if next > p.maxMs {
		next = p.maxMs
	}
	p.nextDelayMs = next

	return delay
}

func (p *ProbeScheduler) onTimer() {
	p.mu.Lock()

	if p.closed || !p.sendingProbes {
		p.mu.Unlock()
		return
	}

	p.timer = nil

	if !p.probeInFlight {
		p.probeInFlight = true
		p.probesSent++
		p.mu.Unlock()

		// sendProbe suspends at the wire boundary (the only suspension
		// point spec §5 allows); it must not hold p.mu while blocked.
		p.sender.sendProbe()

		p.mu.Lock()
		p.probeInFlight = false
	}

	if p.sendingProbes && !p.closed {
		p.scheduleLocked(true)
	}
	p.mu.Unlock()
}
