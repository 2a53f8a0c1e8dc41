package destination

import (
	"math/rand"
	"sync/atomic"
	"testing"
	"time"
)

type countingSender struct {
	calls atomic.Int64
	done  chan struct{}
}

func (s *countingSender) sendProbe() {
	s.calls.Add(1)
	if s.done != nil {
		select {
		case s.done <- struct{}{}:
		default:
		}
	}
}

func TestProbeSchedulerStartStopIsClean(t *testing.T) {
	s := &countingSender{}
	p := NewProbeScheduler(1, 10, s, rand.New(rand.NewSource(1)))

	p.Start()
	if !p.Sending() {
		t.Fatal("expected sending after Start")
	}
	p.Stop()

	if p.Sending() {
		t.Fatal("expected not sending after Stop")
	}
	if p.ProbesSent() != 0 {
		t.Fatal("expected probesSent reset to 0 after Stop")
	}
}

func TestProbeSchedulerDelaySequence(t *testing.T) {
	p := NewProbeScheduler(1, 10, &countingSender{}, rand.New(rand.NewSource(1)))
	p.nextDelayMs = p.initialMs

	want := []int64{1, 2, 3, 4, 6, 9, 10, 10}
	got := make([]int64, 0, len(want))
	for range want {
		got = append(got, p.nextDelayAndAdvanceLocked())
	}

	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("delay sequence mismatch at index %d: want %v, got %v", i, want, got)
		}
	}
}

func TestProbeSchedulerAtMostOneInFlight(t *testing.T) {
	sender := &countingSender{done: make(chan struct{}, 1)}
	p := NewProbeScheduler(1, 2, sender, rand.New(rand.NewSource(2)))

	p.Start()
	defer p.Stop()

	select {
	case <-sender.done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for first probe")
	}

	select {
	case <-sender.done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for second probe")
	}

	// Never more than one call observed concurrently; calls is simply
	// monotonically increasing and each signal corresponds to exactly
	// one completed sendProbe, since sendProbe is synchronous here.
	if sender.calls.Load() < 2 {
		t.Fatalf("expected at least 2 probes sent, got %d", sender.calls.Load())
	}
}

func TestProbeSchedulerRestartResetsDelay(t *testing.T) {
	p := NewProbeScheduler(1, 100, &countingSender{}, rand.New(rand.NewSource(3)))

	p.Start()
	p.nextDelayAndAdvanceLocked()
	p.nextDelayAndAdvanceLocked()
	p.Stop()

	p.Start()
	p.mu.Lock()
	delay := p.nextDelayMs
	p.mu.Unlock()

	if delay != 1 {
		t.Fatalf("expected restart to reset delay to initial value 1, got %d", delay)
	}
	p.Stop()
}
