package destination

import (
	"sync/atomic"
)

// classification is the TKO state of an endpoint. It is stored in a
// single atomic word so that the Healthy -> {Soft,Hard}Tko transition
// and the election of the responsible destination can be linearised
// with one compare-and-swap, the same way skipper's circuit.Registry
// guards its breaker lookup with one critical section rather than a
// read-then-write race.
type classification int32

const (
	classHealthy classification = iota
	classSoftTko
	classHardTko
)

// TkoCounts is a snapshot of the process-wide hard/soft TKO totals for
// one endpoint, returned by FailureCounter.GlobalTkos.
type TkoCounts struct {
	Hard int64
	Soft int64
}

// responsible identifies a Destination without granting FailureCounter
// ownership over it: the Go-idiomatic substitute for the original's
// weak_ptr<ProxyDestination>. A Destination clears itself here on
// Close(), which is the single point a caller can race against, guarded
// by the same atomic.Pointer CAS used for the election itself.
type responsible = *Destination

// FailureCounter implements the shared, multi-observer TKO classifier
// described in spec §3/§4.1. Exactly one FailureCounter exists per
// endpoint; every Destination for that endpoint (one per router worker)
// holds a pointer to the same instance via SharedEndpointState.
//
// All mutating operations are lock-free: the classification and the
// responsible-destination pointer move together under a single CAS, so
// concurrent observers racing to cross a threshold are linearised by
// whichever one wins the CAS (first-CAS-wins, per spec §9's Open
// Question resolution).
type FailureCounter struct {
	hardThreshold int64
	softThreshold int64

	hardCount atomic.Int64
	softCount atomic.Int64

	class      atomic.Int32 // classification
	resp       atomic.Pointer[Destination]
	globalHard atomic.Int64
	globalSoft atomic.Int64
}

// NewFailureCounter creates a counter that trips HardTko after
// hardThreshold hard failures against Healthy. softThreshold is stored
// but not compared here: a single RecordSoftFailure trips SoftTko, and
// the consecutive soft-failure threshold is enforced by the caller's
// per-Destination tally (see RecordSoftFailure).
func NewFailureCounter(hardThreshold, softThreshold int64) *FailureCounter {
	if hardThreshold <= 0 {
		hardThreshold = 1
	}
	if softThreshold <= 0 {
		softThreshold = 1
	}
	return &FailureCounter{hardThreshold: hardThreshold, softThreshold: softThreshold}
}

// IsTko reports whether the endpoint is currently taken out, in either
// severity. Lock-free snapshot; stale reads are acceptable (spec §5).
func (c *FailureCounter) IsTko() bool {
	return classification(c.class.Load()) != classHealthy
}

// IsHardTko reports the HardTko classification specifically.
func (c *FailureCounter) IsHardTko() bool {
	return classification(c.class.Load()) == classHardTko
}

// IsSoftTko reports the SoftTko classification specifically.
func (c *FailureCounter) IsSoftTko() bool {
	return classification(c.class.Load()) == classSoftTko
}

// GlobalTkos returns the running hard/soft TKO totals for this endpoint.
func (c *FailureCounter) GlobalTkos() TkoCounts {
	return TkoCounts{Hard: c.globalHard.Load(), Soft: c.globalSoft.Load()}
}

// RecordHardFailure increments the hard-failure count for d and returns
// true iff this call is the one that makes d the responsible
// destination for a (possibly upgraded) HardTko classification.
//
//   - Healthy, crossing the threshold: elects d, returns true.
//   - SoftTko: upgrades to HardTko unconditionally (a hard failure
//     dominates a soft one), releases the previously-responsible
//     destination, elects d, returns true.
//   - HardTko already: returns false, d is not re-elected.
func (c *FailureCounter) RecordHardFailure(d *Destination) bool {
	c.hardCount.Add(1)

	for {
		cur := classification(c.class.Load())
		switch cur {
		case classHardTko:
			return false
		case classSoftTko:
			if c.class.CompareAndSwap(int32(classSoftTko), int32(classHardTko)) {
				c.resp.Store(d)
				c.globalHard.Add(1)
				return true
			}
			// someone else raced us into a different state; re-read and retry
			continue
		default: // classHealthy
			if c.hardCount.Load() < c.hardThreshold {
				return false
			}
			if c.class.CompareAndSwap(int32(classHealthy), int32(classHardTko)) {
				c.resp.Store(d)
				c.globalHard.Add(1)
				return true
			}
			continue
		}
	}
}

// RecordSoftFailure is the soft-severity analogue of RecordHardFailure,
// except the consecutive-failure threshold is owned entirely by the
// caller's per-Destination tally (localtally.go): RecordSoftFailure is
// only ever invoked once that tally has already crossed its threshold,
// so here a single call trips the transition from Healthy. softCount is
// kept purely for visibility (it is never compared against
// softThreshold). Once the endpoint is already SoftTko or HardTko a
// further soft failure is a no-op on classification.
func (c *FailureCounter) RecordSoftFailure(d *Destination) bool {
	c.softCount.Add(1)

	for {
		cur := classification(c.class.Load())
		if cur != classHealthy {
			return false
		}
		if c.class.CompareAndSwap(int32(classHealthy), int32(classSoftTko)) {
			c.resp.Store(d)
			c.globalSoft.Add(1)
			return true
		}
	}
}

// RecordSuccess clears TKO if d is the responsible destination,
// otherwise it is a no-op on the shared classification (the caller is
// still responsible for resetting its own private consecutive tally).
func (c *FailureCounter) RecordSuccess(d *Destination) {
	if c.resp.Load() != d {
		return
	}

	// Only the responsible destination can clear; guard against a
	// concurrent resurrection by another racing success with the same
	// CAS discipline used for the election itself.
	if c.resp.CompareAndSwap(d, nil) {
		c.class.Store(int32(classHealthy))
		c.hardCount.Store(0)
		c.softCount.Store(0)
	}
}

// releaseIfResponsible clears the responsible pointer if it currently
// points at d, without touching the classification. Used when d is
// destroyed while still responsible for an in-progress TKO episode, so
// a stale pointer never outlives the Destination (spec §8 property 7).
func (c *FailureCounter) releaseIfResponsible(d *Destination) {
	c.resp.CompareAndSwap(d, nil)
}
