package destination

import "sync"

// SharedEndpointState is the object every Destination for one access
// point shares: a single FailureCounter plus the endpoint-scoped key
// used in stats and event-log records (spec §3).
type SharedEndpointState struct {
	AccessPoint string
	Counter     *FailureCounter

	mu    sync.Mutex
	alive map[*Destination]struct{}
}

// NewSharedEndpointState creates the shared state for one access point.
func NewSharedEndpointState(accessPoint string, hardThreshold, softThreshold int64) *SharedEndpointState {
	return &SharedEndpointState{
		AccessPoint: accessPoint,
		Counter:     NewFailureCounter(hardThreshold, softThreshold),
		alive:       make(map[*Destination]struct{}),
	}
}

// register publishes d as observing this endpoint (spec §3: "published
// to the FailureCounter list on construction").
func (s *SharedEndpointState) register(d *Destination) {
	s.mu.Lock()
	s.alive[d] = struct{}{}
	s.mu.Unlock()
}

// unregister removes d and, if it was the responsible destination for
// an in-progress TKO episode, releases the shared pointer so it never
// outlives the Destination (spec §8 property 7).
func (s *SharedEndpointState) unregister(d *Destination) {
	s.mu.Lock()
	delete(s.alive, d)
	s.mu.Unlock()
	s.Counter.releaseIfResponsible(d)
}

// Observers returns the number of live Destinations sharing this
// endpoint; tests use it to check that Close deregisters a Destination.
func (s *SharedEndpointState) Observers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.alive)
}
