package destination

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistryDestination(t *testing.T, r *DestinationRegistry, accessPoint string) (*Destination, *fakeClient) {
	t.Helper()

	var fc *fakeClient
	factory := func(opts ConnectionOptions) (Client, error) {
		fc = &fakeClient{}
		return fc, nil
	}
	conn := NewConnectionHandle(factory, ConnectionOptions{AccessPoint: accessPoint})

	cfg := Config{
		ProbeDelayInitialMs: 1,
		ProbeDelayMaxMs:     10,
		SoftTKOThreshold:    3,
		HardTKOThreshold:    1,
		LatencyWindowSize:   10,
	}

	d := r.CreateDestination(accessPoint, conn, cfg, nil, nil)
	_, err := conn.Ensure(d.onUp, d.onDown)
	require.NoError(t, err)
	return d, fc
}

func TestDestinationRegistrySharesEndpointStatePerAccessPoint(t *testing.T) {
	r := NewDestinationRegistry(0, nil, nil, nil)

	d1, _ := newTestRegistryDestination(t, r, "shared:11211")
	d2, _ := newTestRegistryDestination(t, r, "shared:11211")

	d1.onDown(fmt.Errorf("x"))

	assert.True(t, d2.MayBesend() == false, "expected the second destination on the same access point to observe the TKO")
}

func TestDestinationRegistryAllTkosAggregatesAcrossEndpoints(t *testing.T) {
	r := NewDestinationRegistry(0, nil, nil, nil)

	d1, _ := newTestRegistryDestination(t, r, "ep1:11211")
	d2, _ := newTestRegistryDestination(t, r, "ep2:11211")

	d1.onDown(fmt.Errorf("x"))
	d2.onDown(fmt.Errorf("x"))

	totals := r.AllTkos()
	assert.Equal(t, int64(2), totals.Hard)
}

func TestDestinationRegistryMarkAsActiveAndIdleSweep(t *testing.T) {
	r := NewDestinationRegistry(20*time.Millisecond, nil, nil, nil)
	d, fc := newTestRegistryDestination(t, r, "idle:11211")
	d.onUp()

	r.StartIdleSweep()
	defer r.StopIdleSweep()

	require.Eventually(t, func() bool {
		return d.State() == ObservedClosed
	}, time.Second, 5*time.Millisecond, "expected idle sweep to reset an unused destination")

	assert.True(t, fc.closed)
}

func TestDestinationRegistryMarkAsActiveKeepsDestinationAlive(t *testing.T) {
	r := NewDestinationRegistry(30*time.Millisecond, nil, nil, nil)
	d, _ := newTestRegistryDestination(t, r, "active:11211")
	d.onUp()

	r.StartIdleSweep()
	defer r.StopIdleSweep()

	deadline := time.Now().Add(150 * time.Millisecond)
	for time.Now().Before(deadline) {
		d.OnReply(Reply{Kind: ResultOK, Result: "ok"}, time.Millisecond)
		time.Sleep(10 * time.Millisecond)
	}

	assert.Equal(t, ObservedUp, d.State(), "expected a continually active destination to survive the idle sweep")
}

func TestDestinationRegistryDestroyEmitsRemoveFromConfig(t *testing.T) {
	r := NewDestinationRegistry(0, nil, nil, nil)
	sink := &capturingSink{}

	conn := NewConnectionHandle(newFakeClient, ConnectionOptions{AccessPoint: "gone:11211"})
	cfg := Config{ProbeDelayInitialMs: 1, ProbeDelayMaxMs: 10, SoftTKOThreshold: 3, HardTKOThreshold: 1, LatencyWindowSize: 10}
	d := r.CreateDestination("gone:11211", conn, cfg, sink, nil)
	_, err := conn.Ensure(d.onUp, d.onDown)
	require.NoError(t, err)

	d.onDown(fmt.Errorf("x"))

	r.DestroyDestination(d, true)

	found := false
	for _, e := range sink.events {
		if e.Event == RemoveFromConfig {
			found = true
		}
	}
	assert.True(t, found)
}
