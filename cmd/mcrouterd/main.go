// mcrouterd is a small demo binary exercising the destination
// health/failure-detection core against an in-memory fake memcache
// client. It is not a full router: there is no routing tree, no wire
// protocol, and no real network I/O. Point it at a handful of fake
// access points and watch it mark the first one down and probe it; the
// simulated error is never cleared, so that access point stays taken
// out until the demo exits.
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/seem-sky/mcrouter/destination"
	"github.com/seem-sky/mcrouter/logging"
	"github.com/seem-sky/mcrouter/metrics"
)

const (
	defaultAccessPoints = "10.0.0.1:11211,10.0.0.2:11211,10.0.0.3:11211"
	accessPointsUsage   = "comma-separated list of fake access points to simulate"
	idleResetUsage      = "idle-reset sweep interval, 0 disables it"
	failAfterUsage      = "simulate a connect error on the first access point from this round on (rounds count from 1)"
)

var (
	accessPoints string
	idleReset    time.Duration
	failAfter    int
)

func init() {
	flag.StringVar(&accessPoints, "access-points", defaultAccessPoints, accessPointsUsage)
	flag.DurationVar(&idleReset, "idle-reset", 0, idleResetUsage)
	flag.IntVar(&failAfter, "fail-after", 3, failAfterUsage)
	flag.Parse()
}

// demoClient is a minimal destination.Client that always succeeds,
// except the one the caller tells it to fail.
type demoClient struct {
	failing bool
}

func (c *demoClient) SendSync(req destination.Reply, timeoutMs int64) (destination.Reply, error) {
	if c.failing {
		return destination.Reply{}, fmt.Errorf("simulated connect error")
	}
	return destination.Reply{Kind: destination.ResultOK, Result: "ok"}, nil
}

func (c *demoClient) CloseNow()                                          {}
func (c *demoClient) SetStatusCallbacks(onUp func(), onDown func(error)) {}
func (c *demoClient) SetThrottle(maxInflight, maxPending int)            {}
func (c *demoClient) UpdateWriteTimeout(ms int64)                        {}
func (c *demoClient) PendingRequestCount() int64                        { return 0 }
func (c *demoClient) InflightRequestCount() int64                       { return 0 }
func (c *demoClient) BatchingStat() (int64, int64)                      { return 0, 0 }

func main() {
	logger := logging.New()
	m := metrics.NewPrometheus(metrics.Options{})
	registry := destination.NewDestinationRegistry(idleReset, logger, m, nil)
	registry.StartIdleSweep()
	defer registry.StopIdleSweep()

	cfg := destination.Config{
		ProbeDelayInitialMs: 5,
		ProbeDelayMaxMs:     5_000,
		SoftTKOThreshold:    3,
		HardTKOThreshold:    1,
		LatencyWindowSize:   50,
	}
	cfg.SetDefaults()

	clients := make(map[string]*demoClient)
	dests := make(map[string]*destination.Destination)

	for _, ap := range strings.Split(accessPoints, ",") {
		ap := ap
		c := &demoClient{}
		clients[ap] = c

		factory := func(destination.ConnectionOptions) (destination.Client, error) {
			return c, nil
		}
		conn := destination.NewConnectionHandle(factory, destination.ConnectionOptions{AccessPoint: ap})
		sink := destination.LoggingEventSink{Log: logger}
		dests[ap] = registry.CreateDestination(ap, conn, cfg, sink, rand.New(rand.NewSource(time.Now().UnixNano())))
	}

	first := strings.Split(accessPoints, ",")[0]

	for round := 1; ; round++ {
		for ap, d := range dests {
			if round == failAfter && ap == first {
				clients[ap].failing = true
				logger.Warnf("simulating connect error on %s", ap)
			}
			if !d.MayBesend() {
				continue
			}
			if _, err := d.Send(destination.Reply{Result: "get"}); err != nil {
				logger.Debugf("%s: %v", ap, err)
			}
		}
		time.Sleep(200 * time.Millisecond)
		if round > failAfter+20 {
			break
		}
	}

	for ap, d := range dests {
		stats := d.Stats()
		logger.Infof("%s: state=%v probesSent=%d avgLatencyMs=%.2f", ap, stats.State, stats.ProbesSent, stats.AvgLatencyMs)
	}

	for _, d := range dests {
		registry.DestroyDestination(d, true)
	}
}
