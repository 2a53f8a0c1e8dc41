package destination

import "sync"

// fakeClient is the in-memory stand-in for the wire-level memcache
// client (out of scope, spec §1). Tests script its replies and observe
// the callbacks ConnectionHandle wires into it.
type fakeClient struct {
	mu sync.Mutex

	onUp   func()
	onDown func(error)

	closed bool

	nextReply Reply
	nextErr   error

	sendCount      int
	maxInflight    int
	maxPending     int
	writeTimeoutMs int64

	batched int64
	total   int64
}

func newFakeClient(ConnectionOptions) (Client, error) {
	return &fakeClient{}, nil
}

func failingFakeClientFactory(err error) ClientFactory {
	return func(ConnectionOptions) (Client, error) {
		return nil, err
	}
}

func (c *fakeClient) SendSync(req Reply, timeoutMs int64) (Reply, error) {
	c.mu.Lock()
	c.sendCount++
	c.total++
	reply, err := c.nextReply, c.nextErr
	c.mu.Unlock()
	return reply, err
}

func (c *fakeClient) CloseNow() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func (c *fakeClient) SetStatusCallbacks(onUp func(), onDown func(error)) {
	c.mu.Lock()
	c.onUp = onUp
	c.onDown = onDown
	c.mu.Unlock()
}

func (c *fakeClient) SetThrottle(maxInflight, maxPending int) {
	c.mu.Lock()
	c.maxInflight = maxInflight
	c.maxPending = maxPending
	c.mu.Unlock()
}

func (c *fakeClient) UpdateWriteTimeout(ms int64) {
	c.mu.Lock()
	c.writeTimeoutMs = ms
	c.mu.Unlock()
}

func (c *fakeClient) PendingRequestCount() int64  { return 0 }
func (c *fakeClient) InflightRequestCount() int64 { return 0 }
func (c *fakeClient) BatchingStat() (int64, int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.batched, c.total
}

// setReply scripts the next SendSync response.
func (c *fakeClient) setReply(r Reply, err error) {
	c.mu.Lock()
	c.nextReply = r
	c.nextErr = err
	c.mu.Unlock()
}

// fireUp/fireDown simulate the async transport's own status callbacks,
// invoked the way a real client would from its own I/O goroutine.
func (c *fakeClient) fireUp() {
	c.mu.Lock()
	up := c.onUp
	c.mu.Unlock()
	if up != nil {
		up()
	}
}

func (c *fakeClient) fireDown(err error) {
	c.mu.Lock()
	down := c.onDown
	c.mu.Unlock()
	if down != nil {
		down(err)
	}
}
