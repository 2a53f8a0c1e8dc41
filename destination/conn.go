package destination

import (
	"crypto/tls"
	"fmt"
)

// Client is the wire-level memcache client this module drives but does
// not implement (spec §1: framing, multiplexing, TLS and keep-alive are
// out of scope). A real router wires in its own async client here; the
// fake used by this module's tests lives in destination/fake_client_test.go.
type Client interface {
	SendSync(req Reply, timeoutMs int64) (Reply, error)
	CloseNow()
	SetStatusCallbacks(onUp func(), onDown func(error))
	SetThrottle(maxInflight, maxPending int)
	UpdateWriteTimeout(ms int64)

	PendingRequestCount() int64
	InflightRequestCount() int64
	BatchingStat() (batched, total int64)
}

// ClientFactory constructs a Client for a ConnectionOptions set. Tests
// inject a fake; a real router supplies one backed by its async
// memcache transport.
type ClientFactory func(ConnectionOptions) (Client, error)

// TCPKeepAlive mirrors the original's tcpKeepAliveCount/Idle/Interval
// trio.
type TCPKeepAlive struct {
	Count     int
	IdleS     int
	IntervalS int
}

// TLSMaterial carries the three PEM paths. All three are mandatory when
// TLS is enabled; ConnectionOptions.validate enforces that.
type TLSMaterial struct {
	CertPath string
	KeyPath  string
	CAPath   string
}

// ConnectionOptions configures the lazily-constructed client, matching
// spec §6's downward interface.
type ConnectionOptions struct {
	AccessPoint    string
	NoNetwork      bool
	TCPKeepAlive   TCPKeepAlive
	WriteTimeoutMs int64
	EnableQoS      bool
	QoS            int
	TLS            *TLSMaterial
}

// ErrIncompleteTLSConfig is returned when TLS is requested without all
// three PEM paths set (spec §7: fatal at client initialisation).
var ErrIncompleteTLSConfig = fmt.Errorf("tls enabled but cert, key and ca paths must all be set")

func (o ConnectionOptions) validate() error {
	if o.TLS == nil {
		return nil
	}
	if o.TLS.CertPath == "" || o.TLS.KeyPath == "" || o.TLS.CAPath == "" {
		return ErrIncompleteTLSConfig
	}
	return nil
}

// loadTLSConfig builds a client tls.Config from the certificate and key
// paths of m; the CA path is not read. This module never dials a socket
// itself and nothing in it calls loadTLSConfig.
func loadTLSConfig(m *TLSMaterial) (*tls.Config, error) {
	if m == nil {
		return nil, nil
	}
	cert, err := tls.LoadX509KeyPair(m.CertPath, m.KeyPath)
	if err != nil {
		return nil, fmt.Errorf("loading client certificate: %w", err)
	}
	return &tls.Config{Certificates: []tls.Certificate{cert}}, nil
}

// ConnectionHandle owns the lazily-created client for one Destination
// and forwards the read-only observers/administrative calls spec §4.4
// describes.
type ConnectionHandle struct {
	factory ClientFactory
	opts    ConnectionOptions

	maxInflight int
	maxPending  int

	client Client
}

// NewConnectionHandle does not dial anything; the client is created on
// first use by Ensure.
func NewConnectionHandle(factory ClientFactory, opts ConnectionOptions) *ConnectionHandle {
	return &ConnectionHandle{factory: factory, opts: opts}
}

// SetThrottle configures the max-inflight/max-pending limits applied to
// the client once it exists (and immediately, if it already does).
func (h *ConnectionHandle) SetThrottle(maxInflight, maxPending int) {
	h.maxInflight = maxInflight
	h.maxPending = maxPending
	if h.client != nil && maxInflight > 0 {
		h.client.SetThrottle(maxInflight, maxPending)
	}
}

// Ensure lazily constructs the client, wiring the up/down callbacks, on
// first use. Subsequent calls are no-ops until Reset is called.
func (h *ConnectionHandle) Ensure(onUp func(), onDown func(error)) (Client, error) {
	if h.client != nil {
		return h.client, nil
	}

	if err := h.opts.validate(); err != nil {
		return nil, err
	}

	c, err := h.factory(h.opts)
	if err != nil {
		return nil, err
	}

	c.SetStatusCallbacks(onUp, onDown)
	if h.maxInflight > 0 {
		c.SetThrottle(h.maxInflight, h.maxPending)
	}

	h.client = c
	return h.client, nil
}

// Reset closes and forgets the current client, if any.
func (h *ConnectionHandle) Reset() {
	if h.client == nil {
		return
	}
	h.client.SetStatusCallbacks(nil, nil)
	h.client.CloseNow()
	h.client = nil
}

// UpdateWriteTimeout pushes a new write timeout to the live client, if
// any exists. Destination is responsible for the "shortest timeout"
// monotonicity rule (spec §4.3); this just forwards.
func (h *ConnectionHandle) UpdateWriteTimeout(ms int64) {
	h.opts.WriteTimeoutMs = ms
	if h.client != nil {
		h.client.UpdateWriteTimeout(ms)
	}
}

func (h *ConnectionHandle) PendingRequestCount() int64 {
	if h.client == nil {
		return 0
	}
	return h.client.PendingRequestCount()
}

func (h *ConnectionHandle) InflightRequestCount() int64 {
	if h.client == nil {
		return 0
	}
	return h.client.InflightRequestCount()
}

func (h *ConnectionHandle) BatchingStat() (batched, total int64) {
	if h.client == nil {
		return 0, 0
	}
	return h.client.BatchingStat()
}
