package destination

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectionHandleLazyConstruction(t *testing.T) {
	var constructed int
	factory := func(opts ConnectionOptions) (Client, error) {
		constructed++
		return &fakeClient{}, nil
	}

	h := NewConnectionHandle(factory, ConnectionOptions{AccessPoint: "localhost:11211"})
	assert.Equal(t, 0, constructed, "factory must not run before Ensure")

	c1, err := h.Ensure(nil, nil)
	require.NoError(t, err)
	require.NotNil(t, c1)
	assert.Equal(t, 1, constructed)

	c2, err := h.Ensure(nil, nil)
	require.NoError(t, err)
	assert.Same(t, c1, c2, "a second Ensure before Reset must reuse the client")
	assert.Equal(t, 1, constructed, "factory must run at most once before Reset")
}

func TestConnectionHandleResetAllowsReconstruction(t *testing.T) {
	var constructed int
	factory := func(opts ConnectionOptions) (Client, error) {
		constructed++
		return &fakeClient{}, nil
	}

	h := NewConnectionHandle(factory, ConnectionOptions{AccessPoint: "localhost:11211"})
	_, err := h.Ensure(nil, nil)
	require.NoError(t, err)

	h.Reset()
	_, err = h.Ensure(nil, nil)
	require.NoError(t, err)

	assert.Equal(t, 2, constructed)
}

func TestConnectionHandleObserversDefaultToZeroBeforeConnect(t *testing.T) {
	h := NewConnectionHandle(newFakeClient, ConnectionOptions{})

	assert.Zero(t, h.PendingRequestCount())
	assert.Zero(t, h.InflightRequestCount())
	batched, total := h.BatchingStat()
	assert.Zero(t, batched)
	assert.Zero(t, total)
}

func TestConnectionOptionsValidateRejectsPartialTLS(t *testing.T) {
	opts := ConnectionOptions{TLS: &TLSMaterial{CertPath: "cert.pem"}}
	assert.ErrorIs(t, opts.validate(), ErrIncompleteTLSConfig)

	complete := ConnectionOptions{TLS: &TLSMaterial{CertPath: "c", KeyPath: "k", CAPath: "ca"}}
	// Paths don't exist on disk, but validate() only checks completeness,
	// not that tls.LoadX509KeyPair would succeed.
	assert.NoError(t, complete.validate())
}

func TestConfigValidateRejectsPartialTLSPaths(t *testing.T) {
	cfg := Config{PemCertPath: "cert.pem", PemKeyPath: "key.pem"}
	assert.ErrorIs(t, cfg.Validate(), ErrIncompleteTLSConfig)

	cfg = Config{}
	assert.NoError(t, cfg.Validate())

	cfg = Config{PemCertPath: "c", PemKeyPath: "k", PemCAPath: "ca"}
	assert.NoError(t, cfg.Validate())
}
