package destination

import "time"

// Config carries the options listed in spec §6, in the same struct-with
// -yaml-tags style as skipper's config.Config, since this core is meant
// to be embedded inside a larger router's own configuration rather than
// parsed from its own flag set (see cmd/mcrouterd for the one place
// that does own a flag.FlagSet, for the demo binary).
type Config struct {
	ProbeDelayInitialMs int64 `yaml:"probe-delay-initial-ms"`
	ProbeDelayMaxMs     int64 `yaml:"probe-delay-max-ms"`
	DisableTKOTracking  bool  `yaml:"disable-tko-tracking"`

	LatencyWindowSize int `yaml:"latency-window-size"`

	TargetMaxInflightRequests int `yaml:"target-max-inflight-requests"`
	TargetMaxPendingRequests  int `yaml:"target-max-pending-requests"`

	NoNetwork bool `yaml:"no-network"`

	KeepaliveCount     int `yaml:"keepalive-cnt"`
	KeepaliveIdleS     int `yaml:"keepalive-idle-s"`
	KeepaliveIntervalS int `yaml:"keepalive-interval-s"`

	EnableQoS bool `yaml:"enable-qos"`
	QoS       int  `yaml:"qos"`

	PemCertPath string `yaml:"pem-cert-path"`
	PemKeyPath  string `yaml:"pem-key-path"`
	PemCAPath   string `yaml:"pem-ca-path"`

	SoftTKOThreshold int64 `yaml:"soft-tko-threshold"`
	HardTKOThreshold int64 `yaml:"hard-tko-threshold"`

	// IdleResetInterval is the idle-GC sweep interval (supplemented
	// feature, SPEC_FULL.md §4). Nothing in this package reads it from
	// Config: DestinationRegistry takes its interval as an argument to
	// NewDestinationRegistry, where zero disables the sweep.
	IdleResetInterval time.Duration `yaml:"idle-reset-interval"`

	// PoolName is attached to every TkoLog record emitted by
	// destinations constructed with this config.
	PoolName string `yaml:"pool-name"`
}

// SetDefaults fills in zero fields with the defaults the original
// mcrouter ships, the same way skipper's own Config applies defaults
// after flag/yaml parsing rather than hardcoding them into every flag
// declaration.
func (c *Config) SetDefaults() {
	if c.ProbeDelayInitialMs <= 0 {
		c.ProbeDelayInitialMs = 5
	}
	if c.ProbeDelayMaxMs <= 0 {
		c.ProbeDelayMaxMs = 60_000
	}
	if c.LatencyWindowSize <= 0 {
		c.LatencyWindowSize = 100
	}
	if c.SoftTKOThreshold <= 0 {
		c.SoftTKOThreshold = 3
	}
	if c.HardTKOThreshold <= 0 {
		c.HardTKOThreshold = 1
	}
}

// Validate reports the configuration failure spec §7 calls out as
// fatal at client initialisation: TLS material that is only partially
// set. This is surfaced as a plain error instead of a process exit,
// since this is a library, not the process that owns main().
func (c Config) Validate() error {
	set := 0
	if c.PemCertPath != "" {
		set++
	}
	if c.PemKeyPath != "" {
		set++
	}
	if c.PemCAPath != "" {
		set++
	}
	if set != 0 && set != 3 {
		return ErrIncompleteTLSConfig
	}
	return nil
}
