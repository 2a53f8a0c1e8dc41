package destination

import (
	"github.com/seem-sky/mcrouter/logging"
)

// TkoEvent enumerates the classification-change events spec §6 defines.
type TkoEvent int

const (
	MarkHardTko TkoEvent = iota
	MarkSoftTko
	UnMarkTko
	// RemoveFromConfig is emitted when a Destination that was
	// responsible for an in-progress TKO episode is destroyed because
	// its endpoint left the router's configuration (supplemented
	// feature, see SPEC_FULL.md §4 -- distinct from resetInactive, which
	// never emits an event).
	RemoveFromConfig
)

func (e TkoEvent) String() string {
	switch e {
	case MarkHardTko:
		return "MarkHardTko"
	case MarkSoftTko:
		return "MarkSoftTko"
	case UnMarkTko:
		return "UnMarkTko"
	case RemoveFromConfig:
		return "RemoveFromConfig"
	default:
		return "Unknown"
	}
}

// TkoLog is the event log record shape from spec §6.
type TkoLog struct {
	AccessPoint string
	Event       TkoEvent
	IsHardTko   bool
	IsSoftTko   bool
	GlobalTkos  TkoCounts
	AvgLatency  float64
	ProbesSent  int64
	PoolName    string
	Result      string
}

// EventSink receives every TKO classification change synchronously, on
// the goroutine that produced it.
type EventSink interface {
	OnTkoEvent(TkoLog)
}

// LoggingEventSink is the default EventSink: it writes a one-line
// summary through a logging.Logger the way the original's onTkoEvent
// wrote a VLOG(1) line before building the structured record.
type LoggingEventSink struct {
	Log logging.Logger
}

var _ EventSink = LoggingEventSink{}

func (s LoggingEventSink) OnTkoEvent(l TkoLog) {
	log := s.Log
	if log == nil {
		log = logging.Default
	}
	log.WithFields(map[string]interface{}{
		"access_point": l.AccessPoint,
		"pool":         l.PoolName,
		"hard_tkos":    l.GlobalTkos.Hard,
		"soft_tkos":    l.GlobalTkos.Soft,
		"probes_sent":  l.ProbesSent,
		"avg_latency":  l.AvgLatency,
		"result":       l.Result,
	}).Infof("%s: %s", l.AccessPoint, l.Event)
}
