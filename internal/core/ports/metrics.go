package ports

import (
	"time"

	"roomlink/internal/core/domain"
)

// Metrics is the observation hook the dispatcher and bridge report
// into. Implementations must be safe for concurrent use. A nil-safe
// no-op keeps the core decoupled from any metrics backend.
type Metrics interface {
	EventReceived(event domain.EventType)
	EventDiscarded(event domain.EventType, reason string)
	CommandObserved(command string, took time.Duration, err error)
	CachedPeers(count int)
	KeyChangeListeners(count int)
}

// NopMetrics discards all observations.
type NopMetrics struct{}

func (NopMetrics) EventReceived(domain.EventType)                 {}
func (NopMetrics) EventDiscarded(domain.EventType, string)        {}
func (NopMetrics) CommandObserved(string, time.Duration, error)   {}
func (NopMetrics) CachedPeers(int)                                {}
func (NopMetrics) KeyChangeListeners(int)                         {}
