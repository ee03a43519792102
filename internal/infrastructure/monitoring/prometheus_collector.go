package monitoring

import (
	"time"

	"roomlink/internal/core/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusCollector implements ports.Metrics over a process-global
// prometheus registry.
type PrometheusCollector struct {
	eventsReceivedTotal  *prometheus.CounterVec
	eventsDiscardedTotal *prometheus.CounterVec
	commandsTotal        *prometheus.CounterVec
	commandDuration      *prometheus.HistogramVec
	cachedPeers          prometheus.Gauge
	keyChangeListeners   prometheus.Gauge
}

func NewPrometheusCollector() *PrometheusCollector {
	return &PrometheusCollector{
		eventsReceivedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "roomlink_events_received_total",
			Help: "Bridge events accepted by the dispatcher",
		}, []string{"event"}),

		eventsDiscardedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "roomlink_events_discarded_total",
			Help: "Bridge events dropped before dispatch",
		}, []string{"event", "reason"}),

		commandsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "roomlink_commands_total",
			Help: "Bridge commands issued",
		}, []string{"command", "status"}),

		commandDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "roomlink_command_duration_seconds",
			Help:    "Round-trip time of bridge commands",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		}, []string{"command"}),

		cachedPeers: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "roomlink_cached_peers",
			Help: "Peers currently held by the peer cache",
		}),

		keyChangeListeners: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "roomlink_key_change_listeners",
			Help: "Active session store key-change registrations",
		}),
	}
}

func (p *PrometheusCollector) EventReceived(event domain.EventType) {
	p.eventsReceivedTotal.WithLabelValues(string(event)).Inc()
}

func (p *PrometheusCollector) EventDiscarded(event domain.EventType, reason string) {
	p.eventsDiscardedTotal.WithLabelValues(string(event), reason).Inc()
}

func (p *PrometheusCollector) CommandObserved(command string, took time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	p.commandsTotal.WithLabelValues(command, status).Inc()
	p.commandDuration.WithLabelValues(command).Observe(took.Seconds())
}

func (p *PrometheusCollector) CachedPeers(count int) {
	p.cachedPeers.Set(float64(count))
}

func (p *PrometheusCollector) KeyChangeListeners(count int) {
	p.keyChangeListeners.Set(float64(count))
}
