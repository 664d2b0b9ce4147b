package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// BroadcastMetrics tracks viewers and snapshot deliveries.
type BroadcastMetrics struct {
	Viewers          prometheus.Gauge
	ViewersTotal     prometheus.Counter
	Rejected         *prometheus.CounterVec
	Deliveries       *prometheus.CounterVec
	DeliveryDuration prometheus.Histogram
	PingFailures     prometheus.Counter
	CommandQueue     prometheus.Gauge
	Panics           prometheus.Counter
}

func NewBroadcastMetrics(reg prometheus.Registerer) *BroadcastMetrics {
	m := &BroadcastMetrics{
		Viewers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "viewers",
			Help:      "Number of live viewer subscriptions.",
		}),
		ViewersTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "viewers_total",
			Help:      "Total number of viewer subscriptions opened.",
		}),
		Rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "rejected_connections_total",
			Help:      "WebSocket connections refused, by reason.",
		}, []string{"reason"}),
		Deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "deliveries_total",
			Help:      "Snapshot deliveries, by result (sent, skipped, failed).",
		}, []string{"result"}),
		DeliveryDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "delivery_duration_seconds",
			Help:      "Time to encode and write one snapshot.",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		}),
		PingFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "ping_failures_total",
			Help:      "Keep-alive pings that could not be written.",
		}),
		CommandQueue: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "command_queue_depth",
			Help:      "Pending commands in the registry actor.",
		}),
		Panics: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "panics_total",
			Help:      "Recovered panics in the registry actor.",
		}),
	}

	reg.MustRegister(m.Viewers, m.ViewersTotal, m.Rejected, m.Deliveries, m.DeliveryDuration, m.PingFailures, m.CommandQueue, m.Panics)
	return m
}

func (m *BroadcastMetrics) ViewerConnected() {
	m.Viewers.Inc()
	m.ViewersTotal.Inc()
}

func (m *BroadcastMetrics) ViewerDisconnected() {
	m.Viewers.Dec()
}

func (m *BroadcastMetrics) ViewerRejected(reason string) {
	m.Rejected.WithLabelValues(reason).Inc()
}

func (m *BroadcastMetrics) Delivery(result string, d time.Duration) {
	m.Deliveries.WithLabelValues(result).Inc()
	if d > 0 {
		m.DeliveryDuration.Observe(d.Seconds())
	}
}

func (m *BroadcastMetrics) PingFailed() {
	m.PingFailures.Inc()
}

func (m *BroadcastMetrics) QueueDepth(depth int) {
	m.CommandQueue.Set(float64(depth))
}

func (m *BroadcastMetrics) Panicked() {
	m.Panics.Inc()
}
