package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SimulatorMetrics tracks random-walk ticks and sink publishes.
type SimulatorMetrics struct {
	Ticks         prometheus.Counter
	TickDuration  prometheus.Histogram
	SinkPublishes *prometheus.CounterVec
}

func NewSimulatorMetrics(reg prometheus.Registerer) *SimulatorMetrics {
	m := &SimulatorMetrics{
		Ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "simulator",
			Name:      "ticks_total",
			Help:      "Total number of simulator passes over the price table.",
		}),
		TickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "simulator",
			Name:      "tick_duration_seconds",
			Help:      "Time spent mutating the price table per tick.",
			Buckets:   []float64{0.00001, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
		}),
		SinkPublishes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "simulator",
			Name:      "sink_publishes_total",
			Help:      "Tick publishes to external sinks, by sink and result.",
		}, []string{"sink", "result"}),
	}

	reg.MustRegister(m.Ticks, m.TickDuration, m.SinkPublishes)
	return m
}

func (m *SimulatorMetrics) ObserveTick(d time.Duration) {
	m.Ticks.Inc()
	m.TickDuration.Observe(d.Seconds())
}

func (m *SimulatorMetrics) SinkPublished(sink string, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	m.SinkPublishes.WithLabelValues(sink, result).Inc()
}
