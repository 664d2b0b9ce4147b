package metrics

import "github.com/prometheus/client_golang/prometheus"

// CoordinationMetrics tracks simulator leadership and follower traffic.
type CoordinationMetrics struct {
	IsLeader          prometheus.Gauge
	LeadershipChanges prometheus.Counter
	FollowerMessages  *prometheus.CounterVec
}

func NewCoordinationMetrics(reg prometheus.Registerer) *CoordinationMetrics {
	m := &CoordinationMetrics{
		IsLeader: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "coordination",
			Name:      "is_leader",
			Help:      "1 while this instance owns the simulator lease.",
		}),
		LeadershipChanges: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "coordination",
			Name:      "leadership_changes_total",
			Help:      "Times this instance gained or lost the simulator lease.",
		}),
		FollowerMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "coordination",
			Name:      "follower_messages_total",
			Help:      "Tick messages received from the leader by result.",
		}, []string{"result"}),
	}

	reg.MustRegister(m.IsLeader, m.LeadershipChanges, m.FollowerMessages)
	return m
}

func (m *CoordinationMetrics) LeadershipChanged(leader bool) {
	m.LeadershipChanges.Inc()
	if leader {
		m.IsLeader.Set(1)
	} else {
		m.IsLeader.Set(0)
	}
}

func (m *CoordinationMetrics) FollowerMessage(result string) {
	m.FollowerMessages.WithLabelValues(result).Inc()
}
