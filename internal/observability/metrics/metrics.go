package metrics

import "github.com/prometheus/client_golang/prometheus"

// ConversationMetrics exposes counters/histograms for the agent loop.
type ConversationMetrics struct {
	turnsTotal      *prometheus.CounterVec
	toolInvocations *prometheus.CounterVec
	streamLatency   prometheus.Histogram
}

func NewConversationMetrics(reg prometheus.Registerer) *ConversationMetrics {
	m := &ConversationMetrics{
		turnsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pharmacy",
			Subsystem: "conversation",
			Name:      "turns_total",
			Help:      "Completed agent turns by final status",
		}, []string{"status"}),
		toolInvocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pharmacy",
			Subsystem: "conversation",
			Name:      "tool_invocations_total",
			Help:      "Tool invocations by tool name and status",
		}, []string{"tool", "status"}),
		streamLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "pharmacy",
			Subsystem: "conversation",
			Name:      "model_stream_seconds",
			Help:      "Duration of one streamed model completion",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.turnsTotal, m.toolInvocations, m.streamLatency)
	return m
}

func (m *ConversationMetrics) ObserveTurn(status string) {
	if m == nil {
		return
	}
	m.turnsTotal.WithLabelValues(status).Inc()
}

func (m *ConversationMetrics) ObserveToolInvocation(tool, status string) {
	if m == nil {
		return
	}
	m.toolInvocations.WithLabelValues(tool, status).Inc()
}

func (m *ConversationMetrics) ObserveStreamLatency(seconds float64) {
	if m == nil {
		return
	}
	m.streamLatency.Observe(seconds)
}
