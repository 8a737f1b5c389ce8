package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveTurnCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewConversationMetrics(reg)

	m.ObserveTurn("completed")
	m.ObserveTurn("completed")
	m.ObserveTurn("error")

	if got := testutil.ToFloat64(m.turnsTotal.WithLabelValues("completed")); got != 2 {
		t.Fatalf("completed turns = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.turnsTotal.WithLabelValues("error")); got != 1 {
		t.Fatalf("error turns = %v, want 1", got)
	}
}

func TestObserveToolInvocation(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewConversationMetrics(reg)

	m.ObserveToolInvocation("check_user_status", "ok")
	m.ObserveToolInvocation("check_user_status", "error")

	if got := testutil.ToFloat64(m.toolInvocations.WithLabelValues("check_user_status", "ok")); got != 1 {
		t.Fatalf("ok invocations = %v, want 1", got)
	}
}

func TestNilReceiverIsSafe(t *testing.T) {
	var m *ConversationMetrics
	m.ObserveTurn("completed")
	m.ObserveToolInvocation("get_alternatives", "ok")
	m.ObserveStreamLatency(0.5)
}
