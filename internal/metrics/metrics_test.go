package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewRegistersCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.RoutingMisses.WithLabelValues("display", "display").Inc()
	m.ActiveConnections.WithLabelValues("relay").Set(3)

	if got := testutil.ToFloat64(m.RoutingMisses.WithLabelValues("display", "display")); got != 1 {
		t.Errorf("expected 1 routing miss, got %v", got)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather failed: %v", err)
	}
	if len(families) != 2 {
		t.Errorf("expected 2 populated metric families, got %d", len(families))
	}
}

func TestNewWithoutRegistry(t *testing.T) {
	m := New(nil)
	m.Deliveries.WithLabelValues("relay").Add(2)
	if got := testutil.ToFloat64(m.Deliveries.WithLabelValues("relay")); got != 2 {
		t.Errorf("expected 2 deliveries, got %v", got)
	}
}
