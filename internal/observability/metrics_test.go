package observability

import (
	"testing"
	"time"
)

func TestMetricsSnapshot(t *testing.T) {
	m := NewMetrics()
	m.RecordRequest("/tickets", "GET", 200, time.Millisecond)
	m.RecordRequest("/tickets", "GET", 200, time.Millisecond)
	m.RecordCorrelation("in_reply_to")
	m.RecordBreaches("resolution", 3)
	m.RecordBreaches("resolution", 0)

	snap := m.Snapshot()
	if got := snap["requests"]["/tickets|GET|200"]; got != 2 {
		t.Fatalf("requests = %d, want 2", got)
	}
	if got := snap["correlations"]["in_reply_to"]; got != 1 {
		t.Fatalf("correlations = %d, want 1", got)
	}
	if got := snap["sla_breaches"]["resolution"]; got != 3 {
		t.Fatalf("breaches = %d, want 3", got)
	}

	snap["requests"]["/tickets|GET|200"] = 100
	if m.Snapshot()["requests"]["/tickets|GET|200"] != 2 {
		t.Fatal("snapshot must be a copy")
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.RecordRequest("/", "GET", 200, 0)
	m.RecordCorrelation("x")
	m.RecordOutbound("sent")
	if m.Snapshot() != nil {
		t.Fatal("nil metrics snapshot should be nil")
	}
}
