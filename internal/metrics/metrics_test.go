package metrics

import (
	"encoding/json"
	"testing"
)

func TestCollector_Datagrams(t *testing.T) {
	c := New()

	c.DatagramReceived(1200)
	c.DatagramReceived(100)
	c.DatagramSent(1252)

	snap := c.Snapshot()
	if snap.DatagramsIn != 2 {
		t.Errorf("datagrams in = %d, want 2", snap.DatagramsIn)
	}
	if c.TotalBytesIn() != 1300 {
		t.Errorf("bytes in = %d, want 1300", c.TotalBytesIn())
	}
	if snap.DatagramsOut != 1 || c.TotalBytesOut() != 1252 {
		t.Errorf("out = %d/%d, want 1/1252", snap.DatagramsOut, c.TotalBytesOut())
	}
}

func TestCollector_Warnings(t *testing.T) {
	c := New()

	c.ShortSend()
	c.Oversized()
	c.Oversized()
	c.EmptyReceive()

	snap := c.Snapshot()
	if snap.ShortSends != 1 {
		t.Errorf("short sends = %d, want 1", snap.ShortSends)
	}
	if snap.Oversized != 2 {
		t.Errorf("oversized = %d, want 2", snap.Oversized)
	}
	if snap.EmptyReceives != 1 {
		t.Errorf("empty = %d, want 1", snap.EmptyReceives)
	}
}

func TestCollector_Iterations(t *testing.T) {
	c := New()
	for i := 0; i < 3; i++ {
		c.Iteration()
	}
	if c.Iterations() != 3 {
		t.Errorf("iterations = %d, want 3", c.Iterations())
	}
}

func TestCollector_State(t *testing.T) {
	c := New()
	c.RecordState("connected")

	snap := c.Snapshot()
	if snap.State != "connected" {
		t.Errorf("state = %q", snap.State)
	}
	if snap.StateAt == "" {
		t.Error("expected non-empty state timestamp")
	}
}

func TestCollector_JSON(t *testing.T) {
	c := New()
	c.Event()
	c.Violation()
	c.DatagramSent(42)

	raw := c.JSON()
	var snap Snapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		t.Fatalf("JSON parse error: %v", err)
	}
	if snap.Events != 1 || snap.Violations != 1 {
		t.Errorf("JSON events/violations = %d/%d", snap.Events, snap.Violations)
	}
	if snap.BytesOut != 42 {
		t.Errorf("JSON bytes out = %d", snap.BytesOut)
	}
}

func TestNilCollector_NoOps(t *testing.T) {
	var c *Collector

	// None of these should panic.
	c.Iteration()
	c.DatagramReceived(100)
	c.DatagramSent(100)
	c.ShortSend()
	c.Oversized()
	c.EmptyReceive()
	c.Event()
	c.Violation()
	c.RecordState("closed")

	if c.Iterations() != 0 {
		t.Error("nil collector should return 0")
	}
	if c.TotalBytesIn() != 0 || c.TotalBytesOut() != 0 {
		t.Error("nil collector should return 0")
	}

	snap := c.Snapshot()
	if snap.DatagramsIn != 0 {
		t.Error("nil snapshot should be zero")
	}

	j := c.JSON()
	if j == "" {
		t.Error("nil JSON should return valid JSON")
	}
}
