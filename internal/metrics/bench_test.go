package metrics

import "testing"

// BenchmarkCollector_DatagramSent measures the overhead of recording
// an outbound datagram (atomic operations).
func BenchmarkCollector_DatagramSent(b *testing.B) {
	c := New()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.DatagramSent(1252)
	}
}

// BenchmarkCollector_Snapshot measures the cost of taking a snapshot.
func BenchmarkCollector_Snapshot(b *testing.B) {
	c := New()
	c.Iteration()
	c.DatagramSent(1024)
	c.RecordState("connected")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = c.Snapshot()
	}
}
