// Package metrics provides lightweight, lock-free counters for tracking
// runtime statistics of a quicget session.
//
// All methods are safe for concurrent use.  A nil *Collector is a
// valid no-op receiver, so callers never need to nil-check.
package metrics

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"
)

// Collector tracks runtime metrics for a quicget session.
// A nil Collector is safe to use; every method is then a no-op.
type Collector struct {
	iterations    atomic.Int64
	datagramsIn   atomic.Int64
	datagramsOut  atomic.Int64
	bytesIn       atomic.Int64
	bytesOut      atomic.Int64
	shortSends    atomic.Int64
	oversized     atomic.Int64
	emptyReceives atomic.Int64
	events        atomic.Int64
	violations    atomic.Int64

	mu          sync.RWMutex
	startTime   time.Time
	lastState   string
	lastStateAt time.Time
}

// New creates a metrics collector with the start time set to now.
func New() *Collector {
	return &Collector{startTime: time.Now()}
}

// ── Pump metrics ─────────────────────────────────────────────────────

// Iteration records one pass of the datagram pump.
func (c *Collector) Iteration() {
	if c == nil {
		return
	}
	c.iterations.Add(1)
}

// Iterations returns the number of pump iterations so far.
func (c *Collector) Iterations() int64 {
	if c == nil {
		return 0
	}
	return c.iterations.Load()
}

// DatagramReceived records one queued inbound datagram of n bytes.
func (c *Collector) DatagramReceived(n int) {
	if c == nil {
		return
	}
	c.datagramsIn.Add(1)
	c.bytesIn.Add(int64(n))
}

// DatagramSent records one outbound datagram of which n bytes were written.
func (c *Collector) DatagramSent(n int) {
	if c == nil {
		return
	}
	c.datagramsOut.Add(1)
	c.bytesOut.Add(int64(n))
}

// ShortSend records a datagram the socket did not write in full.
func (c *Collector) ShortSend() {
	if c == nil {
		return
	}
	c.shortSends.Add(1)
}

// Oversized records a reception that filled the whole receive buffer.
func (c *Collector) Oversized() {
	if c == nil {
		return
	}
	c.oversized.Add(1)
}

// EmptyReceive records a zero-length reception.
func (c *Collector) EmptyReceive() {
	if c == nil {
		return
	}
	c.emptyReceives.Add(1)
}

// TotalBytesIn returns total bytes queued from the socket.
func (c *Collector) TotalBytesIn() int64 {
	if c == nil {
		return 0
	}
	return c.bytesIn.Load()
}

// TotalBytesOut returns total bytes written to the socket.
func (c *Collector) TotalBytesOut() int64 {
	if c == nil {
		return 0
	}
	return c.bytesOut.Load()
}

// ── Handler metrics ──────────────────────────────────────────────────

// Event records one facade event handled by a phase.
func (c *Collector) Event() {
	if c == nil {
		return
	}
	c.events.Add(1)
}

// Violation records an event on a stream outside the interest set.
func (c *Collector) Violation() {
	if c == nil {
		return
	}
	c.violations.Add(1)
}

// ── Session state ────────────────────────────────────────────────────

// RecordState stores the latest observed session state.
func (c *Collector) RecordState(state string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.lastState = state
	c.lastStateAt = time.Now()
	c.mu.Unlock()
}

// ── Snapshot ─────────────────────────────────────────────────────────

// Snapshot is a point-in-time view of all metrics.
type Snapshot struct {
	Uptime        string `json:"uptime"`
	Iterations    int64  `json:"iterations"`
	DatagramsIn   int64  `json:"datagrams_in"`
	DatagramsOut  int64  `json:"datagrams_out"`
	BytesIn       int64  `json:"bytes_in"`
	BytesOut      int64  `json:"bytes_out"`
	ShortSends    int64  `json:"short_sends"`
	Oversized     int64  `json:"oversized_receives"`
	EmptyReceives int64  `json:"empty_receives"`
	Events        int64  `json:"events"`
	Violations    int64  `json:"violations"`
	State         string `json:"state,omitempty"`
	StateAt       string `json:"state_at,omitempty"`
}

// Snapshot returns a copy of all current metrics.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Snapshot{
		Uptime:        time.Since(c.startTime).Truncate(time.Millisecond).String(),
		Iterations:    c.iterations.Load(),
		DatagramsIn:   c.datagramsIn.Load(),
		DatagramsOut:  c.datagramsOut.Load(),
		BytesIn:       c.bytesIn.Load(),
		BytesOut:      c.bytesOut.Load(),
		ShortSends:    c.shortSends.Load(),
		Oversized:     c.oversized.Load(),
		EmptyReceives: c.emptyReceives.Load(),
		Events:        c.events.Load(),
		Violations:    c.violations.Load(),
		State:         c.lastState,
	}
	if !c.lastStateAt.IsZero() {
		s.StateAt = c.lastStateAt.Format(time.RFC3339)
	}
	return s
}

// JSON returns the snapshot as an indented JSON string.
func (c *Collector) JSON() string {
	s := c.Snapshot()
	data, _ := json.MarshalIndent(s, "", "  ")
	return string(data)
}
