package transport

import (
	"net"
	"os"
	"sync"
	"time"
)

const inboundQueueLen = 256

type inboundPacket struct {
	payload []byte
	from    net.Addr
}

// PacketPipe is an in-memory net.PacketConn handed to quic-go in place
// of a real socket.  The pump stays the only owner of the UDP socket:
// Deliver pushes received datagrams in, Flush takes everything quic-go
// wrote out.
type PacketPipe struct {
	local net.Addr

	inbound chan inboundPacket
	wrote   chan struct{} // one pending signal per burst of writes

	mu        sync.Mutex
	outbound  []Datagram
	deadline  time.Time
	deadlineC chan struct{} // closed and replaced on every deadline change

	done      chan struct{}
	closeOnce sync.Once
}

var _ net.PacketConn = (*PacketPipe)(nil)

// NewPacketPipe returns a pipe whose LocalAddr is local.
func NewPacketPipe(local net.Addr) *PacketPipe {
	return &PacketPipe{
		local:     local,
		inbound:   make(chan inboundPacket, inboundQueueLen),
		wrote:     make(chan struct{}, 1),
		deadlineC: make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// ReadFrom blocks until a delivered datagram, the read deadline or
// Close.
func (p *PacketPipe) ReadFrom(b []byte) (int, net.Addr, error) {
	for {
		p.mu.Lock()
		deadline, changed := p.deadline, p.deadlineC
		p.mu.Unlock()

		var expired <-chan time.Time
		var timer *time.Timer
		if !deadline.IsZero() {
			d := time.Until(deadline)
			if d <= 0 {
				return 0, nil, os.ErrDeadlineExceeded
			}
			timer = time.NewTimer(d)
			expired = timer.C
		}

		select {
		case pkt := <-p.inbound:
			stopTimer(timer)
			return copy(b, pkt.payload), pkt.from, nil
		case <-p.done:
			stopTimer(timer)
			return 0, nil, net.ErrClosed
		case <-changed:
			stopTimer(timer)
		case <-expired:
			return 0, nil, os.ErrDeadlineExceeded
		}
	}
}

// WriteTo queues a copy of b; it never blocks.
func (p *PacketPipe) WriteTo(b []byte, addr net.Addr) (int, error) {
	select {
	case <-p.done:
		return 0, net.ErrClosed
	default:
	}

	p.mu.Lock()
	p.outbound = append(p.outbound, NewDatagram(p.local, addr, b))
	p.mu.Unlock()

	select {
	case p.wrote <- struct{}{}:
	default:
	}
	return len(b), nil
}

// Deliver hands datagrams to the reader side.  It returns early if the
// pipe is closed.
func (p *PacketPipe) Deliver(dgrams []Datagram) {
	for _, d := range dgrams {
		select {
		case p.inbound <- inboundPacket{payload: d.Payload(), from: d.Source()}:
		case <-p.done:
			return
		}
	}
}

// Settle waits until the inbound queue is empty and nothing has been
// written for window, or until limit elapses.  Queued output stays in
// place for Flush.
func (p *PacketPipe) Settle(window, limit time.Duration) {
	hard := time.NewTimer(limit)
	defer hard.Stop()
	quiet := time.NewTimer(window)
	defer quiet.Stop()

	for {
		select {
		case <-p.wrote:
			resetTimer(quiet, window)
		case <-quiet.C:
			if len(p.inbound) == 0 {
				return
			}
			quiet.Reset(window)
		case <-hard.C:
			return
		case <-p.done:
			return
		}
	}
}

// Flush settles and then returns everything written so far.
func (p *PacketPipe) Flush(window, limit time.Duration) []Datagram {
	p.Settle(window, limit)

	p.mu.Lock()
	defer p.mu.Unlock()
	out := p.outbound
	p.outbound = nil
	return out
}

// Close unblocks readers; further writes fail with net.ErrClosed.
func (p *PacketPipe) Close() error {
	p.closeOnce.Do(func() { close(p.done) })
	return nil
}

func (p *PacketPipe) LocalAddr() net.Addr { return p.local }

func (p *PacketPipe) SetDeadline(t time.Time) error { return p.SetReadDeadline(t) }

func (p *PacketPipe) SetReadDeadline(t time.Time) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deadline = t
	close(p.deadlineC)
	p.deadlineC = make(chan struct{})
	return nil
}

// SetWriteDeadline is a no-op: writes never block.
func (p *PacketPipe) SetWriteDeadline(time.Time) error { return nil }

func stopTimer(t *time.Timer) {
	if t != nil {
		t.Stop()
	}
}

func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}
