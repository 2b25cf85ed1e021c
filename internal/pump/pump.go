// Package pump runs the synchronous datagram loop that couples the UDP
// socket to a connection facade and a phase handler.
//
// Each iteration feeds queued datagrams to the facade, lets the handler
// act, writes everything the facade wants sent and then blocks on
// exactly one socket read.  The loop is single-threaded; the socket
// read is its only suspension point.  Timers reported by the facade are
// not honored, so a silent peer stalls the loop.
package pump

import (
	"time"

	qerrors "quicget/internal/errors"
	"quicget/internal/metrics"
	"quicget/internal/transport"
	"quicget/util"
)

// RecvBufSize is the fixed receive buffer.  A read that fills it is
// treated as possibly truncated and dropped.
const RecvBufSize = 2048

// Handler decides after each input step whether the loop continues.
type Handler interface {
	// Advance reports true to keep pumping, false to stop after the
	// current iteration's output has been written.
	Advance(conn transport.Conn) bool
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(conn transport.Conn) bool

func (f HandlerFunc) Advance(conn transport.Conn) bool { return f(conn) }

// Pump owns the socket for the lifetime of a session.
type Pump struct {
	Socket  transport.Socket
	Logger  *util.Logger
	Metrics *metrics.Collector

	// Now defaults to time.Now.  Override in tests.
	Now func() time.Time
}

// New returns a Pump reading from and writing to sock.
func New(sock transport.Socket, logger *util.Logger, m *metrics.Collector) *Pump {
	return &Pump{Socket: sock, Logger: logger, Metrics: m}
}

// Run drives conn with h until the facade reports Closed or the
// handler stops, and returns the facade state at that point.  A socket
// receive or send failure ends the loop with a *errors.NetworkError.
func (p *Pump) Run(conn transport.Conn, h Handler) (transport.State, error) {
	buf := util.GetBuf(RecvBufSize)
	defer util.PutBuf(buf)

	var queued []transport.Datagram
	for {
		p.Metrics.Iteration()

		conn.ProcessInput(queued, p.now())
		queued = nil

		if st := conn.State(); st.Closed() {
			p.log().Debug("facade closed: %s", st)
			return p.finish(st), nil
		}

		more := h.Advance(conn)

		if err := p.flush(conn); err != nil {
			return p.finish(conn.State()), err
		}
		if !more {
			return p.finish(conn.State()), nil
		}

		d, ok, err := p.receive(buf)
		if err != nil {
			return p.finish(conn.State()), err
		}
		if ok {
			queued = append(queued, d)
		}
	}
}

// flush writes every datagram the facade has ready.  Short writes are
// warned about; write errors are fatal.
func (p *Pump) flush(conn transport.Conn) error {
	out, _ := conn.ProcessOutput(p.now())
	for _, d := range out {
		n, err := p.Socket.Write(d.Payload())
		if err != nil {
			return qerrors.Wrap("send", addrString(p.Socket.RemoteAddr()), err)
		}
		if n != d.Len() {
			p.log().Warn("short send: wrote %d of %d bytes", n, d.Len())
			p.Metrics.ShortSend()
		}
		p.Metrics.DatagramSent(n)
	}
	if len(out) > 0 {
		p.log().Debug("sent %d datagram(s)", len(out))
	}
	return nil
}

// receive blocks for one datagram.  ok is false when the reception was
// dropped.
func (p *Pump) receive(buf []byte) (d transport.Datagram, ok bool, err error) {
	remote := p.Socket.RemoteAddr()

	n, err := p.Socket.Read(buf)
	if err != nil {
		return d, false, qerrors.Wrap("recv", addrString(remote), err)
	}

	switch {
	case n == len(buf):
		p.log().Warn("received %d bytes, datagram may be truncated; dropped", n)
		p.Metrics.Oversized()
		return d, false, nil
	case n == 0:
		p.Metrics.EmptyReceive()
		return d, false, nil
	}

	p.Metrics.DatagramReceived(n)
	p.log().Debug("received %d bytes from %s", n, addrString(remote))
	return transport.NewDatagram(remote, p.Socket.LocalAddr(), buf[:n]), true, nil
}

func (p *Pump) finish(st transport.State) transport.State {
	p.Metrics.RecordState(st.String())
	return st
}

func (p *Pump) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

func (p *Pump) log() *util.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return quiet
}

var quiet = util.NewLogger(0)

func addrString(a interface{ String() string }) string {
	if a == nil {
		return ""
	}
	return a.String()
}
