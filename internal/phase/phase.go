// Package phase holds the per-phase handler the pump calls on every
// iteration.  A session moves through two phases: PreConnect waits for
// the handshake; PostConnect routes stream events for the one request
// stream and ends the session once the response is complete.
package phase

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	qerrors "quicget/internal/errors"
	"quicget/internal/metrics"
	"quicget/internal/transport"
	"quicget/util"
)

const (
	// ReadBufSize is the fixed buffer for each stream read.
	ReadBufSize = 4000

	// CloseCode and CloseReason are sent when the response completes.
	CloseCode   = 0
	CloseReason = "kthxbye!"
)

// Kind tags a Phase.
type Kind uint8

const (
	KindPreConnect Kind = iota
	KindPostConnect
)

func (k Kind) String() string {
	switch k {
	case KindPreConnect:
		return "pre-connect"
	case KindPostConnect:
		return "post-connect"
	default:
		return fmt.Sprintf("phase(%d)", uint8(k))
	}
}

// InterestSet is the set of streams a phase will accept events for.
// It only grows.
type InterestSet struct {
	ids map[transport.StreamID]struct{}
}

// Add tracks id.
func (s *InterestSet) Add(id transport.StreamID) {
	if s.ids == nil {
		s.ids = make(map[transport.StreamID]struct{}, 1)
	}
	s.ids[id] = struct{}{}
}

// Contains reports whether id is tracked.
func (s *InterestSet) Contains(id transport.StreamID) bool {
	_, ok := s.ids[id]
	return ok
}

// Len returns the number of tracked streams.
func (s *InterestSet) Len() int { return len(s.ids) }

// Phase is the handler's current stage.  Interest is only consulted in
// PostConnect.
type Phase struct {
	Kind     Kind
	Interest InterestSet
}

// PreConnect returns the phase that waits for the handshake.
func PreConnect() Phase {
	return Phase{Kind: KindPreConnect}
}

// PostConnect returns the phase that routes events for ids.
func PostConnect(ids ...transport.StreamID) Phase {
	p := Phase{Kind: KindPostConnect}
	for _, id := range ids {
		p.Interest.Add(id)
	}
	return p
}

// Handler implements pump.Handler.  Console output goes to Out; the
// transport.Conn passed to Advance decides whether the framed or raw
// routing applies.
type Handler struct {
	Phase   Phase
	Out     io.Writer
	Logger  *util.Logger
	Metrics *metrics.Collector

	// Now defaults to time.Now.  Override in tests.
	Now func() time.Time
}

// New returns a Handler in the PreConnect phase writing to out.
func New(out io.Writer, logger *util.Logger, m *metrics.Collector) *Handler {
	if out == nil {
		out = os.Stdout
	}
	return &Handler{Phase: PreConnect(), Out: out, Logger: logger, Metrics: m}
}

// Enter switches to p.
func (h *Handler) Enter(p Phase) {
	h.log().Debug("entering %s phase (%d stream(s) of interest)", p.Kind, p.Interest.Len())
	h.Phase = p
}

// Advance runs one iteration of the current phase.  It panics with an
// *errors.InvariantError if the facade fails a read it announced as
// ready.
func (h *Handler) Advance(conn transport.Conn) bool {
	if h.Phase.Kind == KindPreConnect {
		return !conn.State().Connected()
	}

	switch c := conn.(type) {
	case transport.FramedConn:
		return h.advanceFramed(c)
	case transport.RawConn:
		return h.advanceRaw(c)
	default:
		h.log().Error("facade %T supports neither framed nor raw streams", conn)
		return false
	}
}

func (h *Handler) advanceFramed(c transport.FramedConn) bool {
	c.ProcessHTTP3(h.now())

	for evs := c.Events(); len(evs) > 0; evs = c.Events() {
		for _, ev := range evs {
			h.Metrics.Event()
			h.log().Debug("event: %s", ev)

			switch ev.Kind {
			case transport.EventHeaderReady:
				if !h.route(ev.Stream) {
					return false
				}
				hdrs, err := c.Headers(ev.Stream)
				if err != nil {
					panic(qerrors.Invariant("headers", uint64(ev.Stream), err))
				}
				fmt.Fprintf(h.Out, "READ HEADERS[%d]: %s\n", ev.Stream, hdrs)

			case transport.EventDataReadable:
				if !h.route(ev.Stream) {
					return false
				}
				if done := h.read(ev.Stream, c.ReadData, c); done {
					return false
				}
			}
		}
	}
	return true
}

func (h *Handler) advanceRaw(c transport.RawConn) bool {
	for evs := c.Events(); len(evs) > 0; evs = c.Events() {
		for _, ev := range evs {
			h.Metrics.Event()
			h.log().Debug("event: %s", ev)

			switch ev.Kind {
			case transport.EventDataReadable:
				if !h.route(ev.Stream) {
					return false
				}
				if done := h.read(ev.Stream, c.StreamRecv, c); done {
					return false
				}
			case transport.EventSendWritable:
				fmt.Fprintf(h.Out, "stream %d writable\n", ev.Stream)
			default:
				fmt.Fprintf(h.Out, "Unexpected event %s\n", ev)
			}
		}
	}
	return true
}

// route checks id against the interest set.
func (h *Handler) route(id transport.StreamID) bool {
	if h.Phase.Interest.Contains(id) {
		return true
	}
	h.Metrics.Violation()
	h.log().Warn("event on stream %d outside the interest set", id)
	fmt.Fprintf(h.Out, "Data on unexpected stream: %d\n", id)
	return false
}

type readFunc func(id transport.StreamID, buf []byte) (int, bool, error)

// read performs one read on id and reports whether the response is
// complete, in which case the session has been closed.
func (h *Handler) read(id transport.StreamID, recv readFunc, conn transport.Conn) bool {
	buf := util.GetBuf(ReadBufSize)
	defer util.PutBuf(buf)

	n, fin, err := recv(id, buf)
	if err != nil {
		panic(qerrors.Invariant("read", uint64(id), err))
	}
	fmt.Fprintf(h.Out, "READ[%d]: %s\n", id, strings.ToValidUTF8(string(buf[:n]), "\uFFFD"))

	if !fin {
		return false
	}
	fmt.Fprintf(h.Out, "<FIN[%d]>\n", id)
	conn.Close(CloseCode, CloseReason)
	return true
}

func (h *Handler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

func (h *Handler) log() *util.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return quiet
}

var quiet = util.NewLogger(0)
