// Package session drives one request/response exchange: wait for the
// handshake, open exactly one request stream, then pump until the
// response is complete or the connection closes.
//
// A session never retries or reconnects.  The facade decides the wire
// mode: a transport.FramedConn gets an HTTP/3 request, a
// transport.RawConn gets a single HTTP/0.9 request line.
package session

import (
	"fmt"

	"github.com/google/uuid"

	qerrors "quicget/internal/errors"
	"quicget/internal/phase"
	"quicget/internal/pump"
	"quicget/internal/transport"
	"quicget/util"
)

// Session binds a facade to the pump and handler that drive it.
type Session struct {
	ID      string
	Conn    transport.Conn
	Pump    *pump.Pump
	Handler *phase.Handler
	Request transport.Request
	Logger  *util.Logger
}

// New creates a Session with a fresh id.  The logger, pump and handler
// are tagged with that id.
func New(conn transport.Conn, p *pump.Pump, h *phase.Handler, req transport.Request, logger *util.Logger) *Session {
	id, tagged := Tag(logger)
	return WithID(id, conn, p, h, req, tagged)
}

// Tag returns a fresh session id and a child of logger carrying it, so
// the facade can log under the id before the Session exists.
func Tag(logger *util.Logger) (string, *util.Logger) {
	if logger == nil {
		logger = util.NewLogger(0)
	}
	id := uuid.NewString()
	return id, logger.With("session", id)
}

// WithID creates a Session for an id obtained from Tag.  logger must
// already carry the id; the pump and handler share it.
func WithID(id string, conn transport.Conn, p *pump.Pump, h *phase.Handler, req transport.Request, logger *util.Logger) *Session {
	p.Logger = logger
	h.Logger = logger

	return &Session{
		ID:      id,
		Conn:    conn,
		Pump:    p,
		Handler: h,
		Request: req,
		Logger:  logger,
	}
}

// Run executes the driving sequence and returns the final facade
// state.  A broken facade contract surfaces as an *errors.InvariantError.
func (s *Session) Run() (st transport.State, err error) {
	defer func() {
		if r := recover(); r != nil {
			ie, ok := r.(*qerrors.InvariantError)
			if !ok {
				panic(r)
			}
			s.Logger.Debug("recovered: %v", ie)
			err = ie
		}
	}()

	s.Handler.Enter(phase.PreConnect())
	st, err = s.Pump.Run(s.Conn, s.Handler)
	if err != nil {
		return st, err
	}
	if st.Closed() {
		s.Logger.Verbose("closed before the handshake completed: %s", st)
		return st, nil
	}

	id, err := s.open()
	if err != nil {
		return s.Conn.State(), err
	}
	s.Logger.Verbose("request on stream %d: %s %s", id, s.Request.Method, s.Request.Path)

	s.Handler.Enter(phase.PostConnect(id))
	return s.Pump.Run(s.Conn, s.Handler)
}

// open creates the single request stream.
func (s *Session) open() (transport.StreamID, error) {
	switch c := s.Conn.(type) {
	case transport.FramedConn:
		id, err := c.Fetch(s.Request)
		if err != nil {
			return 0, qerrors.Wrap("fetch", s.Request.Authority, err)
		}
		return id, nil

	case transport.RawConn:
		id, err := c.StreamCreate()
		if err != nil {
			return 0, qerrors.Wrap("stream create", s.Request.Authority, err)
		}
		line := RequestLine(s.Request.Path)
		s.Logger.Debug("raw request: %q", line)
		if _, err := c.StreamSend(id, []byte(line)); err != nil {
			return 0, qerrors.Wrap("stream send", s.Request.Authority, err)
		}
		if err := c.StreamClose(id); err != nil {
			return 0, qerrors.Wrap("stream close", s.Request.Authority, err)
		}
		return id, nil

	default:
		return 0, fmt.Errorf("facade %T cannot open request streams", s.Conn)
	}
}

// RequestLine is the HTTP/0.9 request sent in raw mode.
func RequestLine(path string) string {
	if path == "" {
		path = "/"
	}
	return "GET " + path + "\r\n"
}
