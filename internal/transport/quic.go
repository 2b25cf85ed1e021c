package transport

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/quic-go/quic-go"

	qerrors "quicget/internal/errors"
	"quicget/util"
)

const readChunkSize = 4096

// Settle defaults, used when ClientConfig leaves them zero.
const (
	DefaultSettle      = 10 * time.Millisecond
	DefaultSettleLimit = 250 * time.Millisecond
)

// ClientConfig carries everything a facade needs to start a client
// session.
type ClientConfig struct {
	ServerName string
	ALPN       []string
	Local      net.Addr
	Remote     net.Addr
	RootCAs    *x509.CertPool
	Insecure   bool

	// Settle is how long the transport must stay quiet before queued
	// output is handed back; SettleLimit bounds the wait.
	Settle      time.Duration
	SettleLimit time.Duration

	// QPACK tuning, framed mode only.
	MaxTableSize      uint32
	MaxBlockedStreams uint16

	Logger *util.Logger
}

func (c *ClientConfig) tlsConfig() *tls.Config {
	return &tls.Config{
		ServerName:         c.ServerName,
		NextProtos:         append([]string(nil), c.ALPN...),
		RootCAs:            c.RootCAs,
		InsecureSkipVerify: c.Insecure, //nolint:gosec // operator opt-in
		MinVersion:         tls.VersionTLS13,
	}
}

func (c *ClientConfig) quicConfig() *quic.Config {
	return &quic.Config{}
}

// recvBuffer accumulates one stream's inbound bytes until the handler
// reads them.  armed is set while a DataReadable event is outstanding.
type recvBuffer struct {
	mu    sync.Mutex
	data  []byte
	fin   bool
	err   error
	armed bool
}

// append stores p and reports whether a DataReadable event is needed.
func (b *recvBuffer) append(p []byte) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data = append(b.data, p...)
	return b.arm()
}

// finish marks FIN and reports whether a DataReadable event is needed.
func (b *recvBuffer) finish() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fin = true
	return b.arm()
}

func (b *recvBuffer) fail(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.err = err
}

func (b *recvBuffer) arm() bool {
	if b.armed {
		return false
	}
	b.armed = true
	return true
}

// read copies buffered bytes into p.  more reports that bytes remain
// and the event has been re-armed.
func (b *recvBuffer) read(p []byte) (n int, fin, more bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.armed = false
	n = copy(p, b.data)
	b.data = b.data[n:]
	if len(b.data) > 0 {
		b.armed = true
		return n, false, true, nil
	}
	if b.fin {
		return n, true, false, nil
	}
	if n == 0 && b.err != nil {
		return 0, false, false, b.err
	}
	return n, false, false, nil
}

// session is the quic-go plumbing shared by the Raw and Framed
// facades: the packet pipe, the dial, the state machine and the event
// queue.
type session struct {
	cfg    ClientConfig
	log    *util.Logger
	pipe   *PacketPipe
	tr     *quic.Transport
	ctx    context.Context
	cancel context.CancelFunc

	streams cmap.ConcurrentMap[StreamID, *recvBuffer]
	flushed bool // caller goroutine only

	mu      sync.Mutex
	started bool
	state   State
	conn    quic.EarlyConnection
	events  []Event
	staged  bool    // background events wait in pending until promote
	pending []Event // guarded by mu
}

func newSession(ctx context.Context, cfg ClientConfig) *session {
	if cfg.Settle <= 0 {
		cfg.Settle = DefaultSettle
	}
	if cfg.SettleLimit < cfg.Settle {
		cfg.SettleLimit = max(DefaultSettleLimit, cfg.Settle)
	}
	pipe := NewPacketPipe(cfg.Local)
	ctx, cancel := context.WithCancel(ctx)
	log := cfg.Logger
	if log == nil {
		log = util.NewLogger(0)
	}
	return &session{
		cfg:    cfg,
		log:    log,
		pipe:   pipe,
		tr:     &quic.Transport{Conn: pipe},
		ctx:    ctx,
		cancel: cancel,
		streams: cmap.NewWithCustomShardingFunction[StreamID, *recvBuffer](func(key StreamID) uint32 {
			return uint32(key)
		}),
	}
}

// ProcessInput starts the handshake on first use, then hands the
// datagrams to quic-go and waits for it to go quiet.
func (s *session) ProcessInput(dgrams []Datagram, _ time.Time) {
	s.start()
	if len(dgrams) == 0 {
		return
	}
	s.pipe.Deliver(dgrams)
	s.pipe.Settle(s.cfg.Settle, s.cfg.SettleLimit)
}

// ProcessOutput drains what quic-go wrote.  Until the first datagram
// has gone out it keeps waiting, up to SettleLimit, for the dial to
// produce one.  quic-go keeps its own timers, so no timeout is
// reported.
func (s *session) ProcessOutput(_ time.Time) ([]Datagram, time.Duration) {
	s.start()
	out := s.pipe.Flush(s.cfg.Settle, s.cfg.SettleLimit)

	deadline := time.Now().Add(s.cfg.SettleLimit)
	for len(out) == 0 && !s.flushed && time.Now().Before(deadline) && !s.State().Closed() {
		out = s.pipe.Flush(s.cfg.Settle, s.cfg.SettleLimit)
	}
	if len(out) > 0 {
		s.flushed = true
	}
	return out, 0
}

func (s *session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *session) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev := s.events
	s.events = nil
	return ev
}

// Close issues an application close.  Before the handshake finishes
// it abandons the dial instead.
func (s *session) Close(code uint64, reason string) {
	s.mu.Lock()
	if s.state.Closed() {
		s.mu.Unlock()
		return
	}
	conn := s.conn
	s.state.Status = StatusClosing
	s.mu.Unlock()

	if conn == nil {
		s.cancel()
		return
	}
	s.log.Debug("closing connection: code=%d reason=%q", code, reason)
	_ = conn.CloseWithError(quic.ApplicationErrorCode(code), reason)
}

// Release tears down the transport and the pipe.
func (s *session) Release() error {
	s.cancel()
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()

	var err error
	if started {
		err = s.tr.Close()
	}
	_ = s.pipe.Close()
	return err
}

func (s *session) start() {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.state = State{Status: StatusConnecting}
	s.mu.Unlock()

	go s.dial()
}

func (s *session) dial() {
	s.log.Debug("dialing %s (sni=%s, alpn=%v)", s.cfg.Remote, s.cfg.ServerName, s.cfg.ALPN)

	conn, err := s.tr.DialEarly(s.ctx, s.cfg.Remote, s.cfg.tlsConfig(), s.cfg.quicConfig())
	if err != nil {
		s.closed(err)
		return
	}

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	select {
	case <-conn.HandshakeComplete():
		s.log.Verbose("handshake complete (alpn=%s)", conn.ConnectionState().TLS.NegotiatedProtocol)
		s.transition(StatusConnecting, StatusConnected)
		go s.acceptStreams(conn)
	case <-conn.Context().Done():
	}

	<-conn.Context().Done()
	s.closed(context.Cause(conn.Context()))
}

// acceptStreams surfaces peer-initiated streams; this client never
// expects any.
func (s *session) acceptStreams(conn quic.Connection) {
	for {
		st, err := conn.AcceptStream(conn.Context())
		if err != nil {
			return
		}
		id := StreamID(st.StreamID())
		st.CancelRead(0)
		s.push(Event{Kind: EventNewStream, Stream: id})
	}
}

func (s *session) transition(from, to Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Status == from {
		s.state.Status = to
	}
}

func (s *session) closed(reason error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = State{Status: StatusClosed, Reason: reason}
	s.log.Verbose("connection closed: %v", reason)
}

func (s *session) connection() quic.EarlyConnection {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Status != StatusConnected {
		return nil
	}
	return s.conn
}

// push queues an event raised by a background goroutine.
func (s *session) push(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.staged {
		s.pending = append(s.pending, ev)
		return
	}
	s.events = append(s.events, ev)
}

// emit queues an event raised on the caller's goroutine; it is visible
// to the next Events call.
func (s *session) emit(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

// promote makes staged background events visible.
func (s *session) promote() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, s.pending...)
	s.pending = nil
}

// track registers a receive buffer for id.
func (s *session) track(id StreamID) *recvBuffer {
	buf := &recvBuffer{}
	s.streams.Set(id, buf)
	return buf
}

// drain copies r into the stream's buffer, raising DataReadable as
// bytes arrive and on FIN, or StreamReset on any other error.
func (s *session) drain(id StreamID, r io.Reader, buf *recvBuffer) {
	chunk := make([]byte, readChunkSize)
	for {
		n, err := r.Read(chunk)
		if n > 0 && buf.append(chunk[:n]) {
			s.push(Event{Kind: EventDataReadable, Stream: id})
		}
		if err == nil {
			continue
		}
		if errors.Is(err, io.EOF) {
			if buf.finish() {
				s.push(Event{Kind: EventDataReadable, Stream: id})
			}
			return
		}
		s.log.Debug("stream %d: %v", id, err)
		buf.fail(err)
		s.push(Event{Kind: EventStreamReset, Stream: id})
		return
	}
}

// recv reads buffered bytes for id.
func (s *session) recv(id StreamID, p []byte) (int, bool, error) {
	buf, ok := s.streams.Get(id)
	if !ok {
		return 0, false, qerrors.ErrUnknownStream
	}
	n, fin, more, err := buf.read(p)
	if more {
		s.emit(Event{Kind: EventDataReadable, Stream: id})
	}
	return n, fin, err
}
