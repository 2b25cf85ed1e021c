package core

import (
	"bytes"
	"context"
	"errors"
	"net"
	"net/url"
	"strings"
	"testing"
	"time"

	qerrors "quicget/internal/errors"
	"quicget/internal/transport"
	"quicget/util"
)

// udpPeer listens on loopback.  With echo set it returns every datagram
// to its sender; otherwise it swallows them.
func udpPeer(t *testing.T, echo bool) *net.UDPConn {
	t.Helper()
	pc, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { pc.Close() })

	go func() {
		buf := make([]byte, 2048)
		for {
			n, from, err := pc.ReadFromUDP(buf)
			if err != nil {
				return
			}
			if echo {
				pc.WriteToUDP(buf[:n], from) //nolint:errcheck
			}
		}
	}()
	return pc
}

// scriptedConn connects on its second input and answers the fetch with
// a single-chunk response.
type scriptedConn struct {
	cfg      transport.ClientConfig
	status   transport.Status
	connect  bool
	inputs   int
	opened   bool
	served   bool
	events   []transport.Event
	released bool
}

func (c *scriptedConn) ProcessInput([]transport.Datagram, time.Time) {
	c.inputs++
	if c.connect && c.status == transport.StatusConnecting && c.inputs > 1 {
		c.status = transport.StatusConnected
	}
}

func (c *scriptedConn) ProcessOutput(time.Time) ([]transport.Datagram, time.Duration) {
	return []transport.Datagram{transport.NewDatagram(c.cfg.Local, c.cfg.Remote, []byte("ping"))}, 0
}

func (c *scriptedConn) State() transport.State { return transport.State{Status: c.status} }

func (c *scriptedConn) Events() []transport.Event {
	ev := c.events
	c.events = nil
	return ev
}

func (c *scriptedConn) Close(uint64, string) { c.status = transport.StatusClosing }

func (c *scriptedConn) Release() error {
	c.released = true
	return nil
}

func (c *scriptedConn) ProcessHTTP3(time.Time) {
	if c.opened && !c.served {
		c.served = true
		c.events = []transport.Event{
			{Kind: transport.EventHeaderReady, Stream: 0},
			{Kind: transport.EventDataReadable, Stream: 0},
		}
	}
}

func (c *scriptedConn) Fetch(transport.Request) (transport.StreamID, error) {
	c.opened = true
	return 0, nil
}

func (c *scriptedConn) Headers(transport.StreamID) (transport.HeaderList, error) {
	return transport.HeaderList{{Name: ":status", Value: "200"}}, nil
}

func (c *scriptedConn) ReadData(_ transport.StreamID, buf []byte) (int, bool, error) {
	return copy(buf, "hello"), true, nil
}

func newClientMode(t *testing.T, peer *net.UDPConn, conn *scriptedConn, out *bytes.Buffer) *ClientMode {
	t.Helper()
	target, err := url.Parse("https://" + peer.LocalAddr().String() + "/")
	if err != nil {
		t.Fatal(err)
	}
	return &ClientMode{
		Target:    target,
		Request:   transport.Request{Method: "GET", Scheme: "https", Authority: target.Host, Path: "/"},
		Binder:    &transport.UDPBinder{},
		Transport: transport.ClientConfig{ServerName: "localhost"},
		NewFacade: func(_ context.Context, cfg transport.ClientConfig) transport.Conn {
			conn.cfg = cfg
			conn.status = transport.StatusConnecting
			return conn
		},
		Logger: util.NewLogger(0),
		Stdout: out,
	}
}

// TestClientMode_Run verifies a full exchange over a loopback socket.
func TestClientMode_Run(t *testing.T) {
	peer := udpPeer(t, true)
	conn := &scriptedConn{connect: true}
	out := &bytes.Buffer{}
	mode := newClientMode(t, peer, conn, out)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := mode.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	got := out.String()
	if !strings.HasPrefix(got, "Client connecting: ") {
		t.Errorf("output does not start with the connecting banner: %q", got)
	}
	want := "READ HEADERS[0]: [(\":status\", \"200\")]\nREAD[0]: hello\n<FIN[0]>\n"
	if !strings.HasSuffix(got, want) {
		t.Errorf("output = %q, want suffix %q", got, want)
	}
	if !conn.released {
		t.Error("facade was not released")
	}
	if conn.cfg.Remote.String() != peer.LocalAddr().String() {
		t.Errorf("remote = %v, want %v", conn.cfg.Remote, peer.LocalAddr())
	}
	if conn.cfg.RootCAs == nil || conn.cfg.ServerName != "localhost" {
		t.Errorf("facade config = %+v", conn.cfg)
	}
	if mode.Metrics.Snapshot().DatagramsOut == 0 {
		t.Error("no datagrams counted")
	}
}

// TestClientMode_FacadeLoggerTagged verifies the facade logs under the
// session id.
func TestClientMode_FacadeLoggerTagged(t *testing.T) {
	peer := udpPeer(t, true)
	conn := &scriptedConn{connect: true}
	mode := newClientMode(t, peer, conn, &bytes.Buffer{})

	var logs bytes.Buffer
	mode.Logger = util.NewLogger(1)
	mode.Logger.SetOutput(&logs)
	mode.Logger.SetTimestamps(false)

	newFacade := mode.NewFacade
	mode.NewFacade = func(ctx context.Context, cfg transport.ClientConfig) transport.Conn {
		cfg.Logger.Warn("facade created")
		return newFacade(ctx, cfg)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := mode.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	line := logs.String()
	if !strings.Contains(line, "facade created") || !strings.Contains(line, `"session": "`) {
		t.Errorf("facade log line is not session-tagged: %q", line)
	}
}

// TestClientMode_ResolveError verifies resolution failures are
// reported as network errors.
func TestClientMode_ResolveError(t *testing.T) {
	target, _ := url.Parse("https://unresolvable.test/")
	mode := &ClientMode{
		Target: target,
		Resolve: func(*url.URL) (*net.UDPAddr, error) {
			return nil, errors.New("no such host")
		},
		Stdout: &bytes.Buffer{},
	}

	err := mode.Run(context.Background())
	var ne *qerrors.NetworkError
	if !errors.As(err, &ne) || ne.Op != "resolve" {
		t.Fatalf("err = %v, want a resolve NetworkError", err)
	}
}

// TestClientMode_Cancel verifies that cancelling the context unblocks
// a session waiting on a silent peer.
func TestClientMode_Cancel(t *testing.T) {
	peer := udpPeer(t, false)
	conn := &scriptedConn{}
	mode := newClientMode(t, peer, conn, &bytes.Buffer{})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err := mode.Run(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want context.DeadlineExceeded", err)
	}
	if !conn.released {
		t.Error("facade was not released")
	}
}
