package transport

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/require"

	qerrors "quicget/internal/errors"
	"quicget/util"
)

func testConfig() ClientConfig {
	return ClientConfig{
		ServerName: "example.org",
		Local:      pipeLocal,
		Remote:     pipeRemote,
		Logger:     util.NewLogger(0),
	}
}

func TestRecvBuffer_ReadRearm(t *testing.T) {
	re := require.New(t)
	b := &recvBuffer{}

	re.True(b.append([]byte("hello world")))
	re.False(b.append([]byte("!")), "already armed")

	p := make([]byte, 5)
	n, fin, more, err := b.read(p)
	re.NoError(err)
	re.Equal("hello", string(p[:n]))
	re.False(fin)
	re.True(more)

	p = make([]byte, 64)
	n, fin, more, err = b.read(p)
	re.NoError(err)
	re.Equal(" world!", string(p[:n]))
	re.False(fin)
	re.False(more)

	re.True(b.finish())
	n, fin, more, err = b.read(p)
	re.NoError(err)
	re.Zero(n)
	re.True(fin)
	re.False(more)
}

func TestRecvBuffer_DataBeforeError(t *testing.T) {
	re := require.New(t)
	b := &recvBuffer{}
	reset := errors.New("reset")

	b.append([]byte("abc"))
	b.fail(reset)

	p := make([]byte, 8)
	n, _, _, err := b.read(p)
	re.NoError(err)
	re.Equal(3, n)

	_, _, _, err = b.read(p)
	re.ErrorIs(err, reset)
}

func TestSession_DrainEvents(t *testing.T) {
	re := require.New(t)
	s := newSession(context.Background(), testConfig())
	defer s.Release()

	text := gofakeit.Sentence(12)
	buf := s.track(0)
	s.drain(0, strings.NewReader(text), buf)

	ev := s.Events()
	re.Equal([]Event{{Kind: EventDataReadable, Stream: 0}}, ev)
	re.Empty(s.Events())

	p := make([]byte, 4)
	var got []byte
	for {
		n, fin, err := s.recv(0, p)
		re.NoError(err)
		got = append(got, p[:n]...)
		if fin {
			break
		}
		re.Equal([]Event{{Kind: EventDataReadable, Stream: 0}}, s.Events())
	}
	re.Equal(text, string(got))
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, io.ErrUnexpectedEOF }

func TestSession_DrainReset(t *testing.T) {
	re := require.New(t)
	s := newSession(context.Background(), testConfig())
	defer s.Release()

	buf := s.track(4)
	s.drain(4, failingReader{}, buf)
	re.Equal([]Event{{Kind: EventStreamReset, Stream: 4}}, s.Events())
}

func TestSession_StagedEvents(t *testing.T) {
	re := require.New(t)
	s := newSession(context.Background(), testConfig())
	defer s.Release()
	s.staged = true

	s.push(Event{Kind: EventHeaderReady, Stream: 0})
	re.Empty(s.Events())

	s.promote()
	re.Equal([]Event{{Kind: EventHeaderReady, Stream: 0}}, s.Events())
}

func TestSession_UnknownStream(t *testing.T) {
	s := newSession(context.Background(), testConfig())
	defer s.Release()

	_, _, err := s.recv(8, make([]byte, 4))
	require.ErrorIs(t, err, qerrors.ErrUnknownStream)
}

func TestSession_CloseBeforeStart(t *testing.T) {
	re := require.New(t)
	s := newSession(context.Background(), testConfig())
	defer s.Release()

	re.Equal(StatusIdle, s.State().Status)
	s.Close(0, "bye")
	re.Equal(StatusClosing, s.State().Status)
	re.Error(s.ctx.Err())
}

func TestClientConfig_TLS(t *testing.T) {
	re := require.New(t)
	cfg := testConfig()
	cfg.ALPN = []string{"h3"}
	cfg.Insecure = true

	tc := cfg.tlsConfig()
	re.Equal("example.org", tc.ServerName)
	re.Equal([]string{"h3"}, tc.NextProtos)
	re.True(tc.InsecureSkipVerify)

	tc.NextProtos[0] = "changed"
	re.Equal("h3", cfg.ALPN[0])
}
