package transport

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	qerrors "quicget/internal/errors"
)

func TestNewRaw_DefaultALPN(t *testing.T) {
	r := NewRaw(context.Background(), testConfig())
	defer r.Release()
	require.Equal(t, []string{DefaultRawALPN}, r.cfg.ALPN)

	cfg := testConfig()
	cfg.ALPN = []string{"custom"}
	r2 := NewRaw(context.Background(), cfg)
	defer r2.Release()
	require.Equal(t, []string{"custom"}, r2.cfg.ALPN)
}

func TestRaw_NotConnected(t *testing.T) {
	re := require.New(t)
	r := NewRaw(context.Background(), testConfig())
	defer r.Release()

	_, err := r.StreamCreate()
	re.ErrorIs(err, qerrors.ErrNotConnected)

	_, err = r.StreamSend(0, []byte("x"))
	re.ErrorIs(err, qerrors.ErrUnknownStream)
	re.ErrorIs(r.StreamClose(0), qerrors.ErrUnknownStream)
}

func TestNewFramed_DefaultALPN(t *testing.T) {
	f := NewFramed(context.Background(), testConfig())
	defer f.Release()
	require.Equal(t, []string{DefaultFramedALPN}, f.cfg.ALPN)
}

func TestFramed_NotConnected(t *testing.T) {
	re := require.New(t)
	f := NewFramed(context.Background(), testConfig())
	defer f.Release()

	_, err := f.Fetch(Request{Method: "GET", Scheme: "https", Authority: "example.org", Path: "/"})
	re.ErrorIs(err, qerrors.ErrNotConnected)

	_, err = f.Headers(0)
	re.ErrorIs(err, qerrors.ErrUnknownStream)

	_, err = f.reuse(context.Background(), "example.org:443", nil, nil)
	re.ErrorIs(err, qerrors.ErrNotConnected)
}

func TestFramed_SingleRequest(t *testing.T) {
	f := NewFramed(context.Background(), testConfig())
	defer f.Release()

	require.True(t, f.claim())
	require.False(t, f.claim())
	require.False(t, f.claim())
}

func TestNewHTTPRequest(t *testing.T) {
	re := require.New(t)
	req, err := newHTTPRequest(context.Background(), Request{
		Method:    "HEAD",
		Scheme:    "https",
		Authority: "example.org:4433",
		Path:      "/a/b?x=1",
		Headers: []Header{
			{Name: "user-agent", Value: "quicget"},
			{Name: "Host", Value: "override.example"},
		},
	})
	re.NoError(err)
	re.Equal("HEAD", req.Method)
	re.Equal("https://example.org:4433/a/b?x=1", req.URL.String())
	re.Equal("quicget", req.Header.Get("User-Agent"))
	re.Equal("override.example", req.Host)
}

func TestResponseHeaders(t *testing.T) {
	resp := &http.Response{
		StatusCode: 200,
		Header: http.Header{
			"Server":       {"h2o"},
			"Content-Type": {"text/plain"},
			"Vary":         {"a", "b"},
		},
	}
	got := responseHeaders(resp)
	require.Equal(t, HeaderList{
		{Name: ":status", Value: "200"},
		{Name: "content-type", Value: "text/plain"},
		{Name: "server", Value: "h2o"},
		{Name: "vary", Value: "a"},
		{Name: "vary", Value: "b"},
	}, got)
	require.Equal(t,
		`[(":status", "200"), ("content-type", "text/plain"), ("server", "h2o"), ("vary", "a"), ("vary", "b")]`,
		got.String())
}
