package transport

import (
	"context"
	"crypto/tls"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/quic-go/quic-go"
	"github.com/quic-go/quic-go/http3"

	qerrors "quicget/internal/errors"
)

// DefaultFramedALPN is the protocol negotiated by framed mode unless
// the operator picks another.
const DefaultFramedALPN = "h3"

// h3RequestIncomplete is the HTTP/3 error code used to close the
// connection when a request cannot complete.
const h3RequestIncomplete = 0x10d

// Framed is a FramedConn: HTTP/3 request/response over a quic-go
// session.  Events raised while the response arrives are staged until
// ProcessHTTP3 so the handler observes them after HTTP/3 processing.
type Framed struct {
	*session
	h3 *http3.Transport

	headers cmap.ConcurrentMap[StreamID, HeaderList]

	reqMu     sync.Mutex
	requested bool
	wg        sync.WaitGroup
}

var _ FramedConn = (*Framed)(nil)

// NewFramed returns a framed facade.  The handshake starts on the first
// ProcessInput call; the HTTP/3 layer attaches to that connection.
func NewFramed(ctx context.Context, cfg ClientConfig) *Framed {
	if len(cfg.ALPN) == 0 {
		cfg.ALPN = []string{DefaultFramedALPN}
	}
	s := newSession(ctx, cfg)
	s.staged = true

	f := &Framed{
		session: s,
		headers: cmap.NewWithCustomShardingFunction[StreamID, HeaderList](func(key StreamID) uint32 {
			return uint32(key)
		}),
	}
	f.h3 = &http3.Transport{
		TLSClientConfig: cfg.tlsConfig(),
		QUICConfig:      cfg.quicConfig(),
		Dial:            f.reuse,
	}
	// quic-go's QPACK decoder only uses the static table, so the dynamic
	// table limits are not advertised.
	s.log.Verbose("qpack: max table size %d, max blocked streams %d (static table only)",
		cfg.MaxTableSize, cfg.MaxBlockedStreams)
	return f
}

// reuse hands the established connection to the HTTP/3 layer.
func (f *Framed) reuse(context.Context, string, *tls.Config, *quic.Config) (quic.EarlyConnection, error) {
	conn := f.connection()
	if conn == nil {
		return nil, qerrors.ErrNotConnected
	}
	return conn, nil
}

// ProcessHTTP3 makes events staged since the previous call visible.
func (f *Framed) ProcessHTTP3(time.Time) {
	f.promote()
}

// Fetch sends req on the session's request stream and returns its id.
// A session carries one request; later calls fail with ErrStreamLimit.
func (f *Framed) Fetch(req Request) (StreamID, error) {
	if f.connection() == nil {
		return 0, qerrors.ErrNotConnected
	}
	hreq, err := newHTTPRequest(f.ctx, req)
	if err != nil {
		return 0, err
	}
	if !f.claim() {
		return 0, qerrors.ErrStreamLimit
	}

	id := requestStreamID
	buf := f.track(id)

	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		f.roundTrip(id, hreq, buf)
	}()
	return id, nil
}

// Headers returns the response header block for id, :status first.
func (f *Framed) Headers(id StreamID) (HeaderList, error) {
	h, ok := f.headers.Get(id)
	if !ok {
		return nil, qerrors.ErrUnknownStream
	}
	return h, nil
}

func (f *Framed) ReadData(id StreamID, buf []byte) (int, bool, error) {
	return f.recv(id, buf)
}

// Release closes the HTTP/3 layer before the underlying session.
func (f *Framed) Release() error {
	_ = f.h3.Close()
	err := f.session.Release()
	f.wg.Wait()
	return err
}

// requestStreamID is the id of the only request a Framed session
// carries.  The HTTP/3 control and QPACK streams are unidirectional, so
// the request opens the first client-initiated bidirectional stream.
const requestStreamID StreamID = 0

// claim reserves the session's single request.
func (f *Framed) claim() bool {
	f.reqMu.Lock()
	defer f.reqMu.Unlock()
	if f.requested {
		return false
	}
	f.requested = true
	return true
}

func (f *Framed) roundTrip(id StreamID, req *http.Request, buf *recvBuffer) {
	resp, err := f.h3.RoundTrip(req)
	if err != nil {
		f.log.Verbose("request on stream %d failed: %v", id, err)
		buf.fail(err)
		f.push(Event{Kind: EventStreamReset, Stream: id})
		f.Close(h3RequestIncomplete, "request failed")
		return
	}
	defer resp.Body.Close()

	f.headers.Set(id, responseHeaders(resp))
	f.push(Event{Kind: EventHeaderReady, Stream: id})
	f.drain(id, resp.Body, buf)
}

func newHTTPRequest(ctx context.Context, req Request) (*http.Request, error) {
	u, err := url.Parse(req.Scheme + "://" + req.Authority + req.Path)
	if err != nil {
		return nil, qerrors.Wrap("request", req.Authority, err)
	}
	hreq, err := http.NewRequestWithContext(ctx, req.Method, u.String(), nil)
	if err != nil {
		return nil, qerrors.Wrap("request", req.Authority, err)
	}
	for _, h := range req.Headers {
		if strings.EqualFold(h.Name, "host") {
			hreq.Host = h.Value
			continue
		}
		hreq.Header.Add(h.Name, h.Value)
	}
	return hreq, nil
}

// responseHeaders flattens resp into wire order: :status, then the
// remaining fields sorted by lowercase name.
func responseHeaders(resp *http.Response) HeaderList {
	names := make([]string, 0, len(resp.Header))
	for name := range resp.Header {
		names = append(names, name)
	}
	sort.Strings(names)

	list := HeaderList{{Name: ":status", Value: strconv.Itoa(resp.StatusCode)}}
	for _, name := range names {
		lower := strings.ToLower(name)
		for _, v := range resp.Header[name] {
			list = append(list, Header{Name: lower, Value: v})
		}
	}
	return list
}
