package transport

import (
	"context"

	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/quic-go/quic-go"

	qerrors "quicget/internal/errors"
)

// DefaultRawALPN is the protocol negotiated by raw mode unless the
// operator picks another.
const DefaultRawALPN = "hq-interop"

// Raw is a RawConn over a quic-go session.
type Raw struct {
	*session
	send cmap.ConcurrentMap[StreamID, quic.Stream]
}

var _ RawConn = (*Raw)(nil)

// NewRaw returns a raw facade.  The handshake starts on the first
// ProcessInput call.
func NewRaw(ctx context.Context, cfg ClientConfig) *Raw {
	if len(cfg.ALPN) == 0 {
		cfg.ALPN = []string{DefaultRawALPN}
	}
	return &Raw{
		session: newSession(ctx, cfg),
		send: cmap.NewWithCustomShardingFunction[StreamID, quic.Stream](func(key StreamID) uint32 {
			return uint32(key)
		}),
	}
}

// StreamCreate opens the session's client bidirectional stream and
// reports it writable.  A second stream fails with ErrStreamLimit.
func (r *Raw) StreamCreate() (StreamID, error) {
	conn := r.connection()
	if conn == nil {
		return 0, qerrors.ErrNotConnected
	}
	if r.send.Count() > 0 {
		return 0, qerrors.ErrStreamLimit
	}
	st, err := conn.OpenStream()
	if err != nil {
		return 0, qerrors.Wrap("stream open", r.cfg.Remote.String(), err)
	}

	id := StreamID(st.StreamID())
	buf := r.track(id)
	r.send.Set(id, st)
	go r.drain(id, st, buf)

	r.emit(Event{Kind: EventSendWritable, Stream: id})
	return id, nil
}

func (r *Raw) StreamSend(id StreamID, data []byte) (int, error) {
	st, ok := r.send.Get(id)
	if !ok {
		return 0, qerrors.ErrUnknownStream
	}
	return st.Write(data)
}

func (r *Raw) StreamRecv(id StreamID, buf []byte) (int, bool, error) {
	return r.recv(id, buf)
}

// StreamClose finishes the send direction.
func (r *Raw) StreamClose(id StreamID) error {
	st, ok := r.send.Get(id)
	if !ok {
		return qerrors.ErrUnknownStream
	}
	return st.Close()
}
