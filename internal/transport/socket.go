package transport

import (
	"net"

	qerrors "quicget/internal/errors"
	"quicget/util"
)

// Socket is the datagram socket the pump owns.  A connected
// *net.UDPConn satisfies it.
type Socket interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	LocalAddr() net.Addr
	RemoteAddr() net.Addr
	Close() error
}

// UDPBinder opens connected UDP sockets, optionally binding to a
// specific source port.
type UDPBinder struct {
	LocalPort int // optional source-port binding (0 = ephemeral)
}

// Bind opens a socket on the wildcard address of remote's family and
// connects it to remote.
func (b *UDPBinder) Bind(remote *net.UDPAddr) (*net.UDPConn, error) {
	local := util.WildcardFor(remote)
	local.Port = b.LocalPort

	conn, err := net.DialUDP("udp", local, remote)
	if err != nil {
		return nil, qerrors.Wrap("bind", local.String(), err)
	}
	return conn, nil
}
