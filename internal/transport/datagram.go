package transport

import "net"

// Datagram is one immutable unit of UDP traffic with its addressing.
type Datagram struct {
	src     net.Addr
	dst     net.Addr
	payload []byte
}

// NewDatagram copies payload, so callers may reuse their buffer.
func NewDatagram(src, dst net.Addr, payload []byte) Datagram {
	p := make([]byte, len(payload))
	copy(p, payload)
	return Datagram{src: src, dst: dst, payload: p}
}

// Source is the sending endpoint.
func (d Datagram) Source() net.Addr { return d.src }

// Destination is the receiving endpoint.
func (d Datagram) Destination() net.Addr { return d.dst }

// Payload returns the datagram bytes.  Callers must not modify them.
func (d Datagram) Payload() []byte { return d.payload }

// Len is the payload length.
func (d Datagram) Len() int { return len(d.payload) }
