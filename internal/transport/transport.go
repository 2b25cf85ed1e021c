// Package transport defines the connection facade the datagram pump
// drives, and provides the UDP socket plus the quic-go backed facade
// implementations.  The facade owns all protocol and connection state;
// the pump owns the socket and only moves datagrams and time across
// the boundary.
package transport

import (
	"fmt"
	"strings"
	"time"
)

// StreamID identifies a stream within one session.  Facades assign
// them; callers only receive and compare them.
type StreamID uint64

// Status is the coarse lifecycle of a session.
type Status uint8

const (
	StatusIdle Status = iota
	StatusConnecting
	StatusConnected
	StatusClosing
	StatusClosed
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusClosing:
		return "closing"
	case StatusClosed:
		return "closed"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

// State is the facade's session state.  Reason is only meaningful once
// Status is StatusClosed.
type State struct {
	Status Status
	Reason error
}

// Closed reports whether the session reached its terminal state.
func (s State) Closed() bool { return s.Status == StatusClosed }

// Connected reports whether the handshake has completed and the
// session is not yet closing.
func (s State) Connected() bool { return s.Status == StatusConnected }

func (s State) String() string {
	if s.Status == StatusClosed && s.Reason != nil {
		return fmt.Sprintf("closed(%v)", s.Reason)
	}
	return s.Status.String()
}

// EventKind tags an Event.
type EventKind uint8

const (
	// EventHeaderReady means a response header block can be fetched.
	EventHeaderReady EventKind = iota + 1
	// EventDataReadable means stream data (or FIN) can be read.
	EventDataReadable
	// EventSendWritable means a stream accepts more data.
	EventSendWritable
	// EventStreamReset means the peer aborted a stream.
	EventStreamReset
	// EventNewStream means the peer opened a stream.
	EventNewStream
)

func (k EventKind) String() string {
	switch k {
	case EventHeaderReady:
		return "HeaderReady"
	case EventDataReadable:
		return "DataReadable"
	case EventSendWritable:
		return "SendWritable"
	case EventStreamReset:
		return "StreamReset"
	case EventNewStream:
		return "NewStream"
	default:
		return fmt.Sprintf("EventKind(%d)", uint8(k))
	}
}

// Event is one facade-observable occurrence on a stream.
type Event struct {
	Kind   EventKind
	Stream StreamID
}

func (e Event) String() string {
	return fmt.Sprintf("%s { stream_id: %d }", e.Kind, e.Stream)
}

// Header is one request or response header field.
type Header struct {
	Name  string
	Value string
}

// HeaderList formats as [("name", "value"), ...].
type HeaderList []Header

func (h HeaderList) String() string {
	var b strings.Builder
	b.WriteByte('[')
	for i, f := range h {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "(%q, %q)", f.Name, f.Value)
	}
	b.WriteByte(']')
	return b.String()
}

// Request is the single structured request a framed session issues.
type Request struct {
	Method    string
	Scheme    string
	Authority string
	Path      string
	Headers   []Header
}

// Conn is the operation contract shared by both facade variants.
type Conn interface {
	// ProcessInput applies inbound datagrams (possibly none).
	ProcessInput(dgrams []Datagram, now time.Time)
	// ProcessOutput returns the datagrams to transmit and the time
	// after which the facade would like to be called again.
	ProcessOutput(now time.Time) ([]Datagram, time.Duration)
	// State reports the current session state.
	State() State
	// Events drains pending events.
	Events() []Event
	// Close starts an application close of the session.
	Close(code uint64, reason string)
	// Release frees resources once the session is over.
	Release() error
}

// RawConn is the facade for raw mode: a plain bidirectional stream.
type RawConn interface {
	Conn
	StreamCreate() (StreamID, error)
	StreamSend(id StreamID, data []byte) (int, error)
	StreamRecv(id StreamID, buf []byte) (n int, fin bool, err error)
	StreamClose(id StreamID) error
}

// FramedConn is the facade for framed (HTTP/3) mode.
type FramedConn interface {
	Conn
	// ProcessHTTP3 surfaces application-level events; it is distinct
	// from transport input processing.
	ProcessHTTP3(now time.Time)
	Fetch(req Request) (StreamID, error)
	Headers(id StreamID) (HeaderList, error)
	ReadData(id StreamID, buf []byte) (n int, fin bool, err error)
}
