// Package errors provides domain-specific error types for quicget.
//
// These types carry structured context (operation, address, stream) that
// lets the CLI layer report failures precisely.
package errors

import (
	"errors"
	"fmt"
)

// ── Sentinel errors ──────────────────────────────────────────────────

var (
	ErrNoAddress     = errors.New("no remote addresses")
	ErrInvalidPort   = errors.New("invalid port")
	ErrNotConnected  = errors.New("not connected")
	ErrUnknownStream = errors.New("unknown stream")
	ErrStreamLimit   = errors.New("stream already open")
)

// ── Structured error types ───────────────────────────────────────────

// NetworkError represents a failure in a network operation.  Every
// NetworkError that reaches the CLI terminates the process with exit 1.
type NetworkError struct {
	Op   string // operation: "resolve", "bind", "fetch", "recv", "send"
	Addr string // network address involved
	Err  error  // underlying error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Addr, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ConfigError represents an invalid configuration value.
type ConfigError struct {
	Field   string      // config field name
	Value   interface{} // the invalid value (nil if missing)
	Message string      // human-readable explanation
	Hint    string      // suggestion for the user (optional)
}

func (e *ConfigError) Error() string {
	msg := fmt.Sprintf("config: --%s", e.Field)
	if e.Value != nil {
		msg += fmt.Sprintf("=%v", e.Value)
	}
	msg += ": " + e.Message
	if e.Hint != "" {
		msg += "\n  hint: " + e.Hint
	}
	return msg
}

// InvariantError reports a broken contract with the connection facade,
// such as a read failing right after the facade announced readable data.
// It is raised with panic and converted back to an error by the session.
type InvariantError struct {
	Op     string
	Stream uint64
	Err    error
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("invariant violated: %s on stream %d: %v", e.Op, e.Stream, e.Err)
}

func (e *InvariantError) Unwrap() error { return e.Err }

// ── Constructors ─────────────────────────────────────────────────────

// Wrap creates a NetworkError.
func Wrap(op, addr string, err error) *NetworkError {
	return &NetworkError{Op: op, Addr: addr, Err: err}
}

// Invariant creates an InvariantError.
func Invariant(op string, stream uint64, err error) *InvariantError {
	return &InvariantError{Op: op, Stream: stream, Err: err}
}
