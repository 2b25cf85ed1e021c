// Package core is the orchestration layer.  It composes the socket,
// the connection facade, the pump and the phase handler into a
// complete client run, and provides a builder that derives that run
// from a Config.
//
// Architecture layers (bottom → top):
//
//	transport  →  pump / phase  →  session  →  core  →  cmd (CLI)
package core

import "context"

// Mode represents a complete operational mode of quicget.  A mode owns
// its full lifecycle from address resolution to teardown.
type Mode interface {
	Run(ctx context.Context) error
}
