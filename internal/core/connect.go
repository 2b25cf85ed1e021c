package core

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/url"
	"os"

	qerrors "quicget/internal/errors"
	"quicget/internal/metrics"
	"quicget/internal/phase"
	"quicget/internal/pump"
	"quicget/internal/session"
	"quicget/internal/transport"
	"quicget/internal/trust"
	"quicget/util"
)

// ClientMode resolves the target, binds a UDP socket and runs one
// session against it.  It is the only mode quicget has.
type ClientMode struct {
	Target     *url.URL
	Request    transport.Request
	Binder     *transport.UDPBinder
	TrustStore string

	// Transport is the facade configuration template; the addresses
	// and root pool are filled in by Run.
	Transport transport.ClientConfig
	NewFacade FacadeFunc
	Logger    *util.Logger

	// Stdout defaults to os.Stdout and Resolve to util.ResolveRemote
	// when nil.  Override in tests.
	Stdout  io.Writer
	Resolve func(u *url.URL) (*net.UDPAddr, error)

	// Metrics is populated by Run.
	Metrics *metrics.Collector
}

func (m *ClientMode) stdout() io.Writer {
	if m.Stdout != nil {
		return m.Stdout
	}
	return os.Stdout
}

func (m *ClientMode) resolve(u *url.URL) (*net.UDPAddr, error) {
	if m.Resolve != nil {
		return m.Resolve(u)
	}
	return util.ResolveRemote(u)
}

// Run executes the session.  Cancelling ctx closes the socket, which
// ends the pump with a receive error.
func (m *ClientMode) Run(ctx context.Context) error {
	if m.Logger == nil {
		m.Logger = util.NewLogger(0)
	}

	remote, err := m.resolve(m.Target)
	if err != nil {
		return qerrors.Wrap("resolve", m.Target.Host, err)
	}
	if remote == nil {
		return qerrors.Wrap("resolve", m.Target.Host, qerrors.ErrNoAddress)
	}

	binder := m.Binder
	if binder == nil {
		binder = &transport.UDPBinder{}
	}
	sock, err := binder.Bind(remote)
	if err != nil {
		return err
	}
	defer sock.Close()
	stop := context.AfterFunc(ctx, func() { _ = sock.Close() })
	defer stop()

	fmt.Fprintf(m.stdout(), "Client connecting: %s -> %s\n", sock.LocalAddr(), sock.RemoteAddr())

	roots, err := trust.Load(m.TrustStore, m.Logger)
	if err != nil {
		return err
	}

	id, logger := session.Tag(m.Logger)

	cfg := m.Transport
	cfg.Local = sock.LocalAddr()
	cfg.Remote = remote
	cfg.RootCAs = roots
	cfg.Logger = logger

	newFacade := m.NewFacade
	if newFacade == nil {
		newFacade = facadeFor(false)
	}
	conn := newFacade(ctx, cfg)
	defer func() {
		if err := conn.Release(); err != nil {
			logger.Debug("release: %v", err)
		}
	}()

	m.Metrics = metrics.New()
	sess := session.WithID(id, conn,
		pump.New(sock, logger, m.Metrics),
		phase.New(m.stdout(), logger, m.Metrics),
		m.Request, logger)

	st, err := sess.Run()
	logger.Verbose("session finished: %s after %d iterations (%d bytes in, %d bytes out)",
		st, m.Metrics.Iterations(), m.Metrics.TotalBytesIn(), m.Metrics.TotalBytesOut())
	if logger.Level() >= util.LogDebug {
		logger.Debug("metrics: %s", m.Metrics.JSON())
	}

	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}
