package core

import (
	"context"

	"quicget/config"
	"quicget/internal/transport"
	"quicget/util"
)

// FacadeFunc constructs the connection facade for one session.
type FacadeFunc func(ctx context.Context, cfg transport.ClientConfig) transport.Conn

// Build constructs the client Mode from a validated configuration.
func Build(cfg *config.Config, logger *util.Logger) (Mode, error) {
	if cfg.Target == nil {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}

	headers := make([]transport.Header, 0, len(cfg.HeaderFields))
	for _, h := range cfg.HeaderFields {
		headers = append(headers, transport.Header{Name: h.Name, Value: h.Value})
	}

	return &ClientMode{
		Target: cfg.Target,
		Request: transport.Request{
			Method:    cfg.Method,
			Scheme:    cfg.Target.Scheme,
			Authority: cfg.Target.Host,
			Path:      cfg.RequestPath(),
			Headers:   headers,
		},
		Binder:     &transport.UDPBinder{LocalPort: cfg.LocalPort},
		TrustStore: cfg.DB,
		Transport: transport.ClientConfig{
			ServerName:        cfg.Target.Hostname(),
			ALPN:              cfg.ALPN,
			Insecure:          cfg.Insecure,
			Settle:            cfg.Settle,
			MaxTableSize:      cfg.MaxTableSize,
			MaxBlockedStreams: cfg.MaxBlockedStreams,
		},
		NewFacade: facadeFor(cfg.UseOldHTTP),
		Logger:    logger,
	}, nil
}

// ── shared helpers ───────────────────────────────────────────────────

// facadeFor selects the facade variant: a raw stream for HTTP/0.9,
// HTTP/3 framing otherwise.
func facadeFor(raw bool) FacadeFunc {
	if raw {
		return func(ctx context.Context, cfg transport.ClientConfig) transport.Conn {
			return transport.NewRaw(ctx, cfg)
		}
	}
	return func(ctx context.Context, cfg transport.ClientConfig) transport.Conn {
		return transport.NewFramed(ctx, cfg)
	}
}
