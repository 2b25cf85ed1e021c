package core

import (
	"context"
	"testing"

	"quicget/config"
	"quicget/internal/transport"
	"quicget/util"
)

func validConfig(t *testing.T, url string) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.URL = url
	cfg.Headers = []string{"Accept: text/plain"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	return cfg
}

// TestBuild_Framed verifies the request and facade template for an
// HTTP/3 target.
func TestBuild_Framed(t *testing.T) {
	cfg := validConfig(t, "https://example.org:4433/index.html?q=1")

	mode, err := Build(cfg, util.NewLogger(0))
	if err != nil {
		t.Fatal(err)
	}
	cm, ok := mode.(*ClientMode)
	if !ok {
		t.Fatalf("expected *ClientMode, got %T", mode)
	}

	req := cm.Request
	if req.Method != "GET" || req.Scheme != "https" || req.Authority != "example.org:4433" {
		t.Errorf("request = %+v", req)
	}
	if req.Path != "/index.html?q=1" {
		t.Errorf("path = %q, want %q", req.Path, "/index.html?q=1")
	}
	if len(req.Headers) != 1 || req.Headers[0] != (transport.Header{Name: "accept", Value: "text/plain"}) {
		t.Errorf("headers = %+v", req.Headers)
	}
	if cm.Transport.ServerName != "example.org" {
		t.Errorf("server name = %q", cm.Transport.ServerName)
	}
	if cm.Transport.MaxTableSize != config.DefaultMaxTableSize {
		t.Errorf("max table size = %d", cm.Transport.MaxTableSize)
	}
	if cm.TrustStore != config.DefaultDB {
		t.Errorf("trust store = %q", cm.TrustStore)
	}

	conn := cm.NewFacade(context.Background(), cm.Transport)
	defer conn.Release() //nolint:errcheck
	if _, ok := conn.(transport.FramedConn); !ok {
		t.Errorf("expected a framed facade, got %T", conn)
	}
}

// TestBuild_Raw verifies --use-old-http selects the raw facade.
func TestBuild_Raw(t *testing.T) {
	cfg := config.Default()
	cfg.URL = "http://127.0.0.1:4433/10"
	cfg.UseOldHTTP = true
	cfg.LocalPort = 5000
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}

	mode, err := Build(cfg, util.NewLogger(0))
	if err != nil {
		t.Fatal(err)
	}
	cm := mode.(*ClientMode)
	if cm.Binder.LocalPort != 5000 {
		t.Errorf("local port = %d, want 5000", cm.Binder.LocalPort)
	}
	if cm.Request.Path != "/10" {
		t.Errorf("path = %q, want /10", cm.Request.Path)
	}

	conn := cm.NewFacade(context.Background(), cm.Transport)
	defer conn.Release() //nolint:errcheck
	if _, ok := conn.(transport.RawConn); !ok {
		t.Errorf("expected a raw facade, got %T", conn)
	}
}

// TestBuild_ValidatesLazily verifies an unvalidated Config is checked.
func TestBuild_ValidatesLazily(t *testing.T) {
	cfg := config.Default()
	cfg.URL = "ftp://example.org/"

	if _, err := Build(cfg, util.NewLogger(0)); err == nil {
		t.Fatal("expected an error for an ftp URL")
	}
}
