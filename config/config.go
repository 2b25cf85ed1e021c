// Package config defines the runtime configuration for quicget and the
// helpers that validate the target URL and request header entries.
package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	qerrors "quicget/internal/errors"
)

// Config holds every tuneable for a single quicget session.
type Config struct {
	// ── Target ───────────────────────────────────────────────────────
	URL     string
	Method  string
	Headers []string // "name: value" entries, in order

	// ── Transport ────────────────────────────────────────────────────
	DB         string // trust store path
	ALPN       []string
	UseOldHTTP bool
	Insecure   bool
	LocalPort  int // 0 = ephemeral
	Settle     time.Duration

	// ── QPACK ────────────────────────────────────────────────────────
	MaxTableSize      uint32
	MaxBlockedStreams uint16

	// ── Output ───────────────────────────────────────────────────────
	Verbose int
	Quiet   bool
	LogFile string

	// Filled by Validate.
	Target       *url.URL
	HeaderFields []Header
}

// Header is one parsed request header entry.
type Header struct {
	Name  string
	Value string
}

// ParseHeader splits a "name: value" entry.  Names are lowercased;
// surrounding whitespace is trimmed from both parts.
func ParseHeader(entry string) (Header, error) {
	name, value, ok := strings.Cut(entry, ":")
	name = strings.TrimSpace(name)
	if !ok || name == "" {
		return Header{}, &qerrors.ConfigError{
			Field:   "header",
			Value:   entry,
			Message: "malformed header entry",
			Hint:    `use -H "name: value"`,
		}
	}
	if strings.ContainsAny(name, " \t\r\n") {
		return Header{}, &qerrors.ConfigError{
			Field:   "header",
			Value:   entry,
			Message: "header name contains whitespace",
		}
	}
	if strings.ContainsAny(value, "\r\n") {
		return Header{}, &qerrors.ConfigError{
			Field:   "header",
			Value:   entry,
			Message: "header value contains a line break",
		}
	}
	return Header{Name: strings.ToLower(name), Value: strings.TrimSpace(value)}, nil
}

// ParseHeaders parses every entry.  One malformed entry rejects the
// whole list.
func ParseHeaders(entries []string) ([]Header, error) {
	out := make([]Header, 0, len(entries))
	for _, e := range entries {
		h, err := ParseHeader(e)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, nil
}

// ── Derived values ───────────────────────────────────────────────────

// Mode names the wire mode in log output.
func (c *Config) Mode() string {
	if c.UseOldHTTP {
		return "http/0.9"
	}
	return "http/3"
}

// Verbosity is the logger level: warnings show by default, -v adds
// detail, --quiet silences everything but errors.
func (c *Config) Verbosity() int {
	if c.Quiet {
		return 0
	}
	return min(c.Verbose+1, 3)
}

// RequestPath is the path and query sent to the server.
func (c *Config) RequestPath() string {
	if c.Target == nil {
		return "/"
	}
	p := c.Target.EscapedPath()
	if p == "" {
		p = "/"
	}
	if c.Target.RawQuery != "" {
		p += "?" + c.Target.RawQuery
	}
	return p
}

// ── Validation ───────────────────────────────────────────────────────

// Validate checks that the configuration is internally consistent and
// fills Target and HeaderFields.
func (c *Config) Validate() error {
	if c.URL == "" {
		return &qerrors.ConfigError{
			Field:   "url",
			Message: "a target URL is required",
			Hint:    "quicget [options] https://host[:port]/path",
		}
	}
	u, err := url.Parse(c.URL)
	if err != nil {
		return &qerrors.ConfigError{Field: "url", Value: c.URL, Message: err.Error()}
	}
	switch u.Scheme {
	case "https":
	case "http":
		if !c.UseOldHTTP {
			return &qerrors.ConfigError{
				Field:   "url",
				Value:   c.URL,
				Message: "HTTP/3 requires an https URL",
				Hint:    "use https:// or --use-old-http",
			}
		}
	default:
		return &qerrors.ConfigError{Field: "url", Value: c.URL, Message: fmt.Sprintf("unsupported scheme %q", u.Scheme)}
	}
	if u.Hostname() == "" {
		return &qerrors.ConfigError{Field: "url", Value: c.URL, Message: "URL has no host"}
	}
	if p := u.Port(); p != "" {
		if n, err := strconv.Atoi(p); err != nil || n < 1 || n > 65535 {
			return &qerrors.ConfigError{Field: "url", Value: c.URL, Message: "port out of range 1-65535"}
		}
	}

	if c.Method == "" || strings.ContainsAny(c.Method, " \t\r\n") {
		return &qerrors.ConfigError{Field: "method", Value: c.Method, Message: "invalid request method"}
	}
	for _, a := range c.ALPN {
		if strings.TrimSpace(a) == "" {
			return &qerrors.ConfigError{Field: "alpn", Value: c.ALPN, Message: "empty ALPN label"}
		}
	}
	if c.LocalPort < 0 || c.LocalPort > 65535 {
		return &qerrors.ConfigError{Field: "local-port", Value: c.LocalPort, Message: "port out of range 0-65535"}
	}
	if c.Settle <= 0 {
		return &qerrors.ConfigError{Field: "settle", Value: c.Settle, Message: "settle window must be positive"}
	}

	headers, err := ParseHeaders(c.Headers)
	if err != nil {
		return err
	}

	c.Target = u
	c.HeaderFields = headers
	return nil
}
