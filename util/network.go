package util

import (
	"fmt"
	"net"
	"net/url"
	"strconv"

	qerrors "quicget/internal/errors"
)

// DefaultPort returns the well-known port for a URL scheme, or 0.
func DefaultPort(scheme string) int {
	switch scheme {
	case "https":
		return 443
	case "http":
		return 80
	default:
		return 0
	}
}

// TargetHostPort returns the host and port a URL points at.  The host
// falls back to "localhost" and the port to the scheme default.
func TargetHostPort(u *url.URL) (string, int, error) {
	host := u.Hostname()
	if host == "" {
		host = "localhost"
	}
	if p := u.Port(); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil || port < 1 || port > 65535 {
			return "", 0, fmt.Errorf("%w %q", qerrors.ErrInvalidPort, p)
		}
		return host, port, nil
	}
	port := DefaultPort(u.Scheme)
	if port == 0 {
		return "", 0, qerrors.ErrInvalidPort
	}
	return host, port, nil
}

// ResolveRemote resolves the first UDP address for the URL's host and
// port.
func ResolveRemote(u *url.URL) (*net.UDPAddr, error) {
	host, port, err := TargetHostPort(u)
	if err != nil {
		return nil, err
	}
	addr, err := net.ResolveUDPAddr("udp", FormatAddr(host, port))
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", FormatAddr(host, port), err)
	}
	return addr, nil
}

// WildcardFor returns the unspecified address of the same family as
// remote, on an ephemeral port.
func WildcardFor(remote *net.UDPAddr) *net.UDPAddr {
	if remote.IP.To4() != nil {
		return &net.UDPAddr{IP: net.IPv4zero, Port: 0}
	}
	return &net.UDPAddr{IP: net.IPv6unspecified, Port: 0}
}

// FormatAddr returns "host:port".
func FormatAddr(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}
