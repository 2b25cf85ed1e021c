package config

import "time"

// ── Default values ───────────────────────────────────────────────────
//
// All tuneable defaults live here so they are easy to audit and reuse
// across CLI flags, config file parsing, and environment variable
// loading.

const (
	// DefaultDB is the trust store path.
	DefaultDB = "./db"

	// DefaultMethod is the request method for framed mode.
	DefaultMethod = "GET"

	// DefaultMaxTableSize is the QPACK dynamic table capacity.
	DefaultMaxTableSize uint32 = 128

	// DefaultMaxBlockedStreams is the QPACK blocked streams limit.
	DefaultMaxBlockedStreams uint16 = 128

	// DefaultSettle is how long the transport must stay quiet before
	// its output is flushed.
	DefaultSettle = 10 * time.Millisecond

	// DefaultLogMaxSizeMB rotates --log-file at this size.
	DefaultLogMaxSizeMB = 16

	// EnvPrefix prefixes every environment override.
	EnvPrefix = "QUICGET"
)

// Default returns a Config with every default applied.
func Default() *Config {
	return &Config{
		DB:                DefaultDB,
		Method:            DefaultMethod,
		MaxTableSize:      DefaultMaxTableSize,
		MaxBlockedStreams: DefaultMaxBlockedStreams,
		Settle:            DefaultSettle,
	}
}
