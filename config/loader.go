package config

// loader.go - flag registration and layered configuration loading.
//
// Precedence order (highest wins):
//   1. CLI flags  (only those explicitly set)
//   2. Environment variables  (QUICGET_ prefix)
//   3. Configuration file  (--config, TOML)
//   4. Defaults   (defaults.go)

import (
	"bytes"
	"math"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
	flag "github.com/spf13/pflag"
	"github.com/spf13/viper"

	qerrors "quicget/internal/errors"
)

// Flag names double as viper keys.
const (
	KeyURL               = "url"
	KeyDB                = "db"
	KeyALPN              = "alpn"
	KeyMethod            = "method"
	KeyHeader            = "header"
	KeyMaxTableSize      = "max-table-size"
	KeyMaxBlockedStreams = "max-blocked-streams"
	KeyUseOldHTTP        = "use-old-http"
	KeyInsecure          = "insecure"
	KeyLocalPort         = "local-port"
	KeySettle            = "settle"
	KeyVerbose           = "verbose"
	KeyQuiet             = "quiet"
	KeyLogFile           = "log-file"
	KeyConfig            = "config"
)

// RegisterFlags adds every configuration flag to fs.
func RegisterFlags(fs *flag.FlagSet) {
	// ── request ──────────────────────────────────────────────────
	fs.StringP(KeyMethod, "m", DefaultMethod, "HTTP method")
	fs.StringArrayP(KeyHeader, "H", nil, `Request header "name: value" (repeatable)`)

	// ── transport ────────────────────────────────────────────────
	fs.StringP(KeyDB, "d", DefaultDB, "Trust store: PEM file or directory of certificates")
	fs.StringSliceP(KeyALPN, "a", nil, "ALPN labels (default h3, or hq-interop with -o)")
	fs.BoolP(KeyUseOldHTTP, "o", false, "Use HTTP/0.9 over a raw QUIC stream")
	fs.Bool(KeyInsecure, false, "Skip server certificate verification")
	fs.IntP(KeyLocalPort, "p", 0, "Local UDP port (0 = ephemeral)")
	fs.Duration(KeySettle, DefaultSettle, "Quiet window before transport output is flushed")

	// ── QPACK ────────────────────────────────────────────────────
	fs.Uint32P(KeyMaxTableSize, "t", DefaultMaxTableSize, "QPACK max table size")
	fs.Uint16P(KeyMaxBlockedStreams, "b", DefaultMaxBlockedStreams, "QPACK max blocked streams")

	// ── output ───────────────────────────────────────────────────
	fs.CountP(KeyVerbose, "v", "Increase verbosity (repeatable)")
	fs.BoolP(KeyQuiet, "q", false, "Only print errors to stderr")
	fs.String(KeyLogFile, "", "Write logs to a rotating file instead of stderr")

	fs.String(KeyConfig, "", "TOML configuration file")
}

// Load resolves the configuration from the parsed flag set, the
// environment and the optional configuration file.  args holds the
// positional arguments; the first is the target URL.
func Load(fs *flag.FlagSet, args []string) (*Config, error) {
	if len(args) > 1 {
		return nil, &qerrors.ConfigError{
			Field:   "url",
			Value:   strings.Join(args, " "),
			Message: "exactly one target URL expected",
		}
	}

	v := newViper()
	if err := v.BindPFlags(fs); err != nil {
		return nil, errors.Wrap(err, "bind flags")
	}
	if path, _ := fs.GetString(KeyConfig); path != "" {
		if err := overlayFile(v, path); err != nil {
			return nil, err
		}
	}
	if len(args) == 1 {
		v.Set(KeyURL, args[0])
	}

	cfg := &Config{
		URL:        v.GetString(KeyURL),
		Method:     v.GetString(KeyMethod),
		Headers:    listValue(v, fs, KeyHeader, splitHeaders),
		DB:         v.GetString(KeyDB),
		ALPN:       listValue(v, fs, KeyALPN, splitList),
		UseOldHTTP: v.GetBool(KeyUseOldHTTP),
		Insecure:   v.GetBool(KeyInsecure),
		LocalPort:  v.GetInt(KeyLocalPort),
		Settle:     v.GetDuration(KeySettle),
		Verbose:    v.GetInt(KeyVerbose),
		Quiet:      v.GetBool(KeyQuiet),
		LogFile:    v.GetString(KeyLogFile),
	}

	table := v.GetUint64(KeyMaxTableSize)
	if table > math.MaxUint32 {
		return nil, &qerrors.ConfigError{Field: KeyMaxTableSize, Value: table, Message: "value out of range"}
	}
	cfg.MaxTableSize = uint32(table)

	blocked := v.GetUint64(KeyMaxBlockedStreams)
	if blocked > math.MaxUint16 {
		return nil, &qerrors.ConfigError{Field: KeyMaxBlockedStreams, Value: blocked, Message: "value out of range"}
	}
	cfg.MaxBlockedStreams = uint16(blocked)

	return cfg, nil
}

// listValue reads a list key.  viper splits environment strings on
// whitespace, so an environment value that is not overridden by an
// explicit flag is split here instead.
func listValue(v *viper.Viper, fs *flag.FlagSet, key string, split func(string) []string) []string {
	if f := fs.Lookup(key); f == nil || !f.Changed {
		if raw, ok := os.LookupEnv(EnvVar(key)); ok {
			return split(raw)
		}
	}
	return v.GetStringSlice(key)
}

// EnvVar is the environment variable that overrides key.
func EnvVar(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, "-", "_"))
}

// splitList splits a comma-separated list, dropping empty items.
func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// splitHeaders splits comma-separated "name: value" entries.  A piece
// without a colon continues the previous value, so
// "accept: text/html, text/plain" stays one entry.
func splitHeaders(raw string) []string {
	var out []string
	for _, piece := range strings.Split(raw, ",") {
		switch {
		case strings.TrimSpace(piece) == "":
		case len(out) > 0 && !strings.Contains(piece, ":"):
			out[len(out)-1] += "," + strings.TrimRight(piece, " \t")
		default:
			out = append(out, strings.TrimSpace(piece))
		}
	}
	return out
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	return v
}

// ── configuration file ───────────────────────────────────────────────

// fileConfig is the on-disk TOML layout.  Durations are strings such
// as "25ms".
type fileConfig struct {
	URL               string   `toml:"url"`
	Method            string   `toml:"method"`
	Headers           []string `toml:"headers"`
	DB                string   `toml:"db"`
	ALPN              []string `toml:"alpn"`
	UseOldHTTP        bool     `toml:"use_old_http"`
	Insecure          bool     `toml:"insecure"`
	LocalPort         int      `toml:"local_port"`
	Settle            string   `toml:"settle"`
	MaxTableSize      uint32   `toml:"max_table_size"`
	MaxBlockedStreams uint16   `toml:"max_blocked_streams"`
	Verbose           int      `toml:"verbose"`
	Quiet             bool     `toml:"quiet"`
	LogFile           string   `toml:"log_file"`
}

type fileKey struct {
	toml  string
	key   string
	value interface{}
}

func (f *fileConfig) keys() []fileKey {
	return []fileKey{
		{"url", KeyURL, f.URL},
		{"method", KeyMethod, f.Method},
		{"headers", KeyHeader, f.Headers},
		{"db", KeyDB, f.DB},
		{"alpn", KeyALPN, f.ALPN},
		{"use_old_http", KeyUseOldHTTP, f.UseOldHTTP},
		{"insecure", KeyInsecure, f.Insecure},
		{"local_port", KeyLocalPort, f.LocalPort},
		{"settle", KeySettle, f.Settle},
		{"max_table_size", KeyMaxTableSize, f.MaxTableSize},
		{"max_blocked_streams", KeyMaxBlockedStreams, f.MaxBlockedStreams},
		{"verbose", KeyVerbose, f.Verbose},
		{"quiet", KeyQuiet, f.Quiet},
		{"log_file", KeyLogFile, f.LogFile},
	}
}

// overlayFile loads path and installs every key it defines as a viper
// default, below flags and environment.
func overlayFile(v *viper.Viper, path string) error {
	var fc fileConfig
	meta, err := toml.DecodeFile(path, &fc)
	if err != nil {
		return errors.Wrapf(err, "read configuration file %s", path)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return &qerrors.ConfigError{
			Field:   KeyConfig,
			Value:   path,
			Message: "unknown key " + undecoded[0].String(),
		}
	}
	if meta.IsDefined("settle") {
		if _, err := time.ParseDuration(fc.Settle); err != nil {
			return errors.Wrapf(err, "configuration file %s: settle", path)
		}
	}

	for _, k := range fc.keys() {
		if meta.IsDefined(k.toml) {
			v.SetDefault(k.key, k.value)
		}
	}
	return nil
}

// TOML renders the effective configuration in the file layout.
func (c *Config) TOML() (string, error) {
	fc := fileConfig{
		URL:               c.URL,
		Method:            c.Method,
		Headers:           c.Headers,
		DB:                c.DB,
		ALPN:              c.ALPN,
		UseOldHTTP:        c.UseOldHTTP,
		Insecure:          c.Insecure,
		LocalPort:         c.LocalPort,
		Settle:            c.Settle.String(),
		MaxTableSize:      c.MaxTableSize,
		MaxBlockedStreams: c.MaxBlockedStreams,
		Verbose:           c.Verbose,
		Quiet:             c.Quiet,
		LogFile:           c.LogFile,
	}
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(fc); err != nil {
		return "", errors.Wrap(err, "encode configuration")
	}
	return buf.String(), nil
}
