// Package cmd wires up the CLI flags and dispatches to the client core.
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	flag "github.com/spf13/pflag"

	"quicget/config"
	"quicget/internal/core"
	"quicget/util"
)

// version is overridable at link time:
//
//	go build -ldflags "-X quicget/cmd.version=0.2.0"
var version = "0.1.0" //nolint:gochecknoglobals

// Execute parses args and runs one quicget session.
func Execute(ctx context.Context, args []string) error {
	return run(ctx, args, os.Stdout, os.Stderr)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("quicget", flag.ContinueOnError)
	fs.SetOutput(stderr)
	config.RegisterFlags(fs)

	var showVersion, showHelp, dryRun bool
	fs.BoolVar(&showVersion, "version", false, "Print version and exit")
	fs.BoolVarP(&showHelp, "help", "h", false, "Show this help")
	fs.BoolVar(&dryRun, "dry-run", false, "Print the effective configuration and exit")

	fs.Usage = func() { printUsage(fs, stderr) }

	// ── parse ────────────────────────────────────────────────────
	if err := fs.Parse(args); err != nil {
		return err
	}

	if showHelp || len(args) == 0 {
		printUsage(fs, stderr)
		return nil
	}
	if showVersion {
		fmt.Fprintf(stdout, "quicget %s\n", version)
		return nil
	}

	// ── configuration ────────────────────────────────────────────
	cfg, err := config.Load(fs, fs.Args())
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if dryRun {
		out, err := cfg.TOML()
		if err != nil {
			return err
		}
		fmt.Fprint(stdout, out)
		return nil
	}

	// ── build components ─────────────────────────────────────────
	logger := util.NewLogger(cfg.Verbosity())
	if cfg.LogFile != "" {
		logger.SetFile(cfg.LogFile, config.DefaultLogMaxSizeMB)
	}
	logger.Verbose("quicget %s: %s %s (%s)", version, cfg.Method, cfg.Target, cfg.Mode())

	mode, err := core.Build(cfg, logger)
	if err != nil {
		return err
	}
	if cm, ok := mode.(*core.ClientMode); ok {
		cm.Stdout = stdout
	}
	return mode.Run(ctx)
}

// ── helpers ──────────────────────────────────────────────────────────

func printUsage(fs *flag.FlagSet, w io.Writer) {
	fmt.Fprintf(w, `quicget - HTTP/3 and HTTP/0.9 over QUIC client v%s

Fetches one URL over QUIC and prints the response headers and body
chunks as they arrive.

Usage:
  quicget [options] <url>

Options:
`, version)
	fs.SetOutput(w)
	fs.PrintDefaults()
	fmt.Fprintf(w, `
Environment:
  Every option can be set as %s_<NAME>, e.g. %s_ALPN=h3.

Examples:
  quicget https://example.org/                    HTTP/3 GET
  quicget -H "accept: text/html" https://host/    Extra request header
  quicget -o http://127.0.0.1:4433/10             HTTP/0.9 over a raw stream
  quicget -d ./certs --insecure https://lab:443/  Custom trust store
  quicget --config quicget.toml --dry-run         Show effective settings
`, config.EnvPrefix, config.EnvPrefix)
}
