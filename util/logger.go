// Package util provides low-level helpers shared by all other packages.
package util

import (
	"fmt"
	"io"
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogLevel controls output verbosity.
type LogLevel int

const (
	LogQuiet   LogLevel = 0
	LogNormal  LogLevel = 1
	LogVerbose LogLevel = 2
	LogDebug   LogLevel = 3
)

// zap has a single level below Info; the two chatty tiers get their own.
const (
	verboseLevel = zapcore.DebugLevel
	traceLevel   = zapcore.DebugLevel - 1
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiYellow = "\x1b[33m"
	ansiGrey   = "\x1b[90m"
)

// Logger writes levelled messages to stderr with optional timestamps
// and level prefixes.  The encoding and sinks are provided by zap; the
// verbosity gate stays here so -v counts behave the same everywhere.
type Logger struct {
	level LogLevel

	mu         sync.Mutex
	output     io.Writer
	timestamps bool // if true, prepend 15:04:05.000 timestamps
	color      bool
	fields     []zap.Field
	zl         *zap.Logger
}

// NewLogger returns a Logger that prints messages at or below the given
// verbosity (0 = quiet, 1 = normal, 2 = verbose, 3 = debug).
func NewLogger(verbosity int) *Logger {
	l := &Logger{
		level:      LogLevel(verbosity),
		output:     os.Stderr,
		timestamps: verbosity >= 3, // auto-enable timestamps in debug mode
		color:      isTerminal(os.Stderr),
	}
	l.rebuild()
	return l
}

// SetTimestamps enables or disables timestamp prefixes.
func (l *Logger) SetTimestamps(on bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.timestamps = on
	l.rebuild()
}

// SetOutput overrides the output writer (default: os.Stderr).
func (l *Logger) SetOutput(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.output = w
	l.color = isTerminal(w)
	l.rebuild()
}

// SetFile routes output to a size-rotated log file.
func (l *Logger) SetFile(path string, maxSizeMB int) {
	l.SetOutput(&lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSizeMB,
		MaxBackups: 3,
	})
}

// With returns a child logger that appends key=value to every line.
func (l *Logger) With(key string, value interface{}) *Logger {
	l.mu.Lock()
	defer l.mu.Unlock()

	child := &Logger{
		level:      l.level,
		output:     l.output,
		timestamps: l.timestamps,
		color:      l.color,
		fields:     append(append([]zap.Field(nil), l.fields...), zap.Any(key, value)),
	}
	child.rebuild()
	return child
}

// Level returns the current log level.
func (l *Logger) Level() LogLevel { return l.level }

// Info prints when verbosity ≥ 1.  Prefixed with [INF].
func (l *Logger) Info(format string, args ...interface{}) {
	if l.level >= LogNormal {
		l.write(zapcore.InfoLevel, format, args...)
	}
}

// Warn prints when verbosity ≥ 1.  Prefixed with [WRN].
func (l *Logger) Warn(format string, args ...interface{}) {
	if l.level >= LogNormal {
		l.write(zapcore.WarnLevel, format, args...)
	}
}

// Verbose prints when verbosity ≥ 2.  Prefixed with [VRB].
func (l *Logger) Verbose(format string, args ...interface{}) {
	if l.level >= LogVerbose {
		l.write(verboseLevel, format, args...)
	}
}

// Debug prints when verbosity ≥ 3.  Prefixed with [DBG].
func (l *Logger) Debug(format string, args ...interface{}) {
	if l.level >= LogDebug {
		l.write(traceLevel, format, args...)
	}
}

// Error always prints regardless of verbosity.  Prefixed with [ERR].
func (l *Logger) Error(format string, args ...interface{}) {
	l.write(zapcore.ErrorLevel, format, args...)
}

func (l *Logger) write(lvl zapcore.Level, format string, args ...interface{}) {
	l.mu.Lock()
	zl := l.zl
	l.mu.Unlock()

	if ce := zl.Check(lvl, fmt.Sprintf(format, args...)); ce != nil {
		ce.Write()
	}
}

// rebuild recreates the zap core; callers hold l.mu.
func (l *Logger) rebuild() {
	enc := zapcore.EncoderConfig{
		MessageKey:       "msg",
		LevelKey:         "level",
		EncodeLevel:      levelEncoder(l.color),
		EncodeDuration:   zapcore.StringDurationEncoder,
		ConsoleSeparator: " ",
	}
	if l.timestamps {
		enc.TimeKey = "ts"
		enc.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
	}

	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(enc),
		zapcore.Lock(zapcore.AddSync(l.output)),
		zap.LevelEnablerFunc(func(zapcore.Level) bool { return true }),
	)
	l.zl = zap.New(core).With(l.fields...)
}

func levelEncoder(color bool) zapcore.LevelEncoder {
	return func(lvl zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
		tag, code := levelTag(lvl)
		if color && code != "" {
			tag = code + tag + ansiReset
		}
		enc.AppendString(tag)
	}
}

func levelTag(lvl zapcore.Level) (tag, color string) {
	switch {
	case lvl <= traceLevel:
		return "[DBG]", ansiGrey
	case lvl == verboseLevel:
		return "[VRB]", ansiGrey
	case lvl == zapcore.InfoLevel:
		return "[INF]", ""
	case lvl == zapcore.WarnLevel:
		return "[WRN]", ansiYellow
	default:
		return "[ERR]", ansiRed
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
