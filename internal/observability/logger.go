package observability

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// LoggingConfig contains logger configuration options.
type LoggingConfig struct {
	// Level is the minimum log level (trace, debug, info, warn, error, fatal, panic).
	Level string

	// Format is the output format (json, console, pretty).
	Format string

	// Output is the output destination (stdout, stderr).
	Output string

	// AddSource adds source file and line number to log entries.
	AddSource bool

	// TimeFormat is the time format for timestamps.
	TimeFormat string
}

// DefaultLoggingConfig returns the configuration used when none is supplied.
func DefaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		Level:      "info",
		Format:     "json",
		Output:     "stdout",
		TimeFormat: time.RFC3339,
	}
}

// NewLogger creates a zerolog logger from cfg and sets the global level.
func NewLogger(cfg LoggingConfig) zerolog.Logger {
	return newLogger(cfg, outputWriter(cfg.Output))
}

func newLogger(cfg LoggingConfig, out io.Writer) zerolog.Logger {
	if cfg.TimeFormat != "" {
		zerolog.TimeFieldFormat = cfg.TimeFormat
	} else {
		zerolog.TimeFieldFormat = time.RFC3339
	}

	switch strings.ToLower(cfg.Format) {
	case "console", "pretty":
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: zerolog.TimeFieldFormat}
	}

	lctx := zerolog.New(out).With().Timestamp()
	if cfg.AddSource {
		lctx = lctx.Caller()
	}

	level := parseLevel(cfg.Level)
	zerolog.SetGlobalLevel(level)
	return lctx.Logger().Level(level)
}

func outputWriter(output string) io.Writer {
	if strings.ToLower(output) == "stderr" {
		return os.Stderr
	}
	return os.Stdout
}

// parseLevel converts a string log level to zerolog.Level. Unknown values map to info.
func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	case "panic":
		return zerolog.PanicLevel
	default:
		return zerolog.InfoLevel
	}
}

// WithLoanContext adds loan identifiers to a logger.
func WithLoanContext(logger zerolog.Logger, loanID, memberID, copyID uuid.UUID) zerolog.Logger {
	return logger.With().
		Str("loan_id", loanID.String()).
		Str("member_id", memberID.String()).
		Str("copy_id", copyID.String()).
		Logger()
}

// WithMemberContext adds the member identifier to a logger.
func WithMemberContext(logger zerolog.Logger, memberID uuid.UUID) zerolog.Logger {
	return logger.With().Str("member_id", memberID.String()).Logger()
}

// WithRequestContext adds the request and correlation IDs stored in ctx.
// Empty values are omitted.
func WithRequestContext(logger zerolog.Logger, ctx context.Context) zerolog.Logger {
	rc := RequestContextFromContext(ctx)
	lctx := logger.With()
	if rc.RequestID != "" {
		lctx = lctx.Str("request_id", rc.RequestID)
	}
	if rc.CorrelationID != "" {
		lctx = lctx.Str("correlation_id", rc.CorrelationID)
	}
	return lctx.Logger()
}
