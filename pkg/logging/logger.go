// Package logging provides structured logging configuration using zerolog.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel represents the logging level.
type LogLevel string

const (
	// LevelDebug logs debug messages and above.
	LevelDebug LogLevel = "debug"

	// LevelInfo logs info messages and above.
	LevelInfo LogLevel = "info"

	// LevelWarn logs warning messages and above.
	LevelWarn LogLevel = "warn"

	// LevelError logs error messages only.
	LevelError LogLevel = "error"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel

	// Pretty enables human-readable console output (default: false for JSON).
	Pretty bool

	// Output is the writer to output logs to (default: os.Stderr).
	Output io.Writer
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Pretty: false,
		Output: os.Stderr,
	}
}

// Setup configures the global zerolog logger and returns it.
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(ParseLevel(string(cfg.Level)))
	zerolog.DurationFieldUnit = time.Millisecond

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: time.Kitchen}
	}

	logger := zerolog.New(output).With().Timestamp().Logger()
	log.Logger = logger

	return logger
}

// ParseLevel converts a level name to zerolog.Level. Unknown names map to info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "info", "":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// NewLogger creates a new logger with the given component name, derived
// from the global logger at call time.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// WithRun tags a logger with the id of one catalog fetch run.
func WithRun(logger zerolog.Logger, runID, quarter string) zerolog.Logger {
	return logger.With().Str("run_id", runID).Str("quarter", quarter).Logger()
}

// Log Level Guidelines:
//
// Debug: per-page detail
//   - Page fetched (page, classes, total)
//   - Worker spawned / finished
//   - In-flight gate waits
//
// Info: run lifecycle
//   - Configuration loaded, run started (mode, quarter, workers)
//   - Probe result and planned page count
//   - Batch completed, aggregate complete (courses, duration)
//   - Artifacts written
//
// Warn: degraded but continuing
//   - Worker page failure absorbed into an empty contribution
//   - Retry attempts
//   - Serial and parallel results disagree
//
// Error: fatal conditions
//   - Missing secrets or api key
//   - Serial fetch failure
//   - Sink write failure
//
// Context Fields:
//   - component: emitting package
//   - run_id, quarter: one aggregate run
//   - page, page_size, total, total_pages: paging state
//   - worker_id, batch: parallel fan-out
//   - error_class: client, server, rate_limit, network, decode
//   - duration: elapsed time in milliseconds
