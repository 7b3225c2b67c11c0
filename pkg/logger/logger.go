package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// LogLevel constants
const (
	LogLevelError = "error"
	LogLevelWarn  = "warn"
	LogLevelInfo  = "info"
	LogLevelDebug = "debug"
	LogLevelTrace = "trace"
)

// LoggingConfig represents the logging configuration
type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// GlobalLogging holds the active configuration. Nothing is logged while it is nil.
var GlobalLogging *LoggingConfig

var (
	mu     sync.RWMutex
	base   = newConsole(os.Stdout)
	output io.Closer
)

func newConsole(w io.Writer) zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339, NoColor: true}).
		With().Timestamp().Logger()
}

// parseLevel maps the configured level name to a zerolog level, defaulting to info
func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case LogLevelError:
		return zerolog.ErrorLevel
	case LogLevelWarn, "warning":
		return zerolog.WarnLevel
	case LogLevelDebug:
		return zerolog.DebugLevel
	case LogLevelTrace:
		return zerolog.TraceLevel
	default:
		return zerolog.InfoLevel
	}
}

// Init configures the global logger from config.
// A log file that cannot be opened falls back to stdout and is reported as an error.
func Init(config *LoggingConfig) error {
	if config == nil {
		config = &LoggingConfig{Level: LogLevelInfo}
	}

	var w io.Writer = os.Stdout
	var closer io.Closer
	var openErr error
	if config.File != "" {
		// Use 0600 permissions (owner read/write only) for security
		f, err := os.OpenFile(config.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
		if err != nil {
			openErr = fmt.Errorf("failed to open log file %s: %w", config.File, err)
		} else {
			w = f
			closer = f
		}
	}

	mu.Lock()
	if output != nil {
		_ = output.Close()
	}
	output = closer
	base = newConsole(w).Level(parseLevel(config.Level))
	GlobalLogging = config
	mu.Unlock()

	return openErr
}

// SetOutput redirects log output, used by tests to capture lines
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	level := zerolog.InfoLevel
	if GlobalLogging != nil {
		level = parseLevel(GlobalLogging.Level)
	}
	base = newConsole(w).Level(level)
}

func current() (zerolog.Logger, bool) {
	mu.RLock()
	defer mu.RUnlock()
	return base, GlobalLogging != nil
}

// LogStartup logs startup messages that should always be visible regardless of log level
func LogStartup(format string, args ...interface{}) {
	mu.RLock()
	l := base
	mu.RUnlock()
	l.WithLevel(zerolog.NoLevel).Msgf("🔧 "+format, args...)
}

// Helper functions for global logging
func LogError(format string, args ...interface{}) {
	if l, ok := current(); ok {
		l.Error().Msgf("❌ "+format, args...)
	}
}

func LogWarn(format string, args ...interface{}) {
	if l, ok := current(); ok {
		l.Warn().Msgf("⚠️ "+format, args...)
	}
}

func LogInfo(format string, args ...interface{}) {
	if l, ok := current(); ok {
		l.Info().Msgf("ℹ️ "+format, args...)
	}
}

func LogDebug(format string, args ...interface{}) {
	if l, ok := current(); ok {
		l.Debug().Msgf("🔧 "+format, args...)
	}
}

func LogTrace(format string, args ...interface{}) {
	if l, ok := current(); ok {
		l.Trace().Msgf("🔍 "+format, args...)
	}
}

// IsDebugEnabled checks if debug logging is enabled
func IsDebugEnabled() bool {
	l, ok := current()
	return ok && l.GetLevel() <= zerolog.DebugLevel
}

// IsTraceEnabled checks if trace logging is enabled
func IsTraceEnabled() bool {
	l, ok := current()
	return ok && l.GetLevel() <= zerolog.TraceLevel
}
