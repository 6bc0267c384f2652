package log

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/oddbit-project/walletguard/types/callstack"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	LogContextKey       = "logger"
	LogTraceIDKey       = "trace_id"
	LogModuleKey        = "module"
	LogComponentKey     = "component"
	LogHostnameKey      = "hostname"
	LogTimestampFormat  = time.RFC3339Nano
	LogCallerSkipFrames = 3

	FormatConsole = "console"
	FormatJSON    = "json"
)

// KV is the field map accepted by all logging methods
type KV map[string]interface{}

type ctxKey string

// Logger wraps zerolog.Logger with module and trace information
type Logger struct {
	logger     zerolog.Logger
	moduleInfo string
	hostname   string
	traceID    string
}

// LogConfig logger configuration
type LogConfig struct {
	Level            string `json:"level"`
	Format           string `json:"format"` // "console" or "json"
	IncludeTimestamp bool   `json:"includeTimestamp"`
	IncludeCaller    bool   `json:"includeCaller"`
	IncludeHostname  bool   `json:"includeHostname"`
	CallerSkipFrames int    `json:"callerSkipFrames"`

	OutputToFile bool   `json:"outputToFile"`
	FilePath     string `json:"filePath"`
	FileFormat   string `json:"fileFormat"` // "json" or "console"
	FileAppend   bool   `json:"fileAppend"`
	MaxSizeMb    int    `json:"maxSizeMb"`
	MaxBackups   int    `json:"maxBackups"`
	MaxAgeDays   int    `json:"maxAgeDays"`
	Compress     bool   `json:"compress"`
}

// NewDefaultConfig returns a default logging configuration
func NewDefaultConfig() *LogConfig {
	return &LogConfig{
		Level:            "info",
		Format:           FormatConsole,
		IncludeTimestamp: true,
		IncludeCaller:    false,
		IncludeHostname:  true,
		CallerSkipFrames: LogCallerSkipFrames,
		OutputToFile:     false,
		FileFormat:       FormatJSON,
		FileAppend:       true,
		MaxSizeMb:        100,
		MaxBackups:       5,
		MaxAgeDays:       30,
		Compress:         false,
	}
}

// Validate checks the logger configuration
func (c *LogConfig) Validate() error {
	if _, err := zerolog.ParseLevel(c.Level); err != nil {
		return fmt.Errorf("invalid log level: %s", c.Level)
	}
	if c.Format != FormatConsole && c.Format != FormatJSON {
		return fmt.Errorf("invalid log format: %s", c.Format)
	}
	if c.OutputToFile && c.FilePath == "" {
		return ErrMissingFilePath
	}
	return nil
}

// Configure installs the global logger based on the provided configuration
func Configure(cfg *LogConfig) error {
	if cfg == nil {
		cfg = NewDefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	level, _ := zerolog.ParseLevel(cfg.Level)
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = LogTimestampFormat

	var output io.Writer = os.Stderr
	if cfg.Format == FormatConsole {
		output = zerolog.NewConsoleWriter(func(w *zerolog.ConsoleWriter) {
			w.TimeFormat = LogTimestampFormat
		})
	}

	if cfg.OutputToFile {
		fileWriter, err := openFileWriter(cfg)
		if err != nil {
			return err
		}
		output = fileWriter
	}

	ctx := zerolog.New(output).Level(level).With()
	if cfg.IncludeTimestamp {
		ctx = ctx.Timestamp()
	}
	if cfg.IncludeHostname {
		if hostname, err := os.Hostname(); err == nil {
			ctx = ctx.Str(LogHostnameKey, hostname)
		}
	}
	if cfg.IncludeCaller {
		ctx = ctx.Caller()
		zerolog.CallerSkipFrameCount = cfg.CallerSkipFrames
	}

	log.Logger = ctx.Logger()
	return nil
}

// New creates a new logger with module information
func New(module string) *Logger {
	hostname, _ := os.Hostname()
	return &Logger{
		logger:     log.With().Str(LogModuleKey, module).Logger(),
		moduleInfo: module,
		hostname:   hostname,
	}
}

// NewWithComponent creates a new logger with module and component information
func NewWithComponent(module, component string) *Logger {
	hostname, _ := os.Hostname()
	return &Logger{
		logger: log.With().
			Str(LogModuleKey, module).
			Str(LogComponentKey, component).
			Logger(),
		moduleInfo: fmt.Sprintf("%s.%s", module, component),
		hostname:   hostname,
	}
}

// NewFromZerolog wraps an existing zerolog.Logger; mostly useful in tests
func NewFromZerolog(module string, zl zerolog.Logger) *Logger {
	return &Logger{
		logger:     zl.With().Str(LogModuleKey, module).Logger(),
		moduleInfo: module,
	}
}

// WithTraceID creates a new logger with the specified trace ID
func (l *Logger) WithTraceID(traceID string) *Logger {
	return &Logger{
		logger:     l.logger.With().Str(LogTraceIDKey, traceID).Logger(),
		moduleInfo: l.moduleInfo,
		hostname:   l.hostname,
		traceID:    traceID,
	}
}

// WithField adds a field to the logger
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{
		logger:     l.logger.With().Interface(key, value).Logger(),
		moduleInfo: l.moduleInfo,
		hostname:   l.hostname,
		traceID:    l.traceID,
	}
}

// FromContext retrieves a logger from the context
// If no logger is found, a new default logger is returned
func FromContext(ctx context.Context) *Logger {
	if ctx == nil {
		return New("default")
	}
	if logger, ok := ctx.Value(ctxKey(LogContextKey)).(*Logger); ok && logger != nil {
		return logger
	}
	return New("default")
}

// WithContext adds the logger to the context
func (l *Logger) WithContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, ctxKey(LogContextKey), l)
}

func addFields(event *zerolog.Event, fields []KV) *zerolog.Event {
	for _, f := range fields {
		for k, v := range f {
			event = event.Interface(k, v)
		}
	}
	return event
}

// Debug logs a debug message with the given fields
func (l *Logger) Debug(msg string, fields ...KV) {
	addFields(l.logger.Debug(), fields).Msg(msg)
}

// Info logs an info message with the given fields
func (l *Logger) Info(msg string, fields ...KV) {
	addFields(l.logger.Info(), fields).Msg(msg)
}

// Warn logs a warning message with the given fields
func (l *Logger) Warn(msg string, fields ...KV) {
	addFields(l.logger.Warn(), fields).Msg(msg)
}

// Error logs an error message with the given fields; a stack trace is
// attached when err is not nil
func (l *Logger) Error(err error, msg string, fields ...KV) {
	event := l.logger.Error()
	if err != nil {
		event = event.Err(err)
		if stack := callstack.Get(1); len(stack) > 0 {
			event = event.Strs("stack", stack)
		}
	}
	addFields(event, fields).Msg(msg)
}

// Fatal logs a fatal message with the given fields and exits the application
func (l *Logger) Fatal(err error, msg string, fields ...KV) {
	event := l.logger.Fatal()
	if err != nil {
		event = event.Err(err)
		if stack := callstack.Get(1); len(stack) > 0 {
			event = event.Strs("stack", stack)
		}
	}
	addFields(event, fields).Msg(msg)
}

// GetTraceID returns the trace ID associated with this logger
func (l *Logger) GetTraceID() string {
	return l.traceID
}

// GetZerolog returns the underlying zerolog.Logger
func (l *Logger) GetZerolog() zerolog.Logger {
	return l.logger
}
