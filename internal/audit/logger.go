package audit

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Package audit produces the append-only JSONL audit trail, one line per
// event, rotated daily by filename (mcp-server-YYYY-MM-DD.log).
//
// Responsibilities:
//   - Serialize {timestamp, level, type, message, ...data} per event
//   - Redact secret-named fields recursively before writing
//   - Summarize oversized request/response bodies (see summarize.go)
//   - Rotate to a new file when the UTC date changes
//   - Never propagate write failures into the primary path

// Config represents audit logger configuration.
type Config struct {
	// Dir is the directory holding the daily audit log files.
	Dir string

	// Enabled turns the audit trail on. When false every method is a
	// no-op and no file is opened.
	Enabled bool

	// AppLogPath is the size-rotated application log. Empty disables it.
	AppLogPath string

	// AppLogLevel is the minimum application log level (debug, info,
	// warn, error).
	AppLogLevel string

	// Now overrides the clock, for tests. Defaults to time.Now.
	Now func() time.Time
}

// Logger is the audit event sink.
type Logger struct {
	enabled bool
	log     *zap.Logger
	sink    *dailySink
	app     *zap.Logger
}

// New creates an audit logger. On construction it emits a STARTUP event
// carrying the full process environment, sorted by key.
func New(cfg Config) (*Logger, error) {
	if !cfg.Enabled {
		return &Logger{enabled: false, app: zap.NewNop()}, nil
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		MessageKey:     "message",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.MillisDurationEncoder,
	}

	sink := &dailySink{dir: cfg.Dir, now: now}

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		sink,
		zapcore.InfoLevel,
	)

	logger := &Logger{
		enabled: true,
		log:     zap.New(core, zap.ErrorOutput(zapcore.AddSync(io.Discard))),
		sink:    sink,
		app:     zap.NewNop(),
	}

	if cfg.AppLogPath != "" {
		level := cfg.AppLogLevel
		if level == "" {
			level = "info"
		}
		parsed, err := zapcore.ParseLevel(level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %s: %w", level, err)
		}
		appCore := zapcore.NewCore(
			zapcore.NewJSONEncoder(encoderConfig),
			zapcore.AddSync(&lumberjack.Logger{
				Filename:   cfg.AppLogPath,
				MaxSize:    100, // megabytes
				MaxBackups: 10,
				MaxAge:     30, // days
				Compress:   true,
			}),
			parsed,
		)
		logger.app = zap.New(appCore, zap.ErrorOutput(zapcore.AddSync(io.Discard)))
	}

	logger.Write(LevelInfo, EventStartup, "process started", map[string]interface{}{
		"environment": snapshotEnviron(),
	})

	return logger, nil
}

// Write appends one audit entry. Secret-named fields in data are masked
// unless the event type is exempt. Failures are swallowed.
func (l *Logger) Write(level Level, typ EventType, message string, data map[string]interface{}) {
	if l == nil || !l.enabled {
		return
	}

	if !verbatimTypes[typ] {
		if redacted, ok := Redact(data).(map[string]interface{}); ok {
			data = redacted
		}
	}

	fields := make([]zap.Field, 0, len(data)+1)
	fields = append(fields, zap.String("type", string(typ)))
	for _, k := range sortedKeys(data) {
		fields = append(fields, zap.Any(k, data[k]))
	}

	if level == LevelError {
		l.log.Error(message, fields...)
		return
	}
	l.log.Info(message, fields...)
}

// Info appends an INFO-level entry.
func (l *Logger) Info(typ EventType, message string, data map[string]interface{}) {
	l.Write(LevelInfo, typ, message, data)
}

// Error appends an ERROR-level entry.
func (l *Logger) Error(typ EventType, message string, data map[string]interface{}) {
	l.Write(LevelError, typ, message, data)
}

// App returns the application logger.
func (l *Logger) App() *zap.Logger {
	if l == nil || l.app == nil {
		return zap.NewNop()
	}
	return l.app
}

// Enabled reports whether the audit trail is active.
func (l *Logger) Enabled() bool {
	return l != nil && l.enabled
}

// Sync flushes both log streams.
func (l *Logger) Sync() error {
	if l == nil || !l.enabled {
		return nil
	}
	_ = l.log.Sync()
	return l.app.Sync()
}

// Close flushes and closes the audit stream.
func (l *Logger) Close() error {
	if l == nil || !l.enabled {
		return nil
	}
	_ = l.Sync()
	return l.sink.Close()
}

// dailySink is a zapcore.WriteSyncer appending to one file per UTC day.
// The rotation check runs on every write; same-day writes reuse a single
// append stream.
type dailySink struct {
	mu   sync.Mutex
	dir  string
	now  func() time.Time
	day  string
	file *os.File
}

// FileName returns the audit file name for a given instant.
func FileName(t time.Time) string {
	return fmt.Sprintf("mcp-server-%s.log", t.UTC().Format("2006-01-02"))
}

func (s *dailySink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	day := s.now().UTC().Format("2006-01-02")
	if s.file == nil || day != s.day {
		if s.file != nil {
			_ = s.file.Close()
			s.file = nil
		}
		path := filepath.Join(s.dir, FileName(s.now()))
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			// Audit writes never poison the primary path.
			return len(p), nil
		}
		s.file = f
		s.day = day
	}

	if _, err := s.file.Write(p); err != nil {
		return len(p), nil
	}
	return len(p), nil
}

func (s *dailySink) Sync() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file != nil {
		_ = s.file.Sync()
	}
	return nil
}

func (s *dailySink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file != nil {
		err := s.file.Close()
		s.file = nil
		return err
	}
	return nil
}

// snapshotEnviron returns the process environment as a key-sorted map.
func snapshotEnviron() map[string]string {
	env := os.Environ()
	sort.Strings(env)
	out := make(map[string]string, len(env))
	for _, kv := range env {
		if i := strings.IndexByte(kv, '='); i > 0 {
			out[kv[:i]] = kv[i+1:]
		}
	}
	return out
}
