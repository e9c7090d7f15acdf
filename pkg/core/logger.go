package core

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"
)

// Level is a logging threshold
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// String returns the lower-case level name
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return fmt.Sprintf("level(%d)", int(l))
	}
}

// ParseLevel parses a level name (debug, info, warn, error)
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "", "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	}
	return LevelInfo, &Error{Code: CodeInvalidInput, Message: fmt.Sprintf("unknown log level %q", s)}
}

// Logger provides structured logging capabilities
// This abstraction allows swapping logging implementations
type Logger interface {
	// Error logs an error message
	Error(args ...interface{})

	// Errorf logs a formatted error message
	Errorf(format string, args ...interface{})

	// Warn logs a warning message
	Warn(args ...interface{})

	// Warnf logs a formatted warning message
	Warnf(format string, args ...interface{})

	// Info logs an informational message
	Info(args ...interface{})

	// Infof logs a formatted informational message
	Infof(format string, args ...interface{})

	// Debug logs a debug message
	Debug(args ...interface{})

	// Debugf logs a formatted debug message
	Debugf(format string, args ...interface{})

	// WithFields returns a logger that attaches fields to every entry
	WithFields(fields map[string]interface{}) Logger

	// WithContext returns a logger carrying the request and trace ids found in ctx
	WithContext(ctx context.Context) Logger
}

// LoggerOptions configures NewLogger
type LoggerOptions struct {
	// Format is "text" (default) or "json"
	Format string

	// Level is the minimum level written
	Level Level

	// Out receives debug and info entries (default os.Stdout)
	Out io.Writer

	// ErrOut receives warn and error entries (default os.Stderr)
	ErrOut io.Writer
}

type sink struct {
	mu     sync.Mutex
	json   bool
	level  Level
	out    *log.Logger
	errOut *log.Logger
	rawOut io.Writer
	rawErr io.Writer
}

// logger is the shared implementation behind text and JSON output.
// Derived loggers share the sink so writes stay serialized.
type logger struct {
	sink   *sink
	fields map[string]interface{}
}

// NewDefaultLogger creates a text logger at debug level writing to stdout/stderr
func NewDefaultLogger() Logger {
	return NewLogger(LoggerOptions{Level: LevelDebug})
}

// NewLogger creates a logger from options
func NewLogger(opts LoggerOptions) Logger {
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	errOut := opts.ErrOut
	if errOut == nil {
		errOut = os.Stderr
	}
	s := &sink{
		json:   strings.EqualFold(opts.Format, "json"),
		level:  opts.Level,
		rawOut: out,
		rawErr: errOut,
	}
	if !s.json {
		s.out = log.New(out, "", log.LstdFlags|log.Lshortfile)
		s.errOut = log.New(errOut, "", log.LstdFlags|log.Lshortfile)
	}
	return &logger{sink: s}
}

// NewNopLogger discards everything
func NewNopLogger() Logger {
	return NewLogger(LoggerOptions{Out: io.Discard, ErrOut: io.Discard, Level: LevelError + 1})
}

func (l *logger) Error(args ...interface{}) { l.write(LevelError, fmt.Sprint(args...)) }

func (l *logger) Errorf(format string, args ...interface{}) {
	l.write(LevelError, fmt.Sprintf(format, args...))
}

func (l *logger) Warn(args ...interface{}) { l.write(LevelWarn, fmt.Sprint(args...)) }

func (l *logger) Warnf(format string, args ...interface{}) {
	l.write(LevelWarn, fmt.Sprintf(format, args...))
}

func (l *logger) Info(args ...interface{}) { l.write(LevelInfo, fmt.Sprint(args...)) }

func (l *logger) Infof(format string, args ...interface{}) {
	l.write(LevelInfo, fmt.Sprintf(format, args...))
}

func (l *logger) Debug(args ...interface{}) { l.write(LevelDebug, fmt.Sprint(args...)) }

func (l *logger) Debugf(format string, args ...interface{}) {
	l.write(LevelDebug, fmt.Sprintf(format, args...))
}

func (l *logger) WithFields(fields map[string]interface{}) Logger {
	merged := make(map[string]interface{}, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &logger{sink: l.sink, fields: merged}
}

func (l *logger) WithContext(ctx context.Context) Logger {
	if ctx == nil {
		return l
	}
	fields := make(map[string]interface{}, 2)
	if id := GetRequestID(ctx); id != "" {
		fields["request_id"] = id
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		fields["trace_id"] = sc.TraceID().String()
	}
	if len(fields) == 0 {
		return l
	}
	return l.WithFields(fields)
}

// write is called from exactly one exported method, so calldepth 3 points
// Lshortfile at the caller of that method.
func (l *logger) write(level Level, msg string) {
	s := l.sink
	if level < s.level {
		return
	}
	if s.json {
		l.writeJSON(level, msg)
		return
	}

	var b strings.Builder
	b.WriteString("[")
	b.WriteString(strings.ToUpper(level.String()))
	b.WriteString("] ")
	b.WriteString(msg)
	for _, k := range sortedKeys(l.fields) {
		fmt.Fprintf(&b, " %s=%v", k, l.fields[k])
	}

	target := s.out
	if level >= LevelWarn {
		target = s.errOut
	}
	_ = target.Output(3, b.String())
}

func (l *logger) writeJSON(level Level, msg string) {
	entry := make(map[string]interface{}, len(l.fields)+3)
	for k, v := range l.fields {
		if err, ok := v.(error); ok {
			v = err.Error()
		}
		entry[k] = v
	}
	entry["time"] = time.Now().UTC().Format(time.RFC3339Nano)
	entry["level"] = level.String()
	entry["msg"] = msg

	data, err := json.Marshal(entry)
	if err != nil {
		data = []byte(fmt.Sprintf(`{"level":"error","msg":"log encode failed: %s"}`, err))
	}
	data = append(data, '\n')

	s := l.sink
	target := s.rawOut
	if level >= LevelWarn {
		target = s.rawErr
	}
	s.mu.Lock()
	_, _ = target.Write(data)
	s.mu.Unlock()
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
