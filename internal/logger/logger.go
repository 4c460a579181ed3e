package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/trace"
)

// Config holds logger configuration.
type Config struct {
	Level  string // DEBUG, INFO, WARN, ERROR
	Format string // text, json
	Output string // stdout, stderr, or file path
}

const (
	formatText = "text"
	formatJSON = "json"
)

var levels = map[string]slog.Level{
	"DEBUG": slog.LevelDebug,
	"INFO":  slog.LevelInfo,
	"WARN":  slog.LevelWarn,
	"ERROR": slog.LevelError,
}

var (
	level slog.LevelVar

	mu      sync.RWMutex
	out     io.Writer = os.Stderr
	color   bool
	format  = formatText
	slogger *slog.Logger
)

func init() {
	color = isTerminal(os.Stderr.Fd())
	rebuild()
}

// rebuild replaces the handler after an output or format change. Level
// changes go through the shared LevelVar and need no rebuild.
func rebuild() {
	mu.Lock()
	defer mu.Unlock()

	opts := &slog.HandlerOptions{Level: &level}
	if format == formatJSON {
		slogger = slog.New(slog.NewJSONHandler(out, opts))
		return
	}
	slogger = slog.New(NewColorTextHandler(out, opts, color))
}

// Init applies cfg. Empty fields keep their current setting. Output
// defaults to stderr so that entry contents written to stdout stay clean.
func Init(cfg Config) error {
	if cfg.Output != "" {
		w, tty, err := openOutput(cfg.Output)
		if err != nil {
			return err
		}
		setOutput(w, tty)
	}
	SetLevel(cfg.Level)
	SetFormat(cfg.Format)
	return nil
}

func openOutput(name string) (io.Writer, bool, error) {
	switch strings.ToLower(name) {
	case "stdout":
		return os.Stdout, isTerminal(os.Stdout.Fd()), nil
	case "stderr":
		return os.Stderr, isTerminal(os.Stderr.Fd()), nil
	}
	f, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, false, fmt.Errorf("failed to open log file %q: %w", name, err)
	}
	return f, false, nil
}

// InitWithWriter logs to w, mostly for tests.
func InitWithWriter(w io.Writer, lvl, fmtName string, enableColor bool) {
	setOutput(w, enableColor)
	SetLevel(lvl)
	SetFormat(fmtName)
}

func setOutput(w io.Writer, enableColor bool) {
	mu.Lock()
	out, color = w, enableColor
	mu.Unlock()
	rebuild()
}

// SetLevel sets the minimum level. Unknown names are ignored.
func SetLevel(name string) {
	if l, ok := levels[strings.ToUpper(name)]; ok {
		level.Set(l)
	}
}

// SetFormat switches between text and json. Unknown names are ignored.
func SetFormat(name string) {
	name = strings.ToLower(name)
	if name != formatText && name != formatJSON {
		return
	}
	mu.Lock()
	changed := format != name
	format = name
	mu.Unlock()
	if changed {
		rebuild()
	}
}

func get() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return slogger
}

// Debug logs at debug level: Debug("msg", key, value, ...).
func Debug(msg string, args ...any) { log(context.Background(), slog.LevelDebug, msg, args) }

// Info logs at info level.
func Info(msg string, args ...any) { log(context.Background(), slog.LevelInfo, msg, args) }

// Warn logs at warn level.
func Warn(msg string, args ...any) { log(context.Background(), slog.LevelWarn, msg, args) }

// Error logs at error level.
func Error(msg string, args ...any) { log(context.Background(), slog.LevelError, msg, args) }

// DebugCtx logs at debug level with the fields carried by ctx.
func DebugCtx(ctx context.Context, msg string, args ...any) {
	log(ctx, slog.LevelDebug, msg, contextFields(ctx, args))
}

// InfoCtx logs at info level with the fields carried by ctx.
func InfoCtx(ctx context.Context, msg string, args ...any) {
	log(ctx, slog.LevelInfo, msg, contextFields(ctx, args))
}

// WarnCtx logs at warn level with the fields carried by ctx.
func WarnCtx(ctx context.Context, msg string, args ...any) {
	log(ctx, slog.LevelWarn, msg, contextFields(ctx, args))
}

// ErrorCtx logs at error level with the fields carried by ctx.
func ErrorCtx(ctx context.Context, msg string, args ...any) {
	log(ctx, slog.LevelError, msg, contextFields(ctx, args))
}

func log(ctx context.Context, l slog.Level, msg string, args []any) {
	if l < level.Level() {
		return
	}
	get().Log(ctx, l, msg, args...)
}

// contextFields prepends the LogContext of ctx to args. Trace and span IDs
// come from the LogContext or, failing that, from the active span.
func contextFields(ctx context.Context, args []any) []any {
	lc := FromContext(ctx)
	sc := trace.SpanContextFromContext(ctx)
	if lc == nil && !sc.IsValid() {
		return args
	}
	if lc == nil {
		lc = &LogContext{}
	}

	traceID, spanID := lc.TraceID, lc.SpanID
	if traceID == "" && sc.HasTraceID() {
		traceID, spanID = sc.TraceID().String(), sc.SpanID().String()
	}

	fields := make([]any, 0, 10+len(args))
	for _, kv := range [...][2]string{
		{KeyTraceID, traceID},
		{KeySpanID, spanID},
		{KeyOperation, lc.Operation},
		{KeyMountPoint, lc.MountPoint},
		{KeyController, lc.Controller},
	} {
		if kv[1] != "" {
			fields = append(fields, kv[0], kv[1])
		}
	}
	return append(fields, args...)
}

// With returns a logger with args bound.
func With(args ...any) *slog.Logger {
	return get().With(args...)
}
