package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/trace"
)

type Options struct {
	Level       string
	Format      string
	ServiceName string
	// OTLP routes records through the otelslog bridge instead of Writer.
	OTLP   bool
	Writer io.Writer
}

// Setup builds the process logger and installs it as the slog default.
func Setup(opts Options) (*slog.Logger, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, err
	}
	logger := slog.New(NewHandler(opts, level))
	slog.SetDefault(logger)
	return logger, nil
}

// NewHandler picks the otelslog bridge or a trace-aware text/json handler.
func NewHandler(opts Options, level slog.Level) slog.Handler {
	if opts.OTLP {
		return otelslog.NewHandler(opts.ServiceName, otelslog.WithLoggerProvider(global.GetLoggerProvider()))
	}
	hopts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(opts.Format, "json") {
		return NewTraceHandler(slog.NewJSONHandler(opts.Writer, hopts))
	}
	return NewTraceHandler(slog.NewTextHandler(opts.Writer, hopts))
}

// ParseLevel accepts debug, info, warn (or warning) and error. Empty means info.
func ParseLevel(raw string) (slog.Level, error) {
	value := strings.ToLower(strings.TrimSpace(raw))
	switch value {
	case "":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log level %q", raw)
	}
}

// TraceHandler adds trace_id and span_id from the record's context.
type TraceHandler struct {
	slog.Handler
}

func NewTraceHandler(h slog.Handler) *TraceHandler {
	return &TraceHandler{Handler: h}
}

func (h *TraceHandler) Handle(ctx context.Context, r slog.Record) error {
	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		sc := span.SpanContext()
		r.AddAttrs(
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	return h.Handler.Handle(ctx, r)
}

func (h *TraceHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &TraceHandler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h *TraceHandler) WithGroup(name string) slog.Handler {
	return &TraceHandler{Handler: h.Handler.WithGroup(name)}
}
