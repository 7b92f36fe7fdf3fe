// Package requestctx carries request-scoped values shared by middleware and services.
package requestctx

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"
)

type contextKey int

const (
	loggerKey contextKey = iota
	traceKey
	subjectKey
)

var noopLogger = zap.NewNop()

// TraceInfo captures trace metadata propagated through request context.
type TraceInfo struct {
	TraceID   string
	SpanID    string
	Sampled   bool
	ProjectID string
}

// WithLogger stores the logger in context for downstream consumers.
func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if logger == nil {
		logger = noopLogger
	}
	return context.WithValue(ctx, loggerKey, logger)
}

// Logger retrieves the zap logger from context or returns a no-op logger.
func Logger(ctx context.Context) *zap.Logger {
	if ctx == nil {
		return noopLogger
	}
	if logger, ok := ctx.Value(loggerKey).(*zap.Logger); ok && logger != nil {
		return logger
	}
	return noopLogger
}

// NoopLogger exposes the shared noop logger instance used across the package.
func NoopLogger() *zap.Logger { return noopLogger }

// WithTrace stores the trace metadata on the context for downstream usage.
func WithTrace(ctx context.Context, info TraceInfo) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, traceKey, info)
}

// Trace retrieves the trace metadata from context when available.
func Trace(ctx context.Context) (TraceInfo, bool) {
	if ctx == nil {
		return TraceInfo{}, false
	}
	info, ok := ctx.Value(traceKey).(TraceInfo)
	return info, ok
}

// TraceID extracts the trace identifier from context when present.
func TraceID(ctx context.Context) string {
	info, _ := Trace(ctx)
	return info.TraceID
}

// WithSubjectSlot installs a writable slot that inner middleware fill with the
// authenticated subject, so outer middleware can read it after the handler returns.
func WithSubjectSlot(ctx context.Context) context.Context {
	if _, ok := ctx.Value(subjectKey).(*atomic.Value); ok {
		return ctx
	}
	return context.WithValue(ctx, subjectKey, new(atomic.Value))
}

// SetSubject records the subject in the slot installed by WithSubjectSlot. It is a no-op without one.
func SetSubject(ctx context.Context, subject string) {
	if slot, ok := ctx.Value(subjectKey).(*atomic.Value); ok {
		slot.Store(subject)
	}
}

// Subject returns the recorded subject or an empty string.
func Subject(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	slot, ok := ctx.Value(subjectKey).(*atomic.Value)
	if !ok {
		return ""
	}
	subject, _ := slot.Load().(string)
	return subject
}
