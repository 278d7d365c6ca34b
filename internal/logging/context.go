package logging

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type (
	requestCtxKey     struct{}
	vectorStoreCtxKey struct{}
	fileCtxKey        struct{}
	loggerCtxKey      struct{}
)

// maxIDLen caps correlation ids copied into log entries.
const maxIDLen = 128

// ContextFields extracts correlation fields from ctx.
func ContextFields(ctx context.Context) []zap.Field {
	fields := make([]zap.Field, 0, 6)

	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
	}
	if id := RequestIDFromContext(ctx); id != "" {
		fields = append(fields, zap.String("request.id", id))
	}
	if id := VectorStoreIDFromContext(ctx); id != "" {
		fields = append(fields, zap.String("vector_store.id", id))
	}
	if id := FileIDFromContext(ctx); id != "" {
		fields = append(fields, zap.String("file.id", id))
	}
	return fields
}

func withID(ctx context.Context, key any, id string) context.Context {
	if len(id) > maxIDLen {
		id = id[:maxIDLen]
	}
	return context.WithValue(ctx, key, id)
}

func idFrom(ctx context.Context, key any) string {
	s, _ := ctx.Value(key).(string)
	return s
}

// WithRequestID tags ctx with the HTTP request id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return withID(ctx, requestCtxKey{}, id)
}

// RequestIDFromContext returns the request id or "".
func RequestIDFromContext(ctx context.Context) string {
	return idFrom(ctx, requestCtxKey{})
}

// WithVectorStoreID tags ctx with the vector store being operated on.
func WithVectorStoreID(ctx context.Context, id string) context.Context {
	return withID(ctx, vectorStoreCtxKey{}, id)
}

// VectorStoreIDFromContext returns the vector store id or "".
func VectorStoreIDFromContext(ctx context.Context) string {
	return idFrom(ctx, vectorStoreCtxKey{})
}

// WithFileID tags ctx with the file being ingested or deleted.
func WithFileID(ctx context.Context, id string) context.Context {
	return withID(ctx, fileCtxKey{}, id)
}

// FileIDFromContext returns the file id or "".
func FileIDFromContext(ctx context.Context) string {
	return idFrom(ctx, fileCtxKey{})
}

// WithLogger stores logger in ctx.
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerCtxKey{}, logger)
}

// FromContext returns the logger stored in ctx, or a nop logger.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerCtxKey{}).(*Logger); ok {
		return l
	}
	return Nop()
}
