package logger

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// contextKey scopes this package's context values.
type contextKey string

const (
	jobIDKey    contextKey = "job_id"
	tenantIDKey contextKey = "tenant_id"
	clientIDKey contextKey = "client_id"
)

// WithJobID stores the scheduler job id in the context and returns a logger
// that carries it on every line. The scheduler calls this once per job so
// stage code and its query logs stay correlated with the run.
func WithJobID(ctx context.Context, log *zap.Logger, jobID string) (context.Context, *zap.Logger) {
	return context.WithValue(ctx, jobIDKey, jobID), log.With(zap.String("job_id", jobID))
}

// WithTenantID stores the tenant id in the context and returns a logger
// carrying it.
func WithTenantID(ctx context.Context, log *zap.Logger, tenantID string) (context.Context, *zap.Logger) {
	return context.WithValue(ctx, tenantIDKey, tenantID), log.With(zap.String("tenant_id", tenantID))
}

// WithClientID stores the client id in the context and returns a logger
// carrying it. Per-client fan-outs call this so queries issued during one
// client's scan attribute to that client.
func WithClientID(ctx context.Context, log *zap.Logger, clientID string) (context.Context, *zap.Logger) {
	return context.WithValue(ctx, clientIDKey, clientID), log.With(zap.String("client_id", clientID))
}

// GetJobID returns the scheduler job id stored in the context, or "".
func GetJobID(ctx context.Context) string {
	id, _ := ctx.Value(jobIDKey).(string)
	return id
}

// GetTenantID returns the tenant id stored in the context, or "".
func GetTenantID(ctx context.Context) string {
	id, _ := ctx.Value(tenantIDKey).(string)
	return id
}

// GetClientID returns the client id stored in the context, or "".
func GetClientID(ctx context.Context) string {
	id, _ := ctx.Value(clientIDKey).(string)
	return id
}

// WithTraceContext returns the logger with the active span's trace and span
// ids attached. Without an active span the logger comes back unchanged.
func WithTraceContext(ctx context.Context, log *zap.Logger) *zap.Logger {
	sc := trace.SpanFromContext(ctx).SpanContext()
	if !sc.IsValid() {
		return log
	}
	return log.With(
		zap.String("trace_id", sc.TraceID().String()),
		zap.String("span_id", sc.SpanID().String()),
	)
}
