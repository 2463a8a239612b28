package log

import (
	"context"

	"github.com/smallbiznis/taxledger/pkg/telemetry/correlation"
	"github.com/smallbiznis/taxledger/pkg/tenantctx"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// L returns the global logger enriched with request metadata from ctx.
func L(ctx context.Context) *zap.Logger {
	return With(ctx, zap.L())
}

// With adds the correlation id, the tenant and the active span to base.
// Missing values are omitted rather than logged empty.
func With(ctx context.Context, base *zap.Logger) *zap.Logger {
	if ctx == nil {
		return base
	}
	fields := Fields(ctx)
	if len(fields) == 0 {
		return base
	}
	return base.With(fields...)
}

// Fields lists the request metadata found on ctx.
func Fields(ctx context.Context) []zap.Field {
	fields := make([]zap.Field, 0, 4)
	if id := correlation.FromContext(ctx); id != "" {
		fields = append(fields, zap.String("correlation_id", id))
	}
	if tenantID, ok := tenantctx.TenantID(ctx); ok {
		fields = append(fields, zap.String("tenant_id", tenantID.String()))
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
	}
	return fields
}
