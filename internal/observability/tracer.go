package observability

import (
	"context"
	"errors"

	"github.com/oriys/tenantgate/internal/tenant"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys for governance spans.
var (
	AttrTenantID      = attribute.Key("tenant.id")
	AttrTenantSlug    = attribute.Key("tenant.slug")
	AttrPrincipalKind = attribute.Key("tenant.principal.kind")
	AttrQuotaKind     = attribute.Key("tenant.quota.kind")
	AttrErrorClass    = attribute.Key("tenant.error.class")
)

// StartSpan starts an internal span.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name,
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// SetSpanError records err on span. Only internal failures mark the span as
// errored; denials such as Unauthorized or QuotaExceeded are expected
// outcomes and are recorded as a class attribute.
func SetSpanError(span trace.Span, err error) {
	class := tenant.Classify(err)
	span.SetAttributes(AttrErrorClass.String(class.Error()))
	if errors.Is(class, tenant.ErrInternal) || errors.Is(class, tenant.ErrInvalidConfiguration) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// ScopeAttributes describes the tenant context bound to ctx, if any.
func ScopeAttributes(ctx context.Context) []attribute.KeyValue {
	tc, ok := tenant.CurrentOrNone(ctx)
	if !ok {
		return nil
	}
	return []attribute.KeyValue{
		AttrTenantID.String(tc.TenantID.String()),
		AttrPrincipalKind.String(tc.Principal.Kind.String()),
	}
}

// AnnotateScope copies the bound tenant context onto the active span.
func AnnotateScope(ctx context.Context) {
	if attrs := ScopeAttributes(ctx); attrs != nil {
		trace.SpanFromContext(ctx).SetAttributes(attrs...)
	}
}

// SpanIDs returns the trace and span ids of the active span, or empty
// strings when the span is not recording ids.
func SpanIDs(ctx context.Context) (traceID, spanID string) {
	sc := trace.SpanContextFromContext(ctx)
	if sc.HasTraceID() {
		traceID = sc.TraceID().String()
	}
	if sc.HasSpanID() {
		spanID = sc.SpanID().String()
	}
	return traceID, spanID
}
