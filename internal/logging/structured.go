package logging

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/oriys/tenantgate/internal/observability"
	"github.com/oriys/tenantgate/internal/tenant"
)

// InitStructured installs a stderr logger. format is "json" or "text";
// anything else falls back to text.
func InitStructured(format, level string) {
	InitStructuredTo(os.Stderr, format, level)
}

// InitStructuredTo is InitStructured with an explicit destination.
func InitStructuredTo(w io.Writer, format, level string) {
	SetLevelFromString(level)
	opts := &slog.HandlerOptions{Level: logLevel}
	if format == "json" {
		opLogger.Store(slog.New(slog.NewJSONHandler(w, opts)))
		return
	}
	opLogger.Store(slog.New(slog.NewTextHandler(w, opts)))
}

// WithTrace annotates l with trace and span ids. Empty ids are skipped.
func WithTrace(l *slog.Logger, traceID, spanID string) *slog.Logger {
	switch {
	case traceID == "":
		return l
	case spanID == "":
		return l.With("trace_id", traceID)
	default:
		return l.With("trace_id", traceID, "span_id", spanID)
	}
}

// FromContext returns the operational logger annotated with the trace and
// tenant bound to ctx, when present.
func FromContext(ctx context.Context) *slog.Logger {
	traceID, spanID := observability.SpanIDs(ctx)
	l := WithTrace(Op(), traceID, spanID)
	tc, ok := tenant.CurrentOrNone(ctx)
	if !ok {
		return l
	}
	args := []any{"tenant_id", tc.TenantID.String(), "principal", tc.Principal.Kind.String()}
	if id, ok := tc.UserID(); ok {
		args = append(args, "user_id", id.String())
	}
	if id, ok := tc.APIKeyID(); ok {
		args = append(args, "api_key_id", id.String())
	}
	return l.With(args...)
}
