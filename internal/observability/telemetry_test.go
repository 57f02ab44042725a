package observability

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/oriys/tenantgate/internal/tenant"
)

func TestSpansAreNoopUntilInit(t *testing.T) {
	if err := Init(context.Background(), Config{Enabled: false}); err != nil {
		t.Fatalf("Init disabled: %v", err)
	}
	if Enabled() {
		t.Fatal("tracing should be disabled")
	}
	ctx, span := StartSpan(context.Background(), "test", AttrTenantID.String("t-1"))
	SetSpanError(span, errors.New("boom"))
	span.End()
	if traceID, _ := SpanIDs(ctx); traceID != "" {
		t.Fatal("noop span must not carry a trace id")
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		ok   bool
	}{
		{"disabled ignores fields", Config{Exporter: "carrier-pigeon", SampleRate: 7}, true},
		{"otlp", Config{Enabled: true, Exporter: ExporterOTLPHTTP, ServiceName: "tenantgate", SampleRate: 0.5}, true},
		{"unknown exporter", Config{Enabled: true, Exporter: "carrier-pigeon", ServiceName: "tenantgate"}, false},
		{"rate above one", Config{Enabled: true, Exporter: ExporterNone, ServiceName: "tenantgate", SampleRate: 1.5}, false},
		{"no service", Config{Enabled: true, Exporter: ExporterNone, SampleRate: 1}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.ok && err != nil {
				t.Fatalf("Validate: %v", err)
			}
			if !tt.ok && !errors.Is(err, tenant.ErrInvalidConfiguration) {
				t.Fatalf("Validate err = %v, want invalid configuration", err)
			}
		})
	}
}

func TestInitRejectsUnknownExporter(t *testing.T) {
	err := Init(context.Background(), Config{Enabled: true, Exporter: "carrier-pigeon", ServiceName: "tenantgate"})
	if err == nil {
		t.Fatal("expected error for unknown exporter")
	}
}

func TestHTTPMiddlewareCarriesTraceAndScope(t *testing.T) {
	if err := Init(context.Background(), Config{Enabled: true, Exporter: ExporterNone, ServiceName: "tenantgate", SampleRate: 1}); err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer func() {
		_ = Shutdown(context.Background())
		_ = Init(context.Background(), Config{})
	}()

	tc := tenant.TenantContext{TenantID: uuid.New(), Principal: tenant.APIKeyPrincipal(uuid.New())}
	var traceID string
	var attrs int
	h := HTTPMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID, _ = SpanIDs(r.Context())
		ctx, err := tenant.WithScope(r.Context(), tc)
		if err != nil {
			t.Errorf("WithScope: %v", err)
		}
		attrs = len(ScopeAttributes(ctx))
		AnnotateScope(ctx)
		NameSpan(r, "/health")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d", rec.Code)
	}
	if traceID == "" {
		t.Fatal("expected a trace id inside the traced handler")
	}
	if attrs != 2 {
		t.Fatalf("scope attributes = %d, want 2", attrs)
	}
	if ScopeAttributes(context.Background()) != nil {
		t.Fatal("unscoped context must not yield attributes")
	}
}

func TestSetSpanErrorClassifies(t *testing.T) {
	_, span := StartSpan(context.Background(), "classify")
	defer span.End()
	// Must not panic on either branch with a no-op span.
	SetSpanError(span, fmt.Errorf("denied: %w", tenant.ErrQuotaExceeded))
	SetSpanError(span, errors.New("socket closed"))
}
