package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/oriys/tenantgate/internal/tenant"
)

func TestExtractCredential(t *testing.T) {
	tests := []struct {
		header, apiKey, want string
	}{
		{"Bearer abc", "", "abc"},
		{"bearer smt_xyz", "", "smt_xyz"},
		{"smt_raw", "", "smt_raw"},
		{"", "smt_header", "smt_header"},
		{"", "", ""},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		if tt.header != "" {
			r.Header.Set("Authorization", tt.header)
		}
		if tt.apiKey != "" {
			r.Header.Set("X-API-Key", tt.apiKey)
		}
		if got := ExtractCredential(r); got != tt.want {
			t.Errorf("ExtractCredential(%q, %q) = %q, want %q", tt.header, tt.apiKey, got, tt.want)
		}
	}
}

func TestMiddlewareBindsScope(t *testing.T) {
	f := newFixture(t)
	key := f.addKey(t, "s3cret", nil)

	var failures []error
	writeErr := func(w http.ResponseWriter, _ *http.Request, err error) {
		failures = append(failures, err)
		w.WriteHeader(http.StatusUnauthorized)
	}

	mux := http.NewServeMux()
	mux.Handle("GET /tenants/{tenant}/whoami", Middleware(f.resolver, writeErr)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tc, ok := tenant.CurrentOrNone(r.Context())
		if !ok || tc.Principal.APIKeyID != key.ID {
			t.Errorf("scope = %+v, %v", tc, ok)
		}
		w.WriteHeader(http.StatusNoContent)
	})))

	req := httptest.NewRequest(http.MethodGet, "/tenants/acme/whoami", nil)
	req.Header.Set("Authorization", "Bearer smt_s3cret")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/tenants/acme/whoami", nil)
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized || len(failures) != 1 || !errors.Is(failures[0], tenant.ErrUnauthorized) {
		t.Fatalf("status = %d, failures = %v", rec.Code, failures)
	}
	f.resolver.Wait()
}
