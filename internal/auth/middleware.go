package auth

import (
	"net/http"
	"strings"

	"github.com/oriys/tenantgate/internal/tenant"
)

// ErrorWriter renders an error response.
type ErrorWriter func(w http.ResponseWriter, r *http.Request, err error)

// ExtractCredential returns the credential from the Authorization header,
// with any "Bearer " scheme stripped. X-API-Key is accepted as a fallback.
func ExtractCredential(r *http.Request) string {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	if h != "" {
		return h
	}
	return strings.TrimSpace(r.Header.Get("X-API-Key"))
}

// Middleware resolves the credential against the {tenant} path value and
// serves next with the resulting TenantContext bound to the request context.
// It must wrap handlers registered with a {tenant} pattern.
func Middleware(resolver *Resolver, writeError ErrorWriter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tc, err := resolver.Resolve(r.Context(), r.PathValue("tenant"), ExtractCredential(r))
			if err != nil {
				writeError(w, r, err)
				return
			}
			ctx, err := tenant.WithScope(r.Context(), tc)
			if err != nil {
				writeError(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
