package ratelimit

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/oriys/tenantgate/internal/logging"
	"github.com/oriys/tenantgate/internal/tenant"
)

// ErrorWriter renders a rejection. The api package passes its JSON error
// writer; nil falls back to a bare 429.
type ErrorWriter func(w http.ResponseWriter, r *http.Request, err error)

// Middleware gates requests through limiter. It runs inside the tenant scope
// bound by the auth middleware; unscoped requests pass through uncounted.
// Backend failures admit the request.
func Middleware(limiter *Limiter, writeError ErrorWriter) func(http.Handler) http.Handler {
	if writeError == nil {
		writeError = func(w http.ResponseWriter, _ *http.Request, _ error) {
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
		}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d, err := limiter.Allow(r.Context())
			switch {
			case err == nil:
			case errors.Is(err, tenant.ErrTooManyRequests):
				setHeaders(w.Header(), d)
				w.Header().Set("Retry-After", strconv.FormatInt(retryAfter(d.ResetAt), 10))
				writeError(w, r, err)
				return
			default:
				logging.FromContext(r.Context()).Warn("rate limit backend failed, admitting request", "error", err)
				next.ServeHTTP(w, r)
				return
			}
			setHeaders(w.Header(), d)
			next.ServeHTTP(w, r)
		})
	}
}

func setHeaders(h http.Header, d Decision) {
	if !d.Scoped {
		return
	}
	h.Set("X-RateLimit-Limit", strconv.FormatInt(d.Limit.Limit, 10))
	h.Set("X-RateLimit-Remaining", strconv.FormatInt(d.Remaining(), 10))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))
}

// retryAfter is whole seconds until reset, at least one.
func retryAfter(reset time.Time) int64 {
	if s := int64(time.Until(reset).Seconds()); s > 1 {
		return s
	}
	return 1
}
