// Package api is the HTTP boundary: routing, credential middleware, error
// mapping and JSON bodies.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/oriys/tenantgate/internal/audit"
	"github.com/oriys/tenantgate/internal/auth"
	"github.com/oriys/tenantgate/internal/domain"
	"github.com/oriys/tenantgate/internal/logging"
	"github.com/oriys/tenantgate/internal/metrics"
	"github.com/oriys/tenantgate/internal/observability"
	"github.com/oriys/tenantgate/internal/quota"
	"github.com/oriys/tenantgate/internal/ratelimit"
)

// ResourceService is the governed CRUD surface of one resource kind.
type ResourceService[T, C any] interface {
	Create(ctx context.Context, req C) (T, error)
	Get(ctx context.Context, id uuid.UUID) (T, error)
	List(ctx context.Context, page domain.Page) ([]T, error)
	Count(ctx context.Context) (int64, error)
	Update(ctx context.Context, id uuid.UUID, upd domain.UpdateRequest) (T, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// TriggerService adds listing by parent monitor. ListByMonitor fails with
// tenant.ErrResourceNotFound when the monitor is not the current tenant's.
type TriggerService interface {
	ResourceService[domain.Trigger, domain.CreateTriggerRequest]
	ListByMonitor(ctx context.Context, monitorID uuid.UUID, page domain.Page) ([]domain.Trigger, error)
}

type AccountService interface {
	Register(ctx context.Context, req domain.RegisterRequest) (domain.User, error)
	Login(ctx context.Context, req domain.LoginRequest) (domain.LoginResponse, error)
	Refresh(ctx context.Context, refreshToken string) (domain.LoginResponse, error)
}

type APIKeyService interface {
	Create(ctx context.Context, req domain.CreateAPIKeyRequest) (domain.CreatedAPIKey, error)
	List(ctx context.Context) ([]domain.APIKey, error)
	Revoke(ctx context.Context, id uuid.UUID) error
}

type QuotaReader interface {
	GetQuotaStatus(ctx context.Context, tenantID uuid.UUID) (quota.Status, error)
}

type AuditReader interface {
	ListAuditEntries(ctx context.Context, limit int) ([]audit.Entry, error)
}

type ServerConfig struct {
	Resolver *auth.Resolver
	Limiter  *ratelimit.Limiter
	Accounts AccountService
	APIKeys  APIKeyService
	Monitors ResourceService[domain.Monitor, domain.CreateMonitorRequest]
	Networks ResourceService[domain.Network, domain.CreateNetworkRequest]
	Triggers TriggerService
	Quotas   QuotaReader
	Audit    AuditReader    // optional
	Usage    *UsageRecorder // optional
	Health   func(ctx context.Context) error

	MetricsEnabled bool
	MetricsPath    string
}

type handler struct {
	cfg ServerConfig
}

// NewHandler builds the full HTTP handler tree.
func NewHandler(cfg ServerConfig) http.Handler {
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}
	h := &handler{cfg: cfg}
	mux := http.NewServeMux()
	h.registerRoutes(mux)

	// instrument must wrap the mux directly to observe the matched pattern.
	root := instrument(mux)
	root = requestMetadata(root)
	root = observability.HTTPMiddleware(root)
	return root
}

// StartHTTPServer serves NewHandler(cfg) on addr in the background.
func StartHTTPServer(addr string, cfg ServerConfig) *http.Server {
	server := &http.Server{
		Addr:              addr,
		Handler:           NewHandler(cfg),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Op().Error("HTTP server error", "error", err)
		}
	}()
	return server
}

func (h *handler) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.health)
	if h.cfg.MetricsEnabled {
		mux.Handle("GET "+h.cfg.MetricsPath, metrics.PrometheusHandler())
	}

	if h.cfg.Accounts != nil {
		mux.HandleFunc("POST /api/v1/auth/register", h.register)
		mux.HandleFunc("POST /api/v1/auth/login", h.login)
		mux.HandleFunc("POST /api/v1/auth/refresh", h.refresh)
	}

	const base = "/api/v1/tenants/{tenant}"
	registerResource(mux, h, base+"/monitors", h.cfg.Monitors)
	registerResource(mux, h, base+"/networks", h.cfg.Networks)
	if h.cfg.Triggers != nil {
		registerResource[domain.Trigger, domain.CreateTriggerRequest](mux, h, base+"/triggers", h.cfg.Triggers)
		mux.Handle("POST "+base+"/monitors/{id}/triggers", h.scoped(h.createMonitorTrigger))
		mux.Handle("GET "+base+"/monitors/{id}/triggers", h.scoped(h.listMonitorTriggers))
	}
	if h.cfg.APIKeys != nil {
		mux.Handle("GET "+base+"/api-keys", h.scoped(h.listAPIKeys))
		mux.Handle("POST "+base+"/api-keys", h.scoped(h.createAPIKey))
		mux.Handle("DELETE "+base+"/api-keys/{key_id}", h.scoped(h.revokeAPIKey))
	}
	if h.cfg.Quotas != nil {
		mux.Handle("GET "+base+"/quota", h.scoped(h.getQuota))
	}
	if h.cfg.Audit != nil {
		mux.Handle("GET "+base+"/audit-logs", h.scoped(h.listAuditLogs))
	}
}

// scoped wraps a tenant route: credential resolution and scope binding,
// then the rate limiter, then usage recording.
func (h *handler) scoped(fn http.HandlerFunc) http.Handler {
	var next http.Handler = fn
	if h.cfg.Usage != nil {
		next = h.cfg.Usage.Middleware(next)
	}
	if h.cfg.Limiter != nil {
		next = ratelimit.Middleware(h.cfg.Limiter, WriteError)(next)
	}
	next = annotateScope(next)
	return auth.Middleware(h.cfg.Resolver, WriteError)(next)
}

func annotateScope(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		observability.AnnotateScope(r.Context())
		next.ServeHTTP(w, r)
	})
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	if h.cfg.Health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.cfg.Health(ctx); err != nil {
			logging.FromContext(r.Context()).Warn("health check failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// instrument records request counts and latency by route pattern.
func instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		metrics.IncActiveRequests()
		defer metrics.DecActiveRequests()

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		observability.NameSpan(r, route)
		metrics.RecordHTTPRequest(r.Method, route, rec.status, time.Since(start))
	})
}
