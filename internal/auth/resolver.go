// Package auth turns inbound credentials into a tenant.TenantContext. A
// credential carrying the configured API key prefix is verified against the
// tenant's stored key hashes; anything else is treated as a bearer token.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oriys/tenantgate/internal/domain"
	"github.com/oriys/tenantgate/internal/logging"
	"github.com/oriys/tenantgate/internal/metrics"
	"github.com/oriys/tenantgate/internal/observability"
	"github.com/oriys/tenantgate/internal/tenant"
	"go.opentelemetry.io/otel/attribute"
)

// DefaultAPIKeyPrefix marks a credential as an API key.
const DefaultAPIKeyPrefix = "smt_"

// Directory is the lookup service behind the resolver.
type Directory interface {
	// TenantByRef finds a tenant by slug or id, returning
	// tenant.ErrTenantNotFound when it does not exist.
	TenantByRef(ctx context.Context, ref string) (domain.Tenant, error)
	// MembershipRole returns the user's role in the tenant, or
	// tenant.ErrResourceNotFound when no membership exists.
	MembershipRole(ctx context.Context, tenantID, userID uuid.UUID) (tenant.Role, error)
	// ActiveAPIKeys lists the tenant's active, unexpired keys.
	ActiveAPIKeys(ctx context.Context, tenantID uuid.UUID) ([]domain.APIKey, error)
	// TouchAPIKey records the last use of a key.
	TouchAPIKey(ctx context.Context, keyID uuid.UUID, at time.Time) error
}

// TokenVerifier validates bearer access tokens.
type TokenVerifier interface {
	VerifyAccess(token string) (*Claims, error)
}

// Resolver authenticates credentials for a target tenant.
type Resolver struct {
	dir          Directory
	tokens       TokenVerifier
	hasher       Hasher
	prefix       string
	now          func() time.Time
	touchTimeout time.Duration

	wg sync.WaitGroup
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithAPIKeyPrefix overrides DefaultAPIKeyPrefix.
func WithAPIKeyPrefix(prefix string) ResolverOption {
	return func(r *Resolver) { r.prefix = prefix }
}

// WithResolverClock overrides the clock used for key expiry.
func WithResolverClock(now func() time.Time) ResolverOption {
	return func(r *Resolver) { r.now = now }
}

// NewResolver builds a resolver over dir. API keys are recognized by
// DefaultAPIKeyPrefix unless WithAPIKeyPrefix says otherwise.
func NewResolver(dir Directory, tokens TokenVerifier, hasher Hasher, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		dir:          dir,
		tokens:       tokens,
		hasher:       hasher,
		prefix:       DefaultAPIKeyPrefix,
		now:          time.Now,
		touchTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve authenticates credential against the tenant named by tenantRef.
// Failures are exactly one of tenant.ErrUnauthorized, tenant.ErrForbidden,
// tenant.ErrTenantNotFound or tenant.ErrInternal.
func (r *Resolver) Resolve(ctx context.Context, tenantRef, credential string) (tenant.TenantContext, error) {
	ctx, span := observability.StartSpan(ctx, "auth.resolve", observability.AttrTenantSlug.String(tenantRef))
	defer span.End()

	flow := "bearer"
	var (
		tc  tenant.TenantContext
		err error
	)
	credential = strings.TrimSpace(credential)
	if len(credential) > 7 && strings.EqualFold(credential[:7], "bearer ") {
		credential = strings.TrimSpace(credential[7:])
	}
	switch {
	case credential == "":
		err = fmt.Errorf("missing credential: %w", tenant.ErrUnauthorized)
	case strings.HasPrefix(credential, r.prefix):
		flow = "api_key"
		tc, err = r.resolveAPIKey(ctx, tenantRef, strings.TrimPrefix(credential, r.prefix))
	default:
		tc, err = r.resolveBearer(ctx, tenantRef, credential)
	}
	span.SetAttributes(attribute.String("auth.flow", flow))

	if err != nil {
		err = normalize(err)
		observability.SetSpanError(span, err)
		metrics.RecordAuthResult(flow, resultLabel(err))
		logging.FromContext(ctx).Debug("credential rejected", "flow", flow, "tenant", tenantRef, "error", err)
		return tenant.TenantContext{}, err
	}
	if err := tc.Validate(); err != nil {
		return tenant.TenantContext{}, fmt.Errorf("%w: %v", tenant.ErrInternal, err)
	}
	metrics.RecordAuthResult(flow, "ok")
	span.SetAttributes(observability.AttrTenantID.String(tc.TenantID.String()), observability.AttrPrincipalKind.String(tc.Principal.Kind.String()))
	return tc, nil
}

func (r *Resolver) resolveAPIKey(ctx context.Context, tenantRef, secret string) (tenant.TenantContext, error) {
	if secret == "" {
		return tenant.TenantContext{}, fmt.Errorf("empty api key: %w", tenant.ErrUnauthorized)
	}
	t, err := r.activeTenant(ctx, tenantRef)
	if err != nil {
		return tenant.TenantContext{}, err
	}

	keys, err := r.dir.ActiveAPIKeys(ctx, t.ID)
	if err != nil {
		return tenant.TenantContext{}, fmt.Errorf("list api keys: %w", err)
	}

	now := r.now()
	for _, key := range keys {
		if !key.IsActive || key.TenantID != t.ID || key.Expired(now) {
			continue
		}
		if !r.hasher.Verify(secret, key.KeyHash) {
			continue
		}
		r.touch(ctx, key.ID, now)
		return tenant.TenantContext{
			TenantID:  t.ID,
			Principal: tenant.APIKeyPrincipal(key.ID),
			Quotas:    t.Quotas,
		}, nil
	}
	return tenant.TenantContext{}, fmt.Errorf("no matching api key: %w", tenant.ErrUnauthorized)
}

func (r *Resolver) resolveBearer(ctx context.Context, tenantRef, token string) (tenant.TenantContext, error) {
	claims, err := r.tokens.VerifyAccess(token)
	if err != nil {
		return tenant.TenantContext{}, err
	}
	userID, err := claims.UserID()
	if err != nil {
		return tenant.TenantContext{}, err
	}

	t, err := r.activeTenant(ctx, tenantRef)
	if err != nil {
		return tenant.TenantContext{}, err
	}

	role, err := r.dir.MembershipRole(ctx, t.ID, userID)
	if errors.Is(err, tenant.ErrResourceNotFound) {
		return tenant.TenantContext{}, fmt.Errorf("user %s has no membership in tenant %s: %w", userID, t.Slug, tenant.ErrForbidden)
	}
	if err != nil {
		return tenant.TenantContext{}, fmt.Errorf("load membership: %w", err)
	}

	return tenant.TenantContext{
		TenantID:  t.ID,
		Principal: tenant.UserPrincipal(userID, claims.Email, role),
		Quotas:    t.Quotas,
	}, nil
}

func (r *Resolver) activeTenant(ctx context.Context, ref string) (domain.Tenant, error) {
	if strings.TrimSpace(ref) == "" {
		return domain.Tenant{}, fmt.Errorf("missing tenant: %w", tenant.ErrTenantNotFound)
	}
	t, err := r.dir.TenantByRef(ctx, ref)
	if err != nil {
		return domain.Tenant{}, fmt.Errorf("lookup tenant %q: %w", ref, err)
	}
	if !t.IsActive {
		return domain.Tenant{}, fmt.Errorf("tenant %q is disabled: %w", ref, tenant.ErrForbidden)
	}
	return t, nil
}

// touch records key use off the request path. Failures are logged only, and
// a request that is already cancelled skips the update.
func (r *Resolver) touch(ctx context.Context, keyID uuid.UUID, at time.Time) {
	if ctx.Err() != nil {
		return
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		tctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.touchTimeout)
		defer cancel()
		if err := r.dir.TouchAPIKey(tctx, keyID, at); err != nil {
			metrics.RecordBestEffortFailure("api_key_last_used")
			logging.Op().Warn("failed to record api key use", "api_key_id", keyID.String(), "error", err)
		}
	}()
}

// Wait blocks until pending last-used updates finish.
func (r *Resolver) Wait() {
	r.wg.Wait()
}

// normalize keeps the resolver's failure set closed: anything outside it
// becomes tenant.ErrInternal.
func normalize(err error) error {
	for _, allowed := range []error{tenant.ErrUnauthorized, tenant.ErrForbidden, tenant.ErrTenantNotFound, tenant.ErrInternal} {
		if errors.Is(err, allowed) {
			return err
		}
	}
	return fmt.Errorf("%w: %v", tenant.ErrInternal, err)
}

func resultLabel(err error) string {
	switch {
	case errors.Is(err, tenant.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, tenant.ErrForbidden):
		return "forbidden"
	case errors.Is(err, tenant.ErrTenantNotFound):
		return "tenant_not_found"
	default:
		return "internal"
	}
}
