package tenant

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// PrincipalKind tells which credential type authenticated a request.
type PrincipalKind int

const (
	PrincipalUser PrincipalKind = iota + 1
	PrincipalAPIKey
)

func (k PrincipalKind) String() string {
	switch k {
	case PrincipalUser:
		return "user"
	case PrincipalAPIKey:
		return "api_key"
	default:
		return "unknown"
	}
}

// Principal is the authenticated actor of a request. Exactly one of the user
// fields or APIKeyID is meaningful, selected by Kind.
type Principal struct {
	Kind PrincipalKind

	UserID uuid.UUID
	Email  string
	Role   Role

	APIKeyID uuid.UUID
}

// UserPrincipal builds a principal for a user with a membership role.
func UserPrincipal(userID uuid.UUID, email string, role Role) Principal {
	return Principal{Kind: PrincipalUser, UserID: userID, Email: email, Role: role}
}

// APIKeyPrincipal builds a principal for an API key.
func APIKeyPrincipal(keyID uuid.UUID) Principal {
	return Principal{Kind: PrincipalAPIKey, APIKeyID: keyID}
}

// TenantContext is the authenticated identity of one request. It is created
// by the credential resolver, bound with RunInScope or WithScope, and never
// persisted.
type TenantContext struct {
	TenantID  uuid.UUID
	Principal Principal
	// Quotas is the snapshot fetched once at resolution time.
	Quotas ResourceQuotas
}

// Validate rejects partially constructed contexts.
func (c TenantContext) Validate() error {
	if c.TenantID == uuid.Nil {
		return fmt.Errorf("tenant context without tenant id: %w", ErrInvalidConfiguration)
	}
	switch c.Principal.Kind {
	case PrincipalUser:
		if c.Principal.UserID == uuid.Nil || !c.Principal.Role.Valid() {
			return fmt.Errorf("user principal without id or role: %w", ErrInvalidConfiguration)
		}
		if c.Principal.APIKeyID != uuid.Nil {
			return fmt.Errorf("user principal carries an api key id: %w", ErrInvalidConfiguration)
		}
	case PrincipalAPIKey:
		if c.Principal.APIKeyID == uuid.Nil {
			return fmt.Errorf("api key principal without key id: %w", ErrInvalidConfiguration)
		}
		if c.Principal.UserID != uuid.Nil {
			return fmt.Errorf("api key principal carries a user id: %w", ErrInvalidConfiguration)
		}
	default:
		return fmt.Errorf("tenant context without principal: %w", ErrInvalidConfiguration)
	}
	return nil
}

// CanWrite reports whether the principal may mutate resources. API keys are
// write capable by default.
func (c TenantContext) CanWrite() bool {
	if c.Principal.Kind == PrincipalAPIKey {
		return true
	}
	return c.Principal.Role.CanWrite()
}

// CanManage reports whether the principal may administer the tenant. API keys
// never can.
func (c TenantContext) CanManage() bool {
	if c.Principal.Kind == PrincipalAPIKey {
		return false
	}
	return c.Principal.Role.CanManage()
}

// UserID returns the user id when a user authenticated the request.
func (c TenantContext) UserID() (uuid.UUID, bool) {
	if c.Principal.Kind != PrincipalUser {
		return uuid.Nil, false
	}
	return c.Principal.UserID, true
}

// APIKeyID returns the key id when an API key authenticated the request.
func (c TenantContext) APIKeyID() (uuid.UUID, bool) {
	if c.Principal.Kind != PrincipalAPIKey {
		return uuid.Nil, false
	}
	return c.Principal.APIKeyID, true
}

// RateLimit returns the threshold pair for the principal's traffic kind.
func (c TenantContext) RateLimit() RateLimit {
	return c.Quotas.RateLimits.For(c.Principal.Kind)
}

type scopeContextKey struct{}

var scopeKey = scopeContextKey{}

// WithScope returns a child context with tc bound. The binding is visible only
// through the returned context and its descendants, so concurrent requests
// never observe each other's identity.
func WithScope(ctx context.Context, tc TenantContext) (context.Context, error) {
	if err := tc.Validate(); err != nil {
		return ctx, err
	}
	return context.WithValue(ctx, scopeKey, tc), nil
}

// RunInScope executes body with tc bound for the duration of body only and
// returns body's error.
func RunInScope(ctx context.Context, tc TenantContext, body func(ctx context.Context) error) error {
	scoped, err := WithScope(ctx, tc)
	if err != nil {
		return err
	}
	return body(scoped)
}

// Current returns the bound TenantContext. Without a binding it returns
// ErrNoScope instead of an empty context.
func Current(ctx context.Context) (TenantContext, error) {
	tc, ok := CurrentOrNone(ctx)
	if !ok {
		return TenantContext{}, ErrNoScope
	}
	return tc, nil
}

// MustCurrent is like Current but panics without a binding.
func MustCurrent(ctx context.Context) TenantContext {
	tc, err := Current(ctx)
	if err != nil {
		panic(err)
	}
	return tc
}

// CurrentOrNone returns the bound TenantContext and whether one exists. Only
// code that tolerates untenanted traffic, such as the rate limiter, uses it.
func CurrentOrNone(ctx context.Context) (TenantContext, bool) {
	if ctx == nil {
		return TenantContext{}, false
	}
	tc, ok := ctx.Value(scopeKey).(TenantContext)
	return tc, ok
}
