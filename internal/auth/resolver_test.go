package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/oriys/tenantgate/internal/domain"
	"github.com/oriys/tenantgate/internal/tenant"
	"golang.org/x/crypto/bcrypt"
)

type stubDirectory struct {
	mu       sync.Mutex
	tenants  map[string]domain.Tenant
	roles    map[uuid.UUID]tenant.Role
	keys     []domain.APIKey
	touched  []uuid.UUID
	touchErr error
	keysErr  error
}

func (d *stubDirectory) TenantByRef(_ context.Context, ref string) (domain.Tenant, error) {
	t, ok := d.tenants[ref]
	if !ok {
		return domain.Tenant{}, tenant.ErrTenantNotFound
	}
	return t, nil
}

func (d *stubDirectory) MembershipRole(_ context.Context, _ uuid.UUID, userID uuid.UUID) (tenant.Role, error) {
	role, ok := d.roles[userID]
	if !ok {
		return "", tenant.ErrResourceNotFound
	}
	return role, nil
}

func (d *stubDirectory) ActiveAPIKeys(context.Context, uuid.UUID) ([]domain.APIKey, error) {
	return d.keys, d.keysErr
}

func (d *stubDirectory) TouchAPIKey(_ context.Context, keyID uuid.UUID, _ time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.touched = append(d.touched, keyID)
	return d.touchErr
}

func (d *stubDirectory) touchedKeys() []uuid.UUID {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]uuid.UUID(nil), d.touched...)
}

type fixture struct {
	dir      *stubDirectory
	tokens   *TokenManager
	hasher   BcryptHasher
	resolver *Resolver
	tenant   domain.Tenant
	now      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tokens, err := NewTokenManager(TokenConfig{Secret: "test-secret", Issuer: "tenantgate"})
	if err != nil {
		t.Fatalf("NewTokenManager: %v", err)
	}
	tokens.now = func() time.Time { return now }

	acme := domain.Tenant{ID: uuid.New(), Name: "Acme", Slug: "acme", IsActive: true, Quotas: tenant.DefaultQuotas()}
	dir := &stubDirectory{
		tenants: map[string]domain.Tenant{"acme": acme, acme.ID.String(): acme},
		roles:   map[uuid.UUID]tenant.Role{},
	}
	hasher := NewBcryptHasher(bcrypt.MinCost)
	return &fixture{
		dir:      dir,
		tokens:   tokens,
		hasher:   hasher,
		resolver: NewResolver(dir, tokens, hasher, WithResolverClock(func() time.Time { return now })),
		tenant:   acme,
		now:      now,
	}
}

func (f *fixture) addKey(t *testing.T, secret string, expiresAt *time.Time) domain.APIKey {
	t.Helper()
	hash, err := f.hasher.Hash(secret)
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	key := domain.APIKey{ID: uuid.New(), TenantID: f.tenant.ID, Name: "ci", KeyHash: hash, IsActive: true, ExpiresAt: expiresAt}
	f.dir.keys = append(f.dir.keys, key)
	return key
}

func TestResolveAPIKey(t *testing.T) {
	f := newFixture(t)
	key := f.addKey(t, "s3cret", nil)

	tc, err := f.resolver.Resolve(context.Background(), "acme", "smt_s3cret")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if tc.TenantID != f.tenant.ID || tc.Principal.Kind != tenant.PrincipalAPIKey || tc.Principal.APIKeyID != key.ID {
		t.Fatalf("unexpected context %+v", tc)
	}
	if !tc.CanWrite() || tc.CanManage() {
		t.Fatalf("api key should write but not manage")
	}
	if tc.Quotas != f.tenant.Quotas {
		t.Fatalf("quota snapshot = %+v, want %+v", tc.Quotas, f.tenant.Quotas)
	}

	f.resolver.Wait()
	if got := f.dir.touchedKeys(); len(got) != 1 || got[0] != key.ID {
		t.Fatalf("touched = %v, want [%s]", got, key.ID)
	}
}

func TestResolveAPIKeyByTenantID(t *testing.T) {
	f := newFixture(t)
	f.addKey(t, "s3cret", nil)
	if _, err := f.resolver.Resolve(context.Background(), f.tenant.ID.String(), "Bearer smt_s3cret"); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	f.resolver.Wait()
}

func TestResolveExpiredAPIKeyIsUnauthorized(t *testing.T) {
	f := newFixture(t)
	expired := f.now.Add(-time.Second)
	f.addKey(t, "s3cret", &expired)

	_, err := f.resolver.Resolve(context.Background(), "acme", "smt_s3cret")
	if !errors.Is(err, tenant.ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}
	if got := f.dir.touchedKeys(); len(got) != 0 {
		t.Fatalf("expired key must not be touched, got %v", got)
	}
}

func TestResolveWrongAPIKey(t *testing.T) {
	f := newFixture(t)
	f.addKey(t, "s3cret", nil)
	_, err := f.resolver.Resolve(context.Background(), "acme", "smt_other")
	if !errors.Is(err, tenant.ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}
}

func TestResolveTouchFailureIsTolerated(t *testing.T) {
	f := newFixture(t)
	f.addKey(t, "s3cret", nil)
	f.dir.touchErr = errors.New("db down")

	if _, err := f.resolver.Resolve(context.Background(), "acme", "smt_s3cret"); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	f.resolver.Wait()
}

func TestResolveAPIKeyStoreFailureIsInternal(t *testing.T) {
	f := newFixture(t)
	f.dir.keysErr = errors.New("connection reset")
	_, err := f.resolver.Resolve(context.Background(), "acme", "smt_s3cret")
	if !errors.Is(err, tenant.ErrInternal) {
		t.Fatalf("err = %v, want ErrInternal", err)
	}
}

func TestResolveBearer(t *testing.T) {
	f := newFixture(t)
	userID := uuid.New()
	f.dir.roles[userID] = tenant.RoleAdmin
	token, _, err := f.tokens.Issue(userID, "ada@example.com", TokenTypeAccess)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	tc, err := f.resolver.Resolve(context.Background(), "acme", "Bearer "+token)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if tc.Principal.Kind != tenant.PrincipalUser || tc.Principal.UserID != userID || tc.Principal.Role != tenant.RoleAdmin {
		t.Fatalf("unexpected principal %+v", tc.Principal)
	}
	if !tc.CanManage() {
		t.Fatalf("admin should manage")
	}
}

func TestResolveBearerFailures(t *testing.T) {
	f := newFixture(t)
	member := uuid.New()
	f.dir.roles[member] = tenant.RoleViewer
	outsider := uuid.New()

	memberToken, _, _ := f.tokens.Issue(member, "m@example.com", TokenTypeAccess)
	outsiderToken, _, _ := f.tokens.Issue(outsider, "o@example.com", TokenTypeAccess)
	refreshToken, _, _ := f.tokens.Issue(member, "m@example.com", TokenTypeRefresh)

	f.tenants("disabled", domain.Tenant{ID: uuid.New(), Slug: "disabled", IsActive: false})

	tests := []struct {
		name       string
		tenantRef  string
		credential string
		want       error
	}{
		{"garbage token", "acme", "not-a-jwt", tenant.ErrUnauthorized},
		{"refresh token", "acme", refreshToken, tenant.ErrUnauthorized},
		{"empty credential", "acme", "", tenant.ErrUnauthorized},
		{"no membership", "acme", outsiderToken, tenant.ErrForbidden},
		{"unknown tenant", "ghost", memberToken, tenant.ErrTenantNotFound},
		{"disabled tenant", "disabled", memberToken, tenant.ErrForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.resolver.Resolve(context.Background(), tt.tenantRef, tt.credential)
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestResolvePrefixSelectsFlow(t *testing.T) {
	f := newFixture(t)
	f.addKey(t, "s3cret", nil)
	custom := NewResolver(f.dir, f.tokens, f.hasher, WithAPIKeyPrefix("key_"), WithResolverClock(func() time.Time { return f.now }))

	// Without the custom prefix the value is treated as a bearer token.
	if _, err := custom.Resolve(context.Background(), "acme", "smt_s3cret"); !errors.Is(err, tenant.ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}
	if _, err := custom.Resolve(context.Background(), "acme", "key_s3cret"); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	custom.Wait()
}

func (f *fixture) tenants(ref string, t domain.Tenant) {
	f.dir.tenants[ref] = t
}

func TestResolveReadsTenantPerRequest(t *testing.T) {
	f := newFixture(t)
	f.addKey(t, "s3cret", nil)

	tc, err := f.resolver.Resolve(context.Background(), "acme", "smt_s3cret")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if tc.Quotas.MaxMonitors != f.tenant.Quotas.MaxMonitors {
		t.Fatalf("max_monitors = %d", tc.Quotas.MaxMonitors)
	}

	changed := f.tenant
	changed.Quotas.MaxMonitors = 42
	f.dir.tenants["acme"] = changed
	tc, err = f.resolver.Resolve(context.Background(), "acme", "smt_s3cret")
	if err != nil {
		t.Fatalf("Resolve after quota change: %v", err)
	}
	if tc.Quotas.MaxMonitors != 42 {
		t.Fatalf("next request saw max_monitors = %d, want 42", tc.Quotas.MaxMonitors)
	}

	changed.IsActive = false
	f.dir.tenants["acme"] = changed
	if _, err := f.resolver.Resolve(context.Background(), "acme", "smt_s3cret"); !errors.Is(err, tenant.ErrForbidden) {
		t.Fatalf("disabled tenant err = %v, want ErrForbidden", err)
	}
}
