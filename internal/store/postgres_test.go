package store

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/oriys/tenantgate/internal/audit"
	"github.com/oriys/tenantgate/internal/domain"
	"github.com/oriys/tenantgate/internal/tenant"
)

func newTestStore(t *testing.T) *PostgresStore {
	t.Helper()
	dsn := os.Getenv("TENANTGATE_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("TENANTGATE_TEST_PG_DSN not set")
	}
	ctx := context.Background()
	s, err := NewPostgresStore(ctx, Config{DSN: dsn})
	if err != nil {
		t.Fatalf("NewPostgresStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	return s
}

func createTestTenant(t *testing.T, s *PostgresStore, quotas tenant.ResourceQuotas) (domain.Tenant, context.Context) {
	t.Helper()
	tn, err := s.CreateTenant(context.Background(), domain.Tenant{
		Name:     "Test",
		Slug:     "t-" + uuid.NewString()[:8],
		IsActive: true,
		Quotas:   quotas,
	}, nil)
	if err != nil {
		t.Fatalf("CreateTenant: %v", err)
	}
	ctx, err := tenant.WithScope(context.Background(), tenant.TenantContext{
		TenantID:  tn.ID,
		Principal: tenant.APIKeyPrincipal(uuid.New()),
		Quotas:    tn.Quotas,
	})
	if err != nil {
		t.Fatalf("WithScope: %v", err)
	}
	return tn, ctx
}

func TestPostgresGuardedMonitorCreation(t *testing.T) {
	s := newTestStore(t)
	quotas := tenant.DefaultQuotas()
	quotas.MaxMonitors = 2
	tn, ctx := createTestTenant(t, s, quotas)

	network, err := s.GuardedCreateNetwork(ctx, domain.Network{NetworkID: "eth", Name: "Ethereum", Blockchain: "evm"})
	if err != nil {
		t.Fatalf("GuardedCreateNetwork: %v", err)
	}

	var ids []uuid.UUID
	for _, ext := range []string{"m1", "m2"} {
		m, err := s.GuardedCreateMonitor(ctx, domain.Monitor{MonitorID: ext, Name: ext, NetworkID: network.ID})
		if err != nil {
			t.Fatalf("GuardedCreateMonitor(%s): %v", ext, err)
		}
		ids = append(ids, m.ID)
	}
	if _, err := s.GuardedCreateMonitor(ctx, domain.Monitor{MonitorID: "m3", Name: "m3", NetworkID: network.ID}); !errors.Is(err, tenant.ErrQuotaExceeded) {
		t.Fatalf("third monitor err = %v, want ErrQuotaExceeded", err)
	}
	if err := s.DeleteMonitor(ctx, ids[0]); err != nil {
		t.Fatalf("DeleteMonitor: %v", err)
	}
	if _, err := s.GuardedCreateMonitor(ctx, domain.Monitor{MonitorID: "m2", Name: "dup", NetworkID: network.ID}); !errors.Is(err, tenant.ErrAlreadyExists) {
		t.Fatalf("duplicate monitor err = %v, want ErrAlreadyExists", err)
	}
	if _, err := s.GuardedCreateMonitor(ctx, domain.Monitor{MonitorID: "m4", Name: "m4", NetworkID: network.ID}); err != nil {
		t.Fatalf("fourth monitor: %v", err)
	}

	n, err := s.CountMonitors(context.Background(), tn.ID)
	if err != nil || n != 2 {
		t.Fatalf("CountMonitors = %d, %v; want 2", n, err)
	}
}

func TestPostgresCrossTenantIsNotFound(t *testing.T) {
	s := newTestStore(t)
	_, ctxA := createTestTenant(t, s, tenant.DefaultQuotas())
	_, ctxB := createTestTenant(t, s, tenant.DefaultQuotas())

	network, err := s.GuardedCreateNetwork(ctxA, domain.Network{NetworkID: "eth", Name: "Ethereum", Blockchain: "evm"})
	if err != nil {
		t.Fatalf("GuardedCreateNetwork: %v", err)
	}
	if _, err := s.GetNetwork(ctxB, network.ID); !errors.Is(err, tenant.ErrResourceNotFound) {
		t.Fatalf("cross tenant get err = %v, want ErrResourceNotFound", err)
	}
	if _, err := s.GetNetwork(ctxB, uuid.New()); !errors.Is(err, tenant.ErrResourceNotFound) {
		t.Fatalf("missing get err = %v, want ErrResourceNotFound", err)
	}
	if err := s.DeleteNetwork(ctxB, network.ID); !errors.Is(err, tenant.ErrResourceNotFound) {
		t.Fatalf("cross tenant delete err = %v, want ErrResourceNotFound", err)
	}
	// A monitor in tenant B cannot reference tenant A's network.
	if _, err := s.GuardedCreateMonitor(ctxB, domain.Monitor{MonitorID: "m", Name: "m", NetworkID: network.ID}); !errors.Is(err, tenant.ErrResourceNotFound) {
		t.Fatalf("cross tenant network reference err = %v, want ErrResourceNotFound", err)
	}
}

func TestPostgresUsageAndKeys(t *testing.T) {
	s := newTestStore(t)
	tn, ctx := createTestTenant(t, s, tenant.DefaultQuotas())
	now := time.Now().UTC()

	for _, at := range []time.Time{now.Add(-2 * time.Minute), now.Add(-10 * time.Second), now} {
		if err := s.RecordUsage(ctx, tn.ID, UsageRPCRequests, 3, at); err != nil {
			t.Fatalf("RecordUsage: %v", err)
		}
	}
	sum, err := s.SumRPCRequestsSince(ctx, tn.ID, now.Add(-time.Minute))
	if err != nil || sum != 6 {
		t.Fatalf("SumRPCRequestsSince = %d, %v; want 6", sum, err)
	}
	if err := s.RecordUsage(ctx, tn.ID, UsageStorageMB, 42, now); err != nil {
		t.Fatalf("RecordUsage storage: %v", err)
	}
	mb, err := s.LatestStorageMB(ctx, tn.ID, now)
	if err != nil || mb != 42 {
		t.Fatalf("LatestStorageMB = %d, %v; want 42", mb, err)
	}

	expired := now.Add(-time.Second)
	if _, err := s.CreateAPIKey(ctx, domain.APIKey{Name: "old", KeyHash: "x", IsActive: true, ExpiresAt: &expired}); err != nil {
		t.Fatalf("CreateAPIKey: %v", err)
	}
	live, err := s.CreateAPIKey(ctx, domain.APIKey{Name: "live", KeyHash: "y", IsActive: true, Permissions: []string{"read"}})
	if err != nil {
		t.Fatalf("CreateAPIKey: %v", err)
	}
	active, err := s.ActiveAPIKeys(ctx, tn.ID)
	if err != nil || len(active) != 1 || active[0].ID != live.ID {
		t.Fatalf("ActiveAPIKeys = %+v, %v", active, err)
	}
	if err := s.RevokeAPIKey(ctx, live.ID); err != nil {
		t.Fatalf("RevokeAPIKey: %v", err)
	}
	if active, _ := s.ActiveAPIKeys(ctx, tn.ID); len(active) != 0 {
		t.Fatalf("revoked key still active")
	}

	sink := s.AuditSink()
	recorder := audit.NewRecorder(sink)
	recorder.Record(ctx, audit.Event{Action: audit.ActionAPIKeyDeleted, ResourceType: audit.ResourceAPIKey, ResourceID: live.ID})
	entries, err := s.ListAuditEntries(ctx, 10)
	if err != nil || len(entries) != 1 || entries[0].APIKeyID == nil || entries[0].UserID != nil {
		t.Fatalf("ListAuditEntries = %+v, %v", entries, err)
	}
}

func TestPostgresMembership(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	user, err := s.CreateUser(ctx, domain.User{Email: uuid.NewString() + "@example.com", PasswordHash: "h", IsActive: true})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if _, err := s.CreateUser(ctx, domain.User{Email: user.Email, PasswordHash: "h", IsActive: true}); !errors.Is(err, tenant.ErrAlreadyExists) {
		t.Fatalf("duplicate user err = %v, want ErrAlreadyExists", err)
	}

	tn, err := s.CreateTenant(ctx, domain.Tenant{Name: "Owned", Slug: "o-" + uuid.NewString()[:8], IsActive: true, Quotas: tenant.DefaultQuotas()}, &user.ID)
	if err != nil {
		t.Fatalf("CreateTenant: %v", err)
	}
	role, err := s.MembershipRole(ctx, tn.ID, user.ID)
	if err != nil || role != tenant.RoleOwner {
		t.Fatalf("MembershipRole = %q, %v", role, err)
	}
	if _, err := s.MembershipRole(ctx, tn.ID, uuid.New()); !errors.Is(err, tenant.ErrResourceNotFound) {
		t.Fatalf("missing membership err = %v, want ErrResourceNotFound", err)
	}
	bySlug, err := s.TenantByRef(ctx, tn.Slug)
	if err != nil || bySlug.ID != tn.ID {
		t.Fatalf("TenantByRef slug = %+v, %v", bySlug, err)
	}
	if _, err := s.TenantByRef(ctx, "missing-"+uuid.NewString()[:8]); !errors.Is(err, tenant.ErrTenantNotFound) {
		t.Fatalf("missing tenant err = %v, want ErrTenantNotFound", err)
	}
}
