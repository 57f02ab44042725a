package audit

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/oriys/tenantgate/internal/tenant"
)

type failingSink struct{ calls int }

func (s *failingSink) Log(context.Context, Entry) error {
	s.calls++
	return errors.New("audit table unavailable")
}

func scopedCtx(t *testing.T, p tenant.Principal) (context.Context, tenant.TenantContext) {
	t.Helper()
	tc := tenant.TenantContext{TenantID: uuid.New(), Principal: p}
	ctx, err := tenant.WithScope(context.Background(), tc)
	if err != nil {
		t.Fatalf("WithScope: %v", err)
	}
	return ctx, tc
}

func TestRecordAttributesUserPrincipal(t *testing.T) {
	sink := &MemorySink{}
	rec := NewRecorder(sink)
	ctx, tc := scopedCtx(t, tenant.UserPrincipal(uuid.New(), "ops@example.com", tenant.RoleAdmin))
	ctx = tenant.WithRequestMetadata(ctx, tenant.RequestMetadata{IPAddress: "192.0.2.10", UserAgent: "cli/1.0"})

	resourceID := uuid.New()
	rec.Record(ctx, Event{Action: ActionMonitorCreated, ResourceType: ResourceMonitor, ResourceID: resourceID, Changes: map[string]string{"name": "m1"}})

	entries := sink.Entries()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	e := entries[0]
	if e.TenantID != tc.TenantID || e.UserID == nil || *e.UserID != tc.Principal.UserID {
		t.Fatalf("entry not attributed to user: %+v", e)
	}
	if e.APIKeyID != nil {
		t.Fatal("user entry must not carry an api key id")
	}
	if e.ResourceID == nil || *e.ResourceID != resourceID {
		t.Fatalf("resource id = %v", e.ResourceID)
	}
	if e.IPAddress != "192.0.2.10" || e.UserAgent != "cli/1.0" {
		t.Fatalf("metadata not copied: %+v", e)
	}
	if string(e.Changes) != `{"name":"m1"}` {
		t.Fatalf("changes = %s", e.Changes)
	}
}

func TestRecordAttributesAPIKeyPrincipal(t *testing.T) {
	sink := &MemorySink{}
	ctx, tc := scopedCtx(t, tenant.APIKeyPrincipal(uuid.New()))
	NewRecorder(sink).Record(ctx, Event{Action: ActionNetworkDeleted, ResourceType: ResourceNetwork})

	e := sink.Entries()[0]
	if e.UserID != nil || e.APIKeyID == nil || *e.APIKeyID != tc.Principal.APIKeyID {
		t.Fatalf("entry not attributed to api key: %+v", e)
	}
	if e.ResourceID != nil {
		t.Fatal("nil resource id must stay absent")
	}
}

func TestRecordIsBestEffort(t *testing.T) {
	sink := &failingSink{}
	ctx, _ := scopedCtx(t, tenant.APIKeyPrincipal(uuid.New()))
	NewRecorder(sink).Record(ctx, Event{Action: ActionTriggerUpdated})
	if sink.calls != 1 {
		t.Fatalf("sink called %d times", sink.calls)
	}

	mem := &MemorySink{}
	NewRecorder(mem).Record(context.Background(), Event{Action: ActionTriggerUpdated})
	if len(mem.Entries()) != 0 {
		t.Fatal("unscoped events must be dropped")
	}
}

func TestRecordUnencodableChangesIsDropped(t *testing.T) {
	mem := &MemorySink{}
	ctx, _ := scopedCtx(t, tenant.APIKeyPrincipal(uuid.New()))
	NewRecorder(mem).Record(ctx, Event{Action: ActionMonitorUpdated, Changes: make(chan int)})
	if len(mem.Entries()) != 0 {
		t.Fatal("entry with unencodable changes must be dropped")
	}
}
