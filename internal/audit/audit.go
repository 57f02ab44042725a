// Package audit records governance relevant events to an append-only sink.
//
// Audit writes are best-effort everywhere: a failing sink is logged and
// counted but never fails the operation being audited.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oriys/tenantgate/internal/logging"
	"github.com/oriys/tenantgate/internal/metrics"
	"github.com/oriys/tenantgate/internal/tenant"
)

// Action names an audited event.
type Action string

const (
	ActionLogin            Action = "login"
	ActionLogout           Action = "logout"
	ActionAPIKeyCreated    Action = "api_key_created"
	ActionAPIKeyDeleted    Action = "api_key_deleted"
	ActionTenantCreated    Action = "tenant_created"
	ActionTenantUpdated    Action = "tenant_updated"
	ActionTenantDeleted    Action = "tenant_deleted"
	ActionUserInvited      Action = "user_invited"
	ActionUserRemoved      Action = "user_removed"
	ActionUserRoleChanged  Action = "user_role_changed"
	ActionMonitorCreated   Action = "monitor_created"
	ActionMonitorUpdated   Action = "monitor_updated"
	ActionMonitorDeleted   Action = "monitor_deleted"
	ActionMonitorEnabled   Action = "monitor_enabled"
	ActionMonitorDisabled  Action = "monitor_disabled"
	ActionNetworkCreated   Action = "network_created"
	ActionNetworkUpdated   Action = "network_updated"
	ActionNetworkDeleted   Action = "network_deleted"
	ActionTriggerCreated   Action = "trigger_created"
	ActionTriggerUpdated   Action = "trigger_updated"
	ActionTriggerDeleted   Action = "trigger_deleted"
	ActionTriggerEnabled   Action = "trigger_enabled"
	ActionTriggerDisabled  Action = "trigger_disabled"
)

// ResourceType names the kind of resource an entry refers to.
type ResourceType string

const (
	ResourceTenant  ResourceType = "tenant"
	ResourceUser    ResourceType = "user"
	ResourceAPIKey  ResourceType = "api_key"
	ResourceMonitor ResourceType = "monitor"
	ResourceNetwork ResourceType = "network"
	ResourceTrigger ResourceType = "trigger"
)

// Entry is one audit record. Exactly one of UserID and APIKeyID is set,
// mirroring the principal that performed the action.
type Entry struct {
	ID           uuid.UUID       `json:"id"`
	TenantID     uuid.UUID       `json:"tenant_id"`
	UserID       *uuid.UUID      `json:"user_id,omitempty"`
	APIKeyID     *uuid.UUID      `json:"api_key_id,omitempty"`
	Action       Action          `json:"action"`
	ResourceType ResourceType    `json:"resource_type,omitempty"`
	ResourceID   *uuid.UUID      `json:"resource_id,omitempty"`
	Changes      json.RawMessage `json:"changes,omitempty"`
	IPAddress    string          `json:"ip_address,omitempty"`
	UserAgent    string          `json:"user_agent,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// Sink persists entries.
type Sink interface {
	Log(ctx context.Context, entry Entry) error
}

// Event describes what happened; the Recorder fills in who and from where.
type Event struct {
	Action       Action
	ResourceType ResourceType
	ResourceID   uuid.UUID
	Changes      any
}

// NewEntry builds an entry for ev attributed to tc with the client metadata md.
func NewEntry(tc tenant.TenantContext, md tenant.RequestMetadata, ev Event, now time.Time) (Entry, error) {
	e := Entry{
		ID:           uuid.New(),
		TenantID:     tc.TenantID,
		Action:       ev.Action,
		ResourceType: ev.ResourceType,
		IPAddress:    md.IPAddress,
		UserAgent:    md.UserAgent,
		CreatedAt:    now.UTC(),
	}
	if id, ok := tc.UserID(); ok {
		e.UserID = &id
	}
	if id, ok := tc.APIKeyID(); ok {
		e.APIKeyID = &id
	}
	if ev.ResourceID != uuid.Nil {
		id := ev.ResourceID
		e.ResourceID = &id
	}
	if ev.Changes != nil {
		raw, err := json.Marshal(ev.Changes)
		if err != nil {
			return Entry{}, fmt.Errorf("encode audit changes: %w", err)
		}
		e.Changes = raw
	}
	return e, nil
}

// Recorder writes audit entries for the tenant bound to the context.
type Recorder struct {
	sink    Sink
	timeout time.Duration
	now     func() time.Time
}

const defaultWriteTimeout = 5 * time.Second

// NewRecorder creates a recorder over sink. A nil sink discards entries.
func NewRecorder(sink Sink) *Recorder {
	if sink == nil {
		sink = nopSink{}
	}
	return &Recorder{sink: sink, timeout: defaultWriteTimeout, now: time.Now}
}

// Record writes ev for the current tenant. Failures, including a missing
// tenant scope, are logged and dropped.
func (r *Recorder) Record(ctx context.Context, ev Event) {
	tc, err := tenant.Current(ctx)
	if err != nil {
		r.drop(ctx, ev, err)
		return
	}
	entry, err := NewEntry(tc, tenant.RequestMetadataFrom(ctx), ev, r.now())
	if err != nil {
		r.drop(ctx, ev, err)
		return
	}

	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()
	if err := r.sink.Log(wctx, entry); err != nil {
		r.drop(ctx, ev, err)
	}
}

func (r *Recorder) drop(ctx context.Context, ev Event, err error) {
	metrics.RecordBestEffortFailure("audit")
	logging.FromContext(ctx).Warn("audit write dropped", "action", string(ev.Action), "error", err)
}

type nopSink struct{}

func (nopSink) Log(context.Context, Entry) error { return nil }

// MemorySink keeps entries in memory. It backs development mode and tests.
type MemorySink struct {
	mu      sync.Mutex
	entries []Entry
}

func (s *MemorySink) Log(_ context.Context, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
	return nil
}

// Entries returns a copy of the recorded entries.
func (s *MemorySink) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}
