package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/oriys/tenantgate/internal/audit"
	"github.com/oriys/tenantgate/internal/domain"
	"github.com/oriys/tenantgate/internal/quota"
	"github.com/oriys/tenantgate/internal/tenant"
)

// TriggerStore persists triggers of the tenant bound to ctx. ListTriggers
// filters by monitor when monitorID is non-nil.
type TriggerStore interface {
	GuardedCreateTrigger(ctx context.Context, t domain.Trigger) (domain.Trigger, error)
	GetTrigger(ctx context.Context, id uuid.UUID) (domain.Trigger, error)
	ListTriggers(ctx context.Context, monitorID *uuid.UUID, page domain.Page) ([]domain.Trigger, error)
	UpdateTrigger(ctx context.Context, id uuid.UUID, upd domain.UpdateRequest) (domain.Trigger, error)
	DeleteTrigger(ctx context.Context, id uuid.UUID) error
	CountTriggers(ctx context.Context, tenantID uuid.UUID) (int64, error)
}

// MonitorLookup resolves a monitor within the current tenant.
type MonitorLookup interface {
	GetMonitor(ctx context.Context, id uuid.UUID) (domain.Monitor, error)
}

// TriggerService governs triggers. Every trigger belongs to a monitor of
// the same tenant.
type TriggerService struct {
	store    TriggerStore
	monitors MonitorLookup
	governor
}

// NewTriggerService wires a trigger service; monitors resolves parents.
func NewTriggerService(store TriggerStore, monitors MonitorLookup, quotas QuotaChecker, recorder *audit.Recorder) *TriggerService {
	return &TriggerService{store: store, monitors: monitors, governor: newGovernor(quotas, recorder)}
}

func (s *TriggerService) Create(ctx context.Context, req domain.CreateTriggerRequest) (domain.Trigger, error) {
	tc, err := writeScope(ctx)
	if err != nil {
		return domain.Trigger{}, err
	}
	if err := req.Validate(); err != nil {
		return domain.Trigger{}, err
	}
	if _, err := s.monitors.GetMonitor(ctx, req.MonitorID); err != nil {
		return domain.Trigger{}, fmt.Errorf("parent monitor: %w", err)
	}
	if err := s.reserve(ctx, tc, quota.KindTriggers); err != nil {
		return domain.Trigger{}, err
	}

	t, err := s.store.GuardedCreateTrigger(ctx, domain.Trigger{
		TriggerID:     req.TriggerID,
		MonitorID:     req.MonitorID,
		Name:          req.Name,
		Type:          req.Type,
		Configuration: req.Configuration,
		IsActive:      true,
	})
	if err != nil {
		return domain.Trigger{}, err
	}

	s.audit.Record(ctx, audit.Event{
		Action:       audit.ActionTriggerCreated,
		ResourceType: audit.ResourceTrigger,
		ResourceID:   t.ID,
		Changes:      map[string]any{"trigger_id": t.TriggerID, "monitor_id": t.MonitorID, "trigger_type": t.Type},
	})
	return t, nil
}

func (s *TriggerService) Get(ctx context.Context, id uuid.UUID) (domain.Trigger, error) {
	return s.store.GetTrigger(ctx, id)
}

func (s *TriggerService) List(ctx context.Context, page domain.Page) ([]domain.Trigger, error) {
	return s.store.ListTriggers(ctx, nil, page.Normalize())
}

// ListByMonitor lists the triggers attached to a monitor of the current tenant.
func (s *TriggerService) ListByMonitor(ctx context.Context, monitorID uuid.UUID, page domain.Page) ([]domain.Trigger, error) {
	if _, err := s.monitors.GetMonitor(ctx, monitorID); err != nil {
		return nil, err
	}
	return s.store.ListTriggers(ctx, &monitorID, page.Normalize())
}

func (s *TriggerService) Count(ctx context.Context) (int64, error) {
	tc, err := tenant.Current(ctx)
	if err != nil {
		return 0, err
	}
	return s.store.CountTriggers(ctx, tc.TenantID)
}

func (s *TriggerService) Update(ctx context.Context, id uuid.UUID, upd domain.UpdateRequest) (domain.Trigger, error) {
	if _, err := writeScope(ctx); err != nil {
		return domain.Trigger{}, err
	}
	if err := upd.Validate(); err != nil {
		return domain.Trigger{}, err
	}
	t, err := s.store.UpdateTrigger(ctx, id, upd)
	if err != nil {
		return domain.Trigger{}, err
	}
	s.audit.Record(ctx, audit.Event{
		Action:       updateAction(upd, audit.ActionTriggerUpdated, audit.ActionTriggerEnabled, audit.ActionTriggerDisabled),
		ResourceType: audit.ResourceTrigger,
		ResourceID:   t.ID,
		Changes:      upd,
	})
	return t, nil
}

func (s *TriggerService) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := writeScope(ctx); err != nil {
		return err
	}
	if err := s.store.DeleteTrigger(ctx, id); err != nil {
		return err
	}
	s.audit.Record(ctx, audit.Event{
		Action:       audit.ActionTriggerDeleted,
		ResourceType: audit.ResourceTrigger,
		ResourceID:   id,
	})
	return nil
}
