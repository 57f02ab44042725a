package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/oriys/tenantgate/internal/audit"
	"github.com/oriys/tenantgate/internal/domain"
	"github.com/oriys/tenantgate/internal/quota"
	"github.com/oriys/tenantgate/internal/tenant"
)

// MonitorStore persists monitors of the tenant bound to ctx.
type MonitorStore interface {
	GuardedCreateMonitor(ctx context.Context, m domain.Monitor) (domain.Monitor, error)
	GetMonitor(ctx context.Context, id uuid.UUID) (domain.Monitor, error)
	ListMonitors(ctx context.Context, page domain.Page) ([]domain.Monitor, error)
	UpdateMonitor(ctx context.Context, id uuid.UUID, upd domain.UpdateRequest) (domain.Monitor, error)
	DeleteMonitor(ctx context.Context, id uuid.UUID) error
	CountMonitors(ctx context.Context, tenantID uuid.UUID) (int64, error)
}

// MonitorService governs monitor CRUD for the tenant bound to ctx.
type MonitorService struct {
	store MonitorStore
	governor
}

// NewMonitorService wires a monitor service. recorder may be nil.
func NewMonitorService(store MonitorStore, quotas QuotaChecker, recorder *audit.Recorder) *MonitorService {
	return &MonitorService{store: store, governor: newGovernor(quotas, recorder)}
}

func (s *MonitorService) Create(ctx context.Context, req domain.CreateMonitorRequest) (domain.Monitor, error) {
	tc, err := writeScope(ctx)
	if err != nil {
		return domain.Monitor{}, err
	}
	if err := req.Validate(); err != nil {
		return domain.Monitor{}, err
	}
	if err := s.reserve(ctx, tc, quota.KindMonitors); err != nil {
		return domain.Monitor{}, err
	}

	m, err := s.store.GuardedCreateMonitor(ctx, domain.Monitor{
		MonitorID:     req.MonitorID,
		Name:          req.Name,
		NetworkID:     req.NetworkID,
		Configuration: req.Configuration,
		IsActive:      true,
	})
	if err != nil {
		return domain.Monitor{}, err
	}

	s.audit.Record(ctx, audit.Event{
		Action:       audit.ActionMonitorCreated,
		ResourceType: audit.ResourceMonitor,
		ResourceID:   m.ID,
		Changes:      map[string]any{"monitor_id": m.MonitorID, "name": m.Name},
	})
	return m, nil
}

func (s *MonitorService) Get(ctx context.Context, id uuid.UUID) (domain.Monitor, error) {
	return s.store.GetMonitor(ctx, id)
}

func (s *MonitorService) List(ctx context.Context, page domain.Page) ([]domain.Monitor, error) {
	return s.store.ListMonitors(ctx, page.Normalize())
}

func (s *MonitorService) Count(ctx context.Context) (int64, error) {
	tc, err := tenant.Current(ctx)
	if err != nil {
		return 0, err
	}
	return s.store.CountMonitors(ctx, tc.TenantID)
}

func (s *MonitorService) Update(ctx context.Context, id uuid.UUID, upd domain.UpdateRequest) (domain.Monitor, error) {
	if _, err := writeScope(ctx); err != nil {
		return domain.Monitor{}, err
	}
	if err := upd.Validate(); err != nil {
		return domain.Monitor{}, err
	}
	m, err := s.store.UpdateMonitor(ctx, id, upd)
	if err != nil {
		return domain.Monitor{}, err
	}
	s.audit.Record(ctx, audit.Event{
		Action:       updateAction(upd, audit.ActionMonitorUpdated, audit.ActionMonitorEnabled, audit.ActionMonitorDisabled),
		ResourceType: audit.ResourceMonitor,
		ResourceID:   m.ID,
		Changes:      upd,
	})
	return m, nil
}

func (s *MonitorService) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := writeScope(ctx); err != nil {
		return err
	}
	if err := s.store.DeleteMonitor(ctx, id); err != nil {
		return err
	}
	s.audit.Record(ctx, audit.Event{
		Action:       audit.ActionMonitorDeleted,
		ResourceType: audit.ResourceMonitor,
		ResourceID:   id,
	})
	return nil
}
