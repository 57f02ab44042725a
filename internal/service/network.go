package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/oriys/tenantgate/internal/audit"
	"github.com/oriys/tenantgate/internal/domain"
	"github.com/oriys/tenantgate/internal/quota"
	"github.com/oriys/tenantgate/internal/tenant"
)

// NetworkStore persists networks of the tenant bound to ctx.
type NetworkStore interface {
	GuardedCreateNetwork(ctx context.Context, n domain.Network) (domain.Network, error)
	GetNetwork(ctx context.Context, id uuid.UUID) (domain.Network, error)
	ListNetworks(ctx context.Context, page domain.Page) ([]domain.Network, error)
	UpdateNetwork(ctx context.Context, id uuid.UUID, upd domain.UpdateRequest) (domain.Network, error)
	DeleteNetwork(ctx context.Context, id uuid.UUID) error
	CountNetworks(ctx context.Context, tenantID uuid.UUID) (int64, error)
}

// NetworkService governs network CRUD for the tenant bound to ctx.
type NetworkService struct {
	store NetworkStore
	governor
}

// NewNetworkService wires a network service.
func NewNetworkService(store NetworkStore, quotas QuotaChecker, recorder *audit.Recorder) *NetworkService {
	return &NetworkService{store: store, governor: newGovernor(quotas, recorder)}
}

func (s *NetworkService) Create(ctx context.Context, req domain.CreateNetworkRequest) (domain.Network, error) {
	tc, err := writeScope(ctx)
	if err != nil {
		return domain.Network{}, err
	}
	if err := req.Validate(); err != nil {
		return domain.Network{}, err
	}
	if err := s.reserve(ctx, tc, quota.KindNetworks); err != nil {
		return domain.Network{}, err
	}

	n, err := s.store.GuardedCreateNetwork(ctx, domain.Network{
		NetworkID:     req.NetworkID,
		Name:          req.Name,
		Blockchain:    req.Blockchain,
		Configuration: req.Configuration,
		IsActive:      true,
	})
	if err != nil {
		return domain.Network{}, err
	}

	s.audit.Record(ctx, audit.Event{
		Action:       audit.ActionNetworkCreated,
		ResourceType: audit.ResourceNetwork,
		ResourceID:   n.ID,
		Changes:      map[string]any{"network_id": n.NetworkID, "name": n.Name, "blockchain": n.Blockchain},
	})
	return n, nil
}

func (s *NetworkService) Get(ctx context.Context, id uuid.UUID) (domain.Network, error) {
	return s.store.GetNetwork(ctx, id)
}

func (s *NetworkService) List(ctx context.Context, page domain.Page) ([]domain.Network, error) {
	return s.store.ListNetworks(ctx, page.Normalize())
}

func (s *NetworkService) Count(ctx context.Context) (int64, error) {
	tc, err := tenant.Current(ctx)
	if err != nil {
		return 0, err
	}
	return s.store.CountNetworks(ctx, tc.TenantID)
}

func (s *NetworkService) Update(ctx context.Context, id uuid.UUID, upd domain.UpdateRequest) (domain.Network, error) {
	if _, err := writeScope(ctx); err != nil {
		return domain.Network{}, err
	}
	if err := upd.Validate(); err != nil {
		return domain.Network{}, err
	}
	n, err := s.store.UpdateNetwork(ctx, id, upd)
	if err != nil {
		return domain.Network{}, err
	}
	s.audit.Record(ctx, audit.Event{
		Action:       audit.ActionNetworkUpdated,
		ResourceType: audit.ResourceNetwork,
		ResourceID:   n.ID,
		Changes:      upd,
	})
	return n, nil
}

func (s *NetworkService) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := writeScope(ctx); err != nil {
		return err
	}
	if err := s.store.DeleteNetwork(ctx, id); err != nil {
		return err
	}
	s.audit.Record(ctx, audit.Event{
		Action:       audit.ActionNetworkDeleted,
		ResourceType: audit.ResourceNetwork,
		ResourceID:   id,
	})
	return nil
}
