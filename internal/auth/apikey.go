package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/oriys/tenantgate/internal/audit"
	"github.com/oriys/tenantgate/internal/domain"
	"github.com/oriys/tenantgate/internal/tenant"
)

const apiKeySecretBytes = 32

// APIKeyStore persists API keys for the tenant bound to ctx.
type APIKeyStore interface {
	CreateAPIKey(ctx context.Context, key domain.APIKey) (domain.APIKey, error)
	ListAPIKeys(ctx context.Context) ([]domain.APIKey, error)
	RevokeAPIKey(ctx context.Context, id uuid.UUID) error
}

// APIKeyManager issues and revokes tenant API keys. Every operation requires
// a principal that can manage the current tenant.
type APIKeyManager struct {
	store  APIKeyStore
	hasher Hasher
	audit  *audit.Recorder
	prefix string
	now    func() time.Time
}

func NewAPIKeyManager(store APIKeyStore, hasher Hasher, recorder *audit.Recorder, prefix string) *APIKeyManager {
	if prefix == "" {
		prefix = DefaultAPIKeyPrefix
	}
	if recorder == nil {
		recorder = audit.NewRecorder(nil)
	}
	return &APIKeyManager{store: store, hasher: hasher, audit: recorder, prefix: prefix, now: time.Now}
}

// Create generates a key, stores its hash and returns the plaintext once.
func (m *APIKeyManager) Create(ctx context.Context, req domain.CreateAPIKeyRequest) (domain.CreatedAPIKey, error) {
	tc, err := managerScope(ctx)
	if err != nil {
		return domain.CreatedAPIKey{}, err
	}
	key, plaintext, err := m.Mint(tc.TenantID, req)
	if err != nil {
		return domain.CreatedAPIKey{}, err
	}
	key, err = m.store.CreateAPIKey(ctx, key)
	if err != nil {
		return domain.CreatedAPIKey{}, err
	}

	m.audit.Record(ctx, audit.Event{
		Action:       audit.ActionAPIKeyCreated,
		ResourceType: audit.ResourceAPIKey,
		ResourceID:   key.ID,
		Changes:      map[string]any{"name": key.Name},
	})
	return domain.CreatedAPIKey{APIKey: key, Key: plaintext}, nil
}

// Mint validates req and generates an unsaved key for tenantID together with
// its plaintext. Administrative tooling persists the result itself.
func (m *APIKeyManager) Mint(tenantID uuid.UUID, req domain.CreateAPIKeyRequest) (domain.APIKey, string, error) {
	now := m.now()
	if err := req.Validate(now); err != nil {
		return domain.APIKey{}, "", err
	}
	secret, err := generateSecret()
	if err != nil {
		return domain.APIKey{}, "", fmt.Errorf("%w: %v", tenant.ErrInternal, err)
	}
	hash, err := m.hasher.Hash(secret)
	if err != nil {
		return domain.APIKey{}, "", fmt.Errorf("%w: %v", tenant.ErrInternal, err)
	}
	perms := req.Permissions
	if perms == nil {
		perms = []string{}
	}
	return domain.APIKey{
		ID:          uuid.New(),
		TenantID:    tenantID,
		Name:        req.Name,
		KeyHash:     hash,
		Permissions: perms,
		IsActive:    true,
		ExpiresAt:   req.ExpiresAt,
		CreatedAt:   now,
	}, m.prefix + secret, nil
}

// List returns the current tenant's keys without their hashes.
func (m *APIKeyManager) List(ctx context.Context) ([]domain.APIKey, error) {
	if _, err := managerScope(ctx); err != nil {
		return nil, err
	}
	return m.store.ListAPIKeys(ctx)
}

// Revoke deactivates a key of the current tenant.
func (m *APIKeyManager) Revoke(ctx context.Context, id uuid.UUID) error {
	if _, err := managerScope(ctx); err != nil {
		return err
	}
	if err := m.store.RevokeAPIKey(ctx, id); err != nil {
		return err
	}
	m.audit.Record(ctx, audit.Event{
		Action:       audit.ActionAPIKeyDeleted,
		ResourceType: audit.ResourceAPIKey,
		ResourceID:   id,
	})
	return nil
}

func managerScope(ctx context.Context) (tenant.TenantContext, error) {
	tc, err := tenant.Current(ctx)
	if err != nil {
		return tenant.TenantContext{}, err
	}
	if !tc.CanManage() {
		return tenant.TenantContext{}, fmt.Errorf("managing api keys requires admin: %w", tenant.ErrForbidden)
	}
	return tc, nil
}

func generateSecret() (string, error) {
	buf := make([]byte, apiKeySecretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate api key: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
