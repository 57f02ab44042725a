package domain

import (
	"time"

	"github.com/google/uuid"
)

// APIKey is a stored tenant API key. Only the hash of the secret is kept.
type APIKey struct {
	ID          uuid.UUID  `json:"id"`
	TenantID    uuid.UUID  `json:"tenant_id"`
	Name        string     `json:"name"`
	KeyHash     string     `json:"-"`
	Permissions []string   `json:"permissions"`
	IsActive    bool       `json:"is_active"`
	LastUsedAt  *time.Time `json:"last_used_at,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Expired reports whether the key's expiry is at or before now.
func (k APIKey) Expired(now time.Time) bool {
	return k.ExpiresAt != nil && !k.ExpiresAt.After(now)
}

// CreateAPIKeyRequest issues a new key for the current tenant.
type CreateAPIKeyRequest struct {
	Name        string     `json:"name"`
	Permissions []string   `json:"permissions,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

func (r CreateAPIKeyRequest) Validate(now time.Time) error {
	if r.Name == "" {
		return validationError("name is required")
	}
	if len(r.Name) > 128 {
		return validationError("name must be at most 128 characters")
	}
	if r.ExpiresAt != nil && !r.ExpiresAt.After(now) {
		return validationError("expires_at must be in the future")
	}
	return nil
}

// CreatedAPIKey carries the plaintext key; it is shown exactly once.
type CreatedAPIKey struct {
	APIKey
	Key string `json:"key"`
}
