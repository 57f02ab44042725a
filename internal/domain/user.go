package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/oriys/tenantgate/internal/tenant"
)

const minPasswordLength = 8

// User is a human account. Access to a tenant comes from a Membership.
type User struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Membership grants a user a role within one tenant.
type Membership struct {
	TenantID   uuid.UUID   `json:"tenant_id"`
	TenantName string      `json:"tenant_name"`
	TenantSlug string      `json:"tenant_slug"`
	Role       tenant.Role `json:"role"`
}

// RegisterRequest creates a user account.
type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r RegisterRequest) Validate() error {
	if err := ValidateEmail(r.Email); err != nil {
		return err
	}
	if len(r.Password) < minPasswordLength {
		return validationError("password must be at least %d characters", minPasswordLength)
	}
	return nil
}

// LoginRequest exchanges credentials for tokens.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse is returned by a successful login.
type LoginResponse struct {
	AccessToken  string   `json:"access_token"`
	RefreshToken string   `json:"refresh_token"`
	ExpiresIn    int64    `json:"expires_in"`
	User         UserInfo `json:"user"`
}

// UserInfo describes a user and every tenant they belong to.
type UserInfo struct {
	ID      uuid.UUID    `json:"id"`
	Email   string       `json:"email"`
	Tenants []Membership `json:"tenants"`
}
