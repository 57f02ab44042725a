package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oriys/tenantgate/internal/domain"
	"github.com/oriys/tenantgate/internal/logging"
	"github.com/oriys/tenantgate/internal/metrics"
	"github.com/oriys/tenantgate/internal/tenant"
)

// AccountStore persists users and reads their memberships.
type AccountStore interface {
	CreateUser(ctx context.Context, user domain.User) (domain.User, error)
	// UserByEmail returns tenant.ErrResourceNotFound for unknown emails.
	UserByEmail(ctx context.Context, email string) (domain.User, error)
	UserByID(ctx context.Context, id uuid.UUID) (domain.User, error)
	UserMemberships(ctx context.Context, userID uuid.UUID) ([]domain.Membership, error)
}

// Issuer signs access and refresh tokens.
type Issuer interface {
	Issue(userID uuid.UUID, email, tokenType string) (string, time.Time, error)
	VerifyRefresh(token string) (*Claims, error)
	AccessTTL() time.Duration
}

// Accounts implements registration, login and token refresh.
type Accounts struct {
	store  AccountStore
	tokens Issuer
	hasher Hasher

	// dummyHash keeps the login path's cost the same for unknown emails.
	dummyHash string
}

func NewAccounts(store AccountStore, tokens Issuer, hasher Hasher) (*Accounts, error) {
	dummy, err := hasher.Hash("tenantgate-dummy-password")
	if err != nil {
		return nil, err
	}
	return &Accounts{store: store, tokens: tokens, hasher: hasher, dummyHash: dummy}, nil
}

// Register creates a user. Tenant membership is granted separately.
func (a *Accounts) Register(ctx context.Context, req domain.RegisterRequest) (domain.User, error) {
	req.Email = normalizeEmail(req.Email)
	if err := req.Validate(); err != nil {
		return domain.User{}, err
	}
	hash, err := a.hasher.Hash(req.Password)
	if err != nil {
		return domain.User{}, fmt.Errorf("%w: %v", tenant.ErrInternal, err)
	}
	now := time.Now().UTC()
	return a.store.CreateUser(ctx, domain.User{
		ID:           uuid.New(),
		Email:        req.Email,
		PasswordHash: hash,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
}

// Login verifies a password and issues a token pair.
func (a *Accounts) Login(ctx context.Context, req domain.LoginRequest) (domain.LoginResponse, error) {
	user, err := a.store.UserByEmail(ctx, normalizeEmail(req.Email))
	switch {
	case errors.Is(err, tenant.ErrResourceNotFound):
		a.hasher.Verify(req.Password, a.dummyHash)
		metrics.RecordAuthResult("login", "unauthorized")
		return domain.LoginResponse{}, fmt.Errorf("invalid email or password: %w", tenant.ErrUnauthorized)
	case err != nil:
		return domain.LoginResponse{}, err
	}
	if !a.hasher.Verify(req.Password, user.PasswordHash) || !user.IsActive {
		metrics.RecordAuthResult("login", "unauthorized")
		return domain.LoginResponse{}, fmt.Errorf("invalid email or password: %w", tenant.ErrUnauthorized)
	}

	resp, err := a.issuePair(ctx, user)
	if err != nil {
		return domain.LoginResponse{}, err
	}
	metrics.RecordAuthResult("login", "ok")
	logging.FromContext(ctx).Info("user logged in", "user_id", user.ID.String())
	return resp, nil
}

// Refresh exchanges a refresh token for a new token pair.
func (a *Accounts) Refresh(ctx context.Context, refreshToken string) (domain.LoginResponse, error) {
	claims, err := a.tokens.VerifyRefresh(refreshToken)
	if err != nil {
		metrics.RecordAuthResult("refresh", "unauthorized")
		return domain.LoginResponse{}, err
	}
	userID, err := claims.UserID()
	if err != nil {
		return domain.LoginResponse{}, err
	}
	user, err := a.store.UserByID(ctx, userID)
	if errors.Is(err, tenant.ErrResourceNotFound) || (err == nil && !user.IsActive) {
		metrics.RecordAuthResult("refresh", "unauthorized")
		return domain.LoginResponse{}, fmt.Errorf("user no longer exists: %w", tenant.ErrUnauthorized)
	}
	if err != nil {
		return domain.LoginResponse{}, err
	}
	metrics.RecordAuthResult("refresh", "ok")
	return a.issuePair(ctx, user)
}

func (a *Accounts) issuePair(ctx context.Context, user domain.User) (domain.LoginResponse, error) {
	access, _, err := a.tokens.Issue(user.ID, user.Email, TokenTypeAccess)
	if err != nil {
		return domain.LoginResponse{}, fmt.Errorf("%w: %v", tenant.ErrInternal, err)
	}
	refresh, _, err := a.tokens.Issue(user.ID, user.Email, TokenTypeRefresh)
	if err != nil {
		return domain.LoginResponse{}, fmt.Errorf("%w: %v", tenant.ErrInternal, err)
	}
	memberships, err := a.store.UserMemberships(ctx, user.ID)
	if err != nil {
		return domain.LoginResponse{}, err
	}
	if memberships == nil {
		memberships = []domain.Membership{}
	}
	return domain.LoginResponse{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(a.tokens.AccessTTL().Seconds()),
		User: domain.UserInfo{
			ID:      user.ID,
			Email:   user.Email,
			Tenants: memberships,
		},
	}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
