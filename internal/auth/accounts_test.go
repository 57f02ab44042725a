package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/oriys/tenantgate/internal/domain"
	"github.com/oriys/tenantgate/internal/tenant"
	"golang.org/x/crypto/bcrypt"
)

type memoryAccounts struct {
	users       map[uuid.UUID]domain.User
	memberships map[uuid.UUID][]domain.Membership
}

func (s *memoryAccounts) CreateUser(_ context.Context, u domain.User) (domain.User, error) {
	for _, existing := range s.users {
		if existing.Email == u.Email {
			return domain.User{}, tenant.ErrAlreadyExists
		}
	}
	s.users[u.ID] = u
	return u, nil
}

func (s *memoryAccounts) UserByEmail(_ context.Context, email string) (domain.User, error) {
	for _, u := range s.users {
		if u.Email == email {
			return u, nil
		}
	}
	return domain.User{}, tenant.ErrResourceNotFound
}

func (s *memoryAccounts) UserByID(_ context.Context, id uuid.UUID) (domain.User, error) {
	u, ok := s.users[id]
	if !ok {
		return domain.User{}, tenant.ErrResourceNotFound
	}
	return u, nil
}

func (s *memoryAccounts) UserMemberships(_ context.Context, id uuid.UUID) ([]domain.Membership, error) {
	return s.memberships[id], nil
}

func newAccounts(t *testing.T) (*Accounts, *memoryAccounts, *TokenManager) {
	t.Helper()
	store := &memoryAccounts{users: map[uuid.UUID]domain.User{}, memberships: map[uuid.UUID][]domain.Membership{}}
	tokens, err := NewTokenManager(TokenConfig{Secret: "test-secret"})
	if err != nil {
		t.Fatalf("NewTokenManager: %v", err)
	}
	accounts, err := NewAccounts(store, tokens, NewBcryptHasher(bcrypt.MinCost))
	if err != nil {
		t.Fatalf("NewAccounts: %v", err)
	}
	return accounts, store, tokens
}

func TestRegisterLoginRefresh(t *testing.T) {
	accounts, store, tokens := newAccounts(t)
	ctx := context.Background()

	user, err := accounts.Register(ctx, domain.RegisterRequest{Email: " Ada@Example.com ", Password: "correct-horse"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if user.Email != "ada@example.com" {
		t.Fatalf("email = %q, want normalized", user.Email)
	}
	store.memberships[user.ID] = []domain.Membership{{TenantID: uuid.New(), TenantSlug: "acme", Role: tenant.RoleOwner}}

	if _, err := accounts.Register(ctx, domain.RegisterRequest{Email: "ada@example.com", Password: "another-pass"}); !errors.Is(err, tenant.ErrAlreadyExists) {
		t.Fatalf("duplicate Register err = %v, want ErrAlreadyExists", err)
	}

	resp, err := accounts.Login(ctx, domain.LoginRequest{Email: "ada@example.com", Password: "correct-horse"})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if resp.ExpiresIn != int64(tokens.AccessTTL().Seconds()) || len(resp.User.Tenants) != 1 {
		t.Fatalf("unexpected login response %+v", resp)
	}
	claims, err := tokens.VerifyAccess(resp.AccessToken)
	if err != nil {
		t.Fatalf("VerifyAccess: %v", err)
	}
	if id, _ := claims.UserID(); id != user.ID {
		t.Fatalf("subject = %s, want %s", id, user.ID)
	}

	refreshed, err := accounts.Refresh(ctx, resp.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if refreshed.AccessToken == "" {
		t.Fatalf("no access token after refresh")
	}
	if _, err := accounts.Refresh(ctx, resp.AccessToken); !errors.Is(err, tenant.ErrUnauthorized) {
		t.Fatalf("refresh with access token err = %v, want ErrUnauthorized", err)
	}
}

func TestLoginFailures(t *testing.T) {
	accounts, _, _ := newAccounts(t)
	ctx := context.Background()
	if _, err := accounts.Register(ctx, domain.RegisterRequest{Email: "ada@example.com", Password: "correct-horse"}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	for name, req := range map[string]domain.LoginRequest{
		"wrong password": {Email: "ada@example.com", Password: "wrong-horse"},
		"unknown email":  {Email: "bob@example.com", Password: "correct-horse"},
	} {
		t.Run(name, func(t *testing.T) {
			if _, err := accounts.Login(ctx, req); !errors.Is(err, tenant.ErrUnauthorized) {
				t.Fatalf("err = %v, want ErrUnauthorized", err)
			}
		})
	}
}

func TestRegisterValidation(t *testing.T) {
	accounts, _, _ := newAccounts(t)
	if _, err := accounts.Register(context.Background(), domain.RegisterRequest{Email: "ada@example.com", Password: "short"}); !errors.Is(err, tenant.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}
