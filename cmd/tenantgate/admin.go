package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/oriys/tenantgate/internal/auth"
	"github.com/oriys/tenantgate/internal/domain"
	"github.com/oriys/tenantgate/internal/tenant"
	"github.com/spf13/cobra"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			s, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.Migrate(ctx); err != nil {
				return err
			}
			fmt.Println("Schema is up to date")
			return nil
		},
	}
}

func tenantCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenant",
		Short: "Manage tenants",
	}
	cmd.AddCommand(tenantCreateCmd(), tenantActiveCmd(true), tenantActiveCmd(false), tenantSetLimitsCmd())
	return cmd
}

func tenantCreateCmd() *cobra.Command {
	var (
		req    domain.CreateTenantRequest
		limits = map[string]*int64{}
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a tenant",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			for name, v := range limits {
				if !cmd.Flags().Changed(name) {
					continue
				}
				switch name {
				case "max-monitors":
					req.MaxMonitors = v
				case "max-networks":
					req.MaxNetworks = v
				case "max-triggers-per-monitor":
					req.MaxTriggersPerMonitor = v
				case "max-rpc-per-minute":
					req.MaxRPCRequestsPerMinute = v
				case "max-storage-mb":
					req.MaxStorageMB = v
				}
			}
			if err := req.Validate(); err != nil {
				return err
			}

			ctx := cmd.Context()
			s, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			t, err := s.CreateTenant(ctx, domain.Tenant{
				Name:     req.Name,
				Slug:     req.Slug,
				IsActive: true,
				Quotas:   req.Quotas(cfg.ResourceQuotas()),
			}, nil)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintf(w, "ID:\t%s\n", t.ID)
			fmt.Fprintf(w, "Name:\t%s\n", t.Name)
			fmt.Fprintf(w, "Slug:\t%s\n", t.Slug)
			fmt.Fprintf(w, "Monitors:\t%d\n", t.Quotas.MaxMonitors)
			fmt.Fprintf(w, "Networks:\t%d\n", t.Quotas.MaxNetworks)
			fmt.Fprintf(w, "Triggers/monitor:\t%d\n", t.Quotas.MaxTriggersPerMonitor)
			fmt.Fprintf(w, "RPC/minute:\t%d\n", t.Quotas.MaxRPCRequestsPerMinute)
			fmt.Fprintf(w, "Storage MB:\t%d\n", t.Quotas.MaxStorageMB)
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&req.Name, "name", "", "Tenant display name")
	cmd.Flags().StringVar(&req.Slug, "slug", "", "URL slug")
	for _, name := range []string{"max-monitors", "max-networks", "max-triggers-per-monitor", "max-rpc-per-minute", "max-storage-mb"} {
		limits[name] = new(int64)
		cmd.Flags().Int64Var(limits[name], name, 0, "Override the default "+strings.ReplaceAll(strings.TrimPrefix(name, "max-"), "-", " ")+" quota")
	}
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("slug")
	return cmd
}

// tenantAdmin is the slice of the store the tenant subcommands need.
type tenantAdmin interface {
	TenantByRef(ctx context.Context, ref string) (domain.Tenant, error)
	SetTenantActive(ctx context.Context, tenantID uuid.UUID, active bool) error
	SetTenantRateLimits(ctx context.Context, tenantID uuid.UUID, limits tenant.RateLimits) error
}

func tenantActiveCmd(active bool) *cobra.Command {
	use, short := "disable <slug|id>", "Disable a tenant; its credentials stop resolving"
	if active {
		use, short = "enable <slug|id>", "Re-enable a disabled tenant"
	}
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			s, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			t, err := setTenantActive(ctx, s, args[0], active)
			if err != nil {
				return err
			}
			fmt.Printf("Tenant %s active=%t\n", t.Slug, active)
			return nil
		},
	}
}

func setTenantActive(ctx context.Context, s tenantAdmin, ref string, active bool) (domain.Tenant, error) {
	t, err := s.TenantByRef(ctx, ref)
	if err != nil {
		return domain.Tenant{}, err
	}
	if err := s.SetTenantActive(ctx, t.ID, active); err != nil {
		return domain.Tenant{}, err
	}
	t.IsActive = active
	return t, nil
}

// rateLimitFlags maps flag names onto the fields they override.
func rateLimitFlags(l *tenant.RateLimits) map[string]*int64 {
	return map[string]*int64{
		"user-limit":    &l.User.Limit,
		"user-burst":    &l.User.Burst,
		"api-key-limit": &l.APIKey.Limit,
		"api-key-burst": &l.APIKey.Burst,
	}
}

func tenantSetLimitsCmd() *cobra.Command {
	values := map[string]*int64{}
	cmd := &cobra.Command{
		Use:   "set-limits <slug|id>",
		Short: "Override a tenant's per-minute request limits",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			changed := map[string]int64{}
			for name, v := range values {
				if cmd.Flags().Changed(name) {
					changed[name] = *v
				}
			}
			if len(changed) == 0 {
				return fmt.Errorf("no limit flags given: %w", tenant.ErrValidation)
			}
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			s, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			limits, err := setTenantRateLimits(ctx, s, args[0], changed)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintf(w, "User:\t%d/min burst %d\n", limits.User.Limit, limits.User.Burst)
			fmt.Fprintf(w, "API key:\t%d/min burst %d\n", limits.APIKey.Limit, limits.APIKey.Burst)
			return w.Flush()
		},
	}
	for name := range rateLimitFlags(&tenant.RateLimits{}) {
		values[name] = new(int64)
		cmd.Flags().Int64Var(values[name], name, 0, "New "+strings.ReplaceAll(name, "-", " "))
	}
	return cmd
}

// setTenantRateLimits applies changed on top of the tenant's current pairs.
// Each pair must keep 0 <= limit <= burst.
func setTenantRateLimits(ctx context.Context, s tenantAdmin, ref string, changed map[string]int64) (tenant.RateLimits, error) {
	t, err := s.TenantByRef(ctx, ref)
	if err != nil {
		return tenant.RateLimits{}, err
	}
	limits := t.Quotas.RateLimits
	fields := rateLimitFlags(&limits)
	for name, v := range changed {
		dst, ok := fields[name]
		if !ok {
			return tenant.RateLimits{}, fmt.Errorf("unknown limit %q: %w", name, tenant.ErrValidation)
		}
		*dst = v
	}
	for kind, pair := range map[string]tenant.RateLimit{"user": limits.User, "api key": limits.APIKey} {
		if pair.Limit < 0 || pair.Burst < pair.Limit {
			return tenant.RateLimits{}, fmt.Errorf("%s burst %d must be at least limit %d and non-negative: %w", kind, pair.Burst, pair.Limit, tenant.ErrValidation)
		}
	}
	if err := s.SetTenantRateLimits(ctx, t.ID, limits); err != nil {
		return tenant.RateLimits{}, err
	}
	return limits, nil
}

func userCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage users",
	}
	cmd.AddCommand(userCreateCmd())
	return cmd
}

func userCreateCmd() *cobra.Command {
	var (
		email     string
		password  string
		tenantRef string
		roleName  string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a user and add it to a tenant",
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := domain.RegisterRequest{Email: strings.ToLower(strings.TrimSpace(email)), Password: password}
			if err := reg.Validate(); err != nil {
				return err
			}
			role, err := tenant.ParseRole(roleName)
			if err != nil {
				return err
			}
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			s, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			t, err := s.TenantByRef(ctx, tenantRef)
			if err != nil {
				return err
			}
			hash, err := auth.NewBcryptHasher(cfg.Auth.BcryptCost).Hash(reg.Password)
			if err != nil {
				return err
			}
			u, err := s.CreateUser(ctx, domain.User{Email: reg.Email, PasswordHash: hash, IsActive: true})
			if err != nil {
				return err
			}
			if err := s.AddMembership(ctx, t.ID, u.ID, role); err != nil {
				return err
			}
			fmt.Printf("User %s (%s) added to %s as %s\n", u.Email, u.ID, t.Slug, role)
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "User email")
	cmd.Flags().StringVar(&password, "password", "", "Initial password")
	cmd.Flags().StringVar(&tenantRef, "tenant", "", "Tenant slug or id")
	cmd.Flags().StringVar(&roleName, "role", string(tenant.RoleMember), "Role: owner, admin, member or viewer")
	for _, f := range []string{"email", "password", "tenant"} {
		_ = cmd.MarkFlagRequired(f)
	}
	return cmd
}

func apikeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apikey",
		Short: "Manage tenant API keys",
	}
	cmd.AddCommand(apikeyCreateCmd())
	return cmd
}

func apikeyCreateCmd() *cobra.Command {
	var (
		tenantRef string
		name      string
		expiresIn time.Duration
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an API key; the key is printed once",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			s, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			t, err := s.TenantByRef(ctx, tenantRef)
			if err != nil {
				return err
			}
			created, err := mintAPIKey(ctx, s, t.ID, cfg.Auth.APIKeyPrefix, cfg.Auth.BcryptCost, name, expiresIn)
			if err != nil {
				return err
			}

			fmt.Printf("API key %s created for %s\n", created.ID, t.Slug)
			if created.ExpiresAt != nil {
				fmt.Printf("Expires: %s\n", created.ExpiresAt.Format(time.RFC3339))
			}
			fmt.Printf("Key: %s\n", created.Key)
			fmt.Println("Store it now; it cannot be shown again.")
			return nil
		},
	}

	cmd.Flags().StringVar(&tenantRef, "tenant", "", "Tenant slug or id")
	cmd.Flags().StringVar(&name, "name", "", "Key name")
	cmd.Flags().DurationVar(&expiresIn, "expires-in", 0, "Lifetime, e.g. 720h; zero never expires")
	_ = cmd.MarkFlagRequired("tenant")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

type apiKeyInserter interface {
	auth.APIKeyStore
	InsertAPIKey(ctx context.Context, tenantID uuid.UUID, key domain.APIKey) (domain.APIKey, error)
}

func mintAPIKey(ctx context.Context, s apiKeyInserter, tenantID uuid.UUID, prefix string, cost int, name string, expiresIn time.Duration) (domain.CreatedAPIKey, error) {
	req := domain.CreateAPIKeyRequest{Name: name}
	if expiresIn > 0 {
		at := time.Now().Add(expiresIn).UTC()
		req.ExpiresAt = &at
	}
	mgr := auth.NewAPIKeyManager(s, auth.NewBcryptHasher(cost), nil, prefix)
	key, plaintext, err := mgr.Mint(tenantID, req)
	if err != nil {
		return domain.CreatedAPIKey{}, err
	}
	key, err = s.InsertAPIKey(ctx, tenantID, key)
	if err != nil {
		return domain.CreatedAPIKey{}, err
	}
	return domain.CreatedAPIKey{APIKey: key, Key: plaintext}, nil
}
