package main

import (
	"context"
	"fmt"
	"os"

	"github.com/oriys/tenantgate/internal/config"
	"github.com/oriys/tenantgate/internal/store"
	"github.com/spf13/cobra"
)

var (
	pgDSN      string
	configFile string
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "tenantgate",
		Short:         "Tenant isolation, quota and rate limit gateway",
		Long:          "Run the tenantgate API server and administer tenants, users and API keys",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&pgDSN, "pg-dsn", "", "Postgres DSN (overrides config)")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to config file (JSON or YAML)")

	rootCmd.AddCommand(
		serveCmd(),
		migrateCmd(),
		tenantCmd(),
		userCmd(),
		apikeyCmd(),
	)
	return rootCmd
}

// loadConfig applies, in order: defaults, the config file (--config or
// SMT_CONFIG_PATH), SMT_* variables, then command line flags.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if configFile != "" {
		cfg, err = config.LoadFromFile(configFile)
		if err == nil {
			config.LoadFromEnv(cfg)
		}
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if cmd.Flags().Changed("pg-dsn") {
		cfg.Database.URL = pgDSN
	}
	return cfg, nil
}

func openStore(ctx context.Context, cfg *config.Config) (*store.PostgresStore, error) {
	return store.NewPostgresStore(ctx, store.Config{
		DSN:            cfg.Database.URL,
		MaxConns:       cfg.Database.MaxConnections,
		MinConns:       cfg.Database.MinConnections,
		ConnectTimeout: cfg.Database.ConnectTimeout,
		RateLimits:     cfg.RateLimit.Limits(),
	})
}
