package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/oriys/tenantgate/internal/api"
	"github.com/oriys/tenantgate/internal/audit"
	"github.com/oriys/tenantgate/internal/auth"
	"github.com/oriys/tenantgate/internal/config"
	tgrpc "github.com/oriys/tenantgate/internal/grpc"
	"github.com/oriys/tenantgate/internal/logging"
	"github.com/oriys/tenantgate/internal/metrics"
	"github.com/oriys/tenantgate/internal/observability"
	"github.com/oriys/tenantgate/internal/quota"
	"github.com/oriys/tenantgate/internal/ratelimit"
	"github.com/oriys/tenantgate/internal/service"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

func serveCmd() *cobra.Command {
	var (
		logLevel string
		grpcAddr string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the optional gRPC server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("log-level") {
				cfg.Monitoring.LogLevel = logLevel
			}
			if cmd.Flags().Changed("grpc-addr") {
				cfg.Server.GRPCAddr = grpcAddr
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return serve(cfg)
		},
	}

	cmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	cmd.Flags().StringVar(&grpcAddr, "grpc-addr", "", "gRPC listen address; empty disables gRPC")
	return cmd
}

func serve(cfg *config.Config) error {
	logging.InitStructured(cfg.Monitoring.LogFormat, cfg.Monitoring.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := observability.Init(ctx, cfg.Monitoring.Tracing); err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer observability.Shutdown(context.Background())

	if cfg.Monitoring.MetricsEnabled {
		metrics.InitPrometheus("tenantgate", nil)
	}

	pg, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer pg.Close()

	hasher := auth.NewBcryptHasher(cfg.Auth.BcryptCost)
	tokens, err := auth.NewTokenManager(auth.TokenConfig{
		Secret:     cfg.Auth.JWTSecret,
		Issuer:     cfg.Auth.JWTIssuer,
		AccessTTL:  cfg.Auth.JWTExpiration,
		RefreshTTL: cfg.RefreshTTL(),
	})
	if err != nil {
		return err
	}
	resolver := auth.NewResolver(pg, tokens, hasher, auth.WithAPIKeyPrefix(cfg.Auth.APIKeyPrefix))
	defer resolver.Wait()

	accounts, err := auth.NewAccounts(pg, tokens, hasher)
	if err != nil {
		return fmt.Errorf("init accounts: %w", err)
	}

	recorder := audit.NewRecorder(pg.AuditSink())
	accountant := quota.NewAccountant(pg)
	monitors := service.NewMonitorService(pg, accountant, recorder)

	limiter := ratelimit.New(rateLimitBackend(ctx, cfg.Redis))

	usage := api.NewUsageRecorder(pg, 4096)
	go usage.Run(ctx)

	httpServer := api.StartHTTPServer(cfg.Server.Addr(), api.ServerConfig{
		Resolver:       resolver,
		Limiter:        limiter,
		Accounts:       accounts,
		APIKeys:        auth.NewAPIKeyManager(pg, hasher, recorder, cfg.Auth.APIKeyPrefix),
		Monitors:       monitors,
		Networks:       service.NewNetworkService(pg, accountant, recorder),
		Triggers:       service.NewTriggerService(pg, pg, accountant, recorder),
		Quotas:         accountant,
		Audit:          pg,
		Usage:          usage,
		Health:         pg.Ping,
		MetricsEnabled: cfg.Monitoring.MetricsEnabled,
		MetricsPath:    cfg.Monitoring.MetricsPath,
	})
	logging.Op().Info("HTTP server started", "addr", cfg.Server.Addr())

	var grpcServer *tgrpc.Server
	if cfg.Server.GRPCAddr != "" {
		grpcServer = tgrpc.NewServer(tgrpc.Config{Resolver: resolver, Limiter: limiter, Quotas: accountant, Health: pg.Ping})
		if err := grpcServer.Start(cfg.Server.GRPCAddr); err != nil {
			return err
		}
		go grpcServer.RunHealthProbe(ctx, 10*time.Second)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logging.Op().Info("shutting down", "signal", sig.String())

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logging.Op().Warn("HTTP shutdown incomplete", "error", err)
	}
	if grpcServer != nil {
		grpcServer.Stop()
	}

	cancel()
	select {
	case <-usage.Done():
	case <-shutdownCtx.Done():
		logging.Op().Warn("usage recorder did not drain before shutdown")
	}
	return nil
}

// rateLimitBackend shares counters through Redis when configured, degrading
// to local counters on failure. Without Redis counting stays in process.
func rateLimitBackend(ctx context.Context, cfg config.RedisConfig) ratelimit.Backend {
	if cfg.Addr == "" {
		local := ratelimit.NewLocalBackend()
		go local.RunSweeper(ctx, time.Minute)
		return local
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	context.AfterFunc(ctx, func() { client.Close() })
	logging.Op().Info("rate limiting uses redis", "addr", cfg.Addr)
	fb := ratelimit.NewFallbackBackend(ratelimit.NewRedisBackend(client))
	go fb.Local().RunSweeper(ctx, time.Minute)
	return fb
}
