// Package grpc exposes the tenant quota RPC and the standard health service
// behind the same credential, rate limit and error mapping rules as the HTTP
// API.
package grpc

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/oriys/tenantgate/internal/auth"
	"github.com/oriys/tenantgate/internal/logging"
	"github.com/oriys/tenantgate/internal/ratelimit"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// Config holds the dependencies of the gRPC server.
type Config struct {
	Resolver *auth.Resolver
	Limiter  *ratelimit.Limiter
	// Quotas backs tenantgate.v1.Quota. The service is not registered when nil.
	Quotas QuotaReader
	// Health reports whether backing stores are reachable.
	Health func(ctx context.Context) error
}

// Server wraps a grpc.Server with health reporting.
type Server struct {
	grpcServer *grpc.Server
	health     *health.Server
	check      func(ctx context.Context) error
}

// NewServer builds the server and registers the quota, health and
// reflection services.
func NewServer(cfg Config) *Server {
	interceptors := []grpc.UnaryServerInterceptor{loggingInterceptor, errorInterceptor}
	if cfg.Resolver != nil {
		interceptors = append(interceptors, tenantInterceptor(cfg.Resolver))
	}
	if cfg.Limiter != nil {
		interceptors = append(interceptors, rateLimitInterceptor(cfg.Limiter))
	}

	grpcServer := grpc.NewServer(grpc.ChainUnaryInterceptor(interceptors...))

	if cfg.Quotas != nil {
		grpcServer.RegisterService(&quotaServiceDesc, &quotaServer{quotas: cfg.Quotas})
	}

	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	reflection.Register(grpcServer)

	return &Server{grpcServer: grpcServer, health: healthServer, check: cfg.Health}
}

// Serve accepts connections on lis in the background.
func (s *Server) Serve(lis net.Listener) {
	go func() {
		if err := s.grpcServer.Serve(lis); err != nil {
			logging.Op().Error("gRPC server error", "error", err)
		}
	}()
}

// Start listens on addr and serves in the background.
func (s *Server) Start(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	logging.Op().Info("gRPC server started", "addr", addr)
	s.Serve(lis)
	return nil
}

// CheckHealth runs the health probe once and updates the serving status.
func (s *Server) CheckHealth(ctx context.Context) {
	if s.check == nil {
		return
	}
	serving := grpc_health_v1.HealthCheckResponse_SERVING
	if err := s.check(ctx); err != nil {
		logging.Op().Warn("health probe failed", "error", err)
		serving = grpc_health_v1.HealthCheckResponse_NOT_SERVING
	}
	s.health.SetServingStatus("", serving)
}

// RunHealthProbe calls CheckHealth every interval until ctx is done.
func (s *Server) RunHealthProbe(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			probeCtx, cancel := context.WithTimeout(ctx, interval)
			s.CheckHealth(probeCtx)
			cancel()
		}
	}
}

// Stop marks the server as not serving and drains in-flight calls.
func (s *Server) Stop() {
	s.health.Shutdown()
	s.grpcServer.GracefulStop()
}
