package grpc

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/oriys/tenantgate/internal/auth"
	"github.com/oriys/tenantgate/internal/logging"
	"github.com/oriys/tenantgate/internal/ratelimit"
	"github.com/oriys/tenantgate/internal/tenant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// Metadata keys carrying the tenant reference and credential.
const (
	MetadataTenant        = "x-tenant"
	MetadataAuthorization = "authorization"
	MetadataAPIKey        = "x-api-key"
)

// publicPrefixes are served without a tenant scope.
var publicPrefixes = []string{
	"/grpc.health.v1.Health/",
	"/grpc.reflection.",
}

func isPublic(fullMethod string) bool {
	for _, p := range publicPrefixes {
		if strings.HasPrefix(fullMethod, p) {
			return true
		}
	}
	return false
}

// loggingInterceptor logs every unary call.
func loggingInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	duration := time.Since(start)

	if err != nil {
		logging.FromContext(ctx).Warn("gRPC request failed",
			"method", info.FullMethod,
			"duration", duration,
			"code", status.Code(err).String(),
			"error", err,
		)
	} else {
		logging.FromContext(ctx).Debug("gRPC request completed",
			"method", info.FullMethod,
			"duration", duration,
		)
	}
	return resp, err
}

// errorInterceptor converts governance errors to gRPC status codes.
func errorInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	resp, err := handler(ctx, req)
	if err != nil {
		return nil, toStatus(err)
	}
	return resp, nil
}

// toStatus maps err through the tenant error taxonomy. Errors that already
// carry a status are returned unchanged.
func toStatus(err error) error {
	if _, ok := status.FromError(err); ok {
		return err
	}
	switch tenant.Classify(err) {
	case tenant.ErrUnauthorized:
		return status.Error(codes.Unauthenticated, err.Error())
	case tenant.ErrForbidden:
		return status.Error(codes.PermissionDenied, err.Error())
	case tenant.ErrTenantNotFound, tenant.ErrResourceNotFound:
		return status.Error(codes.NotFound, err.Error())
	case tenant.ErrQuotaExceeded, tenant.ErrTooManyRequests:
		return status.Error(codes.ResourceExhausted, err.Error())
	case tenant.ErrAlreadyExists:
		return status.Error(codes.AlreadyExists, err.Error())
	case tenant.ErrValidation:
		return status.Error(codes.InvalidArgument, err.Error())
	default:
		return status.Error(codes.Internal, "internal server error")
	}
}

// credentialsFromMetadata returns the tenant reference and credential of an
// incoming call.
func credentialsFromMetadata(ctx context.Context) (string, string) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", ""
	}
	first := func(key string) string {
		if v := md.Get(key); len(v) > 0 {
			return strings.TrimSpace(v[0])
		}
		return ""
	}
	credential := first(MetadataAuthorization)
	if credential == "" {
		credential = first(MetadataAPIKey)
	}
	return first(MetadataTenant), credential
}

// tenantInterceptor resolves the caller and binds its TenantContext for the
// handler. Public methods pass through unscoped.
func tenantInterceptor(resolver *auth.Resolver) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if isPublic(info.FullMethod) {
			return handler(ctx, req)
		}
		ref, credential := credentialsFromMetadata(ctx)
		tc, err := resolver.Resolve(ctx, ref, credential)
		if err != nil {
			return nil, err
		}
		scoped, err := tenant.WithScope(ctx, tc)
		if err != nil {
			return nil, err
		}
		return handler(scoped, req)
	}
}

// rateLimitInterceptor applies limiter to scoped calls. Backend failures
// admit the call.
func rateLimitInterceptor(limiter *ratelimit.Limiter) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		d, err := limiter.Allow(ctx)
		if err != nil && !errors.Is(err, tenant.ErrTooManyRequests) {
			logging.FromContext(ctx).Warn("rate limit backend failed, admitting call", "method", info.FullMethod, "error", err)
			return handler(ctx, req)
		}
		if !d.Allowed {
			return nil, status.Error(codes.ResourceExhausted, "too many requests, please retry later")
		}
		return handler(ctx, req)
	}
}
