package grpc

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/oriys/tenantgate/internal/quota"
	"github.com/oriys/tenantgate/internal/tenant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"
)

// JSONCodecName is the content subtype of the quota service. Its messages
// are the JSON documents the HTTP API returns, so no generated protobuf
// types are involved.
const JSONCodecName = "json"

// QuotaStatusMethod is the full method name of the quota status RPC.
const QuotaStatusMethod = "/tenantgate.v1.Quota/GetStatus"

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                       { return JSONCodecName }

// QuotaReader serves the quota status of a tenant.
type QuotaReader interface {
	GetQuotaStatus(ctx context.Context, tenantID uuid.UUID) (quota.Status, error)
}

// QuotaStatusRequest is empty: the tenant comes from the call's scope.
type QuotaStatusRequest struct{}

// QuotaServer is the server side of tenantgate.v1.Quota.
type QuotaServer interface {
	GetStatus(ctx context.Context, req *QuotaStatusRequest) (*quota.Status, error)
}

type quotaServer struct {
	quotas QuotaReader
}

// GetStatus reports the quota status of the tenant bound by the tenant
// interceptor.
func (s *quotaServer) GetStatus(ctx context.Context, _ *QuotaStatusRequest) (*quota.Status, error) {
	tc, err := tenant.Current(ctx)
	if err != nil {
		return nil, err
	}
	st, err := s.quotas.GetQuotaStatus(ctx, tc.TenantID)
	if err != nil {
		return nil, err
	}
	return &st, nil
}

func quotaStatusHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(QuotaStatusRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(QuotaServer).GetStatus(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: QuotaStatusMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(QuotaServer).GetStatus(ctx, req.(*QuotaStatusRequest))
	}
	return interceptor(ctx, in, info, handler)
}

var quotaServiceDesc = grpc.ServiceDesc{
	ServiceName: "tenantgate.v1.Quota",
	HandlerType: (*QuotaServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetStatus", Handler: quotaStatusHandler},
	},
}

// QuotaStatus calls the quota RPC over cc. Callers attach the tenant and
// credential metadata to ctx.
func QuotaStatus(ctx context.Context, cc grpc.ClientConnInterface) (quota.Status, error) {
	var out quota.Status
	err := cc.Invoke(ctx, QuotaStatusMethod, &QuotaStatusRequest{}, &out, grpc.CallContentSubtype(JSONCodecName))
	return out, err
}
