package handler

import (
	"context"
	"fmt"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/rl1809/scrap-lifecycle/internal/core/service"
)

// LifecycleClient calls the lifecycle service over the JSON codec.
type LifecycleClient struct {
	cc grpc.ClientConnInterface
}

func NewLifecycleClient(cc grpc.ClientConnInterface) *LifecycleClient {
	return &LifecycleClient{cc: cc}
}

// DialLifecycle opens a plaintext connection with tracing enabled.
func DialLifecycle(addr string, opts ...grpc.DialOption) (*grpc.ClientConn, error) {
	base := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
	}
	conn, err := grpc.NewClient(addr, append(base, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("dial lifecycle service %s: %w", addr, err)
	}
	return conn, nil
}

func (c *LifecycleClient) UpdateLifecycle(ctx context.Context, in *UpdateLifecycleRequest, opts ...grpc.CallOption) (*LotResponse, error) {
	out := new(LotResponse)
	if err := c.invoke(ctx, "UpdateLifecycle", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *LifecycleClient) GetLot(ctx context.Context, in *GetLotRequest, opts ...grpc.CallOption) (*LotResponse, error) {
	out := new(LotResponse)
	if err := c.invoke(ctx, "GetLot", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *LifecycleClient) ListHistory(ctx context.Context, in *ListHistoryRequest, opts ...grpc.CallOption) (*ListHistoryResponse, error) {
	out := new(ListHistoryResponse)
	if err := c.invoke(ctx, "ListHistory", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *LifecycleClient) GetStats(ctx context.Context, in *GetStatsRequest, opts ...grpc.CallOption) (*service.Dashboard, error) {
	out := new(service.Dashboard)
	if err := c.invoke(ctx, "GetStats", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *LifecycleClient) invoke(ctx context.Context, method string, in, out any, opts []grpc.CallOption) error {
	callOpts := append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	return c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, out, callOpts...)
}
