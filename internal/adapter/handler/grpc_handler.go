package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/encoding"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"github.com/rl1809/scrap-lifecycle/internal/core/domain"
	"github.com/rl1809/scrap-lifecycle/internal/core/service"
)

const (
	ServiceName = "scrap.lifecycle.v1.LifecycleService"
	// CodecName is the content-subtype the lifecycle service speaks.
	CodecName = "json"
)

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                       { return CodecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

type UpdateLifecycleRequest struct {
	InventoryID int64  `json:"inventoryId"`
	UpdatedBy   int64  `json:"updatedBy"`
	RequestID   string `json:"requestId,omitempty"`
	LifecyclePayload
}

type GetLotRequest struct {
	ID int64 `json:"id"`
}

type ListHistoryRequest struct {
	InventoryID *int64 `json:"inventoryId,omitempty"`
}

type ListHistoryResponse struct {
	Entries []LifecycleUpdateResponse `json:"entries"`
}

type GetStatsRequest struct {
	WindowDays int `json:"windowDays"`
}

type LifecycleServer interface {
	UpdateLifecycle(context.Context, *UpdateLifecycleRequest) (*LotResponse, error)
	GetLot(context.Context, *GetLotRequest) (*LotResponse, error)
	ListHistory(context.Context, *ListHistoryRequest) (*ListHistoryResponse, error)
	GetStats(context.Context, *GetStatsRequest) (*service.Dashboard, error)
}

var LifecycleServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*LifecycleServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod("UpdateLifecycle", LifecycleServer.UpdateLifecycle),
		unaryMethod("GetLot", LifecycleServer.GetLot),
		unaryMethod("ListHistory", LifecycleServer.ListHistory),
		unaryMethod("GetStats", LifecycleServer.GetStats),
	},
	Streams: []grpc.StreamDesc{},
}

func unaryMethod[Req, Resp any](name string, call func(LifecycleServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(LifecycleServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + name}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(srv.(LifecycleServer), ctx, req.(*Req))
			})
		},
	}
}

func RegisterLifecycleServer(s grpc.ServiceRegistrar, srv LifecycleServer) {
	s.RegisterService(&LifecycleServiceDesc, srv)
}

type GRPCHandler struct {
	lifecycle *service.LifecycleService
	stats     *service.StatsService
}

var _ LifecycleServer = (*GRPCHandler)(nil)

func NewGRPCHandler(lifecycle *service.LifecycleService, stats *service.StatsService) *GRPCHandler {
	return &GRPCHandler{lifecycle: lifecycle, stats: stats}
}

func (h *GRPCHandler) UpdateLifecycle(ctx context.Context, req *UpdateLifecycleRequest) (*LotResponse, error) {
	lot, err := h.lifecycle.ApplyTransition(ctx, domain.TransitionRequest{
		InventoryID: req.InventoryID,
		Patch:       req.patch(),
		UpdatedBy:   req.UpdatedBy,
		RequestID:   req.RequestID,
	})
	if err != nil {
		return nil, grpcError(err)
	}
	resp := toLotResponse(lot)
	return &resp, nil
}

func (h *GRPCHandler) GetLot(ctx context.Context, req *GetLotRequest) (*LotResponse, error) {
	lot, err := h.lifecycle.GetLot(ctx, req.ID)
	if err != nil {
		return nil, grpcError(err)
	}
	resp := toLotResponse(lot)
	return &resp, nil
}

func (h *GRPCHandler) ListHistory(ctx context.Context, req *ListHistoryRequest) (*ListHistoryResponse, error) {
	entries, err := h.lifecycle.ListHistory(ctx, req.InventoryID)
	if err != nil {
		return nil, grpcError(err)
	}
	return &ListHistoryResponse{Entries: toUpdateResponses(entries)}, nil
}

func (h *GRPCHandler) GetStats(ctx context.Context, req *GetStatsRequest) (*service.Dashboard, error) {
	d, err := h.stats.Dashboard(ctx, req.WindowDays)
	if err != nil {
		return nil, grpcError(err)
	}
	return d, nil
}

func grpcError(err error) error {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, domain.ErrInvalidArgument):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, domain.ErrDuplicateRequest):
		return status.Error(codes.AlreadyExists, err.Error())
	case errors.Is(err, domain.ErrConflict):
		return status.Error(codes.Aborted, "lot was modified concurrently, retry")
	}
	return status.Error(codes.Internal, "internal error")
}

// NewGRPCServer builds a server with the lifecycle and health services
// registered and OpenTelemetry instrumentation installed.
func NewGRPCServer(h *GRPCHandler, log *slog.Logger) (*grpc.Server, *health.Server) {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	srv := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(loggingInterceptor(log)),
	)
	RegisterLifecycleServer(srv, h)

	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(srv, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(ServiceName, grpc_health_v1.HealthCheckResponse_SERVING)

	return srv, healthServer
}

func loggingInterceptor(log *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		code := status.Code(err)
		level := slog.LevelInfo
		if code == codes.Internal || code == codes.Unknown {
			level = slog.LevelError
		}
		log.Log(ctx, level, "grpc request",
			"method", info.FullMethod,
			"code", code.String(),
			"duration", time.Since(start),
		)
		return resp, err
	}
}
