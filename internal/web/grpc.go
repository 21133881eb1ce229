package web

import (
	"context"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// HealthServiceName is the gRPC health service name reported for the keeper.
const HealthServiceName = "alm.keeper"

// GRPCServer serves the standard gRPC health protocol, following keeper health.
type GRPCServer struct {
	server *grpc.Server
	health *health.Server
	keeper StatusReporter
}

// NewGRPCServer registers a health service for keeper. A nil keeper is always SERVING.
func NewGRPCServer(keeper StatusReporter) *GRPCServer {
	s := &GRPCServer{
		server: grpc.NewServer(grpc.UnaryInterceptor(unaryLoggingInterceptor)),
		health: health.NewServer(),
		keeper: keeper,
	}
	healthpb.RegisterHealthServer(s.server, s.health)
	s.Refresh()
	return s
}

// Health exposes the health service, e.g. for in-process checks.
func (s *GRPCServer) Health() healthpb.HealthServer {
	return s.health
}

// Refresh copies keeper health into the serving status.
func (s *GRPCServer) Refresh() {
	status := healthpb.HealthCheckResponse_SERVING
	if s.keeper != nil && !s.keeper.Status().Healthy {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.health.SetServingStatus(HealthServiceName, status)
	s.health.SetServingStatus("", status)
}

// Watch refreshes the serving status every interval until ctx is done.
func (s *GRPCServer) Watch(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Refresh()
		}
	}
}

// Serve accepts connections on lis until Stop.
func (s *GRPCServer) Serve(lis net.Listener) error {
	webLogger.Info().Str("addr", lis.Addr().String()).Msg("Starting gRPC health server")
	return s.server.Serve(lis)
}

// Stop marks every service NOT_SERVING and drains connections.
func (s *GRPCServer) Stop() {
	s.health.Shutdown()
	s.server.GracefulStop()
}

func unaryLoggingInterceptor(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	event := webLogger.Debug()
	if err != nil {
		event = webLogger.Warn().Err(err)
	}
	event.Str("method", info.FullMethod).Dur("duration", time.Since(start)).Msg("gRPC request")
	return resp, err
}
