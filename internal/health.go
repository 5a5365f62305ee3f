package internal

import (
	"business-connect/runtime/workers"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// NewHealthServer registers the standard gRPC health service.
// The messaging service starts NOT_SERVING until the first heartbeat.
func NewHealthServer() (*grpc.Server, *health.Server) {
	s := grpc.NewServer()
	healthServer := health.NewServer()
	healthServer.SetServingStatus(workers.ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(s, healthServer)
	return s, healthServer
}

// ServeHealth serves on port until ctx is done.
func ServeHealth(ctx context.Context, log *slog.Logger, s *grpc.Server, port int) error {
	address := fmt.Sprintf("0.0.0.0:%d", port)
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", address, err)
	}
	go func() {
		<-ctx.Done()
		s.GracefulStop()
	}()
	go func() {
		log.Info("Starting gRPC health server", "address", address)
		if err := s.Serve(listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			log.Error("gRPC health server error", "error", err)
		}
	}()
	return nil
}
