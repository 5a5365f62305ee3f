package internal

import (
	"business-connect/runtime/workers"
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"
)

func TestHealthServer(t *testing.T) {
	req := require.New(t)
	s, healthServer := NewHealthServer()
	listener := bufconn.Listen(1 << 20)
	go func() { _ = s.Serve(listener) }()
	defer s.Stop()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return listener.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	req.NoError(err)
	defer conn.Close()
	client := healthpb.NewHealthClient(conn)
	ctx := context.Background()

	// Not serving until a heartbeat says otherwise
	resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: workers.ServiceName})
	req.NoError(err)
	req.Equal(healthpb.HealthCheckResponse_NOT_SERVING, resp.GetStatus())

	healthServer.SetServingStatus(workers.ServiceName, healthpb.HealthCheckResponse_SERVING)

	resp, err = client.Check(ctx, &healthpb.HealthCheckRequest{Service: workers.ServiceName})
	req.NoError(err)
	req.Equal(healthpb.HealthCheckResponse_SERVING, resp.GetStatus())
}
