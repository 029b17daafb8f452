package bus

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// RegisterHealth attaches the standard grpc health service to srv,
// reporting SERVING for every service name registered against hs so a
// peer's liveness watch (and our own Ping) has something real to ask.
func RegisterHealth(srv *grpc.Server) *health.Server {
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	return hs
}

// Ping performs one health Check RPC over conn, used both to validate
// a freshly dialed connection and by the control-service watch loop to
// detect supervisor loss.
func Ping(ctx context.Context, conn *grpc.ClientConn) error {
	client := healthpb.NewHealthClient(conn)
	resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{}, grpc.CallContentSubtype(jsonCodecName))
	if err != nil {
		return err
	}
	if resp.Status != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("bus: health status %s", resp.Status)
	}
	return nil
}
