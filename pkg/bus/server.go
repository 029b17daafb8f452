package bus

import (
	"context"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"

	"github.com/cuemby/akonadid/pkg/log"
)

// Server is this process's own bus presence: a grpc.Server bound to
// org.freedesktop.Akonadi's unix socket, exposing only the health
// service so Control and peers can confirm the server is alive.
type Server struct {
	grpcServer *grpc.Server
	health     *health.Server
	listener   net.Listener
}

// Serve binds org.freedesktop.Akonadi's socket and starts serving in a
// background goroutine.
func Serve(registry *Registry) (*Server, error) {
	l, err := registry.Listen(ServerService)
	if err != nil {
		return nil, err
	}
	srv := grpc.NewServer()
	hs := RegisterHealth(srv)

	s := &Server{grpcServer: srv, health: hs, listener: l}
	go func() {
		_ = srv.Serve(l)
	}()
	return s, nil
}

// Stop gracefully stops the server and removes its socket file.
func (s *Server) Stop(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		s.grpcServer.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.grpcServer.Stop()
	}
	log.WithComponent("bus").Info().Msg("bus server stopped")
}
