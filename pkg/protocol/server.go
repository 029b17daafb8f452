package protocol

import (
	"context"
	"errors"
	"net"

	"github.com/rs/zerolog"

	"github.com/cuemby/akonadid/pkg/log"
)

// Listen binds the client-facing listener. network/address follow
// net.Listen's own conventions ("unix", "/path/to.socket") or
// ("tcp", "host:port"); the line protocol itself is transport-agnostic,
// so a unix socket and a TCP port behind this same call are both valid
// deployments of it.
func Listen(network, address string) (net.Listener, error) {
	return net.Listen(network, address)
}

// Server accepts client connections on a single listener (the classic
// deployment binds a unix socket alongside the bus's own sockets) and
// runs each one on its own goroutine against a shared Deps.
type Server struct {
	listener net.Listener
	deps     Deps
	logger   zerolog.Logger

	done chan struct{}
}

// Serve starts accepting on l in a background goroutine.
func Serve(l net.Listener, deps Deps) *Server {
	s := &Server{
		listener: l,
		deps:     deps,
		logger:   log.WithComponent("protocol"),
		done:     make(chan struct{}),
	}
	go s.acceptLoop()
	return s
}

func (s *Server) acceptLoop() {
	defer close(s.done)
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Error().Err(err).Msg("accept failed")
			return
		}
		go s.serve(conn)
	}
}

func (s *Server) serve(raw net.Conn) {
	ctx := context.Background()
	c, err := NewConn(ctx, raw, s.deps)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to set up connection")
		raw.Close()
		return
	}
	c.Serve(ctx)
}

// Stop closes the listener and waits for the accept loop to return.
// Connections already accepted are not closed or waited for; each keeps
// serving until its peer disconnects.
func (s *Server) Stop() {
	s.listener.Close()
	<-s.done
}
