package protocol

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cuemby/akonadid/pkg/log"
	"github.com/cuemby/akonadid/pkg/metrics"
	"github.com/cuemby/akonadid/pkg/notify"
	"github.com/cuemby/akonadid/pkg/payload"
	"github.com/cuemby/akonadid/pkg/protoerr"
	"github.com/cuemby/akonadid/pkg/retrieval"
	"github.com/cuemby/akonadid/pkg/search"
	"github.com/cuemby/akonadid/pkg/storage"
)

// Deps bundles the subsystems every connection worker needs; one Deps
// is shared read-only across all connections a Server accepts.
type Deps struct {
	Store     storage.Store
	Bus       *notify.Bus
	Retrieval *retrieval.Manager
	Search    *search.Manager
	Payload   *payload.Store
}

// Conn is one accepted client connection: a dedicated database session,
// a notification collector bound to it, and the state machine context.
type Conn struct {
	deps Deps
	raw  net.Conn

	parser *Parser
	writeMu sync.Mutex
	w       *bufio.Writer

	session   *storage.Session
	collector *notify.Collector
	ctx       *Context
	logger    zerolog.Logger
}

// NewConn wraps an accepted net.Conn, reserving it a database session.
func NewConn(ctx context.Context, raw net.Conn, deps Deps) (*Conn, error) {
	session, err := deps.Store.NewSession(ctx)
	if err != nil {
		return nil, fmt.Errorf("protocol: reserve session: %w", err)
	}
	sessionID := uuid.NewString()
	c := &Conn{
		deps:    deps,
		raw:     raw,
		parser:  NewParser(bufio.NewReader(raw)),
		w:       bufio.NewWriter(raw),
		session: session,
		ctx:     &Context{SessionID: sessionID, State: StateNew},
		logger:  log.WithComponent("protocol").With().Str("session", sessionID).Logger(),
	}
	c.collector = notify.NewCollector(session, sessionID, deps.Bus)
	return c, nil
}

// Serve runs the command loop until the connection closes or the server
// context is cancelled. It never returns an error the caller must act
// on: handler failures are answered on the wire (BAD, NO, or BYE for
// fatal ones), and a read failure between commands ends the loop and
// closes the socket without a BYE.
func (c *Conn) Serve(ctx context.Context) {
	metrics.ConnectionsActive.Inc()
	defer metrics.ConnectionsActive.Dec()
	defer c.session.Close()
	defer c.raw.Close()

	c.logger.Info().Msg("connection accepted")
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if c.ctx.State == StateClosed {
			return
		}

		if err := c.serveOne(ctx); err != nil {
			if errors.Is(err, io.EOF) {
				c.logger.Info().Msg("connection closed by peer")
				return
			}
			c.logger.Error().Err(err).Msg("connection loop error")
			return
		}
	}
}

func (c *Conn) serveOne(ctx context.Context) error {
	tag, err := c.parser.ReadAtom()
	if err != nil {
		return err
	}
	verb, err := c.parser.ReadAtom()
	if err != nil {
		c.writeResponse(Tagged(tag, BAD, "expected a verb"))
		c.drainLine()
		return nil
	}

	timer := metrics.NewTimer()
	resp := c.dispatch(ctx, tag, verb)
	timer.ObserveDurationVec(metrics.CommandDuration, verb)
	metrics.CommandsTotal.WithLabelValues(verb, resp.Code.String()).Inc()

	c.drainLine()
	c.writeResponse(resp)

	if resp.Code == BYE || c.ctx.State == StateLoggingOut {
		c.ctx.State = StateClosed
	}
	return nil
}

// drainLine consumes anything left on the current command line (for
// handlers that bail out early on a parse error partway through args)
// so the next ReadAtom starts cleanly on the next command.
func (c *Conn) drainLine() {
	for !c.parser.AtLineEnd() {
		if _, err := c.parser.ReadAtom(); err != nil {
			break
		}
	}
	c.parser.ReadLineEnd()
}

func (c *Conn) dispatch(ctx context.Context, tag, verb string) Response {
	handler, ok := handlers[strings.ToUpper(verb)]
	if !ok {
		return Tagged(tag, BAD, "unknown command "+verb)
	}

	err := handler(ctx, c, tag)
	if err == nil {
		return Tagged(tag, OK, verb+" completed")
	}

	kind := protoerr.KindOf(err)
	c.logger.Warn().Err(err).Str("verb", verb).Str("kind", kind.String()).Msg("handler failed")

	switch kind {
	case protoerr.Protocol:
		return Tagged(tag, BAD, err.Error())
	case protoerr.DatabaseIO, protoerr.Fatal:
		c.writeResponse(Untagged("BYE " + err.Error()))
		return Tagged(tag, BYE, "server error, closing connection")
	default:
		return Tagged(tag, NO, err.Error())
	}
}

// writeResponse writes one line, guarded so untagged pushes (e.g. a
// FETCH emitting per-item lines before its tagged OK) interleave safely
// with anything else writing to this connection's socket.
func (c *Conn) writeResponse(r Response) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	fmt.Fprintf(c.w, "%s\r\n", r.String())
	c.w.Flush()
}

func (c *Conn) emit(text string) {
	c.writeResponse(Untagged(text))
}
