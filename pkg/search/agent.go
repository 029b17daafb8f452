package search

import (
	"context"
	"fmt"
	"sync"

	"google.golang.org/grpc"

	"github.com/cuemby/akonadid/pkg/bus"
)

const (
	methodStartSearch = "/org.freedesktop.Akonadi.SearchAgent/StartSearch"
	methodStopSearch  = "/org.freedesktop.Akonadi.SearchAgent/StopSearch"
)

type startSearchArgs struct {
	Handle      string `json:"handle"`
	QueryString string `json:"query_string"`
}

type stopSearchArgs struct {
	Handle string `json:"handle"`
}

type agentReply struct {
	Error string `json:"error,omitempty"`
}

// AgentEngine drives a persistent search through an externally spawned
// search-agent process reached over the same service bus as resources,
// rather than an in-process indexer library. Its hits arrive through
// FeedFromBus; nothing in this package registers an RPC server that
// calls it.
type AgentEngine struct {
	language string
	conn     *grpc.ClientConn
	events   chan<- HitEvent

	mu     sync.Mutex
	active map[string]bool
	valid  bool
}

// NewAgentEngine wraps an already-dialed connection to the agent
// process's well-known bus name.
func NewAgentEngine(language string, conn *grpc.ClientConn, events chan<- HitEvent) *AgentEngine {
	return &AgentEngine{
		language: language,
		conn:     conn,
		events:   events,
		active:   make(map[string]bool),
		valid:    conn != nil,
	}
}

func (e *AgentEngine) Language() string { return e.language }

func (e *AgentEngine) Valid() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.valid
}

func (e *AgentEngine) AddSearch(ctx context.Context, handle, queryString string) error {
	e.mu.Lock()
	if !e.valid {
		e.mu.Unlock()
		return nil
	}
	e.mu.Unlock()

	var reply agentReply
	args := &startSearchArgs{Handle: handle, QueryString: queryString}
	if err := e.conn.Invoke(ctx, methodStartSearch, args, &reply, grpc.CallContentSubtype(bus.JSONCodecName)); err != nil {
		return fmt.Errorf("search: agent StartSearch: %w", err)
	}
	if reply.Error != "" {
		return fmt.Errorf("search: agent reported: %s", reply.Error)
	}

	e.mu.Lock()
	e.active[handle] = true
	e.mu.Unlock()
	return nil
}

func (e *AgentEngine) RemoveSearch(ctx context.Context, handle string) error {
	e.mu.Lock()
	delete(e.active, handle)
	e.mu.Unlock()

	var reply agentReply
	if err := e.conn.Invoke(ctx, methodStopSearch, &stopSearchArgs{Handle: handle}, &reply, grpc.CallContentSubtype(bus.JSONCodecName)); err != nil {
		return fmt.Errorf("search: agent StopSearch: %w", err)
	}
	return nil
}

// FeedFromBus is the push-side entry point for hits an agent reports
// for handle; hits for a handle that is not active are dropped.
func (e *AgentEngine) FeedFromBus(handle string, op HitOp, uris []string) {
	e.mu.Lock()
	_, ok := e.active[handle]
	e.mu.Unlock()
	if !ok {
		return
	}
	e.events <- HitEvent{Handle: handle, Op: op, URIs: uris}
}
