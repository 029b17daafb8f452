package protocol

import "github.com/cuemby/akonadid/pkg/protoerr"

// State is a connection's position in the per-connection state machine.
type State int

const (
	StateNew State = iota
	StateAuthenticating
	StateAuthenticated
	StateSelected
	StateLoggingOut
	StateClosed
)

// Context is the connection's per-session state: selected collection,
// resource identity if the peer authenticated as one, the session id
// used to suppress echoing its own notifications back to it, and the
// retrieval-time cache-verification flag.
type Context struct {
	SessionID string
	State     State

	SelectedCollectionID int64 // 0 means unset
	SelectedCollection   string

	ResourceID   int64 // 0 means the peer is a regular client, not a resource
	ResourceName string

	VerifyCache bool
}

// RequireState returns a protoerr.Protocol error (mapped to BAD) unless
// the connection is at least at min.
func (c *Context) RequireState(min State) error {
	if c.State < min {
		return protoerr.Newf(protoerr.Protocol, "command not valid in state %v", c.State)
	}
	return nil
}

// RequireResource returns a protoerr.Protocol error unless the
// connection has authenticated as a resource via RESSELECT.
func (c *Context) RequireResource() error {
	if c.ResourceID == 0 {
		return protoerr.New(protoerr.Protocol, "command requires a resource identity, see RESSELECT")
	}
	return nil
}

func (s State) String() string {
	switch s {
	case StateNew:
		return "New"
	case StateAuthenticating:
		return "Authenticating"
	case StateAuthenticated:
		return "Authenticated"
	case StateSelected:
		return "Selected"
	case StateLoggingOut:
		return "LoggingOut"
	case StateClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}
