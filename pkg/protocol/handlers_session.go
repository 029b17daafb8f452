package protocol

import (
	"context"

	"github.com/cuemby/akonadid/pkg/protoerr"
	"github.com/cuemby/akonadid/pkg/types"
)

func handleLogin(ctx context.Context, c *Conn, tag string) error {
	clientID, err := c.parser.ReadString() // client identifier, recorded for logging only
	if err != nil {
		return protoerr.Wrap(protoerr.Protocol, "LOGIN: missing client identifier", err)
	}
	c.logger.Info().Str("client", clientID).Msg("login")
	c.ctx.State = StateAuthenticated
	return nil
}

func handleLogout(ctx context.Context, c *Conn, tag string) error {
	c.emit("BYE Akonadi server logging out")
	c.ctx.State = StateLoggingOut
	return nil
}

func handleCapability(ctx context.Context, c *Conn, tag string) error {
	c.emit("CAPABILITY UIDONLY ACL NOTIFY")
	return nil
}

func handleResSelect(ctx context.Context, c *Conn, tag string) error {
	if err := c.ctx.RequireState(StateAuthenticated); err != nil {
		return err
	}
	name, err := c.parser.ReadString()
	if err != nil {
		return protoerr.Wrap(protoerr.Protocol, "RESSELECT: missing resource name", err)
	}
	id, err := c.session.GetOrCreateResource(ctx, name)
	if err != nil {
		return err
	}
	c.ctx.ResourceID = id
	c.ctx.ResourceName = name
	return nil
}

func handleSelect(ctx context.Context, c *Conn, tag string) error {
	if err := c.ctx.RequireState(StateAuthenticated); err != nil {
		return err
	}
	kindTok, err := c.parser.ReadAtom()
	if err != nil {
		return protoerr.Wrap(protoerr.Protocol, "SELECT: missing scope or name", err)
	}

	var col *types.Collection
	kind, isScope := ParseScopeKind(kindTok)
	if !isScope {
		// No scope prefix: kindTok is itself the collection's numeric id.
		id, err := parseID(kindTok)
		if err != nil {
			return protoerr.Wrap(protoerr.Protocol, "SELECT: bad collection id", err)
		}
		col, err = c.session.GetCollection(ctx, id)
		if err != nil {
			return classify(err)
		}
	} else {
		name, err := c.parser.ReadString()
		if err != nil {
			return protoerr.Wrap(protoerr.Protocol, "SELECT: missing collection reference", err)
		}
		switch kind {
		case ScopeRID:
			if c.ctx.ResourceID == 0 {
				return protoerr.New(protoerr.Protocol, "SELECT RID requires RESSELECT first")
			}
			col, err = c.session.GetCollectionByRemoteID(ctx, c.ctx.ResourceID, name)
			if err != nil {
				return classify(err)
			}
		default:
			return protoerr.Newf(protoerr.Protocol, "SELECT: unsupported scope %q", kind)
		}
	}

	c.ctx.SelectedCollectionID = col.ID
	c.ctx.SelectedCollection = col.Name
	if c.ctx.State < StateSelected {
		c.ctx.State = StateSelected
	}
	return nil
}
