package protocol

import (
	"context"
	"errors"
	"fmt"

	"github.com/cuemby/akonadid/pkg/protoerr"
	"github.com/cuemby/akonadid/pkg/storage"
	"github.com/cuemby/akonadid/pkg/types"
)

// applyCollectionArgs reads the attribute/value pairs COLLECTIONCREATE and
// COLLECTIONMODIFY share: bare keyword-value tokens up to the end of the
// line, applying whichever keys are present.
func applyCollectionArgs(ctx context.Context, c *Conn, col *types.Collection) error {
	for !c.parser.AtLineEnd() {
		key, err := c.parser.ReadAtom()
		if err != nil {
			return err
		}
		switch key {
		case "NAME":
			v, err := c.parser.ReadString()
			if err != nil {
				return err
			}
			col.Name = v
		case "REMOTEID":
			v, err := c.parser.ReadString()
			if err != nil {
				return err
			}
			col.RemoteID = v
		case "REMOTEREVISION":
			v, err := c.parser.ReadString()
			if err != nil {
				return err
			}
			col.RemoteRev = v
		case "MIMETYPE":
			v, err := c.parser.ReadList()
			if err != nil {
				return err
			}
			col.MimeTypes = v
		case "ENABLED":
			v, err := c.parser.ReadAtom()
			if err != nil {
				return err
			}
			col.Enabled = v == "1" || v == "true"
		case "SYNC":
			v, err := c.parser.ReadAtom()
			if err != nil {
				return err
			}
			col.Sync = v == "1" || v == "true"
		case "DISPLAY":
			v, err := c.parser.ReadAtom()
			if err != nil {
				return err
			}
			col.Display = v == "1" || v == "true"
		case "INDEX":
			v, err := c.parser.ReadAtom()
			if err != nil {
				return err
			}
			col.Index = v == "1" || v == "true"
		case "PARENT":
			v, err := c.parser.ReadAtom()
			if err != nil {
				return err
			}
			id, err := parseID(v)
			if err != nil {
				return err
			}
			col.ParentID = &id
		default:
			// Unrecognized attribute keywords are skipped rather than
			// rejected, since the wire grammar allows server-specific
			// extensions here.
			if _, err := c.parser.ReadString(); err != nil {
				return err
			}
		}
	}
	return nil
}

func handleCollectionCreate(ctx context.Context, c *Conn, tag string) error {
	if err := c.ctx.RequireResource(); err != nil {
		return err
	}
	name, err := c.parser.ReadString()
	if err != nil {
		return protoerr.Wrap(protoerr.Protocol, "COLLECTIONCREATE: missing name", err)
	}
	col := &types.Collection{
		Name:       name,
		ResourceID: c.ctx.ResourceID,
		Enabled:    true,
		Sync:       true,
		Display:    true,
		Index:      true,
	}
	if !c.parser.AtLineEnd() {
		if err := applyCollectionArgs(ctx, c, col); err != nil {
			return err
		}
	}

	return withTx(ctx, c.session, func() error {
		id, err := c.session.CreateCollection(ctx, col)
		if err != nil {
			return err
		}
		col.ID = id
		c.collector.CollectionAdded(col)
		return nil
	})
}

func handleCollectionModify(ctx context.Context, c *Conn, tag string) error {
	idTok, err := c.parser.ReadAtom()
	if err != nil {
		return protoerr.Wrap(protoerr.Protocol, "COLLECTIONMODIFY: missing id", err)
	}
	id, err := parseID(idTok)
	if err != nil {
		return err
	}

	return withTx(ctx, c.session, func() error {
		col, err := c.session.GetCollection(ctx, id)
		if err != nil {
			return classify(err)
		}
		if err := applyCollectionArgs(ctx, c, col); err != nil {
			return err
		}
		if err := c.session.UpdateCollection(ctx, col); err != nil {
			return err
		}
		c.collector.CollectionChanged(col)
		return nil
	})
}

func handleCollectionDelete(ctx context.Context, c *Conn, tag string) error {
	idTok, err := c.parser.ReadAtom()
	if err != nil {
		return protoerr.Wrap(protoerr.Protocol, "COLLECTIONDELETE: missing id", err)
	}
	id, err := parseID(idTok)
	if err != nil {
		return err
	}

	return withTx(ctx, c.session, func() error {
		col, err := c.session.GetCollection(ctx, id)
		if err != nil {
			return classify(err)
		}
		if err := c.session.DeleteCollection(ctx, id); err != nil {
			return err
		}
		if col.Virtual && c.deps.Search != nil {
			if err := c.deps.Search.RemoveSearch(ctx, id, ""); err != nil {
				c.logger.Warn().Err(err).Int64("collection", id).Msg("collectiondelete: tear down search registration")
			}
		}
		c.collector.CollectionRemoved(col)
		return nil
	})
}

func handleCollectionMove(ctx context.Context, c *Conn, tag string) error {
	idTok, err := c.parser.ReadAtom()
	if err != nil {
		return protoerr.Wrap(protoerr.Protocol, "COLLECTIONMOVE: missing id", err)
	}
	id, err := parseID(idTok)
	if err != nil {
		return err
	}
	destTok, err := c.parser.ReadAtom()
	if err != nil {
		return protoerr.Wrap(protoerr.Protocol, "COLLECTIONMOVE: missing destination", err)
	}
	destID, err := parseID(destTok)
	if err != nil {
		return err
	}

	return withTx(ctx, c.session, func() error {
		col, err := c.session.GetCollection(ctx, id)
		if err != nil {
			return classify(err)
		}
		col.ParentID = &destID
		if err := c.session.UpdateCollection(ctx, col); err != nil {
			return err
		}
		c.collector.CollectionChanged(col)
		return nil
	})
}

func handleCollectionList(ctx context.Context, c *Conn, tag string) error {
	baseTok, err := c.parser.ReadAtom()
	if err != nil {
		return protoerr.Wrap(protoerr.Protocol, "COLLECTIONLIST: missing base", err)
	}

	var cols []*types.Collection
	if baseTok == "0" {
		cols, err = c.session.ListChildCollections(ctx, nil)
	} else {
		id, perr := parseID(baseTok)
		if perr != nil {
			return perr
		}
		cols, err = c.session.ListChildCollections(ctx, &id)
	}
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		return err
	}

	for _, col := range cols {
		c.emit(formatCollectionLine(col))
	}
	return nil
}

func formatCollectionLine(col *types.Collection) string {
	parent := int64(0)
	if col.ParentID != nil {
		parent = *col.ParentID
	}
	return fmt.Sprintf("COLLECTIONLIST %d %d (NAME %q)", col.ID, parent, col.Name)
}
