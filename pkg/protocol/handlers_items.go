package protocol

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cuemby/akonadid/pkg/notify"
	"github.com/cuemby/akonadid/pkg/protoerr"
	"github.com/cuemby/akonadid/pkg/storage"
	"github.com/cuemby/akonadid/pkg/types"
)

// externalPayloadThreshold is the part size above which APPEND writes
// the data to an external file instead of the parts table, matching
// Akonadi's historical SizeThreshold default.
const externalPayloadThreshold = 4096

// parseItemSet consumes an optional scope keyword (UID/RID/HRID/GID/TAG)
// followed by its set expression, or — with no scope keyword present —
// treats the next token itself as a UID set against the selected
// collection, the default scope per the wire grammar.
func parseItemSet(ctx context.Context, c *Conn) ([]int64, error) {
	tok, err := c.parser.ReadAtom()
	if err != nil {
		return nil, err
	}
	kind, isScope := ParseScopeKind(tok)
	var raw string
	if isScope {
		raw, err = c.parser.ReadString()
		if err != nil {
			return nil, err
		}
	} else {
		kind = ScopeUID
		raw = tok
	}
	return ResolveItems(ctx, c.session, kind, c.ctx.SelectedCollectionID, raw)
}

func resourceNameForItem(ctx context.Context, s *storage.Session, item *types.PimItem) (int64, string, error) {
	col, err := s.GetCollection(ctx, item.CollectionID)
	if err != nil {
		return 0, "", err
	}
	res, err := s.GetResource(ctx, col.ResourceID)
	if err != nil {
		return 0, "", err
	}
	return col.ResourceID, res.Name, nil
}

// buildPart turns raw part data into the Part row APPEND and X-AKAPPEND
// write: stored inline below externalPayloadThreshold, written out to
// the payload store and referenced by filename above it.
func (c *Conn) buildPart(typeName string, data []byte) (*types.Part, error) {
	if c.deps.Payload != nil && int64(len(data)) > externalPayloadThreshold {
		name, size, err := c.deps.Payload.WriteFrom(bytes.NewReader(data))
		if err != nil {
			return nil, protoerr.Wrap(protoerr.DatabaseIO, "external payload write failed", err)
		}
		return &types.Part{Type: typeName, External: true, Path: name, DataSize: size}, nil
	}
	return &types.Part{Type: typeName, Data: data, DataSize: int64(len(data))}, nil
}

func handleAppend(ctx context.Context, c *Conn, tag string) error {
	if err := c.ctx.RequireState(StateSelected); err != nil {
		return err
	}
	mimeType, err := c.parser.ReadString()
	if err != nil {
		return protoerr.Wrap(protoerr.Protocol, "APPEND: missing mime type", err)
	}
	flags, err := c.parser.ReadList()
	if err != nil {
		return protoerr.Wrap(protoerr.Protocol, "APPEND: missing flags list", err)
	}
	remoteID := ""
	if !c.parser.AtLineEnd() {
		remoteID, err = c.parser.ReadString()
		if err != nil {
			return err
		}
	}

	var parts []*types.Part
	if !c.parser.AtLineEnd() {
		names, err := c.parser.ReadList()
		if err != nil {
			return err
		}
		for _, n := range names {
			data, err := c.parser.ReadString()
			if err != nil {
				return err
			}
			part, err := c.buildPart(n, []byte(data))
			if err != nil {
				return err
			}
			parts = append(parts, part)
		}
	}

	item := &types.PimItem{
		CollectionID: c.ctx.SelectedCollectionID,
		MimeType:     mimeType,
		RemoteID:     remoteID,
		Flags:        flags,
	}

	var id int64
	err = withTx(ctx, c.session, func() error {
		var txErr error
		id, txErr = c.session.CreateItem(ctx, item, parts)
		if txErr != nil {
			return fmt.Errorf("APPEND: %w", txErr)
		}
		item.ID = id
		c.collector.ItemAdded(item, notify.Meta{CollectionID: item.CollectionID, MimeType: item.MimeType}, true)
		return nil
	})
	if err != nil {
		return err
	}

	c.emit(fmt.Sprintf("%d APPEND completed", id))
	return nil
}

func handleFetch(ctx context.Context, c *Conn, tag string) error {
	if err := c.ctx.RequireState(StateSelected); err != nil {
		return err
	}
	ids, err := parseItemSet(ctx, c)
	if err != nil {
		return err
	}
	var partNames []string
	if !c.parser.AtLineEnd() {
		partNames, err = c.parser.ReadList()
		if err != nil {
			return err
		}
	}

	for _, id := range ids {
		item, err := c.session.GetItem(ctx, id)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			return err
		}

		parts := make([]*types.Part, 0, len(partNames))
		for _, pn := range partNames {
			part, err := c.fetchPart(ctx, item, pn)
			if err != nil {
				// Degrade this part only; the rest of the FETCH proceeds.
				c.logger.Warn().Err(err).Int64("item", id).Str("part", pn).Msg("fetch: part unavailable")
				continue
			}
			if part != nil {
				parts = append(parts, part)
			}
		}
		c.emit(formatItemLine(item, parts))
	}
	return nil
}

// fetchPart returns a part's current row, triggering a retrieval RPC
// first if the row is present but empty (datasize=0, not external).
func (c *Conn) fetchPart(ctx context.Context, item *types.PimItem, partName string) (*types.Part, error) {
	part, err := c.session.GetPart(ctx, item.ID, partName)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if part.External {
		if c.deps.Payload == nil {
			return part, nil
		}
		data, err := c.deps.Payload.Read(part.Path)
		if err != nil {
			return nil, protoerr.Wrap(protoerr.DatabaseIO, "external payload read failed for part "+partName, err)
		}
		out := *part
		out.Data = data
		return &out, nil
	}
	if part.DataSize > 0 {
		return part, nil
	}
	if c.deps.Retrieval == nil {
		return part, nil
	}

	resourceID, resourceName, err := resourceNameForItem(ctx, c.session, item)
	_ = resourceID
	if err != nil {
		return nil, err
	}
	if err := c.deps.Retrieval.RequestItemDelivery(ctx, item.ID, item.RemoteID, item.MimeType, resourceName, []string{partName}); err != nil {
		return nil, protoerr.Wrap(protoerr.Retrieval, "retrieval failed for part "+partName, err)
	}
	return c.session.GetPart(ctx, item.ID, partName)
}

func formatItemLine(item *types.PimItem, parts []*types.Part) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d FETCH (UID %d MIMETYPE %s FLAGS (%s)", item.ID, item.ID, item.MimeType, strings.Join(item.Flags, " "))
	for _, p := range parts {
		fmt.Fprintf(&sb, " %s {%d}%s", p.Type, len(p.Data), string(p.Data))
	}
	sb.WriteString(")")
	return sb.String()
}

func handleStore(ctx context.Context, c *Conn, tag string) error {
	if err := c.ctx.RequireState(StateSelected); err != nil {
		return err
	}
	ids, err := parseItemSet(ctx, c)
	if err != nil {
		return err
	}
	op, err := c.parser.ReadAtom()
	if err != nil {
		return protoerr.Wrap(protoerr.Protocol, "STORE: missing operation", err)
	}
	values, err := c.parser.ReadList()
	if err != nil {
		return protoerr.Wrap(protoerr.Protocol, "STORE: missing value list", err)
	}

	return withTx(ctx, c.session, func() error {
		for _, id := range ids {
			item, err := c.session.GetItem(ctx, id)
			if err != nil {
				return classify(err)
			}
			switch strings.ToUpper(op) {
			case "FLAGS":
				item.Flags = values
			case "+FLAGS":
				item.Flags = unionStrings(item.Flags, values)
			case "-FLAGS":
				item.Flags = subtractStrings(item.Flags, values)
			default:
				return protoerr.Newf(protoerr.Protocol, "STORE: unknown operation %q", op)
			}
			if err := c.session.UpdateItemFlags(ctx, id, item.Flags); err != nil {
				return err
			}
			c.collector.ItemChanged(item, notify.Meta{CollectionID: item.CollectionID, MimeType: item.MimeType}, true, "FLAGS")
		}
		return nil
	})
}

func handleMove(ctx context.Context, c *Conn, tag string) error {
	ids, err := parseItemSet(ctx, c)
	if err != nil {
		return err
	}
	destTok, err := c.parser.ReadAtom()
	if err != nil {
		return protoerr.Wrap(protoerr.Protocol, "MOVE: missing destination collection", err)
	}
	destID, err := parseID(destTok)
	if err != nil {
		return err
	}

	return withTx(ctx, c.session, func() error {
		for _, id := range ids {
			item, err := c.session.GetItem(ctx, id)
			if err != nil {
				return classify(err)
			}
			oldCollection := item.CollectionID
			if err := c.session.MoveItem(ctx, id, destID); err != nil {
				return err
			}
			item.CollectionID = destID
			c.collector.ItemChanged(item, notify.Meta{CollectionID: oldCollection, MimeType: item.MimeType}, true)
		}
		return nil
	})
}

func handleRemove(ctx context.Context, c *Conn, tag string) error {
	ids, err := parseItemSet(ctx, c)
	if err != nil {
		return err
	}
	return withTx(ctx, c.session, func() error {
		var externalFiles []string
		for _, id := range ids {
			item, err := c.session.GetItem(ctx, id)
			if err != nil {
				if errors.Is(err, storage.ErrNotFound) {
					continue
				}
				return err
			}
			parts, err := c.session.ListParts(ctx, id)
			if err != nil {
				return err
			}
			for _, p := range parts {
				if p.External {
					externalFiles = append(externalFiles, p.Path)
				}
			}
			if err := c.session.DeleteItem(ctx, id); err != nil {
				return err
			}
			c.collector.ItemRemoved(item, notify.Meta{CollectionID: item.CollectionID, MimeType: item.MimeType})
		}
		if len(externalFiles) > 0 && c.deps.Payload != nil {
			c.session.OnCommit(func() {
				for _, name := range externalFiles {
					if err := c.deps.Payload.Delete(name); err != nil {
						c.logger.Warn().Err(err).Str("file", name).Msg("external payload delete failed")
					}
				}
			})
		}
		return nil
	})
}

func unionStrings(a, b []string) []string {
	seen := make(map[string]bool, len(a))
	out := append([]string{}, a...)
	for _, v := range a {
		seen[v] = true
	}
	for _, v := range b {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}

func subtractStrings(a, b []string) []string {
	remove := make(map[string]bool, len(b))
	for _, v := range b {
		remove[v] = true
	}
	out := make([]string, 0, len(a))
	for _, v := range a {
		if !remove[v] {
			out = append(out, v)
		}
	}
	return out
}
