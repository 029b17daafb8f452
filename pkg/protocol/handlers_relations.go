package protocol

import (
	"context"
	"fmt"

	"github.com/cuemby/akonadid/pkg/notify"
	"github.com/cuemby/akonadid/pkg/protoerr"
	"github.com/cuemby/akonadid/pkg/types"
)

func handleRelationStore(ctx context.Context, c *Conn, tag string) error {
	leftTok, err := c.parser.ReadAtom()
	if err != nil {
		return protoerr.Wrap(protoerr.Protocol, "RELATIONSTORE: missing left id", err)
	}
	left, err := parseID(leftTok)
	if err != nil {
		return err
	}
	rightTok, err := c.parser.ReadAtom()
	if err != nil {
		return protoerr.Wrap(protoerr.Protocol, "RELATIONSTORE: missing right id", err)
	}
	right, err := parseID(rightTok)
	if err != nil {
		return err
	}
	typeName, err := c.parser.ReadString()
	if err != nil {
		return protoerr.Wrap(protoerr.Protocol, "RELATIONSTORE: missing type", err)
	}
	remoteID := ""
	if !c.parser.AtLineEnd() {
		remoteID, err = c.parser.ReadString()
		if err != nil {
			return err
		}
	}

	return withTx(ctx, c.session, func() error {
		typeID, err := c.session.GetOrCreateRelationType(ctx, typeName)
		if err != nil {
			return err
		}
		rel := &types.Relation{LeftID: left, RightID: right, TypeID: typeID, RemoteID: remoteID}
		if err := c.session.CreateRelation(ctx, rel); err != nil {
			return protoerr.Wrap(protoerr.Constraint, "RELATIONSTORE: duplicate relation", err)
		}

		leftItem, err := c.session.GetItem(ctx, left)
		if err != nil {
			return classify(err)
		}
		rightItem, err := c.session.GetItem(ctx, right)
		if err != nil {
			return classify(err)
		}
		meta := notify.Meta{CollectionID: leftItem.CollectionID, MimeType: leftItem.MimeType}
		c.collector.ItemModifyRelations(leftItem, meta, true, []string{typeName})
		meta2 := notify.Meta{CollectionID: rightItem.CollectionID, MimeType: rightItem.MimeType}
		c.collector.ItemModifyRelations(rightItem, meta2, true, []string{typeName})
		return nil
	})
}

func handleRelationRemove(ctx context.Context, c *Conn, tag string) error {
	leftTok, err := c.parser.ReadAtom()
	if err != nil {
		return protoerr.Wrap(protoerr.Protocol, "RELATIONREMOVE: missing left id", err)
	}
	left, err := parseID(leftTok)
	if err != nil {
		return err
	}
	rightTok, err := c.parser.ReadAtom()
	if err != nil {
		return protoerr.Wrap(protoerr.Protocol, "RELATIONREMOVE: missing right id", err)
	}
	right, err := parseID(rightTok)
	if err != nil {
		return err
	}

	var typeName string
	haveType := !c.parser.AtLineEnd()
	if haveType {
		typeName, err = c.parser.ReadString()
		if err != nil {
			return err
		}
	}

	return withTx(ctx, c.session, func() error {
		var typeNames []string
		if haveType {
			typeID, err := c.session.GetOrCreateRelationType(ctx, typeName)
			if err != nil {
				return err
			}
			if err := c.session.DeleteRelation(ctx, left, right, typeID); err != nil {
				return err
			}
			typeNames = []string{typeName}
		} else {
			removed, err := c.session.DeleteRelationsByEnds(ctx, left, right)
			if err != nil {
				return err
			}
			seen := make(map[int64]bool, len(removed))
			for _, r := range removed {
				if seen[r.TypeID] {
					continue
				}
				seen[r.TypeID] = true
				name, err := c.session.RelationTypeName(ctx, r.TypeID)
				if err != nil {
					return err
				}
				typeNames = append(typeNames, name)
			}
		}

		leftItem, err := c.session.GetItem(ctx, left)
		if err != nil {
			return classify(err)
		}
		rightItem, err := c.session.GetItem(ctx, right)
		if err != nil {
			return classify(err)
		}
		meta := notify.Meta{CollectionID: leftItem.CollectionID, MimeType: leftItem.MimeType}
		c.collector.ItemModifyRelations(leftItem, meta, true, typeNames)
		meta2 := notify.Meta{CollectionID: rightItem.CollectionID, MimeType: rightItem.MimeType}
		c.collector.ItemModifyRelations(rightItem, meta2, true, typeNames)
		return nil
	})
}

func handleRelationFetch(ctx context.Context, c *Conn, tag string) error {
	typeName, err := c.parser.ReadString()
	if err != nil {
		return protoerr.Wrap(protoerr.Protocol, "RELATIONFETCH: missing type", err)
	}
	typeID, err := c.session.GetOrCreateRelationType(ctx, typeName)
	if err != nil {
		return err
	}
	rels, err := c.session.ListRelationsByType(ctx, typeID)
	if err != nil {
		return err
	}
	for _, r := range rels {
		c.emit(formatRelationLine(r, typeName))
	}
	return nil
}

func formatRelationLine(r *types.Relation, typeName string) string {
	return fmt.Sprintf("RELATIONFETCH %d %d %s", r.LeftID, r.RightID, typeName)
}
