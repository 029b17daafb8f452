package protocol

import (
	"context"
	"fmt"

	"github.com/cuemby/akonadid/pkg/notify"
	"github.com/cuemby/akonadid/pkg/protoerr"
)

// handleTagAppend defines a new tag (or resolves an existing one of the
// same name) and emits its id on an untagged "TAGAPPEND <id>" line.
func handleTagAppend(ctx context.Context, c *Conn, tag string) error {
	name, err := c.parser.ReadString()
	if err != nil {
		return protoerr.Wrap(protoerr.Protocol, "TAGAPPEND: missing name", err)
	}
	id, err := c.session.GetOrCreateTag(ctx, name)
	if err != nil {
		return err
	}
	c.emit(fmt.Sprintf("TAGAPPEND %d", id))
	return nil
}

// handleTagStore replaces the tag set on an item set with the given tag
// names, creating any tag definitions that don't already exist.
func handleTagStore(ctx context.Context, c *Conn, tag string) error {
	if err := c.ctx.RequireState(StateSelected); err != nil {
		return err
	}
	ids, err := parseItemSet(ctx, c)
	if err != nil {
		return err
	}
	names, err := c.parser.ReadList()
	if err != nil {
		return protoerr.Wrap(protoerr.Protocol, "TAGSTORE: missing tag list", err)
	}

	return withTx(ctx, c.session, func() error {
		tagIDs := make([]int64, 0, len(names))
		for _, n := range names {
			tid, err := c.session.GetOrCreateTag(ctx, n)
			if err != nil {
				return err
			}
			tagIDs = append(tagIDs, tid)
		}
		for _, id := range ids {
			item, err := c.session.GetItem(ctx, id)
			if err != nil {
				return classify(err)
			}
			if err := c.session.UpdateItemTags(ctx, id, tagIDs); err != nil {
				return err
			}
			meta := notify.Meta{CollectionID: item.CollectionID, MimeType: item.MimeType}
			c.collector.ItemModifyTags(item, meta, true, names)
		}
		return nil
	})
}

// handleTagRemove deletes a tag definition outright, untagging every
// item that carried it.
func handleTagRemove(ctx context.Context, c *Conn, tag string) error {
	idTok, err := c.parser.ReadAtom()
	if err != nil {
		return protoerr.Wrap(protoerr.Protocol, "TAGREMOVE: missing id", err)
	}
	id, err := parseID(idTok)
	if err != nil {
		return err
	}
	return withTx(ctx, c.session, func() error {
		return c.session.DeleteTag(ctx, id)
	})
}

func handleTagFetch(ctx context.Context, c *Conn, tag string) error {
	if c.parser.AtLineEnd() {
		tags, err := c.session.ListTags(ctx)
		if err != nil {
			return err
		}
		for _, t := range tags {
			c.emit(fmt.Sprintf("TAGFETCH %d (NAME %q)", t.ID, t.Name))
		}
		return nil
	}

	idTok, err := c.parser.ReadAtom()
	if err != nil {
		return err
	}
	id, err := parseID(idTok)
	if err != nil {
		return err
	}
	t, err := c.session.GetTag(ctx, id)
	if err != nil {
		return classify(err)
	}
	c.emit(fmt.Sprintf("TAGFETCH %d (NAME %q)", t.ID, t.Name))
	return nil
}
