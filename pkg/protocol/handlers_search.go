package protocol

import (
	"context"
	"strings"

	"github.com/cuemby/akonadid/pkg/protoerr"
	"github.com/cuemby/akonadid/pkg/search"
	"github.com/cuemby/akonadid/pkg/types"
)

// handleSearch runs a one-shot query against the item set already
// materialized under the selected collection, since there is no
// free-text query engine wired below the protocol layer: the query
// string is matched against each candidate item's mime type only.
func handleSearch(ctx context.Context, c *Conn, tag string) error {
	if err := c.ctx.RequireState(StateSelected); err != nil {
		return err
	}
	query, err := c.parser.ReadString()
	if err != nil {
		return protoerr.Wrap(protoerr.Protocol, "SEARCH: missing query", err)
	}

	items, err := c.session.ListItems(ctx, c.ctx.SelectedCollectionID)
	if err != nil {
		return err
	}
	for _, item := range items {
		if query == "" || strings.Contains(item.MimeType, query) {
			c.emit(formatItemLine(item, nil))
		}
	}
	return nil
}

// handleSearchStore creates a virtual collection under the dedicated
// search root and registers it as a live persistent search with the
// named search engine so future index hits populate it.
func handleSearchStore(ctx context.Context, c *Conn, tag string) error {
	name, err := c.parser.ReadString()
	if err != nil {
		return protoerr.Wrap(protoerr.Protocol, "SEARCH_STORE: missing name", err)
	}
	queryString, err := c.parser.ReadString()
	if err != nil {
		return protoerr.Wrap(protoerr.Protocol, "SEARCH_STORE: missing query", err)
	}
	language := "xesam"
	if !c.parser.AtLineEnd() {
		language, err = c.parser.ReadString()
		if err != nil {
			return err
		}
	}

	rootID := search.SearchRootID
	var id int64
	err = withTx(ctx, c.session, func() error {
		mimeTypes, merr := c.session.AllMimeTypeNames(ctx)
		if merr != nil {
			return merr
		}
		mimeTypes = excludeMimeType(mimeTypes, types.DirectoryMimeType)

		col := &types.Collection{
			ParentID:    &rootID,
			ResourceID:  search.SearchRootID,
			Name:        name,
			MimeTypes:   mimeTypes,
			Virtual:     true,
			Enabled:     true,
			Display:     true,
			QueryString: queryString,
		}
		var cerr error
		id, cerr = c.session.CreateCollection(ctx, col)
		if cerr != nil {
			return cerr
		}
		c.collector.CollectionAdded(col)
		return nil
	})
	if err != nil {
		return err
	}

	if c.deps.Search != nil {
		if err := c.deps.Search.AddSearch(ctx, id, queryString, language); err != nil {
			return protoerr.Wrap(protoerr.Retrieval, "SEARCH_STORE: engine registration failed", err)
		}
	}
	c.emit("SEARCH_STORE " + name)
	return nil
}

// handleSearchResult replaces the live query on an existing persistent
// search collection, re-registering it with the search engine.
func handleSearchResult(ctx context.Context, c *Conn, tag string) error {
	idTok, err := c.parser.ReadAtom()
	if err != nil {
		return protoerr.Wrap(protoerr.Protocol, "SEARCH_RESULT: missing collection id", err)
	}
	id, err := parseID(idTok)
	if err != nil {
		return err
	}
	queryString, err := c.parser.ReadString()
	if err != nil {
		return protoerr.Wrap(protoerr.Protocol, "SEARCH_RESULT: missing query", err)
	}
	language := "xesam"
	if !c.parser.AtLineEnd() {
		language, err = c.parser.ReadString()
		if err != nil {
			return err
		}
	}

	return withTx(ctx, c.session, func() error {
		col, err := c.session.GetCollection(ctx, id)
		if err != nil {
			return classify(err)
		}
		if !col.Virtual {
			return protoerr.Newf(protoerr.Protocol, "SEARCH_RESULT: collection %d is not a search", id)
		}
		col.QueryString = queryString
		if err := c.session.UpdateCollection(ctx, col); err != nil {
			return err
		}
		c.collector.CollectionChanged(col)
		if c.deps.Search != nil {
			if err := c.deps.Search.AddSearch(ctx, id, queryString, language); err != nil {
				return protoerr.Wrap(protoerr.Retrieval, "SEARCH_RESULT: engine registration failed", err)
			}
		}
		return nil
	})
}

func excludeMimeType(names []string, exclude string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if n != exclude {
			out = append(out, n)
		}
	}
	return out
}
