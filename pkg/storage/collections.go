package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"github.com/cuemby/akonadid/pkg/types"
)

var qb = sq.StatementBuilder.PlaceholderFormat(sq.Question)

func joinInts(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprintf("%d", id)
	}
	return strings.Join(parts, ",")
}

func splitString(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

func joinStrings(ss []string) string {
	return strings.Join(ss, ",")
}

func parseInts(s string) []int64 {
	if s == "" {
		return nil
	}
	out := []int64{}
	for _, p := range strings.Split(s, ",") {
		var v int64
		fmt.Sscanf(p, "%d", &v)
		out = append(out, v)
	}
	return out
}

// CreateCollection inserts a new Collection row and returns its id.
func (s *Session) CreateCollection(ctx context.Context, c *types.Collection) (int64, error) {
	q := qb.Insert("collections").
		Columns("parent_id", "resource_id", "name", "remote_id", "remote_rev",
			"mime_types", "cache_inherit", "cache_check_interval_min", "cache_timeout_min",
			"cache_sync_on_demand", "cache_local_parts", "enabled", "sync_pref", "display_pref",
			"index_pref", "virtual", "query_string", "query_attributes", "query_collections").
		Values(c.ParentID, c.ResourceID, c.Name, c.RemoteID, c.RemoteRev,
			joinStrings(c.MimeTypes), c.CachePolicy.Inherit, c.CachePolicy.CheckIntervalMin,
			c.CachePolicy.CacheTimeoutMin, c.CachePolicy.SyncOnDemand, joinStrings(c.CachePolicy.LocalParts),
			c.Enabled, c.Sync, c.Display, c.Index, c.Virtual, c.QueryString, c.QueryAttributes,
			joinInts(c.QueryCollections)).
		Suffix("RETURNING id")

	query, args, err := q.ToSql()
	if err != nil {
		return 0, fmt.Errorf("storage: build insert collection: %w", err)
	}
	var id int64
	if err := s.exec().QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		return 0, fmt.Errorf("storage: insert collection: %w", err)
	}
	return id, nil
}

func scanCollection(row interface {
	Scan(dest ...any) error
}) (*types.Collection, error) {
	var c types.Collection
	var parentID sql.NullInt64
	var mimeTypes, localParts, queryCollections string

	err := row.Scan(&c.ID, &parentID, &c.ResourceID, &c.Name, &c.RemoteID, &c.RemoteRev,
		&mimeTypes, &c.CachePolicy.Inherit, &c.CachePolicy.CheckIntervalMin, &c.CachePolicy.CacheTimeoutMin,
		&c.CachePolicy.SyncOnDemand, &localParts, &c.Enabled, &c.Sync, &c.Display, &c.Index,
		&c.Virtual, &c.QueryString, &c.QueryAttributes, &queryCollections)
	if err != nil {
		return nil, err
	}
	if parentID.Valid {
		v := parentID.Int64
		c.ParentID = &v
	}
	c.MimeTypes = splitString(mimeTypes)
	c.CachePolicy.LocalParts = splitString(localParts)
	c.QueryCollections = parseInts(queryCollections)
	return &c, nil
}

const collectionColumns = `id, parent_id, resource_id, name, remote_id, remote_rev, mime_types,
	cache_inherit, cache_check_interval_min, cache_timeout_min, cache_sync_on_demand, cache_local_parts,
	enabled, sync_pref, display_pref, index_pref, virtual, query_string, query_attributes, query_collections`

// GetCollection fetches one collection by id.
func (s *Session) GetCollection(ctx context.Context, id int64) (*types.Collection, error) {
	query := fmt.Sprintf(`SELECT %s FROM collections WHERE id = ?`, collectionColumns)
	row := s.exec().QueryRowContext(ctx, query, id)
	c, err := scanCollection(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("storage: collection %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("storage: get collection %d: %w", id, err)
	}
	return c, nil
}

// GetCollectionByRemoteID resolves a collection via its resource-scoped
// remote id, used by SELECT's RID scope.
func (s *Session) GetCollectionByRemoteID(ctx context.Context, resourceID int64, remoteID string) (*types.Collection, error) {
	query := fmt.Sprintf(`SELECT %s FROM collections WHERE resource_id = ? AND remote_id = ?`, collectionColumns)
	row := s.exec().QueryRowContext(ctx, query, resourceID, remoteID)
	c, err := scanCollection(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("storage: collection resource=%d remote=%q: %w", resourceID, remoteID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("storage: get collection by remote id: %w", err)
	}
	return c, nil
}

// GetChildCollectionByRemoteID resolves one path segment of an HRID
// lookup: the child of parentID (nil for a root collection) with the
// given remote id. A resourceID of 0 matches a root of any resource; if
// several match, which one is returned is not defined.
func (s *Session) GetChildCollectionByRemoteID(ctx context.Context, resourceID int64, parentID *int64, remoteID string) (*types.Collection, error) {
	b := newCollectionQuery().Where(sq.Eq{"remote_id": remoteID})
	if resourceID != 0 {
		b = b.Where(sq.Eq{"resource_id": resourceID})
	}
	if parentID == nil {
		b = b.Where("parent_id IS NULL")
	} else {
		b = b.Where(sq.Eq{"parent_id": *parentID})
	}
	query, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}
	row := s.exec().QueryRowContext(ctx, query, args...)
	c, err := scanCollection(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("storage: child collection remote=%q: %w", remoteID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

func newCollectionQuery() sq.SelectBuilder {
	return sq.Select(collectionColumns).From("collections").PlaceholderFormat(sq.Question)
}

// ListChildCollections lists the direct children of parentID (or every
// root collection, if parentID is nil).
func (s *Session) ListChildCollections(ctx context.Context, parentID *int64) ([]*types.Collection, error) {
	b := sq.Select(collectionColumns).From("collections")
	if parentID == nil {
		b = b.Where("parent_id IS NULL")
	} else {
		b = b.Where(sq.Eq{"parent_id": *parentID})
	}
	b = b.PlaceholderFormat(sq.Question)
	return s.queryCollections(ctx, b)
}

// ListCollectionsByResource lists every collection owned by a resource.
func (s *Session) ListCollectionsByResource(ctx context.Context, resourceID int64) ([]*types.Collection, error) {
	b := sq.Select(collectionColumns).From("collections").Where(sq.Eq{"resource_id": resourceID}).
		PlaceholderFormat(sq.Question)
	return s.queryCollections(ctx, b)
}

// AllCollections lists every collection, used by janitor sweeps.
func (s *Session) AllCollections(ctx context.Context) ([]*types.Collection, error) {
	b := sq.Select(collectionColumns).From("collections").PlaceholderFormat(sq.Question)
	return s.queryCollections(ctx, b)
}

func (s *Session) queryCollections(ctx context.Context, b sq.SelectBuilder) ([]*types.Collection, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("storage: build collection query: %w", err)
	}
	rows, err := s.exec().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("storage: query collections: %w", err)
	}
	defer rows.Close()

	var out []*types.Collection
	for rows.Next() {
		c, err := scanCollection(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: scan collection: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// UpdateCollection writes back every mutable attribute of c.
func (s *Session) UpdateCollection(ctx context.Context, c *types.Collection) error {
	query := `UPDATE collections SET parent_id=?, name=?, remote_id=?, remote_rev=?, mime_types=?,
		cache_inherit=?, cache_check_interval_min=?, cache_timeout_min=?, cache_sync_on_demand=?, cache_local_parts=?,
		enabled=?, sync_pref=?, display_pref=?, index_pref=?, virtual=?, query_string=?, query_attributes=?,
		query_collections=? WHERE id=?`
	_, err := s.exec().ExecContext(ctx, query, c.ParentID, c.Name, c.RemoteID, c.RemoteRev, joinStrings(c.MimeTypes),
		c.CachePolicy.Inherit, c.CachePolicy.CheckIntervalMin, c.CachePolicy.CacheTimeoutMin, c.CachePolicy.SyncOnDemand,
		joinStrings(c.CachePolicy.LocalParts), c.Enabled, c.Sync, c.Display, c.Index, c.Virtual, c.QueryString,
		c.QueryAttributes, joinInts(c.QueryCollections), c.ID)
	if err != nil {
		return fmt.Errorf("storage: update collection %d: %w", c.ID, err)
	}
	return nil
}

// DeleteCollection removes a collection and cascades to its items,
// parts, and search memberships, as COLLECTIONDELETE does.
func (s *Session) DeleteCollection(ctx context.Context, id int64) error {
	ex := s.exec()
	rows, err := ex.QueryContext(ctx, `SELECT id FROM pim_items WHERE collection_id = ?`, id)
	if err != nil {
		return fmt.Errorf("storage: list items for cascade delete: %w", err)
	}
	var itemIDs []int64
	for rows.Next() {
		var iid int64
		if err := rows.Scan(&iid); err != nil {
			rows.Close()
			return err
		}
		itemIDs = append(itemIDs, iid)
	}
	rows.Close()

	for _, iid := range itemIDs {
		if err := s.DeleteItem(ctx, iid); err != nil {
			return err
		}
	}

	if _, err := ex.ExecContext(ctx, `DELETE FROM collection_item_relation WHERE collection_id = ?`, id); err != nil {
		return fmt.Errorf("storage: delete search membership for collection %d: %w", id, err)
	}
	if _, err := ex.ExecContext(ctx, `DELETE FROM collections WHERE id = ?`, id); err != nil {
		return fmt.Errorf("storage: delete collection %d: %w", id, err)
	}
	return nil
}
