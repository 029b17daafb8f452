package storage

import (
	"database/sql"
	"context"
	"fmt"

	"github.com/cuemby/akonadid/pkg/types"
)

const itemColumns = `id, collection_id, mime_type, remote_id, size, flags, hidden`

func scanItem(row interface{ Scan(dest ...any) error }) (*types.PimItem, error) {
	var it types.PimItem
	var flags string
	if err := row.Scan(&it.ID, &it.CollectionID, &it.MimeType, &it.RemoteID, &it.Size, &flags, &it.Hidden); err != nil {
		return nil, err
	}
	it.Flags = splitString(flags)
	return &it, nil
}

// CreateItem inserts a new PimItem together with its initial parts, as
// APPEND does in one call.
func (s *Session) CreateItem(ctx context.Context, item *types.PimItem, parts []*types.Part) (int64, error) {
	ex := s.exec()
	row := ex.QueryRowContext(ctx,
		`INSERT INTO pim_items (collection_id, mime_type, remote_id, size, flags, hidden)
		 VALUES (?, ?, ?, ?, ?, ?) RETURNING id`,
		item.CollectionID, item.MimeType, item.RemoteID, item.Size, joinStrings(item.Flags), item.Hidden)
	var id int64
	if err := row.Scan(&id); err != nil {
		return 0, fmt.Errorf("storage: insert item: %w", err)
	}

	for _, p := range parts {
		p.ItemID = id
		if _, err := s.UpsertPart(ctx, p); err != nil {
			return 0, err
		}
	}
	for _, tagID := range item.Tags {
		if _, err := ex.ExecContext(ctx, `INSERT INTO item_tags (item_id, tag_id) VALUES (?, ?)`, id, tagID); err != nil {
			return 0, fmt.Errorf("storage: tag item %d: %w", id, err)
		}
	}
	return id, nil
}

// GetItem fetches one item by id, including its tag set.
func (s *Session) GetItem(ctx context.Context, id int64) (*types.PimItem, error) {
	ex := s.exec()
	row := ex.QueryRowContext(ctx, fmt.Sprintf(`SELECT %s FROM pim_items WHERE id = ?`, itemColumns), id)
	it, err := scanItem(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("storage: item %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("storage: get item %d: %w", id, err)
	}
	it.Tags, err = s.itemTagIDs(ctx, id)
	if err != nil {
		return nil, err
	}
	return it, nil
}

func (s *Session) itemTagIDs(ctx context.Context, itemID int64) ([]int64, error) {
	rows, err := s.exec().QueryContext(ctx, `SELECT tag_id FROM item_tags WHERE item_id = ?`, itemID)
	if err != nil {
		return nil, fmt.Errorf("storage: list tags for item %d: %w", itemID, err)
	}
	defer rows.Close()
	var out []int64
	for rows.Next() {
		var tagID int64
		if err := rows.Scan(&tagID); err != nil {
			return nil, err
		}
		out = append(out, tagID)
	}
	return out, rows.Err()
}

// GetItemByRemoteID resolves an item via its collection-scoped remote
// id, used by the RID addressing scope.
func (s *Session) GetItemByRemoteID(ctx context.Context, collectionID int64, remoteID string) (*types.PimItem, error) {
	row := s.exec().QueryRowContext(ctx,
		fmt.Sprintf(`SELECT %s FROM pim_items WHERE collection_id = ? AND remote_id = ?`, itemColumns),
		collectionID, remoteID)
	it, err := scanItem(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("storage: item collection=%d remote=%q: %w", collectionID, remoteID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return it, nil
}

// GetItemsByTag resolves the set of items carrying a given tag, used by
// the TAG addressing scope.
func (s *Session) GetItemsByTag(ctx context.Context, tagID int64) ([]*types.PimItem, error) {
	rows, err := s.exec().QueryContext(ctx,
		fmt.Sprintf(`SELECT %s FROM pim_items WHERE id IN (SELECT item_id FROM item_tags WHERE tag_id = ?)`, itemColumns),
		tagID)
	if err != nil {
		return nil, fmt.Errorf("storage: items by tag %d: %w", tagID, err)
	}
	defer rows.Close()
	var out []*types.PimItem
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// ListItems lists every item in a collection, in id order so UID
// item-set ranges (e.g. "1:*") resolve predictably.
func (s *Session) ListItems(ctx context.Context, collectionID int64) ([]*types.PimItem, error) {
	rows, err := s.exec().QueryContext(ctx,
		fmt.Sprintf(`SELECT %s FROM pim_items WHERE collection_id = ? ORDER BY id`, itemColumns), collectionID)
	if err != nil {
		return nil, fmt.Errorf("storage: list items in collection %d: %w", collectionID, err)
	}
	defer rows.Close()
	var out []*types.PimItem
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// OrphanItems lists items whose collection row no longer exists, used
// by the janitor's orphan-items sweep.
func (s *Session) OrphanItems(ctx context.Context) ([]*types.PimItem, error) {
	rows, err := s.exec().QueryContext(ctx, fmt.Sprintf(
		`SELECT %s FROM pim_items WHERE collection_id NOT IN (SELECT id FROM collections)`, itemColumns))
	if err != nil {
		return nil, fmt.Errorf("storage: orphan items: %w", err)
	}
	defer rows.Close()
	var out []*types.PimItem
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// UpdateItemFlags overwrites an item's flag set, as STORE FLAGS does.
func (s *Session) UpdateItemFlags(ctx context.Context, id int64, flags []string) error {
	_, err := s.exec().ExecContext(ctx, `UPDATE pim_items SET flags = ? WHERE id = ?`, joinStrings(flags), id)
	if err != nil {
		return fmt.Errorf("storage: update flags for item %d: %w", id, err)
	}
	return nil
}

// UpdateItemTags overwrites an item's tag set, as TAGSTORE does.
func (s *Session) UpdateItemTags(ctx context.Context, id int64, tagIDs []int64) error {
	ex := s.exec()
	if _, err := ex.ExecContext(ctx, `DELETE FROM item_tags WHERE item_id = ?`, id); err != nil {
		return fmt.Errorf("storage: clear tags for item %d: %w", id, err)
	}
	for _, tagID := range tagIDs {
		if _, err := ex.ExecContext(ctx, `INSERT INTO item_tags (item_id, tag_id) VALUES (?, ?)`, id, tagID); err != nil {
			return fmt.Errorf("storage: tag item %d with %d: %w", id, tagID, err)
		}
	}
	return nil
}

// MoveItem reassigns an item to a new collection, as MOVE does.
func (s *Session) MoveItem(ctx context.Context, id, newCollectionID int64) error {
	_, err := s.exec().ExecContext(ctx, `UPDATE pim_items SET collection_id = ? WHERE id = ?`, newCollectionID, id)
	if err != nil {
		return fmt.Errorf("storage: move item %d: %w", id, err)
	}
	return nil
}

// DeleteItem removes an item, its parts, its tag links, its relations,
// and its search memberships.
func (s *Session) DeleteItem(ctx context.Context, id int64) error {
	ex := s.exec()
	if _, err := ex.ExecContext(ctx, `DELETE FROM parts WHERE item_id = ?`, id); err != nil {
		return fmt.Errorf("storage: delete parts for item %d: %w", id, err)
	}
	if _, err := ex.ExecContext(ctx, `DELETE FROM item_tags WHERE item_id = ?`, id); err != nil {
		return fmt.Errorf("storage: delete tag links for item %d: %w", id, err)
	}
	if _, err := ex.ExecContext(ctx, `DELETE FROM relations WHERE left_id = ? OR right_id = ?`, id, id); err != nil {
		return fmt.Errorf("storage: delete relations for item %d: %w", id, err)
	}
	if _, err := ex.ExecContext(ctx, `DELETE FROM collection_item_relation WHERE item_id = ?`, id); err != nil {
		return fmt.Errorf("storage: delete search membership for item %d: %w", id, err)
	}
	if _, err := ex.ExecContext(ctx, `DELETE FROM pim_items WHERE id = ?`, id); err != nil {
		return fmt.Errorf("storage: delete item %d: %w", id, err)
	}
	return nil
}
