package storage

import (
	"context"
	"fmt"

	"github.com/cuemby/akonadid/pkg/types"
)

// AddSearchHit records that itemID now belongs to the virtual
// collection's membership, as pkg/search does on an indexer hitsAdded
// event.
func (s *Session) AddSearchHit(ctx context.Context, collectionID, itemID int64) error {
	_, err := s.exec().ExecContext(ctx,
		`INSERT INTO collection_item_relation (collection_id, item_id) VALUES (?, ?)
		 ON CONFLICT (collection_id, item_id) DO NOTHING`, collectionID, itemID)
	if err != nil {
		return fmt.Errorf("storage: add search hit (%d,%d): %w", collectionID, itemID, err)
	}
	return nil
}

// RemoveSearchHit reverses AddSearchHit, as a hitsRemoved event does.
func (s *Session) RemoveSearchHit(ctx context.Context, collectionID, itemID int64) error {
	_, err := s.exec().ExecContext(ctx,
		`DELETE FROM collection_item_relation WHERE collection_id = ? AND item_id = ?`, collectionID, itemID)
	if err != nil {
		return fmt.Errorf("storage: remove search hit (%d,%d): %w", collectionID, itemID, err)
	}
	return nil
}

// ListSearchCollections lists every virtual (persistent search)
// collection.
func (s *Session) ListSearchCollections(ctx context.Context) ([]*types.Collection, error) {
	b := newCollectionQuery().Where("virtual = true")
	return s.queryCollections(ctx, b)
}

// SearchItemIDs lists the item ids currently belonging to a virtual
// collection's membership, in ascending id order.
func (s *Session) SearchItemIDs(ctx context.Context, collectionID int64) ([]int64, error) {
	rows, err := s.exec().QueryContext(ctx,
		`SELECT item_id FROM collection_item_relation WHERE collection_id = ? ORDER BY item_id`, collectionID)
	if err != nil {
		return nil, fmt.Errorf("storage: search item ids for collection %d: %w", collectionID, err)
	}
	defer rows.Close()
	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
