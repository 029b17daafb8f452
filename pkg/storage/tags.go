package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/cuemby/akonadid/pkg/types"
)

// ListTags lists every known tag, used by TAGFETCH without a filter.
func (s *Session) ListTags(ctx context.Context) ([]*types.Tag, error) {
	rows, err := s.exec().QueryContext(ctx, `SELECT id, name FROM tags ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("storage: list tags: %w", err)
	}
	defer rows.Close()
	var out []*types.Tag
	for rows.Next() {
		var t types.Tag
		if err := rows.Scan(&t.ID, &t.Name); err != nil {
			return nil, err
		}
		out = append(out, &t)
	}
	return out, rows.Err()
}

// GetTag resolves a tag by id, used to render TAGFETCH responses.
func (s *Session) GetTag(ctx context.Context, id int64) (*types.Tag, error) {
	row := s.exec().QueryRowContext(ctx, `SELECT id, name FROM tags WHERE id = ?`, id)
	var t types.Tag
	err := row.Scan(&t.ID, &t.Name)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("storage: tag %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// DeleteTag removes a tag definition and every item's link to it, as
// TAGREMOVE does.
func (s *Session) DeleteTag(ctx context.Context, id int64) error {
	ex := s.exec()
	if _, err := ex.ExecContext(ctx, `DELETE FROM item_tags WHERE tag_id = ?`, id); err != nil {
		return fmt.Errorf("storage: unlink tag %d: %w", id, err)
	}
	res, err := ex.ExecContext(ctx, `DELETE FROM tags WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("storage: delete tag %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("storage: tag %d: %w", id, ErrNotFound)
	}
	return nil
}
