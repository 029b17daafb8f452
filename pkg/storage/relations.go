package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/cuemby/akonadid/pkg/types"
)

// CreateRelation inserts a directed typed link. (left, right, type) is
// unique; a duplicate insert is reported to the caller as a constraint
// violation so RELATIONSTORE can surface it as tagged NO, not silently
// ignored.
func (s *Session) CreateRelation(ctx context.Context, r *types.Relation) error {
	_, err := s.exec().ExecContext(ctx,
		`INSERT INTO relations (left_id, right_id, type_id, remote_id) VALUES (?, ?, ?, ?)`,
		r.LeftID, r.RightID, r.TypeID, r.RemoteID)
	if err != nil {
		return fmt.Errorf("storage: create relation (%d,%d,%d): %w", r.LeftID, r.RightID, r.TypeID, err)
	}
	return nil
}

// DeleteRelation removes exactly the (left, right, type) row.
func (s *Session) DeleteRelation(ctx context.Context, left, right, typeID int64) error {
	res, err := s.exec().ExecContext(ctx,
		`DELETE FROM relations WHERE left_id = ? AND right_id = ? AND type_id = ?`, left, right, typeID)
	if err != nil {
		return fmt.Errorf("storage: delete relation (%d,%d,%d): %w", left, right, typeID, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("storage: relation (%d,%d,%d): %w", left, right, typeID, ErrNotFound)
	}
	return nil
}

// DeleteRelationsByEnds removes every relation between left and right
// regardless of type, as RELATIONREMOVE without a TYPE does, returning
// the removed rows. RELATIONREMOVE follows it with one ModifyRelations
// notification per item side; no per-relation notification is emitted.
func (s *Session) DeleteRelationsByEnds(ctx context.Context, left, right int64) ([]*types.Relation, error) {
	rows, err := s.exec().QueryContext(ctx,
		`SELECT left_id, right_id, type_id, remote_id FROM relations WHERE left_id = ? AND right_id = ?`, left, right)
	if err != nil {
		return nil, fmt.Errorf("storage: list relations (%d,%d): %w", left, right, err)
	}
	var out []*types.Relation
	for rows.Next() {
		var r types.Relation
		var remoteID sql.NullString
		if err := rows.Scan(&r.LeftID, &r.RightID, &r.TypeID, &remoteID); err != nil {
			rows.Close()
			return nil, err
		}
		r.RemoteID = remoteID.String
		out = append(out, &r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if _, err := s.exec().ExecContext(ctx, `DELETE FROM relations WHERE left_id = ? AND right_id = ?`, left, right); err != nil {
		return nil, fmt.Errorf("storage: delete relations (%d,%d): %w", left, right, err)
	}
	return out, nil
}

// ListRelationsByType lists every relation of a given type, used by
// RELATIONFETCH TYPE.
func (s *Session) ListRelationsByType(ctx context.Context, typeID int64) ([]*types.Relation, error) {
	rows, err := s.exec().QueryContext(ctx,
		`SELECT left_id, right_id, type_id, remote_id FROM relations WHERE type_id = ?`, typeID)
	if err != nil {
		return nil, fmt.Errorf("storage: relations by type %d: %w", typeID, err)
	}
	defer rows.Close()
	var out []*types.Relation
	for rows.Next() {
		var r types.Relation
		var remoteID sql.NullString
		if err := rows.Scan(&r.LeftID, &r.RightID, &r.TypeID, &remoteID); err != nil {
			return nil, err
		}
		r.RemoteID = remoteID.String
		out = append(out, &r)
	}
	return out, rows.Err()
}
