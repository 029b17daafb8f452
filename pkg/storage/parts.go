package storage

import (
	"database/sql"
	"context"
	"fmt"

	"github.com/cuemby/akonadid/pkg/types"
)

const partColumns = `id, item_id, part_type, data, external, path, datasize`

func scanPart(row interface{ Scan(dest ...any) error }) (*types.Part, error) {
	var p types.Part
	var data []byte
	var path sql.NullString
	if err := row.Scan(&p.ID, &p.ItemID, &p.Type, &data, &p.External, &path, &p.DataSize); err != nil {
		return nil, err
	}
	p.Data = data
	p.Path = path.String
	return &p, nil
}

// GetPart fetches one named part of an item. A Part row written by
// APPEND stays in place even if its data has been evicted (DataSize ==
// 0), which is what FETCH in pkg/protocol checks to decide whether the
// part must be requested from the resource.
func (s *Session) GetPart(ctx context.Context, itemID int64, partType string) (*types.Part, error) {
	row := s.exec().QueryRowContext(ctx,
		fmt.Sprintf(`SELECT %s FROM parts WHERE item_id = ? AND part_type = ?`, partColumns), itemID, partType)
	p, err := scanPart(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("storage: part %s on item %d: %w", partType, itemID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("storage: get part: %w", err)
	}
	return p, nil
}

// ListParts lists every part of an item, as FETCH's full-payload
// projection does.
func (s *Session) ListParts(ctx context.Context, itemID int64) ([]*types.Part, error) {
	rows, err := s.exec().QueryContext(ctx, fmt.Sprintf(`SELECT %s FROM parts WHERE item_id = ?`, partColumns), itemID)
	if err != nil {
		return nil, fmt.Errorf("storage: list parts for item %d: %w", itemID, err)
	}
	defer rows.Close()
	var out []*types.Part
	for rows.Next() {
		p, err := scanPart(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// UpsertPart creates or overwrites the named part of an item, as
// CreateItem does for each part APPEND supplies. The (item_id,
// part_type) pair is unique.
func (s *Session) UpsertPart(ctx context.Context, p *types.Part) (int64, error) {
	var path sql.NullString
	if p.External {
		path = sql.NullString{String: p.Path, Valid: true}
	}
	row := s.exec().QueryRowContext(ctx,
		`INSERT INTO parts (item_id, part_type, data, external, path, datasize)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (item_id, part_type) DO UPDATE SET
			data = EXCLUDED.data, external = EXCLUDED.external, path = EXCLUDED.path, datasize = EXCLUDED.datasize
		 RETURNING id`,
		p.ItemID, p.Type, p.Data, p.External, path, p.DataSize)
	var id int64
	if err := row.Scan(&id); err != nil {
		return 0, fmt.Errorf("storage: upsert part %s on item %d: %w", p.Type, p.ItemID, err)
	}
	p.ID = id
	return id, nil
}

// DeletePart removes a part row and returns its pre-delete state so a
// caller can unlink an external file after commit.
func (s *Session) DeletePart(ctx context.Context, id int64) (*types.Part, error) {
	row := s.exec().QueryRowContext(ctx, fmt.Sprintf(`SELECT %s FROM parts WHERE id = ?`, partColumns), id)
	p, err := scanPart(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("storage: part %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if _, err := s.exec().ExecContext(ctx, `DELETE FROM parts WHERE id = ?`, id); err != nil {
		return nil, fmt.Errorf("storage: delete part %d: %w", id, err)
	}
	return p, nil
}

// OrphanParts lists parts whose PimItem row no longer exists, used by
// the janitor's orphan-parts sweep.
func (s *Session) OrphanParts(ctx context.Context) ([]*types.Part, error) {
	rows, err := s.exec().QueryContext(ctx, fmt.Sprintf(
		`SELECT %s FROM parts WHERE item_id NOT IN (SELECT id FROM pim_items)`, partColumns))
	if err != nil {
		return nil, fmt.Errorf("storage: orphan parts: %w", err)
	}
	defer rows.Close()
	var out []*types.Part
	for rows.Next() {
		p, err := scanPart(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ExternalParts lists every part stored as an external file, used by
// the janitor's overlap and file-existence sweeps.
func (s *Session) ExternalParts(ctx context.Context) ([]*types.Part, error) {
	rows, err := s.exec().QueryContext(ctx, fmt.Sprintf(`SELECT %s FROM parts WHERE external = true`, partColumns))
	if err != nil {
		return nil, fmt.Errorf("storage: external parts: %w", err)
	}
	defer rows.Close()
	var out []*types.Part
	for rows.Next() {
		p, err := scanPart(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
