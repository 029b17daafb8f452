package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/cuemby/akonadid/pkg/types"
)

// GetResourceByName resolves a resource's id by name, without creating
// it (RESSELECT uses GetOrCreateResource instead).
func (s *Session) GetResourceByName(ctx context.Context, name string) (*types.Resource, error) {
	row := s.exec().QueryRowContext(ctx, `SELECT id, name FROM resources WHERE name = ?`, name)
	var r types.Resource
	err := row.Scan(&r.ID, &r.Name)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("storage: resource %q: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// GetResource resolves a resource by id.
func (s *Session) GetResource(ctx context.Context, id int64) (*types.Resource, error) {
	row := s.exec().QueryRowContext(ctx, `SELECT id, name FROM resources WHERE id = ?`, id)
	var r types.Resource
	err := row.Scan(&r.ID, &r.Name)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("storage: resource %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}
