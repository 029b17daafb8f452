package storage

import (
	"context"
	"fmt"

	"github.com/cuemby/akonadid/pkg/types"
)

// OrphanCollections lists collections whose resource row is missing,
// the janitor's first consistency sweep.
func (s *Session) OrphanCollections(ctx context.Context) ([]*types.Collection, error) {
	b := newCollectionQuery().Where("resource_id NOT IN (SELECT id FROM resources)")
	return s.queryCollections(ctx, b)
}

// OverlappingExternalParts groups external parts by their on-disk
// filename, returning only filenames referenced by more than one Part
// row: each external file must belong to exactly one Part.
func (s *Session) OverlappingExternalParts(ctx context.Context) (map[string][]*types.Part, error) {
	parts, err := s.ExternalParts(ctx)
	if err != nil {
		return nil, fmt.Errorf("storage: overlapping external parts: %w", err)
	}
	byPath := make(map[string][]*types.Part)
	for _, p := range parts {
		byPath[p.Path] = append(byPath[p.Path], p)
	}
	for path, ps := range byPath {
		if len(ps) < 2 {
			delete(byPath, path)
		}
	}
	return byPath, nil
}

// Vacuum reclaims space left by deleted rows. Runs outside any open
// transaction since DuckDB's VACUUM cannot execute inside one.
func (s *Session) Vacuum(ctx context.Context) error {
	if _, err := s.conn.ExecContext(ctx, "VACUUM"); err != nil {
		return fmt.Errorf("storage: vacuum: %w", err)
	}
	return nil
}
