package storage

import (
	"context"
	"database/sql"
	"fmt"
)

// getOrCreate resolves name to an id in cache, falling back to a SELECT
// and then an INSERT the first time a session sees it. Invalidation is
// implicit: the cache is only ever consulted through this one path, so
// an INSERT that happens on another session is simply not yet known
// here until this session looks the name up itself. These tables are
// read-mostly, so the tradeoff favors cache hit rate over freshness.
func (s *Session) getOrCreate(ctx context.Context, c *nameCache, name string) (int64, error) {
	if id, ok := c.get(name); ok {
		return id, nil
	}

	ex := s.exec()
	var id int64
	row := ex.QueryRowContext(ctx, fmt.Sprintf(`SELECT id FROM %s WHERE name = ?`, c.table), name)
	err := row.Scan(&id)
	switch {
	case err == nil:
		c.put(name, id)
		return id, nil
	case err != sql.ErrNoRows:
		return 0, fmt.Errorf("storage: lookup %s(%q): %w", c.table, name, err)
	}

	row = ex.QueryRowContext(ctx, fmt.Sprintf(
		`INSERT INTO %s (name) VALUES (?) RETURNING id`, c.table), name)
	if err := row.Scan(&id); err != nil {
		return 0, fmt.Errorf("storage: create %s(%q): %w", c.table, name, err)
	}
	c.put(name, id)
	return id, nil
}

func (s *Session) GetOrCreateFlag(ctx context.Context, name string) (int64, error) {
	return s.getOrCreate(ctx, s.flags, name)
}

func (s *Session) GetOrCreateTag(ctx context.Context, name string) (int64, error) {
	return s.getOrCreate(ctx, s.tags, name)
}

func (s *Session) GetOrCreateMimeType(ctx context.Context, name string) (int64, error) {
	return s.getOrCreate(ctx, s.mimeTypes, name)
}

func (s *Session) GetOrCreatePartType(ctx context.Context, name string) (int64, error) {
	return s.getOrCreate(ctx, s.partTypes, name)
}

func (s *Session) GetOrCreateResource(ctx context.Context, name string) (int64, error) {
	return s.getOrCreate(ctx, s.resources, name)
}

func (s *Session) GetOrCreateRelationType(ctx context.Context, name string) (int64, error) {
	return s.getOrCreate(ctx, s.relationTypes, name)
}

// AllMimeTypeNames lists every mime type name known to the store, used
// by SEARCH_STORE to assign a new virtual collection the full set of
// non-directory content types.
func (s *Session) AllMimeTypeNames(ctx context.Context) ([]string, error) {
	rows, err := s.exec().QueryContext(ctx, `SELECT name FROM mime_types ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("storage: list mime types: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

// RelationTypeName is the reverse of GetOrCreateRelationType, needed when
// a notification has to report the type by name but only the id came
// back off a relations row.
func (s *Session) RelationTypeName(ctx context.Context, id int64) (string, error) {
	var name string
	row := s.exec().QueryRowContext(ctx, `SELECT name FROM relation_types WHERE id = ?`, id)
	if err := row.Scan(&name); err != nil {
		if err == sql.ErrNoRows {
			return "", fmt.Errorf("storage: relation type %d: %w", id, ErrNotFound)
		}
		return "", fmt.Errorf("storage: relation type %d: %w", id, err)
	}
	return name, nil
}
