package storage

import (
	"context"
	"database/sql"
	"fmt"
)

// schema is applied once per fresh database file. DuckDB supports
// CREATE TABLE IF NOT EXISTS so re-running it against an already
// migrated database is a no-op.
var schema = []string{
	// Sequences start at 2: id 1 is reserved, seeded below, for the
	// resource and collection backing the dedicated search root.
	`CREATE SEQUENCE IF NOT EXISTS seq_resource START 2`,
	`CREATE TABLE IF NOT EXISTS resources (
		id BIGINT PRIMARY KEY DEFAULT nextval('seq_resource'),
		name VARCHAR UNIQUE NOT NULL
	)`,
	`CREATE SEQUENCE IF NOT EXISTS seq_collection START 2`,
	`CREATE TABLE IF NOT EXISTS collections (
		id BIGINT PRIMARY KEY DEFAULT nextval('seq_collection'),
		parent_id BIGINT,
		resource_id BIGINT NOT NULL,
		name VARCHAR NOT NULL,
		remote_id VARCHAR,
		remote_rev VARCHAR,
		mime_types VARCHAR,
		cache_inherit BOOLEAN NOT NULL DEFAULT true,
		cache_check_interval_min INTEGER NOT NULL DEFAULT 5,
		cache_timeout_min INTEGER NOT NULL DEFAULT 60,
		cache_sync_on_demand BOOLEAN NOT NULL DEFAULT false,
		cache_local_parts VARCHAR,
		enabled BOOLEAN NOT NULL DEFAULT true,
		sync_pref BOOLEAN NOT NULL DEFAULT true,
		display_pref BOOLEAN NOT NULL DEFAULT true,
		index_pref BOOLEAN NOT NULL DEFAULT true,
		virtual BOOLEAN NOT NULL DEFAULT false,
		query_string VARCHAR,
		query_attributes VARCHAR,
		query_collections VARCHAR
	)`,
	`CREATE SEQUENCE IF NOT EXISTS seq_item START 1`,
	`CREATE TABLE IF NOT EXISTS pim_items (
		id BIGINT PRIMARY KEY DEFAULT nextval('seq_item'),
		collection_id BIGINT NOT NULL,
		mime_type VARCHAR NOT NULL,
		remote_id VARCHAR,
		size BIGINT NOT NULL DEFAULT 0,
		flags VARCHAR,
		hidden BOOLEAN NOT NULL DEFAULT false
	)`,
	`CREATE SEQUENCE IF NOT EXISTS seq_part START 1`,
	`CREATE TABLE IF NOT EXISTS parts (
		id BIGINT PRIMARY KEY DEFAULT nextval('seq_part'),
		item_id BIGINT NOT NULL,
		part_type VARCHAR NOT NULL,
		data BLOB,
		external BOOLEAN NOT NULL DEFAULT false,
		path VARCHAR,
		datasize BIGINT NOT NULL DEFAULT 0,
		UNIQUE(item_id, part_type)
	)`,
	`CREATE TABLE IF NOT EXISTS tags (
		id BIGINT PRIMARY KEY DEFAULT nextval('seq_item'),
		name VARCHAR UNIQUE NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS item_tags (
		item_id BIGINT NOT NULL,
		tag_id BIGINT NOT NULL,
		PRIMARY KEY (item_id, tag_id)
	)`,
	`CREATE TABLE IF NOT EXISTS flags (
		id BIGINT PRIMARY KEY DEFAULT nextval('seq_item'),
		name VARCHAR UNIQUE NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS mime_types (
		id BIGINT PRIMARY KEY DEFAULT nextval('seq_item'),
		name VARCHAR UNIQUE NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS part_types (
		id BIGINT PRIMARY KEY DEFAULT nextval('seq_item'),
		name VARCHAR UNIQUE NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS relation_types (
		id BIGINT PRIMARY KEY DEFAULT nextval('seq_item'),
		name VARCHAR UNIQUE NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS relations (
		left_id BIGINT NOT NULL,
		right_id BIGINT NOT NULL,
		type_id BIGINT NOT NULL,
		remote_id VARCHAR,
		PRIMARY KEY (left_id, right_id, type_id)
	)`,
	`CREATE TABLE IF NOT EXISTS collection_item_relation (
		collection_id BIGINT NOT NULL,
		item_id BIGINT NOT NULL,
		PRIMARY KEY (collection_id, item_id)
	)`,
	// The search root is a fixed, well-known collection (id 1) every
	// SEARCH_STORE parents new persistent searches under; it belongs to
	// a dedicated internal resource rather than any connected one.
	`INSERT INTO resources (id, name)
		SELECT 1, 'akonadi_search_resource'
		WHERE NOT EXISTS (SELECT 1 FROM resources WHERE id = 1)`,
	`INSERT INTO collections (id, parent_id, resource_id, name, virtual, display_pref)
		SELECT 1, NULL, 1, 'Search', false, false
		WHERE NOT EXISTS (SELECT 1 FROM collections WHERE id = 1)`,
}

// Migrate applies the schema to db. Safe to call on every startup.
func Migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("storage: migration statement failed: %w\n%s", err, stmt)
		}
	}
	return nil
}
