package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hazyhaar/suivi/annotate"
)

// Schema is the fixed part of the content database. Annotation columns are
// added to content at runtime via EnsureColumns.
const Schema = `
-- Content records, one row per fetched item
CREATE TABLE IF NOT EXISTS content (
    content_id       TEXT PRIMARY KEY,
    author           TEXT NOT NULL,
    text             TEXT NOT NULL DEFAULT '',
    publish_time     TEXT NOT NULL,
    url              TEXT NOT NULL DEFAULT '',
    platform         TEXT NOT NULL DEFAULT 'x',
    is_repost        INTEGER NOT NULL DEFAULT 0,
    like_count       INTEGER NOT NULL DEFAULT 0,
    repost_count     INTEGER NOT NULL DEFAULT 0,
    reply_count      INTEGER NOT NULL DEFAULT 0,
    quote_count      INTEGER NOT NULL DEFAULT 0,
    view_count       INTEGER NOT NULL DEFAULT 0,
    author_followers INTEGER NOT NULL DEFAULT 0,
    lang             TEXT NOT NULL DEFAULT '',
    created_at       INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_content_author ON content(author);
CREATE INDEX IF NOT EXISTS idx_content_publish_time ON content(publish_time DESC);
CREATE INDEX IF NOT EXISTS idx_content_platform ON content(platform);

-- Annotation schema registry
CREATE TABLE IF NOT EXISTS annotation_schemas (
    schema_name TEXT PRIMARY KEY,
    description TEXT NOT NULL DEFAULT '',
    fields_json TEXT NOT NULL,
    created_at  INTEGER NOT NULL
);

-- Fetch log (per-gap observability)
CREATE TABLE IF NOT EXISTS fetch_log (
    id            TEXT PRIMARY KEY,
    handle        TEXT NOT NULL,
    start_date    TEXT NOT NULL,
    end_date      TEXT NOT NULL,
    status        TEXT NOT NULL,
    record_count  INTEGER NOT NULL DEFAULT 0,
    error_message TEXT NOT NULL DEFAULT '',
    duration_ms   INTEGER NOT NULL DEFAULT 0,
    fetched_at    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_fetch_log_handle ON fetch_log(handle, fetched_at DESC);
`

// fixedColumns is the built-in content column set. Everything else on the
// table is an annotation column.
var fixedColumns = map[string]bool{
	"content_id": true, "author": true, "text": true, "publish_time": true,
	"url": true, "platform": true, "is_repost": true,
	"like_count": true, "repost_count": true, "reply_count": true,
	"quote_count": true, "view_count": true, "author_followers": true,
	"lang": true, "created_at": true,
}

// ApplySchema creates all tables and indexes on the given database.
func ApplySchema(db *sql.DB) error {
	_, err := db.Exec(Schema)
	return err
}

// Columns returns the live column set of the content table, fixed and
// annotation columns alike.
func (s *Store) Columns(ctx context.Context) (map[string]bool, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT name FROM pragma_table_info('content')`)
	if err != nil {
		return nil, fmt.Errorf("table info: %w", err)
	}
	defer rows.Close()

	cols := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		cols[name] = true
	}
	return cols, rows.Err()
}

// AnnotationColumns returns the content columns added via EnsureColumns,
// in declaration order.
func (s *Store) AnnotationColumns(ctx context.Context) ([]string, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT name FROM pragma_table_info('content') ORDER BY cid`)
	if err != nil {
		return nil, fmt.Errorf("table info: %w", err)
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		if !fixedColumns[name] {
			cols = append(cols, name)
		}
	}
	return cols, rows.Err()
}

// EnsureColumns adds one content column per schema field that does not
// exist yet. Idempotent: re-running with the same schema is a no-op, and a
// concurrent duplicate ALTER is tolerated by re-checking the column set.
// A field whose name collides with a fixed column is rejected.
func (s *Store) EnsureColumns(ctx context.Context, schema *annotate.Schema) error {
	// Validation also guarantees field names are plain snake_case, which is
	// what makes the fmt-built DDL below safe.
	if err := schema.Validate(); err != nil {
		return err
	}
	existing, err := s.Columns(ctx)
	if err != nil {
		return err
	}
	for _, f := range schema.Fields {
		if fixedColumns[f.Name] {
			return fmt.Errorf("field %q collides with a built-in column", f.Name)
		}
		if existing[f.Name] {
			continue
		}
		ddl := fmt.Sprintf(`ALTER TABLE content ADD COLUMN %s %s`, f.Name, f.SQLType())
		if _, err := s.DB.ExecContext(ctx, ddl); err != nil {
			// Lost the race against a concurrent EnsureColumns.
			recheck, cerr := s.Columns(ctx)
			if cerr == nil && recheck[f.Name] {
				continue
			}
			return fmt.Errorf("add column %s: %w", f.Name, err)
		}
		s.logger.Info("annotation column added", "column", f.Name, "type", f.SQLType())
	}
	return nil
}
