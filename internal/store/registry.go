package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hazyhaar/suivi/annotate"
)

// SaveSchema stores a schema descriptor in the registry, replacing any
// previous version under the same name. The descriptor is validated first.
func (s *Store) SaveSchema(ctx context.Context, schema *annotate.Schema) error {
	if err := schema.Validate(); err != nil {
		return err
	}
	fields, err := json.Marshal(schema.Fields)
	if err != nil {
		return fmt.Errorf("encode fields: %w", err)
	}
	_, err = s.DB.ExecContext(ctx,
		`INSERT OR REPLACE INTO annotation_schemas (schema_name, description, fields_json, created_at)
		VALUES (?, ?, ?, ?)`,
		schema.Name, schema.Description, string(fields), time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("save schema %s: %w", schema.Name, err)
	}
	return nil
}

// GetSchema loads a schema descriptor by name, or nil when absent.
func (s *Store) GetSchema(ctx context.Context, name string) (*annotate.Schema, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT schema_name, description, fields_json FROM annotation_schemas WHERE schema_name = ?`,
		name)

	var schema annotate.Schema
	var fieldsJSON string
	if err := row.Scan(&schema.Name, &schema.Description, &fieldsJSON); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan schema: %w", err)
	}
	if err := json.Unmarshal([]byte(fieldsJSON), &schema.Fields); err != nil {
		return nil, fmt.Errorf("decode schema %s fields: %w", name, err)
	}
	return &schema, nil
}

// ListSchemas returns registry entries, newest first.
func (s *Store) ListSchemas(ctx context.Context) ([]*SchemaInfo, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT schema_name, description, created_at FROM annotation_schemas
		ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list schemas: %w", err)
	}
	defer rows.Close()

	var result []*SchemaInfo
	for rows.Next() {
		var info SchemaInfo
		if err := rows.Scan(&info.Name, &info.Description, &info.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan schema info: %w", err)
		}
		result = append(result, &info)
	}
	return result, rows.Err()
}
