package store

import (
	"context"
	"fmt"
)

// InsertFetchLog records a gap fetch attempt.
func (s *Store) InsertFetchLog(ctx context.Context, entry *FetchLogEntry) error {
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO fetch_log (id, handle, start_date, end_date, status,
		record_count, error_message, duration_ms, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.Handle, entry.StartDate, entry.EndDate, entry.Status,
		entry.RecordCount, entry.ErrorMessage, entry.DurationMs, entry.FetchedAt,
	)
	if err != nil {
		return fmt.Errorf("insert fetch log: %w", err)
	}
	return nil
}

// FetchHistory returns fetch log entries newest first, for one handle or,
// with an empty handle, for all of them.
func (s *Store) FetchHistory(ctx context.Context, handle string, limit int) ([]*FetchLogEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT id, handle, start_date, end_date, status, record_count,
		error_message, duration_ms, fetched_at
		FROM fetch_log `
	args := []any{}
	if handle != "" {
		query += `WHERE handle = ? `
		args = append(args, handle)
	}
	query += `ORDER BY fetched_at DESC LIMIT ?`
	args = append(args, limit)
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*FetchLogEntry
	for rows.Next() {
		var e FetchLogEntry
		if err := rows.Scan(&e.ID, &e.Handle, &e.StartDate, &e.EndDate, &e.Status,
			&e.RecordCount, &e.ErrorMessage, &e.DurationMs, &e.FetchedAt); err != nil {
			return nil, fmt.Errorf("scan fetch log: %w", err)
		}
		result = append(result, &e)
	}
	return result, rows.Err()
}
