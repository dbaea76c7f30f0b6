package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

const recordColumns = `content_id, author, text, publish_time, url, platform, is_repost,
	like_count, repost_count, reply_count, quote_count, view_count, author_followers,
	lang, created_at`

// ErrUnknownColumn marks an annotation write against a column that is not
// on the content table (or is built-in and therefore off limits).
var ErrUnknownColumn = errors.New("unknown annotation column")

// UpsertRecords stores records one at a time inside a single transaction,
// insert-or-replace keyed by content_id. A malformed record is skipped and
// logged, never aborting the batch. Returns the number of rows stored.
func (s *Store) UpsertRecords(ctx context.Context, records []*Record) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin upsert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO content
		(`+recordColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UnixMilli()
	stored := 0
	for _, r := range records {
		if err := validateRecord(r); err != nil {
			s.logger.Warn("skipping malformed record",
				"content_id", r.ContentID, "author", r.Author, "error", err)
			continue
		}
		if r.Platform == "" {
			r.Platform = "x"
		}
		if r.CreatedAt == 0 {
			r.CreatedAt = now
		}
		_, err := stmt.ExecContext(ctx,
			r.ContentID, r.Author, r.Text, r.PublishTime, r.URL, r.Platform,
			boolToInt(r.IsRepost),
			clampCount(r.LikeCount), clampCount(r.RepostCount), clampCount(r.ReplyCount),
			clampCount(r.QuoteCount), clampCount(r.ViewCount), clampCount(r.AuthorFollowers),
			r.Lang, r.CreatedAt,
		)
		if err != nil {
			s.logger.Warn("skipping record on insert error",
				"content_id", r.ContentID, "error", err)
			continue
		}
		stored++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit upsert: %w", err)
	}
	return stored, nil
}

// validateRecord rejects records the table cannot meaningfully hold.
func validateRecord(r *Record) error {
	if r.ContentID == "" {
		return fmt.Errorf("empty content_id")
	}
	if r.Author == "" {
		return fmt.Errorf("empty author")
	}
	if _, err := parsePublishTime(r.PublishTime); err != nil {
		return err
	}
	return nil
}

var publishTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parsePublishTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("empty publish_time")
	}
	for _, layout := range publishTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable publish_time %q", s)
}

func clampCount(n int64) int64 {
	if n < 0 {
		return 0
	}
	return n
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// QueryRecords returns records matching the filter, publish time descending.
// Annotation column values come back in Record.Annotations.
func (s *Store) QueryRecords(ctx context.Context, f Filter) ([]*Record, error) {
	annCols, err := s.AnnotationColumns(ctx)
	if err != nil {
		return nil, err
	}

	var sb strings.Builder
	sb.WriteString(`SELECT ` + recordColumns)
	for _, c := range annCols {
		sb.WriteString(", " + c)
	}
	sb.WriteString(` FROM content WHERE 1=1`)

	var args []any
	if len(f.Handles) > 0 {
		sb.WriteString(` AND author IN (?` + strings.Repeat(",?", len(f.Handles)-1) + `)`)
		for _, h := range f.Handles {
			args = append(args, h)
		}
	}
	if f.StartDate != "" {
		sb.WriteString(` AND publish_time >= ?`)
		args = append(args, f.StartDate)
	}
	if f.EndDate != "" {
		// Closed day bound: include everything published on the end date.
		sb.WriteString(` AND publish_time <= ?`)
		args = append(args, f.EndDate+"T23:59:59")
	}
	if f.TextContains != "" {
		sb.WriteString(` AND text LIKE ? ESCAPE '\'`)
		args = append(args, "%"+escapeLike(f.TextContains)+"%")
	}
	sb.WriteString(` ORDER BY publish_time DESC`)
	if f.Limit > 0 {
		sb.WriteString(` LIMIT ?`)
		args = append(args, f.Limit)
	}

	rows, err := s.DB.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var result []*Record
	for rows.Next() {
		r, err := scanRecord(rows, annCols)
		if err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

// GetRecord returns one record by id, or nil when absent.
func (s *Store) GetRecord(ctx context.Context, contentID string) (*Record, error) {
	annCols, err := s.AnnotationColumns(ctx)
	if err != nil {
		return nil, err
	}
	cols := recordColumns
	for _, c := range annCols {
		cols += ", " + c
	}
	rows, err := s.DB.QueryContext(ctx,
		`SELECT `+cols+` FROM content WHERE content_id = ?`, contentID)
	if err != nil {
		return nil, fmt.Errorf("get record: %w", err)
	}
	defer rows.Close()
	if !rows.Next() {
		return nil, rows.Err()
	}
	return scanRecord(rows, annCols)
}

func scanRecord(rows *sql.Rows, annCols []string) (*Record, error) {
	var r Record
	var isRepost int
	dest := []any{
		&r.ContentID, &r.Author, &r.Text, &r.PublishTime, &r.URL, &r.Platform,
		&isRepost, &r.LikeCount, &r.RepostCount, &r.ReplyCount, &r.QuoteCount,
		&r.ViewCount, &r.AuthorFollowers, &r.Lang, &r.CreatedAt,
	}
	annVals := make([]any, len(annCols))
	for i := range annVals {
		dest = append(dest, &annVals[i])
	}
	if err := rows.Scan(dest...); err != nil {
		return nil, fmt.Errorf("scan record: %w", err)
	}
	r.IsRepost = isRepost != 0
	if len(annCols) > 0 {
		r.Annotations = make(map[string]any, len(annCols))
		for i, c := range annCols {
			r.Annotations[c] = annVals[i]
		}
	}
	return &r, nil
}

// UpdateFields applies a targeted update of annotation columns on one
// record. Every key must name an existing annotation column; a missing
// record is an error the caller treats as non-fatal.
func (s *Store) UpdateFields(ctx context.Context, contentID string, fields map[string]any) error {
	if len(fields) == 0 {
		return fmt.Errorf("no fields to update")
	}
	existing, err := s.Columns(ctx)
	if err != nil {
		return err
	}

	names := make([]string, 0, len(fields))
	for name := range fields {
		if fixedColumns[name] {
			return fmt.Errorf("%w: %s is built-in", ErrUnknownColumn, name)
		}
		if !existing[name] {
			return fmt.Errorf("%w: %s; run EnsureColumns first", ErrUnknownColumn, name)
		}
		names = append(names, name)
	}
	sort.Strings(names)

	var sb strings.Builder
	sb.WriteString(`UPDATE content SET `)
	args := make([]any, 0, len(names)+1)
	for i, name := range names {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(name + " = ?")
		args = append(args, fields[name])
	}
	sb.WriteString(` WHERE content_id = ?`)
	args = append(args, contentID)

	res, err := s.DB.ExecContext(ctx, sb.String(), args...)
	if err != nil {
		return fmt.Errorf("update fields: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update fields: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("record %s not found", contentID)
	}
	return nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
