package store

import "context"

// Stats returns aggregate counters for the content database.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	var st Stats
	queries := []struct {
		sql  string
		dest *int
	}{
		{`SELECT COUNT(*) FROM content`, &st.Records},
		{`SELECT COUNT(DISTINCT author) FROM content`, &st.Authors},
		{`SELECT COUNT(*) FROM annotation_schemas`, &st.Schemas},
		{`SELECT COUNT(*) FROM fetch_log`, &st.FetchLogs},
	}
	for _, q := range queries {
		if err := s.DB.QueryRowContext(ctx, q.sql).Scan(q.dest); err != nil {
			return nil, err
		}
	}
	return &st, nil
}
