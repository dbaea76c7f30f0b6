package store

// Record is one stored content item. PublishTime is ISO-8601 and is the
// natural ordering key. Annotations holds values of runtime-added columns,
// keyed by column name; it is populated on query and nil when the table has
// no annotation columns.
type Record struct {
	ContentID       string         `json:"content_id"`
	Author          string         `json:"author"`
	Text            string         `json:"text"`
	PublishTime     string         `json:"publish_time"`
	URL             string         `json:"url"`
	Platform        string         `json:"platform"`
	IsRepost        bool           `json:"is_repost"`
	LikeCount       int64          `json:"like_count"`
	RepostCount     int64          `json:"repost_count"`
	ReplyCount      int64          `json:"reply_count"`
	QuoteCount      int64          `json:"quote_count"`
	ViewCount       int64          `json:"view_count"`
	AuthorFollowers int64          `json:"author_followers"`
	Lang            string         `json:"lang"`
	CreatedAt       int64          `json:"created_at"`
	Annotations     map[string]any `json:"annotations,omitempty"`
}

// Filter selects records for QueryRecords. Zero values mean "no constraint".
type Filter struct {
	// Handles restricts to these authors.
	Handles []string `json:"handles,omitempty"`
	// StartDate / EndDate bound publish_time, YYYY-MM-DD inclusive.
	StartDate string `json:"start_date,omitempty"`
	EndDate   string `json:"end_date,omitempty"`
	// TextContains is a case-insensitive substring match on text.
	TextContains string `json:"text_contains,omitempty"`
	// Limit caps the result count; 0 means unlimited.
	Limit int `json:"limit,omitempty"`
}

// SchemaInfo is one registry entry summary.
type SchemaInfo struct {
	Name        string `json:"schema_name"`
	Description string `json:"description"`
	CreatedAt   int64  `json:"created_at"`
}

// FetchLogEntry records one gap fetch attempt.
type FetchLogEntry struct {
	ID           string `json:"id"`
	Handle       string `json:"handle"`
	StartDate    string `json:"start_date"`
	EndDate      string `json:"end_date"`
	Status       string `json:"status"` // "ok" | "empty" | "error"
	RecordCount  int    `json:"record_count"`
	ErrorMessage string `json:"error_message"`
	DurationMs   int64  `json:"duration_ms"`
	FetchedAt    int64  `json:"fetched_at"`
}

// Stats holds aggregate counters for the content database.
type Stats struct {
	Records   int `json:"records"`
	Authors   int `json:"authors"`
	Schemas   int `json:"schemas"`
	FetchLogs int `json:"fetch_logs"`
}
