package suivi

import "context"

// RawRecord is the wire form the fetch collaborator hands back, one per
// fetched item. Metrics and metadata are nested the way platform APIs
// report them; normalization flattens them into a store record.
type RawRecord struct {
	ContentID   string      `json:"content_id"`
	Author      string      `json:"author"`
	Text        string      `json:"text"`
	PublishTime string      `json:"publish_time"`
	URL         string      `json:"url"`
	Platform    string      `json:"platform,omitempty"`
	IsRepost    bool        `json:"is_repost"`
	Lang        string      `json:"lang,omitempty"`
	Metrics     RawMetrics  `json:"metrics"`
	Metadata    RawMetadata `json:"metadata"`
}

// RawMetrics carries the engagement counters of a raw record.
type RawMetrics struct {
	Likes   int64 `json:"likes"`
	Reposts int64 `json:"reposts"`
	Replies int64 `json:"replies"`
	Quotes  int64 `json:"quotes"`
	Views   int64 `json:"views"`
}

// RawMetadata carries platform-specific extras the engine cares about.
type RawMetadata struct {
	AuthorFollowers int64 `json:"author_followers"`
}

// FetchFunc retrieves raw records for a handle over a closed date interval
// (YYYY-MM-DD, inclusive). It may fail or be cancelled; the engine then
// leaves the gap uncovered for retry. A nil, nil return is a valid, fully
// checked empty window.
type FetchFunc func(ctx context.Context, handle, startDate, endDate string) ([]RawRecord, error)

// GapResult is the outcome of one gap within an EnsureCoverage call.
type GapResult struct {
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	Stored    int    `json:"stored"`
	Err       error  `json:"-"`
	Error     string `json:"error,omitempty"`
}

// CoverageReport summarises one EnsureCoverage call: every gap that was
// attempted, what it stored, and what failed. Failed gaps stay missing.
type CoverageReport struct {
	Handle    string      `json:"handle"`
	StartDate string      `json:"start_date"`
	EndDate   string      `json:"end_date"`
	Gaps      []GapResult `json:"gaps"`
	Stored    int         `json:"stored"`
}

// Failed returns the gaps whose fetch failed.
func (r *CoverageReport) Failed() []GapResult {
	var failed []GapResult
	for _, g := range r.Gaps {
		if g.Err != nil {
			failed = append(failed, g)
		}
	}
	return failed
}
