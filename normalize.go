package suivi

import "github.com/hazyhaar/suivi/internal/store"

// normalizeRecord flattens a raw fetch record into its storage form.
// Validation (id, author, timestamp) happens in the store, which skips and
// logs malformed rows instead of aborting the batch.
func normalizeRecord(raw RawRecord) *store.Record {
	platform := raw.Platform
	if platform == "" {
		platform = "x"
	}
	return &store.Record{
		ContentID:       raw.ContentID,
		Author:          raw.Author,
		Text:            raw.Text,
		PublishTime:     raw.PublishTime,
		URL:             raw.URL,
		Platform:        platform,
		IsRepost:        raw.IsRepost,
		LikeCount:       raw.Metrics.Likes,
		RepostCount:     raw.Metrics.Reposts,
		ReplyCount:      raw.Metrics.Replies,
		QuoteCount:      raw.Metrics.Quotes,
		ViewCount:       raw.Metrics.Views,
		AuthorFollowers: raw.Metadata.AuthorFollowers,
		Lang:            raw.Lang,
	}
}

func normalizeRecords(raws []RawRecord) []*store.Record {
	records := make([]*store.Record, len(raws))
	for i, raw := range raws {
		records[i] = normalizeRecord(raw)
	}
	return records
}
