// Package export writes stored records to portable formats for downstream
// analysis. Annotation columns are appended after the built-in columns in
// the order the store reports them.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/hazyhaar/suivi/internal/store"
)

// baseHeader is the fixed column order for CSV output.
var baseHeader = []string{
	"content_id", "author", "text", "publish_time", "url", "platform",
	"is_repost", "like_count", "repost_count", "reply_count", "quote_count",
	"view_count", "author_followers", "lang",
}

// CSV writes records as one CSV document. annCols names the annotation
// columns to include; values missing on a record are written empty.
func CSV(w io.Writer, records []*store.Record, annCols []string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(append(append([]string{}, baseHeader...), annCols...)); err != nil {
		return fmt.Errorf("export: write header: %w", err)
	}
	for _, r := range records {
		row := []string{
			r.ContentID, r.Author, r.Text, r.PublishTime, r.URL, r.Platform,
			strconv.FormatBool(r.IsRepost),
			strconv.FormatInt(r.LikeCount, 10),
			strconv.FormatInt(r.RepostCount, 10),
			strconv.FormatInt(r.ReplyCount, 10),
			strconv.FormatInt(r.QuoteCount, 10),
			strconv.FormatInt(r.ViewCount, 10),
			strconv.FormatInt(r.AuthorFollowers, 10),
			r.Lang,
		}
		for _, c := range annCols {
			row = append(row, cellString(r.Annotations[c]))
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("export: write row %s: %w", r.ContentID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// JSONL writes records as newline-delimited JSON, one record per line.
func JSONL(w io.Writer, records []*store.Record) error {
	enc := json.NewEncoder(w)
	for _, r := range records {
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("export: encode %s: %w", r.ContentID, err)
		}
	}
	return nil
}

func cellString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}
