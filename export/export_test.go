package export

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"

	"github.com/hazyhaar/suivi/internal/store"
)

func sample() []*store.Record {
	return []*store.Record{
		{
			ContentID:   "c1",
			Author:      "alice",
			Text:        "hello, \"world\"",
			PublishTime: "2024-01-02T10:00:00Z",
			Platform:    "x",
			LikeCount:   7,
			Annotations: map[string]any{"sentiment": "pos", "confidence": 0.85},
		},
		{
			ContentID:   "c2",
			Author:      "alice",
			Text:        "second\nline",
			PublishTime: "2024-01-01T10:00:00Z",
			Platform:    "x",
		},
	}
}

func TestCSV(t *testing.T) {
	// WHAT: CSV output carries the fixed columns plus requested annotation
	// columns, with missing annotation values left empty.
	var buf bytes.Buffer
	if err := CSV(&buf, sample(), []string{"sentiment", "confidence"}); err != nil {
		t.Fatalf("CSV: %v", err)
	}
	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows: %d, want header + 2", len(rows))
	}
	header := rows[0]
	if header[0] != "content_id" || header[len(header)-2] != "sentiment" || header[len(header)-1] != "confidence" {
		t.Fatalf("header: %v", header)
	}
	if rows[1][len(header)-2] != "pos" || rows[1][len(header)-1] != "0.85" {
		t.Fatalf("annotated row: %v", rows[1])
	}
	if rows[2][len(header)-2] != "" {
		t.Fatalf("unannotated row should have empty cell: %v", rows[2])
	}
	// Embedded quote and newline survive the round trip.
	if rows[1][2] != `hello, "world"` || rows[2][2] != "second\nline" {
		t.Fatalf("text cells: %q / %q", rows[1][2], rows[2][2])
	}
}

func TestJSONL(t *testing.T) {
	var buf bytes.Buffer
	if err := JSONL(&buf, sample()); err != nil {
		t.Fatalf("JSONL: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines: %d, want 2", len(lines))
	}
	if !strings.Contains(lines[0], `"content_id":"c1"`) {
		t.Fatalf("first line: %s", lines[0])
	}
	if strings.Contains(lines[1], "annotations") {
		t.Fatalf("empty annotations should be omitted: %s", lines[1])
	}
}
