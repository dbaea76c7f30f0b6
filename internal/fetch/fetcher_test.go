package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hazyhaar/suivi"
)

func record(id string) suivi.RawRecord {
	return suivi.RawRecord{
		ContentID:   id,
		Author:      "alice",
		Text:        "post " + id,
		PublishTime: "2024-01-01T12:00:00Z",
	}
}

func TestFetch_SingleWindow(t *testing.T) {
	// WHAT: A one-page response returns its records and sends the window
	// and auth parameters.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("handle") != "alice" || q.Get("start_date") != "2024-01-01" || q.Get("end_date") != "2024-01-05" {
			t.Errorf("query params: %v", q)
		}
		if r.Header.Get("Authorization") != "Bearer secret" {
			t.Errorf("auth header: %q", r.Header.Get("Authorization"))
		}
		json.NewEncoder(w).Encode(page{Records: []suivi.RawRecord{record("a"), record("b")}})
	}))
	defer srv.Close()

	c, err := New(Config{BaseURL: srv.URL, APIKey: "secret"})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	records, err := c.Fetch(context.Background(), "alice", "2024-01-01", "2024-01-05")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(records) != 2 || records[0].ContentID != "a" {
		t.Fatalf("records: %+v", records)
	}
}

func TestFetch_FollowsCursor(t *testing.T) {
	// WHAT: Pagination follows next_cursor until it is empty.
	var cursors []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cursor := r.URL.Query().Get("cursor")
		cursors = append(cursors, cursor)
		switch cursor {
		case "":
			json.NewEncoder(w).Encode(page{Records: []suivi.RawRecord{record("1")}, NextCursor: "p2"})
		case "p2":
			json.NewEncoder(w).Encode(page{Records: []suivi.RawRecord{record("2")}, NextCursor: "p3"})
		default:
			json.NewEncoder(w).Encode(page{Records: []suivi.RawRecord{record("3")}})
		}
	}))
	defer srv.Close()

	c, err := New(Config{BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	records, err := c.Fetch(context.Background(), "alice", "2024-01-01", "2024-01-05")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("records: %d, want 3", len(records))
	}
	if len(cursors) != 3 || cursors[1] != "p2" || cursors[2] != "p3" {
		t.Fatalf("cursors seen: %v", cursors)
	}
}

func TestFetch_HTTPError(t *testing.T) {
	// WHAT: Non-2xx responses surface as errors so the engine leaves the
	// gap uncovered.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c, err := New(Config{BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if _, err := c.Fetch(context.Background(), "alice", "2024-01-01", "2024-01-05"); err == nil {
		t.Fatal("expected error on 429")
	}
}

func TestFetch_BadJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer srv.Close()

	c, err := New(Config{BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	_, err = c.Fetch(context.Background(), "alice", "2024-01-01", "2024-01-05")
	if !errors.Is(err, suivi.ErrParse) {
		t.Fatalf("err = %v, want ErrParse", err)
	}
}

func TestNew_RequiresBaseURL(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("expected error without base_url")
	}
}
