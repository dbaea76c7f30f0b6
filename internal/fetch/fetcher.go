// Package fetch retrieves author content from a JSON search API over a
// closed date window, following cursor pagination until the window is
// exhausted.
package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/hazyhaar/suivi"
)

// Config configures the API client.
type Config struct {
	// BaseURL is the search endpoint, e.g. "https://api.example.com/v1/search".
	BaseURL string `yaml:"base_url"`
	// APIKey is sent as a Bearer token when set.
	APIKey string `yaml:"api_key"`
	// Timeout is the per-request HTTP timeout. Default: 30s.
	Timeout time.Duration `yaml:"timeout"`
	// MaxBytes caps a single response body. Default: 10MB.
	MaxBytes int64 `yaml:"max_bytes"`
	// PageSize is the requested page size. Default: 100.
	PageSize int `yaml:"page_size"`
	// UserAgent sent with requests.
	UserAgent string `yaml:"user_agent"`
}

func (c *Config) defaults() {
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.MaxBytes <= 0 {
		c.MaxBytes = 10 * 1024 * 1024 // 10MB
	}
	if c.PageSize <= 0 {
		c.PageSize = 100
	}
	if c.UserAgent == "" {
		c.UserAgent = "suivi/1.0"
	}
}

// page is one response from the search endpoint.
type page struct {
	Records    []suivi.RawRecord `json:"records"`
	NextCursor string            `json:"next_cursor"`
}

// Client calls the search API.
type Client struct {
	http   *http.Client
	config Config
}

// New creates a Client.
func New(cfg Config) (*Client, error) {
	cfg.defaults()
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("fetch: base_url is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("fetch: base_url: %w", err)
	}
	return &Client{
		http:   &http.Client{Timeout: cfg.Timeout},
		config: cfg,
	}, nil
}

// Fetch retrieves every record the API holds for handle within the closed
// window [startDate, endDate], following next_cursor until exhausted.
func (c *Client) Fetch(ctx context.Context, handle, startDate, endDate string) ([]suivi.RawRecord, error) {
	var all []suivi.RawRecord
	cursor := ""
	for {
		p, err := c.fetchPage(ctx, handle, startDate, endDate, cursor)
		if err != nil {
			return nil, err
		}
		all = append(all, p.Records...)
		if p.NextCursor == "" {
			return all, nil
		}
		cursor = p.NextCursor
	}
}

// FetchFunc adapts the client to the engine's fetch signature.
func (c *Client) FetchFunc() suivi.FetchFunc {
	return c.Fetch
}

func (c *Client) fetchPage(ctx context.Context, handle, startDate, endDate, cursor string) (*page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch: new request: %w", err)
	}
	q := req.URL.Query()
	q.Set("handle", handle)
	q.Set("start_date", startDate)
	q.Set("end_date", endDate)
	q.Set("limit", fmt.Sprint(c.config.PageSize))
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	req.URL.RawQuery = q.Encode()

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.config.UserAgent)
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch: http: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Drain a little for the error message, keep it bounded.
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return nil, fmt.Errorf("fetch: http %d: %s", resp.StatusCode, snippet)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.config.MaxBytes))
	if err != nil {
		return nil, fmt.Errorf("fetch: read body: %w", err)
	}
	var p page
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", suivi.ErrParse, err)
	}
	return &p, nil
}
