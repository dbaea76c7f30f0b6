// Package manifest tracks, per handle, which date intervals have already
// been fetched and stored.
//
// The on-disk form is a single JSON document mapping handle to a sorted list
// of disjoint ["YYYY-MM-DD","YYYY-MM-DD"] pairs. Reads and writes are always
// whole-document; each commit rewrites the file atomically via a temp file
// and rename, so a failed write leaves the previous document intact.
package manifest

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// Options configures manifest behaviour.
type Options struct {
	// StrictMerge disables day-adjacency coalescing on commit: only
	// overlapping intervals are folded together. The default folds
	// intervals whose bounds are one day apart as well, matching how
	// fetched windows line up ([1,5] then [6,10] is continuous coverage).
	StrictMerge bool
	// Logger overrides the default slog logger.
	Logger *slog.Logger
}

func (o *Options) defaults() {
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Manifest is a handle over one coverage document.
type Manifest struct {
	path   string
	bridge int
	logger *slog.Logger
	mu     sync.Mutex
}

// New creates a Manifest backed by the JSON document at path. The file is
// created on first commit; a missing file reads as empty coverage.
func New(path string, opts Options) *Manifest {
	opts.defaults()
	bridge := 1
	if opts.StrictMerge {
		bridge = 0
	}
	return &Manifest{
		path:   path,
		bridge: bridge,
		logger: opts.Logger,
	}
}

// Path returns the backing document path.
func (m *Manifest) Path() string { return m.path }

// Intervals returns the stored coverage for a handle: sorted, disjoint,
// possibly empty.
func (m *Manifest) Intervals(handle string) ([]Interval, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, err := m.load()
	if err != nil {
		return nil, err
	}
	return doc[handle], nil
}

// Handles returns every handle with stored coverage, sorted.
func (m *Manifest) Handles() ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, err := m.load()
	if err != nil {
		return nil, err
	}
	handles := make([]string, 0, len(doc))
	for h := range doc {
		handles = append(handles, h)
	}
	sort.Strings(handles)
	return handles, nil
}

// Missing returns the sub-intervals of the requested closed interval not yet
// covered for the handle, sorted ascending. With no stored coverage the
// requested interval comes back whole. The caller guarantees
// requested.Start <= requested.End.
func (m *Manifest) Missing(handle string, requested Interval) ([]Interval, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, err := m.load()
	if err != nil {
		return nil, err
	}
	return missing(doc[handle], requested), nil
}

// Commit records a newly fetched interval for the handle, merging it into
// the stored list and rewriting the whole document. In-memory state is not
// considered durable until the write succeeds; on write failure the stored
// document is unchanged and the error is returned.
func (m *Manifest) Commit(handle string, iv Interval) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, err := m.load()
	if err != nil {
		return err
	}
	doc[handle] = merge(append(doc[handle], iv), m.bridge)

	if err := m.save(doc); err != nil {
		return err
	}
	m.logger.Debug("coverage committed",
		"handle", handle, "interval", iv.String(), "intervals", len(doc[handle]))
	return nil
}

func (m *Manifest) load() (map[string][]Interval, error) {
	data, err := os.ReadFile(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string][]Interval{}, nil
		}
		return nil, fmt.Errorf("manifest: read %s: %w", m.path, err)
	}
	doc := map[string][]Interval{}
	if len(data) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("manifest: parse %s: %w", m.path, err)
	}
	return doc, nil
}

func (m *Manifest) save(doc map[string][]Interval) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("manifest: encode: %w", err)
	}

	dir := filepath.Dir(m.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("manifest: mkdir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".manifest-*.json")
	if err != nil {
		return fmt.Errorf("manifest: temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("manifest: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("manifest: close: %w", err)
	}
	if err := os.Rename(tmp.Name(), m.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("manifest: replace %s: %w", m.path, err)
	}
	return nil
}
