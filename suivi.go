// Package suivi incrementally collects and stores social media content per
// author handle. A coverage manifest remembers which date intervals have
// already been fetched for each handle; EnsureCoverage fetches only the
// missing gaps, persists the records, and commits the newly covered
// intervals so repeated calls converge to no-op.
package suivi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazyhaar/suivi/annotate"
	"github.com/hazyhaar/suivi/internal/idgen"
	"github.com/hazyhaar/suivi/internal/manifest"
	"github.com/hazyhaar/suivi/internal/store"
)

// Service is the coverage engine. It owns the record store and the coverage
// manifest and serialises coverage work per handle. Safe for concurrent use.
type Service struct {
	store    *store.Store
	manifest *manifest.Manifest
	logger   *slog.Logger
	locks    *handleLocks
	newID    idgen.Generator
}

// Open builds a Service from configuration: opens (or creates) the content
// database and binds the coverage manifest.
func Open(cfg Config, logger *slog.Logger) (*Service, error) {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	st, err := store.Open(cfg.DatabaseFile, logger)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	man := manifest.New(cfg.ManifestFile, manifest.Options{
		StrictMerge: cfg.StrictMerge,
		Logger:      logger,
	})
	return New(st, man, logger), nil
}

// New builds a Service from an already opened store and manifest. Used by
// tests and by callers that manage the database handle themselves.
func New(st *store.Store, man *manifest.Manifest, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:    st,
		manifest: man,
		logger:   logger,
		locks:    newHandleLocks(),
		newID:    idgen.Prefixed("fetch_", idgen.UUIDv7()),
	}
}

// Close releases the content database.
func (s *Service) Close() error {
	return s.store.Close()
}

// EnsureCoverage guarantees that [startDate, endDate] (closed, YYYY-MM-DD)
// is covered for handle. It computes the missing gaps, calls fetch for each
// gap in ascending order, upserts the returned records, and commits the gap
// to the manifest. An empty fetch result still commits: the window was
// checked and nothing was there. A failed fetch leaves its gap uncovered
// and is reported in the result; the remaining gaps are still attempted.
//
// Input validation happens before any I/O and returns ErrInvalidInput.
// Coverage work for the same handle is serialised; distinct handles run
// concurrently.
func (s *Service) EnsureCoverage(ctx context.Context, handle, startDate, endDate string, fetch FetchFunc) (*CoverageReport, error) {
	if handle == "" {
		return nil, fmt.Errorf("%w: empty handle", ErrInvalidInput)
	}
	if fetch == nil {
		return nil, fmt.Errorf("%w: nil fetch function", ErrInvalidInput)
	}
	requested, err := manifest.NewInterval(startDate, endDate)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	unlock := s.locks.lock(handle)
	defer unlock()

	gaps, err := s.manifest.Missing(handle, requested)
	if err != nil {
		return nil, fmt.Errorf("%w: read manifest: %v", ErrPersistence, err)
	}

	report := &CoverageReport{
		Handle:    handle,
		StartDate: requested.StartDay(),
		EndDate:   requested.EndDay(),
	}
	if len(gaps) == 0 {
		s.logger.Debug("coverage complete, nothing to fetch",
			"handle", handle, "interval", requested.String())
		return report, nil
	}

	s.logger.Info("covering gaps",
		"handle", handle, "interval", requested.String(), "gaps", len(gaps))
	for _, gap := range gaps {
		res := s.coverGap(ctx, handle, gap, fetch)
		report.Gaps = append(report.Gaps, res)
		report.Stored += res.Stored
	}
	return report, nil
}

// coverGap fetches, stores and commits a single gap. Errors are folded into
// the GapResult so the caller can continue with the next gap.
func (s *Service) coverGap(ctx context.Context, handle string, gap manifest.Interval, fetch FetchFunc) GapResult {
	res := GapResult{StartDate: gap.StartDay(), EndDate: gap.EndDay()}
	started := time.Now()

	raws, err := fetch(ctx, handle, gap.StartDay(), gap.EndDay())
	if err != nil {
		res.Err = fmt.Errorf("%w: gap %s: %v", ErrFetch, gap.String(), err)
		res.Error = res.Err.Error()
		s.logger.Warn("fetch failed, gap stays uncovered",
			"handle", handle, "gap", gap.String(), "error", err)
		s.logFetch(ctx, handle, gap, "error", 0, err, started)
		return res
	}

	stored, err := s.store.UpsertRecords(ctx, normalizeRecords(raws))
	if err != nil {
		res.Err = fmt.Errorf("%w: store gap %s: %v", ErrPersistence, gap.String(), err)
		res.Error = res.Err.Error()
		s.logger.Error("upsert failed, gap not committed",
			"handle", handle, "gap", gap.String(), "error", err)
		s.logFetch(ctx, handle, gap, "error", 0, err, started)
		return res
	}

	// Commit even when the fetch returned nothing: the interval was
	// checked and must not be re-fetched.
	if err := s.manifest.Commit(handle, gap); err != nil {
		res.Err = fmt.Errorf("%w: commit gap %s: %v", ErrPersistence, gap.String(), err)
		res.Error = res.Err.Error()
		s.logger.Error("manifest commit failed",
			"handle", handle, "gap", gap.String(), "error", err)
		s.logFetch(ctx, handle, gap, "error", stored, err, started)
		return res
	}

	status := "ok"
	if len(raws) == 0 {
		status = "empty"
	}
	res.Stored = stored
	s.logger.Info("gap covered",
		"handle", handle, "gap", gap.String(), "fetched", len(raws), "stored", stored)
	s.logFetch(ctx, handle, gap, status, stored, nil, started)
	return res
}

// logFetch records a fetch attempt in the fetch log. Failures to write the
// log are logged and swallowed; the log is observability, not state.
func (s *Service) logFetch(ctx context.Context, handle string, gap manifest.Interval, status string, count int, fetchErr error, started time.Time) {
	entry := &store.FetchLogEntry{
		ID:          s.newID(),
		Handle:      handle,
		StartDate:   gap.StartDay(),
		EndDate:     gap.EndDay(),
		Status:      status,
		RecordCount: count,
		DurationMs:  time.Since(started).Milliseconds(),
		FetchedAt:   time.Now().Unix(),
	}
	if fetchErr != nil {
		entry.ErrorMessage = fetchErr.Error()
	}
	if err := s.store.InsertFetchLog(ctx, entry); err != nil {
		s.logger.Warn("fetch log write failed", "handle", handle, "error", err)
	}
}

// Coverage returns the stored coverage intervals for handle, sorted and
// disjoint. Empty slice when the handle has never been covered.
func (s *Service) Coverage(handle string) ([]manifest.Interval, error) {
	if handle == "" {
		return nil, fmt.Errorf("%w: empty handle", ErrInvalidInput)
	}
	ivs, err := s.manifest.Intervals(handle)
	if err != nil {
		return nil, fmt.Errorf("%w: read manifest: %v", ErrPersistence, err)
	}
	return ivs, nil
}

// Handles returns every handle with at least one covered interval.
func (s *Service) Handles() ([]string, error) {
	handles, err := s.manifest.Handles()
	if err != nil {
		return nil, fmt.Errorf("%w: read manifest: %v", ErrPersistence, err)
	}
	return handles, nil
}

// Query returns stored records matching the filter, newest first.
func (s *Service) Query(ctx context.Context, f store.Filter) ([]*store.Record, error) {
	if err := validateFilterDates(f); err != nil {
		return nil, err
	}
	return s.store.QueryRecords(ctx, f)
}

// Get returns a single record by content ID, or nil when absent.
func (s *Service) Get(ctx context.Context, contentID string) (*store.Record, error) {
	return s.store.GetRecord(ctx, contentID)
}

func validateFilterDates(f store.Filter) error {
	for _, d := range []string{f.StartDate, f.EndDate} {
		if d == "" {
			continue
		}
		if _, err := manifest.ParseDay(d); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
	}
	return nil
}

// EnsureSchema validates and registers an annotation schema, then extends
// the content table with one column per field. Idempotent: existing columns
// are left alone, stored values survive.
func (s *Service) EnsureSchema(ctx context.Context, schema *annotate.Schema) error {
	if err := schema.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if err := s.store.SaveSchema(ctx, schema); err != nil {
		return fmt.Errorf("%w: save schema: %v", ErrPersistence, err)
	}
	if err := s.store.EnsureColumns(ctx, schema); err != nil {
		return fmt.Errorf("%w: extend table: %v", ErrPersistence, err)
	}
	s.logger.Info("annotation schema ensured",
		"schema", schema.Name, "fields", len(schema.Fields))
	return nil
}

// Schema returns a registered annotation schema by name, or nil when absent.
func (s *Service) Schema(ctx context.Context, name string) (*annotate.Schema, error) {
	return s.store.GetSchema(ctx, name)
}

// AnnotationColumns returns the runtime-added column names of the content
// table, in the order they were added.
func (s *Service) AnnotationColumns(ctx context.Context) ([]string, error) {
	return s.store.AnnotationColumns(ctx)
}

// Schemas lists the registered annotation schemas, newest first.
func (s *Service) Schemas(ctx context.Context) ([]*store.SchemaInfo, error) {
	return s.store.ListSchemas(ctx)
}

// UpdateFields writes annotation values onto one record. Satisfies
// annotate.Sink so an Annotator can persist straight into the store. A
// write against a column EnsureSchema never created reports ErrSchema.
func (s *Service) UpdateFields(ctx context.Context, contentID string, fields map[string]any) error {
	err := s.store.UpdateFields(ctx, contentID, fields)
	if errors.Is(err, store.ErrUnknownColumn) {
		return fmt.Errorf("%w: %v", ErrSchema, err)
	}
	return err
}

// Annotate runs a classifier over the records matching the filter and
// persists the produced field values. The schema is ensured first.
func (s *Service) Annotate(ctx context.Context, schema *annotate.Schema, f store.Filter, classify annotate.Classifier, opts annotate.Options) (*annotate.Report, error) {
	if err := s.EnsureSchema(ctx, schema); err != nil {
		return nil, err
	}
	records, err := s.Query(ctx, f)
	if err != nil {
		return nil, err
	}
	rows := make([]annotate.Row, 0, len(records))
	for _, r := range records {
		rows = append(rows, annotate.Row{
			ID:          r.ContentID,
			Author:      r.Author,
			Text:        r.Text,
			PublishTime: r.PublishTime,
		})
	}
	if opts.Logger == nil {
		opts.Logger = s.logger
	}
	ann := annotate.New(schema, classify, s, opts)
	return ann.Run(ctx, rows)
}

// FetchHistory returns recent fetch log entries, newest first. An empty
// handle returns entries for every handle.
func (s *Service) FetchHistory(ctx context.Context, handle string, limit int) ([]*store.FetchLogEntry, error) {
	return s.store.FetchHistory(ctx, handle, limit)
}

// Stats returns aggregate counters over the content database.
func (s *Service) Stats(ctx context.Context) (*store.Stats, error) {
	return s.store.Stats(ctx)
}
