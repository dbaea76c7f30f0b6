// Command suivid exposes the coverage engine over HTTP: trigger coverage
// runs, query records, inspect coverage and fetch history, manage
// annotation schemas.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/suivi"
	"github.com/hazyhaar/suivi/annotate"
	"github.com/hazyhaar/suivi/export"
	"github.com/hazyhaar/suivi/internal/fetch"
	"github.com/hazyhaar/suivi/internal/store"
	_ "modernc.org/sqlite"
)

func main() {
	port := env("PORT", "8086")
	logLevel := env("LOG_LEVEL", "info")

	// Logging.
	var lvl slog.Level
	switch logLevel {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)

	// Signal context.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg := suivi.Config{
		DataDir:      env("DATA_DIR", "data"),
		DatabaseFile: env("DATABASE_FILE", ""),
		ManifestFile: env("MANIFEST_FILE", ""),
		StrictMerge:  env("STRICT_MERGE", "") == "1",
	}
	svc, err := suivi.Open(cfg, logger)
	if err != nil {
		slog.Error("open service", "error", err)
		os.Exit(1)
	}
	defer svc.Close()

	baseURL := env("FETCH_BASE_URL", "")
	if baseURL == "" {
		slog.Error("FETCH_BASE_URL is required")
		os.Exit(1)
	}
	client, err := fetch.New(fetch.Config{
		BaseURL: baseURL,
		APIKey:  os.Getenv("FETCH_API_KEY"),
	})
	if err != nil {
		slog.Error("fetch client", "error", err)
		os.Exit(1)
	}

	srv := &server{svc: svc, fetch: client.FetchFunc()}

	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, 200, map[string]string{"status": "ok"})
	})
	r.Post("/api/cover", srv.handleCover)
	r.Get("/api/coverage", srv.handleCoverageAll)
	r.Get("/api/coverage/{handle}", srv.handleCoverage)
	r.Get("/api/records", srv.handleRecords)
	r.Get("/api/records/{id}", srv.handleRecord)
	r.Get("/api/export", srv.handleExport)
	r.Get("/api/schemas", srv.handleSchemas)
	r.Post("/api/schemas", srv.handleApplySchema)
	r.Get("/api/history", srv.handleHistory)
	r.Get("/api/stats", srv.handleStats)

	httpSrv := &http.Server{
		Addr:              ":" + port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      300 * time.Second, // coverage runs fetch inline
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "port", port)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown", "error", err)
	}
	slog.Info("server stopped")
}

type server struct {
	svc   *suivi.Service
	fetch suivi.FetchFunc
}

func (s *server) handleCover(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Handle    string `json:"handle"`
		StartDate string `json:"start_date"`
		EndDate   string `json:"end_date"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, 400, err)
		return
	}
	report, err := s.svc.EnsureCoverage(r.Context(), req.Handle, req.StartDate, req.EndDate, s.fetch)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, 200, report)
}

func (s *server) handleCoverageAll(w http.ResponseWriter, r *http.Request) {
	handles, err := s.svc.Handles()
	if err != nil {
		writeError(w, 500, err)
		return
	}
	out := make(map[string]any, len(handles))
	for _, h := range handles {
		ivs, err := s.svc.Coverage(h)
		if err != nil {
			writeError(w, 500, err)
			return
		}
		out[h] = ivs
	}
	writeJSON(w, 200, out)
}

func (s *server) handleCoverage(w http.ResponseWriter, r *http.Request) {
	ivs, err := s.svc.Coverage(chi.URLParam(r, "handle"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, 200, ivs)
}

func (s *server) handleRecords(w http.ResponseWriter, r *http.Request) {
	records, err := s.svc.Query(r.Context(), filterFrom(r))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, 200, records)
}

func (s *server) handleRecord(w http.ResponseWriter, r *http.Request) {
	rec, err := s.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, 500, err)
		return
	}
	if rec == nil {
		writeJSON(w, 404, map[string]string{"error": "not found"})
		return
	}
	writeJSON(w, 200, rec)
}

func (s *server) handleExport(w http.ResponseWriter, r *http.Request) {
	records, err := s.svc.Query(r.Context(), filterFrom(r))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	switch format := r.URL.Query().Get("format"); format {
	case "", "csv":
		annCols, err := s.svc.AnnotationColumns(r.Context())
		if err != nil {
			writeError(w, 500, err)
			return
		}
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", `attachment; filename="records.csv"`)
		if err := export.CSV(w, records, annCols); err != nil {
			slog.Error("csv export", "error", err)
		}
	case "jsonl":
		w.Header().Set("Content-Type", "application/x-ndjson")
		if err := export.JSONL(w, records); err != nil {
			slog.Error("jsonl export", "error", err)
		}
	default:
		writeError(w, 400, fmt.Errorf("unknown format %q", format))
	}
}

func (s *server) handleSchemas(w http.ResponseWriter, r *http.Request) {
	infos, err := s.svc.Schemas(r.Context())
	if err != nil {
		writeError(w, 500, err)
		return
	}
	writeJSON(w, 200, infos)
}

func (s *server) handleApplySchema(w http.ResponseWriter, r *http.Request) {
	var schema annotate.Schema
	if err := json.NewDecoder(r.Body).Decode(&schema); err != nil {
		writeError(w, 400, err)
		return
	}
	if err := s.svc.EnsureSchema(r.Context(), &schema); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, 200, map[string]any{"status": "ok", "schema": schema.Name, "fields": len(schema.Fields)})
}

func (s *server) handleHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := s.svc.FetchHistory(r.Context(), r.URL.Query().Get("handle"), queryInt(r, "limit", 20))
	if err != nil {
		writeError(w, 500, err)
		return
	}
	writeJSON(w, 200, entries)
}

func (s *server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.svc.Stats(r.Context())
	if err != nil {
		writeError(w, 500, err)
		return
	}
	writeJSON(w, 200, stats)
}

func filterFrom(r *http.Request) store.Filter {
	q := r.URL.Query()
	var handles []string
	if h := q.Get("handle"); h != "" {
		handles = []string{h}
	}
	return store.Filter{
		Handles:      handles,
		StartDate:    q.Get("start"),
		EndDate:      q.Get("end"),
		TextContains: q.Get("contains"),
		Limit:        queryInt(r, "limit", 0),
	}
}

func statusFor(err error) int {
	if errors.Is(err, suivi.ErrInvalidInput) {
		return 400
	}
	return 500
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func queryInt(r *http.Request, key string, def int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
