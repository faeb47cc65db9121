// ============================================================================
// HTTP API - cache lookup, job trigger/status, diagnostics
// ============================================================================
//
// Package: internal/server
// Purpose: The external surface of the pipeline. Request handlers are thin:
//          cache lookups never fail (degrading to all-missing), job
//          creation reuses an active duplicate instead of enqueuing twice,
//          and the diagnostics endpoints are read-only and gated by an
//          internal shared secret in production.
//
// Routes:
//	GET    /api/events                 cache split for (city, date, categories)
//	POST   /api/jobs                   create-or-reuse a refresh job
//	GET    /api/jobs/{id}              job document (polled by clients)
//	GET    /internal/cache             cache size + key listing
//	GET    /internal/cache/entry       per-key metadata
//	DELETE /internal/cache             clear by normalized prefix
//	GET    /internal/health            backend round-trip health
//	GET    /metrics                    Prometheus
//
// ============================================================================

package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alexandercfriedrich/where2go-clean-sub008/internal/cache"
	"github.com/alexandercfriedrich/where2go-clean-sub008/internal/jobstore"
	"github.com/alexandercfriedrich/where2go-clean-sub008/internal/metrics"
	"github.com/alexandercfriedrich/where2go-clean-sub008/pkg/types"
)

var log = slog.Default()

// internalSecretHeader carries the diagnostics shared secret.
const internalSecretHeader = "X-Internal-Secret"

// Server wires the HTTP handlers to the cache and job stores.
type Server struct {
	cache      cache.Store
	jobs       jobstore.Store
	metrics    *metrics.Collector
	secret     string
	production bool
}

// New creates the API server. The metrics collector may be nil.
func New(cacheStore cache.Store, jobs jobstore.Store, collector *metrics.Collector, secret string, production bool) *Server {
	return &Server{
		cache:      cacheStore,
		jobs:       jobs,
		metrics:    collector,
		secret:     secret,
		production: production,
	}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/events", s.handleEvents)
	mux.HandleFunc("POST /api/jobs", s.handleCreateJob)
	mux.HandleFunc("GET /api/jobs/{id}", s.handleGetJob)

	mux.HandleFunc("GET /internal/cache", s.gated(s.handleCacheInfo))
	mux.HandleFunc("GET /internal/cache/entry", s.gated(s.handleCacheEntry))
	mux.HandleFunc("DELETE /internal/cache", s.gated(s.handleCacheClear))
	mux.HandleFunc("GET /internal/health", s.gated(s.handleHealth))

	mux.Handle("GET /metrics", promhttp.Handler())

	return mux
}

// gated requires the internal shared secret in production. Outside
// production the diagnostics surface is open for local debugging.
func (s *Server) gated(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.production && r.Header.Get(internalSecretHeader) != s.secret {
			writeError(w, http.StatusForbidden, "missing or invalid internal secret")
			return
		}
		next(w, r)
	}
}

// ----------------------------------------------------------------------------
// Cache lookup
// ----------------------------------------------------------------------------

type eventsResponse struct {
	City              string                         `json:"city"`
	Date              string                         `json:"date"`
	CachedEvents      map[string][]types.EventRecord `json:"cachedEvents"`
	MissingCategories []string                       `json:"missingCategories"`
	CacheInfo         map[string]cache.CategoryInfo  `json:"cacheInfo"`
	JobID             string                         `json:"jobId,omitempty"`
	JobStatus         types.JobStatus                `json:"jobStatus,omitempty"`
}

// handleEvents answers the cache split for a (city, date, categories)
// request. It never errors on a degraded backend: every category simply
// reads as missing. With ensure=1, missing categories trigger (or reuse)
// a refresh job.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	city := r.URL.Query().Get("city")
	date := r.URL.Query().Get("date")
	categories := splitCategories(r.URL.Query().Get("categories"))
	if city == "" || date == "" || len(categories) == 0 {
		writeError(w, http.StatusBadRequest, "city, date and categories are required")
		return
	}

	result := s.cache.GetByCategories(r.Context(), city, date, categories)
	if s.metrics != nil {
		s.metrics.RecordCacheLookup(len(result.CachedEvents), len(result.MissingCategories))
	}

	resp := eventsResponse{
		City:              city,
		Date:              date,
		CachedEvents:      result.CachedEvents,
		MissingCategories: result.MissingCategories,
		CacheInfo:         result.Info,
	}

	if r.URL.Query().Get("ensure") == "1" && len(result.MissingCategories) > 0 {
		job, _, err := s.ensureJob(r, city, date, result.MissingCategories)
		if err != nil {
			// Best effort: the cache split is still valid without a job.
			log.Error("failed to ensure refresh job", "city", city, "date", date, "error", err)
		} else {
			resp.JobID = string(job.ID)
			resp.JobStatus = job.Status
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// ----------------------------------------------------------------------------
// Jobs
// ----------------------------------------------------------------------------

type createJobRequest struct {
	City       string   `json:"city"`
	Date       string   `json:"date"`
	Categories []string `json:"categories"`
}

type createJobResponse struct {
	JobID      string          `json:"jobId,omitempty"`
	Status     types.JobStatus `json:"status,omitempty"`
	Reused     bool            `json:"reused,omitempty"`
	AllCached  bool            `json:"allCached,omitempty"`
	Categories []string        `json:"categories,omitempty"`
}

// handleCreateJob creates a refresh job for the categories that are
// actually missing. The cache is re-checked first so fresh categories
// never reach the queue, and an identical active request is reused.
func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var req createJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.City == "" || req.Date == "" || len(req.Categories) == 0 {
		writeError(w, http.StatusBadRequest, "city, date and categories are required")
		return
	}
	req.Categories = cache.UniqueCategories(req.Categories)

	result := s.cache.GetByCategories(r.Context(), req.City, req.Date, req.Categories)
	if len(result.MissingCategories) == 0 {
		writeJSON(w, http.StatusOK, createJobResponse{AllCached: true})
		return
	}

	job, reused, err := s.ensureJob(r, req.City, req.Date, result.MissingCategories)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create job")
		return
	}

	status := http.StatusCreated
	if reused {
		status = http.StatusOK
	}
	writeJSON(w, status, createJobResponse{
		JobID:      string(job.ID),
		Status:     job.Status,
		Reused:     reused,
		Categories: job.Categories,
	})
}

// ensureJob returns an existing non-terminal job for the same request, or
// creates and enqueues a new one.
func (s *Server) ensureJob(r *http.Request, city, date string, categories []string) (*types.Job, bool, error) {
	ctx := r.Context()
	key := jobstore.ActiveKey(city, date, categories)

	if id, ok := s.jobs.FindActive(ctx, key); ok {
		if job, err := s.jobs.GetJob(ctx, id); err == nil && !job.Status.Terminal() {
			if s.metrics != nil {
				s.metrics.RecordJobCreated(true)
			}
			return job, true, nil
		}
		// Index pointed at a finished or vanished job; fall through.
	}

	job := types.Job{
		ID:         types.JobID(uuid.NewString()),
		City:       city,
		Date:       date,
		Categories: categories,
		Status:     types.StatusPending,
		Progress:   types.JobProgress{TotalCategories: len(categories)},
	}
	if err := s.jobs.CreateJob(ctx, job); err != nil {
		return nil, false, err
	}
	if err := s.jobs.Enqueue(ctx, job.ID); err != nil {
		return nil, false, err
	}
	if s.metrics != nil {
		s.metrics.RecordJobCreated(false)
	}
	log.Info("refresh job enqueued",
		"jobID", job.ID,
		"city", city,
		"date", date,
		"categories", len(categories))
	return &job, false, nil
}

// handleGetJob serves the job document clients poll.
func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id := types.JobID(r.PathValue("id"))

	job, err := s.jobs.GetJob(r.Context(), id)
	if err != nil {
		if errors.Is(err, jobstore.ErrJobNotFound) {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load job")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// ----------------------------------------------------------------------------
// Diagnostics (read-only; must report rather than raise)
// ----------------------------------------------------------------------------

func (s *Server) handleCacheInfo(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	writeJSON(w, http.StatusOK, map[string]any{
		"size": s.cache.Size(ctx),
		"keys": s.cache.ListKeys(ctx),
	})
}

func (s *Server) handleCacheEntry(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	if key == "" {
		writeError(w, http.StatusBadRequest, "key is required")
		return
	}
	info, ok := s.cache.Inspect(r.Context(), key)
	if !ok {
		writeError(w, http.StatusNotFound, "no such cache entry")
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleCacheClear(w http.ResponseWriter, r *http.Request) {
	prefix := r.URL.Query().Get("prefix")
	if prefix == "" {
		writeError(w, http.StatusBadRequest, "prefix is required")
		return
	}
	removed, err := s.cache.Clear(r.Context(), cache.NormalizeSegment(prefix))
	if err != nil {
		log.Error("cache clear failed", "prefix", prefix, "error", err)
	}
	writeJSON(w, http.StatusOK, map[string]any{"removed": removed})
}

// handleHealth runs a synthetic job-store round-trip (set/get/delete) and
// reports the cache size. Backend failures degrade to ok=false, never to
// a handler error.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	probe := types.Job{
		ID:         types.JobID("health-" + uuid.NewString()),
		City:       "health",
		Date:       "0000-00-00",
		Categories: []string{"probe"},
		Status:     types.StatusPending,
	}

	ok := true
	if err := s.jobs.CreateJob(ctx, probe); err != nil {
		ok = false
	} else {
		if _, err := s.jobs.GetJob(ctx, probe.ID); err != nil {
			ok = false
		}
		if err := s.jobs.DeleteJob(ctx, probe.ID); err != nil {
			ok = false
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"jobStoreOK": ok,
		"cacheSize":  s.cache.Size(ctx),
	})
}

// ----------------------------------------------------------------------------
// Helpers
// ----------------------------------------------------------------------------

func splitCategories(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return cache.UniqueCategories(out)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Error("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
