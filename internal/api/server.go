// Package api exposes the lookup engine over HTTP: health, single and batch
// lookups, cache maintenance, and an SSE streaming variant.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/utility-lookup/internal/model"
)

const maxBatchAddresses = 100

// Engine is the slice of the lookup engine the server needs.
type Engine interface {
	Lookup(ctx context.Context, address string, useCache bool) *model.LookupResult
	LookupBatch(ctx context.Context, addresses []string, useCache bool) []*model.LookupResult
	Loaded() bool
}

// CacheStore is the maintenance surface of the result cache.
type CacheStore interface {
	ClearExpired(ctx context.Context) (int, error)
}

// CorrectionsStore accepts mapper ground-truth overrides.
type CorrectionsStore interface {
	RecordCorrection(ctx context.Context, c model.Correction) error
}

// Server handles HTTP lookup traffic.
type Server struct {
	engine      Engine
	cache       CacheStore
	corrections CorrectionsStore
	apiKeys     map[string]bool
	started     time.Time
}

// WithCorrections enables the POST /corrections endpoint.
func (s *Server) WithCorrections(store CorrectionsStore) *Server {
	s.corrections = store
	return s
}

// NewServer builds a Server. An empty key list disables authentication.
func NewServer(eng Engine, cache CacheStore, apiKeys []string) *Server {
	keys := make(map[string]bool, len(apiKeys))
	for _, k := range apiKeys {
		if k = strings.TrimSpace(k); k != "" {
			keys[k] = true
		}
	}
	if len(keys) == 0 {
		zap.L().Warn("no API keys configured, authentication disabled")
	}
	return &Server{
		engine:  eng,
		cache:   cache,
		apiKeys: keys,
		started: time.Now(),
	}
}

// Router assembles the chi route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-API-Key"},
	}))

	r.Get("/health", s.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(s.requireKey)
		r.Get("/lookup", s.handleLookup)
		r.Post("/lookup", s.handleLookup)
		r.Post("/lookup/batch", s.handleLookupBatch)
		r.Delete("/cache", s.handleClearCache)
		r.Post("/corrections", s.handleRecordCorrection)
		r.Get("/api/lookup/stream", s.handleLookupStream)
	})

	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		zap.L().Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
		)
	})
}

// requireKey enforces API-key auth via the X-API-Key header or api_key query
// parameter. With no keys configured every request passes.
func (s *Server) requireKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(s.apiKeys) > 0 {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if !s.apiKeys[key] {
				writeError(w, http.StatusUnauthorized, "missing or invalid API key")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	status := "ok"
	if !s.engine.Loaded() {
		status = "loading"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         status,
		"engine_loaded":  s.engine.Loaded(),
		"uptime_seconds": int(time.Since(s.started).Seconds()),
	})
}

func (s *Server) handleLookup(w http.ResponseWriter, r *http.Request) {
	if !s.engine.Loaded() {
		writeError(w, http.StatusServiceUnavailable, "engine is still loading")
		return
	}
	address := strings.TrimSpace(r.URL.Query().Get("address"))
	if address == "" {
		writeError(w, http.StatusBadRequest, "address parameter is required")
		return
	}
	useCache := !isTruthy(r.URL.Query().Get("no_cache"))

	result := s.engine.Lookup(r.Context(), address, useCache)
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleLookupBatch(w http.ResponseWriter, r *http.Request) {
	if !s.engine.Loaded() {
		writeError(w, http.StatusServiceUnavailable, "engine is still loading")
		return
	}
	var req struct {
		Addresses []string `json:"addresses"`
		NoCache   bool     `json:"no_cache"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Addresses) == 0 {
		writeError(w, http.StatusBadRequest, "addresses is required")
		return
	}
	if len(req.Addresses) > maxBatchAddresses {
		writeError(w, http.StatusBadRequest,
			fmt.Sprintf("at most %d addresses per batch", maxBatchAddresses))
		return
	}

	start := time.Now()
	results := s.engine.LookupBatch(r.Context(), req.Addresses, !req.NoCache)
	writeJSON(w, http.StatusOK, map[string]any{
		"results":        results,
		"total":          len(results),
		"lookup_time_ms": time.Since(start).Milliseconds(),
	})
}

func (s *Server) handleClearCache(w http.ResponseWriter, r *http.Request) {
	if s.cache == nil {
		writeJSON(w, http.StatusOK, map[string]int{"cleared": 0})
		return
	}
	cleared, err := s.cache.ClearExpired(r.Context())
	if err != nil {
		zap.L().Error("cache clear failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "cache clear failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"cleared": cleared})
}

// handleRecordCorrection appends a mapper override. Corrected results win
// over every other source on the next uncached lookup.
func (s *Server) handleRecordCorrection(w http.ResponseWriter, r *http.Request) {
	if s.corrections == nil {
		writeError(w, http.StatusServiceUnavailable, "corrections store not configured")
		return
	}
	var c model.Correction
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if c.CorrectedProvider == "" {
		writeError(w, http.StatusBadRequest, "corrected_provider is required")
		return
	}
	if c.Address == "" && c.Lat == 0 && c.Lon == 0 {
		writeError(w, http.StatusBadRequest, "address or coordinates are required")
		return
	}
	if err := s.corrections.RecordCorrection(r.Context(), c); err != nil {
		zap.L().Error("record correction failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "record correction failed")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "recorded"})
}

// handleLookupStream runs one lookup and replays it as server-sent events,
// one per utility type, then a complete event with the full result.
func (s *Server) handleLookupStream(w http.ResponseWriter, r *http.Request) {
	if !s.engine.Loaded() {
		writeError(w, http.StatusServiceUnavailable, "engine is still loading")
		return
	}
	address := strings.TrimSpace(r.URL.Query().Get("address"))
	if address == "" {
		writeError(w, http.StatusBadRequest, "address parameter is required")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	useCache := !isTruthy(r.URL.Query().Get("no_cache"))
	result := s.engine.Lookup(r.Context(), address, useCache)

	for _, u := range []model.UtilityType{
		model.UtilityElectric, model.UtilityGas, model.UtilityWater,
		model.UtilitySewer, model.UtilityTrash,
	} {
		if p := result.Provider(u); p != nil {
			writeEvent(w, string(u), p)
			flusher.Flush()
		}
	}
	if result.Internet != nil {
		writeEvent(w, "internet", result.Internet)
		flusher.Flush()
	}
	writeEvent(w, "complete", result)
	flusher.Flush()
}

func writeEvent(w http.ResponseWriter, event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func isTruthy(v string) bool {
	switch strings.ToLower(v) {
	case "1", "true", "yes":
		return true
	}
	return false
}
