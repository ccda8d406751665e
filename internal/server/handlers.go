package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/wtm/internal/catalog"
	"github.com/hyperjump/wtm/internal/embedding"
	"github.com/hyperjump/wtm/internal/matcher"
	"github.com/hyperjump/wtm/internal/models"
	"github.com/hyperjump/wtm/internal/ocr"
	"github.com/hyperjump/wtm/internal/storage"
)

func (s *Server) handleMatch(w http.ResponseWriter, r *http.Request) {
	var req models.MatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.Validate(s.Config.Matching.MaxTopK); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	resp, err := s.match(r.Context(), req.Text, matchOptions(req)...)
	if err != nil {
		s.respondFailure(w, "match", err)
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func matchOptions(req models.MatchRequest) []matcher.CallOption {
	var opts []matcher.CallOption
	if req.TopK > 0 {
		opts = append(opts, matcher.WithTopK(req.TopK))
	}
	if req.Threshold != nil {
		opts = append(opts, matcher.WithThreshold(*req.Threshold))
	}
	return opts
}

// match resolves text and wraps the results with a run id and timing.
func (s *Server) match(ctx context.Context, text string, opts ...matcher.CallOption) (*models.MatchResponse, error) {
	start := time.Now()
	id := uuid.NewString()
	results, err := s.Resolver.Resolve(ctx, text, opts...)
	if err != nil {
		return nil, err
	}
	resp := &models.MatchResponse{
		MatchID:   id,
		Results:   results,
		QueryTime: time.Since(start).Milliseconds(),
	}
	s.Logger.Debug("match done",
		zap.String("match_id", id),
		zap.Int("items", len(results)),
		zap.Int64("query_time_ms", resp.QueryTime),
	)
	return resp, nil
}

func (s *Server) handleBackfill(w http.ResponseWriter, r *http.Request) {
	if s.Backfiller == nil {
		s.respondError(w, http.StatusNotImplemented, "backfill not available")
		return
	}
	recompute, _ := strconv.ParseBool(r.URL.Query().Get("recompute"))
	report, err := s.Backfiller.Run(r.Context(), catalog.BackfillOptions{Recompute: recompute})
	if err != nil {
		s.respondFailure(w, "backfill", err)
		return
	}
	s.respondJSON(w, http.StatusOK, report)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if err := s.Catalog.Refresh(r.Context()); err != nil {
		s.respondFailure(w, "catalog refresh", err)
		return
	}
	stats, err := s.Catalog.Stats(r.Context())
	if err != nil {
		s.respondFailure(w, "catalog stats", err)
		return
	}
	s.respondJSON(w, http.StatusOK, stats)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.Store.Ping(r.Context()); err != nil {
		s.respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// cacheReporter is implemented by models that cache embeddings.
type cacheReporter interface {
	CacheStats() (embedding.CacheStats, bool)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	menus, err := s.Store.CountMenus(ctx)
	if err != nil {
		s.respondFailure(w, "status: count menus", err)
		return
	}
	foods, err := s.Store.CountFoods(ctx)
	if err != nil {
		s.respondFailure(w, "status: count foods", err)
		return
	}
	embedded, err := s.Store.CountEmbeddedFoods(ctx)
	if err != nil {
		s.respondFailure(w, "status: count embedded foods", err)
		return
	}
	resp := map[string]interface{}{
		"menus":          menus,
		"foods":          foods,
		"embedded_foods": embedded,
	}
	if stats, err := s.Catalog.Stats(ctx); err == nil {
		resp["catalog"] = stats
	} else {
		s.Logger.Warn("status: catalog stats failed", zap.Error(err))
	}
	if s.Model != nil {
		model := map[string]interface{}{"id": s.Model.ModelID(), "loaded": s.Model.Loaded()}
		if cs, ok := s.Model.(cacheReporter); ok {
			if stats, enabled := cs.CacheStats(); enabled {
				model["cache"] = stats
			}
		}
		resp["model"] = model
	}
	if s.Names != nil {
		if n, err := s.Names.DocCount(); err == nil {
			resp["name_index_size"] = n
		}
	}

	cfg := s.Config
	configInfo := map[string]interface{}{
		"catalog_backend":      cfg.Catalog.Backend,
		"embedding_provider":   cfg.Embedding.Provider,
		"embedding_dimensions": cfg.Embedding.Dimensions,
		"top_k":                cfg.Matching.TopK,
		"threshold":            cfg.Matching.ThresholdOrDefault(),
		"database_path":        cfg.Storage.DatabasePath,
	}
	if diskBytes, err := storage.DiskUsageBytes(
		cfg.Storage.DatabasePath,
		cfg.Storage.IndexSnapshotPath,
		cfg.Storage.NameIndexPath,
	); err == nil {
		resp["disk_usage_bytes"] = diskBytes
	}
	resp["config"] = configInfo
	s.respondJSON(w, http.StatusOK, resp)
}

// parseID reads the {id} path parameter.
func parseID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

// parsePage reads skip/limit query parameters; limit defaults to storage.DefaultListLimit.
func parsePage(r *http.Request) (offset, limit int, err error) {
	q := r.URL.Query()
	limit = storage.DefaultListLimit
	if v := q.Get("skip"); v != "" {
		if offset, err = strconv.Atoi(v); err != nil || offset < 0 {
			return 0, 0, errors.New("skip must be a non-negative integer")
		}
	}
	if v := q.Get("limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil || limit <= 0 {
			return 0, 0, errors.New("limit must be a positive integer")
		}
	}
	return offset, limit, nil
}

// respondFailure maps domain errors to HTTP status codes.
func (s *Server) respondFailure(w http.ResponseWriter, op string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, storage.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, catalog.ErrCatalogUnavailable):
		status = http.StatusServiceUnavailable
	case errors.Is(err, ocr.ErrOCRUnavailable):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, ocr.ErrUnsupportedFormat):
		status = http.StatusUnsupportedMediaType
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}
	if status >= http.StatusInternalServerError {
		s.Logger.Error(op+" failed", zap.Error(err))
	} else {
		s.Logger.Debug(op+" failed", zap.Error(err))
	}
	s.respondError(w, status, err.Error())
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
