package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/wtm/internal/keyword"
	"github.com/hyperjump/wtm/internal/models"
)

const defaultSearchLimit = 10

func (s *Server) handleCreateFood(w http.ResponseWriter, r *http.Request) {
	var in models.FoodInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		s.respondError(w, http.StatusBadRequest, "name is required")
		return
	}
	food := in.ToFood()
	if err := s.Store.CreateFood(r.Context(), food); err != nil {
		s.respondFailure(w, "create food", err)
		return
	}
	s.afterFoodWrite(r.Context(), food)
	s.respondJSON(w, http.StatusCreated, food)
}

func (s *Server) handleListFoods(w http.ResponseWriter, r *http.Request) {
	offset, limit, err := parsePage(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	foods, err := s.Store.ListFoods(r.Context(), offset, limit)
	if err != nil {
		s.respondFailure(w, "list foods", err)
		return
	}
	if foods == nil {
		foods = []*models.Food{}
	}
	s.respondJSON(w, http.StatusOK, foods)
}

func (s *Server) handleGetFood(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid food id")
		return
	}
	food, err := s.Store.GetFood(r.Context(), id)
	if err != nil {
		s.respondFailure(w, "get food", err)
		return
	}
	s.respondJSON(w, http.StatusOK, food)
}

func (s *Server) handleUpdateFood(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid food id")
		return
	}
	var in models.FoodUpdate
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if in.Name != nil && strings.TrimSpace(*in.Name) == "" {
		s.respondError(w, http.StatusBadRequest, "name cannot be empty")
		return
	}
	ctx := r.Context()
	food, err := s.Store.GetFood(ctx, id)
	if err != nil {
		s.respondFailure(w, "get food", err)
		return
	}
	stale := in.Apply(food)
	if err := s.Store.UpdateFood(ctx, food); err != nil {
		s.respondFailure(w, "update food", err)
		return
	}
	s.afterFoodWrite(ctx, food)
	if stale && !food.HasEmbedding {
		// the old vector is gone from the store; drop it from the catalog too
		s.refreshCatalog(ctx)
	}
	s.respondJSON(w, http.StatusOK, food)
}

func (s *Server) handleDeleteFood(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid food id")
		return
	}
	ctx := r.Context()
	food, err := s.Store.GetFood(ctx, id)
	if err != nil {
		s.respondFailure(w, "get food", err)
		return
	}
	if err := s.Store.DeleteFood(ctx, id); err != nil {
		s.respondFailure(w, "delete food", err)
		return
	}
	s.forgetFood(ctx, id)
	if food.HasEmbedding {
		s.refreshCatalog(ctx)
	}
	s.respondJSON(w, http.StatusOK, food)
}

type foodSearchResponse struct {
	Query      string        `json:"query"`
	Hits       []keyword.Hit `json:"hits"`
	DidYouMean string        `json:"did_you_mean,omitempty"`
}

// handleSearchFoods is a lexical lookup over food names: ?q=&limit=&fuzzy=.
func (s *Server) handleSearchFoods(w http.ResponseWriter, r *http.Request) {
	if s.Names == nil {
		s.respondError(w, http.StatusNotImplemented, "name search not enabled")
		return
	}
	q := r.URL.Query()
	query := strings.TrimSpace(q.Get("q"))
	if query == "" {
		s.respondError(w, http.StatusBadRequest, "q is required")
		return
	}
	limit := defaultSearchLimit
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	fuzzy, _ := strconv.ParseBool(q.Get("fuzzy"))

	hits, err := s.Names.Search(r.Context(), query, limit, &keyword.SearchOptions{Fuzzy: fuzzy})
	if err != nil {
		s.respondFailure(w, "food search", err)
		return
	}
	resp := foodSearchResponse{Query: query, Hits: hits}
	if len(hits) == 0 && s.Suggester != nil {
		if corrected, changed, err := s.Suggester.Correct(query); err == nil && changed {
			resp.DidYouMean = corrected
		}
	}
	s.respondJSON(w, http.StatusOK, resp)
}

// afterFoodWrite keeps the name index, the stored embedding and the catalog in
// step with a created or updated food. Failures are logged; the write itself
// already succeeded and the backfill can catch up later.
func (s *Server) afterFoodWrite(ctx context.Context, food *models.Food) {
	if s.Names != nil {
		if err := s.Names.IndexFood(ctx, food); err != nil {
			s.Logger.Warn("name index update failed", zap.Int64("id", food.ID), zap.Error(err))
		}
		if s.Suggester != nil {
			s.Suggester.Invalidate()
		}
	}
	if s.Embedder == nil || food.HasEmbedding {
		return
	}
	vec, err := s.Embedder.Embed(ctx, food.EmbeddingText(s.Config.Catalog.EmbedIngredients))
	if err != nil {
		s.Logger.Warn("embedding on write failed, left for backfill", zap.Int64("id", food.ID), zap.Error(err))
		return
	}
	if err := s.Store.SetFoodEmbedding(ctx, food.ID, vec); err != nil {
		s.Logger.Warn("store embedding failed", zap.Int64("id", food.ID), zap.Error(err))
		return
	}
	food.Embedding, food.HasEmbedding = vec, true
	s.refreshCatalog(ctx)
}

func (s *Server) forgetFood(ctx context.Context, id int64) {
	if s.Names == nil {
		return
	}
	if err := s.Names.Delete(ctx, id); err != nil {
		s.Logger.Warn("name index delete failed", zap.Int64("id", id), zap.Error(err))
	}
	if s.Suggester != nil {
		s.Suggester.Invalidate()
	}
}

func (s *Server) refreshCatalog(ctx context.Context) {
	if err := s.Catalog.Refresh(ctx); err != nil {
		s.Logger.Warn("catalog refresh failed", zap.Error(err))
	}
}
