package server

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/wtm/internal/matcher"
	"github.com/hyperjump/wtm/internal/models"
)

// createMenuResponse is returned by POST /menus.
type createMenuResponse struct {
	Menu    *models.Menu         `json:"menu"`
	MatchID string               `json:"match_id,omitempty"`
	Results []models.MatchResult `json:"results"`
}

func mediaType(r *http.Request) string {
	mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return mt
}

// handleCreateMenu accepts either a multipart upload (menu_image file plus
// optional ocr_text and original_image_url fields) or a JSON body; anything
// else is 415. The upload is only read for its text and is not kept, so
// original_image_url is whatever reference the caller supplies. Text is
// resolved against the catalog before the menu is stored.
func (s *Server) handleCreateMenu(w http.ResponseWriter, r *http.Request) {
	menu := &models.Menu{}
	switch mediaType(r) {
	case "multipart/form-data":
		maxBytes := int64(s.Config.Server.MaxUploadMB) << 20
		if r.ContentLength > maxBytes {
			s.respondError(w, http.StatusRequestEntityTooLarge, "upload too large")
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
		if err := r.ParseMultipartForm(maxBytes); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				s.respondError(w, http.StatusRequestEntityTooLarge, "upload too large")
				return
			}
			s.respondError(w, http.StatusBadRequest, "invalid multipart form")
			return
		}
		menu.OCRText = r.FormValue("ocr_text")
		menu.OriginalImageURL = strings.TrimSpace(r.FormValue("original_image_url"))
		file, header, err := r.FormFile("menu_image")
		switch {
		case err == nil:
			defer file.Close()
			data, err := io.ReadAll(file)
			if err != nil {
				s.respondError(w, http.StatusBadRequest, "failed to read menu_image")
				return
			}
			text, err := s.Extractor.ExtractBytes(r.Context(), data, filepath.Ext(header.Filename))
			if err != nil {
				s.respondFailure(w, "extract menu text", err)
				return
			}
			if strings.TrimSpace(menu.OCRText) == "" {
				menu.OCRText = text
			}
		case errors.Is(err, http.ErrMissingFile):
		default:
			s.respondError(w, http.StatusBadRequest, "invalid menu_image")
			return
		}
	case "application/json":
		var in models.MenuUpdate
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			s.respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		in.Apply(menu)
	default:
		s.respondError(w, http.StatusUnsupportedMediaType, "content type must be multipart/form-data or application/json")
		return
	}

	resp := createMenuResponse{Menu: menu, Results: []models.MatchResult{}}
	if strings.TrimSpace(menu.OCRText) != "" {
		m, err := s.match(r.Context(), menu.OCRText)
		if err != nil {
			s.respondFailure(w, "match menu", err)
			return
		}
		resp.MatchID, resp.Results = m.MatchID, m.Results
	}
	if err := s.Store.CreateMenu(r.Context(), menu); err != nil {
		s.respondFailure(w, "create menu", err)
		return
	}
	s.Logger.Info("menu created", zap.Int64("id", menu.ID), zap.Int("items", len(resp.Results)))
	s.respondJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleListMenus(w http.ResponseWriter, r *http.Request) {
	offset, limit, err := parsePage(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	menus, err := s.Store.ListMenus(r.Context(), offset, limit)
	if err != nil {
		s.respondFailure(w, "list menus", err)
		return
	}
	if menus == nil {
		menus = []*models.Menu{}
	}
	s.respondJSON(w, http.StatusOK, menus)
}

func (s *Server) handleGetMenu(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid menu id")
		return
	}
	menu, err := s.Store.GetMenu(r.Context(), id)
	if err != nil {
		s.respondFailure(w, "get menu", err)
		return
	}
	if menu.Foods, err = s.Store.ListFoodsByMenu(r.Context(), id); err != nil {
		s.respondFailure(w, "list menu foods", err)
		return
	}
	s.respondJSON(w, http.StatusOK, menu)
}

func (s *Server) handleUpdateMenu(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid menu id")
		return
	}
	var in models.MenuUpdate
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	menu, err := s.Store.GetMenu(r.Context(), id)
	if err != nil {
		s.respondFailure(w, "get menu", err)
		return
	}
	in.Apply(menu)
	if err := s.Store.UpdateMenu(r.Context(), menu); err != nil {
		s.respondFailure(w, "update menu", err)
		return
	}
	s.respondJSON(w, http.StatusOK, menu)
}

func (s *Server) handleDeleteMenu(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid menu id")
		return
	}
	ctx := r.Context()
	menu, err := s.Store.GetMenu(ctx, id)
	if err != nil {
		s.respondFailure(w, "get menu", err)
		return
	}
	foods, err := s.Store.ListFoodsByMenu(ctx, id)
	if err != nil {
		s.respondFailure(w, "list menu foods", err)
		return
	}
	if err := s.Store.DeleteMenu(ctx, id); err != nil {
		s.respondFailure(w, "delete menu", err)
		return
	}
	for _, f := range foods {
		s.forgetFood(ctx, f.ID)
	}
	if len(foods) > 0 {
		s.refreshCatalog(ctx)
	}
	menu.Foods = foods
	s.respondJSON(w, http.StatusOK, menu)
}

func (s *Server) handleListMenuFoods(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid menu id")
		return
	}
	if _, err := s.Store.GetMenu(r.Context(), id); err != nil {
		s.respondFailure(w, "get menu", err)
		return
	}
	foods, err := s.Store.ListFoodsByMenu(r.Context(), id)
	if err != nil {
		s.respondFailure(w, "list menu foods", err)
		return
	}
	if foods == nil {
		foods = []*models.Food{}
	}
	s.respondJSON(w, http.StatusOK, foods)
}

// handleMenuMatches re-resolves a stored menu's OCR text. top_k and threshold
// query parameters override the defaults.
func (s *Server) handleMenuMatches(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid menu id")
		return
	}
	var opts []matcher.CallOption
	q := r.URL.Query()
	if v := q.Get("top_k"); v != "" {
		k, err := strconv.Atoi(v)
		if err != nil || k < 0 {
			s.respondError(w, http.StatusBadRequest, "top_k must be a non-negative integer")
			return
		}
		if maxK := s.Config.Matching.MaxTopK; maxK > 0 && k > maxK {
			k = maxK
		}
		opts = append(opts, matcher.WithTopK(k))
	}
	if v := q.Get("threshold"); v != "" {
		th, err := strconv.ParseFloat(v, 64)
		if err != nil || th < -1 || th > 1 {
			s.respondError(w, http.StatusBadRequest, "threshold must be within [-1, 1]")
			return
		}
		opts = append(opts, matcher.WithThreshold(th))
	}

	menu, err := s.Store.GetMenu(r.Context(), id)
	if err != nil {
		s.respondFailure(w, "get menu", err)
		return
	}
	resp, err := s.match(r.Context(), menu.OCRText, opts...)
	if err != nil {
		s.respondFailure(w, "match menu", err)
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}
