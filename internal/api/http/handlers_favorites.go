package apihttp

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"mediastream/internal/domain"
)

type favoriteRequest struct {
	ContentID string `json:"contentId"`
	Title     string `json:"title"`
	Category  string `json:"category"`
}

func (s *Server) handleFavorites(w http.ResponseWriter, r *http.Request) {
	if s.favorites == nil {
		writeError(w, http.StatusNotImplemented, "favorites not configured")
		return
	}
	switch r.Method {
	case http.MethodGet:
		limit, err := parseOptionalIntQuery(r.URL.Query().Get("limit"), 0)
		if err != nil || limit < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		favorites, err := s.favorites.List(r.Context(), limit)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, favorites)
	case http.MethodPost, http.MethodPut:
		var req favoriteRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if strings.TrimSpace(req.ContentID) == "" {
			writeError(w, http.StatusBadRequest, "contentId is required")
			return
		}
		fav := domain.Favorite{
			ContentID: domain.ContentID(req.ContentID),
			Title:     strings.TrimSpace(req.Title),
			Category:  strings.TrimSpace(req.Category),
			CreatedAt: time.Now(),
		}
		if err := s.favorites.Upsert(r.Context(), fav); err != nil {
			writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, fav)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleFavoriteByID(w http.ResponseWriter, r *http.Request) {
	if s.favorites == nil {
		writeError(w, http.StatusNotImplemented, "favorites not configured")
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/favorites/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if r.Method != http.MethodDelete {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if err := s.favorites.Delete(r.Context(), domain.ContentID(id)); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
