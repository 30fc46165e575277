package apihttp

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"mediastream/internal/domain"
)

type addContentRequest struct {
	Magnet string `json:"magnet"`
}

func (s *Server) handleContent(w http.ResponseWriter, r *http.Request) {
	if s.content == nil {
		writeError(w, http.StatusNotImplemented, "content management not configured")
		return
	}
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.content.List())
	case http.MethodPost:
		s.addContent(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) addContent(w http.ResponseWriter, r *http.Request) {
	var req addContentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	magnet := strings.TrimSpace(req.Magnet)
	if magnet == "" {
		writeError(w, http.StatusBadRequest, "magnet is required")
		return
	}

	id, err := s.content.Add(r.Context(), magnet)
	if err != nil {
		s.logger.Error("add content failed", slog.String("error", err.Error()))
		writeStreamError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": string(id)})
}

func (s *Server) handleContentByID(w http.ResponseWriter, r *http.Request) {
	if s.content == nil {
		writeError(w, http.StatusNotImplemented, "content management not configured")
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/content/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusNotFound, "content not found")
		return
	}

	switch r.Method {
	case http.MethodDelete:
		if err := s.content.Remove(domain.ContentID(id)); err != nil {
			writeStoreError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}
