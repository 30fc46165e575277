package apihttp

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"mediastream/internal/domain"
)

func (s *Server) handleRadioSearch(w http.ResponseWriter, r *http.Request) {
	if s.radio == nil {
		writeError(w, http.StatusNotImplemented, "radio directory not configured")
		return
	}
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	query := strings.TrimSpace(r.URL.Query().Get("query"))
	if query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	stations, err := s.radio.Search(r.Context(), query)
	if err != nil {
		s.logger.Error("radio search failed",
			slog.String("query", query),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadGateway, "radio directory unavailable")
		return
	}
	writeJSON(w, http.StatusOK, stations)
}

func (s *Server) handleRadioTune(w http.ResponseWriter, r *http.Request) {
	if s.radio == nil {
		writeError(w, http.StatusNotImplemented, "radio directory not configured")
		return
	}
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	stationID := strings.TrimSpace(r.URL.Query().Get("id"))
	if stationID == "" {
		writeError(w, http.StatusBadRequest, "id is required")
		return
	}

	streamURL, err := s.radio.Tune(r.Context(), stationID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "station not found")
			return
		}
		s.logger.Error("radio tune failed",
			slog.String("stationId", stationID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadGateway, "radio directory unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": streamURL})
}
