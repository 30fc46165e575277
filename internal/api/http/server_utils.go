package apihttp

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"mediastream/internal/domain"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

func writeStreamError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidFileIndex):
		writeError(w, http.StatusBadRequest, "invalid fileIndex")
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "content not found")
	case errors.Is(err, domain.ErrRangeUnsatisfiable):
		writeError(w, http.StatusRequestedRangeNotSatisfiable, "requested range not satisfiable")
	case errors.Is(err, domain.ErrUpstreamUnavailable):
		writeError(w, http.StatusServiceUnavailable, "source data unavailable")
	case errors.Is(err, domain.ErrTranscodeUnavailable):
		writeError(w, http.StatusInternalServerError, "transcoding unavailable")
	default:
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, domain.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	writeError(w, http.StatusInternalServerError, "storage error")
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// parseFileIndex reads the fileIndex query parameter. An absent parameter
// defaults to file 0.
func parseFileIndex(value string) (int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return 0, nil
	}
	parsed, err := strconv.Atoi(trimmed)
	if err != nil {
		return 0, errors.New("fileIndex must be an integer")
	}
	if parsed < 0 {
		return 0, errors.New("fileIndex must be >= 0")
	}
	return parsed, nil
}

func parseTranscodeMode(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "auto", "true", "1":
		return true
	default:
		return false
	}
}

func parseOptionalIntQuery(value string, defaultValue int) (int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.Atoi(trimmed)
	if err != nil {
		return 0, err
	}
	return parsed, nil
}
