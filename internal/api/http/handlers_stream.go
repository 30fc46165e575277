package apihttp

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"syscall"

	"mediastream/internal/domain"
	"mediastream/internal/stream"
)

// Marker headers for clients that need to distinguish a transcoded chunked
// response from a direct byte-range response.
const (
	headerTranscoded     = "X-Stream-Transcoded"
	headerPrebufferBytes = "X-Prebuffer-Bytes"
	headerMediaCategory  = "X-Media-Category"
)

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet, http.MethodHead:
		s.serveStream(w, r)
	case http.MethodOptions:
		// Preflight is normally answered by the CORS middleware; handle it
		// here too so the route works without the full chain.
		w.Header().Set("Allow", "GET, HEAD, OPTIONS")
		w.WriteHeader(http.StatusNoContent)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) serveStream(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	id := strings.TrimSpace(query.Get("id"))
	if id == "" {
		writeError(w, http.StatusBadRequest, "id is required")
		return
	}
	fileIndex, err := parseFileIndex(query.Get("fileIndex"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	req := stream.Request{
		ContentID:          domain.ContentID(id),
		FileIndex:          fileIndex,
		RangeHeader:        r.Header.Get("Range"),
		TranscodeRequested: parseTranscodeMode(query.Get("transcode")),
	}

	res, err := s.orchestrator.Open(r.Context(), req)
	if err != nil {
		writeStreamError(w, err)
		return
	}
	defer res.Body.Close()

	writeStreamHeaders(w, res)
	if r.Method == http.MethodHead {
		w.Header().Set(headerMediaCategory, string(res.Info.Category))
		w.WriteHeader(streamStatus(res))
		return
	}
	w.WriteHeader(streamStatus(res))

	if err := copyStream(w, res.Body); err != nil {
		if isClientDisconnect(err) {
			s.logger.Debug("client disconnected mid-stream",
				slog.String("streamId", res.ID),
				slog.String("file", res.Info.FileName),
			)
			return
		}
		s.logger.Warn("stream copy failed",
			slog.String("streamId", res.ID),
			slog.String("file", res.Info.FileName),
			slog.String("error", err.Error()),
		)
	}
}

func streamStatus(res stream.Result) int {
	if res.IsPartial {
		return http.StatusPartialContent
	}
	return http.StatusOK
}

func writeStreamHeaders(w http.ResponseWriter, res stream.Result) {
	h := w.Header()
	h.Set("Content-Type", res.MimeType)

	if res.Transcoded {
		// Chunked transfer; length is unknown until the encoder finishes.
		h.Set(headerTranscoded, "true")
		h.Set(headerPrebufferBytes, strconv.FormatInt(res.PreBufferBytes, 10))
		return
	}

	h.Set("Accept-Ranges", "bytes")
	if res.IsPartial && res.ContentRange != nil {
		h.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", res.ContentRange.Start, res.ContentRange.End, res.Size))
	}
	if res.ContentLength >= 0 {
		h.Set("Content-Length", strconv.FormatInt(res.ContentLength, 10))
	}
}

// copyStream flushes after every chunk so transcoded output reaches the
// player as soon as the pre-buffer releases it.
func copyStream(w http.ResponseWriter, body io.Reader) error {
	flusher, _ := w.(http.Flusher)
	buf := make([]byte, 64<<10)
	for {
		n, err := body.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return werr
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
	}
}

func isClientDisconnect(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, syscall.EPIPE) || errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "client disconnected") ||
		strings.Contains(msg, "context canceled")
}
