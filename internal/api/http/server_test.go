package apihttp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"mediastream/internal/domain"
	"mediastream/internal/domain/ports"
	"mediastream/internal/stream"
)

type fakeSource struct {
	infos map[string]domain.StreamInfo
	data  map[string][]byte
	err   error
}

func sourceKey(id domain.ContentID, fileIndex int) string {
	return fmt.Sprintf("%s/%d", id, fileIndex)
}

func (f *fakeSource) GetInfo(ctx context.Context, id domain.ContentID, fileIndex int) (domain.StreamInfo, error) {
	if f.err != nil {
		return domain.StreamInfo{}, f.err
	}
	info, ok := f.infos[sourceKey(id, fileIndex)]
	if !ok {
		return domain.StreamInfo{}, domain.ErrNotFound
	}
	return info, nil
}

func (f *fakeSource) Open(ctx context.Context, id domain.ContentID, fileIndex int, rng *domain.ByteRange, opts ports.OpenOptions) (ports.OpenedStream, error) {
	if f.err != nil {
		return ports.OpenedStream{}, f.err
	}
	data, ok := f.data[sourceKey(id, fileIndex)]
	if !ok {
		return ports.OpenedStream{}, domain.ErrNotFound
	}
	if rng == nil {
		return ports.OpenedStream{
			Reader:        io.NopCloser(bytes.NewReader(data)),
			ContentLength: int64(len(data)),
		}, nil
	}
	r := *rng
	return ports.OpenedStream{
		Reader:        io.NopCloser(bytes.NewReader(data[r.Start : r.End+1])),
		IsPartial:     true,
		ContentRange:  &r,
		ContentLength: r.Length(),
	}, nil
}

type fakeAnalyzer struct {
	report domain.CodecReport
}

func (f *fakeAnalyzer) AnalyzeReader(ctx context.Context, r io.Reader, category domain.MediaCategory) (domain.CodecReport, error) {
	return f.report, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T, source ports.ByteSource, analyzer ports.ContentAnalyzer) *Server {
	t.Helper()
	logger := testLogger()
	encoder := stream.NewEncoder("true", logger)
	orch := stream.NewOrchestrator(source, analyzer, encoder, stream.Config{
		VideoPrebufferBytes: 1024,
		AudioPrebufferBytes: 512,
		PrebufferTimeout:    500 * time.Millisecond,
	}, logger)
	srv := NewServer(orch, WithLogger(logger))
	t.Cleanup(srv.Close)
	return srv
}

func audioSource(id string, size int) *fakeSource {
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i % 251)
	}
	key := sourceKey(domain.ContentID(id), 0)
	return &fakeSource{
		infos: map[string]domain.StreamInfo{key: {
			FileName: "track.mp3",
			Size:     int64(size),
			MimeType: "audio/mpeg",
			Category: domain.MediaAudio,
		}},
		data: map[string][]byte{key: data},
	}
}

func videoSource(id string, size int) *fakeSource {
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i % 251)
	}
	key := sourceKey(domain.ContentID(id), 0)
	return &fakeSource{
		infos: map[string]domain.StreamInfo{key: {
			FileName: "movie.mkv",
			Size:     int64(size),
			MimeType: "video/x-matroska",
			Category: domain.MediaVideo,
		}},
		data: map[string][]byte{key: data},
	}
}

func decodeErrorBody(t *testing.T, body io.Reader) string {
	t.Helper()
	var payload errorResponse
	if err := json.NewDecoder(body).Decode(&payload); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if payload.Error == "" {
		t.Fatalf("error body has empty message")
	}
	return payload.Error
}

func TestStreamFullContent(t *testing.T) {
	srv := newTestServer(t, audioSource("a1", 1000), &fakeAnalyzer{})

	req := httptest.NewRequest(http.MethodGet, "/stream?id=a1", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := rec.Header().Get("Content-Length"); got != "1000" {
		t.Fatalf("Content-Length = %q, want 1000", got)
	}
	if got := rec.Header().Get("Accept-Ranges"); got != "bytes" {
		t.Fatalf("Accept-Ranges = %q, want bytes", got)
	}
	if got := rec.Header().Get("Content-Type"); got != "audio/mpeg" {
		t.Fatalf("Content-Type = %q", got)
	}
	if rec.Body.Len() != 1000 {
		t.Fatalf("body length = %d, want 1000", rec.Body.Len())
	}
}

func TestStreamPartialContent(t *testing.T) {
	srv := newTestServer(t, videoSource("v1", 10000), &fakeAnalyzer{})

	req := httptest.NewRequest(http.MethodGet, "/stream?id=v1", nil)
	req.Header.Set("Range", "bytes=0-999")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusPartialContent {
		t.Fatalf("status = %d, want 206", rec.Code)
	}
	if got := rec.Header().Get("Content-Range"); got != "bytes 0-999/10000" {
		t.Fatalf("Content-Range = %q, want bytes 0-999/10000", got)
	}
	if got := rec.Header().Get("Content-Length"); got != "1000" {
		t.Fatalf("Content-Length = %q, want 1000", got)
	}
	if rec.Body.Len() != 1000 {
		t.Fatalf("body length = %d, want 1000", rec.Body.Len())
	}
}

func TestStreamRangeUnsatisfiable(t *testing.T) {
	srv := newTestServer(t, audioSource("a1", 1000), &fakeAnalyzer{})

	req := httptest.NewRequest(http.MethodGet, "/stream?id=a1", nil)
	req.Header.Set("Range", "bytes=99999-100000")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusRequestedRangeNotSatisfiable {
		t.Fatalf("status = %d, want 416", rec.Code)
	}
	decodeErrorBody(t, rec.Body)
}

func TestStreamMalformedRangeServesFull(t *testing.T) {
	srv := newTestServer(t, audioSource("a1", 1000), &fakeAnalyzer{})

	req := httptest.NewRequest(http.MethodGet, "/stream?id=a1", nil)
	req.Header.Set("Range", "bytes=abc-def")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := rec.Header().Get("Content-Length"); got != "1000" {
		t.Fatalf("Content-Length = %q, want 1000", got)
	}
}

func TestStreamBadRequests(t *testing.T) {
	srv := newTestServer(t, audioSource("a1", 1000), &fakeAnalyzer{})

	cases := []struct {
		name string
		url  string
	}{
		{"missing id", "/stream"},
		{"non-numeric fileIndex", "/stream?id=a1&fileIndex=abc"},
		{"negative fileIndex", "/stream?id=a1&fileIndex=-1"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tc.url, nil)
			rec := httptest.NewRecorder()
			srv.ServeHTTP(rec, req)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
			decodeErrorBody(t, rec.Body)
		})
	}
}

func TestStreamNotFound(t *testing.T) {
	srv := newTestServer(t, audioSource("a1", 1000), &fakeAnalyzer{})

	req := httptest.NewRequest(http.MethodGet, "/stream?id=missing", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	decodeErrorBody(t, rec.Body)
}

func TestStreamUpstreamUnavailable(t *testing.T) {
	srv := newTestServer(t, &fakeSource{err: domain.ErrUpstreamUnavailable}, &fakeAnalyzer{})

	req := httptest.NewRequest(http.MethodGet, "/stream?id=a1", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	decodeErrorBody(t, rec.Body)
}

func TestStreamTranscoded(t *testing.T) {
	analyzer := &fakeAnalyzer{report: domain.CodecReport{
		Container:  "matroska",
		VideoCodec: "hevc",
		AudioCodec: "dts",
	}}
	srv := newTestServer(t, videoSource("v1", 10000), analyzer)

	req := httptest.NewRequest(http.MethodGet, "/stream?id=v1&transcode=auto", nil)
	// Byte ranges are meaningless against re-encoded output and must be
	// ignored on this path.
	req.Header.Set("Range", "bytes=0-999")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := rec.Header().Get(headerTranscoded); got != "true" {
		t.Fatalf("%s = %q, want true", headerTranscoded, got)
	}
	if got := rec.Header().Get(headerPrebufferBytes); got != "1024" {
		t.Fatalf("%s = %q, want 1024", headerPrebufferBytes, got)
	}
	if got := rec.Header().Get("Content-Length"); got != "" {
		t.Fatalf("Content-Length = %q, want unset", got)
	}
	if got := rec.Header().Get("Content-Range"); got != "" {
		t.Fatalf("Content-Range = %q, want unset", got)
	}
	if got := rec.Header().Get("Content-Type"); got != "video/mp4" {
		t.Fatalf("Content-Type = %q, want video/mp4", got)
	}
}

func TestStreamCompatibleSkipsTranscode(t *testing.T) {
	analyzer := &fakeAnalyzer{report: domain.CodecReport{
		Container:  "mp4",
		VideoCodec: "h264",
		AudioCodec: "aac",
	}}
	key := sourceKey("v2", 0)
	source := &fakeSource{
		infos: map[string]domain.StreamInfo{key: {
			FileName: "movie.mp4",
			Size:     2000,
			MimeType: "video/mp4",
			Category: domain.MediaVideo,
		}},
		data: map[string][]byte{key: make([]byte, 2000)},
	}
	srv := newTestServer(t, source, analyzer)

	req := httptest.NewRequest(http.MethodGet, "/stream?id=v2&transcode=auto", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := rec.Header().Get(headerTranscoded); got != "" {
		t.Fatalf("%s = %q, want unset", headerTranscoded, got)
	}
	if got := rec.Header().Get("Content-Length"); got != "2000" {
		t.Fatalf("Content-Length = %q, want 2000", got)
	}
}

func TestStreamHead(t *testing.T) {
	srv := newTestServer(t, videoSource("v1", 10000), &fakeAnalyzer{})

	req := httptest.NewRequest(http.MethodHead, "/stream?id=v1", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := rec.Header().Get(headerMediaCategory); got != "video" {
		t.Fatalf("%s = %q, want video", headerMediaCategory, got)
	}
	if rec.Body.Len() != 0 {
		t.Fatalf("HEAD body length = %d, want 0", rec.Body.Len())
	}
}

func TestStreamOptionsPreflight(t *testing.T) {
	srv := newTestServer(t, audioSource("a1", 1000), &fakeAnalyzer{})

	req := httptest.NewRequest(http.MethodOptions, "/stream", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Fatalf("Access-Control-Allow-Origin = %q", got)
	}
	if got := rec.Header().Get("Access-Control-Allow-Methods"); got == "" {
		t.Fatalf("Access-Control-Allow-Methods missing")
	}
}

func TestStreamOptionsOriginRejected(t *testing.T) {
	logger := testLogger()
	encoder := stream.NewEncoder("true", logger)
	orch := stream.NewOrchestrator(audioSource("a1", 1000), &fakeAnalyzer{}, encoder, stream.Config{}, logger)
	srv := NewServer(orch,
		WithLogger(logger),
		WithAllowedOrigins([]string{"http://app.example.com"}),
	)
	t.Cleanup(srv.Close)

	req := httptest.NewRequest(http.MethodOptions, "/stream", nil)
	req.Header.Set("Origin", "http://evil.example.com")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
}

func TestActiveStreamsEndpoint(t *testing.T) {
	srv := newTestServer(t, audioSource("a1", 1000), &fakeAnalyzer{})

	req := httptest.NewRequest(http.MethodGet, "/streams/active", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var streams []stream.ActiveStream
	if err := json.NewDecoder(rec.Body).Decode(&streams); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(streams) != 0 {
		t.Fatalf("active streams = %d, want 0", len(streams))
	}
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(t, audioSource("a1", 1000), &fakeAnalyzer{})

	req := httptest.NewRequest(http.MethodGet, "/internal/health", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}
