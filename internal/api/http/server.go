package apihttp

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"mediastream/internal/domain"
	"mediastream/internal/source/anacrolix"
	"mediastream/internal/stream"
)

// StreamOrchestrator is the pipeline entry point the stream handlers use.
type StreamOrchestrator interface {
	Open(ctx context.Context, req stream.Request) (stream.Result, error)
	ActiveStreams() []stream.ActiveStream
}

// ContentManager registers and lists content at the byte source.
type ContentManager interface {
	Add(ctx context.Context, magnet string) (domain.ContentID, error)
	List() []anacrolix.ContentSummary
	Remove(id domain.ContentID) error
}

// RadioDirectory mirrors the directory port for the radio handlers.
type RadioDirectory interface {
	Search(ctx context.Context, query string) ([]domain.RadioStation, error)
	Tune(ctx context.Context, stationID string) (string, error)
}

type FavoriteStore interface {
	Upsert(ctx context.Context, fav domain.Favorite) error
	Delete(ctx context.Context, id domain.ContentID) error
	List(ctx context.Context, limit int) ([]domain.Favorite, error)
}

type WatchHistoryStore interface {
	Upsert(ctx context.Context, wp domain.WatchPosition) error
	Get(ctx context.Context, id domain.ContentID, fileIndex int) (domain.WatchPosition, error)
	ListRecent(ctx context.Context, limit int) ([]domain.WatchPosition, error)
}

type Server struct {
	orchestrator   StreamOrchestrator
	content        ContentManager
	radio          RadioDirectory
	favorites      FavoriteStore
	watchHistory   WatchHistoryStore
	allowedOrigins []string
	logger         *slog.Logger
	handler        http.Handler
	wsHub          *wsHub
}

type ServerOption func(*Server)

func WithContentManager(cm ContentManager) ServerOption {
	return func(s *Server) {
		s.content = cm
	}
}

func WithRadioDirectory(rd RadioDirectory) ServerOption {
	return func(s *Server) {
		s.radio = rd
	}
}

func WithFavorites(store FavoriteStore) ServerOption {
	return func(s *Server) {
		s.favorites = store
	}
}

func WithWatchHistory(store WatchHistoryStore) ServerOption {
	return func(s *Server) {
		s.watchHistory = store
	}
}

// WithAllowedOrigins configures the CORS allowed origins whitelist.
// When empty (default), any origin is permitted (development mode).
func WithAllowedOrigins(origins []string) ServerOption {
	return func(s *Server) {
		s.allowedOrigins = origins
	}
}

func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

func NewServer(orchestrator StreamOrchestrator, opts ...ServerOption) *Server {
	s := &Server{orchestrator: orchestrator}
	for _, opt := range opts {
		opt(s)
	}

	if s.logger == nil {
		s.logger = slog.Default()
	}

	s.wsHub = newWSHub(s.logger)
	go s.wsHub.run()

	mux := http.NewServeMux()
	mux.HandleFunc("/stream", s.handleStream)
	mux.HandleFunc("/content", s.handleContent)
	mux.HandleFunc("/content/", s.handleContentByID)
	mux.HandleFunc("/radio/search", s.handleRadioSearch)
	mux.HandleFunc("/radio/tune", s.handleRadioTune)
	mux.HandleFunc("/favorites", s.handleFavorites)
	mux.HandleFunc("/favorites/", s.handleFavoriteByID)
	mux.HandleFunc("/watch-history", s.handleWatchHistory)
	mux.HandleFunc("/watch-history/", s.handleWatchHistoryByID)
	mux.HandleFunc("/streams/active", s.handleActiveStreams)
	mux.HandleFunc("/internal/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/ws", s.handleWS)

	traced := otelhttp.NewHandler(loggingMiddleware(s.logger, mux), "mediastream",
		otelhttp.WithFilter(func(r *http.Request) bool {
			p := r.URL.Path
			return p != "/metrics" && p != "/internal/health"
		}),
	)
	s.handler = recoveryMiddleware(s.logger, rateLimitMiddleware(100, 200, metricsMiddleware(corsMiddleware(s.allowedOrigins, traced))))
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Close shuts down the WebSocket hub, disconnecting all clients.
func (s *Server) Close() {
	if s.wsHub != nil {
		s.wsHub.Close()
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if s.wsHub == nil {
		http.Error(w, "websocket not available", http.StatusServiceUnavailable)
		return
	}
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("ws upgrade failed", slog.String("error", err.Error()))
		return
	}
	client := &wsClient{
		hub:  s.wsHub,
		conn: conn,
		send: make(chan []byte, 256),
	}
	s.wsHub.register <- client
	go client.writePump()
	go client.readPump()
}

// BroadcastActiveStreams pushes the current stream registry snapshot to all
// connected WebSocket clients.
func (s *Server) BroadcastActiveStreams() {
	if s.wsHub == nil || s.orchestrator == nil {
		return
	}
	s.wsHub.Broadcast("streams", s.orchestrator.ActiveStreams())
}

func (s *Server) handleActiveStreams(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, s.orchestrator.ActiveStreams())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func originAllowed(allowed []string, origin string) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, candidate := range allowed {
		if strings.EqualFold(candidate, origin) {
			return true
		}
	}
	return false
}
