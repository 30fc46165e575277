package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	apihttp "mediastream/internal/api/http"
	"mediastream/internal/analyzer/ffprobe"
	"mediastream/internal/app"
	"mediastream/internal/metrics"
	"mediastream/internal/radio"
	mongorepo "mediastream/internal/repository/mongo"
	"mediastream/internal/source/anacrolix"
	"mediastream/internal/stream"
	"mediastream/internal/telemetry"

	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.opentelemetry.io/contrib/instrumentation/go.mongodb.org/mongo-driver/mongo/otelmongo"
)

func main() {
	cfg := app.LoadConfig()
	logger := newLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)
	metrics.Register(prometheus.DefaultRegisterer)

	shutdownTracer, err := telemetry.Init(context.Background(), "mediastream")
	if err != nil {
		logger.Warn("otel init failed", slog.String("error", err.Error()))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	logger.Info("configuration loaded",
		slog.String("service", "mediastream"),
		slog.String("httpAddr", cfg.HTTPAddr),
		slog.String("logLevel", cfg.LogLevel),
		slog.String("logFormat", cfg.LogFormat),
		slog.String("dataDir", cfg.DataDir),
		slog.Int64("videoPrebufferBytes", cfg.VideoPrebufferBytes),
		slog.Int64("audioPrebufferBytes", cfg.AudioPrebufferBytes),
		slog.Int64("maxTranscodes", cfg.MaxTranscodes),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctx, cancel := context.WithTimeout(rootCtx, 10*time.Second)
	defer cancel()

	mongoOpts := otelmongo.NewMonitor()
	mongoClient, err := mongorepo.Connect(ctx, cfg.MongoURI, options.Client().SetMonitor(mongoOpts))
	if err != nil {
		logger.Error("mongo connect failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if err := mongoClient.Ping(ctx, readpref.Primary()); err != nil {
		logger.Error("mongo ping failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	watchHistoryRepo := mongorepo.NewWatchHistoryRepository(mongoClient, cfg.MongoDatabase)
	favoriteRepo := mongorepo.NewFavoriteRepository(mongoClient, cfg.MongoDatabase)

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Warn("redis ping failed, radio caching disabled", slog.String("error", err.Error()))
			redisClient = nil
		}
	}

	source, err := anacrolix.New(anacrolix.Config{
		DataDir:         cfg.DataDir,
		MetadataTimeout: cfg.MetadataTimeout,
	}, logger)
	if err != nil {
		logger.Error("byte source init failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	analyzer := ffprobe.New(cfg.FFProbePath)
	encoder := stream.NewEncoder(cfg.FFMPEGPath, logger)
	orchestrator := stream.NewOrchestrator(source, analyzer, encoder, stream.Config{
		VideoPrebufferBytes: cfg.VideoPrebufferBytes,
		AudioPrebufferBytes: cfg.AudioPrebufferBytes,
		PrebufferTimeout:    cfg.PrebufferTimeout,
		MaxTranscodes:       cfg.MaxTranscodes,
	}, logger)

	radioDir := radio.NewClient(radio.Config{
		BaseURL:   cfg.RadioBaseURL,
		PartnerID: cfg.RadioPartnerID,
		Redis:     redisClient,
		CacheTTL:  cfg.RadioCacheTTL,
		Logger:    logger,
	})

	handler := apihttp.NewServer(orchestrator,
		apihttp.WithLogger(logger),
		apihttp.WithContentManager(source),
		apihttp.WithRadioDirectory(radioDir),
		apihttp.WithFavorites(favoriteRepo),
		apihttp.WithWatchHistory(watchHistoryRepo),
		apihttp.WithAllowedOrigins(cfg.AllowedOrigins),
	)

	// Periodically push the active-stream registry to WebSocket clients.
	go broadcastActiveStreams(rootCtx, handler)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      0,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	logger.Info("server started", slog.String("addr", cfg.HTTPAddr))

	select {
	case <-rootCtx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	handler.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown error", slog.String("error", err.Error()))
	}
	if err := source.Close(); err != nil {
		logger.Warn("byte source close error", slog.String("error", err.Error()))
	}
	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close error", slog.String("error", err.Error()))
		}
	}
	if err := mongoClient.Disconnect(context.Background()); err != nil {
		logger.Warn("mongo disconnect error", slog.String("error", err.Error()))
	}

	logger.Info("server stopped")
}

func broadcastActiveStreams(ctx context.Context, handler *apihttp.Server) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			handler.BroadcastActiveStreams()
		}
	}
}

func newLogger(levelRaw, formatRaw string) *slog.Logger {
	level := parseLogLevel(levelRaw)
	options := &slog.HandlerOptions{Level: level}
	format := strings.ToLower(strings.TrimSpace(formatRaw))
	if format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, options))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, options))
}

func parseLogLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
