package app

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	HTTPAddr      string
	MongoURI      string
	MongoDatabase string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	LogLevel      string
	LogFormat     string

	DataDir         string
	MetadataTimeout time.Duration

	FFMPEGPath  string
	FFProbePath string

	VideoPrebufferBytes int64
	AudioPrebufferBytes int64
	PrebufferTimeout    time.Duration
	MaxTranscodes       int64

	RadioBaseURL   string
	RadioPartnerID string
	RadioCacheTTL  time.Duration

	AllowedOrigins []string
}

func LoadConfig() Config {
	return Config{
		HTTPAddr:      getEnv("HTTP_ADDR", ":8080"),
		MongoURI:      getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDatabase: getEnv("MONGO_DB", "mediastream"),
		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       int(getEnvInt64("REDIS_DB", 0)),
		LogLevel:      strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat:     strings.ToLower(getEnv("LOG_FORMAT", "text")),

		DataDir:         getEnv("DATA_DIR", "data"),
		MetadataTimeout: getEnvDuration("METADATA_TIMEOUT", 30*time.Second),

		FFMPEGPath:  getEnv("FFMPEG_PATH", "ffmpeg"),
		FFProbePath: getEnv("FFPROBE_PATH", "ffprobe"),

		VideoPrebufferBytes: getEnvInt64("VIDEO_PREBUFFER_BYTES", 8<<20),
		AudioPrebufferBytes: getEnvInt64("AUDIO_PREBUFFER_BYTES", 256<<10),
		PrebufferTimeout:    getEnvDuration("PREBUFFER_TIMEOUT", 10*time.Second),
		MaxTranscodes:       getEnvInt64("MAX_TRANSCODES", 4),

		RadioBaseURL:   getEnv("RADIO_BASE_URL", ""),
		RadioPartnerID: getEnv("RADIO_PARTNER_ID", ""),
		RadioCacheTTL:  getEnvDuration("RADIO_CACHE_TTL", 6*time.Hour),

		AllowedOrigins: splitList(getEnv("ALLOWED_ORIGINS", "")),
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return fallback
	}
	if parsed < 0 {
		return fallback
	}
	return parsed
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func splitList(value string) []string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		item := strings.TrimSpace(part)
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}
