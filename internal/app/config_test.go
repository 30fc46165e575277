package app

import (
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg := LoadConfig()

	if cfg.HTTPAddr != ":8080" {
		t.Fatalf("HTTPAddr = %q", cfg.HTTPAddr)
	}
	if cfg.MongoDatabase != "mediastream" {
		t.Fatalf("MongoDatabase = %q", cfg.MongoDatabase)
	}
	if cfg.VideoPrebufferBytes != 8<<20 {
		t.Fatalf("VideoPrebufferBytes = %d", cfg.VideoPrebufferBytes)
	}
	if cfg.AudioPrebufferBytes != 256<<10 {
		t.Fatalf("AudioPrebufferBytes = %d", cfg.AudioPrebufferBytes)
	}
	if cfg.PrebufferTimeout != 10*time.Second {
		t.Fatalf("PrebufferTimeout = %v", cfg.PrebufferTimeout)
	}
	if cfg.MaxTranscodes != 4 {
		t.Fatalf("MaxTranscodes = %d", cfg.MaxTranscodes)
	}
	if cfg.FFMPEGPath != "ffmpeg" || cfg.FFProbePath != "ffprobe" {
		t.Fatalf("encoder paths = %q, %q", cfg.FFMPEGPath, cfg.FFProbePath)
	}
	if cfg.AllowedOrigins != nil {
		t.Fatalf("AllowedOrigins = %v, want nil", cfg.AllowedOrigins)
	}
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("VIDEO_PREBUFFER_BYTES", "1048576")
	t.Setenv("PREBUFFER_TIMEOUT", "3s")
	t.Setenv("MAX_TRANSCODES", "2")
	t.Setenv("ALLOWED_ORIGINS", "http://a.example.com, http://b.example.com,")
	t.Setenv("LOG_LEVEL", "DEBUG")

	cfg := LoadConfig()

	if cfg.HTTPAddr != ":9090" {
		t.Fatalf("HTTPAddr = %q", cfg.HTTPAddr)
	}
	if cfg.VideoPrebufferBytes != 1048576 {
		t.Fatalf("VideoPrebufferBytes = %d", cfg.VideoPrebufferBytes)
	}
	if cfg.PrebufferTimeout != 3*time.Second {
		t.Fatalf("PrebufferTimeout = %v", cfg.PrebufferTimeout)
	}
	if cfg.MaxTranscodes != 2 {
		t.Fatalf("MaxTranscodes = %d", cfg.MaxTranscodes)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "http://b.example.com" {
		t.Fatalf("AllowedOrigins = %v", cfg.AllowedOrigins)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("LogLevel = %q", cfg.LogLevel)
	}
}

func TestLoadConfigInvalidValuesFallBack(t *testing.T) {
	t.Setenv("VIDEO_PREBUFFER_BYTES", "not-a-number")
	t.Setenv("MAX_TRANSCODES", "-5")
	t.Setenv("PREBUFFER_TIMEOUT", "soon")

	cfg := LoadConfig()

	if cfg.VideoPrebufferBytes != 8<<20 {
		t.Fatalf("VideoPrebufferBytes = %d", cfg.VideoPrebufferBytes)
	}
	if cfg.MaxTranscodes != 4 {
		t.Fatalf("MaxTranscodes = %d", cfg.MaxTranscodes)
	}
	if cfg.PrebufferTimeout != 10*time.Second {
		t.Fatalf("PrebufferTimeout = %v", cfg.PrebufferTimeout)
	}
}
