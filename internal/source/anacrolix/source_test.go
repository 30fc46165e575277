package anacrolix

import (
	"context"
	"errors"
	"strings"
	"testing"

	"mediastream/internal/domain"
)

func TestMimeTypeForName(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"movie.mkv", "video/x-matroska"},
		{"MOVIE.MKV", "video/x-matroska"},
		{"clip.mp4", "video/mp4"},
		{"track.flac", "audio/flac"},
		{"song.mp3", "audio/mpeg"},
		{"data.unknownext", "application/octet-stream"},
		{"noext", "application/octet-stream"},
	}
	for _, tc := range tests {
		got := mimeTypeForName(tc.name)
		// mime.TypeByExtension may append parameters like charset.
		if got != tc.want && !strings.HasPrefix(got, tc.want+";") {
			t.Errorf("mimeTypeForName(%q) = %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestUnknownContent(t *testing.T) {
	s := NewWithClient(nil, Config{}, nil)

	if _, err := s.GetInfo(context.Background(), "deadbeef", 0); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("GetInfo err = %v, want ErrNotFound", err)
	}
	if err := s.Remove("deadbeef"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("Remove err = %v, want ErrNotFound", err)
	}
	if got := s.List(); len(got) != 0 {
		t.Fatalf("List() = %d entries, want 0", len(got))
	}
}

func TestAddWithoutClient(t *testing.T) {
	s := NewWithClient(nil, Config{}, nil)
	if _, err := s.Add(context.Background(), "magnet:?xt=urn:btih:deadbeef"); err == nil {
		t.Fatal("expected error without configured client")
	}
}
