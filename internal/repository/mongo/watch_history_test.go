package mongo

import (
	"testing"
	"time"

	"mediastream/internal/domain"
)

func TestWatchDocID(t *testing.T) {
	tests := []struct {
		name      string
		contentID domain.ContentID
		fileIndex int
		want      string
	}{
		{"basic", "abc123", 0, "abc123:0"},
		{"non-zero index", "abc123", 5, "abc123:5"},
		{"large index", "xyz", 999, "xyz:999"},
		{"empty contentId", "", 0, ":0"},
		{"hash-like id", "a1b2c3d4e5f6", 2, "a1b2c3d4e5f6:2"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := watchDocID(tc.contentID, tc.fileIndex)
			if got != tc.want {
				t.Errorf("watchDocID(%q, %d) = %q, want %q", tc.contentID, tc.fileIndex, got, tc.want)
			}
		})
	}
}

func TestWatchDocToPosition(t *testing.T) {
	now := time.Now().UTC()
	doc := watchPositionDoc{
		ID:          "abc:0",
		ContentID:   "abc",
		FileIndex:   0,
		PositionSec: 120.5,
		DurationSec: 3600.0,
		UpdatedAt:   now.Unix(),
	}

	pos := watchDocToPosition(doc)

	if pos.ContentID != "abc" {
		t.Errorf("ContentID: expected 'abc', got %q", pos.ContentID)
	}
	if pos.FileIndex != 0 {
		t.Errorf("FileIndex: expected 0, got %d", pos.FileIndex)
	}
	if pos.PositionSec != 120.5 {
		t.Errorf("PositionSec: expected 120.5, got %f", pos.PositionSec)
	}
	if pos.DurationSec != 3600.0 {
		t.Errorf("DurationSec: expected 3600.0, got %f", pos.DurationSec)
	}
	if pos.UpdatedAt.Unix() != now.Unix() {
		t.Errorf("UpdatedAt: expected %v, got %v", now, pos.UpdatedAt)
	}
}
