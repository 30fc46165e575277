package domain

import "time"

// ContentID identifies a piece of content at the byte source (for the
// torrent-backed source this is the info hash in hex).
type ContentID string

// ByteRange is an inclusive byte interval. It is only constructed from
// validated bounds: 0 <= Start <= End < file size.
type ByteRange struct {
	Start int64 `json:"start"`
	End   int64 `json:"end"`
}

// Length returns the number of bytes the range covers.
func (r ByteRange) Length() int64 {
	return r.End - r.Start + 1
}

// StreamRequest is the immutable per-request input to the orchestrator.
type StreamRequest struct {
	ContentID          ContentID
	FileIndex          int
	Range              *ByteRange
	TranscodeRequested bool
}

// Favorite is a bookmarked piece of content.
type Favorite struct {
	ContentID ContentID `bson:"contentId" json:"contentId"`
	Title     string    `bson:"title" json:"title"`
	Category  string    `bson:"category" json:"category"`
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
}

// WatchPosition records playback progress for a file within a content item.
type WatchPosition struct {
	ContentID   ContentID `bson:"contentId" json:"contentId"`
	FileIndex   int       `bson:"fileIndex" json:"fileIndex"`
	PositionSec float64   `bson:"positionSec" json:"positionSec"`
	DurationSec float64   `bson:"durationSec" json:"durationSec"`
	UpdatedAt   time.Time `bson:"updatedAt" json:"updatedAt"`
}

// RadioStation is the directory's data contract for a tunable station.
type RadioStation struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Subtitle string `json:"subtitle"`
	ImageURL string `json:"imageUrl"`
	Format   string `json:"format"`
}
