package domain

// MediaCategory classifies a source file by the kind of player it feeds.
type MediaCategory string

const (
	MediaVideo   MediaCategory = "video"
	MediaAudio   MediaCategory = "audio"
	MediaUnknown MediaCategory = "unknown"
)

// StreamInfo describes the source file behind a stream request. It is fetched
// once per request from the byte source and is read-only thereafter.
type StreamInfo struct {
	FileName string        `json:"fileName"`
	FilePath string        `json:"filePath"`
	Size     int64         `json:"size"`
	MimeType string        `json:"mimeType"`
	Category MediaCategory `json:"mediaCategory"`
}

// CodecReport is the shape consumed from the content analyzer. Only the
// fields the transcode decision needs are carried.
type CodecReport struct {
	VideoCodec string  `json:"videoCodec"`
	AudioCodec string  `json:"audioCodec"`
	Container  string  `json:"container"`
	Duration   float64 `json:"duration"`
	BitRate    int64   `json:"bitRate"`
}

// TranscodeProfile is a named, static encoder configuration. Profiles are
// immutable constant data selected by (media category, input container).
type TranscodeProfile struct {
	Name         string
	OutputFormat string // ffmpeg muxer name: "mp4", "mp3"
	OutputMime   string
	VideoCodec   string
	AudioCodec   string
	VideoMaxRate string
	VideoBufSize string
	AudioBitrate string
	Preset       string
	CRF          int
	MaxHeight    int
	GOPSize      int
	SampleRate   int
}
