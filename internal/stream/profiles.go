package stream

import (
	"path"
	"strings"

	"mediastream/internal/domain"
)

// Transcode profile tables. These are static lookup data: given the media
// category and the input container (from analysis) or file extension
// (fallback), they select the encoder target.

var videoToMP4 = domain.TranscodeProfile{
	Name:         "video-mp4",
	OutputFormat: "mp4",
	OutputMime:   "video/mp4",
	VideoCodec:   "libx264",
	AudioCodec:   "aac",
	VideoMaxRate: "2500k",
	VideoBufSize: "5000k",
	AudioBitrate: "128k",
	Preset:       "veryfast",
	CRF:          23,
	MaxHeight:    720,
	GOPSize:      48,
}

var audioToMP3 = domain.TranscodeProfile{
	Name:         "audio-mp3",
	OutputFormat: "mp3",
	OutputMime:   "audio/mpeg",
	AudioCodec:   "libmp3lame",
	AudioBitrate: "192k",
	SampleRate:   44100,
}

// videoInputContainers lists containers the video profile accepts as input.
var videoInputContainers = map[string]struct{}{
	"avi": {}, "mkv": {}, "matroska": {}, "webm": {}, "mov": {}, "mp4": {},
	"m4v": {}, "mpegts": {}, "mpeg": {}, "flv": {}, "wmv": {}, "asf": {},
	"ogv": {}, "3gp": {},
}

var audioInputContainers = map[string]struct{}{
	"flac": {}, "wav": {}, "aiff": {}, "ape": {}, "wv": {}, "wma": {},
	"ogg": {}, "oga": {}, "opus": {}, "m4a": {}, "aac": {}, "mp3": {},
	"alac": {}, "mka": {},
}

// LookupProfile returns the transcode profile for a media category and an
// input container or extension, or false when no profile applies. Pure,
// no I/O.
func LookupProfile(category domain.MediaCategory, containerOrExt string) (domain.TranscodeProfile, bool) {
	key := normalizeContainer(containerOrExt)
	switch category {
	case domain.MediaVideo:
		if _, ok := videoInputContainers[key]; ok {
			return videoToMP4, true
		}
	case domain.MediaAudio:
		if _, ok := audioInputContainers[key]; ok {
			return audioToMP3, true
		}
	}
	return domain.TranscodeProfile{}, false
}

// LookupOutputMime returns the post-transcode MIME type for a category and
// input container, or false when no profile applies.
func LookupOutputMime(category domain.MediaCategory, containerOrExt string) (string, bool) {
	profile, ok := LookupProfile(category, containerOrExt)
	if !ok {
		return "", false
	}
	return profile.OutputMime, true
}

// demuxerNames maps container identifiers to the ffmpeg demuxer passed as
// an explicit input format. Piped input is not seekable, so auto-detection
// can fail; an explicit -f keeps the encoder from guessing.
var demuxerNames = map[string]string{
	"mkv":      "matroska",
	"matroska": "matroska",
	"webm":     "matroska",
	"avi":      "avi",
	"mov":      "mov,mp4,m4a,3gp,3g2,mj2",
	"mp4":      "mov,mp4,m4a,3gp,3g2,mj2",
	"m4v":      "mov,mp4,m4a,3gp,3g2,mj2",
	"m4a":      "mov,mp4,m4a,3gp,3g2,mj2",
	"mpegts":   "mpegts",
	"flv":      "flv",
	"wmv":      "asf",
	"asf":      "asf",
	"ogg":      "ogg",
	"ogv":      "ogg",
	"oga":      "ogg",
	"opus":     "ogg",
	"flac":     "flac",
	"wav":      "wav",
	"aiff":     "aiff",
	"mp3":      "mp3",
	"aac":      "aac",
	"mka":      "matroska",
}

// DemuxerHint resolves the explicit input format for the encoder. The
// analyzed container wins over the file-extension fallback; empty means
// let the encoder auto-detect.
func DemuxerHint(analyzedContainer, fileName string) string {
	if name, ok := demuxerNames[normalizeContainer(analyzedContainer)]; ok {
		return name
	}
	if name, ok := demuxerNames[normalizeContainer(path.Ext(fileName))]; ok {
		return name
	}
	return ""
}

// browser-playable codec sets for the no-transcode fast path.
var compatibleVideoCodecs = map[string]struct{}{
	"h264": {}, "avc1": {}, "vp8": {}, "vp9": {}, "av1": {},
}

var compatibleAudioCodecs = map[string]struct{}{
	"aac": {}, "mp3": {}, "opus": {}, "vorbis": {}, "flac": {},
}

var compatibleVideoContainers = map[string]struct{}{
	"mp4": {}, "m4v": {}, "webm": {},
}

var compatibleAudioContainers = map[string]struct{}{
	"mp3": {}, "aac": {}, "m4a": {}, "ogg": {}, "oga": {}, "opus": {},
	"flac": {}, "wav": {},
}

// NeedsTranscoding decides whether a codec report requires re-encoding for
// browser playback. A compatible container with compatible codecs plays
// directly and keeps full Range support.
func NeedsTranscoding(category domain.MediaCategory, report domain.CodecReport) bool {
	container := normalizeContainer(report.Container)
	switch category {
	case domain.MediaVideo:
		if _, ok := compatibleVideoContainers[container]; !ok {
			return true
		}
		if _, ok := compatibleVideoCodecs[strings.ToLower(report.VideoCodec)]; !ok {
			return true
		}
		if report.AudioCodec != "" {
			if _, ok := compatibleAudioCodecs[strings.ToLower(report.AudioCodec)]; !ok {
				return true
			}
		}
		return false
	case domain.MediaAudio:
		_, ok := compatibleAudioContainers[container]
		return !ok
	default:
		return false
	}
}

// MediaCategoryForName classifies a file by extension.
func MediaCategoryForName(name string) domain.MediaCategory {
	ext := normalizeContainer(path.Ext(name))
	if _, ok := videoInputContainers[ext]; ok {
		return domain.MediaVideo
	}
	if _, ok := audioInputContainers[ext]; ok {
		return domain.MediaAudio
	}
	return domain.MediaUnknown
}

func normalizeContainer(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	value = strings.TrimPrefix(value, ".")
	// ffprobe reports compound names like "mov,mp4,m4a,3gp,3g2,mj2" or
	// "matroska,webm"; the first entry identifies the family.
	if idx := strings.IndexByte(value, ','); idx > 0 {
		value = value[:idx]
	}
	return value
}
