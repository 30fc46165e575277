package ffprobe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"mediastream/internal/domain"
	"mediastream/internal/domain/ports"
)

var _ ports.ContentAnalyzer = (*Analyzer)(nil)

// Analyzer probes media headers with an external ffprobe binary. Input
// arrives as a stream: only a bounded window from the start of the file is
// fed to the probe, so analysis works on partially available content.
type Analyzer struct {
	binary string
}

func New(binary string) *Analyzer {
	bin := strings.TrimSpace(binary)
	if bin == "" {
		bin = "ffprobe"
	}
	return &Analyzer{binary: bin}
}

const maxProbeTimeout = 30 * time.Second

// Probe windows per category. Video headers can sit behind large amounts
// of index data in some containers; audio metadata lives near the front.
const (
	videoProbeWindow = 32 << 20
	audioProbeWindow = 4 << 20
)

func (a *Analyzer) AnalyzeReader(ctx context.Context, reader io.Reader, category domain.MediaCategory) (domain.CodecReport, error) {
	if reader == nil {
		return domain.CodecReport{}, errors.New("reader is required")
	}

	window := int64(audioProbeWindow)
	if category == domain.MediaVideo {
		window = videoProbeWindow
	}

	return a.run(ctx, []string{
		"-v", "quiet",
		"-probesize", strconv.FormatInt(window, 10),
		"-analyzeduration", "100M",
		"-print_format", "json",
		"-show_streams",
		"-show_format",
		"-i", "pipe:0",
	}, io.LimitReader(reader, window))
}

func (a *Analyzer) run(ctx context.Context, args []string, stdin io.Reader) (domain.CodecReport, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, maxProbeTimeout)
		defer cancel()
	}
	cmd := exec.CommandContext(ctx, a.binary, args...)

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdin = stdin
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()

	report, parseErr := parseProbeOutput(stdout.Bytes())
	if parseErr != nil {
		if runErr != nil {
			msg := strings.TrimSpace(stderr.String())
			if msg == "" {
				return domain.CodecReport{}, fmt.Errorf("ffprobe failed: %w", runErr)
			}
			return domain.CodecReport{}, fmt.Errorf("ffprobe failed: %w: %s", runErr, msg)
		}
		return domain.CodecReport{}, fmt.Errorf("ffprobe output parse failed: %w", parseErr)
	}

	// ffprobe exits non-zero when the input window is truncated, but the
	// stream metadata in stdout is still usable. Keep it if we got any.
	if runErr != nil && report.Container == "" && report.VideoCodec == "" && report.AudioCodec == "" {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return domain.CodecReport{}, fmt.Errorf("ffprobe failed: %w", runErr)
		}
		return domain.CodecReport{}, fmt.Errorf("ffprobe failed: %w: %s", runErr, msg)
	}

	return report, nil
}

// probePayload is the subset of ffprobe JSON output we parse.
type probePayload struct {
	Streams []probeStream `json:"streams"`
	Format  probeFormat   `json:"format"`
}

type probeStream struct {
	CodecType   string `json:"codec_type"`
	CodecName   string `json:"codec_name"`
	Disposition struct {
		Default int `json:"default"`
	} `json:"disposition"`
}

type probeFormat struct {
	FormatName string `json:"format_name"`
	Duration   string `json:"duration"`
	BitRate    string `json:"bit_rate"`
}

// parseProbeOutput reduces raw ffprobe JSON to a codec report. When a file
// carries several video or audio tracks, the default-flagged one wins;
// otherwise the first seen is kept.
func parseProbeOutput(data []byte) (domain.CodecReport, error) {
	var payload probePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return domain.CodecReport{}, err
	}

	var report domain.CodecReport
	report.Container = strings.TrimSpace(payload.Format.FormatName)

	for _, stream := range payload.Streams {
		switch stream.CodecType {
		case "video":
			if report.VideoCodec == "" || stream.Disposition.Default == 1 {
				report.VideoCodec = stream.CodecName
			}
		case "audio":
			if report.AudioCodec == "" || stream.Disposition.Default == 1 {
				report.AudioCodec = stream.CodecName
			}
		}
	}

	if payload.Format.Duration != "" {
		if d, err := strconv.ParseFloat(payload.Format.Duration, 64); err == nil && d > 0 {
			report.Duration = d
		}
	}
	if payload.Format.BitRate != "" {
		if br, err := strconv.ParseInt(payload.Format.BitRate, 10, 64); err == nil && br > 0 {
			report.BitRate = br
		}
	}

	return report, nil
}
