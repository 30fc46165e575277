package ports

import (
	"context"
	"io"

	"mediastream/internal/domain"
)

// ContentAnalyzer inspects a media stream and reports the codec and
// container shape the transcode decision consumes. Backed by an external
// analyzer process; only the data contract is part of the core.
type ContentAnalyzer interface {
	AnalyzeReader(ctx context.Context, r io.Reader, category domain.MediaCategory) (domain.CodecReport, error)
}
