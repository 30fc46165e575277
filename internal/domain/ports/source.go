package ports

import (
	"context"
	"io"

	"mediastream/internal/domain"
)

// OpenOptions tunes how the byte source opens a stream.
type OpenOptions struct {
	// WaitForData blocks Open until the first bytes of the file are
	// readable. The transcode path needs this so the encoder sees container
	// header bytes immediately; the direct path skips it and lets the HTTP
	// copy block instead.
	WaitForData bool
}

// OpenedStream is the byte source's answer to Open.
type OpenedStream struct {
	Reader        io.ReadCloser
	IsPartial     bool
	ContentRange  *domain.ByteRange
	ContentLength int64
}

// ByteSource produces sequential or ranged byte streams for a file
// identified by content id and file index. Implementations must signal
// domain.ErrNotFound, domain.ErrRangeUnsatisfiable and
// domain.ErrUpstreamUnavailable as distinguishable failures.
type ByteSource interface {
	GetInfo(ctx context.Context, id domain.ContentID, fileIndex int) (domain.StreamInfo, error)
	Open(ctx context.Context, id domain.ContentID, fileIndex int, rng *domain.ByteRange, opts OpenOptions) (OpenedStream, error)
}
