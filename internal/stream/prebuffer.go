package stream

import (
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"mediastream/internal/metrics"
)

// Pre-buffer relay: absorbs encoder output into memory until a byte
// threshold is met, then hands off to direct pass-through. Front-loading
// a player's initial buffering window server-side avoids mid-playback
// stalls on slow-starting streams.
//
// The relay is an explicit two-state machine:
//
//	Accumulating ──threshold / timeout / source EOF──▶ Flushed
//
// Flushed is terminal; exactly one trigger wins, buffered chunks are
// forwarded in arrival order, and the buffer is released afterwards so
// memory stays bounded for long streams.

// Flush reasons, used for logging and metrics labels.
const (
	FlushThreshold = "threshold"
	FlushTimeout   = "timeout"
	FlushEOF       = "eof"
)

const relayReadChunk = 64 << 10

// PreBufferRelay relays one source stream through an accumulation stage.
type PreBufferRelay struct {
	source    io.ReadCloser
	threshold int64
	timeout   time.Duration
	logger    *slog.Logger

	pr *io.PipeReader
	pw *io.PipeWriter

	closeOnce sync.Once

	flushedBytes atomic.Int64
	flushReason  atomic.Value // string
}

// NewPreBufferRelay starts relaying immediately. The returned relay is the
// outbound stream; closing it stops buffering, releases the source and is
// safe after natural completion.
func NewPreBufferRelay(source io.ReadCloser, thresholdBytes int64, timeout time.Duration, logger *slog.Logger) *PreBufferRelay {
	if logger == nil {
		logger = slog.Default()
	}
	pr, pw := io.Pipe()
	r := &PreBufferRelay{
		source:    source,
		threshold: thresholdBytes,
		timeout:   timeout,
		logger:    logger,
		pr:        pr,
		pw:        pw,
	}
	chunks := make(chan []byte)
	go r.pump(chunks)
	go r.run(chunks)
	return r
}

func (r *PreBufferRelay) Read(p []byte) (int, error) {
	return r.pr.Read(p)
}

// Close disconnects the consumer. Accumulation stops and the source is
// released; calling it after completion is a no-op.
func (r *PreBufferRelay) Close() error {
	r.closeOnce.Do(func() {
		_ = r.pr.Close()
		_ = r.source.Close()
	})
	return nil
}

// FlushedBytes reports how many bytes were buffered when the flush fired.
func (r *PreBufferRelay) FlushedBytes() int64 {
	return r.flushedBytes.Load()
}

// FlushReason reports which trigger ended accumulation, or "" before flush.
func (r *PreBufferRelay) FlushReason() string {
	if v := r.flushReason.Load(); v != nil {
		return v.(string)
	}
	return ""
}

// pump reads the source into the chunk channel. The unbuffered channel
// hands backpressure through: once the relay is flushed and writing to the
// consumer, the source is read no faster than the consumer drains.
func (r *PreBufferRelay) pump(chunks chan<- []byte) {
	for {
		buf := make([]byte, relayReadChunk)
		n, err := r.source.Read(buf)
		if n > 0 {
			chunks <- buf[:n]
		}
		if err != nil {
			close(chunks)
			return
		}
	}
}

// run owns all state transitions.
func (r *PreBufferRelay) run(chunks <-chan []byte) {
	var buffer [][]byte
	var buffered int64

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	flush := func(reason string) bool {
		r.flushReason.Store(reason)
		r.flushedBytes.Store(buffered)
		metrics.PrebufferFlushTotal.WithLabelValues(reason).Inc()
		metrics.PrebufferFlushBytes.Observe(float64(buffered))
		if reason == FlushTimeout {
			r.logger.Warn("prebuffer timeout, starting short",
				slog.Int64("buffered", buffered),
				slog.Int64("threshold", r.threshold),
			)
		} else {
			r.logger.Debug("prebuffer flushed",
				slog.String("reason", reason),
				slog.Int64("buffered", buffered),
			)
		}
		for _, chunk := range buffer {
			if _, err := r.pw.Write(chunk); err != nil {
				return false
			}
		}
		buffer = nil // release accumulated memory
		return true
	}

	// Accumulating.
	for {
		select {
		case chunk, ok := <-chunks:
			if !ok {
				// Source ended before the threshold: flush what there is
				// and finish.
				flush(FlushEOF)
				_ = r.pw.Close()
				return
			}
			buffer = append(buffer, chunk)
			buffered += int64(len(chunk))
			if buffered >= r.threshold {
				timer.Stop()
				if !flush(FlushThreshold) {
					r.abortAndDrain(chunks)
					return
				}
				r.forward(chunks)
				return
			}
		case <-timer.C:
			if !flush(FlushTimeout) {
				r.abortAndDrain(chunks)
				return
			}
			r.forward(chunks)
			return
		}
	}
}

// forward passes chunks straight through after the flush.
func (r *PreBufferRelay) forward(chunks <-chan []byte) {
	for chunk := range chunks {
		if _, err := r.pw.Write(chunk); err != nil {
			// Consumer went away; stop the source so pump unblocks.
			r.abortAndDrain(chunks)
			return
		}
	}
	_ = r.pw.Close()
}

// abortAndDrain stops the source and drains any chunk the pump already
// read, so the pump goroutine can observe the close and exit.
func (r *PreBufferRelay) abortAndDrain(chunks <-chan []byte) {
	_ = r.source.Close()
	_ = r.pw.Close()
	for range chunks {
	}
}
