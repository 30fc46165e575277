package stream

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"mediastream/internal/domain"
	"mediastream/internal/domain/ports"
	"mediastream/internal/metrics"
)

const (
	defaultVideoPrebuffer = 8 << 20
	defaultAudioPrebuffer = 256 << 10
	defaultPrebufferWait  = 10 * time.Second
	defaultMaxTranscodes  = 4

	analyzeTimeout = 15 * time.Second
	probeCacheTTL  = 5 * time.Minute
)

// Request is one inbound stream request before range resolution.
type Request struct {
	ContentID          domain.ContentID
	FileIndex          int
	RangeHeader        string
	TranscodeRequested bool
}

// Result is the orchestrator's output contract to the HTTP layer. Size and
// ContentLength are -1 when unknown (transcoded output has no fixed length).
type Result struct {
	ID             string
	Body           io.ReadCloser
	Info           domain.StreamInfo
	MimeType       string
	Size           int64
	IsPartial      bool
	ContentRange   *domain.ByteRange
	ContentLength  int64
	Transcoded     bool
	PreBufferBytes int64
}

// ActiveStream describes one in-flight stream for observability.
type ActiveStream struct {
	ID         string           `json:"id"`
	ContentID  domain.ContentID `json:"contentId"`
	FileIndex  int              `json:"fileIndex"`
	FileName   string           `json:"fileName"`
	Transcoded bool             `json:"transcoded"`
	StartedAt  time.Time        `json:"startedAt"`
}

// Config carries the tunables of the pipeline. Zero values fall back to
// the defaults above.
type Config struct {
	VideoPrebufferBytes int64
	AudioPrebufferBytes int64
	PrebufferTimeout    time.Duration
	MaxTranscodes       int64
}

type probeCacheEntry struct {
	report    domain.CodecReport
	expiresAt time.Time
}

type probeCacheKey struct {
	id        domain.ContentID
	fileIndex int
}

// Orchestrator is the single entry point that decides the pipeline shape
// per request and returns a uniform result. It is constructed once at
// startup and injected into request handlers; it holds no per-request
// state beyond the active-stream registry.
type Orchestrator struct {
	source   ports.ByteSource
	analyzer ports.ContentAnalyzer
	encoder  *Encoder
	cfg      Config
	logger   *slog.Logger

	transcodeSem *semaphore.Weighted

	nextID atomic.Uint64

	mu     sync.RWMutex
	active map[string]ActiveStream
	probes map[probeCacheKey]probeCacheEntry
}

func NewOrchestrator(source ports.ByteSource, analyzer ports.ContentAnalyzer, encoder *Encoder, cfg Config, logger *slog.Logger) *Orchestrator {
	if cfg.VideoPrebufferBytes <= 0 {
		cfg.VideoPrebufferBytes = defaultVideoPrebuffer
	}
	if cfg.AudioPrebufferBytes <= 0 {
		cfg.AudioPrebufferBytes = defaultAudioPrebuffer
	}
	if cfg.PrebufferTimeout <= 0 {
		cfg.PrebufferTimeout = defaultPrebufferWait
	}
	if cfg.MaxTranscodes <= 0 {
		cfg.MaxTranscodes = defaultMaxTranscodes
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		source:       source,
		analyzer:     analyzer,
		encoder:      encoder,
		cfg:          cfg,
		logger:       logger,
		transcodeSem: semaphore.NewWeighted(cfg.MaxTranscodes),
		active:       make(map[string]ActiveStream),
		probes:       make(map[probeCacheKey]probeCacheEntry),
	}
}

// Open resolves the request into an outbound stream. Callers must Close the
// result body; closing propagates teardown through the whole pipeline and
// is idempotent.
func (o *Orchestrator) Open(ctx context.Context, req Request) (Result, error) {
	info, err := o.source.GetInfo(ctx, req.ContentID, req.FileIndex)
	if err != nil {
		// Not-found is permanent for this request; upstream-unavailable
		// means the content network is still connecting and a retry may
		// succeed. Keep them distinct.
		return Result{}, err
	}

	transcode := false
	var report domain.CodecReport
	if req.TranscodeRequested && info.Category != domain.MediaUnknown {
		report = o.analyze(ctx, req, info)
		transcode = NeedsTranscoding(info.Category, report)
	}

	if !transcode {
		return o.openDirect(ctx, req, info)
	}
	return o.openTranscoded(ctx, req, info, report)
}

// ActiveStreams snapshots the in-flight stream registry.
func (o *Orchestrator) ActiveStreams() []ActiveStream {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]ActiveStream, 0, len(o.active))
	for _, s := range o.active {
		out = append(out, s)
	}
	return out
}

// analyze returns the cached or freshly probed codec report. Analysis
// failures degrade to an extension-only report instead of failing the
// request: the container check alone still picks the safe path.
func (o *Orchestrator) analyze(ctx context.Context, req Request, info domain.StreamInfo) domain.CodecReport {
	key := probeCacheKey{id: req.ContentID, fileIndex: req.FileIndex}
	o.mu.RLock()
	entry, ok := o.probes[key]
	o.mu.RUnlock()
	if ok && time.Now().Before(entry.expiresAt) {
		return entry.report
	}

	fallback := domain.CodecReport{Container: containerFromName(info.FileName)}

	opened, err := o.source.Open(ctx, req.ContentID, req.FileIndex, nil, ports.OpenOptions{WaitForData: true})
	if err != nil {
		o.logger.Warn("analysis open failed, falling back to extension",
			slog.String("contentId", string(req.ContentID)),
			slog.Int("fileIndex", req.FileIndex),
			slog.String("error", err.Error()),
		)
		return fallback
	}
	defer opened.Reader.Close()

	probeCtx, cancel := context.WithTimeout(ctx, analyzeTimeout)
	defer cancel()
	report, err := o.analyzer.AnalyzeReader(probeCtx, opened.Reader, info.Category)
	if err != nil {
		o.logger.Warn("content analysis failed, falling back to extension",
			slog.String("contentId", string(req.ContentID)),
			slog.Int("fileIndex", req.FileIndex),
			slog.String("error", err.Error()),
		)
		return fallback
	}
	if report.Container == "" {
		report.Container = fallback.Container
	}

	o.mu.Lock()
	o.probes[key] = probeCacheEntry{report: report, expiresAt: time.Now().Add(probeCacheTTL)}
	o.mu.Unlock()
	return report
}

// openDirect serves the source bytes unmodified. Range requests are fully
// supported here and are the primary seek mechanism.
func (o *Orchestrator) openDirect(ctx context.Context, req Request, info domain.StreamInfo) (Result, error) {
	var rng *domain.ByteRange
	res := ResolveRange(req.RangeHeader, info.Size)
	if req.RangeHeader != "" {
		metrics.RangeRequestsTotal.WithLabelValues(res.Kind.String()).Inc()
	}
	switch res.Kind {
	case RangePartial:
		r := res.Range
		rng = &r
	case RangeUnsatisfiable:
		return Result{}, domain.ErrRangeUnsatisfiable
	case RangeInvalid:
		// Malformed headers degrade to full content.
		o.logger.Debug("ignoring malformed range header",
			slog.String("range", req.RangeHeader))
	}

	openStart := time.Now()
	opened, err := o.source.Open(ctx, req.ContentID, req.FileIndex, rng, ports.OpenOptions{})
	metrics.SourceOpenDuration.Observe(time.Since(openStart).Seconds())
	if err != nil {
		return Result{}, err
	}

	result := Result{
		Info:          info,
		MimeType:      info.MimeType,
		Size:          info.Size,
		IsPartial:     opened.IsPartial,
		ContentRange:  opened.ContentRange,
		ContentLength: opened.ContentLength,
	}
	result.ID, result.Body = o.register(req, info, opened.Reader, false)
	return result, nil
}

// openTranscoded wires source → encoder → pre-buffer relay. Range is not
// honored: transcoded output has no fixed length, so the source always
// starts from the beginning and the request blocks until the encoder has
// header bytes to detect the input format.
func (o *Orchestrator) openTranscoded(ctx context.Context, req Request, info domain.StreamInfo, report domain.CodecReport) (Result, error) {
	profile, ok := LookupProfile(info.Category, pickContainer(report, info.FileName))
	if !ok {
		return Result{}, fmt.Errorf("%w: no profile for %s %q",
			domain.ErrTranscodeUnavailable, info.Category, report.Container)
	}

	if err := o.transcodeSem.Acquire(ctx, 1); err != nil {
		return Result{}, fmt.Errorf("%w: %v", domain.ErrTranscodeUnavailable, err)
	}

	opened, err := o.source.Open(ctx, req.ContentID, req.FileIndex, nil, ports.OpenOptions{WaitForData: true})
	if err != nil {
		o.transcodeSem.Release(1)
		return Result{}, err
	}

	hint := DemuxerHint(report.Container, info.FileName)
	session, err := o.encoder.Start(opened.Reader, profile, hint)
	if err != nil {
		_ = opened.Reader.Close()
		o.transcodeSem.Release(1)
		metrics.TranscodeFailuresTotal.Inc()
		return Result{}, fmt.Errorf("%w: %v", domain.ErrTranscodeUnavailable, err)
	}
	metrics.TranscodeStartsTotal.Inc()
	go func() {
		<-session.Done()
		o.transcodeSem.Release(1)
	}()

	threshold := o.prebufferThreshold(info.Category)
	relay := NewPreBufferRelay(session.Output(), threshold, o.cfg.PrebufferTimeout, o.logger)

	// Client disconnects cancel the request context; fold that into the
	// same teardown path the consumer Close uses. Both are idempotent, so
	// a cancellation arriving after natural completion is a no-op.
	go func() {
		select {
		case <-ctx.Done():
			_ = relay.Close()
			session.Kill()
		case <-session.Done():
		}
	}()

	result := Result{
		Info:           info,
		MimeType:       session.MimeType(),
		Size:           -1,
		ContentLength:  -1,
		Transcoded:     true,
		PreBufferBytes: threshold,
	}
	result.ID, result.Body = o.register(req, info, &transcodeBody{relay: relay, session: session}, true)
	return result, nil
}

func (o *Orchestrator) prebufferThreshold(category domain.MediaCategory) int64 {
	// Video needs a far larger window than audio; unknown types take the
	// audio threshold as the faster-starting choice.
	if category == domain.MediaVideo {
		return o.cfg.VideoPrebufferBytes
	}
	return o.cfg.AudioPrebufferBytes
}

// register tracks the stream and wraps the body so completion or close
// removes it again.
func (o *Orchestrator) register(req Request, info domain.StreamInfo, body io.ReadCloser, transcoded bool) (string, io.ReadCloser) {
	id := "s" + strconv.FormatUint(o.nextID.Add(1), 10)
	entry := ActiveStream{
		ID:         id,
		ContentID:  req.ContentID,
		FileIndex:  req.FileIndex,
		FileName:   info.FileName,
		Transcoded: transcoded,
		StartedAt:  time.Now().UTC(),
	}
	o.mu.Lock()
	o.active[id] = entry
	o.mu.Unlock()
	metrics.ActiveStreams.Inc()

	var once sync.Once
	unregister := func() {
		once.Do(func() {
			o.mu.Lock()
			delete(o.active, id)
			o.mu.Unlock()
			metrics.ActiveStreams.Dec()
		})
	}
	return id, &trackedBody{inner: body, unregister: unregister}
}

type trackedBody struct {
	inner      io.ReadCloser
	unregister func()
}

func (b *trackedBody) Read(p []byte) (int, error) {
	n, err := b.inner.Read(p)
	if err == io.EOF {
		b.unregister()
	}
	return n, err
}

func (b *trackedBody) Close() error {
	err := b.inner.Close()
	b.unregister()
	return err
}

// transcodeBody ties the relay and the encoder session into one stream so
// a single Close tears down the full pipeline.
type transcodeBody struct {
	relay   *PreBufferRelay
	session *EncoderSession
}

func (b *transcodeBody) Read(p []byte) (int, error) {
	return b.relay.Read(p)
}

func (b *transcodeBody) Close() error {
	err := b.relay.Close()
	b.session.Kill()
	return err
}

func pickContainer(report domain.CodecReport, fileName string) string {
	if report.Container != "" {
		return report.Container
	}
	return containerFromName(fileName)
}

func containerFromName(name string) string {
	return normalizeContainer(pathExt(name))
}

func pathExt(name string) string {
	for i := len(name) - 1; i >= 0 && name[i] != '/'; i-- {
		if name[i] == '.' {
			return name[i:]
		}
	}
	return ""
}
