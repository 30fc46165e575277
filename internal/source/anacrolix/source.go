package anacrolix

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/anacrolix/torrent"

	"mediastream/internal/domain"
	"mediastream/internal/domain/ports"
	"mediastream/internal/stream"
)

// addTimeout caps how long we wait for the anacrolix client to accept a
// magnet link; the client can block on an internal mutex while resolving
// metadata for another torrent.
const (
	addTimeout             = 10 * time.Second
	defaultMetadataTimeout = 30 * time.Second
	streamReadahead        = 8 << 20
)

type Config struct {
	DataDir         string
	MetadataTimeout time.Duration
}

var _ ports.ByteSource = (*Source)(nil)

// Source adapts the anacrolix torrent client to the ByteSource port. One
// torrent maps to one content id (the info hash in hex); file indexes
// address files inside the torrent.
type Source struct {
	client          *torrent.Client
	metadataTimeout time.Duration
	logger          *slog.Logger

	mu       sync.RWMutex
	torrents map[domain.ContentID]*torrent.Torrent
}

func New(cfg Config, logger *slog.Logger) (*Source, error) {
	clientConfig := torrent.NewDefaultClientConfig()
	if cfg.DataDir != "" {
		clientConfig.DataDir = cfg.DataDir
	}
	client, err := torrent.NewClient(clientConfig)
	if err != nil {
		return nil, err
	}
	return NewWithClient(client, cfg, logger), nil
}

func NewWithClient(client *torrent.Client, cfg Config, logger *slog.Logger) *Source {
	if cfg.MetadataTimeout <= 0 {
		cfg.MetadataTimeout = defaultMetadataTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Source{
		client:          client,
		metadataTimeout: cfg.MetadataTimeout,
		logger:          logger,
		torrents:        make(map[domain.ContentID]*torrent.Torrent),
	}
}

func (s *Source) Close() error {
	if s.client == nil {
		return nil
	}
	errList := s.client.Close()
	if len(errList) > 0 {
		return errList[0]
	}
	return nil
}

// Add registers a magnet link and returns its content id. Adding the same
// magnet twice returns the existing id.
func (s *Source) Add(ctx context.Context, magnet string) (domain.ContentID, error) {
	if s.client == nil {
		return "", errors.New("torrent client not configured")
	}

	type addResult struct {
		t   *torrent.Torrent
		err error
	}
	ch := make(chan addResult, 1)
	go func() {
		t, err := s.client.AddMagnet(magnet)
		ch <- addResult{t, err}
	}()

	var t *torrent.Torrent
	select {
	case res := <-ch:
		if res.err != nil {
			return "", res.err
		}
		t = res.t
	case <-time.After(addTimeout):
		// AddMagnet may still complete later; drop the orphan when it does.
		go func() {
			if res := <-ch; res.t != nil {
				res.t.Drop()
			}
		}()
		return "", fmt.Errorf("%w: torrent client busy", domain.ErrUpstreamUnavailable)
	case <-ctx.Done():
		go func() {
			if res := <-ch; res.t != nil {
				res.t.Drop()
			}
		}()
		return "", ctx.Err()
	}

	id := domain.ContentID(t.InfoHash().HexString())
	s.mu.Lock()
	s.torrents[id] = t
	s.mu.Unlock()
	s.logger.Info("content registered", slog.String("contentId", string(id)))
	return id, nil
}

// ContentFile describes one file of a registered content item.
type ContentFile struct {
	Index    int    `json:"index"`
	Name     string `json:"name"`
	Size     int64  `json:"size"`
	Category string `json:"category"`
}

// ContentSummary is the listing shape for registered content.
type ContentSummary struct {
	ID             domain.ContentID `json:"id"`
	Name           string           `json:"name"`
	MetadataReady  bool             `json:"metadataReady"`
	BytesCompleted int64            `json:"bytesCompleted"`
	TotalBytes     int64            `json:"totalBytes"`
	Files          []ContentFile    `json:"files,omitempty"`
}

// List snapshots all registered content.
func (s *Source) List() []ContentSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]ContentSummary, 0, len(s.torrents))
	for id, t := range s.torrents {
		summary := ContentSummary{ID: id, Name: t.Name()}
		select {
		case <-t.GotInfo():
			summary.MetadataReady = true
			summary.BytesCompleted = t.BytesCompleted()
			summary.TotalBytes = t.Length()
			for i, f := range t.Files() {
				summary.Files = append(summary.Files, ContentFile{
					Index:    i,
					Name:     path.Base(f.DisplayPath()),
					Size:     f.Length(),
					Category: string(stream.MediaCategoryForName(f.DisplayPath())),
				})
			}
		default:
		}
		out = append(out, summary)
	}
	return out
}

// Remove drops a content item and its network activity.
func (s *Source) Remove(id domain.ContentID) error {
	s.mu.Lock()
	t, ok := s.torrents[id]
	if ok {
		delete(s.torrents, id)
	}
	s.mu.Unlock()
	if !ok {
		return domain.ErrNotFound
	}
	t.Drop()
	s.logger.Info("content removed", slog.String("contentId", string(id)))
	return nil
}

func (s *Source) GetInfo(ctx context.Context, id domain.ContentID, fileIndex int) (domain.StreamInfo, error) {
	f, err := s.file(ctx, id, fileIndex)
	if err != nil {
		return domain.StreamInfo{}, err
	}

	name := path.Base(f.DisplayPath())
	return domain.StreamInfo{
		FileName: name,
		FilePath: f.DisplayPath(),
		Size:     f.Length(),
		MimeType: mimeTypeForName(name),
		Category: stream.MediaCategoryForName(name),
	}, nil
}

func (s *Source) Open(ctx context.Context, id domain.ContentID, fileIndex int, rng *domain.ByteRange, opts ports.OpenOptions) (ports.OpenedStream, error) {
	f, err := s.file(ctx, id, fileIndex)
	if err != nil {
		return ports.OpenedStream{}, err
	}

	if rng != nil && (rng.Start < 0 || rng.End >= f.Length() || rng.Start > rng.End) {
		return ports.OpenedStream{}, fmt.Errorf("%w: %d-%d of %d",
			domain.ErrRangeUnsatisfiable, rng.Start, rng.End, f.Length())
	}

	reader := f.NewReader()
	reader.SetReadahead(streamReadahead)
	reader.SetResponsive()

	start := int64(0)
	if rng != nil {
		start = rng.Start
	}
	if start > 0 {
		if _, err := reader.Seek(start, io.SeekStart); err != nil {
			reader.Close()
			return ports.OpenedStream{}, err
		}
	}

	if opts.WaitForData {
		if err := primeReader(ctx, reader, start); err != nil {
			reader.Close()
			return ports.OpenedStream{}, fmt.Errorf("%w: %v", domain.ErrUpstreamUnavailable, err)
		}
	}

	if rng != nil {
		r := *rng
		return ports.OpenedStream{
			Reader:        &limitedReader{r: io.LimitReader(reader, r.Length()), c: reader},
			IsPartial:     true,
			ContentRange:  &r,
			ContentLength: r.Length(),
		}, nil
	}
	return ports.OpenedStream{
		Reader:        reader,
		ContentLength: f.Length(),
	}, nil
}

// file resolves a content id and file index, waiting for metadata up to the
// configured timeout.
func (s *Source) file(ctx context.Context, id domain.ContentID, fileIndex int) (*torrent.File, error) {
	s.mu.RLock()
	t, ok := s.torrents[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: content %s", domain.ErrNotFound, id)
	}

	waitCtx, cancel := context.WithTimeout(ctx, s.metadataTimeout)
	defer cancel()
	select {
	case <-t.GotInfo():
	case <-waitCtx.Done():
		return nil, fmt.Errorf("%w: metadata for %s", domain.ErrUpstreamUnavailable, id)
	}

	files := t.Files()
	if fileIndex < 0 || fileIndex >= len(files) {
		return nil, fmt.Errorf("%w: %d of %d files", domain.ErrInvalidFileIndex, fileIndex, len(files))
	}
	return files[fileIndex], nil
}

// primeReader performs a one-byte read to block until the first piece at
// the stream position is downloaded, then rewinds. The transcode path
// depends on this so the encoder sees header bytes immediately.
func primeReader(ctx context.Context, reader torrent.Reader, start int64) error {
	var probe [1]byte
	n, err := reader.ReadContext(ctx, probe[:])
	if err != nil && err != io.EOF {
		return err
	}
	if n > 0 {
		if _, err := reader.Seek(start, io.SeekStart); err != nil {
			return err
		}
	}
	return nil
}

type limitedReader struct {
	r io.Reader
	c io.Closer
}

func (l *limitedReader) Read(p []byte) (int, error) { return l.r.Read(p) }
func (l *limitedReader) Close() error               { return l.c.Close() }

var extraMimeTypes = map[string]string{
	".mkv":  "video/x-matroska",
	".avi":  "video/x-msvideo",
	".flv":  "video/x-flv",
	".wmv":  "video/x-ms-wmv",
	".m4v":  "video/x-m4v",
	".ts":   "video/mp2t",
	".flac": "audio/flac",
	".m4a":  "audio/mp4",
	".wma":  "audio/x-ms-wma",
	".ape":  "audio/x-ape",
	".wv":   "audio/x-wavpack",
	".aiff": "audio/aiff",
	".opus": "audio/opus",
}

func mimeTypeForName(name string) string {
	ext := strings.ToLower(path.Ext(name))
	if mt, ok := extraMimeTypes[ext]; ok {
		return mt
	}
	if mt := mime.TypeByExtension(ext); mt != "" {
		return mt
	}
	return "application/octet-stream"
}
