package radio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"mediastream/internal/domain"
	"mediastream/internal/domain/ports"
	"mediastream/internal/metrics"
)

var _ ports.RadioDirectory = (*Client)(nil)

const (
	defaultBaseURL   = "https://opml.radiotime.com"
	defaultPartner   = "RadioTime"
	tuneFormats      = "mp3,aac,ogg,flash,html,hls"
	redisCachePrefix = "mediastream:radio:"
)

// Client talks to the OPML radio directory: full-text station search plus
// resolution of a station id into a playable stream URL. Responses are
// cached in Redis when a client is configured; without one every lookup
// goes to the directory.
type Client struct {
	baseURL  string
	partner  string
	http     *http.Client
	redis    *redis.Client
	cacheTTL time.Duration
	logger   *slog.Logger
}

type Config struct {
	BaseURL   string
	PartnerID string
	Client    *http.Client
	Redis     *redis.Client
	CacheTTL  time.Duration
	Logger    *slog.Logger
}

func NewClient(cfg Config) *Client {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	partner := strings.TrimSpace(cfg.PartnerID)
	if partner == "" {
		partner = defaultPartner
	}
	httpClient := cfg.Client
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	cacheTTL := cfg.CacheTTL
	if cacheTTL <= 0 {
		cacheTTL = 6 * time.Hour
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		partner:  partner,
		http:     httpClient,
		redis:    cfg.Redis,
		cacheTTL: cacheTTL,
		logger:   logger,
	}
}

// opmlEnvelope is the directory's uniform response wrapper.
type opmlEnvelope struct {
	Head struct {
		Status string `json:"status"`
	} `json:"head"`
	Body []opmlOutline `json:"body"`
}

// opmlOutline is one directory entry. Search responses nest station lists
// under grouping outlines; tune responses carry stream descriptors at the
// top level.
type opmlOutline struct {
	Element   string        `json:"element"`
	Type      string        `json:"type"`
	Text      string        `json:"text"`
	Subtext   string        `json:"subtext"`
	GuideID   string        `json:"guide_id"`
	Image     string        `json:"image"`
	Formats   string        `json:"formats"`
	URL       string        `json:"URL"`
	MediaType string        `json:"media_type"`
	Children  []opmlOutline `json:"children"`
}

func (c *Client) Search(ctx context.Context, query string) ([]domain.RadioStation, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errors.New("query is required")
	}

	cacheKey := "search:" + strings.ToLower(query)
	var stations []domain.RadioStation
	if c.cacheGet(ctx, cacheKey, &stations) {
		metrics.RadioLookupsTotal.WithLabelValues("search", "hit").Inc()
		return stations, nil
	}
	metrics.RadioLookupsTotal.WithLabelValues("search", "miss").Inc()

	params := url.Values{
		"query":          {query},
		"fulltextsearch": {"true"},
		"render":         {"json"},
		"partnerId":      {c.partner},
	}
	var envelope opmlEnvelope
	if err := c.get(ctx, "/Search.ashx", params, &envelope); err != nil {
		return nil, err
	}

	stations = collectStations(envelope.Body, nil)
	c.cacheSet(ctx, cacheKey, stations)
	return stations, nil
}

// Tune resolves a station id to a playable stream URL. MP3 streams are
// preferred; any other media type is a fallback when the station offers
// no MP3 endpoint.
func (c *Client) Tune(ctx context.Context, stationID string) (string, error) {
	stationID = strings.TrimSpace(stationID)
	if stationID == "" {
		return "", errors.New("station id is required")
	}

	cacheKey := "tune:" + stationID
	var streamURL string
	if c.cacheGet(ctx, cacheKey, &streamURL) {
		metrics.RadioLookupsTotal.WithLabelValues("tune", "hit").Inc()
		return streamURL, nil
	}
	metrics.RadioLookupsTotal.WithLabelValues("tune", "miss").Inc()

	params := url.Values{
		"id":        {stationID},
		"render":    {"json"},
		"formats":   {tuneFormats},
		"partnerId": {c.partner},
	}
	var envelope opmlEnvelope
	if err := c.get(ctx, "/Tune.ashx", params, &envelope); err != nil {
		return "", err
	}

	streamURL = pickStreamURL(envelope.Body)
	if streamURL == "" {
		return "", fmt.Errorf("%w: station %s has no stream", domain.ErrNotFound, stationID)
	}
	c.cacheSet(ctx, cacheKey, streamURL)
	return streamURL, nil
}

func (c *Client) get(ctx context.Context, endpoint string, params url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("radio directory request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("radio directory returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("radio directory response parse failed: %w", err)
	}
	return nil
}

// collectStations flattens the outline tree into audio stations.
func collectStations(outlines []opmlOutline, acc []domain.RadioStation) []domain.RadioStation {
	for _, outline := range outlines {
		if outline.Type == "audio" && outline.GuideID != "" {
			acc = append(acc, domain.RadioStation{
				ID:       outline.GuideID,
				Name:     outline.Text,
				Subtitle: outline.Subtext,
				ImageURL: outline.Image,
				Format:   outline.Formats,
			})
		}
		if len(outline.Children) > 0 {
			acc = collectStations(outline.Children, acc)
		}
	}
	return acc
}

func pickStreamURL(outlines []opmlOutline) string {
	for _, outline := range outlines {
		if outline.MediaType == "mp3" && outline.URL != "" {
			return outline.URL
		}
	}
	for _, outline := range outlines {
		if outline.URL != "" {
			return outline.URL
		}
	}
	return ""
}

func (c *Client) cacheGet(ctx context.Context, key string, out any) bool {
	if c.redis == nil {
		return false
	}
	data, err := c.redis.Get(ctx, redisCachePrefix+key).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Debug("radio cache read failed", slog.String("error", err.Error()))
		}
		return false
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false
	}
	return true
}

func (c *Client) cacheSet(ctx context.Context, key string, value any) {
	if c.redis == nil {
		return
	}
	data, err := json.Marshal(value)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, redisCachePrefix+key, data, c.cacheTTL).Err(); err != nil {
		c.logger.Debug("radio cache write failed", slog.String("error", err.Error()))
	}
}
