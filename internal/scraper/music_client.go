package scraper

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/ocena-project/ocena/internal/music"
	"go.uber.org/zap"
)

// MusicCatalog is the slice of the music service the client needs to persist
// scraped tracks.
type MusicCatalog interface {
	UpsertTrack(ctx context.Context, candidate music.Track) (music.Track, error)
}

// MusicClientConfig bundles configuration for the music scraping client.
type MusicClientConfig struct {
	BaseURL    string
	AccessKey  string
	HTTPClient *http.Client
	Timeout    time.Duration
	Retries    int
	Catalog    MusicCatalog
	Logger     *zap.Logger
}

// MusicClient fetches track search results from one upstream host and
// reconciles them into the catalog.
type MusicClient struct {
	fetcher fetcher
	catalog MusicCatalog
	logger  *zap.Logger
}

// NewMusicClient constructs a client with validated configuration.
func NewMusicClient(cfg MusicClientConfig) (*MusicClient, error) {
	if cfg.BaseURL == "" {
		return nil, errMissingBaseURL
	}
	if cfg.Catalog == nil {
		return nil, errMissingCatalog
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	retries := cfg.Retries
	if retries < 0 {
		retries = defaultRetries
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &MusicClient{
		fetcher: fetcher{
			baseURL:    cfg.BaseURL,
			accessKey:  cfg.AccessKey,
			httpClient: httpClient,
			timeout:    timeout,
			retries:    retries,
			logger:     logger,
		},
		catalog: cfg.Catalog,
		logger:  logger,
	}, nil
}

// Search fetches track matches for a query from an engine and persists every
// valid item in upstream order. Items missing a title, source or download
// link are dropped silently.
func (c *MusicClient) Search(ctx context.Context, engine, query string) ([]music.Track, error) {
	params := url.Values{}
	params.Set("engine", engine)
	params.Set("query", query)

	items, err := c.fetcher.fetchItems(ctx, "search", params)
	if err != nil {
		return nil, err
	}

	persisted := make([]music.Track, 0, len(items))
	for _, raw := range items {
		item := normalizeKeys(raw)

		title := stringField(item, "title")
		source := stringField(item, "source")
		downloadLink := stringField(item, "downloadlink")
		if title == "" || source == "" || downloadLink == "" {
			continue
		}

		candidate := music.Track{
			Artiste:      stringField(item, "artiste"),
			Title:        title,
			Collection:   stringField(item, "collection"),
			DownloadLink: downloadLink,
			PictureLink:  stringField(item, "picturelink"),
			Size:         stringField(item, "size"),
			Duration:     stringField(item, "duration"),
			Source:       source,
		}

		track, err := c.catalog.UpsertTrack(ctx, candidate)
		if err != nil {
			c.logger.Error("track reconciliation failed",
				zap.String("title", title),
				zap.String("source", source),
				zap.Error(err))
			return nil, err
		}
		persisted = append(persisted, track)
	}
	return persisted, nil
}
