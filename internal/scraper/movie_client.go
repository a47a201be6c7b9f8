package scraper

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/ocena-project/ocena/internal/movies"
	"go.uber.org/zap"
)

// MovieCatalog is the slice of the movie service the client needs to persist
// scraped records.
type MovieCatalog interface {
	UpsertMovie(ctx context.Context, candidate movies.Movie) (movies.Movie, error)
}

// MovieClientConfig bundles configuration for the movie scraping client.
type MovieClientConfig struct {
	BaseURL    string
	AccessKey  string
	HTTPClient *http.Client
	Timeout    time.Duration
	Retries    int
	Clock      func() time.Time
	Catalog    MovieCatalog
	IDProvider movies.IDProvider
	Logger     *zap.Logger
}

// MovieClient fetches movie pages from one upstream host and reconciles them
// into the catalog.
type MovieClient struct {
	fetcher    fetcher
	clock      func() time.Time
	catalog    MovieCatalog
	idProvider movies.IDProvider
	logger     *zap.Logger
}

// NewMovieClient constructs a client with validated configuration.
func NewMovieClient(cfg MovieClientConfig) (*MovieClient, error) {
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
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	idProvider := cfg.IDProvider
	if idProvider == nil {
		idProvider = movies.NewUUIDProvider()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &MovieClient{
		fetcher: fetcher{
			baseURL:    cfg.BaseURL,
			accessKey:  cfg.AccessKey,
			httpClient: httpClient,
			timeout:    timeout,
			retries:    retries,
			logger:     logger,
		},
		clock:      clock,
		catalog:    cfg.Catalog,
		idProvider: idProvider,
		logger:     logger,
	}, nil
}

// List fetches one page of an engine's listing and persists every valid item.
// Items on page N are back-dated by N days so that later pages always sort
// behind earlier ones in the recency ordering, regardless of scrape order.
func (c *MovieClient) List(ctx context.Context, engine string, page, num int) ([]movies.Movie, error) {
	params := url.Values{}
	params.Set("engine", engine)
	params.Set("page", intParam(page))
	params.Set("num", intParam(num))

	items, err := c.fetcher.fetchItems(ctx, "list", params)
	if err != nil {
		return nil, err
	}

	backdated := c.clock().UTC().AddDate(0, 0, -page)
	return c.persist(ctx, items, backdated)
}

// Search fetches matches for a query from an engine and persists every valid
// item. Search results carry no synthetic creation date so they do not pollute
// the listing recency ordering.
func (c *MovieClient) Search(ctx context.Context, engine, query string, page int) ([]movies.Movie, error) {
	params := url.Values{}
	params.Set("engine", engine)
	params.Set("query", query)
	params.Set("page", intParam(page))

	items, err := c.fetcher.fetchItems(ctx, "search", params)
	if err != nil {
		return nil, err
	}

	return c.persist(ctx, items, time.Time{})
}

// persist converts each upstream item and hands it to the catalog upsert,
// preserving upstream order. Items missing a title or source are dropped
// silently; the batch still succeeds.
func (c *MovieClient) persist(ctx context.Context, items []map[string]any, dateCreated time.Time) ([]movies.Movie, error) {
	persisted := make([]movies.Movie, 0, len(items))
	for _, raw := range items {
		item := normalizeKeys(raw)

		title := stringField(item, "title")
		source := stringField(item, "source")
		if title == "" || source == "" {
			continue
		}

		referralID, err := c.idProvider.NewID()
		if err != nil {
			return nil, err
		}

		candidate := movies.Movie{
			Name:           title,
			Engine:         source,
			Description:    stringField(item, "description"),
			Size:           stringField(item, "size"),
			Year:           stringField(item, "year"),
			DownloadLink:   stringField(item, "downloadlink"),
			ReferralID:     referralID,
			CoverPhotoLink: stringField(item, "coverphotolink"),
			Quality:        stringField(item, "quality"),
			IsSeries:       boolField(item, "isseries"),
			SDownloadLink:  linkMapField(item, "sdownloadlink"),
			Category:       stringField(item, "category"),
			Cast:           stringField(item, "cast"),
			UploadDate:     stringField(item, "uploaddate"),
			SubtitleLink:   stringField(item, "subtitlelink"),
			SubtitleLinks:  linkMapField(item, "subtitlelinks"),
			IMDBLink:       stringField(item, "imdblink"),
			Tags:           stringField(item, "tags"),
			DateCreated:    dateCreated,
		}

		movie, err := c.catalog.UpsertMovie(ctx, candidate)
		if err != nil {
			c.logger.Error("movie reconciliation failed",
				zap.String("name", title),
				zap.String("engine", source),
				zap.Error(err))
			return nil, err
		}
		persisted = append(persisted, movie)
	}
	return persisted, nil
}
