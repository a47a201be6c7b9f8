package server

import (
	"time"

	"github.com/ocena-project/ocena/internal/memo"
	"github.com/ocena-project/ocena/internal/movies"
	"github.com/ocena-project/ocena/internal/music"
)

const (
	defaultListCacheSize      = 4096
	defaultSearchCacheSize    = 4096
	defaultDownloadsCacheSize = 128
	defaultReferralCacheSize  = 256
)

// CacheSizes bounds each memoized read path.
type CacheSizes struct {
	List      int
	Search    int
	Downloads int
	Referral  int
}

// Caches groups the per-operation memoization caches shared by all in-flight
// requests of one process.
type Caches struct {
	list      *memo.Cache[[]movies.Movie]
	search    *memo.Cache[[]movies.Movie]
	music     *memo.Cache[[]music.Track]
	downloads *memo.Cache[[]movies.MovieDownloads]
	referral  *memo.Cache[movies.Movie]
}

// NewCaches constructs the read-path caches. Zero sizes fall back to defaults;
// a nil clock defaults to time.Now.
func NewCaches(sizes CacheSizes, clock func() time.Time) (*Caches, error) {
	if sizes.List <= 0 {
		sizes.List = defaultListCacheSize
	}
	if sizes.Search <= 0 {
		sizes.Search = defaultSearchCacheSize
	}
	if sizes.Downloads <= 0 {
		sizes.Downloads = defaultDownloadsCacheSize
	}
	if sizes.Referral <= 0 {
		sizes.Referral = defaultReferralCacheSize
	}

	listCache, err := memo.New[[]movies.Movie](sizes.List, clock)
	if err != nil {
		return nil, err
	}
	searchCache, err := memo.New[[]movies.Movie](sizes.Search, clock)
	if err != nil {
		return nil, err
	}
	musicCache, err := memo.New[[]music.Track](sizes.Search, clock)
	if err != nil {
		return nil, err
	}
	downloadsCache, err := memo.New[[]movies.MovieDownloads](sizes.Downloads, clock)
	if err != nil {
		return nil, err
	}
	referralCache, err := memo.New[movies.Movie](sizes.Referral, clock)
	if err != nil {
		return nil, err
	}

	return &Caches{
		list:      listCache,
		search:    searchCache,
		music:     musicCache,
		downloads: downloadsCache,
		referral:  referralCache,
	}, nil
}
