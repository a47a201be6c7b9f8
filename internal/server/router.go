package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/ocena-project/ocena/internal/auth"
	"github.com/ocena-project/ocena/internal/movies"
	"github.com/ocena-project/ocena/internal/music"
	"github.com/ocena-project/ocena/internal/scraper"
	"github.com/ocena-project/ocena/internal/users"
	"go.uber.org/zap"
)

const userIDContextKey = "ocena_user_id"

const (
	defaultMovieEngine = "netnaija"
	defaultMusicEngine = "freemp3cloud"
	defaultPageSize    = 20
)

var (
	errMissingMovieCatalog = errors.New("movie catalog dependency required")
	errMissingMusicCatalog = errors.New("music catalog dependency required")
	errMissingMovieSource  = errors.New("movie source dependency required")
	errMissingMusicSource  = errors.New("music source dependency required")
)

// MovieSource fetches movie pages from the upstream scraping service.
type MovieSource interface {
	List(ctx context.Context, engine string, page, num int) ([]movies.Movie, error)
	Search(ctx context.Context, engine, query string, page int) ([]movies.Movie, error)
}

// MusicSource fetches track search results from the upstream scraping service.
type MusicSource interface {
	Search(ctx context.Context, engine, query string) ([]music.Track, error)
}

// Dependencies wires the HTTP surface to its collaborators. Verifier and
// Users are optional; without them every request is anonymous.
type Dependencies struct {
	MovieCatalog   *movies.Service
	MusicCatalog   *music.Service
	MovieSource    MovieSource
	MusicSource    MusicSource
	Caches         *Caches
	Verifier       *auth.Verifier
	Users          *users.Service
	AllowedOrigins []string
	Logger         *zap.Logger
}

// NewHTTPHandler builds the gin router for the API.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.MovieCatalog == nil {
		return nil, errMissingMovieCatalog
	}
	if deps.MusicCatalog == nil {
		return nil, errMissingMusicCatalog
	}
	if deps.MovieSource == nil {
		return nil, errMissingMovieSource
	}
	if deps.MusicSource == nil {
		return nil, errMissingMusicSource
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	caches := deps.Caches
	if caches == nil {
		built, err := NewCaches(CacheSizes{}, nil)
		if err != nil {
			return nil, err
		}
		caches = built
	}

	origins := deps.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: origins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		movieCatalog: deps.MovieCatalog,
		musicCatalog: deps.MusicCatalog,
		movieSource:  deps.MovieSource,
		musicSource:  deps.MusicSource,
		caches:       caches,
		verifier:     deps.Verifier,
		users:        deps.Users,
		logger:       logger,
	}

	router.Use(handler.resolveUser)

	router.GET("/", handler.handleRoot)
	router.GET("/list/", handler.handleList)
	router.GET("/search/", handler.handleSearch)
	router.GET("/music/search/", handler.handleMusicSearch)

	router.POST("/movie/", handler.handleMovieByKey)
	router.POST("/movie/ratings/average/", handler.handleAverageRating)
	router.POST("/movie/rating/", handler.handleRatingByIdentity)
	router.POST("/movie/downloads/", handler.handleDownloadCount)
	router.POST("/movie/referrals/", handler.handleReferralCount)
	router.POST("/rating/", handler.handleMovieRatings)
	router.POST("/rate/", handler.handleRate)
	router.POST("/download/", handler.handleDownload)
	router.POST("/download/highest/", handler.handleHighestDownloads)
	router.POST("/referral/", handler.handleReferral)
	router.POST("/referral/id/", handler.handleMovieByReferralID)

	return router, nil
}

type httpHandler struct {
	movieCatalog *movies.Service
	musicCatalog *music.Service
	movieSource  MovieSource
	musicSource  MusicSource
	caches       *Caches
	verifier     *auth.Verifier
	users        *users.Service
	logger       *zap.Logger
}

// resolveUser attaches the validated token subject to the request context.
// Requests without an Authorization header proceed anonymously; a presented
// but invalid token is rejected.
func (h *httpHandler) resolveUser(c *gin.Context) {
	if h.verifier == nil {
		c.Next()
		return
	}

	header := c.GetHeader("Authorization")
	if header == "" {
		c.Next()
		return
	}

	token, ok := auth.BearerToken(header)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_authorization"})
		return
	}

	claims, err := h.verifier.VerifyToken(token)
	if err != nil {
		h.logger.Warn("token verification failed", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	userID := claims.Subject
	if h.users != nil {
		resolved, err := h.users.ResolveUserID(claims)
		if err != nil {
			h.logger.Error("user resolution failed", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "identity_resolution_failed"})
			return
		}
		userID = resolved
	}

	c.Set(userIDContextKey, userID)
	c.Next()
}

func (h *httpHandler) handleRoot(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "Ocena, 'Rating'!"})
}

// handleList serves one page of an engine's movies. A fresh upstream fetch is
// preferred; when the upstream is unavailable the handler degrades to the
// locally persisted rows rather than surfacing a failure.
func (h *httpHandler) handleList(c *gin.Context) {
	engine := queryDefault(c, "engine", defaultMovieEngine)
	page := intQuery(c, "page", 1)
	num := intQuery(c, "num", defaultPageSize)

	key := h.caches.list.Key("list", engine, strconv.Itoa(page), strconv.Itoa(num))
	if cached, ok := h.caches.list.Get(key); ok {
		c.JSON(http.StatusOK, cached)
		return
	}

	result, err := h.movieSource.List(c.Request.Context(), engine, page, num)
	if err != nil {
		if !errors.Is(err, scraper.ErrUpstream) {
			h.logger.Error("list failed", zap.String("engine", engine), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": serviceErrorCode(err)})
			return
		}
		h.logger.Warn("upstream unavailable, serving local listing",
			zap.String("engine", engine), zap.Error(err))
		result = nil
	}

	if len(result) == 0 {
		local, err := h.movieCatalog.ListByEngine(c.Request.Context(), engine, page, num)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": serviceErrorCode(err)})
			return
		}
		result = local
	}

	h.caches.list.Add(key, result)
	c.JSON(http.StatusOK, result)
}

// handleSearch serves fuzzy matches for a query, with the same local
// degradation as handleList.
func (h *httpHandler) handleSearch(c *gin.Context) {
	engine := queryDefault(c, "engine", defaultMovieEngine)
	query := c.Query("query")
	page := intQuery(c, "page", 1)
	num := intQuery(c, "num", defaultPageSize)

	key := h.caches.search.Key("search", engine, query, strconv.Itoa(page), strconv.Itoa(num))
	if cached, ok := h.caches.search.Get(key); ok {
		c.JSON(http.StatusOK, cached)
		return
	}

	result, err := h.movieSource.Search(c.Request.Context(), engine, query, page)
	if err != nil {
		if !errors.Is(err, scraper.ErrUpstream) {
			h.logger.Error("search failed", zap.String("engine", engine), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": serviceErrorCode(err)})
			return
		}
		h.logger.Warn("upstream unavailable, serving local search",
			zap.String("engine", engine), zap.Error(err))
		result = nil
	}

	if len(result) == 0 {
		local, err := h.movieCatalog.SearchByName(c.Request.Context(), engine, query, page, num)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": serviceErrorCode(err)})
			return
		}
		result = local
	}

	h.caches.search.Add(key, result)
	c.JSON(http.StatusOK, result)
}

func (h *httpHandler) handleMusicSearch(c *gin.Context) {
	engine := queryDefault(c, "engine", defaultMusicEngine)
	query := c.Query("query")

	key := h.caches.music.Key("music_search", engine, query)
	if cached, ok := h.caches.music.Get(key); ok {
		c.JSON(http.StatusOK, cached)
		return
	}

	result, err := h.musicSource.Search(c.Request.Context(), engine, query)
	if err != nil {
		if !errors.Is(err, scraper.ErrUpstream) {
			h.logger.Error("music search failed", zap.String("engine", engine), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": serviceErrorCode(err)})
			return
		}
		h.logger.Warn("music upstream unavailable, serving local search",
			zap.String("engine", engine), zap.Error(err))
		result = nil
	}

	if len(result) == 0 {
		local, err := h.musicCatalog.SearchBySource(c.Request.Context(), engine, query)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": serviceErrorCode(err)})
			return
		}
		result = local
	}

	h.caches.music.Add(key, result)
	c.JSON(http.StatusOK, result)
}

type movieKeyPayload struct {
	Name   string `json:"name"`
	Engine string `json:"engine"`
}

func (h *httpHandler) handleMovieByKey(c *gin.Context) {
	var payload movieKeyPayload
	if err := c.ShouldBindJSON(&payload); err != nil || payload.Name == "" || payload.Engine == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	movie, err := h.movieCatalog.GetByKey(c.Request.Context(), payload.Name, payload.Engine)
	if err != nil {
		h.respondMovieError(c, err)
		return
	}
	c.JSON(http.StatusOK, movie)
}

type movieReferencePayload struct {
	ReferralID string `json:"referral_id"`
}

func (h *httpHandler) handleMovieByReferralID(c *gin.Context) {
	var payload movieReferencePayload
	if err := c.ShouldBindJSON(&payload); err != nil || payload.ReferralID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	key := h.caches.referral.Key("referral", payload.ReferralID)
	if cached, ok := h.caches.referral.Get(key); ok {
		c.JSON(http.StatusOK, cached)
		return
	}

	movie, err := h.movieCatalog.GetByReferralID(c.Request.Context(), payload.ReferralID)
	if err != nil {
		h.respondMovieError(c, err)
		return
	}

	h.caches.referral.Add(key, movie)
	c.JSON(http.StatusOK, movie)
}

func (h *httpHandler) handleAverageRating(c *gin.Context) {
	var payload movieReferencePayload
	if err := c.ShouldBindJSON(&payload); err != nil || payload.ReferralID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	average, err := h.movieCatalog.AverageRating(c.Request.Context(), payload.ReferralID)
	if err != nil {
		h.respondMovieError(c, err)
		return
	}
	c.JSON(http.StatusOK, average)
}

type specificRatingPayload struct {
	ReferralID string `json:"referral_id"`
	IPAddress  string `json:"ip_address"`
}

func (h *httpHandler) handleRatingByIdentity(c *gin.Context) {
	var payload specificRatingPayload
	if err := c.ShouldBindJSON(&payload); err != nil || payload.ReferralID == "" || payload.IPAddress == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	rating, err := h.movieCatalog.RatingFor(c.Request.Context(), payload.ReferralID, payload.IPAddress, c.GetString(userIDContextKey))
	if err != nil {
		if errors.Is(err, movies.ErrRatingNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "rating_not_found"})
			return
		}
		h.respondMovieError(c, err)
		return
	}
	c.JSON(http.StatusOK, rating)
}

func (h *httpHandler) handleMovieRatings(c *gin.Context) {
	var payload movieReferencePayload
	if err := c.ShouldBindJSON(&payload); err != nil || payload.ReferralID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	ratings, err := h.movieCatalog.MovieRatings(c.Request.Context(), payload.ReferralID)
	if err != nil {
		h.respondMovieError(c, err)
		return
	}
	c.JSON(http.StatusOK, ratings)
}

type ratePayload struct {
	ReferralID string `json:"referral_id"`
	IPAddress  string `json:"ip_address"`
	Score      int    `json:"score"`
}

func (h *httpHandler) handleRate(c *gin.Context) {
	var payload ratePayload
	if err := c.ShouldBindJSON(&payload); err != nil || payload.ReferralID == "" || payload.IPAddress == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	rating, err := h.movieCatalog.RateMovie(c.Request.Context(), payload.ReferralID, payload.IPAddress, c.GetString(userIDContextKey), payload.Score)
	if err != nil {
		if errors.Is(err, movies.ErrInvalidScore) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_score"})
			return
		}
		h.respondMovieError(c, err)
		return
	}
	c.JSON(http.StatusOK, rating)
}

type eventPayload struct {
	ReferralID string `json:"referral_id"`
	IPAddress  string `json:"ip_address"`
}

func (h *httpHandler) handleDownload(c *gin.Context) {
	var payload eventPayload
	if err := c.ShouldBindJSON(&payload); err != nil || payload.ReferralID == "" || payload.IPAddress == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	event, err := h.movieCatalog.RecordDownload(c.Request.Context(), payload.ReferralID, payload.IPAddress)
	if err != nil {
		h.respondMovieError(c, err)
		return
	}
	c.JSON(http.StatusOK, event)
}

func (h *httpHandler) handleReferral(c *gin.Context) {
	var payload eventPayload
	if err := c.ShouldBindJSON(&payload); err != nil || payload.ReferralID == "" || payload.IPAddress == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	event, err := h.movieCatalog.RecordReferral(c.Request.Context(), payload.ReferralID, payload.IPAddress)
	if err != nil {
		h.respondMovieError(c, err)
		return
	}
	c.JSON(http.StatusOK, event)
}

func (h *httpHandler) handleDownloadCount(c *gin.Context) {
	var payload movieReferencePayload
	if err := c.ShouldBindJSON(&payload); err != nil || payload.ReferralID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	count, err := h.movieCatalog.DownloadCount(c.Request.Context(), payload.ReferralID)
	if err != nil {
		h.respondMovieError(c, err)
		return
	}
	c.JSON(http.StatusOK, count)
}

func (h *httpHandler) handleReferralCount(c *gin.Context) {
	var payload movieReferencePayload
	if err := c.ShouldBindJSON(&payload); err != nil || payload.ReferralID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	count, err := h.movieCatalog.ReferralCount(c.Request.Context(), payload.ReferralID)
	if err != nil {
		h.respondMovieError(c, err)
		return
	}
	c.JSON(http.StatusOK, count)
}

func (h *httpHandler) handleHighestDownloads(c *gin.Context) {
	var filter movies.DownloadFilter
	if err := c.ShouldBindJSON(&filter); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	key := h.caches.downloads.Key("highest_downloads",
		filter.FilterBy, strconv.Itoa(filter.FilterNum), strconv.Itoa(filter.Top))
	if cached, ok := h.caches.downloads.Get(key); ok {
		c.JSON(http.StatusOK, cached)
		return
	}

	result, err := h.movieCatalog.HighestDownloads(c.Request.Context(), filter)
	if err != nil {
		if errors.Is(err, movies.ErrInvalidFilter) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_filter"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": serviceErrorCode(err)})
		return
	}

	h.caches.downloads.Add(key, result)
	c.JSON(http.StatusOK, result)
}

// respondMovieError maps catalog failures to HTTP responses. Unknown referral
// ids are a client error, distinct from upstream unavailability.
func (h *httpHandler) respondMovieError(c *gin.Context, err error) {
	if errors.Is(err, movies.ErrMovieNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "referral_not_found"})
		return
	}
	if errors.Is(err, movies.ErrInvalidMovieKey) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	h.logger.Error("catalog request failed", zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": serviceErrorCode(err)})
}

func serviceErrorCode(err error) string {
	var serviceErr *movies.ServiceError
	if errors.As(err, &serviceErr) {
		return serviceErr.Code()
	}
	return "internal_error"
}

func queryDefault(c *gin.Context, name, fallback string) string {
	value := c.Query(name)
	if value == "" {
		return fallback
	}
	return value
}

func intQuery(c *gin.Context, name string, fallback int) int {
	value, err := strconv.Atoi(c.Query(name))
	if err != nil || value < 1 {
		return fallback
	}
	return value
}
