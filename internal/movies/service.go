package movies

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	noOpLogger           = zap.NewNop()
)

// ServiceError wraps a failure with a stable machine-readable code.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

// Code returns the operation.reason identifier for the failure.
func (e *ServiceError) Code() string {
	return e.code
}

const (
	opServiceNew       = "movies.service.new"
	opUpsertMovie      = "movies.upsert"
	opGetMovie         = "movies.get"
	opListMovies       = "movies.list"
	opSearchMovies     = "movies.search"
	opRateMovie        = "movies.rate"
	opAverageRating    = "movies.average_rating"
	opRecordDownload   = "movies.record_download"
	opRecordReferral   = "movies.record_referral"
	opHighestDownloads = "movies.highest_downloads"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

// IdentityMode selects the columns backing rating uniqueness.
type IdentityMode string

const (
	// IdentityIP keys ratings on (movie, ip) only; authenticated users share
	// the anonymous slot for their address.
	IdentityIP IdentityMode = "ip"
	// IdentityIPUser keys ratings on (movie, ip, user).
	IdentityIPUser IdentityMode = "ip_user"
)

// ServiceConfig bundles the dependencies of the movie catalog service.
type ServiceConfig struct {
	Database     *gorm.DB
	Clock        func() time.Time
	IDProvider   IDProvider
	IdentityMode IdentityMode
	Logger       *zap.Logger
}

// Service owns create-or-merge reconciliation and aggregate queries for the
// movie catalog.
type Service struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider IDProvider
	identity   IdentityMode
	logger     *zap.Logger
}

// NewService constructs the catalog service with validated configuration.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, newServiceError(opServiceNew, "missing_id_provider", errMissingIDProvider)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	identity := cfg.IdentityMode
	if identity == "" {
		identity = IdentityIP
	}

	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Service{
		db:         cfg.Database,
		clock:      clock,
		idProvider: cfg.IDProvider,
		identity:   identity,
		logger:     logger,
	}, nil
}

// UpsertMovie inserts the candidate or merges it into the existing row that
// shares its (name, engine) key. The select-then-write runs under one
// transaction with a row lock so concurrent upserts converge on a single row.
// A missing referral id is assigned lazily and never regenerated afterwards.
func (s *Service) UpsertMovie(ctx context.Context, candidate Movie) (Movie, error) {
	if strings.TrimSpace(candidate.Name) == "" || strings.TrimSpace(candidate.Engine) == "" {
		return Movie{}, newServiceError(opUpsertMovie, "invalid_key", ErrInvalidMovieKey)
	}

	var canonical Movie
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing Movie
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("name = ? AND engine = ?", candidate.Name, candidate.Engine).
			Take(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			record := candidate
			record.ID = 0
			if record.ReferralID == "" {
				referralID, idErr := s.idProvider.NewID()
				if idErr != nil {
					return newServiceError(opUpsertMovie, "id_generation_failed", idErr)
				}
				record.ReferralID = referralID
			}
			if createErr := tx.Create(&record).Error; createErr != nil {
				return newServiceError(opUpsertMovie, "movie_create_failed", createErr)
			}
			canonical = record
			return nil
		}
		if err != nil {
			return newServiceError(opUpsertMovie, "movie_select_failed", err)
		}

		merged := mergeMovie(existing, candidate)
		if merged.ReferralID == "" {
			referralID, idErr := s.idProvider.NewID()
			if idErr != nil {
				return newServiceError(opUpsertMovie, "id_generation_failed", idErr)
			}
			merged.ReferralID = referralID
		}
		if saveErr := tx.Save(&merged).Error; saveErr != nil {
			return newServiceError(opUpsertMovie, "movie_save_failed", saveErr)
		}
		canonical = merged
		return nil
	})
	if txErr != nil {
		s.logError(opUpsertMovie, "transaction_failed", txErr,
			zap.String("name", candidate.Name),
			zap.String("engine", candidate.Engine))
		return Movie{}, txErr
	}

	return canonical, nil
}

// GetByKey returns the movie for the exact (name, engine) pair.
func (s *Service) GetByKey(ctx context.Context, name, engine string) (Movie, error) {
	if strings.TrimSpace(name) == "" || strings.TrimSpace(engine) == "" {
		return Movie{}, newServiceError(opGetMovie, "invalid_key", ErrInvalidMovieKey)
	}

	var movie Movie
	err := s.db.WithContext(ctx).
		Where("name = ? AND engine = ?", name, engine).
		Take(&movie).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Movie{}, ErrMovieNotFound
	}
	if err != nil {
		s.logError(opGetMovie, "query_failed", err, zap.String("name", name))
		return Movie{}, newServiceError(opGetMovie, "query_failed", err)
	}
	return movie, nil
}

// GetByReferralID returns the movie carrying the given referral token.
func (s *Service) GetByReferralID(ctx context.Context, referralID string) (Movie, error) {
	if strings.TrimSpace(referralID) == "" {
		return Movie{}, ErrMovieNotFound
	}

	var movie Movie
	err := s.db.WithContext(ctx).
		Where("referral_id = ?", referralID).
		Take(&movie).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Movie{}, ErrMovieNotFound
	}
	if err != nil {
		s.logError(opGetMovie, "query_failed", err, zap.String("referral_id", referralID))
		return Movie{}, newServiceError(opGetMovie, "query_failed", err)
	}
	return movie, nil
}

// ListByEngine returns one page of an engine's movies ordered newest first.
// The back-dated date_created assigned at ingestion keeps later upstream pages
// strictly behind earlier ones; ids break ties within a page.
func (s *Service) ListByEngine(ctx context.Context, engine string, page, num int) ([]Movie, error) {
	page, num = normalizePage(page, num)

	var rows []Movie
	err := s.db.WithContext(ctx).
		Where("LOWER(engine) = LOWER(?)", engine).
		Order("date_created DESC, id ASC").
		Limit(num).
		Offset(num * (page - 1)).
		Find(&rows).Error
	if err != nil {
		s.logError(opListMovies, "query_failed", err, zap.String("engine", engine))
		return nil, newServiceError(opListMovies, "query_failed", err)
	}
	return rows, nil
}

// SearchByName returns movies whose name contains the query, case-insensitive,
// restricted to one engine.
func (s *Service) SearchByName(ctx context.Context, engine, query string, page, num int) ([]Movie, error) {
	page, num = normalizePage(page, num)

	pattern := "%" + strings.ToLower(strings.TrimSpace(query)) + "%"
	var rows []Movie
	err := s.db.WithContext(ctx).
		Where("LOWER(engine) = LOWER(?) AND LOWER(name) LIKE ?", engine, pattern).
		Order("date_created DESC, id ASC").
		Limit(num).
		Offset(num * (page - 1)).
		Find(&rows).Error
	if err != nil {
		s.logError(opSearchMovies, "query_failed", err, zap.String("engine", engine))
		return nil, newServiceError(opSearchMovies, "query_failed", err)
	}
	return rows, nil
}

// RateMovie creates or overwrites the score for one identity on one movie.
// The unique index on (movie, ip, user) guarantees at most one row.
func (s *Service) RateMovie(ctx context.Context, referralID, ipAddress, userID string, score int) (Rating, error) {
	if score < 0 || score > 5 {
		return Rating{}, newServiceError(opRateMovie, "invalid_score", ErrInvalidScore)
	}

	movie, err := s.GetByReferralID(ctx, referralID)
	if err != nil {
		return Rating{}, err
	}

	ipAddress, userID = s.ratingIdentity(ipAddress, userID)

	var rating Rating
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing Rating
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("movie_id = ? AND ip_address = ? AND user_id = ?", movie.ID, ipAddress, userID).
			Take(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			rating = Rating{MovieID: movie.ID, IPAddress: ipAddress, UserID: userID, Score: score}
			if createErr := tx.Create(&rating).Error; createErr != nil {
				return newServiceError(opRateMovie, "rating_create_failed", createErr)
			}
			return nil
		}
		if err != nil {
			return newServiceError(opRateMovie, "rating_select_failed", err)
		}

		existing.Score = score
		if saveErr := tx.Save(&existing).Error; saveErr != nil {
			return newServiceError(opRateMovie, "rating_save_failed", saveErr)
		}
		rating = existing
		return nil
	})
	if txErr != nil {
		s.logError(opRateMovie, "transaction_failed", txErr, zap.String("referral_id", referralID))
		return Rating{}, txErr
	}

	return rating, nil
}

// RatingFor returns the score previously recorded by the identity.
func (s *Service) RatingFor(ctx context.Context, referralID, ipAddress, userID string) (Rating, error) {
	movie, err := s.GetByReferralID(ctx, referralID)
	if err != nil {
		return Rating{}, err
	}

	ipAddress, userID = s.ratingIdentity(ipAddress, userID)

	var rating Rating
	err = s.db.WithContext(ctx).
		Where("movie_id = ? AND ip_address = ? AND user_id = ?", movie.ID, ipAddress, userID).
		Take(&rating).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Rating{}, ErrRatingNotFound
	}
	if err != nil {
		return Rating{}, newServiceError(opRateMovie, "query_failed", err)
	}
	return rating, nil
}

// MovieRatings returns every rating row recorded for the movie.
func (s *Service) MovieRatings(ctx context.Context, referralID string) ([]Rating, error) {
	movie, err := s.GetByReferralID(ctx, referralID)
	if err != nil {
		return nil, err
	}

	var rows []Rating
	if err := s.db.WithContext(ctx).
		Where("movie_id = ?", movie.ID).
		Order("id ASC").
		Find(&rows).Error; err != nil {
		return nil, newServiceError(opRateMovie, "query_failed", err)
	}
	return rows, nil
}

// AverageRating recomputes the mean score from live rating rows. A movie with
// no ratings reports {0, 0}; the sum over an empty set never divides by zero.
func (s *Service) AverageRating(ctx context.Context, referralID string) (AverageRating, error) {
	movie, err := s.GetByReferralID(ctx, referralID)
	if err != nil {
		return AverageRating{}, err
	}

	var aggregate struct {
		Total int64
		Count int64
	}
	err = s.db.WithContext(ctx).
		Model(&Rating{}).
		Select("COALESCE(SUM(score), 0) AS total, COUNT(*) AS count").
		Where("movie_id = ?", movie.ID).
		Scan(&aggregate).Error
	if err != nil {
		s.logError(opAverageRating, "query_failed", err, zap.String("referral_id", referralID))
		return AverageRating{}, newServiceError(opAverageRating, "query_failed", err)
	}

	if aggregate.Count == 0 {
		return AverageRating{AverageRatings: 0, By: 0}, nil
	}
	return AverageRating{
		AverageRatings: float64(aggregate.Total) / float64(aggregate.Count),
		By:             aggregate.Count,
	}, nil
}

// RecordDownload appends a download event for the movie. Events are never
// deduplicated.
func (s *Service) RecordDownload(ctx context.Context, referralID, ipAddress string) (Download, error) {
	movie, err := s.GetByReferralID(ctx, referralID)
	if err != nil {
		return Download{}, err
	}

	event := Download{MovieID: movie.ID, IPAddress: ipAddress, OccurredAt: s.clock().UTC()}
	if err := s.db.WithContext(ctx).Create(&event).Error; err != nil {
		s.logError(opRecordDownload, "insert_failed", err, zap.String("referral_id", referralID))
		return Download{}, newServiceError(opRecordDownload, "insert_failed", err)
	}
	return event, nil
}

// RecordReferral appends a referral event for the movie.
func (s *Service) RecordReferral(ctx context.Context, referralID, ipAddress string) (Referral, error) {
	movie, err := s.GetByReferralID(ctx, referralID)
	if err != nil {
		return Referral{}, err
	}

	event := Referral{MovieID: movie.ID, IPAddress: ipAddress, OccurredAt: s.clock().UTC()}
	if err := s.db.WithContext(ctx).Create(&event).Error; err != nil {
		s.logError(opRecordReferral, "insert_failed", err, zap.String("referral_id", referralID))
		return Referral{}, newServiceError(opRecordReferral, "insert_failed", err)
	}
	return event, nil
}

// DownloadCount returns the total number of download events for the movie.
func (s *Service) DownloadCount(ctx context.Context, referralID string) (int64, error) {
	movie, err := s.GetByReferralID(ctx, referralID)
	if err != nil {
		return 0, err
	}

	var count int64
	if err := s.db.WithContext(ctx).
		Model(&Download{}).
		Where("movie_id = ?", movie.ID).
		Count(&count).Error; err != nil {
		return 0, newServiceError(opRecordDownload, "count_failed", err)
	}
	return count, nil
}

// ReferralCount returns the total number of referral events for the movie.
func (s *Service) ReferralCount(ctx context.Context, referralID string) (int64, error) {
	movie, err := s.GetByReferralID(ctx, referralID)
	if err != nil {
		return 0, err
	}

	var count int64
	if err := s.db.WithContext(ctx).
		Model(&Referral{}).
		Where("movie_id = ?", movie.ID).
		Count(&count).Error; err != nil {
		return 0, newServiceError(opRecordReferral, "count_failed", err)
	}
	return count, nil
}

// HighestDownloads counts download events inside the trailing window, groups
// them by movie and returns the top entries by count descending. Movies with
// zero downloads in the window never appear; ties resolve by row order.
func (s *Service) HighestDownloads(ctx context.Context, filter DownloadFilter) ([]MovieDownloads, error) {
	window, err := filter.Window()
	if err != nil {
		return nil, newServiceError(opHighestDownloads, "invalid_filter", err)
	}
	since := s.clock().UTC().Add(-window)

	var buckets []struct {
		MovieID int64
		Total   int64
	}
	err = s.db.WithContext(ctx).
		Model(&Download{}).
		Select("movie_id, COUNT(*) AS total").
		Where("occurred_at > ?", since).
		Group("movie_id").
		Order("total DESC, movie_id ASC").
		Limit(filter.Top).
		Scan(&buckets).Error
	if err != nil {
		s.logError(opHighestDownloads, "query_failed", err)
		return nil, newServiceError(opHighestDownloads, "query_failed", err)
	}

	results := make([]MovieDownloads, 0, len(buckets))
	for _, bucket := range buckets {
		var movie Movie
		if err := s.db.WithContext(ctx).Take(&movie, bucket.MovieID).Error; err != nil {
			s.logError(opHighestDownloads, "movie_load_failed", err, zap.Int64("movie_id", bucket.MovieID))
			return nil, newServiceError(opHighestDownloads, "movie_load_failed", err)
		}
		results = append(results, MovieDownloads{Movie: movie, Downloads: bucket.Total})
	}
	return results, nil
}

func (s *Service) ratingIdentity(ipAddress, userID string) (string, string) {
	ipAddress = strings.TrimSpace(ipAddress)
	if s.identity == IdentityIP {
		return ipAddress, ""
	}
	return ipAddress, strings.TrimSpace(userID)
}

func normalizePage(page, num int) (int, int) {
	if page < 1 {
		page = 1
	}
	if num <= 0 || num > 100 {
		num = 20
	}
	return page, num
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.logger.Error("movie catalog error", attrs...)
}
