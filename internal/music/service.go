package music

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var errMissingDatabase = errors.New("music: database handle is required")

// ServiceConfig bundles the dependencies of the music catalog service.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Service owns create-or-merge reconciliation and search for scraped tracks.
type Service struct {
	db     *gorm.DB
	clock  func() time.Time
	logger *zap.Logger
}

// NewService constructs the music service with validated configuration.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{db: cfg.Database, clock: clock, logger: logger}, nil
}

// UpsertTrack inserts the candidate or merges it into the existing row sharing
// its (source, download_link) key, under one transaction with a row lock.
func (s *Service) UpsertTrack(ctx context.Context, candidate Track) (Track, error) {
	if strings.TrimSpace(candidate.Source) == "" || strings.TrimSpace(candidate.DownloadLink) == "" {
		return Track{}, ErrInvalidTrackKey
	}

	var canonical Track
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing Track
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("source = ? AND download_link = ?", candidate.Source, candidate.DownloadLink).
			Take(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			record := candidate
			record.ID = 0
			if err := tx.Create(&record).Error; err != nil {
				return err
			}
			canonical = record
			return nil
		}
		if err != nil {
			return err
		}

		merged := mergeTrack(existing, candidate)
		if err := tx.Save(&merged).Error; err != nil {
			return err
		}
		canonical = merged
		return nil
	})
	if txErr != nil {
		s.logger.Error("music upsert failed",
			zap.String("source", candidate.Source),
			zap.String("title", candidate.Title),
			zap.Error(txErr))
		return Track{}, txErr
	}

	return canonical, nil
}

// SearchBySource returns tracks whose title contains the query,
// case-insensitive, restricted to one source.
func (s *Service) SearchBySource(ctx context.Context, source, query string) ([]Track, error) {
	pattern := "%" + strings.ToLower(strings.TrimSpace(query)) + "%"

	var rows []Track
	err := s.db.WithContext(ctx).
		Where("LOWER(source) = LOWER(?) AND LOWER(title) LIKE ?", source, pattern).
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		s.logger.Error("music search failed", zap.String("source", source), zap.Error(err))
		return nil, err
	}
	return rows, nil
}

func mergeTrack(existing, candidate Track) Track {
	merged := existing
	merged.Artiste = pick(candidate.Artiste, existing.Artiste)
	merged.Title = pick(candidate.Title, existing.Title)
	merged.Collection = pick(candidate.Collection, existing.Collection)
	merged.PictureLink = pick(candidate.PictureLink, existing.PictureLink)
	merged.Size = pick(candidate.Size, existing.Size)
	merged.Duration = pick(candidate.Duration, existing.Duration)
	if !candidate.DateCreated.IsZero() {
		merged.DateCreated = candidate.DateCreated
	}
	return merged
}

func pick(incoming, current string) string {
	if incoming != "" {
		return incoming
	}
	return current
}
