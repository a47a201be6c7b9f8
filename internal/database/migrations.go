package database

import (
	"errors"
	"time"

	"github.com/ocena-project/ocena/internal/movies"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const migrationBackfillReferralIDs = "2026-06-18_backfill_movie_referral_ids"

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationBackfillReferralIDs, apply: backfillMovieReferralIDs},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := migration.apply(db); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// backfillMovieReferralIDs assigns referral tokens to rows imported before
// lazy assignment existed. Rows that already carry a token are untouched.
func backfillMovieReferralIDs(db *gorm.DB) error {
	idProvider := movies.NewUUIDProvider()

	var orphans []movies.Movie
	if err := db.Where("referral_id IS NULL OR referral_id = ''").Find(&orphans).Error; err != nil {
		return err
	}

	for _, movie := range orphans {
		referralID, err := idProvider.NewID()
		if err != nil {
			return err
		}
		if err := db.Model(&movies.Movie{}).
			Where("id = ?", movie.ID).
			Update("referral_id", referralID).Error; err != nil {
			return err
		}
	}
	return nil
}
