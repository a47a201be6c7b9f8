package users

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ocena-project/ocena/internal/auth"
	"gorm.io/gorm"
)

// ErrInvalidIdentity indicates the claims did not contain a usable subject.
var ErrInvalidIdentity = errors.New("users: invalid identity")

// User maps a validated token subject to a persisted account row. Rating rows
// reference the subject as their optional user id.
type User struct {
	Subject    string    `gorm:"column:subject;primaryKey;size:190;not null"`
	Email      string    `gorm:"column:email;size:320"`
	LastSeenAt time.Time `gorm:"column:last_seen_at;autoUpdateTime"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName exposes the table backing user accounts.
func (User) TableName() string {
	return "users"
}

// ServiceConfig describes the dependencies required for identity resolution.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
}

// Service resolves bearer-token subjects to persisted user rows.
type Service struct {
	db    *gorm.DB
	now   func() time.Time
	cache sync.Map
}

// NewService constructs the identity service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("users: database connection required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Service{db: cfg.Database, now: clock}, nil
}

// ResolveUserID returns the stable user id for the provided claims, creating
// the account row on first sight.
func (s *Service) ResolveUserID(claims auth.UserClaims) (string, error) {
	subject := strings.TrimSpace(claims.Subject)
	if subject == "" {
		return "", ErrInvalidIdentity
	}

	if _, seen := s.cache.Load(subject); seen {
		return subject, nil
	}

	var account User
	err := s.db.Where("subject = ?", subject).First(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		account = User{
			Subject:    subject,
			Email:      strings.TrimSpace(claims.UserEmail),
			LastSeenAt: s.now(),
		}
		if err := s.db.Create(&account).Error; err != nil {
			return "", err
		}
	} else if err != nil {
		return "", err
	} else {
		updates := map[string]interface{}{"last_seen_at": s.now()}
		if email := strings.TrimSpace(claims.UserEmail); email != "" && email != account.Email {
			updates["email"] = email
		}
		_ = s.db.Model(&User{}).Where("subject = ?", subject).Updates(updates).Error
	}

	s.cache.Store(subject, struct{}{})
	return subject, nil
}
