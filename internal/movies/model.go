package movies

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrMovieNotFound indicates that no movie matches the requested key or referral id.
	ErrMovieNotFound = errors.New("movies: movie not found")
	// ErrRatingNotFound indicates that the identity has not rated the movie.
	ErrRatingNotFound = errors.New("movies: rating not found")
	// ErrInvalidMovieKey indicates an empty name or engine.
	ErrInvalidMovieKey = errors.New("movies: name and engine are required")
	// ErrInvalidScore indicates a rating score outside the accepted range.
	ErrInvalidScore = errors.New("movies: score must be between 0 and 5")
	// ErrInvalidFilter indicates an unusable download filter.
	ErrInvalidFilter = errors.New("movies: invalid download filter")
)

// LinkMap stores a label-to-URL mapping (episode downloads, subtitles) as a
// JSON text column.
type LinkMap map[string]string

// Value serializes the map for storage.
func (m LinkMap) Value() (driver.Value, error) {
	if len(m) == 0 {
		return nil, nil
	}
	encoded, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(encoded), nil
}

// Scan restores the map from its stored JSON text.
func (m *LinkMap) Scan(value interface{}) error {
	if value == nil {
		*m = nil
		return nil
	}
	switch raw := value.(type) {
	case string:
		return json.Unmarshal([]byte(raw), m)
	case []byte:
		return json.Unmarshal(raw, m)
	default:
		return fmt.Errorf("movies: cannot scan %T into LinkMap", value)
	}
}

// Movie is the canonical persisted record for a scraped movie. A (name, engine)
// pair maps to at most one row; the unique index backs upsert convergence.
type Movie struct {
	ID             int64     `gorm:"column:id;primaryKey" json:"id"`
	Name           string    `gorm:"column:name;size:512;not null;uniqueIndex:idx_movies_name_engine,priority:1" json:"name"`
	Engine         string    `gorm:"column:engine;size:64;not null;uniqueIndex:idx_movies_name_engine,priority:2" json:"engine"`
	Description    string    `gorm:"column:description;type:text" json:"description,omitempty"`
	Size           string    `gorm:"column:size;size:64" json:"size,omitempty"`
	Year           string    `gorm:"column:year;size:16" json:"year,omitempty"`
	DownloadLink   string    `gorm:"column:download_link;size:2048" json:"download_link,omitempty"`
	ReferralID     string    `gorm:"column:referral_id;size:64;index" json:"referral_id,omitempty"`
	CoverPhotoLink string    `gorm:"column:cover_photo_link;size:2048" json:"cover_photo_link,omitempty"`
	Quality        string    `gorm:"column:quality;size:64" json:"quality,omitempty"`
	IsSeries       bool      `gorm:"column:is_series" json:"is_series"`
	SDownloadLink  LinkMap   `gorm:"column:s_download_link;type:text" json:"s_download_link,omitempty"`
	Category       string    `gorm:"column:category;size:128" json:"category,omitempty"`
	Cast           string    `gorm:"column:cast_members;type:text" json:"cast,omitempty"`
	UploadDate     string    `gorm:"column:upload_date;size:64" json:"upload_date,omitempty"`
	SubtitleLink   string    `gorm:"column:subtitle_link;size:2048" json:"subtitle_link,omitempty"`
	SubtitleLinks  LinkMap   `gorm:"column:subtitle_links;type:text" json:"subtitle_links,omitempty"`
	IMDBLink       string    `gorm:"column:imdb_link;size:2048" json:"imdb_link,omitempty"`
	Tags           string    `gorm:"column:tags;size:512" json:"tags,omitempty"`
	DateCreated    time.Time `gorm:"column:date_created;index" json:"date_created"`
}

// TableName provides the explicit table binding for GORM.
func (Movie) TableName() string {
	return "movies"
}

// Rating records one score per identity per movie. The user id stays empty for
// anonymous raters; the composite unique index covers both identity modes.
type Rating struct {
	ID        int64  `gorm:"column:id;primaryKey" json:"id"`
	MovieID   int64  `gorm:"column:movie_id;not null;uniqueIndex:idx_ratings_identity,priority:1" json:"movie_id"`
	IPAddress string `gorm:"column:ip_address;size:64;not null;uniqueIndex:idx_ratings_identity,priority:2" json:"ip_address"`
	UserID    string `gorm:"column:user_id;size:190;not null;default:'';uniqueIndex:idx_ratings_identity,priority:3" json:"user_id,omitempty"`
	Score     int    `gorm:"column:score;not null" json:"score"`
}

// TableName provides the explicit table binding for GORM.
func (Rating) TableName() string {
	return "ratings"
}

// Download is an append-only download event. Rows are never updated or deleted.
type Download struct {
	ID         int64     `gorm:"column:id;primaryKey" json:"id"`
	MovieID    int64     `gorm:"column:movie_id;not null;index" json:"movie_id"`
	IPAddress  string    `gorm:"column:ip_address;size:64;not null" json:"ip_address"`
	OccurredAt time.Time `gorm:"column:occurred_at;not null;index" json:"datetime"`
}

// TableName provides the explicit table binding for GORM.
func (Download) TableName() string {
	return "downloads"
}

// Referral is an append-only referral event. Rows are never updated or deleted.
type Referral struct {
	ID         int64     `gorm:"column:id;primaryKey" json:"id"`
	MovieID    int64     `gorm:"column:movie_id;not null;index" json:"movie_id"`
	IPAddress  string    `gorm:"column:ip_address;size:64;not null" json:"ip_address"`
	OccurredAt time.Time `gorm:"column:occurred_at;not null" json:"datetime"`
}

// TableName provides the explicit table binding for GORM.
func (Referral) TableName() string {
	return "referrals"
}

// AverageRating reports a recomputed aggregate; an unrated movie yields {0, 0}.
type AverageRating struct {
	AverageRatings float64 `json:"average_ratings"`
	By             int64   `json:"by"`
}

// MovieDownloads pairs a movie with its download count inside a filter window.
type MovieDownloads struct {
	Movie
	Downloads int64 `json:"downloads"`
}

// Filter units accepted by HighestDownloads.
const (
	FilterByHours = "hours"
	FilterByDays  = "days"
	FilterByWeeks = "weeks"
)

// DownloadFilter selects the top movies by download count in a trailing window.
type DownloadFilter struct {
	FilterBy  string `json:"filter_by"`
	FilterNum int    `json:"filter_num"`
	Top       int    `json:"top"`
}

// Window resolves the trailing duration covered by the filter.
func (f DownloadFilter) Window() (time.Duration, error) {
	if f.FilterNum <= 0 || f.Top <= 0 {
		return 0, fmt.Errorf("%w: filter_num and top must be positive", ErrInvalidFilter)
	}
	switch f.FilterBy {
	case FilterByHours:
		return time.Duration(f.FilterNum) * time.Hour, nil
	case FilterByDays:
		return time.Duration(f.FilterNum) * 24 * time.Hour, nil
	case FilterByWeeks:
		return time.Duration(f.FilterNum) * 7 * 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("%w: unknown unit %q", ErrInvalidFilter, f.FilterBy)
	}
}
