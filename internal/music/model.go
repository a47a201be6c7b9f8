package music

import (
	"errors"
	"time"
)

var (
	// ErrInvalidTrackKey indicates an empty source or download link.
	ErrInvalidTrackKey = errors.New("music: source and download link are required")
)

// Track is the canonical persisted record for a scraped song. A
// (source, download_link) pair maps to at most one row.
type Track struct {
	ID           int64     `gorm:"column:id;primaryKey" json:"id"`
	Artiste      string    `gorm:"column:artiste;size:512" json:"artiste,omitempty"`
	Title        string    `gorm:"column:title;size:512" json:"title"`
	Collection   string    `gorm:"column:collection;size:512" json:"collection,omitempty"`
	DownloadLink string    `gorm:"column:download_link;size:2048;not null;uniqueIndex:idx_music_source_link,priority:2" json:"download_link"`
	PictureLink  string    `gorm:"column:picture_link;size:2048" json:"picture_link,omitempty"`
	Size         string    `gorm:"column:size;size:64" json:"size,omitempty"`
	Duration     string    `gorm:"column:duration;size:64" json:"duration,omitempty"`
	Source       string    `gorm:"column:source;size:64;not null;uniqueIndex:idx_music_source_link,priority:1" json:"source"`
	DateCreated  time.Time `gorm:"column:date_created" json:"date_created"`
}

// TableName provides the explicit table binding for GORM.
func (Track) TableName() string {
	return "music"
}
