package store

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DefaultCoverImage is the player artwork that always exists and cannot be removed.
const DefaultCoverImage = "/8eh.png"

// StreamConfig is the admin-managed set of upstream stream URLs. Only the first row is used.
type StreamConfig struct {
	ID            string    `gorm:"type:uuid;primaryKey" json:"id"`
	CandidateURLs []string  `gorm:"serializer:json" json:"candidateUrls"`
	DefaultURL    string    `json:"defaultUrl"`
	FallbackURL   string    `json:"fallbackUrl"`
	OnAir         bool      `json:"onAir"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// PlayerConfig holds the radio player's title and artwork. Only the first row is used.
type PlayerConfig struct {
	ID          string    `gorm:"type:uuid;primaryKey" json:"id"`
	Title       string    `json:"title"`
	CoverImage  string    `json:"coverImage"`
	CoverImages []string  `gorm:"serializer:json" json:"coverImages"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Podcast is one published episode. AudioURL holds the object key of the audio file.
type Podcast struct {
	ID          string    `gorm:"type:uuid;primaryKey" json:"id"`
	Title       string    `gorm:"not null" json:"title"`
	Subtitle    *string   `json:"subtitle"`
	Description string    `gorm:"type:text;not null" json:"description"`
	Date        *string   `json:"date"`
	Duration    *string   `json:"duration"`
	AudioURL    string    `gorm:"not null" json:"audioUrl"`
	Image       *string   `json:"image"`
	CoverImage  *string   `json:"coverImage"`
	AuthorID    string    `gorm:"index" json:"authorId"`
	CreatedAt   time.Time `gorm:"index" json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func (c *StreamConfig) BeforeCreate(*gorm.DB) error { assignID(&c.ID); return nil }
func (c *PlayerConfig) BeforeCreate(*gorm.DB) error { assignID(&c.ID); return nil }
func (p *Podcast) BeforeCreate(*gorm.DB) error      { assignID(&p.ID); return nil }

func assignID(id *string) {
	if *id == "" {
		*id = uuid.NewString()
	}
}
