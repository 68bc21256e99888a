package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

var (
	// ErrMissingFields is returned when a new podcast lacks a title, description or audio key.
	ErrMissingFields = errors.New("missing required fields")
	// ErrMissingID is returned when an update or delete names no podcast.
	ErrMissingID = errors.New("missing podcast id")
)

// Podcasts is the podcast catalog.
type Podcasts interface {
	ListPodcasts(ctx context.Context) ([]Podcast, error)
	CreatePodcast(ctx context.Context, in NewPodcast) (*Podcast, error)
	UpdatePodcast(ctx context.Context, id string, patch PodcastPatch) (*Podcast, error)
	DeletePodcast(ctx context.Context, id string) error
}

// NewPodcast is an episode submitted by an admin. AudioKey and CoverImageKey are object keys.
type NewPodcast struct {
	Title         string
	Subtitle      string
	Description   string
	Date          string
	Duration      string
	AudioKey      string
	CoverImageKey string
	Image         string
	AuthorID      string
}

// PodcastPatch lists the fields to change. Nil fields are left alone.
type PodcastPatch struct {
	Title       *string `json:"title"`
	Subtitle    *string `json:"subtitle"`
	Description *string `json:"description"`
	Date        *string `json:"date"`
	Duration    *string `json:"duration"`
	AudioURL    *string `json:"audioUrl"`
	Image       *string `json:"image"`
	CoverImage  *string `json:"coverImage"`
}

func (p PodcastPatch) columns() map[string]any {
	cols := map[string]any{}
	set := func(name string, v *string) {
		if v != nil {
			cols[name] = *v
		}
	}
	set("title", p.Title)
	set("subtitle", p.Subtitle)
	set("description", p.Description)
	set("date", p.Date)
	set("duration", p.Duration)
	set("audio_url", p.AudioURL)
	set("image", p.Image)
	set("cover_image", p.CoverImage)
	return cols
}

// ProxyURL is the path under which the object stored at key is served to browsers.
func ProxyURL(key string) string {
	return "/api/proxy-audio?key=" + key
}

// ListPodcasts returns every podcast, newest first.
func (s *Store) ListPodcasts(ctx context.Context) ([]Podcast, error) {
	podcasts := []Podcast{}
	if err := s.db.WithContext(ctx).Order("created_at DESC").Find(&podcasts).Error; err != nil {
		return nil, err
	}
	return podcasts, nil
}

// CreatePodcast stores a new episode. The cover key is published through the proxy route; an
// explicit Image wins over the cover for the image field.
func (s *Store) CreatePodcast(ctx context.Context, in NewPodcast) (*Podcast, error) {
	if in.Title == "" || in.Description == "" || in.AudioKey == "" {
		return nil, ErrMissingFields
	}

	p := Podcast{
		Title:       in.Title,
		Subtitle:    optional(in.Subtitle),
		Description: in.Description,
		Date:        optional(in.Date),
		Duration:    optional(in.Duration),
		AudioURL:    in.AudioKey,
		Image:       optional(in.Image),
		AuthorID:    in.AuthorID,
	}
	if in.CoverImageKey != "" {
		cover := ProxyURL(in.CoverImageKey)
		p.CoverImage = &cover
		if p.Image == nil {
			p.Image = &cover
		}
	}

	if err := s.db.WithContext(ctx).Create(&p).Error; err != nil {
		return nil, fmt.Errorf("create podcast: %w", err)
	}
	s.logger.Info("Podcast created",
		slog.String("id", p.ID),
		slog.String("title", p.Title),
		slog.String("author_id", p.AuthorID))
	return &p, nil
}

// UpdatePodcast applies patch to the podcast with the given id.
func (s *Store) UpdatePodcast(ctx context.Context, id string, patch PodcastPatch) (*Podcast, error) {
	if id == "" {
		return nil, ErrMissingID
	}

	db := s.db.WithContext(ctx)
	var p Podcast
	if err := db.First(&p, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}

	if cols := patch.columns(); len(cols) > 0 {
		if err := db.Model(&p).Updates(cols).Error; err != nil {
			return nil, fmt.Errorf("update podcast %s: %w", id, err)
		}
		if err := db.First(&p, "id = ?", id).Error; err != nil {
			return nil, notFound(err)
		}
	}
	return &p, nil
}

// DeletePodcast removes the podcast with the given id.
func (s *Store) DeletePodcast(ctx context.Context, id string) error {
	if id == "" {
		return ErrMissingID
	}

	res := s.db.WithContext(ctx).Delete(&Podcast{}, "id = ?", id)
	if res.Error != nil {
		return fmt.Errorf("delete podcast %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	s.logger.Info("Podcast deleted", slog.String("id", id))
	return nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
