package store

import (
	"context"
	"errors"
	"log/slog"

	"gorm.io/gorm"
)

// StreamConfigInput is the admin-submitted replacement for the stream config row.
type StreamConfigInput struct {
	CandidateURLs []string
	DefaultURL    string
	FallbackURL   string
	OnAir         bool
}

// FirstStreamConfig returns the oldest stream config row, or ErrNotFound when there is none.
// It is read from the database on every call.
func (s *Store) FirstStreamConfig(ctx context.Context) (*StreamConfig, error) {
	var cfg StreamConfig
	if err := s.db.WithContext(ctx).Order("created_at ASC").First(&cfg).Error; err != nil {
		return nil, notFound(err)
	}
	return &cfg, nil
}

// SaveStreamConfig overwrites the first stream config row, creating it if needed.
func (s *Store) SaveStreamConfig(ctx context.Context, in StreamConfigInput) (*StreamConfig, error) {
	var saved StreamConfig

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		findErr := tx.Order("created_at ASC").First(&saved).Error
		if findErr != nil && !errors.Is(findErr, gorm.ErrRecordNotFound) {
			return findErr
		}

		saved.CandidateURLs = uniqueURLs(in.CandidateURLs)
		saved.DefaultURL = in.DefaultURL
		saved.FallbackURL = in.FallbackURL
		saved.OnAir = in.OnAir

		if findErr != nil {
			return tx.Create(&saved).Error
		}
		return tx.Save(&saved).Error
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Stream config saved",
		slog.Int("candidates", len(saved.CandidateURLs)),
		slog.String("default_url", saved.DefaultURL),
		slog.Bool("on_air", saved.OnAir))
	return &saved, nil
}

// uniqueURLs drops blanks and repeats, keeping the first occurrence of each URL.
func uniqueURLs(urls []string) []string {
	out := make([]string, 0, len(urls))
	seen := make(map[string]struct{}, len(urls))
	for _, u := range urls {
		if u == "" {
			continue
		}
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}
