package store

import (
	"context"
	"errors"
	"slices"

	"gorm.io/gorm"
)

var (
	// ErrNoURL is returned when a cover image removal names no image.
	ErrNoURL = errors.New("no url provided")
	// ErrDefaultCoverImage is returned when asked to remove DefaultCoverImage.
	ErrDefaultCoverImage = errors.New("cannot remove default image")
)

// PlayerConfigInput updates the player config. Nil fields keep their stored value.
type PlayerConfigInput struct {
	Title         *string
	CoverImage    *string
	AddCoverImage string
}

// FirstPlayerConfig returns the oldest player config row, or ErrNotFound.
func (s *Store) FirstPlayerConfig(ctx context.Context) (*PlayerConfig, error) {
	var cfg PlayerConfig
	if err := s.db.WithContext(ctx).Order("created_at ASC").First(&cfg).Error; err != nil {
		return nil, notFound(err)
	}
	return &cfg, nil
}

// SavePlayerConfig registers AddCoverImage in the image list when it is new, then applies the title
// and active cover. A missing row is created.
func (s *Store) SavePlayerConfig(ctx context.Context, in PlayerConfigInput) (*PlayerConfig, error) {
	var cfg PlayerConfig

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		findErr := tx.Order("created_at ASC").First(&cfg).Error
		if findErr != nil && !errors.Is(findErr, gorm.ErrRecordNotFound) {
			return findErr
		}
		exists := findErr == nil

		if in.AddCoverImage != "" {
			if !exists {
				cfg = PlayerConfig{
					Title:       deref(in.Title),
					CoverImage:  in.AddCoverImage,
					CoverImages: []string{in.AddCoverImage},
				}
				if err := tx.Create(&cfg).Error; err != nil {
					return err
				}
				exists = true
			} else if !slices.Contains(cfg.CoverImages, in.AddCoverImage) {
				cfg.CoverImages = append(cfg.CoverImages, in.AddCoverImage)
			}
		}

		if in.Title != nil {
			cfg.Title = *in.Title
		}
		if in.CoverImage != nil {
			cfg.CoverImage = *in.CoverImage
		}

		if !exists {
			if cfg.CoverImage != "" {
				cfg.CoverImages = []string{cfg.CoverImage}
			}
			return tx.Create(&cfg).Error
		}
		return tx.Save(&cfg).Error
	})
	if err != nil {
		return nil, err
	}
	if cfg.CoverImages == nil {
		cfg.CoverImages = []string{}
	}
	return &cfg, nil
}

// RemoveCoverImage drops url from the image list. Removing the active cover switches the player
// back to DefaultCoverImage, which itself can never be removed.
func (s *Store) RemoveCoverImage(ctx context.Context, url string) (*PlayerConfig, error) {
	if url == "" {
		return nil, ErrNoURL
	}

	var cfg PlayerConfig
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Order("created_at ASC").First(&cfg).Error; err != nil {
			return notFound(err)
		}
		if url == DefaultCoverImage {
			return ErrDefaultCoverImage
		}

		cfg.CoverImages = slices.DeleteFunc(cfg.CoverImages, func(img string) bool { return img == url })
		if cfg.CoverImage == url {
			cfg.CoverImage = DefaultCoverImage
		}
		return tx.Save(&cfg).Error
	})
	if err != nil {
		return nil, err
	}
	if cfg.CoverImages == nil {
		cfg.CoverImages = []string{}
	}
	return &cfg, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
