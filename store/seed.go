package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	sentryhelper "github.com/aposazhennikov/radio-relay/sentry_helper"
)

// errEmptySeed is returned for a seed file with no content, as seen mid-write.
var errEmptySeed = errors.New("empty seed file")

// seedFile is the on-disk shape of a stream config seed.
type seedFile struct {
	CandidateURLs []string `yaml:"candidate_urls"`
	DefaultURL    string   `yaml:"default_url"`
	FallbackURL   string   `yaml:"fallback_url"`
	OnAir         bool     `yaml:"on_air"`
}

// StreamConfigSaver persists a stream config.
type StreamConfigSaver interface {
	SaveStreamConfig(ctx context.Context, in StreamConfigInput) (*StreamConfig, error)
}

// Seeder keeps the stream config row in sync with a YAML file. The file is applied on Start and
// again whenever it is written, created or renamed into place.
type Seeder struct {
	path    string
	saver   StreamConfigSaver
	logger  *slog.Logger
	sentry  *sentryhelper.SentryHelper
	watcher *fsnotify.Watcher

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewSeeder creates a Seeder for path.
func NewSeeder(path string, saver StreamConfigSaver, logger *slog.Logger, sentry *sentryhelper.SentryHelper) *Seeder {
	if logger == nil {
		logger = slog.Default()
	}
	if sentry == nil {
		sentry = sentryhelper.NewSentryHelper(false, logger)
	}
	return &Seeder{
		path:   path,
		saver:  saver,
		logger: logger.With(slog.String("component", "seeder")),
		sentry: sentry,
	}
}

// LoadSeedFile parses a stream config seed file.
func LoadSeedFile(path string) (StreamConfigInput, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return StreamConfigInput{}, err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return StreamConfigInput{}, errEmptySeed
	}
	var f seedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return StreamConfigInput{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return StreamConfigInput{
		CandidateURLs: f.CandidateURLs,
		DefaultURL:    f.DefaultURL,
		FallbackURL:   f.FallbackURL,
		OnAir:         f.OnAir,
	}, nil
}

// Start applies the seed file once and begins watching its directory.
func (s *Seeder) Start(ctx context.Context) error {
	if err := s.apply(ctx); err != nil && !skippable(err) {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		s.sentry.CaptureError(err, "seeder", "new_watcher")
		return err
	}
	// Editors replace files by rename, so the directory is watched rather than the file.
	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		_ = watcher.Close()
		s.sentry.CaptureError(err, "seeder", "watch")
		return err
	}
	s.watcher = watcher

	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.watch(ctx)
	}()

	s.logger.Info("Watching stream config seed", slog.String("path", s.path))
	return nil
}

// Close stops watching.
func (s *Seeder) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
	var err error
	if s.watcher != nil {
		err = s.watcher.Close()
	}
	s.wg.Wait()
	return err
}

func (s *Seeder) watch(ctx context.Context) {
	name := filepath.Clean(s.path)
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != name {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			s.logger.Info("Stream config seed changed", slog.String("op", event.Op.String()))
			if err := s.apply(ctx); err != nil && !skippable(err) {
				s.sentry.CaptureError(err, "seeder", "apply")
			}
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.logger.Error("fsnotify error", slog.String("error", err.Error()))
			s.sentry.CaptureError(fmt.Errorf("fsnotify error: %w", err), "seeder", "watch")
		}
	}
}

func (s *Seeder) apply(ctx context.Context) error {
	in, err := LoadSeedFile(s.path)
	if err != nil {
		if !skippable(err) {
			s.logger.Error("Failed to read stream config seed", slog.String("path", s.path), slog.String("error", err.Error()))
		}
		return err
	}
	if _, err := s.saver.SaveStreamConfig(ctx, in); err != nil {
		s.logger.Error("Failed to apply stream config seed", slog.String("error", err.Error()))
		return err
	}
	s.logger.Info("Stream config seeded", slog.String("path", s.path), slog.Bool("on_air", in.OnAir))
	s.sentry.AddBreadcrumb("config", "Stream config seeded", map[string]interface{}{"path": s.path})
	return nil
}

func skippable(err error) bool {
	return errors.Is(err, fs.ErrNotExist) || errors.Is(err, errEmptySeed)
}
