package store

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/aposazhennikov/radio-relay/config"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("database/sql.(*DB).connectionOpener"))
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := Connect(config.BackendSQLite, ":memory:")
	require.NoError(t, err)
	require.NoError(t, Migrate(db))
	t.Cleanup(func() { _ = Close(db) })
	return New(db, nil)
}

func strPtr(s string) *string { return &s }

func TestConnectRejectsUnknownBackend(t *testing.T) {
	_, err := Connect("oracle", "")
	assert.ErrorIs(t, err, config.ErrUnknownDBBackend)
}

func TestStreamConfigFirstFound(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.FirstStreamConfig(ctx)
	require.ErrorIs(t, err, ErrNotFound)

	saved, err := s.SaveStreamConfig(ctx, StreamConfigInput{
		CandidateURLs: []string{"https://a/stream", "https://b/stream", "https://a/stream", ""},
		DefaultURL:    "https://a/stream",
		FallbackURL:   "https://b/stream",
		OnAir:         true,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"https://a/stream", "https://b/stream"}, saved.CandidateURLs)

	updated, err := s.SaveStreamConfig(ctx, StreamConfigInput{
		CandidateURLs: []string{"https://c/stream"},
		DefaultURL:    "https://c/stream",
	})
	require.NoError(t, err)
	assert.Equal(t, saved.ID, updated.ID)

	got, err := s.FirstStreamConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, saved.ID, got.ID)
	assert.Equal(t, []string{"https://c/stream"}, got.CandidateURLs)
	assert.Equal(t, "https://c/stream", got.DefaultURL)
	assert.Empty(t, got.FallbackURL)
	assert.False(t, got.OnAir)

	var count int64
	require.NoError(t, s.db.Model(&StreamConfig{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestStreamConfigSaveIsLogged(t *testing.T) {
	db, err := Connect(config.BackendSQLite, ":memory:")
	require.NoError(t, err)
	require.NoError(t, Migrate(db))
	t.Cleanup(func() { _ = Close(db) })

	var out bytes.Buffer
	s := New(db, slog.New(slog.NewJSONHandler(&out, nil)))

	_, err = s.SaveStreamConfig(context.Background(), StreamConfigInput{
		CandidateURLs: []string{"https://a/stream", "https://b/stream"},
		DefaultURL:    "https://a/stream",
		OnAir:         true,
	})
	require.NoError(t, err)

	var entry map[string]any
	for _, line := range bytes.Split(bytes.TrimSpace(out.Bytes()), []byte("\n")) {
		var e map[string]any
		require.NoError(t, json.Unmarshal(line, &e))
		if e["msg"] == "Stream config saved" {
			entry = e
		}
	}
	require.NotNil(t, entry)
	assert.Equal(t, float64(2), entry["candidates"])
	assert.Equal(t, "https://a/stream", entry["default_url"])
	assert.Equal(t, true, entry["on_air"])
}

func TestStreamConfigUsesOldestRow(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	older := StreamConfig{DefaultURL: "https://old", CreatedAt: time.Now().Add(-time.Hour)}
	newer := StreamConfig{DefaultURL: "https://new", CreatedAt: time.Now()}
	require.NoError(t, s.db.Create(&newer).Error)
	require.NoError(t, s.db.Create(&older).Error)

	got, err := s.FirstStreamConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, "https://old", got.DefaultURL)
}

func TestSavePlayerConfig(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.FirstPlayerConfig(ctx)
	require.ErrorIs(t, err, ErrNotFound)

	cfg, err := s.SavePlayerConfig(ctx, PlayerConfigInput{Title: strPtr("Morning"), AddCoverImage: "/covers/a.png"})
	require.NoError(t, err)
	assert.Equal(t, "Morning", cfg.Title)
	assert.Equal(t, "/covers/a.png", cfg.CoverImage)
	assert.Equal(t, []string{"/covers/a.png"}, cfg.CoverImages)

	cfg, err = s.SavePlayerConfig(ctx, PlayerConfigInput{AddCoverImage: "/covers/b.png", CoverImage: strPtr("/covers/b.png")})
	require.NoError(t, err)
	assert.Equal(t, "Morning", cfg.Title)
	assert.Equal(t, "/covers/b.png", cfg.CoverImage)
	assert.Equal(t, []string{"/covers/a.png", "/covers/b.png"}, cfg.CoverImages)

	cfg, err = s.SavePlayerConfig(ctx, PlayerConfigInput{AddCoverImage: "/covers/a.png", Title: strPtr("Evening")})
	require.NoError(t, err)
	assert.Equal(t, "Evening", cfg.Title)
	assert.Equal(t, []string{"/covers/a.png", "/covers/b.png"}, cfg.CoverImages)

	got, err := s.FirstPlayerConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, cfg.ID, got.ID)
	assert.Equal(t, cfg.CoverImages, got.CoverImages)
}

func TestSavePlayerConfigWithoutRowOrNewImage(t *testing.T) {
	s := newTestStore(t)

	cfg, err := s.SavePlayerConfig(context.Background(), PlayerConfigInput{Title: strPtr("Live"), CoverImage: strPtr("/x.png")})
	require.NoError(t, err)
	assert.Equal(t, "/x.png", cfg.CoverImage)
	assert.Equal(t, []string{"/x.png"}, cfg.CoverImages)
}

func TestRemoveCoverImage(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.RemoveCoverImage(ctx, "")
	require.ErrorIs(t, err, ErrNoURL)

	_, err = s.RemoveCoverImage(ctx, "/covers/a.png")
	require.ErrorIs(t, err, ErrNotFound)

	_, err = s.SavePlayerConfig(ctx, PlayerConfigInput{AddCoverImage: DefaultCoverImage})
	require.NoError(t, err)
	_, err = s.SavePlayerConfig(ctx, PlayerConfigInput{AddCoverImage: "/covers/a.png", CoverImage: strPtr("/covers/a.png")})
	require.NoError(t, err)

	_, err = s.RemoveCoverImage(ctx, DefaultCoverImage)
	require.ErrorIs(t, err, ErrDefaultCoverImage)

	cfg, err := s.RemoveCoverImage(ctx, "/covers/a.png")
	require.NoError(t, err)
	assert.Equal(t, DefaultCoverImage, cfg.CoverImage)
	assert.Equal(t, []string{DefaultCoverImage}, cfg.CoverImages)
}

func TestPodcastLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.CreatePodcast(ctx, NewPodcast{Title: "Ep 1", AudioKey: "podcasts/1.mp3"})
	require.ErrorIs(t, err, ErrMissingFields)

	p, err := s.CreatePodcast(ctx, NewPodcast{
		Title:         "Ep 1",
		Description:   "Pilot",
		AudioKey:      "podcasts/1.mp3",
		CoverImageKey: "covers/1.png",
		AuthorID:      "user-1",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, p.ID)
	assert.Equal(t, "podcasts/1.mp3", p.AudioURL)
	assert.Equal(t, "/api/proxy-audio?key=covers/1.png", *p.CoverImage)
	assert.Equal(t, "/api/proxy-audio?key=covers/1.png", *p.Image)
	assert.Equal(t, "user-1", p.AuthorID)
	assert.Nil(t, p.Subtitle)

	withImage, err := s.CreatePodcast(ctx, NewPodcast{
		Title:         "Ep 2",
		Description:   "Second",
		AudioKey:      "podcasts/2.mp3",
		CoverImageKey: "covers/2.png",
		Image:         "https://img.example/2.png",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://img.example/2.png", *withImage.Image)
	assert.Equal(t, "/api/proxy-audio?key=covers/2.png", *withImage.CoverImage)

	updated, err := s.UpdatePodcast(ctx, p.ID, PodcastPatch{Title: strPtr("Ep 1 (remastered)"), Subtitle: strPtr("Now louder")})
	require.NoError(t, err)
	assert.Equal(t, "Ep 1 (remastered)", updated.Title)
	assert.Equal(t, "Now louder", *updated.Subtitle)
	assert.Equal(t, "Pilot", updated.Description)

	_, err = s.UpdatePodcast(ctx, "", PodcastPatch{})
	require.ErrorIs(t, err, ErrMissingID)
	_, err = s.UpdatePodcast(ctx, "missing", PodcastPatch{Title: strPtr("x")})
	require.ErrorIs(t, err, ErrNotFound)

	require.ErrorIs(t, s.DeletePodcast(ctx, ""), ErrMissingID)
	require.NoError(t, s.DeletePodcast(ctx, p.ID))
	require.ErrorIs(t, s.DeletePodcast(ctx, p.ID), ErrNotFound)

	list, err := s.ListPodcasts(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, withImage.ID, list[0].ID)
}

func TestListPodcastsNewestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	list, err := s.ListPodcasts(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.NotNil(t, list)

	base := time.Now()
	for title, age := range map[string]time.Duration{"old": 2 * time.Hour, "newest": 0, "middle": time.Hour} {
		p := Podcast{Title: title, Description: "d", AudioURL: "a.mp3", CreatedAt: base.Add(-age)}
		require.NoError(t, s.db.Create(&p).Error)
	}

	list, err = s.ListPodcasts(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "newest", list[0].Title)
	assert.Equal(t, "middle", list[1].Title)
	assert.Equal(t, "old", list[2].Title)
}

func TestPing(t *testing.T) {
	s := newTestStore(t)
	assert.NoError(t, s.Ping(context.Background()))
}
