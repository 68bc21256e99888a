package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/aposazhennikov/radio-relay/cache"
)

const (
	podcastListKey = "podcasts:all"
	podcastListTTL = time.Minute
)

var podcastCacheRequests = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "radio_podcast_cache_requests_total",
		Help: "Podcast list lookups served from or missed in the cache",
	},
	[]string{"result"},
)

func init() {
	prometheus.MustRegister(podcastCacheRequests)
}

// CachedPodcasts serves the podcast list from Redis and drops the cached copy on every write.
// Cache failures are logged and fall through to the underlying catalog.
type CachedPodcasts struct {
	next   Podcasts
	cache  *cache.Redis
	logger *slog.Logger
}

// NewCachedPodcasts decorates next with a Redis cache.
func NewCachedPodcasts(next Podcasts, c *cache.Redis, logger *slog.Logger) *CachedPodcasts {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedPodcasts{next: next, cache: c, logger: logger.With(slog.String("component", "podcast_cache"))}
}

// ListPodcasts returns the cached list when present.
func (c *CachedPodcasts) ListPodcasts(ctx context.Context) ([]Podcast, error) {
	cached, found, err := cache.Get[[]Podcast](ctx, c.cache, podcastListKey)
	if err != nil {
		c.logger.Warn("Podcast cache read failed", slog.String("error", err.Error()))
	}
	if found {
		podcastCacheRequests.WithLabelValues("hit").Inc()
		return cached, nil
	}
	podcastCacheRequests.WithLabelValues("miss").Inc()

	podcasts, err := c.next.ListPodcasts(ctx)
	if err != nil {
		return nil, err
	}
	if err := c.cache.Set(ctx, podcastListKey, podcasts, podcastListTTL); err != nil {
		c.logger.Warn("Podcast cache write failed", slog.String("error", err.Error()))
	}
	return podcasts, nil
}

func (c *CachedPodcasts) CreatePodcast(ctx context.Context, in NewPodcast) (*Podcast, error) {
	p, err := c.next.CreatePodcast(ctx, in)
	if err == nil {
		c.invalidate(ctx)
	}
	return p, err
}

func (c *CachedPodcasts) UpdatePodcast(ctx context.Context, id string, patch PodcastPatch) (*Podcast, error) {
	p, err := c.next.UpdatePodcast(ctx, id, patch)
	if err == nil {
		c.invalidate(ctx)
	}
	return p, err
}

func (c *CachedPodcasts) DeletePodcast(ctx context.Context, id string) error {
	err := c.next.DeletePodcast(ctx, id)
	if err == nil {
		c.invalidate(ctx)
	}
	return err
}

func (c *CachedPodcasts) invalidate(ctx context.Context) {
	if err := c.cache.Del(ctx, podcastListKey); err != nil {
		c.logger.Warn("Podcast cache invalidation failed", slog.String("error", err.Error()))
	}
}
