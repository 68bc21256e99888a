package playback

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// StreamSettings are the upstream URLs the radio player works with.
type StreamSettings struct {
	CandidateURLs []string `json:"candidateUrls"`
	DefaultURL    string   `json:"defaultUrl"`
	FallbackURL   string   `json:"fallbackUrl"`
	OnAir         bool     `json:"onAir"`
}

// DefaultStreamSettings is what the player uses before, or instead of, a fetched config.
func DefaultStreamSettings() StreamSettings {
	return StreamSettings{DefaultURL: DefaultCandidateURL, FallbackURL: DefaultCandidateURL}
}

// Resolver fetches stream settings from the server. Nothing is cached.
type Resolver struct {
	server string
	client *http.Client
}

// NewResolver returns a Resolver for the server at base URL server.
func NewResolver(server string, client *http.Client) *Resolver {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Resolver{server: server, client: client}
}

// Resolve fetches /api/stream-config. Empty default and fallback URLs are replaced by
// DefaultCandidateURL. On failure the defaults are returned together with the error.
func (r *Resolver) Resolve(ctx context.Context) (StreamSettings, error) {
	settings := DefaultStreamSettings()

	var fetched StreamSettings
	if err := r.getJSON(ctx, "/api/stream-config", &fetched); err != nil {
		return settings, err
	}

	settings.CandidateURLs = fetched.CandidateURLs
	settings.OnAir = fetched.OnAir
	if fetched.DefaultURL != "" {
		settings.DefaultURL = fetched.DefaultURL
	}
	if fetched.FallbackURL != "" {
		settings.FallbackURL = fetched.FallbackURL
	}
	return settings, nil
}

// OnAir reports the station's on-air flag. Any failure reads as off air.
func (r *Resolver) OnAir(ctx context.Context) bool {
	var body struct {
		OnAir bool `json:"onAir"`
	}
	if err := r.getJSON(ctx, "/api/stream-config", &body); err != nil {
		return false
	}
	return body.OnAir
}

func (r *Resolver) getJSON(ctx context.Context, path string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, joinServer(r.server, path), nil)
	if err != nil {
		return err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch %s: status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
