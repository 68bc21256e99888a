package objectstore

import (
	"fmt"
	"net/url"
	"strings"
)

const (
	proxyAudioPrefix = "api/proxy-audio/"
	podcastPrefix    = "api/podcast/"
)

// NormalizeKey turns whatever a client sent as a key (a full URL, a path with leading slashes, or
// one of the app's own relay paths) into a bare object key.
func NormalizeKey(raw string) (string, error) {
	key := raw

	if strings.HasPrefix(key, "http") {
		u, err := url.Parse(key)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return "", fmt.Errorf("%w: %q", ErrInvalidKey, raw)
		}
		key = strings.TrimPrefix(u.Path, "/")
	}

	key = strings.TrimLeft(key, "/")
	key = strings.TrimPrefix(key, proxyAudioPrefix)
	key = strings.TrimPrefix(key, podcastPrefix)

	if key == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, raw)
	}
	return key, nil
}
