package playback

import (
	"net/url"
	"strings"
)

// DefaultCandidateURL is used when the stream config leaves the default or fallback URL empty.
const DefaultCandidateURL = "https://s3.free-shoutcast.com/stream/18032"

// RelayURL returns the relay path that streams upstream through the server.
func RelayURL(upstream string) string {
	return "/api/stream?url=" + url.QueryEscape(upstream)
}

// PodcastURL returns the path a podcast's audio is served from. App-relative paths are used as is;
// anything else is treated as an object key.
func PodcastURL(audioURL string) string {
	if strings.HasPrefix(audioURL, "/") {
		return audioURL
	}
	return "/api/proxy-audio?key=" + url.QueryEscape(audioURL)
}

// joinServer prefixes an app-relative path with the server base URL.
func joinServer(server, path string) string {
	if server == "" {
		return path
	}
	return strings.TrimRight(server, "/") + path
}
