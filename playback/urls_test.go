package playback

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRelayURL(t *testing.T) {
	assert.Equal(t, "/api/stream?url=https%3A%2F%2Fs2.example.com%2Fstream%2F18068%2F%3Bstream.mp3",
		RelayURL("https://s2.example.com/stream/18068/;stream.mp3"))
	assert.Equal(t, "/api/stream?url=", RelayURL(""))
}

func TestPodcastURL(t *testing.T) {
	assert.Equal(t, "/uploads/ep1.mp3", PodcastURL("/uploads/ep1.mp3"))
	assert.Equal(t, "/api/proxy-audio?key=podcasts%2Fep+1.mp3", PodcastURL("podcasts/ep 1.mp3"))
}

func TestJoinServer(t *testing.T) {
	assert.Equal(t, "/api/stream", joinServer("", "/api/stream"))
	assert.Equal(t, "http://localhost:8000/api/stream", joinServer("http://localhost:8000/", "/api/stream"))
}
