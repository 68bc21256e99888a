package http

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamConfigRoutes(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/stream-config", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{}`, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/api/on-air", "", nil)
	assert.JSONEq(t, `{"onAir":false}`, rec.Body.String())

	body := map[string]interface{}{
		"candidateUrls": []string{"https://a/stream", "https://b/stream"},
		"defaultUrl":    "https://a/stream",
		"fallbackUrl":   "https://b/stream",
		"onAir":         true,
	}
	rec = env.do(t, http.MethodPost, "/api/stream-config", "", body)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"Unauthorized"}`, rec.Body.String())

	rec = env.do(t, http.MethodPost, "/api/stream-config", "MUSIC", body)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/stream-config", "MUSIC-TECHNIC", body)
	require.Equal(t, http.StatusOK, rec.Code)

	got := decode(t, env.do(t, http.MethodGet, "/api/stream-config", "", nil))
	assert.Equal(t, []interface{}{"https://a/stream", "https://b/stream"}, got["candidateUrls"])
	assert.Equal(t, "https://a/stream", got["defaultUrl"])
	assert.Equal(t, "https://b/stream", got["fallbackUrl"])
	assert.Equal(t, true, got["onAir"])

	rec = env.do(t, http.MethodGet, "/api/on-air", "", nil)
	assert.JSONEq(t, `{"onAir":true}`, rec.Body.String())
}

func TestStreamConfigAcceptsBaseURLs(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/stream-config", "DEVELOPER", map[string]interface{}{
		"baseUrls":   []string{"https://legacy/stream"},
		"defaultUrl": "https://legacy/stream",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []interface{}{"https://legacy/stream"}, decode(t, rec)["candidateUrls"])

	rec = env.do(t, http.MethodPost, "/api/stream-config", "DEVELOPER", "not an object")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPlayerConfigRoutes(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/player-config", "", nil)
	assert.JSONEq(t, `{}`, rec.Body.String())

	rec = env.do(t, http.MethodDelete, "/api/player-config", "TECHNIC", map[string]string{"url": "/x.png"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"No config found"}`, rec.Body.String())

	rec = env.do(t, http.MethodPost, "/api/player-config", "", map[string]string{"title": "x"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/player-config", "TECHNIC", map[string]string{
		"title":         "Night Shift",
		"coverImage":    "/covers/night.png",
		"addCoverImage": "/covers/night.png",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode(t, rec)
	assert.Equal(t, "Night Shift", got["title"])
	assert.Equal(t, []interface{}{"/covers/night.png"}, got["coverImages"])

	rec = env.do(t, http.MethodDelete, "/api/player-config", "TECHNIC", map[string]string{"url": ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"No url provided"}`, rec.Body.String())

	rec = env.do(t, http.MethodDelete, "/api/player-config", "TECHNIC", map[string]string{"url": "/8eh.png"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"Cannot remove default image"}`, rec.Body.String())

	rec = env.do(t, http.MethodDelete, "/api/player-config", "DEVELOPER", map[string]string{"url": "/covers/night.png"})
	require.Equal(t, http.StatusOK, rec.Code)
	got = decode(t, rec)
	assert.Equal(t, "/8eh.png", got["coverImage"])
	assert.Equal(t, []interface{}{}, got["coverImages"])
}
