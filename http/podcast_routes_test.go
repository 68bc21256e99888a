package http

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPodcastRoutes(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/podcast", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	newEpisode := map[string]string{
		"title":         "Ep 1",
		"description":   "Pilot",
		"audioKey":      "podcasts/ep1.mp3",
		"coverImageKey": "covers/ep1.png",
	}
	rec = env.do(t, http.MethodPost, "/api/podcast", "TECHNIC", newEpisode)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/podcast", "MUSIC", map[string]string{"title": "Ep 1"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"Missing required fields"}`, rec.Body.String())

	rec = env.do(t, http.MethodPost, "/api/podcast", "MUSIC", newEpisode)
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decode(t, rec)
	id, _ := created["id"].(string)
	require.NotEmpty(t, id)
	assert.Equal(t, "podcasts/ep1.mp3", created["audioUrl"])
	assert.Equal(t, "/api/proxy-audio?key=covers/ep1.png", created["coverImage"])
	assert.Equal(t, "/api/proxy-audio?key=covers/ep1.png", created["image"])
	assert.Equal(t, "admin-1", created["authorId"])

	rec = env.do(t, http.MethodPatch, "/api/podcast", "DEVELOPER", map[string]string{"title": "no id"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"Missing podcast id"}`, rec.Body.String())

	rec = env.do(t, http.MethodPatch, "/api/podcast", "DEVELOPER", map[string]string{"id": "missing", "title": "x"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodPatch, "/api/podcast", "DEVELOPER", map[string]string{"id": id, "title": "Ep 1 (edit)"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Ep 1 (edit)", decode(t, rec)["title"])

	rec = env.do(t, http.MethodGet, "/api/podcast", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Ep 1 (edit)")

	rec = env.do(t, http.MethodDelete, "/api/podcast", "MUSIC", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"Missing podcast id"}`, rec.Body.String())

	rec = env.do(t, http.MethodDelete, "/api/podcast", "MUSIC", map[string]string{"id": id})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true}`, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/api/podcast", "", nil)
	assert.JSONEq(t, `[]`, rec.Body.String())
}
