package http

import (
	"errors"
	"net/http"

	"github.com/aposazhennikov/radio-relay/auth"
	"github.com/aposazhennikov/radio-relay/store"
)

func (s *Server) setupPodcastRoutes() {
	admin := s.auth.RequireAnyRole(auth.RoleDeveloper, auth.RoleMusic)

	s.router.HandleFunc("/api/podcast", s.listPodcastsHandler).Methods(http.MethodGet)
	s.router.Handle("/api/podcast", admin(http.HandlerFunc(s.createPodcastHandler))).Methods(http.MethodPost)
	s.router.Handle("/api/podcast", admin(http.HandlerFunc(s.updatePodcastHandler))).Methods(http.MethodPatch)
	s.router.Handle("/api/podcast", admin(http.HandlerFunc(s.deletePodcastHandler))).Methods(http.MethodDelete)
}

func (s *Server) listPodcastsHandler(w http.ResponseWriter, r *http.Request) {
	podcasts, err := s.podcasts.ListPodcasts(r.Context())
	if err != nil {
		s.internalError(w, err, "list_podcasts")
		return
	}
	s.writeJSON(w, http.StatusOK, podcasts)
}

type createPodcastRequest struct {
	Title         string `json:"title"`
	Subtitle      string `json:"subtitle"`
	Description   string `json:"description"`
	Date          string `json:"date"`
	Duration      string `json:"duration"`
	AudioKey      string `json:"audioKey"`
	CoverImageKey string `json:"coverImageKey"`
	Image         string `json:"image"`
}

func (s *Server) createPodcastHandler(w http.ResponseWriter, r *http.Request) {
	var req createPodcastRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	claims, _ := auth.ClaimsFromContext(r.Context())
	p, err := s.podcasts.CreatePodcast(r.Context(), store.NewPodcast{
		Title:         req.Title,
		Subtitle:      req.Subtitle,
		Description:   req.Description,
		Date:          req.Date,
		Duration:      req.Duration,
		AudioKey:      req.AudioKey,
		CoverImageKey: req.CoverImageKey,
		Image:         req.Image,
		AuthorID:      claims.UserID,
	})
	if errors.Is(err, store.ErrMissingFields) {
		s.writeError(w, http.StatusBadRequest, "Missing required fields")
		return
	}
	if err != nil {
		s.internalError(w, err, "create_podcast")
		return
	}
	s.writeJSON(w, http.StatusCreated, p)
}

type updatePodcastRequest struct {
	ID string `json:"id"`
	store.PodcastPatch
}

func (s *Server) updatePodcastHandler(w http.ResponseWriter, r *http.Request) {
	var req updatePodcastRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	p, err := s.podcasts.UpdatePodcast(r.Context(), req.ID, req.PodcastPatch)
	if err != nil {
		s.podcastError(w, err, "update_podcast")
		return
	}
	s.writeJSON(w, http.StatusOK, p)
}

func (s *Server) deletePodcastHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID string `json:"id"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := s.podcasts.DeletePodcast(r.Context(), req.ID); err != nil {
		s.podcastError(w, err, "delete_podcast")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) podcastError(w http.ResponseWriter, err error, operation string) {
	switch {
	case errors.Is(err, store.ErrMissingID):
		s.writeError(w, http.StatusBadRequest, "Missing podcast id")
	case errors.Is(err, store.ErrNotFound):
		s.writeError(w, http.StatusNotFound, "Podcast not found")
	default:
		s.internalError(w, err, operation)
	}
}
