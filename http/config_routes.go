package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/aposazhennikov/radio-relay/auth"
	"github.com/aposazhennikov/radio-relay/logger"
	"github.com/aposazhennikov/radio-relay/store"
)

func (s *Server) setupConfigRoutes() {
	admin := s.auth.RequireAnyRole(auth.RoleDeveloper, auth.RoleTechnic)

	s.router.HandleFunc("/api/stream-config", s.getStreamConfigHandler).Methods(http.MethodGet)
	s.router.Handle("/api/stream-config", admin(http.HandlerFunc(s.saveStreamConfigHandler))).Methods(http.MethodPost)
	s.router.HandleFunc("/api/on-air", s.onAirHandler).Methods(http.MethodGet)

	s.router.HandleFunc("/api/player-config", s.getPlayerConfigHandler).Methods(http.MethodGet)
	s.router.Handle("/api/player-config", admin(http.HandlerFunc(s.savePlayerConfigHandler))).Methods(http.MethodPost)
	s.router.Handle("/api/player-config", admin(http.HandlerFunc(s.removeCoverImageHandler))).Methods(http.MethodDelete)
}

// getStreamConfigHandler returns the first stream config row, or {} when none exists.
func (s *Server) getStreamConfigHandler(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.configs.FirstStreamConfig(r.Context())
	if errors.Is(err, store.ErrNotFound) {
		s.writeJSON(w, http.StatusOK, struct{}{})
		return
	}
	if err != nil {
		s.internalError(w, err, "get_stream_config")
		return
	}
	s.writeJSON(w, http.StatusOK, cfg)
}

type streamConfigRequest struct {
	CandidateURLs []string `json:"candidateUrls"`
	// BaseURLs is the older name of CandidateURLs.
	BaseURLs    []string `json:"baseUrls"`
	DefaultURL  string   `json:"defaultUrl"`
	FallbackURL string   `json:"fallbackUrl"`
	OnAir       bool     `json:"onAir"`
}

func (s *Server) saveStreamConfigHandler(w http.ResponseWriter, r *http.Request) {
	var req streamConfigRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	candidates := req.CandidateURLs
	if candidates == nil {
		candidates = req.BaseURLs
	}

	cfg, err := s.configs.SaveStreamConfig(r.Context(), store.StreamConfigInput{
		CandidateURLs: candidates,
		DefaultURL:    req.DefaultURL,
		FallbackURL:   req.FallbackURL,
		OnAir:         req.OnAir,
	})
	if err != nil {
		s.internalError(w, err, "save_stream_config")
		return
	}

	claims, _ := auth.ClaimsFromContext(r.Context())
	logger.LogConfigEvent(s.logger, slog.LevelInfo, "Stream config updated",
		slog.String("uid", claims.UserID),
		slog.Bool("on_air", cfg.OnAir),
		slog.String("default_url", cfg.DefaultURL))
	s.writeJSON(w, http.StatusOK, cfg)
}

// onAirHandler reports the on-air flag; a missing config means off air.
func (s *Server) onAirHandler(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.configs.FirstStreamConfig(r.Context())
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		s.internalError(w, err, "get_on_air")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"onAir": cfg != nil && cfg.OnAir})
}

func (s *Server) getPlayerConfigHandler(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.configs.FirstPlayerConfig(r.Context())
	if errors.Is(err, store.ErrNotFound) {
		s.writeJSON(w, http.StatusOK, struct{}{})
		return
	}
	if err != nil {
		s.internalError(w, err, "get_player_config")
		return
	}
	s.writeJSON(w, http.StatusOK, cfg)
}

type playerConfigRequest struct {
	Title         *string `json:"title"`
	CoverImage    *string `json:"coverImage"`
	AddCoverImage string  `json:"addCoverImage"`
}

func (s *Server) savePlayerConfigHandler(w http.ResponseWriter, r *http.Request) {
	var req playerConfigRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	cfg, err := s.configs.SavePlayerConfig(r.Context(), store.PlayerConfigInput{
		Title:         req.Title,
		CoverImage:    req.CoverImage,
		AddCoverImage: req.AddCoverImage,
	})
	if err != nil {
		s.internalError(w, err, "save_player_config")
		return
	}
	logger.LogConfigEvent(s.logger, slog.LevelInfo, "Player config updated",
		slog.String("title", cfg.Title),
		slog.String("cover_image", cfg.CoverImage))
	s.writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) removeCoverImageHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL string `json:"url"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	cfg, err := s.configs.RemoveCoverImage(r.Context(), req.URL)
	switch {
	case errors.Is(err, store.ErrNoURL):
		s.writeError(w, http.StatusBadRequest, "No url provided")
	case errors.Is(err, store.ErrNotFound):
		s.writeError(w, http.StatusNotFound, "No config found")
	case errors.Is(err, store.ErrDefaultCoverImage):
		s.writeError(w, http.StatusBadRequest, "Cannot remove default image")
	case err != nil:
		s.internalError(w, err, "remove_cover_image")
	default:
		s.writeJSON(w, http.StatusOK, cfg)
	}
}
