package http

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/aposazhennikov/radio-relay/objectstore"
)

func (s *Server) setupRelayRoutes() {
	s.router.HandleFunc("/api/stream", s.streamHandler).Methods(http.MethodGet)
	s.router.HandleFunc("/api/podcast/{key:.+}", s.podcastObjectHandler).Methods(http.MethodGet)
	s.router.HandleFunc("/api/podcast/", s.podcastObjectHandler).Methods(http.MethodGet)
	s.router.HandleFunc("/api/proxy-audio", s.proxyAudioHandler).Methods(http.MethodGet)
}

// streamHandler relays the live stream named by ?url= (or the default upstream).
func (s *Server) streamHandler(w http.ResponseWriter, r *http.Request) {
	upstream := r.URL.Query().Get("url")
	if err := s.relay.RelayAudioStream(w, r, upstream); err != nil {
		s.logger.Debug("Relay finished with error", slog.String("upstream", upstream), slog.String("error", err.Error()))
	}
}

// podcastObjectHandler serves the object whose key is the rest of the path, as is.
func (s *Server) podcastObjectHandler(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	if key == "" {
		objectRequests.WithLabelValues("bad_request").Inc()
		s.writeError(w, http.StatusBadRequest, "File key is missing")
		return
	}
	s.serveObject(w, r, key)
}

// proxyAudioHandler serves the object named by ?key=, which may be a URL or an app path.
func (s *Server) proxyAudioHandler(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("key")
	if raw == "" {
		objectRequests.WithLabelValues("bad_request").Inc()
		s.writeError(w, http.StatusBadRequest, "File key is missing")
		return
	}

	key, err := objectstore.NormalizeKey(raw)
	if err != nil {
		objectRequests.WithLabelValues("bad_request").Inc()
		s.logger.Warn("Invalid object key", slog.String("key", raw))
		s.writeError(w, http.StatusBadRequest, "Invalid key format")
		return
	}
	s.serveObject(w, r, key)
}

func (s *Server) serveObject(w http.ResponseWriter, r *http.Request, key string) {
	obj, err := s.objects.Get(r.Context(), key)
	if err != nil {
		if errors.Is(err, objectstore.ErrNotFound) {
			objectRequests.WithLabelValues("not_found").Inc()
			s.writeError(w, http.StatusNotFound, "File not found")
			return
		}
		objectRequests.WithLabelValues("error").Inc()
		s.logger.Error("Error fetching object", slog.String("key", key), slog.String("error", err.Error()))
		s.sentry.CaptureErrorWithExtra(err, "http", "get_object", map[string]interface{}{"key": key})
		s.writeError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	defer obj.Body.Close()
	objectRequests.WithLabelValues("ok").Inc()

	h := w.Header()
	contentType := obj.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	h.Set("Content-Type", contentType)
	// An unknown length is streamed chunked rather than announced as zero.
	if obj.ContentLength >= 0 {
		h.Set("Content-Length", strconv.FormatInt(obj.ContentLength, 10))
	}
	h.Set("Cache-Control", "public, max-age=31536000, immutable")
	h.Set("Accept-Ranges", "bytes")
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, obj.Body); err != nil && r.Context().Err() == nil && !isClientGone(err) {
		s.logger.Error("Error streaming object", slog.String("key", key), slog.String("error", err.Error()))
	}
}

func isClientGone(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "broken pipe") || strings.Contains(msg, "connection reset by peer")
}
