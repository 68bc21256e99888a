// Package http exposes the relay, object and admin endpoints.
package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aposazhennikov/radio-relay/auth"
	"github.com/aposazhennikov/radio-relay/logger"
	"github.com/aposazhennikov/radio-relay/objectstore"
	sentryhelper "github.com/aposazhennikov/radio-relay/sentry_helper"
	"github.com/aposazhennikov/radio-relay/store"
)

const readinessTimeout = 2 * time.Second

var objectRequests = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "radio_object_requests_total",
		Help: "Object relay requests by outcome",
	},
	[]string{"result"},
)

func init() {
	prometheus.MustRegister(objectRequests)
}

// StreamRelay pipes an upstream live stream to a listener.
type StreamRelay interface {
	RelayAudioStream(w http.ResponseWriter, r *http.Request, upstreamURL string) error
}

// ConfigStore reads and writes the single-row stream and player configs.
type ConfigStore interface {
	FirstStreamConfig(ctx context.Context) (*store.StreamConfig, error)
	SaveStreamConfig(ctx context.Context, in store.StreamConfigInput) (*store.StreamConfig, error)
	FirstPlayerConfig(ctx context.Context) (*store.PlayerConfig, error)
	SavePlayerConfig(ctx context.Context, in store.PlayerConfigInput) (*store.PlayerConfig, error)
	RemoveCoverImage(ctx context.Context, url string) (*store.PlayerConfig, error)
}

// ReadinessCheck is one dependency probed by /readyz.
type ReadinessCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// Config wires the server to its collaborators.
type Config struct {
	Relay    StreamRelay
	Objects  objectstore.Store
	Configs  ConfigStore
	Podcasts store.Podcasts
	Auth     *auth.Middleware
	Checks   []ReadinessCheck
	Logger   *slog.Logger
	Sentry   *sentryhelper.SentryHelper
}

// Server routes HTTP requests.
type Server struct {
	router   *mux.Router
	relay    StreamRelay
	objects  objectstore.Store
	configs  ConfigStore
	podcasts store.Podcasts
	auth     *auth.Middleware
	checks   []ReadinessCheck
	logger   *slog.Logger
	sentry   *sentryhelper.SentryHelper
}

// NewServer creates the server and registers its routes.
func NewServer(cfg Config) *Server {
	if cfg.Sentry == nil {
		cfg.Sentry = sentryhelper.NewSentryHelper(false, cfg.Logger)
	}
	if cfg.Auth == nil {
		cfg.Auth = auth.NewMiddleware(nil, cfg.Logger)
	}

	s := &Server{
		router:   mux.NewRouter(),
		relay:    cfg.Relay,
		objects:  cfg.Objects,
		configs:  cfg.Configs,
		podcasts: cfg.Podcasts,
		auth:     cfg.Auth,
		checks:   cfg.Checks,
		logger:   logger.WithComponent(cfg.Logger, "http"),
		sentry:   cfg.Sentry,
	}
	s.setupRoutes()
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.sentry.Middleware(s.router)
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/healthz", s.healthzHandler).Methods(http.MethodGet)
	s.router.HandleFunc("/readyz", s.readyzHandler).Methods(http.MethodGet)
	s.router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	s.setupRelayRoutes()
	s.setupConfigRoutes()
	s.setupPodcastRoutes()

	s.router.NotFoundHandler = http.HandlerFunc(s.notFoundHandler)
	s.router.MethodNotAllowedHandler = http.HandlerFunc(s.methodNotAllowedHandler)

	s.logger.Info("HTTP routes configured")
}

func (s *Server) healthzHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// readyzHandler reports 503 when any dependency fails its probe.
func (s *Server) readyzHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")

	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	status := http.StatusOK
	results := make(map[string]string, len(s.checks))
	for _, c := range s.checks {
		if err := c.Check(ctx); err != nil {
			s.logger.Warn("Readiness check failed", slog.String("check", c.Name), slog.String("error", err.Error()))
			results[c.Name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		results[c.Name] = "ok"
	}

	state := "ready"
	if status != http.StatusOK {
		state = "unavailable"
	}
	s.writeJSON(w, status, map[string]interface{}{"status": state, "checks": results})
}

func (s *Server) notFoundHandler(w http.ResponseWriter, r *http.Request) {
	s.logger.Debug("Route not found", slog.String("path", r.URL.Path))
	s.writeError(w, http.StatusNotFound, "Not found")
}

func (s *Server) methodNotAllowedHandler(w http.ResponseWriter, _ *http.Request) {
	s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to encode response", slog.String("error", err.Error()))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) internalError(w http.ResponseWriter, err error, operation string) {
	s.logger.Error("Request failed", slog.String("operation", operation), slog.String("error", err.Error()))
	s.sentry.CaptureError(err, "http", operation)
	s.writeError(w, http.StatusInternalServerError, "Internal Server Error")
}

func decodeJSON(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}
