// Package server provides the HTTP server of the mudra recognition service.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"

	"github.com/ayusman/mudra/internal/app"
	"github.com/ayusman/mudra/internal/gesture"
	"github.com/ayusman/mudra/internal/plugin"
	"github.com/ayusman/mudra/internal/recognizer"
	"github.com/ayusman/mudra/internal/server/api"
	"github.com/ayusman/mudra/internal/store"
)

// ServiceName is reported by the root endpoint.
const ServiceName = "mudra sign recognition API"

// Config holds the server configuration. Only Recognizer is required; the
// store, plugin and capture routes are mounted when their dependency is set.
type Config struct {
	Addr           string
	Recognizer     *recognizer.Service
	Store          *store.Store
	Plugins        *plugin.Manager
	App            *app.App
	Segmenter      gesture.SegmenterConfig
	AllowedOrigins []string
	StaticDir      string
}

// Server represents the HTTP server.
type Server struct {
	config     Config
	router     *chi.Mux
	httpServer *http.Server
	origins    originPolicy
	start      time.Time
}

// New creates a new Server with the given configuration.
func New(config Config) *Server {
	if config.Segmenter.WindowSize <= 0 {
		config.Segmenter = gesture.DefaultSegmenterConfig()
	}
	s := &Server{
		config:  config,
		router:  chi.NewRouter(),
		origins: newOriginPolicy(config.AllowedOrigins),
		start:   time.Now(),
	}

	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(s.origins.middleware)

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:              config.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// setupRoutes configures all HTTP routes for the server.
func (s *Server) setupRoutes() {
	r := s.router
	r.Get("/", s.handleRoot)
	r.Get("/api/status", s.handleStatus)

	if s.config.Recognizer != nil {
		rec := api.NewRecognitionHandler(s.config.Recognizer)
		r.Get("/health", rec.Health)
		r.Post("/predict", rec.PredictLandmarks)
		r.Post("/predict/features", rec.PredictFeatures)
		r.Post("/predict/landmarks", rec.PredictLandmarks)
		r.Post("/predict/smooth", rec.PredictSmoothed)
		r.Delete("/session/{id}", rec.ResetSession)
		r.Get("/sequence/info", rec.SequenceInfo)
		r.Post("/sequence/predict", rec.PredictSequence)
		r.Post("/sequence/predict-raw", rec.PredictSequenceRaw)

		r.Handle("/api/live", newLiveHandler(s.config.Recognizer, s.config.Segmenter, s.origins))
	}

	if s.config.Store != nil {
		seq := api.NewSequenceHandler(s.config.Store)
		bind := api.NewBindingHandler(s.config.Store, s.config.Plugins)
		r.Get("/api/sequences", seq.ListSequences)
		r.Post("/api/sequences", seq.CreateSequence)
		r.Get("/api/sequences/{id}", seq.GetSequence)
		r.Get("/api/sequences/{id}/predictions", seq.ListPredictions)
		r.Post("/api/predictions", seq.CreatePrediction)
		r.Get("/api/predictions/top1-stats", seq.Top1Stats)

		r.Get("/api/bindings", bind.List)
		r.Post("/api/bindings", bind.Create)
		r.Get("/api/bindings/{id}", bind.Get)
		r.Put("/api/bindings/{id}", bind.Update)
		r.Delete("/api/bindings/{id}", bind.Delete)
		r.Get("/api/plugins", bind.Plugins)
	}

	if s.config.App != nil {
		capture := api.NewCaptureHandler(s.config.App)
		r.Get("/api/capture", capture.Status)
		r.Post("/api/capture/start", capture.Start)
		r.Post("/api/capture/stop", capture.Stop)
		r.Put("/api/capture/enabled", capture.SetEnabled)
		r.Handle("/api/events", newEventsHandler(s.config.App, s.origins))
	}

	// Serve a browser client if StaticDir is configured
	if s.config.StaticDir != "" {
		fs := http.StripPrefix("/ui", http.FileServer(http.Dir(s.config.StaticDir)))
		r.Handle("/ui", http.RedirectHandler("/ui/", http.StatusMovedPermanently))
		r.Handle("/ui/*", fs)
	}
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Router returns the chi router.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start listens on the configured address until Shutdown.
func (s *Server) Start() error {
	log.WithField("addr", s.httpServer.Addr).Info("starting HTTP server")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info("shutting down HTTP server")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	return nil
}

// handleRoot handles GET /.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"service": ServiceName,
		"status":  "running",
		"docs":    "/sequence/info",
	})
}

// handleStatus handles GET /api/status.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"uptime": time.Since(s.start).String(),
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.WithError(err).Warn("failed to encode response")
	}
}
