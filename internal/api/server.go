// Package api is the studio's HTTP surface: generation, the track library,
// transport control and the live streams.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/satindergrewal/melodai/internal/backing"
	"github.com/satindergrewal/melodai/internal/studio"
	"github.com/satindergrewal/melodai/internal/transport"
)

// Generator creates tracks.
type Generator interface {
	Generate(ctx context.Context, req studio.Request) (*studio.Track, error)
	Progress() studio.Progress
}

// Tracks is the read side of the library.
type Tracks interface {
	List() []*studio.Track
	Get(id string) (*studio.Track, error)
	VocalWAV(id string) ([]byte, error)
}

// Transport plays tracks.
type Transport interface {
	Play(ctx context.Context, trackID string) error
	Stop() error
	SetVocalGain(v float64) float64
	SetInstrumentalGain(v float64) float64
	Status() transport.Status
}

// Config holds server configuration
type Config struct {
	Port int
}

// Deps are the components the routes drive. Stream, WebRTC and Visualizer
// are optional; their routes are only mounted when set.
type Deps struct {
	Generator  Generator
	Tracks     Tracks
	Transport  Transport
	Catalog    *backing.Catalog
	Stream     http.Handler
	WebRTC     http.Handler
	Visualizer http.Handler
	Listeners  func() int
}

// Server is the HTTP server
type Server struct {
	config Config
	deps   Deps
	router *chi.Mux
	logger *zap.Logger
}

// New creates a server and registers its routes.
func New(cfg Config, deps Deps, logger *zap.Logger) *Server {
	s := &Server{
		config: cfg,
		deps:   deps,
		router: chi.NewRouter(),
		logger: logger,
	}
	s.setupRoutes()
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) setupRoutes() {
	r := s.router

	r.Use(middleware.RequestID)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Post("/generate", s.handleGenerate)
		r.Get("/tracks", s.handleTracks)
		r.Get("/tracks/{id}", s.handleTrack)
		r.Get("/tracks/{id}/vocal.wav", s.handleVocal)
		r.Post("/play", s.handlePlay)
		r.Post("/stop", s.handleStop)
		r.Post("/gain", s.handleGain)
		r.Get("/status", s.handleStatus)
		r.Get("/genres", s.handleGenres)
	})

	if s.deps.Stream != nil {
		r.Handle("/stream", s.deps.Stream)
	}
	if s.deps.WebRTC != nil {
		r.Handle("/offer", s.deps.WebRTC)
	}
	if s.deps.Visualizer != nil {
		r.Handle("/ws/visualizer", s.deps.Visualizer)
	}
}

// requestLogger logs each request once it completes.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("took", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.config.Port)

	srv := &http.Server{
		Addr:        addr,
		Handler:     s.router,
		ReadTimeout: 30 * time.Second,
		// No WriteTimeout: /stream and the websocket are long-lived.
		IdleTimeout: 60 * time.Second,
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		<-ctx.Done()

		s.logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("shutdown error, closing", zap.Error(err))
			srv.Close()
		}
	}()

	s.logger.Info("server starting", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}

	<-done
	return nil
}
