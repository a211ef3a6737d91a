// Package web exposes the catalog and rating services over a JSON HTTP API.
package web

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/justestif/sonium/internal/catalog"
	"github.com/justestif/sonium/internal/ratings"
	"github.com/justestif/sonium/internal/syncer"
	"github.com/justestif/sonium/internal/users"
)

// DefaultAddr is the default server address.
const DefaultAddr = ":8080"

// ServerConfig holds server configuration and dependencies.
type ServerConfig struct {
	Addr    string
	Engine  *syncer.Engine
	Catalog *catalog.Store
	Ratings *ratings.Service
	Users   *users.Store
	Logger  zerolog.Logger
}

// Server is the HTTP server for the JSON API.
type Server struct {
	router   chi.Router
	server   *http.Server
	handlers *Handlers
	log      zerolog.Logger
}

// NewServer creates a new API server.
func NewServer(cfg ServerConfig) *Server {
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}

	handlers := NewHandlers(cfg.Engine, cfg.Catalog, cfg.Ratings, cfg.Users, cfg.Logger)

	router := chi.NewRouter()
	s := &Server{
		router:   router,
		handlers: handlers,
		log:      cfg.Logger,
	}

	s.setupMiddleware()
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// setupMiddleware configures middleware for the router.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Compress(5))
}

// setupRoutes configures routes for the API.
func (s *Server) setupRoutes() {
	s.router.Route("/api", func(r chi.Router) {
		r.Get("/albums/recent", s.handlers.RecentAlbums)
		r.Get("/albums/search", s.handlers.SearchAlbums)
		r.Get("/albums/{albumID}", s.handlers.GetAlbum)
		r.Get("/albums/{albumID}/cover", s.handlers.AlbumCover)
		r.Post("/sync", s.handlers.Sync)
		r.Post("/login", s.handlers.Login)
		r.Get("/top", s.handlers.TopAlbums)

		r.Route("/users/{userID}", func(r chi.Router) {
			r.Put("/ratings/{albumID}", s.handlers.RateAlbum)
			r.Post("/listened/{albumID}", s.handlers.ToggleListened)
			r.Post("/collection/{albumID}", s.handlers.AddToCollection)
			r.Delete("/collection/{albumID}", s.handlers.RemoveFromCollection)
			r.Get("/collection", s.handlers.UserCollection)
			r.Get("/stats", s.handlers.UserStats)
		})
	})
}

// Router returns the configured router, for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("starting server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Run starts the server and handles graceful shutdown on interrupt signals.
func (s *Server) Run() error {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		if err := s.Start(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-stop:
		s.log.Info().Msg("shutting down server")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	s.log.Info().Msg("server stopped")
	return nil
}
