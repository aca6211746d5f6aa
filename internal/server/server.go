// Package server is the composition root: it opens the store, builds every
// service and handler, mounts the routes and runs the HTTP server until a
// shutdown signal arrives.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/idevgames/internal/auth"
	"github.com/sakif/idevgames/internal/config"
	"github.com/sakif/idevgames/internal/github"
	"github.com/sakif/idevgames/internal/handler"
	"github.com/sakif/idevgames/internal/metrics"
	"github.com/sakif/idevgames/internal/middleware"
	sqliteRepo "github.com/sakif/idevgames/internal/repository/sqlite"
	"github.com/sakif/idevgames/internal/service"
	"github.com/sakif/idevgames/internal/session"
)

// Server owns the database pool; Start closes it on the way out.
type Server struct {
	router  *chi.Mux
	config  config.Config
	logger  *slog.Logger
	db      *sqliteRepo.DB
	metrics *metrics.Metrics
}

// New opens the database and wires the application.
func New(cfg config.Config, logger *slog.Logger) (*Server, error) {
	if dir := filepath.Dir(cfg.DBPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sqliteRepo.New(cfg.DBPath,
		sqliteRepo.WithMaxOpenConns(cfg.DBMaxOpenConns),
		sqliteRepo.WithOpTimeout(cfg.StoreTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Server{
		router:  chi.NewRouter(),
		config:  cfg,
		logger:  logger,
		db:      db,
		metrics: metrics.New(),
	}

	if err := s.setupRoutes(); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}
	return s, nil
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close releases the database.
func (s *Server) Close() error {
	return s.db.Close()
}

// setupRoutes mounts:
//
//	GET    /metrics
//	GET    /auth/github/login
//	GET    /auth/github/callback
//	GET    /api/session                           Optional
//	DELETE /api/session
//	GET    /api/session/github_authorization_url
//	GET    /api/snippets, /api/snippets/{id}      Optional
//	POST   /api/snippets                          AdminOnly
//	PUT    /api/snippets/{id}                     AdminOnly
//	DELETE /api/snippets/{id}                     AdminOnly
//	GET    /api/admin/permissions                 AdminOnly
//	POST   /api/admin/permissions                 AdminOnly
//	DELETE /api/admin/permissions                 AdminOnly
func (s *Server) setupRoutes() error {
	sessions, err := session.NewStore(session.Config{
		Secret:     s.config.Session.Secret,
		CookieName: s.config.Session.CookieName,
		Secure:     s.config.Session.Secure,
		MaxAge:     s.config.Session.MaxAge,
	})
	if err != nil {
		return err
	}

	gh := github.NewClient(github.Config{
		ClientID:     s.config.GitHub.ClientID,
		ClientSecret: s.config.GitHub.ClientSecret,
		CallbackURL:  s.config.GitHub.CallbackURL,
		WebURL:       s.config.GitHub.WebURL,
		APIURL:       s.config.GitHub.APIURL,
		Timeout:      s.config.GitHub.Timeout,
	}, s.logger, s.metrics)

	resolver := auth.NewResolver(s.db, s.logger, s.metrics)
	guards := handler.NewGuards(resolver, sessions, s.logger)

	sessionHandler := handler.NewSessionHandler(
		service.NewLoginService(gh, s.db, s.logger, s.metrics),
		gh,
		sessions,
		s.config.PostLoginURL,
		s.config.Session.Secure,
		s.logger,
	)
	snippetHandler := handler.NewSnippetHandler(service.NewSnippetService(s.db, s.logger), s.logger)
	permissionHandler := handler.NewPermissionHandler(service.NewPermissionService(s.db, gh, s.logger), s.logger)

	// Middleware runs in the order added.
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(chimiddleware.Recoverer)

	s.router.Handle("/metrics", s.metrics.Handler())

	s.router.Group(func(r chi.Router) {
		r.Use(sessions.Middleware)

		r.Get("/auth/github/login", sessionHandler.HandleGitHubLogin)
		r.Get("/auth/github/callback", sessionHandler.HandleGitHubCallback)

		r.Route("/api", func(r chi.Router) {
			r.With(guards.Optional).Get("/session", sessionHandler.HandleGet)
			r.Delete("/session", sessionHandler.HandleDelete)
			r.Get("/session/github_authorization_url", sessionHandler.HandleAuthorizationURL)

			r.Route("/snippets", func(r chi.Router) {
				r.With(guards.Optional).Get("/", snippetHandler.HandleList)
				r.With(guards.Optional).Get("/{id}", snippetHandler.HandleGetByID)
				r.With(guards.AdminOnly).Post("/", snippetHandler.HandleCreate)
				r.With(guards.AdminOnly).Put("/{id}", snippetHandler.HandleUpdate)
				r.With(guards.AdminOnly).Delete("/{id}", snippetHandler.HandleDelete)
			})

			r.Route("/admin/permissions", func(r chi.Router) {
				r.Use(guards.AdminOnly)
				r.Get("/", permissionHandler.HandleShow)
				r.Post("/", permissionHandler.HandleGrant)
				r.Delete("/", permissionHandler.HandleRevoke)
			})
		})
	})

	return nil
}

// Start serves until SIGINT/SIGTERM, then drains in-flight requests for up to
// ShutdownTimeout and closes the database.
func (s *Server) Start() error {
	defer s.db.Close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("database", s.config.DBPath),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
