// Package server sets up the HTTP server, router, and all route definitions.
//
// SERVER ARCHITECTURE:
// This package is the "wiring" layer. It connects the credential store, the
// session table, the services, the handlers and the middleware, and decides:
// - Which URL patterns map to which handler functions
// - What middleware runs on which routes
// - How the server starts and stops gracefully
//
// DEPENDENCY INJECTION FLOW:
// cmd/server loads a config.Config and calls New, which creates:
//
//	store (sqlite | postgres) ─┐
//	session.Manager ───────────┼→ AuthService → AuthHandler
//	PasswordService ───────────┤
//	metrics.Metrics ───────────┘
//
// This is the "composition root" pattern: all dependencies are wired in one
// place (New/setupRoutes), rather than scattered across the codebase.
package server

import (
	"context"
	"crypto/rand"
	"encoding/hex"
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

	"github.com/sakif/user-auth/internal/auth"
	"github.com/sakif/user-auth/internal/config"
	"github.com/sakif/user-auth/internal/handler"
	"github.com/sakif/user-auth/internal/metrics"
	"github.com/sakif/user-auth/internal/middleware"
	"github.com/sakif/user-auth/internal/repository"
	"github.com/sakif/user-auth/internal/repository/postgres"
	sqliteRepo "github.com/sakif/user-auth/internal/repository/sqlite"
	"github.com/sakif/user-auth/internal/service"
	"github.com/sakif/user-auth/internal/session"
)

// userStore is a credential store the server owns and must close.
type userStore interface {
	repository.UserRepository
	Close() error
}

// Server represents the HTTP server and all its dependencies.
//
// RESOURCE MANAGEMENT:
// The Server owns the credential store and the session table. Start closes
// the store after the HTTP server has drained, and stops the session sweeper.
type Server struct {
	router   *chi.Mux
	config   config.Config
	logger   *slog.Logger
	store    userStore
	sessions *session.Manager
}

// New creates a new Server from cfg.
//
// DEPENDENCY INJECTION & WIRING:
//  1. Open the credential store selected by cfg.Store.Driver
//  2. Create the session table, metrics, password hasher and cookie codec
//  3. Create the AuthService and the AuthHandler on top of them
//  4. Wire handlers to routes
//
// Each layer only receives what it needs: the service gets the
// repository.UserRepository interface, never the concrete store.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// === CREATE CREDENTIAL STORE ===
	store, err := openStore(ctx, cfg.Store, logger)
	if err != nil {
		return nil, fmt.Errorf("opening credential store: %w", err)
	}

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		store:  store,
		sessions: session.NewManager(session.Options{
			IdleTimeout:   cfg.Session.IdleTimeout,
			MaxLifetime:   cfg.Session.MaxLifetime,
			SweepInterval: cfg.Session.SweepInterval,
			Logger:        logger,
		}),
	}

	if err := s.setupRoutes(); err != nil {
		store.Close() // Clean up the store if route setup fails
		return nil, fmt.Errorf("setting up routes: %w", err)
	}

	return s, nil
}

// openStore opens the configured credential store.
func openStore(ctx context.Context, cfg config.StoreConfig, logger *slog.Logger) (userStore, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		db, err := postgres.New(ctx, cfg.DSN, logger)
		if err != nil {
			return nil, err
		}
		return db, nil
	case config.DriverSQLite:
		if cfg.DSN != sqliteRepo.MemoryPath {
			// os.MkdirAll is `mkdir -p`: creates parents, no error if present.
			if err := os.MkdirAll(filepath.Dir(cfg.DSN), 0o755); err != nil {
				return nil, fmt.Errorf("creating database directory: %w", err)
			}
		}
		db, err := sqliteRepo.New(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		return db, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

// setupRoutes configures all middleware and route handlers.
//
// ROUTE STRUCTURE:
// GET      /           → Welcome page
// GET      /login      → Login form
// POST     /login      → Log in
// GET      /register   → Registration form
// POST     /register   → Register
// GET      /dashboard  → Protected page (RequireAuth)
// GET|POST /logout     → Log out
// GET      /metrics    → Prometheus exposition
// GET      /healthz    → Liveness probe
//
// MIDDLEWARE ORDER MATTERS:
// 1. RequestID, so every log line can name the request
// 2. RealIP, so logs show the client rather than the proxy
// 3. Recoverer, which turns a panic into a 500
// 4. Logger
// 5. Sessions (page routes only), which gives each browser a session cookie
func (s *Server) setupRoutes() error {
	// === Global Middleware ===
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.Logger(s.logger))

	codec, err := auth.NewCookieCodec(s.sessionSecret(), s.sessions.MaxLifetime())
	if err != nil {
		return fmt.Errorf("creating cookie codec: %w", err)
	}
	cookie := auth.CookieConfig{
		Name:   s.config.Session.CookieName,
		Secure: s.config.Session.Secure,
	}

	m := metrics.New(s.sessions.Len)
	passwords := auth.NewPasswordServiceWithCost(s.config.Auth.BcryptCost)
	authService := service.NewAuthService(s.store, passwords, s.sessions, m, s.logger)
	authHandler := handler.NewAuthHandler(authService, cookie, s.logger)

	// === Operational Routes ===
	// No session cookie: scrapers and probes should not fill the session table.
	s.router.Handle("/metrics", m.Handler())
	s.router.Get("/healthz", handler.HandleHealth)

	// === Page Routes ===
	s.router.Group(func(r chi.Router) {
		r.Use(auth.Sessions(s.sessions, codec, cookie, s.logger))

		r.Get(handler.PathHome, authHandler.HandleHome)
		r.Get(handler.PathLogin, authHandler.HandleLoginPage)
		r.Post(handler.PathLogin, authHandler.HandleLogin)
		r.Get(handler.PathRegister, authHandler.HandleRegisterPage)
		r.Post(handler.PathRegister, authHandler.HandleRegister)
		r.Get(handler.PathLogout, authHandler.HandleLogout)
		r.Post(handler.PathLogout, authHandler.HandleLogout)

		r.With(auth.RequireAuth(authService, handler.PathLogin)).
			Get(handler.PathDashboard, authHandler.HandleDashboard)
	})

	return nil
}

// sessionSecret returns the configured cookie secret, or a random one.
func (s *Server) sessionSecret() string {
	if s.config.Session.Secret != "" {
		return s.config.Session.Secret
	}

	b := make([]byte, 32)
	// crypto/rand.Read never returns an error on supported platforms.
	_, _ = rand.Read(b)
	s.logger.Warn("session.secret not set, using a random secret; sessions will not survive a restart",
		slog.String("env", config.SecretEnv),
	)
	return hex.EncodeToString(b)
}

// Handler returns the root HTTP handler. Tests mount it on httptest.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close releases the credential store.
func (s *Server) Close() error {
	return s.store.Close()
}

// Start starts the HTTP server and blocks until ctx is cancelled, a
// SIGINT/SIGTERM arrives or the listener fails.
//
// GRACEFUL SHUTDOWN:
// 1. Stop accepting new HTTP connections
// 2. Wait for in-flight requests to finish (30s timeout)
// 3. Stop the session sweeper and close the credential store
func (s *Server) Start(ctx context.Context) error {
	// Ensure the store is closed when the server stops.
	defer s.Close()

	sweepCtx, stopSweeper := context.WithCancel(ctx)
	defer stopSweeper()
	go s.sessions.Run(sweepCtx)

	// Create the HTTP server with sensible timeouts
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.Port),
		Handler:           s.router,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Channel to receive OS signals
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	// Channel to receive server errors
	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Port)),
			slog.String("store", s.config.Store.Driver),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	// Block until we receive a signal, a cancellation or a server error
	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

	case <-ctx.Done():
		s.logger.Info("shutdown requested", slog.String("reason", context.Cause(ctx).Error()))
	}

	// Give in-flight requests 30 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	s.logger.Info("server stopped gracefully")
	return nil
}
