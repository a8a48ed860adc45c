// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/cloudshelf/internal/api"
	"github.com/starford/cloudshelf/internal/artwork"
	"github.com/starford/cloudshelf/internal/catalog"
	"github.com/starford/cloudshelf/internal/index"
	"github.com/starford/cloudshelf/internal/linker"
	"github.com/starford/cloudshelf/internal/mcpserver"
	"github.com/starford/cloudshelf/internal/service"
	"github.com/starford/cloudshelf/internal/sse"
	"github.com/starford/cloudshelf/internal/steam"
	"github.com/starford/cloudshelf/internal/storage"
)

// App is an opened application: one user session with its index.
type App struct {
	Config  *Config
	Service *service.Service
	Logger  *slog.Logger

	db *index.DB
}

// Close releases the index.
func (a *App) Close() error {
	return a.db.Close()
}

func newApplication(opts []Option) (*application, error) {
	app := &application{version: "dev", logOutput: os.Stdout}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	return app, nil
}

// SteamRoot returns the configured launcher root or the platform default.
func SteamRoot(cfg *Config) (string, error) {
	if cfg.Steam.Root != "" {
		return cfg.Steam.Root, nil
	}
	return steam.Root()
}

// Open wires the application for the configured user without starting any
// server.
func Open(_ context.Context, opts ...Option) (*App, error) {
	app, err := newApplication(opts)
	if err != nil {
		return nil, err
	}
	return app.open()
}

func (app *application) open() (*App, error) {
	cfg := app.config

	// Initialize structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(app.logOutput, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	root, err := SteamRoot(cfg)
	if err != nil {
		return nil, err
	}
	users, err := steam.Users(root)
	if err != nil {
		return nil, err
	}
	user, err := steam.PickUser(users, cfg.Steam.AccountID)
	if err != nil {
		return nil, fmt.Errorf("select user: %w", err)
	}
	session := steam.NewSession(root, user)

	logger.Info("Configuration loaded",
		slog.String("steam_root", root),
		slog.String("account", user.AccountName),
		slog.String("shortcuts", session.ShortcutsPath),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("profile", cfg.Shortcut.Profile),
		slog.String("log_level", cfg.App.LogLevel.String()))

	grid, err := storage.NewFS(session.GridDir)
	if err != nil {
		return nil, fmt.Errorf("init grid storage: %w", err)
	}
	images := artwork.NewDownloader(grid, cfg.Catalog.Timeout, logger)
	cat := catalog.New(cfg.Catalog.Options(app.version), logger)

	home, err := os.UserHomeDir()
	if err != nil {
		logger.Warn("home directory unknown", slog.String("error", err.Error()))
	}
	builder := linker.New(linker.Options{
		Profile:       cfg.Shortcut.Active(),
		ProvenanceTag: cfg.Shortcut.ProvenanceTag,
		SteamRoot:     root,
		Home:          home,
	}, images, cat, logger)

	db, err := index.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init index: %w", err)
	}

	svc, err := service.New(service.Deps{
		Session:       session,
		Index:         db,
		Catalog:       cat,
		Builder:       builder,
		Images:        images,
		Publisher:     app.publisher,
		ProvenanceTag: cfg.Shortcut.ProvenanceTag,
		Concurrency:   cfg.Apply.Concurrency,
		Logger:        logger,
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init service: %w", err)
	}

	return &App{Config: cfg, Service: svc, Logger: logger, db: db}, nil
}

// RunMCP serves the MCP tools over stdio until the client disconnects.
// Logs go to stderr since stdout carries the protocol.
func RunMCP(_ context.Context, opts ...Option) error {
	app, err := newApplication(append(opts, WithLogOutput(os.Stderr)))
	if err != nil {
		return err
	}
	a, err := app.open()
	if err != nil {
		return err
	}
	defer a.Close()

	return mcpserver.New(a.Service, app.version).ServeStdio()
}

// Run starts the HTTP server with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	broker := sse.NewBroker(sse.Options{ChangedInterval: 2 * time.Second})
	defer broker.Close()
	app.publisher = broker

	a, err := app.open()
	if err != nil {
		return err
	}
	defer a.Close()
	logger := a.Logger
	svc := a.Service

	apiRouter := api.NewRouter(svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Fetch the catalog once at startup; the cached copy serves until then.
	g.Go(func() error {
		if _, err := svc.Refresh(gCtx); err != nil {
			logger.Warn("initial catalog refresh failed", slog.String("error", err.Error()))
		}
		return nil
	})

	// Reload when the launcher rewrites the shortcut file.
	g.Go(func() error {
		if err := svc.Watch(gCtx); err != nil {
			logger.Warn("shortcut watcher stopped", slog.String("error", err.Error()))
		}
		return nil
	})

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}
		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// errShutdown cancels the group so the watcher stops with the server.
var errShutdown = errors.New("shutdown")
