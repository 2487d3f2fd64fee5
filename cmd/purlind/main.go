// Package main implements purlind, the demo server that mounts the user
// and post resources over HTTP, backed by the purlin data-access layer.
package main

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
	"github.com/spf13/cobra"

	"github.com/purlinworks/purlin/internal/config"
	"github.com/purlinworks/purlin/internal/domain"
	"github.com/purlinworks/purlin/internal/platform/logger"
	"github.com/purlinworks/purlin/internal/redact"
	"github.com/purlinworks/purlin/orm"
	"github.com/purlinworks/purlin/view"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const shutdownTimeout = 10 * time.Second

func main() {
	rootCmd := &cobra.Command{
		Use:   "purlind",
		Short: "Purlin demo server",
		Long: `Purlind serves the demo user and post resources over HTTP.
Configuration comes from config.yaml and PURLIN_-prefixed environment
variables; see the repository README for the full list.`,
	}

	rootCmd.AddCommand(serveCmd(), createTablesCmd(), versionCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := initializeApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.shutdown()
			return app.serve(cmd.Context())
		},
	}
}

func createTablesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create-tables",
		Short: "Create any missing tables for the registered entities",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := initializeApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.shutdown()

			ctx := cmd.Context()
			if app.config.Database.NativeURL != "" {
				if err := app.manager.CreateAllTables(ctx); err != nil {
					return fmt.Errorf("failed to create tables on the native engine: %w", err)
				}
			}
			if err := app.manager.CreateAllTablesStd(ctx); err != nil {
				return fmt.Errorf("failed to create tables on the standard engine: %w", err)
			}
			app.logger.Info("tables created")
			return nil
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("purlind %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}

// application bundles the process-level dependencies the commands share.
type application struct {
	config  *config.Config
	logger  *slog.Logger
	manager *orm.Manager
}

// initializeApp loads configuration, sets up logging and brings up the
// configured database engines with the demo entities registered.
func initializeApp(ctx context.Context) (*application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	log, err := logger.Setup(cfg.Server)
	if err != nil {
		return nil, fmt.Errorf("failed to set up logger: %w", err)
	}

	log.Info("configuration loaded",
		slog.Int("port", cfg.Server.Port),
		slog.String("log_level", cfg.Server.LogLevel),
		slog.String("native_url", redact.URL(cfg.Database.NativeURL)),
		slog.String("standard_url", redact.URL(cfg.Database.StandardURL)))

	mgr := orm.NewManager(orm.PoolConfig{
		Size:           cfg.Database.Pool.Size,
		Overflow:       cfg.Database.Pool.Overflow,
		AcquireTimeout: cfg.Database.Pool.AcquireTimeout,
		Recycle:        cfg.Database.Pool.Recycle,
	}, log)

	if err := mgr.Register(&domain.User{}, &domain.Post{}); err != nil {
		return nil, fmt.Errorf("failed to register entities: %w", err)
	}

	if err := mgr.Initialize(ctx, cfg.Database.NativeURL, cfg.Database.StandardURL); err != nil {
		return nil, fmt.Errorf("failed to initialize database engines: %w", err)
	}

	return &application{config: cfg, logger: log, manager: mgr}, nil
}

// router mounts the demo views. With no native URL configured the server
// runs in standard-only mode and the views bind to the database/sql engine.
func (app *application) router() http.Handler {
	users := orm.Objects[domain.User](app.manager)
	posts := orm.Objects[domain.Post](app.manager)
	if app.config.Database.NativeURL == "" {
		users = users.Standard()
		posts = posts.Standard()
	}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(view.Trace(app.logger))

	r.Route("/api", func(r chi.Router) {
		r.Mount("/users", view.New(users, view.WithValidate(domain.ValidateUserFields)).Router())
		r.Mount("/posts", view.New(posts, view.WithValidate(domain.ValidatePostFields)).Router())
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			app.logger.Error("failed to write health check response", slog.String("error", err.Error()))
		}
	})

	return r
}

// serve runs the HTTP server until a shutdown signal arrives, then drains
// it gracefully.
func (app *application) serve(ctx context.Context) error {
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", app.config.Server.Port),
		Handler: app.router(),
	}

	serverCtx, cancelServer := context.WithCancel(ctx)
	defer cancelServer()

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		app.logger.Info("starting server", slog.Int("port", app.config.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.logger.Error("server failed", slog.String("error", err.Error()))
			cancelServer()
		}
	}()

	select {
	case sig := <-shutdownCh:
		app.logger.Info("shutting down server", slog.String("signal", sig.String()))
	case <-serverCtx.Done():
		app.logger.Info("server context canceled, shutting down")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		app.logger.Error("server shutdown failed", slog.String("error", err.Error()))
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	app.logger.Info("server shutdown completed")
	return nil
}

// shutdown releases the database engines.
func (app *application) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := app.manager.Close(ctx); err != nil {
		app.logger.Error("failed to close database engines", slog.String("error", err.Error()))
	}
}
