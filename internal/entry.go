// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/vaultgate/internal/api"
	"github.com/starford/vaultgate/internal/history"
	"github.com/starford/vaultgate/internal/journal"
	"github.com/starford/vaultgate/internal/mcpserver"
	"github.com/starford/vaultgate/internal/metrics"
	"github.com/starford/vaultgate/internal/noteservice"
	"github.com/starford/vaultgate/internal/sse"
	"github.com/starford/vaultgate/internal/vault"
)

const historyThrottle = 2 * time.Second

// runtime holds the components shared by the HTTP and MCP front ends.
type runtime struct {
	cfg     *Config
	logger  *slog.Logger
	store   vault.Store
	fsRoot  string
	ring    *history.Ring
	journal *journal.DB
	svc     *noteservice.Service
}

func (rt *runtime) Close() {
	if rt.journal != nil {
		if err := rt.journal.Close(); err != nil {
			rt.logger.Warn("journal close failed", slog.String("error", err.Error()))
		}
	}
}

func newApplication(opts []Option, defaultLog io.Writer) (*application, error) {
	app := &application{version: "dev"}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if app.logOutput == nil {
		app.logOutput = defaultLog
	}
	return app, nil
}

func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
	return logger
}

func newStore(cfg UpstreamConfig) (vault.Store, string, error) {
	switch cfg.Backend {
	case BackendFS:
		if err := os.MkdirAll(cfg.Path, 0o755); err != nil {
			return nil, "", fmt.Errorf("create vault dir: %w", err)
		}
		fs, err := vault.NewFS(cfg.Path)
		if err != nil {
			return nil, "", err
		}
		return fs, fs.Root(), nil
	case BackendREST:
		remote, err := vault.NewRemote(vault.RemoteOptions{
			URL:                cfg.URL,
			APIKey:             cfg.APIKey,
			Timeout:            cfg.Timeout,
			InsecureSkipVerify: cfg.InsecureSkipVerify,
		})
		if err != nil {
			return nil, "", err
		}
		return remote, "", nil
	}
	return nil, "", fmt.Errorf("unknown upstream backend %q", cfg.Backend)
}

// build wires the store, history ring, optional journal and note service.
// notifier may be nil.
func build(ctx context.Context, cfg *Config, logger *slog.Logger, notifier noteservice.Notifier) (*runtime, error) {
	store, root, err := newStore(cfg.Upstream)
	if err != nil {
		return nil, fmt.Errorf("init upstream: %w", err)
	}

	rt := &runtime{
		cfg:    cfg,
		logger: logger,
		store:  vault.WithMetrics(store),
		fsRoot: root,
		ring:   history.NewRing(cfg.History.Capacity),
	}

	var sink history.Sink
	if cfg.History.JournalPath != "" {
		db, err := journal.Open(cfg.History.JournalPath, cfg.History.JournalKeep)
		if err != nil {
			return nil, fmt.Errorf("init journal: %w", err)
		}
		rt.journal = db
		if err := db.Load(ctx, rt.ring); err != nil {
			db.Close()
			return nil, fmt.Errorf("load journal: %w", err)
		}
		sink = db
		logger.Info("history restored",
			slog.String("journal_path", cfg.History.JournalPath),
			slog.Int("entries", rt.ring.Len()))
	}
	metrics.SetHistoryEntries(rt.ring.Len())

	rt.svc = noteservice.NewService(rt.store, rt.ring, noteservice.Options{
		Sink:             sink,
		Notifier:         notifier,
		HeadingDelimiter: cfg.Patch.HeadingDelimiter,
		Logger:           logger,
	})
	return rt, nil
}

// historyOnly forwards history notifications only. In fs mode the watcher
// reports vault changes, including the ones this process writes.
type historyOnly struct {
	b *sse.Broker
}

func (h historyOnly) PublishVaultEvent(string, string) {}
func (h historyOnly) PublishHistoryEvent()             { h.b.PublishHistoryEvent() }

// Run starts the HTTP gateway with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts, os.Stdout)
	if err != nil {
		return err
	}
	cfg := app.config
	logger := newLogger(app.logOutput, cfg.App.LogLevel)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("upstream_backend", cfg.Upstream.Backend),
		slog.String("upstream_url", cfg.Upstream.URL),
		slog.String("vault_path", cfg.Upstream.Path),
		slog.Int("history_capacity", cfg.History.Capacity),
		slog.String("auth_mode", cfg.Auth.Mode),
		slog.String("log_level", cfg.App.LogLevel.String()))

	broker := sse.NewBroker(historyThrottle)
	defer broker.Close()

	var notifier noteservice.Notifier = broker
	if cfg.Upstream.Backend == BackendFS {
		notifier = historyOnly{b: broker}
	}

	rt, err := build(ctx, cfg, logger, notifier)
	if err != nil {
		return err
	}
	defer rt.Close()

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           newHTTPHandler(rt, broker),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	if rt.fsRoot != "" {
		g.Go(func() error {
			return vault.Watch(gCtx, rt.fsRoot, logger, broker.PublishVaultEvent)
		})
	}

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

		return context.Canceled
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

func newHTTPHandler(rt *runtime, broker *sse.Broker) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health and metrics are unauthenticated.
	r.Mount("/health", api.HealthRoutes(rt.svc))
	r.Handle("/metrics", metrics.Handler())

	r.Mount("/api", api.NewRouter(rt.svc, rt.cfg.Auth.AuthEnabled(), rt.cfg.Auth.Token, broker))
	return r
}

// RunMCP serves the vault tools over MCP stdio until stdin closes.
func RunMCP(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts, os.Stderr)
	if err != nil {
		return err
	}
	cfg := app.config
	logger := newLogger(app.logOutput, cfg.App.LogLevel)

	rt, err := build(ctx, cfg, logger, nil)
	if err != nil {
		return err
	}
	defer rt.Close()

	logger.Info("MCP server starting",
		slog.String("upstream_backend", cfg.Upstream.Backend),
		slog.String("version", app.version))

	if err := mcpserver.New(rt.svc, app.version).ServeStdio(); err != nil {
		return fmt.Errorf("mcp server: %w", err)
	}
	return nil
}
