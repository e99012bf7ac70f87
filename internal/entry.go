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
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/starford/scanvault/internal/api"
	"github.com/starford/scanvault/internal/apply"
	"github.com/starford/scanvault/internal/index"
	"github.com/starford/scanvault/internal/mcpserver"
	"github.com/starford/scanvault/internal/noteservice"
	"github.com/starford/scanvault/internal/pipeline"
	"github.com/starford/scanvault/internal/sse"
	"github.com/starford/scanvault/internal/storage"
	"github.com/starford/scanvault/internal/syncer"
	"github.com/starford/scanvault/internal/writer"
)

// stack is the wired set of components shared by every command.
type stack struct {
	cfg     *Config
	logger  *slog.Logger
	store   *storage.FS
	db      *index.DB
	broker  *sse.Broker
	syncer  *syncer.Syncer
	svc     *noteservice.Service
	closers []io.Closer
}

func newApplication(opts []Option) (*application, error) {
	app := &application{logOutput: os.Stdout, version: "dev"}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	return app, nil
}

// newLogger builds the JSON logger. A configured log file receives the same
// records through a rotating writer.
func newLogger(cfg *Config, out io.Writer) (*slog.Logger, io.Closer) {
	var closer io.Closer
	if lf := cfg.App.LogFile; lf.Path != "" {
		rotating := &lumberjack.Logger{
			Filename:   lf.Path,
			MaxSize:    lf.MaxSizeMB,
			MaxBackups: lf.MaxBackups,
			MaxAge:     lf.MaxAgeDays,
			Compress:   lf.Compress,
		}
		out = io.MultiWriter(out, rotating)
		closer = rotating
	}
	logger := slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	return logger, closer
}

// build wires storage, index, and the write pipeline. With events set, the
// SSE broker observes every applied batch and every mirror run.
func (app *application) build(events bool) (*stack, error) {
	cfg := app.config
	logger, logCloser := newLogger(cfg, app.logOutput)
	slog.SetDefault(logger)

	s := &stack{cfg: cfg, logger: logger}
	if logCloser != nil {
		s.closers = append(s.closers, logCloser)
	}

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("vault_path", cfg.Vault.Path),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("processing_mode", cfg.Processing.Mode),
		slog.String("mirror_path", cfg.Vault.Mirror.Path),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// Ensure the vault and its folder taxonomy exist.
	store, err := storage.Bootstrap(cfg.Vault.Path, cfg.Vault.Folders)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("init storage: %w", err)
	}
	s.store = store

	// Initialize SQLite index.
	db, err := index.Open(cfg.SQLite.Path, index.WithLogger(logger))
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("init index: %w", err)
	}
	s.db = db
	s.closers = append(s.closers, db)

	// Run initial sync.
	if err := index.Sync(db, store, logger); err != nil {
		logger.Warn("initial sync failed", slog.String("error", err.Error()))
	}

	observers := []apply.Observer{db}
	if events {
		s.broker = sse.NewBroker(2 * time.Second)
		observers = append(observers, s.broker)
	}

	applier := apply.NewService(store, apply.WithLogger(logger), apply.WithObserver(observers...))
	w := writer.New(store, applier, writer.WithLogger(logger))
	p := pipeline.New(w, logger)

	svcOpts := []noteservice.Option{
		noteservice.WithLogger(logger),
		noteservice.WithProcessingMode(cfg.Processing.ProcessingMode()),
	}
	sy, err := syncer.New(store.Root(), syncer.WithLogger(logger))
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("init syncer: %w", err)
	}
	s.syncer = sy
	svcOpts = append(svcOpts, noteservice.WithMirror(sy, cfg.Vault.Mirror.Path))
	if s.broker != nil {
		broker := s.broker
		svcOpts = append(svcOpts, noteservice.WithSyncHook(func(res *noteservice.SyncResult) {
			broker.PublishSynced(syncedEvent(res))
		}))
	}
	s.svc = noteservice.NewService(store, db, applier, p, svcOpts...)
	return s, nil
}

func syncedEvent(res *noteservice.SyncResult) sse.SyncedEvent {
	ev := sse.SyncedEvent{Destination: res.Destination, FinishedAt: res.FinishedAt}
	if st := res.Stats; st != nil {
		ev.Copied, ev.Unchanged, ev.Skipped, ev.Bytes = st.Copied, st.Unchanged, st.Skipped, st.Bytes
	}
	return ev
}

// Close releases the stack in reverse order of acquisition.
func (s *stack) Close() {
	if s.broker != nil {
		s.broker.Close()
	}
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i].Close(); err != nil {
			s.logger.Error("close failed", slog.String("error", err.Error()))
		}
	}
}

// Run starts the HTTP server with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	s, err := app.build(true)
	if err != nil {
		return err
	}
	defer s.Close()

	cfg, logger := s.cfg, s.logger

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
		if err := s.db.Ping(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"index unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes under /api.
	r.Mount("/api", api.NewRouter(s.svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token, s.broker))

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Mirror the vault continuously when configured.
	if cfg.Vault.Mirror.Enabled() && cfg.Vault.Mirror.Watch {
		g.Go(func() error {
			err := s.syncer.Watch(gCtx, cfg.Vault.Mirror.Path, func(path string) {
				s.broker.PublishSynced(sse.SyncedEvent{
					Destination: cfg.Vault.Mirror.Path,
					Path:        path,
					Copied:      1,
					FinishedAt:  time.Now().UTC(),
				})
			})
			if err != nil {
				logger.Error("mirror watch stopped", slog.String("error", err.Error()))
			}
			return nil
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

// RunMCP serves the MCP tools over stdio until stdin closes.
func RunMCP(_ context.Context, opts ...Option) error {
	app, err := newApplication(append([]Option{WithLogOutput(os.Stderr)}, opts...))
	if err != nil {
		return err
	}
	s, err := app.build(false)
	if err != nil {
		return err
	}
	defer s.Close()

	s.logger.Info("MCP server starting on stdio")
	return mcpserver.New(s.svc, app.version).ServeStdio()
}
