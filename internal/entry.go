// Package internal provides the application wiring behind each command.
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

	"github.com/starford/catcoverage/internal/aggregate"
	"github.com/starford/catcoverage/internal/api"
	"github.com/starford/catcoverage/internal/apperr"
	"github.com/starford/catcoverage/internal/archive"
	"github.com/starford/catcoverage/internal/coverage"
	"github.com/starford/catcoverage/internal/mcpserver"
	"github.com/starford/catcoverage/internal/sizeindex"
	"github.com/starford/catcoverage/internal/sse"
	"github.com/starford/catcoverage/internal/storage"
)

// newApplication applies opts and fills in defaults.
func newApplication(opts ...Option) (*application, error) {
	app := &application{}
	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if app.out == nil {
		app.out = os.Stdout
	}
	if app.now == nil {
		app.now = time.Now
	}
	if app.logger == nil {
		// Stdout carries report output, so logs go to stderr.
		app.logger = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
			Level: app.config.App.LogLevel,
		}))
		slog.SetDefault(app.logger)
	}
	return app, nil
}

func (a *application) workdir() (*storage.Workdir, error) {
	wd, err := storage.NewWorkdir(a.config.Workdir.Path)
	if err != nil {
		return nil, fmt.Errorf("init workdir: %w", err)
	}
	return wd, nil
}

// archiveIndex returns the configured archive backend.
func (a *application) archiveIndex() (archive.Index, error) {
	if a.index != nil {
		return a.index, nil
	}
	cfg := a.config.Archive
	switch cfg.Backend {
	case BackendFS:
		return archive.NewFS(cfg.Mount)
	case BackendS3:
		return archive.NewS3(archive.S3Config{
			Endpoint:  cfg.S3.Endpoint,
			Region:    cfg.S3.Region,
			AccessKey: cfg.S3.AccessKeyID,
			SecretKey: cfg.S3.SecretAccessKey,
			Bucket:    cfg.S3.Bucket,
			UseSSL:    cfg.S3.UseSSL,
		})
	default:
		return nil, fmt.Errorf("unknown archive backend %q", cfg.Backend)
	}
}

// sizes opens the size cache in wd in front of the archive backend. The
// returned func closes the cache database.
func (a *application) sizes(wd *storage.Workdir) (*sizeindex.Cache, func(), error) {
	idx, err := a.archiveIndex()
	if err != nil {
		return nil, nil, fmt.Errorf("init archive: %w", err)
	}
	dbPath, err := wd.Path(storage.SizeCacheFile)
	if err != nil {
		return nil, nil, err
	}
	db, err := sizeindex.Open(dbPath)
	if err != nil {
		return nil, nil, fmt.Errorf("init size cache: %w", err)
	}
	cache, err := sizeindex.New(idx, db, a.config.Sizes.MemoryEntries,
		sizeindex.WithTTL(a.config.Sizes.CacheTTL),
		sizeindex.WithClock(a.now),
		sizeindex.WithLogger(a.logger),
	)
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("init size cache: %w", err)
	}
	closer := func() {
		hits, misses := cache.Stats()
		a.logger.Debug("size cache closed", slog.Int64("hits", hits), slog.Int64("misses", misses))
		if err := db.Close(); err != nil {
			a.logger.Warn("size cache close failed", slog.String("error", err.Error()))
		}
	}
	return cache, closer, nil
}

// aggregateOptions maps the configuration onto report building.
func (a *application) aggregateOptions() aggregate.Options {
	return aggregate.Options{
		Root:    a.config.Archive.Root,
		OK:      a.config.Policy.OK(),
		Strict:  a.config.Report.StrictIntegrity,
		Workers: a.config.Sizes.PrefetchWorkers,
		Logger:  a.logger,
		Now:     a.now,
	}
}

// Serve runs the HTTP API over the workdir's annotation file until ctx is
// cancelled or a shutdown signal arrives. The file is reloaded whenever it
// changes.
func Serve(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts...)
	if err != nil {
		return err
	}
	cfg := app.config
	logger := app.logger

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("workdir", cfg.Workdir.Path),
		slog.String("archive_backend", cfg.Archive.Backend),
		slog.String("log_level", cfg.App.LogLevel.String()))

	wd, err := app.workdir()
	if err != nil {
		return err
	}
	sizes, closeSizes, err := app.sizes(wd)
	if err != nil {
		return err
	}
	defer closeSizes()

	svc := coverage.NewService(wd, sizes, cfg.Archive.CollectionDepth, app.aggregateOptions(), logger)
	if _, err := svc.Reload(ctx); err != nil {
		if !errors.Is(err, apperr.ErrNotFound) {
			return fmt.Errorf("initial load: %w", err)
		}
		logger.Warn("no annotation file yet, waiting for find-missing",
			slog.String("file", storage.AnnotationsFile))
	}

	// SSE broker.
	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	apiRouter := api.NewRouter(svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

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
		if !svc.Ready() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"loading"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)

	// Reload on annotation file changes and tell SSE clients.
	g.Go(func() error {
		return coverage.Watch(gCtx, svc, logger, func(changed bool, checksum string, err error) {
			switch {
			case err != nil:
				broker.PublishCoverageEvent(sse.KindFailed, checksum, err.Error())
			case changed:
				broker.PublishCoverageEvent(sse.KindReloaded, checksum, "")
			}
		})
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

// ServeMCP answers coverage questions over MCP on stdin/stdout until the
// client disconnects. The annotation file is watched as in Serve.
func ServeMCP(ctx context.Context, version string, opts ...Option) error {
	app, err := newApplication(opts...)
	if err != nil {
		return err
	}
	logger := app.logger

	wd, err := app.workdir()
	if err != nil {
		return err
	}
	sizes, closeSizes, err := app.sizes(wd)
	if err != nil {
		return err
	}
	defer closeSizes()

	svc := coverage.NewService(wd, sizes, app.config.Archive.CollectionDepth, app.aggregateOptions(), logger)
	if _, err := svc.Reload(ctx); err != nil && !errors.Is(err, apperr.ErrNotFound) {
		return fmt.Errorf("initial load: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return coverage.Watch(gCtx, svc, logger, nil)
	})
	g.Go(func() error {
		defer cancel()
		logger.Info("MCP server starting on stdio")
		return mcpserver.New(svc, version).ServeStdio()
	})
	return g.Wait()
}

// errShutdown stops the remaining goroutines once the server is down.
var errShutdown = errors.New("shutdown")
