package main

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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/example/studio-admin/internal/application"
	"github.com/example/studio-admin/internal/config"
	"github.com/example/studio-admin/internal/docstore"
	"github.com/example/studio-admin/internal/docstore/firestore"
	"github.com/example/studio-admin/internal/docstore/memory"
	"github.com/example/studio-admin/internal/docstore/sqlite"
	"github.com/example/studio-admin/internal/docstore/sqlite/migration"
	httptransport "github.com/example/studio-admin/internal/http"
	"github.com/example/studio-admin/internal/logging"
	"github.com/example/studio-admin/internal/metrics"
	"github.com/example/studio-admin/internal/persistence"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stderr, nil)).Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	logger := logging.New(os.Stdout, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("studio admin stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	store, closer, err := openStore(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		if cerr := closer.Close(); cerr != nil {
			logger.Error("failed to close store", "error", cerr)
		}
	}()

	studio, handler, err := buildApp(cfg, store, logger)
	if err != nil {
		return err
	}
	if err := studio.Init(ctx); err != nil {
		// Collections load lazily on the first request that needs them.
		logger.Warn("initial cache load failed", "error", err)
	}

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("failed to shutdown server", "error", err)
		}
	}()

	logger.Info("studio admin API listening", "addr", server.Addr, "store", cfg.Store)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}

// openStore returns the document store selected by cfg.Store.
func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (docstore.Store, io.Closer, error) {
	switch cfg.Store {
	case config.StoreMemory:
		storage := memory.Open()
		return storage, storage, nil
	case config.StoreSQLite:
		store, err := sqlite.Open(ctx, migration.DefaultSQLiteConfig(cfg.SQLiteDSN), logger)
		if err != nil {
			return nil, nil, err
		}
		return store, store, nil
	case config.StoreFirestore:
		store, err := firestore.Open(ctx, cfg.FirestoreProject)
		if err != nil {
			return nil, nil, err
		}
		return store, store, nil
	}
	return nil, nil, fmt.Errorf("unknown store %q", cfg.Store)
}

// buildApp wires the studio and its HTTP surface over store.
func buildApp(cfg config.Config, store docstore.Store, logger *slog.Logger) (*application.Studio, http.Handler, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, nil, fmt.Errorf("load timezone: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder := metrics.New(registry)

	repos := persistence.NewRepositories(store, time.Now)
	studio := application.NewStudioWithLogger(repos, application.Config{
		BookingWindowWeeks: cfg.BookingWindowWeeks,
		ReportMonths:       cfg.ReportMonths,
		CascadeParallelism: cfg.CascadeParallelism,
		Location:           loc,
		LookupTTL:          cfg.LookupTTL,
	}, time.Now, recorder, logger)

	router := httptransport.NewRouter(httptransport.RouterConfig{
		Courses:   httptransport.NewCourseHandler(studio, logger),
		Bookings:  httptransport.NewBookingHandler(studio, logger),
		Members:   httptransport.NewMemberHandler(studio, logger),
		Expenses:  httptransport.NewExpenseHandler(studio, logger),
		Registry:  httptransport.NewRegistryHandler(studio, logger),
		Refresher: studio,
		Gatherer:  registry,
		Logger:    logger,
		Middleware: []func(http.Handler) http.Handler{
			httptransport.RequestLogger(logger),
			httptransport.Recoverer(logger),
		},
	})
	return studio, router, nil
}
