package main

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/example/studio-admin/internal/config"
	"github.com/example/studio-admin/internal/docstore"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestOpenStore(t *testing.T) {
	ctx := context.Background()

	t.Run("memory", func(t *testing.T) {
		cfg := config.Defaults()
		store, closer, err := openStore(ctx, cfg, discardLogger())
		if err != nil {
			t.Fatalf("openStore failed: %v", err)
		}
		defer closer.Close()
		if _, err := store.Get(ctx, "courses", "missing"); err != docstore.ErrNotFound {
			t.Fatalf("expected ErrNotFound from empty store, got %v", err)
		}
	})

	t.Run("sqlite applies migrations", func(t *testing.T) {
		cfg := config.Defaults()
		cfg.Store = config.StoreSQLite
		cfg.SQLiteDSN = filepath.Join(t.TempDir(), "studio.db")
		store, closer, err := openStore(ctx, cfg, discardLogger())
		if err != nil {
			t.Fatalf("openStore failed: %v", err)
		}
		defer closer.Close()

		id, err := store.Create(ctx, "courses", docstore.Fields{"name": "Yoga"})
		if err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		doc, err := store.Get(ctx, "courses", id)
		if err != nil || doc.Fields["name"] != "Yoga" {
			t.Fatalf("expected stored course, got %+v, %v", doc, err)
		}
	})

	t.Run("unknown store", func(t *testing.T) {
		cfg := config.Defaults()
		cfg.Store = "redis"
		if _, _, err := openStore(ctx, cfg, discardLogger()); err == nil {
			t.Fatalf("expected error for unknown store")
		}
	})
}

func TestBuildApp(t *testing.T) {
	cfg := config.Defaults()
	store, closer, err := openStore(context.Background(), cfg, discardLogger())
	if err != nil {
		t.Fatalf("openStore failed: %v", err)
	}
	defer closer.Close()

	studio, handler, err := buildApp(cfg, store, discardLogger())
	if err != nil {
		t.Fatalf("buildApp failed: %v", err)
	}
	if err := studio.Init(context.Background()); err != nil {
		t.Fatalf("Init on empty store failed: %v", err)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from /health, got %d", rec.Code)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Fatalf("request id middleware must be installed")
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "go_goroutines") {
		t.Fatalf("runtime collectors must be exported")
	}

	cfg.Timezone = "Nowhere/Invalid"
	if _, _, err := buildApp(cfg, store, discardLogger()); err == nil {
		t.Fatalf("expected timezone error")
	}
}
