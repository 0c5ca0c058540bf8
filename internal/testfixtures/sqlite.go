package testfixtures

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/example/studio-admin/internal/docstore/sqlite"
	"github.com/example/studio-admin/internal/docstore/sqlite/migration"
	"github.com/example/studio-admin/internal/persistence"
)

// SQLiteHarness exposes repositories over a migrated temporary SQLite file.
type SQLiteHarness struct {
	*persistence.Repositories
	Store *sqlite.Store
}

// NewSQLiteHarness opens the store in tb.TempDir and closes it on cleanup.
func NewSQLiteHarness(tb testing.TB, clock *Clock) *SQLiteHarness {
	tb.Helper()
	if clock == nil {
		clock = NewClock(ReferenceTime())
	}

	path := filepath.Join(tb.TempDir(), "studio.db")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store, err := sqlite.Open(context.Background(), migration.TempFileTestSQLiteConfig(path), logger)
	if err != nil {
		tb.Fatalf("failed to open sqlite store: %v", err)
	}
	tb.Cleanup(func() { _ = store.Close() })
	store.WithClock(clock.NowFunc())

	return &SQLiteHarness{
		Repositories: persistence.NewRepositories(store, clock.NowFunc()),
		Store:        store,
	}
}
