package migration

import (
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultSQLiteConfig(t *testing.T) {
	config := DefaultSQLiteConfig("/tmp/studio.db")

	if config.DSN != "/tmp/studio.db" {
		t.Errorf("Expected DSN /tmp/studio.db, got %s", config.DSN)
	}
	if config.BusyTimeout != 30*time.Second {
		t.Errorf("Expected BusyTimeout 30s, got %v", config.BusyTimeout)
	}
	if config.JournalMode != "WAL" || config.Synchronous != "NORMAL" {
		t.Errorf("Expected WAL/NORMAL, got %s/%s", config.JournalMode, config.Synchronous)
	}
	if err := config.Validate(); err != nil {
		t.Errorf("default config must validate, got %v", err)
	}
}

func TestSQLiteConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*SQLiteConfig)
		wantErr string
	}{
		{name: "valid", mutate: func(*SQLiteConfig) {}},
		{name: "empty DSN", mutate: func(c *SQLiteConfig) { c.DSN = " " }, wantErr: "DSN cannot be empty"},
		{name: "negative busy timeout", mutate: func(c *SQLiteConfig) { c.BusyTimeout = -time.Second }, wantErr: "BusyTimeout"},
		{name: "unknown journal mode", mutate: func(c *SQLiteConfig) { c.JournalMode = "ROLLBACK" }, wantErr: "journal mode"},
		{name: "unknown synchronous mode", mutate: func(c *SQLiteConfig) { c.Synchronous = "SOMETIMES" }, wantErr: "synchronous mode"},
		{name: "negative pool size", mutate: func(c *SQLiteConfig) { c.MaxOpenConns = -1 }, wantErr: "pool settings"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := TempFileTestSQLiteConfig("/tmp/test.db")
			tt.mutate(&config)
			err := config.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestOpenCreatesDirectoryAndAppliesPragmas(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "studio.db")
	db, err := Open(TempFileTestSQLiteConfig(path))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer db.Close()

	var mode string
	if err := db.QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
		t.Fatalf("failed to read journal mode: %v", err)
	}
	if !strings.EqualFold(mode, "memory") {
		t.Fatalf("expected MEMORY journal mode, got %s", mode)
	}

	if _, err := Open(SQLiteConfig{}); err == nil {
		t.Fatalf("expected invalid configuration to be rejected")
	}
}
