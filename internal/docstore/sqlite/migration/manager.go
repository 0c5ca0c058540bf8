package migration

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Manager applies pending migrations in version order.
type Manager struct {
	scanner  Scanner
	executor Executor
	dir      string
	logger   *slog.Logger
}

// NewManager wires a scanner and executor for the given directory.
func NewManager(scanner Scanner, executor Executor, dir string, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{scanner: scanner, executor: executor, dir: dir, logger: logger.With("component", "migration")}
}

// RunMigrations initialises the version table and applies every pending file.
func (m *Manager) RunMigrations(ctx context.Context) error {
	started := time.Now()
	if err := m.executor.InitializeVersionTable(ctx); err != nil {
		return fmt.Errorf("failed to initialize version table: %w", err)
	}

	status, err := m.Status(ctx)
	if err != nil {
		return err
	}
	m.logger.InfoContext(ctx, "schema status",
		"current_version", status.CurrentVersion,
		"pending", status.PendingCount,
	)

	for i, migration := range status.PendingMigrations {
		migrationStart := time.Now()
		logger := m.logger.With("version", migration.Version, "description", migration.Description)
		logger.InfoContext(ctx, "applying migration", "position", i+1, "total", status.PendingCount)

		if err := m.executor.ExecuteMigration(ctx, migration); err != nil {
			logger.ErrorContext(ctx, "migration failed", "error", err)
			return NewMigrationError(migration.Version, migration.FilePath, "execute migration",
				fmt.Errorf("%w: %v", ErrMigrationFailed, err))
		}

		elapsed := time.Since(migrationStart)
		if err := m.executor.RecordMigration(ctx, migration, elapsed); err != nil {
			return NewMigrationError(migration.Version, migration.FilePath, "record migration", err)
		}
		logger.InfoContext(ctx, "migration applied", "elapsed", elapsed)
	}

	if status.PendingCount > 0 {
		m.logger.InfoContext(ctx, "migrations complete", "applied", status.PendingCount, "elapsed", time.Since(started))
	}
	return nil
}

// Status compares the files on disk with schema_migrations. An applied file
// whose checksum changed is reported as ErrChecksumMismatch.
func (m *Manager) Status(ctx context.Context) (*Status, error) {
	available, err := m.scanner.ScanMigrations(m.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to scan migrations: %w", err)
	}
	applied, err := m.executor.GetAppliedVersions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read applied migrations: %w", err)
	}

	appliedByVersion := make(map[string]AppliedMigration, len(applied))
	for _, a := range applied {
		appliedByVersion[a.Version] = a
	}

	status := &Status{AppliedMigrations: applied}
	if len(applied) > 0 {
		status.CurrentVersion = applied[len(applied)-1].Version
	}
	for _, migration := range available {
		record, done := appliedByVersion[migration.Version]
		if !done {
			status.PendingMigrations = append(status.PendingMigrations, migration)
			continue
		}
		if record.Checksum != "" && record.Checksum != migration.Checksum {
			return nil, NewMigrationError(migration.Version, migration.FilePath, "verify checksum", ErrChecksumMismatch)
		}
	}
	status.PendingCount = len(status.PendingMigrations)
	return status, nil
}
