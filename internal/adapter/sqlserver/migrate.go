package sqlserver

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

const (
	// migrationLockResource names the sp_getapplock lock that serialises
	// concurrent migrators across instances.
	migrationLockResource       = "yellow:migrations"
	migrationLockTimeout        = 60 * time.Second
	migrationLockReleaseTimeout = 5 * time.Second
)

// Migration identifies one schema migration.
type Migration struct {
	Version int64
	Name    string
}

type Migrator struct {
	db       *sql.DB
	provider *goose.Provider
}

func NewMigrator(db *sql.DB) (*Migrator, error) {
	migrationFS, err := fs.Sub(migrationFiles, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectMSSQL, db, migrationFS)
	if err != nil {
		return nil, fmt.Errorf("failed to create migration provider: %w", err)
	}

	return &Migrator{db: db, provider: provider}, nil
}

// Up applies every pending migration while holding an exclusive
// application lock, so that concurrently starting instances migrate once.
func (m *Migrator) Up(ctx context.Context) error {
	conn, err := m.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection for migration: %w", err)
	}
	defer func() { _ = conn.Close() }()

	release, err := migrationLock(ctx, conn)
	if err != nil {
		return err
	}
	defer release()

	current, err := m.provider.GetDBVersion(ctx)
	if err != nil {
		slog.DebugContext(ctx, "Could not get current DB version (likely fresh DB)", "error", err)
	} else {
		slog.InfoContext(ctx, "Current DB version", "version", current)
	}

	results, err := m.provider.Up(ctx)
	for _, r := range results {
		if r.Error != nil {
			continue
		}
		slog.InfoContext(ctx, "Applied migration", "version", r.Source.Version, "file", r.Source.Path, "duration", r.Duration)
	}
	if err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	if len(results) == 0 {
		slog.InfoContext(ctx, "Database schema is up to date")
	}
	return nil
}

// Pending lists the migrations not yet applied, oldest first.
func (m *Migrator) Pending(ctx context.Context) ([]Migration, error) {
	statuses, err := m.provider.Status(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read migration status: %w", err)
	}

	var pending []Migration
	for _, s := range statuses {
		if s.State == goose.StatePending {
			pending = append(pending, Migration{Version: s.Source.Version, Name: s.Source.Path})
		}
	}
	return pending, nil
}

// Status lists every known migration and whether it has been applied.
func (m *Migrator) Status(ctx context.Context) ([]*goose.MigrationStatus, error) {
	return m.provider.Status(ctx)
}

func migrationLock(ctx context.Context, conn *sql.Conn) (release func(), err error) {
	var result int
	err = conn.QueryRowContext(ctx, `
		DECLARE @result INT;
		EXEC @result = sp_getapplock
			@Resource = @resource,
			@LockMode = 'Exclusive',
			@LockOwner = 'Session',
			@LockTimeout = @timeout;
		SELECT @result;`,
		sql.Named("resource", migrationLockResource),
		sql.Named("timeout", migrationLockTimeout.Milliseconds()),
	).Scan(&result)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire migration lock: %w", err)
	}
	// 0 granted immediately, 1 granted after waiting, negative means refused
	if result < 0 {
		return nil, fmt.Errorf("failed to acquire migration lock: sp_getapplock returned %d", result)
	}

	release = func() {
		ctx, cancel := context.WithTimeout(context.Background(), migrationLockReleaseTimeout)
		defer cancel()

		_, err := conn.ExecContext(ctx, `EXEC sp_releaseapplock @Resource = @resource, @LockOwner = 'Session';`,
			sql.Named("resource", migrationLockResource))
		if err != nil {
			slog.Error("Failed to release migration lock", "error", err)
		}
	}
	return release, nil
}
