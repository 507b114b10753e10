// Package sqlserver is the SQL Server database context: connection setup,
// schema migrations and the identity user store.
package sqlserver

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/gvangeel/yellow/internal/platform/retry"

	// registers the "sqlserver" driver
	_ "github.com/microsoft/go-mssqldb"
)

const (
	driverName = "sqlserver"

	maxOpenConns    = 25
	maxIdleConns    = 5
	connMaxLifetime = 5 * time.Minute
)

var connectPolicy = retry.Policy{
	InitialBackoff: 500 * time.Millisecond,
	MaxBackoff:     5 * time.Second,
	OnRetry: func(attempt int, err error, backoff time.Duration) {
		slog.Warn("Database not reachable yet, retrying", "attempt", attempt, "backoff", backoff, "error", err)
	},
}

// Open connects to SQL Server and pings it until it answers or timeout
// elapses. Authentication failures and a missing database are not retried.
func Open(ctx context.Context, connString string, timeout time.Duration) (*sql.DB, error) {
	dsn, err := driverDSN(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)

	if err := ping(ctx, db, timeout); err != nil {
		_ = db.Close()
		return nil, err
	}

	slog.Info("Database connected", "database", databaseName(connString), "max_open_conns", maxOpenConns)
	return db, nil
}

// EnsureDatabase creates the database named in connString if it does not
// exist yet, connecting through master with the same credentials.
func EnsureDatabase(ctx context.Context, connString string, timeout time.Duration) error {
	name := databaseName(connString)
	if name == "" {
		return fmt.Errorf("connection string names no database")
	}

	master, err := Open(ctx, withDatabase(connString, "master"), timeout)
	if err != nil {
		return err
	}
	defer func() { _ = master.Close() }()

	var created bool
	err = master.QueryRowContext(ctx, `
		IF DB_ID(@name) IS NULL
		BEGIN
			DECLARE @stmt NVARCHAR(MAX) = N'CREATE DATABASE ' + QUOTENAME(@name);
			EXEC (@stmt);
			SELECT CAST(1 AS BIT);
		END
		ELSE
			SELECT CAST(0 AS BIT);`,
		sql.Named("name", name),
	).Scan(&created)
	if err != nil {
		return fmt.Errorf("failed to create database %s: %w", name, err)
	}

	if created {
		slog.Info("Database created", "database", name)
	}
	return nil
}

func ping(ctx context.Context, db *sql.DB, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := retry.DoVoid(ctx, connectPolicy, classifyConnectError, func(ctx context.Context) error {
		return db.PingContext(ctx)
	})
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}
	return nil
}

func classifyConnectError(err error) retry.Action {
	if n, _, ok := errorNumber(err); ok && n == errLoginFailed {
		return retry.Stop
	}
	if isMissingDatabase(err) {
		return retry.Stop
	}
	return retry.Retry
}
