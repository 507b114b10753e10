// Command migrate applies or reports the SQL Server schema migrations
// without starting the web server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/gvangeel/yellow/internal/adapter/sqlserver"
	"github.com/gvangeel/yellow/internal/platform/config"
	"github.com/gvangeel/yellow/internal/platform/logging"
	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

func main() {
	var (
		status  = flag.Bool("status", false, "Print migration status instead of applying migrations")
		timeout = flag.Duration("timeout", 5*time.Minute, "Overall timeout")
		verbose = flag.Bool("verbose", false, "Verbose logging")
	)
	flag.Parse()

	level := "info"
	if *verbose {
		level = "debug"
	}
	logging.InitLogger(level, "text")

	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file found, using environment variables")
	}
	db, err := config.LoadDatabase(env.OS)
	if err != nil {
		log.Fatalf("Failed to load database settings: %v", err)
	}
	connString := db.ConnectionString()
	slog.Info("Using SQL Server", "connection", db.Redacted())

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if !*status {
		if err := sqlserver.EnsureDatabase(ctx, connString, db.ConnectTimeout); err != nil {
			log.Fatalf("Failed to ensure database exists: %v", err)
		}
	}

	conn, err := sqlserver.Open(ctx, connString, db.ConnectTimeout)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer func() { _ = conn.Close() }()

	migrator, err := sqlserver.NewMigrator(conn)
	if err != nil {
		log.Fatalf("Failed to create migrator: %v", err)
	}

	if *status {
		if err := printStatus(ctx, migrator); err != nil {
			log.Fatalf("Failed to read migration status: %v", err)
		}
		return
	}

	if err := migrator.Up(ctx); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}
	slog.Info("Migrations complete")
}

func printStatus(ctx context.Context, migrator *sqlserver.Migrator) error {
	statuses, err := migrator.Status(ctx)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "VERSION\tSTATE\tAPPLIED AT\tFILE")
	for _, s := range statuses {
		applied := "-"
		if !s.AppliedAt.IsZero() {
			applied = s.AppliedAt.Format(time.RFC3339)
		}
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", s.Source.Version, s.State, applied, s.Source.Path)
	}
	return w.Flush()
}
