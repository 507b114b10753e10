package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/sessions"
	"github.com/gvangeel/yellow/internal/adapter/httpserver"
	"github.com/gvangeel/yellow/internal/adapter/memory"
	"github.com/gvangeel/yellow/internal/adapter/metrics"
	"github.com/gvangeel/yellow/internal/adapter/redis"
	"github.com/gvangeel/yellow/internal/adapter/sqlserver"
	"github.com/gvangeel/yellow/internal/identity"
	"github.com/gvangeel/yellow/internal/platform/config"
	"github.com/gvangeel/yellow/internal/platform/crypto"
	"github.com/gvangeel/yellow/internal/platform/logging"
	"github.com/gvangeel/yellow/internal/platform/version"
	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"
)

const (
	migrationTimeout = 5 * time.Minute
	shutdownTimeout  = 10 * time.Second
)

func runGracefulShutdown(srv *httpserver.Server) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		close(done)
	}()

	return done
}

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

// database bundles what the SQL Server store contributes to the server.
type database struct {
	db       *sql.DB
	users    identity.UserStore
	migrator *sqlserver.Migrator
}

func setupDB(cfg *config.Config) database {
	if cfg.Store == config.StoreMemory {
		slog.Warn("Using in-memory user store; accounts are lost on restart")
		return database{users: memory.NewUserStore()}
	}

	connString := cfg.Database.ConnectionString()
	slog.Info("Using SQL Server", "connection", cfg.Database.Redacted())

	ctx := context.Background()
	if cfg.MigrateOnStartup {
		if err := sqlserver.EnsureDatabase(ctx, connString, cfg.Database.ConnectTimeout); err != nil {
			slog.Error("Failed to ensure database exists", "error", err)
			os.Exit(1)
		}
	}

	db, err := sqlserver.Open(ctx, connString, cfg.Database.ConnectTimeout)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}

	migrator, err := sqlserver.NewMigrator(db)
	if err != nil {
		slog.Error("Failed to create migrator", "error", err)
		os.Exit(1)
	}

	return database{db: db, users: sqlserver.NewUserStore(db), migrator: migrator}
}

// runMigrations applies pending migrations in a scope of its own, before
// the server accepts requests.
func runMigrations(migrator *sqlserver.Migrator) {
	ctx, cancel := context.WithTimeout(context.Background(), migrationTimeout)
	defer cancel()

	if err := migrator.Up(ctx); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}
}

func setupIdentity(cfg *config.Config, users identity.UserStore, clock clockwork.Clock) *identity.Service {
	signingKey, err := crypto.DeriveKey(cfg.SessionSecret, crypto.PurposeTokens, 32)
	if err != nil {
		slog.Error("Failed to derive token signing key", "error", err)
		os.Exit(1)
	}

	opts := identity.DefaultOptions()
	opts.Tokens.SigningKey = signingKey

	svc, err := identity.NewService(users, opts, clock)
	if err != nil {
		slog.Error("Failed to create identity service", "error", err)
		os.Exit(1)
	}
	return svc
}

func setupSessions(cfg *config.Config, redisClient *goredis.Client) sessions.Store {
	keys, err := crypto.SessionKeys(cfg.SessionSecret)
	if err != nil {
		slog.Error("Failed to derive session keys", "error", err)
		os.Exit(1)
	}

	opts := &sessions.Options{
		Path:     "/",
		MaxAge:   int(cfg.SessionMaxAge.Seconds()),
		HttpOnly: true,
		Secure:   !cfg.IsDevelopment(),
		SameSite: http.SameSiteLaxMode,
	}

	if redisClient != nil {
		store := redis.NewSessionStore(redisClient, keys...)
		store.Options = opts
		return store
	}

	store := sessions.NewCookieStore(keys...)
	store.Options = opts
	return store
}

func setupRedis(cfg *config.Config, m *metrics.RedisMetrics) *goredis.Client {
	if cfg.RedisURL == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := redis.NewClient(ctx, cfg.RedisURL, m)
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	slog.Info("Sessions stored in Redis")
	return client
}

func healthChecks(db *sql.DB, redisClient *goredis.Client) []httpserver.HealthCheck {
	var checks []httpserver.HealthCheck
	if db != nil {
		checks = append(checks, httpserver.HealthCheck{Name: "database", Check: db.PingContext})
	}
	if redisClient != nil {
		checks = append(checks, httpserver.HealthCheck{
			Name:  "redis",
			Check: func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
		})
	}
	return checks
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	// Initialize structured logging
	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	info := version.Get()
	slog.Info("Application starting", "env", cfg.AppEnv, "port", cfg.Port, "version", info.Version, "commit", info.Commit)

	registry := metrics.NewRegistry()

	store := setupDB(cfg)
	if store.db != nil {
		defer func() { _ = store.db.Close() }()
		metrics.RegisterDBStats(registry, store.db, cfg.Database.Name)
	}

	redisClient := setupRedis(cfg, metrics.NewRedisMetrics(registry))
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
	}

	deps := httpserver.Deps{
		Identity:        setupIdentity(cfg, store.users, clock),
		Sessions:        setupSessions(cfg, redisClient),
		HealthChecks:    healthChecks(store.db, redisClient),
		Registry:        registry,
		HTTPMetrics:     metrics.NewHTTPMetrics(registry),
		IdentityMetrics: metrics.NewIdentityMetrics(registry),
		Clock:           clock,
	}
	// Leave the interface nil rather than holding a typed nil.
	if store.migrator != nil {
		deps.Migrator = store.migrator
		deps.IsSchemaError = sqlserver.IsMissingObject
	}

	srv, err := httpserver.NewServer(cfg, deps)
	if err != nil {
		slog.Error("Failed to create server", "error", err)
		os.Exit(1)
	}

	if store.migrator != nil && cfg.MigrateOnStartup {
		runMigrations(store.migrator)
	}

	done := runGracefulShutdown(srv)

	slog.Info("Server starting", "port", cfg.Port, "https_port", cfg.HTTPSPort)
	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
}
