package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"

	StoreSQLServer = "sqlserver"
	StoreMemory    = "memory"

	minSessionSecretLen = 32
)

type Config struct {
	AppEnv      string `env:"APP_ENV" default:"development"`
	Port        string `env:"PORT" default:"8080"`
	HTTPSPort   string `env:"HTTPS_PORT"`
	TLSCertFile string `env:"TLS_CERT_FILE"`
	TLSKeyFile  string `env:"TLS_KEY_FILE"`

	Store            string `env:"STORE" default:"sqlserver"`
	MigrateOnStartup bool   `env:"MIGRATE_ON_STARTUP" default:"true"`

	SessionSecret string        `env:"SESSION_SECRET"`
	SessionMaxAge time.Duration `env:"SESSION_MAX_AGE" default:"336h"` // 14 days
	RedisURL      string        `env:"REDIS_URL"`

	HSTSMaxAge time.Duration `env:"HSTS_MAX_AGE" default:"720h"` // 30 days

	LogLevel  string `env:"LOG_LEVEL" default:"info"`
	LogFormat string `env:"LOG_FORMAT" default:"text"`

	// Database is loaded separately so it can be resolved on its own.
	Database Database
}

func (c *Config) IsDevelopment() bool {
	return c.AppEnv == EnvDevelopment
}

// TLSEnabled reports whether an HTTPS listener should be started.
func (c *Config) TLSEnabled() bool {
	return c.HTTPSPort != ""
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}
	return LoadFrom(env.OS)
}

// LoadFrom reads the configuration from src.
func LoadFrom(src env.Source) (*Config, error) {
	opts := &env.Options{Source: src}

	var cfg Config
	if err := env.Load(&cfg, opts); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	db, err := LoadDatabase(src)
	if err != nil {
		return nil, err
	}
	cfg.Database = db

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	if cfg.SessionSecret == "" {
		secret, err := randomSecret()
		if err != nil {
			return nil, err
		}
		cfg.SessionSecret = secret
		slog.Warn("SESSION_SECRET not set, generated an ephemeral one; sessions will not survive a restart")
	}

	return &cfg, nil
}

// LoadDatabase resolves only the database settings.
func LoadDatabase(src env.Source) (Database, error) {
	var db Database
	if err := env.Load(&db, &env.Options{Source: src}); err != nil {
		return Database{}, fmt.Errorf("failed to load database settings: %w", err)
	}
	return db, nil
}

func validate(cfg *Config) error {
	switch cfg.AppEnv {
	case EnvDevelopment, EnvProduction:
	default:
		return fmt.Errorf("APP_ENV must be %q or %q, got %q", EnvDevelopment, EnvProduction, cfg.AppEnv)
	}

	switch cfg.Store {
	case StoreSQLServer, StoreMemory:
	default:
		return fmt.Errorf("STORE must be %q or %q, got %q", StoreSQLServer, StoreMemory, cfg.Store)
	}

	if cfg.AppEnv == EnvProduction {
		if cfg.SessionSecret == "" {
			return errors.New("SESSION_SECRET is required in production")
		}
		if cfg.Store == StoreMemory {
			return errors.New("STORE=memory is not allowed in production")
		}
	}
	if cfg.SessionSecret != "" && len(cfg.SessionSecret) < minSessionSecretLen {
		return fmt.Errorf("SESSION_SECRET must be at least %d bytes, got %d", minSessionSecretLen, len(cfg.SessionSecret))
	}

	if cfg.HTTPSPort != "" && (cfg.TLSCertFile == "" || cfg.TLSKeyFile == "") {
		return errors.New("TLS_CERT_FILE and TLS_KEY_FILE are required when HTTPS_PORT is set")
	}
	if cfg.HTTPSPort == "" && (cfg.TLSCertFile != "" || cfg.TLSKeyFile != "") {
		return errors.New("HTTPS_PORT is required when TLS_CERT_FILE or TLS_KEY_FILE is set")
	}

	if cfg.SessionMaxAge <= 0 {
		return errors.New("SESSION_MAX_AGE must be positive")
	}
	if cfg.Database.ConnectTimeout <= 0 {
		return errors.New("DB_CONNECT_TIMEOUT must be positive")
	}

	return nil
}

func randomSecret() (string, error) {
	b := make([]byte, minSessionSecretLen)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate session secret: %w", err)
	}
	return hex.EncodeToString(b), nil
}
