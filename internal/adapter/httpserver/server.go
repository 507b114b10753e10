package httpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/sessions"
	"github.com/gvangeel/yellow/internal/adapter/metrics"
	"github.com/gvangeel/yellow/internal/adapter/sqlserver"
	"github.com/gvangeel/yellow/internal/identity"
	"github.com/gvangeel/yellow/internal/platform/config"
	"github.com/gvangeel/yellow/web"
	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
)

type identityService interface {
	Options() identity.Options
	Register(ctx context.Context, email, password string) (*identity.User, error)
	PasswordSignIn(ctx context.Context, email, password string, lockoutOnFailure bool) (identity.SignInResult, *identity.User, error)
	GenerateEmailConfirmationToken(ctx context.Context, u *identity.User) (string, error)
	ConfirmEmail(ctx context.Context, userID uuid.UUID, token string) error
	GeneratePasswordResetToken(ctx context.Context, u *identity.User) (string, error)
	ResetPassword(ctx context.Context, email, token, newPassword string) error
	ChangePassword(ctx context.Context, userID uuid.UUID, current, newPassword string) (*identity.User, error)
	UpdatePhoneNumber(ctx context.Context, userID uuid.UUID, phone string) (*identity.User, error)
	FindByID(ctx context.Context, id uuid.UUID) (*identity.User, error)
	FindByEmail(ctx context.Context, email string) (*identity.User, error)
	ValidateSecurityStamp(ctx context.Context, userID uuid.UUID, stamp string) (*identity.User, error)
}

// Migrator applies and reports schema migrations.
type Migrator interface {
	Up(ctx context.Context) error
	Pending(ctx context.Context) ([]sqlserver.Migration, error)
}

// Deps are the collaborators a Server is built from. Migrator,
// IsSchemaError, Registry and the metrics are optional.
type Deps struct {
	Identity        identityService
	EmailSender     identity.EmailSender
	Sessions        sessions.Store
	Migrator        Migrator
	IsSchemaError   func(error) bool
	HealthChecks    []HealthCheck
	Registry        *prometheus.Registry
	HTTPMetrics     *metrics.HTTPMetrics
	IdentityMetrics *metrics.IdentityMetrics
	Clock           clockwork.Clock
}

type Server struct {
	echo   *echo.Echo
	config *config.Config

	identity      identityService
	sender        identity.EmailSender
	sessions      sessions.Store
	migrator      Migrator
	isSchemaError func(error) bool
	forms         *formValidator
	pages         *renderer

	healthChecks    []HealthCheck
	registry        *prometheus.Registry
	httpMetrics     *metrics.HTTPMetrics
	identityMetrics *metrics.IdentityMetrics

	clock     clockwork.Clock
	startTime time.Time
}

func NewServer(cfg *config.Config, deps Deps) (*Server, error) {
	if deps.Identity == nil || deps.Sessions == nil {
		return nil, errors.New("identity service and session store are required")
	}

	pages, err := newRenderer(web.TemplateFiles)
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	sender := deps.EmailSender
	if sender == nil {
		sender = identity.LogEmailSender{}
	}
	clock := deps.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	srv := &Server{
		echo:            e,
		config:          cfg,
		identity:        deps.Identity,
		sender:          sender,
		sessions:        deps.Sessions,
		migrator:        deps.Migrator,
		isSchemaError:   deps.IsSchemaError,
		forms:           newFormValidator(),
		pages:           pages,
		healthChecks:    deps.HealthChecks,
		registry:        deps.Registry,
		httpMetrics:     deps.HTTPMetrics,
		identityMetrics: deps.IdentityMetrics,
		clock:           clock,
		startTime:       clock.Now(),
	}

	e.HTTPErrorHandler = srv.handleHTTPError
	srv.registerRoutes()

	return srv, nil
}

// Start serves plain HTTP on PORT and, when TLS is configured, HTTPS on
// HTTPS_PORT. It returns nil after Shutdown and the first listener error
// otherwise, closing the other listener.
func (s *Server) Start() error {
	var g errgroup.Group

	g.Go(func() error {
		slog.Info("Starting server", "port", s.config.Port, "scheme", "http")
		return s.serve(func() error { return s.echo.Start(":" + s.config.Port) })
	})

	if s.config.TLSEnabled() {
		g.Go(func() error {
			slog.Info("Starting server", "port", s.config.HTTPSPort, "scheme", "https")
			return s.serve(func() error {
				return s.echo.StartTLS(":"+s.config.HTTPSPort, s.config.TLSCertFile, s.config.TLSKeyFile)
			})
		})
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

func (s *Server) serve(listen func() error) error {
	err := listen()
	if err == nil || errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	_ = s.echo.Close()
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}

// ServeHTTP lets the server be exercised without a listener.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

func (s *Server) getBaseURL(c echo.Context) string {
	return fmt.Sprintf("%s://%s", c.Scheme(), c.Request().Host)
}
