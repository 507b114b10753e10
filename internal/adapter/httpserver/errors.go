package httpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gvangeel/yellow/internal/adapter/sqlserver"
	"github.com/gvangeel/yellow/internal/identity"
	apperrors "github.com/gvangeel/yellow/internal/platform/errors"
	"github.com/labstack/echo/v4"
)

const pendingMigrationsTimeout = 3 * time.Second

type errorPage struct {
	Message string
}

type developerException struct {
	Headline string
	Status   int
	Method   string
	Path     string
	Chain    []string
	Pending  []sqlserver.Migration
}

// handleHTTPError is the single place where handler errors become
// responses: the developer exception page in development, the generic
// error page otherwise.
func (s *Server) handleHTTPError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status, structuredErr := classifyError(err)
	logError(c, structuredErr, status)

	var renderErr error
	switch {
	case c.Request().Method == http.MethodHead:
		renderErr = c.NoContent(status)
	case s.config.IsDevelopment():
		renderErr = s.renderDeveloperException(c, status, err)
	default:
		renderErr = s.renderPage(c, status, "error", page{
			Title: "Error",
			Data:  errorPage{Message: publicMessage(structuredErr, status)},
		})
	}

	if renderErr != nil {
		slog.ErrorContext(c.Request().Context(), "Failed to render error page", "error", renderErr)
		_ = c.String(status, http.StatusText(status))
	}
}

func (s *Server) renderDeveloperException(c echo.Context, status int, err error) error {
	data := developerException{
		Headline: "An unhandled exception occurred while processing the request.",
		Status:   status,
		Method:   c.Request().Method,
		Path:     c.Request().URL.Path,
	}
	if status < http.StatusInternalServerError {
		data.Headline = http.StatusText(status)
	}
	for _, e := range apperrors.Chain(err) {
		data.Chain = append(data.Chain, e.Error())
	}

	if status >= http.StatusInternalServerError && s.migrator != nil && s.isSchemaError != nil && s.isSchemaError(err) {
		data.Headline = "A database operation failed while processing the request."

		ctx, cancel := context.WithTimeout(c.Request().Context(), pendingMigrationsTimeout)
		defer cancel()
		pending, pendingErr := s.migrator.Pending(ctx)
		if pendingErr != nil {
			slog.WarnContext(ctx, "Failed to list pending migrations", "error", pendingErr)
		}
		data.Pending = pending
	}

	return s.renderPage(c, status, "developer_exception", page{Title: http.StatusText(status), Data: data})
}

// classifyError maps err to the response status and a structured error
// used for logging. Identity sentinels that escape a handler are mapped
// here so they never surface as 500s.
func classifyError(err error) (int, *apperrors.Error) {
	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Code, WrapHTTPError(httpErr)
	}

	switch {
	case errors.Is(err, identity.ErrUserNotFound):
		err = apperrors.NotFoundError("Unable to load user.")
	case errors.Is(err, identity.ErrConcurrencyFailure):
		err = apperrors.ConflictError("The record was changed by someone else. Reload and try again.", err)
	case errors.Is(err, identity.ErrDuplicateEmail), errors.Is(err, identity.ErrDuplicateUserName):
		err = apperrors.ConflictError("The email address is already registered.", err)
	case errors.Is(err, identity.ErrInvalidToken):
		err = apperrors.ValidationError("Invalid token.")
	}

	structuredErr := apperrors.AsStructuredError(err)
	return structuredErr.HTTPStatus(), structuredErr
}

func publicMessage(err *apperrors.Error, status int) string {
	if status == http.StatusNotFound {
		return "The page you requested could not be found."
	}
	return err.PublicMessage()
}

func logError(c echo.Context, err *apperrors.Error, status int) {
	ctx := c.Request().Context()
	attrs := []any{
		"error_type", err.Type,
		"message", err.Message,
		"path", c.Request().URL.Path,
		"method", c.Request().Method,
		"status", status,
	}

	for k, v := range err.Context {
		attrs = append(attrs, k, v)
	}

	if u := currentUser(c); u != nil {
		attrs = append(attrs, "user_id", u.ID.String())
	}

	switch err.Type {
	case apperrors.TypeValidation:
		slog.InfoContext(ctx, "Validation error", attrs...)
	case apperrors.TypeNotFound:
		slog.InfoContext(ctx, "Not found", attrs...)
	case apperrors.TypeForbidden:
		slog.WarnContext(ctx, "Forbidden", attrs...)
	case apperrors.TypeConflict:
		slog.WarnContext(ctx, "Conflict", attrs...)
	case apperrors.TypeInternal:
		if err.Cause != nil {
			attrs = append(attrs, "cause", err.Cause)
		}
		slog.ErrorContext(ctx, "Internal error", attrs...)
	case apperrors.TypeExternal:
		if err.Cause != nil {
			attrs = append(attrs, "cause", err.Cause)
		}
		slog.ErrorContext(ctx, "External service error", attrs...)
	default:
		slog.ErrorContext(ctx, "Unknown error type", attrs...)
	}
}

// WrapHTTPError converts an echo error (router 404/405, CSRF, rate limit)
// into a structured error.
func WrapHTTPError(httpErr *echo.HTTPError) *apperrors.Error {
	message := http.StatusText(httpErr.Code)
	if msg, ok := httpErr.Message.(string); ok && msg != "" {
		message = msg
	}

	var errType apperrors.ErrorType
	switch {
	case httpErr.Code == http.StatusNotFound:
		errType = apperrors.TypeNotFound
	case httpErr.Code == http.StatusForbidden:
		errType = apperrors.TypeForbidden
	case httpErr.Code == http.StatusConflict:
		errType = apperrors.TypeConflict
	case httpErr.Code == http.StatusBadGateway, httpErr.Code == http.StatusServiceUnavailable:
		errType = apperrors.TypeExternal
	case httpErr.Code >= 400 && httpErr.Code < 500:
		errType = apperrors.TypeValidation
	default:
		errType = apperrors.TypeInternal
	}

	err := &apperrors.Error{
		Type:    errType,
		Message: message,
		Context: make(map[string]any),
	}
	if httpErr.Internal != nil {
		err.Cause = httpErr.Internal
	}
	return err
}

func notFound(format string, args ...any) error {
	return apperrors.NotFoundError(fmt.Sprintf(format, args...))
}
