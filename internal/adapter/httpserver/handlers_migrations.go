package httpserver

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
)

// handleApplyMigrations backs the "Apply Migrations" button on the
// developer exception page. Only registered in development.
func (s *Server) handleApplyMigrations(c echo.Context) error {
	if s.migrator == nil {
		return notFound("No database migrations are configured.")
	}

	ctx := c.Request().Context()
	slog.InfoContext(ctx, "Applying migrations on request")
	if err := s.migrator.Up(ctx); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return c.NoContent(http.StatusNoContent)
}
