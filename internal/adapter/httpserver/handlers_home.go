package httpserver

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

func (s *Server) handleIndex(c echo.Context) error {
	return s.renderPage(c, http.StatusOK, "index", page{Title: "Home page"})
}

func (s *Server) handlePrivacy(c echo.Context) error {
	return s.renderPage(c, http.StatusOK, "privacy", page{Title: "Privacy Policy"})
}

func (s *Server) handleError(c echo.Context) error {
	return s.renderPage(c, http.StatusOK, "error", page{
		Title: "Error",
		Data:  errorPage{Message: "An error occurred while processing your request."},
	})
}
