package httpserver

import (
	"bytes"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"path"
	"strings"

	"github.com/gvangeel/yellow/internal/identity"
	"github.com/gvangeel/yellow/internal/platform/correlation"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// page is the data every template receives.
type page struct {
	Title         string
	User          *identity.User
	CSRFToken     string
	StatusMessage string
	Form          any
	Errors        map[string]string
	Summary       []string
	Data          any
	CorrelationID string
}

// renderer holds one template set per page: the shared layout and partials
// (files starting with "_") plus the page's own "content" block.
type renderer struct {
	pages map[string]*template.Template
}

var templateFuncs = template.FuncMap{
	"hasPrefix": strings.HasPrefix,
}

func newRenderer(files fs.FS) (*renderer, error) {
	base, err := template.New("").Funcs(templateFuncs).ParseFS(files, "templates/_*.html")
	if err != nil {
		return nil, fmt.Errorf("parse layout: %w", err)
	}

	pageFiles, err := fs.Glob(files, "templates/[^_]*.html")
	if err != nil {
		return nil, fmt.Errorf("list pages: %w", err)
	}

	pages := make(map[string]*template.Template, len(pageFiles))
	for _, file := range pageFiles {
		t, err := base.Clone()
		if err != nil {
			return nil, fmt.Errorf("clone layout for %s: %w", file, err)
		}
		if _, err := t.ParseFS(files, file); err != nil {
			return nil, fmt.Errorf("parse %s: %w", file, err)
		}
		pages[strings.TrimSuffix(path.Base(file), ".html")] = t
	}

	return &renderer{pages: pages}, nil
}

func (r *renderer) render(w io.Writer, name string, data *page) error {
	t, ok := r.pages[name]
	if !ok {
		return fmt.Errorf("unknown page %q", name)
	}
	return t.ExecuteTemplate(w, "layout", data)
}

func (s *Server) renderPage(c echo.Context, status int, name string, p page) error {
	p.User = currentUser(c)
	if token, ok := c.Get(middleware.DefaultCSRFConfig.ContextKey).(string); ok {
		p.CSRFToken = token
	}
	p.CorrelationID, _ = correlation.ID(c.Request().Context())

	var buf bytes.Buffer
	if err := s.pages.render(&buf, name, &p); err != nil {
		return fmt.Errorf("failed to render page %s: %w", name, err)
	}
	if err := c.HTMLBlob(status, buf.Bytes()); err != nil {
		return fmt.Errorf("failed to send HTML response: %w", err)
	}
	return nil
}
