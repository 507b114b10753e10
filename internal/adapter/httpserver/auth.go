package httpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/sessions"
	"github.com/gvangeel/yellow/internal/identity"
	"github.com/labstack/echo/v4"
)

// Auth cookie
const (
	authSessionName      = "yellow_identity"
	sessionKeyUserID     = "uid"
	sessionKeyStamp      = "stamp"
	sessionKeyPersistent = "persistent"
	sessionKeyStatus     = "status"

	contextKeyUser = "user"
)

func currentUser(c echo.Context) *identity.User {
	u, _ := c.Get(contextKeyUser).(*identity.User)
	return u
}

// authenticate resolves the auth cookie into a user. The security stamp
// stored in the cookie must match the stored user's, so a password change
// or reset signs out every other browser on its next request.
func (s *Server) authenticate(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()

		session, err := s.sessions.Get(c.Request(), authSessionName)
		if err != nil {
			slog.DebugContext(ctx, "Ignoring unreadable auth cookie", "error", err)
			return next(c)
		}

		rawID, _ := session.Values[sessionKeyUserID].(string)
		if rawID == "" {
			return next(c)
		}
		stamp, _ := session.Values[sessionKeyStamp].(string)

		userID, err := uuid.Parse(rawID)
		if err != nil {
			return s.signOutAndContinue(c, session, next)
		}

		u, err := s.identity.ValidateSecurityStamp(ctx, userID, stamp)
		switch {
		case errors.Is(err, identity.ErrInvalidSecurityStamp):
			slog.InfoContext(ctx, "Signing out session with stale security stamp", "user_id", rawID)
			return s.signOutAndContinue(c, session, next)
		case err != nil:
			return fmt.Errorf("failed to validate security stamp: %w", err)
		}

		c.Set(contextKeyUser, u)
		return next(c)
	}
}

func (s *Server) signOutAndContinue(c echo.Context, session *sessions.Session, next echo.HandlerFunc) error {
	if err := s.expireSession(c, session); err != nil {
		return err
	}
	return next(c)
}

// requireAuth sends anonymous callers to the login page, remembering where
// they were headed.
func (s *Server) requireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if currentUser(c) == nil {
			target := loginPath + "?ReturnUrl=" + url.QueryEscape(c.Request().URL.RequestURI())
			return c.Redirect(http.StatusFound, target)
		}
		return next(c)
	}
}

// sessionDeleter is implemented by server-side stores that can drop a
// session's stored values by ID.
type sessionDeleter interface {
	Delete(ctx context.Context, id string) error
}

// signIn issues a fresh auth cookie for u. A persistent sign-in survives
// browser restarts for SESSION_MAX_AGE; otherwise the cookie lives as long
// as the browser session.
func (s *Server) signIn(c echo.Context, u *identity.User, persistent bool) error {
	session, _ := s.sessions.Get(c.Request(), authSessionName)

	// New ID so a session fixed before login is not carried over.
	if d, ok := s.sessions.(sessionDeleter); ok && session.ID != "" {
		if err := d.Delete(c.Request().Context(), session.ID); err != nil {
			return fmt.Errorf("failed to discard previous session: %w", err)
		}
	}
	session.ID = ""
	session.Values = map[any]any{
		sessionKeyUserID:     u.ID.String(),
		sessionKeyStamp:      u.SecurityStamp,
		sessionKeyPersistent: persistent,
	}
	return s.saveSession(c, session)
}

// refreshSignIn rewrites the cookie after the current user's security stamp
// changed, keeping the caller signed in.
func (s *Server) refreshSignIn(c echo.Context, u *identity.User) error {
	session, _ := s.sessions.Get(c.Request(), authSessionName)
	session.Values[sessionKeyUserID] = u.ID.String()
	session.Values[sessionKeyStamp] = u.SecurityStamp
	return s.saveSession(c, session)
}

func (s *Server) signOut(c echo.Context) error {
	session, _ := s.sessions.Get(c.Request(), authSessionName)
	return s.expireSession(c, session)
}

func (s *Server) expireSession(c echo.Context, session *sessions.Session) error {
	session.Values = map[any]any{}
	session.Options = s.cookieOptions(false)
	session.Options.MaxAge = -1
	if err := session.Save(c.Request(), c.Response()); err != nil {
		return fmt.Errorf("failed to expire auth session: %w", err)
	}
	return nil
}

func (s *Server) saveSession(c echo.Context, session *sessions.Session) error {
	persistent, _ := session.Values[sessionKeyPersistent].(bool)
	session.Options = s.cookieOptions(persistent)
	if err := session.Save(c.Request(), c.Response()); err != nil {
		return fmt.Errorf("failed to save auth session: %w", err)
	}
	return nil
}

func (s *Server) cookieOptions(persistent bool) *sessions.Options {
	maxAge := 0
	if persistent {
		maxAge = int(s.config.SessionMaxAge.Seconds())
	}
	return &sessions.Options{
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   !s.config.IsDevelopment(),
		SameSite: http.SameSiteLaxMode,
	}
}

// setStatus stores a one-time message shown by the next page that renders
// a status area.
func (s *Server) setStatus(c echo.Context, message string) error {
	session, _ := s.sessions.Get(c.Request(), authSessionName)
	session.Values[sessionKeyStatus] = message
	return s.saveSession(c, session)
}

func (s *Server) popStatus(c echo.Context) (string, error) {
	session, _ := s.sessions.Get(c.Request(), authSessionName)
	message, ok := session.Values[sessionKeyStatus].(string)
	if !ok {
		return "", nil
	}
	delete(session.Values, sessionKeyStatus)
	if err := s.saveSession(c, session); err != nil {
		return "", err
	}
	return message, nil
}

// isLocalURL reports whether u is a path on this site, rejecting
// protocol-relative ("//host") and backslash ("/\host") forms browsers
// treat as absolute.
func isLocalURL(u string) bool {
	if u == "" || u[0] != '/' {
		return false
	}
	if strings.ContainsAny(u, "\r\n\t") {
		return false
	}
	if len(u) == 1 {
		return true
	}
	return u[1] != '/' && u[1] != '\\'
}

func localRedirect(c echo.Context, target string) error {
	if !isLocalURL(target) {
		target = "/"
	}
	return c.Redirect(http.StatusFound, target)
}

func returnURL(c echo.Context) string {
	if v := c.QueryParam("returnUrl"); v != "" {
		return v
	}
	return c.QueryParam("ReturnUrl")
}
