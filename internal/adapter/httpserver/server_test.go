package httpserver

import (
	"bytes"
	"context"
	"html"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/sessions"
	"github.com/gvangeel/yellow/internal/adapter/memory"
	"github.com/gvangeel/yellow/internal/adapter/sqlserver"
	"github.com/gvangeel/yellow/internal/identity"
	"github.com/gvangeel/yellow/internal/platform/config"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const (
	testBaseURL       = "http://yellow.test"
	testSecureBaseURL = "https://yellow.test"
	testEmail         = "user@example.com"
	testPassword      = "Passw0rd!"
)

var testStart = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type sentEmail struct {
	To      string
	Subject string
	Body    string
}

type recordingSender struct {
	mu   sync.Mutex
	sent []sentEmail
}

func (r *recordingSender) SendEmail(_ context.Context, to, subject, body string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sentEmail{To: to, Subject: subject, Body: body})
	return nil
}

func (r *recordingSender) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent)
}

var emailLink = regexp.MustCompile(`href='([^']+)'`)

// lastLink returns the path and query of the link in the most recent email.
func (r *recordingSender) lastLink(t *testing.T) string {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	require.NotEmpty(t, r.sent, "no email sent")

	m := emailLink.FindStringSubmatch(r.sent[len(r.sent)-1].Body)
	require.Len(t, m, 2, "email carries no link")
	u, err := url.Parse(html.UnescapeString(m[1]))
	require.NoError(t, err)
	return u.RequestURI()
}

type mockMigrator struct {
	UpFn      func(ctx context.Context) error
	PendingFn func(ctx context.Context) ([]sqlserver.Migration, error)
}

func (m *mockMigrator) Up(ctx context.Context) error {
	if m.UpFn != nil {
		return m.UpFn(ctx)
	}
	return nil
}

func (m *mockMigrator) Pending(ctx context.Context) ([]sqlserver.Migration, error) {
	if m.PendingFn != nil {
		return m.PendingFn(ctx)
	}
	return nil, nil
}

type testEnv struct {
	srv    *Server
	svc    *identity.Service
	store  *memory.UserStore
	clock  *clockwork.FakeClock
	sender *recordingSender
}

type testOption func(cfg *config.Config, deps *Deps)

func withProduction() testOption {
	return func(cfg *config.Config, _ *Deps) {
		cfg.AppEnv = config.EnvProduction
		cfg.SessionSecret = "0123456789abcdef0123456789abcdef"
	}
}

func newTestServer(t *testing.T, opts ...testOption) *testEnv {
	t.Helper()

	cfg := &config.Config{
		AppEnv:        config.EnvDevelopment,
		Port:          "8080",
		SessionMaxAge: 336 * time.Hour,
		HSTSMaxAge:    720 * time.Hour,
	}

	idOpts := identity.DefaultOptions()
	idOpts.BcryptCost = bcrypt.MinCost
	idOpts.Tokens.SigningKey = []byte("0123456789abcdef0123456789abcdef")

	store := memory.NewUserStore()
	clock := clockwork.NewFakeClockAt(testStart)
	svc, err := identity.NewService(store, idOpts, clock)
	require.NoError(t, err)

	sender := &recordingSender{}
	deps := Deps{
		Identity:    svc,
		EmailSender: sender,
		Sessions:    sessions.NewCookieStore([]byte("fedcba9876543210fedcba9876543210")),
		Clock:       clock,
	}
	for _, opt := range opts {
		opt(cfg, &deps)
	}

	srv, err := NewServer(cfg, deps)
	require.NoError(t, err)

	return &testEnv{srv: srv, svc: svc, store: store, clock: clock, sender: sender}
}

// registerConfirmed creates a user with a confirmed email directly through
// the identity service.
func (e *testEnv) registerConfirmed(t *testing.T, email, password string) *identity.User {
	t.Helper()
	ctx := context.Background()

	u, err := e.svc.Register(ctx, email, password)
	require.NoError(t, err)
	token, err := e.svc.GenerateEmailConfirmationToken(ctx, u)
	require.NoError(t, err)
	require.NoError(t, e.svc.ConfirmEmail(ctx, u.ID, token))

	u, err = e.svc.FindByID(ctx, u.ID)
	require.NoError(t, err)
	return u
}

// browser drives the server like a user agent: it keeps cookies between
// requests and fills in the CSRF token on form posts.
type browser struct {
	t    *testing.T
	h    http.Handler
	jar  *cookiejar.Jar
	base string
}

func (e *testEnv) newBrowser(t *testing.T) *browser {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &browser{t: t, h: e.srv, jar: jar, base: testBaseURL}
}

func (b *browser) do(req *http.Request) *httptest.ResponseRecorder {
	b.t.Helper()
	for _, c := range b.jar.Cookies(req.URL) {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	b.h.ServeHTTP(rec, req)
	b.jar.SetCookies(req.URL, rec.Result().Cookies())
	return rec
}

func (b *browser) get(path string) *httptest.ResponseRecorder {
	b.t.Helper()
	return b.do(httptest.NewRequest(http.MethodGet, b.base+path, nil))
}

func (b *browser) post(path string, form url.Values) *httptest.ResponseRecorder {
	b.t.Helper()
	if form == nil {
		form = url.Values{}
	}
	form.Set("csrf_token", b.csrfToken())
	return b.postRaw(path, form)
}

// postRaw posts the form as given, without adding a CSRF token.
func (b *browser) postRaw(path string, form url.Values) *httptest.ResponseRecorder {
	b.t.Helper()
	req := httptest.NewRequest(http.MethodPost, b.base+path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return b.do(req)
}

func (b *browser) cookie(name string) *http.Cookie {
	u, _ := url.Parse(b.base)
	for _, c := range b.jar.Cookies(u) {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func (b *browser) csrfToken() string {
	b.t.Helper()
	if c := b.cookie("csrf_token"); c != nil {
		return c.Value
	}
	rec := b.get("/")
	require.Equal(b.t, http.StatusOK, rec.Code)
	c := b.cookie("csrf_token")
	require.NotNil(b.t, c, "no csrf cookie issued")
	return c.Value
}

func (b *browser) login(email, password string) *httptest.ResponseRecorder {
	b.t.Helper()
	return b.post(loginPath, url.Values{"Email": {email}, "Password": {password}})
}

func setCookieHeader(rec *httptest.ResponseRecorder, name string) string {
	for _, v := range rec.Result().Header.Values("Set-Cookie") {
		if strings.HasPrefix(v, name+"=") {
			return v
		}
	}
	return ""
}

// captureLogs routes the default logger into a buffer for the rest of the test.
func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return &buf
}
