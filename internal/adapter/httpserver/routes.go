package httpserver

import (
	"io/fs"
	"net/http"

	"github.com/gvangeel/yellow/web"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// registerRoutes builds the pipeline, outermost first: correlation and
// logging, error pages and secure headers, HTTPS redirection, static
// files, CSRF, authentication, then the routes themselves.
func (s *Server) registerRoutes() {
	s.echo.Pre(correlationMiddleware)
	if s.config.TLSEnabled() {
		s.echo.Pre(httpsRedirect(s.config.HTTPSPort))
	}

	// Metrics wrap the logger so they see the status the error handler wrote.
	if s.httpMetrics != nil {
		s.echo.Use(s.httpMetrics.Middleware())
	}
	s.echo.Use(requestLoggerMiddleware())
	s.echo.Use(middleware.Recover())
	s.echo.Use(middleware.SecureWithConfig(middleware.SecureConfig{
		XSSProtection:      "",
		ContentTypeNosniff: "nosniff",
		XFrameOptions:      "DENY",
		ContentSecurityPolicy: "default-src 'self'; " +
			"script-src 'self'; " +
			"style-src 'self'; " +
			"frame-ancestors 'none'",
		ReferrerPolicy: "strict-origin-when-cross-origin",
	}))
	if !s.config.IsDevelopment() {
		// SecureConfig only sends HSTS over TLS or behind a TLS-terminating proxy.
		s.echo.Use(middleware.SecureWithConfig(middleware.SecureConfig{
			Skipper:    isLoopbackHost,
			HSTSMaxAge: int(s.config.HSTSMaxAge.Seconds()),
		}))
	}

	staticFiles, err := fs.Sub(web.StaticFiles, "static")
	if err != nil {
		panic(err) // embedded directory name is a constant
	}
	s.echo.Use(middleware.StaticWithConfig(middleware.StaticConfig{
		Filesystem: http.FS(staticFiles),
	}))

	s.echo.Use(s.csrfMiddleware())
	s.echo.Use(s.authenticate)

	s.registerHealthRoutes()
	s.registerPageRoutes()
	s.registerAccountRoutes()
	if s.config.IsDevelopment() {
		s.echo.POST("/ApplyDatabaseMigrations", s.handleApplyMigrations)
	}
}

func (s *Server) registerPageRoutes() {
	s.echo.GET("/", s.handleIndex)
	s.echo.GET("/Privacy", s.handlePrivacy)
	s.echo.GET("/Error", s.handleError)
}

func (s *Server) registerAccountRoutes() {
	limited := newRateLimiter(identityRatePerSecond, identityBurst)

	account := s.echo.Group(accountPrefix)
	account.GET("/Register", s.handleRegisterPage)
	account.POST("/Register", s.handleRegister, limited)
	account.GET("/RegisterConfirmation", s.handleRegisterConfirmation)
	account.GET("/ConfirmEmail", s.handleConfirmEmail)
	account.GET("/ResendEmailConfirmation", s.handleResendConfirmationPage)
	account.POST("/ResendEmailConfirmation", s.handleResendConfirmation, limited)
	account.GET("/Login", s.handleLoginPage)
	account.POST("/Login", s.handleLogin, limited)
	account.POST("/Logout", s.handleLogout)
	account.GET("/Lockout", s.handleLockout)
	account.GET("/ForgotPassword", s.handleForgotPasswordPage)
	account.POST("/ForgotPassword", s.handleForgotPassword, limited)
	account.GET("/ForgotPasswordConfirmation", s.handleForgotPasswordConfirmation)
	account.GET("/ResetPassword", s.handleResetPasswordPage)
	account.POST("/ResetPassword", s.handleResetPassword, limited)
	account.GET("/ResetPasswordConfirmation", s.handleResetPasswordConfirmation)

	manage := account.Group("/Manage", s.requireAuth)
	manage.GET("", s.handleManagePage)
	manage.POST("", s.handleManage, limited)
	manage.GET("/ChangePassword", s.handleChangePasswordPage)
	manage.POST("/ChangePassword", s.handleChangePassword, limited)
}

func (s *Server) csrfMiddleware() echo.MiddlewareFunc {
	return middleware.CSRFWithConfig(middleware.CSRFConfig{
		Skipper: func(c echo.Context) bool {
			return isProbePath(c.Request().URL.Path)
		},
		TokenLookup:    "form:csrf_token,header:X-CSRF-Token",
		CookieName:     "csrf_token",
		CookiePath:     "/",
		CookieMaxAge:   int(s.config.SessionMaxAge.Seconds()),
		CookieHTTPOnly: true,
		CookieSecure:   !s.config.IsDevelopment(),
		CookieSameSite: http.SameSiteStrictMode,
	})
}
