package httpserver

import (
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/gvangeel/yellow/internal/platform/correlation"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// correlationMiddleware reuses a well-formed X-Correlation-ID from the
// caller or assigns a new one, and echoes it on the response.
func correlationMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		id := correlation.FromHeader(c.Request().Header.Get(correlation.HeaderName))
		c.Response().Header().Set(correlation.HeaderName, id)

		ctx := correlation.WithID(c.Request().Context(), id)
		c.SetRequest(c.Request().WithContext(ctx))
		return next(c)
	}
}

func requestLoggerMiddleware() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:   true,
		LogURI:      true,
		LogMethod:   true,
		LogLatency:  true,
		LogRemoteIP: true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []any{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency,
				"remote_ip", v.RemoteIP,
			}
			if v.Error != nil {
				attrs = append(attrs, "error", v.Error)
			}
			slog.InfoContext(c.Request().Context(), "Request", attrs...)
			return nil
		},
	})
}

// httpsRedirect sends plain-HTTP requests to the HTTPS listener with a 307
// so the method and body survive. Probes and metrics stay reachable over HTTP.
func httpsRedirect(httpsPort string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if c.Scheme() == "https" || isProbePath(c.Request().URL.Path) {
				return next(c)
			}

			req := c.Request()
			host := req.Host
			if h, _, err := net.SplitHostPort(host); err == nil {
				host = h
			}
			if httpsPort != "443" {
				host = net.JoinHostPort(host, httpsPort)
			}
			return c.Redirect(http.StatusTemporaryRedirect, "https://"+host+req.URL.RequestURI())
		}
	}
}

func isProbePath(p string) bool {
	return strings.HasPrefix(p, "/health/") || p == "/metrics" || p == "/version"
}

// isLoopbackHost reports whether the request targets localhost, for which
// browsers must never cache an HSTS policy.
func isLoopbackHost(c echo.Context) bool {
	host := c.Request().Host
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
