// Package http wires the echo server: middleware, authentication, rate
// limiting, and route registration.
package http

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/xiaot623/converse/internal/config"
	v1 "github.com/xiaot623/converse/internal/transport/http/v1"
)

// Server wraps the echo instance with its configuration.
type Server struct {
	echo *echo.Echo
	cfg  *config.Config
}

// unauthenticated paths; everything else requires X-API-Key when an API
// key is configured.
func publicPath(path string) bool {
	switch path {
	case "/health", "/ready", "/metrics":
		return true
	}
	return false
}

// NewServer builds the HTTP server and registers all routes.
func NewServer(cfg *config.Config, handler *v1.Handler) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:  true,
		LogURI:     true,
		LogMethod:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, values middleware.RequestLoggerValues) error {
			log.WithFields(log.Fields{
				"method":  values.Method,
				"uri":     values.URI,
				"status":  values.Status,
				"latency": values.Latency.String(),
			}).Info("request")
			return nil
		},
	}))

	if cfg.APIKey != "" {
		e.Use(middleware.KeyAuthWithConfig(middleware.KeyAuthConfig{
			KeyLookup: "header:X-API-Key",
			Skipper: func(c echo.Context) bool {
				return publicPath(c.Path())
			},
			Validator: func(key string, c echo.Context) (bool, error) {
				return subtle.ConstantTimeCompare([]byte(key), []byte(cfg.APIKey)) == 1, nil
			},
			ErrorHandler: func(err error, c echo.Context) error {
				return c.JSON(http.StatusUnauthorized, map[string]interface{}{
					"error":     "AUTHENTICATION_FAILED",
					"detail":    "Missing or invalid API key.",
					"timestamp": time.Now().UTC(),
				})
			},
		}))
	}

	if cfg.RateLimitPerMinute > 0 {
		e.Use(middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
			Skipper: func(c echo.Context) bool {
				return publicPath(c.Path())
			},
			Store: middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
				Rate:      rate.Limit(float64(cfg.RateLimitPerMinute) / 60.0),
				Burst:     cfg.RateLimitPerMinute,
				ExpiresIn: 3 * time.Minute,
			}),
			IdentifierExtractor: func(c echo.Context) (string, error) {
				// Per API key when present, else per client IP.
				if key := c.Request().Header.Get("X-API-Key"); key != "" {
					return key, nil
				}
				return c.RealIP(), nil
			},
			DenyHandler: func(c echo.Context, identifier string, err error) error {
				return c.JSON(http.StatusTooManyRequests, map[string]interface{}{
					"error":     "RATE_LIMIT_EXCEEDED",
					"detail":    "Too many requests. Please slow down.",
					"timestamp": time.Now().UTC(),
				})
			},
		}))
	}

	handler.RegisterRoutes(e)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	return &Server{echo: e, cfg: cfg}
}

// Start begins serving and blocks until the listener fails or the
// server is shut down.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.cfg.HTTPPort)
	log.WithField("addr", addr).Info("http server listening")
	return s.echo.Start(addr)
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
