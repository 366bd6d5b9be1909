// Package server exposes the rate limiter, the captcha issuer and the
// orchestrator over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"igstories/pkg/captcha"
	"igstories/pkg/config"
	"igstories/pkg/logger"
	"igstories/pkg/models"
	"igstories/pkg/ratelimit"
)

// Orchestrator resolves and downloads stories
type Orchestrator interface {
	ResolveContent(ctx context.Context, handle string, skipCache bool) models.AcquisitionResult
	DownloadContent(ctx context.Context, handle, contentID string) models.DownloadResult
}

// RateLimiter decides whether a caller may proceed
type RateLimiter interface {
	Check(id string) ratelimit.Decision
	ResetFailures(id string)
}

// Captcha issues and validates challenges
type Captcha interface {
	Generate() captcha.Challenge
	Validate(token, answer string) captcha.Validation
}

// Server is the HTTP surface of the engine
type Server struct {
	cfg        config.ServerConfig
	echo       *echo.Echo
	orch       Orchestrator
	limiter    RateLimiter
	captcha    Captcha
	logger     logger.Logger
	started    time.Time
	onShutdown []func()
}

// New builds the server and registers every route
func New(cfg config.ServerConfig, orch Orchestrator, limiter RateLimiter, issuer Captcha, log logger.Logger) *Server {
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		cfg:     cfg,
		echo:    e,
		orch:    orch,
		limiter: limiter,
		captcha: issuer,
		logger:  logger.OrDefault(log).WithField("component", "server"),
		started: time.Now(),
	}

	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: uuid.NewString,
	}))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		Skipper: func(c echo.Context) bool {
			return c.Request().URL.Path == "/healthz" || c.Request().URL.Path == "/metrics"
		},
		LogStatus:    true,
		LogURI:       true,
		LogError:     true,
		LogMethod:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogRemoteIP:  true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			fields := map[string]interface{}{
				"method":     v.Method,
				"uri":        v.URI,
				"status":     v.Status,
				"latency_ms": v.Latency.Milliseconds(),
				"request_id": v.RequestID,
				"remote_ip":  v.RemoteIP,
			}
			if v.Error != nil {
				fields["error"] = v.Error.Error()
				s.logger.WarnWithFields("request failed", fields)
				return nil
			}
			s.logger.InfoWithFields("request completed", fields)
			return nil
		},
	}))
	e.Use(middleware.Recover())

	s.routes()
	return s
}

func (s *Server) routes() {
	s.echo.GET("/healthz", s.handleHealth)
	if s.cfg.EnableMetrics {
		s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	}

	api := s.echo.Group("/api")
	api.GET("/captcha", s.handleCaptcha)
	api.POST("/captcha/verify", s.handleCaptchaVerify)

	limited := api.Group("/stories", s.rateLimit())
	limited.GET("/:handle", s.handleStories)
	limited.GET("/:handle/:id/download", s.handleDownload)
}

// Handler returns the root handler, for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.echo
}

// OnShutdown registers fn to run after the listener has drained
func (s *Server) OnShutdown(fn func()) {
	s.onShutdown = append(s.onShutdown, fn)
}

// Run serves on the configured address until ctx is done, then shuts down
// gracefully
func (s *Server) Run(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.LogComponentStart(s.logger, "server", map[string]interface{}{
			"addr":    s.cfg.Addr,
			"metrics": s.cfg.EnableMetrics,
		})
		if err := s.echo.Start(s.cfg.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()

		err := s.echo.Shutdown(shutdownCtx)
		for _, fn := range s.onShutdown {
			fn()
		}
		logger.LogComponentStop(s.logger, "server", "shutdown")
		return err
	})

	return g.Wait()
}
