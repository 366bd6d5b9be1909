package server

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"igstories/pkg/logger"
	"igstories/pkg/metrics"
)

// limiterName labels caller-facing limiter metrics
const limiterName = "download"

// rateLimit rejects callers the limiter blocks. The rejection body is the
// limiter decision so clients can show a captcha when it asks for one.
func (s *Server) rateLimit() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ip := c.RealIP()
			d := s.limiter.Check(ip)
			metrics.RecordRateLimit(limiterName, d.Allowed, d.RequireCaptcha)

			c.Response().Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
			if d.Allowed {
				return next(c)
			}

			logger.LogRateLimit(s.logger, limiterName, ip, d.Blocked, d.RequireCaptcha, d.ResetIn)
			c.Response().Header().Set("Retry-After", strconv.Itoa(max(d.ResetInSeconds, 1)))
			return c.JSON(http.StatusTooManyRequests, d)
		}
	}
}
