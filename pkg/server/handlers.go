package server

import (
	"fmt"
	"mime"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	errs "igstories/pkg/errors"
	"igstories/pkg/instagram"
	"igstories/pkg/metrics"
	"igstories/pkg/models"
)

type verifyRequest struct {
	Token  string `json:"token" form:"token"`
	Answer string `json:"answer" form:"answer"`
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Type    string `json:"type"`
}

type storiesResponse struct {
	Success bool                 `json:"success"`
	Handle  string               `json:"handle"`
	Source  string               `json:"source"`
	Count   int                  `json:"count"`
	Items   []models.ContentItem `json:"items"`
	Account *models.AccountInfo  `json:"account,omitempty"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status": "ok",
		"uptime": time.Since(s.started).Round(time.Second).String(),
	})
}

func (s *Server) handleCaptcha(c echo.Context) error {
	return c.JSON(http.StatusOK, s.captcha.Generate())
}

func (s *Server) handleCaptchaVerify(c echo.Context) error {
	var req verifyRequest
	if err := c.Bind(&req); err != nil || req.Token == "" {
		return c.JSON(http.StatusBadRequest, errorResponse{
			Error: "token and answer are required",
			Type:  string(errs.ErrorTypeCaptchaInvalid),
		})
	}

	v := s.captcha.Validate(req.Token, req.Answer)
	metrics.RecordCaptcha(v.Valid, v.Reason)
	if !v.Valid {
		s.logger.InfoWithFields("captcha rejected", map[string]interface{}{
			"remote_ip": c.RealIP(),
			"reason":    v.Reason,
		})
		return c.JSON(http.StatusBadRequest, v)
	}

	s.limiter.ResetFailures(c.RealIP())
	return c.JSON(http.StatusOK, v)
}

// handleParam returns the sanitized :handle parameter, or false after
// writing a 400 when it is not a valid handle
func handleParam(c echo.Context) (string, bool) {
	handle := instagram.SanitizeHandle(c.Param("handle"))
	if instagram.IsValidHandle(handle) {
		return handle, true
	}
	_ = c.JSON(http.StatusBadRequest, errorResponse{
		Success: false,
		Error:   "Invalid username. Use letters, numbers, periods and underscores only.",
		Type:    "invalid_handle",
	})
	return "", false
}

func (s *Server) handleStories(c echo.Context) error {
	handle, ok := handleParam(c)
	if !ok {
		return nil
	}
	refresh := c.QueryParam("refresh") == "1" || c.QueryParam("refresh") == "true"

	res := s.orch.ResolveContent(c.Request().Context(), handle, refresh)
	if !res.Success {
		return writeError(c, res.Err)
	}

	return c.JSON(http.StatusOK, storiesResponse{
		Success: true,
		Handle:  handle,
		Source:  res.Source,
		Count:   len(res.Items),
		Items:   res.Items,
		Account: res.Account,
	})
}

func (s *Server) handleDownload(c echo.Context) error {
	handle, ok := handleParam(c)
	if !ok {
		return nil
	}

	res := s.orch.DownloadContent(c.Request().Context(), handle, c.Param("id"))
	if !res.Success {
		return writeError(c, res.Err)
	}

	contentType := res.ContentType
	if contentType == "" {
		contentType = mime.TypeByExtension("." + res.Item.Extension())
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", res.Filename))
	return c.Blob(http.StatusOK, contentType, res.Data)
}

// statusFor maps an error type onto the HTTP status returned to clients
func statusFor(t errs.ErrorType) int {
	switch t {
	case errs.ErrorTypeNotFound, errs.ErrorTypeNoContent:
		return http.StatusNotFound
	case errs.ErrorTypePrivateAccount:
		return http.StatusForbidden
	case errs.ErrorTypeRateLimited:
		return http.StatusTooManyRequests
	case errs.ErrorTypeCaptchaInvalid:
		return http.StatusBadRequest
	case errs.ErrorTypeAuthRequired:
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

func writeError(c echo.Context, e *errs.Error) error {
	if e == nil {
		e = errs.New(errs.ErrorTypeUpstreamUnavailable, "%s", errs.UserMessage(errs.ErrorTypeUpstreamUnavailable))
	}
	return c.JSON(statusFor(e.Type), errorResponse{
		Success: false,
		Error:   errs.UserMessage(e.Type),
		Type:    string(e.Type),
	})
}
