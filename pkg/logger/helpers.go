package logger

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// LogRequest logs outbound HTTP request information
func LogRequest(log Logger, method, url string, statusCode int, duration time.Duration) {
	fields := map[string]interface{}{
		"method":      method,
		"url":         url,
		"status_code": statusCode,
		"duration_ms": duration.Milliseconds(),
	}

	switch {
	case statusCode >= 500 || statusCode == 0:
		log.ErrorWithFields("HTTP request server error", fields)
	case statusCode >= 400:
		log.WarnWithFields("HTTP request client error", fields)
	default:
		log.DebugWithFields("HTTP request completed", fields)
	}
}

// LogStrategyAttempt logs the outcome of one acquisition strategy
func LogStrategyAttempt(log Logger, handle, strategy string, items int, err error, elapsed time.Duration) {
	l := log.WithFields(map[string]interface{}{
		"handle":     handle,
		"strategy":   strategy,
		"elapsed_ms": elapsed.Milliseconds(),
	})
	if err != nil {
		l.WithError(err).Warn("Strategy failed")
		return
	}
	l.WithField("items", items).Info("Strategy succeeded")
}

// LogRateLimit logs a rejected or blocked identifier
func LogRateLimit(log Logger, limiter, identifier string, blocked, requireCaptcha bool, resetIn time.Duration) {
	log.WithFields(map[string]interface{}{
		"limiter":         limiter,
		"identifier":      identifier,
		"blocked":         blocked,
		"require_captcha": requireCaptcha,
		"reset_in":        resetIn,
		"action":          "rate_limited",
	}).Warn("Rate limit reached")
}

// LogDownload logs download operations
func LogDownload(log Logger, handle, contentID string, size int, err error) {
	l := log.WithFields(map[string]interface{}{
		"handle":     handle,
		"content_id": contentID,
		"bytes":      size,
	})
	if err != nil {
		l.WithError(err).Error("Download failed")
		return
	}
	l.Info("Download completed")
}

// LogComponentStart logs when a component starts
func LogComponentStart(log Logger, component string, config map[string]interface{}) {
	l := log.WithField("component", component)
	if len(config) > 0 {
		l = l.WithFields(config)
	}
	l.Info("Component started")
}

// LogComponentStop logs when a component stops
func LogComponentStop(log Logger, component string, reason string) {
	log.WithFields(map[string]interface{}{
		"component": component,
		"reason":    reason,
	}).Info("Component stopped")
}

// NewNopLogger creates a no-operation logger for testing
func NewNopLogger() Logger {
	return &nopLogger{}
}

// nopLogger is a logger that does nothing (useful for testing)
type nopLogger struct{}

func (n *nopLogger) Debug(msg string)                                          {}
func (n *nopLogger) Info(msg string)                                           {}
func (n *nopLogger) Warn(msg string)                                           {}
func (n *nopLogger) Error(msg string)                                          {}
func (n *nopLogger) Fatal(msg string)                                          {}
func (n *nopLogger) WithField(key string, value interface{}) Logger            { return n }
func (n *nopLogger) WithFields(fields map[string]interface{}) Logger           { return n }
func (n *nopLogger) WithError(err error) Logger                                { return n }
func (n *nopLogger) WithContext(ctx context.Context) Logger                    { return n }
func (n *nopLogger) DebugWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) InfoWithFields(msg string, fields map[string]interface{})  {}
func (n *nopLogger) WarnWithFields(msg string, fields map[string]interface{})  {}
func (n *nopLogger) ErrorWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) FatalWithFields(msg string, fields map[string]interface{}) {}

func (n *nopLogger) GetZerolog() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}
