// Package logger provides the structured logging interface used across the
// story acquisition engine.
//
// It wraps zerolog with a field-oriented API:
//
//	log := logger.GetLogger().WithField("component", "scraper")
//	log.InfoWithFields("Strategy succeeded", map[string]interface{}{
//	    "handle":   "nasa",
//	    "strategy": "API",
//	    "items":    3,
//	})
//
// Console output is colored; Format "json" switches to raw JSON lines.
// Tests use NewTestLogger to capture messages or NewNopLogger to discard them.
package logger
