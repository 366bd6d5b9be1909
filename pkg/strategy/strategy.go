package strategy

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"

	errs "igstories/pkg/errors"
	"igstories/pkg/logger"
	"igstories/pkg/models"
)

// Strategy names, also used as AcquisitionResult.Source
const (
	NameBrowser = "Browser"
	NameSession = "Session"
	NameAPI     = "API"
	NameScrape  = "Scrape"
)

// Strategy resolves the active stories of one account. Attempt never panics
// and never returns a partially valid result.
type Strategy interface {
	Name() string
	Attempt(ctx context.Context, handle, contentID string) models.AcquisitionResult
}

// HTTPBased is implemented by strategies that call the platform over plain
// HTTP. The orchestrator paces these and stops running them once one of
// them reports an authoritative negative.
type HTTPBased interface {
	HTTPBased() bool
}

// IsHTTPBased reports whether s calls the platform over plain HTTP
func IsHTTPBased(s Strategy) bool {
	h, ok := s.(HTTPBased)
	return ok && h.HTTPBased()
}

// fail builds a failed result of the given type
func fail(source string, t errs.ErrorType, format string, args ...interface{}) models.AcquisitionResult {
	return models.Failed(source, errs.New(t, format, args...))
}

// failWith converts err into a failed result. Cancellation of ctx is
// reported as UpstreamUnavailable so it never outranks a real finding.
func failWith(ctx context.Context, source string, err error) models.AcquisitionResult {
	if ctx.Err() != nil && !isTyped(err) {
		return models.Failed(source, errs.Wrap(errs.ErrorTypeUpstreamUnavailable, ctx.Err(), "request cancelled"))
	}
	return models.Failed(source, errs.As(err))
}

func isTyped(err error) bool {
	var e *errs.Error
	return errors.As(err, &e)
}

// recoverAttempt turns a panic inside Attempt into a failed result
func recoverAttempt(source string, log logger.Logger, res *models.AcquisitionResult) {
	r := recover()
	if r == nil {
		return
	}
	log.ErrorWithFields("strategy panicked", map[string]interface{}{
		"strategy": source,
		"panic":    fmt.Sprint(r),
		"stack":    string(debug.Stack()),
	})
	*res = fail(source, errs.ErrorTypeUpstreamUnavailable, "internal error in %s strategy", source)
}
