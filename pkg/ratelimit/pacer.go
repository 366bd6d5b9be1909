package ratelimit

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// HostPacer spaces outbound requests so each upstream host sees at most
// one request per interval
type HostPacer struct {
	limiters map[string]*rate.Limiter
	mu       sync.RWMutex
	interval time.Duration
}

// NewHostPacer creates a pacer. A non-positive interval disables pacing.
func NewHostPacer(interval time.Duration) *HostPacer {
	return &HostPacer{
		limiters: make(map[string]*rate.Limiter),
		interval: interval,
	}
}

// Wait blocks until a request to rawURL's host may be sent or ctx ends
func (h *HostPacer) Wait(ctx context.Context, rawURL string) error {
	if h == nil || h.interval <= 0 {
		return ctx.Err()
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return err
	}
	if parsed.Host == "" {
		return &url.Error{Op: "parse", URL: rawURL, Err: errors.New("missing host in URL")}
	}

	return h.limiterFor(parsed.Host).Wait(ctx)
}

func (h *HostPacer) limiterFor(host string) *rate.Limiter {
	h.mu.RLock()
	limiter, ok := h.limiters[host]
	h.mu.RUnlock()
	if ok {
		return limiter
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if limiter, ok := h.limiters[host]; ok {
		return limiter
	}
	limiter = rate.NewLimiter(rate.Every(h.interval), 1)
	h.limiters[host] = limiter
	return limiter
}
