// Package ratelimit provides the rate limiting used by the story engine.
//
// Keyed is a per-identifier sliding window with block escalation. Once an
// identifier exceeds its window it is blocked for a fixed duration; after
// repeated blocks it must prove it solved a captcha before ResetFailures
// lets it out early:
//
//	limiter := ratelimit.NewKeyed(ratelimit.Policy{
//	    MaxRequests:      10,
//	    Window:           time.Minute,
//	    BlockDuration:    5 * time.Minute,
//	    CaptchaThreshold: 3,
//	}, nil)
//
//	if d := limiter.Check(clientIP); !d.Allowed {
//	    // reply 429 with d.ResetInSeconds and d.RequireCaptcha
//	}
//
// HostPacer spaces outbound requests per upstream host and blocks callers
// until their turn.
package ratelimit
