// Package metrics provides Prometheus metrics for igstories.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "igstories"

var (
	// StrategyAttempts counts acquisition attempts by strategy and outcome.
	StrategyAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "strategy_attempts_total",
			Help:      "Total number of acquisition strategy attempts",
		},
		[]string{"strategy", "outcome"},
	)

	// StrategyDuration measures how long each strategy attempt took.
	StrategyDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "strategy_duration_seconds",
			Help:      "Duration of acquisition strategy attempts in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"strategy"},
	)

	// CacheLookups counts cache hits and misses per named cache.
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Total number of cache lookups",
		},
		[]string{"cache", "result"},
	)

	// RateLimitDecisions counts limiter outcomes.
	RateLimitDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_decisions_total",
			Help:      "Total number of rate limiter decisions",
		},
		[]string{"limiter", "decision"},
	)

	// CaptchaValidations counts captcha validation results.
	CaptchaValidations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "captcha_validations_total",
			Help:      "Total number of captcha validations",
		},
		[]string{"result"},
	)

	// Downloads counts media downloads by outcome.
	Downloads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "downloads_total",
			Help:      "Total number of media downloads",
		},
		[]string{"outcome"},
	)

	// DownloadBytes observes downloaded payload sizes.
	DownloadBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "download_bytes",
			Help:      "Size of downloaded media in bytes",
			Buckets:   prometheus.ExponentialBuckets(1024, 4, 10),
		},
	)

	// UpstreamRequests counts requests to the platform by endpoint and status class.
	UpstreamRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_requests_total",
			Help:      "Total number of requests sent to the platform",
		},
		[]string{"endpoint", "status"},
	)
)

// RecordStrategy records one strategy attempt.
func RecordStrategy(strategy, outcome string, duration float64) {
	StrategyAttempts.WithLabelValues(strategy, outcome).Inc()
	StrategyDuration.WithLabelValues(strategy).Observe(duration)
}

// RecordCacheLookup records a hit or miss.
func RecordCacheLookup(cache string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	CacheLookups.WithLabelValues(cache, result).Inc()
}

// RecordRateLimit records a limiter decision.
func RecordRateLimit(limiter string, allowed, requireCaptcha bool) {
	decision := "allowed"
	switch {
	case requireCaptcha:
		decision = "captcha"
	case !allowed:
		decision = "blocked"
	}
	RateLimitDecisions.WithLabelValues(limiter, decision).Inc()
}

// RecordCaptcha records a captcha validation.
func RecordCaptcha(valid bool, reason string) {
	if valid {
		CaptchaValidations.WithLabelValues("valid").Inc()
		return
	}
	CaptchaValidations.WithLabelValues(reason).Inc()
}

// RecordDownload records a download outcome and, on success, its size.
func RecordDownload(outcome string, size int) {
	Downloads.WithLabelValues(outcome).Inc()
	if outcome == "success" {
		DownloadBytes.Observe(float64(size))
	}
}

// RecordUpstream records a request to the platform. status 0 means a
// transport failure.
func RecordUpstream(endpoint string, status int) {
	UpstreamRequests.WithLabelValues(endpoint, statusClass(status)).Inc()
}

func statusClass(status int) string {
	switch {
	case status <= 0:
		return "error"
	case status < 300:
		return "2xx"
	case status < 400:
		return "3xx"
	case status < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
