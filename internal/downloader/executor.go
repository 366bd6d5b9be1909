package downloader

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	errs "igstories/pkg/errors"
	"igstories/pkg/logger"
	"igstories/pkg/metrics"
	"igstories/pkg/retry"
)

const (
	// DefaultTimeout bounds one fetch including redirects
	DefaultTimeout = 60 * time.Second
	// DefaultMinSize is the smallest body accepted as real media
	DefaultMinSize = 1000
	// DefaultAttempts covers one retry of a transient failure
	DefaultAttempts = 2

	maxRedirects = 10
	// maxBodySize caps what is buffered for one story
	maxBodySize = 512 << 20
)

// errTooManyRedirects is reported by the redirect policy
var errTooManyRedirects = errors.New("stopped after 10 redirects")

// Payload is a fetched media body
type Payload struct {
	Data        []byte
	ContentType string
}

// Executor fetches media URLs with timeout, redirect, size and retry policy
type Executor struct {
	httpClient *http.Client
	minSize    int
	retrier    *retry.Retrier
	userAgent  string
	logger     logger.Logger
}

// ExecutorOption configures an Executor
type ExecutorOption func(*Executor)

// WithHTTPClient replaces the transport. Its redirect policy is overridden.
func WithHTTPClient(hc *http.Client) ExecutorOption {
	return func(e *Executor) {
		clone := *hc
		e.httpClient = &clone
	}
}

// WithUserAgent sets the User-Agent sent with media requests
func WithUserAgent(ua string) ExecutorOption {
	return func(e *Executor) { e.userAgent = ua }
}

// WithLogger sets the executor logger
func WithLogger(l logger.Logger) ExecutorOption {
	return func(e *Executor) { e.logger = l }
}

// NewExecutor creates an executor. Zero values select the defaults and a nil
// retrier retries transient failures once.
func NewExecutor(timeout time.Duration, minSize int, retrier *retry.Retrier, opts ...ExecutorOption) *Executor {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if minSize <= 0 {
		minSize = DefaultMinSize
	}
	if retrier == nil {
		retrier = retry.NewRetrier(&retry.Config{
			MaxAttempts: DefaultAttempts,
			Backoff:     &retry.ConstantBackoff{Delay: 500 * time.Millisecond},
		})
	}

	e := &Executor{
		httpClient: &http.Client{},
		minSize:    minSize,
		retrier:    retrier,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.httpClient.Timeout = timeout
	e.httpClient.CheckRedirect = func(_ *http.Request, via []*http.Request) error {
		if len(via) >= maxRedirects {
			return errTooManyRedirects
		}
		return nil
	}
	e.logger = logger.OrDefault(e.logger)
	return e
}

// Fetch downloads url. Transient transport failures and retryable statuses
// are retried; a 404 or an undersized body is reported at once.
func (e *Executor) Fetch(ctx context.Context, url string) (Payload, error) {
	var payload Payload
	err := e.retrier.Do(ctx, func(ctx context.Context) error {
		p, err := e.fetchOnce(ctx, url)
		if err != nil {
			return err
		}
		payload = p
		return nil
	})
	if err != nil {
		typed := errs.As(err)
		metrics.RecordDownload(string(typed.Type), 0)
		e.logger.WarnWithFields("media download failed", map[string]interface{}{
			"url":   url,
			"error": err.Error(),
		})
		return Payload{}, typed
	}

	metrics.RecordDownload("success", len(payload.Data))
	return payload, nil
}

func (e *Executor) fetchOnce(ctx context.Context, url string) (Payload, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Payload{}, errs.Wrap(errs.ErrorTypeUpstreamUnavailable, err, "invalid media url: %v", err).WithCode(http.StatusBadRequest)
	}
	req.Header.Set("Accept", "*/*")
	if e.userAgent != "" {
		req.Header.Set("User-Agent", e.userAgent)
	}

	start := time.Now()
	resp, err := e.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return Payload{}, ctx.Err()
		}
		if errors.Is(err, errTooManyRedirects) {
			return Payload{}, errs.Wrap(errs.ErrorTypeUpstreamUnavailable, err, "too many redirects").WithCode(http.StatusLoopDetected)
		}
		return Payload{}, errs.Wrap(errs.ErrorTypeUpstreamUnavailable, err, "network error: %v", err)
	}
	defer resp.Body.Close()

	logger.LogRequest(e.logger, req.Method, url, resp.StatusCode, time.Since(start))

	if resp.StatusCode == http.StatusNotFound {
		return Payload{}, errs.New(errs.ErrorTypeNotFound, "media not found").WithCode(resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Payload{}, errs.New(errs.ErrorTypeUpstreamUnavailable, "unexpected status code: %d", resp.StatusCode).WithCode(resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		if ctx.Err() != nil {
			return Payload{}, ctx.Err()
		}
		return Payload{}, errs.Wrap(errs.ErrorTypeUpstreamUnavailable, err, "failed to read media body: %v", err)
	}
	if len(data) < e.minSize {
		return Payload{}, errs.New(errs.ErrorTypeResourceTooSmall, "media body of %d bytes is below %d", len(data), e.minSize).WithCode(resp.StatusCode)
	}

	return Payload{Data: data, ContentType: resp.Header.Get("Content-Type")}, nil
}

