package instagram

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"igstories/pkg/config"
	errs "igstories/pkg/errors"
	"igstories/pkg/logger"
	"igstories/pkg/metrics"
	"igstories/pkg/ratelimit"
)

// maxPageSize bounds how much of an HTML profile page is read
const maxPageSize = 8 << 20

// Client represents a platform web API client
type Client struct {
	httpClient *http.Client
	headers    map[string]string
	baseURL    string
	appID      string
	userAgents []string
	uaIndex    atomic.Uint64
	pacer      *ratelimit.HostPacer
	logger     logger.Logger
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithPacer spaces requests per host
func WithPacer(p *ratelimit.HostPacer) Option {
	return func(c *Client) { c.pacer = p }
}

// NewClient creates a new platform client
func NewClient(cfg config.PlatformConfig, log logger.Logger, opts ...Option) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = BaseURL
	}
	userAgents := cfg.UserAgents
	if len(userAgents) == 0 {
		userAgents = config.DefaultConfig().Platform.UserAgents
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	c := &Client{
		httpClient: &http.Client{Timeout: timeout},
		headers: map[string]string{
			"Accept":          "*/*",
			"Accept-Language": "en-US,en;q=0.9",
			"Cache-Control":   "no-cache",
			"Pragma":          "no-cache",
			"Sec-Fetch-Dest":  "empty",
			"Sec-Fetch-Mode":  "cors",
			"Sec-Fetch-Site":  "same-origin",
			"Referer":         strings.TrimRight(baseURL, "/") + "/",
		},
		baseURL:    baseURL,
		appID:      cfg.AppID,
		userAgents: userAgents,
		logger:     logger.OrDefault(log),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the platform root the client talks to
func (c *Client) BaseURL() string {
	return c.baseURL
}

// nextUserAgent rotates through the configured user agents
func (c *Client) nextUserAgent() string {
	n := c.uaIndex.Add(1) - 1
	return c.userAgents[n%uint64(len(c.userAgents))]
}

// doRequest performs an HTTP request with the configured headers
func (c *Client) doRequest(req *http.Request, endpoint string) (*http.Response, error) {
	for key, value := range c.headers {
		if req.Header.Get(key) == "" {
			req.Header.Set(key, value)
		}
	}
	req.Header.Set("User-Agent", c.nextUserAgent())

	if err := c.pacer.Wait(req.Context(), req.URL.String()); err != nil {
		return nil, errs.Wrap(errs.ErrorTypeUpstreamUnavailable, err, "request cancelled while pacing")
	}

	start := time.Now()
	c.logger.DebugWithFields("sending HTTP request", map[string]interface{}{
		"method": req.Method,
		"url":    req.URL.String(),
	})

	resp, err := c.httpClient.Do(req)
	duration := time.Since(start)

	if err != nil {
		metrics.RecordUpstream(endpoint, 0)
		c.logger.ErrorWithFields("HTTP request failed", map[string]interface{}{
			"method":   req.Method,
			"url":      req.URL.String(),
			"error":    err.Error(),
			"duration": duration,
		})
		return nil, errs.Wrap(errs.ErrorTypeUpstreamUnavailable, err, "network error: %v", err)
	}

	metrics.RecordUpstream(endpoint, resp.StatusCode)
	logger.LogRequest(c.logger, req.Method, req.URL.String(), resp.StatusCode, duration)

	return resp, nil
}

// apiHeaders are sent on JSON endpoints in addition to the defaults
func (c *Client) apiHeaders() map[string]string {
	h := map[string]string{"X-Requested-With": "XMLHttpRequest"}
	if c.appID != "" {
		h["X-IG-App-ID"] = c.appID
	}
	return h
}

// GetJSON performs a GET request and decodes the JSON response
func (c *Client) GetJSON(ctx context.Context, url, endpoint string, target interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return errs.Wrap(errs.ErrorTypeUpstreamUnavailable, err, "failed to create request: %v", err)
	}
	for key, value := range c.apiHeaders() {
		req.Header.Set(key, value)
	}

	resp, err := c.doRequest(req, endpoint)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkResponseStatus(resp); err != nil {
		return err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errs.Wrap(errs.ErrorTypeUpstreamUnavailable, err, "failed to read response body: %v", err).WithCode(resp.StatusCode)
	}

	if err := json.Unmarshal(body, target); err != nil {
		bodyPreview := string(body)
		if len(bodyPreview) > 200 {
			bodyPreview = bodyPreview[:200] + "..."
		}

		c.logger.ErrorWithFields("failed to parse JSON response", map[string]interface{}{
			"url":          url,
			"status":       resp.StatusCode,
			"error":        err.Error(),
			"body_preview": bodyPreview,
		})
		return errs.Wrap(errs.ErrorTypeParseFailure, err, "failed to parse JSON: %v", err).WithCode(resp.StatusCode)
	}

	return nil
}

// checkResponseStatus maps the HTTP status onto the error taxonomy
func (c *Client) checkResponseStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	fields := map[string]interface{}{"status": resp.StatusCode}
	if resp.Request != nil {
		fields["url"] = resp.Request.URL.String()
	}

	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		c.logger.WarnWithFields("authentication error", fields)
		return errs.New(errs.ErrorTypeAuthRequired, "authentication required").WithCode(resp.StatusCode)
	case http.StatusNotFound:
		c.logger.WarnWithFields("resource not found", fields)
		return errs.New(errs.ErrorTypeNotFound, "resource not found").WithCode(resp.StatusCode)
	case http.StatusTooManyRequests:
		c.logger.WarnWithFields("upstream rate limit exceeded", fields)
		return errs.New(errs.ErrorTypeUpstreamUnavailable, "upstream rate limit exceeded").WithCode(resp.StatusCode)
	default:
		c.logger.ErrorWithFields("unexpected upstream status", fields)
		return errs.New(errs.ErrorTypeUpstreamUnavailable, "unexpected status code: %d", resp.StatusCode).WithCode(resp.StatusCode)
	}
}

// FetchProfile resolves a handle to its account record. A private account
// is returned successfully with IsPrivate set.
func (c *Client) FetchProfile(ctx context.Context, handle string) (*ProfileUser, error) {
	url := ProfileURL(c.baseURL, handle)

	c.logger.DebugWithFields("fetching profile", map[string]interface{}{
		"handle": handle,
		"url":    url,
	})

	var response ProfileResponse
	if err := c.GetJSON(ctx, url, "profile", &response); err != nil {
		return nil, err
	}

	if response.RequireLogin {
		c.logger.WarnWithFields("authentication required for profile", map[string]interface{}{
			"handle": handle,
		})
		return nil, errs.New(errs.ErrorTypeAuthRequired, "the platform requires authentication to view this profile").WithCode(http.StatusUnauthorized)
	}

	if response.Data.User == nil || response.Data.User.ID == "" {
		return nil, errs.New(errs.ErrorTypeNotFound, "account %q not found", handle).WithCode(http.StatusNotFound)
	}

	return response.Data.User, nil
}

// FetchReel fetches the active stories of an account id. An account with
// no active stories yields an empty reel and no error.
func (c *Client) FetchReel(ctx context.Context, accountID string) (Reel, error) {
	url := ReelsMediaURL(c.baseURL, accountID)

	c.logger.DebugWithFields("fetching reel", map[string]interface{}{
		"account_id": accountID,
		"url":        url,
	})

	var response ReelsResponse
	if err := c.GetJSON(ctx, url, "reels_media", &response); err != nil {
		return Reel{}, err
	}

	if response.Status != "" && response.Status != "ok" {
		return Reel{}, errs.New(errs.ErrorTypeUpstreamUnavailable, "reel feed returned status %q: %s", response.Status, response.Message)
	}

	reel, ok := response.ReelFor(accountID)
	if !ok {
		return Reel{ID: FlexibleID(accountID)}, nil
	}
	return reel, nil
}

// FetchProfileHTML fetches the public profile page of a handle
func (c *Client) FetchProfileHTML(ctx context.Context, handle string) (string, error) {
	url := ProfilePageURL(c.baseURL, handle)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", errs.Wrap(errs.ErrorTypeUpstreamUnavailable, err, "failed to create request: %v", err)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Sec-Fetch-Dest", "document")
	req.Header.Set("Sec-Fetch-Mode", "navigate")

	resp, err := c.doRequest(req, "profile_page")
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if err := c.checkResponseStatus(resp); err != nil {
		return "", err
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageSize))
	if err != nil {
		return "", errs.Wrap(errs.ErrorTypeUpstreamUnavailable, err, "failed to read profile page: %v", err)
	}

	c.logger.DebugWithFields("fetched profile page", map[string]interface{}{
		"handle": handle,
		"size":   len(body),
	})

	return string(body), nil
}
