package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"igstories/pkg/captcha"
	"igstories/pkg/clock"
	"igstories/pkg/config"
	errs "igstories/pkg/errors"
	"igstories/pkg/logger"
	"igstories/pkg/models"
	"igstories/pkg/ratelimit"
)

type fakeOrchestrator struct {
	mu        sync.Mutex
	resolve   models.AcquisitionResult
	download  models.DownloadResult
	refreshed []bool
	handles   []string
}

func (f *fakeOrchestrator) ResolveContent(ctx context.Context, handle string, skipCache bool) models.AcquisitionResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handles = append(f.handles, handle)
	f.refreshed = append(f.refreshed, skipCache)
	return f.resolve
}

func (f *fakeOrchestrator) DownloadContent(ctx context.Context, handle, contentID string) models.DownloadResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handles = append(f.handles, handle+"/"+contentID)
	return f.download
}

// fixedCaptcha always asks the same question
type fixedCaptcha struct {
	used bool
}

func (f *fixedCaptcha) Generate() captcha.Challenge {
	return captcha.Challenge{Token: "tok", Question: "7 x 8", ExpiresInSeconds: 300}
}

func (f *fixedCaptcha) Validate(token, answer string) captcha.Validation {
	switch {
	case token != "tok":
		return captcha.Validation{Reason: captcha.ReasonUnknown}
	case f.used:
		return captcha.Validation{Reason: captcha.ReasonAlreadyUsed}
	case answer != "56":
		return captcha.Validation{Reason: captcha.ReasonWrongAnswer}
	}
	f.used = true
	return captcha.Validation{Valid: true}
}

type harness struct {
	srv     *Server
	orch    *fakeOrchestrator
	limiter *ratelimit.Keyed
	clock   *clock.Manual
	log     *logger.TestLogger
}

func newHarness(t *testing.T, policy ratelimit.Policy) *harness {
	t.Helper()
	clk := clock.NewManual(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	orch := &fakeOrchestrator{
		resolve: models.Succeeded("API", []models.ContentItem{
			{ID: "3001_1", MediaKind: models.MediaVideo, PrimaryURL: "https://cdn.test/1.mp4"},
		}, &models.AccountInfo{ID: "528817151", Handle: "nasa"}),
	}
	limiter := ratelimit.NewKeyed(policy, clk)
	log := logger.NewTestLogger()
	srv := New(config.ServerConfig{EnableMetrics: true}, orch, limiter, &fixedCaptcha{}, log)
	return &harness{srv: srv, orch: orch, limiter: limiter, clock: clk, log: log}
}

func defaultPolicy() ratelimit.Policy {
	return ratelimit.Policy{MaxRequests: 10, Window: time.Minute, BlockDuration: 5 * time.Minute, CaptchaThreshold: 3}
}

func (h *harness) do(method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	req.RemoteAddr = "1.2.3.4:5555"
	rec := httptest.NewRecorder()
	h.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHealthz(t *testing.T) {
	h := newHarness(t, defaultPolicy())
	rec := h.do(http.MethodGet, "/healthz", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode(t, rec)["status"])
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}

func TestMetricsEndpoint(t *testing.T) {
	h := newHarness(t, defaultPolicy())
	rec := h.do(http.MethodGet, "/metrics", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestStoriesRoute(t *testing.T) {
	h := newHarness(t, defaultPolicy())

	rec := h.do(http.MethodGet, "/api/stories/nasa?refresh=1", "")

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "API", body["source"])
	assert.EqualValues(t, 1, body["count"])
	assert.Equal(t, "9", rec.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, []bool{true}, h.orch.refreshed)
}

func TestStoriesRouteErrors(t *testing.T) {
	tests := []struct {
		errType errs.ErrorType
		status  int
	}{
		{errs.ErrorTypePrivateAccount, http.StatusForbidden},
		{errs.ErrorTypeNotFound, http.StatusNotFound},
		{errs.ErrorTypeNoContent, http.StatusNotFound},
		{errs.ErrorTypeAuthRequired, http.StatusServiceUnavailable},
		{errs.ErrorTypeUpstreamUnavailable, http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(string(tt.errType), func(t *testing.T) {
			h := newHarness(t, defaultPolicy())
			h.orch.resolve = models.Failed("API", errs.New(tt.errType, "internal detail"))

			rec := h.do(http.MethodGet, "/api/stories/someone", "")

			assert.Equal(t, tt.status, rec.Code)
			body := decode(t, rec)
			assert.Equal(t, errs.UserMessage(tt.errType), body["error"])
			assert.NotContains(t, rec.Body.String(), "internal detail")
		})
	}
}

func TestInvalidHandleRejected(t *testing.T) {
	for _, target := range []string{
		"/api/stories/no$such",
		"/api/stories/" + strings.Repeat("a", 31),
		"/api/stories/bad;rm/3001_1/download",
	} {
		t.Run(target, func(t *testing.T) {
			h := newHarness(t, defaultPolicy())

			rec := h.do(http.MethodGet, target, "")

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "invalid_handle", decode(t, rec)["type"])
			assert.Empty(t, h.orch.handles)
		})
	}
}

func TestDownloadRoute(t *testing.T) {
	h := newHarness(t, defaultPolicy())
	h.orch.download = models.DownloadResult{
		Success:     true,
		Item:        models.ContentItem{ID: "3001_1", MediaKind: models.MediaVideo},
		Data:        []byte("mp4 bytes"),
		ContentType: "video/mp4",
		Filename:    "nasa_3001_1.mp4",
	}

	rec := h.do(http.MethodGet, "/api/stories/nasa/3001_1/download", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "mp4 bytes", rec.Body.String())
	assert.Equal(t, "video/mp4", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "nasa_3001_1.mp4")
	assert.Equal(t, []string{"nasa/3001_1"}, h.orch.handles)
}

func TestDownloadRouteFailure(t *testing.T) {
	h := newHarness(t, defaultPolicy())
	h.orch.download = models.DownloadResult{Err: errs.New(errs.ErrorTypeResourceTooSmall, "500 bytes")}

	rec := h.do(http.MethodGet, "/api/stories/nasa/1/download", "")

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, string(errs.ErrorTypeResourceTooSmall), decode(t, rec)["type"])
}

func TestRateLimitBlocksEleventhRequest(t *testing.T) {
	h := newHarness(t, defaultPolicy())

	for i := 0; i < 10; i++ {
		rec := h.do(http.MethodGet, "/api/stories/nasa", "")
		require.Equal(t, http.StatusOK, rec.Code, "request %d", i+1)
	}

	rec := h.do(http.MethodGet, "/api/stories/nasa", "")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, true, body["blocked"])
	assert.Equal(t, false, body["requireCaptcha"])
	assert.EqualValues(t, 300, body["resetIn"])
	assert.Equal(t, "300", rec.Header().Get("Retry-After"))
	assert.Len(t, h.orch.handles, 10)

	fields := h.log.FieldsOf("Rate limit reached")
	require.NotNil(t, fields)
	assert.Equal(t, "1.2.3.4", fields["identifier"])
	assert.Equal(t, true, fields["blocked"])
	assert.Equal(t, false, fields["require_captcha"])
}

func TestCaptchaFlowClearsEscalation(t *testing.T) {
	h := newHarness(t, ratelimit.Policy{MaxRequests: 1, Window: time.Minute, BlockDuration: 5 * time.Minute, CaptchaThreshold: 3})

	var last map[string]interface{}
	for round := 0; round < 3; round++ {
		require.Equal(t, http.StatusOK, h.do(http.MethodGet, "/api/stories/nasa", "").Code)
		rec := h.do(http.MethodGet, "/api/stories/nasa", "")
		require.Equal(t, http.StatusTooManyRequests, rec.Code)
		last = decode(t, rec)
		if round < 2 {
			h.clock.Advance(5*time.Minute + time.Second)
		}
	}
	assert.Equal(t, true, last["requireCaptcha"])

	rec := h.do(http.MethodGet, "/api/captcha", "")
	require.Equal(t, http.StatusOK, rec.Code)
	challenge := decode(t, rec)
	assert.Equal(t, "7 x 8", challenge["question"])

	rec = h.do(http.MethodPost, "/api/captcha/verify", `{"token":"tok","answer":"55"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, captcha.ReasonWrongAnswer, decode(t, rec)["reason"])

	rec = h.do(http.MethodPost, "/api/captcha/verify", `{"token":"tok","answer":"56"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode(t, rec)["valid"])
	assert.Zero(t, h.limiter.FailureCount("1.2.3.4"))

	rec = h.do(http.MethodGet, "/api/stories/nasa", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(http.MethodPost, "/api/captcha/verify", `{"token":"tok","answer":"56"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, captcha.ReasonAlreadyUsed, decode(t, rec)["reason"])
}

func TestCaptchaVerifyRequiresToken(t *testing.T) {
	h := newHarness(t, defaultPolicy())
	rec := h.do(http.MethodPost, "/api/captcha/verify", `{"answer":"56"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCaptchaRoutesAreNotRateLimited(t *testing.T) {
	h := newHarness(t, ratelimit.Policy{MaxRequests: 1, Window: time.Minute, BlockDuration: time.Minute, CaptchaThreshold: 3})

	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, h.do(http.MethodGet, "/api/captcha", "").Code)
	}
}

func TestRunShutsDownOnCancel(t *testing.T) {
	orch := &fakeOrchestrator{}
	limiter := ratelimit.NewKeyed(defaultPolicy(), clock.Real{})
	srv := New(config.ServerConfig{Addr: "127.0.0.1:0", ShutdownTimeout: time.Second}, orch, limiter, &fixedCaptcha{}, logger.NewNopLogger())

	stopped := make(chan struct{})
	srv.OnShutdown(func() { close(stopped) })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not shut down")
	}
	select {
	case <-stopped:
	default:
		t.Fatal("shutdown hooks did not run")
	}
}
