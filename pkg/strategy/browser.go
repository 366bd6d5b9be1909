package strategy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"igstories/pkg/clock"
	"igstories/pkg/config"
	errs "igstories/pkg/errors"
	"igstories/pkg/instagram"
	"igstories/pkg/logger"
	"igstories/pkg/models"
)

// ErrElementNotFound is returned by a BrowserSession when a selector matches nothing
var ErrElementNotFound = errors.New("element not found")

// BrowserLauncher starts isolated browser sessions
type BrowserLauncher interface {
	Launch(ctx context.Context) (BrowserSession, error)
}

// BrowserSession is one isolated browser tab. Every step honours ctx.
type BrowserSession interface {
	Navigate(ctx context.Context, url string) error
	Fill(ctx context.Context, selector, value string) error
	Submit(ctx context.Context, selector string) error
	// WaitFor blocks until the JavaScript expression is truthy
	WaitFor(ctx context.Context, expr string) error
	Evaluate(ctx context.Context, expr string, out interface{}) error
	Close() error
}

// Viewer describes the anonymous viewer page the Browser strategy drives
type Viewer struct {
	URL            string
	InputSelector  string
	SubmitSelector string
	// SignerReady is truthy once the page's request signer is initialized
	SignerReady string
	// FetchScript starts the signed stories request. %s receives the
	// JSON-quoted handle. The script stores {status, body} in ResultVar.
	FetchScript string
	ResultVar   string
}

// DefaultViewer returns the viewer layout known to work with url
func DefaultViewer(url string) Viewer {
	return Viewer{
		URL:            url,
		InputSelector:  `input[name="url"]`,
		SubmitSelector: `button[type="submit"]`,
		SignerReady:    `typeof window.__signer === "object" && typeof window.__signer.sign === "function"`,
		FetchScript: `(function (handle) {
  window.__igstoriesResult = undefined;
  var body = JSON.stringify({username: handle});
  Promise.resolve(window.__signer.sign(body))
    .then(function (headers) {
      return fetch("/api/v1/stories", {
        method: "POST",
        headers: Object.assign({"content-type": "application/json"}, headers),
        body: body
      });
    })
    .then(function (r) { return r.text().then(function (t) { return {status: r.status, body: t}; }); })
    .then(function (res) { window.__igstoriesResult = JSON.stringify(res); })
    .catch(function (e) { window.__igstoriesResult = JSON.stringify({status: 0, body: String(e)}); });
  return true;
})(%s)`,
		ResultVar: "window.__igstoriesResult",
	}
}

// viewerEnvelope is what FetchScript leaves in ResultVar
type viewerEnvelope struct {
	Status int    `json:"status"`
	Body   string `json:"body"`
}

// viewerResponse is the body of the viewer's signed stories endpoint
type viewerResponse struct {
	User *struct {
		ID            instagram.FlexibleID `json:"id"`
		Username      string               `json:"username"`
		FullName      string               `json:"full_name"`
		IsPrivate     bool                 `json:"is_private"`
		ProfilePicURL string               `json:"profile_pic_url"`
	} `json:"user"`
	Result []instagram.ReelItem `json:"result"`
	Error  string               `json:"error"`
}

// Browser drives a headless browser through the viewer page and calls the
// viewer's signed API from inside the page
type Browser struct {
	launcher BrowserLauncher
	viewer   Viewer
	cfg      config.BrowserConfig
	clock    clock.Clock
	logger   logger.Logger
}

// NewBrowser creates the browser strategy
func NewBrowser(cfg config.BrowserConfig, launcher BrowserLauncher, viewer Viewer, c clock.Clock, log logger.Logger) *Browser {
	if viewer.URL == "" {
		viewer.URL = cfg.ViewerURL
	}
	return &Browser{
		launcher: launcher,
		viewer:   viewer,
		cfg:      cfg,
		clock:    clock.OrReal(c),
		logger:   logger.OrDefault(log),
	}
}

func (b *Browser) Name() string { return NameBrowser }

// Attempt runs the viewer flow. The browser session is closed on every path.
func (b *Browser) Attempt(ctx context.Context, handle, contentID string) (res models.AcquisitionResult) {
	defer recoverAttempt(NameBrowser, b.logger, &res)

	sess, err := b.launcher.Launch(ctx)
	if err != nil {
		return b.stepFailure(ctx, err, "browser could not be started")
	}
	defer func() {
		if err := sess.Close(); err != nil {
			b.logger.WarnWithFields("failed to close browser session", map[string]interface{}{"error": err.Error()})
		}
	}()

	navCtx, cancelNav := withTimeout(ctx, b.cfg.NavigationTimeout)
	defer cancelNav()

	if err := sess.Navigate(navCtx, b.viewer.URL); err != nil {
		return b.stepFailure(ctx, err, "viewer page did not load")
	}
	if err := sess.Fill(navCtx, b.viewer.InputSelector, handle); err != nil {
		return b.stepFailure(ctx, err, "viewer search input unavailable")
	}
	if err := sess.Submit(navCtx, b.viewer.SubmitSelector); err != nil {
		return b.stepFailure(ctx, err, "viewer search button unavailable")
	}

	signCtx, cancelSign := withTimeout(ctx, b.cfg.SigningTimeout)
	defer cancelSign()
	if err := sess.WaitFor(signCtx, b.viewer.SignerReady); err != nil {
		return b.stepFailure(ctx, err, "viewer signing context never initialized")
	}

	quoted, _ := json.Marshal(handle)
	respCtx, cancelResp := withTimeout(ctx, b.cfg.ResponseTimeout)
	defer cancelResp()
	if err := sess.Evaluate(respCtx, fmt.Sprintf(b.viewer.FetchScript, quoted), nil); err != nil {
		return b.stepFailure(ctx, err, "viewer stories request could not be started")
	}
	if err := sess.WaitFor(respCtx, b.viewer.ResultVar+" !== undefined"); err != nil {
		return b.stepFailure(ctx, err, "viewer stories request did not complete")
	}
	var raw string
	if err := sess.Evaluate(respCtx, b.viewer.ResultVar, &raw); err != nil {
		return b.stepFailure(ctx, err, "viewer stories response unreadable")
	}

	return b.parse(handle, raw)
}

// parse converts the viewer payload into a result
func (b *Browser) parse(handle, raw string) models.AcquisitionResult {
	var env viewerEnvelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return models.Failed(NameBrowser, errs.Wrap(errs.ErrorTypeParseFailure, err, "malformed viewer envelope: %v", err))
	}

	switch {
	case env.Status == http.StatusNotFound:
		return fail(NameBrowser, errs.ErrorTypeNotFound, "account %q not found", handle)
	case env.Status == 0:
		return fail(NameBrowser, errs.ErrorTypeUpstreamUnavailable, "viewer request failed: %s", env.Body)
	case env.Status >= 400:
		return models.Failed(NameBrowser, errs.New(errs.ErrorTypeUpstreamUnavailable, "viewer returned status %d", env.Status).WithCode(env.Status))
	}

	var resp viewerResponse
	if err := json.Unmarshal([]byte(env.Body), &resp); err != nil {
		return models.Failed(NameBrowser, errs.Wrap(errs.ErrorTypeParseFailure, err, "malformed viewer payload: %v", err))
	}

	switch strings.ToLower(resp.Error) {
	case "":
	case "not_found", "user_not_found":
		return fail(NameBrowser, errs.ErrorTypeNotFound, "account %q not found", handle)
	case "private", "private_account":
		return fail(NameBrowser, errs.ErrorTypePrivateAccount, "account %q is private", handle)
	default:
		return fail(NameBrowser, errs.ErrorTypeUpstreamUnavailable, "viewer error: %s", resp.Error)
	}

	items := instagram.NormalizeReelItems(resp.Result, b.clock.Now())

	var account *models.AccountInfo
	if resp.User != nil {
		account = &models.AccountInfo{
			ID:          resp.User.ID.String(),
			Handle:      resp.User.Username,
			DisplayName: resp.User.FullName,
			IsPrivate:   resp.User.IsPrivate,
			AvatarURL:   resp.User.ProfilePicURL,
		}
		if account.Handle == "" {
			account.Handle = handle
		}
		if account.IsPrivate && len(items) == 0 {
			return fail(NameBrowser, errs.ErrorTypePrivateAccount, "account %q is private", handle)
		}
	}

	return models.Succeeded(NameBrowser, items, account)
}

// stepFailure maps a failed browser step onto the error taxonomy
func (b *Browser) stepFailure(ctx context.Context, err error, what string) models.AcquisitionResult {
	b.logger.WarnWithFields("browser step failed", map[string]interface{}{
		"step":  what,
		"error": err.Error(),
	})
	switch {
	case ctx.Err() != nil:
		return models.Failed(NameBrowser, errs.Wrap(errs.ErrorTypeUpstreamUnavailable, ctx.Err(), "request cancelled"))
	case errors.Is(err, ErrElementNotFound):
		return models.Failed(NameBrowser, errs.Wrap(errs.ErrorTypeUpstreamUnavailable, err, "viewer layout changed: %s", what))
	case errors.Is(err, context.DeadlineExceeded):
		return models.Failed(NameBrowser, errs.Wrap(errs.ErrorTypeUpstreamUnavailable, err, "%s: timed out", what))
	default:
		return models.Failed(NameBrowser, errs.Wrap(errs.ErrorTypeUpstreamUnavailable, err, "%s: %v", what, err))
	}
}

// withTimeout derives a context bounded by d, or just cancellable when d <= 0
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
