package strategy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"igstories/pkg/clock"
	"igstories/pkg/config"
	errs "igstories/pkg/errors"
	"igstories/pkg/instagram"
	"igstories/pkg/logger"
	"igstories/pkg/models"
	"igstories/pkg/session"
)

// SessionStore is the saved authenticated session the Session strategy runs with
type SessionStore interface {
	Exists() bool
	// Materialize writes the cookie jar under dir. cleanup may be nil when
	// err is set.
	Materialize(dir string) (path string, cleanup func(), err error)
}

var (
	loginMarkers = []string{
		"login required",
		"login_required",
		"log in to",
		"checkpoint_required",
		"not logged in",
		"session has expired",
		"--cookies-from-browser",
	}
	privateProcessMarkers = []string{
		"this account is private",
		"private account",
	}
	notFoundProcessMarkers = []string{
		"does not exist",
		"user not found",
		"http error 404",
	}
	imageExtensions = map[string]bool{"jpg": true, "jpeg": true, "png": true, "webp": true, "heic": true}
)

// Session runs an external scraper authenticated with the saved session
type Session struct {
	store   SessionStore
	runner  ProcessRunner
	binary  string
	timeout time.Duration
	baseURL string
	clock   clock.Clock
	logger  logger.Logger
}

// NewSession creates the session strategy. A nil runner uses ExecRunner.
func NewSession(cfg config.SessionConfig, baseURL string, store SessionStore, runner ProcessRunner, c clock.Clock, log logger.Logger) *Session {
	if runner == nil {
		runner = ExecRunner{}
	}
	binary := cfg.Binary
	if binary == "" {
		binary = "yt-dlp"
	}
	if baseURL == "" {
		baseURL = instagram.BaseURL
	}
	return &Session{
		store:   store,
		runner:  runner,
		binary:  binary,
		timeout: cfg.Timeout,
		baseURL: strings.TrimRight(baseURL, "/"),
		clock:   clock.OrReal(c),
		logger:  logger.OrDefault(log),
	}
}

func (s *Session) Name() string { return NameSession }

// Attempt runs the external scraper against the story tray of handle
func (s *Session) Attempt(ctx context.Context, handle, contentID string) (res models.AcquisitionResult) {
	defer recoverAttempt(NameSession, s.logger, &res)

	if s.store == nil || !s.store.Exists() {
		return fail(NameSession, errs.ErrorTypeAuthRequired, "no saved session, run `igstories session login` first")
	}

	cookies, cleanup, err := s.store.Materialize("")
	if cleanup != nil {
		defer cleanup()
	}
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return fail(NameSession, errs.ErrorTypeAuthRequired, "no saved session, run `igstories session login` first")
		}
		return models.Failed(NameSession, errs.Wrap(errs.ErrorTypeAuthRequired, err, "saved session could not be read: %v", err))
	}

	target := fmt.Sprintf("%s/stories/%s/", s.baseURL, handle)
	args := []string{
		"--cookies", cookies,
		"--dump-single-json",
		"--skip-download",
		"--no-warnings",
		"--ignore-no-formats-error",
		target,
	}

	s.logger.DebugWithFields("running session scraper", map[string]interface{}{
		"binary": s.binary,
		"target": target,
	})
	stdout, stderr, runErr := s.runner.Run(ctx, s.binary, args, s.timeout)

	if runErr != nil || len(bytes.TrimSpace(stdout)) == 0 {
		return s.classifyFailure(ctx, handle, runErr, stdout, stderr)
	}

	playlist, err := parsePlaylist(stdout)
	if err != nil {
		if t, ok := classifyOutput(stderr); ok {
			return fail(NameSession, t, "session scraper reported %s for %q", t, handle)
		}
		return models.Failed(NameSession, errs.Wrap(errs.ErrorTypeParseFailure, err, "unreadable scraper output: %v", err))
	}

	items := instagram.NormalizeMedia(playlist.rawMedia(), s.clock.Now())
	return models.Succeeded(NameSession, items, playlist.account(handle))
}

// classifyFailure maps a failed or silent run onto the error taxonomy
func (s *Session) classifyFailure(ctx context.Context, handle string, runErr error, stdout, stderr []byte) models.AcquisitionResult {
	fields := map[string]interface{}{
		"handle": handle,
		"stderr": tail(stderr, 300),
	}
	if runErr != nil {
		fields["error"] = runErr.Error()
	}
	s.logger.WarnWithFields("session scraper failed", fields)

	if t, ok := classifyOutput(append(append([]byte{}, stderr...), stdout...)); ok {
		return fail(NameSession, t, "session scraper reported %s for %q", t, handle)
	}

	switch {
	case ctx.Err() != nil:
		return models.Failed(NameSession, errs.Wrap(errs.ErrorTypeUpstreamUnavailable, ctx.Err(), "request cancelled"))
	case errors.Is(runErr, ErrProcessTimeout):
		return models.Failed(NameSession, errs.Wrap(errs.ErrorTypeUpstreamUnavailable, runErr, "session scraper timed out"))
	case errors.Is(runErr, exec.ErrNotFound):
		return models.Failed(NameSession, errs.Wrap(errs.ErrorTypeUpstreamUnavailable, runErr, "%s is not installed", s.binary))
	case runErr != nil:
		return models.Failed(NameSession, errs.Wrap(errs.ErrorTypeUpstreamUnavailable, runErr, "session scraper failed: %v", runErr))
	default:
		return fail(NameSession, errs.ErrorTypeParseFailure, "session scraper produced no output")
	}
}

// classifyOutput looks for known failure messages in process output.
// Login markers win since they are the user-actionable case.
func classifyOutput(out []byte) (errs.ErrorType, bool) {
	lower := strings.ToLower(string(out))
	for _, m := range loginMarkers {
		if strings.Contains(lower, m) {
			return errs.ErrorTypeAuthRequired, true
		}
	}
	for _, m := range privateProcessMarkers {
		if strings.Contains(lower, m) {
			return errs.ErrorTypePrivateAccount, true
		}
	}
	for _, m := range notFoundProcessMarkers {
		if strings.Contains(lower, m) {
			return errs.ErrorTypeNotFound, true
		}
	}
	return "", false
}

func tail(b []byte, n int) string {
	s := strings.TrimSpace(string(b))
	if len(s) > n {
		return "..." + s[len(s)-n:]
	}
	return s
}

// scraperPlaylist is the JSON document the scraper prints for a story tray.
// A tray with a single story may be printed as a bare entry.
type scraperPlaylist struct {
	Type       string         `json:"_type"`
	ID         string         `json:"id"`
	Title      string         `json:"title"`
	Uploader   string         `json:"uploader"`
	UploaderID string         `json:"uploader_id"`
	Channel    string         `json:"channel"`
	Entries    []scraperEntry `json:"entries"`
	scraperEntry
}

type scraperEntry struct {
	ID         string             `json:"id"`
	Timestamp  float64            `json:"timestamp"`
	URL        string             `json:"url"`
	Ext        string             `json:"ext"`
	Width      int                `json:"width"`
	Formats    []scraperFormat    `json:"formats"`
	Thumbnails []scraperThumbnail `json:"thumbnails"`
}

type scraperFormat struct {
	URL    string `json:"url"`
	Ext    string `json:"ext"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	VCodec string `json:"vcodec"`
}

type scraperThumbnail struct {
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

func parsePlaylist(out []byte) (*scraperPlaylist, error) {
	var p scraperPlaylist
	if err := json.Unmarshal(bytes.TrimSpace(out), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// rawMedia flattens the playlist into renditions ready for selection
func (p *scraperPlaylist) rawMedia() []instagram.RawMedia {
	entries := p.Entries
	if len(entries) == 0 && p.Type != "playlist" && p.ID != "" {
		single := p.scraperEntry
		single.ID = p.ID
		entries = []scraperEntry{single}
	}

	raw := make([]instagram.RawMedia, 0, len(entries))
	for _, e := range entries {
		m := instagram.RawMedia{ID: e.ID, TakenAt: int64(e.Timestamp)}
		for _, f := range e.Formats {
			r := instagram.Rendition{URL: f.URL, Width: f.Width, Height: f.Height}
			switch {
			case imageExtensions[strings.ToLower(f.Ext)]:
				m.Images = append(m.Images, r)
			case f.VCodec == "none":
			default:
				m.Videos = append(m.Videos, r)
			}
		}
		if len(e.Formats) == 0 && e.URL != "" {
			r := instagram.Rendition{URL: e.URL, Width: e.Width}
			if imageExtensions[strings.ToLower(e.Ext)] {
				m.Images = append(m.Images, r)
			} else {
				m.Videos = append(m.Videos, r)
			}
		}
		for _, t := range e.Thumbnails {
			m.Images = append(m.Images, instagram.Rendition{URL: t.URL, Width: t.Width, Height: t.Height})
		}
		raw = append(raw, m)
	}
	return raw
}

func (p *scraperPlaylist) account(handle string) *models.AccountInfo {
	name := p.Uploader
	if name == "" {
		name = p.Title
	}
	id := p.UploaderID
	if id == "" && p.Type == "playlist" {
		id = p.ID
	}
	return &models.AccountInfo{
		ID:          id,
		Handle:      handle,
		DisplayName: name,
	}
}
