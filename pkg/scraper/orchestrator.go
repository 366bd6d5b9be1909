package scraper

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"igstories/internal/downloader"
	"igstories/pkg/cache"
	"igstories/pkg/clock"
	errs "igstories/pkg/errors"
	"igstories/pkg/logger"
	"igstories/pkg/metrics"
	"igstories/pkg/models"
	"igstories/pkg/retry"
	"igstories/pkg/strategy"
)

const (
	// SourceCache tags results served from the stories cache
	SourceCache = "Cache"
	// SourceOrchestrator tags failures not owned by a single strategy
	SourceOrchestrator = "Orchestrator"

	// DefaultDelay separates consecutive HTTP-based strategy attempts
	DefaultDelay = 500 * time.Millisecond
)

// Fetcher downloads a media URL
type Fetcher interface {
	Fetch(ctx context.Context, url string) (downloader.Payload, error)
}

// Orchestrator runs the acquisition chain and the download path
type Orchestrator struct {
	strategies []strategy.Strategy
	stores     *cache.Stores
	exec       Fetcher
	delay      time.Duration
	clock      clock.Clock
	logger     logger.Logger
	group      singleflight.Group

	mu         sync.Mutex
	flights    map[string]*flight
	nextFlight uint64
}

// flight is one shared chain run. Its context is detached from the caller
// that started it and is cancelled when the last waiter leaves.
type flight struct {
	id      uint64
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithClock sets the clock used for attempt timing
func WithClock(c clock.Clock) Option {
	return func(o *Orchestrator) { o.clock = c }
}

// WithLogger sets the orchestrator logger
func WithLogger(l logger.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithDelay sets the pause between HTTP-based strategies. Zero disables it.
func WithDelay(d time.Duration) Option {
	return func(o *Orchestrator) { o.delay = d }
}

// New creates an orchestrator over strategies, tried in order
func New(strategies []strategy.Strategy, stores *cache.Stores, exec Fetcher, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		strategies: strategies,
		stores:     stores,
		exec:       exec,
		delay:      DefaultDelay,
		flights:    make(map[string]*flight),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.clock = clock.OrReal(o.clock)
	o.logger = logger.OrDefault(o.logger)
	return o
}

// NormalizeHandle trims whitespace and a leading "@"
func NormalizeHandle(handle string) string {
	return strings.TrimPrefix(strings.TrimSpace(handle), "@")
}

// ResolveContent returns the active stories of handle. Unless skipCache is
// set, a cached non-empty list is returned without contacting the platform.
func (o *Orchestrator) ResolveContent(ctx context.Context, handle string, skipCache bool) models.AcquisitionResult {
	handle = NormalizeHandle(handle)
	if handle == "" {
		return models.Failed(SourceOrchestrator, errs.New(errs.ErrorTypeNotFound, "%s", errs.UserMessage(errs.ErrorTypeNotFound)))
	}

	if !skipCache {
		items, ok := o.stores.GetCachedStories(handle)
		hit := ok && len(items) > 0
		metrics.RecordCacheLookup("stories", hit)
		if hit {
			o.logger.DebugWithFields("serving stories from cache", map[string]interface{}{
				"handle": handle,
				"items":  len(items),
			})
			return models.Succeeded(SourceCache, items, o.cachedAccount(handle))
		}
	}

	key := cache.NormalizeKey(handle)
	f := o.join(ctx, key)
	defer o.leave(key, f)

	ch := o.group.DoChan(fmt.Sprintf("%s#%d", key, f.id), func() (interface{}, error) {
		return o.runChain(f.ctx, handle), nil
	})

	select {
	case r := <-ch:
		return r.Val.(models.AcquisitionResult)
	case <-ctx.Done():
		return models.Failed(SourceOrchestrator, cancelled(ctx))
	}
}

// join registers a waiter on the running resolution of key, starting a new
// flight when none is running
func (o *Orchestrator) join(ctx context.Context, key string) *flight {
	o.mu.Lock()
	defer o.mu.Unlock()

	f, ok := o.flights[key]
	if !ok {
		o.nextFlight++
		fctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		f = &flight{id: o.nextFlight, ctx: fctx, cancel: cancel}
		o.flights[key] = f
	}
	f.waiters++
	return f
}

// leave drops a waiter. The last one out cancels the shared chain.
func (o *Orchestrator) leave(key string, f *flight) {
	o.mu.Lock()
	defer o.mu.Unlock()

	f.waiters--
	if f.waiters > 0 {
		return
	}
	f.cancel()
	if o.flights[key] == f {
		delete(o.flights, key)
	}
}

func (o *Orchestrator) cachedAccount(handle string) *models.AccountInfo {
	id, ok := o.stores.GetCachedAccountID(handle)
	if !ok {
		return nil
	}
	return &models.AccountInfo{ID: id, Handle: cache.NormalizeKey(handle)}
}

// runChain tries every strategy in order and returns the first non-empty
// success, or a summary of the recorded failures
func (o *Orchestrator) runChain(ctx context.Context, handle string) models.AcquisitionResult {
	var (
		failures      []models.AcquisitionResult
		attemptedHTTP bool
		httpNegative  bool
	)

	log := o.logger.WithField("handle", handle)

	for _, s := range o.strategies {
		if ctx.Err() != nil {
			return models.Failed(SourceOrchestrator, cancelled(ctx))
		}

		httpBased := strategy.IsHTTPBased(s)
		if httpBased && httpNegative {
			log.DebugWithFields("skipping strategy after authoritative answer", map[string]interface{}{
				"strategy": s.Name(),
			})
			continue
		}
		if httpBased && attemptedHTTP && o.delay > 0 {
			if err := retry.Wait(ctx, o.delay); err != nil {
				return models.Failed(SourceOrchestrator, cancelled(ctx))
			}
		}

		start := o.clock.Now()
		res := s.Attempt(ctx, handle, "")
		elapsed := o.clock.Now().Sub(start)
		if httpBased {
			attemptedHTTP = true
		}
		if res.Source == "" {
			res.Source = s.Name()
		}

		if res.Success && len(res.Items) > 0 {
			metrics.RecordStrategy(s.Name(), "success", elapsed.Seconds())
			logger.LogStrategyAttempt(log, handle, s.Name(), len(res.Items), nil, elapsed)
			o.remember(handle, res)
			return res
		}

		if res.Success {
			res = models.Failed(res.Source, errs.New(errs.ErrorTypeNoContent, "%s reached the platform but found no active stories", s.Name()))
		} else if res.Err == nil {
			res.Err = errs.New(errs.ErrorTypeUpstreamUnavailable, "%s failed without an error", s.Name())
		}

		metrics.RecordStrategy(s.Name(), string(res.Err.Type), elapsed.Seconds())
		logger.LogStrategyAttempt(log, handle, s.Name(), 0, res.Err, elapsed)
		failures = append(failures, res)

		if httpBased && errs.IsAuthoritative(res.Err.Type) {
			httpNegative = true
		}
	}

	return summarize(failures)
}

// remember caches a successful resolution
func (o *Orchestrator) remember(handle string, res models.AcquisitionResult) {
	o.stores.CacheStories(handle, res.Items)
	if res.Account != nil && res.Account.ID != "" {
		o.stores.CacheAccountID(handle, res.Account.ID)
	}
}

// summarize picks the most specific recorded failure. Earlier failures win
// ties.
func summarize(failures []models.AcquisitionResult) models.AcquisitionResult {
	if len(failures) == 0 {
		return models.Failed(SourceOrchestrator, errs.New(errs.ErrorTypeUpstreamUnavailable, "%s", errs.UserMessage(errs.ErrorTypeUpstreamUnavailable)))
	}

	best := failures[0]
	for _, f := range failures[1:] {
		if errs.Specificity(f.Err.Type) > errs.Specificity(best.Err.Type) {
			best = f
		}
	}

	final := errs.Wrap(best.Err.Type, best.Err, "%s", errs.UserMessage(best.Err.Type)).WithCode(best.Err.Code)
	return models.AcquisitionResult{Success: false, Err: final, Source: best.Source, Account: best.Account}
}

func cancelled(ctx context.Context) *errs.Error {
	return errs.Wrap(errs.ErrorTypeUpstreamUnavailable, ctx.Err(), "request cancelled")
}

// DownloadContent downloads the story contentID of handle. A remembered
// download URL is tried first; otherwise the stories are resolved and the
// item is located by MatchItem.
func (o *Orchestrator) DownloadContent(ctx context.Context, handle, contentID string) models.DownloadResult {
	handle = NormalizeHandle(handle)

	if d, ok := o.stores.GetCachedDownload(handle, contentID); ok {
		metrics.RecordCacheLookup("downloads", true)
		item := models.ContentItem{ID: d.ContentID, MediaKind: d.MediaKind, PrimaryURL: d.URL}
		res := o.fetch(ctx, handle, item)
		if res.Success || ctx.Err() != nil {
			return res
		}
		o.logger.WarnWithFields("remembered download url failed, resolving again", map[string]interface{}{
			"handle":     handle,
			"content_id": contentID,
		})
	} else {
		metrics.RecordCacheLookup("downloads", false)
	}

	resolved := o.ResolveContent(ctx, handle, false)
	if !resolved.Success {
		return models.DownloadResult{Success: false, Err: resolved.Err}
	}

	item, exact := MatchItem(resolved.Items, contentID)
	if item == nil {
		err := errs.New(errs.ErrorTypeNoContent, "%s", errs.UserMessage(errs.ErrorTypeNoContent))
		return models.DownloadResult{Success: false, Err: err}
	}
	if !exact {
		o.logger.InfoWithFields("story id not matched exactly, using fallback", map[string]interface{}{
			"handle":    handle,
			"requested": contentID,
			"selected":  item.ID,
		})
	}

	res := o.fetch(ctx, handle, *item)
	if res.Success && exact {
		o.stores.CacheDownload(models.DownloadDescriptor{
			Handle:    handle,
			ContentID: item.ID,
			URL:       item.PrimaryURL,
			MediaKind: item.MediaKind,
		})
	}
	return res
}

func (o *Orchestrator) fetch(ctx context.Context, handle string, item models.ContentItem) models.DownloadResult {
	payload, err := o.exec.Fetch(ctx, item.PrimaryURL)
	if err != nil {
		logger.LogDownload(o.logger, handle, item.ID, 0, err)
		return models.DownloadResult{Success: false, Item: item, Err: errs.As(err)}
	}

	logger.LogDownload(o.logger, handle, item.ID, len(payload.Data), nil)
	return models.DownloadResult{
		Success:     true,
		Item:        item,
		Data:        payload.Data,
		ContentType: payload.ContentType,
		Filename:    Filename(handle, item),
	}
}

// Filename names a downloaded story
func Filename(handle string, item models.ContentItem) string {
	return fmt.Sprintf("%s_%s.%s", cache.NormalizeKey(handle), item.ID, item.Extension())
}

// MatchItem locates contentID in items: an exact id match, then an id
// containing or contained in contentID, then the first item. exact reports
// whether the first rule matched. The substring rule can pick the wrong
// story when ids share digits.
func MatchItem(items []models.ContentItem, contentID string) (item *models.ContentItem, exact bool) {
	if len(items) == 0 {
		return nil, false
	}
	for i := range items {
		if items[i].ID == contentID {
			return &items[i], true
		}
	}
	if contentID != "" {
		for i := range items {
			if strings.Contains(items[i].ID, contentID) || strings.Contains(contentID, items[i].ID) {
				return &items[i], false
			}
		}
	}
	return &items[0], false
}
