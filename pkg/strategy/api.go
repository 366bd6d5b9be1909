package strategy

import (
	"context"

	"igstories/pkg/cache"
	"igstories/pkg/clock"
	errs "igstories/pkg/errors"
	"igstories/pkg/instagram"
	"igstories/pkg/logger"
	"igstories/pkg/metrics"
	"igstories/pkg/models"
	"igstories/pkg/ratelimit"
)

// PlatformLimiterID is the identifier outbound platform calls are counted under
const PlatformLimiterID = "platform"

// PlatformClient is the subset of the platform client the HTTP strategies use
type PlatformClient interface {
	FetchProfile(ctx context.Context, handle string) (*instagram.ProfileUser, error)
	FetchReel(ctx context.Context, accountID string) (instagram.Reel, error)
	FetchProfileHTML(ctx context.Context, handle string) (string, error)
}

// API resolves the account id through the profile endpoint and then reads
// the reel feed
type API struct {
	client  PlatformClient
	stores  *cache.Stores
	limiter *ratelimit.Keyed
	clock   clock.Clock
	logger  logger.Logger
}

// NewAPI creates the direct API strategy. stores and limiter may be nil.
func NewAPI(client PlatformClient, stores *cache.Stores, limiter *ratelimit.Keyed, c clock.Clock, log logger.Logger) *API {
	return &API{
		client:  client,
		stores:  stores,
		limiter: limiter,
		clock:   clock.OrReal(c),
		logger:  logger.OrDefault(log),
	}
}

func (a *API) Name() string    { return NameAPI }
func (a *API) HTTPBased() bool { return true }

// Attempt resolves handle to an account id and fetches its feed
func (a *API) Attempt(ctx context.Context, handle, contentID string) (res models.AcquisitionResult) {
	defer recoverAttempt(NameAPI, a.logger, &res)

	var account *models.AccountInfo
	id, cached := "", false
	if a.stores != nil {
		id, cached = a.stores.GetCachedAccountID(handle)
		metrics.RecordCacheLookup("account_id", cached)
	}

	if !cached {
		if err := a.admit(handle); err != nil {
			return models.Failed(NameAPI, err)
		}
		user, err := a.client.FetchProfile(ctx, handle)
		if err != nil {
			return failWith(ctx, NameAPI, err)
		}
		account = instagram.AccountFromProfile(user)
		if user.IsPrivate {
			return models.Failed(NameAPI, errs.New(errs.ErrorTypePrivateAccount, "account %q is private", handle))
		}
		id = user.ID.String()
		if a.stores != nil {
			a.stores.CacheAccountID(handle, id)
		}
	}

	return a.fetchFeed(ctx, handle, id, account)
}

// fetchFeed reads the reel of a known account id. account may be nil, in
// which case it is derived from the reel owner.
func (a *API) fetchFeed(ctx context.Context, handle, accountID string, account *models.AccountInfo) models.AcquisitionResult {
	if err := a.admit(handle); err != nil {
		return models.Failed(NameAPI, err)
	}

	reel, err := a.client.FetchReel(ctx, accountID)
	if err != nil {
		return failWith(ctx, NameAPI, err)
	}

	items := instagram.NormalizeReelItems(reel.Items, a.clock.Now())
	if account == nil {
		account = instagram.AccountFromReel(reel, handle)
		if account.ID == "" {
			account.ID = accountID
		}
	}
	if account.IsPrivate && len(items) == 0 {
		return models.Failed(NameAPI, errs.New(errs.ErrorTypePrivateAccount, "account %q is private", handle))
	}

	a.logger.DebugWithFields("feed fetched", map[string]interface{}{
		"handle":     handle,
		"account_id": accountID,
		"raw_items":  len(reel.Items),
		"items":      len(items),
	})
	return models.Succeeded(NameAPI, items, account)
}

// admit consults the platform limiter before an outbound call
func (a *API) admit(handle string) *errs.Error {
	if a.limiter == nil {
		return nil
	}
	d := a.limiter.Check(PlatformLimiterID)
	metrics.RecordRateLimit(PlatformLimiterID, d.Allowed, d.RequireCaptcha)
	if d.Allowed {
		return nil
	}
	logger.LogRateLimit(a.logger.WithField("handle", handle), PlatformLimiterID, PlatformLimiterID, d.Blocked, d.RequireCaptcha, d.ResetIn)
	return errs.New(errs.ErrorTypeUpstreamUnavailable, "platform request budget exhausted, retry in %ds", d.ResetInSeconds)
}
