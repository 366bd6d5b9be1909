package strategy

import (
	"context"

	errs "igstories/pkg/errors"
	"igstories/pkg/logger"
	"igstories/pkg/models"
)

// Scrape recovers the account id from the public profile page and reads the
// feed through the API strategy's feed step
type Scrape struct {
	api    *API
	logger logger.Logger
}

// NewScrape creates the scrape strategy on top of an API strategy
func NewScrape(api *API, log logger.Logger) *Scrape {
	return &Scrape{api: api, logger: logger.OrDefault(log)}
}

func (s *Scrape) Name() string    { return NameScrape }
func (s *Scrape) HTTPBased() bool { return true }

// Attempt scrapes the profile page of handle
func (s *Scrape) Attempt(ctx context.Context, handle, contentID string) (res models.AcquisitionResult) {
	defer recoverAttempt(NameScrape, s.logger, &res)

	if err := s.api.admit(handle); err != nil {
		return models.Failed(NameScrape, err)
	}
	html, err := s.api.client.FetchProfileHTML(ctx, handle)
	if err != nil {
		return failWith(ctx, NameScrape, err)
	}

	page := parseProfilePage(html, handle)
	switch {
	case page.NotFound:
		return fail(NameScrape, errs.ErrorTypeNotFound, "account %q not found", handle)
	case page.Private:
		return fail(NameScrape, errs.ErrorTypePrivateAccount, "account %q is private", handle)
	case page.AccountID == "":
		return fail(NameScrape, errs.ErrorTypeParseFailure, "no account id found in the profile page of %q", handle)
	}

	s.logger.DebugWithFields("account id scraped", map[string]interface{}{
		"handle":     handle,
		"account_id": page.AccountID,
	})
	if s.api.stores != nil {
		s.api.stores.CacheAccountID(handle, page.AccountID)
	}

	return withSource(s.api.fetchFeed(ctx, handle, page.AccountID, nil), NameScrape)
}

func withSource(res models.AcquisitionResult, source string) models.AcquisitionResult {
	res.Source = source
	return res
}
