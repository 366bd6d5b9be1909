package cache

import (
	"strings"
	"time"

	"igstories/pkg/clock"
	"igstories/pkg/config"
	"igstories/pkg/models"
)

// Stores bundles the three named caches used by the engine.
// Handle keys are case-insensitive.
type Stores struct {
	accountIDs *Cache[string]
	stories    *Cache[[]models.ContentItem]
	downloads  *Cache[models.DownloadDescriptor]

	accountIDTTL time.Duration
	storiesTTL   time.Duration
	downloadTTL  time.Duration
}

// NewStores creates the named caches with TTLs from cfg
func NewStores(cfg config.CacheConfig, c clock.Clock) *Stores {
	return &Stores{
		accountIDs:   New[string](c, cfg.SweepInterval),
		stories:      New[[]models.ContentItem](c, cfg.SweepInterval),
		downloads:    New[models.DownloadDescriptor](c, cfg.SweepInterval),
		accountIDTTL: cfg.AccountIDTTL,
		storiesTTL:   cfg.StoriesTTL,
		downloadTTL:  cfg.DownloadTTL,
	}
}

// NormalizeKey lower-cases and trims a handle so lookups ignore case
func NormalizeKey(handle string) string {
	return strings.ToLower(strings.TrimSpace(handle))
}

// CacheAccountID remembers the platform account id for handle
func (s *Stores) CacheAccountID(handle, id string) {
	s.accountIDs.Set(NormalizeKey(handle), id, s.accountIDTTL)
}

// GetCachedAccountID returns the remembered account id for handle
func (s *Stores) GetCachedAccountID(handle string) (string, bool) {
	return s.accountIDs.Get(NormalizeKey(handle))
}

// CacheStories remembers the resolved stories of handle
func (s *Stores) CacheStories(handle string, items []models.ContentItem) {
	s.stories.Set(NormalizeKey(handle), items, s.storiesTTL)
}

// GetCachedStories returns the remembered stories of handle
func (s *Stores) GetCachedStories(handle string) ([]models.ContentItem, bool) {
	return s.stories.Get(NormalizeKey(handle))
}

// InvalidateStories drops the remembered stories of handle
func (s *Stores) InvalidateStories(handle string) {
	s.stories.Delete(NormalizeKey(handle))
}

func downloadKey(handle, contentID string) string {
	return NormalizeKey(handle) + "/" + contentID
}

// CacheDownload remembers where a story of handle was downloaded from
func (s *Stores) CacheDownload(d models.DownloadDescriptor) {
	s.downloads.Set(downloadKey(d.Handle, d.ContentID), d, s.downloadTTL)
}

// GetCachedDownload returns the remembered download descriptor
func (s *Stores) GetCachedDownload(handle, contentID string) (models.DownloadDescriptor, bool) {
	return s.downloads.Get(downloadKey(handle, contentID))
}

// Sizes reports the entry count of every named cache
func (s *Stores) Sizes() map[string]int {
	return map[string]int{
		"account_ids": s.accountIDs.Size(),
		"stories":     s.stories.Size(),
		"downloads":   s.downloads.Size(),
	}
}

// Start launches every sweeper
func (s *Stores) Start() {
	s.accountIDs.Start()
	s.stories.Start()
	s.downloads.Start()
}

// Stop halts every sweeper
func (s *Stores) Stop() {
	s.accountIDs.Stop()
	s.stories.Stop()
	s.downloads.Stop()
}
