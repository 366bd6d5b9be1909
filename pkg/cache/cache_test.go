package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"igstories/pkg/clock"
	"igstories/pkg/config"
	"igstories/pkg/models"
)

var epoch = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func TestCacheGetSet(t *testing.T) {
	clk := clock.NewManual(epoch)
	c := New[string](clk, 0)

	_, ok := c.Get("missing")
	assert.False(t, ok)

	c.Set("a", "1", time.Minute)
	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, "1", v)
	assert.True(t, c.Has("a"))

	c.Set("a", "2", time.Minute)
	v, _ = c.Get("a")
	assert.Equal(t, "2", v)
	assert.Equal(t, 1, c.Size())
}

func TestCacheExpiry(t *testing.T) {
	clk := clock.NewManual(epoch)
	c := New[int](clk, 0)

	c.Set("k", 7, 10*time.Second)

	clk.Advance(10*time.Second - time.Millisecond)
	assert.True(t, c.Has("k"))

	// an entry is dead at exactly its expiry instant
	clk.Advance(time.Millisecond)
	_, ok := c.Get("k")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Size(), "expired entry is removed on read")
}

func TestCacheSetRefreshesTTL(t *testing.T) {
	clk := clock.NewManual(epoch)
	c := New[int](clk, 0)

	c.Set("k", 1, time.Minute)
	clk.Advance(50 * time.Second)
	c.Set("k", 2, time.Minute)
	clk.Advance(50 * time.Second)

	v, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, 2, v)
}

func TestCacheDeleteAndPurge(t *testing.T) {
	clk := clock.NewManual(epoch)
	c := New[string](clk, 0)

	c.Set("short", "x", time.Second)
	c.Set("long", "y", time.Hour)
	c.Set("gone", "z", time.Hour)
	c.Delete("gone")
	c.Delete("never-there")

	clk.Advance(2 * time.Second)
	assert.Equal(t, 2, c.Size())
	assert.Equal(t, 1, c.Purge())
	assert.Equal(t, 1, c.Size())
	assert.True(t, c.Has("long"))
}

func TestCacheSweeper(t *testing.T) {
	clk := clock.NewManual(epoch)
	c := New[string](clk, 5*time.Millisecond)
	c.Start()
	c.Start()
	defer c.Stop()

	c.Set("k", "v", time.Second)
	clk.Advance(time.Hour)

	assert.Eventually(t, func() bool { return c.Size() == 0 }, time.Second, 5*time.Millisecond)

	c.Stop()
	c.Stop()
}

func TestCacheConcurrentAccess(t *testing.T) {
	c := New[int](clock.Real{}, 0)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				key := fmt.Sprintf("k%d", j%10)
				c.Set(key, n, time.Minute)
				c.Get(key)
				if j%7 == 0 {
					c.Delete(key)
				}
			}
		}(i)
	}
	wg.Wait()

	assert.LessOrEqual(t, c.Size(), 10)
}

func newTestStores(clk clock.Clock) *Stores {
	return NewStores(config.CacheConfig{
		AccountIDTTL: 24 * time.Hour,
		StoriesTTL:   2 * time.Hour,
		DownloadTTL:  30 * time.Minute,
	}, clk)
}

func TestStoresCaseInsensitiveStories(t *testing.T) {
	clk := clock.NewManual(epoch)
	s := newTestStores(clk)

	items := []models.ContentItem{{ID: "1", MediaKind: models.MediaImage, PrimaryURL: "https://cdn/1.jpg"}}
	s.CacheStories("nasa", items)

	got, ok := s.GetCachedStories("NASA")
	require.True(t, ok)
	assert.Equal(t, items, got)

	clk.Advance(2*time.Hour + time.Second)
	_, ok = s.GetCachedStories("NASA")
	assert.False(t, ok)
}

func TestStoresAccountIDTTL(t *testing.T) {
	clk := clock.NewManual(epoch)
	s := newTestStores(clk)

	s.CacheAccountID(" Nasa ", "528817151")

	clk.Advance(23 * time.Hour)
	id, ok := s.GetCachedAccountID("nasa")
	require.True(t, ok)
	assert.Equal(t, "528817151", id)

	clk.Advance(time.Hour)
	_, ok = s.GetCachedAccountID("nasa")
	assert.False(t, ok)
}

func TestStoresDownloadDescriptor(t *testing.T) {
	clk := clock.NewManual(epoch)
	s := newTestStores(clk)

	d := models.DownloadDescriptor{Handle: "NASA", ContentID: "123", URL: "https://cdn/123.mp4", MediaKind: models.MediaVideo}
	s.CacheDownload(d)

	got, ok := s.GetCachedDownload("nasa", "123")
	require.True(t, ok)
	assert.Equal(t, d, got)

	_, ok = s.GetCachedDownload("nasa", "124")
	assert.False(t, ok)

	clk.Advance(30 * time.Minute)
	_, ok = s.GetCachedDownload("nasa", "123")
	assert.False(t, ok)
}

func TestStoresInvalidateAndSizes(t *testing.T) {
	s := newTestStores(clock.NewManual(epoch))

	s.CacheStories("a", nil)
	s.CacheAccountID("a", "1")
	assert.Equal(t, map[string]int{"account_ids": 1, "stories": 1, "downloads": 0}, s.Sizes())

	s.InvalidateStories("A")
	assert.Equal(t, 0, s.Sizes()["stories"])

	s.Start()
	s.Stop()
}
