package integration

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"igstories/internal/downloader"
	"igstories/pkg/cache"
	"igstories/pkg/captcha"
	"igstories/pkg/clock"
	"igstories/pkg/config"
	"igstories/pkg/instagram"
	"igstories/pkg/logger"
	"igstories/pkg/ratelimit"
	"igstories/pkg/retry"
	"igstories/pkg/scraper"
	"igstories/pkg/storage"
	"igstories/pkg/strategy"
)

// TestHelper provides common test utilities
type TestHelper struct {
	t        *testing.T
	platform *MockPlatform
	tempDir  string
}

// NewTestHelper creates a new test helper. Resources are released through
// t.Cleanup.
func NewTestHelper(t *testing.T) *TestHelper {
	t.Helper()
	return &TestHelper{t: t, tempDir: t.TempDir()}
}

// SetupMockPlatform starts the mock platform
func (h *TestHelper) SetupMockPlatform() *MockPlatform {
	h.platform = NewMockPlatform()
	h.t.Cleanup(h.platform.Close)
	return h.platform
}

// GetTempDir returns the temporary directory for test files
func (h *TestHelper) GetTempDir() string {
	return h.tempDir
}

// CreateTestLogger returns a logger that discards output
func (h *TestHelper) CreateTestLogger() logger.Logger {
	return logger.NewNopLogger()
}

// CreateTestConfig returns a configuration pointing at the mock platform
// with only the HTTP strategies enabled
func (h *TestHelper) CreateTestConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Platform.BaseURL = h.platform.GetURL()
	cfg.Platform.HostInterval = 0
	cfg.Platform.RequestTimeout = 5 * time.Second
	cfg.Strategies.Order = []string{"api", "scrape"}
	cfg.Strategies.InterStrategyDelay = 0
	cfg.Strategies.Browser.Enabled = false
	cfg.Strategies.Session.Enabled = false
	cfg.Download.Timeout = 5 * time.Second
	cfg.Output.BaseDirectory = filepath.Join(h.tempDir, "downloads")
	cfg.Logging.Level = "disabled"
	return cfg
}

// Engine is the wired set of components a test drives
type Engine struct {
	Config          *config.Config
	Clock           *clock.Manual
	Stores          *cache.Stores
	PlatformLimiter *ratelimit.Keyed
	DownloadLimiter *ratelimit.Keyed
	Captcha         *captcha.Issuer
	Executor        *downloader.Executor
	Orchestrator    *scraper.Orchestrator
	Storage         *storage.Manager
}

// NewEngine wires every component against cfg the way the CLI does, on a
// manual clock
func (h *TestHelper) NewEngine(cfg *config.Config) *Engine {
	h.t.Helper()
	log := h.CreateTestLogger()
	clk := clock.NewManual(time.Now())

	stores := cache.NewStores(cfg.Cache, clk)
	platformLimiter := ratelimit.NewKeyed(ratelimit.PolicyFromConfig(cfg.RateLimit.Platform), clk)
	client := instagram.NewClient(cfg.Platform, log, instagram.WithPacer(ratelimit.NewHostPacer(cfg.Platform.HostInterval)))

	chain, err := strategy.BuildChain(cfg.Strategies, strategy.Deps{
		Client:          client,
		BaseURL:         client.BaseURL(),
		UserAgent:       cfg.Platform.UserAgents[0],
		Stores:          stores,
		PlatformLimiter: platformLimiter,
		Clock:           clk,
		Logger:          log,
	})
	if err != nil {
		h.t.Fatalf("Failed to build strategy chain: %v", err)
	}

	retrier := retry.NewRetrier(&retry.Config{
		MaxAttempts: cfg.Download.MaxAttempts,
		Backoff:     &retry.ConstantBackoff{Delay: 10 * time.Millisecond},
		Logger:      log,
	})
	executor := downloader.NewExecutor(cfg.Download.Timeout, int(cfg.Download.MinFileSize), retrier, downloader.WithLogger(log))

	store, err := storage.NewManager(cfg.Output)
	if err != nil {
		h.t.Fatalf("Failed to create storage manager: %v", err)
	}

	return &Engine{
		Config:          cfg,
		Clock:           clk,
		Stores:          stores,
		PlatformLimiter: platformLimiter,
		DownloadLimiter: ratelimit.NewKeyed(ratelimit.PolicyFromConfig(cfg.RateLimit.Download), clk),
		Captcha:         captcha.NewIssuer(clk, cfg.Captcha.TTL, cfg.Captcha.SweepInterval, captcha.WithLogger(log)),
		Executor:        executor,
		Orchestrator:    scraper.New(chain, stores, executor, scraper.WithClock(clk), scraper.WithDelay(0), scraper.WithLogger(log)),
		Storage:         store,
	}
}

// AssertFileExists checks if a file exists
func (h *TestHelper) AssertFileExists(path string) {
	h.t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		h.t.Errorf("Expected file to exist: %s", path)
	}
}

// AssertDirContainsFiles checks if a directory contains the expected number of files
func (h *TestHelper) AssertDirContainsFiles(dir string, expectedCount int) {
	h.t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		h.t.Fatalf("Failed to read directory %s: %v", dir, err)
	}

	count := 0
	for _, entry := range entries {
		if !entry.IsDir() {
			count++
		}
	}
	if count != expectedCount {
		h.t.Errorf("Expected %d files in %s, found %d", expectedCount, dir, count)
	}
}

// StandardAccounts registers a public account with two stories, a private
// account and a public account with no stories
func (h *TestHelper) StandardAccounts() {
	now := time.Now().Unix()
	h.platform.AddAccount(MockAccount{
		ID:       "111",
		Handle:   "alice",
		FullName: "Alice",
		Stories: []MockStory{
			{ID: "3001", TakenAt: now - 600},
			{ID: "3002", Video: true, TakenAt: now - 300},
		},
	})
	h.platform.AddAccount(MockAccount{ID: "222", Handle: "bob", FullName: "Bob", Private: true})
	h.platform.AddAccount(MockAccount{ID: "333", Handle: "carol", FullName: "Carol"})
}
