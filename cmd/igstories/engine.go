package main

import (
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
	"igstories/pkg/session"
	"igstories/pkg/strategy"
)

// engine wires every component from one configuration
type engine struct {
	cfg             *config.Config
	log             logger.Logger
	stores          *cache.Stores
	downloadLimiter *ratelimit.Keyed
	platformLimiter *ratelimit.Keyed
	captcha         *captcha.Issuer
	pacer           *ratelimit.HostPacer
	executor        *downloader.Executor
	orch            *scraper.Orchestrator
}

func newEngine(cfg *config.Config, log logger.Logger) (*engine, error) {
	clk := clock.Real{}
	userAgent := ""
	if len(cfg.Platform.UserAgents) > 0 {
		userAgent = cfg.Platform.UserAgents[0]
	}

	stores := cache.NewStores(cfg.Cache, clk)
	platformLimiter := ratelimit.NewKeyed(ratelimit.PolicyFromConfig(cfg.RateLimit.Platform), clk)
	pacer := ratelimit.NewHostPacer(cfg.Platform.HostInterval)
	client := instagram.NewClient(cfg.Platform, log.WithField("component", "instagram"), instagram.WithPacer(pacer))

	var sessions strategy.SessionStore
	if store, err := session.NewStore(cfg.Strategies.Session.StoreDir, nil); err != nil {
		log.WithError(err).Warn("saved session store unavailable, session strategy will report authentication required")
	} else {
		sessions = store
	}

	chain, err := strategy.BuildChain(cfg.Strategies, strategy.Deps{
		Client:          client,
		BaseURL:         client.BaseURL(),
		UserAgent:       userAgent,
		Stores:          stores,
		PlatformLimiter: platformLimiter,
		Sessions:        sessions,
		Clock:           clk,
		Logger:          log,
	})
	if err != nil {
		return nil, err
	}

	retrier := retry.NewRetrier(&retry.Config{
		MaxAttempts: cfg.Download.MaxAttempts,
		Backoff:     retry.DefaultExponentialBackoff(),
		Logger:      log,
	})
	executor := downloader.NewExecutor(cfg.Download.Timeout, int(cfg.Download.MinFileSize), retrier,
		downloader.WithUserAgent(userAgent),
		downloader.WithLogger(log.WithField("component", "downloader")),
	)

	orch := scraper.New(chain, stores, executor,
		scraper.WithClock(clk),
		scraper.WithDelay(cfg.Strategies.InterStrategyDelay),
		scraper.WithLogger(log.WithField("component", "orchestrator")),
	)

	return &engine{
		cfg:             cfg,
		log:             log,
		stores:          stores,
		downloadLimiter: ratelimit.NewKeyed(ratelimit.PolicyFromConfig(cfg.RateLimit.Download), clk),
		platformLimiter: platformLimiter,
		captcha:         captcha.NewIssuer(clk, cfg.Captcha.TTL, cfg.Captcha.SweepInterval, captcha.WithLogger(log.WithField("component", "captcha"))),
		pacer:           pacer,
		executor:        executor,
		orch:            orch,
	}, nil
}

// start launches the background sweepers
func (e *engine) start() {
	e.stores.Start()
	e.downloadLimiter.Start(e.cfg.RateLimit.SweepInterval)
	e.platformLimiter.Start(e.cfg.RateLimit.SweepInterval)
	e.captcha.Start()
}

// stop halts the background sweepers
func (e *engine) stop() {
	e.captcha.Stop()
	e.platformLimiter.Stop()
	e.downloadLimiter.Stop()
	e.stores.Stop()
}
