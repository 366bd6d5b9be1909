// Package scraper resolves the active stories of an account and downloads
// individual stories.
//
// The Orchestrator runs an ordered chain of acquisition strategies and
// returns the first success. Failures are recorded rather than returned
// immediately, and when every strategy fails the most specific recorded
// failure decides the message shown to the user.
//
// Usage:
//
//	chain, err := strategy.BuildChain(cfg.Strategies, deps)
//	if err != nil {
//		return err
//	}
//	orch := scraper.New(chain, stores, executor,
//		scraper.WithDelay(cfg.Strategies.InterStrategyDelay),
//		scraper.WithLogger(log),
//	)
//
//	res := orch.ResolveContent(ctx, "nasa", false)
//	if !res.Success {
//		fmt.Println(res.ErrorMessage())
//	}
//
// Results are cached per handle, so repeated lookups within the stories TTL
// do not reach the platform. Concurrent lookups of the same handle share
// one chain run.
package scraper
