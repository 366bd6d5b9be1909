package strategy

import (
	"fmt"

	"igstories/pkg/cache"
	"igstories/pkg/clock"
	"igstories/pkg/config"
	"igstories/pkg/logger"
	"igstories/pkg/ratelimit"
)

// Deps are the collaborators the strategies are built from. Launcher and
// Runner default to chromedp and os/exec when nil.
type Deps struct {
	Client          PlatformClient
	BaseURL         string
	UserAgent       string
	Stores          *cache.Stores
	PlatformLimiter *ratelimit.Keyed
	Sessions        SessionStore
	Launcher        BrowserLauncher
	Runner          ProcessRunner
	Clock           clock.Clock
	Logger          logger.Logger
}

// BuildChain constructs the enabled strategies in the configured order
func BuildChain(cfg config.StrategiesConfig, deps Deps) ([]Strategy, error) {
	log := logger.OrDefault(deps.Logger)
	api := NewAPI(deps.Client, deps.Stores, deps.PlatformLimiter, deps.Clock, log.WithField("strategy", NameAPI))

	chain := make([]Strategy, 0, len(cfg.Order))
	for _, name := range cfg.Order {
		switch name {
		case "browser":
			if !cfg.Browser.Enabled {
				continue
			}
			launcher := deps.Launcher
			if launcher == nil {
				launcher = NewChromeLauncher(cfg.Browser, deps.UserAgent, log)
			}
			chain = append(chain, NewBrowser(cfg.Browser, launcher, DefaultViewer(cfg.Browser.ViewerURL), deps.Clock, log.WithField("strategy", NameBrowser)))
		case "session":
			if !cfg.Session.Enabled {
				continue
			}
			chain = append(chain, NewSession(cfg.Session, deps.BaseURL, deps.Sessions, deps.Runner, deps.Clock, log.WithField("strategy", NameSession)))
		case "api":
			chain = append(chain, api)
		case "scrape":
			if !cfg.Scrape.Enabled {
				continue
			}
			chain = append(chain, NewScrape(api, log.WithField("strategy", NameScrape)))
		default:
			return nil, fmt.Errorf("unknown strategy %q", name)
		}
	}

	if len(chain) == 0 {
		return nil, fmt.Errorf("no acquisition strategy enabled")
	}
	return chain, nil
}
