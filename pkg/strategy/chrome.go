package strategy

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"

	"igstories/pkg/config"
	"igstories/pkg/logger"
)

// ChromeLauncher starts headless Chrome sessions with chromedp. Every
// session gets its own browser process and profile.
type ChromeLauncher struct {
	cfg       config.BrowserConfig
	userAgent string
	logger    logger.Logger
}

// NewChromeLauncher creates a chromedp backed launcher
func NewChromeLauncher(cfg config.BrowserConfig, userAgent string, log logger.Logger) *ChromeLauncher {
	return &ChromeLauncher{cfg: cfg, userAgent: userAgent, logger: logger.OrDefault(log)}
}

// Launch starts a browser bound to ctx
func (l *ChromeLauncher) Launch(ctx context.Context) (BrowserSession, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", l.cfg.Headless),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.DisableGPU,
		chromedp.NoFirstRun,
		chromedp.WindowSize(1280, 900),
	)
	if l.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(l.cfg.ExecPath))
	}
	if l.userAgent != "" {
		opts = append(opts, chromedp.UserAgent(l.userAgent))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	tabCtx, cancelTab := chromedp.NewContext(allocCtx)

	if err := chromedp.Run(tabCtx); err != nil {
		cancelTab()
		cancelAlloc()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	l.logger.Debug("browser session started")
	return &chromeSession{
		ctx: tabCtx,
		release: func() {
			cancelTab()
			cancelAlloc()
		},
	}, nil
}

// chromeSession is one chromedp tab
type chromeSession struct {
	ctx     context.Context
	release func()
}

// run executes actions on the tab, bounded by the caller's ctx
func (s *chromeSession) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	if deadline, ok := ctx.Deadline(); ok {
		var cancelDeadline context.CancelFunc
		runCtx, cancelDeadline = context.WithDeadline(runCtx, deadline)
		defer cancelDeadline()
	}
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (s *chromeSession) Navigate(ctx context.Context, url string) error {
	return s.run(ctx, chromedp.Navigate(url), chromedp.WaitReady("body", chromedp.ByQuery))
}

func (s *chromeSession) Fill(ctx context.Context, selector, value string) error {
	if err := s.exists(ctx, selector); err != nil {
		return err
	}
	return s.run(ctx, chromedp.SendKeys(selector, value, chromedp.ByQuery))
}

func (s *chromeSession) Submit(ctx context.Context, selector string) error {
	if err := s.exists(ctx, selector); err != nil {
		return err
	}
	return s.run(ctx, chromedp.Click(selector, chromedp.ByQuery))
}

func (s *chromeSession) WaitFor(ctx context.Context, expr string) error {
	var ok bool
	return s.run(ctx, chromedp.Poll("Boolean("+expr+")", &ok, chromedp.WithPollingInterval(250*time.Millisecond)))
}

func (s *chromeSession) Evaluate(ctx context.Context, expr string, out interface{}) error {
	return s.run(ctx, chromedp.Evaluate(expr, out))
}

// Close shuts the browser down and releases its process
func (s *chromeSession) Close() error {
	err := chromedp.Cancel(s.ctx)
	s.release()
	if err == context.Canceled {
		return nil
	}
	return err
}

// exists checks selector without waiting, so a changed layout fails fast
func (s *chromeSession) exists(ctx context.Context, selector string) error {
	quoted, err := json.Marshal(selector)
	if err != nil {
		return err
	}
	var found bool
	if err := s.run(ctx, chromedp.Evaluate(fmt.Sprintf("document.querySelector(%s) !== null", quoted), &found)); err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%q: %w", selector, ErrElementNotFound)
	}
	return nil
}
