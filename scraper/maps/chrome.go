package maps

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"github.com/rotisserie/eris"

	"leadcaller/config"
	"leadcaller/utils"
)

const openTimeout = 60 * time.Second

// ChromeSurface drives a single headless Chrome tab.
type ChromeSurface struct {
	tab      context.Context
	cancel   func()
	startURL string
	retry    *utils.RetryConfig
}

// NewChromeSurface launches the browser and opens one tab.
func NewChromeSurface(cfg config.ScrapeConfig, logger *utils.Logger) (*ChromeSurface, error) {
	chromeBin := cfg.ChromeBin
	if chromeBin == "" {
		chromeBin = findChromeBinary()
	}
	logger.Info("[maps] Using browser binary: %s", chromeBin)

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.Flag("lang", "en-US"),
		chromedp.UserAgent("Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 "+
			"(KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"),
	)
	if chromeBin != "" {
		opts = append(opts, chromedp.ExecPath(chromeBin))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), opts...)

	// Suppress chromedp log noise
	tab, cancelTab := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(string, ...interface{}) {}))

	// Start the browser now so launch failures surface here.
	if err := chromedp.Run(tab); err != nil {
		cancelTab()
		cancelAlloc()
		return nil, eris.Wrap(err, "maps: launch browser")
	}

	return &ChromeSurface{
		tab: tab,
		cancel: func() {
			cancelTab()
			cancelAlloc()
		},
		startURL: cfg.StartURL,
		retry: &utils.RetryConfig{
			MaxAttempts: cfg.MaxRetries,
			BaseDelay:   2 * time.Second,
			Logger:      logger,
		},
	}, nil
}

// run executes actions on the tab, bounded by timeout and by ctx.
func (c *ChromeSurface) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	var (
		runCtx context.Context
		cancel context.CancelFunc
	)
	if timeout > 0 {
		runCtx, cancel = context.WithTimeout(c.tab, timeout)
	} else {
		runCtx, cancel = context.WithCancel(c.tab)
	}
	defer cancel()

	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	return chromedp.Run(runCtx, actions...)
}

func (c *ChromeSurface) Open(ctx context.Context, searchTerm string) error {
	return c.retry.Do(ctx, "open-maps", func() error {
		err := c.run(ctx, openTimeout,
			chromedp.Navigate(c.startURL),
			chromedp.WaitVisible(SearchBoxLocator, chromedp.BySearch),
			chromedp.SetValue(SearchBoxLocator, "", chromedp.BySearch),
			chromedp.SendKeys(SearchBoxLocator, searchTerm, chromedp.BySearch),
			chromedp.SendKeys(SearchBoxLocator, kb.Enter, chromedp.BySearch),
			chromedp.WaitReady(ListingAnchorLocator, chromedp.BySearch),
		)
		if err != nil {
			return eris.Wrap(err, "maps: open search")
		}
		return nil
	})
}

func (c *ChromeSurface) ScrollFeed(ctx context.Context) error {
	return c.run(ctx, openTimeout, chromedp.Evaluate(`
		(function() {
			var feed = document.querySelector('div[role="feed"]');
			if (feed) {
				feed.scrollTop = feed.scrollHeight;
			} else {
				window.scrollTo(0, document.body.scrollHeight);
			}
			return true;
		})()
	`, nil), chromedp.Sleep(750*time.Millisecond))
}

func (c *ChromeSurface) WaitFor(ctx context.Context, locator string, timeout time.Duration) error {
	return c.run(ctx, timeout, chromedp.WaitReady(locator, chromedp.BySearch))
}

func (c *ChromeSurface) Count(ctx context.Context, locator string) (int, error) {
	var n int
	err := c.run(ctx, openTimeout, chromedp.Evaluate(fmt.Sprintf(
		`document.evaluate(%q, document, null, XPathResult.ORDERED_NODE_SNAPSHOT_TYPE, null).snapshotLength`,
		locator), &n))
	return n, err
}

func (c *ChromeSurface) Hrefs(ctx context.Context, n int) ([]string, error) {
	var hrefs []string
	err := c.run(ctx, openTimeout, chromedp.Evaluate(fmt.Sprintf(`
		(function() {
			var r = document.evaluate(%q, document, null, XPathResult.ORDERED_NODE_SNAPSHOT_TYPE, null);
			var out = [];
			for (var i = 0; i < r.snapshotLength && i < %d; i++) {
				out.push(r.snapshotItem(i).href || '');
			}
			return out;
		})()
	`, ListingAnchorLocator, n), &hrefs))
	return hrefs, err
}

func (c *ChromeSurface) Text(ctx context.Context, locator string, timeout time.Duration) (string, error) {
	var text string
	err := c.run(ctx, timeout, chromedp.Text(locator, &text, chromedp.BySearch))
	return text, err
}

func (c *ChromeSurface) Select(ctx context.Context, h ListingHandle) error {
	var clicked bool
	err := c.run(ctx, openTimeout, chromedp.Evaluate(fmt.Sprintf(`
		(function() {
			var r = document.evaluate(%q, document, null, XPathResult.ORDERED_NODE_SNAPSHOT_TYPE, null);
			var a = r.snapshotItem(%d);
			if (!a) return false;
			a.scrollIntoView();
			a.click();
			return true;
		})()
	`, ListingAnchorLocator, h.Index), &clicked))
	if err != nil {
		return eris.Wrapf(err, "maps: select listing %d", h.Index)
	}
	if !clicked {
		return eris.Errorf("maps: listing %d no longer on the page", h.Index)
	}
	return nil
}

func (c *ChromeSurface) Close() error {
	c.cancel()
	return nil
}

// findChromeBinary locates Chrome/Chromium binary.
func findChromeBinary() string {
	if bin := os.Getenv("CHROME_BIN"); bin != "" {
		return bin
	}

	names := []string{"google-chrome-stable", "google-chrome", "chromium", "chromium-browser"}
	for _, name := range names {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}

	paths := []string{
		"/usr/bin/google-chrome-stable",
		"/usr/bin/google-chrome",
		"/usr/bin/chromium-browser",
		"/usr/bin/chromium",
		"/snap/bin/chromium",
		"/opt/google/chrome/google-chrome",
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	return ""
}
