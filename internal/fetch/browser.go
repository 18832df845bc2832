package fetch

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/pricestalk/pricestalk/internal/config"
	"github.com/pricestalk/pricestalk/internal/profile"
	"github.com/pricestalk/pricestalk/internal/types"
)

// consentXPaths matches the common cookie/consent buttons that storefronts
// put in front of their catalogs. Clicking is best-effort.
var consentXPaths = []string{
	`//button[contains(translate(., 'ACEPT', 'acept'), 'accept')]`,
	`//button[contains(translate(., 'AGRE', 'agre'), 'agree')]`,
	`//button[contains(translate(., 'GOTI', 'goti'), 'got it')]`,
	`//a[contains(translate(., 'ACEPT', 'acept'), 'accept')]`,
}

// showMoreXPaths matches "load more" style buttons that extend infinite
// catalogs without changing the URL.
var showMoreXPaths = []string{
	`//button[contains(translate(., 'SHOWMRE', 'showmre'), 'show more')]`,
	`//button[contains(translate(., 'LOADMRE', 'loadmre'), 'load more')]`,
	`//a[contains(translate(., 'SHOWMRE', 'showmre'), 'show more')]`,
}

// BrowserFetcher renders catalog pages in a headless browser via Rod. It
// scrolls, expands "show more" catalogs, and follows numbered pagination so
// the extractor sees the full listing set.
type BrowserFetcher struct {
	browser *rod.Browser
	cfg     config.FetcherConfig
	logger  *slog.Logger

	mu sync.Mutex
}

// NewBrowserFetcher launches a Chromium instance and connects to it.
func NewBrowserFetcher(cfg config.FetcherConfig, logger *slog.Logger) (*BrowserFetcher, error) {
	l := launcher.New().
		Headless(true).
		Set("disable-gpu").
		Set("disable-dev-shm-usage").
		Set("no-sandbox").
		Set("disable-setuid-sandbox").
		Set("disable-blink-features", "AutomationControlled")

	if cfg.WindowSize != "" {
		l = l.Set("window-size", cfg.WindowSize)
	}

	launchURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	browser := rod.New().ControlURL(launchURL)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("connect browser: %w", err)
	}

	bf := &BrowserFetcher{
		browser: browser,
		cfg:     cfg,
		logger:  logger.With("component", "browser_fetcher"),
	}
	bf.logger.Info("browser fetcher ready", "stealth", cfg.Stealth)
	return bf, nil
}

// Fetch renders one configured page entry and every pagination page behind
// it, up to the configured limit.
func (bf *BrowserFetcher) Fetch(ctx context.Context, p *profile.SourceProfile, pc config.PageConfig) ([]Page, error) {
	// One rendering session at a time keeps memory predictable; source
	// concurrency comes from running fetchers per source, not per tab.
	bf.mu.Lock()
	defer bf.mu.Unlock()

	page, err := bf.newPage()
	if err != nil {
		return nil, &types.FetchError{URL: pc.URL, Err: err, Retryable: true}
	}
	defer page.Close()

	page = page.Context(ctx)
	timeout := bf.cfg.RequestTimeout

	if err := page.Timeout(timeout).Navigate(pc.URL); err != nil {
		return nil, &types.FetchError{URL: pc.URL, Err: err, Retryable: true}
	}
	if err := page.Timeout(timeout).WaitStable(300 * time.Millisecond); err != nil {
		bf.logger.Warn("page stability timeout, continuing", "url", pc.URL, "error", err)
	}

	bf.dismissConsent(page)
	bf.slowScroll(page)
	bf.expandShowMore(page)

	markup, err := page.HTML()
	if err != nil {
		return nil, &types.FetchError{URL: pc.URL, Err: err, Retryable: true}
	}

	pages := []Page{{URL: pc.URL, Category: pc.Category, Markup: markup}}

	// Numbered pagination: click "2", "3", ... until the link disappears
	// or the page cap is reached.
	maxPages := bf.cfg.MaxPages
	if maxPages <= 0 {
		maxPages = 1
	}
	for num := 2; num <= maxPages; num++ {
		select {
		case <-ctx.Done():
			return pages, ctx.Err()
		default:
		}

		link := bf.findElement(page, fmt.Sprintf(`//a[normalize-space(text())=%q]`, strconv.Itoa(num)))
		if link == nil {
			break
		}
		if err := link.Click(proto.InputMouseButtonLeft, 1); err != nil {
			bf.logger.Warn("pagination click failed", "url", pc.URL, "page", num, "error", err)
			break
		}
		if err := page.Timeout(timeout).WaitStable(300 * time.Millisecond); err != nil {
			bf.logger.Warn("page stability timeout, continuing", "url", pc.URL, "page", num, "error", err)
		}
		bf.slowScroll(page)

		markup, err := page.HTML()
		if err != nil {
			bf.logger.Warn("pagination markup failed", "url", pc.URL, "page", num, "error", err)
			break
		}
		info, _ := page.Info()
		pageURL := pc.URL
		if info != nil {
			pageURL = info.URL
		}
		pages = append(pages, Page{URL: pageURL, Category: pc.Category, Markup: markup})
	}

	bf.logger.Debug("browser fetch complete",
		"source", p.Name,
		"category", pc.Category,
		"pages", len(pages),
	)
	return pages, nil
}

// Close shuts down the browser.
func (bf *BrowserFetcher) Close() error {
	if bf.browser != nil {
		return bf.browser.Close()
	}
	return nil
}

// Type returns the fetcher type identifier.
func (bf *BrowserFetcher) Type() string { return "browser" }

// newPage creates a tab, with stealth patches when enabled.
func (bf *BrowserFetcher) newPage() (*rod.Page, error) {
	if bf.cfg.Stealth {
		return stealth.Page(bf.browser)
	}
	return bf.browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
}

// dismissConsent clicks the first visible consent button, if any.
func (bf *BrowserFetcher) dismissConsent(page *rod.Page) {
	for _, xp := range consentXPaths {
		el := bf.findElement(page, xp)
		if el == nil {
			continue
		}
		if err := el.Click(proto.InputMouseButtonLeft, 1); err == nil {
			time.Sleep(500 * time.Millisecond)
			return
		}
	}
}

// slowScroll walks down the page step by step so lazy-loaded listings render.
func (bf *BrowserFetcher) slowScroll(page *rod.Page) {
	for i := 0; i < bf.cfg.ScrollSteps; i++ {
		if _, err := page.Eval(`() => window.scrollBy(0, window.innerHeight)`); err != nil {
			return
		}
		time.Sleep(bf.cfg.ScrollPause)
	}
}

// expandShowMore clicks "show more" style buttons until they disappear or the
// click cap is reached.
func (bf *BrowserFetcher) expandShowMore(page *rod.Page) {
	for clicks := 0; clicks < bf.cfg.MaxShowMoreClicks; clicks++ {
		var el *rod.Element
		for _, xp := range showMoreXPaths {
			if el = bf.findElement(page, xp); el != nil {
				break
			}
		}
		if el == nil {
			return
		}
		if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
			return
		}
		time.Sleep(bf.cfg.ScrollPause)
	}
}

// findElement returns the first visible match for an XPath without waiting.
func (bf *BrowserFetcher) findElement(page *rod.Page, xp string) *rod.Element {
	els, err := page.ElementsX(xp)
	if err != nil || len(els) == 0 {
		return nil
	}
	for _, el := range els {
		if visible, err := el.Visible(); err == nil && visible {
			return el
		}
	}
	return nil
}
