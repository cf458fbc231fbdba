// Package browser implements the page clients used to issue catalog
// requests. The chromedp client rides a real browser tab so requests carry
// the site's own session state; the colly client is a plain HTTP fallback
// for hosts without challenge protection.
package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
)

// Config controls the chromedp-backed page client.
type Config struct {
	// Headless should stay false for challenge-protected sites: a human
	// has to be able to see and solve the CAPTCHA in the window.
	Headless bool
	// WarmupURL is navigated once at startup to establish cookies and a
	// session before any API fetches are issued.
	WarmupURL string
	UserAgent string
	// RequestTimeout bounds one in-page fetch.
	RequestTimeout time.Duration
}

// Page is a chromedp-backed catalog.PageClient. One shared tab issues all
// requests via the page's own fetch(), which is what lets them pass the
// site's anti-bot checks; the tab is assumed safe for concurrent use.
type Page struct {
	cfg         Config
	allocCtx    context.Context
	allocCancel context.CancelFunc
	tabCtx      context.Context
	tabCancel   context.CancelFunc
}

// fetchScript runs fetch() inside the page and returns status plus body.
const fetchScript = `(async url => {
	const r = await fetch(url);
	return {status: r.status, body: await r.text()};
})(%q)`

type fetchResult struct {
	Status int    `json:"status"`
	Body   string `json:"body"`
}

// New launches the browser, opens the shared tab, and navigates to the
// warmup URL.
func New(ctx context.Context, cfg Config) (*Page, error) {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 45 * time.Second
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("hide-scrollbars", false),
	)
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)

	p := &Page{
		cfg:         cfg,
		allocCtx:    allocCtx,
		allocCancel: allocCancel,
		tabCtx:      tabCtx,
		tabCancel:   tabCancel,
	}

	if cfg.WarmupURL != "" {
		navCtx, cancel := context.WithTimeout(tabCtx, cfg.RequestTimeout)
		defer cancel()
		if err := chromedp.Run(navCtx,
			chromedp.Navigate(cfg.WarmupURL),
			chromedp.WaitReady("body", chromedp.ByQuery),
		); err != nil {
			p.Close()
			return nil, fmt.Errorf("warmup navigation: %w", err)
		}
	}
	return p, nil
}

// Get issues an in-page fetch for url and returns the HTTP status and body.
func (p *Page) Get(ctx context.Context, url string) (int, []byte, error) {
	runCtx, cancel := p.boundCtx(ctx)
	defer cancel()

	var res fetchResult
	err := chromedp.Run(runCtx, chromedp.Evaluate(
		fmt.Sprintf(fetchScript, url),
		&res,
		func(params *runtime.EvaluateParams) *runtime.EvaluateParams {
			return params.WithAwaitPromise(true)
		},
	))
	if err != nil {
		return 0, nil, fmt.Errorf("in-page fetch: %w", err)
	}
	return res.Status, []byte(res.Body), nil
}

// BringToFront raises the browser window.
func (p *Page) BringToFront(ctx context.Context) error {
	runCtx, cancel := p.boundCtx(ctx)
	defer cancel()
	if err := chromedp.Run(runCtx, page.BringToFront()); err != nil {
		return fmt.Errorf("bring to front: %w", err)
	}
	return nil
}

// Reload reloads the shared tab.
func (p *Page) Reload(ctx context.Context) error {
	runCtx, cancel := p.boundCtx(ctx)
	defer cancel()
	if err := chromedp.Run(runCtx, chromedp.Reload()); err != nil {
		return fmt.Errorf("reload: %w", err)
	}
	return nil
}

// Title returns the current page title.
func (p *Page) Title(ctx context.Context) (string, error) {
	runCtx, cancel := p.boundCtx(ctx)
	defer cancel()
	var title string
	if err := chromedp.Run(runCtx, chromedp.Title(&title)); err != nil {
		return "", fmt.Errorf("read title: %w", err)
	}
	return title, nil
}

// Close tears down the tab and the browser process.
func (p *Page) Close() {
	p.tabCancel()
	p.allocCancel()
}

// boundCtx derives a run context from the shared tab that also honors the
// caller's cancellation and the request timeout.
func (p *Page) boundCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	runCtx, cancel := context.WithTimeout(p.tabCtx, p.cfg.RequestTimeout)
	stop := context.AfterFunc(ctx, cancel)
	return runCtx, func() {
		stop()
		cancel()
	}
}
