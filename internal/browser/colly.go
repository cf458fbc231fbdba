package browser

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"
)

// CollyConfig controls the plain-HTTP page client.
type CollyConfig struct {
	UserAgent string
	Timeout   time.Duration
}

// CollyPage is a catalog.PageClient backed by a Colly collector. It covers
// hosts that serve the catalog API without challenge protection; the
// browser-facing operations are no-ops since there is no window to drive.
type CollyPage struct {
	cfg           CollyConfig
	baseCollector *colly.Collector

	mu    sync.RWMutex
	title string
}

// NewColly builds a CollyPage.
func NewColly(cfg CollyConfig) *CollyPage {
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	c := colly.NewCollector(colly.Async(false))
	c.IgnoreRobotsTxt = true
	c.WithTransport(newHTTPTransport())
	if cfg.UserAgent != "" {
		c.UserAgent = cfg.UserAgent
	}
	c.SetRequestTimeout(cfg.Timeout)
	return &CollyPage{cfg: cfg, baseCollector: c}
}

// Get executes a single HTTP GET and returns the status code and body.
func (p *CollyPage) Get(ctx context.Context, url string) (int, []byte, error) {
	var (
		status   int
		body     []byte
		fetchErr error
	)
	collector := p.baseCollector.Clone()
	collector.OnResponse(func(r *colly.Response) {
		status = r.StatusCode
		body = r.Body
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode != 0 {
			// Non-2xx comes through OnError with the status attached;
			// it is still a usable answer, not a transport failure.
			status = r.StatusCode
			body = r.Body
			return
		}
		fetchErr = err
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()
	select {
	case <-ctx.Done():
		return 0, nil, ctx.Err()
	case err := <-done:
		if fetchErr != nil {
			return 0, nil, fetchErr
		}
		if status == 0 && err != nil {
			return 0, nil, err
		}
	}
	return status, body, nil
}

// BringToFront is a no-op: there is no browser window.
func (p *CollyPage) BringToFront(context.Context) error { return nil }

// Reload is a no-op for the HTTP client.
func (p *CollyPage) Reload(context.Context) error { return nil }

// Title returns the last title recorded, which for the HTTP client stays
// empty unless a test sets one.
func (p *CollyPage) Title(context.Context) (string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.title, nil
}

// SetTitle overrides the reported title.
func (p *CollyPage) SetTitle(title string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.title = title
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
	}
}
