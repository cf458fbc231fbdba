// Package app runs one complete crawl: discover the live catalog, diff it
// against the store, scrape what changed, retire what disappeared.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dropradar/catalog-crawler/internal/captcha"
	"github.com/dropradar/catalog-crawler/internal/catalog"
	"github.com/dropradar/catalog-crawler/internal/category"
	"github.com/dropradar/catalog-crawler/internal/diff"
	"github.com/dropradar/catalog-crawler/internal/fetch"
	"github.com/dropradar/catalog-crawler/internal/pipeline"
	"github.com/dropradar/catalog-crawler/internal/publisher"
	"github.com/dropradar/catalog-crawler/internal/site"
	"github.com/dropradar/catalog-crawler/internal/sitemap"
	"github.com/dropradar/catalog-crawler/internal/store"
)

// Flusher is implemented by stores that persist as one end-of-run
// snapshot rather than per write.
type Flusher interface {
	Flush(ctx context.Context) (string, error)
}

// Options collects the run's collaborators, already configured.
type Options struct {
	Strategy site.Strategy
	Page     catalog.PageClient
	Store    store.Store
	Stats    *catalog.RunStats
	Logger   *zap.Logger

	GatewayConfig fetch.Config
	CaptchaConfig captcha.Config

	Workers        int
	ResultBuffer   int
	SitemapFetches int

	// Publisher, when non-nil, receives the run summary on Topic.
	Publisher publisher.Publisher
	Topic     string
}

// RunSummary is the published and logged result of one crawl.
type RunSummary struct {
	RunID             string    `json:"runId"`
	Site              string    `json:"site"`
	StartedAt         time.Time `json:"startedAt"`
	FinishedAt        time.Time `json:"finishedAt"`
	Discovered        int       `json:"discovered"`
	Scraped           int       `json:"scraped"`
	Kept              int       `json:"kept"`
	Retired           int       `json:"retired"`
	Persisted         int       `json:"persisted"`
	SnapshotURI       string    `json:"snapshotUri,omitempty"`
	RequestsAttempted int64     `json:"requestsAttempted"`
	RequestsFailed    int64     `json:"requestsFailed"`
	Challenges        int64     `json:"challenges"`
}

// Run executes one crawl end to end and returns its summary.
func Run(ctx context.Context, opts Options) (RunSummary, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	stats := opts.Stats
	if stats == nil {
		stats = catalog.NewRunStats()
	}
	meta := opts.Strategy.Metadata()

	summary := RunSummary{
		RunID:     uuid.NewString(),
		Site:      opts.Strategy.Name(),
		StartedAt: time.Now().UTC(),
	}
	logger = logger.With(zap.String("run_id", summary.RunID), zap.String("site", summary.Site))
	logger.Info("crawl starting")

	coord := captcha.New(opts.CaptchaConfig, opts.Page, nil, stats, logger)
	gateway := fetch.New(opts.GatewayConfig, opts.Page, coord, stats, logger)

	// The category trees come first: the crawl is useless without them,
	// so this retries until the site answers or the run is canceled.
	paths, err := loadCategories(ctx, gateway, meta.NavigationURLs, logger)
	if err != nil {
		return summary, err
	}

	// The index fetch is held to the same rule as navigation: without it
	// there is no crawl, so it retries until it lands. Child shards stay
	// on the bounded fetcher and are skipped when they fail.
	discoverer := sitemap.New(sitemap.Config{
		IndexURL:           meta.SitemapIndexURL,
		ChildPattern:       meta.ChildPattern,
		ProductPathSegment: meta.ProductPathSegment,
		LocalePattern:      meta.LocalePattern,
		BaseURL:            meta.BaseURL,
		MaxConcurrent:      opts.SitemapFetches,
	}, requiredFetcher{gateway}, gateway, logger)
	live, err := discoverer.Discover(ctx)
	if err != nil {
		return summary, fmt.Errorf("discover catalog: %w", err)
	}
	summary.Discovered = len(live)

	stored, err := opts.Store.URLSet(ctx)
	if err != nil {
		return summary, fmt.Errorf("load stored urls: %w", err)
	}
	plan := diff.Compute(stored, live)
	summary.Scraped = len(plan.ToScrape)
	summary.Kept = len(plan.Keep)
	summary.Retired = len(plan.Retire)
	logger.Info("crawl planned",
		zap.Int("to_scrape", len(plan.ToScrape)),
		zap.Int("keep", len(plan.Keep)),
		zap.Int("retire", len(plan.Retire)))

	if err := opts.Store.Retire(ctx, plan.Retire); err != nil {
		return summary, fmt.Errorf("retire products: %w", err)
	}

	pipe := pipeline.New(pipeline.Config{
		Workers:      opts.Workers,
		ResultBuffer: opts.ResultBuffer,
	}, gateway, opts.Strategy, paths, opts.Store, stats, logger)
	persisted, err := pipe.Run(ctx, plan.ToScrape)
	summary.Persisted = persisted
	if err != nil {
		return summary, fmt.Errorf("scrape products: %w", err)
	}

	if flusher, ok := opts.Store.(Flusher); ok {
		uri, err := flusher.Flush(ctx)
		if err != nil {
			return summary, fmt.Errorf("flush snapshot: %w", err)
		}
		summary.SnapshotURI = uri
	}

	snap := stats.Snapshot()
	summary.FinishedAt = time.Now().UTC()
	summary.RequestsAttempted = snap.RequestsAttempted
	summary.RequestsFailed = snap.RequestsFailed
	summary.Challenges = snap.ChallengesTriggered
	logger.Info("crawl finished",
		zap.Int("persisted", summary.Persisted),
		zap.Int64("requests_attempted", snap.RequestsAttempted),
		zap.Int64("requests_succeeded", snap.RequestsSucceeded),
		zap.Int64("requests_failed", snap.RequestsFailed),
		zap.Int64("challenges", snap.ChallengesTriggered),
		zap.Int64("products_raw", snap.ProductsRaw),
		zap.Int64("products_unique", snap.ProductsUnique),
		zap.Duration("elapsed", summary.FinishedAt.Sub(summary.StartedAt)))

	if opts.Publisher != nil {
		id, err := opts.Publisher.Publish(ctx, opts.Topic, summary)
		if err != nil {
			// The crawl itself succeeded; a lost event is not fatal.
			logger.Warn("run event not published", zap.Error(err))
		} else {
			logger.Info("run event published", zap.String("message_id", id))
		}
	}
	return summary, nil
}

func loadCategories(ctx context.Context, gateway *fetch.Gateway, urls []string, logger *zap.Logger) (catalog.CategoryPaths, error) {
	fetcher := requiredFetcher{gateway}
	paths, err := category.Load(ctx, fetcher, urls, logger)
	if err != nil {
		return nil, fmt.Errorf("load categories: %w", err)
	}
	return paths, nil
}

// requiredFetcher swaps the bounded-retry Fetch for FetchRequired so
// startup survives a challenge that takes a while to solve.
type requiredFetcher struct {
	gateway *fetch.Gateway
}

func (f requiredFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	return f.gateway.FetchRequired(ctx, url)
}
