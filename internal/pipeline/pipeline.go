// Package pipeline runs the scrape stage: workers fetch and parse product
// payloads, a single collector persists them.
package pipeline

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/dropradar/catalog-crawler/internal/catalog"
	"github.com/dropradar/catalog-crawler/internal/metrics"
	"github.com/dropradar/catalog-crawler/internal/site"
	"github.com/dropradar/catalog-crawler/internal/store"
)

// Fetcher is the subset of the fetch gateway the pipeline needs.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Config sizes the pipeline.
type Config struct {
	// Workers is the number of fetch-and-parse goroutines.
	Workers int
	// ResultBuffer caps parsed products waiting for the collector.
	ResultBuffer int
}

// Pipeline fans sitemap entries out to workers and funnels the parsed
// products into the store through one collector goroutine.
type Pipeline struct {
	cfg      Config
	fetcher  Fetcher
	strategy site.Strategy
	paths    catalog.CategoryPaths
	store    store.Store
	stats    *catalog.RunStats
	logger   *zap.Logger
}

// New builds a Pipeline.
func New(cfg Config, fetcher Fetcher, strategy site.Strategy, paths catalog.CategoryPaths, st store.Store, stats *catalog.RunStats, logger *zap.Logger) *Pipeline {
	if cfg.Workers <= 0 {
		cfg.Workers = 8
	}
	if cfg.ResultBuffer <= 0 {
		cfg.ResultBuffer = 64
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		cfg:      cfg,
		fetcher:  fetcher,
		strategy: strategy,
		paths:    paths,
		store:    st,
		stats:    stats,
		logger:   logger,
	}
}

// Run scrapes the given entries and returns how many products were
// persisted. A product that fails to fetch, parse, or persist is logged
// and dropped; only context cancellation aborts the run.
func (p *Pipeline) Run(ctx context.Context, entries []catalog.SitemapEntry) (int, error) {
	work := make(chan catalog.SitemapEntry)
	results := make(chan catalog.Product, p.cfg.ResultBuffer)

	var wg sync.WaitGroup
	for range p.cfg.Workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.worker(ctx, work, results)
		}()
	}
	go func() {
		wg.Wait()
		close(results)
	}()
	go func() {
		defer close(work)
		for _, entry := range entries {
			select {
			case work <- entry:
			case <-ctx.Done():
				return
			}
		}
	}()

	persisted := 0
	for product := range results {
		if err := p.store.UpsertProduct(ctx, product); err != nil {
			metrics.ObservePersist(false)
			p.logger.Warn("product not persisted",
				zap.String("url", product.URL), zap.Error(err))
			continue
		}
		metrics.ObservePersist(true)
		persisted++
		if p.stats != nil {
			p.stats.ProductsUnique.Add(1)
		}
	}
	if err := ctx.Err(); err != nil {
		return persisted, err
	}
	return persisted, nil
}

func (p *Pipeline) worker(ctx context.Context, work <-chan catalog.SitemapEntry, results chan<- catalog.Product) {
	for entry := range work {
		product, ok := p.scrape(ctx, entry)
		if !ok {
			continue
		}
		select {
		case results <- product:
		case <-ctx.Done():
			return
		}
	}
}

func (p *Pipeline) scrape(ctx context.Context, entry catalog.SitemapEntry) (catalog.Product, bool) {
	raw, err := p.fetcher.Fetch(ctx, p.strategy.BuildURL(entry.URL))
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			// Sitemaps routinely list products that are already gone.
			p.logger.Debug("product gone", zap.String("url", entry.URL))
			return catalog.Product{}, false
		}
		if ctx.Err() == nil {
			p.logger.Warn("product fetch failed",
				zap.String("url", entry.URL), zap.Error(err))
		}
		return catalog.Product{}, false
	}
	if p.stats != nil {
		p.stats.ProductsRaw.Add(1)
	}

	product, err := p.strategy.ParseProduct(raw, entry, p.paths)
	if err != nil {
		metrics.ObserveParse(false)
		p.logger.Warn("product payload rejected",
			zap.String("url", entry.URL), zap.Error(err))
		return catalog.Product{}, false
	}
	metrics.ObserveParse(true)
	return product, true
}
