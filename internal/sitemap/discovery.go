// Package sitemap discovers product URLs by walking a site's XML sitemap
// index down to the product url sets.
package sitemap

import (
	"context"
	"encoding/xml"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dropradar/catalog-crawler/internal/catalog"
)

// Fetcher is the subset of the fetch gateway discovery needs.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Config selects which sitemaps and entries count as product material.
type Config struct {
	// IndexURL is the root sitemap index.
	IndexURL string
	// ChildPattern keeps only index children whose loc contains it.
	ChildPattern string
	// ProductPathSegment keeps only urlset entries whose loc contains it.
	ProductPathSegment string
	// LocalePattern, when set, is replaced by BaseURL in every kept loc so
	// the crawl always runs against one canonical locale.
	LocalePattern *regexp.Regexp
	BaseURL       string
	// MaxConcurrent bounds parallel child sitemap fetches.
	MaxConcurrent int
}

// Discoverer walks the sitemap tree.
type Discoverer struct {
	cfg      Config
	index    Fetcher
	children Fetcher
	logger   *zap.Logger
}

// New builds a Discoverer. The index fetcher is used for the root index,
// which the crawl cannot proceed without; callers wire a fetcher that
// keeps retrying there. The children fetcher covers the child shards,
// where a failure is survivable. A nil index fetcher falls back to
// children.
func New(cfg Config, index, children Fetcher, logger *zap.Logger) *Discoverer {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 4
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if index == nil {
		index = children
	}
	return &Discoverer{cfg: cfg, index: index, children: children, logger: logger}
}

type sitemapIndex struct {
	XMLName  xml.Name `xml:"sitemapindex"`
	Sitemaps []struct {
		Loc string `xml:"loc"`
	} `xml:"sitemap"`
}

type urlSet struct {
	XMLName xml.Name `xml:"urlset"`
	URLs    []struct {
		Loc    string `xml:"loc"`
		Images []struct {
			Loc string `xml:"loc"`
		} `xml:"image"`
	} `xml:"url"`
}

// Discover fetches the index, walks the matching children, and returns the
// deduplicated product entries sorted by URL. A child that fails to fetch
// or parse is logged and skipped so one bad shard does not sink the run.
func (d *Discoverer) Discover(ctx context.Context) ([]catalog.SitemapEntry, error) {
	body, err := d.index.Fetch(ctx, d.cfg.IndexURL)
	if err != nil {
		return nil, fmt.Errorf("fetch sitemap index %s: %w", d.cfg.IndexURL, err)
	}

	children, err := d.parseIndex(body)
	if err != nil {
		return nil, fmt.Errorf("parse sitemap index %s: %w", d.cfg.IndexURL, err)
	}
	d.logger.Info("sitemap index walked",
		zap.String("index", d.cfg.IndexURL),
		zap.Int("children", len(children)))

	var (
		mu      sync.Mutex
		entries = make(map[string]catalog.SitemapEntry)
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.cfg.MaxConcurrent)
	for _, child := range children {
		g.Go(func() error {
			found, err := d.discoverChild(gctx, child)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				d.logger.Warn("child sitemap skipped",
					zap.String("url", child), zap.Error(err))
				return nil
			}
			mu.Lock()
			for _, e := range found {
				// The same canonical URL can surface from several locale
				// shards; keep whichever copy carries images.
				if prev, ok := entries[e.URL]; ok && len(e.Images) == 0 {
					e.Images = prev.Images
				}
				entries[e.URL] = e
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]catalog.SitemapEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].URL < out[j].URL })
	d.logger.Info("product urls discovered", zap.Int("count", len(out)))
	return out, nil
}

func (d *Discoverer) parseIndex(body []byte) ([]string, error) {
	var idx sitemapIndex
	if err := xml.Unmarshal(body, &idx); err != nil {
		return nil, err
	}
	var children []string
	for _, sm := range idx.Sitemaps {
		loc := strings.TrimSpace(sm.Loc)
		if loc == "" {
			continue
		}
		if d.cfg.ChildPattern != "" && !strings.Contains(loc, d.cfg.ChildPattern) {
			continue
		}
		children = append(children, loc)
	}
	return children, nil
}

func (d *Discoverer) discoverChild(ctx context.Context, url string) ([]catalog.SitemapEntry, error) {
	body, err := d.children.Fetch(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	var set urlSet
	if err := xml.Unmarshal(body, &set); err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}

	var entries []catalog.SitemapEntry
	for _, u := range set.URLs {
		loc := strings.TrimSpace(u.Loc)
		if loc == "" {
			continue
		}
		if d.cfg.ProductPathSegment != "" && !strings.Contains(loc, d.cfg.ProductPathSegment) {
			continue
		}
		entry := catalog.SitemapEntry{URL: d.canonicalize(loc)}
		for _, img := range u.Images {
			if img.Loc != "" {
				entry.Images = append(entry.Images, img.Loc)
			}
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// canonicalize rewrites the locale prefix so every URL lands on the
// configured base.
func (d *Discoverer) canonicalize(loc string) string {
	if d.cfg.LocalePattern == nil || d.cfg.BaseURL == "" {
		return loc
	}
	return d.cfg.LocalePattern.ReplaceAllString(loc, d.cfg.BaseURL)
}
