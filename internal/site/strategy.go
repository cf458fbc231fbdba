// Package site holds the per-site strategies: where a site's sitemaps and
// navigation live and how its product payloads decode.
package site

import (
	"fmt"
	"regexp"
	"sort"

	"github.com/dropradar/catalog-crawler/internal/catalog"
)

// Metadata describes where a site's crawlable surfaces live.
type Metadata struct {
	// BaseURL is the canonical locale root all product URLs are rewritten to.
	BaseURL string
	// SitemapIndexURL is the root sitemap index.
	SitemapIndexURL string
	// ChildPattern selects product sitemaps out of the index.
	ChildPattern string
	// ProductPathSegment selects product entries out of a url set.
	ProductPathSegment string
	// LocalePattern matches the locale prefix rewritten to BaseURL.
	LocalePattern *regexp.Regexp
	// NavigationURLs are the category tree endpoints.
	NavigationURLs []string
	// WarmupURL is navigated once before crawling to establish a session.
	WarmupURL string
	// ChallengeTitle is the page title shown while access is denied.
	ChallengeTitle string
}

// Strategy is one site's crawl recipe.
type Strategy interface {
	// Name identifies the site in config and logs.
	Name() string
	Metadata() Metadata
	// BuildURL maps a product page URL to its data endpoint.
	BuildURL(productURL string) string
	// ParseProduct decodes a product payload fetched from BuildURL.
	ParseProduct(raw []byte, entry catalog.SitemapEntry, paths catalog.CategoryPaths) (catalog.Product, error)
}

var registry = map[string]Strategy{}

// Register adds a strategy; duplicate names panic at init time.
func Register(s Strategy) {
	if _, dup := registry[s.Name()]; dup {
		panic(fmt.Sprintf("site: duplicate strategy %q", s.Name()))
	}
	registry[s.Name()] = s
}

// Lookup returns the strategy registered under name.
func Lookup(name string) (Strategy, error) {
	s, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("site: no strategy %q (known: %v)", name, Names())
	}
	return s, nil
}

// Names lists the registered strategies in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
