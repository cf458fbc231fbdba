// Package catalog defines the core types and interfaces shared by the
// crawl, parse, and persistence subsystems.
package catalog

import (
	"context"
	"math"
)

// Product is the canonical, normalized record produced for one catalog item.
// Records are immutable once constructed; a re-fetch produces a fresh record
// that replaces the old one by URL.
type Product struct {
	URL          string   `json:"url"`
	Name         string   `json:"name"`
	Brand        string   `json:"brand"`
	Gender       string   `json:"gender"`
	IsGenderless bool     `json:"isGenderless"`
	CategoryPath []string `json:"categoryPath"`
	Regular      float64  `json:"regular"`
	Lowest       float64  `json:"lowest"`
	Discount     int      `json:"discount"`
	Description  string   `json:"description"`
	Sizes        []string `json:"sizes"`
	Images       []string `json:"images"`
	ProductCode  string   `json:"productCode,omitempty"`
	Color        string   `json:"color,omitempty"`
	Composition  string   `json:"composition,omitempty"`
	Country      string   `json:"country,omitempty"`
}

// SitemapEntry is one product page discovered via sitemap traversal,
// together with the image URLs listed alongside it.
type SitemapEntry struct {
	URL    string
	Images []string
}

// ComputeDiscount returns the rounded percentage discount between the
// regular and lowest price. The result is always in [0, 100]; a lowest
// price at or above the regular price yields 0.
func ComputeDiscount(regular, lowest float64) int {
	if regular <= 0 || lowest >= regular {
		return 0
	}
	pct := int(math.Round((regular - lowest) / regular * 100))
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}

// PageClient is the browser-automation boundary. Implementations issue the
// actual HTTP request from a shared page context and expose the handful of
// page operations needed to surface an anti-bot challenge to a human.
// The same client instance is invoked concurrently by many logical fetches.
type PageClient interface {
	// Get requests url and returns the HTTP status and response body.
	Get(ctx context.Context, url string) (status int, body []byte, err error)
	// BringToFront raises the page window so a human can see the challenge.
	BringToFront(ctx context.Context) error
	// Reload reloads the page.
	Reload(ctx context.Context) error
	// Title returns the current page title.
	Title(ctx context.Context) (string, error)
}

// CategoryPaths resolves a category id to its root-to-leaf name path.
type CategoryPaths interface {
	Path(id string) []string
}
