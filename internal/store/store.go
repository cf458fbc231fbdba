// Package store defines the persistence surface for crawled catalogs.
package store

import (
	"context"

	"github.com/dropradar/catalog-crawler/internal/catalog"
)

// Store persists the crawled catalog between runs.
type Store interface {
	// URLSet returns every stored product URL sorted ascending.
	URLSet(ctx context.Context) ([]string, error)
	// UpsertProduct inserts or replaces the product keyed by URL. The size
	// list stored afterwards is exactly the product's, old rows included.
	UpsertProduct(ctx context.Context, p catalog.Product) error
	// Retire removes the products for the given URLs.
	Retire(ctx context.Context, urls []string) error
	// Products returns every stored product sorted by URL.
	Products(ctx context.Context) ([]catalog.Product, error)
	// Close releases the underlying resources.
	Close()
}
