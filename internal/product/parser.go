// Package product turns raw product API payloads into catalog products.
package product

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dropradar/catalog-crawler/internal/catalog"
)

// locale selects which translation of the localized fields is kept.
const locale = "en"

type payload struct {
	Product *doc `json:"product"`
}

type doc struct {
	Name        map[string]string `json:"name"`
	Description map[string]string `json:"description"`
	Composition map[string]string `json:"composition"`
	// The API localizes color directly but nests the country name one
	// level deeper.
	PrimaryColor  map[string]string `json:"primaryColor"`
	CountryOrigin struct {
		NameByLanguage map[string]string `json:"nameByLanguage"`
	} `json:"countryOrigin"`
	Brand struct {
		Name map[string]string `json:"name"`
	} `json:"brand"`
	Gender         string        `json:"gender"`
	IsGenderless   bool          `json:"isGenderless"`
	ProductCode    string        `json:"productCode"`
	AllCategoryIDs []json.Number `json:"allCategoryIds"`
	Images         []string      `json:"images"`
	Price          []price       `json:"price"`
	Variants       []variant     `json:"variants"`
}

type price struct {
	Regular float64 `json:"regular"`
	Lowest  struct {
		Amount float64 `json:"amount"`
	} `json:"lowest"`
}

type variant struct {
	InStock bool `json:"inStock"`
	Size    struct {
		Name string `json:"name"`
	} `json:"size"`
}

// Parse decodes a product payload into a catalog.Product. The sitemap
// entry supplies the canonical URL and any image URLs the payload lacks;
// paths resolves the leaf category ID into a breadcrumb.
func Parse(raw []byte, entry catalog.SitemapEntry, paths catalog.CategoryPaths) (catalog.Product, error) {
	var p payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return catalog.Product{}, fmt.Errorf("decode product payload: %w", err)
	}
	if p.Product == nil {
		return catalog.Product{}, fmt.Errorf("payload for %s has no product object", entry.URL)
	}
	d := p.Product

	name := d.Name[locale]
	if name == "" {
		return catalog.Product{}, fmt.Errorf("product %s has no %s name", entry.URL, locale)
	}
	brand := d.Brand.Name[locale]
	if brand == "" {
		return catalog.Product{}, fmt.Errorf("product %s has no %s brand", entry.URL, locale)
	}
	if len(d.Price) == 0 {
		return catalog.Product{}, fmt.Errorf("product %s has no price", entry.URL)
	}
	regular := d.Price[0].Regular
	lowest := d.Price[0].Lowest.Amount
	if lowest == 0 {
		lowest = regular
	}

	out := catalog.Product{
		URL:          entry.URL,
		Name:         name,
		Brand:        brand,
		Gender:       genderOf(d),
		IsGenderless: d.IsGenderless,
		CategoryPath: categoryPath(d, paths),
		Regular:      regular,
		Lowest:       lowest,
		Discount:     catalog.ComputeDiscount(regular, lowest),
		Description:  d.Description[locale],
		Sizes:        inStockSizes(d.Variants),
		Images:       imagesOf(d, entry),
		ProductCode:  d.ProductCode,
		Color:        d.PrimaryColor[locale],
		Composition:  d.Composition[locale],
		Country:      d.CountryOrigin.NameByLanguage[locale],
	}
	return out, nil
}

// genderOf maps the payload gender to the catalog vocabulary; genderless
// products report "other" regardless of the declared gender.
func genderOf(d *doc) string {
	if d.IsGenderless {
		return "other"
	}
	return strings.ToLower(d.Gender)
}

// categoryPath resolves the most specific category ID. The last entry of
// allCategoryIds is the leaf.
func categoryPath(d *doc, paths catalog.CategoryPaths) []string {
	if len(d.AllCategoryIDs) == 0 || paths == nil {
		return []string{"Unknown"}
	}
	leaf := d.AllCategoryIDs[len(d.AllCategoryIDs)-1].String()
	return paths.Path(leaf)
}

// inStockSizes keeps the sellable variant sizes in canonical order.
func inStockSizes(variants []variant) []string {
	var sizes []string
	for _, v := range variants {
		if !v.InStock || v.Size.Name == "" {
			continue
		}
		sizes = append(sizes, catalog.CleanSize(v.Size.Name))
	}
	return catalog.SortSizes(sizes)
}

// imagesOf prefers payload images and falls back to the sitemap's.
func imagesOf(d *doc, entry catalog.SitemapEntry) []string {
	if len(d.Images) > 0 {
		return d.Images
	}
	return entry.Images
}
