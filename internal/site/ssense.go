package site

import (
	"regexp"

	"github.com/dropradar/catalog-crawler/internal/catalog"
	"github.com/dropradar/catalog-crawler/internal/product"
)

const ssenseBase = "https://www.ssense.com/en-us"

// ssense crawls www.ssense.com, which serves a JSON document for every
// product page at the page URL plus a ".json" suffix.
type ssense struct{}

func init() {
	Register(ssense{})
}

func (ssense) Name() string { return "ssense" }

func (ssense) Metadata() Metadata {
	return Metadata{
		BaseURL:            ssenseBase,
		SitemapIndexURL:    "https://www.ssense.com/sitemap.xml",
		ChildPattern:       "sitemap_products_list",
		ProductPathSegment: "/product/",
		LocalePattern:      regexp.MustCompile(`https://www\.ssense\.com/[a-z]{2}-[a-z]{2}`),
		NavigationURLs: []string{
			ssenseBase + "/api/navigation/men/v2.json",
			ssenseBase + "/api/navigation/women/v2.json",
			ssenseBase + "/api/navigation/everything-else/v2.json",
		},
		WarmupURL:      ssenseBase,
		ChallengeTitle: "Access to this page has been denied",
	}
}

func (ssense) BuildURL(productURL string) string {
	return productURL + ".json"
}

func (ssense) ParseProduct(raw []byte, entry catalog.SitemapEntry, paths catalog.CategoryPaths) (catalog.Product, error) {
	return product.Parse(raw, entry, paths)
}
