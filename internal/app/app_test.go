package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dropradar/catalog-crawler/internal/captcha"
	"github.com/dropradar/catalog-crawler/internal/catalog"
	"github.com/dropradar/catalog-crawler/internal/fetch"
	"github.com/dropradar/catalog-crawler/internal/publisher/memory"
	"github.com/dropradar/catalog-crawler/internal/site"
	"github.com/dropradar/catalog-crawler/internal/store/archive"
)

const testIndexXML = `<?xml version="1.0" encoding="UTF-8"?>
<sitemapindex xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <sitemap><loc>https://t.example/sitemap_products_1.xml</loc></sitemap>
</sitemapindex>`

const testNavJSON = `{
  "menuData": {
    "categories": [
      {"id": 1, "name": "Men", "children": [
        {"id": 11, "name": "Clothing", "children": []}
      ]}
    ]
  }
}`

// fakePage serves canned bodies keyed by URL; unknown URLs are 404. URLs
// registered with failFirst answer 500 that many times before serving.
type fakePage struct {
	mu       sync.Mutex
	pages    map[string][]byte
	failures map[string]int
}

func (p *fakePage) Get(_ context.Context, url string) (int, []byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failures[url] > 0 {
		p.failures[url]--
		return http.StatusInternalServerError, nil, nil
	}
	body, ok := p.pages[url]
	if !ok {
		return http.StatusNotFound, nil, nil
	}
	return http.StatusOK, body, nil
}

func (p *fakePage) failFirst(url string, n int) {
	p.mu.Lock()
	if p.failures == nil {
		p.failures = make(map[string]int)
	}
	p.failures[url] = n
	p.mu.Unlock()
}

func (p *fakePage) BringToFront(context.Context) error { return nil }
func (p *fakePage) Reload(context.Context) error       { return nil }
func (p *fakePage) Title(context.Context) (string, error) {
	return "", nil
}

func (p *fakePage) setSitemapChild(urls ...string) {
	child := `<?xml version="1.0" encoding="UTF-8"?><urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">`
	for _, u := range urls {
		child += "<url><loc>" + u + "</loc></url>"
	}
	child += `</urlset>`
	p.mu.Lock()
	p.pages["https://t.example/sitemap_products_1.xml"] = []byte(child)
	p.mu.Unlock()
}

func (p *fakePage) setProduct(url, name string) {
	payload := fmt.Sprintf(`{"name": %q, "category": "11"}`, name)
	p.mu.Lock()
	p.pages[url+".json"] = []byte(payload)
	p.mu.Unlock()
}

type testStrategy struct{}

func (testStrategy) Name() string { return "testshop" }

func (testStrategy) Metadata() site.Metadata {
	return site.Metadata{
		BaseURL:            "https://t.example",
		SitemapIndexURL:    "https://t.example/sitemap.xml",
		ChildPattern:       "sitemap_products",
		ProductPathSegment: "/product/",
		NavigationURLs:     []string{"https://t.example/nav.json"},
	}
}

func (testStrategy) BuildURL(productURL string) string { return productURL + ".json" }

func (testStrategy) ParseProduct(raw []byte, entry catalog.SitemapEntry, paths catalog.CategoryPaths) (catalog.Product, error) {
	var doc struct {
		Name     string `json:"name"`
		Category string `json:"category"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return catalog.Product{}, err
	}
	p := catalog.Product{URL: entry.URL, Name: doc.Name, Brand: "b", Gender: "men"}
	if paths != nil {
		p.CategoryPath = paths.Path(doc.Category)
	}
	return p, nil
}

func newTestPage() *fakePage {
	return &fakePage{pages: map[string][]byte{
		"https://t.example/sitemap.xml": []byte(testIndexXML),
		"https://t.example/nav.json":    []byte(testNavJSON),
	}}
}

func testOptions(t *testing.T, page *fakePage, dir string) Options {
	t.Helper()
	st, err := archive.Open(archive.Config{Dir: dir}, nil, zap.NewNop())
	require.NoError(t, err)
	return Options{
		Strategy: testStrategy{},
		Page:     page,
		Store:    st,
		Logger:   zap.NewNop(),
		GatewayConfig: fetch.Config{
			MaxPermits:        4,
			MaxRetries:        2,
			RetryDelay:        time.Millisecond,
			StartupRetryDelay: time.Millisecond,
		},
		CaptchaConfig: captcha.Config{PollInterval: time.Millisecond},
		Workers:       2,
	}
}

func TestRunFullCrawl(t *testing.T) {
	t.Parallel()

	page := newTestPage()
	page.setSitemapChild(
		"https://t.example/product/coat/1",
		"https://t.example/product/boot/2",
		"https://t.example/editorial/ignored",
	)
	page.setProduct("https://t.example/product/coat/1", "Coat")
	page.setProduct("https://t.example/product/boot/2", "Boot")

	opts := testOptions(t, page, t.TempDir())
	summary, err := Run(context.Background(), opts)
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Discovered)
	assert.Equal(t, 2, summary.Scraped)
	assert.Equal(t, 2, summary.Persisted)
	assert.Zero(t, summary.Kept)
	assert.Zero(t, summary.Retired)
	assert.NotEmpty(t, summary.RunID)

	products, err := opts.Store.Products(context.Background())
	require.NoError(t, err)
	require.Len(t, products, 2)
	assert.Equal(t, []string{"MEN", "CLOTHING"}, products[0].CategoryPath)
}

func TestRunIncrementalDiff(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	page := newTestPage()
	page.setSitemapChild(
		"https://t.example/product/coat/1",
		"https://t.example/product/boot/2",
	)
	page.setProduct("https://t.example/product/coat/1", "Coat")
	page.setProduct("https://t.example/product/boot/2", "Boot")

	first := testOptions(t, page, dir)
	_, err := Run(context.Background(), first)
	require.NoError(t, err)
	first.Store.Close()

	// Second run: the boot disappears, a scarf appears.
	page.setSitemapChild(
		"https://t.example/product/coat/1",
		"https://t.example/product/scarf/3",
	)
	page.setProduct("https://t.example/product/scarf/3", "Scarf")

	second := testOptions(t, page, dir)
	summary, err := Run(context.Background(), second)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Scraped)
	assert.Equal(t, 1, summary.Kept)
	assert.Equal(t, 1, summary.Retired)
	assert.Equal(t, 1, summary.Persisted)

	products, err := second.Store.Products(context.Background())
	require.NoError(t, err)
	require.Len(t, products, 2)
	assert.Equal(t, "https://t.example/product/coat/1", products[0].URL)
	assert.Equal(t, "https://t.example/product/scarf/3", products[1].URL)
}

func TestRunSurvivesFlakySitemapIndex(t *testing.T) {
	t.Parallel()

	page := newTestPage()
	page.setSitemapChild("https://t.example/product/coat/1")
	page.setProduct("https://t.example/product/coat/1", "Coat")
	// The index stays down well past the bounded retry budget before it
	// heals; the run has to keep knocking rather than abort.
	page.failFirst("https://t.example/sitemap.xml", 6)

	opts := testOptions(t, page, t.TempDir())
	summary, err := Run(context.Background(), opts)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Discovered)
	assert.Equal(t, 1, summary.Persisted)
}

func TestRunSkipsGoneProducts(t *testing.T) {
	t.Parallel()

	page := newTestPage()
	page.setSitemapChild(
		"https://t.example/product/coat/1",
		"https://t.example/product/ghost/9",
	)
	page.setProduct("https://t.example/product/coat/1", "Coat")

	opts := testOptions(t, page, t.TempDir())
	summary, err := Run(context.Background(), opts)
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Scraped)
	assert.Equal(t, 1, summary.Persisted)
}

func TestRunPublishesSummary(t *testing.T) {
	t.Parallel()

	page := newTestPage()
	page.setSitemapChild("https://t.example/product/coat/1")
	page.setProduct("https://t.example/product/coat/1", "Coat")

	pub := memory.New()
	opts := testOptions(t, page, t.TempDir())
	opts.Publisher = pub
	opts.Topic = "catalog.runs"

	summary, err := Run(context.Background(), opts)
	require.NoError(t, err)

	msgs := pub.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "catalog.runs", msgs[0].Topic)
	published, ok := msgs[0].Payload.(RunSummary)
	require.True(t, ok)
	assert.Equal(t, summary.RunID, published.RunID)
}

func TestRunFlushWritesSnapshot(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	page := newTestPage()
	page.setSitemapChild("https://t.example/product/coat/1")
	page.setProduct("https://t.example/product/coat/1", "Coat")

	opts := testOptions(t, page, dir)
	_, err := Run(context.Background(), opts)
	require.NoError(t, err)

	reloaded, err := archive.Open(archive.Config{Dir: dir}, nil, zap.NewNop())
	require.NoError(t, err)
	urls, err := reloaded.URLSet(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"https://t.example/product/coat/1"}, urls)
}
